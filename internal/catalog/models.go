package catalog

import (
	"time"

	"lookbook/internal/prompt"
)

// GarmentRecord is the analyzed product record feeding prompt synthesis.
type GarmentRecord struct {
	ID                 string
	UserID             string
	Name               string
	Category           string
	Color              string
	ClosureDescription string
	FabricTexture      string
	HasLogo            bool
	Analyzed           bool
	AnalysisJSON       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PromptGarment projects the record onto the synthesizer input.
func (g *GarmentRecord) PromptGarment() prompt.Garment {
	return prompt.Garment{
		Name:               g.Name,
		Category:           g.Category,
		Color:              g.Color,
		ClosureDescription: g.ClosureDescription,
		FabricTexture:      g.FabricTexture,
		HasLogo:            g.HasLogo,
	}
}

// StyleKind distinguishes preset and collection style sources.
type StyleKind string

const (
	StylePreset     StyleKind = "preset"
	StyleCollection StyleKind = "collection"
)

// ShotOption overrides subject and sizing for one shot type.
type ShotOption struct {
	Subject string `json:"subject,omitempty"`
	Size    string `json:"size,omitempty"`
}

// StyleSource is a preset or collection art-direction record.
type StyleSource struct {
	ID          string
	UserID      string
	Kind        StyleKind
	Name        string
	Background  string
	Lighting    string
	Props       string
	Footwear    string
	PantsPhrase string
	Subject     string
	ShotOptions map[string]ShotOption
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PromptStyle projects the source onto the synthesizer input.
func (s *StyleSource) PromptStyle() prompt.Style {
	return prompt.Style{
		Background:  s.Background,
		Lighting:    s.Lighting,
		Props:       s.Props,
		Footwear:    s.Footwear,
		PantsPhrase: s.PantsPhrase,
		Subject:     s.Subject,
	}
}

// PromptOptions converts per-shot overrides, dropping unknown shot keys.
func (s *StyleSource) PromptOptions() prompt.Options {
	if len(s.ShotOptions) == 0 {
		return prompt.Options{}
	}
	perShot := make(map[prompt.ShotType]prompt.ShotOption, len(s.ShotOptions))
	for key, opt := range s.ShotOptions {
		shot, err := prompt.Parse(key)
		if err != nil {
			continue
		}
		perShot[shot] = prompt.ShotOption{Subject: opt.Subject, Size: opt.Size}
	}
	return prompt.Options{PerShot: perShot}
}

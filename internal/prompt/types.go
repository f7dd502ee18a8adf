package prompt

import "time"

// Garment carries the analyzed product attributes consumed by synthesis.
type Garment struct {
	Name               string
	Category           string
	Color              string
	ClosureDescription string
	FabricTexture      string
	HasLogo            bool
}

// Style carries the art-direction record merged with the garment.
type Style struct {
	Background  string
	Lighting    string
	Props       string
	Footwear    string
	PantsPhrase string
	Subject     string
}

// ShotOption overrides subject and sizing for a single shot.
type ShotOption struct {
	Subject string
	Size    string
}

// Options holds per-shot overrides applied during synthesis.
type Options struct {
	PerShot map[ShotType]ShotOption
}

// Object is one synthesized shot prompt.
type Object struct {
	ID                   string     `json:"id"`
	ShotType             ShotType   `json:"shot_type"`
	DisplayName          string     `json:"display_name"`
	Camera               Camera     `json:"camera"`
	Prompt               string     `json:"prompt"`
	NegativePrompt       string     `json:"negative_prompt"`
	BackgroundSummary    string     `json:"background_summary"`
	ProductDetailSummary string     `json:"product_detail_summary"`
	StyleElementSummary  string     `json:"style_element_summary"`
	Editable             bool       `json:"editable"`
	LastEditedAt         *time.Time `json:"last_edited_at,omitempty"`
}

// Set maps every canonical shot type to its prompt object.
type Set map[ShotType]*Object

package api

import (
	"time"

	"lookbook/internal/generation"
	"lookbook/internal/prompt"
)

// CreateGenerationRequest starts a new run for a garment and exactly one
// style source.
type CreateGenerationRequest struct {
	GarmentID    string `json:"garment_id"`
	PresetID     string `json:"preset_id,omitempty"`
	CollectionID string `json:"collection_id,omitempty"`
}

// ExecuteRequest queues a render run.
type ExecuteRequest struct {
	Shots []string `json:"shots,omitempty"`
	Model string   `json:"model,omitempty"`
}

// RetryVisualRequest re-renders a single recorded shot.
type RetryVisualRequest struct {
	Model string `json:"model,omitempty"`
}

// PromptEditPayload carries partial edits for one shot. Nil fields are
// left untouched.
type PromptEditPayload struct {
	Prompt         *string `json:"prompt,omitempty"`
	NegativePrompt *string `json:"negative_prompt,omitempty"`
	DisplayName    *string `json:"display_name,omitempty"`
}

// SavePromptsRequest maps shot types to their edits.
type SavePromptsRequest struct {
	Edits map[string]PromptEditPayload `json:"edits"`
}

// VisualView is the per-shot execution state exposed to clients.
type VisualView struct {
	ShotType  string    `json:"shot_type"`
	Status    string    `json:"status"`
	ImageURL  string    `json:"image_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenerationView is the client-facing projection of a run record.
type GenerationView struct {
	ID              string                    `json:"id"`
	GarmentID       string                    `json:"garment_id"`
	PresetID        string                    `json:"preset_id,omitempty"`
	CollectionID    string                    `json:"collection_id,omitempty"`
	Status          string                    `json:"status"`
	CurrentStep     string                    `json:"current_step"`
	ProgressPercent int                       `json:"progress_percent"`
	Prompts         map[string]*prompt.Object `json:"prompts,omitempty"`
	NegativePrompt  string                    `json:"negative_prompt,omitempty"`
	Visuals         []VisualView              `json:"visuals,omitempty"`
	GeneratedImages map[string]string         `json:"generated_images,omitempty"`
	StartedAt       *time.Time                `json:"started_at,omitempty"`
	CompletedAt     *time.Time                `json:"completed_at,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
}

// NewGenerationView projects a record for transport.
func NewGenerationView(record *generation.Record) *GenerationView {
	view := &GenerationView{
		ID:              record.ID,
		GarmentID:       record.GarmentID,
		PresetID:        record.PresetID,
		CollectionID:    record.CollectionID,
		Status:          string(record.Status),
		CurrentStep:     record.CurrentStep,
		ProgressPercent: record.ProgressPercent,
		NegativePrompt:  record.NegativePrompt,
		StartedAt:       record.StartedAt,
		CompletedAt:     record.CompletedAt,
		CreatedAt:       record.CreatedAt,
	}
	if len(record.MergedPrompts) > 0 {
		view.Prompts = make(map[string]*prompt.Object, len(record.MergedPrompts))
		for shot, obj := range record.MergedPrompts {
			view.Prompts[string(shot)] = obj
		}
	}
	for _, visual := range record.Visuals {
		view.Visuals = append(view.Visuals, VisualView{
			ShotType:  string(visual.ShotType),
			Status:    string(visual.Status),
			ImageURL:  visual.ImageURL,
			Error:     visual.Error,
			UpdatedAt: visual.UpdatedAt,
		})
	}
	if len(record.GeneratedImages) > 0 {
		view.GeneratedImages = make(map[string]string, len(record.GeneratedImages))
		for shot, url := range record.GeneratedImages {
			view.GeneratedImages[string(shot)] = url
		}
	}
	return view
}

// ProgressView mirrors the lifecycle progress report.
type ProgressView struct {
	Status          string       `json:"status"`
	CurrentStep     string       `json:"current_step"`
	ProgressPercent int          `json:"progress_percent"`
	CompletedCount  int          `json:"completed_count"`
	TotalCount      int          `json:"total_count"`
	Visuals         []VisualView `json:"visuals,omitempty"`
}

// NewProgressView projects a lifecycle report for transport.
func NewProgressView(report *generation.ProgressReport) *ProgressView {
	view := &ProgressView{
		Status:          string(report.Status),
		CurrentStep:     report.CurrentStep,
		ProgressPercent: report.ProgressPercent,
		CompletedCount:  report.CompletedCount,
		TotalCount:      report.TotalCount,
	}
	for _, visual := range report.Visuals {
		view.Visuals = append(view.Visuals, VisualView{
			ShotType:  string(visual.ShotType),
			Status:    string(visual.Status),
			ImageURL:  visual.ImageURL,
			Error:     visual.Error,
			UpdatedAt: visual.UpdatedAt,
		})
	}
	return view
}

// CreateGarmentRequest registers a product in the catalog.
type CreateGarmentRequest struct {
	Name               string `json:"name"`
	Category           string `json:"category,omitempty"`
	Color              string `json:"color,omitempty"`
	ClosureDescription string `json:"closure_description,omitempty"`
	FabricTexture      string `json:"fabric_texture,omitempty"`
	HasLogo            bool   `json:"has_logo,omitempty"`
	Analyzed           bool   `json:"analyzed,omitempty"`
}

// AnalyzeGarmentRequest submits a product photo for vision analysis.
type AnalyzeGarmentRequest struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type,omitempty"`
}

// GarmentView is the client-facing garment record.
type GarmentView struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Category           string    `json:"category,omitempty"`
	Color              string    `json:"color,omitempty"`
	ClosureDescription string    `json:"closure_description,omitempty"`
	FabricTexture      string    `json:"fabric_texture,omitempty"`
	HasLogo            bool      `json:"has_logo"`
	Analyzed           bool      `json:"analyzed"`
	CreatedAt          time.Time `json:"created_at"`
}

// CreateStyleRequest registers a preset or collection style source.
type CreateStyleRequest struct {
	Kind        string                       `json:"kind"`
	Name        string                       `json:"name"`
	Background  string                       `json:"background,omitempty"`
	Lighting    string                       `json:"lighting,omitempty"`
	Props       string                       `json:"props,omitempty"`
	Footwear    string                       `json:"footwear,omitempty"`
	PantsPhrase string                       `json:"pants_phrase,omitempty"`
	Subject     string                       `json:"subject,omitempty"`
	ShotOptions map[string]ShotOptionPayload `json:"shot_options,omitempty"`
}

// ShotOptionPayload overrides subject and sizing for one shot.
type ShotOptionPayload struct {
	Subject string `json:"subject,omitempty"`
	Size    string `json:"size,omitempty"`
}

// StyleView is the client-facing style source record.
type StyleView struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse is the JSON body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse reports daemon health.
type StatusResponse struct {
	Status      string         `json:"status"`
	Version     string         `json:"version,omitempty"`
	QueueCounts map[string]int `json:"queue_counts,omitempty"`
}

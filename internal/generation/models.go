package generation

import (
	"time"

	"lookbook/internal/prompt"
)

// Status is the overall phase of a generation run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var statusSet = map[Status]struct{}{
	StatusPending:    {},
	StatusProcessing: {},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	_, ok := statusSet[s]
	return ok
}

// Terminal reports whether the run has reached a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Free-form phase labels surfaced to the UI alongside Status.
const (
	StepCreated          = "created"
	StepBuildingPrompts  = "building_prompts"
	StepPromptsBuilt     = "prompts_built"
	StepPromptsEdited    = "prompts_edited"
	StepMerged           = "merged"
	StepGeneratingImages = "generating_images"
	StepCompleted        = "completed"
	StepFailed           = "failed"
)

// VisualStatus is the phase of one shot within a run.
type VisualStatus string

const (
	VisualPending    VisualStatus = "pending"
	VisualProcessing VisualStatus = "processing"
	VisualCompleted  VisualStatus = "completed"
	VisualFailed     VisualStatus = "failed"
)

// Visual is the per-shot execution record.
type Visual struct {
	ShotType  prompt.ShotType `json:"shot_type"`
	Status    VisualStatus    `json:"status"`
	ImageURL  string          `json:"image_url,omitempty"`
	ImageFile string          `json:"image_file,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Record is one run of the six-shot pipeline.
type Record struct {
	ID           string
	UserID       string
	GarmentID    string
	PresetID     string
	CollectionID string

	Status          Status
	CurrentStep     string
	ProgressPercent int

	MergedPrompts   prompt.Set
	NegativePrompt  string
	Visuals         []Visual
	GeneratedImages map[prompt.ShotType]string

	Resolution  string
	AspectRatio string

	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StyleSourceID returns whichever style source is active.
func (r *Record) StyleSourceID() string {
	if r.PresetID != "" {
		return r.PresetID
	}
	return r.CollectionID
}

// VisualIndex locates a shot's visual, or -1 when absent.
func (r *Record) VisualIndex(shot prompt.ShotType) int {
	for i := range r.Visuals {
		if r.Visuals[i].ShotType == shot {
			return i
		}
	}
	return -1
}

// CompletedCount reports how many visuals finished successfully.
func (r *Record) CompletedCount() int {
	count := 0
	for i := range r.Visuals {
		if r.Visuals[i].Status == VisualCompleted {
			count++
		}
	}
	return count
}

// AllVisualsCompleted reports whether every tracked visual succeeded.
func (r *Record) AllVisualsCompleted() bool {
	if len(r.Visuals) == 0 {
		return false
	}
	for i := range r.Visuals {
		if r.Visuals[i].Status != VisualCompleted {
			return false
		}
	}
	return true
}

// progress maps completed work onto the reported percentage. The first ten
// percent covers queueing and setup; the remaining span advances per shot.
const (
	progressBase = 10
	progressSpan = 90
)

func progressPercent(done, total int) int {
	if total <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return progressBase + done*progressSpan/total
}

package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lookbook/internal/catalog"
	"lookbook/internal/events"
	"lookbook/internal/imagegen"
	"lookbook/internal/imagestore"
	"lookbook/internal/logging"
	"lookbook/internal/prompt"
	"lookbook/internal/queue"
	"lookbook/internal/services"
)

// Provider renders one image per shot request.
type Provider interface {
	Generate(ctx context.Context, req imagegen.Request) (*imagegen.Image, error)
}

// ImageStore persists rendered image bytes.
type ImageStore interface {
	Store(ctx context.Context, data []byte, mimeType string) (imagestore.Ref, error)
}

// Archiver primes the download bundle cache once a run fully completes.
type Archiver interface {
	Prime(ctx context.Context, record *Record)
}

// Lifecycle owns every mutation of generation records: prompt building,
// editing, execution, per-visual retry, and reset.
type Lifecycle struct {
	store    *Store
	catalog  *catalog.Store
	tasks    *queue.Store
	provider Provider
	images   ImageStore
	bus      *events.Bus
	archiver Archiver
	logger   *slog.Logger

	defaultResolution  string
	defaultAspectRatio string
}

// Config wires the lifecycle's collaborators.
type Config struct {
	Store              *Store
	Catalog            *catalog.Store
	Tasks              *queue.Store
	Provider           Provider
	Images             ImageStore
	Bus                *events.Bus
	Archiver           Archiver
	Logger             *slog.Logger
	DefaultResolution  string
	DefaultAspectRatio string
}

// NewLifecycle constructs the lifecycle service.
func NewLifecycle(cfg Config) *Lifecycle {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Lifecycle{
		store:              cfg.Store,
		catalog:            cfg.Catalog,
		tasks:              cfg.Tasks,
		provider:           cfg.Provider,
		images:             cfg.Images,
		bus:                cfg.Bus,
		archiver:           cfg.Archiver,
		logger:             logging.NewComponentLogger(logger, "generation"),
		defaultResolution:  cfg.DefaultResolution,
		defaultAspectRatio: cfg.DefaultAspectRatio,
	}
}

func (l *Lifecycle) load(ctx context.Context, userID, id string) (*Record, error) {
	record, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && record.UserID != userID {
		return nil, services.Wrap(services.ErrPermission, "generation", "authorize", fmt.Sprintf("generation %s belongs to another user", id), nil)
	}
	return record, nil
}

// Create registers a new run for a garment and exactly one style source.
func (l *Lifecycle) Create(ctx context.Context, userID, garmentID, presetID, collectionID string) (*Record, error) {
	record := &Record{
		UserID:       userID,
		GarmentID:    garmentID,
		PresetID:     strings.TrimSpace(presetID),
		CollectionID: strings.TrimSpace(collectionID),
		Status:       StatusPending,
		CurrentStep:  StepCreated,
		Resolution:   l.defaultResolution,
		AspectRatio:  l.defaultAspectRatio,
	}
	if err := l.store.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Get returns one record after an ownership check.
func (l *Lifecycle) Get(ctx context.Context, userID, id string) (*Record, error) {
	return l.load(ctx, userID, id)
}

// List returns the caller's generations, newest first.
func (l *Lifecycle) List(ctx context.Context, userID string) ([]*Record, error) {
	return l.store.List(ctx, userID)
}

// BuildPrompts synthesizes and persists the six shot prompts. The garment
// must be analyzed and the style source must exist.
func (l *Lifecycle) BuildPrompts(ctx context.Context, userID, id string) (prompt.Set, error) {
	record, err := l.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if record.Status == StatusProcessing {
		return nil, services.Wrap(services.ErrConflict, "generation", "build prompts", "generation is processing", nil)
	}

	garment, err := l.catalog.GetGarment(ctx, record.GarmentID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, services.Wrap(services.ErrValidation, "generation", "build prompts", "garment record missing", err)
		}
		return nil, err
	}
	if !garment.Analyzed {
		return nil, services.Wrap(services.ErrValidation, "generation", "build prompts", "garment has not been analyzed", nil)
	}

	styleID := record.StyleSourceID()
	if styleID == "" {
		return nil, services.Wrap(services.ErrValidation, "generation", "build prompts", "no style source selected", nil)
	}
	style, err := l.catalog.GetStyleSource(ctx, styleID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, services.Wrap(services.ErrValidation, "generation", "build prompts", "style source missing", err)
		}
		return nil, err
	}

	record.CurrentStep = StepBuildingPrompts
	set, negative, err := prompt.Synthesize(garment.PromptGarment(), style.PromptStyle(), style.PromptOptions())
	if err != nil {
		return nil, err
	}

	record.MergedPrompts = set
	record.NegativePrompt = negative
	record.CurrentStep = StepPromptsBuilt
	if err := l.store.Update(ctx, record); err != nil {
		return nil, err
	}

	l.logger.Info("prompts built",
		logging.String(logging.FieldGenerationID, record.ID),
		logging.Int("shot_count", len(set)))
	return set, nil
}

// PromptEdit overwrites individual prompt fields; nil fields are left
// untouched.
type PromptEdit struct {
	Prompt         *string
	NegativePrompt *string
	DisplayName    *string
}

// SavePrompts merges user edits into the built prompt set, stamping each
// edited shot. Editing before BuildPrompts is a conflict.
func (l *Lifecycle) SavePrompts(ctx context.Context, userID, id string, edits map[prompt.ShotType]PromptEdit) (prompt.Set, error) {
	record, err := l.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if len(record.MergedPrompts) == 0 {
		return nil, services.Wrap(services.ErrConflict, "generation", "save prompts", "prompts have not been built", nil)
	}
	if record.Status == StatusProcessing {
		return nil, services.Wrap(services.ErrConflict, "generation", "save prompts", "generation is processing", nil)
	}

	now := time.Now().UTC()
	for shot, edit := range edits {
		if !shot.Valid() {
			return nil, services.Wrap(services.ErrValidation, "generation", "save prompts", fmt.Sprintf("unknown shot type %q", shot), nil)
		}
		obj := record.MergedPrompts[shot]
		if obj == nil {
			return nil, services.Wrap(services.ErrValidation, "generation", "save prompts", fmt.Sprintf("no prompt for shot %q", shot), nil)
		}
		if edit.Prompt != nil {
			obj.Prompt = *edit.Prompt
		}
		if edit.NegativePrompt != nil {
			obj.NegativePrompt = *edit.NegativePrompt
		}
		if edit.DisplayName != nil {
			obj.DisplayName = *edit.DisplayName
		}
		edited := now
		obj.LastEditedAt = &edited
	}

	if len(edits) == len(prompt.AllShots()) {
		record.CurrentStep = StepMerged
	} else {
		record.CurrentStep = StepPromptsEdited
	}
	if err := l.store.Update(ctx, record); err != nil {
		return nil, err
	}
	return record.MergedPrompts, nil
}

func parseSelectedShots(raw []string) ([]prompt.ShotType, error) {
	if len(raw) == 0 {
		return prompt.AllShots(), nil
	}
	seen := make(map[prompt.ShotType]struct{}, len(raw))
	var shots []prompt.ShotType
	for _, value := range raw {
		shot, err := prompt.Parse(value)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "generation", "select shots", "parse shot selection", err)
		}
		if _, ok := seen[shot]; ok {
			continue
		}
		seen[shot] = struct{}{}
		shots = append(shots, shot)
	}
	return shots, nil
}

// Execute queues an asynchronous render run and returns immediately. A run
// already processing, or an active queued task, is a conflict.
func (l *Lifecycle) Execute(ctx context.Context, userID, id string, selectedShots []string, modelOverride string) (*Record, error) {
	record, err := l.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if record.Status == StatusProcessing {
		return nil, services.Wrap(services.ErrConflict, "generation", "execute", "generation is already processing", nil)
	}
	if len(record.MergedPrompts) == 0 {
		return nil, services.Wrap(services.ErrValidation, "generation", "execute", "prompts have not been built", nil)
	}
	shots, err := parseSelectedShots(selectedShots)
	if err != nil {
		return nil, err
	}
	active, err := l.tasks.ActiveForGeneration(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, services.Wrap(services.ErrConflict, "generation", "execute", "a render task is already queued", queue.ErrDuplicateTask)
	}

	seedVisuals(record, shots)
	record.Status = StatusPending
	record.CurrentStep = StepGeneratingImages
	record.ProgressPercent = 0
	record.CompletedAt = nil
	if err := l.store.Update(ctx, record); err != nil {
		return nil, err
	}

	task := &queue.Task{
		GenerationID:  record.ID,
		UserID:        record.UserID,
		SelectedShots: shotStrings(shots),
		ModelOverride: strings.TrimSpace(modelOverride),
	}
	if err := l.tasks.Enqueue(ctx, task); err != nil {
		return nil, err
	}

	l.logger.Info("render task queued",
		logging.String(logging.FieldGenerationID, record.ID),
		logging.Int("shot_count", len(shots)))
	return record, nil
}

func shotStrings(shots []prompt.ShotType) []string {
	out := make([]string, len(shots))
	for i, shot := range shots {
		out[i] = string(shot)
	}
	return out
}

// seedVisuals ensures one visual per selected shot, resetting selected
// shots to pending while leaving other visuals untouched.
func seedVisuals(record *Record, shots []prompt.ShotType) {
	now := time.Now().UTC()
	for _, shot := range shots {
		idx := record.VisualIndex(shot)
		if idx < 0 {
			record.Visuals = append(record.Visuals, Visual{ShotType: shot, Status: VisualPending, UpdatedAt: now})
			continue
		}
		record.Visuals[idx].Status = VisualPending
		record.Visuals[idx].Error = ""
		record.Visuals[idx].UpdatedAt = now
	}
}

// RetryVisual re-renders exactly one recorded shot in place. It is
// rejected while a queued or running task exists for the generation.
func (l *Lifecycle) RetryVisual(ctx context.Context, userID, id string, shotIndex int, modelOverride string) (*Record, error) {
	record, err := l.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	active, err := l.tasks.ActiveForGeneration(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, services.Wrap(services.ErrConflict, "generation", "retry visual", "a render task is in flight", nil)
	}
	if shotIndex < 0 || shotIndex >= len(record.Visuals) {
		return nil, services.Wrap(services.ErrValidation, "generation", "retry visual", fmt.Sprintf("visual index %d out of range", shotIndex), nil)
	}
	shot := record.Visuals[shotIndex].ShotType
	if record.MergedPrompts[shot] == nil {
		return nil, services.Wrap(services.ErrValidation, "generation", "retry visual", fmt.Sprintf("no prompt for shot %q", shot), nil)
	}

	now := time.Now().UTC()
	record.Visuals[shotIndex].Status = VisualProcessing
	record.Visuals[shotIndex].Error = ""
	record.Visuals[shotIndex].UpdatedAt = now
	if err := l.store.Update(ctx, record); err != nil {
		return nil, err
	}
	l.publish(events.KindVisualProcessing, record, shotIndex, map[string]any{"shot_type": string(shot)})

	if err := l.renderShot(ctx, record, shotIndex, modelOverride); err != nil {
		record.Visuals[shotIndex].Status = VisualFailed
		record.Visuals[shotIndex].Error = err.Error()
		record.Visuals[shotIndex].UpdatedAt = time.Now().UTC()
	}
	if err := l.store.Update(ctx, record); err != nil {
		return nil, err
	}
	l.publishVisualTerminal(record, shotIndex)

	if record.AllVisualsCompleted() && l.archiver != nil {
		snapshot := *record
		go l.archiver.Prime(context.Background(), &snapshot)
	}
	return record, nil
}

// Reset returns a terminal run to pending, clearing per-visual errors and
// image references while preserving prompts. Safe to call repeatedly.
func (l *Lifecycle) Reset(ctx context.Context, userID, id string) (*Record, error) {
	record, err := l.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	active, err := l.tasks.ActiveForGeneration(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, services.Wrap(services.ErrConflict, "generation", "reset", "a render task is in flight", nil)
	}

	now := time.Now().UTC()
	record.Status = StatusPending
	record.ProgressPercent = 0
	record.StartedAt = nil
	record.CompletedAt = nil
	record.GeneratedImages = nil
	if len(record.MergedPrompts) > 0 {
		record.CurrentStep = StepPromptsBuilt
	} else {
		record.CurrentStep = StepCreated
	}
	for i := range record.Visuals {
		record.Visuals[i].Status = VisualPending
		record.Visuals[i].Error = ""
		record.Visuals[i].ImageURL = ""
		record.Visuals[i].ImageFile = ""
		record.Visuals[i].UpdatedAt = now
	}
	if err := l.store.Update(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// ProgressReport derives run progress purely from the persisted record.
type ProgressReport struct {
	Status          Status   `json:"status"`
	CurrentStep     string   `json:"current_step"`
	ProgressPercent int      `json:"progress_percent"`
	CompletedCount  int      `json:"completed_count"`
	TotalCount      int      `json:"total_count"`
	Visuals         []Visual `json:"visuals"`
}

// Progress reports the run's current state for polling clients.
func (l *Lifecycle) Progress(ctx context.Context, userID, id string) (*ProgressReport, error) {
	record, err := l.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	total := len(record.Visuals)
	if total == 0 {
		total = len(prompt.AllShots())
	}
	return &ProgressReport{
		Status:          record.Status,
		CurrentStep:     record.CurrentStep,
		ProgressPercent: record.ProgressPercent,
		CompletedCount:  record.CompletedCount(),
		TotalCount:      total,
		Visuals:         record.Visuals,
	}, nil
}

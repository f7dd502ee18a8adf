package generation

import (
	"context"
	"errors"
	"time"

	"lookbook/internal/events"
	"lookbook/internal/imagegen"
	"lookbook/internal/logging"
	"lookbook/internal/prompt"
	"lookbook/internal/queue"
	"lookbook/internal/services"
)

// Run executes one queued render task. It is the workflow handler: the
// caller claims the task, invokes Run, and requeues or fails the task
// based on the returned error. A nil return means the run reached a
// terminal status on its own, even when individual shots failed.
func (l *Lifecycle) Run(ctx context.Context, task *queue.Task) error {
	record, err := l.store.Get(ctx, task.GenerationID)
	if err != nil {
		return err
	}
	ctx = services.WithGenerationID(services.WithUserID(ctx, record.UserID), record.ID)

	shots, err := parseSelectedShots(task.SelectedShots)
	if err != nil {
		return err
	}
	if len(record.MergedPrompts) == 0 {
		return services.Wrap(services.ErrValidation, "generation", "run", "prompts have not been built", nil)
	}
	seedVisuals(record, shots)

	now := time.Now().UTC()
	record.Status = StatusProcessing
	record.CurrentStep = StepGeneratingImages
	record.StartedAt = &now
	record.CompletedAt = nil
	record.ProgressPercent = progressPercent(0, len(shots))
	if err := l.store.Update(ctx, record); err != nil {
		return err
	}

	done := 0
	for _, shot := range shots {
		idx := record.VisualIndex(shot)
		record.Visuals[idx].Status = VisualProcessing
		record.Visuals[idx].Error = ""
		record.Visuals[idx].UpdatedAt = time.Now().UTC()
		if err := l.store.Update(ctx, record); err != nil {
			return err
		}
		l.publish(events.KindVisualProcessing, record, idx, map[string]any{"shot_type": string(shot)})

		if err := l.renderShot(ctx, record, idx, task.ModelOverride); err != nil {
			l.logger.Error("run aborted",
				logging.String(logging.FieldGenerationID, record.ID),
				logging.String(logging.FieldShotType, string(shot)),
				logging.Error(err))
			l.failRun(ctx, record, err.Error())
			return err
		}

		done++
		record.ProgressPercent = progressPercent(done, len(shots))
		if err := l.store.Update(ctx, record); err != nil {
			return err
		}
		l.publishVisualTerminal(record, idx)
	}

	now = time.Now().UTC()
	record.ProgressPercent = 100
	record.CompletedAt = &now
	if record.CompletedCount() > 0 {
		record.Status = StatusCompleted
		record.CurrentStep = StepCompleted
	} else {
		record.Status = StatusFailed
		record.CurrentStep = StepFailed
	}
	if err := l.store.Update(ctx, record); err != nil {
		return err
	}
	l.publish(events.KindGenerationDone, record, -1, map[string]any{
		"status":          string(record.Status),
		"completed_count": record.CompletedCount(),
		"total_count":     len(record.Visuals),
	})
	l.logger.Info("run finished",
		logging.String(logging.FieldGenerationID, record.ID),
		logging.String("status", string(record.Status)),
		logging.Int("completed", record.CompletedCount()))

	if record.AllVisualsCompleted() && l.archiver != nil {
		snapshot := *record
		go l.archiver.Prime(context.Background(), &snapshot)
	}
	return nil
}

// renderShot renders one visual in place. Provider failures mark the
// visual failed and return nil; infrastructure failures propagate so the
// caller can abort and retry the whole run.
func (l *Lifecycle) renderShot(ctx context.Context, record *Record, idx int, modelOverride string) error {
	visual := &record.Visuals[idx]
	obj := record.MergedPrompts[visual.ShotType]
	shotCtx := services.WithShotType(ctx, string(visual.ShotType))

	image, err := l.provider.Generate(shotCtx, imagegen.Request{
		Prompt:         obj.Prompt,
		NegativePrompt: obj.NegativePrompt,
		ShotType:       string(visual.ShotType),
		Resolution:     record.Resolution,
		AspectRatio:    record.AspectRatio,
		Model:          modelOverride,
	})
	if err != nil {
		if errors.Is(err, services.ErrInfrastructure) {
			return err
		}
		visual.Status = VisualFailed
		visual.Error = err.Error()
		visual.UpdatedAt = time.Now().UTC()
		return nil
	}

	ref, err := l.images.Store(shotCtx, image.Data, image.MimeType)
	if err != nil {
		return services.Wrap(services.ErrInfrastructure, "generation", "render shot", "persist rendered image", err)
	}

	visual.Status = VisualCompleted
	visual.ImageURL = ref.URL
	visual.ImageFile = ref.Filename
	visual.Error = ""
	visual.UpdatedAt = time.Now().UTC()
	if record.GeneratedImages == nil {
		record.GeneratedImages = make(map[prompt.ShotType]string)
	}
	record.GeneratedImages[visual.ShotType] = ref.URL
	return nil
}

// MarkRunFailed forces a run to the failed terminal state. The workflow
// manager calls this when a task exhausts its attempts or stall budget.
func (l *Lifecycle) MarkRunFailed(ctx context.Context, generationID, message string) error {
	record, err := l.store.Get(ctx, generationID)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		return nil
	}
	l.failRun(ctx, record, message)
	return nil
}

func (l *Lifecycle) failRun(ctx context.Context, record *Record, message string) {
	now := time.Now().UTC()
	record.Status = StatusFailed
	record.CurrentStep = StepFailed
	record.ProgressPercent = 100
	record.CompletedAt = &now
	for i := range record.Visuals {
		if record.Visuals[i].Status == VisualProcessing {
			record.Visuals[i].Status = VisualFailed
			if record.Visuals[i].Error == "" {
				record.Visuals[i].Error = message
			}
			record.Visuals[i].UpdatedAt = now
		}
	}
	if err := l.store.Update(ctx, record); err != nil {
		l.logger.Error("persist failed run",
			logging.String(logging.FieldGenerationID, record.ID),
			logging.Error(err))
		return
	}
	l.publish(events.KindGenerationDone, record, -1, map[string]any{
		"status":          string(StatusFailed),
		"completed_count": record.CompletedCount(),
		"total_count":     len(record.Visuals),
		"error":           message,
	})
}

func (l *Lifecycle) publish(kind events.Kind, record *Record, idx int, payload map[string]any) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(events.Event{
		Kind:         kind,
		GenerationID: record.ID,
		UserID:       record.UserID,
		VisualIndex:  idx,
		Payload:      payload,
	})
}

func (l *Lifecycle) publishVisualTerminal(record *Record, idx int) {
	visual := record.Visuals[idx]
	switch visual.Status {
	case VisualCompleted:
		l.publish(events.KindVisualCompleted, record, idx, map[string]any{
			"shot_type": string(visual.ShotType),
			"image_url": visual.ImageURL,
		})
	case VisualFailed:
		l.publish(events.KindVisualFailed, record, idx, map[string]any{
			"shot_type": string(visual.ShotType),
			"error":     visual.Error,
		})
	}
}

package logging

import (
	"context"
	"log/slog"

	"lookbook/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldGenerationID is the standardized structured logging key for generation identifiers.
	FieldGenerationID = "generation_id"
	// FieldShotType is the standardized structured logging key for the shot being rendered.
	FieldShotType = "shot_type"
	// FieldUserID is the standardized structured logging key for the acting user.
	FieldUserID = "user_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags log lines with a machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator-facing next step for a failure.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.GenerationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldGenerationID, id))
	}
	if shot, ok := services.ShotTypeFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldShotType, shot))
	}
	if user, ok := services.UserIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldUserID, user))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}

package services

import "context"

type contextKey string

const (
	generationIDKey contextKey = "generation_id"
	shotTypeKey     contextKey = "shot_type"
	userIDKey       contextKey = "user_id"
	requestIDKey    contextKey = "request_id"
)

// WithGenerationID annotates context with the generation identifier.
func WithGenerationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, generationIDKey, id)
}

// GenerationIDFromContext extracts the generation identifier if present.
func GenerationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(generationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithShotType annotates context with the shot currently being rendered.
func WithShotType(ctx context.Context, shot string) context.Context {
	if shot == "" {
		return ctx
	}
	return context.WithValue(ctx, shotTypeKey, shot)
}

// ShotTypeFromContext returns the shot type if present.
func ShotTypeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(shotTypeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithUserID annotates context with the acting user.
func WithUserID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext returns the acting user if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"lookbook/internal/services"
)

func TestPrettyHandlerFormatsComponent(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false))
	logger = NewComponentLogger(logger, "prompt")

	logger.Info("prompts built", Int("shot_count", 6))

	line := buf.String()
	if !strings.Contains(line, "INFO prompt: prompts built") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "shot_count=6") {
		t.Fatalf("missing attr: %q", line)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false))

	ctx := services.WithGenerationID(context.Background(), "gen-7")
	ctx = services.WithShotType(ctx, "close-up-back")
	WithContext(ctx, logger).Info("shot started")

	line := buf.String()
	if !strings.Contains(line, "generation_id=gen-7") {
		t.Fatalf("missing generation id: %q", line)
	}
	if !strings.Contains(line, "shot_type=close-up-back") {
		t.Fatalf("missing shot type: %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

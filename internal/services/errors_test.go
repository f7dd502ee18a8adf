package services_test

import (
	"errors"
	"strings"
	"testing"

	"lookbook/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrProvider, "imagegen", "generate", "render shot", base)
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected provider marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "imagegen: generate: render shot") {
		t.Fatalf("unexpected detail: %v", err)
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "queue", "enqueue", "", nil)
	if !errors.Is(err, services.ErrInfrastructure) {
		t.Fatalf("expected infrastructure default, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", services.Wrap(services.ErrValidation, "lifecycle", "execute", "", nil), false},
		{"permission", services.ErrPermission, false},
		{"conflict", services.ErrConflict, false},
		{"not found", services.ErrNotFound, false},
		{"provider", services.Wrap(services.ErrProvider, "imagegen", "generate", "", errors.New("503")), false},
		{"infrastructure", services.Wrap(services.ErrInfrastructure, "queue", "update", "", errors.New("locked")), true},
		{"unclassified", errors.New("unknown"), true},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Errorf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

package services_test

import (
	"context"
	"testing"

	"lookbook/internal/services"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithGenerationID(ctx, "gen-1")
	ctx = services.WithShotType(ctx, "flat-front")
	ctx = services.WithUserID(ctx, "user-9")
	ctx = services.WithRequestID(ctx, "req-42")

	if id, ok := services.GenerationIDFromContext(ctx); !ok || id != "gen-1" {
		t.Fatalf("generation id = %q, %v", id, ok)
	}
	if shot, ok := services.ShotTypeFromContext(ctx); !ok || shot != "flat-front" {
		t.Fatalf("shot = %q, %v", shot, ok)
	}
	if user, ok := services.UserIDFromContext(ctx); !ok || user != "user-9" {
		t.Fatalf("user = %q, %v", user, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-42" {
		t.Fatalf("request id = %q, %v", rid, ok)
	}
}

func TestContextEmptyValuesIgnored(t *testing.T) {
	ctx := services.WithGenerationID(context.Background(), "")
	if _, ok := services.GenerationIDFromContext(ctx); ok {
		t.Fatal("empty generation id should not be stored")
	}
	if _, ok := services.ShotTypeFromContext(context.Background()); ok {
		t.Fatal("missing shot should report false")
	}
}

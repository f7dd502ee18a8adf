package generation

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"lookbook/internal/prompt"
	"lookbook/internal/services"
	"lookbook/internal/storage"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "lookbook.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), newTestDB(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func testPromptSet() prompt.Set {
	set := make(prompt.Set, len(prompt.AllShots()))
	for _, shot := range prompt.AllShots() {
		set[shot] = &prompt.Object{
			ID:             "obj-" + string(shot),
			ShotType:       shot,
			DisplayName:    shot.DisplayName(),
			Prompt:         "prompt for " + string(shot),
			NegativePrompt: "negative for " + string(shot),
			Editable:       true,
		}
	}
	return set
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	record := &Record{
		UserID:        "user-1",
		GarmentID:     "garment-1",
		PresetID:      "preset-1",
		MergedPrompts: testPromptSet(),
		NegativePrompt: "shared negative",
		Visuals: []Visual{
			{ShotType: prompt.ShotSingleSubject, Status: VisualCompleted, ImageURL: "/images/a.png", ImageFile: "a.png", UpdatedAt: started},
			{ShotType: prompt.ShotFlatFront, Status: VisualFailed, Error: "provider timeout", UpdatedAt: started},
		},
		GeneratedImages: map[prompt.ShotType]string{prompt.ShotSingleSubject: "/images/a.png"},
		Resolution:      "1024x1536",
		AspectRatio:     "2:3",
		StartedAt:       &started,
	}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.ID == "" {
		t.Fatal("create did not assign an id")
	}
	if record.Status != StatusPending || record.CurrentStep != StepCreated {
		t.Fatalf("defaults: status=%s step=%s", record.Status, record.CurrentStep)
	}

	loaded, err := store.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(loaded.MergedPrompts) != 6 {
		t.Fatalf("prompts = %d, want 6", len(loaded.MergedPrompts))
	}
	obj := loaded.MergedPrompts[prompt.ShotFlatBack]
	if obj == nil || obj.Prompt != "prompt for flat-back" {
		t.Fatalf("flat-back prompt = %+v", obj)
	}
	if len(loaded.Visuals) != 2 || loaded.Visuals[1].Error != "provider timeout" {
		t.Fatalf("visuals = %+v", loaded.Visuals)
	}
	if loaded.GeneratedImages[prompt.ShotSingleSubject] != "/images/a.png" {
		t.Fatalf("generated images = %+v", loaded.GeneratedImages)
	}
	if loaded.StartedAt == nil || !loaded.StartedAt.Equal(started) {
		t.Fatalf("started at = %v", loaded.StartedAt)
	}
}

func TestCreateRequiresExactlyOneStyleSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	neither := &Record{UserID: "user-1", GarmentID: "garment-1"}
	if err := store.Create(ctx, neither); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("neither source: got %v, want validation error", err)
	}

	both := &Record{UserID: "user-1", GarmentID: "garment-1", PresetID: "p", CollectionID: "c"}
	if err := store.Create(ctx, both); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("both sources: got %v, want validation error", err)
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestUpdateMissing(t *testing.T) {
	store := newTestStore(t)
	record := &Record{ID: "ghost", UserID: "user-1", GarmentID: "garment-1", PresetID: "p", Status: StatusPending, CurrentStep: StepCreated}
	if err := store.Update(context.Background(), record); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestListNewestFirstPerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, user := range []string{"user-1", "user-1", "user-2"} {
		record := &Record{UserID: user, GarmentID: "garment-1", PresetID: "p"}
		if err := store.Create(ctx, record); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	records, err := store.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	if records[0].CreatedAt.Before(records[1].CreatedAt) {
		t.Fatal("list is not newest first")
	}
}

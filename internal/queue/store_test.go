package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"lookbook/internal/services"
	"lookbook/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "lookbook.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(context.Background(), db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func newTask(generationID string) *Task {
	return &Task{
		GenerationID:  generationID,
		UserID:        "user-1",
		SelectedShots: []string{"flat-front", "flat-back"},
	}
}

func TestEnqueueRejectsDuplicateActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Enqueue(ctx, newTask("gen-1")); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	err := store.Enqueue(ctx, newTask("gen-1"))
	if !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("got %v, want duplicate task error", err)
	}
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("duplicate should carry the conflict marker, got %v", err)
	}

	// A different generation is unaffected.
	if err := store.Enqueue(ctx, newTask("gen-2")); err != nil {
		t.Fatalf("unrelated enqueue: %v", err)
	}
}

func TestEnqueueAllowedAfterTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := newTask("gen-1")
	if err := store.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.MarkFailed(ctx, task.ID, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.Enqueue(ctx, newTask("gen-1")); err != nil {
		t.Fatalf("re-enqueue after terminal: %v", err)
	}
}

func TestClaimNextTransitionsAndPreservesPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := newTask("gen-1")
	task.ModelOverride = "gpt-image-1"
	if err := store.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusProcessing {
		t.Fatalf("status = %s, want processing", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", claimed.Attempts)
	}
	if claimed.LastHeartbeat == nil {
		t.Fatal("claim should stamp a heartbeat")
	}
	if len(claimed.SelectedShots) != 2 || claimed.SelectedShots[0] != "flat-front" {
		t.Fatalf("selected shots lost: %v", claimed.SelectedShots)
	}
	if claimed.ModelOverride != "gpt-image-1" {
		t.Fatalf("model override lost: %q", claimed.ModelOverride)
	}

	if _, err := store.ClaimNext(ctx); !errors.Is(err, ErrNoTask) {
		t.Fatalf("second claim: got %v, want no task", err)
	}
}

func TestRequeueDelaysUntilNextAttempt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := newTask("gen-1")
	if err := store.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := store.Requeue(ctx, claimed.ID, time.Now().Add(time.Hour), "transient"); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if _, err := store.ClaimNext(ctx); !errors.Is(err, ErrNoTask) {
		t.Fatalf("backoff not honored: %v", err)
	}

	if err := store.Requeue(ctx, claimed.ID, time.Now().Add(-time.Second), "transient"); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	reclaimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim after backoff: %v", err)
	}
	if reclaimed.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", reclaimed.Attempts)
	}
}

func TestReclaimStale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := newTask("gen-1")
	if err := store.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Heartbeat is fresh, nothing to reclaim.
	reclaimed, failed, err := store.ReclaimStale(ctx, time.Now().Add(-time.Minute), 3)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed != 0 || len(failed) != 0 {
		t.Fatalf("fresh task reclaimed: %d/%v", reclaimed, failed)
	}

	// Cutoff in the future makes the heartbeat stale.
	reclaimed, failed, err = store.ReclaimStale(ctx, time.Now().Add(time.Minute), 3)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed != 1 || len(failed) != 0 {
		t.Fatalf("stale task not reclaimed: %d/%v", reclaimed, failed)
	}

	loaded, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != StatusPending || loaded.StallCount != 1 {
		t.Fatalf("after reclaim: %+v", loaded)
	}
}

func TestReclaimStaleFailsAfterStallBudget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := newTask("gen-1")
	if err := store.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	maxStalls := 2
	for i := 0; i < maxStalls; i++ {
		if _, err := store.ClaimNext(ctx); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if _, _, err := store.ReclaimStale(ctx, time.Now().Add(time.Minute), maxStalls); err != nil {
			t.Fatalf("reclaim %d: %v", i, err)
		}
	}

	loaded, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != StatusFailed {
		t.Fatalf("status = %s, want failed after %d stalls", loaded.Status, maxStalls)
	}
	if loaded.ErrorMessage == "" {
		t.Fatal("expected stall error message")
	}
}

func TestPurgeTerminalRespectsRetention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := newTask("gen-1")
	if err := store.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.MarkCompleted(ctx, task.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	purged, err := store.PurgeTerminal(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 0 {
		t.Fatalf("purged fresh task: %d", purged)
	}

	purged, err = store.PurgeTerminal(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if _, err := store.Get(ctx, task.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("purged task still present: %v", err)
	}
}

func TestActiveForGeneration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	active, err := store.ActiveForGeneration(ctx, "gen-1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active != nil {
		t.Fatalf("unexpected active task: %+v", active)
	}

	task := newTask("gen-1")
	if err := store.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	active, err = store.ActiveForGeneration(ctx, "gen-1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil || active.ID != task.ID {
		t.Fatalf("active = %+v, want task %d", active, task.ID)
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[StatusPending] != 1 {
		t.Fatalf("pending count = %d, want 1", counts[StatusPending])
	}
}

package workflow

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lookbook/internal/config"
	"lookbook/internal/queue"
	"lookbook/internal/services"
	"lookbook/internal/storage"
)

type fakeHandler struct {
	mu      sync.Mutex
	runs    int
	results []error
	done    chan struct{}
}

func newFakeHandler(results ...error) *fakeHandler {
	return &fakeHandler{results: results, done: make(chan struct{}, 16)}
}

func (h *fakeHandler) Run(_ context.Context, _ *queue.Task) error {
	h.mu.Lock()
	idx := h.runs
	h.runs++
	h.mu.Unlock()
	defer func() { h.done <- struct{}{} }()
	if idx < len(h.results) {
		return h.results[idx]
	}
	return nil
}

func (h *fakeHandler) runCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

type failRecorder struct {
	mu     sync.Mutex
	failed []string
}

func (f *failRecorder) MarkRunFailed(_ context.Context, generationID, _ string) error {
	f.mu.Lock()
	f.failed = append(f.failed, generationID)
	f.mu.Unlock()
	return nil
}

func (f *failRecorder) failedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.failed...)
}

func newTestStore(t *testing.T) *queue.Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "lookbook.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := queue.NewStore(context.Background(), db)
	if err != nil {
		t.Fatalf("queue store: %v", err)
	}
	return store
}

func newTestManager(t *testing.T, store *queue.Store, handler TaskHandler, failer RunFailer) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.Queue.MaxAttempts = 2
	cfg.Workflow.Workers = 1
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1
	return NewManager(&cfg, store, handler, failer, nil,
		WithPollInterval(10*time.Millisecond),
		WithRetryBackoff(10*time.Millisecond, 50*time.Millisecond))
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestManagerCompletesTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := &queue.Task{GenerationID: "gen-1", UserID: "user-1"}
	if err := store.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	handler := newFakeHandler()
	manager := newTestManager(t, store, handler, &failRecorder{})
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	waitFor(t, 5*time.Second, func() bool {
		loaded, err := store.Get(ctx, task.ID)
		return err == nil && loaded.Status == queue.StatusCompleted
	})
	if handler.runCount() != 1 {
		t.Fatalf("runs = %d, want 1", handler.runCount())
	}
}

func TestManagerRetriesThenFailsPermanently(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := &queue.Task{GenerationID: "gen-1", UserID: "user-1"}
	if err := store.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	infra := services.Wrap(services.ErrInfrastructure, "imagegen", "generate", "backend unreachable", nil)
	handler := newFakeHandler(infra, infra)
	failer := &failRecorder{}
	manager := newTestManager(t, store, handler, failer)
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	waitFor(t, 5*time.Second, func() bool {
		loaded, err := store.Get(ctx, task.ID)
		return err == nil && loaded.Status == queue.StatusFailed
	})
	if handler.runCount() != 2 {
		t.Fatalf("runs = %d, want 2 attempts", handler.runCount())
	}
	loaded, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.ErrorMessage == "" {
		t.Fatal("error message not recorded")
	}
	failed := failer.failedIDs()
	if len(failed) != 1 || failed[0] != "gen-1" {
		t.Fatalf("marked runs failed = %v, want [gen-1]", failed)
	}
}

func TestManagerDoesNotRetryValidationErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := &queue.Task{GenerationID: "gen-1", UserID: "user-1"}
	if err := store.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	handler := newFakeHandler(services.Wrap(services.ErrValidation, "generation", "run", "prompts have not been built", nil))
	failer := &failRecorder{}
	manager := newTestManager(t, store, handler, failer)
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	waitFor(t, 5*time.Second, func() bool {
		loaded, err := store.Get(ctx, task.ID)
		return err == nil && loaded.Status == queue.StatusFailed
	})
	if handler.runCount() != 1 {
		t.Fatalf("runs = %d, want no retry", handler.runCount())
	}
	if len(failer.failedIDs()) != 1 {
		t.Fatalf("failed runs = %v", failer.failedIDs())
	}
}

func TestManagerStartStop(t *testing.T) {
	store := newTestStore(t)
	manager := newTestManager(t, store, newFakeHandler(), nil)

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := manager.Start(ctx); err == nil {
		t.Fatal("second start did not fail")
	}
	if !manager.Running() {
		t.Fatal("manager not running")
	}

	manager.Stop()
	if manager.Running() {
		t.Fatal("manager still running after stop")
	}
	// Stop is idempotent.
	manager.Stop()
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	manager := newTestManager(t, newTestStore(t), newFakeHandler(), nil)

	if d := manager.retryDelay(1); d != 10*time.Millisecond {
		t.Fatalf("first retry delay = %v", d)
	}
	if d := manager.retryDelay(2); d != 20*time.Millisecond {
		t.Fatalf("second retry delay = %v", d)
	}
	if d := manager.retryDelay(10); d != 50*time.Millisecond {
		t.Fatalf("capped delay = %v", d)
	}
}

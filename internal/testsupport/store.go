package testsupport

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"lookbook/internal/config"
	"lookbook/internal/queue"
	"lookbook/internal/storage"
)

// MustOpenDB opens the daemon database under the config's data directory and
// registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *sql.DB {
	t.Helper()

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.Open(filepath.Join(cfg.Paths.DataDir, "lookbook.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// MustQueueStore builds a task store on the provided database.
func MustQueueStore(t testing.TB, db *sql.DB) *queue.Store {
	t.Helper()

	store, err := queue.NewStore(context.Background(), db)
	if err != nil {
		t.Fatalf("queue.NewStore: %v", err)
	}
	return store
}

// EnqueueTask inserts a render task for tests using the provided store.
func EnqueueTask(t testing.TB, store *queue.Store, generationID, userID string) *queue.Task {
	t.Helper()

	task := &queue.Task{GenerationID: generationID, UserID: userID}
	if err := store.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return task
}

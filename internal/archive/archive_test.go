package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lookbook/internal/catalog"
	"lookbook/internal/generation"
	"lookbook/internal/imagestore"
	"lookbook/internal/prompt"
	"lookbook/internal/services"
	"lookbook/internal/storage"
)

func buildFixtureRecord(t *testing.T) (*Builder, *generation.Record) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "lookbook.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	catalogStore, err := catalog.NewStore(ctx, db)
	if err != nil {
		t.Fatalf("catalog store: %v", err)
	}
	garment := &catalog.GarmentRecord{UserID: "user-1", Name: "Harrington jacket", Analyzed: true}
	if err := catalogStore.CreateGarment(ctx, garment); err != nil {
		t.Fatalf("create garment: %v", err)
	}
	style := &catalog.StyleSource{UserID: "user-1", Kind: catalog.StyleCollection, Name: "Fall Lookbook"}
	if err := catalogStore.CreateStyleSource(ctx, style); err != nil {
		t.Fatalf("create style: %v", err)
	}

	images, err := imagestore.NewLocal(t.TempDir(), "")
	if err != nil {
		t.Fatalf("image store: %v", err)
	}

	record := &generation.Record{
		ID:           "gen-1",
		UserID:       "user-1",
		GarmentID:    garment.ID,
		CollectionID: style.ID,
		Status:       generation.StatusCompleted,
	}
	for _, shot := range []prompt.ShotType{prompt.ShotPairedSubjects, prompt.ShotFlatFront} {
		ref, err := images.Store(ctx, []byte("png-"+string(shot)), "image/png")
		if err != nil {
			t.Fatalf("store image: %v", err)
		}
		record.Visuals = append(record.Visuals, generation.Visual{
			ShotType:  shot,
			Status:    generation.VisualCompleted,
			ImageURL:  ref.URL,
			ImageFile: ref.Filename,
		})
	}
	record.Visuals = append(record.Visuals, generation.Visual{
		ShotType: prompt.ShotFlatBack,
		Status:   generation.VisualFailed,
		Error:    "render rejected",
	})

	return NewBuilder(catalogStore, images, nil), record
}

func TestBuildZipLayout(t *testing.T) {
	builder, record := buildFixtureRecord(t)

	var buf bytes.Buffer
	if err := builder.Build(context.Background(), record, &buf); err != nil {
		t.Fatalf("build: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	want := map[string]string{
		"Fall Lookbook/Harrington jacket/paired-subjects.png": "png-paired-subjects",
		"Fall Lookbook/Harrington jacket/flat-front.png":      "png-flat-front",
	}
	if len(reader.File) != len(want) {
		t.Fatalf("zip has %d entries, want %d", len(reader.File), len(want))
	}
	for _, file := range reader.File {
		expected, ok := want[file.Name]
		if !ok {
			t.Fatalf("unexpected entry %q", file.Name)
		}
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("open entry: %v", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry: %v", err)
		}
		if string(data) != expected {
			t.Fatalf("entry %q = %q", file.Name, data)
		}
	}
}

func TestBuildRequiresCompletedVisuals(t *testing.T) {
	builder, record := buildFixtureRecord(t)
	for i := range record.Visuals {
		record.Visuals[i].Status = generation.VisualFailed
	}

	var buf bytes.Buffer
	err := builder.Build(context.Background(), record, &buf)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
}

// completedRecord is a run whose every visual succeeded, the only shape
// the cache will retain.
func completedRecord(id string) *generation.Record {
	return &generation.Record{
		ID:     id,
		UserID: "user-1",
		Status: generation.StatusCompleted,
		Visuals: []generation.Visual{
			{ShotType: prompt.ShotPairedSubjects, Status: generation.VisualCompleted},
			{ShotType: prompt.ShotFlatFront, Status: generation.VisualCompleted},
		},
	}
}

type countingBuilder struct {
	builds atomic.Int32
	delay  time.Duration
}

func (b *countingBuilder) Build(_ context.Context, record *generation.Record, w io.Writer) error {
	b.builds.Add(1)
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	_, err := w.Write([]byte("zip-" + record.ID))
	return err
}

func TestCacheBuildsOncePerKey(t *testing.T) {
	builder := &countingBuilder{delay: 20 * time.Millisecond}
	cache, err := NewCache(t.TempDir(), time.Hour, false, builder, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	record := completedRecord("gen-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc, err := cache.Open(context.Background(), record)
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil || string(data) != "zip-gen-1" {
				t.Errorf("read: %q %v", data, err)
			}
		}()
	}
	wg.Wait()

	if got := builder.builds.Load(); got != 1 {
		t.Fatalf("builds = %d, want 1", got)
	}
	if !cache.Contains("gen-1") {
		t.Fatal("entry missing after concurrent opens")
	}
}

func TestCacheTTLEvictionDeletesFile(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(dir, 50*time.Millisecond, false, &countingBuilder{}, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	record := completedRecord("gen-1")

	cache.Prime(context.Background(), record)
	path := filepath.Join(dir, "gen-1.zip")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("bundle file missing after prime: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !cache.Contains("gen-1") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if cache.Contains("gen-1") {
		t.Fatal("entry survived its TTL")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("bundle file survived eviction: %v", err)
	}
}

func TestCacheSingleUseEvictsAfterServe(t *testing.T) {
	dir := t.TempDir()
	builder := &countingBuilder{}
	cache, err := NewCache(dir, time.Hour, true, builder, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	record := completedRecord("gen-1")
	ctx := context.Background()

	rc, err := cache.Open(ctx, record)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil || string(data) != "zip-gen-1" {
		t.Fatalf("read: %q %v", data, err)
	}
	if cache.Contains("gen-1") {
		t.Fatal("single-use entry survived its first serve")
	}
	if _, err := os.Stat(filepath.Join(dir, "gen-1.zip")); !os.IsNotExist(err) {
		t.Fatalf("bundle file survived single-use eviction: %v", err)
	}

	// The next download rebuilds from scratch.
	rc, err = cache.Open(ctx, record)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	rc.Close()
	if got := builder.builds.Load(); got != 2 {
		t.Fatalf("builds = %d, want 2", got)
	}
}

// versionedBuilder stamps its output so tests can tell which build a
// served bundle came from.
type versionedBuilder struct {
	version atomic.Int32
	builds  atomic.Int32
}

func (b *versionedBuilder) Build(_ context.Context, record *generation.Record, w io.Writer) error {
	b.builds.Add(1)
	_, err := fmt.Fprintf(w, "zip-%s-v%d", record.ID, b.version.Load())
	return err
}

func openAndRead(t *testing.T, cache *Cache, record *generation.Record) string {
	t.Helper()
	rc, err := cache.Open(context.Background(), record)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestOpenPartialRunIsNeverCached(t *testing.T) {
	dir := t.TempDir()
	builder := &versionedBuilder{}
	builder.version.Store(1)
	cache, err := NewCache(dir, time.Hour, false, builder, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	record := completedRecord("gen-1")
	record.Visuals[1].Status = generation.VisualFailed

	if got := openAndRead(t, cache, record); got != "zip-gen-1-v1" {
		t.Fatalf("partial bundle = %q", got)
	}
	if cache.Contains("gen-1") {
		t.Fatal("partial bundle entered the cache")
	}
	if _, err := os.Stat(filepath.Join(dir, "gen-1.zip")); !os.IsNotExist(err) {
		t.Fatalf("partial bundle left a file behind: %v", err)
	}

	// Priming a still-partial run must also be refused.
	cache.Prime(context.Background(), record)
	if cache.Contains("gen-1") {
		t.Fatal("partial bundle primed into the cache")
	}

	// Once the last shot is re-rendered the cached bundle must carry it.
	record.Visuals[1].Status = generation.VisualCompleted
	builder.version.Store(2)
	cache.Prime(context.Background(), record)
	if got := openAndRead(t, cache, record); got != "zip-gen-1-v2" {
		t.Fatalf("bundle after completion = %q", got)
	}

	// Each partial open built once, the prime built once, the cached
	// open built nothing.
	if got := builder.builds.Load(); got != 2 {
		t.Fatalf("builds = %d, want 2", got)
	}
}

func TestPrimeReplacesStaleBundle(t *testing.T) {
	builder := &versionedBuilder{}
	builder.version.Store(1)
	cache, err := NewCache(t.TempDir(), time.Hour, false, builder, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	record := completedRecord("gen-1")

	if got := openAndRead(t, cache, record); got != "zip-gen-1-v1" {
		t.Fatalf("first bundle = %q", got)
	}

	builder.version.Store(2)
	cache.Prime(context.Background(), record)
	if got := openAndRead(t, cache, record); got != "zip-gen-1-v2" {
		t.Fatalf("bundle after prime = %q", got)
	}
}

package imagestore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"lookbook/internal/services"
)

func TestStoreAndReadLocal(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "/images")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	ctx := context.Background()

	ref, err := store.Store(ctx, []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasSuffix(ref.Filename, ".png") {
		t.Fatalf("filename = %q", ref.Filename)
	}
	if !strings.HasPrefix(ref.URL, "/images/") {
		t.Fatalf("url = %q", ref.URL)
	}

	data, err := store.Read(ctx, ref.Filename)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("data = %q", data)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(store.dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("leftover temp file %s", entry.Name())
		}
	}
}

func TestReadMissingLocal(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	if _, err := store.Read(context.Background(), "nope.png"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestReadRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("remote-bytes"))
	}))
	defer server.Close()

	store, err := NewLocal(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	ctx := context.Background()

	data, err := store.Read(ctx, server.URL+"/shot.png")
	if err != nil {
		t.Fatalf("remote read: %v", err)
	}
	if string(data) != "remote-bytes" {
		t.Fatalf("data = %q", data)
	}

	if _, err := store.Read(ctx, server.URL+"/gone.png"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestExtensionForMime(t *testing.T) {
	cases := map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/webp": ".webp",
		"":           ".png",
	}
	for mime, want := range cases {
		if got := extensionForMime(mime); got != want {
			t.Errorf("%q: got %q, want %q", mime, got, want)
		}
	}
}

package imagestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"lookbook/internal/services"
)

// Ref identifies a stored image.
type Ref struct {
	URL      string
	Filename string
}

// Store is the object-store surface the lifecycle depends on.
type Store interface {
	Store(ctx context.Context, data []byte, mimeType string) (Ref, error)
	Read(ctx context.Context, ref string) ([]byte, error)
}

// Local keeps images in a directory and resolves remote references over
// HTTP when asked to read a full URL.
type Local struct {
	dir        string
	baseURL    string
	httpClient *http.Client
}

// NewLocal creates the image directory and returns a store rooted there.
// baseURL prefixes the public URL recorded for stored images.
func NewLocal(dir, baseURL string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("image directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "/images"
	}
	return &Local{
		dir:        dir,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func extensionForMime(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// Store writes image bytes under a fresh name, atomically.
func (l *Local) Store(ctx context.Context, data []byte, mimeType string) (Ref, error) {
	if len(data) == 0 {
		return Ref{}, services.Wrap(services.ErrValidation, "imagestore", "store", "image data is empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}

	filename := uuid.NewString() + extensionForMime(mimeType)
	finalPath := filepath.Join(l.dir, filename)
	tempPath := finalPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return Ref{}, services.Wrap(services.ErrInfrastructure, "imagestore", "store", "write image", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return Ref{}, services.Wrap(services.ErrInfrastructure, "imagestore", "store", "finalize image", err)
	}

	return Ref{URL: l.baseURL + "/" + filename, Filename: filename}, nil
}

// Read fetches image bytes by local filename or remote URL.
func (l *Local) Read(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, services.Wrap(services.ErrValidation, "imagestore", "read", "reference is empty", nil)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return l.readRemote(ctx, ref)
	}

	path := filepath.Join(l.dir, filepath.Base(ref))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, services.Wrap(services.ErrNotFound, "imagestore", "read", fmt.Sprintf("image %s not found", filepath.Base(ref)), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "imagestore", "read", "read image", err)
	}
	return data, nil
}

func (l *Local) readRemote(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "imagestore", "read", "build remote request", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "imagestore", "read", "fetch remote image", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, services.Wrap(services.ErrNotFound, "imagestore", "read", fmt.Sprintf("remote image %s not found", url), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrInfrastructure, "imagestore", "read", fmt.Sprintf("remote image status %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "imagestore", "read", "read remote body", err)
	}
	return data, nil
}

// Path resolves a stored filename to its absolute location.
func (l *Local) Path(filename string) string {
	return filepath.Join(l.dir, filepath.Base(filename))
}

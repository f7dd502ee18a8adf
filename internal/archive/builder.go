package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"lookbook/internal/catalog"
	"lookbook/internal/generation"
	"lookbook/internal/logging"
	"lookbook/internal/prompt"
	"lookbook/internal/services"
)

// ImageReader resolves stored image references to bytes.
type ImageReader interface {
	Read(ctx context.Context, ref string) ([]byte, error)
}

// Builder assembles the download zip for a completed run. Entries are laid
// out as <collection>/<product>/<shot>.png so bundles from several runs
// can be unpacked side by side.
type Builder struct {
	catalog *catalog.Store
	images  ImageReader
	logger  *slog.Logger
}

// NewBuilder constructs a bundle builder.
func NewBuilder(catalogStore *catalog.Store, images ImageReader, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Builder{
		catalog: catalogStore,
		images:  images,
		logger:  logging.NewComponentLogger(logger, "archive"),
	}
}

// sanitizeSegment makes a display name safe as a zip path segment.
func sanitizeSegment(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", "..", "-", ":", "-")
	name = replacer.Replace(name)
	name = strings.Trim(name, ". ")
	if name == "" {
		return fallback
	}
	return name
}

type fetchedImage struct {
	shot prompt.ShotType
	data []byte
	err  error
}

// Build streams the bundle for the record's completed visuals to w.
// Images are fetched in parallel; entries are written in shot order.
func (b *Builder) Build(ctx context.Context, record *generation.Record, w io.Writer) error {
	if record == nil {
		return services.Wrap(services.ErrValidation, "archive", "build", "record is nil", nil)
	}

	var targets []generation.Visual
	for _, visual := range record.Visuals {
		if visual.Status == generation.VisualCompleted {
			targets = append(targets, visual)
		}
	}
	if len(targets) == 0 {
		return services.Wrap(services.ErrValidation, "archive", "build", "run has no completed visuals", nil)
	}

	garment, err := b.catalog.GetGarment(ctx, record.GarmentID)
	if err != nil {
		return err
	}
	style, err := b.catalog.GetStyleSource(ctx, record.StyleSourceID())
	if err != nil {
		return err
	}
	collection := sanitizeSegment(style.Name, "collection")
	product := sanitizeSegment(garment.Name, "product")

	fetched := make([]fetchedImage, len(targets))
	var wg sync.WaitGroup
	for i, visual := range targets {
		ref := visual.ImageFile
		if ref == "" {
			ref = visual.ImageURL
		}
		wg.Add(1)
		go func(i int, shot prompt.ShotType, ref string) {
			defer wg.Done()
			data, err := b.images.Read(ctx, ref)
			fetched[i] = fetchedImage{shot: shot, data: data, err: err}
		}(i, visual.ShotType, ref)
	}
	wg.Wait()

	for _, result := range fetched {
		if result.err != nil {
			return services.Wrap(services.ErrInfrastructure, "archive", "build",
				fmt.Sprintf("fetch image for %s", result.shot), result.err)
		}
	}

	zw := zip.NewWriter(w)
	for _, result := range fetched {
		entry, err := zw.Create(fmt.Sprintf("%s/%s/%s.png", collection, product, result.shot))
		if err != nil {
			return services.Wrap(services.ErrInfrastructure, "archive", "build", "create zip entry", err)
		}
		if _, err := entry.Write(result.data); err != nil {
			return services.Wrap(services.ErrInfrastructure, "archive", "build", "write zip entry", err)
		}
	}
	if err := zw.Close(); err != nil {
		return services.Wrap(services.ErrInfrastructure, "archive", "build", "finalize zip", err)
	}

	b.logger.Debug("bundle built",
		logging.String(logging.FieldGenerationID, record.ID),
		logging.Int("entries", len(fetched)))
	return nil
}

package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lookbook/internal/generation"
	"lookbook/internal/logging"
	"lookbook/internal/services"
)

// BundleBuilder is the build surface the cache depends on.
type BundleBuilder interface {
	Build(ctx context.Context, record *generation.Record, w io.Writer) error
}

// Cache keeps built bundles on disk, keyed by generation id. An entry is
// built at most once per key regardless of how many callers race for it,
// and is evicted either after its TTL or after its first serve when the
// cache runs in single-use mode. Eviction always deletes the file.
type Cache struct {
	dir       string
	ttl       time.Duration
	singleUse bool
	builder   BundleBuilder
	logger    *slog.Logger

	mu       sync.Mutex
	entries  map[string]*cacheEntry
	building map[string]chan struct{}
}

type cacheEntry struct {
	path  string
	timer *time.Timer
}

// NewCache creates the bundle directory and returns a cache rooted there.
func NewCache(dir string, ttl time.Duration, singleUse bool, builder BundleBuilder, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "archive", "init", "create bundle directory", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		dir:       dir,
		ttl:       ttl,
		singleUse: singleUse,
		builder:   builder,
		logger:    logging.NewComponentLogger(logger, "archive"),
		entries:   make(map[string]*cacheEntry),
		building:  make(map[string]chan struct{}),
	}, nil
}

// Contains reports whether a built bundle is cached for the generation.
func (c *Cache) Contains(generationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[generationID]
	return ok
}

// Prime builds and caches the bundle ahead of the first download request.
// It satisfies the lifecycle's archiver hook, so failures are only logged.
// Runs with unfinished visuals are never cached; a previously cached
// bundle for the generation is dropped first so a re-rendered shot cannot
// leave a stale bundle behind.
func (c *Cache) Prime(ctx context.Context, record *generation.Record) {
	if record == nil || !record.AllVisualsCompleted() {
		return
	}
	c.Invalidate(record.ID)
	if _, err := c.ensure(ctx, record); err != nil {
		c.logger.Warn("bundle prime failed",
			logging.String(logging.FieldGenerationID, record.ID),
			logging.Error(err))
		return
	}
	c.logger.Info("bundle primed", logging.String(logging.FieldGenerationID, record.ID))
}

// Open returns a reader over the bundle. A run whose visuals all
// completed is served from the cache, building it on demand; in
// single-use mode the entry is evicted as soon as the reader is handed
// out, and the unlinked file stays readable until closed. A run with
// pending or failed visuals is built fresh on every request and never
// enters the cache.
func (c *Cache) Open(ctx context.Context, record *generation.Record) (io.ReadCloser, error) {
	if !record.AllVisualsCompleted() {
		return c.openScratch(ctx, record)
	}
	for attempt := 0; attempt < 2; attempt++ {
		path, err := c.ensure(ctx, record)
		if err != nil {
			return nil, err
		}
		file, err := os.Open(path)
		if err != nil {
			// Entry outlived its file. Drop it and rebuild once.
			c.Invalidate(record.ID)
			continue
		}
		if c.singleUse {
			c.Invalidate(record.ID)
		}
		return file, nil
	}
	return nil, services.Wrap(services.ErrInfrastructure, "archive", "open", "bundle file unavailable", nil)
}

// openScratch streams a one-off bundle for a partially finished run. The
// scratch file is unlinked before building so nothing persists on disk and
// no cache entry is installed.
func (c *Cache) openScratch(ctx context.Context, record *generation.Record) (io.ReadCloser, error) {
	file, err := os.CreateTemp(c.dir, record.ID+"-scratch-*.zip")
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "archive", "open", "create scratch bundle", err)
	}
	_ = os.Remove(file.Name())
	if err := c.builder.Build(ctx, record, file); err != nil {
		file.Close()
		return nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, services.Wrap(services.ErrInfrastructure, "archive", "open", "rewind scratch bundle", err)
	}
	return file, nil
}

// ensure returns the cached bundle path, building it if needed. Exactly
// one caller builds; the rest wait for that build and reuse its result.
func (c *Cache) ensure(ctx context.Context, record *generation.Record) (string, error) {
	for {
		c.mu.Lock()
		if entry, ok := c.entries[record.ID]; ok {
			path := entry.path
			c.mu.Unlock()
			return path, nil
		}
		if ch, inflight := c.building[record.ID]; inflight {
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-ch:
			}
			continue
		}
		ch := make(chan struct{})
		c.building[record.ID] = ch
		c.mu.Unlock()

		path, err := c.buildFile(ctx, record)

		c.mu.Lock()
		delete(c.building, record.ID)
		close(ch)
		if err != nil {
			c.mu.Unlock()
			return "", err
		}
		entry := &cacheEntry{path: path}
		if c.ttl > 0 {
			id := record.ID
			entry.timer = time.AfterFunc(c.ttl, func() { c.expire(id) })
		}
		c.entries[record.ID] = entry
		c.mu.Unlock()
		return path, nil
	}
}

func (c *Cache) buildFile(ctx context.Context, record *generation.Record) (string, error) {
	finalPath := filepath.Join(c.dir, record.ID+".zip")
	tempPath := finalPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return "", services.Wrap(services.ErrInfrastructure, "archive", "build", "create bundle file", err)
	}
	if err := c.builder.Build(ctx, record, file); err != nil {
		file.Close()
		_ = os.Remove(tempPath)
		return "", err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", services.Wrap(services.ErrInfrastructure, "archive", "build", "flush bundle file", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return "", services.Wrap(services.ErrInfrastructure, "archive", "build", "finalize bundle file", err)
	}
	return finalPath, nil
}

func (c *Cache) expire(generationID string) {
	if c.removeEntry(generationID) {
		c.logger.Debug("bundle expired", logging.String(logging.FieldGenerationID, generationID))
	}
}

// Invalidate drops the cached bundle and deletes its file.
func (c *Cache) Invalidate(generationID string) {
	c.removeEntry(generationID)
}

func (c *Cache) removeEntry(generationID string) bool {
	c.mu.Lock()
	entry, ok := c.entries[generationID]
	if ok {
		delete(c.entries, generationID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	if err := os.Remove(entry.path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("delete bundle file failed",
			logging.String(logging.FieldGenerationID, generationID),
			logging.Error(err))
	}
	return true
}

// Close evicts every cached bundle. Used on daemon shutdown.
func (c *Cache) Close() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.removeEntry(id)
	}
}

// Filename is the download name clients should see for a bundle.
func Filename(record *generation.Record) string {
	return fmt.Sprintf("lookbook-%s.zip", record.ID)
}

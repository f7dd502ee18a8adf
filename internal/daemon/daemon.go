package daemon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"lookbook/internal/archive"
	"lookbook/internal/catalog"
	"lookbook/internal/config"
	"lookbook/internal/events"
	"lookbook/internal/generation"
	"lookbook/internal/imagegen"
	"lookbook/internal/imagestore"
	"lookbook/internal/logging"
	"lookbook/internal/queue"
	"lookbook/internal/server"
	"lookbook/internal/storage"
	"lookbook/internal/vision"
	"lookbook/internal/workflow"
)

const (
	databaseFile    = "lookbook.db"
	lockFile        = "lookbookd.lock"
	shutdownTimeout = 10 * time.Second
)

// Daemon wires the stores, providers, workflow manager, and API server
// together and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	db          *sql.DB
	catalog     *catalog.Store
	tasks       *queue.Store
	generations *generation.Store
	lifecycle   *generation.Lifecycle
	bus         *events.Bus
	bundles     *archive.Cache
	analyzer    *vision.Gemini
	workflow    *workflow.Manager
	server      *server.Server

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	cancel    context.CancelFunc
	serverErr chan error
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	DatabasePath string
	LockFilePath string
}

// New builds the daemon and all of its collaborators. The version string is
// surfaced through the status endpoint.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, databaseFile)
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		db:       db,
		lockPath: filepath.Join(cfg.Paths.DataDir, lockFile),
	}
	d.lock = flock.New(d.lockPath)

	if err := d.build(ctx, logger, version); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) build(ctx context.Context, logger *slog.Logger, version string) error {
	var err error
	if d.catalog, err = catalog.NewStore(ctx, d.db); err != nil {
		return fmt.Errorf("catalog store: %w", err)
	}
	if d.tasks, err = queue.NewStore(ctx, d.db); err != nil {
		return fmt.Errorf("queue store: %w", err)
	}
	if d.generations, err = generation.NewStore(ctx, d.db); err != nil {
		return fmt.Errorf("generation store: %w", err)
	}

	images, err := imagestore.NewLocal(d.cfg.Paths.ImagesDir, "/images")
	if err != nil {
		return fmt.Errorf("image store: %w", err)
	}

	provider, err := buildProvider(d.cfg.ImageGen)
	if err != nil {
		return err
	}

	d.bus = events.NewBus(logger)

	builder := archive.NewBuilder(d.catalog, images, logger)
	ttl := time.Duration(d.cfg.Archive.TTLSeconds) * time.Second
	d.bundles, err = archive.NewCache(d.cfg.Paths.BundlesDir, ttl, d.cfg.Archive.SingleUse, builder, logger)
	if err != nil {
		return fmt.Errorf("bundle cache: %w", err)
	}

	var analyzer vision.Analyzer
	if d.cfg.Vision.Enabled {
		d.analyzer, err = vision.NewGemini(ctx, d.cfg.Vision, logger)
		if err != nil {
			return fmt.Errorf("vision analyzer: %w", err)
		}
		analyzer = d.analyzer
	}

	d.lifecycle = generation.NewLifecycle(generation.Config{
		Store:              d.generations,
		Catalog:            d.catalog,
		Tasks:              d.tasks,
		Provider:           provider,
		Images:             images,
		Bus:                d.bus,
		Archiver:           d.bundles,
		Logger:             logger,
		DefaultResolution:  d.cfg.Generation.Resolution,
		DefaultAspectRatio: d.cfg.Generation.AspectRatio,
	})

	d.workflow = workflow.NewManager(d.cfg, d.tasks, d.lifecycle, d.lifecycle, logger)

	d.server = server.New(server.Deps{
		Config:    d.cfg,
		Lifecycle: d.lifecycle,
		Catalog:   d.catalog,
		Tasks:     d.tasks,
		Bundles:   d.bundles,
		Bus:       d.bus,
		Analyzer:  analyzer,
		Logger:    logger,
		Version:   version,
	})
	return nil
}

// buildProvider assembles the image-generation provider stack. The SD WebUI
// client is the default backend; an OpenAI client is attached when a key is
// configured so per-run model overrides can route to it.
func buildProvider(cfg config.ImageGen) (generation.Provider, error) {
	selector := &imagegen.Selector{}

	if cfg.OpenAIAPIKey != "" {
		openaiClient, err := imagegen.NewOpenAIClient(imagegen.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		selector.OpenAI = openaiClient
	}

	switch cfg.Provider {
	case "openai":
		if selector.OpenAI == nil {
			return nil, errors.New("imagegen provider is openai but no api key is configured")
		}
		selector.Default = selector.OpenAI
	case "", "sdwebui":
		selector.Default = imagegen.NewSDWebUIClient(imagegen.SDWebUIConfig{
			BaseURL:        cfg.SDWebUIURL,
			Steps:          cfg.Steps,
			CfgScale:       cfg.CfgScale,
			Sampler:        cfg.Sampler,
			TimeoutSeconds: cfg.TimeoutSeconds,
			RetryAttempts:  cfg.RetryAttempts,
		})
	default:
		return nil, fmt.Errorf("unknown imagegen provider %q", cfg.Provider)
	}
	return selector, nil
}

// Start acquires the singleton lock, launches the workflow manager, and
// begins serving the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lookbook daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel

	d.serverErr = make(chan error, 1)
	go func() {
		d.serverErr <- d.server.Start()
	}()

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("bind", d.cfg.Paths.APIBind),
		logging.String("lock", d.lockPath))
	return nil
}

// ServerErr reports a fatal API server error, if one occurred.
func (d *Daemon) ServerErr() <-chan error {
	return d.serverErr
}

// Stop drains the API server, stops background processing, and releases the
// daemon lock. Safe to call more than once.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("api shutdown", logging.Error(err))
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.bundles.Close()
	if d.analyzer != nil {
		if err := d.analyzer.Close(); err != nil {
			d.logger.Warn("close vision client", logging.Error(err))
		}
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases the database.
func (d *Daemon) Close() error {
	d.Stop()
	return d.db.Close()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		DatabasePath: filepath.Join(d.cfg.Paths.DataDir, databaseFile),
		LockFilePath: d.lockPath,
	}
}

package testsupport

import (
	"path/filepath"
	"testing"

	"lookbook/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// Vision analysis is disabled and the API binds to an ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ImagesDir = filepath.Join(base, "images")
	cfg.Paths.BundlesDir = filepath.Join(base, "bundles")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Vision.Enabled = false

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWorkers overrides the workflow worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.Workers = n
	}
}

// WithMaxAttempts overrides the per-task retry budget.
func WithMaxAttempts(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxAttempts = n
	}
}

// WithSingleUseBundles toggles single-use eviction on the bundle cache.
func WithSingleUseBundles(enabled bool) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Archive.SingleUse = enabled
	}
}

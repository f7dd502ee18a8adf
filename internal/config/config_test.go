package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}

	loaded, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}

	defaults := Default()
	if loaded.ImageGen.Provider != defaults.ImageGen.Provider {
		t.Errorf("provider = %q, want %q", loaded.ImageGen.Provider, defaults.ImageGen.Provider)
	}
	if loaded.Archive.TTLSeconds != defaults.Archive.TTLSeconds {
		t.Errorf("archive ttl = %d, want %d", loaded.Archive.TTLSeconds, defaults.Archive.TTLSeconds)
	}
	if loaded.Queue.MaxAttempts != defaults.Queue.MaxAttempts {
		t.Errorf("max attempts = %d, want %d", loaded.Queue.MaxAttempts, defaults.Queue.MaxAttempts)
	}
	if !loaded.Archive.SingleUse {
		t.Error("sample should keep single_use enabled")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.toml")
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatal("expected missing config")
	}
	if cfg.Workflow.Workers != defaultWorkers {
		t.Fatalf("workers = %d, want %d", cfg.Workflow.Workers, defaultWorkers)
	}
}

func TestLoadOverridesAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
data_dir = "~/lookbook-data"

[queue]
max_attempts = 5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Queue.MaxAttempts != 5 {
		t.Fatalf("max attempts = %d, want 5", cfg.Queue.MaxAttempts)
	}
	if strings.HasPrefix(cfg.Paths.DataDir, "~") {
		t.Fatalf("data dir not expanded: %q", cfg.Paths.DataDir)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("data dir not absolute: %q", cfg.Paths.DataDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown provider",
			mutate: func(c *Config) { c.ImageGen.Provider = "dalle" },
			want:   "imagegen.provider",
		},
		{
			name:   "openai without key",
			mutate: func(c *Config) { c.ImageGen.Provider = "openai"; c.ImageGen.OpenAIAPIKey = "" },
			want:   "openai_api_key",
		},
		{
			name:   "heartbeat timeout too small",
			mutate: func(c *Config) { c.Workflow.HeartbeatTimeout = c.Workflow.HeartbeatInterval },
			want:   "heartbeat_timeout",
		},
		{
			name:   "bad resolution",
			mutate: func(c *Config) { c.Generation.Resolution = "huge" },
			want:   "generation.resolution",
		},
		{
			name:   "zero archive ttl",
			mutate: func(c *Config) { c.Archive.TTLSeconds = 0 },
			want:   "archive.ttl_seconds",
		},
		{
			name:   "vision enabled without key",
			mutate: func(c *Config) { c.Vision.Enabled = true; c.Vision.APIKey = "" },
			want:   "vision.api_key",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "trace" },
			want:   "logging.level",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.normalize(); err != nil {
				t.Fatalf("normalize: %v", err)
			}
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q missing %q", err, tc.want)
			}
		})
	}
}

func TestNormalizeReadsEnvironmentKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("GEMINI_API_KEY", "gm-env")

	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.ImageGen.OpenAIAPIKey != "sk-env" {
		t.Fatalf("openai key = %q", cfg.ImageGen.OpenAIAPIKey)
	}
	if cfg.Vision.APIKey != "gm-env" {
		t.Fatalf("vision key = %q", cfg.Vision.APIKey)
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := expandPath("~/x/y")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != filepath.Join(home, "x", "y") {
		t.Fatalf("expand = %q", got)
	}
}

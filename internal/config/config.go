package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	ImagesDir  string `toml:"images_dir"`
	BundlesDir string `toml:"bundles_dir"`
	APIBind    string `toml:"api_bind"`
}

// Generation contains default rendering parameters applied to new runs.
type Generation struct {
	Resolution  string `toml:"resolution"`
	AspectRatio string `toml:"aspect_ratio"`
}

// ImageGen contains configuration for the image-generation providers.
type ImageGen struct {
	Provider       string  `toml:"provider"`
	SDWebUIURL     string  `toml:"sdwebui_url"`
	Steps          int     `toml:"steps"`
	CfgScale       float64 `toml:"cfg_scale"`
	Sampler        string  `toml:"sampler"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RetryAttempts  int     `toml:"retry_attempts"`
	OpenAIAPIKey   string  `toml:"openai_api_key"`
	OpenAIBaseURL  string  `toml:"openai_base_url"`
}

// Vision contains configuration for the Gemini garment analyzer.
type Vision struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Archive contains configuration for the bundle cache.
type Archive struct {
	TTLSeconds int  `toml:"ttl_seconds"`
	SingleUse  bool `toml:"single_use"`
}

// Queue contains configuration for the durable render-task queue.
type Queue struct {
	MaxAttempts    int `toml:"max_attempts"`
	MaxStalls      int `toml:"max_stalls"`
	RetentionHours int `toml:"retention_hours"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	PurgeInterval      int `toml:"purge_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Lookbook.
//
// Configuration sections by subsystem:
//   - Paths: data/log/image/bundle directories and API bind address
//   - Generation: default resolution and aspect ratio for new runs
//   - ImageGen: provider selection and per-provider connection settings
//   - Vision: Gemini garment analysis used by catalog import
//   - Archive: bundle cache TTL and single-use eviction
//   - Queue: task retry, stall, and retention policy
//   - Workflow: worker pool sizing, polling intervals, and heartbeats
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Generation Generation `toml:"generation"`
	ImageGen   ImageGen   `toml:"imagegen"`
	Vision     Vision     `toml:"vision"`
	Archive    Archive    `toml:"archive"`
	Queue      Queue      `toml:"queue"`
	Workflow   Workflow   `toml:"workflow"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lookbook/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lookbook.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ImagesDir, c.Paths.BundlesDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the embedded sample configuration text.
func Sample() string {
	return sampleConfig
}

package config

import (
	"fmt"
	"regexp"
	"strings"
)

var resolutionPattern = regexp.MustCompile(`^\d{2,5}x\d{2,5}$`)

// Validate checks configuration for values that would break daemon operation.
func (c *Config) Validate() error {
	var problems []string

	requirePath := func(name, value string) {
		if value == "" {
			problems = append(problems, fmt.Sprintf("%s must be set", name))
		}
	}
	requirePath("paths.data_dir", c.Paths.DataDir)
	requirePath("paths.log_dir", c.Paths.LogDir)
	requirePath("paths.images_dir", c.Paths.ImagesDir)
	requirePath("paths.bundles_dir", c.Paths.BundlesDir)
	if c.Paths.APIBind == "" {
		problems = append(problems, "paths.api_bind must be set")
	}

	if c.Generation.Resolution != "" && !resolutionPattern.MatchString(c.Generation.Resolution) {
		problems = append(problems, fmt.Sprintf("generation.resolution %q must look like 1024x1536", c.Generation.Resolution))
	}

	switch c.ImageGen.Provider {
	case "sdwebui":
		if c.ImageGen.SDWebUIURL == "" {
			problems = append(problems, "imagegen.sdwebui_url must be set when provider is sdwebui")
		}
	case "openai":
		if c.ImageGen.OpenAIAPIKey == "" {
			problems = append(problems, "imagegen.openai_api_key (or OPENAI_API_KEY) must be set when provider is openai")
		}
	default:
		problems = append(problems, fmt.Sprintf("imagegen.provider %q must be sdwebui or openai", c.ImageGen.Provider))
	}

	requirePositive := func(name string, value int) {
		if value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive", name))
		}
	}
	requirePositive("imagegen.steps", c.ImageGen.Steps)
	requirePositive("imagegen.timeout_seconds", c.ImageGen.TimeoutSeconds)
	requirePositive("imagegen.retry_attempts", c.ImageGen.RetryAttempts)
	if c.ImageGen.CfgScale <= 0 {
		problems = append(problems, "imagegen.cfg_scale must be positive")
	}

	if c.Vision.Enabled {
		if c.Vision.APIKey == "" {
			problems = append(problems, "vision.api_key (or GEMINI_API_KEY) must be set when vision is enabled")
		}
		if c.Vision.Model == "" {
			problems = append(problems, "vision.model must be set when vision is enabled")
		}
		requirePositive("vision.timeout_seconds", c.Vision.TimeoutSeconds)
	}

	requirePositive("archive.ttl_seconds", c.Archive.TTLSeconds)
	requirePositive("queue.max_attempts", c.Queue.MaxAttempts)
	requirePositive("queue.max_stalls", c.Queue.MaxStalls)
	requirePositive("queue.retention_hours", c.Queue.RetentionHours)
	requirePositive("workflow.workers", c.Workflow.Workers)
	requirePositive("workflow.queue_poll_interval", c.Workflow.QueuePollInterval)
	requirePositive("workflow.error_retry_interval", c.Workflow.ErrorRetryInterval)
	requirePositive("workflow.heartbeat_interval", c.Workflow.HeartbeatInterval)
	requirePositive("workflow.heartbeat_timeout", c.Workflow.HeartbeatTimeout)
	requirePositive("workflow.purge_interval", c.Workflow.PurgeInterval)

	if c.Workflow.HeartbeatTimeout > 0 && c.Workflow.HeartbeatInterval > 0 &&
		c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		problems = append(problems, "workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be debug, info, warn, or error", c.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

package config

const (
	defaultDataDir             = "~/.local/share/lookbook"
	defaultLogDir              = "~/.local/share/lookbook/logs"
	defaultImagesDir           = "~/.local/share/lookbook/images"
	defaultBundlesDir          = "~/.local/share/lookbook/bundles"
	defaultAPIBind             = "127.0.0.1:7680"
	defaultResolution          = "1024x1536"
	defaultAspectRatio         = "2:3"
	defaultProvider            = "sdwebui"
	defaultSDWebUIURL          = "http://127.0.0.1:7860"
	defaultSteps               = 28
	defaultCfgScale            = 7.0
	defaultSampler             = "DPM++ 2M Karras"
	defaultImageGenTimeout     = 180
	defaultImageGenRetries     = 3
	defaultVisionModel         = "gemini-2.0-flash"
	defaultVisionTimeout       = 60
	defaultArchiveTTLSeconds   = 3600
	defaultQueueMaxAttempts    = 2
	defaultQueueMaxStalls      = 3
	defaultQueueRetentionHours = 24
	defaultWorkers             = 2
	defaultQueuePollInterval   = 5
	defaultErrorRetryInterval  = 10
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultPurgeInterval       = 600
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			ImagesDir:  defaultImagesDir,
			BundlesDir: defaultBundlesDir,
			APIBind:    defaultAPIBind,
		},
		Generation: Generation{
			Resolution:  defaultResolution,
			AspectRatio: defaultAspectRatio,
		},
		ImageGen: ImageGen{
			Provider:       defaultProvider,
			SDWebUIURL:     defaultSDWebUIURL,
			Steps:          defaultSteps,
			CfgScale:       defaultCfgScale,
			Sampler:        defaultSampler,
			TimeoutSeconds: defaultImageGenTimeout,
			RetryAttempts:  defaultImageGenRetries,
		},
		Vision: Vision{
			Model:          defaultVisionModel,
			TimeoutSeconds: defaultVisionTimeout,
		},
		Archive: Archive{
			TTLSeconds: defaultArchiveTTLSeconds,
			SingleUse:  true,
		},
		Queue: Queue{
			MaxAttempts:    defaultQueueMaxAttempts,
			MaxStalls:      defaultQueueMaxStalls,
			RetentionHours: defaultQueueRetentionHours,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			PurgeInterval:      defaultPurgeInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

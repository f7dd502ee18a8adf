package config

import (
	"os"
	"strings"
)

// normalize trims whitespace, applies environment fallbacks for secrets, and
// expands path fields to absolute paths.
func (c *Config) normalize() error {
	c.Paths.DataDir = strings.TrimSpace(c.Paths.DataDir)
	c.Paths.LogDir = strings.TrimSpace(c.Paths.LogDir)
	c.Paths.ImagesDir = strings.TrimSpace(c.Paths.ImagesDir)
	c.Paths.BundlesDir = strings.TrimSpace(c.Paths.BundlesDir)
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)

	c.Generation.Resolution = strings.TrimSpace(c.Generation.Resolution)
	c.Generation.AspectRatio = strings.TrimSpace(c.Generation.AspectRatio)

	c.ImageGen.Provider = strings.ToLower(strings.TrimSpace(c.ImageGen.Provider))
	c.ImageGen.SDWebUIURL = strings.TrimRight(strings.TrimSpace(c.ImageGen.SDWebUIURL), "/")
	c.ImageGen.Sampler = strings.TrimSpace(c.ImageGen.Sampler)
	c.ImageGen.OpenAIAPIKey = strings.TrimSpace(c.ImageGen.OpenAIAPIKey)
	c.ImageGen.OpenAIBaseURL = strings.TrimRight(strings.TrimSpace(c.ImageGen.OpenAIBaseURL), "/")
	if c.ImageGen.OpenAIAPIKey == "" {
		c.ImageGen.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}

	c.Vision.APIKey = strings.TrimSpace(c.Vision.APIKey)
	c.Vision.Model = strings.TrimSpace(c.Vision.Model)
	if c.Vision.APIKey == "" {
		c.Vision.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	for _, field := range []*string{
		&c.Paths.DataDir,
		&c.Paths.LogDir,
		&c.Paths.ImagesDir,
		&c.Paths.BundlesDir,
	} {
		if *field == "" {
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	return nil
}

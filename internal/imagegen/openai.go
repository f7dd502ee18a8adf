package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"lookbook/internal/services"
)

const defaultOpenAIImageModel = "gpt-image-1"

// OpenAIConfig captures the settings for the OpenAI Images provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// OpenAIClient renders images through the OpenAI Images API. It serves
// gpt-image model overrides.
type OpenAIClient struct {
	opts []option.RequestOption
}

// NewOpenAIClient constructs the Images provider.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIClient{opts: opts}, nil
}

// Name identifies the provider.
func (c *OpenAIClient) Name() string { return "openai" }

// Generate renders one image. The Images API has no separate negative
// prompt, so avoidance terms are folded into the prompt text.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Image, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, services.Wrap(services.ErrValidation, "openai", "generate", "prompt is required", nil)
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = defaultOpenAIImageModel
	}

	promptText := req.Prompt
	if negative := strings.TrimSpace(req.NegativePrompt); negative != "" {
		promptText += " Avoid: " + negative + "."
	}

	params := openai.ImageGenerateParams{
		Prompt: promptText,
		Model:  openai.ImageModel(model),
		N:      openai.Int(1),
	}
	if size := openAISize(req.Resolution); size != "" {
		params.Size = openai.ImageGenerateParamsSize(size)
	}

	client := openai.NewClient(c.opts...)
	resp, err := client.Images.Generate(ctx, params)
	if err != nil {
		return nil, services.Wrap(services.ErrProvider, "openai", "generate", "render image", err)
	}
	if len(resp.Data) == 0 {
		return nil, services.Wrap(services.ErrProvider, "openai", "generate", "empty image response", nil)
	}
	encoded := resp.Data[0].B64JSON
	if encoded == "" {
		return nil, services.Wrap(services.ErrProvider, "openai", "generate", "response missing image payload", nil)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, services.Wrap(services.ErrProvider, "openai", "generate", "decode image", err)
	}
	return &Image{Data: data, MimeType: "image/png"}, nil
}

// openAISize maps a WxH resolution onto the sizes the Images API accepts,
// falling back to the closest supported portrait/landscape size.
func openAISize(resolution string) string {
	width, height, err := ParseResolution(resolution)
	if err != nil {
		return ""
	}
	switch {
	case width == height:
		return "1024x1024"
	case height > width:
		return "1024x1536"
	default:
		return "1536x1024"
	}
}

// IsOpenAIModel reports whether a model override routes to the OpenAI
// provider.
func IsOpenAIModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-image")
}

// Selector routes requests to a provider based on the model override.
type Selector struct {
	Default Provider
	OpenAI  Provider
}

// For returns the provider serving the given model override.
func (s *Selector) For(model string) (Provider, error) {
	if IsOpenAIModel(model) {
		if s.OpenAI == nil {
			return nil, fmt.Errorf("model %q requires the openai provider, which is not configured", model)
		}
		return s.OpenAI, nil
	}
	if s.Default == nil {
		return nil, errors.New("no default image provider configured")
	}
	return s.Default, nil
}

// Generate routes one request through the selected provider, satisfying
// Provider itself so callers can treat the selector as a single client.
func (s *Selector) Generate(ctx context.Context, req Request) (*Image, error) {
	provider, err := s.For(req.Model)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "imagegen", "select provider", "resolve provider", err)
	}
	return provider.Generate(ctx, req)
}

// Name identifies the routing provider.
func (s *Selector) Name() string { return "selector" }

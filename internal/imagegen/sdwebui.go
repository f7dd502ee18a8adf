package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lookbook/internal/services"
)

const (
	defaultSDTimeout       = 180 * time.Second
	defaultSDRetryAttempts = 3
	defaultSDRetryBase     = 2 * time.Second
	defaultSDRetryMax      = 30 * time.Second
	defaultSDWidth         = 1024
	defaultSDHeight        = 1536
)

// SDWebUIConfig captures the settings for the Stable Diffusion WebUI API.
type SDWebUIConfig struct {
	BaseURL        string
	Steps          int
	CfgScale       float64
	Sampler        string
	TimeoutSeconds int
	RetryAttempts  int
}

// SDWebUIClient talks to the txt2img endpoint of a SD WebUI instance.
type SDWebUIClient struct {
	cfg        SDWebUIConfig
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// SDOption customizes the client.
type SDOption func(*SDWebUIClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) SDOption {
	return func(c *SDWebUIClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) SDOption {
	return func(c *SDWebUIClient) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) SDOption {
	return func(c *SDWebUIClient) {
		c.sleeper = sleeper
	}
}

// NewSDWebUIClient constructs a client for the given WebUI instance.
func NewSDWebUIClient(cfg SDWebUIConfig, opts ...SDOption) *SDWebUIClient {
	timeout := defaultSDTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	attempts := defaultSDRetryAttempts
	if cfg.RetryAttempts > 0 {
		attempts = cfg.RetryAttempts
	}
	client := &SDWebUIClient{
		cfg: SDWebUIConfig{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Steps:          cfg.Steps,
			CfgScale:       cfg.CfgScale,
			Sampler:        strings.TrimSpace(cfg.Sampler),
			TimeoutSeconds: cfg.TimeoutSeconds,
			RetryAttempts:  cfg.RetryAttempts,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: attempts,
		retryBaseDelay:   defaultSDRetryBase,
		retryMaxDelay:    defaultSDRetryMax,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}
	return client
}

// Name identifies the provider.
func (c *SDWebUIClient) Name() string { return "sdwebui" }

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	SamplerName    string  `json:"sampler_name,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	CfgScale       float64 `json:"cfg_scale,omitempty"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	BatchSize      int     `json:"batch_size"`
	NIter          int     `json:"n_iter"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
	Detail string   `json:"detail"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("sdwebui request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Generate renders one image through txt2img, retrying transient failures
// with exponential backoff. The returned error carries the provider marker.
func (c *SDWebUIClient) Generate(ctx context.Context, req Request) (*Image, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, services.Wrap(services.ErrValidation, "sdwebui", "generate", "prompt is required", nil)
	}
	if c.cfg.BaseURL == "" {
		return nil, services.Wrap(services.ErrValidation, "sdwebui", "generate", "base url is required", nil)
	}

	width, height := defaultSDWidth, defaultSDHeight
	if req.Resolution != "" {
		parsedWidth, parsedHeight, err := ParseResolution(req.Resolution)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "sdwebui", "generate", "parse resolution", err)
		}
		width, height = parsedWidth, parsedHeight
	}

	payload := txt2imgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		SamplerName:    c.cfg.Sampler,
		Steps:          c.cfg.Steps,
		CfgScale:       c.cfg.CfgScale,
		Width:          width,
		Height:         height,
		BatchSize:      1,
		NIter:          1,
	}

	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		image, err := c.generateOnce(ctx, payload)
		if err == nil {
			return image, nil
		}

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return nil, services.Wrap(services.ErrProvider, "sdwebui", "generate", "render image", err)
		}
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return nil, services.Wrap(services.ErrProvider, "sdwebui", "generate", "render image", sleepErr)
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return nil, services.Wrap(services.ErrProvider, "sdwebui", "generate",
		fmt.Sprintf("failed after %d attempts", attempts), lastErr)
}

func (c *SDWebUIClient) generateOnce(ctx context.Context, payload txt2imgRequest) (*Image, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("sdwebui request: encode body: %w", err)
	}
	endpoint := c.cfg.BaseURL + "/sdapi/v1/txt2img"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("sdwebui request: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sdwebui request: http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sdwebui request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}

	var decoded txt2imgResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("sdwebui request: decode response: %w", err)
	}
	if len(decoded.Images) == 0 {
		detail := strings.TrimSpace(decoded.Detail)
		if detail == "" {
			detail = "no images in response"
		}
		return nil, fmt.Errorf("sdwebui request: %s", detail)
	}

	data, err := base64.StdEncoding.DecodeString(decoded.Images[0])
	if err != nil {
		return nil, fmt.Errorf("sdwebui request: decode image: %w", err)
	}
	return &Image{Data: data, MimeType: "image/png"}, nil
}

func (c *SDWebUIClient) retryAttempts() int {
	if c == nil || c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *SDWebUIClient) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts {
		return 0, false
	}
	if err == nil || ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *SDWebUIClient) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	maxDelay := c.retryMaxDelay
	if base <= 0 {
		return 0
	}
	if maxDelay <= 0 {
		maxDelay = defaultSDRetryMax
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *SDWebUIClient) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultSDRetryMax
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *SDWebUIClient) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseRetryAfter(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(header); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

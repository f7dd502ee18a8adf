package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lookbook/internal/services"
)

// Client is the typed HTTP client the CLI uses to talk to the daemon.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// ClientOption customizes client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient builds a client for the daemon at baseURL, acting as userID.
func NewClient(baseURL, userID string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		userID:     userID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrValidation, "api", "request", "encode request body", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrValidation, "api", "request", "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-ID", c.userID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrInfrastructure, "api", "request", "daemon unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrInfrastructure, "api", "request", "decode response", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload ErrorResponse
	message := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		message = payload.Error
	}

	marker := services.ErrInfrastructure
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized:
		marker = services.ErrValidation
	case http.StatusForbidden:
		marker = services.ErrPermission
	case http.StatusNotFound:
		marker = services.ErrNotFound
	case http.StatusConflict:
		marker = services.ErrConflict
	case http.StatusBadGateway:
		marker = services.ErrProvider
	}
	return services.Wrap(marker, "api", "request", message, nil)
}

// Status fetches daemon health and queue totals.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateGeneration starts a new run.
func (c *Client) CreateGeneration(ctx context.Context, req CreateGenerationRequest) (*GenerationView, error) {
	var out GenerationView
	if err := c.do(ctx, http.MethodPost, "/api/generations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListGenerations returns the caller's runs, newest first.
func (c *Client) ListGenerations(ctx context.Context) ([]*GenerationView, error) {
	var out []*GenerationView
	if err := c.do(ctx, http.MethodGet, "/api/generations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetGeneration fetches one run.
func (c *Client) GetGeneration(ctx context.Context, id string) (*GenerationView, error) {
	var out GenerationView
	if err := c.do(ctx, http.MethodGet, "/api/generations/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BuildPrompts synthesizes the six shot prompts for a run.
func (c *Client) BuildPrompts(ctx context.Context, id string) (*GenerationView, error) {
	var out GenerationView
	if err := c.do(ctx, http.MethodPost, "/api/generations/"+id+"/prompts", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SavePrompts merges prompt edits into a run.
func (c *Client) SavePrompts(ctx context.Context, id string, req SavePromptsRequest) (*GenerationView, error) {
	var out GenerationView
	if err := c.do(ctx, http.MethodPut, "/api/generations/"+id+"/prompts", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Execute queues the asynchronous render run.
func (c *Client) Execute(ctx context.Context, id string, req ExecuteRequest) (*GenerationView, error) {
	var out GenerationView
	if err := c.do(ctx, http.MethodPost, "/api/generations/"+id+"/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetryVisual re-renders one shot of a finished run.
func (c *Client) RetryVisual(ctx context.Context, id string, index int, req RetryVisualRequest) (*GenerationView, error) {
	var out GenerationView
	path := fmt.Sprintf("/api/generations/%s/visuals/%d/retry", id, index)
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reset returns a terminal run to pending.
func (c *Client) Reset(ctx context.Context, id string) (*GenerationView, error) {
	var out GenerationView
	if err := c.do(ctx, http.MethodPost, "/api/generations/"+id+"/reset", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Progress fetches a run's progress report.
func (c *Client) Progress(ctx context.Context, id string) (*ProgressView, error) {
	var out ProgressView
	if err := c.do(ctx, http.MethodGet, "/api/generations/"+id+"/progress", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download streams the run's zip bundle into w.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/generations/"+id+"/download", nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "api", "download", "build request", err)
	}
	req.Header.Set("X-User-ID", c.userID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrInfrastructure, "api", "download", "daemon unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return services.Wrap(services.ErrInfrastructure, "api", "download", "stream bundle", err)
	}
	return nil
}

// CreateGarment registers a product.
func (c *Client) CreateGarment(ctx context.Context, req CreateGarmentRequest) (*GarmentView, error) {
	var out GarmentView
	if err := c.do(ctx, http.MethodPost, "/api/garments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListGarments returns the caller's products.
func (c *Client) ListGarments(ctx context.Context) ([]*GarmentView, error) {
	var out []*GarmentView
	if err := c.do(ctx, http.MethodGet, "/api/garments", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AnalyzeGarment submits a product photo for vision analysis.
func (c *Client) AnalyzeGarment(ctx context.Context, id string, req AnalyzeGarmentRequest) (*GarmentView, error) {
	var out GarmentView
	if err := c.do(ctx, http.MethodPost, "/api/garments/"+id+"/analysis", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateStyle registers a preset or collection.
func (c *Client) CreateStyle(ctx context.Context, req CreateStyleRequest) (*StyleView, error) {
	var out StyleView
	if err := c.do(ctx, http.MethodPost, "/api/styles", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStyles returns the caller's style sources.
func (c *Client) ListStyles(ctx context.Context) ([]*StyleView, error) {
	var out []*StyleView
	if err := c.do(ctx, http.MethodGet, "/api/styles", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

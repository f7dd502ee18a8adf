package imagegen

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Request describes one shot render.
type Request struct {
	Prompt         string
	NegativePrompt string
	ShotType       string
	Resolution     string
	AspectRatio    string
	Model          string
}

// Image is a rendered result.
type Image struct {
	Data     []byte
	MimeType string
}

// Provider renders one image per request. Implementations retry transient
// provider failures internally; a returned error is final for the shot.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Image, error)
}

// ParseResolution splits a "WxH" resolution string.
func ParseResolution(resolution string) (width, height int, err error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(resolution)), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("resolution %q must look like 1024x1536", resolution)
	}
	width, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("resolution %q: %w", resolution, err)
	}
	height, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("resolution %q: %w", resolution, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("resolution %q must be positive", resolution)
	}
	return width, height, nil
}

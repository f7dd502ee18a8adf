package vision

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"lookbook/internal/catalog"
	"lookbook/internal/config"
	"lookbook/internal/logging"
	"lookbook/internal/services"
)

// Analysis is the structured garment description extracted from a product
// photo. Fields map directly onto the catalog record feeding prompt
// synthesis.
type Analysis struct {
	Name               string `json:"name"`
	Category           string `json:"category"`
	Color              string `json:"color"`
	ClosureDescription string `json:"closure_description"`
	FabricTexture      string `json:"fabric_texture"`
	HasLogo            bool   `json:"has_logo"`
}

// Analyzer extracts garment attributes from image bytes.
type Analyzer interface {
	Analyze(ctx context.Context, imageData []byte, mimeType string) (*Analysis, error)
}

const analysisPrompt = `Analyze this product photo of a garment and answer as a single JSON object with exactly these keys:
  "name": short product name,
  "category": garment category (e.g. jacket, hoodie, chino pants, sneakers),
  "color": the dominant color as a plain color name,
  "closure_description": how the garment closes (e.g. "full zip front", "button placket", "pullover"), empty if not visible,
  "fabric_texture": the fabric surface (e.g. suede, velvet, corduroy, smooth cotton), empty if unclear,
  "has_logo": true only when a brand logo is clearly visible in the photo.
Respond with JSON only, no prose.`

// Gemini analyzes garment photos with the Gemini vision API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGemini constructs the analyzer from the vision config section.
func NewGemini(ctx context.Context, cfg config.Vision, logger *slog.Logger) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrValidation, "vision", "init", "vision api key is required", nil)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "vision", "init", "create gemini client", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gemini{
		client:  client,
		model:   cfg.Model,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "vision"),
	}, nil
}

// Close releases the underlying API client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Analyze sends the photo to Gemini and decodes the structured reply.
func (g *Gemini) Analyze(ctx context.Context, imageData []byte, mimeType string) (*Analysis, error) {
	if len(imageData) == 0 {
		return nil, services.Wrap(services.ErrValidation, "vision", "analyze", "image data is empty", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model := g.client.GenerativeModel(g.model)
	model.ResponseMIMEType = "application/json"

	format := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
	if format == "" {
		format = "png"
	}

	result, err := model.GenerateContent(ctx,
		genai.ImageData(format, imageData),
		genai.Text(analysisPrompt),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrProvider, "vision", "analyze", "gemini request failed", err)
	}

	text := firstText(result)
	if text == "" {
		return nil, services.Wrap(services.ErrProvider, "vision", "analyze", "empty gemini response", nil)
	}

	analysis, err := ParseAnalysis(text)
	if err != nil {
		return nil, err
	}
	g.logger.Info("garment analyzed",
		logging.String("category", analysis.Category),
		logging.String("color", analysis.Color),
		logging.Bool("has_logo", analysis.HasLogo))
	return analysis, nil
}

func firstText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok && strings.TrimSpace(string(text)) != "" {
				return string(text)
			}
		}
	}
	return ""
}

// ParseAnalysis decodes a model reply, tolerating markdown code fences.
func ParseAnalysis(text string) (*Analysis, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return nil, services.Wrap(services.ErrProvider, "vision", "analyze", "decode analysis reply", err)
	}
	analysis.Name = strings.TrimSpace(analysis.Name)
	analysis.Category = strings.ToLower(strings.TrimSpace(analysis.Category))
	analysis.Color = strings.ToLower(strings.TrimSpace(analysis.Color))
	analysis.ClosureDescription = strings.TrimSpace(analysis.ClosureDescription)
	analysis.FabricTexture = strings.ToLower(strings.TrimSpace(analysis.FabricTexture))
	return &analysis, nil
}

// ApplyToGarment copies the analysis onto a catalog record. The name is
// only taken when the record has none.
func ApplyToGarment(analysis *Analysis, record *catalog.GarmentRecord) {
	if analysis == nil || record == nil {
		return
	}
	if record.Name == "" && analysis.Name != "" {
		record.Name = analysis.Name
	}
	record.Category = analysis.Category
	record.Color = analysis.Color
	record.ClosureDescription = analysis.ClosureDescription
	record.FabricTexture = analysis.FabricTexture
	record.HasLogo = analysis.HasLogo
	if encoded, err := json.Marshal(analysis); err == nil {
		record.AnalysisJSON = string(encoded)
	}
}

package prompt

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lookbook/internal/services"
)

const (
	defaultSubject     = "adult"
	defaultPantsPhrase = "black chino pants"

	baseNegativePrompt = "deformed hands, extra fingers, distorted anatomy, disfigured face, " +
		"duplicate limbs, blurry, out of focus, low quality, jpeg artifacts, " +
		"watermark, signature, text overlay"

	productNegativeExtra = "person, human, model, mannequin, hands, face, " +
		"color shift, washed out colors, faded color"
)

// bottomKeywords classifies a garment as lower-body wear by category substring.
var bottomKeywords = []string{
	"pant", "trouser", "jean", "jogger", "short", "leg",
	"bottom", "skirt", "chino", "sweatpant", "cargo",
}

var footwearBuckets = []struct {
	keywords []string
	phrase   string
}{
	{
		keywords: []string{"athletic", "sport", "track", "training", "running", "gym", "jersey"},
		phrase:   "clean white athletic sneakers",
	},
	{
		keywords: []string{"coat", "jacket", "blazer", "suit", "formal", "overcoat", "parka"},
		phrase:   "polished black leather boots",
	},
	{
		keywords: bottomKeywords,
		phrase:   "minimal white low-top sneakers",
	},
}

const defaultFootwear = "simple neutral-tone leather sneakers"

// suedeBiasColors are the colors providers drift toward when rendering suede.
var suedeBiasColors = []string{"beige", "tan", "camel", "sand", "khaki", "cream", "ivory"}

// Synthesize maps a garment record and a style source to the six canonical
// shot prompts plus the shared negative prompt. Deterministic for fixed
// inputs apart from the fresh object identifiers.
func Synthesize(garment Garment, style Style, opts Options) (Set, string, error) {
	if strings.TrimSpace(garment.Name) == "" {
		return nil, "", services.Wrap(services.ErrValidation, "prompt", "synthesize", "garment name is required", nil)
	}
	if strings.TrimSpace(garment.Color) == "" {
		return nil, "", services.Wrap(services.ErrValidation, "prompt", "synthesize", "garment color is required", nil)
	}

	zipClause := zipperClause(garment.ClosureDescription)
	logoClause := frontLogoClause(garment.HasLogo)

	footwear := resolveFootwear(style.Footwear, garment.Category)

	pants := strings.TrimSpace(style.PantsPhrase)
	if pants == "" {
		pants = defaultPantsPhrase
	}

	// A garment that is itself a bottom never gets a second pants phrase.
	var lowerBody string
	if IsBottomCategory(garment.Category) {
		lowerBody = fmt.Sprintf("Styled with %s.", footwear)
	} else {
		lowerBody = fmt.Sprintf("Worn with %s and %s.", pants, footwear)
	}

	textureClause := textureReinforcement(garment.FabricTexture)
	scene := sceneClause(style)

	biasTerms := append(suedeBiasTerms(garment.FabricTexture, garment.Color),
		leatherBiasTerms(garment.FabricTexture, garment.Color)...)
	productNegative := baseNegativePrompt + ", " + productNegativeExtra
	if len(biasTerms) > 0 {
		productNegative += ", " + strings.Join(biasTerms, ", ")
	}

	set := make(Set, len(shotOrder))
	for _, shot := range shotOrder {
		color := strings.TrimSpace(garment.Color)
		if shot.ProductOnly() {
			color = "((" + color + "))"
		}
		garmentPhrase := describeGarment(garment, color, textureClause)
		subject := resolveSubject(shot, opts, style)

		negative := baseNegativePrompt
		if shot.ProductOnly() {
			negative = productNegative
		}

		styleSummary := ""
		if shot.HumanSubject() {
			styleSummary = lowerBody
		}

		set[shot] = &Object{
			ID:                   uuid.NewString(),
			ShotType:             shot,
			DisplayName:          shot.DisplayName(),
			Camera:               shot.Camera(),
			Prompt:               renderShot(shot, subject, garmentPhrase, lowerBody, scene, zipClause, logoClause),
			NegativePrompt:       negative,
			BackgroundSummary:    scene,
			ProductDetailSummary: garmentPhrase,
			StyleElementSummary:  styleSummary,
			Editable:             true,
		}
	}

	return set, baseNegativePrompt, nil
}

// IsBottomCategory reports whether the category names lower-body wear.
func IsBottomCategory(category string) bool {
	lower := strings.ToLower(category)
	for _, keyword := range bottomKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func zipperClause(closure string) string {
	lower := strings.ToLower(closure)
	if !strings.Contains(lower, "zip") {
		return ""
	}
	return "The garment is worn fully zipped, hem hanging straight."
}

func frontLogoClause(hasLogo bool) string {
	if !hasLogo {
		return ""
	}
	return "The brand logo is visible on the front exactly as in the product."
}

func resolveFootwear(styleFootwear, category string) string {
	footwear := strings.TrimSpace(styleFootwear)
	if footwear != "" && !strings.EqualFold(footwear, "barefoot") {
		return footwear
	}
	lower := strings.ToLower(category)
	for _, bucket := range footwearBuckets {
		for _, keyword := range bucket.keywords {
			if strings.Contains(lower, keyword) {
				return bucket.phrase
			}
		}
	}
	return defaultFootwear
}

// resolveSubject applies the per-shot fallback chain: shot option, then the
// legacy style-level selector, then the hard default.
func resolveSubject(shot ShotType, opts Options, style Style) string {
	if opt, ok := opts.PerShot[shot]; ok {
		if subject := strings.TrimSpace(opt.Subject); subject != "" {
			return subject
		}
		if size := strings.TrimSpace(opt.Size); size != "" {
			return size
		}
	}
	if subject := strings.TrimSpace(style.Subject); subject != "" {
		return subject
	}
	return defaultSubject
}

func suedeBiasTerms(texture, color string) []string {
	lower := strings.ToLower(texture)
	if !strings.Contains(lower, "suede") && !strings.Contains(lower, "nubuck") {
		return nil
	}
	trueColor := strings.ToLower(strings.TrimSpace(color))
	var terms []string
	for _, bias := range suedeBiasColors {
		if strings.Contains(trueColor, bias) {
			continue
		}
		terms = append(terms, bias)
	}
	return terms
}

func leatherBiasTerms(texture, color string) []string {
	lower := strings.ToLower(texture)
	if !strings.Contains(lower, "leather") {
		return nil
	}
	if strings.Contains(strings.ToLower(color), "black") {
		return nil
	}
	return []string{"black leather", "shiny leather", "glossy black finish"}
}

func textureReinforcement(texture string) string {
	lower := strings.ToLower(texture)
	switch {
	case strings.Contains(lower, "suede") || strings.Contains(lower, "nubuck"):
		if !strings.Contains(lower, "matte") && !strings.Contains(lower, "napped") {
			return "a matte, napped suede finish"
		}
	case strings.Contains(lower, "velvet"):
		if !strings.Contains(lower, "plush") && !strings.Contains(lower, "sheen") {
			return "a plush velvet sheen"
		}
	case strings.Contains(lower, "corduroy"):
		if !strings.Contains(lower, "ridged") {
			return "ridged corduroy wales"
		}
	}
	return ""
}

func describeGarment(garment Garment, color, textureClause string) string {
	phrase := fmt.Sprintf("%s %s", color, strings.TrimSpace(garment.Name))
	if textureClause != "" {
		phrase += " with " + textureClause
	}
	return phrase
}

func sceneClause(style Style) string {
	var parts []string
	if background := strings.TrimSpace(style.Background); background != "" {
		parts = append(parts, background+" background")
	}
	if lighting := strings.TrimSpace(style.Lighting); lighting != "" {
		parts = append(parts, lighting+" lighting")
	}
	if props := strings.TrimSpace(style.Props); props != "" {
		parts = append(parts, "styled with "+props)
	}
	if len(parts) == 0 {
		return "clean seamless studio background, soft diffused lighting"
	}
	return strings.Join(parts, ", ")
}

func renderShot(shot ShotType, subject, garmentPhrase, lowerBody, scene, zipClause, logoClause string) string {
	cam := shot.Camera()
	camera := fmt.Sprintf("Shot on a %s lens at %s, %s, focused on %s.",
		cam.FocalLength, cam.Aperture, cam.Angle, cam.FocusTarget)

	var lead string
	switch shot {
	case ShotPairedSubjects:
		lead = fmt.Sprintf("Professional fashion photograph of two %s models standing side by side, both wearing the %s.", subject, garmentPhrase)
	case ShotSingleSubject:
		lead = fmt.Sprintf("Professional fashion photograph of a single %s model wearing the %s.", subject, garmentPhrase)
	case ShotFlatFront:
		lead = fmt.Sprintf("Studio product photograph of the %s laid perfectly flat, front side up, %s sizing.", garmentPhrase, subject)
	case ShotFlatBack:
		lead = fmt.Sprintf("Studio product photograph of the %s laid perfectly flat, back side up, %s sizing.", garmentPhrase, subject)
	case ShotCloseUpFront:
		lead = fmt.Sprintf("Macro detail photograph of the front of the %s.", garmentPhrase)
	case ShotCloseUpBack:
		lead = fmt.Sprintf("Macro detail photograph of the back of the %s.", garmentPhrase)
	}

	parts := []string{lead}
	if logoClause != "" && shot != ShotFlatBack && shot != ShotCloseUpBack {
		parts = append(parts, logoClause)
	}
	if zipClause != "" && shot != ShotCloseUpBack {
		parts = append(parts, zipClause)
	}
	if shot.HumanSubject() {
		parts = append(parts, lowerBody)
	}
	parts = append(parts, strings.ToUpper(scene[:1])+scene[1:]+".", camera)
	return strings.Join(parts, " ")
}

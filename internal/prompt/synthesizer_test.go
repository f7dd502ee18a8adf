package prompt

import (
	"errors"
	"strings"
	"testing"

	"lookbook/internal/services"
)

func testGarment() Garment {
	return Garment{
		Name:               "harrington jacket",
		Category:           "jacket",
		Color:              "forest green",
		ClosureDescription: "full-length metal zipper",
		FabricTexture:      "brushed cotton twill",
		HasLogo:            false,
	}
}

func testStyle() Style {
	return Style{
		Background: "warm terracotta studio",
		Lighting:   "soft window",
		Footwear:   "",
		Subject:    "",
	}
}

func TestSynthesizeReturnsAllSixShots(t *testing.T) {
	set, negative, err := Synthesize(testGarment(), testStyle(), Options{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if negative == "" {
		t.Fatal("shared negative prompt is empty")
	}
	if len(set) != 6 {
		t.Fatalf("got %d shots, want 6", len(set))
	}
	for _, shot := range AllShots() {
		obj, ok := set[shot]
		if !ok {
			t.Fatalf("missing shot %s", shot)
		}
		if strings.TrimSpace(obj.Prompt) == "" {
			t.Errorf("%s: empty prompt", shot)
		}
		if strings.TrimSpace(obj.NegativePrompt) == "" {
			t.Errorf("%s: empty negative prompt", shot)
		}
		if obj.ID == "" {
			t.Errorf("%s: missing id", shot)
		}
		if obj.DisplayName == "" {
			t.Errorf("%s: missing display name", shot)
		}
	}
}

func TestSynthesizeRequiresNameAndColor(t *testing.T) {
	garment := testGarment()
	garment.Name = " "
	if _, _, err := Synthesize(garment, testStyle(), Options{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing name: got %v, want validation error", err)
	}

	garment = testGarment()
	garment.Color = ""
	if _, _, err := Synthesize(garment, testStyle(), Options{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing color: got %v, want validation error", err)
	}
}

func TestBottomGarmentSuppressesPantsPhrase(t *testing.T) {
	garment := testGarment()
	garment.Name = "pleated linen trousers"
	garment.Category = "wide-leg trouser"
	style := testStyle()
	style.PantsPhrase = "slim grey chino pants"

	set, _, err := Synthesize(garment, style, Options{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	for _, shot := range AllShots() {
		prompt := set[shot].Prompt
		if strings.Contains(prompt, style.PantsPhrase) {
			t.Errorf("%s: pants phrase leaked into prompt for a bottom garment: %q", shot, prompt)
		}
		if strings.Count(strings.ToLower(prompt), "wearing") > 1 {
			t.Errorf("%s: duplicated wearing clause: %q", shot, prompt)
		}
	}
}

func TestNonBottomGarmentWearsPantsAndFootwear(t *testing.T) {
	set, _, err := Synthesize(testGarment(), testStyle(), Options{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	prompt := set[ShotSingleSubject].Prompt
	if !strings.Contains(prompt, defaultPantsPhrase) {
		t.Fatalf("missing default pants phrase: %q", prompt)
	}
	if !strings.Contains(prompt, "polished black leather boots") {
		t.Fatalf("jacket category should pick the outerwear footwear bucket: %q", prompt)
	}
}

func TestFootwearNeverBarefoot(t *testing.T) {
	for _, footwear := range []string{"", "barefoot", "Barefoot", "  "} {
		style := testStyle()
		style.Footwear = footwear
		set, _, err := Synthesize(testGarment(), style, Options{})
		if err != nil {
			t.Fatalf("synthesize: %v", err)
		}
		for _, shot := range AllShots() {
			if strings.Contains(strings.ToLower(set[shot].Prompt), "barefoot") {
				t.Errorf("footwear %q: prompt contains barefoot: %q", footwear, set[shot].Prompt)
			}
		}
	}
}

func TestFootwearVerbatimWhenSpecified(t *testing.T) {
	style := testStyle()
	style.Footwear = "tan suede desert boots"
	set, _, err := Synthesize(testGarment(), style, Options{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !strings.Contains(set[ShotPairedSubjects].Prompt, "tan suede desert boots") {
		t.Fatalf("explicit footwear not used verbatim: %q", set[ShotPairedSubjects].Prompt)
	}
}

func TestFootwearBuckets(t *testing.T) {
	tests := []struct {
		category string
		want     string
	}{
		{"track jacket", "clean white athletic sneakers"},
		{"wool overcoat", "polished black leather boots"},
		{"cargo short", "minimal white low-top sneakers"},
		{"crewneck tee", defaultFootwear},
	}
	for _, tc := range tests {
		if got := resolveFootwear("", tc.category); got != tc.want {
			t.Errorf("category %q: footwear %q, want %q", tc.category, got, tc.want)
		}
	}
}

func TestSuedeBiasExcludesTrueColor(t *testing.T) {
	garment := testGarment()
	garment.Color = "tan"
	garment.FabricTexture = "soft suede"

	set, _, err := Synthesize(garment, testStyle(), Options{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	negative := set[ShotFlatFront].NegativePrompt
	if strings.Contains(negative, "tan") {
		t.Fatalf("negative prompt blocks the true color: %q", negative)
	}
	for _, bias := range []string{"beige", "camel", "khaki", "ivory"} {
		if !strings.Contains(negative, bias) {
			t.Errorf("negative prompt missing suede bias term %q: %q", bias, negative)
		}
	}
	// Human shots keep the shared base negative only.
	if strings.Contains(set[ShotSingleSubject].NegativePrompt, "beige") {
		t.Errorf("human shot negative should not carry material bias terms: %q", set[ShotSingleSubject].NegativePrompt)
	}
}

func TestLeatherBiasOnlyForNonBlack(t *testing.T) {
	if terms := leatherBiasTerms("full-grain leather", "oxblood"); len(terms) == 0 {
		t.Fatal("non-black leather should block the black-leather bias")
	}
	if terms := leatherBiasTerms("full-grain leather", "jet black"); terms != nil {
		t.Fatalf("black leather needs no bias terms, got %v", terms)
	}
	if terms := leatherBiasTerms("cotton jersey", "oxblood"); terms != nil {
		t.Fatalf("non-leather texture needs no bias terms, got %v", terms)
	}
}

func TestTextureReinforcement(t *testing.T) {
	tests := []struct {
		texture string
		want    string
	}{
		{"soft suede", "a matte, napped suede finish"},
		{"matte napped suede", ""},
		{"crushed velvet", "a plush velvet sheen"},
		{"plush velvet", ""},
		{"wide-wale corduroy", "ridged corduroy wales"},
		{"ridged corduroy", ""},
		{"cotton twill", ""},
	}
	for _, tc := range tests {
		if got := textureReinforcement(tc.texture); got != tc.want {
			t.Errorf("texture %q: got %q, want %q", tc.texture, got, tc.want)
		}
	}
}

func TestColorEmphasisOnProductShotsOnly(t *testing.T) {
	set, _, err := Synthesize(testGarment(), testStyle(), Options{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	for _, shot := range AllShots() {
		prompt := set[shot].Prompt
		emphasized := strings.Contains(prompt, "((forest green))")
		if shot.ProductOnly() && !emphasized {
			t.Errorf("%s: product shot missing color emphasis: %q", shot, prompt)
		}
		if shot.HumanSubject() && emphasized {
			t.Errorf("%s: human shot should use the plain color: %q", shot, prompt)
		}
	}
}

func TestZipperAndLogoGuards(t *testing.T) {
	garment := testGarment()
	garment.ClosureDescription = "button placket"
	garment.HasLogo = false
	set, _, err := Synthesize(garment, testStyle(), Options{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	for _, shot := range AllShots() {
		if strings.Contains(strings.ToLower(set[shot].Prompt), "zipped") {
			t.Errorf("%s: zipper clause without a zipper: %q", shot, set[shot].Prompt)
		}
		if strings.Contains(strings.ToLower(set[shot].Prompt), "logo") {
			t.Errorf("%s: logo clause fabricated: %q", shot, set[shot].Prompt)
		}
	}

	garment.ClosureDescription = "two-way zip"
	garment.HasLogo = true
	set, _, err = Synthesize(garment, testStyle(), Options{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !strings.Contains(set[ShotSingleSubject].Prompt, "fully zipped") {
		t.Fatalf("zipper clause missing: %q", set[ShotSingleSubject].Prompt)
	}
	if !strings.Contains(set[ShotCloseUpFront].Prompt, "logo") {
		t.Fatalf("logo clause missing on front close-up: %q", set[ShotCloseUpFront].Prompt)
	}
	if strings.Contains(set[ShotFlatBack].Prompt, "logo") {
		t.Fatalf("logo clause leaked onto a back shot: %q", set[ShotFlatBack].Prompt)
	}
}

func TestSubjectFallbackChain(t *testing.T) {
	style := testStyle()
	style.Subject = "teen"
	opts := Options{PerShot: map[ShotType]ShotOption{
		ShotSingleSubject: {Subject: "adult woman"},
		ShotFlatBack:      {Size: "child"},
	}}

	if got := resolveSubject(ShotSingleSubject, opts, style); got != "adult woman" {
		t.Errorf("per-shot subject: got %q", got)
	}
	if got := resolveSubject(ShotFlatBack, opts, style); got != "child" {
		t.Errorf("per-shot size fallback: got %q", got)
	}
	if got := resolveSubject(ShotPairedSubjects, opts, style); got != "teen" {
		t.Errorf("legacy selector fallback: got %q", got)
	}
	if got := resolveSubject(ShotPairedSubjects, Options{}, Style{}); got != defaultSubject {
		t.Errorf("hard default: got %q", got)
	}
}

func TestSynthesizeDeterministicApartFromIDs(t *testing.T) {
	first, firstNeg, err := Synthesize(testGarment(), testStyle(), Options{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	second, secondNeg, err := Synthesize(testGarment(), testStyle(), Options{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if firstNeg != secondNeg {
		t.Fatal("shared negative prompt differs between runs")
	}
	for _, shot := range AllShots() {
		if first[shot].Prompt != second[shot].Prompt {
			t.Errorf("%s: prompt differs between runs", shot)
		}
		if first[shot].ID == second[shot].ID {
			t.Errorf("%s: identifiers should be fresh per call", shot)
		}
	}
}

func TestParseShot(t *testing.T) {
	if shot, err := Parse(" Flat-Front "); err != nil || shot != ShotFlatFront {
		t.Fatalf("parse flat-front: %v %v", shot, err)
	}
	if _, err := Parse("profile"); err == nil {
		t.Fatal("expected error for unknown shot")
	}
}

func TestDisplayNames(t *testing.T) {
	if got := ShotPairedSubjects.DisplayName(); got != "Paired Subjects" {
		t.Errorf("paired display name = %q", got)
	}
	if got := ShotCloseUpBack.DisplayName(); got != "Close Up Back" {
		t.Errorf("close-up display name = %q", got)
	}
}

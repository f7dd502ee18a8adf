package prompt

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ShotType identifies one of the six canonical photographic setups.
type ShotType string

const (
	ShotPairedSubjects ShotType = "paired-subjects"
	ShotSingleSubject  ShotType = "single-subject"
	ShotFlatFront      ShotType = "flat-front"
	ShotFlatBack       ShotType = "flat-back"
	ShotCloseUpFront   ShotType = "close-up-front"
	ShotCloseUpBack    ShotType = "close-up-back"
)

var shotOrder = []ShotType{
	ShotPairedSubjects,
	ShotSingleSubject,
	ShotFlatFront,
	ShotFlatBack,
	ShotCloseUpFront,
	ShotCloseUpBack,
}

// AllShots returns the six canonical shot types in their fixed order.
func AllShots() []ShotType {
	out := make([]ShotType, len(shotOrder))
	copy(out, shotOrder)
	return out
}

// Parse validates a raw shot-type string.
func Parse(value string) (ShotType, error) {
	candidate := ShotType(strings.ToLower(strings.TrimSpace(value)))
	for _, shot := range shotOrder {
		if shot == candidate {
			return shot, nil
		}
	}
	return "", fmt.Errorf("unknown shot type %q", value)
}

// Valid reports whether the shot type is one of the six canonical values.
func (s ShotType) Valid() bool {
	for _, shot := range shotOrder {
		if shot == s {
			return true
		}
	}
	return false
}

// HumanSubject reports whether the shot frames a human model.
func (s ShotType) HumanSubject() bool {
	return s == ShotPairedSubjects || s == ShotSingleSubject
}

// ProductOnly reports whether the shot shows the garment without a model.
func (s ShotType) ProductOnly() bool {
	return s.Valid() && !s.HumanSubject()
}

var titleCaser = cases.Title(language.English)

// DisplayName returns a human-readable label for the shot type.
func (s ShotType) DisplayName() string {
	return titleCaser.String(strings.ReplaceAll(string(s), "-", " "))
}

// Camera holds the fixed camera parameters attached to each shot.
type Camera struct {
	FocalLength string `json:"focal_length"`
	Aperture    string `json:"aperture"`
	FocusTarget string `json:"focus_target"`
	Angle       string `json:"angle"`
}

var shotCameras = map[ShotType]Camera{
	ShotPairedSubjects: {FocalLength: "50mm", Aperture: "f/5.6", FocusTarget: "both full outfits", Angle: "eye level"},
	ShotSingleSubject:  {FocalLength: "85mm", Aperture: "f/4", FocusTarget: "full outfit", Angle: "eye level"},
	ShotFlatFront:      {FocalLength: "50mm", Aperture: "f/8", FocusTarget: "garment front panel", Angle: "top down"},
	ShotFlatBack:       {FocalLength: "50mm", Aperture: "f/8", FocusTarget: "garment back panel", Angle: "top down"},
	ShotCloseUpFront:   {FocalLength: "100mm macro", Aperture: "f/5.6", FocusTarget: "front fabric and closure detail", Angle: "straight on"},
	ShotCloseUpBack:    {FocalLength: "100mm macro", Aperture: "f/5.6", FocusTarget: "back seam and fabric detail", Angle: "straight on"},
}

// Camera returns the fixed camera parameters for the shot.
func (s ShotType) Camera() Camera {
	return shotCameras[s]
}

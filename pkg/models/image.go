package models

import "time"

// ImageStyle is the fixed set of image style tags
type ImageStyle string

const (
	StyleInfographic ImageStyle = "infographic"
	StyleComparison  ImageStyle = "comparison"
	StyleFlow        ImageStyle = "flow"
	StyleConcept     ImageStyle = "concept"
	StyleQuote       ImageStyle = "quote"
	StyleMinimal     ImageStyle = "minimal"

	// StyleOriginal tags pass-through images taken from a source.
	StyleOriginal ImageStyle = "original"
	// StyleShared tags cross-draft links whose origin style is unknown.
	StyleShared ImageStyle = "shared"
)

// SynthesizedStyles lists the styles the image orchestrator can render, in catalogue order.
var SynthesizedStyles = []ImageStyle{
	StyleInfographic,
	StyleComparison,
	StyleFlow,
	StyleConcept,
	StyleQuote,
	StyleMinimal,
}

// DefaultImageStyles are rendered when a caller does not choose styles.
var DefaultImageStyles = []ImageStyle{StyleInfographic, StyleComparison}

// Synthesized reports whether the style can be rendered from a prompt.
func (s ImageStyle) Synthesized() bool {
	for _, st := range SynthesizedStyles {
		if s == st {
			return true
		}
	}
	return false
}

// Valid reports whether s belongs to the style enum.
func (s ImageStyle) Valid() bool {
	return s.Synthesized() || s == StyleOriginal || s == StyleShared
}

// AllowsText reports whether scene briefs for the style may contain short text labels.
func (s ImageStyle) AllowsText() bool {
	return s == StyleFlow || s == StyleInfographic || s == StyleComparison
}

// StyleInfo describes a style for the style catalogue endpoint
type StyleInfo struct {
	ID          ImageStyle `json:"id"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
}

// StyleCatalogue returns the user facing description of each synthesized style.
func StyleCatalogue() []StyleInfo {
	return []StyleInfo{
		{ID: StyleInfographic, Label: "Infographic", Description: "Data visualization, stats, charts"},
		{ID: StyleComparison, Label: "Comparison", Description: "Side-by-side, before/after, vs"},
		{ID: StyleFlow, Label: "Flow/Process", Description: "Steps, journey, progression"},
		{ID: StyleConcept, Label: "Concept", Description: "Editorial scene capturing one key moment"},
		{ID: StyleQuote, Label: "Quote Background", Description: "Typography-friendly backdrop"},
		{ID: StyleMinimal, Label: "Minimal", Description: "Clean, simple illustration"},
	}
}

// AspectRatio is an image aspect ratio such as "16:9"
type AspectRatio string

// DefaultAspectRatio is used when a requested ratio is unsupported.
const DefaultAspectRatio AspectRatio = "1:1"

var supportedAspectRatios = map[AspectRatio]bool{
	"1:1": true, "2:3": true, "3:2": true, "3:4": true, "4:3": true,
	"4:5": true, "5:4": true, "9:16": true, "16:9": true, "21:9": true,
}

// Supported reports whether the ratio is in the fixed supported set.
func (r AspectRatio) Supported() bool {
	return supportedAspectRatios[r]
}

// Normalize returns r when supported, otherwise the default ratio.
func (r AspectRatio) Normalize() AspectRatio {
	if r.Supported() {
		return r
	}
	return DefaultAspectRatio
}

// Image is a rendered, pass-through or shared image owned by a draft.
// StoragePath is unique per synthesized image and duplicated across shared links.
type Image struct {
	ID          string      `json:"id"`
	WorkspaceID string      `json:"workspace_id"`
	DraftID     string      `json:"draft_id"`
	Prompt      string      `json:"prompt"`
	Model       string      `json:"model"`
	StoragePath string      `json:"storage_path"`
	AspectRatio AspectRatio `json:"aspect_ratio"`
	Style       ImageStyle  `json:"style"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Package models defines the domain models for the content automation backend
package models

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Platform is a social network a draft is written for
type Platform string

const (
	PlatformLinkedIn Platform = "linkedin"
	PlatformX        Platform = "x"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	return p == PlatformLinkedIn || p == PlatformX
}

// FunnelStage classifies content into top, middle or bottom of the marketing funnel
type FunnelStage string

const (
	FunnelTOFU FunnelStage = "tofu"
	FunnelMOFU FunnelStage = "mofu"
	FunnelBOFU FunnelStage = "bofu"
)

// Valid reports whether s is one of tofu, mofu or bofu.
func (s FunnelStage) Valid() bool {
	return s == FunnelTOFU || s == FunnelMOFU || s == FunnelBOFU
}

// Label returns the human readable funnel description used in prompts.
func (s FunnelStage) Label() string {
	switch s {
	case FunnelTOFU:
		return "Top of Funnel – Awareness (broad reach, thought leadership)"
	case FunnelMOFU:
		return "Middle of Funnel – Consideration (how-tos, frameworks, deep dives)"
	case FunnelBOFU:
		return "Bottom of Funnel – Conversion (CTAs, offers, product mentions)"
	}
	return ""
}

// SourceType is the closed set of ingested source kinds
type SourceType string

const (
	SourceTypeLinkedInURL SourceType = "linkedin_url"
	SourceTypeYouTubeURL  SourceType = "youtube_url"
	SourceTypeBlogURL     SourceType = "blog_url"
	SourceTypeXURL        SourceType = "x_url"
	SourceTypePodcastURL  SourceType = "podcast_url"
	SourceTypeNote        SourceType = "note"
	SourceTypeFile        SourceType = "file"
)

// SourceStatus tracks a source through enrichment
type SourceStatus string

const (
	SourceStatusNew      SourceStatus = "new"
	SourceStatusEnriched SourceStatus = "enriched"
	SourceStatusUsed     SourceStatus = "used"
	SourceStatusArchived SourceStatus = "archived"
)

// Source is an ingested content item used as generation input.
// Summary and KeyPoints are only populated after enrichment.
type Source struct {
	ID           string       `json:"id"`
	WorkspaceID  string       `json:"workspace_id"`
	Type         SourceType   `json:"type"`
	URL          string       `json:"url,omitempty"`
	Title        string       `json:"title,omitempty"`
	Author       string       `json:"author,omitempty"`
	PublishedAt  *time.Time   `json:"published_at,omitempty"`
	ThumbnailURL string       `json:"thumbnail_url,omitempty"`
	RawText      string       `json:"raw_text,omitempty"`
	CleanedText  string       `json:"cleaned_text,omitempty"`
	Summary      string       `json:"summary,omitempty"`
	KeyPoints    []string     `json:"key_points,omitempty"`
	Status       SourceStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	// Synthetic marks a source built from caller supplied text; it has no persisted ID.
	Synthetic bool `json:"-"`
}

// DetectSourceType infers the source type from raw user input.
func DetectSourceType(input string) SourceType {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return SourceTypeNote
	}
	u, err := url.Parse(input)
	if err != nil {
		return SourceTypeNote
	}
	host := strings.ToLower(u.Host)
	switch {
	case strings.Contains(host, "linkedin.com"):
		return SourceTypeLinkedInURL
	case strings.Contains(host, "youtube.com"), strings.Contains(host, "youtu.be"):
		return SourceTypeYouTubeURL
	case strings.Contains(host, "twitter.com"), host == "x.com", strings.HasSuffix(host, ".x.com"):
		return SourceTypeXURL
	}
	return SourceTypeBlogURL
}

// TruncateText shortens text to at most maxLen characters including the "..." suffix,
// backing off to the last space when that keeps more than half the budget.
func TruncateText(text string, maxLen int) string {
	const suffix = "..."
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	if maxLen <= len(suffix) {
		return suffix[:maxLen]
	}
	cut := []rune(text)[:maxLen-len(suffix)]
	for i := len(cut) - 1; i > maxLen/2; i-- {
		if cut[i] == ' ' {
			cut = cut[:i]
			break
		}
	}
	return string(cut) + suffix
}

// Variant is one labeled alternative rendering of a draft
type Variant struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// Draft is one generated social media post candidate for one platform
type Draft struct {
	ID          string      `json:"id"`
	WorkspaceID string      `json:"workspace_id"`
	Platform    Platform    `json:"platform"`
	RunID       string      `json:"run_id,omitempty"`
	ContentText string      `json:"content_text"`
	Variants    []Variant   `json:"variants"`
	Hashtags    []string    `json:"hashtags"`
	SourceIDs   []string    `json:"source_ids"`
	FunnelStage FunnelStage `json:"funnel_stage,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ContextDocument is a workspace knowledge-base document addressed by a semantic key
// such as tone_of_voice, brand_guidelines or linkedin_algorithm.
type ContextDocument struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Key         string    `json:"key"`
	Title       string    `json:"title,omitempty"`
	ContentMD   string    `json:"content_md"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Well known context document keys.
const (
	DocToneOfVoice     = "tone_of_voice"
	DocBrandGuidelines = "brand_guidelines"
)

// AlgorithmDocKey returns the key of the platform algorithm notes document.
func AlgorithmDocKey(p Platform) string {
	return string(p) + "_algorithm"
}

// ExamplePost is a high-performing reference post for a platform
type ExamplePost struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Platform    Platform  `json:"platform"`
	ContentMD   string    `json:"content_md"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// PublishedPost records a draft that went live on a platform
type PublishedPost struct {
	ID          string      `json:"id"`
	WorkspaceID string      `json:"workspace_id"`
	DraftID     string      `json:"draft_id,omitempty"`
	Platform    Platform    `json:"platform"`
	FunnelStage FunnelStage `json:"funnel_stage,omitempty"`
	PublishedAt time.Time   `json:"published_at"`
}

// FunnelEntry is the projection of a draft or published post used for funnel statistics
type FunnelEntry struct {
	Platform    Platform
	FunnelStage FunnelStage
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

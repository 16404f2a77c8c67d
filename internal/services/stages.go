package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"contenthub/backend/internal/kb"
	"contenthub/backend/internal/llm"
	"contenthub/backend/internal/logging"
	"contenthub/backend/internal/prompts"
	"contenthub/backend/pkg/models"
)

const (
	maxPlannerSources   = 5
	sourceSummaryBudget = 2000
	sourceTextBudget    = 1000
	maxVariants         = 3
	xCharLimit          = 280
	threadSeparator     = "\n---\n"

	defaultTone     = "Professional and insightful"
	noExamplesText  = "No examples available"
	untitledSource  = "Untitled"
	syntheticSource = "custom"
)

// stages runs the prompt-and-parse passes shared by the generation and strategy services.
type stages struct {
	llm     llm.TextGenerator
	prompts *prompts.Set
	logger  *logging.Logger
	tracer  trace.Tracer
}

// ask renders a template, calls the model and loosely parses the JSON in its reply.
func (st *stages) ask(ctx context.Context, name string, vars prompts.Vars) (llm.Fields, error) {
	ctx, span := st.tracer.Start(ctx, "llm."+name, trace.WithAttributes(attribute.String("llm.model", st.llm.Model())))
	defer span.End()

	prompt, err := st.prompts.Render(name, vars)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	text, err := st.llm.Generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	fields := llm.ExtractJSON(text)
	if len(fields) == 0 {
		st.logger.Warn("model reply had no parseable JSON", "prompt", name, "reply_len", len(text))
	}
	return fields, nil
}

// plan runs the planner pass. A non-empty angle replaces the model's choice.
func (st *stages) plan(ctx context.Context, sources []models.Source, kctx kb.Context, platform models.Platform, angle string, stage models.FunnelStage) (models.ContentPlan, error) {
	tone := kctx.ToneOfVoice
	if strings.TrimSpace(tone) == "" {
		tone = defaultTone
	}
	vars := prompts.Vars{
		"platform":            string(platform),
		"sources":             formatSources(sources),
		"tone_of_voice":       tone,
		"brand_guidelines":    kctx.BrandGuidelines,
		"platform_guidelines": kctx.PlatformGuidelines,
	}
	if stage != "" {
		vars["funnel_stage"] = string(stage)
		vars["funnel_stage_upper"] = strings.ToUpper(string(stage))
		vars["funnel_stage_label"] = stage.Label()
	}

	f, err := st.ask(ctx, prompts.Planner, vars)
	if err != nil {
		return models.ContentPlan{}, err
	}
	plan := models.ContentPlan{
		SelectedAngle:  f.String("selected_angle"),
		FunnelStage:    strings.ToLower(strings.TrimSpace(f.String("funnel_stage"))),
		MainInsight:    f.String("main_insight"),
		KeyPoints:      f.Strings("key_points"),
		SuggestedHook:  f.String("suggested_hook"),
		CTADirection:   f.String("cta_direction"),
		SourceIDsToUse: f.Strings("source_ids_to_use"),
	}
	if a := strings.TrimSpace(angle); a != "" {
		plan.SelectedAngle = a
	}
	return plan, nil
}

// write runs the writer pass and returns at most three variants and the hashtag list.
func (st *stages) write(ctx context.Context, plan models.ContentPlan, kctx kb.Context, platform models.Platform) ([]models.Variant, []string, error) {
	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode plan: %w", err)
	}
	examples := kctx.ExamplePosts
	if strings.TrimSpace(examples) == "" {
		examples = noExamplesText
	}
	name := prompts.WriterLinkedIn
	if platform == models.PlatformX {
		name = prompts.WriterX
	}

	f, err := st.ask(ctx, name, prompts.Vars{
		"plan":             string(planJSON),
		"tone_of_voice":    kctx.ToneOfVoice,
		"brand_guidelines": kctx.BrandGuidelines,
		"example_posts":    examples,
	})
	if err != nil {
		return nil, nil, err
	}

	variants := make([]models.Variant, 0, maxVariants)
	for _, v := range f.Slice("variants") {
		content := strings.TrimSpace(v.String("content"))
		if content == "" {
			continue
		}
		if platform == models.PlatformX {
			content = clampPost(content)
		}
		variants = append(variants, models.Variant{Label: v.String("label"), Content: content})
		if len(variants) == maxVariants {
			break
		}
	}

	hashtags := make([]string, 0)
	for _, h := range f.Strings("suggested_hashtags") {
		if h = strings.TrimSpace(h); h != "" {
			hashtags = append(hashtags, h)
		}
	}
	return variants, hashtags, nil
}

// qualityCheck scores content against the rubric. Empty content yields an empty report.
func (st *stages) qualityCheck(ctx context.Context, content string, kctx kb.Context, platform models.Platform) (models.QualityReport, error) {
	if strings.TrimSpace(content) == "" {
		return models.QualityReport{}, nil
	}
	f, err := st.ask(ctx, prompts.Quality, prompts.Vars{
		"content":       content,
		"platform":      string(platform),
		"tone_of_voice": kctx.ToneOfVoice,
	})
	if err != nil {
		return models.QualityReport{}, err
	}

	report := models.QualityReport{
		TotalScore:             f.Float("total_score", 0),
		RiskFlags:              f.Strings("risk_flags"),
		ImprovementSuggestions: f.Strings("improvement_suggestions"),
	}
	if scores := f.Map("scores"); len(scores) > 0 {
		report.Scores = make(map[string]float64, len(scores))
		for k := range scores {
			report.Scores[k] = scores.Float(k, 0)
		}
	}
	return report, nil
}

// formatSources renders the planner's source list. Long texts are truncated.
func formatSources(sources []models.Source) string {
	if len(sources) > maxPlannerSources {
		sources = sources[:maxPlannerSources]
	}
	var b strings.Builder
	for _, s := range sources {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = untitledSource
		}
		fmt.Fprintf(&b, "\n---\nID: %s\nTitle: %s\n", s.ID, title)
		switch {
		case strings.TrimSpace(s.Summary) != "":
			fmt.Fprintf(&b, "Summary: %s\n", models.TruncateText(s.Summary, sourceSummaryBudget))
		case strings.TrimSpace(s.CleanedText) != "":
			fmt.Fprintf(&b, "Excerpt: %s\n", models.TruncateText(s.CleanedText, sourceTextBudget))
		}
		if len(s.KeyPoints) > 0 {
			fmt.Fprintf(&b, "Key Points: %s\n", strings.Join(s.KeyPoints, ", "))
		}
	}
	return b.String()
}

// clampPost keeps single X posts within the character limit. Threads are left alone.
func clampPost(content string) string {
	if strings.Contains(content, threadSeparator) || utf8.RuneCountInString(content) <= xCharLimit {
		return content
	}
	return models.TruncateText(content, xCharLimit)
}

// resolveFunnelStage prefers the caller's stage over the planner's; anything outside
// tofu, mofu and bofu is dropped.
func resolveFunnelStage(explicit models.FunnelStage, planned string) models.FunnelStage {
	stage := explicit
	if stage == "" {
		stage = models.FunnelStage(planned)
	}
	if !stage.Valid() {
		return ""
	}
	return stage
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/backend/internal/kb"
	"contenthub/backend/pkg/models"
)

func TestClassifyPost(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformLinkedIn, strings.Repeat("a", 3000))
	f.llm.on("classify_post", `{"funnel_stage": "BOFU", "confidence": 0.9, "reasoning": "pricing CTA"}`)

	got, err := f.strategy.ClassifyPost(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, models.FunnelBOFU, got.FunnelStage)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Equal(t, "pricing CTA", got.Reasoning)

	stored, _ := f.store.GetDraft(context.Background(), "d1")
	assert.Equal(t, models.FunnelBOFU, stored.FunnelStage)
	assert.NotContains(t, f.llm.calls("classify_post")[0], strings.Repeat("a", classifyContentBudget+1))
}

func TestClassifyPost_DefaultsToTOFU(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformX, "post")
	f.llm.on("classify_post", `{"funnel_stage": "somewhere"}`)

	got, err := f.strategy.ClassifyPost(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, models.FunnelTOFU, got.FunnelStage)
	assert.Equal(t, defaultConfidence, got.Confidence)
}

func TestClassifyPost_Errors(t *testing.T) {
	f := newFixture(t)
	_, err := f.strategy.ClassifyPost(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	f.addDraft("d1", models.PlatformX, "post")
	f.llm.failOn("classify_post", errors.New("boom"))
	_, err = f.strategy.ClassifyPost(context.Background(), "d1")
	require.Error(t, err)
	stored, _ := f.store.GetDraft(context.Background(), "d1")
	assert.Empty(t, stored.FunnelStage)

	off := NewStrategyService(f.store, kb.NewLoader(f.store, nil), nil, nil, nil)
	_, err = off.ClassifyPost(context.Background(), "d1")
	assert.ErrorIs(t, err, ErrServiceNotConfigured)
	_, err = off.ClassifyBatch(context.Background(), "ws")
	assert.ErrorIs(t, err, ErrServiceNotConfigured)
	_, err = off.Recommend(context.Background(), "ws", "")
	assert.ErrorIs(t, err, ErrServiceNotConfigured)
	_, err = off.Distribution(context.Background(), "ws", "")
	assert.NoError(t, err)
}

func TestClassifyBatch_SmallSetOneByOne(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.addDraft(fmt.Sprintf("d%d", i), models.PlatformLinkedIn, "post")
	}
	f.llm.on("classify_post", `{"funnel_stage": "mofu", "confidence": 0.7}`)

	got, err := f.strategy.ClassifyBatch(context.Background(), "ws")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Classified)
	assert.Len(t, f.llm.calls("classify_post"), 3)
	assert.Empty(t, f.llm.calls("classify_batch"))
}

func TestClassifyBatch_LargeSetSinglePrompt(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 7; i++ {
		f.addDraft(fmt.Sprintf("d%d", i), models.PlatformX, fmt.Sprintf("post %d %s", i, strings.Repeat("z", 600)))
	}
	f.addDraft("done", models.PlatformX, "post").FunnelStage = models.FunnelTOFU
	f.llm.on("classify_batch", `{"classifications": [
  {"id": "d0", "funnel_stage": "tofu", "confidence": 0.8},
  {"id": "d1", "funnel_stage": "mofu"},
  {"id": "d2", "funnel_stage": "nonsense"},
  {"id": "d1", "funnel_stage": "bofu"},
  {"id": "done", "funnel_stage": "bofu"},
  {"id": "other-workspace", "funnel_stage": "bofu"}
]}`)

	got, err := f.strategy.ClassifyBatch(context.Background(), "ws")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Classified)
	require.Len(t, got.Results, 3)
	assert.Equal(t, 0.8, got.Results[0].Confidence)
	assert.Equal(t, defaultConfidence, got.Results[1].Confidence)

	d1, _ := f.store.GetDraft(context.Background(), "d1")
	assert.Equal(t, models.FunnelMOFU, d1.FunnelStage)
	d2, _ := f.store.GetDraft(context.Background(), "d2")
	assert.Equal(t, models.FunnelTOFU, d2.FunnelStage)
	done, _ := f.store.GetDraft(context.Background(), "done")
	assert.Equal(t, models.FunnelTOFU, done.FunnelStage)

	calls := f.llm.calls("classify_batch")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "ID: d6\nPlatform: x\n")
	assert.NotContains(t, calls[0], strings.Repeat("z", batchContentBudget))
	assert.Empty(t, f.llm.calls("classify_post"))
}

func TestDistribution(t *testing.T) {
	f := newFixture(t)
	f.addDraft("a", models.PlatformX, "post").FunnelStage = models.FunnelTOFU
	f.addDraft("b", models.PlatformLinkedIn, "post").FunnelStage = models.FunnelMOFU
	f.addDraft("c", models.PlatformLinkedIn, "post")
	old := f.addDraft("old", models.PlatformLinkedIn, "post")
	old.FunnelStage = models.FunnelBOFU
	old.CreatedAt = time.Now().AddDate(0, 0, -40)
	f.store.published = append(f.store.published, models.PublishedPost{
		ID: "p1", WorkspaceID: "ws", Platform: models.PlatformX, FunnelStage: models.FunnelBOFU, PublishedAt: time.Now(),
	})

	all, err := f.strategy.Distribution(context.Background(), "ws", "")
	require.NoError(t, err)
	assert.Equal(t, PeriodAll, all.TimePeriod)
	assert.Equal(t, models.StageCounts{TOFU: 1, MOFU: 1, BOFU: 2, Unclassified: 1}, all.Total)
	require.Len(t, all.ByPlatform, 2)
	assert.Equal(t, models.PlatformLinkedIn, all.ByPlatform[0].Platform)
	assert.Equal(t, models.PlatformX, all.ByPlatform[1].Platform)
	assert.Equal(t, models.StageCounts{TOFU: 1, BOFU: 1}, all.ByPlatform[1].Counts)

	recent, err := f.strategy.Distribution(context.Background(), "ws", "30d")
	require.NoError(t, err)
	assert.Equal(t, models.StageCounts{TOFU: 1, MOFU: 1, BOFU: 1, Unclassified: 1}, recent.Total)

	_, err = f.strategy.Distribution(context.Background(), "ws", "1y")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	empty, err := f.strategy.Distribution(context.Background(), "nobody", "7d")
	require.NoError(t, err)
	assert.NotNil(t, empty.ByPlatform)
	assert.Zero(t, empty.Total.Classified())
}

func TestRecommend(t *testing.T) {
	f := newFixture(t)
	f.addDraft("a", models.PlatformX, "post").FunnelStage = models.FunnelTOFU
	f.addDraft("b", models.PlatformX, "post").FunnelStage = models.FunnelTOFU
	f.addDraft("c", models.PlatformLinkedIn, "post").FunnelStage = models.FunnelMOFU
	f.llm.on("recommend", `{
  "analysis": {"tofu_percentage": 66.7, "mofu_percentage": 33.3, "bofu_percentage": 0, "summary": "Top heavy"},
  "gaps": [{"stage": "bofu", "severity": "HIGH", "description": "No conversion posts"}, {"stage": "awareness", "severity": "low"}],
  "recommendations": [{"stage": "bofu", "content_type": "case study", "title": "Customer win"}, {"stage": "??"}],
  "post_ideas": [{"stage": "mofu", "platform": "x", "angle": "how-to", "hook": "Try this"}, {"stage": "tofu", "hook": "Did you know"}]
}`)

	rec, err := f.strategy.Recommend(context.Background(), "ws", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultPeriod, rec.Distribution.TimePeriod)
	assert.Equal(t, 66.7, rec.Analysis.TOFUPercentage)
	assert.Equal(t, defaultBalanceScore, rec.Analysis.BalanceScore)
	assert.Equal(t, "Top heavy", rec.Analysis.Summary)

	require.Len(t, rec.Gaps, 1)
	assert.Equal(t, "high", rec.Gaps[0].Severity)
	require.Len(t, rec.Recommendations, 1)
	assert.Equal(t, "linkedin", rec.Recommendations[0].Platform)
	require.Len(t, rec.PostIdeas, 2)
	assert.Equal(t, "x", rec.PostIdeas[0].Platform)
	assert.Equal(t, "linkedin", rec.PostIdeas[1].Platform)

	prompt := f.llm.calls("recommend")[0]
	assert.Contains(t, prompt, "TOFU (Awareness): 2 (67%)")
	assert.Contains(t, prompt, "LINKEDIN: TOFU=0, MOFU=1, BOFU=0 (total=1)")
	assert.Contains(t, prompt, "Not specified")
}

func TestRecommend_EmptyReplyYieldsEmptyLists(t *testing.T) {
	f := newFixture(t)
	f.llm.on("recommend", "nothing useful")

	rec, err := f.strategy.Recommend(context.Background(), "ws", "7d")
	require.NoError(t, err)
	assert.NotNil(t, rec.Gaps)
	assert.NotNil(t, rec.Recommendations)
	assert.NotNil(t, rec.PostIdeas)
	assert.Equal(t, defaultBalanceScore, rec.Analysis.BalanceScore)
	assert.Contains(t, f.llm.calls("recommend")[0], "No classified posts yet")

	_, err = f.strategy.Recommend(context.Background(), "ws", "forever")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestValidPeriod(t *testing.T) {
	for _, p := range []string{"7d", "30d", "90d", "all"} {
		assert.True(t, ValidPeriod(p), p)
	}
	assert.False(t, ValidPeriod("365d"))
	assert.False(t, ValidPeriod(""))
}

package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
)

func TestFeedbackService_IngestValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *IngestRequest
	}{
		{"nil request", nil},
		{"empty prompt", &IngestRequest{Kind: models.FeedbackError}},
		{"unknown kind", &IngestRequest{PromptID: "greeting", Kind: "vote"}},
		{"rating without value", &IngestRequest{PromptID: "greeting", Kind: models.FeedbackRating}},
		{"rating above one", &IngestRequest{PromptID: "greeting", Kind: models.FeedbackRating, Value: ptr(1.5)}},
		{"negative success rating", &IngestRequest{PromptID: "greeting", Kind: models.FeedbackSuccess, Value: ptr(-0.1)}},
		{"NaN rating", &IngestRequest{PromptID: "greeting", Kind: models.FeedbackRating, Value: ptr(math.NaN())}},
		{"infinite success rating", &IngestRequest{PromptID: "greeting", Kind: models.FeedbackSuccess, Value: ptr(math.Inf(1))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.feedback.Ingest(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	ids, err := h.store.Feedback.PromptIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "rejected feedback must not be stored")
}

func TestFeedbackService_RateResponseRejectsNaN(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.feedback.RateResponse(ctx, "greeting", math.NaN(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	for range 3 {
		_, err = h.feedback.RateResponse(ctx, "greeting", 0.1, "")
		require.NoError(t, err)
	}

	stats, err := h.feedback.Summary(ctx, "greeting", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RatedCount)
	assert.InDelta(t, 0.1, stats.MeanRating, 1e-9)
	assert.Equal(t, models.ApproachReinforcement, SelectApproach(stats, DefaultThresholds()))
}

func TestFeedbackService_IngestDefaultsTimestamp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ack, err := h.feedback.Ingest(ctx, &IngestRequest{PromptID: "greeting", Kind: models.FeedbackRating, Value: ptr(0.7)})
	require.NoError(t, err)
	assert.Equal(t, "fb_test1", ack.ID)
	assert.Equal(t, testEpoch, ack.ReceivedAt)

	records, err := h.feedback.Examples(ctx, "greeting", models.FeedbackRating, time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, testEpoch, records[0].Timestamp)
	assert.Equal(t, models.FeedbackSourceUser, records[0].Source)
}

func TestFeedbackService_Summary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.feedback.RateResponse(ctx, "search", 0.4, "")
	require.NoError(t, err)
	_, err = h.feedback.RateResponse(ctx, "search", 0.6, "fine")
	require.NoError(t, err)
	_, err = h.feedback.RecordError(ctx, "search", "timeout", "no results", "s1", nil)
	require.NoError(t, err)
	_, err = h.feedback.RecordSuccess(ctx, "search", "found it", 200*time.Millisecond, nil, "s2", nil)
	require.NoError(t, err)
	_, err = h.feedback.SuggestImprovement(ctx, "search", "rank exact matches first")
	require.NoError(t, err)

	old := testEpoch.Add(-10 * 24 * time.Hour)
	_, err = h.feedback.Ingest(ctx, &IngestRequest{PromptID: "search", Kind: models.FeedbackError, Timestamp: &old})
	require.NoError(t, err)

	stats, err := h.feedback.Summary(ctx, "search", 7*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Count, "record outside the window is excluded")
	assert.Equal(t, 2, stats.RatedCount)
	assert.InDelta(t, 0.5, stats.MeanRating, 1e-9)
	assert.Equal(t, 1, stats.ErrorCount)
	assert.InDelta(t, 0.25, stats.ErrorRate, 1e-9, "errors / (errors + successes + ratings)")
	assert.Equal(t, 1, stats.SuggestionCount)
	assert.Equal(t, 1, stats.SuccessVolume)
}

func TestFeedbackService_SummaryWithoutRatings(t *testing.T) {
	h := newHarness(t)

	stats, err := h.feedback.Summary(context.Background(), "quiet", time.Hour)
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
	assert.Equal(t, 1.0, stats.MeanRating)
	assert.Zero(t, stats.ErrorRate)
	assert.Equal(t, models.ApproachNone, SelectApproach(stats, DefaultThresholds()))
}

func TestFeedbackService_ReportIssue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.feedback.ReportIssue(ctx, "greeting", "rude", "too blunt")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.feedback.ReportIssue(ctx, "greeting", models.IssueUnclear, "too vague")
	require.NoError(t, err)

	records, err := h.feedback.Examples(ctx, "greeting", models.FeedbackRating, time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, models.IssueRating, *records[0].Value, 1e-9)
	assert.Equal(t, "unclear: too vague", records[0].Detail)
	assert.Equal(t, models.IssueUnclear, records[0].Context["issue_type"])
}

func TestFeedbackService_SuggestImprovementRequiresText(t *testing.T) {
	h := newHarness(t)

	_, err := h.feedback.SuggestImprovement(context.Background(), "greeting", "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFeedbackService_RecordSuccessKeepsContext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	callerCtx := map[string]any{"model": "small"}
	_, err := h.feedback.RecordSuccess(ctx, "greeting", "hello there", 1500*time.Millisecond, ptr(0.9), "s1", callerCtx)
	require.NoError(t, err)
	assert.Len(t, callerCtx, 1, "caller map is not mutated")

	records, err := h.feedback.Examples(ctx, "greeting", models.FeedbackSuccess, time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1500), records[0].Context["execution_time_ms"])
	assert.Equal(t, models.FeedbackSourceAutomated, records[0].Source)
	assert.InDelta(t, 0.9, records[0].Rating(0), 1e-9)
}

func TestFeedbackService_RecordSuccessDropsTrivialCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for range 5 {
		ack, err := h.feedback.RecordSuccess(ctx, "greeting", "hi", 20*time.Millisecond, nil, "", nil)
		require.NoError(t, err)
		assert.True(t, ack.Skipped)
		assert.Empty(t, ack.ID)
	}

	ack, err := h.feedback.RecordSuccess(ctx, "greeting", "hello there", 100*time.Millisecond, nil, "", nil)
	require.NoError(t, err)
	assert.False(t, ack.Skipped, "the floor itself counts")
	assert.NotEmpty(t, ack.ID)

	ack, err = h.feedback.RecordSuccess(ctx, "greeting", "hello again", 0, nil, "", nil)
	require.NoError(t, err)
	assert.False(t, ack.Skipped, "unreported execution time is kept")

	_, err = h.feedback.RecordSuccess(ctx, "", "hi", 20*time.Millisecond, nil, "", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	summary, err := h.feedback.Summary(ctx, "greeting", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SuccessVolume)
}

func TestFeedbackService_RecordSuccessWithoutFloor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := NewFeedbackService(h.store.Feedback, h.store.Versions, h.ids, h.clock,
		FeedbackConfig{Retention: time.Hour}, zaptest.NewLogger(t))

	ack, err := svc.RecordSuccess(ctx, "greeting", "hi", time.Millisecond, nil, "", nil)
	require.NoError(t, err)
	assert.False(t, ack.Skipped)

	summary, err := svc.Summary(ctx, "greeting", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessVolume)
}

func TestFeedbackService_TopExamples(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.feedback.RecordSuccess(ctx, "greeting", "good answer", time.Second, ptr(0.9), "", nil)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	_, err = h.feedback.RecordSuccess(ctx, "greeting", "weak answer", time.Second, ptr(0.2), "", nil)
	require.NoError(t, err)

	top, err := h.feedback.TopExamples(ctx, "greeting", models.FeedbackSuccess, time.Hour, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "good answer", top[0].Detail)

	_, err = h.feedback.TopExamples(ctx, "greeting", "bogus", time.Hour, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFeedbackService_Purge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	expired := testEpoch.Add(-91 * 24 * time.Hour)
	kept := testEpoch.Add(-89 * 24 * time.Hour)
	for _, ts := range []time.Time{expired, expired, kept} {
		_, err := h.feedback.Ingest(ctx, &IngestRequest{PromptID: "greeting", Kind: models.FeedbackError, Timestamp: &ts})
		require.NoError(t, err)
	}

	n, err := h.feedback.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stats, err := h.feedback.Summary(ctx, "greeting", 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestFeedbackService_KnownPrompts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.feedback.RateResponse(ctx, "search", 0.9, "")
	require.NoError(t, err)
	_, err = h.feedback.RateResponse(ctx, "greeting", 0.9, "")
	require.NoError(t, err)
	_, err = h.versions.CreateManual(ctx, "greeting", "Say hello.")
	require.NoError(t, err)
	_, err = h.versions.CreateManual(ctx, "billing", "Explain the invoice.")
	require.NoError(t, err)

	ids, err := h.feedback.KnownPrompts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "greeting", "search"}, ids)
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/ports"
)

func newMonitor(t *testing.T, h *harness) *TriggerMonitor {
	t.Helper()
	return NewTriggerMonitor(h.feedback, h.store.Runs, h.locks, h.orchestrator, h.clock,
		DefaultMonitorConfig(), zaptest.NewLogger(t))
}

func skipReasons(report *TickReport) map[string]string {
	out := make(map[string]string, len(report.Skipped))
	for _, s := range report.Skipped {
		out[s.PromptID] = s.Reason
	}
	return out
}

func TestTriggerMonitor_SearchErrorsTriggerAdversarial(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := newMonitor(t, h)

	h.seedDeployed(t, "search", "Answer search queries.")
	h.addErrors(t, "search", 30)
	h.addSuccesses(t, "search", 70)

	var captured *ports.SynthesisRequest
	h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*ports.SynthesisRequest) }).
		Return("Answer search queries. If nothing matches, say so.", nil)
	h.runner.On("Run", mock.Anything, mock.Anything).Return(metricsOf(0.85, 0.95), nil)

	report, err := m.Tick(ctx)
	require.NoError(t, err)

	require.Len(t, report.Triggered, 1)
	run := report.Triggered[0]
	assert.Equal(t, "search", run.PromptID)
	assert.Equal(t, models.ApproachAdversarial, run.Approach)
	assert.Equal(t, models.TriggerMonitor, run.Trigger)
	assert.Equal(t, 1, report.Scanned)

	require.NotNil(t, captured)
	assert.Len(t, captured.Context.ErrorExcerpts, 3, "duplicate error details are collapsed")
	assert.NotEmpty(t, captured.Context.EdgeCaseSeeds)
}

func TestTriggerMonitor_Cooldown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := newMonitor(t, h)

	h.seedDeployed(t, "greeting", "Say hello.")
	h.addSuccesses(t, "greeting", 60)

	h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).Return("", errors.New("model overloaded"))

	report, err := m.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, report.Triggered, 1)
	assert.Equal(t, models.RunOutcomeFailed, report.Triggered[0].Outcome)

	h.clock.Advance(time.Hour)
	report, err = m.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Triggered)
	assert.Equal(t, SkipCooldown, skipReasons(report)["greeting"], "failed attempts count toward cooldown")

	h.clock.Advance(24 * time.Hour)
	h.addSuccesses(t, "greeting", 60)
	report, err = m.Tick(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Triggered, 1)

	h.synthesizer.AssertNumberOfCalls(t, "Synthesize", 2)
}

func TestTriggerMonitor_SkipReasons(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := newMonitor(t, h)

	h.seedDeployed(t, "healthy", "Be helpful.")
	_, err := h.feedback.RateResponse(ctx, "healthy", 0.95, "")
	require.NoError(t, err)

	h.seedDeployed(t, "busy", "Be busy.")
	h.addErrors(t, "busy", 5)

	h.addErrors(t, "orphan", 5)

	release, ok := h.locks.TryAcquire("busy")
	require.True(t, ok)
	defer release()

	report, err := m.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Triggered)
	assert.Equal(t, map[string]string{
		"busy":    SkipAlreadyRunning,
		"healthy": SkipNoTrigger,
		"orphan":  SkipNoVersions,
	}, skipReasons(report))
	h.synthesizer.AssertNotCalled(t, "Synthesize", mock.Anything, mock.Anything)
}

func TestTriggerMonitor_FailedRunDoesNotStopScan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := newMonitor(t, h)

	for _, id := range []string{"alpha", "beta"} {
		h.seedDeployed(t, id, "Prompt "+id)
		h.addErrors(t, id, 5)
	}

	h.synthesizer.On("Synthesize", mock.Anything, mock.MatchedBy(func(r *ports.SynthesisRequest) bool { return r.PromptID == "alpha" })).
		Return("", errors.New("boom"))
	h.synthesizer.On("Synthesize", mock.Anything, mock.MatchedBy(func(r *ports.SynthesisRequest) bool { return r.PromptID == "beta" })).
		Return("Prompt beta, hardened.", nil)
	h.runner.On("Run", mock.Anything, mock.Anything).Return(metricsOf(0.85, 0.95), nil)

	report, err := m.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, report.Triggered, 2)
	assert.Equal(t, "alpha", report.Triggered[0].PromptID)
	assert.Equal(t, models.RunOutcomeFailed, report.Triggered[0].Outcome)
	assert.Equal(t, "beta", report.Triggered[1].PromptID)
	assert.Equal(t, models.RunOutcomeSucceeded, report.Triggered[1].Outcome)
}

func TestTriggerMonitor_OverlappingTickIsDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := newMonitor(t, h)

	h.seedDeployed(t, "search", "Answer search queries.")
	h.addErrors(t, "search", 5)

	started := make(chan struct{})
	unblock := make(chan struct{})
	h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-unblock
		}).
		Return("Better.", nil).Once()
	h.runner.On("Run", mock.Anything, mock.Anything).Return(metricsOf(0.85, 0.95), nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.Tick(ctx)
		assert.NoError(t, err)
	}()

	<-started
	report, err := m.Tick(ctx)
	assert.ErrorIs(t, err, domain.ErrTickInProgress)
	assert.Nil(t, report)
	assert.True(t, m.Status().Ticking)

	close(unblock)
	wg.Wait()

	status := m.Status()
	assert.False(t, status.Ticking)
	assert.Equal(t, int64(1), status.TicksCompleted)
	assert.Equal(t, int64(1), status.TicksOverlapped)
	require.NotNil(t, status.LastTick)
	assert.Len(t, status.LastTick.Triggered, 1)
}

func TestTriggerMonitor_PurgesBeforeScanning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := newMonitor(t, h)

	old := testEpoch.Add(-100 * 24 * time.Hour)
	for range 3 {
		_, err := h.feedback.Ingest(ctx, &IngestRequest{PromptID: "stale", Kind: models.FeedbackError, Timestamp: &old})
		require.NoError(t, err)
	}

	report, err := m.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Purged)
	assert.Zero(t, report.Scanned, "purged prompts are no longer known")
}

func TestTriggerMonitor_StartStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := newMonitor(t, h)

	require.NoError(t, m.Start(ctx))
	assert.ErrorIs(t, m.Start(ctx), domain.ErrInvalidState)
	assert.True(t, m.Status().Running)

	h.clock.Advance(time.Hour)
	assert.Eventually(t, func() bool {
		return m.Status().TicksCompleted == 1
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop() // no-op
	assert.False(t, m.Status().Running)

	h.clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), m.Status().TicksCompleted, "no ticks after stop")

	require.NoError(t, m.Start(ctx), "monitor can be restarted")
	m.Stop()
}

func TestTriggerMonitor_TrainNow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := newMonitor(t, h)

	h.seedDeployed(t, "greeting", "Say hello.")

	_, err := m.TrainNow(ctx, "greeting", "")
	assert.ErrorIs(t, err, domain.ErrInvalidState, "nothing calls for training yet")

	h.addErrors(t, "greeting", 10)
	h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).Return("Say hello. Never time out.", nil)
	h.runner.On("Run", mock.Anything, mock.Anything).Return(metricsOf(0.9, 0.95), nil)

	run, err := m.TrainNow(ctx, "greeting", "")
	require.NoError(t, err)
	assert.Equal(t, models.ApproachAdversarial, run.Approach)
	assert.Equal(t, models.TriggerManual, run.Trigger)

	// An explicit approach bypasses both selection and the cooldown
	run, err = m.TrainNow(ctx, "greeting", models.ApproachMetaPrompt)
	require.NoError(t, err)
	assert.Equal(t, models.ApproachMetaPrompt, run.Approach)

	_, err = m.TrainNow(ctx, " ", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

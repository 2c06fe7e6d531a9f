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

	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/ports"
)

func TestTrainingOrchestrator_GreetingFewShotDeploys(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v1 := h.seedDeployed(t, "greeting", "Say hello.")
	h.addSuccesses(t, "greeting", 60)

	stats, err := h.feedback.Summary(ctx, "greeting", 7*24*time.Hour)
	require.NoError(t, err)
	approach := SelectApproach(stats, DefaultThresholds())
	require.Equal(t, models.ApproachFewShot, approach)

	var captured *ports.SynthesisRequest
	h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*ports.SynthesisRequest) }).
		Return("Say hello warmly and use the user's name.", nil).Once()
	h.runner.On("Run", mock.Anything, versionNumbered(2)).Return(metricsOf(0.90, 0.95), nil)
	h.runner.On("Run", mock.Anything, versionNumbered(1)).Return(metricsOf(0.82, 0.95), nil)

	run, err := h.orchestrator.Run(ctx, "greeting", approach, models.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, models.RunOutcomeSucceeded, run.Outcome)
	assert.Equal(t, models.RecommendDeploy, run.Recommendation)
	assert.NotEmpty(t, run.EvaluationID)
	require.NotNil(t, run.FinishedAt)

	require.NotNil(t, captured)
	assert.Equal(t, "Say hello.", captured.BaselineText)
	assert.Equal(t, models.ApproachFewShot, captured.Approach)
	assert.Len(t, captured.Context.Examples, DefaultOrchestratorConfig().ExampleLimit)
	assert.Equal(t, "greeted user 0 warmly", captured.Context.Examples[0].Text, "equal ratings fall back to recency")

	v2, err := h.versions.Get(ctx, "greeting", 2)
	require.NoError(t, err)
	assert.Equal(t, run.ProducedVersionID, v2.ID)
	assert.Equal(t, models.VersionStatusDeployed, v2.Status)
	assert.Equal(t, v1.ID, v2.PreviousDeployedID)
	assert.Equal(t, string(models.ApproachFewShot), v2.ProducedBy)

	old, err := h.versions.Get(ctx, "greeting", 1)
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusArchived, old.Status)

	stored, err := h.store.Runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunOutcomeSucceeded, stored.Outcome)
	assert.False(t, h.locks.IsHeld("greeting"), "lock is released after the run")

	h.synthesizer.AssertExpectations(t)
	h.runner.AssertExpectations(t)
}

func TestTrainingOrchestrator_RejectedCandidateIsArchived(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDeployed(t, "greeting", "Say hello.")

	h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).Return("Say hello, whatever it takes.", nil)
	h.runner.On("Run", mock.Anything, versionNumbered(2)).Return(metricsOf(1.0, 0.85), nil)
	h.runner.On("Run", mock.Anything, versionNumbered(1)).Return(metricsOf(0.80, 0.95), nil)

	run, err := h.orchestrator.Run(ctx, "greeting", models.ApproachReinforcement, models.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, models.RunOutcomeSucceeded, run.Outcome)
	assert.Equal(t, models.RecommendReject, run.Recommendation)

	v2, err := h.versions.Get(ctx, "greeting", 2)
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusArchived, v2.Status)
	assert.Contains(t, v2.StatusReason, "safety")

	v1, err := h.versions.Get(ctx, "greeting", 1)
	require.NoError(t, err)
	assert.True(t, v1.IsDeployed())
}

func TestTrainingOrchestrator_ConcurrentRunsOnSamePrompt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDeployed(t, "greeting", "Say hello.")

	started := make(chan struct{})
	unblock := make(chan struct{})
	h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-unblock
		}).
		Return("Say hello warmly.", nil).Once()
	h.runner.On("Run", mock.Anything, mock.Anything).Return(metricsOf(0.85, 0.95), nil)

	var wg sync.WaitGroup
	var first *models.TrainingRun
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = h.orchestrator.Run(ctx, "greeting", models.ApproachFewShot, models.TriggerMonitor)
	}()

	<-started
	second, err := h.orchestrator.Run(ctx, "greeting", models.ApproachMetaPrompt, models.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)
	assert.Nil(t, second)

	status, err := h.orchestrator.Status(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting"}, status.InFlight)

	close(unblock)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, models.RecommendManualReview, first.Recommendation)

	all, err := h.versions.List(ctx, "greeting", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2, "the rejected attempt creates no version")

	runs, err := h.orchestrator.History(ctx, "greeting", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	h.synthesizer.AssertExpectations(t)
}

func TestTrainingOrchestrator_SynthesisFailures(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		err     error
		wantErr error
	}{
		{"synthesizer error", "", errors.New("model overloaded"), domain.ErrSynthesis},
		{"empty text", "", nil, domain.ErrSynthesis},
		{"deadline", "", context.DeadlineExceeded, domain.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.seedDeployed(t, "greeting", "Say hello.")

			h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).Return(tt.text, tt.err)

			run, err := h.orchestrator.Run(ctx, "greeting", models.ApproachMetaPrompt, models.TriggerManual)
			assert.ErrorIs(t, err, tt.wantErr)
			require.NotNil(t, run)
			assert.Equal(t, models.RunOutcomeFailed, run.Outcome)
			assert.NotEmpty(t, run.FailureReason)
			assert.Empty(t, run.ProducedVersionID)

			latest, err := h.store.Versions.GetLatest(ctx, "greeting")
			require.NoError(t, err)
			assert.Equal(t, 1, latest.VersionNumber, "no version is created")

			stored, err := h.store.Runs.GetLatestByPrompt(ctx, "greeting")
			require.NoError(t, err)
			assert.Equal(t, models.RunOutcomeFailed, stored.Outcome)
			h.runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
		})
	}
}

func TestTrainingOrchestrator_SynthesisTimeout(t *testing.T) {
	h := newHarness(t, withOrchestratorConfig(func(c *OrchestratorConfig) {
		c.SynthesisTimeout = 20 * time.Millisecond
	}))
	ctx := context.Background()
	h.seedDeployed(t, "greeting", "Say hello.")

	h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return("", errors.New("request aborted"))

	run, err := h.orchestrator.Run(ctx, "greeting", models.ApproachFewShot, models.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	require.NotNil(t, run)
	assert.Equal(t, models.RunOutcomeFailed, run.Outcome)
}

func TestTrainingOrchestrator_CallerCancellationDoesNotAbortRun(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.seedDeployed(t, "greeting", "Say hello.")

	h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return("Say hello warmly.", nil)
	h.runner.On("Run", mock.Anything, mock.Anything).Return(metricsOf(0.85, 0.95), nil)

	run, err := h.orchestrator.Run(ctx, "greeting", models.ApproachFewShot, models.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, models.RunOutcomeSucceeded, run.Outcome)
}

func TestTrainingOrchestrator_EvaluationFailureArchivesCandidate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDeployed(t, "greeting", "Say hello.")

	h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).Return("Say hello warmly.", nil)
	h.runner.On("Run", mock.Anything, mock.Anything).Return(nil, errors.New("suite crashed"))

	run, err := h.orchestrator.Run(ctx, "greeting", models.ApproachFewShot, models.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrEvaluation)
	require.NotNil(t, run)
	assert.Equal(t, models.RunOutcomeFailed, run.Outcome)

	v2, err := h.versions.Get(ctx, "greeting", 2)
	require.NoError(t, err)
	assert.Equal(t, run.ProducedVersionID, v2.ID)
	assert.Equal(t, models.VersionStatusArchived, v2.Status)
	assert.Equal(t, "evaluation failed", v2.StatusReason)
}

func TestTrainingOrchestrator_PriorVersionsInContext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	createVersions(t, h, "greeting", 3)
	_, err := h.versions.Deploy(ctx, "greeting", 3)
	require.NoError(t, err)

	var captured *ports.SynthesisRequest
	h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*ports.SynthesisRequest) }).
		Return("Prompt text D", nil)
	h.runner.On("Run", mock.Anything, mock.Anything).Return(metricsOf(0.85, 0.95), nil)

	_, err = h.orchestrator.Run(ctx, "greeting", models.ApproachAdversarial, models.TriggerManual)
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "Prompt text C", captured.BaselineText)
	assert.Equal(t, []string{"Prompt text B", "Prompt text A"}, captured.Context.PriorVersions)
	assert.NotEmpty(t, captured.Context.EdgeCaseSeeds)
}

func TestTrainingOrchestrator_RejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orchestrator.Run(ctx, "", models.ApproachFewShot, models.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.orchestrator.Run(ctx, "greeting", models.ApproachNone, models.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrValidation)

	run, err := h.orchestrator.Run(ctx, "greeting", models.ApproachFewShot, models.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrNotFound, "a prompt without versions has no baseline")
	assert.Nil(t, run)

	runs, err := h.orchestrator.History(ctx, "greeting", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.False(t, h.locks.IsHeld("greeting"))
}

func TestTrainingOrchestrator_ParallelismCeiling(t *testing.T) {
	h := newHarness(t, withOrchestratorConfig(func(c *OrchestratorConfig) {
		c.MaxParallelTrainings = 1
	}))
	ctx := context.Background()
	h.seedDeployed(t, "greeting", "Say hello.")
	h.seedDeployed(t, "search", "Find things.")

	started := make(chan string, 2)
	unblock := make(chan struct{})
	h.synthesizer.On("Synthesize", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			started <- args.Get(1).(*ports.SynthesisRequest).PromptID
			<-unblock
		}).
		Return("Better text.", nil)
	h.runner.On("Run", mock.Anything, mock.Anything).Return(metricsOf(0.85, 0.95), nil)

	var wg sync.WaitGroup
	for _, id := range []string{"greeting", "search"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.orchestrator.Run(ctx, id, models.ApproachFewShot, models.TriggerMonitor)
			assert.NoError(t, err)
		}()
	}

	<-started
	select {
	case id := <-started:
		t.Fatalf("second run for %s started while the only slot was taken", id)
	case <-time.After(30 * time.Millisecond):
	}

	close(unblock)
	wg.Wait()
	h.synthesizer.AssertNumberOfCalls(t, "Synthesize", 2)
}

package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/longregen/promptforge/internal/adapters/clock"
	"github.com/longregen/promptforge/internal/adapters/memory"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/ports"
)

// Shared mock implementations for testing

type mockIDGenerator struct {
	feedbackCounter   atomic.Int64
	versionCounter    atomic.Int64
	runCounter        atomic.Int64
	evaluationCounter atomic.Int64
}

func (m *mockIDGenerator) GenerateFeedbackID() string {
	return fmt.Sprintf("fb_test%d", m.feedbackCounter.Add(1))
}

func (m *mockIDGenerator) GeneratePromptVersionID() string {
	return fmt.Sprintf("pv_test%d", m.versionCounter.Add(1))
}

func (m *mockIDGenerator) GenerateTrainingRunID() string {
	return fmt.Sprintf("tr_test%d", m.runCounter.Add(1))
}

func (m *mockIDGenerator) GenerateEvaluationID() string {
	return fmt.Sprintf("ev_test%d", m.evaluationCounter.Add(1))
}

// MockSynthesizer is a mock implementation of ports.Synthesizer
type MockSynthesizer struct {
	mock.Mock
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, req *ports.SynthesisRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockTestRunner is a mock implementation of ports.TestRunner
type MockTestRunner struct {
	mock.Mock
}

func (m *MockTestRunner) Run(ctx context.Context, version *models.PromptVersion) (*models.Metrics, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Metrics), args.Error(1)
}

// versionNumbered matches a prompt version by number
func versionNumbered(n int) any {
	return mock.MatchedBy(func(v *models.PromptVersion) bool { return v.VersionNumber == n })
}

func ptr[T any](v T) *T { return &v }

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// harness wires the services over the in-memory store and a fake clock
type harness struct {
	store        *memory.Store
	clock        *clock.Fake
	ids          *mockIDGenerator
	locks        *PromptLocks
	feedback     *FeedbackService
	versions     *VersionService
	evaluator    *Evaluator
	gate         *DeploymentGate
	orchestrator *TrainingOrchestrator
	synthesizer  *MockSynthesizer
	runner       *MockTestRunner
}

type harnessOptions struct {
	autoDeploy   bool
	orchestrator OrchestratorConfig
}

func newHarness(t *testing.T, opts ...func(*harnessOptions)) *harness {
	t.Helper()

	o := harnessOptions{autoDeploy: true, orchestrator: DefaultOrchestratorConfig()}
	for _, fn := range opts {
		fn(&o)
	}

	logger := zaptest.NewLogger(t)
	h := &harness{
		store:       memory.NewStore(),
		clock:       clock.NewFake(testEpoch),
		ids:         &mockIDGenerator{},
		locks:       NewPromptLocks(),
		synthesizer: &MockSynthesizer{},
		runner:      &MockTestRunner{},
	}

	h.feedback = NewFeedbackService(h.store.Feedback, h.store.Versions, h.ids, h.clock, DefaultFeedbackConfig(), logger)
	h.versions = NewVersionService(h.store.Versions, h.store.Tx, h.locks, h.ids, h.clock,
		VersionConfig{DeployRetryDelay: 10 * time.Millisecond, PageSize: 2}, logger)
	h.evaluator = NewEvaluator(h.runner, h.store.Evaluations, h.versions, h.ids, h.clock, DefaultEvaluatorConfig(), logger)
	h.gate = NewDeploymentGate(h.versions, o.autoDeploy, logger)
	h.orchestrator = NewTrainingOrchestrator(h.locks, h.store.Runs, h.feedback, h.versions,
		h.synthesizer, h.evaluator, h.gate, h.ids, h.clock, o.orchestrator, logger)
	return h
}

func withAutoDeploy(on bool) func(*harnessOptions) {
	return func(o *harnessOptions) { o.autoDeploy = on }
}

func withOrchestratorConfig(fn func(*OrchestratorConfig)) func(*harnessOptions) {
	return func(o *harnessOptions) { fn(&o.orchestrator) }
}

// seedDeployed creates a manual version and deploys it
func (h *harness) seedDeployed(t *testing.T, promptID, text string) *models.PromptVersion {
	t.Helper()
	ctx := context.Background()
	v, err := h.versions.CreateManual(ctx, promptID, text)
	require.NoError(t, err)
	deployed, err := h.versions.Deploy(ctx, promptID, v.VersionNumber)
	require.NoError(t, err)
	return deployed
}

// addSuccesses records n rated successes spaced a minute apart
func (h *harness) addSuccesses(t *testing.T, promptID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := range n {
		ts := h.clock.Now().Add(-time.Duration(i) * time.Minute)
		_, err := h.feedback.Ingest(ctx, &IngestRequest{
			PromptID:  promptID,
			Kind:      models.FeedbackSuccess,
			Value:     ptr(0.8),
			Detail:    fmt.Sprintf("greeted user %d warmly", i),
			Timestamp: &ts,
		})
		require.NoError(t, err)
	}
}

// addErrors records n errors spaced a minute apart
func (h *harness) addErrors(t *testing.T, promptID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := range n {
		ts := h.clock.Now().Add(-time.Duration(i) * time.Minute)
		_, err := h.feedback.Ingest(ctx, &IngestRequest{
			PromptID:  promptID,
			Kind:      models.FeedbackError,
			Detail:    fmt.Sprintf("timeout: query %d returned nothing", i%3),
			Timestamp: &ts,
		})
		require.NoError(t, err)
	}
}

func metricsOf(success, safety float64) *models.Metrics {
	return &models.Metrics{
		SuccessRate: success,
		LatencyP50:  120,
		LatencyP95:  480,
		Coherence:   0.9,
		Relevance:   0.9,
		Safety:      safety,
	}
}

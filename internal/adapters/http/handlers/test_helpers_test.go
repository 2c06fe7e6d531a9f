package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/longregen/promptforge/internal/adapters/clock"
	"github.com/longregen/promptforge/internal/adapters/id"
	"github.com/longregen/promptforge/internal/adapters/memory"
	"github.com/longregen/promptforge/internal/application/services"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/ports"
)

// setURLParam adds a URL parameter to the request context (chi router style)
func setURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

type stubSynthesizer struct {
	text string
	err  error
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, req *ports.SynthesisRequest) (string, error) {
	return s.text, s.err
}

// stubRunner scores the first version of a prompt lower than any later one
type stubRunner struct {
	err error
}

func (s *stubRunner) Run(ctx context.Context, version *models.PromptVersion) (*models.Metrics, error) {
	if s.err != nil {
		return nil, s.err
	}
	success := 0.95
	if version.VersionNumber == 1 {
		success = 0.7
	}
	return &models.Metrics{
		SuccessRate: success, LatencyP50: 100, LatencyP95: 400, Coherence: 0.9, Relevance: 0.9, Safety: 0.99,
	}, nil
}

// testStack wires the real services over the in-memory store
type testStack struct {
	clock        *clock.Fake
	feedback     *services.FeedbackService
	versions     *services.VersionService
	exports      *services.ExportService
	orchestrator *services.TrainingOrchestrator
	monitor      *services.TriggerMonitor
	synthesizer  *stubSynthesizer
	runner       *stubRunner
	router       chi.Router
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	ids := id.New()
	locks := services.NewPromptLocks()

	s := &testStack{
		clock:       clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		synthesizer: &stubSynthesizer{text: "Say hello warmly."},
		runner:      &stubRunner{},
	}

	s.feedback = services.NewFeedbackService(store.Feedback, store.Versions, ids, s.clock, services.DefaultFeedbackConfig(), logger)
	s.versions = services.NewVersionService(store.Versions, store.Tx, locks, ids, s.clock,
		services.VersionConfig{DeployRetryDelay: 10 * time.Millisecond}, logger)
	evaluator := services.NewEvaluator(s.runner, store.Evaluations, s.versions, ids, s.clock,
		services.DefaultEvaluatorConfig(), logger)
	gate := services.NewDeploymentGate(s.versions, true, logger)
	s.orchestrator = services.NewTrainingOrchestrator(locks, store.Runs, s.feedback, s.versions,
		s.synthesizer, evaluator, gate, ids, s.clock, services.DefaultOrchestratorConfig(), logger)
	s.monitor = services.NewTriggerMonitor(s.feedback, store.Runs, locks, s.orchestrator, s.clock,
		services.DefaultMonitorConfig(), logger)

	s.exports = services.NewExportService(s.versions, services.DefaultExportCacheConfig(), logger)

	feedback := NewFeedbackHandler(s.feedback, 7*24*time.Hour, logger)
	prompts := NewPromptHandler(s.versions, s.exports, logger)
	training := NewTrainingHandler(s.orchestrator, s.monitor, logger)

	r := chi.NewRouter()
	r.Route("/prompts/{id}", func(r chi.Router) {
		r.Get("/", prompts.Show)
		r.Get("/versions", prompts.ListVersions)
		r.Post("/versions", prompts.CreateVersion)
		r.Post("/versions/{number}/deploy", prompts.Deploy)
		r.Post("/rollback", prompts.Rollback)
		r.Get("/export", prompts.Export)
		r.Get("/summary", feedback.Summary)
		r.Post("/feedback", feedback.Ingest)
		r.Post("/feedback/rate", feedback.Rate)
		r.Post("/feedback/suggest", feedback.Suggest)
		r.Post("/feedback/issue", feedback.Issue)
		r.Post("/feedback/error", feedback.Error)
		r.Post("/feedback/success", feedback.Success)
		r.Post("/train", training.Train)
		r.Get("/training", training.History)
	})
	r.Get("/prompts", prompts.List)
	r.Get("/training/status", training.Status)
	r.Post("/training/tick", training.Tick)
	r.Post("/training/start", training.Start)
	r.Post("/training/stop", training.Stop)
	s.router = r

	t.Cleanup(s.monitor.Stop)
	return s
}

// do sends a request through the stack's router and returns the recorder
func (s *testStack) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

// seedDeployed creates and deploys a manual version
func (s *testStack) seedDeployed(t *testing.T, promptID, text string) *models.PromptVersion {
	t.Helper()
	ctx := context.Background()
	v, err := s.versions.CreateManual(ctx, promptID, text)
	require.NoError(t, err)
	deployed, err := s.versions.Deploy(ctx, promptID, v.VersionNumber)
	require.NoError(t, err)
	return deployed
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

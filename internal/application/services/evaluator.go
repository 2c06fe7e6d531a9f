package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/longregen/promptforge/internal/adapters/metrics"
	"github.com/longregen/promptforge/internal/adapters/tracing"
	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/logging"
	"github.com/longregen/promptforge/internal/ports"
)

// EvaluatorConfig holds the recommendation policy
type EvaluatorConfig struct {
	SafetyFloor          float64
	SuccessFloor         float64
	ImprovementThreshold float64
	// RegressionTolerance is how far coherence, relevance or safety may drop
	// below the baseline before a deploy recommendation is withheld
	RegressionTolerance float64
}

// DefaultEvaluatorConfig returns the default recommendation policy
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		SafetyFloor:          0.90,
		SuccessFloor:         0.80,
		ImprovementThreshold: 0.05,
		RegressionTolerance:  0.02,
	}
}

// floatSlack absorbs float rounding in threshold comparisons such as 0.90-0.85
const floatSlack = 1e-9

// Recommend applies the recommendation rules in order: safety floor, success
// floor, improvement without regression, otherwise manual review.
func Recommend(candidate, baseline models.Metrics, cfg EvaluatorConfig) (models.Recommendation, string) {
	delta := candidate.Sub(baseline)

	if candidate.Safety < cfg.SafetyFloor {
		return models.RecommendReject, fmt.Sprintf("safety %.2f below floor %.2f", candidate.Safety, cfg.SafetyFloor)
	}
	if candidate.SuccessRate < cfg.SuccessFloor {
		return models.RecommendReject, fmt.Sprintf("success rate %.2f below floor %.2f", candidate.SuccessRate, cfg.SuccessFloor)
	}

	var regressions []string
	for name, d := range map[string]float64{
		"coherence": delta.Coherence,
		"relevance": delta.Relevance,
		"safety":    delta.Safety,
	} {
		if d < -cfg.RegressionTolerance-floatSlack {
			regressions = append(regressions, name)
		}
	}

	if delta.SuccessRate+floatSlack >= cfg.ImprovementThreshold {
		if len(regressions) == 0 {
			return models.RecommendDeploy, fmt.Sprintf("success rate improved by %.2f", delta.SuccessRate)
		}
		return models.RecommendManualReview, fmt.Sprintf("success rate improved by %.2f but %d metric(s) regressed", delta.SuccessRate, len(regressions))
	}
	return models.RecommendManualReview, fmt.Sprintf("success rate change %.2f below improvement threshold %.2f", delta.SuccessRate, cfg.ImprovementThreshold)
}

// Evaluator compares a candidate version with its baseline through the test runner
type Evaluator struct {
	runner      ports.TestRunner
	repo        ports.EvaluationRepository
	versions    *VersionService
	idGenerator ports.IDGenerator
	clock       ports.Clock
	config      EvaluatorConfig
	logger      *zap.Logger
}

// NewEvaluator creates a new evaluator
func NewEvaluator(
	runner ports.TestRunner,
	repo ports.EvaluationRepository,
	versions *VersionService,
	idGenerator ports.IDGenerator,
	clock ports.Clock,
	config EvaluatorConfig,
	logger *zap.Logger,
) *Evaluator {
	return &Evaluator{
		runner:      runner,
		repo:        repo,
		versions:    versions,
		idGenerator: idGenerator,
		clock:       clock,
		config:      config,
		logger:      logging.OrNop(logger),
	}
}

// Evaluate runs the test suite for both versions, records the result and marks
// the candidate evaluated. A nil baseline compares against zero metrics.
func (e *Evaluator) Evaluate(ctx context.Context, candidate, baseline *models.PromptVersion) (*models.EvaluationResult, error) {
	if candidate == nil {
		return nil, domain.Validation("candidate version is required")
	}

	candMetrics, err := e.run(ctx, candidate)
	if err != nil {
		return nil, err
	}

	var baseMetrics models.Metrics
	baselineID := ""
	if baseline != nil {
		m, err := e.run(ctx, baseline)
		if err != nil {
			return nil, err
		}
		baseMetrics = m
		baselineID = baseline.ID
	}

	result := models.NewEvaluationResult(e.idGenerator.GenerateEvaluationID(), candidate, baselineID, candMetrics, baseMetrics, e.clock.Now())
	result.Recommendation, result.Reason = Recommend(candMetrics, baseMetrics, e.config)

	if err := e.repo.Create(ctx, result); err != nil {
		return nil, domain.NewDomainError(err, "failed to store evaluation result")
	}
	if err := e.versions.MarkEvaluated(ctx, candidate); err != nil {
		return nil, err
	}

	metrics.EvaluationsTotal.WithLabelValues(string(result.Recommendation)).Inc()
	e.logger.Info("evaluated candidate",
		zap.String("prompt_id", candidate.PromptID),
		zap.Int("version", candidate.VersionNumber),
		zap.String("recommendation", string(result.Recommendation)),
		zap.String("reason", result.Reason),
		zap.Float64("success_rate", candMetrics.SuccessRate),
		zap.Float64("baseline_success_rate", baseMetrics.SuccessRate),
		zap.Float64("safety", candMetrics.Safety))

	return result, nil
}

// Result returns the stored evaluation for a version
func (e *Evaluator) Result(ctx context.Context, versionID string) (*models.EvaluationResult, error) {
	result, err := e.repo.GetByVersion(ctx, versionID)
	if err != nil {
		return nil, wrapRepoError(err, "evaluation of version "+versionID)
	}
	return result, nil
}

func (e *Evaluator) run(ctx context.Context, version *models.PromptVersion) (models.Metrics, error) {
	ctx, span := tracing.Start(ctx, "testrunner.run",
		attribute.String("prompt_id", version.PromptID),
		attribute.Int("version", version.VersionNumber))

	start := e.clock.Now()
	m, err := e.runner.Run(ctx, version)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CollaboratorRequestDuration.WithLabelValues("testrunner", status).Observe(e.clock.Now().Sub(start).Seconds())
	tracing.End(span, err)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.Metrics{}, domain.NewDomainError(domain.ErrTimeout,
				fmt.Sprintf("test runner timed out for version %d: %v", version.VersionNumber, err))
		}
		return models.Metrics{}, domain.NewDomainError(domain.ErrEvaluation,
			fmt.Sprintf("test runner failed for version %d: %v", version.VersionNumber, err))
	}
	if m == nil {
		return models.Metrics{}, domain.NewDomainError(domain.ErrEvaluation, "test runner returned no metrics")
	}
	return *m, nil
}

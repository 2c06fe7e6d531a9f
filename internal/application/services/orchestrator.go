package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/longregen/promptforge/internal/adapters/metrics"
	"github.com/longregen/promptforge/internal/adapters/tracing"
	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/logging"
	"github.com/longregen/promptforge/internal/ports"
)

// OrchestratorConfig bounds training runs
type OrchestratorConfig struct {
	MaxParallelTrainings int
	SynthesisTimeout     time.Duration
	EvaluationTimeout    time.Duration
	FeedbackWindow       time.Duration
	ExampleLimit         int
	PriorVersionLimit    int
	RatingCutoff         float64
}

// DefaultOrchestratorConfig returns the default training bounds
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxParallelTrainings: 4,
		SynthesisTimeout:     120 * time.Second,
		EvaluationTimeout:    300 * time.Second,
		FeedbackWindow:       7 * 24 * time.Hour,
		ExampleLimit:         20,
		PriorVersionLimit:    3,
		RatingCutoff:         0.60,
	}
}

// Trainer launches one training attempt for a prompt
type Trainer interface {
	Run(ctx context.Context, promptID string, approach models.Approach, trigger string) (*models.TrainingRun, error)
}

// TrainingStatus is a snapshot of training activity
type TrainingStatus struct {
	InFlight []string              `json:"in_flight"`
	Recent   []*models.TrainingRun `json:"recent"`
}

// TrainingOrchestrator executes training runs: context assembly, synthesis,
// evaluation and the deployment gate, all under the prompt lock.
type TrainingOrchestrator struct {
	locks       *PromptLocks
	slots       *semaphore.Weighted
	runs        ports.TrainingRunRepository
	feedback    FeedbackSource
	versions    *VersionService
	synthesizer ports.Synthesizer
	evaluator   *Evaluator
	gate        *DeploymentGate
	assemblers  map[models.Approach]ContextAssembler
	idGenerator ports.IDGenerator
	clock       ports.Clock
	config      OrchestratorConfig
	logger      *zap.Logger
}

// NewTrainingOrchestrator creates a new training orchestrator
func NewTrainingOrchestrator(
	locks *PromptLocks,
	runs ports.TrainingRunRepository,
	feedback FeedbackSource,
	versions *VersionService,
	synthesizer ports.Synthesizer,
	evaluator *Evaluator,
	gate *DeploymentGate,
	idGenerator ports.IDGenerator,
	clock ports.Clock,
	config OrchestratorConfig,
	logger *zap.Logger,
) *TrainingOrchestrator {
	if config.MaxParallelTrainings < 1 {
		config.MaxParallelTrainings = 1
	}
	if config.ExampleLimit < 1 {
		config.ExampleLimit = DefaultOrchestratorConfig().ExampleLimit
	}
	return &TrainingOrchestrator{
		locks:       locks,
		slots:       semaphore.NewWeighted(int64(config.MaxParallelTrainings)),
		runs:        runs,
		feedback:    feedback,
		versions:    versions,
		synthesizer: synthesizer,
		evaluator:   evaluator,
		gate:        gate,
		assemblers:  DefaultAssemblers(),
		idGenerator: idGenerator,
		clock:       clock,
		config:      config,
		logger:      logging.OrNop(logger),
	}
}

// Run executes one training attempt. It fails fast with ErrAlreadyRunning when
// the prompt is locked. Once the run is recorded, a synthesis or evaluation
// failure finishes it as failed and is returned alongside the run; failures are
// never retried.
func (o *TrainingOrchestrator) Run(ctx context.Context, promptID string, approach models.Approach, trigger string) (*models.TrainingRun, error) {
	if err := ValidatePromptID(promptID); err != nil {
		return nil, err
	}
	if err := ValidateApproach(approach); err != nil {
		return nil, err
	}
	assemble, ok := o.assemblers[approach]
	if !ok {
		return nil, domain.Validation(fmt.Sprintf("no context assembler for approach %q", approach))
	}

	release, ok := o.locks.TryAcquire(promptID)
	if !ok {
		return nil, domain.NewDomainError(domain.ErrAlreadyRunning,
			fmt.Sprintf("training already in flight for prompt %s", promptID))
	}
	defer release()

	if err := o.slots.Acquire(ctx, 1); err != nil {
		return nil, domain.NewDomainError(err, "waiting for a training slot")
	}
	defer o.slots.Release(1)

	// Only collaborator timeouts end a run once it has started
	ctx = context.WithoutCancel(ctx)

	baseline, err := o.versions.Baseline(ctx, promptID)
	if err != nil {
		return nil, err
	}

	run := models.NewTrainingRun(o.idGenerator.GenerateTrainingRunID(), promptID, approach, trigger, o.clock.Now())
	if err := o.runs.Create(ctx, run); err != nil {
		return nil, domain.NewDomainError(err, "failed to record training run")
	}

	metrics.TrainingRunsInFlight.Inc()
	defer metrics.TrainingRunsInFlight.Dec()

	log := o.logger.With(
		zap.String("run_id", run.ID),
		zap.String("prompt_id", promptID),
		zap.String("approach", string(approach)),
		zap.String("trigger", trigger))
	log.Info("training run started", zap.Int("baseline_version", baseline.VersionNumber))

	runErr := o.execute(ctx, run, baseline, assemble, log)
	if runErr != nil {
		run.MarkFailed(runErr.Error(), o.clock.Now())
		log.Warn("training run failed", zap.Error(runErr))
	} else {
		run.MarkSucceeded(o.clock.Now())
		log.Info("training run finished",
			zap.String("version_id", run.ProducedVersionID),
			zap.String("recommendation", string(run.Recommendation)))
	}

	if err := o.runs.Update(ctx, run); err != nil {
		log.Error("failed to record training run outcome", zap.Error(err))
		if runErr == nil {
			runErr = domain.NewDomainError(err, "failed to record training run outcome")
		}
	}

	metrics.TrainingRunsTotal.WithLabelValues(string(approach), string(run.Outcome)).Inc()
	metrics.TrainingRunDuration.WithLabelValues(string(approach)).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())

	return run, runErr
}

func (o *TrainingOrchestrator) execute(
	ctx context.Context,
	run *models.TrainingRun,
	baseline *models.PromptVersion,
	assemble ContextAssembler,
	log *zap.Logger,
) error {
	bundle, err := assemble(ctx, o.feedback, run.PromptID, AssemblyOptions{
		Window:       o.config.FeedbackWindow,
		Limit:        o.config.ExampleLimit,
		RatingCutoff: o.config.RatingCutoff,
	})
	if err != nil {
		return domain.NewDomainError(err, "failed to assemble training context")
	}
	bundle.PriorVersions, err = o.priorTexts(ctx, run.PromptID, baseline.ID)
	if err != nil {
		return err
	}
	log.Debug("assembled training context", zap.Int("evidence", bundle.Size()))

	text, err := o.synthesize(ctx, &ports.SynthesisRequest{
		PromptID:     run.PromptID,
		BaselineText: baseline.Text,
		Approach:     run.Approach,
		Context:      bundle,
	})
	if err != nil {
		return err
	}

	candidate, err := o.versions.CreateDraft(ctx, run.PromptID, text, string(run.Approach))
	if err != nil {
		return err
	}
	run.ProducedVersionID = candidate.ID

	evalCtx, cancel := context.WithTimeout(ctx, o.config.EvaluationTimeout)
	result, err := o.evaluator.Evaluate(evalCtx, candidate, baseline)
	cancel()
	if err != nil {
		if archiveErr := o.versions.ArchiveHeld(ctx, candidate, "evaluation failed"); archiveErr != nil {
			log.Warn("failed to archive unevaluated candidate", zap.Error(archiveErr))
		}
		return err
	}
	run.EvaluationID = result.ID
	run.Recommendation = result.Recommendation

	decision, err := o.gate.Apply(ctx, result, candidate)
	if err != nil {
		return err
	}
	log.Info("deployment gate applied",
		zap.String("action", string(decision.Action)),
		zap.Int("version", candidate.VersionNumber))
	return nil
}

// synthesize calls the synthesizer under SynthesisTimeout
func (o *TrainingOrchestrator) synthesize(ctx context.Context, req *ports.SynthesisRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.SynthesisTimeout)
	defer cancel()

	ctx, span := tracing.Start(ctx, "synthesizer.synthesize",
		attribute.String("prompt_id", req.PromptID),
		attribute.String("approach", string(req.Approach)))

	start := o.clock.Now()
	text, err := o.synthesizer.Synthesize(ctx, req)
	if err == nil && text == "" {
		err = errors.New("synthesizer returned empty text")
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CollaboratorRequestDuration.WithLabelValues("synthesizer", status).Observe(o.clock.Now().Sub(start).Seconds())
	tracing.End(span, err)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", domain.NewDomainError(domain.ErrTimeout,
				fmt.Sprintf("synthesis exceeded %s", o.config.SynthesisTimeout))
		}
		return "", domain.NewDomainError(domain.ErrSynthesis, err.Error())
	}
	return text, nil
}

// priorTexts returns up to PriorVersionLimit earlier version texts, newest first,
// excluding the baseline
func (o *TrainingOrchestrator) priorTexts(ctx context.Context, promptID, baselineID string) ([]string, error) {
	var texts []string
	for v, err := range o.versions.History(ctx, promptID) {
		if err != nil {
			return nil, err
		}
		if len(texts) >= o.config.PriorVersionLimit {
			break
		}
		if v.ID == baselineID {
			continue
		}
		texts = append(texts, v.Text)
	}
	return texts, nil
}

// History returns the training runs of a prompt, newest first
func (o *TrainingOrchestrator) History(ctx context.Context, promptID string, limit int) ([]*models.TrainingRun, error) {
	if err := ValidatePromptID(promptID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	runs, err := o.runs.ListByPrompt(ctx, promptID, limit)
	if err != nil {
		return nil, domain.NewDomainError(err, "failed to list training runs")
	}
	return runs, nil
}

// Status returns the prompts currently locked and the most recent runs
func (o *TrainingOrchestrator) Status(ctx context.Context, limit int) (*TrainingStatus, error) {
	if limit <= 0 {
		limit = 20
	}
	recent, err := o.runs.ListRecent(ctx, limit)
	if err != nil {
		return nil, domain.NewDomainError(err, "failed to list training runs")
	}
	return &TrainingStatus{
		InFlight: o.locks.Held(),
		Recent:   recent,
	}, nil
}

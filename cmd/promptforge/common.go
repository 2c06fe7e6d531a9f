package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/longregen/promptforge/internal/adapters/circuitbreaker"
	"github.com/longregen/promptforge/internal/adapters/clock"
	"github.com/longregen/promptforge/internal/adapters/id"
	"github.com/longregen/promptforge/internal/adapters/llm"
	"github.com/longregen/promptforge/internal/adapters/memory"
	"github.com/longregen/promptforge/internal/adapters/postgres"
	"github.com/longregen/promptforge/internal/adapters/synthesizer"
	"github.com/longregen/promptforge/internal/adapters/testrunner"
	"github.com/longregen/promptforge/internal/application/services"
	"github.com/longregen/promptforge/internal/config"
	"github.com/longregen/promptforge/internal/ports"
)

// Version information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// Shared global variables
var (
	cfgPath string
	cfg     *config.Config
	logger  *zap.Logger
)

// store is the repository set chosen by configuration
type store struct {
	feedback    ports.FeedbackRepository
	versions    ports.PromptVersionRepository
	runs        ports.TrainingRunRepository
	evaluations ports.EvaluationRepository
	tx          ports.TransactionManager
	pool        *pgxpool.Pool
}

func (s *store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// app holds the wired services shared by serve and the control commands
type app struct {
	store        *store
	feedback     *services.FeedbackService
	versions     *services.VersionService
	exports      *services.ExportService
	orchestrator *services.TrainingOrchestrator
	monitor      *services.TriggerMonitor
}

func (a *app) Close() {
	a.monitor.Stop()
	a.store.Close()
}

// initDB initializes a database connection pool and applies the schema
func initDB(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Force UTC timezone to prevent timezone-related issues with TIMESTAMP columns
	poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"
	if cfg.Tracing.Enabled {
		poolConfig.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName())
	}
	if cfg.Database.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// openStore selects postgres when a URL is configured and memory otherwise
func openStore(ctx context.Context) (*store, error) {
	if !cfg.UsesPostgres() {
		logger.Warn("no postgres_url configured, using in-memory storage")
		mem := memory.NewStore()
		return &store{
			feedback:    mem.Feedback,
			versions:    mem.Versions,
			runs:        mem.Runs,
			evaluations: mem.Evaluations,
			tx:          mem.Tx,
		}, nil
	}

	pool, err := initDB(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("database connection established")

	return &store{
		feedback:    postgres.NewFeedbackRepository(pool),
		versions:    postgres.NewPromptVersionRepository(pool),
		runs:        postgres.NewTrainingRunRepository(pool),
		evaluations: postgres.NewEvaluationRepository(pool),
		tx:          postgres.NewTransactionManager(pool),
		pool:        pool,
	}, nil
}

// newApp wires every service from configuration
func newApp(ctx context.Context) (*app, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	ids := id.New()
	clk := clock.New()
	locks := services.NewPromptLocks()
	t := cfg.Training

	llmClient := llm.NewClient(cfg.LLM.URL, cfg.LLM.APIKey,
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
	)
	synth := synthesizer.NewLLMSynthesizer(llmClient, logger.Named("synthesizer"))

	runnerLogger := logger.Named("testrunner")
	breaker := circuitbreaker.New(cfg.TestRunner.MaxFailures, cfg.TestRunner.BreakerTimeout,
		circuitbreaker.OnStateChange(func(from, to circuitbreaker.State) {
			runnerLogger.Warn("test runner circuit changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}))
	runner := testrunner.NewClient(cfg.TestRunner.URL, cfg.TestRunner.APIKey, runnerLogger,
		testrunner.WithBreaker(breaker))

	feedback := services.NewFeedbackService(st.feedback, st.versions, ids, clk, services.FeedbackConfig{
		Retention:        t.Retention(),
		MinExecutionTime: t.MinExecutionTime,
	}, logger.Named("feedback"))
	versions := services.NewVersionService(st.versions, st.tx, locks, ids, clk,
		services.DefaultVersionConfig(), logger.Named("versions"))

	evaluator := services.NewEvaluator(runner, st.evaluations, versions, ids, clk, services.EvaluatorConfig{
		SafetyFloor:          t.SafetyFloor,
		SuccessFloor:         t.SuccessFloor,
		ImprovementThreshold: t.ImprovementThreshold,
		RegressionTolerance:  t.RegressionTolerance,
	}, logger.Named("evaluator"))
	gate := services.NewDeploymentGate(versions, t.AutoDeploy, logger.Named("gate"))

	orchestratorConfig := services.DefaultOrchestratorConfig()
	orchestratorConfig.MaxParallelTrainings = t.MaxParallelTrainings
	orchestratorConfig.SynthesisTimeout = t.SynthesisTimeout
	orchestratorConfig.EvaluationTimeout = t.EvaluationTimeout
	orchestratorConfig.FeedbackWindow = t.FeedbackWindow
	orchestrator := services.NewTrainingOrchestrator(locks, st.runs, feedback, versions, synth, evaluator, gate,
		ids, clk, orchestratorConfig, logger.Named("orchestrator"))

	monitor := services.NewTriggerMonitor(feedback, st.runs, locks, orchestrator, clk, services.MonitorConfig{
		Interval:            t.MonitorInterval(),
		MinTrainingInterval: t.MinTrainingInterval,
		FeedbackWindow:      t.FeedbackWindow,
		Thresholds:          thresholds(),
	}, logger.Named("monitor"))

	exports := services.NewExportService(versions, services.ExportCacheConfig{
		Size: cfg.Export.CacheSize,
		TTL:  cfg.Export.CacheTTL,
	}, logger.Named("export"))

	return &app{
		store:        st,
		feedback:     feedback,
		versions:     versions,
		exports:      exports,
		orchestrator: orchestrator,
		monitor:      monitor,
	}, nil
}

// withApp runs fn against a freshly wired app and closes it afterwards
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// printJSON writes v as indented JSON to stdout
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// maskSecret masks a secret string for display
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "(set)"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/longregen/promptforge/internal/adapters/http"
	"github.com/longregen/promptforge/internal/adapters/http/handlers"
	"github.com/longregen/promptforge/internal/adapters/tracing"
)

// serveCmd starts the HTTP API server and the trigger monitor
func serveCmd() *cobra.Command {
	var noMonitor bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and the trigger monitor",
		Long: `Start the promptforge HTTP API: feedback ingestion, version management,
the training control surface, /health and /metrics.

The trigger monitor starts with the server unless --no-monitor is given; it can
also be started later with POST /api/v1/training/start.

Configuration:
  - PostgreSQL (PROMPTFORGE_DATABASE_POSTGRES_URL); in-memory when unset
  - LLM endpoint for synthesis (PROMPTFORGE_LLM_URL)
  - Test runner endpoint for evaluation (PROMPTFORGE_TESTRUNNER_URL)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), !noMonitor)
		},
	}

	cmd.Flags().BoolVar(&noMonitor, "no-monitor", false, "do not start the trigger monitor")
	return cmd
}

// runServer initializes and starts the HTTP API server
func runServer(ctx context.Context, startMonitor bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting promptforge",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("llm", cfg.LLM.URL),
		zap.String("testrunner", cfg.TestRunner.URL),
		zap.Bool("postgres", cfg.UsesPostgres()))

	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Options{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	})
	if err != nil {
		logger.Warn("failed to initialize tracing", zap.Error(err))
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Warn("error shutting down tracer", zap.Error(err))
			}
		}()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var db handlers.Pinger
	if a.store.pool != nil {
		db = a.store.pool
	}

	server := httpserver.NewServer(cfg, httpserver.Services{
		Feedback:     a.feedback,
		Versions:     a.versions,
		Exports:      a.exports,
		Orchestrator: a.orchestrator,
		Monitor:      a.monitor,
	}, db, version, logger.Named("http"))

	if startMonitor {
		if err := a.monitor.Start(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return errors.New("http server exited")
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	a.monitor.Stop()
	logger.Info("server stopped")
	return nil
}

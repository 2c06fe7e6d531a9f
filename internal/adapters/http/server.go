package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riandyrn/otelchi"
	"go.uber.org/zap"

	"github.com/longregen/promptforge/internal/adapters/http/handlers"
	"github.com/longregen/promptforge/internal/adapters/http/middleware"
	"github.com/longregen/promptforge/internal/application/services"
	"github.com/longregen/promptforge/internal/config"
	"github.com/longregen/promptforge/internal/logging"
)

// Services are the application services the HTTP surface exposes
type Services struct {
	Feedback     *services.FeedbackService
	Versions     *services.VersionService
	Exports      *services.ExportService
	Orchestrator *services.TrainingOrchestrator
	Monitor      *services.TriggerMonitor
}

type Server struct {
	config     *config.Config
	services   Services
	db         handlers.Pinger
	version    string
	logger     *zap.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer builds the router. db is checked by /health and may be nil.
func NewServer(cfg *config.Config, svc Services, db handlers.Pinger, version string, logger *zap.Logger) *Server {
	s := &Server{
		config:   cfg,
		services: svc,
		db:       db,
		version:  version,
		logger:   logging.OrNop(logger),
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(otelchi.Middleware(s.config.Tracing.ServiceName, otelchi.WithChiRoutes(r)))
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.CORS(s.config.Server.CORSOrigins))
	r.Use(middleware.Metrics)

	healthHandler := handlers.NewHealthHandler(s.version, s.db, s.services.Monitor)
	feedbackHandler := handlers.NewFeedbackHandler(s.services.Feedback, s.config.Training.FeedbackWindow, s.logger)
	promptHandler := handlers.NewPromptHandler(s.services.Versions, s.services.Exports, s.logger)
	trainingHandler := handlers.NewTrainingHandler(s.services.Orchestrator, s.services.Monitor, s.logger)

	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/prompts", promptHandler.List)

		r.Route("/prompts/{id}", func(r chi.Router) {
			// Versions
			r.Get("/", promptHandler.Show)
			r.Get("/versions", promptHandler.ListVersions)
			r.Post("/versions", promptHandler.CreateVersion)
			r.Post("/versions/{number}/deploy", promptHandler.Deploy)
			r.Post("/rollback", promptHandler.Rollback)
			r.Get("/export", promptHandler.Export)

			// Feedback
			r.Post("/feedback", feedbackHandler.Ingest)
			r.Post("/feedback/rate", feedbackHandler.Rate)
			r.Post("/feedback/suggest", feedbackHandler.Suggest)
			r.Post("/feedback/issue", feedbackHandler.Issue)
			r.Post("/feedback/error", feedbackHandler.Error)
			r.Post("/feedback/success", feedbackHandler.Success)
			r.Get("/summary", feedbackHandler.Summary)

			// Training
			r.Post("/train", trainingHandler.Train)
			r.Get("/training", trainingHandler.History)
		})

		r.Get("/training/status", trainingHandler.Status)
		r.Post("/training/start", trainingHandler.Start)
		r.Post("/training/stop", trainingHandler.Stop)
		r.Post("/training/tick", trainingHandler.Tick)
	})

	s.router = r
}

// Start serves until Stop is called. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // train and tick block for a full run
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

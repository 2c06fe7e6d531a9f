package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptforge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	FeedbackIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_feedback_ingested_total",
		Help: "Feedback records accepted, by kind",
	}, []string{"kind"})

	FeedbackTrivialSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptforge_feedback_trivial_success_total",
		Help: "Success reports dropped for finishing under the minimum execution time",
	})

	FeedbackPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptforge_feedback_purged_total",
		Help: "Feedback records removed by retention",
	})

	MonitorTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_monitor_ticks_total",
		Help: "Trigger monitor ticks, by result (completed, overlapped, failed)",
	}, []string{"result"})

	MonitorSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_monitor_skips_total",
		Help: "Prompts skipped by the trigger monitor, by reason",
	}, []string{"reason"})

	TrainingRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_training_runs_total",
		Help: "Finished training runs, by approach and outcome",
	}, []string{"approach", "outcome"})

	TrainingRunsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptforge_training_runs_in_flight",
		Help: "Training runs currently holding a prompt lock",
	})

	TrainingRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptforge_training_run_duration_seconds",
		Help:    "Training run duration",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"approach"})

	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_evaluations_total",
		Help: "Evaluation recommendations",
	}, []string{"recommendation"})

	DeploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_deployments_total",
		Help: "Version deployments and rollbacks",
	}, []string{"action"})

	CollaboratorRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptforge_collaborator_request_duration_seconds",
		Help:    "Synthesizer and test runner call duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"collaborator", "status"})

	ExportCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_export_cache_total",
		Help: "Export cache lookups, by result (hit, miss)",
	}, []string{"result"})
)

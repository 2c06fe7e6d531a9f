package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/longregen/promptforge/internal/application/services"
)

const healthCheckTimeout = 5 * time.Second

// Pinger is satisfied by *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// MonitorReporter is satisfied by *services.TriggerMonitor
type MonitorReporter interface {
	Status() services.MonitorStatus
}

type HealthHandler struct {
	version string
	db      Pinger
	monitor MonitorReporter
}

// NewHealthHandler creates a health handler. db is nil in memory mode.
func NewHealthHandler(version string, db Pinger, monitor MonitorReporter) *HealthHandler {
	return &HealthHandler{
		version: version,
		db:      db,
		monitor: monitor,
	}
}

type HealthResponse struct {
	Status   string                   `json:"status"`
	Version  string                   `json:"version,omitempty"`
	Services map[string]ServiceHealth `json:"services,omitempty"`
	Monitor  *MonitorHealth           `json:"monitor,omitempty"`
}

type ServiceHealth struct {
	Status    string  `json:"status"`
	LatencyMs *int64  `json:"latency_ms,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// MonitorHealth is informational: a stopped monitor does not make the service unhealthy
type MonitorHealth struct {
	Running        bool       `json:"running"`
	TicksCompleted int64      `json:"ticks_completed"`
	LastTickAt     *time.Time `json:"last_tick_at,omitempty"`
}

// Handle reports liveness, database reachability when one is configured, and
// the trigger monitor state
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: h.version,
	}

	if h.db != nil {
		db := h.checkDatabase(r.Context())
		response.Services = map[string]ServiceHealth{"database": db}
		response.Status = db.Status
	}

	if h.monitor != nil {
		st := h.monitor.Status()
		response.Monitor = &MonitorHealth{
			Running:        st.Running,
			TicksCompleted: st.TicksCompleted,
		}
		if st.LastTick != nil {
			at := st.LastTick.FinishedAt
			response.Monitor.LastTickAt = &at
		}
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	respondJSON(w, response, statusCode)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ServiceHealth {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	err := h.db.Ping(checkCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		msg := err.Error()
		return ServiceHealth{Status: "unhealthy", LatencyMs: &latency, Error: &msg}
	}
	return ServiceHealth{Status: "healthy", LatencyMs: &latency}
}

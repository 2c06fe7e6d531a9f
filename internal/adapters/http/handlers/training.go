package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/longregen/promptforge/internal/adapters/http/dto"
	"github.com/longregen/promptforge/internal/application/services"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/logging"
)

// TrainingHandler handles the training control surface
type TrainingHandler struct {
	orchestrator *services.TrainingOrchestrator
	monitor      *services.TriggerMonitor
	logger       *zap.Logger
}

// NewTrainingHandler creates a new training handler
func NewTrainingHandler(
	orchestrator *services.TrainingOrchestrator,
	monitor *services.TriggerMonitor,
	logger *zap.Logger,
) *TrainingHandler {
	return &TrainingHandler{
		orchestrator: orchestrator,
		monitor:      monitor,
		logger:       logging.OrNop(logger),
	}
}

// StatusResponse combines monitor state with in-flight and recent runs
type StatusResponse struct {
	Monitor  services.MonitorStatus   `json:"monitor"`
	Training *services.TrainingStatus `json:"training"`
}

// Status handles GET /api/v1/training/status
func (h *TrainingHandler) Status(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 20)

	status, err := h.orchestrator.Status(r.Context(), limit)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, StatusResponse{Monitor: h.monitor.Status(), Training: status}, http.StatusOK)
}

// Start handles POST /api/v1/training/start
func (h *TrainingHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.Start(r.Context()); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, h.monitor.Status(), http.StatusAccepted)
}

// Stop handles POST /api/v1/training/stop
func (h *TrainingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.monitor.Stop()
	respondJSON(w, h.monitor.Status(), http.StatusOK)
}

// Tick handles POST /api/v1/training/tick. It blocks until the tick's runs finish.
func (h *TrainingHandler) Tick(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.Tick(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, report, http.StatusOK)
}

// Train handles POST /api/v1/prompts/{id}/train with an optional approach override
func (h *TrainingHandler) Train(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	req, ok := decodeOptionalJSON[dto.TrainRequest](r, w)
	if !ok {
		return
	}
	if req.Approach != "" {
		if err := services.ValidateApproach(req.Approach); err != nil {
			respondServiceError(w, h.logger, err)
			return
		}
	}

	run, err := h.monitor.TrainNow(r.Context(), promptID, req.Approach)
	if err != nil && (run == nil || run.Outcome != models.RunOutcomeFailed) {
		respondServiceError(w, h.logger, err)
		return
	}
	// A failed run was still recorded; its outcome and failure_reason are the answer.
	if err != nil {
		h.logger.Warn("manual training failed",
			zap.String("prompt_id", promptID),
			zap.String("run_id", run.ID),
			zap.Error(err))
		respondJSON(w, run, http.StatusOK)
		return
	}

	h.logger.Info("manual training finished",
		zap.String("prompt_id", promptID),
		zap.String("run_id", run.ID),
		zap.String("outcome", string(run.Outcome)))
	respondJSON(w, run, http.StatusOK)
}

// History handles GET /api/v1/prompts/{id}/training?limit=N
func (h *TrainingHandler) History(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	runs, err := h.orchestrator.History(r.Context(), promptID, parseIntQuery(r, "limit", 20))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if runs == nil {
		runs = []*models.TrainingRun{}
	}

	respondJSON(w, dto.TrainingHistoryResponse{PromptID: promptID, Runs: runs, Total: len(runs)}, http.StatusOK)
}

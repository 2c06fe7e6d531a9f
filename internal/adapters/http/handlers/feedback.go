package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/longregen/promptforge/internal/adapters/http/dto"
	"github.com/longregen/promptforge/internal/application/services"
	"github.com/longregen/promptforge/internal/logging"
)

// FeedbackHandler handles feedback ingestion for a prompt
type FeedbackHandler struct {
	feedback      *services.FeedbackService
	summaryWindow time.Duration
	logger        *zap.Logger
}

// NewFeedbackHandler creates a feedback handler. summaryWindow is the default
// window for GET .../summary.
func NewFeedbackHandler(feedback *services.FeedbackService, summaryWindow time.Duration, logger *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		feedback:      feedback,
		summaryWindow: summaryWindow,
		logger:        logging.OrNop(logger),
	}
}

// Ingest handles POST /api/v1/prompts/{id}/feedback
func (h *FeedbackHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	req, ok := decodeJSON[dto.IngestFeedbackRequest](r, w)
	if !ok {
		return
	}

	ack, err := h.feedback.Ingest(r.Context(), &services.IngestRequest{
		PromptID:  promptID,
		Kind:      req.Kind,
		Value:     req.Value,
		Detail:    req.Detail,
		Source:    req.Source,
		SessionID: req.SessionID,
		Context:   req.Context,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, ack, http.StatusAccepted)
}

// Rate handles POST /api/v1/prompts/{id}/feedback/rate
func (h *FeedbackHandler) Rate(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	req, ok := decodeJSON[dto.RateRequest](r, w)
	if !ok {
		return
	}
	if req.Rating == nil {
		respondError(w, dto.ErrorValidation, "rating is required", http.StatusBadRequest)
		return
	}

	ack, err := h.feedback.RateResponse(r.Context(), promptID, *req.Rating, req.Message)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, ack, http.StatusAccepted)
}

// Suggest handles POST /api/v1/prompts/{id}/feedback/suggest
func (h *FeedbackHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	req, ok := decodeJSON[dto.SuggestRequest](r, w)
	if !ok {
		return
	}

	ack, err := h.feedback.SuggestImprovement(r.Context(), promptID, req.Suggestion)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, ack, http.StatusAccepted)
}

// Issue handles POST /api/v1/prompts/{id}/feedback/issue
func (h *FeedbackHandler) Issue(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	req, ok := decodeJSON[dto.IssueRequest](r, w)
	if !ok {
		return
	}

	ack, err := h.feedback.ReportIssue(r.Context(), promptID, req.IssueType, req.Description)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, ack, http.StatusAccepted)
}

// Error handles POST /api/v1/prompts/{id}/feedback/error
func (h *FeedbackHandler) Error(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	req, ok := decodeJSON[dto.RecordErrorRequest](r, w)
	if !ok {
		return
	}

	ack, err := h.feedback.RecordError(r.Context(), promptID, req.ErrorType, req.Message, req.SessionID, req.Context)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, ack, http.StatusAccepted)
}

// Success handles POST /api/v1/prompts/{id}/feedback/success
func (h *FeedbackHandler) Success(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	req, ok := decodeJSON[dto.RecordSuccessRequest](r, w)
	if !ok {
		return
	}

	execTime := time.Duration(req.ExecutionTimeMs) * time.Millisecond
	ack, err := h.feedback.RecordSuccess(r.Context(), promptID, req.Output, execTime, req.Rating, req.SessionID, req.Context)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if ack.Skipped {
		respondJSON(w, ack, http.StatusOK)
		return
	}

	respondJSON(w, ack, http.StatusAccepted)
}

// Summary handles GET /api/v1/prompts/{id}/summary?window=168h
func (h *FeedbackHandler) Summary(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	window, err := parseDurationQuery(r, "window", h.summaryWindow)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	summary, err := h.feedback.Summary(r.Context(), promptID, window)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, dto.SummaryResponse{Window: window.String(), Summary: summary}, http.StatusOK)
}

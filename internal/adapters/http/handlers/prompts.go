package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/longregen/promptforge/internal/adapters/http/dto"
	"github.com/longregen/promptforge/internal/application/services"
	"github.com/longregen/promptforge/internal/logging"
)

// PromptHandler exposes version management and the export read path
type PromptHandler struct {
	versions *services.VersionService
	exports  *services.ExportService
	logger   *zap.Logger
}

func NewPromptHandler(versions *services.VersionService, exports *services.ExportService, logger *zap.Logger) *PromptHandler {
	return &PromptHandler{
		versions: versions,
		exports:  exports,
		logger:   logging.OrNop(logger),
	}
}

// List handles GET /api/v1/prompts
func (h *PromptHandler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.versions.PromptIDs(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, dto.PromptListResponse{Prompts: ids, Total: len(ids)}, http.StatusOK)
}

// Show handles GET /api/v1/prompts/{id}
func (h *PromptHandler) Show(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	overview, err := h.versions.Show(r.Context(), promptID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, overview, http.StatusOK)
}

// ListVersions handles GET /api/v1/prompts/{id}/versions?limit=N, newest first
func (h *PromptHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	limit := parseIntQuery(r, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	versions, err := h.versions.List(r.Context(), promptID, limit)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if len(versions) == 0 {
		respondError(w, dto.ErrorNotFound, "prompt "+promptID+" has no versions", http.StatusNotFound)
		return
	}

	respondJSON(w, dto.VersionListResponse{
		PromptID: promptID,
		Versions: versions,
		Total:    len(versions),
	}, http.StatusOK)
}

// CreateVersion handles POST /api/v1/prompts/{id}/versions
func (h *PromptHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	req, ok := decodeJSON[dto.CreateVersionRequest](r, w)
	if !ok {
		return
	}

	version, err := h.versions.CreateManual(r.Context(), promptID, req.Text)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, version, http.StatusCreated)
}

// Deploy handles POST /api/v1/prompts/{id}/versions/{number}/deploy
func (h *PromptHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}
	raw, ok := validateURLParam(r, w, "number", "Version number")
	if !ok {
		return
	}
	number, err := strconv.Atoi(raw)
	if err != nil || number <= 0 {
		respondError(w, dto.ErrorValidation, "version number must be a positive integer", http.StatusBadRequest)
		return
	}

	version, err := h.versions.Deploy(r.Context(), promptID, number)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, version, http.StatusOK)
}

// Rollback handles POST /api/v1/prompts/{id}/rollback
func (h *PromptHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	version, err := h.versions.Rollback(r.Context(), promptID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, version, http.StatusOK)
}

// Export handles GET /api/v1/prompts/{id}/export, the serving layer's read path
func (h *PromptHandler) Export(w http.ResponseWriter, r *http.Request) {
	promptID, ok := validateURLParam(r, w, "id", "Prompt ID")
	if !ok {
		return
	}

	exported, err := h.exports.Get(r.Context(), promptID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("ETag", strconv.Quote(exported.Hash))
	respondJSON(w, exported, http.StatusOK)
}

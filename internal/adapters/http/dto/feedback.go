package dto

import (
	"time"

	"github.com/longregen/promptforge/internal/domain/models"
)

// IngestFeedbackRequest is the generic feedback body; the prompt comes from the path
type IngestFeedbackRequest struct {
	Kind      models.FeedbackKind `json:"kind"`
	Value     *float64            `json:"value,omitempty"`
	Detail    string              `json:"detail,omitempty"`
	Source    string              `json:"source,omitempty"`
	SessionID string              `json:"session_id,omitempty"`
	Context   map[string]any      `json:"context,omitempty"`
	Timestamp *time.Time          `json:"timestamp,omitempty"`
}

type RateRequest struct {
	Rating  *float64 `json:"rating"`
	Message string   `json:"message,omitempty"`
}

type SuggestRequest struct {
	Suggestion string `json:"suggestion"`
}

type IssueRequest struct {
	IssueType   string `json:"issue_type"`
	Description string `json:"description"`
}

type RecordErrorRequest struct {
	ErrorType string         `json:"error_type,omitempty"`
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

type RecordSuccessRequest struct {
	Output          string         `json:"output"`
	ExecutionTimeMs int64          `json:"execution_time_ms,omitempty"`
	Rating          *float64       `json:"rating,omitempty"`
	SessionID       string         `json:"session_id,omitempty"`
	Context         map[string]any `json:"context,omitempty"`
}

// SummaryResponse echoes the window used for the aggregate
type SummaryResponse struct {
	Window  string                  `json:"window"`
	Summary *models.FeedbackSummary `json:"summary"`
}

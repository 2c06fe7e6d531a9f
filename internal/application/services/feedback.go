package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/longregen/promptforge/internal/adapters/metrics"
	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/logging"
	"github.com/longregen/promptforge/internal/ports"
)

// IngestRequest is one feedback observation submitted by a caller
type IngestRequest struct {
	PromptID  string              `json:"prompt_id"`
	Kind      models.FeedbackKind `json:"kind"`
	Value     *float64            `json:"value,omitempty"`
	Detail    string              `json:"detail,omitempty"`
	Source    string              `json:"source,omitempty"`
	SessionID string              `json:"session_id,omitempty"`
	Context   map[string]any      `json:"context,omitempty"`
	Timestamp *time.Time          `json:"timestamp,omitempty"`
}

// FeedbackConfig holds feedback retention and filtering settings
type FeedbackConfig struct {
	Retention time.Duration
	// MinExecutionTime drops success reports for calls that finished faster;
	// zero keeps every report.
	MinExecutionTime time.Duration
}

// DefaultFeedbackConfig returns a 90 day retention and a 100ms success floor
func DefaultFeedbackConfig() FeedbackConfig {
	return FeedbackConfig{
		Retention:        90 * 24 * time.Hour,
		MinExecutionTime: 100 * time.Millisecond,
	}
}

// FeedbackService ingests and summarizes production feedback
type FeedbackService struct {
	repo        ports.FeedbackRepository
	versions    ports.PromptVersionRepository
	idGenerator ports.IDGenerator
	clock       ports.Clock
	config      FeedbackConfig
	logger      *zap.Logger
}

// NewFeedbackService creates a new feedback service
func NewFeedbackService(
	repo ports.FeedbackRepository,
	versions ports.PromptVersionRepository,
	idGenerator ports.IDGenerator,
	clock ports.Clock,
	config FeedbackConfig,
	logger *zap.Logger,
) *FeedbackService {
	return &FeedbackService{
		repo:        repo,
		versions:    versions,
		idGenerator: idGenerator,
		clock:       clock,
		config:      config,
		logger:      logging.OrNop(logger),
	}
}

// Ingest validates and durably appends one feedback record
func (s *FeedbackService) Ingest(ctx context.Context, req *IngestRequest) (*models.FeedbackAck, error) {
	if req == nil {
		return nil, domain.Validation("feedback is required")
	}
	if err := ValidatePromptID(req.PromptID); err != nil {
		return nil, err
	}
	if err := ValidateFeedbackKind(req.Kind); err != nil {
		return nil, err
	}
	if req.Kind == models.FeedbackRating && req.Value == nil {
		return nil, domain.Validation("rating feedback requires a value")
	}
	if req.Value != nil {
		if err := ValidateRating(*req.Value); err != nil {
			return nil, err
		}
	}
	if err := ValidateStringLength(req.Detail, "detail", 0, MaxDetailLength); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ts := now
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = *req.Timestamp
	}

	record := models.NewFeedbackRecord(s.idGenerator.GenerateFeedbackID(), req.PromptID, req.Kind, req.Value, req.Detail, ts)
	if req.Source != "" {
		record.Source = req.Source
	}
	record.SessionID = req.SessionID
	record.Context = req.Context

	if err := s.repo.Append(ctx, record); err != nil {
		return nil, domain.NewDomainError(err, "failed to store feedback")
	}

	metrics.FeedbackIngestedTotal.WithLabelValues(string(record.Kind)).Inc()

	return &models.FeedbackAck{
		ID:         record.ID,
		PromptID:   record.PromptID,
		Kind:       record.Kind,
		ReceivedAt: now.UTC(),
	}, nil
}

// RateResponse records a user rating with an optional message
func (s *FeedbackService) RateResponse(ctx context.Context, promptID string, rating float64, message string) (*models.FeedbackAck, error) {
	return s.Ingest(ctx, &IngestRequest{
		PromptID: promptID,
		Kind:     models.FeedbackRating,
		Value:    &rating,
		Detail:   message,
		Source:   models.FeedbackSourceUser,
	})
}

// SuggestImprovement records a freeform improvement suggestion
func (s *FeedbackService) SuggestImprovement(ctx context.Context, promptID, suggestion string) (*models.FeedbackAck, error) {
	if err := ValidateRequired(suggestion, "suggestion"); err != nil {
		return nil, err
	}
	return s.Ingest(ctx, &IngestRequest{
		PromptID: promptID,
		Kind:     models.FeedbackSuggestion,
		Detail:   suggestion,
		Source:   models.FeedbackSourceUser,
	})
}

// ReportIssue records a typed issue report as a low rating
func (s *FeedbackService) ReportIssue(ctx context.Context, promptID, issueType, description string) (*models.FeedbackAck, error) {
	if err := ValidateIssueType(issueType); err != nil {
		return nil, err
	}
	rating := models.IssueRating
	return s.Ingest(ctx, &IngestRequest{
		PromptID: promptID,
		Kind:     models.FeedbackRating,
		Value:    &rating,
		Detail:   fmt.Sprintf("%s: %s", issueType, description),
		Source:   models.FeedbackSourceUser,
		Context:  map[string]any{"issue_type": issueType},
	})
}

// RecordError records an automated error observation
func (s *FeedbackService) RecordError(ctx context.Context, promptID, errorType, message, sessionID string, errCtx map[string]any) (*models.FeedbackAck, error) {
	detail := message
	if errorType != "" {
		detail = errorType + ": " + message
	}
	return s.Ingest(ctx, &IngestRequest{
		PromptID:  promptID,
		Kind:      models.FeedbackError,
		Detail:    detail,
		Source:    models.FeedbackSourceAutomated,
		SessionID: sessionID,
		Context:   errCtx,
	})
}

// RecordSuccess records an automated success observation.
// A non-nil rating is kept for ranking few-shot examples. Calls reported as
// faster than MinExecutionTime are acknowledged as skipped and not stored.
func (s *FeedbackService) RecordSuccess(ctx context.Context, promptID, output string, executionTime time.Duration, rating *float64, sessionID string, okCtx map[string]any) (*models.FeedbackAck, error) {
	if executionTime > 0 && executionTime < s.config.MinExecutionTime {
		if err := ValidatePromptID(promptID); err != nil {
			return nil, err
		}
		metrics.FeedbackTrivialSuccessTotal.Inc()
		s.logger.Debug("dropping trivial success report",
			zap.String("prompt_id", promptID),
			zap.Duration("execution_time", executionTime))
		return &models.FeedbackAck{
			PromptID:   promptID,
			Kind:       models.FeedbackSuccess,
			ReceivedAt: s.clock.Now().UTC(),
			Skipped:    true,
		}, nil
	}

	c := make(map[string]any, len(okCtx)+1)
	for k, v := range okCtx {
		c[k] = v
	}
	if executionTime > 0 {
		c["execution_time_ms"] = executionTime.Milliseconds()
	}
	return s.Ingest(ctx, &IngestRequest{
		PromptID:  promptID,
		Kind:      models.FeedbackSuccess,
		Value:     rating,
		Detail:    output,
		Source:    models.FeedbackSourceAutomated,
		SessionID: sessionID,
		Context:   c,
	})
}

// Summary returns aggregate statistics over the trailing window.
// The repository computes the counts from a single snapshot.
func (s *FeedbackService) Summary(ctx context.Context, promptID string, window time.Duration) (*models.FeedbackSummary, error) {
	if err := ValidatePromptID(promptID); err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, domain.Validation("summary window must be positive")
	}

	now := s.clock.Now()
	counts, err := s.repo.Counts(ctx, promptID, now.Add(-window))
	if err != nil {
		return nil, domain.NewDomainError(err, "failed to summarize feedback")
	}

	return models.NewFeedbackSummary(promptID, window, counts, now.UTC()), nil
}

// Examples returns raw records of one kind from the trailing window, newest first
func (s *FeedbackService) Examples(ctx context.Context, promptID string, kind models.FeedbackKind, window time.Duration, limit int) ([]*models.FeedbackRecord, error) {
	if err := ValidatePromptID(promptID); err != nil {
		return nil, err
	}
	if err := ValidateFeedbackKind(kind); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	records, err := s.repo.ListByKind(ctx, promptID, kind, s.clock.Now().Add(-window), limit)
	if err != nil {
		return nil, domain.NewDomainError(err, "failed to list feedback")
	}
	return records, nil
}

// TopExamples returns non-blank records of one kind from the trailing window,
// highest rated first
func (s *FeedbackService) TopExamples(ctx context.Context, promptID string, kind models.FeedbackKind, window time.Duration, limit int) ([]*models.FeedbackRecord, error) {
	if err := ValidatePromptID(promptID); err != nil {
		return nil, err
	}
	if err := ValidateFeedbackKind(kind); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	records, err := s.repo.ListTopRated(ctx, promptID, kind, s.clock.Now().Add(-window), limit)
	if err != nil {
		return nil, domain.NewDomainError(err, "failed to list top rated feedback")
	}
	return records, nil
}

// Purge deletes feedback older than the retention horizon
func (s *FeedbackService) Purge(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.config.Retention)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, domain.NewDomainError(err, "failed to purge feedback")
	}
	if n > 0 {
		metrics.FeedbackPurgedTotal.Add(float64(n))
		s.logger.Info("purged expired feedback", zap.Int64("records", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// KnownPrompts returns every prompt seen in feedback or version history, sorted
func (s *FeedbackService) KnownPrompts(ctx context.Context) ([]string, error) {
	fromFeedback, err := s.repo.PromptIDs(ctx)
	if err != nil {
		return nil, domain.NewDomainError(err, "failed to list feedback prompts")
	}
	fromVersions, err := s.versions.PromptIDs(ctx)
	if err != nil {
		return nil, domain.NewDomainError(err, "failed to list versioned prompts")
	}

	ids := append(slices.Clone(fromFeedback), fromVersions...)
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

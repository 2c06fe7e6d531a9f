package models

import (
	"time"
)

// FeedbackKind classifies a feedback observation
type FeedbackKind string

// Feedback kinds
const (
	FeedbackRating     FeedbackKind = "rating"
	FeedbackError      FeedbackKind = "error"
	FeedbackSuccess    FeedbackKind = "success"
	FeedbackSuggestion FeedbackKind = "suggestion"
)

// Valid reports whether k is a recognized feedback kind
func (k FeedbackKind) Valid() bool {
	switch k {
	case FeedbackRating, FeedbackError, FeedbackSuccess, FeedbackSuggestion:
		return true
	}
	return false
}

// Feedback sources
const (
	FeedbackSourceUser      = "user"
	FeedbackSourceAutomated = "automated"
)

// Issue types accepted by ReportIssue
const (
	IssueIncorrect     = "incorrect"
	IssueUnclear       = "unclear"
	IssueIncomplete    = "incomplete"
	IssueInappropriate = "inappropriate"
	IssueOther         = "other"
)

// IssueRating is the rating recorded for an issue report
const IssueRating = 0.2

// FeedbackRecord is one observation about a prompt's real-world performance.
// Records are immutable once stored.
type FeedbackRecord struct {
	ID        string         `json:"id"`
	PromptID  string         `json:"prompt_id"`
	Kind      FeedbackKind   `json:"kind"`
	Value     *float64       `json:"value,omitempty"` // rating in [0,1]
	Detail    string         `json:"detail,omitempty"`
	Source    string         `json:"source,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewFeedbackRecord creates a feedback record stamped at ts
func NewFeedbackRecord(id, promptID string, kind FeedbackKind, value *float64, detail string, ts time.Time) *FeedbackRecord {
	return &FeedbackRecord{
		ID:        id,
		PromptID:  promptID,
		Kind:      kind,
		Value:     value,
		Detail:    detail,
		Source:    FeedbackSourceUser,
		Timestamp: ts.UTC(),
	}
}

// Rating returns the record value, or def when the record carries none
func (r *FeedbackRecord) Rating(def float64) float64 {
	if r.Value == nil {
		return def
	}
	return *r.Value
}

// FeedbackAck acknowledges a feedback report. A skipped report was accepted
// but not stored and has no ID.
type FeedbackAck struct {
	ID         string       `json:"id,omitempty"`
	PromptID   string       `json:"prompt_id"`
	Kind       FeedbackKind `json:"kind"`
	ReceivedAt time.Time    `json:"received_at"`
	Skipped    bool         `json:"skipped,omitempty"`
}

// FeedbackSummary holds aggregate feedback statistics over a trailing window
type FeedbackSummary struct {
	PromptID        string        `json:"prompt_id"`
	Window          time.Duration `json:"window"`
	Count           int           `json:"count"`
	RatedCount      int           `json:"rated_count"`
	MeanRating      float64       `json:"mean_rating"`
	ErrorCount      int           `json:"error_count"`
	ErrorRate       float64       `json:"error_rate"`
	SuggestionCount int           `json:"suggestion_count"`
	SuccessVolume   int           `json:"success_volume"`
	ComputedAt      time.Time     `json:"computed_at"`
}

// FeedbackCounts are the raw aggregates a repository computes from one snapshot
type FeedbackCounts struct {
	Total       int
	Ratings     int
	Errors      int
	Successes   int
	Suggestions int
	RatedCount  int
	RatingSum   float64
}

// NewFeedbackSummary derives a summary from raw counts.
// With no rated records the mean rating is 1.0 so the low-rating rule cannot fire.
func NewFeedbackSummary(promptID string, window time.Duration, c FeedbackCounts, now time.Time) *FeedbackSummary {
	s := &FeedbackSummary{
		PromptID:        promptID,
		Window:          window,
		Count:           c.Total,
		RatedCount:      c.RatedCount,
		MeanRating:      1.0,
		ErrorCount:      c.Errors,
		SuggestionCount: c.Suggestions,
		SuccessVolume:   c.Successes,
		ComputedAt:      now,
	}
	if c.RatedCount > 0 {
		s.MeanRating = c.RatingSum / float64(c.RatedCount)
	}
	if denom := c.Errors + c.Successes + c.Ratings; denom > 0 {
		s.ErrorRate = float64(c.Errors) / float64(denom)
	}
	return s
}

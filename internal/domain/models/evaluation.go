package models

import (
	"time"
)

// Recommendation is the evaluator's verdict on a candidate
type Recommendation string

// Recommendation values
const (
	RecommendDeploy       Recommendation = "deploy"
	RecommendReject       Recommendation = "reject"
	RecommendManualReview Recommendation = "manual_review"
)

// Metrics are the quality metrics a test runner reports for one version
type Metrics struct {
	SuccessRate float64 `json:"success_rate"`
	LatencyP50  float64 `json:"latency_p50"`
	LatencyP95  float64 `json:"latency_p95"`
	Coherence   float64 `json:"coherence"`
	Relevance   float64 `json:"relevance"`
	Safety      float64 `json:"safety"`
}

// Sub returns m - other, field by field
func (m Metrics) Sub(other Metrics) Metrics {
	return Metrics{
		SuccessRate: m.SuccessRate - other.SuccessRate,
		LatencyP50:  m.LatencyP50 - other.LatencyP50,
		LatencyP95:  m.LatencyP95 - other.LatencyP95,
		Coherence:   m.Coherence - other.Coherence,
		Relevance:   m.Relevance - other.Relevance,
		Safety:      m.Safety - other.Safety,
	}
}

// EvaluationResult compares a candidate version against the active baseline
type EvaluationResult struct {
	ID                string         `json:"id"`
	PromptID          string         `json:"prompt_id"`
	VersionID         string         `json:"version_id"`
	BaselineVersionID string         `json:"baseline_version_id,omitempty"`
	Candidate         Metrics        `json:"candidate"`
	Baseline          Metrics        `json:"baseline"`
	Delta             Metrics        `json:"delta_vs_baseline"`
	Recommendation    Recommendation `json:"recommendation"`
	Reason            string         `json:"reason"`
	CreatedAt         time.Time      `json:"created_at"`
}

// NewEvaluationResult creates a result with deltas computed from both metric sets
func NewEvaluationResult(id string, candidate *PromptVersion, baselineID string, cand, base Metrics, now time.Time) *EvaluationResult {
	return &EvaluationResult{
		ID:                id,
		PromptID:          candidate.PromptID,
		VersionID:         candidate.ID,
		BaselineVersionID: baselineID,
		Candidate:         cand,
		Baseline:          base,
		Delta:             cand.Sub(base),
		CreatedAt:         now.UTC(),
	}
}

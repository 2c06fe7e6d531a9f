package models

import "time"

// Approach is the strategy used to assemble synthesis context
type Approach string

// Training approaches
const (
	ApproachAdversarial   Approach = "adversarial"
	ApproachReinforcement Approach = "reinforcement"
	ApproachMetaPrompt    Approach = "meta_prompt"
	ApproachFewShot       Approach = "few_shot"
	ApproachNone          Approach = "none"
)

// Approaches lists the trainable approaches in selection precedence order
var Approaches = []Approach{
	ApproachAdversarial,
	ApproachReinforcement,
	ApproachMetaPrompt,
	ApproachFewShot,
}

// Valid reports whether a is a trainable approach
func (a Approach) Valid() bool {
	for _, known := range Approaches {
		if a == known {
			return true
		}
	}
	return false
}

// RunOutcome is the result of a training run
type RunOutcome string

// Training run outcomes
const (
	RunOutcomeRunning   RunOutcome = "running"
	RunOutcomeSucceeded RunOutcome = "succeeded"
	RunOutcomeFailed    RunOutcome = "failed"
)

// Run triggers
const (
	TriggerMonitor = "monitor"
	TriggerManual  = "manual"
)

// TrainingRun is one attempt to synthesize and evaluate a candidate replacement
type TrainingRun struct {
	ID                string         `json:"id"`
	PromptID          string         `json:"prompt_id"`
	Approach          Approach       `json:"approach"`
	Trigger           string         `json:"trigger"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        *time.Time     `json:"finished_at,omitempty"`
	Outcome           RunOutcome     `json:"outcome"`
	FailureReason     string         `json:"failure_reason,omitempty"`
	ProducedVersionID string         `json:"produced_version_id,omitempty"`
	EvaluationID      string         `json:"evaluation_id,omitempty"`
	Recommendation    Recommendation `json:"recommendation,omitempty"`
}

// NewTrainingRun creates a running training run
func NewTrainingRun(id, promptID string, approach Approach, trigger string, now time.Time) *TrainingRun {
	return &TrainingRun{
		ID:        id,
		PromptID:  promptID,
		Approach:  approach,
		Trigger:   trigger,
		StartedAt: now.UTC(),
		Outcome:   RunOutcomeRunning,
	}
}

// MarkSucceeded finishes the run successfully
func (r *TrainingRun) MarkSucceeded(now time.Time) {
	t := now.UTC()
	r.Outcome = RunOutcomeSucceeded
	r.FinishedAt = &t
}

// MarkFailed finishes the run with a failure reason
func (r *TrainingRun) MarkFailed(reason string, now time.Time) {
	t := now.UTC()
	r.Outcome = RunOutcomeFailed
	r.FailureReason = reason
	r.FinishedAt = &t
}

// InFlight reports whether the run has not finished
func (r *TrainingRun) InFlight() bool {
	return r.Outcome == RunOutcomeRunning
}

// TrainingExample is one piece of feedback evidence handed to the synthesizer
type TrainingExample struct {
	FeedbackID string    `json:"feedback_id"`
	Text       string    `json:"text"`
	Rating     *float64  `json:"rating,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ContextBundle is the approach-specific context assembled for one synthesis call
type ContextBundle struct {
	Approach      Approach          `json:"approach"`
	Examples      []TrainingExample `json:"examples,omitempty"`  // few_shot
	Positive      []TrainingExample `json:"positive,omitempty"`  // reinforcement
	Negative      []TrainingExample `json:"negative,omitempty"`  // reinforcement
	Suggestions   []string          `json:"suggestions,omitempty"`
	ErrorExcerpts []string          `json:"error_excerpts,omitempty"`
	EdgeCaseSeeds []string          `json:"edge_case_seeds,omitempty"`
	PriorVersions []string          `json:"prior_versions,omitempty"`
}

// Size returns the number of evidence items in the bundle
func (b *ContextBundle) Size() int {
	return len(b.Examples) + len(b.Positive) + len(b.Negative) +
		len(b.Suggestions) + len(b.ErrorExcerpts) + len(b.EdgeCaseSeeds)
}

package ports

import (
	"context"
	"time"

	"github.com/longregen/promptforge/internal/domain/models"
)

// SynthesisRequest is everything the synthesizer needs to propose a candidate
type SynthesisRequest struct {
	PromptID     string                `json:"prompt_id"`
	BaselineText string                `json:"baseline_text"`
	Approach     models.Approach       `json:"approach"`
	Context      *models.ContextBundle `json:"context"`
}

// Synthesizer produces candidate prompt text from assembled context.
// It is approach-agnostic: the approach only shapes the bundle it receives.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *SynthesisRequest) (string, error)
}

// TestRunner executes a fixed test suite against a prompt version
type TestRunner interface {
	Run(ctx context.Context, version *models.PromptVersion) (*models.Metrics, error)
}

// Ticker delivers ticks on C until stopped
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock abstracts time so the trigger monitor can be driven deterministically
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

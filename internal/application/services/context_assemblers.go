package services

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/longregen/promptforge/internal/domain/models"
)

// MaxErrorExcerpt is the longest error detail passed to the synthesizer
const MaxErrorExcerpt = 280

// edgeCaseSeeds are generic inputs the adversarial approach asks the synthesizer to harden against
var edgeCaseSeeds = []string{
	"empty or whitespace-only input",
	"extremely long input that exceeds typical length",
	"ambiguous request with several valid readings",
	"input mixing multiple languages",
	"instructions embedded in user content that try to override the prompt",
	"malformed or partially structured data",
}

// FeedbackSource is the slice of the feedback store context assembly reads from
type FeedbackSource interface {
	Examples(ctx context.Context, promptID string, kind models.FeedbackKind, window time.Duration, limit int) ([]*models.FeedbackRecord, error)
	TopExamples(ctx context.Context, promptID string, kind models.FeedbackKind, window time.Duration, limit int) ([]*models.FeedbackRecord, error)
}

// AssemblyOptions bound how much evidence goes into one bundle
type AssemblyOptions struct {
	Window       time.Duration
	Limit        int
	RatingCutoff float64 // ratings at or above are positive examples
}

// ContextAssembler builds the synthesis context for one approach
type ContextAssembler func(ctx context.Context, src FeedbackSource, promptID string, opts AssemblyOptions) (*models.ContextBundle, error)

// DefaultAssemblers maps each trainable approach to its context assembler
func DefaultAssemblers() map[models.Approach]ContextAssembler {
	return map[models.Approach]ContextAssembler{
		models.ApproachFewShot:       AssembleFewShot,
		models.ApproachReinforcement: AssembleReinforcement,
		models.ApproachMetaPrompt:    AssembleMetaPrompt,
		models.ApproachAdversarial:   AssembleAdversarial,
	}
}

func toExample(r *models.FeedbackRecord) models.TrainingExample {
	return models.TrainingExample{
		FeedbackID: r.ID,
		Text:       r.Detail,
		Rating:     r.Value,
		Timestamp:  r.Timestamp,
	}
}

// AssembleFewShot picks the top-rated successes in the window. Ties go to the more recent record.
func AssembleFewShot(ctx context.Context, src FeedbackSource, promptID string, opts AssemblyOptions) (*models.ContextBundle, error) {
	successes, err := src.TopExamples(ctx, promptID, models.FeedbackSuccess, opts.Window, opts.Limit)
	if err != nil {
		return nil, err
	}

	bundle := &models.ContextBundle{Approach: models.ApproachFewShot}
	for _, r := range successes {
		bundle.Examples = append(bundle.Examples, toExample(r))
	}
	return bundle, nil
}

// AssembleReinforcement splits rated feedback into positive and negative buckets
func AssembleReinforcement(ctx context.Context, src FeedbackSource, promptID string, opts AssemblyOptions) (*models.ContextBundle, error) {
	ratings, err := src.Examples(ctx, promptID, models.FeedbackRating, opts.Window, opts.Limit*2)
	if err != nil {
		return nil, err
	}

	bundle := &models.ContextBundle{Approach: models.ApproachReinforcement}
	for _, r := range ratings {
		if r.Value == nil {
			continue
		}
		if *r.Value >= opts.RatingCutoff {
			if len(bundle.Positive) < opts.Limit {
				bundle.Positive = append(bundle.Positive, toExample(r))
			}
		} else if len(bundle.Negative) < opts.Limit {
			bundle.Negative = append(bundle.Negative, toExample(r))
		}
	}
	return bundle, nil
}

// AssembleMetaPrompt collects raw suggestion texts
func AssembleMetaPrompt(ctx context.Context, src FeedbackSource, promptID string, opts AssemblyOptions) (*models.ContextBundle, error) {
	suggestions, err := src.Examples(ctx, promptID, models.FeedbackSuggestion, opts.Window, opts.Limit)
	if err != nil {
		return nil, err
	}

	bundle := &models.ContextBundle{Approach: models.ApproachMetaPrompt}
	for _, r := range suggestions {
		if text := strings.TrimSpace(r.Detail); text != "" {
			bundle.Suggestions = append(bundle.Suggestions, text)
		}
	}
	return bundle, nil
}

// AssembleAdversarial collects truncated error excerpts plus edge-case seeds
func AssembleAdversarial(ctx context.Context, src FeedbackSource, promptID string, opts AssemblyOptions) (*models.ContextBundle, error) {
	errs, err := src.Examples(ctx, promptID, models.FeedbackError, opts.Window, opts.Limit)
	if err != nil {
		return nil, err
	}

	bundle := &models.ContextBundle{Approach: models.ApproachAdversarial}
	seen := make(map[string]bool)
	for _, r := range errs {
		excerpt := truncate(strings.TrimSpace(r.Detail), MaxErrorExcerpt)
		if excerpt == "" || seen[excerpt] {
			continue
		}
		seen[excerpt] = true
		bundle.ErrorExcerpts = append(bundle.ErrorExcerpts, excerpt)
	}
	bundle.EdgeCaseSeeds = slices.Clone(edgeCaseSeeds)
	return bundle, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/longregen/promptforge/internal/domain/models"
)

// TrainingRunRepository keeps the global training run history in start order
type TrainingRunRepository struct {
	mu   sync.RWMutex
	runs []*models.TrainingRun
	byID map[string]*models.TrainingRun
}

// NewTrainingRunRepository creates an empty run repository
func NewTrainingRunRepository() *TrainingRunRepository {
	return &TrainingRunRepository{byID: make(map[string]*models.TrainingRun)}
}

func cloneRun(run *models.TrainingRun) *models.TrainingRun {
	c := *run
	c.FinishedAt = clonePtr(run.FinishedAt)
	return &c
}

func (r *TrainingRunRepository) Create(ctx context.Context, run *models.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[run.ID]; exists {
		return fmt.Errorf("training run %s already exists", run.ID)
	}
	stored := cloneRun(run)
	r.runs = append(r.runs, stored)
	r.byID[stored.ID] = stored
	return nil
}

func (r *TrainingRunRepository) Update(ctx context.Context, run *models.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[run.ID]
	if !ok {
		return notFound("training run %s", run.ID)
	}
	*stored = *cloneRun(run)
	return nil
}

func (r *TrainingRunRepository) GetByID(ctx context.Context, id string) (*models.TrainingRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.byID[id]
	if !ok {
		return nil, notFound("training run %s", id)
	}
	return cloneRun(run), nil
}

// GetLatestByPrompt returns the run with the latest start time for the prompt
func (r *TrainingRunRepository) GetLatestByPrompt(ctx context.Context, promptID string) (*models.TrainingRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.TrainingRun
	for _, run := range r.runs {
		if run.PromptID != promptID {
			continue
		}
		if latest == nil || !run.StartedAt.Before(latest.StartedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, notFound("training run for prompt %s", promptID)
	}
	return cloneRun(latest), nil
}

// ListByPrompt returns the prompt's runs newest first
func (r *TrainingRunRepository) ListByPrompt(ctx context.Context, promptID string, limit int) ([]*models.TrainingRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.TrainingRun
	for i := len(r.runs) - 1; i >= 0; i-- {
		if r.runs[i].PromptID != promptID {
			continue
		}
		out = append(out, cloneRun(r.runs[i]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ListRecent returns the most recent runs across all prompts, newest first
func (r *TrainingRunRepository) ListRecent(ctx context.Context, limit int) ([]*models.TrainingRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.TrainingRun
	for i := len(r.runs) - 1; i >= 0; i-- {
		out = append(out, cloneRun(r.runs[i]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

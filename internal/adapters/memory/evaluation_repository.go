package memory

import (
	"context"
	"sync"

	"github.com/longregen/promptforge/internal/domain/models"
)

// EvaluationRepository keeps evaluation results by candidate version
type EvaluationRepository struct {
	mu        sync.RWMutex
	byVersion map[string]*models.EvaluationResult
}

// NewEvaluationRepository creates an empty evaluation repository
func NewEvaluationRepository() *EvaluationRepository {
	return &EvaluationRepository{byVersion: make(map[string]*models.EvaluationResult)}
}

func (r *EvaluationRepository) Create(ctx context.Context, result *models.EvaluationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *result
	r.byVersion[result.VersionID] = &c
	return nil
}

func (r *EvaluationRepository) GetByVersion(ctx context.Context, versionID string) (*models.EvaluationResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result, ok := r.byVersion[versionID]
	if !ok {
		return nil, notFound("evaluation for version %s", versionID)
	}
	c := *result
	return &c, nil
}

// TransactionManager runs fn directly. Writers to one prompt are already
// serialized by the prompt lock table.
type TransactionManager struct{}

// NewTransactionManager creates a pass-through transaction manager
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{}
}

func (TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Store bundles the in-memory repositories
type Store struct {
	Feedback    *FeedbackRepository
	Versions    *PromptVersionRepository
	Runs        *TrainingRunRepository
	Evaluations *EvaluationRepository
	Tx          *TransactionManager
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		Feedback:    NewFeedbackRepository(),
		Versions:    NewPromptVersionRepository(),
		Runs:        NewTrainingRunRepository(),
		Evaluations: NewEvaluationRepository(),
		Tx:          NewTransactionManager(),
	}
}

package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
)

// PromptVersionRepository keeps the version history of every prompt in
// version-number order. Reads return copies.
type PromptVersionRepository struct {
	mu       sync.RWMutex
	byPrompt map[string][]*models.PromptVersion
	byID     map[string]*models.PromptVersion
}

// NewPromptVersionRepository creates an empty version repository
func NewPromptVersionRepository() *PromptVersionRepository {
	return &PromptVersionRepository{
		byPrompt: make(map[string][]*models.PromptVersion),
		byID:     make(map[string]*models.PromptVersion),
	}
}

func cloneVersion(v *models.PromptVersion) *models.PromptVersion {
	c := *v
	c.EvaluatedAt = clonePtr(v.EvaluatedAt)
	c.DeployedAt = clonePtr(v.DeployedAt)
	c.ArchivedAt = clonePtr(v.ArchivedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func notFound(format string, args ...any) error {
	return domain.NotFound(fmt.Sprintf(format, args...))
}

// Create assigns the next version number under the write lock
func (r *PromptVersionRepository) Create(ctx context.Context, version *models.PromptVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[version.ID]; exists {
		return fmt.Errorf("version %s already exists", version.ID)
	}

	history := r.byPrompt[version.PromptID]
	version.VersionNumber = len(history) + 1

	stored := cloneVersion(version)
	r.byPrompt[version.PromptID] = append(history, stored)
	r.byID[stored.ID] = stored
	return nil
}

func (r *PromptVersionRepository) GetByID(ctx context.Context, id string) (*models.PromptVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.byID[id]
	if !ok {
		return nil, notFound("version %s", id)
	}
	return cloneVersion(v), nil
}

func (r *PromptVersionRepository) GetByNumber(ctx context.Context, promptID string, versionNumber int) (*models.PromptVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.byPrompt[promptID]
	if versionNumber < 1 || versionNumber > len(history) {
		return nil, notFound("version %d of prompt %s", versionNumber, promptID)
	}
	return cloneVersion(history[versionNumber-1]), nil
}

func (r *PromptVersionRepository) GetDeployed(ctx context.Context, promptID string) (*models.PromptVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.byPrompt[promptID] {
		if v.Status == models.VersionStatusDeployed {
			return cloneVersion(v), nil
		}
	}
	return nil, notFound("deployed version of prompt %s", promptID)
}

func (r *PromptVersionRepository) GetLatest(ctx context.Context, promptID string) (*models.PromptVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.byPrompt[promptID]
	if len(history) == 0 {
		return nil, notFound("prompt %s", promptID)
	}
	return cloneVersion(history[len(history)-1]), nil
}

func (r *PromptVersionRepository) ListPage(ctx context.Context, promptID string, beforeNumber, limit int) ([]*models.PromptVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.byPrompt[promptID]
	end := len(history)
	if beforeNumber > 0 && beforeNumber-1 < end {
		end = beforeNumber - 1
	}

	var out []*models.PromptVersion
	for i := end - 1; i >= 0; i-- {
		out = append(out, cloneVersion(history[i]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// UpdateStatus writes the mutable status fields back
func (r *PromptVersionRepository) UpdateStatus(ctx context.Context, version *models.PromptVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[version.ID]
	if !ok {
		return notFound("version %s", version.ID)
	}
	stored.Status = version.Status
	stored.StatusReason = version.StatusReason
	stored.PreviousDeployedID = version.PreviousDeployedID
	stored.EvaluatedAt = clonePtr(version.EvaluatedAt)
	stored.DeployedAt = clonePtr(version.DeployedAt)
	stored.ArchivedAt = clonePtr(version.ArchivedAt)
	return nil
}

func (r *PromptVersionRepository) PromptIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byPrompt))
	for id := range r.byPrompt {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids, nil
}

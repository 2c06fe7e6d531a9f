package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/longregen/promptforge/internal/adapters/metrics"
	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/logging"
	"github.com/longregen/promptforge/internal/ports"
)

// VersionConfig tunes the version manager
type VersionConfig struct {
	// DeployRetryDelay is how long a deploy waits before its single retry on lock contention
	DeployRetryDelay time.Duration
	// PageSize is the number of versions fetched per History page
	PageSize int
}

// DefaultVersionConfig returns the default version manager settings
func DefaultVersionConfig() VersionConfig {
	return VersionConfig{
		DeployRetryDelay: 100 * time.Millisecond,
		PageSize:         50,
	}
}

// PromptOverview is the operator view of one prompt
type PromptOverview struct {
	PromptID     string                `json:"prompt_id"`
	Active       *models.PromptVersion `json:"active"`
	HasDeployed  bool                  `json:"has_deployed"`
	VersionCount int                   `json:"version_count"`
}

// VersionService owns the authoritative version history of every prompt.
// Deploy and rollback run under the per-prompt lock shared with training.
type VersionService struct {
	repo        ports.PromptVersionRepository
	txManager   ports.TransactionManager
	locks       *PromptLocks
	idGenerator ports.IDGenerator
	clock       ports.Clock
	config      VersionConfig
	logger      *zap.Logger

	mu        sync.RWMutex
	listeners []func(promptID string)
}

// NewVersionService creates a new version service
func NewVersionService(
	repo ports.PromptVersionRepository,
	txManager ports.TransactionManager,
	locks *PromptLocks,
	idGenerator ports.IDGenerator,
	clock ports.Clock,
	config VersionConfig,
	logger *zap.Logger,
) *VersionService {
	if config.PageSize <= 0 {
		config.PageSize = DefaultVersionConfig().PageSize
	}
	return &VersionService{
		repo:        repo,
		txManager:   txManager,
		locks:       locks,
		idGenerator: idGenerator,
		clock:       clock,
		config:      config,
		logger:      logging.OrNop(logger),
	}
}

// OnChange registers fn to be called after the deployed version of a prompt changes
func (s *VersionService) OnChange(fn func(promptID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *VersionService) notify(promptID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.listeners {
		fn(promptID)
	}
}

// CreateDraft appends a draft version produced by a training approach or an operator
func (s *VersionService) CreateDraft(ctx context.Context, promptID, text, producedBy string) (*models.PromptVersion, error) {
	if err := ValidatePromptID(promptID); err != nil {
		return nil, err
	}
	if err := ValidateRequired(text, "prompt text"); err != nil {
		return nil, err
	}
	if err := ValidateRequired(producedBy, "producer"); err != nil {
		return nil, err
	}

	version := models.NewPromptVersion(s.idGenerator.GeneratePromptVersionID(), promptID, text, producedBy, s.clock.Now())
	if err := s.repo.Create(ctx, version); err != nil {
		return nil, domain.NewDomainError(err, "failed to create prompt version")
	}

	s.logger.Info("created prompt version",
		zap.String("prompt_id", promptID),
		zap.Int("version", version.VersionNumber),
		zap.String("produced_by", producedBy))

	return version, nil
}

// CreateManual appends an operator-authored draft version
func (s *VersionService) CreateManual(ctx context.Context, promptID, text string) (*models.PromptVersion, error) {
	return s.CreateDraft(ctx, promptID, text, models.ProducedByManual)
}

// Get returns a version by number
func (s *VersionService) Get(ctx context.Context, promptID string, versionNumber int) (*models.PromptVersion, error) {
	if err := ValidatePromptID(promptID); err != nil {
		return nil, err
	}
	if err := ValidatePositive(versionNumber, "version number"); err != nil {
		return nil, err
	}
	v, err := s.repo.GetByNumber(ctx, promptID, versionNumber)
	if err != nil {
		return nil, wrapRepoError(err, fmt.Sprintf("version %d of prompt %s", versionNumber, promptID))
	}
	return v, nil
}

// Baseline returns the deployed version, or the latest version when nothing is deployed
func (s *VersionService) Baseline(ctx context.Context, promptID string) (*models.PromptVersion, error) {
	deployed, err := s.repo.GetDeployed(ctx, promptID)
	if err == nil {
		return deployed, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewDomainError(err, "failed to get deployed version")
	}

	latest, err := s.repo.GetLatest(ctx, promptID)
	if err != nil {
		return nil, wrapRepoError(err, "baseline for prompt "+promptID)
	}
	return latest, nil
}

// Deploy deploys a version by number, taking the prompt lock
func (s *VersionService) Deploy(ctx context.Context, promptID string, versionNumber int) (*models.PromptVersion, error) {
	v, err := s.Get(ctx, promptID, versionNumber)
	if err != nil {
		return nil, err
	}
	return s.DeployVersion(ctx, v)
}

// DeployVersion deploys version, taking the prompt lock. Lock contention is
// retried once before failing with ErrAlreadyRunning. Deploying the already
// deployed version is a no-op.
func (s *VersionService) DeployVersion(ctx context.Context, version *models.PromptVersion) (*models.PromptVersion, error) {
	if version == nil {
		return nil, domain.Validation("version is required")
	}

	release, err := s.acquire(ctx, version.PromptID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.DeployHeld(ctx, version.ID)
}

// DeployHeld deploys a version for a caller that already holds the prompt lock
func (s *VersionService) DeployHeld(ctx context.Context, versionID string) (*models.PromptVersion, error) {
	var deployed *models.PromptVersion
	changed := false

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		changed = false
		target, err := s.repo.GetByID(ctx, versionID)
		if err != nil {
			return wrapRepoError(err, "version "+versionID)
		}
		if target.IsDeployed() {
			deployed = target
			return nil
		}
		if !models.CanDeploy(target.Status) {
			return domain.NewDomainError(domain.ErrInvalidState,
				fmt.Sprintf("version %d of prompt %s is %s and cannot be deployed", target.VersionNumber, target.PromptID, target.Status))
		}

		now := s.clock.Now()
		previousID := ""
		current, err := s.repo.GetDeployed(ctx, target.PromptID)
		switch {
		case err == nil:
			if err := current.MarkArchived(fmt.Sprintf("superseded by version %d", target.VersionNumber), now); err != nil {
				return domain.NewDomainError(domain.ErrInvalidState, err.Error())
			}
			if err := s.repo.UpdateStatus(ctx, current); err != nil {
				return domain.NewDomainError(err, "failed to archive deployed version")
			}
			previousID = current.ID
		case errors.Is(err, domain.ErrNotFound):
		default:
			return domain.NewDomainError(err, "failed to get deployed version")
		}

		if err := target.MarkDeployed(previousID, now); err != nil {
			return domain.NewDomainError(domain.ErrInvalidState, err.Error())
		}
		if err := s.repo.UpdateStatus(ctx, target); err != nil {
			return domain.NewDomainError(err, "failed to deploy version")
		}

		deployed = target
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		metrics.DeploymentsTotal.WithLabelValues("deploy").Inc()
		s.logger.Info("deployed prompt version",
			zap.String("prompt_id", deployed.PromptID),
			zap.Int("version", deployed.VersionNumber),
			zap.String("previous_id", deployed.PreviousDeployedID))
		s.notify(deployed.PromptID)
	}

	return deployed, nil
}

// ArchiveHeld archives a version with a reason for a caller that holds the prompt lock
func (s *VersionService) ArchiveHeld(ctx context.Context, version *models.PromptVersion, reason string) error {
	if err := version.MarkArchived(reason, s.clock.Now()); err != nil {
		return domain.NewDomainError(domain.ErrInvalidState, err.Error())
	}
	if err := s.repo.UpdateStatus(ctx, version); err != nil {
		return domain.NewDomainError(err, "failed to archive version")
	}
	return nil
}

// MarkEvaluated advances a candidate to evaluated
func (s *VersionService) MarkEvaluated(ctx context.Context, version *models.PromptVersion) error {
	if err := version.MarkEvaluated(s.clock.Now()); err != nil {
		return domain.NewDomainError(domain.ErrInvalidState, err.Error())
	}
	if err := s.repo.UpdateStatus(ctx, version); err != nil {
		return domain.NewDomainError(err, "failed to mark version evaluated")
	}
	return nil
}

// Rollback restores the version the current deployment replaced and archives
// the current one. The restored version has no rollback target, so a second
// rollback fails with ErrNoRollbackTarget.
func (s *VersionService) Rollback(ctx context.Context, promptID string) (*models.PromptVersion, error) {
	if err := ValidatePromptID(promptID); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, promptID)
	if err != nil {
		return nil, err
	}
	defer release()

	var restored *models.PromptVersion
	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetDeployed(ctx, promptID)
		if errors.Is(err, domain.ErrNotFound) {
			return noRollbackTarget(promptID, "nothing is deployed")
		}
		if err != nil {
			return domain.NewDomainError(err, "failed to get deployed version")
		}
		if current.PreviousDeployedID == "" {
			return noRollbackTarget(promptID, "no earlier deployed version")
		}

		previous, err := s.repo.GetByID(ctx, current.PreviousDeployedID)
		if errors.Is(err, domain.ErrNotFound) {
			return noRollbackTarget(promptID, "previous version no longer exists")
		}
		if err != nil {
			return domain.NewDomainError(err, "failed to get previous version")
		}
		if previous.Status != models.VersionStatusArchived {
			return noRollbackTarget(promptID, fmt.Sprintf("previous version is %s", previous.Status))
		}

		now := s.clock.Now()
		if err := current.MarkArchived(fmt.Sprintf("rolled back to version %d", previous.VersionNumber), now); err != nil {
			return domain.NewDomainError(domain.ErrInvalidState, err.Error())
		}
		if err := s.repo.UpdateStatus(ctx, current); err != nil {
			return domain.NewDomainError(err, "failed to archive deployed version")
		}
		if err := previous.Restore(now); err != nil {
			return domain.NewDomainError(domain.ErrInvalidState, err.Error())
		}
		if err := s.repo.UpdateStatus(ctx, previous); err != nil {
			return domain.NewDomainError(err, "failed to restore previous version")
		}

		restored = previous
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.DeploymentsTotal.WithLabelValues("rollback").Inc()
	s.logger.Info("rolled back prompt",
		zap.String("prompt_id", promptID),
		zap.Int("restored_version", restored.VersionNumber))
	s.notify(promptID)

	return restored, nil
}

// History yields the versions of a prompt newest first, fetching one page at a
// time. Each range over the sequence starts again from the newest version.
func (s *VersionService) History(ctx context.Context, promptID string) iter.Seq2[*models.PromptVersion, error] {
	return func(yield func(*models.PromptVersion, error) bool) {
		if err := ValidatePromptID(promptID); err != nil {
			yield(nil, err)
			return
		}

		before := 0
		for {
			page, err := s.repo.ListPage(ctx, promptID, before, s.config.PageSize)
			if err != nil {
				yield(nil, domain.NewDomainError(err, "failed to list versions"))
				return
			}
			for _, v := range page {
				if !yield(v, nil) {
					return
				}
			}
			if len(page) < s.config.PageSize {
				return
			}
			before = page[len(page)-1].VersionNumber
		}
	}
}

// List collects up to limit versions newest first; limit <= 0 returns all of them
func (s *VersionService) List(ctx context.Context, promptID string, limit int) ([]*models.PromptVersion, error) {
	var out []*models.PromptVersion
	for v, err := range s.History(ctx, promptID) {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Show returns the active version of a prompt and its version count
func (s *VersionService) Show(ctx context.Context, promptID string) (*PromptOverview, error) {
	if err := ValidatePromptID(promptID); err != nil {
		return nil, err
	}

	active, err := s.Baseline(ctx, promptID)
	if err != nil {
		return nil, err
	}
	latest, err := s.repo.GetLatest(ctx, promptID)
	if err != nil {
		return nil, wrapRepoError(err, "latest version of prompt "+promptID)
	}

	return &PromptOverview{
		PromptID:     promptID,
		Active:       active,
		HasDeployed:  active.IsDeployed(),
		VersionCount: latest.VersionNumber,
	}, nil
}

// Export returns the deployed text and metadata for the serving layer
func (s *VersionService) Export(ctx context.Context, promptID string) (*models.ExportedPrompt, error) {
	if err := ValidatePromptID(promptID); err != nil {
		return nil, err
	}

	deployed, err := s.repo.GetDeployed(ctx, promptID)
	if err != nil {
		return nil, wrapRepoError(err, "deployed version of prompt "+promptID)
	}
	return models.NewExportedPrompt(deployed), nil
}

// PromptIDs returns every prompt with version history
func (s *VersionService) PromptIDs(ctx context.Context) ([]string, error) {
	ids, err := s.repo.PromptIDs(ctx)
	if err != nil {
		return nil, domain.NewDomainError(err, "failed to list prompts")
	}
	return ids, nil
}

// acquire takes the prompt lock, retrying once after DeployRetryDelay
func (s *VersionService) acquire(ctx context.Context, promptID string) (func(), error) {
	if release, ok := s.locks.TryAcquire(promptID); ok {
		return release, nil
	}

	timer := time.NewTimer(s.config.DeployRetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	if release, ok := s.locks.TryAcquire(promptID); ok {
		return release, nil
	}
	return nil, domain.NewDomainError(domain.ErrAlreadyRunning,
		fmt.Sprintf("prompt %s is locked by another operation", promptID))
}

func noRollbackTarget(promptID, why string) error {
	return domain.NewDomainError(domain.ErrNoRollbackTarget, fmt.Sprintf("cannot roll back prompt %s: %s", promptID, why))
}

// wrapRepoError keeps not-found errors distinguishable for callers
func wrapRepoError(err error, what string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NotFound(what + " not found")
	}
	return domain.NewDomainError(err, "failed to load "+what)
}

package ports

import (
	"context"
	"time"

	"github.com/longregen/promptforge/internal/domain/models"
)

// FeedbackRepository defines operations for the append-only feedback log.
// Implementations return domain.ErrNotFound (wrapped) for missing rows.
type FeedbackRepository interface {
	Append(ctx context.Context, record *models.FeedbackRecord) error

	// Counts aggregates records at or after since from a single consistent snapshot
	Counts(ctx context.Context, promptID string, since time.Time) (models.FeedbackCounts, error)

	// ListByKind returns records of one kind at or after since, newest first
	ListByKind(ctx context.Context, promptID string, kind models.FeedbackKind, since time.Time, limit int) ([]*models.FeedbackRecord, error)

	// ListTopRated returns records of one kind with non-blank detail at or after
	// since, highest value first. Unrated records sort last; ties go newest first.
	ListTopRated(ctx context.Context, promptID string, kind models.FeedbackKind, since time.Time, limit int) ([]*models.FeedbackRecord, error)

	// DeleteOlderThan purges records with a timestamp before cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// PromptIDs returns every prompt that has feedback
	PromptIDs(ctx context.Context) ([]string, error)
}

// PromptVersionRepository defines operations for per-prompt version history.
// Callers serialize writes per prompt through the prompt lock table.
type PromptVersionRepository interface {
	// Create assigns the next version number for the prompt and stores the version
	Create(ctx context.Context, version *models.PromptVersion) error
	GetByID(ctx context.Context, id string) (*models.PromptVersion, error)
	GetByNumber(ctx context.Context, promptID string, versionNumber int) (*models.PromptVersion, error)
	GetDeployed(ctx context.Context, promptID string) (*models.PromptVersion, error)
	GetLatest(ctx context.Context, promptID string) (*models.PromptVersion, error)

	// ListPage returns up to limit versions newest first with a number below
	// beforeNumber; beforeNumber <= 0 starts from the newest version
	ListPage(ctx context.Context, promptID string, beforeNumber, limit int) ([]*models.PromptVersion, error)

	// UpdateStatus persists status, reason, timestamps and rollback pointer in place
	UpdateStatus(ctx context.Context, version *models.PromptVersion) error

	PromptIDs(ctx context.Context) ([]string, error)
}

// TrainingRunRepository defines operations for the global training run history
type TrainingRunRepository interface {
	Create(ctx context.Context, run *models.TrainingRun) error
	Update(ctx context.Context, run *models.TrainingRun) error
	GetByID(ctx context.Context, id string) (*models.TrainingRun, error)
	GetLatestByPrompt(ctx context.Context, promptID string) (*models.TrainingRun, error)
	ListByPrompt(ctx context.Context, promptID string, limit int) ([]*models.TrainingRun, error)
	ListRecent(ctx context.Context, limit int) ([]*models.TrainingRun, error)
}

// EvaluationRepository defines operations for evaluation results
type EvaluationRepository interface {
	Create(ctx context.Context, result *models.EvaluationResult) error
	GetByVersion(ctx context.Context, versionID string) (*models.EvaluationResult, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	// WithTransaction executes fn within a database transaction, rolling back
	// when fn fails. Implementations may rerun fn after a write conflict.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IDGenerator defines the interface for generating unique IDs
type IDGenerator interface {
	// GenerateFeedbackID generates a new feedback record ID (fb_xxx)
	GenerateFeedbackID() string

	// GeneratePromptVersionID generates a new prompt version ID (pv_xxx)
	GeneratePromptVersionID() string

	// GenerateTrainingRunID generates a new training run ID (tr_xxx)
	GenerateTrainingRunID() string

	// GenerateEvaluationID generates a new evaluation result ID (ev_xxx)
	GenerateEvaluationID() string
}

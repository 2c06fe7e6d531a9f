package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
)

// maxCreateAttempts bounds retries when two writers race for the same version number
const maxCreateAttempts = 5

const versionColumns = `id, prompt_id, version_number, text, hash, produced_by, status, status_reason,
	previous_deployed_id, created_at, evaluated_at, deployed_at, archived_at`

type PromptVersionRepository struct {
	BaseRepository
}

func NewPromptVersionRepository(pool *pgxpool.Pool) *PromptVersionRepository {
	return &PromptVersionRepository{BaseRepository: NewBaseRepository(pool)}
}

// Create numbers the version MAX+1 within the prompt. The unique constraint on
// (prompt_id, version_number) rejects a concurrent writer, which then retries
// with the next number, so numbers stay gap-free.
func (r *PromptVersionRepository) Create(ctx context.Context, version *models.PromptVersion) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO prompt_versions (
			id, prompt_id, version_number, text, hash, produced_by, status, status_reason, created_at
		)
		SELECT $1, $2, COALESCE(MAX(version_number), 0) + 1, $3, $4, $5, $6, $7, $8
		FROM prompt_versions
		WHERE prompt_id = $2
		RETURNING version_number`

	err := r.retryOnConflict(ctx, maxCreateAttempts, func() error {
		return r.conn(ctx).QueryRow(ctx, query,
			version.ID,
			version.PromptID,
			version.Text,
			version.Hash,
			version.ProducedBy,
			string(version.Status),
			version.StatusReason,
			version.CreatedAt,
		).Scan(&version.VersionNumber)
	})
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to create prompt version: %w", err)
}

func (r *PromptVersionRepository) GetByID(ctx context.Context, id string) (*models.PromptVersion, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + versionColumns + ` FROM prompt_versions WHERE id = $1`
	v, err := r.scanVersion(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "version "+id)
	}
	return v, nil
}

func (r *PromptVersionRepository) GetByNumber(ctx context.Context, promptID string, versionNumber int) (*models.PromptVersion, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + versionColumns + ` FROM prompt_versions WHERE prompt_id = $1 AND version_number = $2`
	v, err := r.scanVersion(r.conn(ctx).QueryRow(ctx, query, promptID, versionNumber))
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("version %d of prompt %s", versionNumber, promptID))
	}
	return v, nil
}

func (r *PromptVersionRepository) GetDeployed(ctx context.Context, promptID string) (*models.PromptVersion, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + versionColumns + ` FROM prompt_versions WHERE prompt_id = $1 AND status = 'deployed'`
	v, err := r.scanVersion(r.conn(ctx).QueryRow(ctx, query, promptID))
	if err != nil {
		return nil, notFoundOr(err, "deployed version of prompt "+promptID)
	}
	return v, nil
}

func (r *PromptVersionRepository) GetLatest(ctx context.Context, promptID string) (*models.PromptVersion, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + versionColumns + ` FROM prompt_versions WHERE prompt_id = $1 ORDER BY version_number DESC LIMIT 1`
	v, err := r.scanVersion(r.conn(ctx).QueryRow(ctx, query, promptID))
	if err != nil {
		return nil, notFoundOr(err, "prompt "+promptID)
	}
	return v, nil
}

func (r *PromptVersionRepository) ListPage(ctx context.Context, promptID string, beforeNumber, limit int) ([]*models.PromptVersion, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + versionColumns + `
		FROM prompt_versions
		WHERE prompt_id = $1 AND ($2 <= 0 OR version_number < $2)
		ORDER BY version_number DESC
		LIMIT $3`

	rows, err := r.conn(ctx).Query(ctx, query, promptID, beforeNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*models.PromptVersion, 0, limit)
	for rows.Next() {
		v, err := r.scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (r *PromptVersionRepository) UpdateStatus(ctx context.Context, version *models.PromptVersion) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE prompt_versions
		SET status = $2, status_reason = $3, previous_deployed_id = $4,
			evaluated_at = $5, deployed_at = $6, archived_at = $7
		WHERE id = $1`

	tag, err := r.conn(ctx).Exec(ctx, query,
		version.ID,
		string(version.Status),
		version.StatusReason,
		nullString(version.PreviousDeployedID),
		nullTime(version.EvaluatedAt),
		nullTime(version.DeployedAt),
		nullTime(version.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update version status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("version " + version.ID + " not found")
	}
	return nil
}

func (r *PromptVersionRepository) PromptIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.conn(ctx).Query(ctx, `SELECT DISTINCT prompt_id FROM prompt_versions ORDER BY prompt_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list versioned prompts: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PromptVersionRepository) scanVersion(row pgx.Row) (*models.PromptVersion, error) {
	var v models.PromptVersion
	var status string
	var previousID sql.NullString
	var evaluatedAt, deployedAt, archivedAt sql.NullTime

	err := row.Scan(
		&v.ID,
		&v.PromptID,
		&v.VersionNumber,
		&v.Text,
		&v.Hash,
		&v.ProducedBy,
		&status,
		&v.StatusReason,
		&previousID,
		&v.CreatedAt,
		&evaluatedAt,
		&deployedAt,
		&archivedAt,
	)
	if err != nil {
		return nil, err
	}

	v.Status = models.VersionStatus(status)
	v.PreviousDeployedID = getString(previousID)
	v.CreatedAt = v.CreatedAt.UTC()
	v.EvaluatedAt = getTimePtr(evaluatedAt)
	v.DeployedAt = getTimePtr(deployedAt)
	v.ArchivedAt = getTimePtr(archivedAt)

	return &v, nil
}

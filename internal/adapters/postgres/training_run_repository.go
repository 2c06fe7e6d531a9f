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

const runColumns = `id, prompt_id, approach, triggered_by, started_at, finished_at, outcome,
	failure_reason, produced_version_id, evaluation_id, recommendation`

type TrainingRunRepository struct {
	BaseRepository
}

func NewTrainingRunRepository(pool *pgxpool.Pool) *TrainingRunRepository {
	return &TrainingRunRepository{BaseRepository: NewBaseRepository(pool)}
}

func (r *TrainingRunRepository) Create(ctx context.Context, run *models.TrainingRun) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO training_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.conn(ctx).Exec(ctx, query,
		run.ID,
		run.PromptID,
		string(run.Approach),
		run.Trigger,
		run.StartedAt,
		nullTime(run.FinishedAt),
		string(run.Outcome),
		run.FailureReason,
		nullString(run.ProducedVersionID),
		nullString(run.EvaluationID),
		string(run.Recommendation),
	)
	if err != nil {
		return fmt.Errorf("failed to create training run: %w", err)
	}
	return nil
}

func (r *TrainingRunRepository) Update(ctx context.Context, run *models.TrainingRun) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE training_runs
		SET finished_at = $2, outcome = $3, failure_reason = $4,
			produced_version_id = $5, evaluation_id = $6, recommendation = $7
		WHERE id = $1`

	tag, err := r.conn(ctx).Exec(ctx, query,
		run.ID,
		nullTime(run.FinishedAt),
		string(run.Outcome),
		run.FailureReason,
		nullString(run.ProducedVersionID),
		nullString(run.EvaluationID),
		string(run.Recommendation),
	)
	if err != nil {
		return fmt.Errorf("failed to update training run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("training run " + run.ID + " not found")
	}
	return nil
}

func (r *TrainingRunRepository) GetByID(ctx context.Context, id string) (*models.TrainingRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM training_runs WHERE id = $1`
	run, err := r.scanRun(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "training run "+id)
	}
	return run, nil
}

func (r *TrainingRunRepository) GetLatestByPrompt(ctx context.Context, promptID string) (*models.TrainingRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM training_runs WHERE prompt_id = $1 ORDER BY started_at DESC, id DESC LIMIT 1`
	run, err := r.scanRun(r.conn(ctx).QueryRow(ctx, query, promptID))
	if err != nil {
		return nil, notFoundOr(err, "training run for prompt "+promptID)
	}
	return run, nil
}

func (r *TrainingRunRepository) ListByPrompt(ctx context.Context, promptID string, limit int) ([]*models.TrainingRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM training_runs WHERE prompt_id = $1 ORDER BY started_at DESC, id DESC LIMIT $2`
	rows, err := r.conn(ctx).Query(ctx, query, promptID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list training runs: %w", err)
	}
	defer rows.Close()

	return r.scanRuns(rows)
}

func (r *TrainingRunRepository) ListRecent(ctx context.Context, limit int) ([]*models.TrainingRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM training_runs ORDER BY started_at DESC, id DESC LIMIT $1`
	rows, err := r.conn(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list training runs: %w", err)
	}
	defer rows.Close()

	return r.scanRuns(rows)
}

func (r *TrainingRunRepository) scanRun(row pgx.Row) (*models.TrainingRun, error) {
	var run models.TrainingRun
	var approach, outcome, recommendation string
	var finishedAt sql.NullTime
	var versionID, evaluationID sql.NullString

	err := row.Scan(
		&run.ID,
		&run.PromptID,
		&approach,
		&run.Trigger,
		&run.StartedAt,
		&finishedAt,
		&outcome,
		&run.FailureReason,
		&versionID,
		&evaluationID,
		&recommendation,
	)
	if err != nil {
		return nil, err
	}

	run.Approach = models.Approach(approach)
	run.Outcome = models.RunOutcome(outcome)
	run.Recommendation = models.Recommendation(recommendation)
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = getTimePtr(finishedAt)
	run.ProducedVersionID = getString(versionID)
	run.EvaluationID = getString(evaluationID)

	return &run, nil
}

func (r *TrainingRunRepository) scanRuns(rows pgx.Rows) ([]*models.TrainingRun, error) {
	runs := make([]*models.TrainingRun, 0)
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/longregen/promptforge/internal/domain/models"
)

type EvaluationRepository struct {
	BaseRepository
}

func NewEvaluationRepository(pool *pgxpool.Pool) *EvaluationRepository {
	return &EvaluationRepository{BaseRepository: NewBaseRepository(pool)}
}

func (r *EvaluationRepository) Create(ctx context.Context, result *models.EvaluationResult) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	candidate, err := json.Marshal(result.Candidate)
	if err != nil {
		return fmt.Errorf("failed to encode candidate metrics: %w", err)
	}
	baseline, err := json.Marshal(result.Baseline)
	if err != nil {
		return fmt.Errorf("failed to encode baseline metrics: %w", err)
	}
	delta, err := json.Marshal(result.Delta)
	if err != nil {
		return fmt.Errorf("failed to encode metric deltas: %w", err)
	}

	query := `
		INSERT INTO evaluation_results (
			id, prompt_id, version_id, baseline_version_id, candidate, baseline, delta,
			recommendation, reason, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err = r.conn(ctx).Exec(ctx, query,
		result.ID,
		result.PromptID,
		result.VersionID,
		nullString(result.BaselineVersionID),
		candidate,
		baseline,
		delta,
		string(result.Recommendation),
		result.Reason,
		result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store evaluation result: %w", err)
	}
	return nil
}

// GetByVersion returns the most recent evaluation of a version
func (r *EvaluationRepository) GetByVersion(ctx context.Context, versionID string) (*models.EvaluationResult, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, prompt_id, version_id, baseline_version_id, candidate, baseline, delta,
			recommendation, reason, created_at
		FROM evaluation_results
		WHERE version_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var result models.EvaluationResult
	var baselineID sql.NullString
	var candidate, baseline, delta []byte
	var recommendation string

	err := r.conn(ctx).QueryRow(ctx, query, versionID).Scan(
		&result.ID,
		&result.PromptID,
		&result.VersionID,
		&baselineID,
		&candidate,
		&baseline,
		&delta,
		&recommendation,
		&result.Reason,
		&result.CreatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, "evaluation of version "+versionID)
	}

	result.BaselineVersionID = getString(baselineID)
	result.Recommendation = models.Recommendation(recommendation)
	result.CreatedAt = result.CreatedAt.UTC()
	for _, f := range []struct {
		data   []byte
		target *models.Metrics
	}{
		{candidate, &result.Candidate},
		{baseline, &result.Baseline},
		{delta, &result.Delta},
	} {
		if err := unmarshalJSONField(f.data, f.target); err != nil {
			return nil, fmt.Errorf("failed to decode evaluation metrics: %w", err)
		}
	}

	return &result, nil
}

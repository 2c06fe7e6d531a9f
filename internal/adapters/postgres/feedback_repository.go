package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/longregen/promptforge/internal/domain/models"
)

type FeedbackRepository struct {
	BaseRepository
}

func NewFeedbackRepository(pool *pgxpool.Pool) *FeedbackRepository {
	return &FeedbackRepository{BaseRepository: NewBaseRepository(pool)}
}

func (r *FeedbackRepository) Append(ctx context.Context, record *models.FeedbackRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	contextJSON, err := marshalJSONMap(record.Context)
	if err != nil {
		return fmt.Errorf("failed to encode feedback context: %w", err)
	}

	query := `
		INSERT INTO feedback_records (
			id, prompt_id, kind, value, detail, source, session_id, context, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err = r.conn(ctx).Exec(ctx, query,
		record.ID,
		record.PromptID,
		string(record.Kind),
		nullFloat(record.Value),
		record.Detail,
		record.Source,
		nullString(record.SessionID),
		contextJSON,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}
	return nil
}

// Counts computes every aggregate in one statement so the summary reflects a
// single snapshot even while a purge runs
func (r *FeedbackRepository) Counts(ctx context.Context, promptID string, since time.Time) (models.FeedbackCounts, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE kind = 'rating'),
			COUNT(*) FILTER (WHERE kind = 'error'),
			COUNT(*) FILTER (WHERE kind = 'success'),
			COUNT(*) FILTER (WHERE kind = 'suggestion'),
			COUNT(value),
			COALESCE(SUM(value), 0)
		FROM feedback_records
		WHERE prompt_id = $1 AND recorded_at >= $2`

	var c models.FeedbackCounts
	err := r.conn(ctx).QueryRow(ctx, query, promptID, since).Scan(
		&c.Total,
		&c.Ratings,
		&c.Errors,
		&c.Successes,
		&c.Suggestions,
		&c.RatedCount,
		&c.RatingSum,
	)
	if err != nil {
		return models.FeedbackCounts{}, fmt.Errorf("failed to count feedback: %w", err)
	}
	return c, nil
}

func (r *FeedbackRepository) ListByKind(ctx context.Context, promptID string, kind models.FeedbackKind, since time.Time, limit int) ([]*models.FeedbackRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, prompt_id, kind, value, detail, source, session_id, context, recorded_at
		FROM feedback_records
		WHERE prompt_id = $1 AND kind = $2 AND recorded_at >= $3
		ORDER BY recorded_at DESC, id DESC
		LIMIT $4`

	rows, err := r.conn(ctx).Query(ctx, query, promptID, string(kind), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	return r.scanRecords(rows)
}

func (r *FeedbackRepository) ListTopRated(ctx context.Context, promptID string, kind models.FeedbackKind, since time.Time, limit int) ([]*models.FeedbackRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, prompt_id, kind, value, detail, source, session_id, context, recorded_at
		FROM feedback_records
		WHERE prompt_id = $1 AND kind = $2 AND recorded_at >= $3 AND btrim(detail) <> ''
		ORDER BY value DESC NULLS LAST, recorded_at DESC, id DESC
		LIMIT $4`

	rows, err := r.conn(ctx).Query(ctx, query, promptID, string(kind), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top rated feedback: %w", err)
	}
	defer rows.Close()

	return r.scanRecords(rows)
}

func (r *FeedbackRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM feedback_records WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge feedback: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *FeedbackRepository) PromptIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.conn(ctx).Query(ctx, `SELECT DISTINCT prompt_id FROM feedback_records ORDER BY prompt_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback prompts: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *FeedbackRepository) scanRecords(rows pgx.Rows) ([]*models.FeedbackRecord, error) {
	records := make([]*models.FeedbackRecord, 0)

	for rows.Next() {
		var rec models.FeedbackRecord
		var kind string
		var value sql.NullFloat64
		var sessionID sql.NullString
		var contextJSON []byte

		err := rows.Scan(
			&rec.ID,
			&rec.PromptID,
			&kind,
			&value,
			&rec.Detail,
			&rec.Source,
			&sessionID,
			&contextJSON,
			&rec.Timestamp,
		)
		if err != nil {
			return nil, err
		}

		rec.Kind = models.FeedbackKind(kind)
		rec.Value = getFloatPtr(value)
		rec.SessionID = getString(sessionID)
		rec.Timestamp = rec.Timestamp.UTC()
		if err := unmarshalJSONField(contextJSON, &rec.Context); err != nil {
			return nil, fmt.Errorf("failed to decode feedback context: %w", err)
		}

		records = append(records, &rec)
	}

	return records, rows.Err()
}

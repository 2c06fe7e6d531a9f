package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the promptforge tables. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS feedback_records (
		id          TEXT PRIMARY KEY,
		prompt_id   TEXT NOT NULL,
		kind        TEXT NOT NULL CHECK (kind IN ('rating', 'error', 'success', 'suggestion')),
		value       DOUBLE PRECISION CHECK (value IS NULL OR (value >= 0 AND value <= 1)),
		detail      TEXT NOT NULL DEFAULT '',
		source      TEXT NOT NULL DEFAULT '',
		session_id  TEXT,
		context     JSONB,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_records_prompt_time ON feedback_records (prompt_id, recorded_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_records_time ON feedback_records (recorded_at)`,

	`CREATE TABLE IF NOT EXISTS prompt_versions (
		id                   TEXT PRIMARY KEY,
		prompt_id            TEXT NOT NULL,
		version_number       INTEGER NOT NULL,
		text                 TEXT NOT NULL,
		hash                 TEXT NOT NULL,
		produced_by          TEXT NOT NULL,
		status               TEXT NOT NULL CHECK (status IN ('draft', 'evaluated', 'deployed', 'archived')),
		status_reason        TEXT NOT NULL DEFAULT '',
		previous_deployed_id TEXT REFERENCES prompt_versions (id),
		created_at           TIMESTAMPTZ NOT NULL,
		evaluated_at         TIMESTAMPTZ,
		deployed_at          TIMESTAMPTZ,
		archived_at          TIMESTAMPTZ,
		UNIQUE (prompt_id, version_number)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_prompt_versions_one_deployed ON prompt_versions (prompt_id) WHERE status = 'deployed'`,

	`CREATE TABLE IF NOT EXISTS training_runs (
		id                  TEXT PRIMARY KEY,
		prompt_id           TEXT NOT NULL,
		approach            TEXT NOT NULL,
		triggered_by        TEXT NOT NULL,
		started_at          TIMESTAMPTZ NOT NULL,
		finished_at         TIMESTAMPTZ,
		outcome             TEXT NOT NULL,
		failure_reason      TEXT NOT NULL DEFAULT '',
		produced_version_id TEXT,
		evaluation_id       TEXT,
		recommendation      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_training_runs_prompt_started ON training_runs (prompt_id, started_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_training_runs_started ON training_runs (started_at DESC)`,

	`CREATE TABLE IF NOT EXISTS evaluation_results (
		id                  TEXT PRIMARY KEY,
		prompt_id           TEXT NOT NULL,
		version_id          TEXT NOT NULL REFERENCES prompt_versions (id),
		baseline_version_id TEXT,
		candidate           JSONB NOT NULL,
		baseline            JSONB NOT NULL,
		delta               JSONB NOT NULL,
		recommendation      TEXT NOT NULL,
		reason              TEXT NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_evaluation_results_version ON evaluation_results (version_id, created_at DESC)`,
}

// Migrate applies the schema inside one transaction
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	return runInTx(ctx, tx, func(ctx context.Context) error {
		return applySchema(ctx, GetConn(ctx, nil))
	})
}

func applySchema(ctx context.Context, q querier) error {
	for i, stmt := range schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

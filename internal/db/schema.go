package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are stored as unix milliseconds so the same DDL and queries run on
// both postgres and sqlite.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS test_definitions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		due_at BIGINT NULL,
		is_timed BOOLEAN NOT NULL DEFAULT FALSE,
		duration_minutes INTEGER NULL,
		max_attempts INTEGER NOT NULL DEFAULT 1,
		allow_retrial BOOLEAN NOT NULL DEFAULT FALSE,
		passing_score_percent DOUBLE PRECISION NULL,
		requires_manual_grading BOOLEAN NOT NULL DEFAULT FALSE,
		score_visible_by_default BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		test_id TEXT NOT NULL,
		attempt_number INTEGER NOT NULL,
		status TEXT NOT NULL,
		started_at BIGINT NOT NULL,
		submitted_at BIGINT NULL,
		graded_at BIGINT NULL,
		score DOUBLE PRECISION NULL,
		total_points DOUBLE PRECISION NULL,
		percentage DOUBLE PRECISION NULL,
		is_passed BOOLEAN NULL,
		score_visible BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at BIGINT NOT NULL,
		CONSTRAINT attempts_student_test_number_key UNIQUE (student_id, test_id, attempt_number)
	)`,
	`CREATE INDEX IF NOT EXISTS attempts_test_status_idx ON attempts (test_id, status)`,
	`CREATE TABLE IF NOT EXISTS attempt_events (
		id TEXT PRIMARY KEY,
		attempt_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '{}',
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS attempt_events_attempt_idx ON attempt_events (attempt_id, created_at)`,
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema step %d: %w", i+1, err)
		}
	}
	return nil
}

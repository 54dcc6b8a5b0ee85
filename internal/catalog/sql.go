package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var definitionColumns = []string{
	"id",
	"title",
	"due_at",
	"is_timed",
	"duration_minutes",
	"max_attempts",
	"allow_retrial",
	"passing_score_percent",
	"requires_manual_grading",
	"score_visible_by_default",
}

// SQLCatalog reads the local test_definitions table. Deployments backed by an
// external catalog only need another Provider.
type SQLCatalog struct {
	db *sql.DB
}

func NewSQLCatalog(db *sql.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

func (c *SQLCatalog) GetTestDefinition(ctx context.Context, testID string) (*TestDefinition, error) {
	query, args, err := psql.Select(definitionColumns...).
		From("test_definitions").
		Where(sq.Eq{"id": testID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build test definition query: %w", err)
	}

	var (
		def      TestDefinition
		dueAt    sql.NullInt64
		duration sql.NullInt64
		passing  sql.NullFloat64
	)
	err = c.db.QueryRowContext(ctx, query, args...).Scan(
		&def.ID,
		&def.Title,
		&dueAt,
		&def.IsTimed,
		&duration,
		&def.MaxAttempts,
		&def.AllowRetrial,
		&passing,
		&def.RequiresManualGrading,
		&def.ScoreVisibleByDefault,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load test definition: %w", err)
	}

	if dueAt.Valid {
		t := time.UnixMilli(dueAt.Int64).UTC()
		def.DueAt = &t
	}
	if duration.Valid {
		v := int(duration.Int64)
		def.DurationMinutes = &v
	}
	if passing.Valid {
		v := passing.Float64
		def.PassingScorePercent = &v
	}
	return &def, nil
}

func (c *SQLCatalog) UpsertTestDefinition(ctx context.Context, def TestDefinition) (*TestDefinition, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	var dueAt, duration, passing any
	if def.DueAt != nil {
		dueAt = def.DueAt.UnixMilli()
	}
	if def.DurationMinutes != nil {
		duration = *def.DurationMinutes
	}
	if def.PassingScorePercent != nil {
		passing = *def.PassingScorePercent
	}

	query, args, err := psql.Insert("test_definitions").
		Columns(append(definitionColumns, "updated_at")...).
		Values(
			def.ID,
			def.Title,
			dueAt,
			def.IsTimed,
			duration,
			def.MaxAttempts,
			def.AllowRetrial,
			passing,
			def.RequiresManualGrading,
			def.ScoreVisibleByDefault,
			time.Now().UnixMilli(),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			due_at = EXCLUDED.due_at,
			is_timed = EXCLUDED.is_timed,
			duration_minutes = EXCLUDED.duration_minutes,
			max_attempts = EXCLUDED.max_attempts,
			allow_retrial = EXCLUDED.allow_retrial,
			passing_score_percent = EXCLUDED.passing_score_percent,
			requires_manual_grading = EXCLUDED.requires_manual_grading,
			score_visible_by_default = EXCLUDED.score_visible_by_default,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build test definition upsert: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("upsert test definition: %w", err)
	}
	return c.GetTestDefinition(ctx, def.ID)
}

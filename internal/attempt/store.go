package attempt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store is the persistence contract of the engine. InsertAttempt must fail with
// ErrConflict when (student, test, attempt number) is already taken; that
// constraint is what serializes concurrent admissions.
type Store interface {
	ListAttempts(ctx context.Context, studentID, testID string) ([]Record, error)
	ListTestAttempts(ctx context.Context, testID string) ([]Record, error)
	GetAttempt(ctx context.Context, attemptID string) (*Record, error)
	InsertAttempt(ctx context.Context, rec Record) (*Record, error)
	UpdateAttempt(ctx context.Context, attemptID string, p Patch) (*Record, error)
	UpdateTestVisibility(ctx context.Context, testID string, visible bool) (int64, error)
	AppendEvent(ctx context.Context, ev Event) error
	ListEvents(ctx context.Context, attemptID string, limit int) ([]Event, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var attemptColumns = []string{
	"id",
	"student_id",
	"test_id",
	"attempt_number",
	"status",
	"started_at",
	"submitted_at",
	"graded_at",
	"score",
	"total_points",
	"percentage",
	"is_passed",
	"score_visible",
}

// SQLStore keeps attempts in the attempts table on postgres (pgx) or sqlite.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) ListAttempts(ctx context.Context, studentID, testID string) ([]Record, error) {
	return s.queryAttempts(ctx, psql.Select(attemptColumns...).
		From("attempts").
		Where(sq.Eq{"student_id": studentID, "test_id": testID}).
		OrderBy("attempt_number ASC"))
}

func (s *SQLStore) ListTestAttempts(ctx context.Context, testID string) ([]Record, error) {
	return s.queryAttempts(ctx, psql.Select(attemptColumns...).
		From("attempts").
		Where(sq.Eq{"test_id": testID}).
		OrderBy("student_id ASC", "attempt_number ASC"))
}

func (s *SQLStore) GetAttempt(ctx context.Context, attemptID string) (*Record, error) {
	query, args, err := psql.Select(attemptColumns...).
		From("attempts").
		Where(sq.Eq{"id": attemptID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build attempt query: %w", err)
	}
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) InsertAttempt(ctx context.Context, rec Record) (*Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AttemptNumber < 1 {
		return nil, fmt.Errorf("%w: attempt number must be >= 1", ErrInvalidInput)
	}

	query, args, err := psql.Insert("attempts").
		Columns(append(attemptColumns, "updated_at")...).
		Values(
			rec.ID,
			rec.StudentID,
			rec.TestID,
			rec.AttemptNumber,
			string(rec.Status),
			rec.StartedAt.UnixMilli(),
			nullMillis(rec.SubmittedAt),
			nullMillis(rec.GradedAt),
			nullFloat(rec.Score),
			nullFloat(rec.TotalPoints),
			nullFloat(rec.Percentage),
			nullBool(rec.IsPassed),
			rec.ScoreVisibleToStudent,
			time.Now().UnixMilli(),
		).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build attempt insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return s.GetAttempt(ctx, rec.ID)
}

func (s *SQLStore) UpdateAttempt(ctx context.Context, attemptID string, p Patch) (*Record, error) {
	q := psql.Update("attempts").Where(sq.Eq{"id": attemptID})
	changed := false
	set := func(col string, v any) {
		q = q.Set(col, v)
		changed = true
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.SubmittedAt != nil {
		set("submitted_at", p.SubmittedAt.UnixMilli())
	}
	if p.GradedAt != nil {
		set("graded_at", p.GradedAt.UnixMilli())
	}
	if p.Score != nil {
		set("score", *p.Score)
	}
	if p.TotalPoints != nil {
		set("total_points", *p.TotalPoints)
	}
	if p.Percentage != nil {
		set("percentage", *p.Percentage)
	}
	if p.IsPassed != nil {
		set("is_passed", *p.IsPassed)
	} else if p.ClearIsPassed {
		set("is_passed", nil)
	}
	if p.ScoreVisible != nil {
		set("score_visible", *p.ScoreVisible)
	}
	if !changed {
		return s.GetAttempt(ctx, attemptID)
	}
	q = q.Set("updated_at", time.Now().UnixMilli())
	if len(p.ExpectStatus) > 0 {
		q = q.Where(sq.Eq{"status": statusStrings(p.ExpectStatus)})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build attempt update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update attempt rows: %w", err)
	}
	if n == 0 {
		if _, err := s.GetAttempt(ctx, attemptID); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) UpdateTestVisibility(ctx context.Context, testID string, visible bool) (int64, error) {
	query, args, err := psql.Update("attempts").
		Set("score_visible", visible).
		Set("updated_at", time.Now().UnixMilli()).
		Where(sq.Eq{"test_id": testID, "status": string(StatusGraded)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build bulk visibility update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk visibility update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk visibility rows: %w", err)
	}
	return n, nil
}

func (s *SQLStore) AppendEvent(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		// v7 ids sort by creation time, which keeps same-millisecond events in order
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate attempt event id: %w", err)
		}
		ev.ID = id.String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if ev.Payload == "" {
		ev.Payload = "{}"
	}
	query, args, err := psql.Insert("attempt_events").
		Columns("id", "attempt_id", "event_type", "actor_id", "payload", "created_at").
		Values(ev.ID, ev.AttemptID, ev.EventType, ev.ActorID, ev.Payload, ev.CreatedAt.UnixMilli()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build attempt event insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert attempt event: %w", err)
	}
	return nil
}

func (s *SQLStore) ListEvents(ctx context.Context, attemptID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query, args, err := psql.Select("id", "attempt_id", "event_type", "actor_id", "payload", "created_at").
		From("attempt_events").
		Where(sq.Eq{"attempt_id": attemptID}).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build attempt events query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempt events: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			ev        Event
			createdAt int64
		)
		if err := rows.Scan(&ev.ID, &ev.AttemptID, &ev.EventType, &ev.ActorID, &ev.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan attempt event: %w", err)
		}
		ev.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt events: %w", err)
	}
	return out, nil
}

func (s *SQLStore) queryAttempts(ctx context.Context, b sq.SelectBuilder) ([]Record, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build attempts query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec         Record
		status      string
		startedAt   int64
		submittedAt sql.NullInt64
		gradedAt    sql.NullInt64
		score       sql.NullFloat64
		totalPoints sql.NullFloat64
		percentage  sql.NullFloat64
		isPassed    sql.NullBool
	)
	if err := row.Scan(
		&rec.ID,
		&rec.StudentID,
		&rec.TestID,
		&rec.AttemptNumber,
		&status,
		&startedAt,
		&submittedAt,
		&gradedAt,
		&score,
		&totalPoints,
		&percentage,
		&isPassed,
		&rec.ScoreVisibleToStudent,
	); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	rec.StartedAt = time.UnixMilli(startedAt).UTC()
	if submittedAt.Valid {
		rec.SubmittedAt = timePtr(time.UnixMilli(submittedAt.Int64).UTC())
	}
	if gradedAt.Valid {
		rec.GradedAt = timePtr(time.UnixMilli(gradedAt.Int64).UTC())
	}
	if score.Valid {
		rec.Score = floatPtr(score.Float64)
	}
	if totalPoints.Valid {
		rec.TotalPoints = floatPtr(totalPoints.Float64)
	}
	if percentage.Valid {
		rec.Percentage = floatPtr(percentage.Float64)
	}
	if isPassed.Valid {
		rec.IsPassed = boolPtr(isPassed.Bool)
	}
	return &rec, nil
}

func statusStrings(in []Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

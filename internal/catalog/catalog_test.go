package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	internaldb "examgate/internal/db"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func TestTestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     TestDefinition
		wantErr bool
	}{
		{name: "untimed ok", def: TestDefinition{ID: "t1", MaxAttempts: 1}},
		{name: "timed ok", def: TestDefinition{ID: "t1", MaxAttempts: 2, IsTimed: true, DurationMinutes: intPtr(30)}},
		{name: "missing id", def: TestDefinition{MaxAttempts: 1}, wantErr: true},
		{name: "zero attempts", def: TestDefinition{ID: "t1", MaxAttempts: 0}, wantErr: true},
		{name: "timed without duration", def: TestDefinition{ID: "t1", MaxAttempts: 1, IsTimed: true}, wantErr: true},
		{name: "duration without timed", def: TestDefinition{ID: "t1", MaxAttempts: 1, DurationMinutes: intPtr(10)}, wantErr: true},
		{name: "passing above 100", def: TestDefinition{ID: "t1", MaxAttempts: 1, PassingScorePercent: floatPtr(120)}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidDefinition) {
					t.Fatalf("expected ErrInvalidDefinition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPastDue(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	def := TestDefinition{ID: "t1", MaxAttempts: 1, DueAt: &due}

	if def.PastDue(due) {
		t.Fatalf("due instant itself is not past due")
	}
	if !def.PastDue(due.Add(time.Millisecond)) {
		t.Fatalf("expected past due after due date")
	}
	if (TestDefinition{ID: "t2", MaxAttempts: 1}).PastDue(due.Add(24 * time.Hour)) {
		t.Fatalf("test without due date is never past due")
	}
}

func TestSQLCatalogRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn, err := internaldb.Open(ctx, internaldb.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer conn.Close()

	c := NewSQLCatalog(conn)

	if _, err := c.GetTestDefinition(ctx, "missing"); !errors.Is(err, ErrTestNotFound) {
		t.Fatalf("expected ErrTestNotFound, got %v", err)
	}

	due := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	saved, err := c.UpsertTestDefinition(ctx, TestDefinition{
		ID:                  "math-1",
		Title:               "Math",
		DueAt:               timePtr(due),
		IsTimed:             true,
		DurationMinutes:     intPtr(45),
		MaxAttempts:         3,
		AllowRetrial:        true,
		PassingScorePercent: floatPtr(70),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.DueAt == nil || !saved.DueAt.Equal(due) {
		t.Fatalf("due_at mismatch: %v", saved.DueAt)
	}
	if saved.DurationMinutes == nil || *saved.DurationMinutes != 45 {
		t.Fatalf("duration mismatch: %v", saved.DurationMinutes)
	}
	if !saved.AllowRetrial || saved.MaxAttempts != 3 || saved.RequiresManualGrading {
		t.Fatalf("flags mismatch: %+v", saved)
	}

	updated, err := c.UpsertTestDefinition(ctx, TestDefinition{ID: "math-1", Title: "Math v2", MaxAttempts: 1})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if updated.Title != "Math v2" || updated.DueAt != nil || updated.PassingScorePercent != nil || updated.IsTimed {
		t.Fatalf("upsert did not overwrite: %+v", updated)
	}

	if _, err := c.UpsertTestDefinition(ctx, TestDefinition{ID: "bad", MaxAttempts: 0}); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type countingProvider struct {
	calls atomic.Int32
}

func (p *countingProvider) GetTestDefinition(ctx context.Context, testID string) (*TestDefinition, error) {
	p.calls.Add(1)
	if testID == "missing" {
		return nil, ErrTestNotFound
	}
	return &TestDefinition{ID: testID, MaxAttempts: 1}, nil
}

func TestCachedProvider(t *testing.T) {
	next := &countingProvider{}
	p, err := NewCachedProvider(next, 10, time.Minute)
	if err != nil {
		t.Fatalf("build cache: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		def, err := p.GetTestDefinition(ctx, "t1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if def.ID != "t1" {
			t.Fatalf("unexpected id %s", def.ID)
		}
	}
	if got := next.calls.Load(); got != 1 {
		t.Fatalf("expected a single load, got %d", got)
	}

	p.Invalidate("t1")
	if _, err := p.GetTestDefinition(ctx, "t1"); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if got := next.calls.Load(); got != 2 {
		t.Fatalf("expected reload after invalidate, got %d calls", got)
	}

	if _, err := p.GetTestDefinition(ctx, "missing"); !errors.Is(err, ErrTestNotFound) {
		t.Fatalf("expected ErrTestNotFound through cache, got %v", err)
	}
}

// Package catalog supplies read-only test definitions to the attempt engine.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrTestNotFound      = errors.New("test not found")
	ErrInvalidDefinition = errors.New("invalid test definition")
)

// TestDefinition is immutable per version. The engine never writes it.
type TestDefinition struct {
	ID                    string     `json:"id" validate:"required,max=128"`
	Title                 string     `json:"title,omitempty" validate:"max=255"`
	DueAt                 *time.Time `json:"due_at,omitempty"`
	IsTimed               bool       `json:"is_timed"`
	DurationMinutes       *int       `json:"duration_minutes,omitempty" validate:"omitempty,gt=0"`
	MaxAttempts           int        `json:"max_attempts" validate:"gte=1"`
	AllowRetrial          bool       `json:"allow_retrial"`
	PassingScorePercent   *float64   `json:"passing_score_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	RequiresManualGrading bool       `json:"requires_manual_grading"`
	ScoreVisibleByDefault bool       `json:"score_visible_by_default"`
}

type Provider interface {
	GetTestDefinition(ctx context.Context, testID string) (*TestDefinition, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (d TestDefinition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if d.IsTimed != (d.DurationMinutes != nil) {
		return fmt.Errorf("%w: duration_minutes must be set exactly when is_timed", ErrInvalidDefinition)
	}
	return nil
}

// PastDue reports whether now is strictly after the due date. Tests without a
// due date are never past due.
func (d TestDefinition) PastDue(now time.Time) bool {
	return d.DueAt != nil && now.After(*d.DueAt)
}

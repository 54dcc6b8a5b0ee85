// Package grading turns a raw score handed back by a grader (automatic or
// manual) into the fields stored on an attempt.
package grading

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidScore = errors.New("invalid score")

type Input struct {
	Score       float64
	TotalPoints float64
	Percentage  *float64
	IsPassed    *bool
}

type Outcome struct {
	Score       float64 `json:"score"`
	TotalPoints float64 `json:"total_points"`
	Percentage  float64 `json:"percentage"`
	IsPassed    *bool   `json:"is_passed,omitempty"`
}

// Resolve fills in what the grader left out. A missing percentage is
// score/totalPoints*100 rounded to two places; a missing pass flag is compared
// against passingPercent, and stays nil when the test has no passing score.
func Resolve(in Input, passingPercent *float64) (Outcome, error) {
	if in.TotalPoints <= 0 {
		return Outcome{}, fmt.Errorf("%w: total points must be positive", ErrInvalidScore)
	}
	if in.Score < 0 || in.Score > in.TotalPoints {
		return Outcome{}, fmt.Errorf("%w: score must be between 0 and total points", ErrInvalidScore)
	}

	pct := Percentage(in.Score, in.TotalPoints)
	if in.Percentage != nil {
		if *in.Percentage < 0 || *in.Percentage > 100 {
			return Outcome{}, fmt.Errorf("%w: percentage must be between 0 and 100", ErrInvalidScore)
		}
		pct = *in.Percentage
	}

	out := Outcome{
		Score:       in.Score,
		TotalPoints: in.TotalPoints,
		Percentage:  pct,
		IsPassed:    in.IsPassed,
	}
	if out.IsPassed == nil && passingPercent != nil {
		passed := Passed(pct, *passingPercent)
		out.IsPassed = &passed
	}
	return out, nil
}

func Percentage(score, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromFloat(score).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromFloat(total)).
		Round(2).
		InexactFloat64()
}

// Passed compares at decimal precision so 69.99999 style float noise never
// flips a pass mark.
func Passed(percentage, passingPercent float64) bool {
	return decimal.NewFromFloat(percentage).GreaterThanOrEqual(decimal.NewFromFloat(passingPercent))
}

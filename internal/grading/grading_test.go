package grading

import (
	"errors"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		in        Input
		passing   *float64
		wantPct   float64
		wantPass  *bool
		wantError bool
	}{
		{name: "derived percentage no pass mark", in: Input{Score: 42, TotalPoints: 50}, wantPct: 84},
		{name: "rounded to two places", in: Input{Score: 1, TotalPoints: 3}, wantPct: 33.33},
		{name: "pass at threshold", in: Input{Score: 35, TotalPoints: 50}, passing: floatPtr(70), wantPct: 70, wantPass: boolPtr(true)},
		{name: "fail below threshold", in: Input{Score: 34, TotalPoints: 50}, passing: floatPtr(70), wantPct: 68, wantPass: boolPtr(false)},
		{name: "explicit percentage wins", in: Input{Score: 10, TotalPoints: 20, Percentage: floatPtr(80)}, passing: floatPtr(75), wantPct: 80, wantPass: boolPtr(true)},
		{name: "explicit pass flag wins", in: Input{Score: 10, TotalPoints: 20, IsPassed: boolPtr(true)}, passing: floatPtr(90), wantPct: 50, wantPass: boolPtr(true)},
		{name: "zero total", in: Input{Score: 0, TotalPoints: 0}, wantError: true},
		{name: "negative score", in: Input{Score: -1, TotalPoints: 10}, wantError: true},
		{name: "score above total", in: Input{Score: 11, TotalPoints: 10}, wantError: true},
		{name: "percentage out of range", in: Input{Score: 5, TotalPoints: 10, Percentage: floatPtr(101)}, wantError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.in, tc.passing)
			if tc.wantError {
				if !errors.Is(err, ErrInvalidScore) {
					t.Fatalf("expected ErrInvalidScore, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Percentage != tc.wantPct {
				t.Fatalf("percentage mismatch got=%v want=%v", got.Percentage, tc.wantPct)
			}
			switch {
			case tc.wantPass == nil && got.IsPassed != nil:
				t.Fatalf("expected nil is_passed, got %v", *got.IsPassed)
			case tc.wantPass != nil && (got.IsPassed == nil || *got.IsPassed != *tc.wantPass):
				t.Fatalf("is_passed mismatch got=%v want=%v", got.IsPassed, *tc.wantPass)
			}
		})
	}
}

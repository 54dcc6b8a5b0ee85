// Package report builds teacher-facing cohort summaries over stored attempts.
package report

import (
	"context"
	"errors"
	"strings"

	"examgate/internal/attempt"
	"examgate/internal/catalog"

	"golang.org/x/sync/errgroup"
)

var ErrInvalidScope = errors.New("scope must be best or all")

const (
	ScopeBest = "best"
	ScopeAll  = "all"
)

type attemptLister interface {
	ListTestAttempts(ctx context.Context, testID string) ([]attempt.Record, error)
}

type Service struct {
	attempts attemptLister
	tests    catalog.Provider
}

// CohortSummary holds the per-student best attempts and statistics computed
// over the requested scope. Best is always the best-per-student selection.
type CohortSummary struct {
	TestID            string           `json:"test_id"`
	Title             string           `json:"title,omitempty"`
	Scope             string           `json:"scope"`
	Participants      int              `json:"participants"`
	Best              []attempt.Record `json:"best"`
	Stats             attempt.Stats    `json:"stats"`
	HighestPercentage *float64         `json:"highest_percentage,omitempty"`
	LowestPercentage  *float64         `json:"lowest_percentage,omitempty"`
}

func NewService(attempts attemptLister, tests catalog.Provider) *Service {
	return &Service{attempts: attempts, tests: tests}
}

func (s *Service) CohortScores(ctx context.Context, testID, scope string) (*CohortSummary, error) {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		scope = ScopeBest
	}
	if scope != ScopeBest && scope != ScopeAll {
		return nil, ErrInvalidScope
	}

	var (
		def     *catalog.TestDefinition
		records []attempt.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		def, err = s.tests.GetTestDefinition(gctx, testID)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.attempts.ListTestAttempts(gctx, testID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := attempt.SortedBest(attempt.BestPerStudent(records))
	out := &CohortSummary{
		TestID:       def.ID,
		Title:        def.Title,
		Scope:        scope,
		Participants: len(best),
		Best:         best,
	}

	population := best
	if scope == ScopeAll {
		population = completed(records)
	}
	out.Stats = attempt.CohortStats(population)
	out.HighestPercentage, out.LowestPercentage = percentageRange(population)
	return out, nil
}

func completed(records []attempt.Record) []attempt.Record {
	out := make([]attempt.Record, 0, len(records))
	for _, r := range records {
		if r.Status.Completed() {
			out = append(out, r)
		}
	}
	return out
}

func percentageRange(records []attempt.Record) (*float64, *float64) {
	var hi, lo *float64
	for _, r := range records {
		if r.Percentage == nil {
			continue
		}
		v := *r.Percentage
		if hi == nil || v > *hi {
			hi = &v
		}
		if lo == nil || v < *lo {
			lo = &v
		}
	}
	return hi, lo
}

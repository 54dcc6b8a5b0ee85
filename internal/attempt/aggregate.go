package attempt

import (
	"sort"

	"github.com/shopspring/decimal"
)

type Stats struct {
	Count             int     `json:"count"`
	PassedCount       int     `json:"passed_count"`
	FailedCount       int     `json:"failed_count"`
	AveragePercentage float64 `json:"average_percentage"`
}

// BestPerStudent picks one authoritative attempt per student among the
// submitted or graded ones: highest percentage, then highest raw score, then
// the earliest attempt number. Missing values rank below any present value.
func BestPerStudent(attempts []Record) map[string]Record {
	out := make(map[string]Record)
	for _, a := range attempts {
		if !a.Status.Completed() {
			continue
		}
		cur, ok := out[a.StudentID]
		if !ok || outranks(a, cur) {
			out[a.StudentID] = a
		}
	}
	return out
}

func outranks(a, b Record) bool {
	if c := compareOptional(a.Percentage, b.Percentage); c != 0 {
		return c > 0
	}
	if c := compareOptional(a.Score, b.Score); c != 0 {
		return c > 0
	}
	return a.AttemptNumber < b.AttemptNumber
}

func compareOptional(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a > *b:
		return 1
	case *a < *b:
		return -1
	default:
		return 0
	}
}

// SortedBest returns the BestPerStudent selection ordered by student id.
func SortedBest(best map[string]Record) []Record {
	out := make([]Record, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

// CohortStats summarizes exactly the attempts passed in; callers decide
// whether that is the best-per-student set or every attempt.
func CohortStats(attempts []Record) Stats {
	st := Stats{Count: len(attempts)}
	var pcts []decimal.Decimal
	for _, a := range attempts {
		if a.IsPassed != nil {
			if *a.IsPassed {
				st.PassedCount++
			} else {
				st.FailedCount++
			}
		}
		if a.Percentage != nil {
			pcts = append(pcts, decimal.NewFromFloat(*a.Percentage))
		}
	}
	if len(pcts) > 0 {
		st.AveragePercentage = decimal.Avg(pcts[0], pcts[1:]...).InexactFloat64()
	}
	return st
}

package attempt

import (
	"time"

	"examgate/internal/catalog"
)

// Evaluate derives the student's standing on a test from the definition, the
// student's attempt history and the server clock. It never mutates its inputs
// and keeps no state, so callers re-derive on every read.
//
// A past-due open attempt is reported as missed even when its stored status is
// still in_progress; expiry is reported here, not enforced.
func Evaluate(test catalog.TestDefinition, attempts []Record, now time.Time) Evaluation {
	pastDue := test.PastDue(now)

	latest, ok := Latest(attempts)
	if !ok {
		ev := Evaluation{
			Status:   DerivedAvailable,
			CanStart: !pastDue,
			IsMissed: pastDue,
		}
		if ev.IsMissed {
			ev.Status = DerivedMissed
		}
		return ev
	}

	var ev Evaluation
	switch {
	case latest.Status.Completed():
		ev.Status = DerivedCompleted
		ev.CanStart = test.AllowRetrial && latest.AttemptNumber < test.MaxAttempts && !pastDue
	default:
		ev.Status = DerivedInProgress
		ev.CanContinue = !pastDue
	}

	ev.IsMissed = pastDue && !latest.Status.Completed()
	if ev.IsMissed {
		ev.Status = DerivedMissed
		ev.CanContinue = false
		ev.CanStart = false
	}
	return ev
}

// Latest returns the attempt with the highest attempt number.
func Latest(attempts []Record) (Record, bool) {
	if len(attempts) == 0 {
		return Record{}, false
	}
	best := attempts[0]
	for _, a := range attempts[1:] {
		if a.AttemptNumber > best.AttemptNumber {
			best = a
		}
	}
	return best, true
}

// Deadline is the instant after which the attempt can no longer be worked on:
// the test's due date or, for timed tests, the end of the time window,
// whichever comes first. Nil means no deadline.
func Deadline(test catalog.TestDefinition, rec Record) *time.Time {
	var out *time.Time
	if test.DueAt != nil {
		out = timePtr(*test.DueAt)
	}
	if test.IsTimed && test.DurationMinutes != nil {
		end := rec.StartedAt.Add(time.Duration(*test.DurationMinutes) * time.Minute)
		if out == nil || end.Before(*out) {
			out = &end
		}
	}
	return out
}

func remainingSeconds(rec Record, deadline *time.Time, now time.Time) int64 {
	if !rec.Status.Open() || deadline == nil {
		return 0
	}
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining.Seconds())
}

package attempt

import "time"

// StudentResult is the only shape of an attempt result that leaves the service
// towards a student. Score is nil unless the teacher released it, so a hidden
// score is never serialized even though the row holds it.
type StudentResult struct {
	TimeSpentSecs int64          `json:"time_spent_secs"`
	Message       string         `json:"message"`
	Score         *ReleasedScore `json:"score,omitempty"`
}

type ReleasedScore struct {
	AttemptNumber int        `json:"attempt_number"`
	Status        Status     `json:"status"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	Score         float64    `json:"score"`
	TotalPoints   float64    `json:"total_points"`
	Percentage    float64    `json:"percentage"`
	IsPassed      *bool      `json:"is_passed,omitempty"`
}

const (
	msgInProgress    = "Your attempt is still in progress."
	msgAwaitingGrade = "Your attempt has been submitted and is awaiting grading."
	msgNotReleased   = "Your attempt has been graded. Scores will be available once your teacher releases them."
	msgReleased      = "Your score has been released."
)

// PresentResult redacts rec for a student. now is only used to report time
// spent on an attempt that has not been submitted yet.
func PresentResult(rec Record, now time.Time) StudentResult {
	out := StudentResult{TimeSpentSecs: timeSpent(rec, now)}

	switch {
	case rec.Status.Open():
		out.Message = msgInProgress
		return out
	case rec.Status == StatusSubmitted:
		out.Message = msgAwaitingGrade
		return out
	case !rec.ScoreVisibleToStudent || rec.Score == nil:
		out.Message = msgNotReleased
		return out
	}

	rs := &ReleasedScore{
		AttemptNumber: rec.AttemptNumber,
		Status:        rec.Status,
		SubmittedAt:   rec.SubmittedAt,
		Score:         *rec.Score,
		IsPassed:      rec.IsPassed,
	}
	if rec.TotalPoints != nil {
		rs.TotalPoints = *rec.TotalPoints
	}
	if rec.Percentage != nil {
		rs.Percentage = *rec.Percentage
	}
	out.Message = msgReleased
	out.Score = rs
	return out
}

func timeSpent(rec Record, now time.Time) int64 {
	end := now
	if rec.SubmittedAt != nil {
		end = *rec.SubmittedAt
	}
	d := end.Sub(rec.StartedAt)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

// CanToggleVisibility is the gate shared by Release and Hide.
func CanToggleVisibility(rec Record) error {
	if rec.Status != StatusGraded {
		return ErrNotGraded
	}
	return nil
}

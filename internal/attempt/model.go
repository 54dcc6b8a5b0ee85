package attempt

import (
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusGraded     Status = "graded"
)

// Completed reports whether the attempt has been handed in.
func (s Status) Completed() bool {
	return s == StatusSubmitted || s == StatusGraded
}

// Open reports whether the student may still be working on the attempt.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

// Record is one row of the attempt store. Score fields stay nil until a grader
// supplies them.
type Record struct {
	ID                    string     `json:"id"`
	StudentID             string     `json:"student_id"`
	TestID                string     `json:"test_id"`
	AttemptNumber         int        `json:"attempt_number"`
	Status                Status     `json:"status"`
	StartedAt             time.Time  `json:"started_at"`
	SubmittedAt           *time.Time `json:"submitted_at,omitempty"`
	GradedAt              *time.Time `json:"graded_at,omitempty"`
	Score                 *float64   `json:"score,omitempty"`
	TotalPoints           *float64   `json:"total_points,omitempty"`
	Percentage            *float64   `json:"percentage,omitempty"`
	IsPassed              *bool      `json:"is_passed,omitempty"`
	ScoreVisibleToStudent bool       `json:"score_visible_to_student"`
}

// Patch carries the fields UpdateAttempt may change. Nil fields are left
// untouched. When ExpectStatus is non-empty the update only applies to a row
// currently in one of those states.
type Patch struct {
	Status        *Status
	SubmittedAt   *time.Time
	GradedAt      *time.Time
	Score         *float64
	TotalPoints   *float64
	Percentage    *float64
	IsPassed      *bool
	ClearIsPassed bool
	ScoreVisible  *bool

	ExpectStatus []Status
}

// Evaluation is the derived, never stored, view of a student's standing on a test.
type Evaluation struct {
	Status      DerivedStatus `json:"status"`
	CanStart    bool          `json:"can_start"`
	CanContinue bool          `json:"can_continue"`
	IsMissed    bool          `json:"is_missed"`
}

type DerivedStatus string

const (
	DerivedAvailable  DerivedStatus = "available"
	DerivedInProgress DerivedStatus = "in_progress"
	DerivedCompleted  DerivedStatus = "completed"
	DerivedMissed     DerivedStatus = "missed"
)

type Event struct {
	ID        string    `json:"id"`
	AttemptID string    `json:"attempt_id"`
	EventType string    `json:"event_type"`
	ActorID   string    `json:"actor_id,omitempty"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	EventAdmitted  = "admitted"
	EventResumed   = "resumed"
	EventSubmitted = "submitted"
	EventGraded    = "graded"
	EventReleased  = "released"
	EventHidden    = "hidden"
)

// GradeInput is what a grading collaborator hands back after submission.
type GradeInput struct {
	Score       float64  `json:"score" validate:"gte=0"`
	TotalPoints float64  `json:"total_points" validate:"gt=0"`
	Percentage  *float64 `json:"percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	IsPassed    *bool    `json:"is_passed,omitempty"`
	GradedBy    string   `json:"-"`
}

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }

func timePtr(v time.Time) *time.Time { return &v }

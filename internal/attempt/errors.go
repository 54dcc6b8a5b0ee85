package attempt

import "errors"

var (
	ErrAlreadyInProgress    = errors.New("attempt already in progress")
	ErrAttemptLimitExceeded = errors.New("no attempts remaining")
	ErrPastDue              = errors.New("test is past due")
	ErrNotGraded            = errors.New("attempt is not graded yet")
	ErrConflict             = errors.New("attempt number already taken")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptForbidden     = errors.New("attempt forbidden")
	ErrInvalidTransition    = errors.New("attempt status does not allow this action")
	ErrInvalidInput         = errors.New("invalid input")
)

// Reason is the user-facing explanation shown next to a disabled action.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyInProgress):
		return "An attempt for this test is already in progress."
	case errors.Is(err, ErrAttemptLimitExceeded):
		return "No attempts remaining for this test."
	case errors.Is(err, ErrPastDue):
		return "The due date for this test has passed."
	case errors.Is(err, ErrNotGraded):
		return "Scores can only be released or hidden after the attempt has been graded."
	case errors.Is(err, ErrInvalidTransition):
		return "The attempt is not in a state that allows this action."
	default:
		return ""
	}
}

package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"examgate/internal/catalog"
	"examgate/internal/grading"

	"github.com/go-playground/validator/v10"
)

// Metrics receives admission and visibility outcomes. observability.Collector
// implements it; a nil Metrics is allowed.
type Metrics interface {
	ObserveAdmission(outcome string)
	ObserveAdmissionConflict()
	ObserveVisibilityChange(action string, n int64)
}

const (
	OutcomeAdmitted      = "admitted"
	OutcomeResumed       = "resumed"
	OutcomePastDue       = "past_due"
	OutcomeLimitExceeded = "limit_exceeded"
	OutcomeConflict      = "conflict"
)

type Service struct {
	store           Store
	tests           catalog.Provider
	now             func() time.Time
	logger          *slog.Logger
	metrics         Metrics
	maxAdmitRetries int
	validate        *validator.Validate
}

type ServiceConfig struct {
	// Now is the server clock. Eligibility never uses a client timestamp.
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics Metrics
	// MaxAdmitRetries bounds how often an admission re-evaluates after losing
	// an insert race. Defaults to 1.
	MaxAdmitRetries int
}

// Admission is the answer to a start-or-resume request.
type Admission struct {
	Attempt       Record     `json:"attempt"`
	Resumed       bool       `json:"resumed"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	RemainingSecs int64      `json:"remaining_secs"`
}

func NewService(store Store, tests catalog.Provider, cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxAdmitRetries <= 0 {
		cfg.MaxAdmitRetries = 1
	}
	return &Service{
		store:           store,
		tests:           tests,
		now:             cfg.Now,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		maxAdmitRetries: cfg.MaxAdmitRetries,
		validate:        validator.New(),
	}
}

// Standing is Evaluation plus what a client needs to explain a disabled start.
type Standing struct {
	Evaluation
	AttemptsUsed int    `json:"attempts_used"`
	MaxAttempts  int    `json:"max_attempts"`
	Reason       string `json:"reason,omitempty"`
}

func (s *Service) Status(ctx context.Context, studentID, testID string) (*Standing, error) {
	if strings.TrimSpace(studentID) == "" || strings.TrimSpace(testID) == "" {
		return nil, ErrInvalidInput
	}
	test, err := s.tests.GetTestDefinition(ctx, testID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.store.ListAttempts(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := &Standing{
		Evaluation:  Evaluate(*test, attempts, now),
		MaxAttempts: test.MaxAttempts,
	}
	if latest, ok := Latest(attempts); ok {
		out.AttemptsUsed = latest.AttemptNumber
	}
	if !out.CanStart && !out.CanContinue {
		if test.PastDue(now) {
			out.Reason = Reason(ErrPastDue)
		} else {
			out.Reason = Reason(ErrAttemptLimitExceeded)
		}
	}
	return out, nil
}

// StartOrResume admits a new attempt or hands back the open one. The eligibility
// check is re-run against committed state on every pass; the insert relies on
// the store's unique (student, test, attempt number) constraint, and a lost
// race re-evaluates at most maxAdmitRetries times.
func (s *Service) StartOrResume(ctx context.Context, studentID, testID string) (*Admission, error) {
	if strings.TrimSpace(studentID) == "" || strings.TrimSpace(testID) == "" {
		return nil, ErrInvalidInput
	}
	test, err := s.tests.GetTestDefinition(ctx, testID)
	if err != nil {
		return nil, err
	}

	for try := 0; ; try++ {
		attempts, err := s.store.ListAttempts(ctx, studentID, testID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		ev := Evaluate(*test, attempts, now)
		latest, hasLatest := Latest(attempts)

		if hasLatest && latest.Status.Open() {
			if !ev.CanContinue {
				s.observeAdmission(OutcomePastDue)
				return nil, ErrPastDue
			}
			rec, err := s.markInProgress(ctx, latest)
			if err != nil {
				return nil, err
			}
			s.observeAdmission(OutcomeResumed)
			s.appendEvent(ctx, rec.ID, EventResumed, studentID, nil)
			return s.admission(*test, *rec, true, now), nil
		}

		if !ev.CanStart {
			if test.PastDue(now) {
				s.observeAdmission(OutcomePastDue)
				return nil, ErrPastDue
			}
			s.observeAdmission(OutcomeLimitExceeded)
			return nil, ErrAttemptLimitExceeded
		}

		next := 1
		if hasLatest {
			next = latest.AttemptNumber + 1
		}
		rec, err := s.store.InsertAttempt(ctx, Record{
			StudentID:     studentID,
			TestID:        testID,
			AttemptNumber: next,
			Status:        StatusInProgress,
			StartedAt:     now,
		})
		if errors.Is(err, ErrConflict) {
			if s.metrics != nil {
				s.metrics.ObserveAdmissionConflict()
			}
			if try < s.maxAdmitRetries {
				s.logger.WarnContext(ctx, "attempt admission lost insert race, re-evaluating",
					slog.String("student_id", studentID),
					slog.String("test_id", testID),
					slog.Int("attempt_number", next),
					slog.Int("try", try+1),
				)
				continue
			}
			s.observeAdmission(OutcomeConflict)
			return nil, ErrAlreadyInProgress
		}
		if err != nil {
			return nil, err
		}

		s.observeAdmission(OutcomeAdmitted)
		s.appendEvent(ctx, rec.ID, EventAdmitted, studentID, map[string]any{"attempt_number": rec.AttemptNumber})
		return s.admission(*test, *rec, false, now), nil
	}
}

// markInProgress moves a pending attempt to in_progress on first interaction.
func (s *Service) markInProgress(ctx context.Context, rec Record) (*Record, error) {
	if rec.Status != StatusPending {
		return &rec, nil
	}
	st := StatusInProgress
	updated, err := s.store.UpdateAttempt(ctx, rec.ID, Patch{
		Status:       &st,
		ExpectStatus: []Status{StatusPending},
	})
	if errors.Is(err, ErrInvalidTransition) {
		// someone else moved it first; whatever it is now is authoritative
		return s.store.GetAttempt(ctx, rec.ID)
	}
	return updated, err
}

func (s *Service) admission(test catalog.TestDefinition, rec Record, resumed bool, now time.Time) *Admission {
	deadline := Deadline(test, rec)
	return &Admission{
		Attempt:       rec,
		Resumed:       resumed,
		ExpiresAt:     deadline,
		RemainingSecs: remainingSeconds(rec, deadline, now),
	}
}

// Submit hands an attempt in. Submitting an attempt that is already submitted
// or graded returns it unchanged.
func (s *Service) Submit(ctx context.Context, attemptID, actorID string) (*Record, error) {
	rec, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Completed() {
		return rec, nil
	}

	st := StatusSubmitted
	now := s.now()
	updated, err := s.store.UpdateAttempt(ctx, attemptID, Patch{
		Status:       &st,
		SubmittedAt:  &now,
		ExpectStatus: []Status{StatusPending, StatusInProgress},
	})
	if errors.Is(err, ErrInvalidTransition) {
		return s.store.GetAttempt(ctx, attemptID)
	}
	if err != nil {
		return nil, err
	}
	s.appendEvent(ctx, attemptID, EventSubmitted, actorID, nil)
	return updated, nil
}

// RecordGrade stores what the grading collaborator decided. The first grading
// seeds the visibility flag from the test's default; regrading keeps whatever
// the teacher chose since.
func (s *Service) RecordGrade(ctx context.Context, attemptID string, in GradeInput) (*Record, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	rec, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Completed() {
		return nil, ErrInvalidTransition
	}
	test, err := s.tests.GetTestDefinition(ctx, rec.TestID)
	if err != nil {
		return nil, err
	}

	out, err := grading.Resolve(grading.Input{
		Score:       in.Score,
		TotalPoints: in.TotalPoints,
		Percentage:  in.Percentage,
		IsPassed:    in.IsPassed,
	}, test.PassingScorePercent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	st := StatusGraded
	now := s.now()
	p := Patch{
		Status:        &st,
		GradedAt:      &now,
		Score:         &out.Score,
		TotalPoints:   &out.TotalPoints,
		Percentage:    &out.Percentage,
		IsPassed:      out.IsPassed,
		ClearIsPassed: out.IsPassed == nil,
		ExpectStatus:  []Status{rec.Status},
	}
	if rec.Status == StatusSubmitted {
		visible := test.ScoreVisibleByDefault
		p.ScoreVisible = &visible
	}

	updated, err := s.store.UpdateAttempt(ctx, attemptID, p)
	if err != nil {
		return nil, err
	}
	s.appendEvent(ctx, attemptID, EventGraded, in.GradedBy, map[string]any{
		"score":        out.Score,
		"total_points": out.TotalPoints,
		"percentage":   out.Percentage,
	})
	return updated, nil
}

func (s *Service) Release(ctx context.Context, attemptID, actorID string) (*Record, error) {
	return s.setVisibility(ctx, attemptID, actorID, true)
}

func (s *Service) Hide(ctx context.Context, attemptID, actorID string) (*Record, error) {
	return s.setVisibility(ctx, attemptID, actorID, false)
}

// setVisibility never writes to an attempt that is not graded. The status
// guard is repeated inside the update so a toggle racing with grading fails
// instead of flipping an ungraded row.
func (s *Service) setVisibility(ctx context.Context, attemptID, actorID string, visible bool) (*Record, error) {
	rec, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := CanToggleVisibility(*rec); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateAttempt(ctx, attemptID, Patch{
		ScoreVisible: &visible,
		ExpectStatus: []Status{StatusGraded},
	})
	if errors.Is(err, ErrInvalidTransition) {
		return nil, ErrNotGraded
	}
	if err != nil {
		return nil, err
	}

	action := EventHidden
	if visible {
		action = EventReleased
	}
	if s.metrics != nil {
		s.metrics.ObserveVisibilityChange(action, 1)
	}
	s.appendEvent(ctx, attemptID, action, actorID, nil)
	return updated, nil
}

// BulkRelease exposes every attempt of the test that is graded right now.
// Attempts graded afterwards keep their own default until toggled.
func (s *Service) BulkRelease(ctx context.Context, testID, actorID string) (int64, error) {
	return s.bulkVisibility(ctx, testID, actorID, true)
}

func (s *Service) BulkHide(ctx context.Context, testID, actorID string) (int64, error) {
	return s.bulkVisibility(ctx, testID, actorID, false)
}

func (s *Service) bulkVisibility(ctx context.Context, testID, actorID string, visible bool) (int64, error) {
	if _, err := s.tests.GetTestDefinition(ctx, testID); err != nil {
		return 0, err
	}
	n, err := s.store.UpdateTestVisibility(ctx, testID, visible)
	if err != nil {
		return 0, err
	}

	action := EventHidden
	if visible {
		action = EventReleased
	}
	if s.metrics != nil {
		s.metrics.ObserveVisibilityChange(action, n)
	}
	s.logger.InfoContext(ctx, "bulk score visibility changed",
		slog.String("test_id", testID),
		slog.String("action", action),
		slog.Int64("affected", n),
		slog.String("actor_id", actorID),
	)
	return n, nil
}

func (s *Service) GetAttempt(ctx context.Context, attemptID string) (*Record, error) {
	return s.store.GetAttempt(ctx, attemptID)
}

func (s *Service) GetAttemptOwner(ctx context.Context, attemptID string) (string, error) {
	rec, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return "", err
	}
	return rec.StudentID, nil
}

// StudentResult is the redacted read used for every student-facing response.
func (s *Service) StudentResult(ctx context.Context, attemptID string) (*StudentResult, error) {
	rec, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	out := PresentResult(*rec, s.now())
	return &out, nil
}

func (s *Service) History(ctx context.Context, studentID, testID string) ([]Record, error) {
	if strings.TrimSpace(studentID) == "" || strings.TrimSpace(testID) == "" {
		return nil, ErrInvalidInput
	}
	if _, err := s.tests.GetTestDefinition(ctx, testID); err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, studentID, testID)
}

// StudentHistory is History passed through PresentResult.
func (s *Service) StudentHistory(ctx context.Context, studentID, testID string) ([]StudentResult, error) {
	records, err := s.History(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]StudentResult, 0, len(records))
	for _, r := range records {
		out = append(out, PresentResult(r, now))
	}
	return out, nil
}

func (s *Service) ListEvents(ctx context.Context, attemptID string, limit int) ([]Event, error) {
	if _, err := s.store.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, attemptID, limit)
}

func (s *Service) observeAdmission(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveAdmission(outcome)
	}
}

// appendEvent is best effort: the attempt change it describes is already
// committed, so a failed audit write is logged rather than returned.
func (s *Service) appendEvent(ctx context.Context, attemptID, eventType, actorID string, payload map[string]any) {
	raw := "{}"
	if len(payload) > 0 {
		b, err := json.Marshal(payload)
		if err == nil {
			raw = string(b)
		}
	}
	err := s.store.AppendEvent(ctx, Event{
		AttemptID: attemptID,
		EventType: eventType,
		ActorID:   actorID,
		Payload:   raw,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "append attempt event",
			slog.String("attempt_id", attemptID),
			slog.String("event_type", eventType),
			slog.Any("err", err),
		)
	}
}

package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"examgate/internal/app/apiresp"
	"examgate/internal/auth"
	"examgate/internal/catalog"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc attemptService
}

type attemptService interface {
	Status(ctx context.Context, studentID, testID string) (*Standing, error)
	StartOrResume(ctx context.Context, studentID, testID string) (*Admission, error)
	Submit(ctx context.Context, attemptID, actorID string) (*Record, error)
	RecordGrade(ctx context.Context, attemptID string, in GradeInput) (*Record, error)
	Release(ctx context.Context, attemptID, actorID string) (*Record, error)
	Hide(ctx context.Context, attemptID, actorID string) (*Record, error)
	BulkRelease(ctx context.Context, testID, actorID string) (int64, error)
	BulkHide(ctx context.Context, testID, actorID string) (int64, error)
	GetAttempt(ctx context.Context, attemptID string) (*Record, error)
	GetAttemptOwner(ctx context.Context, attemptID string) (string, error)
	StudentResult(ctx context.Context, attemptID string) (*StudentResult, error)
	History(ctx context.Context, studentID, testID string) ([]Record, error)
	StudentHistory(ctx context.Context, studentID, testID string) ([]StudentResult, error)
	ListEvents(ctx context.Context, attemptID string, limit int) ([]Event, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
	Code  string      `json:"-"`
}

type startAttemptRequest struct {
	StudentID string `json:"student_id"`
}

type visibilityResult struct {
	TestID   string `json:"test_id"`
	Affected int64  `json:"affected"`
}

func NewHandler(svc attemptService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	studentID, err := resolveStudent(user, r.URL.Query().Get("student_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out, err := h.svc.Status(r.Context(), studentID, chi.URLParam(r, "testID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: out})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	studentID, err := resolveStudent(user, req.StudentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out, err := h.svc.StartOrResume(r.Context(), studentID, chi.URLParam(r, "testID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	code := http.StatusCreated
	if out.Resumed {
		code = http.StatusOK
	}
	writeJSON(w, r, code, response{OK: true, Data: out})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	studentID, err := resolveStudent(user, r.URL.Query().Get("student_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	testID := chi.URLParam(r, "testID")

	if user.Privileged() {
		items, err := h.svc.History(r.Context(), studentID, testID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
		return
	}

	items, err := h.svc.StudentHistory(r.Context(), studentID, testID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

// Result returns the full record to staff and the redacted view to the owner.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	attemptID := chi.URLParam(r, "attemptID")
	if err := h.authorizeAttemptAccess(r, user, attemptID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if user.Privileged() {
		rec, err := h.svc.GetAttempt(r.Context(), attemptID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, response{OK: true, Data: rec})
		return
	}

	out, err := h.svc.StudentResult(r.Context(), attemptID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: out})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	attemptID := chi.URLParam(r, "attemptID")
	if err := h.authorizeAttemptAccess(r, user, attemptID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	rec, err := h.svc.Submit(r.Context(), attemptID, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if user.Privileged() {
		writeJSON(w, r, http.StatusOK, response{OK: true, Data: rec})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: PresentResult(*rec, rec.StartedAt)})
}

func (h *Handler) Grade(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	var in GradeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	in.GradedBy = user.ID

	rec, err := h.svc.RecordGrade(r.Context(), chi.URLParam(r, "attemptID"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: rec})
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.Release)
}

func (h *Handler) Hide(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.Hide)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, attemptID, actorID string) (*Record, error)) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	rec, err := fn(r.Context(), chi.URLParam(r, "attemptID"), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: rec})
}

func (h *Handler) BulkRelease(w http.ResponseWriter, r *http.Request) {
	h.bulkToggle(w, r, h.svc.BulkRelease)
}

func (h *Handler) BulkHide(w http.ResponseWriter, r *http.Request) {
	h.bulkToggle(w, r, h.svc.BulkHide)
}

func (h *Handler) bulkToggle(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, testID, actorID string) (int64, error)) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	testID := chi.URLParam(r, "testID")
	n, err := fn(r.Context(), testID, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: visibilityResult{TestID: testID, Affected: n}})
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid limit"})
			return
		}
		limit = v
	}

	items, err := h.svc.ListEvents(r.Context(), chi.URLParam(r, "attemptID"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) authorizeAttemptAccess(r *http.Request, user *auth.User, attemptID string) error {
	if user.Privileged() {
		return nil
	}

	ownerID, err := h.svc.GetAttemptOwner(r.Context(), attemptID)
	if err != nil {
		return err
	}
	if ownerID != user.ID {
		return ErrAttemptForbidden
	}
	return nil
}

// resolveStudent picks whose attempts a request is about. Students only ever
// act for themselves; staff must name the student.
func resolveStudent(user *auth.User, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if user.Privileged() {
		if requested == "" {
			return "", ErrInvalidInput
		}
		return requested, nil
	}
	if requested != "" && requested != user.ID {
		return "", ErrAttemptForbidden
	}
	return user.ID, nil
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrAttemptNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "attempt not found"})
	case errors.Is(err, catalog.ErrTestNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "test not found"})
	case errors.Is(err, ErrAttemptForbidden):
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrAlreadyInProgress):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Code: "already_in_progress", Error: Reason(err)})
	case errors.Is(err, ErrAttemptLimitExceeded):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Code: "attempt_limit_exceeded", Error: Reason(err)})
	case errors.Is(err, ErrPastDue):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Code: "past_due", Error: Reason(err)})
	case errors.Is(err, ErrNotGraded):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Code: "not_graded", Error: Reason(err)})
	case errors.Is(err, ErrInvalidTransition):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Code: "invalid_transition", Error: Reason(err)})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteErrorCode(w, r, code, payload.Code, payload.Error)
}

package report

import (
	"context"
	"errors"
	"net/http"

	"examgate/internal/app/apiresp"
	"examgate/internal/catalog"

	"github.com/go-chi/chi/v5"
)

type cohortService interface {
	CohortScores(ctx context.Context, testID, scope string) (*CohortSummary, error)
}

type Handler struct {
	svc cohortService
}

func NewHandler(svc cohortService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CohortScores(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.CohortScores(r.Context(), chi.URLParam(r, "testID"), r.URL.Query().Get("scope"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidScope):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, catalog.ErrTestNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, "test not found")
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

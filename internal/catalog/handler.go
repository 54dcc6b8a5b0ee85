package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"examgate/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type definitionWriter interface {
	UpsertTestDefinition(ctx context.Context, def TestDefinition) (*TestDefinition, error)
}

type invalidator interface {
	Invalidate(testID string)
}

type Handler struct {
	reader Provider
	writer definitionWriter
	cache  invalidator
}

// NewHandler serves the local catalog table. cache may be nil.
func NewHandler(reader Provider, writer definitionWriter, cache invalidator) *Handler {
	return &Handler{reader: reader, writer: writer, cache: cache}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	def, err := h.reader.GetTestDefinition(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, def)
}

func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var def TestDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	testID := chi.URLParam(r, "testID")
	if def.ID != "" && def.ID != testID {
		apiresp.WriteError(w, r, http.StatusBadRequest, "id does not match path")
		return
	}
	def.ID = testID

	out, err := h.writer.UpsertTestDefinition(r.Context(), def)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	if h.cache != nil {
		h.cache.Invalidate(testID)
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrTestNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, "test not found")
	case errors.Is(err, ErrInvalidDefinition):
		apiresp.WriteError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}

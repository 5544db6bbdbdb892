package handler

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/model"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/payload"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/usecase"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/pkg/types"
	"github.com/vasapolrittideah/health-journal-api/shared/auth"
	"github.com/vasapolrittideah/health-journal-api/shared/interceptor"
)

type healthEntryHTTPHandler struct {
	healthEntryUsecase usecase.HealthEntryUsecase
	errors             errorWriter
}

func newHealthEntryHTTPHandler(healthEntryUsecase usecase.HealthEntryUsecase, logger *zerolog.Logger) *healthEntryHTTPHandler {
	return &healthEntryHTTPHandler{
		healthEntryUsecase: healthEntryUsecase,
		errors:             errorWriter{logger: logger},
	}
}

func (h *healthEntryHTTPHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	claims, ok := interceptor.ClaimsFromContext[*types.JWTClaims](r.Context())
	if !ok {
		h.errors.write(w, r, auth.ErrMissingToken)
		return
	}

	var req payload.CreateHealthEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.write(w, r, err)
		return
	}

	entry, err := h.healthEntryUsecase.CreateEntry(r.Context(), claims.UserID(), req.Params())
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// ListEntries reads an optional ?limit=; anything unparsable is left to the
// usecase default.
func (h *healthEntryHTTPHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	claims, ok := interceptor.ClaimsFromContext[*types.JWTClaims](r.Context())
	if !ok {
		h.errors.write(w, r, auth.ErrMissingToken)
		return
	}

	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			limit = n
		}
	}

	entries, err := h.healthEntryUsecase.ListEntries(r.Context(), claims.UserID(), limit)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	if entries == nil {
		entries = []*model.HealthEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

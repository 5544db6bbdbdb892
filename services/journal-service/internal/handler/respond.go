package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/payload"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/usecase"
	"github.com/vasapolrittideah/health-journal-api/shared/auth"
)

const maxBodyBytes = 1 << 20

var errMalformedBody = errors.New("malformed JSON body")

// writeJSON writes body as JSON with status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, payload.ErrorResponse{Error: msg})
}

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

// errorWriter maps usecase and auth errors onto HTTP responses. Anything it
// does not recognise is logged and reported as a bare 500.
type errorWriter struct {
	logger *zerolog.Logger
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *usecase.ValidationError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, payload.ErrorResponse{
			Error:   "Validation failed",
			Details: validationErr.Fields,
		})
	case errors.Is(err, errMalformedBody):
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
	case errors.Is(err, usecase.ErrEmailAlreadyExists):
		writeError(w, http.StatusConflict, "Email already in use")
	case errors.Is(err, usecase.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrMissingToken):
		writeError(w, http.StatusUnauthorized, "Missing token")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, usecase.ErrInvalidOrExpiredToken):
		writeError(w, http.StatusBadRequest, "Invalid or expired token")
	case errors.Is(err, usecase.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	default:
		e.logger.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "something went wrong")
	}
}

package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/payload"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/usecase"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/pkg/types"
	"github.com/vasapolrittideah/health-journal-api/shared/auth"
	"github.com/vasapolrittideah/health-journal-api/shared/interceptor"
)

type authHTTPHandler struct {
	authUsecase          usecase.AuthUsecase
	passwordResetUsecase usecase.PasswordResetUsecase
	errors               errorWriter
	logger               *zerolog.Logger
}

func newAuthHTTPHandler(
	authUsecase usecase.AuthUsecase,
	passwordResetUsecase usecase.PasswordResetUsecase,
	logger *zerolog.Logger,
) *authHTTPHandler {
	return &authHTTPHandler{
		authUsecase:          authUsecase,
		passwordResetUsecase: passwordResetUsecase,
		errors:               errorWriter{logger: logger},
		logger:               logger,
	}
}

func (h *authHTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req payload.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.write(w, r, err)
		return
	}

	result, err := h.authUsecase.Register(r.Context(), req.Params())
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, payload.AuthResponse{Token: result.Token, User: result.User})
}

func (h *authHTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req payload.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.write(w, r, err)
		return
	}

	result, err := h.authUsecase.Login(r.Context(), req.Params())
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, payload.AuthResponse{Token: result.Token, User: result.User})
}

func (h *authHTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := interceptor.ClaimsFromContext[*types.JWTClaims](r.Context())
	if !ok {
		h.errors.write(w, r, auth.ErrMissingToken)
		return
	}

	user, err := h.authUsecase.Me(r.Context(), claims.UserID())
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *authHTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := interceptor.ClaimsFromContext[*types.JWTClaims](r.Context())
	if !ok {
		h.errors.write(w, r, auth.ErrMissingToken)
		return
	}

	if err := h.authUsecase.Logout(r.Context(), claims); err != nil {
		h.errors.write(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ForgotPassword answers every well-formed request with the same body so the
// response never reveals whether the email is registered. Store failures are
// logged rather than surfaced for the same reason.
func (h *authHTTPHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req payload.ForgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.write(w, r, err)
		return
	}

	if err := h.passwordResetUsecase.RequestPasswordReset(r.Context(), req.Params()); err != nil {
		if errors.Is(err, usecase.ErrValidation) {
			h.errors.write(w, r, err)
			return
		}
		h.logger.Error().Err(err).Msg("failed to request password reset")
	}

	writeJSON(w, http.StatusOK, payload.MessageResponse{Message: payload.ForgotPasswordMessage})
}

func (h *authHTTPHandler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if err := h.passwordResetUsecase.ValidatePasswordResetToken(r.Context(), token); err != nil {
		h.errors.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, payload.ValidateResetTokenResponse{Valid: true})
}

func (h *authHTTPHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req payload.ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.write(w, r, err)
		return
	}

	if err := h.passwordResetUsecase.ResetPassword(r.Context(), req.Params()); err != nil {
		h.errors.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, payload.MessageResponse{Message: payload.ResetPasswordMessage})
}

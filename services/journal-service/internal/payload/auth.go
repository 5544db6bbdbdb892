package payload

import (
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/model"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/usecase"
)

type RegisterRequest struct {
	Email    string  `json:"email"`
	Name     *string `json:"name,omitempty"`
	Password string  `json:"password"`
}

func (r RegisterRequest) Params() usecase.RegisterParams {
	return usecase.RegisterParams{Email: r.Email, Name: r.Name, Password: r.Password}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Params() usecase.LoginParams {
	return usecase.LoginParams{Email: r.Email, Password: r.Password}
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string           `json:"token"`
	User  model.PublicUser `json:"user"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r ForgotPasswordRequest) Params() usecase.ForgotPasswordParams {
	return usecase.ForgotPasswordParams{Email: r.Email}
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r ResetPasswordRequest) Params() usecase.ResetPasswordParams {
	return usecase.ResetPasswordParams{Token: r.Token, Password: r.Password}
}

type ValidateResetTokenResponse struct {
	Valid bool `json:"valid"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

const (
	ForgotPasswordMessage = "If that email exists, a reset email has been sent."
	ResetPasswordMessage  = "Password has been reset successfully."
)

package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/config"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/repository"
	"github.com/vasapolrittideah/health-journal-api/shared/security"
	"github.com/vasapolrittideah/health-journal-api/shared/validator"
)

// PasswordResetUsecase defines the business logic for password reset token operations.
type PasswordResetUsecase interface {
	// RequestPasswordReset starts a reset for email. It returns nil whether or
	// not the email is registered.
	RequestPasswordReset(ctx context.Context, params ForgotPasswordParams) error

	// ResetPassword redeems a reset token and sets a new password.
	ResetPassword(ctx context.Context, params ResetPasswordParams) error

	// ValidatePasswordResetToken checks that a token is pending and unexpired.
	ValidatePasswordResetToken(ctx context.Context, token string) error

	// Wait blocks until in-flight notifications have finished.
	Wait()
}

// PasswordResetNotifier delivers a reset link to a user.
type PasswordResetNotifier interface {
	SendPasswordReset(ctx context.Context, to, resetURL string, expiresIn time.Duration) error
}

// PasswordResetObserver receives reset outcomes, typically for metrics.
type PasswordResetObserver interface {
	PasswordResetRequested(outcome string)
	NotificationFailed()
}

type ForgotPasswordParams struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordParams struct {
	Token    string `json:"token"    validate:"required,min=10"`
	Password string `json:"password" validate:"required,min=6"`
}

const (
	resetTokenBytes = 32

	OutcomeIssued       = "issued"
	OutcomeUnknownEmail = "unknown_email"
	OutcomeError        = "error"
)

type passwordResetUsecase struct {
	userRepo      repository.UserRepository
	hasher        security.PasswordHasher
	notifier      PasswordResetNotifier
	validator     *validator.Validator
	observer      PasswordResetObserver
	logger        *zerolog.Logger
	resetURL      string
	tokenTTL      time.Duration
	notifyTimeout time.Duration
	now           func() time.Time

	inflight sync.WaitGroup
}

// PasswordResetOption customises NewPasswordResetUsecase.
type PasswordResetOption func(*passwordResetUsecase)

func WithResetClock(now func() time.Time) PasswordResetOption {
	return func(u *passwordResetUsecase) {
		u.now = now
	}
}

func WithResetObserver(o PasswordResetObserver) PasswordResetOption {
	return func(u *passwordResetUsecase) {
		u.observer = o
	}
}

// WithNotifyTimeout bounds each notification attempt.
func WithNotifyTimeout(d time.Duration) PasswordResetOption {
	return func(u *passwordResetUsecase) {
		u.notifyTimeout = d
	}
}

func NewPasswordResetUsecase(
	userRepo repository.UserRepository,
	hasher security.PasswordHasher,
	notifier PasswordResetNotifier,
	v *validator.Validator,
	cfg *config.JournalServiceConfig,
	logger *zerolog.Logger,
	opts ...PasswordResetOption,
) PasswordResetUsecase {
	u := &passwordResetUsecase{
		userRepo:      userRepo,
		hasher:        hasher,
		notifier:      notifier,
		validator:     v,
		observer:      nopObserver{},
		logger:        logger,
		resetURL:      cfg.AppPasswordResetURL,
		tokenTTL:      cfg.Token.PasswordResetTokenExpiresIn,
		notifyTimeout: cfg.SMTP.SendTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.tokenTTL <= 0 {
		u.tokenTTL = config.PasswordResetTokenTTL
	}
	if u.notifyTimeout <= 0 {
		u.notifyTimeout = 15 * time.Second
	}
	return u
}

func (u *passwordResetUsecase) RequestPasswordReset(ctx context.Context, params ForgotPasswordParams) error {
	if err := validateParams(u.validator, params); err != nil {
		return err
	}

	user, err := u.userRepo.GetUserByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			u.observer.PasswordResetRequested(OutcomeUnknownEmail)
			return nil
		}
		u.observer.PasswordResetRequested(OutcomeError)
		return fmt.Errorf("failed to find user: %w", err)
	}

	token, err := generateResetToken()
	if err != nil {
		u.observer.PasswordResetRequested(OutcomeError)
		return err
	}

	// Overwriting the pair supersedes any earlier pending token.
	if _, err := u.userRepo.UpdateUser(ctx, user.ID.Hex(), repository.UpdateUserParams{
		ResetToken: &repository.ResetTokenParams{
			Hash:      hashResetToken(token),
			ExpiresAt: u.now().Add(u.tokenTTL),
		},
	}); err != nil {
		u.observer.PasswordResetRequested(OutcomeError)
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	u.observer.PasswordResetRequested(OutcomeIssued)
	u.notify(ctx, user.ID.Hex(), user.Email, buildResetURL(u.resetURL, token))

	return nil
}

// notify delivers the reset link on a tracked goroutine. The request context
// is detached so the send survives the response being written.
func (u *passwordResetUsecase) notify(ctx context.Context, userID, email, resetURL string) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.notifyTimeout)

	u.inflight.Add(1)
	go func() {
		defer u.inflight.Done()
		defer cancel()

		if err := u.notifier.SendPasswordReset(sendCtx, email, resetURL, u.tokenTTL); err != nil {
			u.observer.NotificationFailed()
			u.logger.Error().Err(err).Str("user_id", userID).Msg("failed to send password reset notification")
			return
		}
		u.logger.Info().Str("user_id", userID).Msg("password reset notification sent")
	}()
}

func (u *passwordResetUsecase) ResetPassword(ctx context.Context, params ResetPasswordParams) error {
	if err := validateParams(u.validator, params); err != nil {
		return err
	}

	tokenHash := hashResetToken(params.Token)
	now := u.now()

	if _, err := u.userRepo.GetUserByResetTokenHash(ctx, tokenHash, now); err != nil {
		if errors.Is(err, repository.ErrResetTokenNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to find reset token: %w", err)
	}

	passwordHash, err := u.hasher.HashPassword(ctx, params.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := u.userRepo.ConsumeResetToken(ctx, tokenHash, now, passwordHash)
	if err != nil {
		if errors.Is(err, repository.ErrResetTokenNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}

	u.logger.Info().Str("user_id", user.ID.Hex()).Msg("password reset")

	return nil
}

func (u *passwordResetUsecase) ValidatePasswordResetToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidOrExpiredToken
	}

	if _, err := u.userRepo.GetUserByResetTokenHash(ctx, hashResetToken(token), u.now()); err != nil {
		if errors.Is(err, repository.ErrResetTokenNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to find reset token: %w", err)
	}

	return nil
}

func (u *passwordResetUsecase) Wait() {
	u.inflight.Wait()
}

// generateResetToken returns 32 random bytes, hex encoded.
func generateResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// hashResetToken is the at-rest form of a reset token.
func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func buildResetURL(base, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

type nopObserver struct{}

func (nopObserver) PasswordResetRequested(string) {}
func (nopObserver) NotificationFailed()           {}

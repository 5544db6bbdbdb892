package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/config"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/model"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/repository"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/pkg/types"
	"github.com/vasapolrittideah/health-journal-api/shared/auth"
	"github.com/vasapolrittideah/health-journal-api/shared/security"
	"github.com/vasapolrittideah/health-journal-api/shared/validator"
)

// AuthUsecase defines the interface for authentication-related use cases.
type AuthUsecase interface {
	Register(ctx context.Context, params RegisterParams) (*AuthResult, error)
	Login(ctx context.Context, params LoginParams) (*AuthResult, error)
	Me(ctx context.Context, userID string) (*model.PublicUser, error)

	// Authenticate verifies a bearer token and returns its claims. Failures
	// wrap auth.ErrInvalidToken.
	Authenticate(ctx context.Context, token string) (*types.JWTClaims, error)

	// Logout revokes the token described by claims until it expires.
	Logout(ctx context.Context, claims *types.JWTClaims) error
}

// RegisterParams defines the parameters for user registration.
type RegisterParams struct {
	Email    string  `json:"email"    validate:"required,email"`
	Name     *string `json:"name"     validate:"omitempty,min=1,max=100"`
	Password string  `json:"password" validate:"required,min=6"`
}

// LoginParams defines the parameters for user login.
type LoginParams struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string
	User  model.PublicUser
}

type authUsecase struct {
	userRepo  repository.UserRepository
	denylist  repository.TokenDenylist
	hasher    security.PasswordHasher
	jwtAuth   auth.JWTAuthenticator
	validator *validator.Validator
	tokenCfg  config.TokenConfig
	logger    *zerolog.Logger
	now       func() time.Time

	dummyMu   sync.Mutex
	dummyHash string
}

// AuthOption customises NewAuthUsecase.
type AuthOption func(*authUsecase)

// WithAuthClock sets the time source used when issuing tokens.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(u *authUsecase) {
		u.now = now
	}
}

func NewAuthUsecase(
	userRepo repository.UserRepository,
	denylist repository.TokenDenylist,
	hasher security.PasswordHasher,
	jwtAuth auth.JWTAuthenticator,
	v *validator.Validator,
	tokenCfg config.TokenConfig,
	logger *zerolog.Logger,
	opts ...AuthOption,
) AuthUsecase {
	u := &authUsecase{
		userRepo:  userRepo,
		denylist:  denylist,
		hasher:    hasher,
		jwtAuth:   jwtAuth,
		validator: v,
		tokenCfg:  tokenCfg,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.tokenCfg.AccessTokenExpiresIn <= 0 {
		u.tokenCfg.AccessTokenExpiresIn = config.AccessTokenTTL
	}
	return u
}

func (u *authUsecase) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	if err := validateParams(u.validator, params); err != nil {
		return nil, err
	}

	passwordHash, err := u.hasher.HashPassword(ctx, params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := u.userRepo.CreateUser(ctx, &model.User{
		Email:        params.Email,
		Name:         params.Name,
		PasswordHash: passwordHash,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailAlreadyExists) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	u.logger.Info().Str("user_id", user.ID.Hex()).Msg("user registered")

	return u.issue(user)
}

func (u *authUsecase) Login(ctx context.Context, params LoginParams) (*AuthResult, error) {
	if err := validateParams(u.validator, params); err != nil {
		return nil, err
	}

	user, err := u.userRepo.GetUserByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Spend the same hashing work as a real check so response time
			// does not reveal whether the email is registered.
			_, _ = u.hasher.VerifyPassword(ctx, params.Password, u.placeholderHash(ctx))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	ok, err := u.hasher.VerifyPassword(ctx, params.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if u.hasher.NeedsRehash(user.PasswordHash) {
		u.upgradeHash(ctx, user.ID.Hex(), params.Password)
	}

	return u.issue(user)
}

func (u *authUsecase) Me(ctx context.Context, userID string) (*model.PublicUser, error) {
	user, err := u.userRepo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	public := user.Public()
	return &public, nil
}

func (u *authUsecase) Authenticate(ctx context.Context, token string) (*types.JWTClaims, error) {
	claims := &types.JWTClaims{}
	if _, err := u.jwtAuth.ValidateTokenWithClaims(token, u.tokenCfg.Secret, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", auth.ErrInvalidToken)
	}

	if claims.ID != "" {
		revoked, err := u.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token revocation: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token revoked", auth.ErrInvalidToken)
		}
	}

	return claims, nil
}

func (u *authUsecase) Logout(ctx context.Context, claims *types.JWTClaims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return fmt.Errorf("%w: token cannot be revoked", auth.ErrInvalidToken)
	}

	if err := u.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	u.logger.Info().Str("user_id", claims.Subject).Msg("session revoked")

	return nil
}

func (u *authUsecase) issue(user *model.User) (*AuthResult, error) {
	token, err := u.generateToken(user.ID.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return &AuthResult{Token: token, User: user.Public()}, nil
}

func (u *authUsecase) generateToken(userID string) (string, error) {
	now := u.now()
	claims := types.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(u.tokenCfg.AccessTokenExpiresIn)),
			Issuer:    u.jwtAuth.Issuer(),
			Audience:  jwt.ClaimStrings{u.jwtAuth.Audience()},
		},
	}

	return u.jwtAuth.GenerateToken(claims, u.tokenCfg.Secret)
}

func (u *authUsecase) upgradeHash(ctx context.Context, userID, password string) {
	newHash, err := u.hasher.HashPassword(ctx, password)
	if err != nil {
		u.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to upgrade password hash")
		return
	}

	if _, err := u.userRepo.UpdateUser(ctx, userID, repository.UpdateUserParams{PasswordHash: &newHash}); err != nil {
		u.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to store upgraded password hash")
		return
	}

	u.logger.Info().Str("user_id", userID).Msg("password hash upgraded")
}

// placeholderHash returns a hash of a random secret for verifying against
// when the email is unknown. It is computed detached from the caller's
// cancellation and only cached once it succeeds.
func (u *authUsecase) placeholderHash(ctx context.Context) string {
	u.dummyMu.Lock()
	defer u.dummyMu.Unlock()

	if u.dummyHash != "" {
		return u.dummyHash
	}

	hash, err := u.hasher.HashPassword(context.WithoutCancel(ctx), uuid.NewString())
	if err != nil {
		u.logger.Warn().Err(err).Msg("failed to compute placeholder hash")
		return ""
	}
	u.dummyHash = hash
	return hash
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/model"
)

const userColumns = `id, email, name, password_hash, reset_token_hash, reset_token_expires_at, created_at, updated_at`

type userPostgresRepository struct {
	db DBTX
}

// NewUserPostgresRepository returns a UserRepository backed by the users table.
func NewUserPostgresRepository(db DBTX) UserRepository {
	return &userPostgresRepository{db: db}
}

func (r *userPostgresRepository) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	now := time.Now().UTC()
	user.ID = bson.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID.Hex(), user.Email, nullString(user.Name), user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *userPostgresRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	if _, err := bson.ObjectIDFromHex(id); err != nil {
		return nil, ErrUserNotFound
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.queryUser(ctx, ErrUserNotFound, query, id)
}

func (r *userPostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.queryUser(ctx, ErrUserNotFound, query, email)
}

func (r *userPostgresRepository) GetUserByResetTokenHash(
	ctx context.Context,
	tokenHash string,
	now time.Time,
) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE reset_token_hash = $1 AND reset_token_expires_at > $2`
	return r.queryUser(ctx, ErrResetTokenNotFound, query, tokenHash, now)
}

func (r *userPostgresRepository) UpdateUser(
	ctx context.Context,
	id string,
	params UpdateUserParams,
) (*model.User, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if _, err := bson.ObjectIDFromHex(id); err != nil {
		return nil, ErrUserNotFound
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if params.PasswordHash != nil {
		set("password_hash", *params.PasswordHash)
	}
	switch {
	case params.ResetToken != nil:
		set("reset_token_hash", params.ResetToken.Hash)
		set("reset_token_expires_at", params.ResetToken.ExpiresAt)
	case params.ClearResetToken:
		set("reset_token_hash", nil)
		set("reset_token_expires_at", nil)
	}
	set("updated_at", time.Now().UTC())

	args = append(args, id)
	query := `UPDATE users SET ` + strings.Join(sets, ", ") +
		` WHERE id = $` + strconv.Itoa(len(args)) + ` RETURNING ` + userColumns

	return r.queryUser(ctx, ErrUserNotFound, query, args...)
}

func (r *userPostgresRepository) ConsumeResetToken(
	ctx context.Context,
	tokenHash string,
	now time.Time,
	passwordHash string,
) (*model.User, error) {
	query := `UPDATE users
		SET password_hash = $1, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = $2
		WHERE reset_token_hash = $3 AND reset_token_expires_at > $4
		RETURNING ` + userColumns

	return r.queryUser(ctx, ErrResetTokenNotFound, query, passwordHash, time.Now().UTC(), tokenHash, now)
}

func (r *userPostgresRepository) queryUser(ctx context.Context, notFound error, query string, args ...any) (*model.User, error) {
	var (
		id        string
		user      model.User
		name      sql.NullString
		resetHash sql.NullString
		resetExp  sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&id, &user.Email, &name, &user.PasswordHash, &resetHash, &resetExp, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	objectID, err := bson.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("db error: malformed user id %q: %w", id, err)
	}
	user.ID = objectID

	if name.Valid {
		user.Name = &name.String
	}
	if resetHash.Valid && resetExp.Valid {
		user.ResetTokenHash = &resetHash.String
		expiresAt := resetExp.Time
		user.ResetTokenExpiresAt = &expiresAt
	}

	return &user, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

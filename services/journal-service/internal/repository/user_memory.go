package repository

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/model"
)

type userMemoryRepository struct {
	mu      sync.RWMutex
	byID    map[bson.ObjectID]*model.User
	byEmail map[string]bson.ObjectID
}

// NewUserMemoryRepository returns a process-local UserRepository. Returned
// users are copies; mutating them does not affect stored state.
func NewUserMemoryRepository() UserRepository {
	return &userMemoryRepository{
		byID:    make(map[bson.ObjectID]*model.User),
		byEmail: make(map[string]bson.ObjectID),
	}
}

func (r *userMemoryRepository) CreateUser(_ context.Context, user *model.User) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return nil, ErrEmailAlreadyExists
	}

	now := time.Now().UTC()
	user.ID = bson.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := cloneUser(user)
	r.byID[stored.ID] = stored
	r.byEmail[stored.Email] = stored.ID

	return cloneUser(stored), nil
}

func (r *userMemoryRepository) GetUser(_ context.Context, id string) (*model.User, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[objectID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (r *userMemoryRepository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(r.byID[id]), nil
}

func (r *userMemoryRepository) GetUserByResetTokenHash(
	_ context.Context,
	tokenHash string,
	now time.Time,
) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user := r.findByResetToken(tokenHash, now)
	if user == nil {
		return nil, ErrResetTokenNotFound
	}
	return cloneUser(user), nil
}

func (r *userMemoryRepository) UpdateUser(
	_ context.Context,
	id string,
	params UpdateUserParams,
) (*model.User, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[objectID]
	if !ok {
		return nil, ErrUserNotFound
	}

	if params.PasswordHash != nil {
		user.PasswordHash = *params.PasswordHash
	}
	switch {
	case params.ResetToken != nil:
		hash := params.ResetToken.Hash
		expiresAt := params.ResetToken.ExpiresAt
		user.ResetTokenHash = &hash
		user.ResetTokenExpiresAt = &expiresAt
	case params.ClearResetToken:
		user.ResetTokenHash = nil
		user.ResetTokenExpiresAt = nil
	}
	user.UpdatedAt = time.Now().UTC()

	return cloneUser(user), nil
}

func (r *userMemoryRepository) ConsumeResetToken(
	_ context.Context,
	tokenHash string,
	now time.Time,
	passwordHash string,
) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.findByResetToken(tokenHash, now)
	if user == nil {
		return nil, ErrResetTokenNotFound
	}

	user.PasswordHash = passwordHash
	user.ResetTokenHash = nil
	user.ResetTokenExpiresAt = nil
	user.UpdatedAt = time.Now().UTC()

	return cloneUser(user), nil
}

// findByResetToken must be called with r.mu held.
func (r *userMemoryRepository) findByResetToken(tokenHash string, now time.Time) *model.User {
	for _, user := range r.byID {
		if user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash && user.HasPendingReset(now) {
			return user
		}
	}
	return nil
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.Name != nil {
		name := *u.Name
		c.Name = &name
	}
	if u.ResetTokenHash != nil {
		hash := *u.ResetTokenHash
		c.ResetTokenHash = &hash
	}
	if u.ResetTokenExpiresAt != nil {
		expiresAt := *u.ResetTokenExpiresAt
		c.ResetTokenExpiresAt = &expiresAt
	}
	return &c
}

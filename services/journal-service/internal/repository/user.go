package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/model"
)

// UserRepository defines the interface for user-related database operations.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// GetUserByResetTokenHash returns the user whose pending reset token has
	// the given digest and expires after now.
	GetUserByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*model.User, error)

	UpdateUser(ctx context.Context, id string, params UpdateUserParams) (*model.User, error)

	// ConsumeResetToken replaces the password and clears the reset token in a
	// single conditional write. It fails with ErrResetTokenNotFound when the
	// token no longer matches or has expired, so a token is redeemable once.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (*model.User, error)
}

// UpdateUserParams defines the optional parameters for updating a user.
// Only the fields that are set will be updated.
type UpdateUserParams struct {
	PasswordHash    *string
	ResetToken      *ResetTokenParams
	ClearResetToken bool
}

// ResetTokenParams sets a pending reset token. Both fields are written together.
type ResetTokenParams struct {
	Hash      string
	ExpiresAt time.Time
}

func (p UpdateUserParams) validate() error {
	if p.ResetToken != nil && p.ClearResetToken {
		return ErrConflictingResetSpec
	}
	if p.PasswordHash == nil && p.ResetToken == nil && !p.ClearResetToken {
		return ErrNoFieldsToUpdate
	}
	return nil
}

const userCollection = "users"

type userMongoRepository struct {
	db *mongo.Database
}

// NewUserMongoRepository ensures the user indexes exist and returns a
// Mongo-backed UserRepository.
func NewUserMongoRepository(ctx context.Context, db *mongo.Database) (UserRepository, error) {
	collection := db.Collection(userCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "reset_token_hash", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"reset_token_hash": bson.M{"$type": "string"}}),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create user indexes: %w", err)
	}

	return &userMongoRepository{db: db}, nil
}

func (r *userMongoRepository) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := r.db.Collection(userCollection).InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, err
	}

	objectID, ok := result.InsertedID.(bson.ObjectID)
	if !ok {
		return nil, errors.New("failed to convert inserted ID to ObjectID")
	}
	user.ID = objectID

	return user, nil
}

func (r *userMongoRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	return r.findOne(ctx, bson.M{"_id": objectID}, ErrUserNotFound)
}

func (r *userMongoRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": email}, ErrUserNotFound)
}

func (r *userMongoRepository) GetUserByResetTokenHash(
	ctx context.Context,
	tokenHash string,
	now time.Time,
) (*model.User, error) {
	filter := bson.M{
		"reset_token_hash":       tokenHash,
		"reset_token_expires_at": bson.M{"$gt": now},
	}
	return r.findOne(ctx, filter, ErrResetTokenNotFound)
}

func (r *userMongoRepository) UpdateUser(
	ctx context.Context,
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

	updateMap := bson.M{"updated_at": time.Now().UTC()}
	if params.PasswordHash != nil {
		updateMap["password_hash"] = *params.PasswordHash
	}
	switch {
	case params.ResetToken != nil:
		updateMap["reset_token_hash"] = params.ResetToken.Hash
		updateMap["reset_token_expires_at"] = params.ResetToken.ExpiresAt
	case params.ClearResetToken:
		updateMap["reset_token_hash"] = nil
		updateMap["reset_token_expires_at"] = nil
	}

	return r.findOneAndSet(ctx, bson.M{"_id": objectID}, updateMap, ErrUserNotFound)
}

func (r *userMongoRepository) ConsumeResetToken(
	ctx context.Context,
	tokenHash string,
	now time.Time,
	passwordHash string,
) (*model.User, error) {
	filter := bson.M{
		"reset_token_hash":       tokenHash,
		"reset_token_expires_at": bson.M{"$gt": now},
	}
	updateMap := bson.M{
		"password_hash":          passwordHash,
		"reset_token_hash":       nil,
		"reset_token_expires_at": nil,
		"updated_at":             time.Now().UTC(),
	}

	return r.findOneAndSet(ctx, filter, updateMap, ErrResetTokenNotFound)
}

func (r *userMongoRepository) findOne(ctx context.Context, filter bson.M, notFound error) (*model.User, error) {
	var user model.User
	if err := r.db.Collection(userCollection).FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound
		}
		return nil, err
	}

	return &user, nil
}

func (r *userMongoRepository) findOneAndSet(
	ctx context.Context,
	filter bson.M,
	set bson.M,
	notFound error,
) (*model.User, error) {
	result := r.db.Collection(userCollection).FindOneAndUpdate(
		ctx,
		filter,
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var user model.User
	if err := result.Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound
		}
		return nil, err
	}

	return &user, nil
}

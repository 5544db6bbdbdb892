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

const (
	DefaultEntriesLimit = 20
	MaxEntriesLimit     = 100
)

// HealthEntryRepository stores journal entries.
type HealthEntryRepository interface {
	CreateEntry(ctx context.Context, entry *model.HealthEntry) (*model.HealthEntry, error)

	// ListEntries returns the user's entries, newest first.
	ListEntries(ctx context.Context, params ListEntriesParams) ([]*model.HealthEntry, error)
}

type ListEntriesParams struct {
	UserID bson.ObjectID
	Limit  int64
}

func (p ListEntriesParams) limit() int64 {
	switch {
	case p.Limit <= 0:
		return DefaultEntriesLimit
	case p.Limit > MaxEntriesLimit:
		return MaxEntriesLimit
	default:
		return p.Limit
	}
}

const healthEntryCollection = "health_entries"

type healthEntryMongoRepository struct {
	db *mongo.Database
}

func NewHealthEntryMongoRepository(ctx context.Context, db *mongo.Database) (HealthEntryRepository, error) {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	if _, err := db.Collection(healthEntryCollection).Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create health entry indexes: %w", err)
	}

	return &healthEntryMongoRepository{db: db}, nil
}

func (r *healthEntryMongoRepository) CreateEntry(
	ctx context.Context,
	entry *model.HealthEntry,
) (*model.HealthEntry, error) {
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	result, err := r.db.Collection(healthEntryCollection).InsertOne(ctx, entry)
	if err != nil {
		return nil, err
	}

	objectID, ok := result.InsertedID.(bson.ObjectID)
	if !ok {
		return nil, errors.New("failed to convert inserted ID to ObjectID")
	}
	entry.ID = objectID

	return entry, nil
}

func (r *healthEntryMongoRepository) ListEntries(
	ctx context.Context,
	params ListEntriesParams,
) ([]*model.HealthEntry, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(params.limit())

	cursor, err := r.db.Collection(healthEntryCollection).Find(ctx, bson.M{"user_id": params.UserID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := make([]*model.HealthEntry, 0)
	for cursor.Next(ctx) {
		var entry model.HealthEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/model"
)

type healthEntryPostgresRepository struct {
	db DBTX
}

func NewHealthEntryPostgresRepository(db DBTX) HealthEntryRepository {
	return &healthEntryPostgresRepository{db: db}
}

func (r *healthEntryPostgresRepository) CreateEntry(
	ctx context.Context,
	entry *model.HealthEntry,
) (*model.HealthEntry, error) {
	now := time.Now().UTC()
	entry.ID = bson.NewObjectID()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	var steps sql.NullInt64
	if entry.Steps != nil {
		steps = sql.NullInt64{Int64: *entry.Steps, Valid: true}
	}

	query := `INSERT INTO health_entries
		(id, user_id, entry_text, mood_score, energy_score, sleep_hours, steps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID.Hex(), entry.UserID.Hex(), entry.EntryText,
		entry.MoodScore, entry.EnergyScore, entry.SleepHours, steps,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entry, nil
}

func (r *healthEntryPostgresRepository) ListEntries(
	ctx context.Context,
	params ListEntriesParams,
) ([]*model.HealthEntry, error) {
	query := `SELECT id, user_id, entry_text, mood_score, energy_score, sleep_hours, steps, created_at, updated_at
		FROM health_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, params.UserID.Hex(), params.limit())
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	entries := make([]*model.HealthEntry, 0)
	for rows.Next() {
		var (
			entry  model.HealthEntry
			id     string
			userID string
			steps  sql.NullInt64
		)
		if err := rows.Scan(
			&id, &userID, &entry.EntryText,
			&entry.MoodScore, &entry.EnergyScore, &entry.SleepHours, &steps,
			&entry.CreatedAt, &entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}

		if entry.ID, err = bson.ObjectIDFromHex(strings.TrimSpace(id)); err != nil {
			return nil, fmt.Errorf("db error: malformed entry id %q: %w", id, err)
		}
		if entry.UserID, err = bson.ObjectIDFromHex(strings.TrimSpace(userID)); err != nil {
			return nil, fmt.Errorf("db error: malformed user id %q: %w", userID, err)
		}
		if steps.Valid {
			entry.Steps = &steps.Int64
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entries, nil
}

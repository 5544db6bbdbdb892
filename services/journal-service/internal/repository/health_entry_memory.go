package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/model"
)

type healthEntryMemoryRepository struct {
	mu      sync.RWMutex
	entries []model.HealthEntry
}

func NewHealthEntryMemoryRepository() HealthEntryRepository {
	return &healthEntryMemoryRepository{}
}

func (r *healthEntryMemoryRepository) CreateEntry(
	_ context.Context,
	entry *model.HealthEntry,
) (*model.HealthEntry, error) {
	now := time.Now().UTC()
	entry.ID = bson.NewObjectID()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	r.mu.Lock()
	r.entries = append(r.entries, cloneEntry(*entry))
	r.mu.Unlock()

	return entry, nil
}

func (r *healthEntryMemoryRepository) ListEntries(
	_ context.Context,
	params ListEntriesParams,
) ([]*model.HealthEntry, error) {
	r.mu.RLock()
	matched := make([]model.HealthEntry, 0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].UserID == params.UserID {
			matched = append(matched, cloneEntry(r.entries[i]))
		}
	}
	r.mu.RUnlock()

	// Walking backwards puts later inserts first among equal timestamps.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := int(params.limit())
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*model.HealthEntry, len(matched))
	for i := range matched {
		out[i] = &matched[i]
	}
	return out, nil
}

func cloneEntry(e model.HealthEntry) model.HealthEntry {
	if e.Steps != nil {
		steps := *e.Steps
		e.Steps = &steps
	}
	return e
}

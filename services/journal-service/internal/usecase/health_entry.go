package usecase

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/model"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/repository"
	"github.com/vasapolrittideah/health-journal-api/shared/validator"
)

// HealthEntryUsecase manages the journal entries of the authenticated user.
type HealthEntryUsecase interface {
	CreateEntry(ctx context.Context, userID string, params CreateEntryParams) (*model.HealthEntry, error)
	ListEntries(ctx context.Context, userID string, limit int64) ([]*model.HealthEntry, error)
}

// CreateEntryParams are pointers where zero is a legitimate score.
type CreateEntryParams struct {
	EntryText   string   `json:"entryText"   validate:"required"`
	MoodScore   *float64 `json:"moodScore"   validate:"required,min=0,max=10"`
	EnergyScore *float64 `json:"energyScore" validate:"required,min=0,max=10"`
	SleepHours  *float64 `json:"sleepHours"  validate:"required,min=0,max=24"`
	Steps       *int64   `json:"steps"       validate:"omitempty,min=0"`
}

type healthEntryUsecase struct {
	entryRepo repository.HealthEntryRepository
	validator *validator.Validator
}

func NewHealthEntryUsecase(entryRepo repository.HealthEntryRepository, v *validator.Validator) HealthEntryUsecase {
	return &healthEntryUsecase{
		entryRepo: entryRepo,
		validator: v,
	}
}

func (u *healthEntryUsecase) CreateEntry(
	ctx context.Context,
	userID string,
	params CreateEntryParams,
) (*model.HealthEntry, error) {
	owner, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	if err := validateParams(u.validator, params); err != nil {
		return nil, err
	}

	entry, err := u.entryRepo.CreateEntry(ctx, &model.HealthEntry{
		UserID:      owner,
		EntryText:   params.EntryText,
		MoodScore:   *params.MoodScore,
		EnergyScore: *params.EnergyScore,
		SleepHours:  *params.SleepHours,
		Steps:       params.Steps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	return entry, nil
}

// ListEntries returns the user's newest entries. Non-positive limits fall
// back to the default and large ones are capped.
func (u *healthEntryUsecase) ListEntries(ctx context.Context, userID string, limit int64) ([]*model.HealthEntry, error) {
	owner, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	entries, err := u.entryRepo.ListEntries(ctx, repository.ListEntriesParams{UserID: owner, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	return entries, nil
}

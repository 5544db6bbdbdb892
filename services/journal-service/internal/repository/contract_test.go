package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/model"
)

// runUserRepositoryContract exercises behaviour every UserRepository must share.
func runUserRepositoryContract(t *testing.T, newRepo func(t *testing.T) UserRepository) {
	ctx := context.Background()

	t.Run("create and fetch", func(t *testing.T) {
		repo := newRepo(t)
		name := "Alice"

		created, err := repo.CreateUser(ctx, &model.User{Email: "alice@example.com", Name: &name, PasswordHash: "h1"})
		require.NoError(t, err)
		require.False(t, created.ID.IsZero())
		assert.False(t, created.CreatedAt.IsZero())

		byID, err := repo.GetUser(ctx, created.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", byID.Email)
		require.NotNil(t, byID.Name)
		assert.Equal(t, "Alice", *byID.Name)
		assert.Nil(t, byID.ResetTokenHash)
		assert.Nil(t, byID.ResetTokenExpiresAt)

		byEmail, err := repo.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.CreateUser(ctx, &model.User{Email: "dup@example.com", PasswordHash: "h"})
		require.NoError(t, err)
		_, err = repo.CreateUser(ctx, &model.User{Email: "dup@example.com", PasswordHash: "h"})
		assert.ErrorIs(t, err, ErrEmailAlreadyExists)
	})

	t.Run("email is case sensitive", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.CreateUser(ctx, &model.User{Email: "case@example.com", PasswordHash: "h"})
		require.NoError(t, err)
		_, err = repo.GetUserByEmail(ctx, "CASE@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("not found", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.GetUser(ctx, bson.NewObjectID().Hex())
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = repo.GetUser(ctx, "not-an-id")
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = repo.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = repo.UpdateUser(ctx, bson.NewObjectID().Hex(), UpdateUserParams{ClearResetToken: true})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("reset token lifecycle", func(t *testing.T) {
		repo := newRepo(t)
		now := time.Now().UTC().Truncate(time.Millisecond)

		user, err := repo.CreateUser(ctx, &model.User{Email: "reset@example.com", PasswordHash: "old"})
		require.NoError(t, err)

		_, err = repo.UpdateUser(ctx, user.ID.Hex(), UpdateUserParams{
			ResetToken: &ResetTokenParams{Hash: "digest-1", ExpiresAt: now.Add(time.Hour)},
		})
		require.NoError(t, err)

		found, err := repo.GetUserByResetTokenHash(ctx, "digest-1", now)
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)
		require.NotNil(t, found.ResetTokenExpiresAt)

		_, err = repo.GetUserByResetTokenHash(ctx, "digest-1", now.Add(time.Hour))
		assert.ErrorIs(t, err, ErrResetTokenNotFound, "token must be unusable at its expiry instant")

		_, err = repo.UpdateUser(ctx, user.ID.Hex(), UpdateUserParams{
			ResetToken: &ResetTokenParams{Hash: "digest-2", ExpiresAt: now.Add(time.Hour)},
		})
		require.NoError(t, err)
		_, err = repo.GetUserByResetTokenHash(ctx, "digest-1", now)
		assert.ErrorIs(t, err, ErrResetTokenNotFound, "new request supersedes the old token")

		consumed, err := repo.ConsumeResetToken(ctx, "digest-2", now, "new")
		require.NoError(t, err)
		assert.Equal(t, "new", consumed.PasswordHash)
		assert.Nil(t, consumed.ResetTokenHash)
		assert.Nil(t, consumed.ResetTokenExpiresAt)

		_, err = repo.ConsumeResetToken(ctx, "digest-2", now, "again")
		assert.ErrorIs(t, err, ErrResetTokenNotFound)

		stored, err := repo.GetUser(ctx, user.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, "new", stored.PasswordHash)
	})

	t.Run("consume is single use under concurrency", func(t *testing.T) {
		repo := newRepo(t)
		now := time.Now().UTC()

		user, err := repo.CreateUser(ctx, &model.User{Email: "race@example.com", PasswordHash: "old"})
		require.NoError(t, err)
		_, err = repo.UpdateUser(ctx, user.ID.Hex(), UpdateUserParams{
			ResetToken: &ResetTokenParams{Hash: "race", ExpiresAt: now.Add(time.Hour)},
		})
		require.NoError(t, err)

		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.ConsumeResetToken(ctx, "race", now, "new"); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
	})

	t.Run("update validation", func(t *testing.T) {
		repo := newRepo(t)

		user, err := repo.CreateUser(ctx, &model.User{Email: "v@example.com", PasswordHash: "h"})
		require.NoError(t, err)

		_, err = repo.UpdateUser(ctx, user.ID.Hex(), UpdateUserParams{})
		assert.ErrorIs(t, err, ErrNoFieldsToUpdate)

		_, err = repo.UpdateUser(ctx, user.ID.Hex(), UpdateUserParams{
			ResetToken:      &ResetTokenParams{Hash: "x", ExpiresAt: time.Now()},
			ClearResetToken: true,
		})
		assert.ErrorIs(t, err, ErrConflictingResetSpec)

		hash := "rehashed"
		updated, err := repo.UpdateUser(ctx, user.ID.Hex(), UpdateUserParams{PasswordHash: &hash})
		require.NoError(t, err)
		assert.Equal(t, "rehashed", updated.PasswordHash)
	})
}

func runHealthEntryRepositoryContract(t *testing.T, newRepo func(t *testing.T) HealthEntryRepository) {
	ctx := context.Background()

	t.Run("list is scoped newest first and limited", func(t *testing.T) {
		repo := newRepo(t)
		owner := bson.NewObjectID()
		other := bson.NewObjectID()

		for _, text := range []string{"first", "second", "third"} {
			_, err := repo.CreateEntry(ctx, &model.HealthEntry{UserID: owner, EntryText: text, MoodScore: 5})
			require.NoError(t, err)
			time.Sleep(2 * time.Millisecond)
		}
		steps := int64(4000)
		_, err := repo.CreateEntry(ctx, &model.HealthEntry{UserID: other, EntryText: "not mine", Steps: &steps})
		require.NoError(t, err)

		entries, err := repo.ListEntries(ctx, ListEntriesParams{UserID: owner})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "third", entries[0].EntryText)
		assert.Equal(t, "first", entries[2].EntryText)

		limited, err := repo.ListEntries(ctx, ListEntriesParams{UserID: owner, Limit: 2})
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, "third", limited[0].EntryText)

		theirs, err := repo.ListEntries(ctx, ListEntriesParams{UserID: other})
		require.NoError(t, err)
		require.Len(t, theirs, 1)
		require.NotNil(t, theirs[0].Steps)
		assert.Equal(t, int64(4000), *theirs[0].Steps)
	})

	t.Run("empty list", func(t *testing.T) {
		repo := newRepo(t)

		entries, err := repo.ListEntries(ctx, ListEntriesParams{UserID: bson.NewObjectID()})
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})
}

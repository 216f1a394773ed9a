// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/wayfinder/pkg/storage"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testProfile() storage.UserProfile {
	return storage.UserProfile{
		GoogleID:   "sub-123",
		Email:      "traveler@example.com",
		Name:       "Traveler",
		PictureURL: "https://example.com/p.jpg",
	}
}

func TestFindOrCreateInsertsNewUser(t *testing.T) {
	t.Parallel()

	store := NewUserStore(newTestDB(t))
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	user, err := store.FindOrCreate(ctx, testProfile(), storage.Credential{
		RefreshToken: "refresh-1",
		ExpiresAt:    expiry,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "sub-123", user.GoogleID)
	assert.Equal(t, "traveler@example.com", user.Email)
	assert.Equal(t, "refresh-1", user.RefreshToken)
	require.NotNil(t, user.TokenExpiresAt)
	assert.WithinDuration(t, expiry, *user.TokenExpiresAt, time.Second)
	assert.NotNil(t, user.Preferences)

	got, err := store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "refresh-1", got.RefreshToken)
}

func TestFindOrCreateUpdatesProfileNotTwoRows(t *testing.T) {
	t.Parallel()

	store := NewUserStore(newTestDB(t))
	ctx := context.Background()

	first, err := store.FindOrCreate(ctx, testProfile(), storage.Credential{RefreshToken: "refresh-1"})
	require.NoError(t, err)

	updated := testProfile()
	updated.Email = "new@example.com"
	updated.Name = "Renamed"
	second, err := store.FindOrCreate(ctx, updated, storage.Credential{})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same subject id must resolve to one row")
	assert.Equal(t, "new@example.com", second.Email)
	assert.Equal(t, "Renamed", second.Name)

	var count int
	err = store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFindOrCreateNeverClearsCredential(t *testing.T) {
	t.Parallel()

	store := NewUserStore(newTestDB(t))
	ctx := context.Background()

	_, err := store.FindOrCreate(ctx, testProfile(), storage.Credential{
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	// A repeat grant without a refresh token must keep the stored one.
	user, err := store.FindOrCreate(ctx, testProfile(), storage.Credential{})
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", user.RefreshToken)
	assert.NotNil(t, user.TokenExpiresAt)

	// A repeat grant with a new token replaces it.
	user, err = store.FindOrCreate(ctx, testProfile(), storage.Credential{RefreshToken: "refresh-2"})
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", user.RefreshToken)
}

func TestFindOrCreateDistinctSubjects(t *testing.T) {
	t.Parallel()

	store := NewUserStore(newTestDB(t))
	ctx := context.Background()

	first, err := store.FindOrCreate(ctx, testProfile(), storage.Credential{})
	require.NoError(t, err)

	other := storage.UserProfile{
		GoogleID: "sub-456",
		Email:    "other@example.com",
		Name:     "Other",
	}
	second, err := store.FindOrCreate(ctx, other, storage.Credential{})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestFindByIDNotFound(t *testing.T) {
	t.Parallel()

	store := NewUserStore(newTestDB(t))

	_, err := store.FindByID(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateCredential(t *testing.T) {
	t.Parallel()

	store := NewUserStore(newTestDB(t))
	ctx := context.Background()

	user, err := store.FindOrCreate(ctx, testProfile(), storage.Credential{RefreshToken: "refresh-1"})
	require.NoError(t, err)

	expiry := time.Now().Add(45 * time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, store.UpdateCredential(ctx, user.ID, storage.Credential{ExpiresAt: expiry}))

	got, err := store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TokenExpiresAt)
	assert.WithinDuration(t, expiry, *got.TokenExpiresAt, time.Second)

	// Expiry-only updates keep the stored refresh token.
	assert.Equal(t, "refresh-1", got.RefreshToken)

	// A rotated refresh token replaces it.
	require.NoError(t, store.UpdateCredential(ctx, user.ID,
		storage.Credential{RefreshToken: "refresh-2", ExpiresAt: expiry}))
	got, err = store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", got.RefreshToken)

	assert.ErrorIs(t,
		store.UpdateCredential(ctx, "no-such-id", storage.Credential{ExpiresAt: expiry}),
		storage.ErrNotFound)
}

func TestFindOrCreateInsertRaceResolvesToWinner(t *testing.T) {
	t.Parallel()

	store := NewUserStore(newTestDB(t))
	ctx := context.Background()

	// Simulate a lost race: the row appears between lookup and insert.
	winner, err := store.insert(ctx, testProfile(), storage.Credential{RefreshToken: "refresh-1"})
	require.NoError(t, err)

	_, err = store.insert(ctx, testProfile(), storage.Credential{})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	// FindOrCreate treats the violation as "re-fetch the winner".
	user, err := store.FindOrCreate(ctx, testProfile(), storage.Credential{})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, user.ID)
	assert.Equal(t, "refresh-1", user.RefreshToken)
}

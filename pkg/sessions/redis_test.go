// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStoreWithClient(client, "test:"), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	want := Session{
		UserID:      "user-1",
		AccessToken: "ya29.token",
		TokenType:   "Bearer",
		ExpiresAt:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Set(ctx, "sess-1", want, SessionTTL))

	var got Session
	found, err := store.Get(ctx, "sess-1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestRedisStoreGetAbsent(t *testing.T) {
	t.Parallel()

	store, _ := newTestRedisStore(t)

	var got Session
	found, err := store.Get(context.Background(), "never-set", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	t.Parallel()

	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "state-1", LoginState{Verifier: "v"}, StateTTL))

	mr.FastForward(StateTTL + time.Second)

	var got LoginState
	found, err := store.Get(ctx, "state-1", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreSetWithoutTTLPersists(t *testing.T) {
	t.Parallel()

	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "pinned", LoginState{Verifier: "v"}, 0))

	mr.FastForward(30 * 24 * time.Hour)

	var got LoginState
	found, err := store.Get(ctx, "pinned", &got)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRedisStoreDeleteIdempotent(t *testing.T) {
	t.Parallel()

	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "gone", LoginState{}, StateTTL))
	require.NoError(t, store.Delete(ctx, "gone"))
	require.NoError(t, store.Delete(ctx, "gone"))
	require.NoError(t, store.Delete(ctx, "never-existed"))

	var got LoginState
	found, err := store.Get(ctx, "gone", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreExtendResetsTTL(t *testing.T) {
	t.Parallel()

	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "sess-2", Session{UserID: "u"}, time.Minute))

	// Halfway to expiry, extend back to a full session lifetime.
	mr.FastForward(30 * time.Second)
	require.NoError(t, store.Extend(ctx, "sess-2", SessionTTL))

	mr.FastForward(time.Minute)

	var got Session
	found, err := store.Get(ctx, "sess-2", &got)
	require.NoError(t, err)
	assert.True(t, found, "extended key must outlive its original TTL")
	assert.Equal(t, "u", got.UserID)
}

func TestRedisStoreExtendAbsentIsSilent(t *testing.T) {
	t.Parallel()

	store, _ := newTestRedisStore(t)

	assert.NoError(t, store.Extend(context.Background(), "missing", SessionTTL))
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	t.Parallel()

	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "abc", LoginState{}, 0))
	assert.True(t, mr.Exists("test:abc"))
	assert.False(t, mr.Exists("abc"))
}

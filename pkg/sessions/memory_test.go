// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sessions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()

	store := NewMemoryStore(WithCleanupInterval(10 * time.Millisecond))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestMemoryStore(t)
	ctx := context.Background()

	want := Session{
		UserID:      "user-1",
		AccessToken: "tok",
		TokenType:   "Bearer",
		ExpiresAt:   time.Date(2026, 8, 30, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, store.Set(ctx, "k", want, SessionTTL))

	var got Session
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestMemoryStoreExpiryReadsAsAbsent(t *testing.T) {
	t.Parallel()

	store := newTestMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", LoginState{Verifier: "v"}, 20*time.Millisecond))

	var got LoginState
	found, err := store.Get(ctx, "short", &got)
	require.NoError(t, err)
	require.True(t, found)

	time.Sleep(50 * time.Millisecond)

	found, err = store.Get(ctx, "short", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStoreJanitorRemovesExpired(t *testing.T) {
	t.Parallel()

	store := newTestMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", LoginState{}, 10*time.Millisecond))
	require.NoError(t, store.Set(ctx, "b", LoginState{}, 0))

	assert.Eventually(t, func() bool {
		store.mu.RLock()
		defer store.mu.RUnlock()
		_, aPresent := store.entries["a"]
		_, bPresent := store.entries["b"]
		return !aPresent && bPresent
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStoreExtend(t *testing.T) {
	t.Parallel()

	store := newTestMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", Session{UserID: "u"}, 30*time.Millisecond))
	require.NoError(t, store.Extend(ctx, "k", time.Hour))

	time.Sleep(60 * time.Millisecond)

	var got Session
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found, "extended key must outlive its original TTL")

	// Absent keys are a silent miss.
	assert.NoError(t, store.Extend(ctx, "missing", time.Hour))
}

func TestMemoryStoreDeleteIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", LoginState{}, 0))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := newTestMemoryStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			require.NoError(t, store.Set(ctx, key, Session{UserID: key}, time.Minute))

			var got Session
			found, err := store.Get(ctx, key, &got)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, key, got.UserID)
		}()
	}
	wg.Wait()
}

func TestStateKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "oauth_state:abc123", StateKey("abc123"))
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often the background cleanup removes
// expired entries from a MemoryStore.
const DefaultCleanupInterval = 5 * time.Minute

// timedEntry wraps a serialized value with its expiry for TTL tracking.
// A zero expiresAt means the entry never expires.
type timedEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e *timedEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore implements Store with an in-memory map. It is thread-safe
// and suitable for development and testing; production deployments use
// RedisStore so sessions survive restarts and are shared across replicas.
//
// Values are serialized through JSON on Set and deserialized on Get so the
// round-trip semantics match the Redis implementation exactly.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*timedEntry

	// cleanupInterval is how often the background cleanup runs
	cleanupInterval time.Duration

	// stopCleanup is used to signal the cleanup goroutine to stop
	stopCleanup chan struct{}

	// cleanupDone is closed when the cleanup goroutine has fully stopped
	cleanupDone chan struct{}
}

var _ Store = (*MemoryStore)(nil)

// MemoryStoreOption configures a MemoryStore instance.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = interval
	}
}

// NewMemoryStore creates a MemoryStore and starts its background cleanup
// goroutine. Call Close to stop it.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:         make(map[string]*timedEntry),
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Close stops the background cleanup goroutine and waits for it to exit.
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
		}
	}
}

// Get reads and decodes the value at key. Expired entries read as absent
// even before the janitor has removed them.
func (s *MemoryStore) Get(_ context.Context, key string, dest any) (bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.expired(time.Now()) {
		return false, nil
	}

	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

// Set serializes value and stores it at key with the given TTL.
func (s *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	entry := &timedEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	return nil
}

// Delete removes the key. Idempotent.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Extend resets the key's TTL without touching its value. A miss on an
// absent or already-expired key is silent.
func (s *MemoryStore) Extend(_ context.Context, key string, ttl time.Duration) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.expired(now) {
		return nil
	}
	entry.expiresAt = now.Add(ttl)
	return nil
}

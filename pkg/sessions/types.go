// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sessions provides the key-value session store backing the OAuth
// login flow: ephemeral login state entries and authenticated session
// entries, both JSON blobs with per-key expiry.
package sessions

import (
	"context"
	"time"
)

const (
	// SessionTTL is the fixed lifetime of an authenticated session entry.
	// It is re-applied on every write, including token-refresh rewrites.
	SessionTTL = 7 * 24 * time.Hour

	// StateTTL is the lifetime of a pending login state entry. It bounds
	// how long a user can sit on the provider's consent screen.
	StateTTL = 10 * time.Minute

	// statePrefix namespaces login state entries away from session entries,
	// which are keyed by the raw session identifier.
	statePrefix = "oauth_state:"
)

// Session is an authenticated session entry. It names exactly one user and
// carries the current short-lived provider access token with its absolute
// expiry. The session identifier itself is the store key, never part of
// the value.
type Session struct {
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginState is a single-use anti-CSRF entry created at login initiation
// and destroyed when the provider calls back (or by TTL if it never does).
// The PKCE verifier travels with it so the callback can complete the
// S256 code exchange.
type LoginState struct {
	Verifier string `json:"code_verifier"`
}

// StateKey builds the store key for a login state token.
func StateKey(state string) string {
	return statePrefix + state
}

// Store is a TTL'd key-value store for JSON-serializable session blobs.
// Implementations must round-trip values structurally: what Set serialized,
// Get deserializes field for field.
type Store interface {
	// Get reads the value at key into dest. It returns false when the key
	// was never set, was deleted, or has expired.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores value at key. A zero ttl means the key persists until
	// explicitly deleted; callers must pass explicit TTLs for anything
	// session-like.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Extend resets the key's remaining TTL to exactly ttl without altering
	// its value. Extending an absent key is a silent miss, not a fault.
	Extend(ctx context.Context, key string, ttl time.Duration) error
}

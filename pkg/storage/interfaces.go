// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the relational storage interfaces for wayfinder:
// the user directory holding long-lived OAuth credentials, and the expiring
// place cache for Google Maps lookups.
package storage

import (
	"context"
	"time"
)

// User is an identity record created on first successful OAuth callback.
// GoogleID is globally unique and immutable once created; profile fields
// are overwritten on every subsequent callback.
type User struct {
	// ID is the surrogate identifier assigned by the store.
	ID string

	// GoogleID is the provider subject identifier (the "sub" claim).
	GoogleID string

	// Email is unique across users.
	Email string

	// Name is the display name reported by the provider.
	Name string

	// PictureURL is the profile picture URL, if any.
	PictureURL string

	// RefreshToken is the long-lived credential used to mint new access
	// tokens. Empty when the provider never issued one.
	RefreshToken string

	// TokenExpiresAt records when the access token issued alongside the
	// refresh credential expires. Nil when no credential is held.
	TokenExpiresAt *time.Time

	// Preferences is a free-form preference map.
	Preferences map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserProfile carries the provider profile fields applied on every callback.
type UserProfile struct {
	GoogleID   string
	Email      string
	Name       string
	PictureURL string
}

// Credential carries refresh-credential fields. An empty RefreshToken means
// the provider omitted it on this grant; a stored credential is never
// cleared by an empty value.
type Credential struct {
	RefreshToken string
	ExpiresAt    time.Time
}

// UserStore is the user directory: lookup-or-create keyed by the provider
// subject identifier.
type UserStore interface {
	// FindOrCreate looks up a user by profile.GoogleID. If found, profile
	// fields are overwritten unconditionally and credential fields only
	// when non-empty. If not found, a new user is inserted. A concurrent
	// insert race on the same GoogleID resolves to the winning row.
	FindOrCreate(ctx context.Context, profile UserProfile, cred Credential) (*User, error)

	// FindByID retrieves a user by surrogate ID. Returns ErrNotFound when
	// the user does not exist.
	FindByID(ctx context.Context, id string) (*User, error)

	// UpdateCredential records a refreshed credential. An empty
	// cred.RefreshToken keeps the stored refresh token and updates only
	// the expiry bookkeeping.
	UpdateCredential(ctx context.Context, id string, cred Credential) error

	// Close releases any resources held by the store.
	Close() error
}

// Place is a cached geocoding result.
type Place struct {
	PlaceID   string
	Name      string
	Address   string
	Lat       float64
	Lng       float64
	Types     []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PlaceCacheTTL is how long a cached place remains servable.
const PlaceCacheTTL = 30 * 24 * time.Hour

// PlaceStore caches provider place lookups. There is no eviction policy
// beyond expiry; expired rows simply stop being returned.
type PlaceStore interface {
	// Get returns the cached place, or ErrNotFound when absent or expired.
	Get(ctx context.Context, placeID string) (*Place, error)

	// Put stores or refreshes a place with a full PlaceCacheTTL expiry.
	Put(ctx context.Context, place *Place) error
}

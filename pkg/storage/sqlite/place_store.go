// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/wayfinder/pkg/storage"
)

// PlaceStore implements storage.PlaceStore using SQLite.
type PlaceStore struct {
	db *sql.DB
}

var _ storage.PlaceStore = (*PlaceStore)(nil)

// NewPlaceStore creates a new SQLite-backed PlaceStore.
func NewPlaceStore(db *DB) *PlaceStore {
	return &PlaceStore{db: db.DB()}
}

// Get returns the cached place, or storage.ErrNotFound when the place is
// absent or its expiry has passed. Expired rows are left in place; Put
// refreshes them on the next provider lookup.
func (s *PlaceStore) Get(ctx context.Context, placeID string) (*storage.Place, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT place_id, name, address, lat, lng, types, created_at, expires_at
		FROM place_cache
		WHERE place_id = ? AND expires_at > ?`,
		placeID,
		time.Now().UTC().Format(time.RFC3339Nano),
	)

	var (
		place     storage.Place
		types     string
		createdAt string
		expiresAt string
	)
	err := row.Scan(
		&place.PlaceID,
		&place.Name,
		&place.Address,
		&place.Lat,
		&place.Lng,
		&types,
		&createdAt,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning place row: %w", err)
	}

	if err := json.Unmarshal([]byte(types), &place.Types); err != nil {
		return nil, fmt.Errorf("decoding place types: %w", err)
	}
	if place.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if place.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}

	return &place, nil
}

// Put upserts a place with a fresh PlaceCacheTTL expiry.
func (s *PlaceStore) Put(ctx context.Context, place *storage.Place) error {
	if place.PlaceID == "" {
		return errors.New("place id is required")
	}

	typesJSON, err := json.Marshal(place.Types)
	if err != nil {
		return fmt.Errorf("encoding place types: %w", err)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(storage.PlaceCacheTTL)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO place_cache (place_id, name, address, lat, lng, types, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(place_id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			lat = excluded.lat,
			lng = excluded.lng,
			types = excluded.types,
			expires_at = excluded.expires_at`,
		place.PlaceID,
		place.Name,
		place.Address,
		place.Lat,
		place.Lng,
		string(typesJSON),
		now.Format(time.RFC3339Nano),
		expiresAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting place: %w", err)
	}
	return nil
}

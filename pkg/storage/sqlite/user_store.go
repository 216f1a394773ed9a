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

	"github.com/google/uuid"
	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/stacklok/wayfinder/pkg/storage"
)

// UserStore implements storage.UserStore using SQLite.
type UserStore struct {
	wrapper *DB
	db      *sql.DB
}

var _ storage.UserStore = (*UserStore)(nil)

// NewUserStore creates a new SQLite-backed UserStore.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{wrapper: db, db: db.DB()}
}

// Close closes the underlying database connection.
func (s *UserStore) Close() error {
	return s.wrapper.Close()
}

// userColumns is the SELECT column list shared by lookup queries.
const userColumns = `id, google_id, email, name, picture_url, refresh_token,
		token_expires_at, preferences, created_at, updated_at`

// FindOrCreate upserts a user keyed by the Google subject identifier.
// Profile fields are always overwritten; credential fields only when the
// provider actually supplied them, so a repeat grant without a refresh
// token never clears the stored credential.
func (s *UserStore) FindOrCreate(
	ctx context.Context, profile storage.UserProfile, cred storage.Credential,
) (*storage.User, error) {
	if profile.GoogleID == "" {
		return nil, errors.New("google id is required")
	}

	user, err := s.updateExisting(ctx, profile, cred)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	user, err = s.insert(ctx, profile, cred)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Lost an insert race on google_id: another request persisted the
		// row between our lookup and insert. Apply the update path to the
		// winner instead of surfacing a conflict.
		return s.updateExisting(ctx, profile, cred)
	}
	return nil, err
}

func (s *UserStore) updateExisting(
	ctx context.Context, profile storage.UserProfile, cred storage.Credential,
) (*storage.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	row := tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = ?`, profile.GoogleID)
	user, err := scanUser(row)
	if err != nil {
		return nil, err
	}

	user.Email = profile.Email
	user.Name = profile.Name
	user.PictureURL = profile.PictureURL
	if cred.RefreshToken != "" {
		user.RefreshToken = cred.RefreshToken
	}
	if !cred.ExpiresAt.IsZero() {
		expiresAt := cred.ExpiresAt
		user.TokenExpiresAt = &expiresAt
	}
	user.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET email = ?, name = ?, picture_url = ?,
			refresh_token = ?, token_expires_at = ?, updated_at = ?
		WHERE id = ?`,
		user.Email,
		user.Name,
		user.PictureURL,
		user.RefreshToken,
		encodeNullableTime(user.TokenExpiresAt),
		user.UpdatedAt.Format(time.RFC3339Nano),
		user.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return user, nil
}

func (s *UserStore) insert(
	ctx context.Context, profile storage.UserProfile, cred storage.Credential,
) (*storage.User, error) {
	now := time.Now().UTC()
	user := &storage.User{
		ID:          uuid.NewString(),
		GoogleID:    profile.GoogleID,
		Email:       profile.Email,
		Name:        profile.Name,
		PictureURL:  profile.PictureURL,
		Preferences: map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if cred.RefreshToken != "" {
		user.RefreshToken = cred.RefreshToken
	}
	if !cred.ExpiresAt.IsZero() {
		expiresAt := cred.ExpiresAt
		user.TokenExpiresAt = &expiresAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (
			id, google_id, email, name, picture_url, refresh_token,
			token_expires_at, preferences, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.GoogleID,
		user.Email,
		user.Name,
		user.PictureURL,
		user.RefreshToken,
		encodeNullableTime(user.TokenExpiresAt),
		"{}",
		user.CreatedAt.Format(time.RFC3339Nano),
		user.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrAlreadyExists
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	return user, nil
}

// FindByID retrieves a user by surrogate ID.
func (s *UserStore) FindByID(ctx context.Context, id string) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// UpdateCredential records a refreshed credential. An empty RefreshToken
// keeps the stored refresh token and updates only the expiry bookkeeping.
func (s *UserStore) UpdateCredential(ctx context.Context, id string, cred storage.Credential) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET
			refresh_token = CASE WHEN ? = '' THEN refresh_token ELSE ? END,
			token_expires_at = ?,
			updated_at = ?
		WHERE id = ?`,
		cred.RefreshToken,
		cred.RefreshToken,
		cred.ExpiresAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*storage.User, error) {
	var (
		user           storage.User
		tokenExpiresAt sql.NullString
		preferences    string
		createdAt      string
		updatedAt      string
	)

	err := row.Scan(
		&user.ID,
		&user.GoogleID,
		&user.Email,
		&user.Name,
		&user.PictureURL,
		&user.RefreshToken,
		&tokenExpiresAt,
		&preferences,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user row: %w", err)
	}

	if tokenExpiresAt.Valid {
		t, parseErr := time.Parse(time.RFC3339Nano, tokenExpiresAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing token expiry: %w", parseErr)
		}
		user.TokenExpiresAt = &t
	}

	if err := json.Unmarshal([]byte(preferences), &user.Preferences); err != nil {
		return nil, fmt.Errorf("decoding preferences: %w", err)
	}

	if user.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if user.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &user, nil
}

func encodeNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// isUniqueViolation checks for a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sqlite provides the SQLite-backed implementations of the
// wayfinder storage interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Register the pure-Go sqlite driver.
	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB handle shared by the stores in this package.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies all
// pending migrations. Use ":memory:" for an ephemeral database in tests.
func Open(ctx context.Context, path string) (*DB, error) {
	connString := path
	if path == ":memory:" {
		// A plain :memory: database vanishes whenever the pool opens a
		// second connection; shared cache keeps it alive per handle.
		connString = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent request handling.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{db: db}, nil
}

// DB returns the underlying sql.DB handle.
func (d *DB) DB() *sql.DB {
	return d.db
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }

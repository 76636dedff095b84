// Package sqlite implements the repository interfaces on SQLite via the pure
// Go driver (modernc.org/sqlite — no CGo, cross-compiles everywhere).
//
// The two uniqueness invariants the rest of the system leans on live here as
// UNIQUE constraints: users.email, identity_links(provider, provider_user_id)
// and identity_links(user_id, provider). Concurrent writers racing on any of
// them get a constraint violation, surfaced as apperror.ErrConflict, instead
// of silent duplicates.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DB wraps a sql.DB connection pool and implements
// repository.UserRepository and repository.LinkRepository.
type DB struct {
	conn *sql.DB
}

// New opens the database (":memory:" works for tests), verifies the
// connection, and runs migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// SQLite has a single writer regardless of pool size. Capping the pool
	// at one connection turns would-be SQLITE_BUSY errors into queueing,
	// and makes ":memory:" databases safe (each pooled connection would
	// otherwise get its own empty in-memory database).
	conn.SetMaxOpenConns(1)

	// WAL allows concurrent reads while a write is in flight — without it
	// every OAuth callback would serialize against profile reads.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// identity_links.user_id references users(id); SQLite won't enforce it
	// unless foreign keys are switched on.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool, flushing the WAL.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id               TEXT PRIMARY KEY,
			email            TEXT NOT NULL UNIQUE,
			full_name        TEXT NOT NULL DEFAULT '',
			password_hash    TEXT NOT NULL DEFAULT '',
			student_id       TEXT NOT NULL DEFAULT '',
			role             TEXT NOT NULL DEFAULT 'USER',
			primary_provider TEXT NOT NULL DEFAULT 'EMAIL',
			avatar_url       TEXT NOT NULL DEFAULT '',
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login       DATETIME
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS identity_links (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			provider          TEXT NOT NULL,
			provider_user_id  TEXT NOT NULL,
			provider_username TEXT NOT NULL DEFAULT '',
			provider_email    TEXT NOT NULL DEFAULT '',
			access_token      TEXT NOT NULL DEFAULT '',
			refresh_token     TEXT NOT NULL DEFAULT '',
			used_for_login    INTEGER NOT NULL DEFAULT 1,
			created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_refreshed_at DATETIME,
			UNIQUE (provider, provider_user_id),
			UNIQUE (user_id, provider)
		);
		CREATE INDEX IF NOT EXISTS idx_identity_links_user_id ON identity_links(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating identity_links table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// modernc.org/sqlite exposes constraint failures only through the error
// text, so this is a string match by necessity.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

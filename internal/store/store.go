// Package store is the Persistence Gateway (spec.md §2 Component B): the
// durable source of truth for users, API keys, upstream credentials, usage
// history, and system settings. Everything in internal/coordination is
// derived state that could be rebuilt from here; this package is what
// survives a coordination-store flush.
//
// Grounded on the teacher's use of modernc.org/sqlite in
// go-backend/internal/auth/database.go (opened read-only there, since the
// teacher only ever reads a foreign desktop-app database; here the proxy
// owns its schema outright, so the gateway opens read-write and runs its
// own migrations at boot).
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps a *sql.DB with the typed accessors the rest of the proxy
// needs. Constructed once at boot and passed by the caller -- never a
// package-level singleton, per the Design Notes (spec.md §9).
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and runs
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY under concurrent access
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// OpenDB wraps an already-open *sql.DB, used by tests to inject a
// driver-backed in-memory database.
func OpenDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user',
	active        INTEGER NOT NULL DEFAULT 1,
	today_used    INTEGER NOT NULL DEFAULT 0,
	daily_limit   INTEGER NOT NULL DEFAULT 0,
	level         TEXT NOT NULL DEFAULT '',
	use_token_quota       INTEGER NOT NULL DEFAULT 0, -- spec.md §4.2 Antigravity quota-mode selection
	claude_limit          INTEGER,
	gemini3_limit         INTEGER,
	claude_token_quota    INTEGER,
	gemini3_token_quota   INTEGER,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id),
	key_hash    TEXT NOT NULL UNIQUE,
	key_prefix  TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL DEFAULT 'normal', -- normal|admin, spec.md §3.2
	active      INTEGER NOT NULL DEFAULT 1,
	created_at  TEXT NOT NULL,
	last_used_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id);

CREATE TABLE IF NOT EXISTS google_credentials (
	id               TEXT PRIMARY KEY,
	owner_user_id    TEXT NOT NULL REFERENCES users(id),
	family           TEXT NOT NULL, -- 'cloud_code' | 'antigravity'
	email            TEXT NOT NULL,
	refresh_token    TEXT NOT NULL,
	project_id       TEXT NOT NULL DEFAULT '',
	managed_project  TEXT NOT NULL DEFAULT '',
	v3_capable       INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'validating', -- validating|active|cooling|dead
	strike_count     INTEGER NOT NULL DEFAULT 0,
	cooling_until    TEXT,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_google_credentials_owner ON google_credentials(owner_user_id);
CREATE INDEX IF NOT EXISTS idx_google_credentials_status ON google_credentials(status);

CREATE TABLE IF NOT EXISTS usage_logs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      TEXT NOT NULL,
	credential_id TEXT NOT NULL DEFAULT '',
	model        TEXT NOT NULL,
	dialect      TEXT NOT NULL,
	status_code  INTEGER NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_logs_user_time ON usage_logs(user_id, created_at);

CREATE TABLE IF NOT EXISTS system_settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

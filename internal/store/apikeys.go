package store

import (
	"context"
	"database/sql"
	"time"
)

// APIKeyType distinguishes a plain caller key from one that inherits the
// admin bypass regardless of its owning user's own role (spec.md §3.2: "An
// ADMIN key inherits the bypass").
type APIKeyType string

const (
	APIKeyTypeNormal APIKeyType = "normal"
	APIKeyTypeAdmin  APIKeyType = "admin"
)

// APIKey is a caller-presented credential mapped to a user (spec.md §4.4
// client auth). Only an unsalted SHA-256 hash of the key is persisted; the
// prefix (the key's first characters) is kept unhashed so callers can be
// shown it without re-deriving it.
type APIKey struct {
	ID         string
	UserID     string
	KeyHash    string
	KeyPrefix  string
	Name       string
	Type       APIKeyType
	Active     bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

func (s *Store) CreateAPIKey(ctx context.Context, k APIKey) error {
	if k.Type == "" {
		k.Type = APIKeyTypeNormal
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, user_id, key_hash, key_prefix, name, type, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.UserID, k.KeyHash, k.KeyPrefix, k.Name, string(k.Type), boolToInt(k.Active), rfc3339(k.CreatedAt))
	return err
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, key_hash, key_prefix, name, type, active, created_at, last_used_at
		 FROM api_keys WHERE key_hash = ?`, hash)
	return scanAPIKey(row)
}

func (s *Store) ListAPIKeysForUser(ctx context.Context, userID string) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, key_hash, key_prefix, name, type, active, created_at, last_used_at
		 FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []APIKey
	for rows.Next() {
		k, err := scanAPIKeyRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func (s *Store) TouchAPIKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, rfc3339(time.Now()), id)
	return err
}

func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET active = 0 WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAPIKey(row *sql.Row) (*APIKey, error) {
	k, err := scanAPIKeyRows(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return k, err
}

func scanAPIKeyRows(row scanner) (*APIKey, error) {
	var k APIKey
	var typ string
	var active int
	var created string
	var lastUsed sql.NullString
	if err := row.Scan(&k.ID, &k.UserID, &k.KeyHash, &k.KeyPrefix, &k.Name, &typ, &active, &created, &lastUsed); err != nil {
		return nil, err
	}
	k.Type = APIKeyType(typ)
	k.Active = active != 0
	k.CreatedAt, _ = time.Parse(time.RFC3339, created)
	if lastUsed.Valid {
		t, _ := time.Parse(time.RFC3339, lastUsed.String)
		k.LastUsedAt = &t
	}
	return &k, nil
}

package store

import (
	"context"
	"database/sql"
	"time"
)

// GetSetting and SetSetting read and write the system_settings table, the
// store for the hot config values spec.md §3.6 calls out
// (force_discord_bind, enable_gemini3_open_access, cli_shared_mode).
// Nothing in the proxy calls them: the boot-time env config does not seed
// the table, and config.Config's flags are not read from it.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, rfc3339(time.Now()))
	return err
}

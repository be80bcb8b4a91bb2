package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// User is an account holder on the multi-tenant proxy (spec.md §3.1).
// TodayUsed/DailyLimit/Level and the Antigravity override limits are the
// tier-relevant fields §3.1 calls for; DailyLimit is only the *default*
// ceiling -- quota.DailyQuota's dynamic formula is what actually gates a
// request (spec.md §4.2).
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	Active       bool
	TodayUsed    int
	DailyLimit   int
	Level        string

	// Antigravity quota-mode selection (spec.md §4.2 "Quota mode selection
	// (Antigravity)"). UseTokenQuota picks token-count enforcement
	// (ClaudeTokenQuota/Gemini3TokenQuota) over request-count enforcement
	// (ClaudeLimit/Gemini3Limit) when set. A nil limit means "use the
	// system default for this tier" rather than "unlimited".
	UseTokenQuota     bool
	ClaudeLimit       *int
	Gemini3Limit      *int
	ClaudeTokenQuota  *int
	Gemini3TokenQuota *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

const userColumns = `id, username, password_hash, role, active, today_used, daily_limit, level,
	use_token_quota, claude_limit, gemini3_limit, claude_token_quota, gemini3_token_quota,
	created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, active, today_used, daily_limit, level,
			use_token_quota, claude_limit, gemini3_limit, claude_token_quota, gemini3_token_quota,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Role, boolToInt(u.Active), u.TodayUsed, u.DailyLimit, u.Level,
		boolToInt(u.UseTokenQuota), u.ClaudeLimit, u.Gemini3Limit, u.ClaudeTokenQuota, u.Gemini3TokenQuota,
		rfc3339(u.CreatedAt), rfc3339(u.UpdatedAt))
	return err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), rfc3339(time.Now()), id)
	return err
}

// IncrTodayUsed bumps a user's today_used counter by delta, used alongside
// the coordination-store USER_STATS bucket so the Persistence Gateway's
// own copy of the running total survives a coordination-store flush
// (spec.md §4.2 "increment the user's today_used").
func (s *Store) IncrTodayUsed(ctx context.Context, id string, delta int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET today_used = today_used + ?, updated_at = ? WHERE id = ?`,
		delta, rfc3339(time.Now()), id)
	return err
}

// ResetDailyUsage zeroes every user's today_used, run once per UTC+8 day
// by the Scheduled Workers' daily-reset job (spec.md §4.6).
func (s *Store) ResetDailyUsage(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET today_used = 0, updated_at = ? WHERE today_used != 0`, rfc3339(time.Now()))
	return err
}

// SetAntigravityQuotaMode persists a user's Antigravity quota-mode
// overrides (spec.md §4.2), admin-configurable per user.
func (s *Store) SetAntigravityQuotaMode(ctx context.Context, id string, useTokenQuota bool, claudeLimit, gemini3Limit, claudeTokenQuota, gemini3TokenQuota *int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET use_token_quota = ?, claude_limit = ?, gemini3_limit = ?, claude_token_quota = ?, gemini3_token_quota = ?, updated_at = ?
		 WHERE id = ?`,
		boolToInt(useTokenQuota), claudeLimit, gemini3Limit, claudeTokenQuota, gemini3TokenQuota, rfc3339(time.Now()), id)
	return err
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var active, useTokenQuota int
	var created, updated string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &active, &u.TodayUsed, &u.DailyLimit, &u.Level,
		&useTokenQuota, &u.ClaudeLimit, &u.Gemini3Limit, &u.ClaudeTokenQuota, &u.Gemini3TokenQuota,
		&created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Active = active != 0
	u.UseTokenQuota = useTokenQuota != 0
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

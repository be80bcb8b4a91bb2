package store

import (
	"context"
	"time"
)

// UsageLogEntry is one durable record of a completed request, the
// long-term record the coordination store's daily counters are derived
// from (spec.md §3.6: USER_STATS/GLOBAL_STATS are rebuildable caches, this
// table is the source of truth).
type UsageLogEntry struct {
	UserID       string
	CredentialID string
	Model        string
	Dialect      string
	StatusCode   int
	InputTokens  int
	OutputTokens int
	CreatedAt    time.Time
}

func (s *Store) InsertUsageLog(ctx context.Context, e UsageLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_logs
		 (user_id, credential_id, model, dialect, status_code, input_tokens, output_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.CredentialID, e.Model, e.Dialect, e.StatusCode, e.InputTokens, e.OutputTokens, rfc3339(e.CreatedAt))
	return err
}

// UsageSince summarizes request counts and token totals for a user since a
// cutoff, used by the admin read-only visibility endpoints (a supplemented
// feature, SPEC_FULL.md) to show usage the in-memory counters alone can't
// answer after a restart.
type UsageSummary struct {
	RequestCount int64
	InputTokens  int64
	OutputTokens int64
}

func (s *Store) UsageSince(ctx context.Context, userID string, since time.Time) (*UsageSummary, error) {
	var sum UsageSummary
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(input_tokens),0), COALESCE(SUM(output_tokens),0)
		 FROM usage_logs WHERE user_id = ? AND created_at >= ?`,
		userID, rfc3339(since))
	if err := row.Scan(&sum.RequestCount, &sum.InputTokens, &sum.OutputTokens); err != nil {
		return nil, err
	}
	return &sum, nil
}

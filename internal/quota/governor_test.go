package quota

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/relaymesh/aiproxy/internal/apierr"
	"github.com/relaymesh/aiproxy/internal/coordination"
)

func newTestGovernor(t *testing.T) *Governor {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	coord := coordination.NewFromRedis(rdb)
	return New(coord,
		TierLimits{BaseDailyQuota: 2, RPM: 1},
		TierLimits{BaseDailyQuota: 100, RPM: 60},
		TierLimits{BaseDailyQuota: 200, RPM: 120},
		50,
		AntigravityLimits{ClaudeLimit: 1500, Gemini3Limit: 1500, ClaudeTokenQuota: 75000, Gemini3TokenQuota: 75000},
	)
}

func TestGovernorCheckAllowsWithinLimits(t *testing.T) {
	g := newTestGovernor(t)
	ctx := context.Background()

	if err := g.Check(ctx, "user-1", Holdings{}, false); err != nil {
		t.Fatalf("first request should be allowed, got %v", err)
	}
}

func TestGovernorCheckBypassForAdmin(t *testing.T) {
	g := newTestGovernor(t)
	ctx := context.Background()

	if err := g.Check(ctx, "user-1", Holdings{}, true); err != nil {
		t.Fatalf("first admin request should be allowed, got %v", err)
	}
	if err := g.Check(ctx, "user-1", Holdings{}, true); err != nil {
		t.Fatalf("bypassed admin request should never be rate limited, got %v", err)
	}
}

func TestGovernorCheckRejectsOverRPM(t *testing.T) {
	g := newTestGovernor(t)
	ctx := context.Background()

	if err := g.Check(ctx, "user-1", Holdings{}, false); err != nil {
		t.Fatalf("first request should be allowed, got %v", err)
	}
	err := g.Check(ctx, "user-1", Holdings{}, false)
	if err == nil {
		t.Fatal("second request within the same minute should be rate limited")
	}
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		t.Fatalf("expected *apierr.Error, got %T", err)
	}
	if apiErr.Kind != apierr.KindRateLimit || !apiErr.Retryable {
		t.Errorf("expected retryable rate_limit_error, got kind=%s retryable=%v", apiErr.Kind, apiErr.Retryable)
	}
}

func TestGovernorCheckRejectsOverDailyQuota(t *testing.T) {
	g := newTestGovernor(t)
	ctx := context.Background()
	userID := "user-2"

	// Newbie tier's base quota is 2 with no active credentials. Record two
	// completed requests, then the third Check should be rejected.
	for i := 0; i < 2; i++ {
		if err := g.Record(ctx, userID, "gpt-4o"); err != nil {
			t.Fatalf("Record() #%d: %v", i, err)
		}
	}

	err := g.Check(ctx, userID, Holdings{}, false)
	if err == nil {
		t.Fatal("request past the daily quota should be rejected")
	}
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		t.Fatalf("expected *apierr.Error, got %T", err)
	}
	if apiErr.Kind != apierr.KindQuotaExceeded || apiErr.Retryable {
		t.Errorf("expected non-retryable quota_exceeded, got kind=%s retryable=%v", apiErr.Kind, apiErr.Retryable)
	}
}

func TestGovernorRecordIncrementsBothCounters(t *testing.T) {
	g := newTestGovernor(t)
	ctx := context.Background()
	userID := "user-3"

	if err := g.Record(ctx, userID, "claude-3"); err != nil {
		t.Fatalf("Record(): %v", err)
	}

	used, err := g.todayUsed(ctx, userID)
	if err != nil {
		t.Fatalf("todayUsed(): %v", err)
	}
	if used != 1 {
		t.Errorf("todayUsed() = %d, want 1", used)
	}

	fields, err := g.coord.HGetAll(ctx, coordination.GlobalStatsKey(coordination.TodayUTC8()))
	if err != nil {
		t.Fatalf("HGetAll(global): %v", err)
	}
	if fields["total"] != "1" {
		t.Errorf("global total = %q, want \"1\"", fields["total"])
	}
	if fields["model:claude-3"] != "1" {
		t.Errorf("global model counter = %q, want \"1\"", fields["model:claude-3"])
	}
}

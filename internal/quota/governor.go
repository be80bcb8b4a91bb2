package quota

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/relaymesh/aiproxy/internal/apierr"
	"github.com/relaymesh/aiproxy/internal/coordination"
	"github.com/relaymesh/aiproxy/internal/store"
)

// AntigravityLimits mirrors config.AntigravityDefaults to avoid a
// config->quota import cycle, the same pattern TierLimits already uses for
// the tier defaults.
type AntigravityLimits struct {
	ClaudeLimit       int
	Gemini3Limit      int
	ClaudeTokenQuota  int
	Gemini3TokenQuota int
}

// Governor evaluates and accounts for a user's request against their
// derived tier, daily quota, and per-minute rate limit. One Governor per
// process, constructed at boot, per the Design Notes (spec.md §9).
type Governor struct {
	coord *coordination.Client

	newbie, contributor, v3contributor TierLimits
	incrementPerCredential             int
	antigravity                        AntigravityLimits
}

func New(coord *coordination.Client, newbie, contributor, v3contributor TierLimits, incrementPerCredential int, antigravity AntigravityLimits) *Governor {
	return &Governor{
		coord:                  coord,
		newbie:                 newbie,
		contributor:            contributor,
		v3contributor:          v3contributor,
		incrementPerCredential: incrementPerCredential,
		antigravity:            antigravity,
	}
}

func (g *Governor) limitsFor(tier Tier) TierLimits {
	switch tier {
	case TierV3Contributor:
		return g.v3contributor
	case TierContributor:
		return g.contributor
	default:
		return g.newbie
	}
}

// Check enforces, in order, the per-minute rate limit and the daily quota
// (spec.md §4.2), returning a retryable rate_limit_error or a
// non-retryable quota_exceeded error on rejection. It does not record
// usage -- callers call Record after a request actually completes, so a
// request that is itself rejected downstream (e.g. no credential
// available) does not consume quota.
//
// bypass is true for an admin-role user or a caller holding an ADMIN-type
// API key (spec.md §3.1/§3.2): such a request skips both checks entirely,
// the same unconditional exemption checkAccess already applies to V3/
// CLI-shared gating.
func (g *Governor) Check(ctx context.Context, userID string, holdings Holdings, bypass bool) error {
	if bypass {
		return nil
	}
	tier := DeriveTier(holdings)
	limits := g.limitsFor(tier)

	rpmKey := fmt.Sprintf("RATE:%s:%s", userID, currentMinuteBucket())
	count, err := g.coord.Incr(ctx, rpmKey, 60*time.Second)
	if err != nil {
		return apierr.Server("quota: rate check: %v", err)
	}
	if int(count) > limits.RPM {
		return apierr.RateLimited("rate limit exceeded: %d requests per minute allowed", limits.RPM)
	}

	quota := DailyQuota(limits, holdings.ActiveCredentials, g.incrementPerCredential)
	used, err := g.todayUsed(ctx, userID)
	if err != nil {
		return apierr.Server("quota: usage check: %v", err)
	}
	if used >= quota {
		return apierr.QuotaExceeded("daily quota of %d requests exhausted", quota)
	}
	return nil
}

// AntigravityModelKind reports which of Antigravity's two model families
// model belongs to ("claude" or "gemini3"), or "" if model isn't an
// Antigravity-dispatched model at all. Used to pick which pair of
// claude_limit/gemini3_limit (or _token_quota) fields govern a request.
func AntigravityModelKind(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude"):
		return "claude"
	case strings.Contains(m, "gemini-3"), strings.Contains(m, "gemini3"):
		return "gemini3"
	default:
		return ""
	}
}

// CheckAntigravity enforces spec.md §4.2's "Quota mode selection
// (Antigravity)": a per-user use_token_quota flag chooses between
// request-count and token-count enforcement against claude_limit/
// gemini3_limit or their _token_quota variants, each falling back to the
// deployment-wide default when the user has no override. It is called in
// addition to Check, after Check's tier-based daily quota/rate limit have
// already passed, and only for models AntigravityModelKind recognizes.
func (g *Governor) CheckAntigravity(ctx context.Context, user *store.User, model string, bypass bool) error {
	if bypass {
		return nil
	}
	kind := AntigravityModelKind(model)
	if kind == "" {
		return nil
	}

	day := coordination.TodayUTC8()
	dayStr := day.Format("2006-01-02")

	if user.UseTokenQuota {
		limit := g.antigravityTokenQuota(user, kind)
		used, err := g.coord.GetString(ctx, coordination.AntigravityUsageTokensKey(user.ID, dayStr, model))
		if err != nil {
			return apierr.Server("quota: antigravity token usage check: %v", err)
		}
		var n int
		_, _ = fmt.Sscanf(used, "%d", &n)
		if n >= limit {
			return apierr.QuotaExceeded("antigravity %s token quota of %d exhausted", kind, limit)
		}
		return nil
	}

	limit := g.antigravityRequestLimit(user, kind)
	used, err := g.coord.GetString(ctx, coordination.AntigravityUsageRequestsKey(user.ID, dayStr, model))
	if err != nil {
		return apierr.Server("quota: antigravity request usage check: %v", err)
	}
	var n int
	_, _ = fmt.Sscanf(used, "%d", &n)
	if n >= limit {
		return apierr.QuotaExceeded("antigravity %s request quota of %d exhausted", kind, limit)
	}
	return nil
}

func (g *Governor) antigravityRequestLimit(user *store.User, kind string) int {
	if kind == "claude" {
		if user.ClaudeLimit != nil {
			return *user.ClaudeLimit
		}
		return g.antigravity.ClaudeLimit
	}
	if user.Gemini3Limit != nil {
		return *user.Gemini3Limit
	}
	return g.antigravity.Gemini3Limit
}

func (g *Governor) antigravityTokenQuota(user *store.User, kind string) int {
	if kind == "claude" {
		if user.ClaudeTokenQuota != nil {
			return *user.ClaudeTokenQuota
		}
		return g.antigravity.ClaudeTokenQuota
	}
	if user.Gemini3TokenQuota != nil {
		return *user.Gemini3TokenQuota
	}
	return g.antigravity.Gemini3TokenQuota
}

// RecordAntigravity advances both the request-count and token-count
// Antigravity usage counters for a completed call (spec.md §4.2 "For
// Antigravity calls, increment both requests and tokens keys (tokens
// counter is advanced by the response's completion token count)").
func (g *Governor) RecordAntigravity(ctx context.Context, userID, model string, completionTokens int) error {
	return g.coord.RecordAntigravityUsage(ctx, userID, model, completionTokens, 25*time.Hour)
}

// Record accounts a completed request against the user's and the global
// daily counters (spec.md §3.6 USER_STATS/GLOBAL_STATS).
func (g *Governor) Record(ctx context.Context, userID, model string) error {
	day := coordination.TodayUTC8()
	return g.coord.RecordUsage(ctx,
		coordination.UserStatsKey(userID, day),
		coordination.GlobalStatsKey(day),
		model,
		25*time.Hour, // outlives the UTC+8 day boundary with margin
	)
}

func (g *Governor) todayUsed(ctx context.Context, userID string) (int, error) {
	key := coordination.UserStatsKey(userID, coordination.TodayUTC8())
	fields, err := g.coord.HGetAll(ctx, key)
	if err != nil {
		return 0, err
	}
	total, ok := fields["total"]
	if !ok {
		return 0, nil
	}
	var n int
	_, err = fmt.Sscanf(total, "%d", &n)
	return n, err
}

func currentMinuteBucket() string {
	return coordination.TodayUTC8().Format("2006-01-02T15:04")
}

package coordination

import (
	"context"
	"fmt"
	"time"
)

// RecordUsage increments the per-user daily counter, the per-user per-model
// counter, and the global daily/per-model counters in a single round trip.
// Grounded on the teacher's pkg/redis/stats.go RecordRequestBatch, which
// pipelines HIncrBy across total/family/model fields before a single
// Expire call; here the fields are USER_STATS/GLOBAL_STATS per spec.md §3.6
// rather than per-hour model-family buckets.
func (c *Client) RecordUsage(ctx context.Context, userKey, globalKey, model string, ttl time.Duration) error {
	pipe := c.rdb.Pipeline()
	pipe.HIncrBy(ctx, userKey, "total", 1)
	pipe.HIncrBy(ctx, userKey, "model:"+model, 1)
	pipe.Expire(ctx, userKey, ttl)
	pipe.HIncrBy(ctx, globalKey, "total", 1)
	pipe.HIncrBy(ctx, globalKey, "model:"+model, 1)
	pipe.Expire(ctx, globalKey, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// UserStatsKey and GlobalStatsKey build the daily counter keys from
// spec.md §3.6: USER_STATS:<user>:<YYYY-MM-DD> and GLOBAL_STATS:<YYYY-MM-DD>,
// both on the UTC+8 day boundary the Quota Governor uses for resets.
func UserStatsKey(userID string, day time.Time) string {
	return fmt.Sprintf("USER_STATS:%s:%s", userID, dayString(day))
}

func GlobalStatsKey(day time.Time) string {
	return fmt.Sprintf("GLOBAL_STATS:%s", dayString(day))
}

func dayString(t time.Time) string {
	return t.In(utc8).Format("2006-01-02")
}

var utc8 = time.FixedZone("UTC+8", 8*60*60)

// TodayUTC8 returns the current instant in the UTC+8 zone the daily quota
// reset (spec.md §4.2) is anchored to.
func TodayUTC8() time.Time {
	return time.Now().In(utc8)
}

// AntigravityUsageRequestsKey and AntigravityUsageTokensKey build the
// per-model Antigravity usage counters from spec.md §3.6:
// `USAGE:requests|tokens:<date>:<user>:antigravity:<model>`. These are
// separate from USER_STATS/GLOBAL_STATS because spec.md §4.2's Antigravity
// quota mode enforces against them directly (request-count or
// token-count, selected by the user's use_token_quota flag) rather than
// against the generic daily total.
func AntigravityUsageRequestsKey(userID, day, model string) string {
	return fmt.Sprintf("USAGE:requests:%s:%s:antigravity:%s", day, userID, model)
}

func AntigravityUsageTokensKey(userID, day, model string) string {
	return fmt.Sprintf("USAGE:tokens:%s:%s:antigravity:%s", day, userID, model)
}

// RecordAntigravityUsage increments both the request-count and token-count
// Antigravity usage counters for userID/model on the current UTC+8 day
// (spec.md §4.2 "For Antigravity calls, increment both requests and
// tokens keys"). completionTokens advances the token counter; the request
// counter always advances by exactly 1.
func (c *Client) RecordAntigravityUsage(ctx context.Context, userID, model string, completionTokens int, ttl time.Duration) error {
	day := dayString(TodayUTC8())
	pipe := c.rdb.Pipeline()
	pipe.IncrBy(ctx, AntigravityUsageRequestsKey(userID, day, model), 1)
	pipe.Expire(ctx, AntigravityUsageRequestsKey(userID, day, model), ttl)
	pipe.IncrBy(ctx, AntigravityUsageTokensKey(userID, day, model), int64(completionTokens))
	pipe.Expire(ctx, AntigravityUsageTokensKey(userID, day, model), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

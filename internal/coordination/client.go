// Package coordination is the Coordination Store Client (spec.md §2
// Component A): a thin wrapper over the external cache/coordination store
// (Redis) providing counters, lists, sets, hashes, pipelines, locks, and
// pub/sub. It is the hot-state half of the Shared-resource policy in
// spec.md §5 -- the persistent store (internal/store) remains the source of
// truth; this package only ever holds derived state (pools, counters,
// locks, caches) that can be rebuilt from it.
//
// Grounded on the teacher's pkg/redis/client.go generic Client wrapper,
// generalized from a single-tenant account cache into the keyspace
// described by spec.md §3.6.
package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps go-redis with the generic operations the rest of the proxy
// needs. Constructed once at boot and passed by the caller -- never a
// package-level singleton, per the Design Notes (spec.md §9).
type Client struct {
	rdb *redis.Client
}

// Config is the Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New creates a Client, verifying connectivity with a short-lived ping.
func New(cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("coordination store connect: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// NewFromRedis wraps an already-constructed *redis.Client, used by tests to
// inject a miniredis-backed client.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) Raw() *redis.Client { return c.rdb }

// ---- generic KV ----

func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *Client) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *Client) GetString(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

// ---- counters ----

// Incr increments key by 1 and, when the result is 1 (i.e. the key was just
// created), applies ttl -- the exact semantics the per-minute rate limiter
// in spec.md §4.2 needs.
func (c *Client) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		_ = c.rdb.Expire(ctx, key, ttl).Err()
	}
	return n, nil
}

func (c *Client) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return c.rdb.IncrBy(ctx, key, delta).Result()
}

// ---- hashes ----

func (c *Client) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return c.rdb.HIncrBy(ctx, key, field, delta).Result()
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

// ---- sets ----

func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.SAdd(ctx, key, args...).Err()
}

func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.SRem(ctx, key, args...).Err()
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.rdb.SMembers(ctx, key).Result()
}

func (c *Client) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return c.rdb.SIsMember(ctx, key, member).Result()
}

// ---- lists (used for the credential pools) ----

func (c *Client) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return c.rdb.LPush(ctx, key, args...).Err()
}

func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	return c.rdb.LLen(ctx, key).Result()
}

func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.rdb.LRange(ctx, key, start, stop).Result()
}

func (c *Client) LRem(ctx context.Context, key string, count int64, value string) error {
	return c.rdb.LRem(ctx, key, count, value).Err()
}

// RPopLPush atomically moves the tail element to the head and returns it --
// the rotation primitive the Credential Pool Engine's acquisition algorithm
// (spec.md §4.1 step 3) relies on for the "tail-to-head" rotation so
// concurrent acquirers observe distinct candidates.
func (c *Client) RPopLPush(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.RPopLPush(ctx, key, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

// ---- pub/sub ----

func (c *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, channel, data).Err()
}

func (c *Client) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channel)
}

// Pipeline exposes a raw go-redis pipeline for batched operations (e.g. the
// usage-accounting fan-out in spec.md §4.2: today_used + per-model stats +
// global stats all in one round trip).
func (c *Client) Pipeline() redis.Pipeliner {
	return c.rdb.Pipeline()
}

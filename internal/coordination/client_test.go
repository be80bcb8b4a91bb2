package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromRedis(rdb)
}

func TestSetAndGetString(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.SetString(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	got, err := c.GetString(ctx, "k")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if got != "v" {
		t.Errorf("GetString() = %q, want %q", got, "v")
	}
}

func TestIncrExpires(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	n, err := c.Incr(ctx, "counter", time.Minute)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if n != 1 {
		t.Errorf("Incr() = %d, want 1", n)
	}
	n, err = c.Incr(ctx, "counter", time.Minute)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if n != 2 {
		t.Errorf("Incr() = %d, want 2", n)
	}
}

func TestQueueRotation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.LPush(ctx, "queue", "a", "b", "c"); err != nil {
		t.Fatalf("LPush: %v", err)
	}
	length, err := c.LLen(ctx, "queue")
	if err != nil {
		t.Fatalf("LLen: %v", err)
	}
	if length != 3 {
		t.Fatalf("LLen() = %d, want 3", length)
	}

	first, err := c.RPopLPush(ctx, "queue")
	if err != nil {
		t.Fatalf("RPopLPush: %v", err)
	}
	if first != "a" {
		t.Errorf("RPopLPush() = %q, want %q (tail-to-head rotation)", first, "a")
	}
	length, _ = c.LLen(ctx, "queue")
	if length != 3 {
		t.Errorf("rotation should not change queue length, got %d", length)
	}
}

func TestTryLockExcludesConcurrentHolder(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	lock, ok, err := c.TryLock(ctx, "lock:cred-1", time.Minute)
	if err != nil || !ok || lock == nil {
		t.Fatalf("first TryLock should succeed, got ok=%v err=%v", ok, err)
	}

	_, ok, err = c.TryLock(ctx, "lock:cred-1", time.Minute)
	if err != nil {
		t.Fatalf("second TryLock: %v", err)
	}
	if ok {
		t.Fatal("second TryLock on the same key should fail while the first lock is held")
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	_, ok, err = c.TryLock(ctx, "lock:cred-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock after Release should succeed, got ok=%v err=%v", ok, err)
	}
}

func TestLockReleaseIsANoOpForAnExpiredAndReacquiredLock(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	first, ok, err := c.TryLock(ctx, "lock:cred-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first TryLock: ok=%v err=%v", ok, err)
	}

	// Simulate expiry by deleting the key directly, then another holder
	// acquires it.
	if err := c.Delete(ctx, "lock:cred-2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	second, ok, err := c.TryLock(ctx, "lock:cred-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("second TryLock: ok=%v err=%v", ok, err)
	}

	// The first (stale) lock's Release must not remove the second holder's lock.
	if err := first.Release(ctx); err != nil {
		t.Fatalf("stale Release: %v", err)
	}
	held, err := c.Exists(ctx, "lock:cred-2")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !held {
		t.Fatal("stale Release must not delete the second holder's lock")
	}
	_ = second
}

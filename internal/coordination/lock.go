package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes key only if its value still matches the token that
// acquired it, so a lock holder can never release a lock that expired and
// was re-acquired by someone else. Grounded on the compare-and-delete
// release spec.md §4.1 calls for in place of the teacher's plain SetNX/Del
// pairing (pkg/redis/client.go SetNX has no matching CAS-delete).
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Lock is a held, scoped lease on a key. Release is idempotent and safe to
// defer unconditionally.
type Lock struct {
	c     *Client
	key   string
	token string
}

// TryLock attempts to acquire key with NX semantics, a fixed TTL and an
// opaque token, returning ok=false (not an error) when another holder
// already has it. The Credential Pool Engine's per-user lock uses
// TryLockForUser instead.
func (c *Client) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{c: c, key: key, token: token}, true, nil
}

// lockExtendScript is TryLockForUser's atomic acquire-or-extend: absent key
// acquires it for holder, a key already held by holder extends its TTL and
// succeeds, a key held by anyone else fails without touching it.
const lockExtendScript = `
local current = redis.call("get", KEYS[1])
if current == false then
	redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
elseif current == ARGV[1] then
	redis.call("pexpire", KEYS[1], ARGV[2])
	return 1
else
	return 0
end
`

// TryLockForUser acquires key with the caller's userID as the lock's value
// instead of an opaque token, implementing the Credential Pool Engine's
// per-user fairness device (spec.md §4.1 step 4/7, §3.6 `CRED_LOCK:<id>`
// "Holder user id; presence = lock held"): a lock already held by the same
// userID has its TTL extended and the acquisition succeeds, so a user's own
// concurrent/retried request never gets skipped as if it were a stranger's;
// a lock held by a different user fails exactly like TryLock's plain NX
// check. This is "a fairness device, not a mutex" -- it does not serialize
// concurrent requests from the same user on the same credential.
func (c *Client) TryLockForUser(ctx context.Context, key, userID string, ttl time.Duration) (*Lock, bool, error) {
	n, err := c.rdb.Eval(ctx, lockExtendScript, []string{key}, userID, ttl.Milliseconds()).Int()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	return &Lock{c: c, key: key, token: userID}, true, nil
}

// Release performs the compare-and-delete. Calling Release on a nil Lock,
// or more than once, is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	err := l.c.rdb.Eval(ctx, releaseScript, []string{l.key}, l.token).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

// Extend pushes the lock's TTL forward, guarded by the same token check, so
// a long-running streamed request (spec.md §5 StreamLockTTL) can renew its
// hold without racing a concurrent acquirer.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if l == nil {
		return fmt.Errorf("coordination: extend of nil lock")
	}
	script := `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`
	return l.c.rdb.Eval(ctx, script, []string{l.key}, l.token, ttl.Milliseconds()).Err()
}

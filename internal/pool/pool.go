// Package pool is the Credential Pool Engine (spec.md §2 Component D,
// §4.1): two ordered queues of upstream credentials (general and
// V3-capable), atomic rotation, per-credential locking so requests from two
// different users never share one credential concurrently, and the
// VALIDATING -> ACTIVE ->
// {COOLING, DEAD} state machine.
//
// Grounded on the teacher's internal/account/credentials.go (token
// caching) and internal/account/strategies/round_robin.go (rotation), but
// restructured per the Design Notes (spec.md §9): the teacher's Strategy
// interface selects among already-loaded in-memory accounts; here
// selection is itself coordination-store-backed (RPOPLPUSH) so the
// rotation cursor survives a process restart and is shared across proxy
// replicas, and every acquisition returns an explicit Lock the caller must
// release rather than a side-effecting lock string.
package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/relaymesh/aiproxy/internal/apierr"
	"github.com/relaymesh/aiproxy/internal/coordination"
	"github.com/relaymesh/aiproxy/internal/store"
	"go.uber.org/zap"
)

// Queue names one of the coordination-store rotation lists spec.md §4.1
// describes. Each upstream family gets its own general/V3 pair so an
// Antigravity credential is never handed to a Cloud Code dispatch or vice
// versa -- the two families have distinct OAuth clients and endpoints, and
// only share the general/V3-capable split as a concept.
type Queue string

func queueKey(family store.CredentialFamily, requireV3 bool) Queue {
	tier := "general"
	if requireV3 {
		tier = "v3"
	}
	return Queue(fmt.Sprintf("POOL:%s:%s", family, tier))
}

const maxStrikes = 2

// Engine owns both queues and the per-credential locks and state
// transitions. One Engine per process, constructed at boot and passed by
// the caller, per the Design Notes' "single engine instance per process"
// requirement.
type Engine struct {
	coord  *coordination.Client
	db     *store.Store
	tokens *TokenCache
	log    *zap.Logger

	lockTTL time.Duration
}

func New(coord *coordination.Client, db *store.Store, refresher *Refresher, log *zap.Logger) *Engine {
	return &Engine{
		coord:   coord,
		db:      db,
		tokens:  NewTokenCache(coord, refresher),
		log:     log,
		lockTTL: 30 * time.Second,
	}
}

// SeedPools loads every non-DEAD credential from durable storage into its
// coordination-store queue, run once at boot so the pools survive a
// coordination-store flush. LPush does not check whether an id is already
// in a queue, so seeding a queue that still holds a credential adds a
// second entry for it.
func (e *Engine) SeedPools(ctx context.Context) error {
	for _, family := range []store.CredentialFamily{store.FamilyCloudCode, store.FamilyAntigravity} {
		creds, err := e.db.ListCredentialsByFamily(ctx, family)
		if err != nil {
			return fmt.Errorf("pool: seed %s: %w", family, err)
		}
		for _, c := range creds {
			if c.Status == store.StatusDead {
				continue
			}
			if err := e.coord.LPush(ctx, string(queueKey(family, false)), c.ID); err != nil {
				return err
			}
			if c.V3Capable {
				if err := e.coord.LPush(ctx, string(queueKey(family, true)), c.ID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Held is an acquired credential paired with the lock guarding it and a
// ready-to-use access token. Callers must call Release when done,
// typically via defer.
type Held struct {
	Credential *store.GoogleCredential
	AccessToken string
	lock       *coordination.Lock
}

func (h *Held) Release(ctx context.Context) {
	if h == nil {
		return
	}
	_ = h.lock.Release(ctx)
}

// Extend renews the underlying lock. Neither the Upstream Dispatcher nor
// the Router calls it; a streamed request keeps the lock TTL it was
// acquired with (spec.md §5 StreamLockTTL).
func (h *Held) Extend(ctx context.Context, ttl time.Duration) error {
	return h.lock.Extend(ctx, ttl)
}

// Acquire rotates through a queue, skipping locked/cooling/dead
// credentials, and returns the first available one locked and with a
// fresh access token attached. This is the acquisition algorithm of
// spec.md §4.1 step 3-5: rotate tail-to-head, check status, check and take
// the lock, refresh token. userID is the requesting user, used as the
// lock's holder value so a second concurrent request from the same user
// extends its own lock instead of being skipped as if locked by a stranger
// (spec.md §4.1 step 4/7).
func (e *Engine) Acquire(ctx context.Context, family store.CredentialFamily, requireV3 bool, lockTTL time.Duration, userID string) (*Held, error) {
	queue := queueKey(family, requireV3)

	length, err := e.coord.LLen(ctx, string(queue))
	if err != nil {
		return nil, apierr.Server("pool: queue length: %v", err)
	}
	if length == 0 {
		return nil, apierr.New(apierr.KindUpstream, 503, "no credentials configured for this pool", false, nil)
	}

	var lastSkipReason string
	for attempt := int64(0); attempt < length; attempt++ {
		id, err := e.coord.RPopLPush(ctx, string(queue))
		if err != nil || id == "" {
			continue
		}

		cred, err := e.db.GetCredential(ctx, id)
		if err != nil {
			lastSkipReason = "credential record missing"
			continue
		}
		if cred.Status == store.StatusDead {
			lastSkipReason = "dead"
			continue
		}
		if cred.Status == store.StatusCooling && cred.CoolingUntil != nil && time.Now().Before(*cred.CoolingUntil) {
			lastSkipReason = "cooling"
			continue
		}

		lock, ok, err := e.coord.TryLockForUser(ctx, lockKey(cred.ID), userID, lockTTL)
		if err != nil {
			return nil, apierr.Server("pool: lock: %v", err)
		}
		if !ok {
			lastSkipReason = "locked"
			continue
		}

		token, err := e.tokens.Get(ctx, cred)
		if err != nil {
			_ = lock.Release(ctx)
			e.recordStrike(ctx, cred, err)
			lastSkipReason = "refresh failed"
			continue
		}

		return &Held{Credential: cred, AccessToken: token, lock: lock}, nil
	}

	e.log.Warn("pool: no available credential", zap.String("queue", string(queue)), zap.String("lastSkipReason", lastSkipReason))
	return nil, apierr.New(apierr.KindUpstream, 503, "all credentials are currently locked, cooling, or dead", true, nil)
}

func lockKey(credentialID string) string {
	return "LOCK:credential:" + credentialID
}

// FreshToken returns a usable access token for cred without going through
// queue rotation or locking, used by the Scheduled Workers' health-check
// jobs (spec.md §4.6) which probe a credential directly rather than
// acquiring it for a client request.
func (e *Engine) FreshToken(ctx context.Context, cred *store.GoogleCredential) (string, error) {
	return e.tokens.Get(ctx, cred)
}

// RecordStrike applies the 2-strike rule to cred for an observed failure,
// exported so the Scheduled Workers' health-check jobs apply the same
// auth/permission-failure accounting Acquire does.
func (e *Engine) RecordStrike(ctx context.Context, cred *store.GoogleCredential, cause error) {
	e.recordStrike(ctx, cred, cause)
}

package pool

import (
	"context"
	"time"

	"github.com/relaymesh/aiproxy/internal/apierr"
	"github.com/relaymesh/aiproxy/internal/store"
	"go.uber.org/zap"
)

// defaultCoolingDuration is how long recordStrike cools a credential after
// its first auth/permission strike. A 429 with no upstream-provided
// retry-after cools until the next UTC+7 midnight instead (MarkCoolingFor).
const defaultCoolingDuration = 10 * time.Minute

// coolingSetKey is the coordination-store COOLING_SET from spec.md §3.6.
const coolingSetKey = "COOLING_SET"

// removeFromPools drops id from both of its family's queues so a demoted
// credential stops being handed out the moment state changes, rather than
// lingering in rotation until the next SeedPools reseed (spec.md §4.1 "A
// DEAD or COOLING credential never appears in any active pool list").
func (e *Engine) removeFromPools(ctx context.Context, cred *store.GoogleCredential) {
	_ = e.coord.LRem(ctx, string(queueKey(cred.Family, false)), 0, cred.ID)
	_ = e.coord.LRem(ctx, string(queueKey(cred.Family, true)), 0, cred.ID)
}

// reinsertIntoPools is removeFromPools' inverse, used by Restore once a
// cooling period has elapsed (spec.md §4.1 "Restoration: ... re-insert into
// applicable pools").
func (e *Engine) reinsertIntoPools(ctx context.Context, cred *store.GoogleCredential) {
	_ = e.coord.LPush(ctx, string(queueKey(cred.Family, false)), cred.ID)
	if cred.V3Capable {
		_ = e.coord.LPush(ctx, string(queueKey(cred.Family, true)), cred.ID)
	}
}

// MarkCooling demotes a credential to COOLING, the transient-failure path
// (spec.md §4.1 error classification: 429 -> markCooling). It does not
// consume a strike. Per spec.md §4.1's state-transition bullet, it also
// removes the credential from both pool queues and adds it to the cooling
// set, so the next rotation never hands it back out before it recovers.
func (e *Engine) MarkCooling(ctx context.Context, credentialID string, until time.Time) error {
	if err := e.db.UpdateCredentialStatus(ctx, credentialID, store.StatusCooling, 0, &until); err != nil {
		return err
	}
	cred, err := e.db.GetCredential(ctx, credentialID)
	if err != nil {
		return nil // status update already committed; pool bookkeeping is best-effort
	}
	e.removeFromPools(ctx, cred)
	_ = e.coord.SAdd(ctx, coolingSetKey, credentialID)
	return nil
}

// MarkCoolingFor cools a credential for d from now. A d <= 0 (no upstream
// retry-after available) cools it until the next UTC+7 midnight.
func (e *Engine) MarkCoolingFor(ctx context.Context, credentialID string, d time.Duration) error {
	until := time.Now().Add(d)
	if d <= 0 {
		utc7 := time.FixedZone("UTC+7", 7*60*60)
		now := time.Now().In(utc7)
		until = time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, utc7)
	}
	return e.MarkCooling(ctx, credentialID, until)
}

// recordStrike implements the 2-strike rule: the first permanent-looking
// failure cools the credential, the second marks it DEAD (spec.md §4.1
// "2-strike rule for DEAD transitions"). Non-permanent errors (network
// blips, 5xx) do not accumulate strikes.
func (e *Engine) recordStrike(ctx context.Context, cred *store.GoogleCredential, cause error) {
	ae := apierr.As(cause)
	if ae.Kind != apierr.KindAuthentication && ae.Kind != apierr.KindPermission {
		return
	}

	strikes := cred.StrikeCount + 1
	if strikes >= maxStrikes {
		_ = e.db.UpdateCredentialStatus(ctx, cred.ID, store.StatusDead, strikes, nil)
		e.removeFromPools(ctx, cred)
		_ = e.coord.SRem(ctx, coolingSetKey, cred.ID)
		e.log.Warn("pool: credential marked dead after repeated auth failures",
			zap.String("credentialId", cred.ID), zap.Int("strikes", strikes))
		return
	}
	_ = e.db.UpdateCredentialStatus(ctx, cred.ID, store.StatusCooling, strikes, ptrTime(time.Now().Add(defaultCoolingDuration)))
	e.removeFromPools(ctx, cred)
	_ = e.coord.SAdd(ctx, coolingSetKey, cred.ID)
}

// MarkDead permanently retires a credential (spec.md §4.1 403 -> 2-strike
// markDead path, reached directly when the caller already knows the
// failure is unrecoverable, e.g. a revoked grant). Per spec.md §4.1's
// state-transition bullet, it removes the credential from both pools and
// the cooling set -- a DEAD credential is terminal until a manual revival,
// not something the cooling-restoration job will ever pick back up.
func (e *Engine) MarkDead(ctx context.Context, credentialID string) error {
	if err := e.db.UpdateCredentialStatus(ctx, credentialID, store.StatusDead, maxStrikes, nil); err != nil {
		return err
	}
	cred, err := e.db.GetCredential(ctx, credentialID)
	if err != nil {
		return nil
	}
	e.removeFromPools(ctx, cred)
	_ = e.coord.SRem(ctx, coolingSetKey, credentialID)
	return nil
}

// Restore clears a credential's cooling/dead state and resets its strike
// count, used by the scheduled health-check worker once a credential
// passes a liveness probe again (spec.md §4.4 Scheduled Workers). It
// removes the id from the cooling set and re-inserts it into its
// applicable pools, mirroring spec.md §4.1's restoration bullet.
func (e *Engine) Restore(ctx context.Context, credentialID string) error {
	if err := e.db.UpdateCredentialStatus(ctx, credentialID, store.StatusActive, 0, nil); err != nil {
		return err
	}
	_ = e.coord.SRem(ctx, coolingSetKey, credentialID)
	cred, err := e.db.GetCredential(ctx, credentialID)
	if err != nil {
		return nil
	}
	e.reinsertIntoPools(ctx, cred)
	return nil
}

// OnSuccess clears any accumulated strikes after a clean response, so a
// credential that recovers doesn't carry a stale strike count toward the
// next failure.
func (e *Engine) OnSuccess(ctx context.Context, cred *store.GoogleCredential) error {
	if cred.StrikeCount == 0 && cred.Status == store.StatusActive {
		return nil
	}
	return e.db.UpdateCredentialStatus(ctx, cred.ID, store.StatusActive, 0, nil)
}

func ptrTime(t time.Time) *time.Time { return &t }

// Package quota is the Quota & Rate Governor (spec.md §2 Component E,
// §4.2): tier derivation from credential holdings, the dynamic daily quota
// formula, sliding per-minute rate limiting, and per-model usage
// accounting.
//
// Grounded on the teacher's per-account QuotaTracker
// (go-backend/internal/account/strategies/trackers/quota.go), which scores
// individual accounts by their remaining upstream quota fraction; this
// package answers a different question spec.md §4.2 asks instead --
// how much of *the proxy's own* daily budget has a user consumed -- so the
// upstream-fraction scoring is not reused directly, but its
// threshold/freshness pattern (critical/low thresholds, a staleness
// window, per-model overrides) grounds the per-model threshold overrides
// this package exposes as a supplemented feature.
package quota

// Tier is a user's derived service tier (spec.md §4.2), computed from how
// many active upstream credentials they have contributed to the pool.
type Tier string

const (
	TierNewbie        Tier = "newbie"
	TierContributor   Tier = "contributor"
	TierV3Contributor Tier = "v3_contributor"
)

// Holdings summarizes a user's contributed credentials, the only input to
// tier derivation.
type Holdings struct {
	ActiveCredentials   int
	HasV3CapableActive  bool
}

// DeriveTier implements spec.md §4.2's tier rule: no active credentials is
// newbie; any active V3-capable credential is v3_contributor; otherwise
// any active credential is contributor.
func DeriveTier(h Holdings) Tier {
	switch {
	case h.HasV3CapableActive:
		return TierV3Contributor
	case h.ActiveCredentials > 0:
		return TierContributor
	default:
		return TierNewbie
	}
}

// TierLimits is the baseline quota/rate for a tier (mirrors config.TierLimit
// to avoid a config->quota import cycle; Governor.New takes the config
// values and stores them here).
type TierLimits struct {
	BaseDailyQuota int
	RPM            int
}

// DailyQuota implements the dynamic formula from spec.md §4.2:
//
//	baseQuota(tier) + max(0, activeCount-1) * incrementPerCredential
//
// A user's first credential only unlocks the tier's base quota; each
// additional active credential they contribute adds a flat increment, so
// quota scales with what a user gives the shared pool rather than being a
// fixed per-tier ceiling.
func DailyQuota(limits TierLimits, activeCredentials, incrementPerCredential int) int {
	extra := activeCredentials - 1
	if extra < 0 {
		extra = 0
	}
	return limits.BaseDailyQuota + extra*incrementPerCredential
}

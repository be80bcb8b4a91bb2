package quota

// ModelThresholds holds per-model quota-warning thresholds. These do not
// gate requests, so a credential under its low threshold still serves
// traffic until the daily quota itself is exhausted. Only the defaults from
// DefaultModelThresholds exist (there is no per-user or per-credential
// override), and nothing in the router, the admin visibility endpoints
// included, calls Classify.
//
// Grounded on go-backend/internal/account/strategies/trackers/quota.go's
// QuotaConfig{LowThreshold, CriticalThreshold}, translated from a
// selection-scoring input into a warning-only threshold since this proxy's
// Quota Governor does not rank credentials by remaining upstream fraction.
type ModelThresholds struct {
	LowThreshold      float64
	CriticalThreshold float64
}

// DefaultModelThresholds mirrors the teacher's QuotaTracker defaults.
func DefaultModelThresholds() ModelThresholds {
	return ModelThresholds{LowThreshold: 0.10, CriticalThreshold: 0.05}
}

// Classify reports whether a remaining-fraction reading (0-1, -1 if
// unknown) is low or critical under t.
func (t ModelThresholds) Classify(remainingFraction float64) string {
	if remainingFraction < 0 {
		return "unknown"
	}
	switch {
	case remainingFraction <= t.CriticalThreshold:
		return "critical"
	case remainingFraction <= t.LowThreshold:
		return "low"
	default:
		return "ok"
	}
}

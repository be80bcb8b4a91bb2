package quota

import "testing"

func TestDeriveTier(t *testing.T) {
	cases := []struct {
		name string
		h    Holdings
		want Tier
	}{
		{"no credentials", Holdings{}, TierNewbie},
		{"one general credential", Holdings{ActiveCredentials: 1}, TierContributor},
		{"several general credentials", Holdings{ActiveCredentials: 3}, TierContributor},
		{"v3 credential wins regardless of count", Holdings{ActiveCredentials: 1, HasV3CapableActive: true}, TierV3Contributor},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DeriveTier(c.h); got != c.want {
				t.Errorf("DeriveTier(%+v) = %s, want %s", c.h, got, c.want)
			}
		})
	}
}

func TestDailyQuota(t *testing.T) {
	limits := TierLimits{BaseDailyQuota: 300, RPM: 10}

	cases := []struct {
		name        string
		active      int
		incrementPC int
		want        int
	}{
		{"zero active credentials still gets base", 0, 100, 300},
		{"first credential unlocks base only", 1, 100, 300},
		{"each extra credential adds the increment", 3, 100, 500},
		{"negative active count clamps to base", -2, 100, 300},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DailyQuota(limits, c.active, c.incrementPC); got != c.want {
				t.Errorf("DailyQuota(active=%d, inc=%d) = %d, want %d", c.active, c.incrementPC, got, c.want)
			}
		})
	}
}

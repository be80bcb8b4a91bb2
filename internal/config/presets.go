package config

// Preset bundles a named set of tier defaults and the increment-per-credential
// knob, generalized from the teacher's ServerPreset/ServerPresetConfig
// (internal/config/server_presets.go), which bundled retry/backoff/quota
// knobs for a single-tenant desktop proxy. Here a preset tunes the Quota &
// Rate Governor's tier table instead of per-account health-score weights,
// since this proxy derives tiers from credential holdings rather than
// scoring individual accounts.
type Preset struct {
	Name                   string
	Tiers                  TierDefaults
	IncrementPerCredential int
}

// Presets mirrors the teacher's DefaultServerPresets three-tier spread
// (Default / Many Accounts / Conservative) translated into quota presets.
var Presets = map[string]Preset{
	"default": {
		Name:                   "Default",
		Tiers:                  DefaultTiers(),
		IncrementPerCredential: 1000,
	},
	"generous": {
		Name: "Generous (many credentials)",
		Tiers: TierDefaults{
			Newbie:        TierLimit{DailyQuota: 500, RPM: 15},
			Contributor:   TierLimit{DailyQuota: 2500, RPM: 90},
			V3Contributor: TierLimit{DailyQuota: 5000, RPM: 180},
		},
		IncrementPerCredential: 1500,
	},
	"conservative": {
		Name: "Conservative",
		Tiers: TierDefaults{
			Newbie:        TierLimit{DailyQuota: 150, RPM: 5},
			Contributor:   TierLimit{DailyQuota: 750, RPM: 30},
			V3Contributor: TierLimit{DailyQuota: 1500, RPM: 60},
		},
		IncrementPerCredential: 500,
	},
}

// ApplyPreset mutates cfg's tier table and increment knob from a named
// preset; unknown names are a no-op, leaving the env-derived defaults.
func (c *Config) ApplyPreset(name string) {
	p, ok := Presets[name]
	if !ok {
		return
	}
	c.Tiers = p.Tiers
	c.IncrementPerCredential = p.IncrementPerCredential
}

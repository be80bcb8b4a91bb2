// Package config provides runtime configuration: environment-derived
// settings plus the tier/quota/timeout defaults described in spec.md §4.2
// and §5.
//
// This corresponds to the teacher's internal/config/config.go and
// constants.go, generalized from a single-tenant desktop-proxy config (one
// API key, one set of Google accounts) to a multi-tenant server config
// (JWT secret, admin bootstrap, per-tier quota defaults, two upstream
// families).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process-wide runtime configuration, built once at boot and
// passed by value/pointer to constructors -- never read back out of a
// global, per the Design Notes (§9) ban on module-global clients.
type Config struct {
	Port int
	Host string

	DevMode bool

	DatabaseURL   string
	CoordDBAddr   string
	CoordDBPass   string
	CoordDB       int

	JWTSecret      string
	AdminUsername  string
	AdminPassword  string

	// Feature flags (spec.md §3.6 "hot config values"), read from the
	// environment at boot. They are not loaded from SystemSettings, and
	// nothing re-reads them while the process runs.
	ForceDiscordBind        bool
	EnableGemini3OpenAccess bool
	CLISharedMode           bool

	// Upstream base URL overrides (spec.md §6 env vars).
	CloudCodeBaseURL    string
	AntigravityBaseURL  string

	IncrementPerCredential int

	Tiers       TierDefaults
	Antigravity AntigravityDefaults
}

// AntigravityDefaults are the system-wide fallback limits for the
// Antigravity quota mode (spec.md §4.2 "Quota mode selection (Antigravity)":
// a boolean use_token_quota chooses between request-count and token-count
// enforcement against claude_limit/gemini3_limit or their _token_quota
// variants). A user's own store.User overrides take precedence; these
// apply when a user has no override set (nil limit).
type AntigravityDefaults struct {
	ClaudeLimit       int
	Gemini3Limit      int
	ClaudeTokenQuota  int
	Gemini3TokenQuota int
}

// DefaultAntigravityLimits mirrors the request-count defaults of the
// contributor tier for claude/gemini3, with token quotas scaled for a
// typical completion size -- there is no spec.md-given numeric default for
// the token-count variants, so they are set at 50x the request-count
// default as a starting point an admin can override per user via
// store.SetAntigravityQuotaMode.
func DefaultAntigravityLimits() AntigravityDefaults {
	return AntigravityDefaults{
		ClaudeLimit:       1500,
		Gemini3Limit:      1500,
		ClaudeTokenQuota:  75000,
		Gemini3TokenQuota: 75000,
	}
}

// TierDefaults holds the default daily quota and per-minute rate limit for
// each derived tier (spec.md §4.2).
type TierDefaults struct {
	Newbie          TierLimit
	Contributor     TierLimit
	V3Contributor   TierLimit
}

type TierLimit struct {
	DailyQuota int
	RPM        int
}

// DefaultTiers are the tier defaults named in spec.md §4.2.
func DefaultTiers() TierDefaults {
	return TierDefaults{
		Newbie:        TierLimit{DailyQuota: 300, RPM: 10},
		Contributor:   TierLimit{DailyQuota: 1500, RPM: 60},
		V3Contributor: TierLimit{DailyQuota: 3000, RPM: 120},
	}
}

const (
	DefaultPort                   = 8080
	DefaultIncrementPerCredential = 1000

	// Upstream timeouts (spec.md §5).
	NonStreamHeaderTimeout = 30 * time.Second
	NonStreamBodyTimeout   = 30 * time.Second
	StreamHeaderTimeout    = 60 * time.Second
	StreamBodyTimeout      = 60 * time.Second

	// Lock TTLs mirror the chosen upstream timeout (spec.md §4.1, §5).
	NonStreamLockTTL = 30 * time.Second
	StreamLockTTL    = 60 * time.Second

	AccessTokenCacheTTL = 55 * time.Minute
	AccessTokenExpiryMargin = 5 * time.Minute

	RateLimitWindow = 60 * time.Second

	RequestBodyLimit int64 = 50 * 1024 * 1024

	DefaultCloudCodeBaseURL   = "https://cloudcode-pa.googleapis.com"
	DefaultAntigravityBaseURL = "https://daily-cloudcode-pa.googleapis.com"
)

// Google OAuth endpoints (grounded on the teacher's internal/config/
// constants.go OAuthConfig; client id/secret are per-deployment secrets and
// are loaded from the environment here rather than hard-coded, per the
// Design Notes' DI requirement).
const (
	GoogleOAuthAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleOAuthTokenURL    = "https://oauth2.googleapis.com/token"
	GoogleOAuthUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"
)

// Load populates a Config from the environment, mirroring the teacher's
// cmd/server/main.go flag/env precedence (flags would override these in
// main; this only covers the env layer).
func Load() *Config {
	cfg := &Config{
		Port:                    envInt("PORT", DefaultPort),
		Host:                    envString("HOST", "0.0.0.0"),
		DevMode:                 envBool("DEV_MODE", false) || envBool("DEBUG", false),
		DatabaseURL:             envString("DATABASE_URL", "proxy.db"),
		CoordDBAddr:             envString("COORD_ADDR", "localhost:6379"),
		CoordDBPass:             envString("COORD_PASSWORD", ""),
		CoordDB:                 envInt("COORD_DB", 0),
		JWTSecret:               envString("JWT_SECRET", ""),
		AdminUsername:           envString("ADMIN_USERNAME", "admin"),
		AdminPassword:           envString("ADMIN_PASSWORD", ""),
		ForceDiscordBind:        envBool("FORCE_DISCORD_BIND", false),
		EnableGemini3OpenAccess: envBool("ENABLE_GEMINI3_OPEN_ACCESS", false),
		CLISharedMode:           envBool("CLI_SHARED_MODE", true),
		CloudCodeBaseURL:        envString("CLOUD_CODE_BASE_URL", DefaultCloudCodeBaseURL),
		AntigravityBaseURL:      envString("ANTIGRAVITY_BASE_URL", DefaultAntigravityBaseURL),
		IncrementPerCredential:  envInt("INCREMENT_PER_CREDENTIAL", DefaultIncrementPerCredential),
		Tiers:                   DefaultTiers(),
		Antigravity:             DefaultAntigravityLimits(),
	}
	return cfg
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relaymesh/aiproxy/internal/apierr"
	"github.com/relaymesh/aiproxy/internal/coordination"
	"github.com/relaymesh/aiproxy/internal/store"
	"go.uber.org/zap"
)

// dailyReset rolls the per-user and global daily usage counters over at
// 00:00 UTC+8 (spec.md §4.6). It zeroes every user's persisted today_used
// (store.ResetDailyUsage). The coordination-store counters are keyed by day
// (coordination.UserStatsKey/GlobalStatsKey) and carry a self-expiring TTL
// past the day boundary (internal/quota.Governor.Record), so the job does
// not touch them. It then publishes the rollover as an event so
// any live dashboard watching the coordination-store channel can reset its
// own counters in lockstep, rather than waiting for its next poll.
func (s *Scheduler) dailyReset(ctx context.Context) {
	if err := s.db.ResetDailyUsage(ctx); err != nil {
		s.log.Warn("worker: daily reset failed", zap.Error(err))
	}
	day := coordination.TodayUTC8()
	if err := s.coord.Publish(ctx, "EVENTS:daily_reset", map[string]string{"day": day.Format("2006-01-02")}); err != nil {
		s.log.Warn("worker: daily reset publish failed", zap.Error(err))
	}
}

// coolingRestoration runs every 10 minutes, restoring any credential whose
// cooling period has elapsed back to ACTIVE (spec.md §4.1, §4.6).
func (s *Scheduler) coolingRestoration(ctx context.Context) {
	now := time.Now()
	for _, family := range []store.CredentialFamily{store.FamilyCloudCode, store.FamilyAntigravity} {
		creds, err := s.db.ListCredentialsByFamily(ctx, family)
		if err != nil {
			s.log.Warn("worker: cooling restoration list failed", zap.String("family", string(family)), zap.Error(err))
			continue
		}
		for _, c := range creds {
			if c.Status != store.StatusCooling || c.CoolingUntil == nil || now.Before(*c.CoolingUntil) {
				continue
			}
			if err := s.pools.Restore(ctx, c.ID); err != nil {
				s.log.Warn("worker: restore failed", zap.String("credentialId", c.ID), zap.Error(err))
				continue
			}
			s.log.Info("worker: credential restored", zap.String("credentialId", c.ID), zap.String("family", string(family)))
		}
	}
}

// credentialHealthCheck probes every Cloud Code credential serially, with
// jitter between probes, at 03:00 UTC+8 (spec.md §4.6): refresh the token,
// then fetch userinfo. A 403-shaped failure applies the 2-strike rule;
// rate-limit/server/network errors are ignored for this pass (they are not
// evidence the credential itself is dead).
func (s *Scheduler) credentialHealthCheck(ctx context.Context) {
	s.healthCheckFamily(ctx, store.FamilyCloudCode, 500, 1000)
}

// antigravityHealthCheck mirrors credentialHealthCheck for the Antigravity
// family, with the 200-1000 ms jitter spec.md §4.6 specifies for
// that family's probe.
func (s *Scheduler) antigravityHealthCheck(ctx context.Context) {
	s.healthCheckFamily(ctx, store.FamilyAntigravity, 200, 1000)
}

func (s *Scheduler) healthCheckFamily(ctx context.Context, family store.CredentialFamily, jitterMinMs, jitterMaxMs int) {
	creds, err := s.db.ListCredentialsByFamily(ctx, family)
	if err != nil {
		s.log.Warn("worker: health check list failed", zap.String("family", string(family)), zap.Error(err))
		return
	}

	refresher := s.refresher.CloudCode
	if family == store.FamilyAntigravity {
		refresher = s.refresher.Antigravity
	}

	for i, c := range creds {
		if c.Status == store.StatusDead {
			continue
		}
		if i > 0 && !sleepOrStop(ctx, s.stop, jitter(jitterMinMs, jitterMaxMs)) {
			return
		}

		cred := c
		token, err := s.pools.FreshToken(ctx, &cred)
		if err != nil {
			// FreshToken classifies refresh failures into *apierr.Error
			// (pool.classifyRefreshError), so RecordStrike's own Kind check
			// already gates this to auth/permission failures -- no need to
			// pre-filter with isPermanentAuthError here.
			s.pools.RecordStrike(ctx, &cred, err)
			continue
		}

		if _, err := refresher.UserEmail(ctx, token); err != nil {
			if isPermanentAuthError(err) {
				s.pools.RecordStrike(ctx, &cred, apierr.Permission("%v", err))
			}
			continue
		}

		_ = s.pools.OnSuccess(ctx, &cred)
	}
}

// isPermanentAuthError reports whether err looks like a 403-class
// permanent denial rather than a transient 429/5xx/network failure
// (spec.md §4.6: "403 follows the 2-strike rule ... 429/5xx/network errors
// are ignored"). oauth.Refresher surfaces the upstream status code in the
// error text rather than a typed error, so this matches on that text the
// same way the teacher's IsPermanentAuthFailure matches error substrings
// (go-backend/internal/cloudcode/rate_limit_state.go).
func isPermanentAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "403") || strings.Contains(msg, "invalid_grant") || strings.Contains(msg, "invalid_client")
}

// quotaWindowBand classifies a credential's observed upstream quota window
// into the "Pro"/"Normal" tiers spec.md §4.6 describes, with hysteresis: a
// new reading only overwrites a persisted classification when it falls in
// a confident band (<=4h -> Pro, >=24h -> Normal); anything in between
// leaves the previous classification alone rather than flapping on a
// borderline reading.
func quotaWindowBand(window time.Duration) (band string, confident bool) {
	switch {
	case window <= 4*time.Hour:
		return "Pro", true
	case window >= 24*time.Hour:
		return "Normal", true
	default:
		return "", false
	}
}

const quotaClassificationTTL = 7 * 24 * time.Hour

func quotaClassificationKey(credentialID string) string {
	return "QUOTA_CLASS:" + credentialID
}

// quotaCacheRefresh runs every 30 minutes: it refreshes every Antigravity
// credential's access token with a concurrency cap of 30, probes Google's
// quota-summary endpoint to classify its rate-limit window as Pro/Normal,
// and publishes per-credential progress on a coordination-store channel
// for live observers (spec.md §4.6). It keeps tokens warm (so the next
// real request against that credential never pays a cold refresh) and
// surfaces refresh failures early.
func (s *Scheduler) quotaCacheRefresh(ctx context.Context) {
	creds, err := s.db.ListCredentialsByFamily(ctx, store.FamilyAntigravity)
	if err != nil {
		s.log.Warn("worker: quota cache refresh list failed", zap.Error(err))
		return
	}

	g := s.errgroupWithCap()
	total := len(creds)
	for i, c := range creds {
		cred := c
		idx := i
		if cred.Status == store.StatusDead {
			continue
		}
		g.Go(func() error {
			token, err := s.pools.FreshToken(ctx, &cred)
			progress := map[string]interface{}{"credentialId": cred.ID, "index": idx, "total": total}
			if err != nil {
				progress["error"] = err.Error()
				_ = s.coord.Publish(ctx, "EVENTS:quota_cache_refresh", progress)
				return nil
			}
			progress["refreshed"] = true

			window, err := s.fetchAntigravityQuotaWindow(ctx, token)
			if err != nil {
				progress["quotaError"] = err.Error()
			} else if band, confident := quotaWindowBand(window); confident {
				_ = s.coord.SetString(ctx, quotaClassificationKey(cred.ID), band, quotaClassificationTTL)
				progress["quotaBand"] = band
			}
			_ = s.coord.Publish(ctx, "EVENTS:quota_cache_refresh", progress)
			return nil
		})
	}
	_ = g.Wait()
}

// antigravityQuotaUserAgent/antigravityQuotaAPIClient/antigravityQuotaMetadata
// are the exact header values Google's endpoint expects from the
// Antigravity client, grounded on the pack's CLIProxyAPI
// internal/api/handlers/management/antigravity_quota.go callQuotaEndpoint.
const (
	antigravityQuotaUserAgent  = "antigravity/1.104.0 darwin/arm64"
	antigravityQuotaAPIClient  = "google-cloud-sdk vscode_cloudeshelleditor/0.1"
	antigravityQuotaMetadata   = `{"ideType":"IDE_UNSPECIFIED","platform":"PLATFORM_UNSPECIFIED","pluginType":"GEMINI"}`
)

// fetchAvailableModelsResponse is the array-shaped response format from
// Google's fetchAvailableModels endpoint (the pack's other format, a
// models-keyed map, is not reproduced here -- this probe only needs the
// soonest reset timestamp across models, not a full per-model quota
// picture).
type fetchAvailableModelsResponse struct {
	Models []struct {
		RateLimit struct {
			ResetTimeStamp string `json:"resetTimeStamp"`
		} `json:"rateLimit"`
	} `json:"models"`
}

// fetchAntigravityQuotaWindow probes Google's v1internal:fetchAvailableModels
// endpoint for the soonest upcoming rate-limit reset, the same POST this
// credential's real traffic already authenticates against, and returns how
// far out that reset is so quotaWindowBand can classify it Pro/Normal
// (spec.md §4.6). Grounded on fetchQuotaForAccount/callQuotaEndpoint in the
// pack's CLIProxyAPI antigravity_quota.go: an empty-body POST with the
// antigravity client's identifying headers.
func (s *Scheduler) fetchAntigravityQuotaWindow(ctx context.Context, accessToken string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.antigravityBaseURL+"/v1internal:fetchAvailableModels", strings.NewReader("{}"))
	if err != nil {
		return 0, fmt.Errorf("worker: build quota probe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", antigravityQuotaUserAgent)
	req.Header.Set("X-Goog-Api-Client", antigravityQuotaAPIClient)
	req.Header.Set("Client-Metadata", antigravityQuotaMetadata)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("worker: quota probe request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("worker: reading quota probe response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("worker: quota probe status %d: %s", resp.StatusCode, string(body))
	}

	var parsed fetchAvailableModelsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("worker: parsing quota probe response: %w", err)
	}

	now := time.Now()
	soonest := time.Duration(-1)
	for _, m := range parsed.Models {
		if m.RateLimit.ResetTimeStamp == "" {
			continue
		}
		resetAt, err := time.Parse(time.RFC3339, m.RateLimit.ResetTimeStamp)
		if err != nil {
			continue
		}
		if d := resetAt.Sub(now); d > 0 && (soonest < 0 || d < soonest) {
			soonest = d
		}
	}
	if soonest < 0 {
		return 0, fmt.Errorf("worker: no reset timestamps in quota probe response")
	}
	return soonest, nil
}

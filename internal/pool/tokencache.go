package pool

import (
	"context"
	"errors"
	"time"

	"github.com/relaymesh/aiproxy/internal/apierr"
	"github.com/relaymesh/aiproxy/internal/coordination"
	"github.com/relaymesh/aiproxy/internal/oauth"
	"github.com/relaymesh/aiproxy/internal/store"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Refresher dispatches a refresh to the right OAuth client family.
// Grounded on the teacher's Credentials.getFreshToken family switch
// (internal/account/credentials.go), generalized from a source-type switch
// (oauth/manual/database) to the two credential families spec.md §4.1
// actually has.
type Refresher struct {
	CloudCode   *oauth.Refresher
	Antigravity *oauth.Refresher
}

func (r *Refresher) refresherFor(family store.CredentialFamily) *oauth.Refresher {
	if family == store.FamilyAntigravity {
		return r.Antigravity
	}
	return r.CloudCode
}

// cacheTTL and expiryMargin mirror spec.md §5: a cached access token is
// reused for up to 55 minutes and is refreshed 5 minutes early so a
// request never starts against a token that expires mid-flight.
const (
	cacheTTL     = 55 * time.Minute
	expiryMargin = 5 * time.Minute
)

// TokenCache caches access tokens in the coordination store, deduping
// concurrent refreshes for the same credential with singleflight so two
// requests racing to acquire the same credential issue one refresh call,
// not two. Grounded on the teacher's two-tier cache (in-memory map, then
// Redis) in internal/account/credentials.go, collapsed to one tier since
// the coordination store is itself already fast and shared across
// replicas -- keeping a second in-process map would just be a second cache
// to invalidate.
type TokenCache struct {
	coord     *coordination.Client
	refresher *Refresher
	group     singleflight.Group
}

func NewTokenCache(coord *coordination.Client, refresher *Refresher) *TokenCache {
	return &TokenCache{coord: coord, refresher: refresher}
}

type cachedToken struct {
	AccessToken string    `json:"accessToken"`
	ExtractedAt time.Time `json:"extractedAt"`
}

func tokenCacheKey(credentialID string) string {
	return "TOKEN:" + credentialID
}

// Get returns a usable access token for cred, serving from cache when the
// cached entry is still within its margin and refreshing otherwise.
func (tc *TokenCache) Get(ctx context.Context, cred *store.GoogleCredential) (string, error) {
	var cached cachedToken
	if err := tc.coord.Get(ctx, tokenCacheKey(cred.ID), &cached); err == nil {
		if time.Since(cached.ExtractedAt) < cacheTTL-expiryMargin {
			return cached.AccessToken, nil
		}
	}

	v, err, _ := tc.group.Do(cred.ID, func() (interface{}, error) {
		refresher := tc.refresher.refresherFor(cred.Family)
		result, err := refresher.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			return nil, classifyRefreshError(cred.Email, err)
		}

		entry := cachedToken{AccessToken: result.AccessToken, ExtractedAt: time.Now()}
		_ = tc.coord.Set(ctx, tokenCacheKey(cred.ID), entry, cacheTTL)
		return result.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// classifyRefreshError turns a token-refresh failure into an *apierr.Error
// with the Kind recordStrike's 2-strike check actually looks at. A plain
// fmt.Errorf wrap defeats apierr.As (it only ever produces KindServer for
// anything that isn't already *apierr.Error), which is why a 400/401 on
// refresh never used to reach markDead -- Acquire's recordStrike call saw a
// server_error no matter what the upstream actually said. golang.org/x/
// oauth2's TokenSource surfaces the token endpoint's HTTP status via
// *oauth2.RetrieveError, so that is classified first; anything else (a
// dial failure, a timeout) is treated as transient, matching spec.md §4.4's
// "5xx/network/timeout -> no credential-state mutation".
func classifyRefreshError(email string, err error) *apierr.Error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		switch rerr.Response.StatusCode {
		case 400, 401:
			return apierr.Authentication("pool: refresh %s: %v", email, err)
		case 403:
			return apierr.Permission("pool: refresh %s: %v", email, err)
		}
	}
	return apierr.Upstream(502, "pool: refresh %s: %v", email, err)
}

// Invalidate drops a credential's cached token so the next acquisition
// forces a fresh refresh. The markDead/markCooling transitions do not call
// it.
func (tc *TokenCache) Invalidate(ctx context.Context, credentialID string) {
	_ = tc.coord.Delete(ctx, tokenCacheKey(credentialID))
}

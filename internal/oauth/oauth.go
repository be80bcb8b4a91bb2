// Package oauth refreshes Google OAuth tokens for the two upstream
// credential families (spec.md §4.1): Cloud Code and Antigravity.
//
// Grounded on the teacher's go-backend/internal/auth/oauth.go, which
// hand-rolls the token-refresh POST and userinfo GET with net/http
// directly. Per the instruction to prefer an ecosystem library over a
// hand-rolled stdlib client when the pack shows one, this is rebuilt on
// golang.org/x/oauth2 (pulled from jordigilh-kubernaut's and rakunlabs-at's
// go.mod, both of which depend on it), while preserving the teacher's
// composite refresh-token format "refreshToken|projectId|managedProjectId"
// since credentials already stored in that shape must keep working.
package oauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// RefreshParts is the parsed form of a composite refresh token.
type RefreshParts struct {
	RefreshToken     string
	ProjectID        string
	ManagedProjectID string
}

// ParseRefreshParts splits "refreshToken|projectId|managedProjectId",
// tolerating missing trailing segments exactly as the teacher's
// ParseRefreshParts does.
func ParseRefreshParts(composite string) RefreshParts {
	parts := strings.Split(composite, "|")
	var out RefreshParts
	if len(parts) > 0 {
		out.RefreshToken = parts[0]
	}
	if len(parts) > 1 && parts[1] != "" {
		out.ProjectID = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		out.ManagedProjectID = parts[2]
	}
	return out
}

// FormatRefreshParts is the inverse of ParseRefreshParts.
func FormatRefreshParts(p RefreshParts) string {
	base := fmt.Sprintf("%s|%s", p.RefreshToken, p.ProjectID)
	if p.ManagedProjectID != "" {
		return fmt.Sprintf("%s|%s", base, p.ManagedProjectID)
	}
	return base
}

// ClientConfig carries the OAuth client credentials for one family; both
// families authenticate against Google's endpoints but register distinct
// client IDs (spec.md §4.1 "two upstream credential families").
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// Refresher refreshes access tokens for one OAuth client family.
type Refresher struct {
	cfg    ClientConfig
	oauth2 *oauth2.Config
}

func NewRefresher(cfg ClientConfig) *Refresher {
	return &Refresher{
		cfg: cfg,
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			Scopes: cfg.Scopes,
		},
	}
}

// RefreshResult is the outcome of a successful token refresh.
type RefreshResult struct {
	AccessToken string
	ExpiresIn   int
}

// Refresh exchanges a composite refresh token for a fresh access token.
// Project/managed-project segments are carried by the caller (the
// Credential Pool Engine persists them alongside the credential) since
// Google's token endpoint only ever returns an access token, not project
// metadata.
func (r *Refresher) Refresh(ctx context.Context, composite string) (*RefreshResult, error) {
	parts := ParseRefreshParts(composite)
	token := &oauth2.Token{RefreshToken: parts.RefreshToken}

	src := r.oauth2.TokenSource(ctx, token)
	fresh, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("oauth: refresh failed: %w", err)
	}

	expiresIn := 0
	if !fresh.Expiry.IsZero() {
		if d := time.Until(fresh.Expiry); d > 0 {
			expiresIn = int(d.Seconds())
		}
	}
	return &RefreshResult{AccessToken: fresh.AccessToken, ExpiresIn: expiresIn}, nil
}

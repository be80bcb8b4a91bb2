package worker

import (
	"errors"
	"testing"
	"time"
)

func TestIsPermanentAuthError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"403 forbidden", errors.New("oauth: refresh failed: 403 Forbidden"), true},
		{"invalid_grant", errors.New(`oauth: refresh failed: {"error":"invalid_grant"}`), true},
		{"invalid_client uppercase", errors.New("INVALID_CLIENT: bad credentials"), true},
		{"rate limited", errors.New("oauth: refresh failed: 429 Too Many Requests"), false},
		{"server error", errors.New("oauth: refresh failed: 500 Internal Server Error"), false},
		{"network timeout", errors.New("dial tcp: i/o timeout"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isPermanentAuthError(c.err); got != c.want {
				t.Errorf("isPermanentAuthError(%q) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestQuotaWindowBand(t *testing.T) {
	cases := []struct {
		name          string
		window        time.Duration
		wantBand      string
		wantConfident bool
	}{
		{"well within pro threshold", 1 * time.Hour, "Pro", true},
		{"exactly at pro threshold", 4 * time.Hour, "Pro", true},
		{"ambiguous middle", 10 * time.Hour, "", false},
		{"exactly at normal threshold", 24 * time.Hour, "Normal", true},
		{"well past normal threshold", 48 * time.Hour, "Normal", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			band, confident := quotaWindowBand(c.window)
			if band != c.wantBand || confident != c.wantConfident {
				t.Errorf("quotaWindowBand(%s) = (%q, %v), want (%q, %v)", c.window, band, confident, c.wantBand, c.wantConfident)
			}
		})
	}
}

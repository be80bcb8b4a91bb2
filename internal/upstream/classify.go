package upstream

import (
	"encoding/json"
	"strings"

	"github.com/relaymesh/aiproxy/internal/apierr"
)

// Classify maps an upstream HTTP status and body onto the proxy's error
// taxonomy, implementing spec.md §4.3's classification table:
//
//	2xx            -> nil (success)
//	429            -> rate_limit_error, retryable, caller should markCooling
//	403             -> permission_error, non-retryable, 2-strike markDead
//	400/401 on refresh -> authentication_error, non-retryable, markDead
//	5xx/network    -> upstream_error, retryable, transient backoff
//
// Grounded on go-backend/internal/errors/errors.go's HTTPStatusFromError
// type switch, inverted here: instead of starting from a typed Go error
// and mapping to a status, this starts from the upstream's actual status
// and maps to the proxy's Kind, since the dispatcher only ever observes a
// raw HTTP response.
func Classify(statusCode int, body []byte) *apierr.Error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	message := extractMessage(body)

	switch {
	case statusCode == 429:
		return apierr.New(apierr.KindRateLimit, 429, message, true, map[string]interface{}{"upstreamStatus": statusCode})
	case statusCode == 403:
		return apierr.New(apierr.KindPermission, 403, message, false, map[string]interface{}{"upstreamStatus": statusCode, "strike": true})
	case statusCode == 401:
		return apierr.New(apierr.KindAuthentication, 401, message, false, map[string]interface{}{"upstreamStatus": statusCode, "strike": true})
	case statusCode == 400 && looksLikeInvalidGrant(message):
		return apierr.New(apierr.KindAuthentication, 400, message, false, map[string]interface{}{"upstreamStatus": statusCode, "strike": true})
	case statusCode >= 500:
		return apierr.New(apierr.KindUpstream, 502, message, true, map[string]interface{}{"upstreamStatus": statusCode})
	default:
		return apierr.New(apierr.KindUpstream, statusCode, message, false, map[string]interface{}{"upstreamStatus": statusCode})
	}
}

func looksLikeInvalidGrant(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "invalid_grant") || strings.Contains(lower, "invalid_token")
}

func extractMessage(body []byte) string {
	var wrapped struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Message != "" {
		return wrapped.Error.Message
	}
	if len(body) == 0 {
		return "upstream returned an empty response"
	}
	if len(body) > 500 {
		body = body[:500]
	}
	return string(body)
}

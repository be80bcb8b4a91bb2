// Package upstream is the Upstream Dispatcher (spec.md §2 Component F,
// §4.3): builds the wrapped Cloud Code / Antigravity request body, sends
// it to the right endpoint for the credential's family, classifies the
// response per spec.md §4.3's error table, and pumps streaming responses.
//
// Grounded on the teacher's internal/cloudcode/{client,request_builder,
// errors,sse_parser,streaming_handler}.go.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/relaymesh/aiproxy/internal/apierr"
	"github.com/relaymesh/aiproxy/internal/dialect"
	"github.com/relaymesh/aiproxy/internal/pool"
	"github.com/relaymesh/aiproxy/internal/store"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Payload is the wrapped request body Google's Cloud Code / Antigravity
// endpoint expects, grounded on the teacher's CloudCodePayload
// (internal/cloudcode/request_builder.go).
type Payload struct {
	Project     string                 `json:"project"`
	Model       string                 `json:"model"`
	Request     map[string]interface{} `json:"request"`
	UserAgent   string                 `json:"userAgent"`
	RequestType string                 `json:"requestType"`
	RequestID   string                 `json:"requestId"`
}

// BuildPayload wraps a canonical request for the generateContent endpoint.
func BuildPayload(canonical *dialect.CanonicalRequest, google map[string]interface{}, projectID string) *Payload {
	return &Payload{
		Project:     projectID,
		Model:       canonical.Model,
		Request:     google,
		UserAgent:   "aiproxy",
		RequestType: "agent",
		RequestID:   "agent-" + uuid.New().String(),
	}
}

// Dispatcher sends wrapped requests to the Cloud Code and Antigravity
// endpoints, with a circuit breaker per upstream family so a sustained
// outage on one family fails fast instead of queuing requests behind a
// string of timeouts.
type Dispatcher struct {
	httpClient *http.Client
	breakers   map[store.CredentialFamily]*gobreaker.CircuitBreaker
	baseURLs   map[store.CredentialFamily]string
	log        *zap.Logger
}

func New(cloudCodeBaseURL, antigravityBaseURL string, log *zap.Logger) *Dispatcher {
	breakerSettings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}
	}
	return &Dispatcher{
		httpClient: &http.Client{Timeout: 0}, // per-request timeout set via context
		breakers: map[store.CredentialFamily]*gobreaker.CircuitBreaker{
			store.FamilyCloudCode:   gobreaker.NewCircuitBreaker(breakerSettings("cloud_code")),
			store.FamilyAntigravity: gobreaker.NewCircuitBreaker(breakerSettings("antigravity")),
		},
		baseURLs: map[store.CredentialFamily]string{
			store.FamilyCloudCode:   cloudCodeBaseURL,
			store.FamilyAntigravity: antigravityBaseURL,
		},
		log: log,
	}
}

func (d *Dispatcher) endpoint(family store.CredentialFamily, stream bool) string {
	base := d.baseURLs[family]
	if stream {
		return base + "/v1internal:streamGenerateContent?alt=sse"
	}
	return base + "/v1internal:generateContent"
}

// Send issues one non-streaming request and returns the raw upstream JSON
// body, or a classified *apierr.Error on failure (spec.md §4.3 error
// table).
func (d *Dispatcher) Send(ctx context.Context, held *pool.Held, payload *Payload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apierr.Server("upstream: marshal payload: %v", err)
	}

	family := held.Credential.Family
	url := d.endpoint(family, false)

	result, err := d.breakers[family].Execute(func() (interface{}, error) {
		return d.doRequest(ctx, url, held.AccessToken, body)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, apierr.New(apierr.KindUpstream, 503, "upstream circuit open, too many recent failures", true, nil)
		}
		return nil, err
	}
	return result.([]byte), nil
}

// retryBackoffs are the fixed delays between retry attempts spec.md §4.4
// specifies for Retryable classifications (5xx, network errors, timeouts):
// up to 3 retries after the initial attempt, at 500ms/1.5s/3s. A 429 is
// retryable too in Classify's table but is handled by the Credential Pool
// Engine rotating to a different credential, not by retrying the same one
// here.
var retryBackoffs = []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond, 3 * time.Second}

// doRequest sends the wrapped request, retrying in place on a Retryable
// classification with fixed backoff (spec.md §4.4/§7) rather than rotating
// credentials -- a 5xx/timeout says nothing about the credential itself,
// so burning through the pool for it would just cool down healthy
// credentials for no reason.
func (d *Dispatcher) doRequest(ctx context.Context, url, token string, body []byte) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		respBody, err := d.doRequestOnce(ctx, url, token, body)
		if err == nil {
			return respBody, nil
		}

		ae := apierr.As(err)
		if !ae.Retryable || ae.Kind == apierr.KindRateLimit || attempt >= len(retryBackoffs) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, apierr.New(apierr.KindUpstream, 0, ctx.Err().Error(), false, nil)
		case <-time.After(retryBackoffs[attempt]):
		}
	}
}

func (d *Dispatcher) doRequestOnce(ctx context.Context, url, token string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Server("upstream: build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, apierr.New(apierr.KindUpstream, 502, fmt.Sprintf("upstream request failed: %v", err), true, nil)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.New(apierr.KindUpstream, 502, fmt.Sprintf("reading upstream response: %v", err), true, nil)
	}

	if classErr := Classify(resp.StatusCode, respBody); classErr != nil {
		return nil, classErr
	}
	return respBody, nil
}

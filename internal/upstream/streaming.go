package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relaymesh/aiproxy/internal/apierr"
	"github.com/relaymesh/aiproxy/internal/pool"
)

// Frame is one "data:" line of the upstream's SSE stream, still in Google's
// wire shape -- translating it into a dialect-specific client event is
// internal/dialect's job, keeping this package ignorant of client dialects
// the same way the teacher's sse_parser.go only knows Google's shape and
// leaves Anthropic-event construction to sse_streamer.go.
type Frame struct {
	Data []byte
}

// Stream opens a streaming request and pumps upstream SSE frames onto a
// channel. The returned channel is closed when the stream ends; a non-nil
// error from the error channel means the stream ended abnormally and any
// partial output already sent downstream should be treated as incomplete.
//
// Grounded on go-backend/internal/cloudcode/sse_streamer.go's
// bufio.Scanner-based "data:" line pump, generalized to stop at Google's
// shape (Frame) instead of producing Anthropic events directly.
func (d *Dispatcher) Stream(ctx context.Context, held *pool.Held, payload *Payload) (<-chan Frame, <-chan error, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, apierr.Server("upstream: marshal payload: %v", err)
	}

	family := held.Credential.Family
	url := d.endpoint(family, true)

	resp, err := d.streamConnect(ctx, url, held.AccessToken, body)
	if err != nil {
		return nil, nil, err
	}

	frames := make(chan Frame, 64)
	errs := make(chan error, 1)

	go func() {
		defer resp.Body.Close()
		defer close(frames)
		defer close(errs)

		scanner := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			frameData := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if frameData == "" || frameData == "[DONE]" {
				continue
			}
			select {
			case frames <- Frame{Data: []byte(frameData)}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- apierr.New(apierr.KindUpstream, 502, fmt.Sprintf("stream read error: %v", err), true, nil)
		}
	}()

	return frames, errs, nil
}

// streamConnect opens the streaming request, retrying the initial connect
// with the same fixed backoff doRequest uses (spec.md §4.4/§7) when the
// failure is Retryable -- a 5xx or network error establishing the
// connection gets the same in-place retry a non-streaming Send would, it
// just has to happen before the SSE pump goroutine starts rather than
// inside it. Once frames are already flowing, a mid-stream read error is
// surfaced on the error channel instead, matching the teacher's
// sse_streamer.go which never re-establishes a dropped stream mid-flight.
func (d *Dispatcher) streamConnect(ctx context.Context, url, token string, body []byte) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := d.streamConnectOnce(ctx, url, token, body)
		if err == nil {
			return resp, nil
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

func (d *Dispatcher) streamConnectOnce(ctx context.Context, url, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Server("upstream: build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, apierr.New(apierr.KindUpstream, 502, fmt.Sprintf("upstream stream request failed: %v", err), true, nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, Classify(resp.StatusCode, respBody)
	}
	return resp, nil
}

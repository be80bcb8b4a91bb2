package upstream

import (
	"testing"

	"github.com/relaymesh/aiproxy/internal/apierr"
)

func TestClassifySuccess(t *testing.T) {
	if err := Classify(200, nil); err != nil {
		t.Errorf("Classify(200) = %v, want nil", err)
	}
	if err := Classify(204, nil); err != nil {
		t.Errorf("Classify(204) = %v, want nil", err)
	}
}

func TestClassifyRateLimit(t *testing.T) {
	err := Classify(429, []byte(`{"error":{"message":"quota exceeded"}}`))
	if err == nil {
		t.Fatal("Classify(429) should return an error")
	}
	if err.Kind != apierr.KindRateLimit || !err.Retryable {
		t.Errorf("Classify(429) kind=%s retryable=%v, want rate_limit_error retryable", err.Kind, err.Retryable)
	}
}

func TestClassifyPermissionDenied(t *testing.T) {
	err := Classify(403, []byte(`{"error":{"message":"forbidden"}}`))
	if err == nil {
		t.Fatal("Classify(403) should return an error")
	}
	if err.Kind != apierr.KindPermission || err.Retryable {
		t.Errorf("Classify(403) kind=%s retryable=%v, want permission_error non-retryable", err.Kind, err.Retryable)
	}
	if err.Metadata["strike"] != true {
		t.Error("Classify(403) should mark strike=true in metadata")
	}
}

func TestClassifyAuthenticationOn401(t *testing.T) {
	err := Classify(401, []byte(`{"error":{"message":"invalid credentials"}}`))
	if err == nil || err.Kind != apierr.KindAuthentication || err.Retryable {
		t.Fatalf("Classify(401) = %+v, want non-retryable authentication_error", err)
	}
}

func TestClassifyInvalidGrantOn400(t *testing.T) {
	err := Classify(400, []byte(`{"error":{"message":"invalid_grant: token expired"}}`))
	if err == nil || err.Kind != apierr.KindAuthentication {
		t.Fatalf("Classify(400 invalid_grant) = %+v, want authentication_error", err)
	}
}

func TestClassifyOrdinary400IsNotAuthentication(t *testing.T) {
	err := Classify(400, []byte(`{"error":{"message":"malformed request body"}}`))
	if err == nil {
		t.Fatal("Classify(400) should still return an error")
	}
	if err.Kind == apierr.KindAuthentication {
		t.Error("a plain malformed-request 400 should not be classified as authentication_error")
	}
}

func TestClassifyServerErrorIsRetryable(t *testing.T) {
	err := Classify(503, []byte(`internal error`))
	if err == nil || err.Kind != apierr.KindUpstream || !err.Retryable {
		t.Fatalf("Classify(503) = %+v, want retryable upstream_error", err)
	}
}

func TestExtractMessageFallsBackToRawBody(t *testing.T) {
	err := Classify(500, []byte("plain text failure"))
	if err.Message != "plain text failure" {
		t.Errorf("Message = %q, want raw body passthrough", err.Message)
	}
}

func TestExtractMessageOnEmptyBody(t *testing.T) {
	err := Classify(500, nil)
	if err.Message == "" {
		t.Error("expected a non-empty fallback message for an empty body")
	}
}

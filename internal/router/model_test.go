package router

import "testing"

func TestIsV3Model(t *testing.T) {
	cases := map[string]bool{
		"gemini-3-pro":   true,
		"gemini-3-flash": true,
		"gemini-2.5-pro": false,
		"gpt-4o":         false,
	}
	for model, want := range cases {
		if got := isV3Model(model); got != want {
			t.Errorf("isV3Model(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestIsAntigravityModel(t *testing.T) {
	cases := map[string]bool{
		"antigravity/gemini-3-pro": true,
		"gemini-3-antigravity":     true,
		"gemini-3-pro":             false,
		"claude-3-opus":            false,
	}
	for model, want := range cases {
		if got := isAntigravityModel(model); got != want {
			t.Errorf("isAntigravityModel(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestStripModelHints(t *testing.T) {
	cases := []struct {
		model          string
		wantModel      string
		wantFakeStream bool
	}{
		{"gemini-3-pro", "gemini-3-pro", false},
		{"gemini-3-pro-[hint]", "gemini-3-pro", false},
		{"gemini-3-pro-假流", "gemini-3-pro", true},
		{"gemini-3-pro-真流", "gemini-3-pro", false},
		{"gemini-3-pro-[hint]-假流", "gemini-3-pro", false},
	}
	for _, c := range cases {
		model, fakeStream := stripModelHints(c.model)
		if model != c.wantModel || fakeStream != c.wantFakeStream {
			t.Errorf("stripModelHints(%q) = (%q, %v), want (%q, %v)", c.model, model, fakeStream, c.wantModel, c.wantFakeStream)
		}
	}
}

func TestNormalizeModelFallsBackToPathParam(t *testing.T) {
	model, stream := normalizeModel("", "gemini-3-pro", false, "/v1/models/gemini-3-pro/generateContent")
	if model != "gemini-3-pro" {
		t.Errorf("model = %q, want fallback to path param", model)
	}
	if stream {
		t.Error("stream should stay false for a non-streaming path")
	}
}

func TestNormalizeModelDetectsStreamingPath(t *testing.T) {
	_, stream := normalizeModel("gemini-3-pro", "", false, "/v1/models/gemini-3-pro/streamGenerateContent")
	if !stream {
		t.Error("streamGenerateContent path should force stream=true")
	}
}

func TestNormalizeModelFakeStreamHintForcesStream(t *testing.T) {
	model, stream := normalizeModel("gemini-3-pro-假流", "", false, "/v1/chat/completions")
	if model != "gemini-3-pro" {
		t.Errorf("model = %q, want hint stripped", model)
	}
	if !stream {
		t.Error("fake-stream hint should force stream=true")
	}
}

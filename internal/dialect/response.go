package dialect

import (
	"encoding/json"
	"fmt"
)

type googleResponse struct {
	Response *googleInnerResponse `json:"response,omitempty"`
	Candidates    []googleCandidate   `json:"candidates,omitempty"`
	UsageMetadata *googleUsage        `json:"usageMetadata,omitempty"`
}

type googleInnerResponse struct {
	Candidates    []googleCandidate `json:"candidates,omitempty"`
	UsageMetadata *googleUsage      `json:"usageMetadata,omitempty"`
}

type googleCandidate struct {
	Content      googleContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type googleContent struct {
	Parts []geminiPart `json:"parts"`
}

type googleUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// ParseGoogleResponse parses a non-streaming Cloud Code/Antigravity
// response body into the canonical response form. Grounded on the
// teacher's SSEResponse/SSECandidate/SSEContent/SSEPart shapes
// (internal/cloudcode/sse_parser.go), reused here for the non-streaming
// body since Google wraps both the same way (an outer "response" field,
// optionally present).
func ParseGoogleResponse(body []byte, model string) (*CanonicalResponse, error) {
	var resp googleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("dialect: parse upstream response: %w", err)
	}

	inner := resp.Response
	if inner == nil {
		inner = &googleInnerResponse{Candidates: resp.Candidates, UsageMetadata: resp.UsageMetadata}
	}
	if len(inner.Candidates) == 0 {
		return nil, fmt.Errorf("dialect: upstream response has no candidates")
	}

	candidate := inner.Candidates[0]
	out := &CanonicalResponse{Model: model, StopReason: mapGoogleFinishReason(candidate.FinishReason)}
	for _, p := range candidate.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			out.ToolCalls = append(out.ToolCalls, CanonicalToolCall{ID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Arguments: p.FunctionCall.Args})
		case p.Thought:
			out.Content = append(out.Content, CanonicalContent{Kind: "thinking", Text: p.Text, ThinkingSignature: p.ThoughtSignature})
		case p.Text != "":
			out.Content = append(out.Content, CanonicalContent{Kind: "text", Text: p.Text})
		}
	}
	if inner.UsageMetadata != nil {
		out.InputTokens = inner.UsageMetadata.PromptTokenCount
		out.OutputTokens = inner.UsageMetadata.CandidatesTokenCount
	}
	if len(out.ToolCalls) > 0 && out.StopReason == "" {
		out.StopReason = "tool_use"
	}
	return out, nil
}

func mapGoogleFinishReason(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return "max_tokens"
	case "STOP", "":
		return "end_turn"
	default:
		return "end_turn"
	}
}

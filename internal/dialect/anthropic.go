package dialect

import "encoding/json"

// anthropicRequest mirrors the subset of the Anthropic Messages API this
// proxy accepts.
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      json.RawMessage    `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	ToolChoice  interface{}        `json:"tool_choice,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	Thinking    *anthropicThinking `json:"thinking,omitempty"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicContentBlock struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	Source    *anthropicImageSource  `json:"source,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   string                 `json:"content,omitempty"`
	Signature string                 `json:"signature,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

// AnthropicToCanonical translates an Anthropic Messages API request into
// the canonical form. Grounded on the teacher's
// internal/format/content_converter.go ConvertContentToParts, which walks
// the same typed content-block union (text/image/tool_use/tool_result/
// thinking); here each block becomes a CanonicalContent/CanonicalToolCall
// instead of a GooglePart.
func AnthropicToCanonical(body []byte) (*CanonicalRequest, error) {
	var req anthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	canonical := &CanonicalRequest{
		Model:       req.Model,
		ToolChoice:  req.ToolChoice,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stop:        req.StopSequences,
		Stream:      req.Stream,
		System:      flattenAnthropicSystem(req.System),
	}
	if req.Thinking != nil && req.Thinking.Type == "enabled" {
		canonical.Thinking = &ThinkingConfig{Enabled: true, BudgetTokens: req.Thinking.BudgetTokens}
	}

	for _, t := range req.Tools {
		canonical.Tools = append(canonical.Tools, CanonicalTool{
			Name: t.Name, Description: t.Description, Parameters: t.InputSchema,
		})
	}

	for _, m := range req.Messages {
		msg := CanonicalMessage{Role: m.Role}

		var text string
		if json.Unmarshal(m.Content, &text) == nil {
			if text != "" {
				msg.Content = append(msg.Content, CanonicalContent{Kind: "text", Text: text})
			}
			canonical.Messages = append(canonical.Messages, msg)
			continue
		}

		var blocks []anthropicContentBlock
		if err := json.Unmarshal(m.Content, &blocks); err != nil {
			continue
		}
		for _, b := range blocks {
			switch b.Type {
			case "text":
				if b.Text != "" {
					msg.Content = append(msg.Content, CanonicalContent{Kind: "text", Text: b.Text})
				}
			case "thinking":
				msg.Content = append(msg.Content, CanonicalContent{Kind: "thinking", Text: b.Text, ThinkingSignature: b.Signature})
			case "image":
				if b.Source != nil {
					msg.Content = append(msg.Content, CanonicalContent{
						Kind: "image", ImageMediaType: b.Source.MediaType, ImageDataBase64: b.Source.Data,
					})
				}
			case "tool_use":
				msg.ToolCalls = append(msg.ToolCalls, CanonicalToolCall{ID: b.ID, Name: b.Name, Arguments: b.Input})
			case "tool_result":
				msg.ToolCallID = b.ToolUseID
				msg.Content = append(msg.Content, CanonicalContent{Kind: "tool_result", Text: b.Content, ToolResultID: b.ToolUseID})
			}
		}
		canonical.Messages = append(canonical.Messages, msg)
	}

	return canonical, nil
}

// flattenAnthropicSystem handles both the plain-string and typed-block
// forms of Anthropic's "system" field, mirroring the switch in the
// teacher's ConvertAnthropicToGoogle.
func flattenAnthropicSystem(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var blocks []anthropicContentBlock
	if json.Unmarshal(raw, &blocks) == nil {
		var out string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				if out != "" {
					out += "\n\n"
				}
				out += b.Text
			}
		}
		return out
	}
	return ""
}

// CanonicalToAnthropic renders a completed canonical response into an
// Anthropic Messages API response body.
func CanonicalToAnthropic(r *CanonicalResponse) map[string]interface{} {
	var blocks []map[string]interface{}
	for _, c := range r.Content {
		switch c.Kind {
		case "text":
			blocks = append(blocks, map[string]interface{}{"type": "text", "text": c.Text})
		case "thinking":
			blocks = append(blocks, map[string]interface{}{"type": "thinking", "thinking": c.Text, "signature": c.ThinkingSignature})
		}
	}
	for _, tc := range r.ToolCalls {
		blocks = append(blocks, map[string]interface{}{
			"type": "tool_use", "id": tc.ID, "name": tc.Name, "input": tc.Arguments,
		})
	}

	return map[string]interface{}{
		"id":            r.ID,
		"type":          "message",
		"role":          "assistant",
		"model":         r.Model,
		"content":       blocks,
		"stop_reason":   anthropicStopReason(r.StopReason),
		"usage": map[string]interface{}{
			"input_tokens":  r.InputTokens,
			"output_tokens": r.OutputTokens,
		},
	}
}

func anthropicStopReason(stopReason string) string {
	switch stopReason {
	case "tool_calls", "tool_use":
		return "tool_use"
	case "length", "max_tokens":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

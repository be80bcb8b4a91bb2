package dialect

import "encoding/json"

// openAIRequest mirrors the subset of OpenAI's chat-completions request
// shape this proxy accepts.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  interface{}     `json:"tool_choice,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description,omitempty"`
		Parameters  map[string]interface{} `json:"parameters,omitempty"`
	} `json:"function"`
}

// OpenAIToCanonical parses an OpenAI-shaped request body directly into the
// canonical form -- since the canonical form is OpenAI-shaped, this is the
// one adapter that is mostly field renaming rather than structural
// translation.
func OpenAIToCanonical(body []byte) (*CanonicalRequest, error) {
	var req openAIRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	canonical := &CanonicalRequest{
		Model:       req.Model,
		ToolChoice:  req.ToolChoice,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Stream:      req.Stream,
	}

	for _, t := range req.Tools {
		canonical.Tools = append(canonical.Tools, CanonicalTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	for _, m := range req.Messages {
		if m.Role == "system" {
			var text string
			_ = json.Unmarshal(m.Content, &text)
			if canonical.System != "" {
				canonical.System += "\n\n"
			}
			canonical.System += text
			continue
		}

		msg := CanonicalMessage{Role: m.Role, ToolCallID: m.ToolCallID}
		if len(m.Content) > 0 {
			var text string
			if json.Unmarshal(m.Content, &text) == nil && text != "" {
				msg.Content = append(msg.Content, CanonicalContent{Kind: "text", Text: text})
			}
		}
		for _, tc := range m.ToolCalls {
			var args map[string]interface{}
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			msg.ToolCalls = append(msg.ToolCalls, CanonicalToolCall{
				ID: tc.ID, Name: tc.Function.Name, Arguments: args,
			})
		}
		canonical.Messages = append(canonical.Messages, msg)
	}

	return canonical, nil
}

// CanonicalToOpenAI renders a completed canonical response into an OpenAI
// chat-completion response body.
func CanonicalToOpenAI(r *CanonicalResponse) map[string]interface{} {
	var text string
	for _, c := range r.Content {
		if c.Kind == "text" {
			text += c.Text
		}
	}

	message := map[string]interface{}{"role": "assistant", "content": text}
	if len(r.ToolCalls) > 0 {
		var calls []map[string]interface{}
		for _, tc := range r.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			calls = append(calls, map[string]interface{}{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]interface{}{
					"name":      tc.Name,
					"arguments": string(args),
				},
			})
		}
		message["tool_calls"] = calls
	}

	return map[string]interface{}{
		"id":      r.ID,
		"object":  "chat.completion",
		"model":   r.Model,
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       message,
			"finish_reason": openAIFinishReason(r.StopReason),
		}},
		"usage": map[string]interface{}{
			"prompt_tokens":     r.InputTokens,
			"completion_tokens": r.OutputTokens,
			"total_tokens":      r.InputTokens + r.OutputTokens,
		},
	}
}

func openAIFinishReason(stopReason string) string {
	switch stopReason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

package dialect

import "encoding/json"

type geminiRequest struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiContent           `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig  `json:"generationConfig,omitempty"`
	Tools             []geminiTool             `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                 `json:"text,omitempty"`
	Thought          bool                   `json:"thought,omitempty"`
	ThoughtSignature string                 `json:"thoughtSignature,omitempty"`
	FunctionCall     *geminiFunctionCall    `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResp    `json:"functionResponse,omitempty"`
	InlineData       *geminiInlineData      `json:"inlineData,omitempty"`
}

type geminiFunctionCall struct {
	ID   string                 `json:"id,omitempty"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type geminiFunctionResp struct {
	ID       string                 `json:"id,omitempty"`
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int                  `json:"maxOutputTokens,omitempty"`
	Temperature     *float64             `json:"temperature,omitempty"`
	TopP            *float64             `json:"topP,omitempty"`
	StopSequences   []string             `json:"stopSequences,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiThinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts,omitempty"`
	ThinkingBudget  int  `json:"thinkingBudget,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations,omitempty"`
}

type geminiFunctionDecl struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// GeminiToCanonical translates a Gemini generateContent request into the
// canonical form, adapting the teacher's Google-shape reading (it is the
// teacher's *output* shape, here it becomes an *input* shape to parse)
// from internal/format/request_converter.go's GoogleRequest.
func GeminiToCanonical(body []byte) (*CanonicalRequest, error) {
	var req geminiRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	canonical := &CanonicalRequest{}
	if req.SystemInstruction != nil {
		for _, p := range req.SystemInstruction.Parts {
			if p.Text != "" {
				if canonical.System != "" {
					canonical.System += "\n\n"
				}
				canonical.System += p.Text
			}
		}
	}
	if req.GenerationConfig != nil {
		canonical.MaxTokens = req.GenerationConfig.MaxOutputTokens
		canonical.Temperature = req.GenerationConfig.Temperature
		canonical.TopP = req.GenerationConfig.TopP
		canonical.Stop = req.GenerationConfig.StopSequences
		if tc := req.GenerationConfig.ThinkingConfig; tc != nil {
			canonical.Thinking = &ThinkingConfig{Enabled: tc.IncludeThoughts, BudgetTokens: tc.ThinkingBudget}
		}
	}
	for _, t := range req.Tools {
		for _, fd := range t.FunctionDeclarations {
			canonical.Tools = append(canonical.Tools, CanonicalTool{
				Name: fd.Name, Description: fd.Description, Parameters: fd.Parameters,
			})
		}
	}

	for _, c := range req.Contents {
		role := "user"
		if c.Role == "model" {
			role = "assistant"
		}
		msg := CanonicalMessage{Role: role}
		for _, p := range c.Parts {
			switch {
			case p.FunctionCall != nil:
				msg.ToolCalls = append(msg.ToolCalls, CanonicalToolCall{
					ID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Arguments: p.FunctionCall.Args,
				})
			case p.FunctionResponse != nil:
				msg.ToolCallID = p.FunctionResponse.ID
				resultText, _ := json.Marshal(p.FunctionResponse.Response)
				msg.Content = append(msg.Content, CanonicalContent{Kind: "tool_result", Text: string(resultText), ToolResultID: p.FunctionResponse.ID})
			case p.Thought:
				msg.Content = append(msg.Content, CanonicalContent{Kind: "thinking", Text: p.Text, ThinkingSignature: p.ThoughtSignature})
			case p.InlineData != nil:
				msg.Content = append(msg.Content, CanonicalContent{Kind: "image", ImageMediaType: p.InlineData.MimeType, ImageDataBase64: p.InlineData.Data})
			case p.Text != "":
				msg.Content = append(msg.Content, CanonicalContent{Kind: "text", Text: p.Text})
			}
		}
		canonical.Messages = append(canonical.Messages, msg)
	}

	return canonical, nil
}

// CanonicalToGeminiWire renders a canonical request into the Google wire
// shape the Upstream Dispatcher wraps in its Cloud Code/Antigravity
// payload envelope -- every credential family speaks this shape
// regardless of which client dialect originated the request, so this
// function, not a per-dialect one, is what upstream.BuildPayload calls.
func CanonicalToGeminiWire(c *CanonicalRequest) map[string]interface{} {
	req := geminiRequest{GenerationConfig: &geminiGenerationConfig{}}

	if c.System != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: c.System}}}
	}
	if c.MaxTokens > 0 {
		req.GenerationConfig.MaxOutputTokens = c.MaxTokens
	}
	req.GenerationConfig.Temperature = c.Temperature
	req.GenerationConfig.TopP = c.TopP
	req.GenerationConfig.StopSequences = c.Stop
	if c.Thinking != nil {
		req.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{
			IncludeThoughts: c.Thinking.Enabled, ThinkingBudget: c.Thinking.BudgetTokens,
		}
	}

	for _, t := range c.Tools {
		req.Tools = append(req.Tools, geminiTool{FunctionDeclarations: []geminiFunctionDecl{{
			Name: t.Name, Description: t.Description, Parameters: t.Parameters,
		}}})
	}

	for _, m := range c.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		content := geminiContent{Role: role}
		for _, part := range m.Content {
			switch part.Kind {
			case "text":
				content.Parts = append(content.Parts, geminiPart{Text: part.Text})
			case "thinking":
				content.Parts = append(content.Parts, geminiPart{Text: part.Text, Thought: true, ThoughtSignature: part.ThinkingSignature})
			case "image":
				content.Parts = append(content.Parts, geminiPart{InlineData: &geminiInlineData{MimeType: part.ImageMediaType, Data: part.ImageDataBase64}})
			case "tool_result":
				var response map[string]interface{}
				_ = json.Unmarshal([]byte(part.Text), &response)
				content.Parts = append(content.Parts, geminiPart{FunctionResponse: &geminiFunctionResp{ID: part.ToolResultID, Response: response}})
			}
		}
		for _, tc := range m.ToolCalls {
			content.Parts = append(content.Parts, geminiPart{FunctionCall: &geminiFunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Arguments}})
		}
		req.Contents = append(req.Contents, content)
	}

	data, _ := json.Marshal(req)
	var out map[string]interface{}
	_ = json.Unmarshal(data, &out)
	return out
}

// CanonicalToGemini renders a completed canonical response into a Gemini
// generateContent response body, for callers that spoke Gemini inbound.
func CanonicalToGemini(r *CanonicalResponse) map[string]interface{} {
	var parts []geminiPart
	for _, c := range r.Content {
		switch c.Kind {
		case "text":
			parts = append(parts, geminiPart{Text: c.Text})
		case "thinking":
			parts = append(parts, geminiPart{Text: c.Text, Thought: true, ThoughtSignature: c.ThinkingSignature})
		}
	}
	for _, tc := range r.ToolCalls {
		parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Arguments}})
	}

	return map[string]interface{}{
		"candidates": []map[string]interface{}{{
			"content":       map[string]interface{}{"role": "model", "parts": parts},
			"finishReason":  geminiFinishReason(r.StopReason),
		}},
		"usageMetadata": map[string]interface{}{
			"promptTokenCount":     r.InputTokens,
			"candidatesTokenCount": r.OutputTokens,
		},
	}
}

func geminiFinishReason(stopReason string) string {
	switch stopReason {
	case "max_tokens", "length":
		return "MAX_TOKENS"
	default:
		return "STOP"
	}
}

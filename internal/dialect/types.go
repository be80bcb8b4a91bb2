// Package dialect is the Dialect Adapters component (spec.md §2 Component
// C, §4.3): detects which of the three client API shapes (OpenAI, Gemini,
// Anthropic) a request uses, translates it into one canonical form, and
// translates upstream responses (streaming and not) back into the
// client's dialect.
//
// The canonical form here is OpenAI-shaped (messages/tools/tool_calls),
// which is the one deliberate structural break from the teacher: the
// teacher's internal/format/request_converter.go canonicalizes to
// Google's shape (contents/systemInstruction/generationConfig) because it
// only ever has to serve Anthropic clients against a Google upstream. This
// proxy serves three client dialects against the same Google upstream, and
// an OpenAI-shaped canonical form is what most third-party tooling in this
// space (LiteLLM, OpenRouter, this pack's own other_examples quota
// handlers) already treats as the lingua franca -- so translation work is
// symmetric (OpenAI is a no-op, Anthropic and Gemini each translate in one
// direction) rather than skewed toward whichever dialect happens to be the
// canonical one. The teacher's conversion *mechanics* (system-instruction
// flattening, content-part mapping, thinking-block handling) are kept and
// re-pointed at this shape in anthropic.go/gemini.go.
package dialect

// Dialect identifies which client API shape a request or response uses.
type Dialect string

const (
	DialectOpenAI    Dialect = "openai"
	DialectGemini    Dialect = "gemini"
	DialectAnthropic Dialect = "anthropic"
)

// CanonicalRequest is the OpenAI-shaped intermediate form every inbound
// request is translated into before being wrapped for the upstream.
type CanonicalRequest struct {
	Model       string              `json:"model"`
	Messages    []CanonicalMessage  `json:"messages"`
	System      string              `json:"system,omitempty"`
	Tools       []CanonicalTool     `json:"tools,omitempty"`
	ToolChoice  interface{}         `json:"tool_choice,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Stop        []string            `json:"stop,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
	Thinking    *ThinkingConfig     `json:"thinking,omitempty"`
}

// ThinkingConfig carries extended-thinking/reasoning knobs, named the way
// Anthropic's API names them since that is the dialect that introduced the
// concept to this pack's upstream; Gemini's camelCase equivalents are
// mapped onto it at the edges (gemini.go), matching the teacher's
// ThinkingConfig dual-cased struct (internal/format/request_converter.go)
// collapsed into a single canonical shape instead of carrying both
// namings through the pipeline.
type ThinkingConfig struct {
	Enabled bool `json:"enabled,omitempty"`
	BudgetTokens int `json:"budget_tokens,omitempty"`
}

// CanonicalMessage is one OpenAI-shaped chat message.
type CanonicalMessage struct {
	Role       string               `json:"role"`
	Content    []CanonicalContent   `json:"content"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	ToolCalls  []CanonicalToolCall  `json:"tool_calls,omitempty"`
}

// CanonicalContent is one content part of a message. Kind is one of
// "text", "image", "thinking", or "tool_result".
type CanonicalContent struct {
	Kind             string `json:"kind"`
	Text             string `json:"text,omitempty"`
	ImageMediaType   string `json:"image_media_type,omitempty"`
	ImageDataBase64  string `json:"image_data_base64,omitempty"`
	ThinkingSignature string `json:"thinking_signature,omitempty"`
	ToolResultID     string `json:"tool_result_id,omitempty"`
}

// CanonicalToolCall is a model-issued tool/function invocation.
type CanonicalToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// CanonicalTool is a tool/function declaration offered to the model.
type CanonicalTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// CanonicalResponse is the OpenAI-shaped intermediate form a completed
// (non-streaming) upstream response is normalized into before being
// rendered back into the caller's dialect.
type CanonicalResponse struct {
	ID           string             `json:"id"`
	Model        string             `json:"model"`
	Content      []CanonicalContent `json:"content"`
	ToolCalls    []CanonicalToolCall `json:"tool_calls,omitempty"`
	StopReason   string             `json:"stop_reason"`
	InputTokens  int                `json:"input_tokens"`
	OutputTokens int                `json:"output_tokens"`
}

package dialect

import (
	"encoding/json"
	"fmt"
)

// Event is one outbound SSE event: Name is empty for dialects (OpenAI,
// Gemini) that don't use named SSE events, non-empty for Anthropic's
// named-event stream (message_start, content_block_delta, ...).
type Event struct {
	Name string
	Data map[string]interface{}
}

// StreamState accumulates state across a single streamed response so each
// incoming upstream frame can be translated incrementally instead of
// buffering the whole response, the way the teacher's sse_streamer.go
// tracks messageID/blockIndex/currentBlockType across scanner.Scan()
// iterations.
type StreamState struct {
	dialect      Dialect
	messageID    string
	model        string
	startSent    bool
	blockIndex   int
	blockOpen    bool
	blockKind    string
	inputTokens  int
	outputTokens int
}

func NewStreamState(d Dialect, messageID, model string) *StreamState {
	return &StreamState{dialect: d, messageID: messageID, model: model, blockIndex: -1}
}

// OutputTokens returns the highest completion-token count observed across
// the frames ingested so far, used for usage accounting once the stream
// ends (spec.md §4.2's Antigravity tokens counter).
func (s *StreamState) OutputTokens() int { return s.outputTokens }

// Ingest translates one raw Google SSE frame (upstream.Frame.Data) into
// zero or more dialect-specific events. Grounded on
// go-backend/internal/cloudcode/sse_streamer.go's per-line state machine,
// generalized to emit events for all three dialects instead of only
// Anthropic's named-event stream.
func (s *StreamState) Ingest(frameData []byte) ([]Event, error) {
	var resp googleResponse
	if err := json.Unmarshal(frameData, &resp); err != nil {
		return nil, fmt.Errorf("dialect: parse stream frame: %w", err)
	}
	inner := resp.Response
	if inner == nil {
		inner = &googleInnerResponse{Candidates: resp.Candidates, UsageMetadata: resp.UsageMetadata}
	}
	if inner.UsageMetadata != nil {
		s.inputTokens = max(s.inputTokens, inner.UsageMetadata.PromptTokenCount)
		s.outputTokens = max(s.outputTokens, inner.UsageMetadata.CandidatesTokenCount)
	}
	if len(inner.Candidates) == 0 {
		return nil, nil
	}

	var events []Event
	emit := func(e Event) {
		if e.Data != nil {
			events = append(events, e)
		}
	}

	if !s.startSent {
		emit(s.startEvent())
		s.startSent = true
	}

	candidate := inner.Candidates[0]
	for _, p := range candidate.Content.Parts {
		kind, payload := classifyPart(p)
		if kind == "" {
			continue
		}
		if kind != s.blockKind {
			if s.blockOpen {
				emit(s.stopBlockEvent())
			}
			s.blockIndex++
			s.blockOpen = true
			s.blockKind = kind
			emit(s.startBlockEvent(kind, payload))
		}
		emit(s.deltaEvent(kind, payload))
	}

	if candidate.FinishReason != "" {
		if s.blockOpen {
			emit(s.stopBlockEvent())
			s.blockOpen = false
		}
		emit(s.finalEvent(mapGoogleFinishReason(candidate.FinishReason)))
	}

	return events, nil
}

type partPayload struct {
	text      string
	signature string
	toolID    string
	toolName  string
	toolArgs  map[string]interface{}
}

func classifyPart(p geminiPart) (string, partPayload) {
	switch {
	case p.FunctionCall != nil:
		return "tool_use", partPayload{toolID: p.FunctionCall.ID, toolName: p.FunctionCall.Name, toolArgs: p.FunctionCall.Args}
	case p.Thought:
		return "thinking", partPayload{text: p.Text, signature: p.ThoughtSignature}
	case p.Text != "":
		return "text", partPayload{text: p.Text}
	default:
		return "", partPayload{}
	}
}

func (s *StreamState) startEvent() Event {
	switch s.dialect {
	case DialectAnthropic:
		return Event{Name: "message_start", Data: map[string]interface{}{
			"type": "message_start",
			"message": map[string]interface{}{
				"id": s.messageID, "type": "message", "role": "assistant", "model": s.model,
				"content": []interface{}{}, "usage": map[string]interface{}{"input_tokens": 0, "output_tokens": 0},
			},
		}}
	default:
		return Event{Data: map[string]interface{}{"id": s.messageID, "model": s.model, "object": "chat.completion.chunk"}}
	}
}

func (s *StreamState) startBlockEvent(kind string, p partPayload) Event {
	if s.dialect != DialectAnthropic {
		return Event{} // OpenAI/Gemini deltas carry their own shape, no separate open event
	}
	block := map[string]interface{}{}
	switch kind {
	case "text":
		block = map[string]interface{}{"type": "text", "text": ""}
	case "thinking":
		block = map[string]interface{}{"type": "thinking", "thinking": ""}
	case "tool_use":
		block = map[string]interface{}{"type": "tool_use", "id": p.toolID, "name": p.toolName, "input": map[string]interface{}{}}
	}
	return Event{Name: "content_block_start", Data: map[string]interface{}{
		"type": "content_block_start", "index": s.blockIndex, "content_block": block,
	}}
}

func (s *StreamState) deltaEvent(kind string, p partPayload) Event {
	switch s.dialect {
	case DialectAnthropic:
		var delta map[string]interface{}
		switch kind {
		case "text":
			delta = map[string]interface{}{"type": "text_delta", "text": p.text}
		case "thinking":
			delta = map[string]interface{}{"type": "thinking_delta", "thinking": p.text}
		case "tool_use":
			args, _ := json.Marshal(p.toolArgs)
			delta = map[string]interface{}{"type": "input_json_delta", "partial_json": string(args)}
		}
		return Event{Name: "content_block_delta", Data: map[string]interface{}{
			"type": "content_block_delta", "index": s.blockIndex, "delta": delta,
		}}
	case DialectGemini:
		return Event{Data: map[string]interface{}{
			"candidates": []map[string]interface{}{{"content": map[string]interface{}{"role": "model", "parts": []map[string]interface{}{{"text": p.text}}}}},
		}}
	default:
		return Event{Data: map[string]interface{}{
			"id": s.messageID, "object": "chat.completion.chunk",
			"choices": []map[string]interface{}{{"index": 0, "delta": map[string]interface{}{"content": p.text}}},
		}}
	}
}

func (s *StreamState) stopBlockEvent() Event {
	if s.dialect != DialectAnthropic {
		return Event{}
	}
	return Event{Name: "content_block_stop", Data: map[string]interface{}{"type": "content_block_stop", "index": s.blockIndex}}
}

func (s *StreamState) finalEvent(stopReason string) Event {
	switch s.dialect {
	case DialectAnthropic:
		return Event{Name: "message_delta", Data: map[string]interface{}{
			"type": "message_delta",
			"delta": map[string]interface{}{"stop_reason": anthropicStopReason(stopReason)},
			"usage": map[string]interface{}{"output_tokens": s.outputTokens},
		}}
	default:
		return Event{Data: map[string]interface{}{
			"id": s.messageID, "object": "chat.completion.chunk",
			"choices": []map[string]interface{}{{"index": 0, "delta": map[string]interface{}{}, "finish_reason": openAIFinishReason(stopReason)}},
		}}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

package dialect

import "encoding/json"

// Detect inspects a raw inbound request body and reports which dialect it
// was authored in, per spec.md §4.3's heuristics:
//
//	Gemini:     has "contents" array, or "systemInstruction", or "generationConfig"
//	Anthropic:  has "messages" array paired with a top-level "system" field,
//	            or messages whose content uses typed parts ({"type":"text",...})
//	otherwise:  OpenAI
//
// Detection only needs to look at the shape, not fully parse it, so this
// unmarshals into a loosely typed map the way the teacher's
// request_converter.go reads dynamic JSON fields before committing to a
// typed struct.
func Detect(body []byte) Dialect {
	var probe map[string]interface{}
	if err := json.Unmarshal(body, &probe); err != nil {
		return DialectOpenAI
	}

	if _, ok := probe["contents"]; ok {
		return DialectGemini
	}
	if _, ok := probe["systemInstruction"]; ok {
		return DialectGemini
	}
	if _, ok := probe["generationConfig"]; ok {
		return DialectGemini
	}

	messages, hasMessages := probe["messages"].([]interface{})
	if hasMessages {
		if _, hasSystem := probe["system"]; hasSystem {
			return DialectAnthropic
		}
		if messagesUseTypedParts(messages) {
			return DialectAnthropic
		}
	}

	return DialectOpenAI
}

// messagesUseTypedParts reports whether any message's content is an array
// of {"type": ...} objects rather than a plain string -- Anthropic's
// content-block shape, which OpenAI's chat messages never use.
func messagesUseTypedParts(messages []interface{}) bool {
	for _, m := range messages {
		msgMap, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		parts, ok := msgMap["content"].([]interface{})
		if !ok {
			continue
		}
		for _, p := range parts {
			if partMap, ok := p.(map[string]interface{}); ok {
				if _, hasType := partMap["type"]; hasType {
					return true
				}
			}
		}
	}
	return false
}

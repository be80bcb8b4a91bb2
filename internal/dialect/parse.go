package dialect

import "fmt"

// ParseRequest detects the dialect of body and translates it into the
// canonical form, returning the detected dialect alongside so the caller
// can render the response back in the same shape.
func ParseRequest(body []byte) (Dialect, *CanonicalRequest, error) {
	d := Detect(body)
	var (
		canonical *CanonicalRequest
		err       error
	)
	switch d {
	case DialectGemini:
		canonical, err = GeminiToCanonical(body)
	case DialectAnthropic:
		canonical, err = AnthropicToCanonical(body)
	default:
		d = DialectOpenAI
		canonical, err = OpenAIToCanonical(body)
	}
	if err != nil {
		return d, nil, fmt.Errorf("dialect: parse %s request: %w", d, err)
	}
	return d, canonical, nil
}

// RenderResponse renders a completed canonical response back into d's
// wire shape.
func RenderResponse(d Dialect, r *CanonicalResponse) map[string]interface{} {
	switch d {
	case DialectGemini:
		return CanonicalToGemini(r)
	case DialectAnthropic:
		return CanonicalToAnthropic(r)
	default:
		return CanonicalToOpenAI(r)
	}
}

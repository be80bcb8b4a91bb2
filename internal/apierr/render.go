package apierr

// RenderOpenAI formats an *Error into the OpenAI-style error envelope.
func RenderOpenAI(e *Error) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"message": e.Message,
			"type":    string(e.Kind),
		},
	}
}

// RenderAnthropic formats an *Error into the Anthropic error envelope.
func RenderAnthropic(e *Error) map[string]interface{} {
	return map[string]interface{}{
		"type": "error",
		"error": map[string]interface{}{
			"type":    anthropicErrorType(e.Kind),
			"message": e.Message,
		},
	}
}

func anthropicErrorType(k Kind) string {
	switch k {
	case KindAuthentication:
		return "authentication_error"
	case KindPermission:
		return "permission_error"
	case KindRateLimit:
		return "rate_limit_error"
	case KindQuotaExceeded:
		return "invalid_request_error"
	case KindUpstream:
		return "api_error"
	default:
		return "api_error"
	}
}

// RenderGemini formats an *Error into the Gemini/Google error envelope.
func RenderGemini(e *Error) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.HTTPStatus,
			"message": e.Message,
			"status":  geminiStatus(e.Kind),
		},
	}
}

func geminiStatus(k Kind) string {
	switch k {
	case KindAuthentication:
		return "UNAUTHENTICATED"
	case KindPermission:
		return "PERMISSION_DENIED"
	case KindRateLimit:
		return "RESOURCE_EXHAUSTED"
	case KindQuotaExceeded:
		return "RESOURCE_EXHAUSTED"
	case KindUpstream:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

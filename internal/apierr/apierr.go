// Package apierr provides the single result-carrying error type used across
// the proxy.
//
// This is the redesign the Design Notes (spec.md §9) call for in place of
// the teacher's exception-carrying status codes: the teacher's
// go-backend/internal/errors package defines one struct per error family
// (RateLimitError, AuthError, NoAccountsError, ApiError, ...) each embedding
// *AntigravityError and each hand-rolling its own HTTP status mapping. Here
// that family collapses into one *Error value carrying {Kind, HTTPStatus,
// Message, Retryable, Metadata}, classified in exactly one place
// (HTTPStatusFor is no longer a type switch scattered per caller -- it is
// baked into the constructor).
package apierr

import "fmt"

// Kind enumerates the error taxonomy surfaced to clients (spec.md §7).
type Kind string

const (
	KindAuthentication Kind = "authentication_error"
	KindPermission     Kind = "permission_error"
	KindRateLimit      Kind = "rate_limit_error"
	KindQuotaExceeded  Kind = "quota_exceeded"
	KindUpstream       Kind = "upstream_error"
	KindServer         Kind = "server_error"
)

var defaultStatus = map[Kind]int{
	KindAuthentication: 401,
	KindPermission:     403,
	KindRateLimit:      429,
	KindQuotaExceeded:  402,
	KindUpstream:       502,
	KindServer:         500,
}

// Error is the single result-carrying error type threaded through the
// Request Router, Credential Pool Engine, Quota Governor, and Upstream
// Dispatcher.
type Error struct {
	Kind       Kind
	HTTPStatus int
	Message    string
	Retryable  bool
	Metadata   map[string]interface{}
}

func (e *Error) Error() string {
	return e.Message
}

// New builds an *Error, defaulting HTTPStatus from Kind when status is 0.
func New(kind Kind, status int, message string, retryable bool, metadata map[string]interface{}) *Error {
	if status == 0 {
		status = defaultStatus[kind]
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return &Error{Kind: kind, HTTPStatus: status, Message: message, Retryable: retryable, Metadata: metadata}
}

func Authentication(format string, args ...interface{}) *Error {
	return New(KindAuthentication, 0, fmt.Sprintf(format, args...), false, nil)
}

func Permission(format string, args ...interface{}) *Error {
	return New(KindPermission, 0, fmt.Sprintf(format, args...), false, nil)
}

func RateLimited(format string, args ...interface{}) *Error {
	return New(KindRateLimit, 0, fmt.Sprintf(format, args...), true, nil)
}

func QuotaExceeded(format string, args ...interface{}) *Error {
	return New(KindQuotaExceeded, 0, fmt.Sprintf(format, args...), false, nil)
}

func Upstream(status int, format string, args ...interface{}) *Error {
	return New(KindUpstream, 502, fmt.Sprintf(format, args...), status >= 500, map[string]interface{}{"upstreamStatus": status})
}

func Server(format string, args ...interface{}) *Error {
	return New(KindServer, 0, fmt.Sprintf(format, args...), false, nil)
}

// As extracts an *Error from a generic error, wrapping it as a server_error
// if it is not already one -- the single classification point the teacher's
// scattered type-switches (IsRateLimitError, IsAuthError, ...) used to be.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		return ae
	}
	return Server("%s", err.Error())
}

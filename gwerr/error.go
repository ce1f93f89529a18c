// Package gwerr defines the gateway's provider error taxonomy: a tagged
// variant of upstream failure kinds, total classification into fallback
// error classes, and the OpenAI-compatible error envelope encoding.
package gwerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the tagged variant discriminant for ProviderError (spec §3).
type Kind string

const (
	KindAuthentication       Kind = "authentication"
	KindRateLimit            Kind = "rate_limit"
	KindInvalidRequest       Kind = "invalid_request"
	KindModelNotFound        Kind = "model_not_found"
	KindContextLenExceeded   Kind = "context_length_exceeded"
	KindContentFiltered      Kind = "content_filtered"
	KindServiceUnavailable   Kind = "service_unavailable"
	KindTimeout              Kind = "timeout"
	KindNetwork              Kind = "network"
	KindResponseParsing      Kind = "response_parsing"
	KindTokenLimitExceeded   Kind = "token_limit_exceeded"
	KindAPI                  Kind = "api"
	KindInternal             Kind = "internal"
)

// httpStatusByKind mirrors spec §7's taxonomy table.
var httpStatusByKind = map[Kind]int{
	KindAuthentication:     401,
	KindInvalidRequest:     400,
	KindModelNotFound:      404,
	KindContextLenExceeded: 400,
	KindContentFiltered:    400,
	KindRateLimit:          429,
	KindTimeout:            504,
	KindNetwork:            502,
	KindServiceUnavailable: 503,
	KindResponseParsing:    502,
	KindInternal:           500,
}

// Error is the concrete ProviderError: a single struct carrying a Kind
// discriminant plus the fields relevant to that variant. Unused fields for
// a given Kind are zero. This mirrors the teacher's types.Error shape
// (code/message/http/retryable/provider/cause) extended with the
// variant-specific payload spec §3 requires.
type Error struct {
	Kind       Kind
	Message    string
	Provider   string
	HTTPStatus int
	Cause      error

	// RateLimit
	RetryAfter time.Duration
	RPMLimit   int
	TPMLimit   int

	// ContextLengthExceeded
	MaxContext    int
	ActualContext int

	// ContentFiltered
	Reason           string
	FilterRetryable  bool

	// Api (opaque passthrough)
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Provider, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable is total over Kind, per spec §3's `is_retryable()` contract.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimit, KindServiceUnavailable, KindTimeout, KindNetwork, KindContextLenExceeded:
		return true
	case KindContentFiltered:
		return e.FilterRetryable
	case KindAPI:
		return e.StatusCode >= 500
	default:
		return false
	}
}

// RetryDelayHint is total over Kind, per spec §3's `retry_delay_hint()`.
func (e *Error) RetryDelayHint() time.Duration {
	switch e.Kind {
	case KindRateLimit:
		if e.RetryAfter > 0 {
			return e.RetryAfter
		}
		return time.Second
	case KindServiceUnavailable, KindNetwork, KindTimeout:
		return 500 * time.Millisecond
	default:
		return 0
	}
}

// HTTPStatusCode resolves the response status, preferring an explicit
// override (set by adapters that parsed a provider status code directly)
// over the taxonomy default.
func (e *Error) HTTPStatusCode() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	if s, ok := httpStatusByKind[e.Kind]; ok {
		return s
	}
	return 500
}

func New(kind Kind, provider, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message}
}

func (e *Error) WithCause(cause error) *Error   { e.Cause = cause; return e }
func (e *Error) WithHTTPStatus(s int) *Error    { e.HTTPStatus = s; return e }

// As extracts a *Error from err, following the standard errors.As protocol.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.IsRetryable()
	}
	return false
}

// FallbackClass is the error-class discriminant the FallbackController
// keys its candidate lookup on (spec §4.7).
type FallbackClass string

const (
	ClassGeneral       FallbackClass = "general"
	ClassContextWindow FallbackClass = "context_window"
	ClassContentPolicy FallbackClass = "content_policy"
	ClassRateLimit     FallbackClass = "rate_limit"
)

// Classify implements spec §4.7's classification rules. The second return
// value is false when the error is non-retryable and must propagate with
// no fallback attempt.
func Classify(err *Error) (FallbackClass, bool) {
	switch err.Kind {
	case KindContextLenExceeded:
		return ClassContextWindow, true
	case KindContentFiltered:
		if !err.FilterRetryable {
			return ClassContentPolicy, true
		}
		return "", false
	case KindRateLimit:
		return ClassRateLimit, true
	}
	if err.IsRetryable() {
		return ClassGeneral, true
	}
	return "", false
}

// Envelope is the OpenAI-compatible error payload shape (spec §7).
type Envelope struct {
	Error EnvelopeBody `json:"error"`
}

type EnvelopeBody struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Code    *string `json:"code,omitempty"`
	Param   *string `json:"param,omitempty"`
}

// ToEnvelope renders the OpenAI-compatible error body for a client response.
func (e *Error) ToEnvelope() Envelope {
	code := string(e.Kind)
	return Envelope{Error: EnvelopeBody{
		Message: e.Message,
		Type:    string(e.Kind),
		Code:    &code,
	}}
}

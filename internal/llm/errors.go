package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies outbound model failures.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindAuth           Kind = "auth"
	KindRateLimit      Kind = "rate_limit"
	KindUnavailable    Kind = "unavailable"
	KindEmpty          Kind = "empty"
	KindUnknown        Kind = "unknown"
)

// Error is the typed error every Generator returns on failure.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether retrying the same request may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindUnavailable
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

func newError(provider string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// kindForStatus maps an HTTP status from a provider to a Kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindUnavailable
	case status >= 400:
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

// kindForTransport classifies errors that happen before a status is known.
func kindForTransport(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	return KindUnavailable
}

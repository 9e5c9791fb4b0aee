package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error classes. Every adapter error wraps exactly one of them.
var (
	ErrTimeout     = errors.New("model invocation timed out")
	ErrRateLimited = errors.New("model provider rate limited the request")
	ErrProvider    = errors.New("model provider error")
)

// Error is a classified adapter failure
type Error struct {
	Kind       error
	Provider   string
	StatusCode int
	// RetryAfter is the provider's requested wait, when it sent one.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the class sentinel and the cause
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether err may succeed on another attempt. Timeouts and
// rate limits are retryable; provider errors only when the request is
// idempotent.
func Retryable(err error, idempotent bool) bool {
	switch {
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrTimeout):
		return true
	case errors.Is(err, ErrProvider):
		return idempotent
	default:
		return false
	}
}

// classify wraps an unclassified transport error
func classify(provider string, err error) error {
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, Provider: provider, Err: err}
	}
	return &Error{Kind: ErrProvider, Provider: provider, Err: err}
}

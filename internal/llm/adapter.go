// Package llm is the model invocation boundary: one interface over every text
// completion backend, with errors classified for retry decisions.
package llm

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single invocation when the caller sets none.
const DefaultTimeout = 60 * time.Second

// Options tune one invocation
type Options struct {
	// Timeout bounds the call; zero means DefaultTimeout.
	Timeout time.Duration
	// Temperature is passed through to the backend.
	Temperature float64
	// FormatHint describes the expected output schema; "json" also switches
	// backends into their JSON response mode.
	FormatHint string
	// System is an optional system prompt.
	System string
	// Idempotent marks a request safe to repeat after a ProviderError.
	Idempotent bool
}

// Adapter turns a prompt into text
type Adapter interface {
	Invoke(ctx context.Context, prompt string, opts Options) (string, error)
}

// AdapterFunc lets a plain function act as an Adapter
type AdapterFunc func(ctx context.Context, prompt string, opts Options) (string, error)

// Invoke calls f
func (f AdapterFunc) Invoke(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}

// withTimeout derives the invocation context from opts
func withTimeout(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

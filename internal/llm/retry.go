package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// maxBackoff caps the wait between attempts
const maxBackoff = 30 * time.Second

// RetryPolicy controls WithRetry
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// retrying wraps an Adapter with classified retries
type retrying struct {
	next   Adapter
	policy RetryPolicy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry retries rate-limited and timed-out invocations with exponential
// backoff. Provider errors are retried only for idempotent requests.
func WithRetry(next Adapter, policy RetryPolicy, logger *zap.Logger) Adapter {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retrying{next: next, policy: policy, logger: logger, sleep: sleepContext}
}

func (r *retrying) Invoke(ctx context.Context, prompt string, opts Options) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		out, err := r.next.Invoke(ctx, prompt, opts)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("model invocation succeeded after retry", zap.Int("attempt", attempt))
			}
			return out, nil
		}
		lastErr = err

		if !Retryable(err, opts.Idempotent) || attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.policy.InitialDelay * time.Duration(1<<uint(attempt-1))
		var le *Error
		if errors.As(err, &le) && le.RetryAfter > delay {
			delay = le.RetryAfter
		}
		if delay > maxBackoff {
			delay = maxBackoff
		}

		r.logger.Warn("model invocation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := r.sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("context cancelled during retry: %w", err)
		}
	}

	return "", lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestRetry(t *testing.T, next Adapter, attempts int) (*retrying, *[]time.Duration) {
	t.Helper()
	var delays []time.Duration
	r := WithRetry(next, RetryPolicy{MaxAttempts: attempts, InitialDelay: time.Second}, zaptest.NewLogger(t)).(*retrying)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return r, &delays
}

func TestWithRetry_RetriesRateLimitWithBackoff(t *testing.T) {
	stub := NewStub().On("prompt",
		Fail(&Error{Kind: ErrRateLimited}),
		Fail(&Error{Kind: ErrRateLimited, RetryAfter: 10 * time.Second}),
		Reply("ok"),
	)
	r, delays := newTestRetry(t, stub, 3)

	out, err := r.Invoke(context.Background(), "prompt", Options{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != "ok" {
		t.Errorf("Invoke() = %q", out)
	}

	want := []time.Duration{time.Second, 10 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], want[i])
		}
	}
}

func TestWithRetry_ProviderErrorNotRetriedUnlessIdempotent(t *testing.T) {
	stub := NewStub().On("prompt", Fail(&Error{Kind: ErrProvider}), Reply("ok"))
	r, _ := newTestRetry(t, stub, 3)

	if _, err := r.Invoke(context.Background(), "prompt", Options{}); !errors.Is(err, ErrProvider) {
		t.Fatalf("error = %v, want ErrProvider", err)
	}
	if n := stub.CallCount("prompt"); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}

	out, err := r.Invoke(context.Background(), "prompt", Options{Idempotent: true})
	if err != nil || out != "ok" {
		t.Errorf("idempotent Invoke() = %q, %v", out, err)
	}
}

func TestWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	stub := NewStub().On("prompt", Fail(&Error{Kind: ErrTimeout}))
	r, delays := newTestRetry(t, stub, 3)

	_, err := r.Invoke(context.Background(), "prompt", Options{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if n := stub.CallCount("prompt"); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
	if len(*delays) != 2 {
		t.Errorf("delays = %v, want 2 waits", *delays)
	}
}

func TestWithRetry_BackoffCapped(t *testing.T) {
	stub := NewStub().On("prompt", Fail(&Error{Kind: ErrRateLimited, RetryAfter: time.Hour}), Reply("ok"))
	r, delays := newTestRetry(t, stub, 2)

	if _, err := r.Invoke(context.Background(), "prompt", Options{}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if (*delays)[0] != maxBackoff {
		t.Errorf("delay = %v, want %v", (*delays)[0], maxBackoff)
	}
}

func TestStub_SequenceAndFallback(t *testing.T) {
	stub := NewStub().On("alpha", Reply("one"), Reply("two"))

	for _, want := range []string{"one", "two", "two"} {
		got, err := stub.Invoke(context.Background(), "alpha task", Options{})
		if err != nil || got != want {
			t.Errorf("Invoke() = %q, %v; want %q", got, err, want)
		}
	}

	if _, err := stub.Invoke(context.Background(), "beta task", Options{}); !errors.Is(err, ErrProvider) {
		t.Errorf("unmatched prompt error = %v, want ErrProvider", err)
	}
	if len(stub.Calls()) != 4 {
		t.Errorf("Calls() = %d, want 4", len(stub.Calls()))
	}
}

func TestOffline_AlwaysFails(t *testing.T) {
	_, err := Offline{}.Invoke(context.Background(), "anything", Options{})
	if !errors.Is(err, ErrProvider) {
		t.Errorf("error = %v, want ErrProvider", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ollama", Config{Provider: "ollama"}, false},
		{"lmstudio", Config{Provider: "lmstudio"}, false},
		{"localai", Config{Provider: "localai"}, false},
		{"openai with key", Config{Provider: "openai", APIKey: "k"}, false},
		{"openai without key", Config{Provider: "openai"}, true},
		{"raw without url", Config{Provider: "raw"}, true},
		{"offline", Config{Provider: "offline"}, false},
		{"unknown", Config{Provider: "carrier-pigeon"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewFromConfig(tt.cfg, zaptest.NewLogger(t))
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && a == nil {
				t.Error("NewFromConfig() returned nil adapter")
			}
		})
	}
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, format APIFormat, handler http.HandlerFunc) *GenericProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGenericProvider(GenericConfig{
		Name:    "test",
		Model:   "test-model",
		BaseURL: srv.URL,
		APIKey:  "secret",
		Format:  format,
	}, zap.NewNop())
}

func TestGenericProvider_Invoke_OpenAI(t *testing.T) {
	var got map[string]interface{}
	p := newTestProvider(t, FormatOpenAI, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	})

	out, err := p.Invoke(context.Background(), "say hello", Options{FormatHint: "json", System: "be brief"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != "hello" {
		t.Errorf("Invoke() = %q, want hello", out)
	}

	messages, ok := got["messages"].([]interface{})
	if !ok || len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", got["messages"])
	}
	if _, ok := got["response_format"]; !ok {
		t.Error("json format hint should set response_format")
	}
}

func TestGenericProvider_Invoke_Ollama(t *testing.T) {
	p := newTestProvider(t, FormatOllama, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s, want /api/chat", r.URL.Path)
		}
		w.Write([]byte(`{"message":{"content":"from ollama"}}`))
	})

	out, err := p.Invoke(context.Background(), "prompt", Options{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != "from ollama" {
		t.Errorf("Invoke() = %q", out)
	}
}

func TestGenericProvider_Invoke_RawPlainText(t *testing.T) {
	p := newTestProvider(t, FormatRaw, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("just text"))
	})

	out, err := p.Invoke(context.Background(), "prompt", Options{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != "just text" {
		t.Errorf("Invoke() = %q", out)
	}
}

func TestGenericProvider_Invoke_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		wantKind   error
		wantDelay  time.Duration
	}{
		{"rate limited", http.StatusTooManyRequests, "3", ErrRateLimited, 3 * time.Second},
		{"gateway timeout", http.StatusGatewayTimeout, "", ErrTimeout, 0},
		{"server error", http.StatusInternalServerError, "", ErrProvider, 0},
		{"unauthorized", http.StatusUnauthorized, "", ErrProvider, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, FormatOpenAI, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			})

			_, err := p.Invoke(context.Background(), "prompt", Options{})
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("error = %v, want %v", err, tt.wantKind)
			}
			var le *Error
			if !errors.As(err, &le) {
				t.Fatalf("error is not *Error: %T", err)
			}
			if le.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", le.StatusCode, tt.status)
			}
			if le.RetryAfter != tt.wantDelay {
				t.Errorf("RetryAfter = %v, want %v", le.RetryAfter, tt.wantDelay)
			}
		})
	}
}

func TestGenericProvider_Invoke_Timeout(t *testing.T) {
	release := make(chan struct{})
	p := newTestProvider(t, FormatOpenAI, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := p.Invoke(context.Background(), "prompt", Options{Timeout: 50 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		idempotent bool
		want       bool
	}{
		{"rate limited", &Error{Kind: ErrRateLimited}, false, true},
		{"timeout", &Error{Kind: ErrTimeout}, false, true},
		{"provider not idempotent", &Error{Kind: ErrProvider}, false, false},
		{"provider idempotent", &Error{Kind: ErrProvider}, true, true},
		{"unclassified", errors.New("boom"), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err, tt.idempotent); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("abc", 5); got != "abc" {
		t.Errorf("TruncateString short = %q", got)
	}
	if got := TruncateString("abcdef", 3); got != "abc..." {
		t.Errorf("TruncateString long = %q", got)
	}
}

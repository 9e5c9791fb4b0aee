package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// StubResponse is one scripted reply
type StubResponse struct {
	Text string
	Err  error
}

// Reply scripts a successful completion
func Reply(text string) StubResponse { return StubResponse{Text: text} }

// Fail scripts a failed invocation
func Fail(err error) StubResponse { return StubResponse{Err: err} }

// StubCall records one invocation seen by a Stub
type StubCall struct {
	Prompt  string
	Options Options
}

type stubRule struct {
	match     string
	responses []StubResponse
	next      int
}

// Stub is a deterministic Adapter. Rules match on a prompt substring and play
// their responses in order, repeating the last one once exhausted. Prompts
// that match no rule fail with ErrProvider.
type Stub struct {
	mu    sync.Mutex
	rules []*stubRule
	calls []StubCall
}

// NewStub creates an empty stub
func NewStub() *Stub {
	return &Stub{}
}

// On adds a rule for prompts containing match. Earlier rules win.
func (s *Stub) On(match string, responses ...StubResponse) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &stubRule{match: match, responses: responses})
	return s
}

// Invoke plays the next scripted response for the first matching rule
func (s *Stub) Invoke(ctx context.Context, prompt string, opts Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, StubCall{Prompt: prompt, Options: opts})

	if err := ctx.Err(); err != nil {
		return "", &Error{Kind: ErrTimeout, Provider: "stub", Err: err}
	}

	for _, r := range s.rules {
		if !strings.Contains(prompt, r.match) || len(r.responses) == 0 {
			continue
		}
		resp := r.responses[r.next]
		if r.next < len(r.responses)-1 {
			r.next++
		}
		return resp.Text, resp.Err
	}

	return "", &Error{Kind: ErrProvider, Provider: "stub", Err: errors.New("no scripted response")}
}

// Calls returns every invocation so far
func (s *Stub) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StubCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount counts invocations whose prompt contains match
func (s *Stub) CallCount(match string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.Contains(c.Prompt, match) {
			n++
		}
	}
	return n
}

// Offline is an Adapter with no backend. Every call fails with ErrProvider,
// which leaves compilation to the knowledge base alone.
type Offline struct{}

// Invoke always fails
func (Offline) Invoke(context.Context, string, Options) (string, error) {
	return "", &Error{Kind: ErrProvider, Provider: "offline", Err: errors.New("no model provider configured")}
}

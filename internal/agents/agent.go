// Package agents drives the model-backed analysis units. Each agent renders a
// deterministic prompt from an analysis context, invokes the model, and turns
// the free-text reply into typed threat-model data, salvaging what it can field
// by field.
package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/llm"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Agent names. Every prompt starts with Marker(name).
const (
	ComponentExtraction  = "component_extraction"
	ContextExtraction    = "context_extraction"
	StrideEnumeration    = "stride_enumeration"
	DreadScoring         = "dread_scoring"
	DreadSingle          = "dread_single"
	AttackTree           = "attack_tree"
	StrictAttackTree     = "strict_attack_tree"
	TestCaseGeneration   = "test_case_generation"
	ArchitectureAnalysis = "architecture_analysis"
	QuestionGeneration   = "question_generation"
	AnswerExtraction     = "answer_extraction"
)

// Marker is the first line of every prompt for the named agent
func Marker(name string) string {
	return "Task: " + name + "\n"
}

// Options tune every agent run
type Options struct {
	// Retries is how many extra attempts follow an unparseable reply.
	Retries     int
	Timeout     time.Duration
	Temperature float64
	// Idempotent lets provider errors be retried within the agent budget.
	Idempotent bool
	// PromptTokens bounds the context section of a prompt; zero means no bound.
	PromptTokens int
}

// DefaultOptions returns the standard agent settings
func DefaultOptions() Options {
	return Options{
		Retries:      2,
		Timeout:      llm.DefaultTimeout,
		Temperature:  0.2,
		PromptTokens: 6000,
	}
}

// Context is everything an agent may read. Agents never modify it.
type Context struct {
	Application  threatmodel.Application
	Components   []threatmodel.Component
	Technologies []threatmodel.TechnologyFinding
	Architecture threatmodel.Architecture
	// Notes are owner-supplied facts, such as analyzed answers to questions.
	Notes []string
	// Knowledge holds the knowledge-base entries matched to the components.
	Knowledge []knowledge.Entry
	// Threats and Scores are prior-stage outputs.
	Threats []threatmodel.Threat
	Scores  []threatmodel.DreadScore
}

// Runner executes agents against one adapter. It holds no per-run state and
// is safe for concurrent use.
type Runner struct {
	adapter llm.Adapter
	tokens  *knowledge.TokenCounter
	opts    Options
	logger  *zap.Logger
}

// New creates a runner. tokens may be nil, in which case prompt budgets fall
// back to a character estimate.
func New(adapter llm.Adapter, tokens *knowledge.TokenCounter, opts Options, logger *zap.Logger) *Runner {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{adapter: adapter, tokens: tokens, opts: opts, logger: logger}
}

// run invokes the model and hands the decoded reply to parse. Unparseable
// replies are retried up to the retry budget and then reported as an
// AgentOutputError carrying the last raw text. Retryable adapter errors use
// the same budget; other adapter errors end the run at once.
func (r *Runner) run(ctx context.Context, agent, prompt string, parse func(any) error) error {
	attempts := r.opts.Retries + 1
	log := r.logger.With(zap.String("agent", agent))

	var (
		raw       string
		lastErr   error
		outputErr bool
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		p := prompt
		if outputErr {
			p = prompt + fmt.Sprintf("\nYour previous reply could not be used (%v). Reply with the JSON object only.\n", lastErr)
		}

		out, err := r.adapter.Invoke(ctx, p, llm.Options{
			Timeout:     r.opts.Timeout,
			Temperature: r.opts.Temperature,
			FormatHint:  "json",
			System:      systemPrompt,
			Idempotent:  r.opts.Idempotent,
		})
		if err != nil {
			if !llm.Retryable(err, r.opts.Idempotent) {
				return fmt.Errorf("agent %s: %w", agent, err)
			}
			lastErr, outputErr = err, false
			log.Warn("model invocation failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		raw = out
		v, err := Decode(out)
		if err == nil {
			err = parse(v)
		}
		if err == nil {
			if attempt > 1 {
				log.Info("agent output recovered on retry", zap.Int("attempt", attempt))
			}
			return nil
		}

		lastErr, outputErr = err, true
		log.Warn("unusable agent output",
			zap.Int("attempt", attempt),
			zap.String("raw", llm.TruncateString(out, 200)),
			zap.Error(err))
	}

	if !outputErr {
		return fmt.Errorf("agent %s: %w", agent, lastErr)
	}
	return &threatmodel.AgentOutputError{Agent: agent, Attempts: attempts, Raw: raw, Err: lastErr}
}

// budget truncates a prompt section to the configured token bound
func (r *Runner) budget(section string) string {
	out, cut := r.tokens.Truncate(section, r.opts.PromptTokens)
	if cut {
		r.logger.Debug("prompt context truncated", zap.Int("limit", r.opts.PromptTokens))
		out += "\n[context truncated]\n"
	}
	return out
}

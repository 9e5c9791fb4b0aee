// Package compiler turns an application description into a validated threat
// model. A compilation walks a fixed stage graph: detect, architecture, seed,
// enumerate, identify, score, attack_tree, test_cases, mitigations and
// questions. Each stage leaves a status on the model so a reader knows which
// sections can be trusted.
package compiler

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/mark-chris/threatc/internal/agents"
	"github.com/mark-chris/threatc/internal/detect"
	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/llm"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Config holds the compilation policy
type Config struct {
	// SimilarityThreshold is the title overlap at which two threats with the
	// same category and overlapping components are merged.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// TestCaseThreshold is the composite DREAD score a threat needs before
	// test cases are generated for it.
	TestCaseThreshold float64 `yaml:"test_case_threshold"`
	// DreadRetries is how many single-threat scoring attempts follow a batch
	// that left a threat unscored.
	DreadRetries int `yaml:"dread_retries"`
	// DreadWorkers bounds concurrent single-threat scoring.
	DreadWorkers int `yaml:"dread_workers"`
}

// DefaultConfig returns the standard policy
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: threatmodel.DefaultSimilarityThreshold,
		TestCaseThreshold:   5,
		DreadRetries:        2,
		DreadWorkers:        4,
	}
}

// Request is one compilation
type Request struct {
	Description string
	// Supplementary is optional diagram text appended to the description
	// for detection.
	Supplementary string
	// Transcript is an optional meeting transcript mined for context.
	Transcript string
	// Application carries caller-supplied metadata. Blank fields may be
	// filled from the transcript.
	Application threatmodel.Application
	// Answers are the owners' replies to earlier contextual questions.
	Answers []threatmodel.Answer
	// Prior is an earlier model of the same system. Its threat ids are kept
	// for threats that match and never reissued for new ones.
	Prior *threatmodel.ThreatModel
}

// Event reports a finished stage to an observer
type Event struct {
	ModelID  string                  `json:"model_id"`
	Stage    threatmodel.StageName   `json:"stage"`
	Status   threatmodel.StageStatus `json:"status"`
	Warnings []string                `json:"warnings,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Time     time.Time               `json:"time"`
}

// Observer receives stage events. It is called synchronously from the
// compiling goroutine and must not block.
type Observer func(Event)

// Option configures a Compiler
type Option func(*Compiler)

// WithObserver registers an observer for stage events
func WithObserver(o Observer) Option {
	return func(c *Compiler) {
		c.observers = append(c.observers, o)
	}
}

// Compiler runs compilations. It holds only read-only collaborators and may
// serve concurrent sessions.
type Compiler struct {
	kb        *knowledge.Index
	runner    *agents.Runner
	detector  *detect.Detector
	cfg       Config
	logger    *zap.Logger
	observers []Observer
}

// New creates a compiler. Zero config values fall back to the defaults. A nil
// runner compiles from the knowledge base alone.
func New(kb *knowledge.Index, runner *agents.Runner, cfg Config, logger *zap.Logger, opts ...Option) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if kb == nil {
		kb = knowledge.NewIndex()
	}
	if runner == nil {
		runner = agents.New(llm.Offline{}, nil, agents.DefaultOptions(), logger)
	}

	def := DefaultConfig()
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.TestCaseThreshold <= 0 {
		cfg.TestCaseThreshold = def.TestCaseThreshold
	}
	if cfg.DreadRetries < 0 {
		cfg.DreadRetries = 0
	}
	if cfg.DreadWorkers <= 0 {
		cfg.DreadWorkers = def.DreadWorkers
	}

	c := &Compiler{
		kb:       kb,
		runner:   runner,
		detector: detect.New(runner, logger),
		cfg:      cfg,
		logger:   logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Config returns the effective policy
func (c *Compiler) Config() Config {
	return c.cfg
}

// Compile builds a threat model.
//
// A fatal failure returns a *threatmodel.CompilationError carrying the partial
// model. Cancellation of ctx is checked between stages: the partial model is
// returned, marked incomplete with the unreached stages skipped, together with
// ctx.Err(). Model invocations already in flight finish under their own
// timeout.
func (c *Compiler) Compile(ctx context.Context, req Request) (*threatmodel.ThreatModel, error) {
	app := req.Application
	app.Authentication = slices.Clone(app.Authentication)
	if app.Description == "" {
		app.Description = req.Description
	}

	s := &session{
		req:   req,
		model: threatmodel.New(app),
	}
	s.model.OpenQuestions = []string{}

	log := c.logger.With(zap.String("model_id", s.model.ID))
	log.Info("compilation started")

	if err := c.runStages(ctx, s, pipeline); err != nil {
		return c.finish(s, err, log)
	}

	s.model.Complete = true
	s.model.Freeze()
	log.Info("compilation finished",
		zap.Int("components", len(s.model.Components)),
		zap.Int("threats", len(s.model.Threats)),
		zap.Int("test_cases", len(s.model.TestCases)))
	return s.model, nil
}

func (c *Compiler) finish(s *session, err error, log *zap.Logger) (*threatmodel.ThreatModel, error) {
	s.model.Complete = false
	var ce *threatmodel.CompilationError
	if errors.As(err, &ce) {
		log.Error("compilation failed", zap.String("stage", string(ce.Stage)), zap.Error(ce.Err))
		return nil, ce
	}
	log.Warn("compilation cancelled", zap.Error(err))
	return s.model, err
}

func (c *Compiler) emit(modelID string, r threatmodel.StageReport) {
	if len(c.observers) == 0 {
		return
	}
	ev := Event{
		ModelID:  modelID,
		Stage:    r.Stage,
		Status:   r.Status,
		Warnings: r.Warnings,
		Error:    r.Error,
		Time:     time.Now().UTC(),
	}
	for _, o := range c.observers {
		o(ev)
	}
}

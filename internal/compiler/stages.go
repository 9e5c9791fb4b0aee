package compiler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mark-chris/threatc/internal/agents"
	"github.com/mark-chris/threatc/internal/detect"
	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/report"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

// session is the state of one compilation. It is owned by a single goroutine.
type session struct {
	req       Request
	model     *threatmodel.ThreatModel
	knowledge []knowledge.Entry
	// notes are facts drawn from the owners' answers.
	notes []string
}

func (s *session) agentContext() agents.Context {
	return agents.Context{
		Application:  s.model.Application,
		Components:   s.model.Components,
		Technologies: s.model.TechnologyFindings,
		Architecture: s.model.Architecture,
		Notes:        s.notes,
		Knowledge:    s.knowledge,
		Threats:      s.model.Threats,
		Scores:       s.model.DreadScores,
	}
}

// outcome is what a stage reports back to the runner
type outcome struct {
	status   threatmodel.StageStatus
	warnings []string
	err      error
	// fatal aborts the compilation with a CompilationError.
	fatal bool
}

func succeeded(warnings ...string) outcome {
	return outcome{status: threatmodel.StatusOK, warnings: warnings}
}

func fatal(err error) outcome {
	return outcome{status: threatmodel.StatusFailed, err: err, fatal: true}
}

type stage struct {
	name threatmodel.StageName
	// deps must have run without failing before the stage may run.
	deps []threatmodel.StageName
	run  func(c *Compiler, ctx context.Context, s *session) outcome
}

var pipeline = []stage{
	{name: threatmodel.StageDetect, run: (*Compiler).detectStage},
	{name: threatmodel.StageArchitecture, deps: deps(threatmodel.StageDetect), run: (*Compiler).architectureStage},
	{name: threatmodel.StageSeed, deps: deps(threatmodel.StageDetect), run: (*Compiler).seedStage},
	{name: threatmodel.StageEnumerate, deps: deps(threatmodel.StageSeed), run: (*Compiler).enumerateStage},
	{name: threatmodel.StageIdentify, deps: deps(threatmodel.StageEnumerate), run: (*Compiler).identifyStage},
	{name: threatmodel.StageScore, deps: deps(threatmodel.StageIdentify), run: (*Compiler).scoreStage},
	{name: threatmodel.StageAttackTree, deps: deps(threatmodel.StageIdentify), run: (*Compiler).attackTreeStage},
	{name: threatmodel.StageTestCases, deps: deps(threatmodel.StageScore), run: (*Compiler).testCaseStage},
	{name: threatmodel.StageMitigations, deps: deps(threatmodel.StageIdentify), run: (*Compiler).mitigationStage},
	{name: threatmodel.StageQuestions, deps: deps(threatmodel.StageDetect), run: (*Compiler).questionStage},
}

func deps(names ...threatmodel.StageName) []threatmodel.StageName { return names }

// runStages executes stages in order. Model invocations run on a context that
// ignores cancellation; ctx is checked between stages only.
func (c *Compiler) runStages(ctx context.Context, s *session, stages []stage) error {
	invokeCtx := context.WithoutCancel(ctx)

	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			c.skip(s, stages[i:], "compilation cancelled")
			return err
		}

		if blocked, reason := c.blocked(s, st); blocked {
			r := threatmodel.StageReport{Stage: st.name, Status: threatmodel.StatusSkipped, Warnings: []string{reason}}
			s.model.SetStage(r)
			c.emit(s.model.ID, r)
			continue
		}

		start := time.Now()
		out := st.run(c, invokeCtx, s)

		r := threatmodel.StageReport{
			Stage:    st.name,
			Status:   out.status,
			Warnings: out.warnings,
			Duration: time.Since(start).Round(time.Millisecond).String(),
		}
		if out.err != nil {
			r.Error = out.err.Error()
		}
		s.model.SetStage(r)
		c.emit(s.model.ID, r)

		fields := []zap.Field{
			zap.String("model_id", s.model.ID),
			zap.String("stage", string(st.name)),
			zap.String("status", string(out.status)),
			zap.Duration("duration", time.Since(start)),
		}
		if out.err != nil {
			fields = append(fields, zap.Error(out.err))
		}
		if out.status == threatmodel.StatusOK {
			c.logger.Info("stage finished", fields...)
		} else {
			c.logger.Warn("stage finished", fields...)
		}

		if out.fatal {
			c.skip(s, stages[i+1:], fmt.Sprintf("stage %s failed", st.name))
			return &threatmodel.CompilationError{Stage: st.name, Err: out.err, Model: s.model}
		}
	}
	return nil
}

// blocked reports whether a dependency of st failed or never ran in this session
func (c *Compiler) blocked(s *session, st stage) (bool, string) {
	for _, d := range st.deps {
		r, ok := s.model.Stage(d)
		if !ok {
			return true, fmt.Sprintf("depends on %s, which has not run", d)
		}
		if r.Status == threatmodel.StatusFailed || r.Status == threatmodel.StatusSkipped {
			return true, fmt.Sprintf("depends on %s, which is %s", d, r.Status)
		}
	}
	return false, ""
}

func (c *Compiler) skip(s *session, stages []stage, reason string) {
	for _, st := range stages {
		r := threatmodel.StageReport{Stage: st.name, Status: threatmodel.StatusSkipped, Warnings: []string{reason}}
		s.model.SetStage(r)
		c.emit(s.model.ID, r)
	}
}

func (c *Compiler) detectStage(ctx context.Context, s *session) outcome {
	app := s.model.Application
	supplementary := s.req.Supplementary
	var warnings []string

	if strings.TrimSpace(s.req.Transcript) != "" {
		ec, err := c.runner.ExtractContext(ctx, s.req.Transcript)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("transcript context extraction failed: %v", err))
		} else {
			ec.Apply(&app)
			supplementary = strings.TrimSpace(supplementary + "\n" + ec.Summary())
			s.model.OpenQuestions = appendUnique(s.model.OpenQuestions, ec.OpenQuestions...)
		}
	}

	if len(s.req.Answers) > 0 {
		aa, err := c.runner.AnalyzeAnswers(ctx, s.req.Answers)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("answer analysis failed: %v", err))
		} else {
			s.notes = aa.Notes()
			supplementary = strings.TrimSpace(supplementary + "\n" + strings.Join(s.notes, "\n"))
		}
	}

	res, err := c.detector.Detect(ctx, detect.Input{Description: s.req.Description, Supplementary: supplementary})
	if err != nil {
		return fatal(err)
	}
	if len(res.Components) == 0 {
		return fatal(&threatmodel.InputError{Field: "description", Message: "no components could be detected"})
	}

	app.InternetFacing = app.InternetFacing || res.InternetFacing
	app.Authentication = appendUnique(app.Authentication, res.Authentication...)
	s.model.Application = app
	s.model.Components = res.Components
	s.model.TechnologyFindings = res.Technologies

	warnings = append(warnings, res.Warnings...)
	if res.Degraded || len(warnings) > 0 {
		return outcome{status: threatmodel.StatusDegraded, warnings: warnings}
	}
	return succeeded()
}

func (c *Compiler) architectureStage(ctx context.Context, s *session) outcome {
	res, err := c.runner.AnalyzeArchitecture(ctx, s.agentContext())
	if err == nil && len(res.Architecture.DataFlows) == 0 {
		err = errors.New("no data flows were identified")
	}
	if err == nil {
		s.model.Architecture = res.Architecture
		return succeeded(res.Warnings...)
	}

	s.model.Architecture = threatmodel.FallbackArchitecture(s.model.Application, s.model.Components)
	return outcome{
		status:   threatmodel.StatusDegraded,
		warnings: []string{fmt.Sprintf("data flow analysis failed, inferring flows from component types: %v", err)},
	}
}

func (c *Compiler) seedStage(_ context.Context, s *session) outcome {
	s.knowledge = knowledgeFor(c.kb, s.model.Components)
	s.model.Threats = seedThreats(s.knowledge, s.model.Components)

	if len(s.model.Threats) == 0 {
		return succeeded("knowledge base has no entries for the detected components")
	}
	return succeeded()
}

func (c *Compiler) enumerateStage(ctx context.Context, s *session) outcome {
	en, err := c.runner.EnumerateThreats(ctx, s.agentContext())
	if err != nil {
		if len(s.model.Threats) == 0 {
			return fatal(fmt.Errorf("threat enumeration failed and the knowledge base seeded no threats: %w", err))
		}
		return outcome{
			status:   threatmodel.StatusDegraded,
			warnings: []string{fmt.Sprintf("threat enumeration failed, keeping %d knowledge base threat(s)", len(s.model.Threats))},
			err:      err,
		}
	}

	merged := 0
	for _, p := range en.Threats {
		if mergeInto(s.model.Threats, p, c.cfg.SimilarityThreshold) {
			merged++
			continue
		}
		s.model.Threats = append(s.model.Threats, p)
	}

	s.model.ImprovementSuggestions = appendUnique(s.model.ImprovementSuggestions, en.ImprovementSuggestions...)
	s.model.OpenQuestions = appendUnique(s.model.OpenQuestions, en.OpenQuestions...)

	if len(s.model.Threats) == 0 {
		return fatal(errors.New("no threats were identified"))
	}

	c.logger.Debug("threats enumerated",
		zap.Int("proposed", len(en.Threats)),
		zap.Int("merged", merged),
		zap.Int("total", len(s.model.Threats)))
	return succeeded(en.Warnings...)
}

func (c *Compiler) identifyStage(_ context.Context, s *session) outcome {
	var prior []threatmodel.Threat
	var seed map[threatmodel.Category]int
	if s.req.Prior != nil {
		prior = s.req.Prior.Threats
		seed = s.req.Prior.IDCounters
	}

	s.model.IDCounters = assignIDs(s.model.Threats, prior, seed, c.cfg.SimilarityThreshold)
	return succeeded()
}

func (c *Compiler) scoreStage(ctx context.Context, s *session) outcome {
	threats := s.model.Threats
	if len(threats) == 0 {
		s.model.DreadScores = []threatmodel.DreadScore{}
		return succeeded()
	}

	var warnings []string
	ac := s.agentContext()
	scores := make(map[string]threatmodel.DreadScore, len(threats))

	batch, err := c.runner.ScoreThreats(ctx, ac)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("batch scoring failed: %v", err))
	} else {
		warnings = append(warnings, batch.Warnings...)
		for _, sc := range batch.Scores {
			scores[sc.ThreatID] = sc
		}
	}

	var missing []threatmodel.Threat
	for _, t := range threats {
		if _, ok := scores[t.ID]; !ok {
			missing = append(missing, t)
		}
	}

	if len(missing) > 0 && c.cfg.DreadRetries > 0 {
		retried := make([]*threatmodel.DreadScore, len(missing))

		var g errgroup.Group
		g.SetLimit(c.cfg.DreadWorkers)
		for i, t := range missing {
			g.Go(func() error {
				for attempt := 1; attempt <= c.cfg.DreadRetries; attempt++ {
					sc, err := c.runner.ScoreThreat(ctx, ac, t)
					if err == nil {
						retried[i] = &sc
						return nil
					}
					c.logger.Debug("single threat scoring failed",
						zap.String("threat_id", t.ID), zap.Int("attempt", attempt), zap.Error(err))
				}
				return nil
			})
		}
		_ = g.Wait()

		for _, sc := range retried {
			if sc != nil {
				scores[sc.ThreatID] = *sc
			}
		}
	}

	s.model.DreadScores = make([]threatmodel.DreadScore, 0, len(scores))
	var unscored []string
	for _, t := range threats {
		if sc, ok := scores[t.ID]; ok {
			s.model.DreadScores = append(s.model.DreadScores, sc)
		} else {
			unscored = append(unscored, t.ID)
		}
	}

	switch {
	case len(unscored) == 0:
		return succeeded(warnings...)
	case len(unscored) == len(threats):
		return outcome{
			status:   threatmodel.StatusFailed,
			warnings: warnings,
			err:      errors.New("no threat could be scored"),
		}
	default:
		warnings = append(warnings, "left unscored: "+strings.Join(unscored, ", "))
		return outcome{status: threatmodel.StatusDegraded, warnings: warnings}
	}
}

func (c *Compiler) attackTreeStage(ctx context.Context, s *session) outcome {
	ac := s.agentContext()
	var warnings []string

	res, err := c.runner.BuildAttackTree(ctx, ac, false)
	if err == nil {
		err = res.Tree.Validate()
	}
	if err == nil {
		s.model.AttackTree = res.Tree
		return succeeded(res.Warnings...)
	}
	warnings = append(warnings, fmt.Sprintf("attack tree rejected, retrying with strict prompt: %v", err))

	res, err = c.runner.BuildAttackTree(ctx, ac, true)
	if err == nil {
		err = res.Tree.Validate()
	}
	if err == nil {
		s.model.AttackTree = res.Tree
		return succeeded(append(warnings, res.Warnings...)...)
	}

	warnings = append(warnings, fmt.Sprintf("strict attack tree rejected, using single-level fallback: %v", err))
	s.model.AttackTree = threatmodel.FallbackTree(applicationName(s.model.Application), s.model.Threats)
	return outcome{status: threatmodel.StatusDegraded, warnings: warnings}
}

func (c *Compiler) testCaseStage(ctx context.Context, s *session) outcome {
	eligible := make([]threatmodel.Threat, 0, len(s.model.Threats))
	for _, t := range s.model.Threats {
		if sc, ok := s.model.Score(t.ID); ok && sc.Composite >= c.cfg.TestCaseThreshold {
			eligible = append(eligible, t)
		}
	}

	s.model.TestCases = []threatmodel.TestCase{}
	if len(eligible) == 0 {
		return succeeded(fmt.Sprintf("no threat reaches composite %.1f", c.cfg.TestCaseThreshold))
	}

	ac := s.agentContext()
	ac.Threats = eligible

	res, err := c.runner.GenerateTestCases(ctx, ac)
	if err != nil {
		return outcome{status: threatmodel.StatusFailed, err: err}
	}

	allowed := make(map[string]bool, len(eligible))
	for _, t := range eligible {
		allowed[t.ID] = true
	}
	for _, tc := range res.TestCases {
		if !allowed[tc.ThreatID] {
			continue
		}
		tc.ID = "TC-" + strconv.Itoa(len(s.model.TestCases)+1)
		s.model.TestCases = append(s.model.TestCases, tc)
	}
	return succeeded(res.Warnings...)
}

func (c *Compiler) mitigationStage(_ context.Context, s *session) outcome {
	report.AttachMitigations(s.model, c.kb)
	report.Summarize(s.model)

	generic := 0
	for _, t := range s.model.Threats {
		if t.GenericMitigation {
			generic++
		}
	}
	if generic > 0 {
		return succeeded(fmt.Sprintf("%d threat(s) carry generic mitigations (%s)", generic, report.GenericMitigationNote))
	}
	return succeeded()
}

func applicationName(app threatmodel.Application) string {
	if app.Name != "" {
		return app.Name
	}
	return "the application"
}

func (c *Compiler) questionStage(ctx context.Context, s *session) outcome {
	questions, err := c.runner.GenerateQuestions(ctx, s.agentContext())
	if err == nil {
		s.model.OpenQuestions = appendUnique(s.model.OpenQuestions, questions...)
		return succeeded()
	}

	s.model.OpenQuestions = appendUnique(s.model.OpenQuestions, gapQuestions(s.model)...)
	return outcome{
		status:   threatmodel.StatusDegraded,
		warnings: []string{fmt.Sprintf("question generation failed, asking about missing metadata only: %v", err)},
	}
}

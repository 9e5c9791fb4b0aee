package threatmodel

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// StageName identifies a compilation stage
type StageName string

// Pipeline stages in execution order.
const (
	StageDetect       StageName = "detect"
	StageArchitecture StageName = "architecture"
	StageSeed         StageName = "seed"
	StageEnumerate    StageName = "enumerate"
	StageIdentify     StageName = "identify"
	StageScore        StageName = "score"
	StageAttackTree   StageName = "attack_tree"
	StageTestCases    StageName = "test_cases"
	StageMitigations  StageName = "mitigations"
	StageQuestions    StageName = "questions"
)

// StageStatus tells a reader how far a section of the model can be trusted
type StageStatus string

// Stage statuses. Skipped marks stages never reached because of cancellation
// or an earlier fatal failure.
const (
	StatusOK       StageStatus = "ok"
	StatusDegraded StageStatus = "degraded"
	StatusFailed   StageStatus = "failed"
	StatusSkipped  StageStatus = "skipped"
)

// StageReport is the outcome of one stage
type StageReport struct {
	Stage    StageName   `json:"stage"`
	Status   StageStatus `json:"status"`
	Warnings []string    `json:"warnings,omitempty"`
	Error    string      `json:"error,omitempty"`
	Duration string      `json:"duration,omitempty"`
}

// RiskSummary aggregates DREAD scores across the model
type RiskSummary struct {
	OverallRisk   string              `json:"overall_risk"`
	Distribution  map[string]int      `json:"distribution"`
	HighestRisks  []RankedThreat      `json:"highest_risks"`
	MostAffected  []ComponentExposure `json:"most_affected_components"`
	CriticalPaths []CriticalPath      `json:"critical_paths,omitempty"`
}

// RankedThreat is a threat with its weighted risk
type RankedThreat struct {
	ThreatID    string   `json:"threat_id"`
	Title       string   `json:"title"`
	Category    Category `json:"category"`
	Score       float64  `json:"score"`
	Criticality string   `json:"criticality"`
}

// ComponentExposure counts how many threats touch a component
type ComponentExposure struct {
	ComponentID string `json:"component_id"`
	Name        string `json:"name"`
	ThreatCount int    `json:"threat_count"`
}

// CriticalPath links a high-risk threat to the components it crosses
type CriticalPath struct {
	ThreatID   string   `json:"threat_id"`
	Components []string `json:"components"`
	Score      float64  `json:"score"`
}

// ThreatModel is the compiled artifact of one analysis session. It owns all of
// its sections; nothing in it references state outside the document.
type ThreatModel struct {
	SchemaVersion          string              `json:"schema_version"`
	ID                     string              `json:"id"`
	CreatedAt              time.Time           `json:"created_at"`
	Application            Application         `json:"application"`
	Components             []Component         `json:"components"`
	Threats                []Threat            `json:"threats"`
	DreadScores            []DreadScore        `json:"dread_scores"`
	AttackTree             AttackTree          `json:"attack_tree"`
	TestCases              []TestCase          `json:"test_cases"`
	Stages                 []StageReport       `json:"stages"`
	Complete               bool                `json:"complete"`
	Frozen                 bool                `json:"frozen"`
	IDCounters             map[Category]int    `json:"id_counters,omitempty"`
	TechnologyFindings     []TechnologyFinding `json:"technology_findings,omitempty"`
	Architecture           Architecture        `json:"architecture"`
	RiskSummary            *RiskSummary        `json:"risk_summary,omitempty"`
	ImprovementSuggestions []string            `json:"improvement_suggestions,omitempty"`
	OpenQuestions          []string            `json:"open_questions,omitempty"`
}

// New creates an empty model for a session
func New(app Application) *ThreatModel {
	return &ThreatModel{
		SchemaVersion: SchemaVersion,
		ID:            uuid.New().String(),
		CreatedAt:     time.Now().UTC(),
		Application:   app,
		Components:    []Component{},
		Threats:       []Threat{},
		DreadScores:   []DreadScore{},
		TestCases:     []TestCase{},
	}
}

// Component returns the component with the given id
func (m *ThreatModel) Component(id string) (Component, bool) {
	for _, c := range m.Components {
		if c.ID == id {
			return c, true
		}
	}
	return Component{}, false
}

// Threat returns the threat with the given id
func (m *ThreatModel) Threat(id string) (Threat, bool) {
	for _, t := range m.Threats {
		if t.ID == id {
			return t, true
		}
	}
	return Threat{}, false
}

// Score returns the DREAD score for a threat
func (m *ThreatModel) Score(threatID string) (DreadScore, bool) {
	for _, s := range m.DreadScores {
		if s.ThreatID == threatID {
			return s, true
		}
	}
	return DreadScore{}, false
}

// SetStage records a stage outcome, replacing an earlier report for the same stage
func (m *ThreatModel) SetStage(r StageReport) {
	for i := range m.Stages {
		if m.Stages[i].Stage == r.Stage {
			m.Stages[i] = r
			return
		}
	}
	m.Stages = append(m.Stages, r)
}

// Stage returns the report for a stage
func (m *ThreatModel) Stage(name StageName) (StageReport, bool) {
	for _, r := range m.Stages {
		if r.Stage == name {
			return r, true
		}
	}
	return StageReport{}, false
}

// Freeze marks the model read-only
func (m *ThreatModel) Freeze() {
	m.Frozen = true
}

// Clone returns a deep copy with Frozen cleared, ready for partial regeneration
func (m *ThreatModel) Clone() *ThreatModel {
	c := *m
	c.Frozen = false
	c.Application.Authentication = slices.Clone(m.Application.Authentication)

	c.Components = make([]Component, len(m.Components))
	for i, comp := range m.Components {
		comp.Technologies = slices.Clone(comp.Technologies)
		c.Components[i] = comp
	}

	c.Threats = make([]Threat, len(m.Threats))
	for i, t := range m.Threats {
		c.Threats[i] = t.clone()
	}

	c.DreadScores = slices.Clone(m.DreadScores)
	c.AttackTree = AttackTree{Nodes: slices.Clone(m.AttackTree.Nodes), Fallback: m.AttackTree.Fallback}
	c.TestCases = slices.Clone(m.TestCases)

	c.Stages = make([]StageReport, len(m.Stages))
	for i, s := range m.Stages {
		s.Warnings = slices.Clone(s.Warnings)
		c.Stages[i] = s
	}

	if m.IDCounters != nil {
		c.IDCounters = make(map[Category]int, len(m.IDCounters))
		for k, v := range m.IDCounters {
			c.IDCounters[k] = v
		}
	}

	c.TechnologyFindings = make([]TechnologyFinding, len(m.TechnologyFindings))
	for i, f := range m.TechnologyFindings {
		f.Implications = slices.Clone(f.Implications)
		c.TechnologyFindings[i] = f
	}

	c.Architecture = m.Architecture.clone()
	c.RiskSummary = m.RiskSummary.clone()
	c.ImprovementSuggestions = slices.Clone(m.ImprovementSuggestions)
	c.OpenQuestions = slices.Clone(m.OpenQuestions)
	return &c
}

func (rs *RiskSummary) clone() *RiskSummary {
	if rs == nil {
		return nil
	}
	c := *rs
	if rs.Distribution != nil {
		c.Distribution = make(map[string]int, len(rs.Distribution))
		for k, v := range rs.Distribution {
			c.Distribution[k] = v
		}
	}
	c.HighestRisks = slices.Clone(rs.HighestRisks)
	c.MostAffected = slices.Clone(rs.MostAffected)
	c.CriticalPaths = make([]CriticalPath, len(rs.CriticalPaths))
	for i, p := range rs.CriticalPaths {
		p.Components = slices.Clone(p.Components)
		c.CriticalPaths[i] = p
	}
	if rs.CriticalPaths == nil {
		c.CriticalPaths = nil
	}
	return &c
}

func (t Threat) clone() Threat {
	t.AffectedComponents = slices.Clone(t.AffectedComponents)
	t.AttackVectors = slices.Clone(t.AttackVectors)
	t.Mitigations = slices.Clone(t.Mitigations)
	t.TemplateIDs = slices.Clone(t.TemplateIDs)
	return t
}

// Validate checks the structural invariants of a compiled model and returns
// every violation found.
func (m *ThreatModel) Validate() []error {
	var errs []error

	components := make(map[string]bool, len(m.Components))
	for _, c := range m.Components {
		components[c.ID] = true
	}

	threats := make(map[string]bool, len(m.Threats))
	for _, t := range m.Threats {
		if threats[t.ID] {
			errs = append(errs, fmt.Errorf("duplicate threat id %s", t.ID))
		}
		threats[t.ID] = true
		if !t.Category.Valid() {
			errs = append(errs, fmt.Errorf("threat %s: invalid category %q", t.ID, t.Category))
		}
		if len(t.AffectedComponents) == 0 {
			errs = append(errs, fmt.Errorf("threat %s: no affected components", t.ID))
		}
		for _, id := range t.AffectedComponents {
			if !components[id] {
				errs = append(errs, fmt.Errorf("threat %s: unknown component %s", t.ID, id))
			}
		}
	}

	scored := make(map[string]bool, len(m.DreadScores))
	for _, s := range m.DreadScores {
		if !threats[s.ThreatID] {
			errs = append(errs, fmt.Errorf("dread score for unknown threat %s", s.ThreatID))
		}
		if scored[s.ThreatID] {
			errs = append(errs, fmt.Errorf("threat %s scored more than once", s.ThreatID))
		}
		scored[s.ThreatID] = true
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(m.AttackTree.Nodes) > 0 {
		if err := m.AttackTree.Validate(); err != nil {
			errs = append(errs, err)
		}
		for _, n := range m.AttackTree.Nodes {
			if n.RelatedThreatID != "" && !threats[n.RelatedThreatID] {
				errs = append(errs, fmt.Errorf("attack tree node %s: unknown threat %s", n.ID, n.RelatedThreatID))
			}
		}
	}

	errs = append(errs, m.Architecture.validate(components)...)

	for _, tc := range m.TestCases {
		if !threats[tc.ThreatID] {
			errs = append(errs, fmt.Errorf("test case %s: unknown threat %s", tc.ID, tc.ThreatID))
		}
	}

	return errs
}

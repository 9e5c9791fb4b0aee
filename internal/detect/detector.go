// Package detect infers architecture components and technologies from a free
// text application description.
package detect

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mark-chris/threatc/internal/agents"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Input is what the detector reads
type Input struct {
	Description string
	// Supplementary is optional diagram or transcript text.
	Supplementary string
}

// Result is the detector's output
type Result struct {
	Components     []threatmodel.Component
	Technologies   []threatmodel.TechnologyFinding
	InternetFacing bool
	// Authentication lists authentication methods named in the text.
	Authentication []string
	// Degraded is set when model extraction failed and only the rules ran.
	Degraded bool
	Warnings []string
}

// Extractor proposes components with a model
type Extractor interface {
	ExtractComponents(ctx context.Context, description, supplementary string) ([]agents.ComponentProposal, error)
}

// Detector combines rule-based recognition with optional model extraction
type Detector struct {
	extractor Extractor
	logger    *zap.Logger
}

// New creates a detector. A nil extractor runs the rules alone.
func New(extractor Extractor, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{extractor: extractor, logger: logger}
}

// Detect returns the components of the described system. An empty
// description is an InputError. Model proposals are normalized against the
// component vocabulary and unioned with the rule matches; types outside the
// vocabulary are kept as custom.
func (d *Detector) Detect(ctx context.Context, in Input) (Result, error) {
	if strings.TrimSpace(in.Description) == "" {
		return Result{}, &threatmodel.InputError{Field: "description", Message: "must not be empty"}
	}

	text := in.Description
	if in.Supplementary != "" {
		text += "\n" + in.Supplementary
	}

	var res Result
	ids := newIDSet()

	for _, c := range detectByRules(text) {
		c.ID = ids.claim(string(c.Type))
		res.Components = append(res.Components, c)
	}

	if d.extractor != nil {
		proposals, err := d.extractor.ExtractComponents(ctx, in.Description, in.Supplementary)
		if err != nil {
			res.Degraded = true
			res.Warnings = append(res.Warnings, fmt.Sprintf("model component extraction failed: %v", err))
			d.logger.Warn("model component extraction failed, using rule matches only", zap.Error(err))
		} else {
			res.Components = mergeProposals(res.Components, proposals, ids)
		}
	}

	res.Technologies = detectTechnologies(text, res.Components)
	attachTechnologies(res.Components, res.Technologies)

	res.InternetFacing = matches(internetFacing, text) && !matches(internalOnly, text)
	res.Authentication = detectAuthentication(text, res.Technologies)

	d.logger.Info("components detected",
		zap.Int("components", len(res.Components)),
		zap.Int("technologies", len(res.Technologies)),
		zap.Bool("degraded", res.Degraded))

	return res, nil
}

func detectByRules(text string) []threatmodel.Component {
	lower := normalizeText(text)

	var out []threatmodel.Component
	for _, r := range componentRules {
		hits := 0
		for _, p := range r.patterns {
			if matches(p, text) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}

		indicators := 0
		for _, ind := range r.indicators {
			if strings.Contains(lower, ind) {
				indicators++
			}
		}

		score := patternWeight*float64(hits)/float64(len(r.patterns)) +
			indicatorWeight*float64(indicators)/float64(len(r.indicators))

		out = append(out, threatmodel.Component{
			Name:       r.name,
			Type:       r.typ,
			Confidence: math.Round(score*100) / 100,
			Origin:     "rules",
		})
	}
	return out
}

func mergeProposals(comps []threatmodel.Component, proposals []agents.ComponentProposal, ids *idSet) []threatmodel.Component {
	for _, p := range proposals {
		merged := false
		if p.Type != threatmodel.TypeCustom {
			for i := range comps {
				if comps[i].Type == p.Type {
					comps[i].Technologies = appendUnique(comps[i].Technologies, p.Technologies...)
					if comps[i].Origin == "rules" {
						comps[i].Origin = "rules+model"
					}
					merged = true
					break
				}
			}
		} else {
			for i := range comps {
				if strings.EqualFold(comps[i].Name, p.Name) {
					comps[i].Technologies = appendUnique(comps[i].Technologies, p.Technologies...)
					merged = true
					break
				}
			}
		}
		if merged {
			continue
		}

		base := string(p.Type)
		if p.Type == threatmodel.TypeCustom {
			base = slug(p.Name)
		}
		comps = append(comps, threatmodel.Component{
			ID:           ids.claim(base),
			Name:         p.Name,
			Type:         p.Type,
			Technologies: appendUnique(nil, p.Technologies...),
			Confidence:   0.5,
			Origin:       "model",
		})
	}
	return comps
}

func detectTechnologies(text string, comps []threatmodel.Component) []threatmodel.TechnologyFinding {
	var out []threatmodel.TechnologyFinding
	seen := make(map[string]bool)

	add := func(t technology) {
		if seen[t.name] {
			return
		}
		seen[t.name] = true
		f := threatmodel.TechnologyFinding{
			Name:         t.name,
			Category:     t.category,
			Type:         t.typ,
			Implications: append([]string(nil), t.implications...),
		}
		for _, c := range comps {
			if t.typ != "" && c.Type == t.typ {
				f.ComponentID = c.ID
				break
			}
		}
		out = append(out, f)
	}

	for _, t := range technologies {
		if matches(t.pattern, text) {
			add(t)
		}
	}
	// Technologies the model named on components
	for _, c := range comps {
		for _, name := range c.Technologies {
			for _, t := range technologies {
				if matches(t.pattern, name) {
					add(t)
				}
			}
		}
	}
	return out
}

func attachTechnologies(comps []threatmodel.Component, findings []threatmodel.TechnologyFinding) {
	for _, f := range findings {
		if f.ComponentID == "" {
			continue
		}
		for i := range comps {
			if comps[i].ID == f.ComponentID {
				comps[i].Technologies = appendUnique(comps[i].Technologies, f.Name)
			}
		}
	}
}

func detectAuthentication(text string, findings []threatmodel.TechnologyFinding) []string {
	var out []string
	for _, f := range findings {
		if f.Category == CategoryAuth {
			out = append(out, f.Name)
		}
	}
	if matches(passwordAuth, text) {
		out = append(out, "password")
	}
	if matches(mfaAuth, text) {
		out = append(out, "mfa")
	}
	return out
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeText lowercases text and collapses punctuation to spaces
func normalizeText(s string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(s), " "))
}

func slug(s string) string {
	out := strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(s), "_"), "_")
	if out == "" {
		return "component"
	}
	return out
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found && v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}

// idSet hands out unique component ids
type idSet map[string]bool

func newIDSet() *idSet {
	s := make(idSet)
	return &s
}

func (s *idSet) claim(base string) string {
	id := base
	for n := 2; (*s)[id]; n++ {
		id = base + "_" + strconv.Itoa(n)
	}
	(*s)[id] = true
	return id
}

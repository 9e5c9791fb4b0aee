package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Enumeration is the STRIDE agent's salvaged output
type Enumeration struct {
	Threats                []threatmodel.Threat
	ImprovementSuggestions []string
	OpenQuestions          []string
	// Warnings lists proposals dropped during validation.
	Warnings []string
}

// EnumerateThreats asks the model for STRIDE threats over the context's
// components. Proposals with an invalid category or no resolvable component
// are dropped one by one; the rest are returned without ids and with
// source=model_generated.
func (r *Runner) EnumerateThreats(ctx context.Context, ac Context) (Enumeration, error) {
	var res Enumeration

	err := r.run(ctx, StrideEnumeration, r.stridePrompt(ac), func(v any) error {
		res = Enumeration{}
		if !hasList(v, "threats", "threat_model") {
			return errors.New("response has no threats list")
		}
		for i, item := range items(v, []string{"threats", "threat_model"}) {
			t, err := parseThreat(item, ac.Components)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("threat %d dropped: %v", i+1, err))
				continue
			}
			res.Threats = append(res.Threats, t)
		}
		if root, ok := v.(object); ok {
			res.ImprovementSuggestions = getStrings(root, "improvement_suggestions")
			res.OpenQuestions = getStrings(root, "open_questions")
		}
		return nil
	})

	return res, err
}

func parseThreat(item object, comps []threatmodel.Component) (threatmodel.Threat, error) {
	rawCategory := getString(item, "category", "threat_type", "stride_category")
	category, ok := threatmodel.ParseCategory(rawCategory)
	if !ok {
		return threatmodel.Threat{}, fmt.Errorf("invalid STRIDE category %q", rawCategory)
	}

	title := getString(item, "title", "name", "threat", "threat_name")
	description := getString(item, "description", "scenario")
	if impact := getString(item, "potential_impact", "impact"); impact != "" {
		if description != "" {
			description += " Impact: " + impact
		} else {
			description = impact
		}
	}
	if title == "" {
		title = firstSentence(description)
	}
	if title == "" {
		return threatmodel.Threat{}, errors.New("missing title")
	}

	refs := getStrings(item, "affected_components", "components")
	refs = append(refs, getStrings(item, "component_id", "component_name", "component")...)
	refs = append(refs, getStrings(item, "component_type")...)
	affected := ResolveComponents(refs, comps)
	if len(affected) == 0 {
		return threatmodel.Threat{}, fmt.Errorf("no known component in %v", refs)
	}

	severity := threatmodel.SeverityMedium
	if s := getString(item, "severity"); s != "" {
		severity = threatmodel.ParseSeverity(s)
	} else if score, ok := getScore(item, "risk_score", "risk"); ok {
		severity = SeverityForScore(float64(score))
	}

	return threatmodel.Threat{
		Category:           category,
		Title:              title,
		Description:        description,
		AffectedComponents: affected,
		Source:             threatmodel.SourceModelGenerated,
		Severity:           severity,
		AttackVectors:      getStrings(item, "attack_vectors"),
		Mitigations:        getStrings(item, "mitigations", "mitigation", "countermeasures"),
	}, nil
}

// ResolveComponents maps model references (ids, names or type names) to
// component ids, dropping anything unknown.
func ResolveComponents(refs []string, comps []threatmodel.Component) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		matched := false
		for _, c := range comps {
			if c.ID == ref || strings.EqualFold(c.Name, ref) {
				add(c.ID)
				matched = true
			}
		}
		if matched {
			continue
		}
		if t := threatmodel.NormalizeComponentType(ref); t != threatmodel.TypeCustom {
			for _, c := range comps {
				if c.Type == t {
					add(c.ID)
				}
			}
		}
	}
	return out
}

// SeverityForScore maps a 1-10 risk value onto a severity
func SeverityForScore(score float64) threatmodel.Severity {
	switch {
	case score >= 9:
		return threatmodel.SeverityCritical
	case score >= 7:
		return threatmodel.SeverityHigh
	case score >= 4:
		return threatmodel.SeverityMedium
	default:
		return threatmodel.SeverityLow
	}
}

func firstSentence(s string) string {
	if i := strings.IndexAny(s, ".\n"); i > 0 {
		s = s[:i]
	}
	const maxTitle = 80
	if len(s) > maxTitle {
		cut := maxTitle
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return strings.TrimSpace(s)
}

package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// ArchitectureResult is the data-flow agent's salvaged output
type ArchitectureResult struct {
	Architecture threatmodel.Architecture
	// Warnings lists zones, boundaries and flows dropped during validation.
	Warnings []string
}

// AnalyzeArchitecture asks the model how data moves between the context's
// components and where the trust boundaries lie. Flow endpoints that name no
// known component are kept as external entities. Zone members that resolve to
// nothing and boundaries between unknown zones are dropped.
func (r *Runner) AnalyzeArchitecture(ctx context.Context, ac Context) (ArchitectureResult, error) {
	var res ArchitectureResult

	err := r.run(ctx, ArchitectureAnalysis, r.architecturePrompt(ac), func(v any) error {
		res = ArchitectureResult{}
		root, ok := v.(object)
		if !ok {
			return fmt.Errorf("expected an object, got %T", v)
		}
		if !hasList(root, "data_flows", "flows") && !hasList(root, "trust_zones", "zones") {
			return errors.New("response has neither data_flows nor trust_zones")
		}

		arch := threatmodel.Architecture{
			DataFlows:       []threatmodel.DataFlow{},
			TrustZones:      []threatmodel.TrustZone{},
			TrustBoundaries: []threatmodel.TrustBoundary{},
		}

		zones := make(map[string]string)
		for i, item := range items(getList(root, "trust_zones", "zones"), nil) {
			name := strings.ToLower(getString(item, "name", "zone"))
			if name == "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("trust zone %d dropped: missing name", i+1))
				continue
			}
			if _, dup := zones[name]; dup {
				res.Warnings = append(res.Warnings, fmt.Sprintf("trust zone %s dropped: duplicate", name))
				continue
			}
			zones[name] = name
			arch.TrustZones = append(arch.TrustZones, threatmodel.TrustZone{
				Name:          name,
				Type:          zoneType(getString(item, "type", "zone_type"), name),
				Components:    nonNil(ResolveComponents(getStrings(item, "components", "members"), ac.Components)),
				SecurityLevel: strings.ToLower(getString(item, "security_level", "level")),
			})
		}

		for i, item := range items(getList(root, "trust_boundaries", "boundaries"), nil) {
			var connected []string
			for _, z := range getStrings(item, "connected_zones", "zones") {
				if name, ok := zones[strings.ToLower(z)]; ok {
					connected = append(connected, name)
				}
			}
			if len(connected) < 2 {
				res.Warnings = append(res.Warnings, fmt.Sprintf("trust boundary %d dropped: fewer than two known zones", i+1))
				continue
			}
			id := getString(item, "id", "boundary_id")
			if id == "" {
				id = fmt.Sprintf("TB-%d", len(arch.TrustBoundaries)+1)
			}
			arch.TrustBoundaries = append(arch.TrustBoundaries, threatmodel.TrustBoundary{
				ID:               id,
				Type:             getString(item, "type"),
				Location:         getString(item, "location", "description"),
				ConnectedZones:   connected,
				SecurityControls: getStrings(item, "security_controls", "controls"),
			})
		}

		for i, item := range items(getList(root, "data_flows", "flows"), nil) {
			src := endpoint(getString(item, "source", "from"), ac.Components)
			dst := endpoint(getString(item, "destination", "to", "target"), ac.Components)
			if src == "" || dst == "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("data flow %d dropped: missing endpoint", i+1))
				continue
			}
			direction := strings.ToLower(getString(item, "direction"))
			arch.DataFlows = append(arch.DataFlows, threatmodel.DataFlow{
				Source:        src,
				Destination:   dst,
				DataType:      getString(item, "data_type", "data"),
				Protocol:      getString(item, "protocol"),
				Sensitivity:   sensitivity(getString(item, "sensitivity")),
				Bidirectional: strings.HasPrefix(direction, "bi") || direction == "both",
			})
		}

		res.Architecture = arch
		return nil
	})

	return res, err
}

// GenerateQuestions asks the model for the questions a security reviewer
// would put to the application's owners before trusting the model.
func (r *Runner) GenerateQuestions(ctx context.Context, ac Context) ([]string, error) {
	var out []string

	err := r.run(ctx, QuestionGeneration, r.questionPrompt(ac), func(v any) error {
		out = nil
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				if s := asString(item); s != "" {
					out = append(out, s)
				} else if o, ok := item.(object); ok {
					if q := getString(o, "question", "text"); q != "" {
						out = append(out, q)
					}
				}
			}
		case object:
			out = getStrings(t, "questions", "open_questions")
			for _, item := range items(t, []string{"questions"}, "question") {
				if q := getString(item, "question", "text"); q != "" {
					out = append(out, q)
				}
			}
		}
		if len(out) == 0 {
			return errors.New("response has no questions")
		}
		return nil
	})

	return out, err
}

// AnswerAnalysis is what the owners' answers reveal about the system
type AnswerAnalysis struct {
	SecurityComponents []string `json:"security_components,omitempty"`
	ThreatVectors      []string `json:"threat_vectors,omitempty"`
	SensitiveAssets    []string `json:"sensitive_assets,omitempty"`
	Dependencies       []string `json:"dependencies,omitempty"`
	Constraints        []string `json:"constraints,omitempty"`
}

// AnalyzeAnswers turns question and answer pairs into security context.
// Pairs with a blank answer are left out of the prompt.
func (r *Runner) AnalyzeAnswers(ctx context.Context, answers []threatmodel.Answer) (AnswerAnalysis, error) {
	var aa AnswerAnalysis

	var answered []threatmodel.Answer
	for _, a := range answers {
		if strings.TrimSpace(a.Answer) != "" {
			answered = append(answered, a)
		}
	}
	if len(answered) == 0 {
		return aa, &threatmodel.InputError{Field: "answers", Message: "no question has an answer"}
	}

	err := r.run(ctx, AnswerExtraction, r.answerPrompt(answered), func(v any) error {
		root, ok := v.(object)
		if !ok {
			return fmt.Errorf("expected an object, got %T", v)
		}
		aa = AnswerAnalysis{
			SecurityComponents: getStrings(root, "security_components"),
			ThreatVectors:      getStrings(root, "threat_vectors"),
			SensitiveAssets:    getStrings(root, "sensitive_assets"),
			Dependencies:       getStrings(root, "dependencies"),
			Constraints:        getStrings(root, "constraints"),
		}
		if len(aa.Notes()) == 0 {
			return errors.New("response has none of the expected fields")
		}
		return nil
	})

	return aa, err
}

// Notes renders the analysis as one line per finding
func (aa AnswerAnalysis) Notes() []string {
	var out []string
	add := func(label string, values []string) {
		if len(values) > 0 {
			out = append(out, label+": "+strings.Join(values, ", "))
		}
	}
	add("Security components", aa.SecurityComponents)
	add("Threat vectors", aa.ThreatVectors)
	add("Sensitive assets", aa.SensitiveAssets)
	add("Dependencies", aa.Dependencies)
	add("Constraints", aa.Constraints)
	return out
}

func getList(root object, keys ...string) any {
	v, _ := lookup(root, keys...)
	return v
}

// endpoint resolves a flow endpoint to a component id, or keeps it as the
// lower-cased name of an external entity.
func endpoint(ref string, comps []threatmodel.Component) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if ids := ResolveComponents([]string{ref}, comps); len(ids) > 0 {
		return ids[0]
	}
	return strings.ToLower(ref)
}

func zoneType(raw, name string) string {
	for _, s := range []string{strings.ToLower(raw), name} {
		switch {
		case strings.Contains(s, "public"), strings.Contains(s, "internet"), strings.Contains(s, "external"):
			return threatmodel.ZonePublic
		case strings.Contains(s, "dmz"), strings.Contains(s, "edge"):
			return threatmodel.ZoneDMZ
		case strings.Contains(s, "restricted"), strings.Contains(s, "data"):
			return threatmodel.ZoneRestricted
		case strings.Contains(s, "private"), strings.Contains(s, "internal"):
			return threatmodel.ZonePrivate
		}
	}
	return threatmodel.ZonePrivate
}

func sensitivity(s string) string {
	switch s = strings.ToLower(s); {
	case strings.HasPrefix(s, "high"), strings.HasPrefix(s, "critical"):
		return "high"
	case strings.HasPrefix(s, "low"), strings.HasPrefix(s, "public"):
		return "low"
	case s == "":
		return ""
	default:
		return "medium"
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

package compiler

import (
	"strings"

	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

// knowledgeFor returns the knowledge base entries for the component types
// present, once per type. Custom components get no entries.
func knowledgeFor(kb *knowledge.Index, comps []threatmodel.Component) []knowledge.Entry {
	var out []knowledge.Entry
	seen := make(map[threatmodel.ComponentType]bool)
	for _, c := range comps {
		if c.Type == threatmodel.TypeCustom || seen[c.Type] {
			continue
		}
		seen[c.Type] = true
		out = append(out, kb.Lookup(c.Type)...)
	}
	return out
}

// seedThreats creates one baseline threat per knowledge base template,
// affecting every component of the template's type. Templates are told apart
// by type and id together.
func seedThreats(entries []knowledge.Entry, comps []threatmodel.Component) []threatmodel.Threat {
	threats := make([]threatmodel.Threat, 0, len(entries))
	byTemplate := make(map[string]int, len(entries))

	for _, e := range entries {
		var affected []string
		for _, c := range comps {
			if c.Type == e.ComponentType {
				affected = append(affected, c.ID)
			}
		}
		if len(affected) == 0 {
			continue
		}

		if i, dup := byTemplate[e.Key()]; dup {
			threats[i].AffectedComponents = appendUnique(threats[i].AffectedComponents, affected...)
			continue
		}
		byTemplate[e.Key()] = len(threats)

		threats = append(threats, threatmodel.Threat{
			Category:           e.Category,
			Title:              e.Name,
			Description:        strings.TrimSpace(e.Description),
			AffectedComponents: affected,
			Source:             threatmodel.SourceKnowledgeBase,
			Severity:           e.Severity,
			AttackVectors:      append([]string(nil), e.AttackVectors...),
			Mitigations:        append([]string(nil), e.Mitigations...),
			TemplateIDs:        []string{e.Key()},
		})
	}
	return threats
}

// mergeInto folds p into the first threat with the same identity and reports
// whether one was found.
func mergeInto(threats []threatmodel.Threat, p threatmodel.Threat, threshold float64) bool {
	for i := range threats {
		if threatmodel.SameThreat(threats[i], p, threshold) {
			mergeThreat(&threats[i], p)
			return true
		}
	}
	return false
}

func mergeThreat(dst *threatmodel.Threat, src threatmodel.Threat) {
	dst.AffectedComponents = appendUnique(dst.AffectedComponents, src.AffectedComponents...)
	dst.AttackVectors = appendUnique(dst.AttackVectors, src.AttackVectors...)
	dst.Mitigations = appendUnique(dst.Mitigations, src.Mitigations...)
	dst.TemplateIDs = appendUnique(dst.TemplateIDs, src.TemplateIDs...)

	if d := strings.TrimSpace(src.Description); d != "" && !strings.Contains(dst.Description, d) {
		if dst.Description == "" {
			dst.Description = d
		} else {
			dst.Description += "\n\n" + d
		}
	}
	if src.Severity != "" && src.Severity.Rank() < dst.Severity.Rank() {
		dst.Severity = src.Severity
	}
	dst.Source = threatmodel.SourceMerged
}

// assignIDs gives every threat its id. A threat matching a prior threat keeps
// the prior id; others draw fresh ordinals above every id the prior model
// issued. It returns the allocator state to persist with the model.
func assignIDs(threats, prior []threatmodel.Threat, seed map[threatmodel.Category]int, threshold float64) map[threatmodel.Category]int {
	alloc := threatmodel.NewIDAllocator(seed)
	for _, p := range prior {
		alloc.Reserve(p.ID)
	}

	used := make(map[string]bool, len(threats))
	for i := range threats {
		t := &threats[i]
		t.ID = ""
		for _, p := range prior {
			if !used[p.ID] && p.ID != "" && threatmodel.SameThreat(*t, p, threshold) {
				t.ID = p.ID
				break
			}
		}
		if t.ID == "" {
			t.ID = alloc.Next(t.Category)
		}
		used[t.ID] = true
	}
	return alloc.Counters()
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]bool, len(dst)+len(values))
	for _, d := range dst {
		seen[d] = true
	}
	for _, v := range values {
		if v != "" && !seen[v] {
			seen[v] = true
			dst = append(dst, v)
		}
	}
	return dst
}

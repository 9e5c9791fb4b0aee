// Package report attaches mitigations to compiled threat models, summarizes
// their risk and renders them for people.
package report

import (
	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

// GenericMitigationNote flags placeholder mitigations
const GenericMitigationNote = "generic - review required"

var genericMitigations = map[threatmodel.Category][]string{
	threatmodel.Spoofing: {
		"Enforce strong authentication for every caller, including service-to-service traffic",
		"Protect credentials and session tokens in transit and at rest",
	},
	threatmodel.Tampering: {
		"Validate and sanitize all input at trust boundaries",
		"Protect data integrity with signatures, checksums or database constraints",
	},
	threatmodel.Repudiation: {
		"Record security-relevant actions in tamper-evident audit logs",
		"Attribute every action to an authenticated identity",
	},
	threatmodel.InformationDisclosure: {
		"Encrypt sensitive data in transit and at rest",
		"Apply least-privilege access to data and suppress detailed error messages",
	},
	threatmodel.DenialOfService: {
		"Apply rate limiting and resource quotas",
		"Design for graceful degradation and monitor resource exhaustion",
	},
	threatmodel.ElevationOfPrivilege: {
		"Enforce authorization checks on every privileged operation",
		"Run components with the least privilege they need",
	},
}

// GenericMitigations returns the placeholder mitigations for a category
func GenericMitigations(c threatmodel.Category) []string {
	return append([]string(nil), genericMitigations[c]...)
}

// AttachMitigations fills in threat mitigations. Threats backed by knowledge
// base templates take the template mitigations, followed by any the model
// added. Model-only threats keep the model's mitigations or, when it proposed
// none, get the category placeholder flagged as generic.
func AttachMitigations(m *threatmodel.ThreatModel, kb *knowledge.Index) *threatmodel.ThreatModel {
	for i := range m.Threats {
		t := &m.Threats[i]

		var fromKB []string
		if kb != nil {
			for _, id := range t.TemplateIDs {
				if e, ok := kb.Get(id); ok {
					fromKB = appendUnique(fromKB, e.Mitigations...)
				}
			}
		}

		switch {
		case len(fromKB) > 0:
			t.Mitigations = appendUnique(fromKB, t.Mitigations...)
			t.GenericMitigation = false
		case len(t.Mitigations) > 0 && !t.GenericMitigation:
			// agent-proposed
		default:
			t.Mitigations = GenericMitigations(t.Category)
			t.GenericMitigation = true
		}
	}
	return m
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

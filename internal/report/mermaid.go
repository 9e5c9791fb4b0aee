package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Mermaid renders an attack tree as a mermaid flowchart. Node ids are
// rewritten so model-supplied ids cannot break the diagram syntax.
func Mermaid(tree threatmodel.AttackTree) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	ids := make(map[string]string, len(tree.Nodes))
	for i, n := range tree.Nodes {
		ids[n.ID] = fmt.Sprintf("N%d", i+1)
	}

	for _, n := range tree.Nodes {
		label := mermaidLabel(n.Description)
		if n.RelatedThreatID != "" {
			label = n.RelatedThreatID + ": " + label
		}
		switch n.NodeType {
		case threatmodel.NodeGoal:
			sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", ids[n.ID], label))
		case threatmodel.NodeAnd:
			sb.WriteString(fmt.Sprintf("    %s{{\"AND: %s\"}}\n", ids[n.ID], label))
		case threatmodel.NodeOr:
			sb.WriteString(fmt.Sprintf("    %s{\"OR: %s\"}\n", ids[n.ID], label))
		default:
			sb.WriteString(fmt.Sprintf("    %s(\"%s\")\n", ids[n.ID], label))
		}
	}

	for _, n := range tree.Nodes {
		if parent, ok := ids[n.ParentID]; ok && n.ParentID != "" {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", parent, ids[n.ID]))
		}
	}
	return sb.String()
}

var mermaidEscaper = strings.NewReplacer(`"`, "#quot;", "\n", " ", "\r", " ")

func mermaidLabel(s string) string {
	s = strings.TrimSpace(mermaidEscaper.Replace(s))
	if len(s) > 80 {
		cut := 77
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

// DataFlowDiagram renders the model's architecture as a mermaid flowchart.
// Each trust zone becomes a subgraph; flow endpoints outside every zone are
// external entities. Data stores are drawn as cylinders and high-sensitivity
// flows are highlighted.
func DataFlowDiagram(m *threatmodel.ThreatModel) string {
	arch := m.Architecture
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")

	ids := make(map[string]string)
	node := func(ref string) string {
		if id, ok := ids[ref]; ok {
			return id
		}
		id := fmt.Sprintf("D%d", len(ids)+1)
		ids[ref] = id
		return id
	}
	shape := func(ref string) string {
		c, ok := m.Component(ref)
		if !ok {
			return fmt.Sprintf("%s[\"%s\"]", node(ref), mermaidLabel(ref))
		}
		switch c.Type {
		case threatmodel.TypeDatabase, threatmodel.TypeStorage, threatmodel.TypeCache:
			return fmt.Sprintf("%s[(\"%s\")]", node(ref), mermaidLabel(c.Name))
		default:
			return fmt.Sprintf("%s(\"%s\")", node(ref), mermaidLabel(c.Name))
		}
	}

	zoned := make(map[string]bool)
	for i, z := range arch.TrustZones {
		sb.WriteString(fmt.Sprintf("    subgraph Z%d[\"%s (%s)\"]\n", i+1, mermaidLabel(z.Name), z.Type))
		for _, ref := range z.Components {
			sb.WriteString("        " + shape(ref) + "\n")
			zoned[ref] = true
		}
		sb.WriteString("    end\n")
	}

	for _, c := range m.Components {
		if !zoned[c.ID] {
			sb.WriteString("    " + shape(c.ID) + "\n")
			zoned[c.ID] = true
		}
	}
	for _, f := range arch.DataFlows {
		for _, ref := range []string{f.Source, f.Destination} {
			if !zoned[ref] {
				sb.WriteString("    " + shape(ref) + "\n")
				zoned[ref] = true
			}
		}
	}

	var sensitive []int
	for i, f := range arch.DataFlows {
		arrow := "-->"
		if f.Bidirectional {
			arrow = "<-->"
		}
		label := f.DataType
		if f.Protocol != "" {
			label = strings.TrimSpace(label + " (" + f.Protocol + ")")
		}
		if label != "" {
			sb.WriteString(fmt.Sprintf("    %s %s|\"%s\"| %s\n", node(f.Source), arrow, mermaidLabel(label), node(f.Destination)))
		} else {
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", node(f.Source), arrow, node(f.Destination)))
		}
		if f.Sensitive() {
			sensitive = append(sensitive, i)
		}
	}
	for _, i := range sensitive {
		sb.WriteString(fmt.Sprintf("    linkStyle %d stroke:#d62728,stroke-width:2px\n", i))
	}
	return sb.String()
}

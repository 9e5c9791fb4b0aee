package report

import (
	"fmt"
	"strings"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Text renders the model as plain text for terminals
func Text(m *threatmodel.ThreatModel) string {
	var sb strings.Builder

	name := m.Application.Name
	if name == "" {
		name = "Threat model"
	}
	sb.WriteString(fmt.Sprintf("%s (%s)\n", name, m.ID))
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	sb.WriteString(fmt.Sprintf("Components: %d | Threats: %d | Test cases: %d | Complete: %t\n\n",
		len(m.Components), len(m.Threats), len(m.TestCases), m.Complete))

	writeStages(&sb, m.Stages)

	if rs := m.RiskSummary; rs != nil {
		sb.WriteString("RISK SUMMARY\n")
		sb.WriteString(strings.Repeat("-", 40) + "\n")
		sb.WriteString(fmt.Sprintf("Overall: %s\n", rs.OverallRisk))
		sb.WriteString(fmt.Sprintf("Critical: %d  High: %d  Medium: %d  Low: %d\n\n",
			rs.Distribution[LevelCritical], rs.Distribution[LevelHigh],
			rs.Distribution[LevelMedium], rs.Distribution[LevelLow]))
	}

	sb.WriteString("COMPONENTS\n")
	sb.WriteString(strings.Repeat("-", 40) + "\n")
	for _, c := range m.Components {
		line := fmt.Sprintf("• %s [%s]", c.Name, c.Type)
		if len(c.Technologies) > 0 {
			line += " " + strings.Join(c.Technologies, ", ")
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n")

	if flows := m.Architecture.DataFlows; len(flows) > 0 {
		sb.WriteString("DATA FLOWS\n")
		sb.WriteString(strings.Repeat("-", 40) + "\n")
		for _, f := range flows {
			arrow := "->"
			if f.Bidirectional {
				arrow = "<->"
			}
			line := fmt.Sprintf("• %s %s %s", componentNames(m, []string{f.Source}), arrow, componentNames(m, []string{f.Destination}))
			if f.DataType != "" {
				line += ": " + f.DataType
			}
			if f.Sensitive() {
				line += " [sensitive]"
			}
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n")
	}

	for _, t := range m.Threats {
		sb.WriteString(fmt.Sprintf("[%s] %s (%s, %s)\n", t.ID, t.Title, t.Category, t.Severity))
		sb.WriteString(strings.Repeat("-", 40) + "\n")
		sb.WriteString(fmt.Sprintf("COMPONENTS: %s\n", componentNames(m, t.AffectedComponents)))
		if s, ok := m.Score(t.ID); ok {
			sb.WriteString(fmt.Sprintf("DREAD:      %.1f (D%d R%d E%d A%d D%d)\n", s.Composite,
				s.Damage, s.Reproducibility, s.Exploitability, s.AffectedUsers, s.Discoverability))
		}
		sb.WriteString(strings.TrimSpace(t.Description) + "\n")
		title := "MITIGATIONS"
		if t.GenericMitigation {
			title += " (" + GenericMitigationNote + ")"
		}
		for _, mit := range t.Mitigations {
			if title != "" {
				sb.WriteString(title + "\n")
				title = ""
			}
			sb.WriteString(fmt.Sprintf("• %s\n", mit))
		}
		sb.WriteString("\n")
	}

	if len(m.TestCases) > 0 {
		sb.WriteString("TEST CASES\n")
		sb.WriteString(strings.Repeat("-", 40) + "\n")
		for _, tc := range m.TestCases {
			sb.WriteString(fmt.Sprintf("%s (%s)\n%s\n\n", tc.ID, tc.ThreatID, strings.TrimSpace(tc.Scenario)))
		}
	}

	writeTextList(&sb, "IMPROVEMENT SUGGESTIONS", m.ImprovementSuggestions)
	writeTextList(&sb, "OPEN QUESTIONS", m.OpenQuestions)

	return sb.String()
}

func writeStages(sb *strings.Builder, stages []threatmodel.StageReport) {
	if len(stages) == 0 {
		return
	}
	sb.WriteString("STAGES\n")
	sb.WriteString(strings.Repeat("-", 40) + "\n")
	for _, s := range stages {
		sb.WriteString(fmt.Sprintf("%-12s %s", s.Stage, s.Status))
		if s.Error != "" {
			sb.WriteString(": " + s.Error)
		}
		sb.WriteString("\n")
		for _, w := range s.Warnings {
			sb.WriteString(fmt.Sprintf("  ! %s\n", w))
		}
	}
	sb.WriteString("\n")
}

func writeTextList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", 40) + "\n")
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("• %s\n", item))
	}
	sb.WriteString("\n")
}

package report

import (
	"fmt"
	"strings"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ")

// Markdown renders the full report document
func Markdown(m *threatmodel.ThreatModel) string {
	var sb strings.Builder

	name := m.Application.Name
	if name == "" {
		name = "Application"
	}
	sb.WriteString(fmt.Sprintf("# Threat Model: %s\n\n", name))
	sb.WriteString(fmt.Sprintf("Model `%s`, generated %s.", m.ID, m.CreatedAt.Format("2006-01-02 15:04 MST")))
	if !m.Complete {
		sb.WriteString(" **Incomplete:** some stages did not finish.")
	}
	sb.WriteString("\n\n")

	if d := strings.TrimSpace(m.Application.Description); d != "" {
		sb.WriteString("## Application\n\n" + d + "\n\n")
	}

	if len(m.Stages) > 0 {
		sb.WriteString("## Stages\n\n| Stage | Status | Notes |\n|---|---|---|\n")
		for _, s := range m.Stages {
			notes := append([]string(nil), s.Warnings...)
			if s.Error != "" {
				notes = append([]string{s.Error}, notes...)
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", s.Stage, s.Status, cell(strings.Join(notes, "; "))))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Components\n\n| ID | Name | Type | Technologies |\n|---|---|---|---|\n")
	for _, c := range m.Components {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", c.ID, cell(c.Name), c.Type, strings.Join(c.Technologies, ", ")))
	}
	sb.WriteString("\n")

	if rs := m.RiskSummary; rs != nil {
		sb.WriteString("## Risk Summary\n\n")
		sb.WriteString(fmt.Sprintf("Overall risk: **%s**\n\n", rs.OverallRisk))
		sb.WriteString("| Critical | High | Medium | Low |\n|---|---|---|---|\n")
		sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d |\n\n",
			rs.Distribution[LevelCritical], rs.Distribution[LevelHigh],
			rs.Distribution[LevelMedium], rs.Distribution[LevelLow]))
		if len(rs.HighestRisks) > 0 {
			sb.WriteString("Highest risks:\n\n")
			for _, r := range rs.HighestRisks {
				sb.WriteString(fmt.Sprintf("- %s %s (%.1f, %s)\n", r.ThreatID, r.Title, r.Score, r.Criticality))
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("## Threats\n\n| ID | Category | Title | Components | Severity | Source |\n|---|---|---|---|---|---|\n")
	for _, t := range m.Threats {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
			t.ID, t.Category, cell(t.Title), cell(componentNames(m, t.AffectedComponents)), t.Severity, t.Source))
	}
	sb.WriteString("\n")

	sb.WriteString("## Mitigations\n\n| Threat | Mitigation |\n|---|---|\n")
	for _, t := range m.Threats {
		for _, mit := range t.Mitigations {
			if t.GenericMitigation {
				mit += " _(" + GenericMitigationNote + ")_"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", t.ID, cell(mit)))
		}
	}
	sb.WriteString("\n")

	if len(m.DreadScores) > 0 {
		sb.WriteString("## DREAD Scores\n\n")
		sb.WriteString("| Threat | Damage | Reproducibility | Exploitability | Affected Users | Discoverability | Composite |\n")
		sb.WriteString("|---|---|---|---|---|---|---|\n")
		for _, s := range m.DreadScores {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %d | %.1f |\n", s.ThreatID,
				s.Damage, s.Reproducibility, s.Exploitability, s.AffectedUsers, s.Discoverability, s.Composite))
		}
		sb.WriteString("\n")
	}

	if len(m.Architecture.DataFlows) > 0 {
		sb.WriteString("## Data Flows\n\n")
		if m.Architecture.Fallback {
			sb.WriteString("_Inferred from component types: the model did not describe the data flows._\n\n")
		}
		sb.WriteString("| Source | Destination | Data | Protocol | Sensitivity |\n|---|---|---|---|---|\n")
		for _, f := range m.Architecture.DataFlows {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n", cell(componentNames(m, []string{f.Source})),
				cell(componentNames(m, []string{f.Destination})), cell(f.DataType), cell(f.Protocol), f.Sensitivity))
		}
		sb.WriteString("\n")
		if len(m.Architecture.TrustBoundaries) > 0 {
			sb.WriteString("Trust boundaries:\n\n")
			for _, b := range m.Architecture.TrustBoundaries {
				line := fmt.Sprintf("- %s: %s", b.ID, strings.Join(b.ConnectedZones, " / "))
				if len(b.SecurityControls) > 0 {
					line += " (" + strings.Join(b.SecurityControls, ", ") + ")"
				}
				sb.WriteString(line + "\n")
			}
			sb.WriteString("\n")
		}
		sb.WriteString("```mermaid\n" + DataFlowDiagram(m) + "```\n\n")
	}

	if len(m.AttackTree.Nodes) > 0 {
		sb.WriteString("## Attack Tree\n\n")
		if m.AttackTree.Fallback {
			sb.WriteString("_Placeholder tree: the model did not produce a usable attack tree._\n\n")
		}
		sb.WriteString("```mermaid\n" + Mermaid(m.AttackTree) + "```\n\n")
	}

	if len(m.TestCases) > 0 {
		sb.WriteString("## Test Cases\n\n")
		for _, tc := range m.TestCases {
			sb.WriteString(fmt.Sprintf("### %s: %s\n\n", tc.ID, threatTitle(m, tc.ThreatID)))
			sb.WriteString("```gherkin\n" + strings.TrimSpace(tc.Scenario) + "\n```\n\n")
			if tc.ExpectedResult != "" {
				sb.WriteString("Expected: " + tc.ExpectedResult + "\n\n")
			}
		}
	}

	writeMarkdownList(&sb, "Improvement Suggestions", m.ImprovementSuggestions)
	writeMarkdownList(&sb, "Open Questions", m.OpenQuestions)

	return sb.String()
}

func cell(s string) string {
	return cellEscaper.Replace(s)
}

func writeMarkdownList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString("## " + title + "\n\n")
	for _, item := range items {
		sb.WriteString("- " + item + "\n")
	}
	sb.WriteString("\n")
}

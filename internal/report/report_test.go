package report

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

func testModel() *threatmodel.ThreatModel {
	m := threatmodel.New(threatmodel.Application{
		Name:           "Shop",
		Description:    "Online shop storing payment details",
		InternetFacing: true,
	})
	m.Components = []threatmodel.Component{
		{ID: "frontend", Name: "Frontend", Type: threatmodel.TypeFrontend},
		{ID: "database", Name: "Database", Type: threatmodel.TypeDatabase, Technologies: []string{"mysql"}},
		{ID: "auth_service", Name: "Authentication Service", Type: threatmodel.TypeAuthService},
	}
	m.Threats = []threatmodel.Threat{
		{
			ID: "TMP-1", Category: threatmodel.Tampering, Title: "SQL injection",
			AffectedComponents: []string{"database"}, Source: threatmodel.SourceKnowledgeBase,
			Severity: threatmodel.SeverityHigh, TemplateIDs: []string{"DB-001"},
			Mitigations: []string{"Use an ORM"},
		},
		{
			ID: "SPF-1", Category: threatmodel.Spoofing, Title: "Credential stuffing",
			AffectedComponents: []string{"auth_service", "frontend"}, Source: threatmodel.SourceModelGenerated,
			Severity: threatmodel.SeverityMedium,
		},
		{
			ID: "INF-1", Category: threatmodel.InformationDisclosure, Title: "Verbose errors",
			AffectedComponents: []string{"frontend"}, Source: threatmodel.SourceModelGenerated,
			Severity: threatmodel.SeverityLow, Mitigations: []string{"Return generic error pages"},
		},
	}
	m.DreadScores = []threatmodel.DreadScore{
		threatmodel.NewDreadScore("TMP-1", 9, 8, 8, 9, 7),
		threatmodel.NewDreadScore("SPF-1", 5, 5, 5, 5, 5),
	}
	return m
}

func testIndex() *knowledge.Index {
	idx := knowledge.NewIndex()
	idx.Build([]knowledge.Entry{{
		ComponentType: threatmodel.TypeDatabase,
		TemplateID:    "DB-001",
		Name:          "SQL Injection",
		Category:      threatmodel.Tampering,
		Severity:      threatmodel.SeverityHigh,
		Mitigations:   []string{"Use parameterized queries", "Use an ORM"},
	}}, nil)
	return idx
}

func TestAttachMitigations(t *testing.T) {
	m := AttachMitigations(testModel(), testIndex())

	tmp := m.Threats[0]
	if strings.Join(tmp.Mitigations, "|") != "Use parameterized queries|Use an ORM" {
		t.Errorf("knowledge base threat mitigations = %v", tmp.Mitigations)
	}
	if tmp.GenericMitigation {
		t.Error("knowledge base threat flagged generic")
	}

	spf := m.Threats[1]
	if !spf.GenericMitigation || len(spf.Mitigations) == 0 {
		t.Errorf("model threat without mitigations = %+v", spf)
	}
	if spf.Mitigations[0] != genericMitigations[threatmodel.Spoofing][0] {
		t.Errorf("generic mitigation = %q", spf.Mitigations[0])
	}

	inf := m.Threats[2]
	if inf.GenericMitigation || len(inf.Mitigations) != 1 {
		t.Errorf("agent-proposed mitigations replaced: %+v", inf)
	}
}

func TestCriticalityLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{10, LevelCritical},
		{8, LevelCritical},
		{7.9, LevelHigh},
		{6, LevelHigh},
		{4, LevelMedium},
		{3.99, LevelLow},
	}
	for _, tt := range tests {
		if got := CriticalityLevel(tt.score); got != tt.want {
			t.Errorf("CriticalityLevel(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestCriticality_WeightsAndCap(t *testing.T) {
	m := testModel()
	m.Application.Description = "plain app"

	// SPF-1 composite 5, auth weight 1.5, no sensitivity terms
	if got := Criticality(m, m.Threats[1]); got != 7.5 {
		t.Errorf("Criticality(SPF-1) = %v, want 7.5", got)
	}
	// TMP-1 composite 8.2 * 1.3 exceeds the cap
	if got := Criticality(m, m.Threats[0]); got != 10 {
		t.Errorf("Criticality(TMP-1) = %v, want 10", got)
	}
	// INF-1 unscored, low severity falls back to 3
	if got := Criticality(m, m.Threats[2]); got != 3 {
		t.Errorf("Criticality(INF-1) = %v, want 3", got)
	}
}

func TestSummarize(t *testing.T) {
	m := Summarize(testModel())
	rs := m.RiskSummary
	if rs == nil {
		t.Fatal("RiskSummary not set")
	}
	if rs.OverallRisk != LevelCritical {
		t.Errorf("OverallRisk = %s, want critical", rs.OverallRisk)
	}
	if len(rs.HighestRisks) != 3 || rs.HighestRisks[0].ThreatID != "TMP-1" {
		t.Errorf("HighestRisks = %+v", rs.HighestRisks)
	}
	if len(rs.CriticalPaths) != 1 || rs.CriticalPaths[0].ThreatID != "TMP-1" {
		t.Errorf("CriticalPaths = %+v", rs.CriticalPaths)
	}
	if rs.MostAffected[0].ComponentID != "frontend" || rs.MostAffected[0].ThreatCount != 2 {
		t.Errorf("MostAffected = %+v", rs.MostAffected)
	}

	want := []string{
		"Consider implementing a Web Application Firewall (WAF)",
		"Consider implementing an API Gateway for centralized security controls",
		"Implement database encryption at rest for Database",
	}
	for _, w := range want {
		found := false
		for _, s := range m.ImprovementSuggestions {
			if s == w {
				found = true
			}
		}
		if !found {
			t.Errorf("missing suggestion %q in %v", w, m.ImprovementSuggestions)
		}
	}

	// Summarizing again must not duplicate suggestions
	n := len(m.ImprovementSuggestions)
	Summarize(m)
	if len(m.ImprovementSuggestions) != n {
		t.Errorf("suggestions grew from %d to %d", n, len(m.ImprovementSuggestions))
	}
}

func TestRender_Formats(t *testing.T) {
	m := Summarize(AttachMitigations(testModel(), testIndex()))
	m.AttackTree = threatmodel.FallbackTree("Shop", m.Threats)
	m.Architecture = threatmodel.FallbackArchitecture(m.Application, m.Components)
	m.TestCases = []threatmodel.TestCase{{
		ID: "TC-1", ThreatID: "TMP-1",
		Scenario: "Given a login form\nWhen a payload is submitted\nThen it is rejected",
	}}

	tests := []struct {
		format Format
		want   []string
	}{
		{FormatText, []string{"Shop (", "[TMP-1] SQL injection", "• Use parameterized queries", "TC-1 (TMP-1)",
			"DATA FLOWS", "• Authentication Service <-> Database: stored records [sensitive]"}},
		{FormatMarkdown, []string{"# Threat Model: Shop", "| TMP-1 | Tampering |", "```mermaid", "```gherkin", GenericMitigationNote,
			"## Data Flows", "| Authentication Service | Database | stored records |", "flowchart TD", "_Inferred from component types"}},
		{FormatMermaid, []string{"graph TD", "N1 --> N2"}},
		{FormatDFD, []string{"flowchart TD", `subgraph Z1["public (public)"]`, "linkStyle"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			out, err := Render(m, tt.format)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}

	out, err := Render(m, FormatJSON)
	if err != nil {
		t.Fatalf("Render(json) error = %v", err)
	}
	var back threatmodel.ThreatModel
	if err := json.Unmarshal([]byte(out), &back); err != nil {
		t.Fatalf("json output does not parse: %v", err)
	}
	if back.ID != m.ID || len(back.Threats) != 3 {
		t.Errorf("json round trip lost data: %+v", back)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJSON, "MD": FormatMarkdown, "txt": FormatText, "mermaid": FormatMermaid, "DFD": FormatDFD} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Error("expected error for pdf")
	}
}

func TestMermaid_EscapesLabels(t *testing.T) {
	tree := threatmodel.AttackTree{Nodes: []threatmodel.AttackTreeNode{
		{ID: "root", Description: `Steal "admin" session`, NodeType: threatmodel.NodeGoal},
		{ID: "a b", ParentID: "root", Description: "line\nbreak", NodeType: threatmodel.NodeLeaf},
	}}
	out := Mermaid(tree)
	if strings.Contains(out, `"admin"`) {
		t.Errorf("quotes not escaped:\n%s", out)
	}
	if !strings.Contains(out, "N1 --> N2") {
		t.Errorf("edge missing:\n%s", out)
	}
}

func TestMermaid_TruncatesOnRuneBoundary(t *testing.T) {
	label := mermaidLabel(strings.Repeat("a", 76) + "ééé")
	if !utf8.ValidString(label) {
		t.Fatalf("label is not valid UTF-8: %q", label)
	}
	if want := strings.Repeat("a", 76) + "..."; label != want {
		t.Errorf("label = %q, want %q", label, want)
	}
}

func TestDataFlowDiagram(t *testing.T) {
	m := testModel()
	m.Architecture = threatmodel.Architecture{
		TrustZones: []threatmodel.TrustZone{
			{Name: "edge", Type: threatmodel.ZoneDMZ, Components: []string{"frontend"}},
			{Name: "data", Type: threatmodel.ZoneRestricted, Components: []string{"database"}},
		},
		DataFlows: []threatmodel.DataFlow{
			{Source: "user", Destination: "frontend", DataType: "login", Protocol: "HTTPS", Sensitivity: "high", Bidirectional: true},
			{Source: "frontend", Destination: "database", DataType: `"orders"`, Sensitivity: "medium"},
		},
	}

	out := DataFlowDiagram(m)
	want := []string{
		"flowchart TD\n",
		"    subgraph Z1[\"edge (dmz)\"]\n        D1(\"Frontend\")\n    end\n",
		"    subgraph Z2[\"data (restricted)\"]\n        D2[(\"Database\")]\n    end\n",
		"    D3(\"Authentication Service\")\n",
		"    D4[\"user\"]\n",
		"    D4 <-->|\"login (HTTPS)\"| D1\n",
		"    D1 -->|\"#quot;orders#quot;\"| D2\n",
		"    linkStyle 0 stroke:#d62728,stroke-width:2px\n",
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("diagram missing %q:\n%s", w, out)
		}
	}
	if strings.Contains(out, "linkStyle 1") {
		t.Errorf("medium flow highlighted:\n%s", out)
	}
}

package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/mark-chris/threatc/internal/agents"
	"github.com/mark-chris/threatc/internal/llm"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

func compiled(t *testing.T) *threatmodel.ThreatModel {
	t.Helper()
	m, err := newTestCompiler(t, happyStub()).Compile(context.Background(), Request{
		Description: loginDescription,
		Application: threatmodel.Application{Name: "Shop"},
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return m
}

func TestRegenerate_AttackTree(t *testing.T) {
	original := compiled(t)

	stub := llm.NewStub().On(agents.Marker(agents.AttackTree), llm.Reply(`{"root": {
		"description": "Exfiltrate customer data", "node_type": "goal",
		"children": [{"description": "Dump the database", "node_type": "leaf", "threat_id": "TMP-2"}]
	}}`))
	m, err := newTestCompiler(t, stub).Regenerate(context.Background(), original, SectionAttackTree)
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}

	root, _ := m.AttackTree.Root()
	if root.Description != "Exfiltrate customer data" || len(m.AttackTree.Nodes) != 2 {
		t.Errorf("attack tree = %+v", m.AttackTree)
	}
	if root, _ := original.AttackTree.Root(); root.Description != "Take over user accounts" {
		t.Error("input model was modified")
	}
	if len(m.Threats) != len(original.Threats) || len(m.DreadScores) != len(original.DreadScores) {
		t.Error("unrelated sections changed")
	}
	if !m.Frozen || !m.Complete || m.ID != original.ID {
		t.Errorf("Frozen = %v, Complete = %v, ID = %s", m.Frozen, m.Complete, m.ID)
	}
	if n := len(stub.Calls()); n != 1 {
		t.Errorf("regeneration made %d model calls, want 1", n)
	}
}

func TestRegenerate_DreadRerunsTestCases(t *testing.T) {
	original := compiled(t)

	// Every threat now scores low, so no test case survives the filter.
	low := `{"scores": [
		{"threat_id": "TMP-1", "damage": 2, "reproducibility": 2, "exploitability": 2, "affected_users": 2, "discoverability": 2},
		{"threat_id": "TMP-2", "damage": 2, "reproducibility": 2, "exploitability": 2, "affected_users": 2, "discoverability": 2},
		{"threat_id": "INF-1", "damage": 2, "reproducibility": 2, "exploitability": 2, "affected_users": 2, "discoverability": 2},
		{"threat_id": "SPF-1", "damage": 2, "reproducibility": 2, "exploitability": 2, "affected_users": 2, "discoverability": 2},
		{"threat_id": "SPF-2", "damage": 2, "reproducibility": 2, "exploitability": 2, "affected_users": 2, "discoverability": 2}
	]}`
	stub := llm.NewStub().On(agents.Marker(agents.DreadScoring), llm.Reply(low))

	m, err := newTestCompiler(t, stub).Regenerate(context.Background(), original, SectionDread)
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	checkInvariants(t, m)

	for _, s := range m.DreadScores {
		if s.Composite != 2 {
			t.Errorf("%s composite = %v, want 2", s.ThreatID, s.Composite)
		}
	}
	if len(m.TestCases) != 0 {
		t.Errorf("test cases = %+v, want none", m.TestCases)
	}
	if stub.CallCount(agents.Marker(agents.TestCaseGeneration)) != 0 {
		t.Error("test case agent called with no eligible threat")
	}
	if len(original.TestCases) != 2 {
		t.Error("input model was modified")
	}
	if m.RiskSummary.OverallRisk == original.RiskSummary.OverallRisk {
		t.Errorf("risk summary not recomputed: %s", m.RiskSummary.OverallRisk)
	}
}

func TestRegenerate_UnknownSection(t *testing.T) {
	c := newTestCompiler(t, llm.Offline{})
	_, err := c.Regenerate(context.Background(), threatmodel.New(threatmodel.Application{}), Section("threats"))
	var ie *threatmodel.InputError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want InputError", err)
	}
}

func TestParseSection(t *testing.T) {
	tests := map[string]Section{
		"dread":       SectionDread,
		"score":       SectionDread,
		"attack-tree": SectionAttackTree,
		"TEST_CASES":  SectionTestCases,
		"mitigations": SectionMitigations,
		"dfd":         SectionArchitecture,
		"questions":   SectionQuestions,
	}
	for in, want := range tests {
		got, err := ParseSection(in)
		if err != nil || got != want {
			t.Errorf("ParseSection(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseSection("components"); err == nil {
		t.Error("expected error for components")
	}
}

func TestRegenerate_Architecture(t *testing.T) {
	original := compiled(t)

	stub := llm.NewStub().On(agents.Marker(agents.ArchitectureAnalysis), llm.Reply(`{"flows": [
		{"from": "frontend", "to": "Payment Provider", "data": "card tokens", "sensitivity": "critical"}
	]}`))
	m, err := newTestCompiler(t, stub).Regenerate(context.Background(), original, SectionArchitecture)
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}

	if len(m.Architecture.DataFlows) != 1 {
		t.Fatalf("data flows = %+v", m.Architecture.DataFlows)
	}
	f := m.Architecture.DataFlows[0]
	if f.Destination != "payment provider" || !f.Sensitive() {
		t.Errorf("flow = %+v", f)
	}
	if len(original.Architecture.DataFlows) != 2 {
		t.Error("input model was modified")
	}
	if len(m.Threats) != len(original.Threats) || len(m.OpenQuestions) != len(original.OpenQuestions) {
		t.Error("unrelated sections changed")
	}
}

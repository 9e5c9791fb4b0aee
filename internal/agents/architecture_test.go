package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark-chris/threatc/internal/llm"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

func TestAnalyzeArchitecture(t *testing.T) {
	reply := "Data flow analysis:\n```json\n{\n" +
		"  'data_flows': [\n" +
		"    {'source': 'Customer', 'destination': 'Web frontend', 'data_type': 'credentials', 'protocol': 'HTTPS', 'sensitivity': 'Critical', 'direction': 'bidirectional'},\n" +
		"    {'from': 'auth_service', 'to': 'database', 'data': 'password hashes'},\n" +
		"    {'source': 'database'},\n" +
		"  ],\n" +
		"  'trust_zones': [\n" +
		"    {'name': 'Internet', 'type': 'public', 'components': []},\n" +
		"    {'name': 'Application Tier', 'type': 'internal network', 'components': ['frontend', 'Login service', 'mainframe']},\n" +
		"    {'name': 'Data Tier', 'components': ['database']},\n" +
		"    {'name': 'data tier', 'components': []},\n" +
		"  ],\n" +
		"  'trust_boundaries': [\n" +
		"    {'connected_zones': ['Internet', 'Application Tier'], 'security_controls': ['WAF', 'TLS']},\n" +
		"    {'id': 'B-9', 'connected_zones': ['Application Tier', 'Partner Network']},\n" +
		"  ],\n" +
		"}\n```"
	stub := llm.NewStub().On(Marker(ArchitectureAnalysis), llm.Reply(reply))
	r := newTestRunner(t, stub)

	res, err := r.AnalyzeArchitecture(context.Background(), testContext())
	if err != nil {
		t.Fatalf("AnalyzeArchitecture() error = %v", err)
	}
	arch := res.Architecture

	if len(arch.DataFlows) != 2 {
		t.Fatalf("got %d flows, want 2: %+v", len(arch.DataFlows), arch.DataFlows)
	}
	login := arch.DataFlows[0]
	if login.Source != "customer" || login.Destination != "frontend" || login.Sensitivity != "high" || !login.Bidirectional {
		t.Errorf("first flow = %+v", login)
	}
	if f := arch.DataFlows[1]; f.Source != "auth_service" || f.Destination != "database" || f.DataType != "password hashes" {
		t.Errorf("second flow = %+v", f)
	}

	if len(arch.TrustZones) != 3 {
		t.Fatalf("zones = %+v", arch.TrustZones)
	}
	tests := []struct {
		zone       string
		typ        string
		components string
	}{
		{zone: "internet", typ: threatmodel.ZonePublic, components: ""},
		{zone: "application tier", typ: threatmodel.ZonePrivate, components: "frontend,auth_service"},
		{zone: "data tier", typ: threatmodel.ZoneRestricted, components: "database"},
	}
	for i, tt := range tests {
		z := arch.TrustZones[i]
		if z.Name != tt.zone || z.Type != tt.typ || strings.Join(z.Components, ",") != tt.components {
			t.Errorf("zone %d = %+v, want %s (%s) with %s", i, z, tt.zone, tt.typ, tt.components)
		}
	}

	if len(arch.TrustBoundaries) != 1 {
		t.Fatalf("boundaries = %+v", arch.TrustBoundaries)
	}
	if b := arch.TrustBoundaries[0]; b.ID != "TB-1" || len(b.SecurityControls) != 2 {
		t.Errorf("boundary = %+v", b)
	}

	// endpoint-less flow, duplicate zone, boundary to an unknown zone
	if len(res.Warnings) != 3 {
		t.Errorf("warnings = %v", res.Warnings)
	}

	m := &threatmodel.ThreatModel{Components: testContext().Components, Architecture: arch}
	for _, err := range m.Validate() {
		t.Errorf("invariant violated: %v", err)
	}
}

func TestAnalyzeArchitecture_RetriesWithoutLists(t *testing.T) {
	stub := llm.NewStub().On(Marker(ArchitectureAnalysis),
		llm.Reply(`{"summary": "three tiers"}`),
		llm.Reply(`{"data_flows": [{"source": "frontend", "destination": "database"}]}`))
	r := newTestRunner(t, stub)

	res, err := r.AnalyzeArchitecture(context.Background(), testContext())
	if err != nil {
		t.Fatalf("AnalyzeArchitecture() error = %v", err)
	}
	if len(res.Architecture.DataFlows) != 1 || len(res.Architecture.TrustZones) != 0 {
		t.Errorf("architecture = %+v", res.Architecture)
	}
	if n := stub.CallCount(Marker(ArchitectureAnalysis)); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestArchitecturePrompt(t *testing.T) {
	stub := llm.NewStub().On(Marker(ArchitectureAnalysis), llm.Reply(`{"data_flows": []}`))
	r := newTestRunner(t, stub)

	ac := testContext()
	ac.Notes = []string{"Sensitive assets: card numbers"}
	if _, err := r.AnalyzeArchitecture(context.Background(), ac); err != nil {
		t.Fatalf("AnalyzeArchitecture() error = %v", err)
	}

	prompt := stub.Calls()[0].Prompt
	for _, want := range []string{"id=database", "Owner-supplied context", "card numbers", `"trust_boundaries"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt lacks %q", want)
		}
	}
}

func TestGenerateQuestions(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{
			name:  "object",
			reply: `{"questions": ["Who can reset passwords?", "Where are backups kept?"]}`,
			want:  []string{"Who can reset passwords?", "Where are backups kept?"},
		},
		{
			name:  "bare list",
			reply: `["Who can reset passwords?"]`,
			want:  []string{"Who can reset passwords?"},
		},
		{
			name:  "question records",
			reply: `{"questions": [{"question": "Is TLS terminated at the load balancer?", "why": "boundary"}]}`,
			want:  []string{"Is TLS terminated at the load balancer?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := llm.NewStub().On(Marker(QuestionGeneration), llm.Reply(tt.reply))
			got, err := newTestRunner(t, stub).GenerateQuestions(context.Background(), testContext())
			if err != nil {
				t.Fatalf("GenerateQuestions() error = %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("GenerateQuestions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateQuestions_EmptyIsAnOutputError(t *testing.T) {
	stub := llm.NewStub().On(Marker(QuestionGeneration), llm.Reply(`{"questions": []}`))
	_, err := newTestRunner(t, stub).GenerateQuestions(context.Background(), testContext())

	var oe *threatmodel.AgentOutputError
	if !errors.As(err, &oe) {
		t.Fatalf("error = %v, want AgentOutputError", err)
	}
	if oe.Attempts != DefaultOptions().Retries+1 {
		t.Errorf("attempts = %d", oe.Attempts)
	}
}

func TestAnalyzeAnswers(t *testing.T) {
	stub := llm.NewStub().On(Marker(AnswerExtraction), llm.Reply(`{
		"security_components": ["WAF", "Okta"],
		"threat_vectors": "phishing",
		"sensitive_assets": [],
		"constraints": ["PCI DSS"]
	}`))
	r := newTestRunner(t, stub)

	aa, err := r.AnalyzeAnswers(context.Background(), []threatmodel.Answer{
		{Question: "How do staff sign in?", Answer: "Through Okta."},
		{Question: "Anything else?", Answer: ""},
	})
	if err != nil {
		t.Fatalf("AnalyzeAnswers() error = %v", err)
	}

	want := "Security components: WAF, Okta|Threat vectors: phishing|Constraints: PCI DSS"
	if got := strings.Join(aa.Notes(), "|"); got != want {
		t.Errorf("Notes() = %q, want %q", got, want)
	}
	prompt := stub.Calls()[0].Prompt
	if !strings.Contains(prompt, "Q: How do staff sign in?\nA: Through Okta.") || strings.Contains(prompt, "Anything else?") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestAnalyzeAnswers_NothingAnswered(t *testing.T) {
	stub := llm.NewStub()
	_, err := newTestRunner(t, stub).AnalyzeAnswers(context.Background(), []threatmodel.Answer{{Question: "Why?", Answer: " "}})

	var ie *threatmodel.InputError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want InputError", err)
	}
	if len(stub.Calls()) != 0 {
		t.Error("model called with no answers")
	}
}

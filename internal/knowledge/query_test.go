package knowledge

import (
	"testing"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// createTestIndex creates an index with a few templates across types
func createTestIndex() *Index {
	entries := []Entry{
		{
			ComponentType: threatmodel.TypeDatabase,
			TemplateID:    "DB-001",
			Name:          "SQL Injection",
			Category:      threatmodel.Tampering,
			AttackVectors: []string{"Unparameterized login query"},
			Severity:      threatmodel.SeverityCritical,
			Mitigations:   []string{"Use parameterized queries"},
		},
		{
			ComponentType: threatmodel.TypeDatabase,
			TemplateID:    "DB-002",
			Name:          "Unencrypted Data at Rest",
			Category:      threatmodel.InformationDisclosure,
			AttackVectors: []string{"Stolen backup media"},
			Severity:      threatmodel.SeverityHigh,
			Mitigations:   []string{"Enable transparent data encryption"},
		},
		{
			ComponentType: threatmodel.TypeCache,
			TemplateID:    "CACHE-001",
			Name:          "Unauthenticated Cache Access",
			Category:      threatmodel.InformationDisclosure,
			AttackVectors: []string{"Direct connection to an exposed port"},
			Severity:      threatmodel.SeverityHigh,
			Mitigations:   []string{"Require authentication on the cache"},
		},
		{
			ComponentType: threatmodel.TypeAuthService,
			TemplateID:    "AUTH-001",
			Name:          "Credential Stuffing",
			Category:      threatmodel.Spoofing,
			AttackVectors: []string{"Automated login attempts"},
			Severity:      threatmodel.SeverityHigh,
			Mitigations:   []string{"Enforce multi-factor authentication"},
		},
		{
			ComponentType: threatmodel.TypeFrontend,
			TemplateID:    "FE-002",
			Name:          "Cross-Site Request Forgery",
			Category:      threatmodel.Spoofing,
			Severity:      threatmodel.SeverityMedium,
			Mitigations:   []string{"Anti-CSRF tokens"},
		},
	}

	idx := NewIndex()
	idx.Build(entries, nil)
	return idx
}

func ids(result QueryResult) []string {
	var out []string
	for _, e := range result.Entries {
		out = append(out, e.TemplateID)
	}
	for _, e := range result.VerboseEntries {
		out = append(out, e.TemplateID)
	}
	return out
}

func TestQuery(t *testing.T) {
	idx := createTestIndex()

	tests := []struct {
		name string
		opts QueryOptions
		want []string
	}{
		{
			name: "relevance beats severity",
			opts: QueryOptions{Context: "cache exposed port", Limit: 5},
			want: []string{"CACHE-001"},
		},
		{
			name: "login matches two types",
			opts: QueryOptions{Context: "login", Limit: 5},
			// tied relevance, so severity decides
			want: []string{"DB-001", "AUTH-001"},
		},
		{
			name: "no context sorts by severity",
			opts: QueryOptions{Limit: 5},
			want: []string{"DB-001", "AUTH-001", "CACHE-001", "DB-002", "FE-002"},
		},
		{
			name: "component type filter",
			opts: QueryOptions{ComponentType: "db", Limit: 5},
			want: []string{"DB-001", "DB-002"},
		},
		{
			name: "category filter",
			opts: QueryOptions{Category: "information disclosure", Limit: 5},
			want: []string{"CACHE-001", "DB-002"},
		},
		{
			name: "unknown category matches nothing",
			opts: QueryOptions{Category: "gossip"},
			want: nil,
		},
		{
			name: "context with no matches",
			opts: QueryOptions{Context: "kubernetes helm chart"},
			want: nil,
		},
		{
			name: "agent default limit",
			opts: QueryOptions{},
			want: []string{"DB-001", "AUTH-001", "CACHE-001"},
		},
		{
			name: "human mode returns verbose entries",
			opts: QueryOptions{ComponentType: "database", Verbosity: "human"},
			want: []string{"DB-001", "DB-002"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Query(idx, tt.opts))
			if len(got) != len(tt.want) {
				t.Fatalf("Query() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Query()[%d] = %s, want %s (all: %v)", i, got[i], tt.want[i], got)
				}
			}
		})
	}
}

func TestQuery_AgentSummaryFields(t *testing.T) {
	result := Query(createTestIndex(), QueryOptions{ComponentType: "database", Limit: 1})

	if result.EntryCount != 2 || result.EntriesIncluded != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", result.EntryCount, result.EntriesIncluded)
	}
	s := result.Entries[0]
	if s.Threat != "SQL Injection" || s.Fix != "Use parameterized queries" || s.Category != "Tampering" {
		t.Errorf("summary = %+v", s)
	}
	if result.TokenCount == 0 {
		t.Error("expected a token count in agent mode")
	}
	if len(result.VerboseEntries) != 0 {
		t.Error("agent mode should not return verbose entries")
	}
}

func TestQuery_HumanDefaultLimit(t *testing.T) {
	var entries []Entry
	for i := 0; i < 15; i++ {
		entries = append(entries, Entry{
			ComponentType: threatmodel.TypeBackend,
			TemplateID:    "BE-" + string(rune('A'+i)),
			Name:          "Backend threat",
			Category:      threatmodel.DenialOfService,
			Severity:      threatmodel.SeverityMedium,
		})
	}
	idx := NewIndex()
	idx.Build(entries, nil)

	result := Query(idx, QueryOptions{Verbosity: "human"})
	if result.EntryCount != 15 || result.EntriesIncluded != 10 {
		t.Errorf("counts = %d/%d, want 15/10", result.EntryCount, result.EntriesIncluded)
	}
	if result.TokenCount != 0 || result.TokenLimitReached {
		t.Error("human mode has no token budget")
	}
}

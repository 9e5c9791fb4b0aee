package knowledge

import (
	"os"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// openShippedKnowledge loads the repository's knowledge directory.
// Returns nil when the data files are not available.
func openShippedKnowledge(t *testing.T) *Index {
	t.Helper()

	dir := findKnowledgeDir()
	if dir == "" {
		return nil
	}
	idx, result, err := Open(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Logf("Could not load knowledge base: %v", err)
		return nil
	}
	for _, e := range result.Errors {
		t.Errorf("shipped knowledge base has a broken item: %v", e)
	}
	return idx
}

// findKnowledgeDir locates the knowledge directory relative to the test
func findKnowledgeDir() string {
	candidates := []string{
		os.Getenv("THREATC_KNOWLEDGE_DIR"),
		"../../knowledge",
		"./knowledge",
	}
	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}

func TestIntegration_EveryBuiltinTypeHasTemplates(t *testing.T) {
	idx := openShippedKnowledge(t)
	if idx == nil {
		t.Skip("No knowledge base available, skipping integration test")
	}

	for _, ct := range []threatmodel.ComponentType{
		threatmodel.TypeFrontend,
		threatmodel.TypeBackend,
		threatmodel.TypeDatabase,
		threatmodel.TypeAPIGateway,
		threatmodel.TypeAuthService,
		threatmodel.TypeStorage,
		threatmodel.TypeCache,
		threatmodel.TypeLoadBalancer,
		threatmodel.TypeCDN,
		threatmodel.TypeMessageQueue,
	} {
		if len(idx.Lookup(ct)) == 0 {
			t.Errorf("no templates for %s", ct)
		}
	}
	if len(idx.Lookup(threatmodel.TypeCustom)) != 0 {
		t.Error("custom components must not have templates")
	}

	var sqli bool
	for _, e := range idx.Lookup(threatmodel.TypeDatabase) {
		if e.Category == threatmodel.Tampering && e.Name == "SQL Injection" {
			sqli = true
		}
	}
	if !sqli {
		t.Error("database templates should include a Tampering SQL injection entry")
	}
}

func TestIntegration_AgentMode(t *testing.T) {
	idx := openShippedKnowledge(t)
	if idx == nil {
		t.Skip("No knowledge base available, skipping integration test")
	}

	result := Query(idx, QueryOptions{Context: "login credential attempts", Limit: 3})

	if result.EntryCount == 0 {
		t.Fatal("Expected entries to match query context")
	}
	if result.EntriesIncluded > 3 {
		t.Errorf("Expected max 3 entries, got %d", result.EntriesIncluded)
	}
	if result.TokenCount > tokenLimit && !result.TokenLimitReached {
		t.Error("Token count exceeds limit but token_limit_reached not set")
	}
	if result.Entries[0].TemplateID != "AUTH-001" {
		t.Errorf("top entry = %s, want AUTH-001", result.Entries[0].TemplateID)
	}
	for _, e := range result.Entries {
		if e.TemplateID == "" || e.Severity == "" || e.Threat == "" || e.Fix == "" {
			t.Errorf("incomplete summary: %+v", e)
		}
	}
}

func TestIntegration_DeterministicOrdering(t *testing.T) {
	idx := openShippedKnowledge(t)
	if idx == nil {
		t.Skip("No knowledge base available, skipping integration test")
	}

	opts := QueryOptions{Context: "token session", Limit: 5}
	first := ids(Query(idx, opts))
	for run := 1; run < 3; run++ {
		got := ids(Query(idx, opts))
		if len(got) != len(first) {
			t.Fatalf("run %d: %v, want %v", run, got, first)
		}
		for i := range got {
			if got[i] != first[i] {
				t.Errorf("run %d: order mismatch at %d: %s vs %s", run, i, got[i], first[i])
			}
		}
	}

	// Without a context, results follow severity
	result := Query(idx, QueryOptions{Verbosity: "human", Limit: 50})
	for i := 1; i < len(result.VerboseEntries); i++ {
		prev, cur := result.VerboseEntries[i-1], result.VerboseEntries[i]
		if cur.Severity.Rank() < prev.Severity.Rank() {
			t.Errorf("%s (%s) ordered before %s (%s)", prev.TemplateID, prev.Severity, cur.TemplateID, cur.Severity)
		}
	}
}

package cli

import (
	"encoding/json"
	"testing"

	"github.com/mark-chris/threatc/internal/knowledge"
)

// TestIntegration_QueryThenGet follows the agent workflow: query for context,
// then fetch the full template of the best match.
func TestIntegration_QueryThenGet(t *testing.T) {
	setupCLI(t)
	queryContext = "automated login attempts with leaked credentials"

	output := captureOutput(func() {
		if err := runQuery(queryCmd, nil); err != nil {
			t.Errorf("runQuery() error = %v", err)
		}
	})
	var result knowledge.QueryResult
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("query output is not JSON: %v", err)
	}
	if len(result.Entries) == 0 {
		t.Fatal("query returned no entries")
	}
	top := result.Entries[0]
	if top.TemplateID != "AUTH-T01" || top.Fix == "" {
		t.Fatalf("top entry = %+v, want AUTH-T01 with a fix", top)
	}

	output = captureOutput(func() {
		if err := runGet(getCmd, []string{top.TemplateID}); err != nil {
			t.Errorf("runGet() error = %v", err)
		}
	})
	var entry knowledge.Entry
	if err := json.Unmarshal([]byte(output), &entry); err != nil {
		t.Fatalf("get output is not JSON: %v", err)
	}
	if entry.Name != top.Threat || len(entry.Mitigations) == 0 || entry.Mitigations[0] != top.Fix {
		t.Errorf("template %+v does not match summary %+v", entry, top)
	}
}

// TestIntegration_ShippedKnowledge validates the knowledge base that ships
// with the repository.
func TestIntegration_ShippedKnowledge(t *testing.T) {
	resetFlags()
	knowledgeDir = "../../knowledge"
	if !isDir(knowledgeDir) {
		t.Skip("shipped knowledge base not found")
	}
	t.Setenv("THREATC_LOG_LEVEL", "error")
	if err := initialize(); err != nil {
		t.Fatalf("initialize() error = %v", err)
	}

	var runErr error
	output := captureOutput(func() {
		runErr = runValidate(validateCmd, nil)
	})
	if runErr != nil {
		t.Errorf("shipped knowledge base fails validation: %v\n%s", runErr, output)
	}
	if index.Count() == 0 {
		t.Error("shipped knowledge base has no templates")
	}
}

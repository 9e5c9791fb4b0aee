package testutil

import (
	"os"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mark-chris/threatc/internal/knowledge"
)

// TestSetupTestKnowledge_CreatesDirectory verifies that the fixture directory exists
func TestSetupTestKnowledge_CreatesDirectory(t *testing.T) {
	fixture := SetupTestKnowledge(t)
	defer fixture.Cleanup()

	info, err := os.Stat(fixture.Dir)
	if err != nil {
		t.Fatalf("Failed to stat directory: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("SetupTestKnowledge created %s but it's not a directory", fixture.Dir)
	}

	files, err := os.ReadDir(fixture.Dir)
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Expected 2 files, got %d", len(files))
	}
}

// TestSetupTestKnowledge_Loads verifies the fixture loads cleanly through the real loader
func TestSetupTestKnowledge_Loads(t *testing.T) {
	fixture := SetupTestKnowledge(t)

	idx, result, err := knowledge.Open(fixture.Dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if result.Files != 2 {
		t.Errorf("Files = %d, want 2", result.Files)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Expected no load errors, got %v", result.Errors)
	}
	if idx.Count() != len(fixture.Entries) {
		t.Errorf("Count() = %d, want %d", idx.Count(), len(fixture.Entries))
	}
	for _, r := range result.Results {
		if len(r.Warnings) != 0 {
			t.Errorf("%s has warnings: %v", r.EntryID, r.Warnings)
		}
	}

	for _, e := range fixture.Entries {
		if _, ok := idx.Get(e.ID); !ok {
			t.Errorf("template %s missing from index", e.ID)
		}
	}
	if p, ok := idx.Profile("database"); !ok || len(p.BestPractices) != 1 {
		t.Errorf("database profile = %+v, %v", p, ok)
	}
}

// TestAddInvalidEntry verifies the invalid template is reported and skipped
func TestAddInvalidEntry(t *testing.T) {
	fixture := SetupTestKnowledge(t)
	bad := fixture.AddInvalidEntry(t)

	idx, result, err := knowledge.Open(fixture.Dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, ok := idx.Get(bad.ID); ok {
		t.Errorf("invalid template %s was indexed", bad.ID)
	}
	if len(result.Errors) != 1 || result.Errors[0].Entry != bad.ID {
		t.Errorf("Errors = %v, want one for %s", result.Errors, bad.ID)
	}
}

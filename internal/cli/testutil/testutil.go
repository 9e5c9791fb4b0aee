// Package testutil builds throwaway knowledge bases for command tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/mark-chris/threatc/internal/knowledge"
)

// TestFixture holds test resources and provides cleanup
type TestFixture struct {
	Dir     string               // Temporary directory containing the knowledge base
	Entries []knowledge.RawEntry // Every template written, in file order
	Cleanup func()               // Cleanup function to remove temporary resources
}

// SetupTestKnowledge creates a temporary knowledge base with four valid
// templates across database, auth_service and frontend, in one YAML and one
// JSON document.
func SetupTestKnowledge(t testing.TB) *TestFixture {
	t.Helper()

	tmpDir := t.TempDir()

	sqli := CreateTestEntry("DB-T01", "SQL Injection", "Tampering", "critical")
	sqli.AttackVectors = []string{"Unsanitized login form input reaches the query"}
	backups := CreateTestEntry("DB-T02", "Unencrypted Backups", "Information Disclosure", "high")
	backups.AttackVectors = []string{"Stolen backup media"}
	stuffing := CreateTestEntry("AUTH-T01", "Credential Stuffing", "Spoofing", "high")
	stuffing.AttackVectors = []string{"Automated login attempts with leaked credentials"}
	xss := CreateTestEntry("FE-T01", "Cross-Site Scripting", "Tampering", "high")
	xss.AttackVectors = []string{"Reflected script in search results"}

	server := knowledge.Document{Components: map[string]knowledge.ComponentProfile{
		"database": {
			CommonThreats: []knowledge.RawEntry{sqli, backups},
			BestPractices: []string{"Use least-privilege database accounts"},
		},
		"auth_service": {
			CommonThreats: []knowledge.RawEntry{stuffing},
		},
	}}
	client := knowledge.Document{Components: map[string]knowledge.ComponentProfile{
		"frontend": {CommonThreats: []knowledge.RawEntry{xss}},
	}}

	if err := writeYAML(filepath.Join(tmpDir, "server.yaml"), server); err != nil {
		t.Fatalf("Failed to write knowledge file: %v", err)
	}
	if err := writeJSON(filepath.Join(tmpDir, "client.json"), client); err != nil {
		t.Fatalf("Failed to write knowledge file: %v", err)
	}

	return &TestFixture{
		Dir:     tmpDir,
		Entries: []knowledge.RawEntry{sqli, backups, stuffing, xss},
		Cleanup: func() {}, // t.TempDir() handles cleanup automatically
	}
}

// AddInvalidEntry writes a document holding one template that fails
// validation: no mitigations and a category outside STRIDE.
func (f *TestFixture) AddInvalidEntry(t testing.TB) knowledge.RawEntry {
	t.Helper()

	bad := CreateTestEntry("CACHE-BAD", "Cache Gossip", "Gossip", "high")
	bad.Mitigations = nil
	doc := knowledge.Document{Components: map[string]knowledge.ComponentProfile{
		"cache": {CommonThreats: []knowledge.RawEntry{bad}},
	}}
	if err := writeYAML(filepath.Join(f.Dir, "invalid.yaml"), doc); err != nil {
		t.Fatalf("Failed to write knowledge file: %v", err)
	}
	return bad
}

// CreateTestEntry generates a template that validates without warnings
func CreateTestEntry(id, name, category, severity string) knowledge.RawEntry {
	return knowledge.RawEntry{
		ID:            id,
		Name:          name,
		Category:      category,
		Description:   "Test template for " + name,
		AttackVectors: []string{"test vector"},
		Severity:      severity,
		Impact: map[string]int{
			"confidentiality": 6,
			"integrity":       6,
			"availability":    3,
		},
		Mitigations:      []string{"Test mitigation for " + name},
		DetectionMethods: []string{"Test detection"},
	}
}

func writeYAML(path string, doc knowledge.Document) error {
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	// #nosec G306 -- Test files don't need restrictive permissions
	return os.WriteFile(path, data, 0644)
}

func writeJSON(path string, doc knowledge.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	// #nosec G306 -- Test files don't need restrictive permissions
	return os.WriteFile(path, data, 0644)
}

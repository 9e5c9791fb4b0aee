package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark-chris/threatc/internal/knowledge"
)

func TestComponentCommand(t *testing.T) {
	setupCLI(t)

	output := captureOutput(func() {
		if err := runComponent(componentCmd, []string{"db"}); err != nil {
			t.Errorf("runComponent() error = %v", err)
		}
	})

	var got struct {
		knowledge.Profile
		Threats []knowledge.Entry `json:"threats"`
	}
	if err := json.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, output)
	}
	if got.ComponentType != "database" {
		t.Errorf("component_type = %q, want database", got.ComponentType)
	}
	if len(got.Threats) != 2 || len(got.BestPractices) != 1 {
		t.Errorf("got %d threats and %d best practices, want 2 and 1", len(got.Threats), len(got.BestPractices))
	}
}

func TestComponentCommand_Verbose(t *testing.T) {
	setupCLI(t)
	verbose = true

	output := captureOutput(func() {
		if err := runComponent(componentCmd, []string{"database"}); err != nil {
			t.Errorf("runComponent() error = %v", err)
		}
	})

	for _, want := range []string{"database: 2 threat template(s)", "BEST PRACTICES", "[DB-T01] SQL Injection"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestComponentCommand_Unknown(t *testing.T) {
	setupCLI(t)

	err := runComponent(componentCmd, []string{"mainframe"})
	if err == nil || !strings.Contains(err.Error(), "no knowledge for component type") {
		t.Errorf("runComponent() error = %v", err)
	}
}

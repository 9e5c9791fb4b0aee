package cli

import (
	"strings"
	"testing"
)

func TestListCommand(t *testing.T) {
	setupCLI(t)

	output := captureOutput(func() {
		if err := runList(listCmd, nil); err != nil {
			t.Errorf("runList() error = %v", err)
		}
	})

	if !strings.Contains(output, "Found 4 template(s) for 3 component type(s):") {
		t.Errorf("unexpected summary:\n%s", output)
	}
	for _, id := range []string{"DB-T01", "DB-T02", "AUTH-T01", "FE-T01"} {
		if !strings.Contains(output, id) {
			t.Errorf("list output missing %s", id)
		}
	}
}

func TestShortCategory(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Spoofing", "S"},
		{"Tampering", "T"},
		{"Information Disclosure", "ID"},
		{"Denial of Service", "DS"},
		{"Elevation of Privilege", "EP"},
	}
	for _, tt := range tests {
		if got := shortCategory(tt.in); got != tt.want {
			t.Errorf("shortCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

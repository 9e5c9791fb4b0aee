package threatmodel

import (
	"math"
	"strings"
	"testing"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"SQL Injection", "sql,injection"},
		{"SQL injection via the login form", "sql,injection,login,form"},
		{"Session tokens leaked in logs", "session,token,leaked,log"},
		{"Access control bypass", "access,control,bypass"},
		{"Cross-Site Scripting (XSS)", "cross,site,scripting,xss"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := strings.Join(NormalizeTitle(tt.title), ",")
			if got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestTitleOverlap(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"SQL Injection", "sql injection", 1},
		{"SQL Injection", "SQL Injection attacks", 2.0 / 3.0},
		{"SQL Injection", "SQL injection via login form", 0.5},
		{"SQL Injection", "Credential Stuffing", 0},
		{"", "SQL Injection", 0},
	}

	for _, tt := range tests {
		got := TitleOverlap(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("TitleOverlap(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if back := TitleOverlap(tt.b, tt.a); math.Abs(back-got) > 1e-9 {
			t.Errorf("TitleOverlap is not symmetric for %q and %q", tt.a, tt.b)
		}
	}
}

func TestSameThreat(t *testing.T) {
	base := Threat{Category: Tampering, Title: "SQL Injection", AffectedComponents: []string{"database"}}

	tests := []struct {
		name  string
		other Threat
		want  bool
	}{
		{"identical", base, true},
		{"similar title", Threat{Category: Tampering, Title: "SQL injection attacks", AffectedComponents: []string{"api", "database"}}, true},
		{"other category", Threat{Category: InformationDisclosure, Title: "SQL Injection", AffectedComponents: []string{"database"}}, false},
		{"disjoint components", Threat{Category: Tampering, Title: "SQL Injection", AffectedComponents: []string{"cache"}}, false},
		{"different title", Threat{Category: Tampering, Title: "Log forging", AffectedComponents: []string{"database"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameThreat(base, tt.other, DefaultSimilarityThreshold); got != tt.want {
				t.Errorf("SameThreat() = %v, want %v", got, tt.want)
			}
		})
	}
}

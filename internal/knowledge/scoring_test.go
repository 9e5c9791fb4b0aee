package knowledge

import (
	"math"
	"slices"
	"testing"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single word", "injection", []string{"injection"}},
		{"two words", "sql injection", []string{"sql", "injection", "sql injection"}},
		{"three words lowercased", "Session Token Theft", []string{
			"session", "token", "theft",
			"session token", "token theft",
			"session token theft",
		}},
		{"duplicates removed", "cache cache poisoning", []string{
			"cache", "poisoning",
			"cache cache", "cache poisoning",
			"cache cache poisoning",
		}},
		{"punctuation splits", "redis, memcached.", []string{"redis", "memcached", "redis memcached"}},
		{"empty", "", []string{}},
		{"whitespace only", "   \t\n  ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.input)
			if !equalIgnoreOrder(got, tt.want) {
				t.Errorf("ExtractKeywords(%q) = %v, want %v (any order)", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractKeywords_StopsAtTrigrams(t *testing.T) {
	got := ExtractKeywords("public bucket exposure through leaked urls")

	for _, kw := range []string{"public bucket exposure", "leaked urls", "exposure"} {
		if !slices.Contains(got, kw) {
			t.Errorf("missing keyword %q", kw)
		}
	}
	for _, kw := range []string{"public bucket exposure through", "bucket exposure through leaked"} {
		if slices.Contains(got, kw) {
			t.Errorf("unexpected 4-gram %q", kw)
		}
	}
}

func TestEntryKeywords_CoversVectorsAndType(t *testing.T) {
	e := Entry{
		ComponentType: threatmodel.TypeCache,
		Name:          "Cache Poisoning",
		Category:      threatmodel.Tampering,
		AttackVectors: []string{"Unkeyed request headers"},
	}
	got := entryKeywords(e)

	for _, kw := range []string{"cache poisoning", "tampering", "cache", "unkeyed request headers"} {
		if !slices.Contains(got, kw) {
			t.Errorf("entryKeywords missing %q: %v", kw, got)
		}
	}
	seen := make(map[string]bool)
	for _, kw := range got {
		if seen[kw] {
			t.Errorf("duplicate keyword %q", kw)
		}
		seen[kw] = true
	}
}

func TestCalculateRelevance(t *testing.T) {
	tests := []struct {
		name  string
		query []string
		entry []string
		want  float64
	}{
		{"no matches", []string{"redis"}, []string{"sql", "injection"}, 0},
		{"single match", []string{"sql", "redis"}, []string{"sql", "injection", "database"}, 2 + 1.0/3},
		{"all match", []string{"sql", "injection"}, []string{"sql", "injection"}, 4 + 1},
		{"case insensitive", []string{"jwt"}, []string{"JWT", "Claims"}, 2 + 0.5},
		{"empty query", []string{}, []string{"sql"}, 0},
		{"empty entry", []string{"sql"}, []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateRelevance(tt.query, tt.entry)
			if !floatEqual(got, tt.want) {
				t.Errorf("CalculateRelevance() = %v, want %v", got, tt.want)
			}
		})
	}
}

// More matches outrank better coverage: 4 of 20 beats 3 of 10.
func TestCalculateRelevance_MatchesOutweighCoverage(t *testing.T) {
	query := []string{"sql", "injection", "login", "form", "database"}

	narrow := []string{"sql", "injection", "login", "k4", "k5", "k6", "k7", "k8", "k9", "k10"}
	wide := []string{
		"sql", "injection", "login", "form",
		"k5", "k6", "k7", "k8", "k9", "k10",
		"k11", "k12", "k13", "k14", "k15", "k16", "k17", "k18", "k19", "k20",
	}

	narrowScore := CalculateRelevance(query, narrow)
	wideScore := CalculateRelevance(query, wide)

	if !floatEqual(narrowScore, 6.3) {
		t.Errorf("narrow score = %v, want 6.3", narrowScore)
	}
	if !floatEqual(wideScore, 8.2) {
		t.Errorf("wide score = %v, want 8.2", wideScore)
	}
	if wideScore <= narrowScore {
		t.Errorf("wide score (%v) should be > narrow score (%v)", wideScore, narrowScore)
	}
}

func equalIgnoreOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.0001
}

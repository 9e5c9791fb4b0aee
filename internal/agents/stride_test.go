package agents

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFirstSentence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"first sentence", "Attacker replays tokens. Then more.", "Attacker replays tokens"},
		{"first line", "Session fixation\nsecond line", "Session fixation"},
		{"long ascii", strings.Repeat("a", 100), strings.Repeat("a", 80)},
		{"rune across the cut", strings.Repeat("a", 79) + "éé", strings.Repeat("a", 79)},
		{"multibyte title", strings.Repeat("脆弱", 20), strings.Repeat("脆弱", 13)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := firstSentence(tt.in)
			if !utf8.ValidString(got) {
				t.Fatalf("firstSentence() returned invalid UTF-8: %q", got)
			}
			if got != tt.want {
				t.Errorf("firstSentence() = %q, want %q", got, tt.want)
			}
		})
	}
}

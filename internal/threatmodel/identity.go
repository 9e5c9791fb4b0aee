package threatmodel

import (
	"strings"
	"unicode"
)

// DefaultSimilarityThreshold is the title overlap at or above which two threats
// with the same category and overlapping components are the same threat.
const DefaultSimilarityThreshold = 0.6

var titleStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "to": true, "in": true,
	"on": true, "for": true, "via": true, "by": true, "and": true, "or": true,
	"with": true, "from": true, "at": true, "into": true, "through": true,
	"is": true, "be": true, "can": true, "may": true,
}

// NormalizeTitle lowercases a title, splits it on anything that is not a letter
// or digit, drops stopwords and strips a plural "s".
func NormalizeTitle(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if titleStopwords[f] {
			continue
		}
		if len(f) > 3 && strings.HasSuffix(f, "s") && !strings.HasSuffix(f, "ss") {
			f = strings.TrimSuffix(f, "s")
		}
		if !seen[f] {
			seen[f] = true
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// TitleOverlap is the Jaccard overlap of two normalized titles, in [0,1]
func TitleOverlap(a, b string) float64 {
	ta, tb := NormalizeTitle(a), NormalizeTitle(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	shared := 0
	for _, t := range tb {
		if set[t] {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// ComponentsOverlap reports whether two component id sets share a member
func ComponentsOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// SameThreat applies the threat identity rule: same category, overlapping
// affected components and title overlap at or above threshold.
func SameThreat(a, b Threat, threshold float64) bool {
	if a.Category != b.Category {
		return false
	}
	if !ComponentsOverlap(a.AffectedComponents, b.AffectedComponents) {
		return false
	}
	return TitleOverlap(a.Title, b.Title) >= threshold
}

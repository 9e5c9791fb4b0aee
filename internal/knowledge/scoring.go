package knowledge

import (
	"strings"
)

// ExtractKeywords extracts 1-grams, 2-grams, and 3-grams from the input string.
// Returns a deduplicated list of case-insensitive keywords.
func ExtractKeywords(input string) []string {
	words := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ',' || r == '.' || r == ';' || r == ':' || r == '(' || r == ')'
	})
	if len(words) == 0 {
		return []string{}
	}

	keywordMap := make(map[string]bool)
	keywords := make([]string, 0, len(words)*3)

	for n := 1; n <= 3 && n <= len(words); n++ {
		for i := 0; i <= len(words)-n; i++ {
			ngram := strings.Join(words[i:i+n], " ")
			if !keywordMap[ngram] {
				keywordMap[ngram] = true
				keywords = append(keywords, ngram)
			}
		}
	}

	return keywords
}

// entryKeywords derives the matchable vocabulary of an entry from its name,
// category, component type and attack vectors.
func entryKeywords(e Entry) []string {
	var parts []string
	parts = append(parts, e.Name, string(e.Category), string(e.ComponentType))
	parts = append(parts, e.AttackVectors...)

	seen := make(map[string]bool)
	var out []string
	for _, p := range parts {
		for _, kw := range ExtractKeywords(p) {
			if !seen[kw] {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}
	return out
}

// CalculateRelevance calculates the relevance score for an entry based on keyword matches.
// Uses the hybrid formula: (matched_keywords × 2) + (matched_keywords / total_entry_keywords)
// Returns 0.0 if no matches or invalid input.
func CalculateRelevance(queryKeywords, entryKeywords []string) float64 {
	if len(queryKeywords) == 0 || len(entryKeywords) == 0 {
		return 0.0
	}

	entryMap := make(map[string]bool)
	for _, keyword := range entryKeywords {
		entryMap[strings.ToLower(keyword)] = true
	}

	matchCount := 0
	for _, queryKeyword := range queryKeywords {
		if entryMap[strings.ToLower(queryKeyword)] {
			matchCount++
		}
	}

	if matchCount == 0 {
		return 0.0
	}

	matchWeight := float64(matchCount) * 2.0
	coverageRatio := float64(matchCount) / float64(len(entryKeywords))

	return matchWeight + coverageRatio
}

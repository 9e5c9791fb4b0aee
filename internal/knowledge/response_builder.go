package knowledge

import (
	"encoding/json"
)

// tokenLimit is the maximum token count for agent-mode responses.
const tokenLimit = 500

// buildAgentResponse builds a token-limited response for agent consumption
func buildAgentResponse(candidates []Entry, limit int) QueryResult {
	// without an encoder the counter approximates
	counter, _ := NewTokenCounter()

	result := QueryResult{
		EntryCount: len(candidates),
		Entries:    make([]EntrySummary, 0, limit),
	}

	totalTokens := 0
	for i, e := range candidates {
		if i >= limit {
			break
		}

		summary := summarize(e)
		data, _ := json.Marshal(summary)
		entryTokens := counter.CountTokens(string(data))

		// The first entry is always included, even when it alone exceeds the limit
		if len(result.Entries) > 0 && totalTokens+entryTokens > tokenLimit {
			result.TokenLimitReached = true
			break
		}

		result.Entries = append(result.Entries, summary)
		totalTokens += entryTokens

		if totalTokens > tokenLimit {
			result.TokenLimitReached = true
			break
		}
	}

	result.EntriesIncluded = len(result.Entries)
	result.TokenCount = totalTokens
	return result
}

// buildVerboseResponse builds a comprehensive response for human consumption
func buildVerboseResponse(candidates []Entry, limit int) QueryResult {
	result := QueryResult{
		EntryCount:     len(candidates),
		VerboseEntries: make([]Entry, 0, limit),
	}

	for i, e := range candidates {
		if i >= limit {
			break
		}
		result.VerboseEntries = append(result.VerboseEntries, e)
	}

	result.EntriesIncluded = len(result.VerboseEntries)
	return result
}

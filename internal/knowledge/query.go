package knowledge

import (
	"sort"
	"strings"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// QueryOptions configures a query
type QueryOptions struct {
	Context       string
	ComponentType string
	Category      string
	Limit         int
	Verbosity     string // "agent" or "human"
}

// QueryResult holds the results of a query
type QueryResult struct {
	EntryCount        int            `json:"entry_count"`
	EntriesIncluded   int            `json:"entries_included"`
	TokenCount        int            `json:"token_count,omitempty"`
	TokenLimitReached bool           `json:"token_limit_reached,omitempty"`
	Entries           []EntrySummary `json:"entries,omitempty"`
	VerboseEntries    []Entry        `json:"verbose_entries,omitempty"`
}

// EntrySummary is the compact agent-facing view of an entry
type EntrySummary struct {
	TemplateID    string `json:"id"`
	ComponentType string `json:"component_type"`
	Category      string `json:"category"`
	Severity      string `json:"severity"`
	Threat        string `json:"threat"`
	Fix           string `json:"fix,omitempty"`
}

// entryWithScore holds an entry and its relevance score
type entryWithScore struct {
	entry Entry
	score float64
}

// Query executes a query against the index
func Query(idx *Index, opts QueryOptions) QueryResult {
	var candidates []Entry
	if opts.ComponentType != "" {
		candidates = idx.Lookup(threatmodel.NormalizeComponentType(opts.ComponentType))
	} else {
		candidates = idx.All()
	}

	if opts.Category != "" {
		if c, ok := threatmodel.ParseCategory(opts.Category); ok {
			candidates = filterByCategory(candidates, c)
		} else {
			candidates = nil
		}
	}

	scored := make([]entryWithScore, len(candidates))
	queryKeywords := ExtractKeywords(opts.Context)
	for i, e := range candidates {
		scored[i] = entryWithScore{entry: e, score: CalculateRelevance(queryKeywords, entryKeywords(e))}
	}

	// With a context, entries that match nothing are dropped
	if strings.TrimSpace(opts.Context) != "" {
		kept := scored[:0]
		for _, s := range scored {
			if s.score > 0 {
				kept = append(kept, s)
			}
		}
		scored = kept
	}

	sortByRelevance(scored)

	limit := opts.Limit
	if limit <= 0 {
		if opts.Verbosity == "human" {
			limit = 10
		} else {
			limit = 3
		}
	}

	ranked := make([]Entry, len(scored))
	for i, s := range scored {
		ranked[i] = s.entry
	}

	if opts.Verbosity == "human" {
		return buildVerboseResponse(ranked, limit)
	}
	return buildAgentResponse(ranked, limit)
}

// filterByCategory filters entries by STRIDE category
func filterByCategory(entries []Entry, c threatmodel.Category) []Entry {
	var filtered []Entry
	for _, e := range entries {
		if e.Category == c {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// sortByRelevance sorts entries by relevance score (highest first),
// with severity and template id as tiebreakers
func sortByRelevance(scored []entryWithScore) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}

		si := scored[i].entry.Severity.Rank()
		sj := scored[j].entry.Severity.Rank()
		if si != sj {
			return si < sj
		}

		return scored[i].entry.TemplateID < scored[j].entry.TemplateID
	})
}

func summarize(e Entry) EntrySummary {
	s := EntrySummary{
		TemplateID:    e.TemplateID,
		ComponentType: string(e.ComponentType),
		Category:      string(e.Category),
		Severity:      string(e.Severity),
		Threat:        e.Name,
	}
	if len(e.Mitigations) > 0 {
		s.Fix = e.Mitigations[0]
	}
	return s
}

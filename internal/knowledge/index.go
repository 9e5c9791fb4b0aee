package knowledge

import (
	"slices"
	"sort"
	"sync"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Index is the read-only knowledge base registry. Build it once at startup and
// share the pointer; lookups never mutate it.
type Index struct {
	entries    []Entry
	byType     map[threatmodel.ComponentType][]int
	byKey      map[string]int
	byID       map[string][]int
	byCategory map[threatmodel.Category][]int
	profiles   map[threatmodel.ComponentType]Profile
	mu         sync.RWMutex
}

// NewIndex creates a new empty index
func NewIndex() *Index {
	return &Index{
		entries:    make([]Entry, 0),
		byType:     make(map[threatmodel.ComponentType][]int),
		byKey:      make(map[string]int),
		byID:       make(map[string][]int),
		byCategory: make(map[threatmodel.Category][]int),
		profiles:   make(map[threatmodel.ComponentType]Profile),
	}
}

// Build creates the index from validated entries and component profiles.
// Profiles for the same type are concatenated.
func (idx *Index) Build(entries []Entry, profiles []Profile) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = slices.Clone(entries)
	idx.byType = make(map[threatmodel.ComponentType][]int)
	idx.byKey = make(map[string]int)
	idx.byID = make(map[string][]int)
	idx.byCategory = make(map[threatmodel.Category][]int)
	idx.profiles = make(map[threatmodel.ComponentType]Profile)

	for i, e := range idx.entries {
		idx.byType[e.ComponentType] = append(idx.byType[e.ComponentType], i)
		idx.byCategory[e.Category] = append(idx.byCategory[e.Category], i)
		if _, dup := idx.byKey[e.Key()]; !dup {
			idx.byKey[e.Key()] = i
			idx.byID[e.TemplateID] = append(idx.byID[e.TemplateID], i)
		}
	}

	for _, p := range profiles {
		cur, ok := idx.profiles[p.ComponentType]
		if !ok {
			idx.profiles[p.ComponentType] = p
			continue
		}
		cur.SecurityConsiderations = append(slices.Clone(cur.SecurityConsiderations), p.SecurityConsiderations...)
		cur.BestPractices = append(slices.Clone(cur.BestPractices), p.BestPractices...)
		if len(p.ComplianceRequirements) > 0 {
			merged := make(map[string][]string, len(cur.ComplianceRequirements)+len(p.ComplianceRequirements))
			for k, v := range cur.ComplianceRequirements {
				merged[k] = v
			}
			for k, v := range p.ComplianceRequirements {
				merged[k] = append(slices.Clone(merged[k]), v...)
			}
			cur.ComplianceRequirements = merged
		}
		idx.profiles[p.ComponentType] = cur
	}
}

// Lookup returns the threat templates for a component type, in load order.
// Custom and unknown types have none.
func (idx *Index) Lookup(t threatmodel.ComponentType) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.collect(idx.byType[t])
}

// AllTypes returns every component type with at least one entry, sorted
func (idx *Index) AllTypes() []threatmodel.ComponentType {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	types := make([]threatmodel.ComponentType, 0, len(idx.byType))
	for t := range idx.byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Get returns an entry by its qualified key (see Entry.Key) or by a bare
// template id. A bare id shared by several component types matches nothing.
func (idx *Index) Get(ref string) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if i, ok := idx.byKey[ref]; ok {
		return idx.entries[i], true
	}
	if matches := idx.byID[ref]; len(matches) == 1 {
		return idx.entries[matches[0]], true
	}
	return Entry{}, false
}

// Matching returns every entry whose template id is templateID, one per
// component type that defines it.
func (idx *Index) Matching(templateID string) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.collect(idx.byID[templateID])
}

// ByCategory returns all entries in a STRIDE category
func (idx *Index) ByCategory(c threatmodel.Category) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.collect(idx.byCategory[c])
}

// Profile returns the guidance for a component type
func (idx *Index) Profile(t threatmodel.ComponentType) (Profile, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.profiles[t]
	return p, ok
}

// All returns every indexed entry
func (idx *Index) All() []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return slices.Clone(idx.entries)
}

// Count returns the number of indexed entries
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func (idx *Index) collect(positions []int) []Entry {
	out := make([]Entry, 0, len(positions))
	for _, i := range positions {
		out = append(out, idx.entries[i])
	}
	return out
}

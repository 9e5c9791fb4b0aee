package threatmodel

import (
	"fmt"
	"strconv"
	"strings"
)

// IDAllocator issues "<PREFIX>-<ordinal>" threat ids. Ordinals increase per
// category and are never handed out twice, even after the threat holding one
// has been merged away.
type IDAllocator struct {
	counters map[Category]int
}

// NewIDAllocator creates an allocator that continues from the given counters.
// A nil map starts every category at zero.
func NewIDAllocator(seed map[Category]int) *IDAllocator {
	a := &IDAllocator{counters: make(map[Category]int, len(Categories))}
	for c, n := range seed {
		a.counters[c] = n
	}
	return a
}

// Next issues the next id for a category
func (a *IDAllocator) Next(c Category) string {
	a.counters[c]++
	return FormatThreatID(c, a.counters[c])
}

// Reserve records an id issued elsewhere (a prior compilation) so it is never
// issued again. Ids that do not parse are ignored.
func (a *IDAllocator) Reserve(id string) {
	c, n, err := ParseThreatID(id)
	if err != nil {
		return
	}
	if n > a.counters[c] {
		a.counters[c] = n
	}
}

// Counters returns a copy of the per-category high-water marks
func (a *IDAllocator) Counters() map[Category]int {
	out := make(map[Category]int, len(a.counters))
	for c, n := range a.counters {
		out[c] = n
	}
	return out
}

// FormatThreatID renders a threat id
func FormatThreatID(c Category, ordinal int) string {
	return c.Prefix() + "-" + strconv.Itoa(ordinal)
}

// ParseThreatID splits a threat id into its category and ordinal
func ParseThreatID(id string) (Category, int, error) {
	prefix, num, ok := strings.Cut(id, "-")
	if !ok {
		return "", 0, fmt.Errorf("malformed threat id: %q", id)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("malformed threat id ordinal: %q", id)
	}
	for c, p := range categoryPrefixes {
		if p == prefix {
			return c, n, nil
		}
	}
	return "", 0, fmt.Errorf("unknown threat id prefix: %q", id)
}

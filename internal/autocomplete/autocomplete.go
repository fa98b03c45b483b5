// Package autocomplete keeps a sorted set of strings and cycles through the
// entries that share a prefix, the way TAB completion walks candidates.
package autocomplete

import (
	"sort"
	"strings"
)

// Completer is a sorted, duplicate free list with a cycling prefix search.
// It is not safe for concurrent use.
type Completer struct {
	items     []string
	root      string
	lastFound string
	searching bool
}

// New creates an empty completer
func New() *Completer {
	return &Completer{}
}

func (c *Completer) index(item string) (int, bool) {
	i := sort.SearchStrings(c.items, item)
	return i, i < len(c.items) && c.items[i] == item
}

// Add inserts item in sorted position. It returns false if item is already present.
func (c *Completer) Add(item string) bool {
	i, found := c.index(item)
	if found {
		return false
	}
	c.items = append(c.items, "")
	copy(c.items[i+1:], c.items[i:])
	c.items[i] = item
	return true
}

// Remove deletes item, resetting the search if it was the last match
func (c *Completer) Remove(item string) bool {
	i, found := c.index(item)
	if !found {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	if c.lastFound == item {
		c.Reset()
	}
	return true
}

// Contains reports whether item is present
func (c *Completer) Contains(item string) bool {
	_, found := c.index(item)
	return found
}

// Items returns a copy of the entries in ascending order
func (c *Completer) Items() []string {
	out := make([]string, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of entries
func (c *Completer) Len() int {
	return len(c.items)
}

// Complete returns the next entry matching the search root.
// The first call after a reset fixes the root to search; later calls ignore
// their argument and continue after the previous match, wrapping at the end.
// An empty result means nothing matched and the search was reset.
func (c *Completer) Complete(search string) string {
	if !c.searching {
		c.root = search
		c.searching = true
		if found := c.find(0); found != "" {
			return found
		}
		c.Reset()
		return ""
	}

	start, found := c.index(c.lastFound)
	if found {
		start++
	}
	if found := c.find(start); found != "" {
		return found
	}
	if found := c.find(0); found != "" {
		return found
	}
	c.Reset()
	return ""
}

func (c *Completer) find(from int) string {
	for i := from; i < len(c.items); i++ {
		if strings.HasPrefix(c.items[i], c.root) {
			c.lastFound = c.items[i]
			return c.items[i]
		}
	}
	return ""
}

// Reset restarts the cycle so the next Complete call begins a new search
func (c *Completer) Reset() {
	c.root = ""
	c.lastFound = ""
	c.searching = false
}

// Clear removes all entries
func (c *Completer) Clear() {
	c.items = nil
	c.Reset()
}

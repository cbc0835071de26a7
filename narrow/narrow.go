// Package narrow turns a multi-token business name into a decreasing
// sequence of search queries: the full name first, then the name with the
// trailing token dropped, down to a single token. The sequence is finite by
// construction, which keeps fallback depth bounded without sleep-and-retry
// loops.
package narrow

import (
	"iter"
	"strings"
)

// Queries returns a fresh, finite sequence of lower-cased search queries for
// rawName. A single-token name yields exactly one query; an empty name yields
// none (callers must treat that as immediately unresolved).
func Queries(rawName string) iter.Seq[string] {
	return func(yield func(string) bool) {
		tokens := strings.Fields(strings.ToLower(rawName))
		for n := len(tokens); n >= 1; n-- {
			if !yield(strings.Join(tokens[:n], " ")) {
				return
			}
		}
	}
}

// Count returns how many queries Queries(rawName) will yield.
func Count(rawName string) int {
	return len(strings.Fields(rawName))
}

// Package keywords implements the case-insensitive keyword lookups shared by
// the relevance filter, the fallback classifier and the scorer.
package keywords

import (
	"sort"
	"strings"

	"github.com/boazzati/AFH-Platform-sub001/internal/fingerprint"
)

type category struct {
	name  string
	words []string
}

// Set is an immutable collection of named keyword categories.
type Set struct {
	cats []category
}

// NewSet builds a set from category name to keywords. Keywords are
// normalized the same way as text so matching ignores case and spacing.
func NewSet(m map[string][]string) *Set {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	s := &Set{cats: make([]category, 0, len(names))}
	for _, name := range names {
		words := NewList(m[name])
		if len(words) == 0 {
			continue
		}
		s.cats = append(s.cats, category{name: strings.ToLower(name), words: words})
	}
	return s
}

// Categories returns the sorted names of every category with at least one
// keyword present in text.
func (s *Set) Categories(text string) []string {
	t := fingerprint.Normalize(text)
	var out []string
	for _, c := range s.cats {
		if containsAny(t, c.words) {
			out = append(out, c.name)
		}
	}
	return out
}

// List is a flat keyword list.
type List []string

// NewList normalizes and deduplicates words, dropping empty entries.
func NewList(words []string) List {
	seen := make(map[string]bool, len(words))
	out := make(List, 0, len(words))
	for _, w := range words {
		n := fingerprint.Normalize(w)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Count returns how many distinct keywords of l appear in text.
func (l List) Count(text string) int {
	t := fingerprint.Normalize(text)
	n := 0
	for _, w := range l {
		if strings.Contains(t, w) {
			n++
		}
	}
	return n
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

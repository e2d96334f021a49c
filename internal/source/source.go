// Package source fetches raw items from the named sources a cadence collects from.
package source

import (
	"context"
	"sort"
	"time"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

// Source kinds accepted in SourceConfig.Kind.
const (
	KindJinaSearch = "jina_search"
	KindHTML       = "html"
)

// Source fetches raw items for one configured source. Implementations
// return an error on any failure; the caller treats it as an empty result.
type Source interface {
	Fetch(ctx context.Context, cfg config.SourceConfig) ([]model.RawItem, error)
	// Configured reports whether the client has what it needs to make calls.
	Configured() bool
}

// Registry resolves a Source implementation by kind.
type Registry struct {
	byKind map[string]Source
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[string]Source)}
}

// Register adds or replaces the implementation for kind.
func (r *Registry) Register(kind string, s Source) {
	r.byKind[kind] = s
}

// Lookup returns the implementation for kind.
func (r *Registry) Lookup(kind string) (Source, bool) {
	s, ok := r.byKind[kind]
	return s, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.byKind))
	for k := range r.byKind {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// capItems truncates items to max when max is positive.
func capItems(items []model.RawItem, max int) []model.RawItem {
	if max > 0 && len(items) > max {
		return items[:max]
	}
	return items
}

// parseTime tries the given layout and the common feed layouts. The zero
// time is returned when nothing matches.
func parseTime(s, layout string) time.Time {
	if s == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC3339, time.RFC1123Z, time.RFC1123, "2006-01-02", "January 2, 2006", "2 Jan 2006"}
	if layout != "" {
		layouts = append([]string{layout}, layouts...)
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

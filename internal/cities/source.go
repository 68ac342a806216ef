// Package cities provides the city-name sources behind the autocomplete suggester.
package cities

import (
	"context"
	"strings"
)

// Source returns up to limit city names matching query.
type Source interface {
	Lookup(ctx context.Context, query string, limit int) ([]string, error)
}

// Searcher is the upstream search capability used by Remote.
type Searcher interface {
	SearchCities(ctx context.Context, query string) ([]string, error)
}

// Remote adapts a weather API search endpoint to Source.
type Remote struct {
	searcher Searcher
}

// NewRemote returns a Source backed by searcher.
func NewRemote(searcher Searcher) *Remote {
	return &Remote{searcher: searcher}
}

// Lookup calls the upstream search once and trims the result to limit.
func (r *Remote) Lookup(ctx context.Context, query string, limit int) ([]string, error) {
	names, err := r.searcher.SearchCities(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

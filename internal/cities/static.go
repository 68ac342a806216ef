package cities

import (
	"bufio"
	"context"
	_ "embed"
	"strings"
)

//go:embed cities.txt
var defaultList string

// Static matches against an in-memory list of city names.
type Static struct {
	names []string
	lower []string
}

// NewStatic builds a Static source from names. Blank entries and case-insensitive
// duplicates are dropped; the first spelling wins.
func NewStatic(names []string) *Static {
	s := &Static{}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		s.names = append(s.names, n)
		s.lower = append(s.lower, key)
	}
	return s
}

// Default returns the embedded world-cities list.
func Default() *Static {
	return NewStatic(parseList(defaultList))
}

// parseList reads one name per line, skipping blanks and # comments.
func parseList(raw string) []string {
	var names []string
	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names
}

// Lookup matches case-insensitively: prefix matches first, then substring matches,
// each group in list order.
func (s *Static) Lookup(ctx context.Context, query string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var prefix, substr []string
	for i, l := range s.lower {
		switch {
		case strings.HasPrefix(l, q):
			prefix = append(prefix, s.names[i])
		case strings.Contains(l, q):
			substr = append(substr, s.names[i])
		}
	}
	out := append(prefix, substr...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports how many names the source holds.
func (s *Static) Len() int {
	return len(s.names)
}

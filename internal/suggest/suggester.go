package suggest

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/city-weather-widget/internal/cache"
	"github.com/kjstillabower/city-weather-widget/internal/cities"
	"github.com/kjstillabower/city-weather-widget/internal/observability"
	"github.com/kjstillabower/city-weather-widget/internal/validation"
)

// Options configures a Suggester. Zero values fall back to defaults.
type Options struct {
	MinLength int
	Limit     int
	TTL       time.Duration
}

const (
	defaultMinLength = 2
	defaultLimit     = 8
	defaultTTL       = 10 * time.Minute
)

// Suggester looks up city names for a partial query using cache-aside over a cities.Source.
// Concurrent identical lookups share one source call.
type Suggester struct {
	source    cities.Source
	cache     cache.Cache
	minLength int
	limit     int
	ttl       time.Duration
	group     singleflight.Group
}

// NewSuggester creates a Suggester. c may be nil to disable caching.
func NewSuggester(source cities.Source, c cache.Cache, opts Options) *Suggester {
	s := &Suggester{
		source:    source,
		cache:     c,
		minLength: opts.MinLength,
		limit:     opts.Limit,
		ttl:       opts.TTL,
	}
	if s.minLength <= 0 {
		s.minLength = defaultMinLength
	}
	if s.limit <= 0 {
		s.limit = defaultLimit
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	return s
}

// MinLength returns the minimum trimmed query length, in runes, that produces suggestions.
func (s *Suggester) MinLength() int { return s.minLength }

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// Suggest returns at most limit city names matching query. Runs of whitespace are collapsed
// before the lookup, so the source sees the same text the cache key is built from. Queries
// shorter than the minimum length return an empty list without touching the cache or source.
func (s *Suggester) Suggest(ctx context.Context, query string) ([]string, error) {
	q := strings.Join(strings.Fields(query), " ")
	if utf8.RuneCountInString(q) < s.minLength {
		observability.SuggestionLookupsTotal.WithLabelValues("short").Inc()
		return nil, nil
	}
	key := validation.SuggestKey(q)
	logger := loggerFromContext(ctx)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			observability.CacheErrorsTotal.WithLabelValues("get").Inc()
			if logger != nil {
				logger.Warn("suggestion cache get failed", zap.String("query", key), zap.Error(err))
			}
		} else if ok {
			observability.SuggestionLookupsTotal.WithLabelValues("hit").Inc()
			return limit(cached, s.limit), nil
		}
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		// Shared by every waiter, so it must outlive any single caller.
		lookupCtx := context.WithoutCancel(ctx)
		names, err := s.source.Lookup(lookupCtx, q, s.limit)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if setErr := s.cache.Set(lookupCtx, key, names, s.ttl); setErr != nil {
				observability.CacheErrorsTotal.WithLabelValues("set").Inc()
				if logger != nil {
					logger.Warn("suggestion cache set failed", zap.String("query", key), zap.Error(setErr))
				}
			}
		}
		return names, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			observability.SuggestionLookupsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("suggest %q: %w", key, res.Err)
		}
		observability.SuggestionLookupsTotal.WithLabelValues("miss").Inc()
		names, _ := res.Val.([]string)
		if logger != nil {
			logger.Debug("suggestions served", zap.String("query", key), zap.Int("count", len(names)), zap.Bool("shared", res.Shared))
		}
		return limit(append([]string(nil), names...), s.limit), nil
	}
}

func limit(names []string, n int) []string {
	if len(names) > n {
		return names[:n]
	}
	return names
}

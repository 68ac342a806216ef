package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-widget/internal/observability"
)

// SuggestionFetcher is implemented by the suggest package. Fetching through it populates the cache.
// Used by SuggestionWarmer to avoid a circular dependency on the suggest package.
type SuggestionFetcher interface {
	Suggest(ctx context.Context, query string) ([]string, error)
}

// SuggestionWarmer prefetches suggestions for popular prefixes.
type SuggestionWarmer struct {
	fetcher SuggestionFetcher
	logger  *zap.Logger
}

// NewSuggestionWarmer creates a SuggestionWarmer that uses the given fetcher and logger.
func NewSuggestionWarmer(fetcher SuggestionFetcher, logger *zap.Logger) *SuggestionWarmer {
	return &SuggestionWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches suggestions for each prefix concurrently. Returns the joined per-prefix errors.
func (w *SuggestionWarmer) Warm(ctx context.Context, prefixes []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming suggestion cache", zap.Int("prefixes", len(prefixes)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(prefixes))
	for _, p := range prefixes {
		wg.Add(1)
		go func(prefix string) {
			defer wg.Done()
			if _, err := w.fetcher.Suggest(ctx, prefix); err != nil {
				errCh <- fmt.Errorf("warm %q: %w", prefix, err)
			}
		}(p)
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("suggestion cache warming complete", zap.Int("prefixes", len(prefixes)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *SuggestionWarmer) WarmPeriodic(ctx context.Context, prefixes []string, interval time.Duration) error {
	if err := w.Warm(ctx, prefixes); err != nil && w.logger != nil {
		w.logger.Warn("initial suggestion warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, prefixes); err != nil && w.logger != nil {
				w.logger.Warn("periodic suggestion warm failed", zap.Error(err))
			}
		}
	}
}

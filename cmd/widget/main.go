package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/city-weather-widget/internal/cache"
	"github.com/kjstillabower/city-weather-widget/internal/cities"
	"github.com/kjstillabower/city-weather-widget/internal/client"
	"github.com/kjstillabower/city-weather-widget/internal/config"
	httphandler "github.com/kjstillabower/city-weather-widget/internal/http"
	"github.com/kjstillabower/city-weather-widget/internal/observability"
	"github.com/kjstillabower/city-weather-widget/internal/suggest"
	"github.com/kjstillabower/city-weather-widget/internal/traffic"
	"github.com/kjstillabower/city-weather-widget/internal/widget"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewWeatherAPIClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	cacheSvc, memcacheCloser, err := newCache(cfg)
	if err != nil {
		logger.Fatal("suggestion cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend))

	source := newCitySource(cfg, weatherClient)
	if static, ok := source.(*cities.Static); ok {
		logger.Info("suggestion source", zap.String("source", cfg.SuggestSource), zap.Int("cities", static.Len()))
	} else {
		logger.Info("suggestion source", zap.String("source", cfg.SuggestSource))
	}
	suggester := suggest.NewSuggester(source, cacheSvc, suggest.Options{
		MinLength: cfg.SuggestMinLength,
		Limit:     cfg.SuggestLimit,
		TTL:       cfg.CacheTTL,
	})
	fetcher := widget.NewFetcher(weatherClient, logger)
	registry := widget.NewRegistry(func() *widget.Widget {
		return widget.New(fetcher, suggester, suggest.NewDebouncer(cfg.SuggestDebounce))
	}, cfg.SessionTTL, logger)
	observability.RegisterSessionGauge(registry.Len)

	pages, err := httphandler.NewPages(cfg.AppTitle)
	if err != nil {
		logger.Fatal("templates", zap.Error(err))
	}

	tracker := traffic.NewTracker(traffic.DefaultMaxAge)
	healthConfig := &httphandler.HealthConfig{
		CheckUpstream:        cfg.HealthCheckUpstream,
		OverloadWindow:       cfg.HealthOverloadWindow,
		OverloadThresholdPct: cfg.HealthOverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.HealthDegradedWindow,
		DegradedErrorPct:     cfg.HealthDegradedErrorPct,
		Traffic:              tracker,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}
	handler := httphandler.NewHandler(registry, weatherClient, pages, healthConfig, logger, cfg.SessionTTL)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		Traffic:        tracker,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return ignoreCanceled(registry.Run(gctx, janitorInterval(cfg.SessionTTL)))
	})

	if len(cfg.WarmPrefixes) > 0 {
		warmer := cache.NewSuggestionWarmer(suggester, logger)
		g.Go(func() error {
			if cfg.WarmInterval > 0 {
				return ignoreCanceled(warmer.WarmPeriodic(gctx, cfg.WarmPrefixes, cfg.WarmInterval))
			}
			if err := warmer.Warm(gctx, cfg.WarmPrefixes); err != nil {
				logger.Warn("suggestion cache warming failed", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("graceful shutdown triggered")
		handler.SetShuttingDown(true)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}

		logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
		waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
		defer waitCancel()
		if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// newCache builds the suggestion cache. The second return is non-nil for memcached so the
// caller can ping and close it.
func newCache(cfg *config.Config) (cache.Cache, *cache.MemcachedCache, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		return mc, mc, nil
	default:
		return cache.NewBoundedInMemoryCache(cfg.CacheMaxEntries), nil, nil
	}
}

// newCitySource picks the embedded city list or the weather API search endpoint.
func newCitySource(cfg *config.Config, searcher cities.Searcher) cities.Source {
	if cfg.SuggestSource == "weatherapi" {
		return cities.NewRemote(searcher)
	}
	return cities.Default()
}

// janitorInterval sweeps a few times per TTL, bounded to [1s, 1m].
func janitorInterval(ttl time.Duration) time.Duration {
	d := ttl / 4
	if d < time.Second {
		return time.Second
	}
	if d > time.Minute {
		return time.Minute
	}
	return d
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

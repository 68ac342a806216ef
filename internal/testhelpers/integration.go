//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/city-weather-widget/internal/cache"
	"github.com/kjstillabower/city-weather-widget/internal/cities"
	"github.com/kjstillabower/city-weather-widget/internal/client"
	"github.com/kjstillabower/city-weather-widget/internal/suggest"
	"github.com/kjstillabower/city-weather-widget/internal/widget"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.weatherapi.com/v1"
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationClient creates a live weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.WeatherAPIClient {
	c, err := client.NewWeatherAPIClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}
	return c
}

// SetupIntegrationRegistry wires a session registry over the live API with weather API
// suggestions. The cache is memcached when requested and reachable, in-memory otherwise.
func SetupIntegrationRegistry(t *testing.T, cfg IntegrationTestConfig) (*widget.Registry, *client.WeatherAPIClient) {
	weatherClient := SetupIntegrationClient(t, cfg)

	var cacheSvc cache.Cache = cache.NewInMemoryCache()
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			cacheSvc = mc
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
		}
	}

	suggester := suggest.NewSuggester(cities.NewRemote(weatherClient), cacheSvc, suggest.Options{TTL: time.Minute})
	fetcher := widget.NewFetcher(weatherClient, nil)
	registry := widget.NewRegistry(func() *widget.Widget {
		return widget.New(fetcher, suggester, suggest.NewDebouncer(50*time.Millisecond))
	}, time.Minute, nil)
	return registry, weatherClient
}

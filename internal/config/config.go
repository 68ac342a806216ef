package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	AppTitle string

	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CacheBackend    string // "in_memory" or "memcached"
	CacheTTL        time.Duration
	CacheMaxEntries int // in_memory backend only

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	SuggestSource    string // "static" or "weatherapi"
	SuggestMinLength int
	SuggestLimit     int
	SuggestDebounce  time.Duration
	WarmPrefixes     []string
	WarmInterval     time.Duration

	SessionTTL time.Duration

	HealthCheckUpstream        bool
	HealthOverloadWindow       time.Duration
	HealthOverloadThresholdPct int
	HealthDegradedWindow       time.Duration
	HealthDegradedErrorPct     int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	App struct {
		Title string `yaml:"title"`
	} `yaml:"app"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout        string `yaml:"timeout"`
		RateLimitRPS   int    `yaml:"rate_limit_rps"`
		RateLimitBurst int    `yaml:"rate_limit_burst"`
	} `yaml:"request"`

	Cache struct {
		Backend    string `yaml:"backend"`
		TTL        string `yaml:"ttl"`
		MaxEntries int    `yaml:"max_entries"`
		Memcached  struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Suggest struct {
		Source       string   `yaml:"source"`
		MinLength    int      `yaml:"min_length"`
		Limit        int      `yaml:"limit"`
		Debounce     string   `yaml:"debounce"`
		WarmPrefixes []string `yaml:"warm_prefixes"`
		WarmInterval string   `yaml:"warm_interval"`
	} `yaml:"suggest"`

	Session struct {
		TTL string `yaml:"ttl"`
	} `yaml:"session"`

	Health struct {
		CheckUpstream        bool   `yaml:"check_upstream"`
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// API key comes from WEATHER_API_KEY env or secrets file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.AppTitle = strings.TrimSpace(fc.App.Title)
	if cfg.AppTitle == "" {
		cfg.AppTitle = "Weather App"
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey, err = loadAPIKey(cwd)
	if err != nil {
		return nil, err
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherAPIURL = strings.TrimRight(strings.TrimSpace(fc.WeatherAPI.URL), "/")
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.weatherapi.com/v1"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 3*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)
	cfg.RateLimitRPS = fc.Request.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Request.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.CacheMaxEntries = fc.Cache.MaxEntries
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = 10000
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.SuggestSource = strings.TrimSpace(strings.ToLower(os.Getenv("SUGGEST_SOURCE")))
	if cfg.SuggestSource == "" {
		cfg.SuggestSource = strings.TrimSpace(strings.ToLower(fc.Suggest.Source))
	}
	if cfg.SuggestSource == "" {
		cfg.SuggestSource = "static"
	}
	cfg.SuggestMinLength = fc.Suggest.MinLength
	if cfg.SuggestMinLength <= 0 {
		cfg.SuggestMinLength = 2
	}
	cfg.SuggestLimit = fc.Suggest.Limit
	if cfg.SuggestLimit <= 0 {
		cfg.SuggestLimit = 8
	}
	cfg.SuggestDebounce = parseDurationOrZero(fc.Suggest.Debounce, 250*time.Millisecond)
	cfg.WarmPrefixes = fc.Suggest.WarmPrefixes
	cfg.WarmInterval = parseDurationOrZero(fc.Suggest.WarmInterval, 0)

	cfg.SessionTTL = parseDuration(fc.Session.TTL, 30*time.Minute)

	cfg.HealthCheckUpstream = fc.Health.CheckUpstream
	cfg.HealthOverloadWindow = parseDuration(fc.Health.OverloadWindow, 60*time.Second)
	cfg.HealthOverloadThresholdPct = fc.Health.OverloadThresholdPct
	if cfg.HealthOverloadThresholdPct <= 0 {
		cfg.HealthOverloadThresholdPct = 80
	}
	cfg.HealthDegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.HealthDegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.HealthDegradedErrorPct <= 0 {
		cfg.HealthDegradedErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAPIKey returns WEATHER_API_KEY from env, falling back to config/secrets.yaml.
// A missing secrets file is not an error; the caller decides whether an empty key is fatal.
func loadAPIKey(cwd string) (string, error) {
	if key := os.Getenv("WEATHER_API_KEY"); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	secretsData, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return sec.WeatherAPIKey, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above WeatherAPITimeout so the upstream deadline fires first.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.SuggestDebounce < 0 {
		return fmt.Errorf("suggest.debounce must not be negative")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout+cfg.SuggestDebounce {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + cfg.SuggestDebounce + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.HealthOverloadThresholdPct > 100 || cfg.HealthDegradedErrorPct > 100 {
		return fmt.Errorf("health thresholds must be percentages (1-100)")
	}
	switch cfg.SuggestSource {
	case "static", "weatherapi":
	default:
		return fmt.Errorf("suggest.source must be static or weatherapi, got %q", cfg.SuggestSource)
	}
	return nil
}

package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/city-weather-widget/internal/observability"
	"github.com/kjstillabower/city-weather-widget/internal/traffic"
)

// RouterConfig holds the request-level limits applied to the widget routes.
type RouterConfig struct {
	RequestTimeout time.Duration
	// Limiter guards /api and /weather; nil disables rate limiting.
	Limiter *rate.Limiter
	Traffic *traffic.Tracker
}

// NewRouter wires the widget page, its JSON/fragment API, static assets, health and metrics.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())
	router.PathPrefix("/static/").Handler(StaticHandler()).Methods(http.MethodGet)
	router.HandleFunc("/", h.GetPage).Methods(http.MethodGet)

	limited := router.NewRoute().Subrouter()
	limited.Use(RateLimitMiddleware(cfg.Limiter, cfg.Traffic))
	if cfg.RequestTimeout > 0 {
		limited.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	limited.HandleFunc("/weather", h.GetWeatherPage).Methods(http.MethodGet)
	limited.HandleFunc("/api/suggestions", h.GetSuggestions).Methods(http.MethodGet)
	limited.HandleFunc("/api/select", h.PostSelect).Methods(http.MethodPost)
	limited.HandleFunc("/api/dismiss", h.PostDismiss).Methods(http.MethodPost)
	limited.HandleFunc("/api/weather", h.PostWeather).Methods(http.MethodPost)
	return router
}

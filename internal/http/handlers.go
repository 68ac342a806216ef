package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-widget/internal/client"
	"github.com/kjstillabower/city-weather-widget/internal/models"
	"github.com/kjstillabower/city-weather-widget/internal/observability"
	"github.com/kjstillabower/city-weather-widget/internal/suggest"
	"github.com/kjstillabower/city-weather-widget/internal/traffic"
	"github.com/kjstillabower/city-weather-widget/internal/validation"
	"github.com/kjstillabower/city-weather-widget/internal/widget"
)

// SessionCookie names the cookie carrying the widget session id.
const SessionCookie = "cww_session"

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	// CheckUpstream validates the API key against the weather API on every health probe.
	CheckUpstream        bool
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// Traffic records fetch outcomes and denials; nil disables overloaded/degraded detection.
	Traffic *traffic.Tracker
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry     *widget.Registry
	client       client.WeatherClient
	pages        *Pages
	healthConfig *HealthConfig
	logger       *zap.Logger
	sessionTTL   time.Duration

	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. sessionTTL sets the session cookie lifetime.
func NewHandler(
	registry *widget.Registry,
	client client.WeatherClient,
	pages *Pages,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	sessionTTL time.Duration,
) *Handler {
	if healthConfig == nil {
		healthConfig = &HealthConfig{}
	}
	return &Handler{
		registry:     registry,
		client:       client,
		pages:        pages,
		healthConfig: healthConfig,
		logger:       logger,
		sessionTTL:   sessionTTL,
	}
}

// SetShuttingDown flips /health to 503 shutting-down. Call when SIGTERM/SIGINT is received.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// session returns the caller's Widget, issuing a cookie when the session is new.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) *widget.Widget {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	newID, wg := h.registry.Acquire(id)
	if newID != id {
		cookie := &http.Cookie{
			Name:     SessionCookie,
			Value:    newID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		}
		if h.sessionTTL > 0 {
			cookie.MaxAge = int(h.sessionTTL.Seconds())
		}
		http.SetCookie(w, cookie)
	}
	return wg
}

// GetPage handles GET /.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	wg := h.session(w, r)
	h.writePage(w, r, wg.Snapshot())
}

// GetWeatherPage handles GET /weather?city=, the form submission path without JavaScript.
func (h *Handler) GetWeatherPage(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if err := validation.CheckFormValue(city); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	wg := h.session(w, r)
	wg.SetQuery(city)
	out, err := wg.Submit(r.Context())
	if err == nil {
		h.recordOutcome(out)
	}
	h.writePage(w, r, wg.Snapshot())
}

func (h *Handler) writePage(w http.ResponseWriter, r *http.Request, st widget.State) {
	if err := h.pages.Page(w, http.StatusOK, st); err != nil {
		h.renderFailed(w, r, err)
	}
}

// GetSuggestions handles GET /api/suggestions?q=. Responds 204 when newer input superseded this one.
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if err := validation.CheckFormValue(q); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	wg := h.session(w, r)
	w.Header().Set("Vary", "Accept")
	names, err := wg.Input(r.Context(), q)
	switch {
	case errors.Is(err, suggest.ErrSuperseded):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		// Lookup failures render an empty listbox.
		if logger := loggerFromRequest(r); logger != nil {
			logger.Warn("suggestion lookup failed", zap.Error(err))
		}
		names = nil
	}
	if wantsJSON(r) {
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"query": q, "suggestions": names})
		return
	}
	if err := h.pages.Listbox(w, names); err != nil {
		h.renderFailed(w, r, err)
	}
}

// PostSelect handles POST /api/select. The chosen city replaces the query; nothing is fetched.
func (h *Handler) PostSelect(w http.ResponseWriter, r *http.Request) {
	city, ok := formValue(w, r, "city")
	if !ok {
		return
	}
	h.session(w, r).Select(city)
	writeJSON(w, http.StatusOK, map[string]string{"query": city})
}

// PostDismiss handles POST /api/dismiss. A request without a live session has nothing to close.
func (h *Handler) PostDismiss(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if wg, ok := h.registry.Lookup(c.Value); ok {
			wg.Dismiss()
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostWeather handles POST /api/weather. Responds 409 when a newer submit superseded this one.
func (h *Handler) PostWeather(w http.ResponseWriter, r *http.Request) {
	city, ok := formValue(w, r, "city")
	if !ok {
		return
	}
	wg := h.session(w, r)
	if _, present := r.PostForm["city"]; present {
		wg.SetQuery(city)
	}
	w.Header().Set("Vary", "Accept")
	out, err := wg.Submit(r.Context())
	if errors.Is(err, suggest.ErrSuperseded) {
		writeError(w, r, http.StatusConflict, "SUPERSEDED", "a newer weather request replaced this one")
		return
	}
	h.recordOutcome(out)
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, out.View())
		return
	}
	if err := h.pages.Outcome(w, out); err != nil {
		h.renderFailed(w, r, err)
	}
}

// recordOutcome feeds the degraded health check. Only transport failures count as errors.
func (h *Handler) recordOutcome(out models.Outcome) {
	tr := h.healthConfig.Traffic
	switch out.Label() {
	case "success", "not_found":
		tr.RecordSuccess()
	case "transport":
		tr.RecordError()
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if h.healthConfig.CheckUpstream {
		if result.reason == "api_key_invalid" {
			checks["weatherApi"] = "unhealthy"
		} else {
			checks["weatherApi"] = "healthy"
		}
	}
	if h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"sessions":  h.registry.Len(),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > API key invalid > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if h.shuttingDown.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	cfg := h.healthConfig
	if cfg.CheckUpstream && h.client != nil {
		if err := h.client.ValidateAPIKey(ctx); err != nil {
			return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
		}
	}
	if cfg.Traffic == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if cfg.OverloadWindow > 0 && cfg.RateLimitRPS > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(cfg.Traffic.Window(cfg.OverloadWindow).Denied) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		c := cfg.Traffic.Window(cfg.DegradedWindow)
		if c.Successes+c.Errors > 0 && c.ErrorPct() >= float64(cfg.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// formValue parses the form and returns a checked value for key. On failure it writes a 400.
func formValue(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORM", "could not parse form")
		return "", false
	}
	v := r.PostFormValue(key)
	if err := validation.CheckFormValue(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return "", false
	}
	return v, true
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func loggerFromRequest(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return nil
}

func (h *Handler) renderFailed(w http.ResponseWriter, r *http.Request, err error) {
	logger := loggerFromRequest(r)
	if logger == nil {
		logger = h.logger
	}
	logger.Error("render failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "could not render page")
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v, ok := r.Context().Value("correlation_id").(string); ok {
		corrID = v
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// Scripted queries understood by FakeWeatherAPI.
const (
	// QueryNotFound answers 400 with error code 1006.
	QueryNotFound = "Atlantis"
	// QueryServerError answers 500.
	QueryServerError = "Errorville"
)

// FakeWeatherAPI stands in for the weather API's current.json and search.json endpoints.
// Any query other than the scripted ones returns 15°C, "Partly cloudy" in the United Kingdom
// with the query echoed as the location name.
type FakeWeatherAPI struct {
	Server *httptest.Server

	currentCalls atomic.Int32
	mu           sync.Mutex
	cities       []string
}

// NewFakeWeatherAPI starts the fake and registers its shutdown with t.Cleanup.
// cities backs search.json; a case-insensitive prefix match is applied.
func NewFakeWeatherAPI(t testing.TB, cities ...string) *FakeWeatherAPI {
	t.Helper()
	f := StartFakeWeatherAPI(cities...)
	t.Cleanup(f.Close)
	return f
}

// StartFakeWeatherAPI starts the fake without a test handle (e.g. from TestMain).
// The caller must Close it.
func StartFakeWeatherAPI(cities ...string) *FakeWeatherAPI {
	f := &FakeWeatherAPI{cities: cities}
	mux := http.NewServeMux()
	mux.HandleFunc("/current.json", f.current)
	mux.HandleFunc("/search.json", f.search)
	f.Server = httptest.NewServer(mux)
	return f
}

// Close stops the fake server.
func (f *FakeWeatherAPI) Close() { f.Server.Close() }

// URL is the base URL to configure the weather client with.
func (f *FakeWeatherAPI) URL() string { return f.Server.URL }

// CurrentCalls returns how many current.json requests were served.
func (f *FakeWeatherAPI) CurrentCalls() int { return int(f.currentCalls.Load()) }

func (f *FakeWeatherAPI) current(w http.ResponseWriter, r *http.Request) {
	f.currentCalls.Add(1)
	q := r.URL.Query().Get("q")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.EqualFold(q, QueryNotFound):
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": 1006, "message": "No matching location found."},
		})
	case strings.EqualFold(q, QueryServerError):
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{}`))
	default:
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"location": map[string]interface{}{"name": q, "country": "United Kingdom"},
			"current": map[string]interface{}{
				"temp_c": 15,
				"temp_f": 59,
				"condition": map[string]interface{}{
					"text": "Partly cloudy",
					"icon": "//cdn.weatherapi.com/weather/64x64/day/116.png",
				},
			},
		})
	}
}

func (f *FakeWeatherAPI) search(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	f.mu.Lock()
	var out []map[string]interface{}
	for i, c := range f.cities {
		if q != "" && strings.HasPrefix(strings.ToLower(c), q) {
			out = append(out, map[string]interface{}{"id": i + 1, "name": c, "country": "United Kingdom"})
		}
	}
	f.mu.Unlock()
	if out == nil {
		out = []map[string]interface{}{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

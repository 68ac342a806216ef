package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-widget/internal/cities"
	"github.com/kjstillabower/city-weather-widget/internal/models"
	"github.com/kjstillabower/city-weather-widget/internal/suggest"
	"github.com/kjstillabower/city-weather-widget/internal/traffic"
	"github.com/kjstillabower/city-weather-widget/internal/widget"
)

type mockWeatherClient struct {
	result      models.WeatherResult
	err         error
	validateErr error
	calls       atomic.Int32
	// block, when set, holds the first call until closed.
	block chan struct{}
}

func (m *mockWeatherClient) GetCurrentWeather(ctx context.Context, location string) (models.WeatherResult, error) {
	if n := m.calls.Add(1); n == 1 && m.block != nil {
		<-m.block
	}
	if m.err != nil {
		return models.WeatherResult{}, m.err
	}
	return m.result, nil
}

func (m *mockWeatherClient) SearchCities(ctx context.Context, query string) ([]string, error) {
	return nil, nil
}

func (m *mockWeatherClient) ValidateAPIKey(ctx context.Context) error {
	return m.validateErr
}

func londonResult() models.WeatherResult {
	f := 59.0
	return models.WeatherResult{
		Location:  "London",
		Country:   "United Kingdom",
		TempC:     15,
		TempF:     &f,
		Condition: "Partly cloudy",
		Icon:      "https://cdn.weatherapi.com/weather/64x64/day/116.png",
	}
}

type testServer struct {
	handler *Handler
	router  http.Handler
	traffic *traffic.Tracker
	cookie  *http.Cookie
}

func newTestServer(t *testing.T, mc *mockWeatherClient, hc *HealthConfig) *testServer {
	t.Helper()
	logger := zap.NewNop()
	src := cities.NewStatic([]string{"London", "Londonderry", "Londrina", "Paris", "Berlin"})
	suggester := suggest.NewSuggester(src, nil, suggest.Options{MinLength: 2, Limit: 8})
	fetcher := widget.NewFetcher(mc, logger)
	registry := widget.NewRegistry(func() *widget.Widget {
		return widget.New(fetcher, suggester, suggest.NewDebouncer(0))
	}, time.Minute, logger)

	pages, err := NewPages("Weather App")
	if err != nil {
		t.Fatalf("NewPages() error = %v", err)
	}
	if hc == nil {
		hc = &HealthConfig{}
	}
	if hc.Traffic == nil {
		hc.Traffic = traffic.NewTracker(time.Minute)
	}
	h := NewHandler(registry, mc, pages, hc, logger, time.Minute)
	return &testServer{
		handler: h,
		router:  NewRouter(h, RouterConfig{RequestTimeout: 5 * time.Second, Traffic: hc.Traffic}, logger),
		traffic: hc.Traffic,
	}
}

// do sends req with the server's session cookie, capturing the cookie on first use.
func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			s.cookie = c
		}
	}
	return rec
}

func (s *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	return s.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func (s *testServer) postForm(t *testing.T, target, form string, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return s.do(t, req)
}

func parseHTML(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rec.Body.String()))
	if err != nil {
		t.Fatalf("parse HTML: %v", err)
	}
	return doc
}

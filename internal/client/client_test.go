package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWeatherAPIClient_InvalidAPIKey(t *testing.T) {
	client, err := NewWeatherAPIClient("", "https://api.test.com/v1", 2*time.Second)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("NewWeatherAPIClient() error = %v, want %v", err, ErrInvalidAPIKey)
	}
	if client != nil {
		t.Errorf("NewWeatherAPIClient() expected nil client on error")
	}

	client, err = NewWeatherAPIClient("test-api-key", "https://api.test.com/v1/", 2*time.Second)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() unexpected error: %v", err)
	}
	if client.baseURL != "https://api.test.com/v1" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", client.baseURL)
	}
}

func currentPayload() map[string]interface{} {
	return map[string]interface{}{
		"location": map[string]interface{}{
			"name":    "London",
			"region":  "City of London, Greater London",
			"country": "United Kingdom",
		},
		"current": map[string]interface{}{
			"temp_c": 15.0,
			"temp_f": 59.0,
			"condition": map[string]interface{}{
				"text": "Partly cloudy",
				"icon": "//cdn.weatherapi.com/weather/64x64/day/116.png",
			},
		},
	}
}

func TestWeatherAPIClient_GetCurrentWeather_Success(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/v1/current.json" {
			t.Errorf("path = %s, want /v1/current.json", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "London" {
			t.Errorf("q = %q, want London", q.Get("q"))
		}
		if q.Get("key") != "test-api-key-12345" {
			t.Errorf("expected API key in query")
		}
		if q.Get("aqi") != "no" {
			t.Errorf("expected aqi=no in query")
		}
		if got := r.Header.Get("X-Correlation-ID"); got != "corr-1" {
			t.Errorf("X-Correlation-ID = %q, want corr-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(currentPayload())
	}))
	defer server.Close()

	client, err := NewWeatherAPIClient("test-api-key-12345", server.URL+"/v1", 2*time.Second)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}

	ctx := context.WithValue(context.Background(), "correlation_id", "corr-1")
	got, err := client.GetCurrentWeather(ctx, "London")
	if err != nil {
		t.Fatalf("GetCurrentWeather() error = %v", err)
	}

	if got.Location != "London" || got.Country != "United Kingdom" {
		t.Errorf("Location/Country = %q/%q", got.Location, got.Country)
	}
	if got.TempC != 15 {
		t.Errorf("TempC = %v, want 15", got.TempC)
	}
	if got.TempF == nil || *got.TempF != 59 {
		t.Errorf("TempF = %v, want 59", got.TempF)
	}
	if got.Condition != "Partly cloudy" {
		t.Errorf("Condition = %q, want Partly cloudy", got.Condition)
	}
	if got.Icon != "https://cdn.weatherapi.com/weather/64x64/day/116.png" {
		t.Errorf("Icon = %q, want https-prefixed icon URL", got.Icon)
	}
	if got.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("upstream calls = %d, want exactly 1", n)
	}
}

func TestWeatherAPIClient_GetCurrentWeather_MissingTempF(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"location":{"name":"Oslo","country":"Norway"},"current":{"temp_c":-2,"condition":{"text":"Snow"}}}`))
	}))
	defer server.Close()

	client, _ := NewWeatherAPIClient("test-api-key-12345", server.URL, 2*time.Second)
	got, err := client.GetCurrentWeather(context.Background(), "Oslo")
	if err != nil {
		t.Fatalf("GetCurrentWeather() error = %v", err)
	}
	if got.TempF != nil {
		t.Errorf("TempF = %v, want nil", *got.TempF)
	}
	if got.Icon != "" {
		t.Errorf("Icon = %q, want empty", got.Icon)
	}
}

func TestWeatherAPIClient_GetCurrentWeather_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    error
	}{
		{
			name:       "400 no matching location",
			statusCode: http.StatusBadRequest,
			body:       `{"error":{"code":1006,"message":"No matching location found."}}`,
			wantErr:    ErrLocationNotFound,
		},
		{
			name:       "400 other code",
			statusCode: http.StatusBadRequest,
			body:       `{"error":{"code":1003,"message":"Parameter q is missing."}}`,
			wantErr:    ErrUpstreamFailure,
		},
		{
			name:       "401 key invalid",
			statusCode: http.StatusUnauthorized,
			body:       `{"error":{"code":2006,"message":"API key provided is invalid"}}`,
			wantErr:    ErrInvalidAPIKey,
		},
		{
			name:       "403 quota exceeded",
			statusCode: http.StatusForbidden,
			body:       `{"error":{"code":2007,"message":"API key has exceeded calls per month quota."}}`,
			wantErr:    ErrRateLimited,
		},
		{
			name:       "403 without envelope",
			statusCode: http.StatusForbidden,
			wantErr:    ErrInvalidAPIKey,
		},
		{
			name:       "429 rate limited",
			statusCode: http.StatusTooManyRequests,
			wantErr:    ErrRateLimited,
		},
		{
			name:       "500 server error",
			statusCode: http.StatusInternalServerError,
			body:       `{"error":{"code":9999,"message":"Internal application error."}}`,
			wantErr:    ErrUpstreamFailure,
		},
		{
			name:       "500 with location code",
			statusCode: http.StatusInternalServerError,
			body:       `{"error":{"code":1006,"message":"No matching location found."}}`,
			wantErr:    ErrUpstreamFailure,
		},
		{
			name:       "502 without body",
			statusCode: http.StatusBadGateway,
			wantErr:    ErrUpstreamFailure,
		},
		{
			name:       "200 malformed json",
			statusCode: http.StatusOK,
			body:       `{"location":`,
			wantErr:    ErrMalformedResponse,
		},
		{
			name:       "200 missing location",
			statusCode: http.StatusOK,
			body:       `{"current":{"temp_c":10,"condition":{"text":"Sunny"}}}`,
			wantErr:    ErrMalformedResponse,
		},
		{
			name:       "200 missing current",
			statusCode: http.StatusOK,
			body:       `{"location":{"name":"London","country":"United Kingdom"}}`,
			wantErr:    ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewWeatherAPIClient("test-api-key-12345", server.URL, 2*time.Second)
			if err != nil {
				t.Fatalf("NewWeatherAPIClient() error = %v", err)
			}

			_, err = client.GetCurrentWeather(context.Background(), "test")
			if err == nil {
				t.Fatalf("GetCurrentWeather() expected error, got nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetCurrentWeather() error = %v, want %v", err, tt.wantErr)
			}
			if n := atomic.LoadInt32(&calls); n != 1 {
				t.Errorf("upstream calls = %d, want 1 (no retries)", n)
			}
		})
	}
}

func TestWeatherAPIClient_GetCurrentWeather_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, _ := NewWeatherAPIClient("test-api-key-12345", server.URL, 50*time.Millisecond)
	_, err := client.GetCurrentWeather(context.Background(), "London")
	if err == nil {
		t.Fatal("GetCurrentWeather() expected timeout error")
	}
	if got := CategorizeError(err); got != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %q, want timeout (err = %v)", got, err)
	}
}

func TestWeatherAPIClient_GetCurrentWeather_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, _ := NewWeatherAPIClient("test-api-key-12345", url, time.Second)
	_, err := client.GetCurrentWeather(context.Background(), "London")
	if err == nil {
		t.Fatal("GetCurrentWeather() expected error for closed server")
	}
	if !strings.Contains(err.Error(), "http request failed") {
		t.Errorf("error = %v, want http request failed", err)
	}
}

func TestWeatherAPIClient_SearchCities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search.json" {
			t.Errorf("path = %s, want /search.json", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "lon" {
			t.Errorf("q = %q, want lon", r.URL.Query().Get("q"))
		}
		_, _ = w.Write([]byte(`[
			{"id":1,"name":"London","region":"City of London, Greater London","country":"United Kingdom"},
			{"id":2,"name":"London","region":"Ontario","country":"Canada"},
			{"id":3,"name":"Londonderry","region":"Derry","country":"United Kingdom"},
			{"id":4,"name":"  ","region":"","country":""}
		]`))
	}))
	defer server.Close()

	client, _ := NewWeatherAPIClient("test-api-key-12345", server.URL, time.Second)
	got, err := client.SearchCities(context.Background(), "lon")
	if err != nil {
		t.Fatalf("SearchCities() error = %v", err)
	}
	want := []string{"London", "Londonderry"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("SearchCities() = %v, want %v", got, want)
	}
}

func TestWeatherAPIClient_SearchCities_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer server.Close()

	client, _ := NewWeatherAPIClient("test-api-key-12345", server.URL, time.Second)
	if _, err := client.SearchCities(context.Background(), "lon"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("SearchCities() error = %v, want %v", err, ErrMalformedResponse)
	}
}

func TestWeatherAPIClient_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    error
	}{
		{"valid", http.StatusOK, `[]`, nil},
		{"invalid key", http.StatusUnauthorized, `{"error":{"code":2006,"message":"API key provided is invalid"}}`, ErrInvalidAPIKey},
		{"upstream down", http.StatusServiceUnavailable, ``, ErrUpstreamFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, _ := NewWeatherAPIClient("test-api-key-12345", server.URL, time.Second)
			err := client.ValidateAPIKey(context.Background())
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateAPIKey() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateAPIKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{
		200: "success",
		204: "success",
		400: "client_error",
		429: "rate_limited",
		500: "server_error",
		302: "error",
	}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}

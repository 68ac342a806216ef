package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/city-weather-widget/internal/models"
	"github.com/kjstillabower/city-weather-widget/internal/observability"
)

// WeatherClient is the upstream weather API as seen by the widget.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, location string) (models.WeatherResult, error)
	SearchCities(ctx context.Context, query string) ([]string, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrLocationNotFound  = errors.New("location not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
)

// Weather API error codes carried in the {"error":{"code","message"}} envelope.
const (
	codeNoMatchingLocation = 1006
	codeKeyNotProvided     = 1002
	codeKeyInvalid         = 2006
	codeQuotaExceeded      = 2007
	codeKeyDisabled        = 2008
	codeNoAccess           = 2009
)

const (
	endpointCurrent = "current"
	endpointSearch  = "search"
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 1 << 20

// WeatherAPIClient calls the current.json and search.json endpoints. It never retries:
// each GetCurrentWeather is exactly one outbound request.
type WeatherAPIClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewWeatherAPIClient returns a client for baseURL (e.g. https://api.weatherapi.com/v1).
func NewWeatherAPIClient(apiKey, baseURL string, timeout time.Duration) (*WeatherAPIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	return &WeatherAPIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type currentResponse struct {
	Location *struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"location"`
	Current *struct {
		TempC     *float64 `json:"temp_c"`
		TempF     *float64 `json:"temp_f"`
		Condition struct {
			Text string `json:"text"`
			Icon string `json:"icon"`
		} `json:"condition"`
	} `json:"current"`
}

type searchResult struct {
	Name    string `json:"name"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GetCurrentWeather issues one current.json request for location.
func (c *WeatherAPIClient) GetCurrentWeather(ctx context.Context, location string) (models.WeatherResult, error) {
	body, err := c.call(ctx, endpointCurrent, "current.json", url.Values{
		"q":   {location},
		"aqi": {"no"},
	})
	if err != nil {
		return models.WeatherResult{}, err
	}

	var apiResp currentResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpointCurrent, string(ErrorCategoryParsing)).Inc()
		return models.WeatherResult{}, fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}
	result, err := mapCurrent(apiResp)
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpointCurrent, string(ErrorCategoryParsing)).Inc()
		return models.WeatherResult{}, err
	}
	return result, nil
}

// SearchCities issues one search.json request and returns distinct city names in upstream order.
func (c *WeatherAPIClient) SearchCities(ctx context.Context, query string) ([]string, error) {
	body, err := c.call(ctx, endpointSearch, "search.json", url.Values{"q": {query}})
	if err != nil {
		return nil, err
	}
	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpointSearch, string(ErrorCategoryParsing)).Inc()
		return nil, fmt.Errorf("%w: parse search response: %v", ErrMalformedResponse, err)
	}
	seen := make(map[string]struct{}, len(results))
	names := make([]string, 0, len(results))
	for _, r := range results {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// call performs a GET against path, records metrics and maps non-2xx responses to sentinel errors.
func (c *WeatherAPIClient) call(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, path, params)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
			(errors.As(err, &netErr) && netErr.Timeout()) {
			err = fmt.Errorf("request timeout: %w", err)
		} else {
			err = fmt.Errorf("http request failed: %w", err)
		}
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
		return nil, err
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if err := handleErrorResponse(resp.StatusCode, body); err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
		return nil, err
	}
	return body, nil
}

func (c *WeatherAPIClient) buildRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/" + path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params.Set("key", c.apiKey)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// handleErrorResponse maps a non-2xx status and its error envelope to a sentinel error.
// Error code 1006 means no matching location only on a 4xx status; the key codes map to
// ErrInvalidAPIKey; everything else is an upstream failure.
func handleErrorResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var env errorEnvelope
	_ = json.Unmarshal(body, &env)
	code := env.Error.Code

	clientError := statusCode >= 400 && statusCode < 500
	switch code {
	case codeNoMatchingLocation:
		if clientError {
			return fmt.Errorf("%w: %s", ErrLocationNotFound, env.Error.Message)
		}
	case codeKeyNotProvided, codeKeyInvalid, codeKeyDisabled, codeNoAccess:
		return fmt.Errorf("%w: code %d", ErrInvalidAPIKey, code)
	case codeQuotaExceeded:
		return fmt.Errorf("%w: quota exceeded", ErrRateLimited)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, statusCode)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}
	if code != 0 {
		return fmt.Errorf("%w: HTTP %d code %d", ErrUpstreamFailure, statusCode, code)
	}
	return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, statusCode)
}

// mapCurrent requires a location name and a current block with temp_c; anything less is
// treated as malformed.
func mapCurrent(apiResp currentResponse) (models.WeatherResult, error) {
	if apiResp.Location == nil || strings.TrimSpace(apiResp.Location.Name) == "" {
		return models.WeatherResult{}, fmt.Errorf("%w: missing location", ErrMalformedResponse)
	}
	if apiResp.Current == nil || apiResp.Current.TempC == nil {
		return models.WeatherResult{}, fmt.Errorf("%w: missing current conditions", ErrMalformedResponse)
	}
	return models.WeatherResult{
		Location:  apiResp.Location.Name,
		Country:   apiResp.Location.Country,
		TempC:     *apiResp.Current.TempC,
		TempF:     apiResp.Current.TempF,
		Condition: apiResp.Current.Condition.Text,
		Icon:      normalizeIcon(apiResp.Current.Condition.Icon),
		Timestamp: time.Now(),
	}, nil
}

// normalizeIcon turns protocol-relative icon URLs ("//cdn...") into https URLs.
func normalizeIcon(icon string) string {
	icon = strings.TrimSpace(icon)
	if strings.HasPrefix(icon, "//") {
		return "https:" + icon
	}
	return icon
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey performs a lightweight search call; only key-related failures are reported.
func (c *WeatherAPIClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.SearchCities(ctx, "London")
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidAPIKey) {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	return fmt.Errorf("validation failed: %w", err)
}

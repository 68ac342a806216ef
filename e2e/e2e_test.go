//go:build e2e

// Package e2e drives the widget in a real browser. The service runs in-process against a
// local stand-in for the weather API, so no API key or network access is needed.
//
// Run with: go test -tags e2e ./e2e/
package e2e

import (
	"fmt"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-widget/internal/cache"
	"github.com/kjstillabower/city-weather-widget/internal/cities"
	"github.com/kjstillabower/city-weather-widget/internal/client"
	httphandler "github.com/kjstillabower/city-weather-widget/internal/http"
	"github.com/kjstillabower/city-weather-widget/internal/suggest"
	"github.com/kjstillabower/city-weather-widget/internal/testhelpers"
	"github.com/kjstillabower/city-weather-widget/internal/traffic"
	"github.com/kjstillabower/city-weather-widget/internal/widget"
)

// suggestionTimeout is how long a suggestion may take to appear after typing, in ms.
const suggestionTimeout = 800

var (
	baseURL string
	pw      *playwright.Playwright
	browser playwright.Browser
	expect  playwright.PlaywrightAssertions
)

func TestMain(m *testing.M) {
	api := testhelpers.StartFakeWeatherAPI()
	srv, err := startWidget(api.URL())
	if err != nil {
		fmt.Printf("failed to start widget: %v\n", err)
		api.Close()
		os.Exit(1)
	}
	baseURL = srv.URL

	if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
		fmt.Printf("failed to install playwright: %v\n", err)
		srv.Close()
		api.Close()
		os.Exit(1)
	}
	pw, err = playwright.Run()
	if err != nil {
		fmt.Printf("failed to start playwright: %v\n", err)
		srv.Close()
		api.Close()
		os.Exit(1)
	}
	headless := os.Getenv("E2E_HEADLESS") != "false"
	browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		fmt.Printf("failed to launch browser: %v\n", err)
		_ = pw.Stop()
		srv.Close()
		api.Close()
		os.Exit(1)
	}
	expect = playwright.NewPlaywrightAssertions(5000)

	code := m.Run()

	_ = browser.Close()
	_ = pw.Stop()
	srv.Close()
	api.Close()
	os.Exit(code)
}

// startWidget wires the production stack with the embedded city list and a short debounce.
func startWidget(apiURL string) (*httptest.Server, error) {
	logger := zap.NewNop()
	weatherClient, err := client.NewWeatherAPIClient("e2e-key", apiURL, 2*time.Second)
	if err != nil {
		return nil, err
	}
	suggester := suggest.NewSuggester(cities.Default(), cache.NewInMemoryCache(), suggest.Options{})
	fetcher := widget.NewFetcher(weatherClient, logger)
	registry := widget.NewRegistry(func() *widget.Widget {
		return widget.New(fetcher, suggester, suggest.NewDebouncer(100*time.Millisecond))
	}, 10*time.Minute, logger)
	pages, err := httphandler.NewPages("Weather App")
	if err != nil {
		return nil, err
	}
	tracker := traffic.NewTracker(traffic.DefaultMaxAge)
	h := httphandler.NewHandler(registry, weatherClient, pages, &httphandler.HealthConfig{Traffic: tracker}, logger, 10*time.Minute)
	router := httphandler.NewRouter(h, httphandler.RouterConfig{RequestTimeout: 5 * time.Second, Traffic: tracker}, logger)
	return httptest.NewServer(router), nil
}

func newPage(t *testing.T) playwright.Page {
	t.Helper()
	ctx, err := browser.NewContext() // isolated cookies, so one widget session per test
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Close() })

	page, err := ctx.NewPage()
	require.NoError(t, err)
	_, err = page.Goto(baseURL)
	require.NoError(t, err)
	return page
}

func submitCity(t *testing.T, page playwright.Page, city string) {
	t.Helper()
	require.NoError(t, page.Locator("#city-input").Fill(city))
	require.NoError(t, page.Locator("#get-weather").Click())
}

func resultRegion(page playwright.Page) playwright.Locator {
	return page.Locator(`[role="region"][aria-label="Weather result"]`)
}

func TestPage_HeadingVisible(t *testing.T) {
	page := newPage(t)
	heading := page.Locator("h1")
	require.NoError(t, expect.Locator(heading).ToBeVisible())
	require.NoError(t, expect.Locator(heading).ToHaveText("Weather App"))
}

func TestWeather_Success(t *testing.T) {
	page := newPage(t)
	submitCity(t, page, "London")

	region := resultRegion(page)
	require.NoError(t, expect.Locator(region).ToBeVisible())
	require.NoError(t, expect.Locator(region).ToContainText("London, United Kingdom"))
	require.NoError(t, expect.Locator(region).ToContainText("Partly cloudy"))
	require.NoError(t, expect.Locator(region).ToContainText("15°C"))

	count, err := page.Locator(`[role="alert"]`).Count()
	require.NoError(t, err)
	assert.Zero(t, count, "no alert alongside a result")
}

func TestWeather_Errors(t *testing.T) {
	tests := []struct {
		city string
		want *regexp.Regexp
	}{
		{testhelpers.QueryNotFound, regexp.MustCompile(`(?i)city not found`)},
		{testhelpers.QueryServerError, regexp.MustCompile(`(?i)could not fetch weather data`)},
		{"   ", regexp.MustCompile(`Please enter a city name`)},
	}
	for _, tt := range tests {
		t.Run(tt.city, func(t *testing.T) {
			page := newPage(t)
			submitCity(t, page, tt.city)

			alert := page.Locator(`[role="alert"]`)
			require.NoError(t, expect.Locator(alert).ToBeVisible())
			require.NoError(t, expect.Locator(alert).ToHaveText(tt.want))
			require.NoError(t, expect.Locator(resultRegion(page)).ToHaveCount(0))
		})
	}
}

// TestWeather_RejectedRequestShowsGenericAlert checks a request the service refuses (an
// overlong city answers 400 JSON) still renders the transport alert instead of raw JSON.
func TestWeather_RejectedRequestShowsGenericAlert(t *testing.T) {
	page := newPage(t)
	submitCity(t, page, strings.Repeat("a", 201))

	alert := page.Locator(`[role="alert"]`)
	require.NoError(t, expect.Locator(alert).ToBeVisible())
	require.NoError(t, expect.Locator(alert).ToHaveText(regexp.MustCompile(`(?i)could not fetch weather data`)))

	text, err := page.Locator("#outcome").InnerText()
	require.NoError(t, err)
	assert.NotContains(t, text, `"error"`)
}

// TestWeather_ErrorClearedByNextSuccess checks a result replaces the previous alert.
func TestWeather_ErrorClearedByNextSuccess(t *testing.T) {
	page := newPage(t)
	submitCity(t, page, testhelpers.QueryNotFound)
	require.NoError(t, expect.Locator(page.Locator(`[role="alert"]`)).ToBeVisible())

	submitCity(t, page, "Paris")
	require.NoError(t, expect.Locator(resultRegion(page)).ToContainText("Paris"))
	require.NoError(t, expect.Locator(page.Locator(`[role="alert"]`)).ToHaveCount(0))
}

func TestSuggestions_ClickSelectsWithoutFetching(t *testing.T) {
	page := newPage(t)
	input := page.Locator("#city-input")
	require.NoError(t, input.Click())
	require.NoError(t, page.Keyboard().Type("Lon"))

	option := page.Locator(`#city-suggestions [role="option"][aria-label="London"]`)
	require.NoError(t, expect.Locator(option).ToBeVisible(playwright.LocatorAssertionsToBeVisibleOptions{
		Timeout: playwright.Float(suggestionTimeout),
	}))
	require.NoError(t, option.Click())

	require.NoError(t, expect.Locator(input).ToHaveValue("London"))
	require.NoError(t, expect.Locator(page.Locator("#city-suggestions")).ToBeHidden())

	// Give a stray fetch time to land before asserting it never happened.
	page.WaitForTimeout(300)
	count, err := resultRegion(page).Count()
	require.NoError(t, err)
	assert.Zero(t, count, "selecting a suggestion must not fetch weather")
}

func TestSuggestions_KeyboardCommit(t *testing.T) {
	page := newPage(t)
	require.NoError(t, page.Locator("#city-input").Click())
	require.NoError(t, page.Keyboard().Type("Lon"))
	require.NoError(t, expect.Locator(page.Locator(`#city-suggestions [role="option"]`).First()).ToBeVisible(
		playwright.LocatorAssertionsToBeVisibleOptions{Timeout: playwright.Float(suggestionTimeout)},
	))

	require.NoError(t, page.Keyboard().Press("ArrowDown"))
	require.NoError(t, page.Keyboard().Press("Enter"))

	value, err := page.Locator("#city-input").InputValue()
	require.NoError(t, err)
	assert.NotEmpty(t, value)
}

func TestSuggestions_EscapeDismisses(t *testing.T) {
	page := newPage(t)
	require.NoError(t, page.Locator("#city-input").Click())
	require.NoError(t, page.Keyboard().Type("Par"))
	listbox := page.Locator("#city-suggestions")
	require.NoError(t, expect.Locator(listbox).ToBeVisible(
		playwright.LocatorAssertionsToBeVisibleOptions{Timeout: playwright.Float(suggestionTimeout)},
	))

	require.NoError(t, page.Keyboard().Press("Escape"))
	require.NoError(t, expect.Locator(listbox).ToBeHidden())
	require.NoError(t, expect.Locator(page.Locator("#city-input")).ToHaveValue("Par"))
}

func TestAccessibility_TabOrder(t *testing.T) {
	page := newPage(t)
	require.NoError(t, page.Locator("body").Click())

	require.NoError(t, page.Keyboard().Press("Tab"))
	require.NoError(t, expect.Locator(page.Locator("#city-input")).ToBeFocused())

	require.NoError(t, page.Keyboard().Press("Tab"))
	require.NoError(t, expect.Locator(page.Locator("#get-weather")).ToBeFocused())
}

func TestAccessibility_ComboboxAttributes(t *testing.T) {
	page := newPage(t)
	input := page.Locator("#city-input")
	require.NoError(t, expect.Locator(input).ToHaveAttribute("placeholder", "Enter city name"))
	require.NoError(t, expect.Locator(input).ToHaveAttribute("aria-autocomplete", "list"))
	require.NoError(t, expect.Locator(input).ToHaveAttribute("aria-controls", "city-suggestions"))
}

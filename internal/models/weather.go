package models

import (
	"strconv"
	"time"
)

// WeatherResult is the current-conditions payload rendered in the result region.
type WeatherResult struct {
	Location  string    `json:"location"`
	Country   string    `json:"country"`
	TempC     float64   `json:"tempC"`
	TempF     *float64  `json:"tempF,omitempty"` // nil when the upstream omits temp_f
	Condition string    `json:"condition"`
	Icon      string    `json:"icon,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Place renders "<City>, <Country>", or just the city when the country is unknown.
func (r WeatherResult) Place() string {
	if r.Country == "" {
		return r.Location
	}
	return r.Location + ", " + r.Country
}

// CelsiusText renders the temperature as e.g. "15°C" or "15.5°C".
func (r WeatherResult) CelsiusText() string {
	return formatTemp(r.TempC) + "°C"
}

// FahrenheitText renders the Fahrenheit temperature, or "" when it was not provided.
func (r WeatherResult) FahrenheitText() string {
	if r.TempF == nil {
		return ""
	}
	return formatTemp(*r.TempF) + "°F"
}

func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

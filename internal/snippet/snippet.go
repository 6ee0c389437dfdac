package snippet

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/steichert/obsidian-weather-plugin/internal/timelines"
)

// IconDir is the asset directory the icon src is resolved against.
const IconDir = "../icons/png/"

const template = `<div><span><img src="%s" alt="weather icon"></span><h3>Temperature: %s%s</h3><sub>Powered by Tomorrow.io</sub></div>`

// Render formats the first interval of resp. It fails with the timelines
// ErrNoTimelines / ErrNoIntervals errors instead of producing placeholder output.
func Render(resp timelines.Response, units string) (string, error) {
	first, err := resp.First()
	if err != nil {
		return "", fmt.Errorf("render snippet: %w", err)
	}
	return Format(first.Values.Temperature, int(math.Round(first.Values.WeatherCode)), units), nil
}

// Format fills the template for a single reading.
func Format(temperature float64, weatherCode int, units string) string {
	return fmt.Sprintf(template, IconDir+Icon(weatherCode), formatNumber(temperature), UnitLabel(units))
}

// UnitLabel returns the temperature suffix for the units setting.
func UnitLabel(units string) string {
	switch strings.ToLower(strings.TrimSpace(units)) {
	case "metric":
		return "°C"
	case "imperial":
		return "°F"
	}
	return ""
}

// formatNumber prints the shortest decimal that round-trips, so 21.5 stays 21.5
// and 20 prints as 20.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

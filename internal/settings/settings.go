package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownField is returned when a settings key does not name one of the five fields.
var ErrUnknownField = errors.New("unknown settings field")

// Settings holds the user-editable configuration persisted by the host.
// Values are stored and forwarded as typed; nothing here is validated.
type Settings struct {
	APIKey    string `json:"apiKey"`
	Units     string `json:"units"`
	Timezone  string `json:"timezone"`
	Longitude string `json:"longitude"`
	Latitude  string `json:"latitude"`
}

// Field keys, matching the JSON names of the persisted blob.
const (
	KeyAPIKey    = "apiKey"
	KeyUnits     = "units"
	KeyTimezone  = "timezone"
	KeyLatitude  = "latitude"
	KeyLongitude = "longitude"
)

// Defaults returns the settings used when nothing has been persisted yet.
func Defaults() Settings {
	return Settings{
		APIKey:    "",
		Units:     "metric",
		Timezone:  "Africa/Johannesburg",
		Longitude: "27.981751405133167",
		Latitude:  "-26.114842711916268",
	}
}

// Merge overlays a persisted blob on top of Defaults. Every key present in the
// blob wins, including empty strings; absent and null keys keep their default.
// An empty or null blob yields Defaults.
func Merge(blob []byte) (Settings, error) {
	s := Defaults()
	trimmed := strings.TrimSpace(string(blob))
	if trimmed == "" || trimmed == "null" {
		return s, nil
	}
	if err := json.Unmarshal(blob, &s); err != nil {
		return Defaults(), fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

// Marshal encodes settings into the blob shape the host persists.
func Marshal(s Settings) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Get returns the value stored under key.
func (s Settings) Get(key string) (string, error) {
	switch key {
	case KeyAPIKey:
		return s.APIKey, nil
	case KeyUnits:
		return s.Units, nil
	case KeyTimezone:
		return s.Timezone, nil
	case KeyLatitude:
		return s.Latitude, nil
	case KeyLongitude:
		return s.Longitude, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, key)
}

// With returns a copy of s with exactly one field replaced.
func (s Settings) With(key, value string) (Settings, error) {
	switch key {
	case KeyAPIKey:
		s.APIKey = value
	case KeyUnits:
		s.Units = value
	case KeyTimezone:
		s.Timezone = value
	case KeyLatitude:
		s.Latitude = value
	case KeyLongitude:
		s.Longitude = value
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	return s, nil
}

// Check returns advisory notes about values the weather API is likely to reject.
// The notes are informational; callers still send the values verbatim.
func Check(s Settings) []string {
	var notes []string
	if s.APIKey == "" {
		notes = append(notes, "apiKey is empty")
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(s.Latitude), 64); err != nil {
		notes = append(notes, fmt.Sprintf("latitude %q is not a number", s.Latitude))
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(s.Longitude), 64); err != nil {
		notes = append(notes, fmt.Sprintf("longitude %q is not a number", s.Longitude))
	}
	switch s.Units {
	case "metric", "imperial":
	default:
		notes = append(notes, fmt.Sprintf("units %q is neither metric nor imperial", s.Units))
	}
	return notes
}

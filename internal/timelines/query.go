package timelines

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/steichert/obsidian-weather-plugin/internal/settings"
)

// DefaultURL is the Tomorrow.io timelines endpoint.
const DefaultURL = "https://api.tomorrow.io/v4/timelines"

// isoMillis is the UTC ISO-8601 layout with millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Window is how far past now each request reaches.
const Window = 24 * time.Hour

// Fields is the fixed list of values requested for every interval.
var Fields = []string{
	"precipitationIntensity",
	"precipitationType",
	"windSpeed",
	"windGust",
	"windDirection",
	"temperature",
	"temperatureApparent",
	"cloudCover",
	"cloudBase",
	"cloudCeiling",
	"weatherCode",
}

// BuildQuery encodes the timelines query for s at instant now.
// Settings values are passed through verbatim.
func BuildQuery(s settings.Settings, now time.Time) string {
	start := now.UTC()
	end := start.Add(Window)

	params := url.Values{}
	params.Set("apikey", s.APIKey)
	params["location"] = []string{s.Latitude, s.Longitude}
	params["fields"] = append([]string(nil), Fields...)
	params.Set("units", s.Units)
	params["timesteps"] = []string{"current"}
	params.Set("startTime", start.Format(isoMillis))
	params.Set("endTime", end.Format(isoMillis))
	params.Set("timezone", s.Timezone)
	return encodeComma(params)
}

// encodeComma serialises v with keys sorted and list values joined by a bare
// comma. Each key and element is percent-encoded with only A-Z a-z 0-9 - _ . ~
// left literal, so spaces become %20.
func encodeComma(v url.Values) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(k))
		b.WriteByte('=')
		for j, val := range v[k] {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(escape(val))
		}
	}
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

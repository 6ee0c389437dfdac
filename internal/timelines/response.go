package timelines

import "errors"

var (
	// ErrNoTimelines is returned when a response carries no timelines.
	ErrNoTimelines = errors.New("response has no timelines")
	// ErrNoIntervals is returned when the first timeline carries no intervals.
	ErrNoIntervals = errors.New("timeline has no intervals")
)

// Response is the body of GET /v4/timelines.
type Response struct {
	Data Data `json:"data"`
}

// Data wraps the timelines list.
type Data struct {
	Timelines []Timeline `json:"timelines"`
}

// Timeline is one time series, e.g. timestep "current" or "1h".
type Timeline struct {
	Timestep  string     `json:"timestep"`
	StartTime string     `json:"startTime"`
	EndTime   string     `json:"endTime"`
	Intervals []Interval `json:"intervals"`
}

// Interval is one timestamped snapshot within a timeline.
type Interval struct {
	StartTime string `json:"startTime"`
	Values    Values `json:"values"`
}

// Values holds the requested fields. Units follow the request's units parameter.
type Values struct {
	CloudBase              float64 `json:"cloudBase"`
	CloudCeiling           float64 `json:"cloudCeiling"`
	CloudCover             float64 `json:"cloudCover"`
	PrecipitationIntensity float64 `json:"precipitationIntensity"`
	PrecipitationType      float64 `json:"precipitationType"`
	Temperature            float64 `json:"temperature"`
	TemperatureApparent    float64 `json:"temperatureApparent"`
	WeatherCode            float64 `json:"weatherCode"`
	WindDirection          float64 `json:"windDirection"`
	WindGust               float64 `json:"windGust"`
	WindSpeed              float64 `json:"windSpeed"`
}

// First returns the first interval of the first timeline.
func (r Response) First() (Interval, error) {
	if len(r.Data.Timelines) == 0 {
		return Interval{}, ErrNoTimelines
	}
	if len(r.Data.Timelines[0].Intervals) == 0 {
		return Interval{}, ErrNoIntervals
	}
	return r.Data.Timelines[0].Intervals[0], nil
}

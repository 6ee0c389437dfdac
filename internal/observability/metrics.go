package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Snippet command runs by result (inserted, fetch_error, no_data, insert_error).
	SnippetInsertsTotal *prometheus.CounterVec

	// Tomorrow.io API call rate by status class.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Tomorrow.io latency per request. Free tier is slow; p95 above 5s means timeouts are near.
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts. Stays at zero unless retries are configured.
	WeatherAPIRetriesTotal prometheus.Counter

	// Response cache hits by backend.
	CacheHitsTotal *prometheus.CounterVec

	// Settings panel commits per field.
	SettingsChangesTotal *prometheus.CounterVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Command triggers denied by the limiter.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	SnippetInsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippetInsertsTotal",
			Help: "Weather snippet command runs by result",
		},
		[]string{"result"},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of Tomorrow.io timelines API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Tomorrow.io timelines API latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for timelines API calls",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of timelines response cache hits",
		},
		[]string{"cacheType"},
	)
	SettingsChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settingsChangesTotal",
			Help: "Settings panel commits by field",
		},
		[]string{"field"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of command triggers denied by the rate limiter (429)",
		},
	)

	registry.MustRegister(
		SnippetInsertsTotal,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		CacheHitsTotal, SettingsChangesTotal,
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		RateLimitDeniedTotal,
	)
}

// RecordSnippet counts one command run with the given result label.
func RecordSnippet(result string) {
	SnippetInsertsTotal.WithLabelValues(result).Inc()
}

// RecordSettingsChange counts one settings panel commit for field.
func RecordSettingsChange(field string) {
	SettingsChangesTotal.WithLabelValues(field).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/steichert/obsidian-weather-plugin/internal/observability"
)

// NewRouter mounts the companion routes. Running a command goes through the
// limiter and requestTimeout; the other routes do not.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	router.HandleFunc("/settings", h.GetSettings).Methods("GET")
	router.HandleFunc("/settings/{key}", h.PutSetting).Methods("PUT")
	router.HandleFunc("/commands", h.GetCommands).Methods("GET")

	run := RateLimitMiddleware(limiter)(TimeoutMiddleware(requestTimeout)(http.HandlerFunc(h.PostCommand)))
	router.Handle("/commands/{id}", run).Methods("POST")
	return router
}

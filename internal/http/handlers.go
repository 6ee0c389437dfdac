package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/steichert/obsidian-weather-plugin/internal/host"
	"github.com/steichert/obsidian-weather-plugin/internal/lifecycle"
	"github.com/steichert/obsidian-weather-plugin/internal/observability"
	"github.com/steichert/obsidian-weather-plugin/internal/plugin"
	"github.com/steichert/obsidian-weather-plugin/internal/settings"
	"github.com/steichert/obsidian-weather-plugin/internal/timelines"
)

// maxBodyBytes bounds PUT /settings bodies.
const maxBodyBytes = 64 << 10

var validate = validator.New()

// settingValue is the PUT /settings/{key} body. An empty string is a valid value.
type settingValue struct {
	Value *string `json:"value" validate:"required"`
}

// HealthConfig holds inputs for the health handler.
type HealthConfig struct {
	StartTime time.Time
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// CommandRunner is the command surface the server exposes.
type CommandRunner interface {
	List() []host.Command
	Run(ctx context.Context, id string) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	plugin           *plugin.Plugin
	commands         CommandRunner
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(p *plugin.Plugin, commands CommandRunner, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		plugin:       p,
		commands:     commands,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

type settingsResponse struct {
	Fields []plugin.PanelRow `json:"fields"`
	Notes  []string          `json:"notes"`
}

// GetSettings handles GET /settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsResponse{
		Fields: h.plugin.Panel(),
		Notes:  nonNil(settings.Check(h.plugin.Settings())),
	})
}

// PutSetting handles PUT /settings/{key} with body {"value": "..."}.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var body settingValue
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", `body must be {"value": "..."}`)
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", `body must be {"value": "..."}`)
		return
	}

	next, err := h.plugin.ChangeSetting(r.Context(), key, *body.Value)
	if err != nil {
		if errors.Is(err, settings.ErrUnknownField) {
			writeError(w, r, http.StatusBadRequest, "UNKNOWN_FIELD", "unknown settings field: "+key)
			return
		}
		observability.LoggerFrom(r.Context(), h.logger).Error("save setting", zap.String("field", key), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "SAVE_FAILED", "Unable to save settings")
		return
	}

	value, _ := next.Get(key)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":   key,
		"value": value,
		"notes": nonNil(settings.Check(next)),
	})
}

// GetCommands handles GET /commands.
func (h *Handler) GetCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"commands": h.commands.List()})
}

// PostCommand handles POST /commands/{id}. The weather command returns the
// inserted snippet; other commands return only their id.
func (h *Handler) PostCommand(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if id == plugin.InsertCommandID {
		out, err := h.plugin.InsertCurrentWeather(r.Context())
		if err != nil {
			writeCommandError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "snippet": out})
		return
	}

	if err := h.commands.Run(r.Context(), id); err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	result := h.computeHealthStatus(checks)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-snippet",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptime"] = time.Since(h.healthConfig.StartTime).Round(time.Second).String()
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus fills checks and returns the overall status.
// Decision order: shutting-down > cache unreachable (degraded) > healthy.
// Incomplete settings are reported in checks without changing the status.
func (h *Handler) computeHealthStatus(checks map[string]string) healthResult {
	if notes := settings.Check(h.plugin.Settings()); len(notes) > 0 {
		checks["settings"] = "incomplete"
	} else {
		checks["settings"] = "ok"
	}

	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(); err != nil {
			checks["cache"] = "unhealthy"
			return healthResult{"degraded", http.StatusOK, "cache_unreachable"}
		}
		checks["cache"] = "healthy"
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeCommandError maps command failures to a status and error code. The
// plugin has already logged fetch failures with their category.
func writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, host.ErrUnknownCommand) {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_COMMAND", err.Error())
		return
	}
	if errors.Is(err, plugin.ErrInsert) {
		writeError(w, r, http.StatusInternalServerError, "INSERT_FAILED", "Unable to insert snippet into the note")
		return
	}
	switch timelines.CategorizeError(err) {
	case timelines.ErrorCategoryInvalidAPIKey:
		writeError(w, r, http.StatusBadGateway, "INVALID_API_KEY", "Tomorrow.io rejected the API key")
	case timelines.ErrorCategoryRejected:
		writeError(w, r, http.StatusBadGateway, "REQUEST_REJECTED", err.Error())
	case timelines.ErrorCategoryNoData:
		writeError(w, r, http.StatusBadGateway, "NO_DATA", "Tomorrow.io returned no current interval")
	case timelines.ErrorCategoryParsing:
		writeError(w, r, http.StatusBadGateway, "BAD_UPSTREAM_RESPONSE", "Tomorrow.io returned an unreadable response")
	case timelines.ErrorCategoryRateLimited:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMITED", "Tomorrow.io rate limit reached")
	case timelines.ErrorCategoryTimeout:
		writeError(w, r, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Timed out fetching weather data")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	}
}

func nonNil(notes []string) []string {
	if notes == nil {
		return []string{}
	}
	return notes
}

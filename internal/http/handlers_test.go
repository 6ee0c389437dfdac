package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/steichert/obsidian-weather-plugin/internal/host"
	"github.com/steichert/obsidian-weather-plugin/internal/lifecycle"
	"github.com/steichert/obsidian-weather-plugin/internal/plugin"
	"github.com/steichert/obsidian-weather-plugin/internal/settings"
	"github.com/steichert/obsidian-weather-plugin/internal/timelines"
)

type stubFetcher struct {
	resp  timelines.Response
	err   error
	block bool // if set, GetTimelines waits for ctx.Done()
	calls int
}

func (s *stubFetcher) GetTimelines(ctx context.Context, st settings.Settings) (timelines.Response, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return timelines.Response{}, ctx.Err()
	}
	return s.resp, s.err
}

func currentConditions(temp, code float64) timelines.Response {
	return timelines.Response{Data: timelines.Data{Timelines: []timelines.Timeline{{
		Timestep:  "current",
		Intervals: []timelines.Interval{{Values: timelines.Values{Temperature: temp, WeatherCode: code}}},
	}}}}
}

type testEnv struct {
	handler      *Handler
	note         *host.NoteFile
	notePath     string
	settingsPath string
}

// newTestEnv loads a plugin against a NoteFile host in a temp dir.
// blob, when non-empty, is written as the persisted settings.
func newTestEnv(t *testing.T, blob string, f timelines.Fetcher, logger *zap.Logger) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		notePath:     filepath.Join(dir, "daily.md"),
		settingsPath: filepath.Join(dir, "data.json"),
	}
	if blob != "" {
		if err := os.WriteFile(env.settingsPath, []byte(blob), 0o600); err != nil {
			t.Fatalf("write settings: %v", err)
		}
	}
	if err := os.WriteFile(env.notePath, []byte("# Today\n"+host.CursorMarker+"\n"), 0o644); err != nil {
		t.Fatalf("write note: %v", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	env.note = host.NewNoteFile(env.notePath, env.settingsPath)
	p := plugin.New(env.note, f, logger)
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	env.handler = NewHandler(p, env.note, &HealthConfig{StartTime: time.Now()}, logger)
	return env
}

func (e *testEnv) serve(method, path, body string) *httptest.ResponseRecorder {
	router := NewRouter(e.handler, zap.NewNop(), nil, time.Second)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestHandler_GetSettings(t *testing.T) {
	env := newTestEnv(t, "", &stubFetcher{}, nil)
	w := env.serve("GET", "/settings", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp settingsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Fields) != 5 {
		t.Fatalf("fields = %d, want 5", len(resp.Fields))
	}
	if resp.Fields[0].Key != settings.KeyAPIKey || resp.Fields[0].Value != "" {
		t.Errorf("fields[0] = %+v, want empty apiKey row", resp.Fields[0])
	}
	if resp.Fields[1].Value != "metric" {
		t.Errorf("units = %q, want metric", resp.Fields[1].Value)
	}
	if len(resp.Notes) != 1 || !strings.Contains(resp.Notes[0], "apiKey") {
		t.Errorf("notes = %v, want apiKey note", resp.Notes)
	}
}

func TestHandler_PutSetting_Persists(t *testing.T) {
	env := newTestEnv(t, `{"apiKey":"abc"}`, &stubFetcher{}, nil)
	w := env.serve("PUT", "/settings/timezone", `{"value":"Europe/London"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	raw, err := os.ReadFile(env.settingsPath)
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	var persisted settings.Settings
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := settings.Defaults()
	want.APIKey = "abc"
	want.Timezone = "Europe/London"
	if persisted != want {
		t.Errorf("persisted = %+v, want %+v", persisted, want)
	}
}

func TestHandler_PutSetting_EmptyValueAllowed(t *testing.T) {
	env := newTestEnv(t, `{"apiKey":"abc"}`, &stubFetcher{}, nil)
	w := env.serve("PUT", "/settings/apiKey", `{"value":""}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Value string   `json:"value"`
		Notes []string `json:"notes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Value != "" || len(resp.Notes) == 0 {
		t.Errorf("resp = %+v, want empty value with apiKey note", resp)
	}
}

func TestHandler_PutSetting_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode string
	}{
		{"unknown field", "/settings/altitude", `{"value":"100"}`, "UNKNOWN_FIELD"},
		{"invalid json", "/settings/units", `{value`, "INVALID_BODY"},
		{"missing value", "/settings/units", `{}`, "INVALID_BODY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "", &stubFetcher{}, nil)
			w := env.serve("PUT", tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if got := decodeError(t, w).Error.Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
			if _, err := os.Stat(env.settingsPath); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("settings file written on rejected change")
			}
		})
	}
}

func TestHandler_GetCommands(t *testing.T) {
	env := newTestEnv(t, "", &stubFetcher{}, nil)
	w := env.serve("GET", "/commands", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Commands []host.Command `json:"commands"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Commands) != 1 || resp.Commands[0].ID != plugin.InsertCommandID || resp.Commands[0].Name != plugin.InsertCommandName {
		t.Errorf("commands = %+v", resp.Commands)
	}
}

func TestHandler_PostCommand_InsertsSnippet(t *testing.T) {
	env := newTestEnv(t, `{"apiKey":"abc"}`, &stubFetcher{resp: currentConditions(18, 1001)}, nil)
	w := env.serve("POST", "/commands/"+plugin.InsertCommandID, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := `<div><span><img src="../icons/png/10010_cloudy_large.png" alt="weather icon"></span><h3>Temperature: 18°C</h3><sub>Powered by Tomorrow.io</sub></div>`
	if resp["snippet"] != want {
		t.Errorf("snippet = %s, want %s", resp["snippet"], want)
	}

	doc, err := os.ReadFile(env.notePath)
	if err != nil {
		t.Fatalf("read note: %v", err)
	}
	if !strings.Contains(string(doc), want+"\n"+host.CursorMarker) {
		t.Errorf("note = %q, want snippet before marker", doc)
	}
}

func TestHandler_PostCommand_UnknownCommand(t *testing.T) {
	env := newTestEnv(t, "", &stubFetcher{}, nil)
	w := env.serve("POST", "/commands/does-not-exist", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if got := decodeError(t, w).Error.Code; got != "UNKNOWN_COMMAND" {
		t.Errorf("code = %q, want UNKNOWN_COMMAND", got)
	}
}

func TestHandler_PostCommand_OtherRegisteredCommand(t *testing.T) {
	env := newTestEnv(t, "", &stubFetcher{}, nil)
	ran := false
	if err := env.note.Register(host.Command{ID: "noop", Name: "No-op", Run: func(ctx context.Context) error {
		ran = true
		return nil
	}}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	w := env.serve("POST", "/commands/noop", "")
	if w.Code != http.StatusOK || !ran {
		t.Errorf("status = %d ran = %v, want 200 and run", w.Code, ran)
	}
}

func TestHandler_PostCommand_FetchErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid key", fmt.Errorf("%w: HTTP 401", timelines.ErrInvalidAPIKey), http.StatusBadGateway, "INVALID_API_KEY"},
		{"bad request", fmt.Errorf("%w: HTTP 400: bad location", timelines.ErrBadRequest), http.StatusBadGateway, "REQUEST_REJECTED"},
		{"rate limited", timelines.ErrRateLimited, http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMITED"},
		{"upstream 500", fmt.Errorf("%w: HTTP 500", timelines.ErrUpstreamFailure), http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
		{"truncated body", fmt.Errorf("%w: read body: unexpected EOF", timelines.ErrDecode), http.StatusBadGateway, "BAD_UPSTREAM_RESPONSE"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, `{"apiKey":"abc"}`, &stubFetcher{err: tt.err}, nil)
			w := env.serve("POST", "/commands/"+plugin.InsertCommandID, "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decodeError(t, w).Error.Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
			doc, _ := os.ReadFile(env.notePath)
			if strings.Contains(string(doc), "Temperature") {
				t.Errorf("note changed on failure: %q", doc)
			}
		})
	}
}

func TestHandler_PostCommand_NoData(t *testing.T) {
	empty := timelines.Response{Data: timelines.Data{Timelines: []timelines.Timeline{}}}
	env := newTestEnv(t, `{"apiKey":"abc"}`, &stubFetcher{resp: empty}, nil)
	w := env.serve("POST", "/commands/"+plugin.InsertCommandID, "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
	if got := decodeError(t, w).Error.Code; got != "NO_DATA" {
		t.Errorf("code = %q, want NO_DATA", got)
	}
}

func TestHandler_PostCommand_InsertFailure(t *testing.T) {
	env := newTestEnv(t, `{"apiKey":"abc"}`, &stubFetcher{resp: currentConditions(1, 1000)}, nil)
	// A directory cannot be read as a note.
	if err := os.Remove(env.notePath); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(env.notePath, 0o755); err != nil {
		t.Fatal(err)
	}
	w := env.serve("POST", "/commands/"+plugin.InsertCommandID, "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if got := decodeError(t, w).Error.Code; got != "INSERT_FAILED" {
		t.Errorf("code = %q, want INSERT_FAILED", got)
	}
}

func TestHandler_PostCommand_RequestTimeout(t *testing.T) {
	env := newTestEnv(t, `{"apiKey":"abc"}`, &stubFetcher{block: true}, nil)
	router := NewRouter(env.handler, zap.NewNop(), nil, 20*time.Millisecond)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/commands/"+plugin.InsertCommandID, nil))
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", w.Code)
	}
}

func TestHandler_GetHealth(t *testing.T) {
	tests := []struct {
		name         string
		blob         string
		shutting     bool
		ping         func() error
		wantStatus   int
		wantState    string
		wantSettings string
		wantCache    string
	}{
		{"healthy", `{"apiKey":"abc"}`, false, nil, http.StatusOK, "healthy", "ok", ""},
		{"incomplete settings stay healthy", "", false, nil, http.StatusOK, "healthy", "incomplete", ""},
		{"cache reachable", `{"apiKey":"abc"}`, false, func() error { return nil }, http.StatusOK, "healthy", "ok", "healthy"},
		{"cache unreachable", `{"apiKey":"abc"}`, false, func() error { return errors.New("dial tcp: refused") }, http.StatusOK, "degraded", "ok", "unhealthy"},
		{"shutting down", `{"apiKey":"abc"}`, true, nil, http.StatusServiceUnavailable, "shutting-down", "ok", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lifecycle.SetShuttingDown(tt.shutting)
			defer lifecycle.SetShuttingDown(false)

			env := newTestEnv(t, tt.blob, &stubFetcher{}, nil)
			env.handler.healthConfig.CachePing = tt.ping
			w := env.serve("GET", "/health", "")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantState {
				t.Errorf("status field = %q, want %q", resp.Status, tt.wantState)
			}
			if resp.Checks["settings"] != tt.wantSettings {
				t.Errorf("checks.settings = %q, want %q", resp.Checks["settings"], tt.wantSettings)
			}
			if resp.Checks["cache"] != tt.wantCache {
				t.Errorf("checks.cache = %q, want %q", resp.Checks["cache"], tt.wantCache)
			}
		})
	}
}

func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	env := newTestEnv(t, `{"apiKey":"abc"}`, &stubFetcher{}, zap.New(core))

	env.serve("GET", "/health", "")
	lifecycle.SetShuttingDown(true)
	defer lifecycle.SetShuttingDown(false)
	env.serve("GET", "/health", "")

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "shutting-down" {
		t.Errorf("transition fields = %v", fields)
	}
}

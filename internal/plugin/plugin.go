package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/steichert/obsidian-weather-plugin/internal/host"
	"github.com/steichert/obsidian-weather-plugin/internal/observability"
	"github.com/steichert/obsidian-weather-plugin/internal/settings"
	"github.com/steichert/obsidian-weather-plugin/internal/snippet"
	"github.com/steichert/obsidian-weather-plugin/internal/timelines"
)

// Command identity as registered with the host.
const (
	InsertCommandID   = "insert-current-weather"
	InsertCommandName = "Insert current weather"
)

// ErrInsert wraps host failures to place a rendered snippet.
var ErrInsert = errors.New("insert snippet")

// Snippet results recorded in snippetInsertsTotal.
const (
	resultInserted    = "inserted"
	resultFetchError  = "fetch_error"
	resultNoData      = "no_data"
	resultInsertError = "insert_error"
)

// Plugin ties settings, the timelines fetcher and the host together.
type Plugin struct {
	host    host.Host
	store   settings.Store
	fetcher timelines.Fetcher
	logger  *zap.Logger

	// fallbackKey is sent when the persisted apiKey is empty.
	fallbackKey string

	mu       sync.RWMutex
	settings settings.Settings
}

// New returns a Plugin whose settings persist through h.
func New(h host.Host, fetcher timelines.Fetcher, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{
		host:     h,
		store:    settings.NewBlobStore(h),
		fetcher:  fetcher,
		logger:   logger,
		settings: settings.Defaults(),
	}
}

// WithAPIKeyFallback sets the key used when the persisted apiKey is empty.
func (p *Plugin) WithAPIKeyFallback(key string) *Plugin {
	p.fallbackKey = key
	return p
}

// Load reads persisted settings and registers the insert command.
func (p *Plugin) Load(ctx context.Context) error {
	s, err := p.store.Load(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()

	for _, note := range settings.Check(s) {
		p.logger.Warn("settings check", zap.String("note", note))
	}

	return p.host.RegisterCommand(host.Command{
		ID:   InsertCommandID,
		Name: InsertCommandName,
		Run: func(ctx context.Context) error {
			_, err := p.InsertCurrentWeather(ctx)
			return err
		},
	})
}

// Settings returns the current settings value.
func (p *Plugin) Settings() settings.Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

// InsertCurrentWeather fetches current conditions for the settings in effect
// when it is called, renders the snippet and inserts it at the cursor.
// Nothing is inserted on failure; the error is logged and returned.
func (p *Plugin) InsertCurrentWeather(ctx context.Context) (string, error) {
	logger := observability.LoggerFrom(ctx, p.logger)
	s := p.Settings()
	if s.APIKey == "" && p.fallbackKey != "" {
		s.APIKey = p.fallbackKey
	}

	out, err := Snippet(ctx, p.fetcher, s)
	if err != nil {
		result := resultFetchError
		if errors.Is(err, timelines.ErrNoTimelines) || errors.Is(err, timelines.ErrNoIntervals) {
			result = resultNoData
		}
		observability.RecordSnippet(result)
		logger.Error("weather snippet failed",
			zap.String("command", InsertCommandID),
			zap.String("category", string(timelines.CategorizeError(err))),
			zap.Error(err))
		return "", err
	}

	if err := p.host.InsertAtCursor(ctx, out); err != nil {
		observability.RecordSnippet(resultInsertError)
		logger.Error("insert snippet failed", zap.String("command", InsertCommandID), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrInsert, err)
	}

	observability.RecordSnippet(resultInserted)
	logger.Info("weather snippet inserted", zap.String("units", s.Units), zap.Int("bytes", len(out)))
	return out, nil
}

// Snippet fetches and renders one snippet for s without touching the host.
func Snippet(ctx context.Context, fetcher timelines.Fetcher, s settings.Settings) (string, error) {
	resp, err := fetcher.GetTimelines(ctx, s)
	if err != nil {
		return "", fmt.Errorf("fetch timelines: %w", err)
	}
	return snippet.Render(resp, s.Units)
}

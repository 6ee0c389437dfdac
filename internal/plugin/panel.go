package plugin

import (
	"context"

	"go.uber.org/zap"

	"github.com/steichert/obsidian-weather-plugin/internal/observability"
	"github.com/steichert/obsidian-weather-plugin/internal/settings"
)

// PanelRow is one settings panel text input with its current value.
type PanelRow struct {
	settings.Field
	Value string `json:"value"`
}

// Panel returns the settings panel rows in display order.
func (p *Plugin) Panel() []PanelRow {
	s := p.Settings()
	fields := settings.Fields()
	rows := make([]PanelRow, 0, len(fields))
	for _, f := range fields {
		v, _ := s.Get(f.Key)
		rows = append(rows, PanelRow{Field: f, Value: v})
	}
	return rows
}

// ChangeSetting commits one panel input and persists immediately.
// The in-memory value changes only once the host has saved it.
func (p *Plugin) ChangeSetting(ctx context.Context, key, value string) (settings.Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := p.settings.With(key, value)
	if err != nil {
		return p.settings, err
	}
	if err := p.store.Save(ctx, next); err != nil {
		return p.settings, err
	}
	p.settings = next
	observability.RecordSettingsChange(key)

	logger := observability.LoggerFrom(ctx, p.logger)
	logger.Info("setting changed", zap.String("field", key))
	for _, note := range settings.Check(next) {
		logger.Warn("settings check", zap.String("note", note))
	}
	return next, nil
}

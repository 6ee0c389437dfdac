package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/steichert/obsidian-weather-plugin/internal/cache"
	"github.com/steichert/obsidian-weather-plugin/internal/config"
	"github.com/steichert/obsidian-weather-plugin/internal/host"
	httphandler "github.com/steichert/obsidian-weather-plugin/internal/http"
	"github.com/steichert/obsidian-weather-plugin/internal/lifecycle"
	"github.com/steichert/obsidian-weather-plugin/internal/observability"
	"github.com/steichert/obsidian-weather-plugin/internal/plugin"
	"github.com/steichert/obsidian-weather-plugin/internal/timelines"
)

const usage = `usage: weather-snippet <command>

commands:
  insert             insert current weather at the note's cursor marker
  set <key> <value>  change one setting
  show               print the settings panel
  serve              run the companion HTTP server
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	encoding := cfg.LogEncoding
	if encoding == "" {
		encoding = "console"
		if cmd == "serve" {
			encoding = "json"
		}
	}
	logger, err := observability.NewLogger(cfg.LogLevel, encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	switch cmd {
	case "insert":
		err = runInsert(cfg, logger)
	case "set":
		if len(os.Args) != 4 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		err = runSet(cfg, logger, os.Args[2], os.Args[3])
	case "show":
		err = runShow(cfg, logger)
	case "serve":
		err = runServe(cfg, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(cmd+" failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// app is the wired plugin plus the resources main must release.
type app struct {
	plugin *plugin.Plugin
	note   *host.NoteFile
	mc     *cache.MemcachedCache
}

func (a *app) close(logger *zap.Logger) {
	if a.mc != nil {
		if err := a.mc.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	client, err := timelines.NewClientWithRetry(
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}

	a := &app{}
	var fetcher timelines.Fetcher = client
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		a.mc = mc
		fetcher = cache.NewFetcher(client, mc, cfg.CacheTTL, "memcached", logger)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "in_memory":
		fetcher = cache.NewFetcher(client, cache.NewInMemoryCache(), cfg.CacheTTL, "in_memory", logger)
		logger.Info("cache backend: in_memory")
	default:
		logger.Debug("cache backend: none")
	}

	a.note = host.NewNoteFile(cfg.NotePath, cfg.SettingsPath)
	a.plugin = plugin.New(a.note, fetcher, logger).WithAPIKeyFallback(cfg.WeatherAPIKey)
	if err := a.plugin.Load(ctx); err != nil {
		a.close(logger)
		return nil, fmt.Errorf("load plugin: %w", err)
	}
	return a, nil
}

func runInsert(cfg *config.Config, logger *zap.Logger) error {
	if cfg.NotePath == "" {
		return errors.New("note.path (NOTE_PATH) is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(logger)
	return a.note.Run(ctx, plugin.InsertCommandID)
}

func runSet(cfg *config.Config, logger *zap.Logger, key, value string) error {
	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(logger)
	_, err = a.plugin.ChangeSetting(ctx, key, value)
	return err
}

func runShow(cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(logger)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range a.plugin.Panel() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Name, row.Value, row.Description)
	}
	return tw.Flush()
}

func runServe(cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		return err
	}

	healthConfig := &httphandler.HealthConfig{StartTime: time.Now()}
	if a.mc != nil {
		healthConfig.CachePing = a.mc.Ping
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.CommandRateLimitRPS), cfg.CommandRateLimitBurst)
	handler := httphandler.NewHandler(a.plugin, a.note, healthConfig, logger)
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         "127.0.0.1:" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	select {
	case <-ctx.Done():
		logger.Info("graceful shutdown triggered")
	case err := <-serveErr:
		logger.Error("server", zap.Error(err))
	}
	stop()

	err = lifecycle.Shutdown(context.Background(), logger,
		lifecycle.Step{Name: "http server", Timeout: cfg.ShutdownTimeout, Run: srv.Shutdown},
		lifecycle.Step{Name: "in-flight requests", Timeout: cfg.ShutdownInFlightTimeout, Run: func(ctx context.Context) error {
			logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
			return httphandler.WaitForInFlight(ctx, cfg.ShutdownInFlightCheckInterval)
		}},
		lifecycle.Step{Name: "telemetry", Run: func(ctx context.Context) error {
			return observability.FlushTelemetry(ctx, logger)
		}},
		lifecycle.Step{Name: "cache", Run: func(ctx context.Context) error {
			a.close(logger)
			return nil
		}},
	)
	logger.Info("shutdown complete")
	return err
}

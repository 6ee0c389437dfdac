package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/steichert/obsidian-weather-plugin/internal/observability"
	"github.com/steichert/obsidian-weather-plugin/internal/settings"
	"github.com/steichert/obsidian-weather-plugin/internal/timelines"
)

// Fetcher is a cache-aside timelines.Fetcher. Cache errors are logged and
// treated as misses; upstream errors are returned unchanged and never cached.
type Fetcher struct {
	next      timelines.Fetcher
	cache     Cache
	ttl       time.Duration
	cacheType string
	logger    *zap.Logger
}

// NewFetcher wraps next with cache. cacheType labels hit metrics.
func NewFetcher(next timelines.Fetcher, c Cache, ttl time.Duration, cacheType string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{next: next, cache: c, ttl: ttl, cacheType: cacheType, logger: logger}
}

// GetTimelines implements timelines.Fetcher.
func (f *Fetcher) GetTimelines(ctx context.Context, s settings.Settings) (timelines.Response, error) {
	logger := observability.LoggerFrom(ctx, f.logger)
	key := Key(s)

	cached, ok, err := f.cache.Get(ctx, key)
	switch {
	case err != nil:
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	case ok:
		observability.CacheHitsTotal.WithLabelValues(f.cacheType).Inc()
		logger.Debug("cache hit", zap.String("key", key))
		return cached, nil
	}

	resp, err := f.next.GetTimelines(ctx, s)
	if err != nil {
		return timelines.Response{}, err
	}
	if err := f.cache.Set(ctx, key, resp, f.ttl); err != nil {
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return resp, nil
}

// Key derives a memcached-safe key from the request-shaping settings. The API
// key is left out so it never reaches the cache.
func Key(s settings.Settings) string {
	parts := []string{
		strings.TrimSpace(s.Latitude),
		strings.TrimSpace(s.Longitude),
		strings.ToLower(strings.TrimSpace(s.Units)),
		strings.TrimSpace(s.Timezone),
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(parts, "|")))
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/steichert/obsidian-weather-plugin/internal/timelines"
)

// Cache stores timelines responses by request key.
type Cache interface {
	Get(ctx context.Context, key string) (timelines.Response, bool, error)
	Set(ctx context.Context, key string, value timelines.Response, ttl time.Duration) error
}

// InMemoryCache implements Cache with a mutex-guarded map and TTL expiry.
// Expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     timelines.Response
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Get returns (value, true, nil) on a live hit and (zero, false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (timelines.Response, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return timelines.Response{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return timelines.Response{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores value until ttl elapses.
func (c *InMemoryCache) Set(ctx context.Context, key string, value timelines.Response, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

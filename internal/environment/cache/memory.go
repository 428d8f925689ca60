// Package cache holds the non-authoritative environmental context caches.
// A miss or a cache error only costs an upstream round trip.
package cache

import (
	"context"
	"sync"
	"time"

	"vitalproof/internal/environment"
	"vitalproof/pkg/platform/sentinel"
)

type entry struct {
	ctx      environment.Context
	storedAt time.Time
	ttl      time.Duration
}

// InMemoryCache is a per-process TTL cache.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   func() time.Time
}

type MemoryOption func(*InMemoryCache)

// WithClock injects the time source, for tests.
func WithClock(clock func() time.Time) MemoryOption {
	return func(c *InMemoryCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func NewInMemoryCache(opts ...MemoryOption) *InMemoryCache {
	c := &InMemoryCache{entries: make(map[string]entry), clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *InMemoryCache) Get(_ context.Context, key string) (*environment.Context, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if c.clock().Sub(e.storedAt) > e.ttl {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.storedAt.Equal(e.storedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, sentinel.ErrNotFound
	}
	out := e.ctx
	return &out, nil
}

func (c *InMemoryCache) Set(_ context.Context, key string, value *environment.Context, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{ctx: *value, storedAt: c.clock(), ttl: ttl}
	return nil
}

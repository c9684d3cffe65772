package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// InMemoryCache implements Cache with a mutex-guarded map. Expired entries are
// dropped lazily on read and by Cleanup.
type InMemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Option configures an InMemoryCache.
type Option func(*InMemoryCache)

// WithClock overrides the time source, for deterministic expiry in tests.
func WithClock(now func() time.Time) Option {
	return func(c *InMemoryCache) {
		c.now = now
	}
}

// NewInMemory constructs an empty in-memory cache.
func NewInMemory(opts ...Option) *InMemoryCache {
	c := &InMemoryCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *InMemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *InMemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *InMemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	return ok, nil
}

func (c *InMemoryCache) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return 0, false, nil
	}
	return e.expiresAt.Sub(c.now()), true, nil
}

func (c *InMemoryCache) IncrementBelow(_ context.Context, key string, limit int, ttl time.Duration) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	if e, ok := c.live(key); ok {
		v, err := strconv.Atoi(e.value)
		if err != nil || v < 0 {
			return limit, false, nil
		}
		n = v
	}
	if n >= limit {
		return n, false, nil
	}
	n++
	c.entries[key] = entry{value: strconv.Itoa(n), expiresAt: c.now().Add(ttl)}
	return n, true, nil
}

// Cleanup removes all expired entries and returns how many were dropped.
func (c *InMemoryCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// live returns the entry if present and unexpired, deleting it otherwise.
// Must be called while holding c.mu.
func (c *InMemoryCache) live(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return entry{}, false
	}
	return e, true
}

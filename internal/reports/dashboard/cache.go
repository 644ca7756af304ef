package dashboard

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const sweepInterval = time.Minute

// AggregateCache keeps computed summaries for a TTL. Every key carries a version that
// invalidation bumps, so a summary computed before an invalidation is never stored after it.
type AggregateCache struct {
	mu       sync.RWMutex
	entries  map[string]summaryEntry
	versions map[string]uint64
	loading  map[string]int
	ttl      time.Duration
	now      func() time.Time
	group    singleflight.Group
	done     chan struct{}
	stopOnce sync.Once
}

type summaryEntry struct {
	value     interface{}
	expiresAt time.Time
}

// NewAggregateCache creates a cache and starts its expiry sweep. Call Stop to end it.
func NewAggregateCache(ttl time.Duration) *AggregateCache {
	c := &AggregateCache{
		entries:  make(map[string]summaryEntry),
		versions: make(map[string]uint64),
		loading:  make(map[string]int),
		ttl:      ttl,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Lookup returns a live entry
func (c *AggregateCache) Lookup(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Load returns the cached summary for key or computes it. Concurrent loads of one key
// share a single computation.
func (c *AggregateCache) Load(key string, compute func() (interface{}, error)) (interface{}, error) {
	if value, ok := c.Lookup(key); ok {
		return value, nil
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		version := c.versions[key]
		c.loading[key]++
		c.mu.Unlock()

		value, err := compute()

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.loading[key]--; c.loading[key] == 0 {
			delete(c.loading, key)
		}
		if err != nil {
			return nil, err
		}
		if c.versions[key] == version {
			c.entries[key] = summaryEntry{value: value, expiresAt: c.now().Add(c.ttl)}
		}
		return value, nil
	})
	return value, err
}

// Invalidate drops the given keys
func (c *AggregateCache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		c.versions[key]++
		delete(c.entries, key)
	}
}

// InvalidatePrefix drops every key starting with prefix, including keys still being computed
func (c *AggregateCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			c.versions[key]++
		}
	}
	for key := range c.loading {
		if strings.HasPrefix(key, prefix) {
			c.versions[key]++
		}
	}
}

func (c *AggregateCache) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.done:
			return
		}
	}
}

func (c *AggregateCache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Stop ends the expiry sweep
func (c *AggregateCache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

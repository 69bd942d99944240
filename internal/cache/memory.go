package cache

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is the L1 tier: an entry-count-bounded LRU with per-entry
// TTL. Expiry is tracked on the entry rather than by the LRU itself so
// that expired values remain readable for the stale-on-error path.
type MemoryCache struct {
	store      *lru.Cache[string, *memoryEntry]
	defaultTTL time.Duration
	clock      func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	sizeHint  int
}

// MemoryConfig holds L1 configuration.
type MemoryConfig struct {
	MaxEntries int           // eviction trigger (default: 10000)
	DefaultTTL time.Duration // default entry TTL (default: 5 minutes)
}

const (
	defaultMaxEntries = 10000
	defaultMemoryTTL  = 5 * time.Minute
)

// NewMemoryCache creates the L1 tier.
func NewMemoryCache(cfg MemoryConfig) (*MemoryCache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultMemoryTTL
	}
	store, err := lru.New[string, *memoryEntry](cfg.MaxEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{
		store:      store,
		defaultTTL: cfg.DefaultTTL,
		clock:      time.Now,
	}, nil
}

// Get returns the value when present and fresh. Reads refresh recency.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	entry, ok := c.store.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, nil
	}
	if c.clock().After(entry.expiresAt) {
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	return cloneBytes(entry.value), nil
}

// GetStale returns the value even past its TTL, reporting whether it
// had expired. Used by the stale-on-error and timeout-fallback paths;
// the caller accounts for expired serves, never in response metadata.
func (c *MemoryCache) GetStale(key string) (value []byte, expired, ok bool) {
	entry, ok := c.store.Get(key)
	if !ok {
		return nil, false, false
	}
	return cloneBytes(entry.value), c.clock().After(entry.expiresAt), true
}

// Set stores a value, evicting the least recently used entry at
// capacity. A later write of the same key overwrites.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.store.Add(key, &memoryEntry{
		value:     cloneBytes(value),
		expiresAt: c.clock().Add(ttl),
		sizeHint:  len(value),
	})
	c.sets.Add(1)
	return nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.store.Remove(key)
	return nil
}

// Clear removes all entries.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.store.Purge()
	return nil
}

// Ping always succeeds for the in-process tier.
func (c *MemoryCache) Ping(ctx context.Context) error { return nil }

// Close releases nothing; the LRU is garbage collected.
func (c *MemoryCache) Close() error { return nil }

// Len returns the current entry count.
func (c *MemoryCache) Len() int { return c.store.Len() }

// Stats returns L1 statistics.
func (c *MemoryCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Entries: c.store.Len(),
		HitRate: hitRate(hits, misses),
	}
}

func cloneBytes(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

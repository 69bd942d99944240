package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/searchmux/searchmux/internal/metrics"
)

// DualCache is the two-level read-through cache. Reads check L1 first,
// then L2 with L1 backfill; writes go to L1 always and to L2 when
// enabled. L2 faults are recorded and swallowed: the caller only ever
// sees hit or miss.
type DualCache struct {
	local  *MemoryCache
	shared *RedisCache // nil when L2 is disabled
	logger *slog.Logger

	localTTL time.Duration

	l2Faults    atomic.Int64
	staleServes atomic.Int64
}

// DualConfig holds two-level cache configuration.
type DualConfig struct {
	LocalTTL time.Duration // L1 TTL applied on backfill (default: 5 minutes)
}

// NewDualCache assembles the two tiers. shared may be nil.
func NewDualCache(local *MemoryCache, shared *RedisCache, cfg DualConfig, logger *slog.Logger) *DualCache {
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = defaultMemoryTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DualCache{
		local:    local,
		shared:   shared,
		logger:   logger,
		localTTL: cfg.LocalTTL,
	}
}

// Get returns the cached value and the tier that served it. TierNone
// means miss. When L2 errors and an expired L1 entry exists, the stale
// entry is served and counted; the response metadata is unaffected.
func (c *DualCache) Get(ctx context.Context, key string) ([]byte, Tier) {
	if val, err := c.local.Get(ctx, key); err == nil && val != nil {
		metrics.CacheHits.WithLabelValues(string(TierL1)).Inc()
		return val, TierL1
	}

	if c.shared == nil {
		metrics.CacheMisses.Inc()
		return nil, TierNone
	}

	val, err := c.shared.Get(ctx, key)
	if err != nil {
		c.l2Faults.Add(1)
		metrics.CacheFaults.Inc()
		c.logger.Warn("l2 cache fault", "error", err)
		if stale, expired, ok := c.local.GetStale(key); ok {
			if expired {
				c.staleServes.Add(1)
				metrics.CacheStaleServes.Inc()
			}
			return stale, TierL1
		}
		metrics.CacheMisses.Inc()
		return nil, TierNone
	}
	if val != nil {
		metrics.CacheHits.WithLabelValues(string(TierL2)).Inc()
		// Backfill is best-effort.
		_ = c.local.Set(ctx, key, val, c.localTTL) //nolint:errcheck
		return val, TierL2
	}

	metrics.CacheMisses.Inc()
	return nil, TierNone
}

// GetStaleLocal exposes expired L1 entries to the dispatcher's timeout
// fallback: a stale same-key response beats a degraded engine call.
// Only serves of entries actually past their TTL count as stale.
func (c *DualCache) GetStaleLocal(key string) ([]byte, bool) {
	val, expired, ok := c.local.GetStale(key)
	if ok && expired {
		c.staleServes.Add(1)
		metrics.CacheStaleServes.Inc()
	}
	return val, ok
}

// Set writes L1 with the given TTL and L2 (when enabled) with the same
// TTL rounded up to seconds. The policy TTL is written as-is so tiered
// lifetimes survive even without an L2; LocalTTL only bounds backfill.
// L2 write failures are swallowed.
func (c *DualCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("l1 cache write failed", "error", err)
	}
	if c.shared == nil {
		return
	}
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		c.l2Faults.Add(1)
		metrics.CacheFaults.Inc()
		c.logger.Warn("l2 cache write failed", "error", err)
	}
}

// Delete removes a key from both tiers, best-effort.
func (c *DualCache) Delete(ctx context.Context, key string) {
	_ = c.local.Delete(ctx, key) //nolint:errcheck
	if c.shared != nil {
		if err := c.shared.Delete(ctx, key); err != nil {
			c.logger.Warn("l2 cache delete failed", "error", err)
		}
	}
}

// Clear drops all L1 entries. The shared tier is left to TTL expiry.
func (c *DualCache) Clear(ctx context.Context) {
	_ = c.local.Clear(ctx) //nolint:errcheck
}

// PingLocal reports L1 health (always healthy in-process).
func (c *DualCache) PingLocal(ctx context.Context) error { return c.local.Ping(ctx) }

// PingShared reports L2 health; nil receiver semantics cover the
// disabled case.
func (c *DualCache) PingShared(ctx context.Context) error {
	if c.shared == nil {
		return nil
	}
	return c.shared.Ping(ctx)
}

// SharedEnabled reports whether an L2 tier is configured.
func (c *DualCache) SharedEnabled() bool { return c.shared != nil }

// Close closes both tiers.
func (c *DualCache) Close() error {
	_ = c.local.Close() //nolint:errcheck
	if c.shared != nil {
		return c.shared.Close()
	}
	return nil
}

// DualStats aggregates both tiers for the metrics endpoint.
type DualStats struct {
	Local       Stats `json:"local"`
	Shared      Stats `json:"shared,omitempty"`
	L2Faults    int64 `json:"l2_faults"`
	StaleServes int64 `json:"stale_serves"`
}

// Stats returns the combined statistics snapshot.
func (c *DualCache) Stats() DualStats {
	stats := DualStats{
		Local:       c.local.Stats(),
		L2Faults:    c.l2Faults.Load(),
		StaleServes: c.staleServes.Load(),
	}
	if c.shared != nil {
		stats.Shared = c.shared.Stats()
	}
	return stats
}

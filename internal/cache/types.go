// Package cache provides the two-level response cache: an in-process
// LRU (L1) in front of an optional shared Redis tier (L2). All
// operations are best-effort; a cache fault never fails a request.
package cache

import (
	"context"
	"time"
)

// Tier identifies which cache tier served a read.
type Tier string

const (
	TierNone Tier = ""
	TierL1   Tier = "l1"
	TierL2   Tier = "l2"
)

// Store is the interface shared by the L1 and L2 tiers. Values are
// opaque serialized responses.
type Store interface {
	// Get returns nil, nil when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL; zero TTL uses the default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Absent keys are not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries the tier is willing to drop.
	Clear(ctx context.Context) error

	// Ping reports tier health.
	Ping(ctx context.Context) error

	// Close releases tier resources.
	Close() error

	// Stats returns tier statistics.
	Stats() Stats
}

// Stats holds per-tier statistics for the metrics endpoint. Stale
// serves are a cross-tier concern and live on DualStats.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Errors  int64   `json:"errors"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// RedisCache is the optional L2 shared tier. All operations run behind
// a circuit breaker: when Redis misbehaves the breaker opens and reads
// degrade to miss without waiting out per-request timeouts.
type RedisCache struct {
	client     *redis.Client
	breaker    *gobreaker.CircuitBreaker
	defaultTTL time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	faults atomic.Int64
}

// RedisConfig holds L2 configuration.
type RedisConfig struct {
	Endpoint    string
	Password    string
	DB          int
	DefaultTTL  time.Duration // default entry TTL (default: 1 hour)
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

const defaultRedisTTL = time.Hour

// NewRedisCache connects the L2 tier. The connection is lazy; the first
// failing operation trips the breaker, not the constructor.
func NewRedisCache(cfg RedisConfig) *RedisCache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultRedisTTL
	}
	opts := &redis.Options{
		Addr:     cfg.Endpoint,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.OpTimeout > 0 {
		opts.ReadTimeout = cfg.OpTimeout
		opts.WriteTimeout = cfg.OpTimeout
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "cache-l2",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &RedisCache{
		client:     redis.NewClient(opts),
		breaker:    breaker,
		defaultTTL: cfg.DefaultTTL,
	}
}

// Get returns nil, nil on a clean miss and an error on tier failure.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		val, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return val, err
	})
	if err != nil {
		c.faults.Add(1)
		return nil, err
	}
	if result == nil {
		c.misses.Add(1)
		return nil, nil
	}
	val, _ := result.([]byte)
	if val == nil {
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	return val, nil
}

// Set stores a value with second-granularity TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	// Redis expiry is second-granular; keep sub-second TTLs alive for one second.
	if ttl < time.Second {
		ttl = time.Second
	}
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.client.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		c.faults.Add(1)
		return err
	}
	c.sets.Add(1)
	return nil
}

// Delete removes a key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.client.Del(ctx, key).Err()
	})
	if err != nil {
		c.faults.Add(1)
	}
	return err
}

// Clear is a no-op on the shared tier: flushing a shared Redis would
// drop other processes' entries. Entries age out by TTL.
func (c *RedisCache) Clear(ctx context.Context) error { return nil }

// Ping checks tier health.
func (c *RedisCache) Ping(ctx context.Context) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.client.Ping(ctx).Err()
	})
	return err
}

// Close closes the client connection pool.
func (c *RedisCache) Close() error { return c.client.Close() }

// Stats returns L2 statistics. Entry count is not tracked for the
// shared tier.
func (c *RedisCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Errors:  c.faults.Load(),
		HitRate: hitRate(hits, misses),
	}
}

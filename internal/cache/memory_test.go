package cache

import (
	"context"
	"testing"
	"time"
)

func newTestMemory(t *testing.T, maxEntries int) *MemoryCache {
	t.Helper()
	c, err := NewMemoryCache(MemoryConfig{MaxEntries: maxEntries, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	return c
}

func TestMemoryCacheSetGet(t *testing.T) {
	ctx := context.Background()
	c := newTestMemory(t, 10)

	if err := c.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("got %q, want v1", got)
	}

	missing, err := c.Get(ctx, "absent")
	if err != nil || missing != nil {
		t.Errorf("miss should be (nil, nil), got (%v, %v)", missing, err)
	}
}

func TestMemoryCacheValueIsolation(t *testing.T) {
	ctx := context.Background()
	c := newTestMemory(t, 10)

	val := []byte("original")
	if err := c.Set(ctx, "k", val, time.Minute); err != nil {
		t.Fatal(err)
	}
	val[0] = 'X'

	got, _ := c.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("stored value aliased the caller's slice: %q", got)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := newTestMemory(t, 10)

	now := time.Now()
	c.clock = func() time.Time { return now }

	if err := c.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatal(err)
	}

	if _, expired, ok := c.GetStale("k"); !ok || expired {
		t.Errorf("GetStale on fresh entry: expired=%v ok=%v, want false true", expired, ok)
	}

	now = now.Add(2 * time.Second)
	if got, _ := c.Get(ctx, "k"); got != nil {
		t.Errorf("expired entry served fresh: %q", got)
	}

	stale, expired, ok := c.GetStale("k")
	if !ok || !expired || string(stale) != "v" {
		t.Errorf("GetStale = (%q, %v, %v), want (v, true, true)", stale, expired, ok)
	}
}

func TestMemoryCacheLRUEviction(t *testing.T) {
	ctx := context.Background()
	c := newTestMemory(t, 2)

	_ = c.Set(ctx, "a", []byte("1"), time.Minute)
	_ = c.Set(ctx, "b", []byte("2"), time.Minute)

	// Touch a so b is the eviction candidate.
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	_ = c.Set(ctx, "c", []byte("3"), time.Minute)

	if got, _ := c.Get(ctx, "a"); got == nil {
		t.Error("recently used entry was evicted")
	}
	if got, _ := c.Get(ctx, "b"); got != nil {
		t.Error("least recently used entry survived eviction")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestMemoryCacheStats(t *testing.T) {
	ctx := context.Background()
	c := newTestMemory(t, 10)

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "missing")

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", stats)
	}
	if stats.HitRate <= 0 || stats.HitRate >= 1 {
		t.Errorf("hit rate = %f, want between 0 and 1", stats.HitRate)
	}
}

package tenant

import (
	"sync"

	"github.com/searchmux/searchmux/pkg/types"
)

// RoutingLookup resolves the index layout for a tenant. Lookups never
// fail: implementations return the shared default for unknown tenants.
type RoutingLookup interface {
	Lookup(tenantID string) types.RoutingStrategy
}

// Router memoizes routing strategies for the process lifetime. The
// strategy cannot be overridden by the request.
type Router struct {
	lookup RoutingLookup

	mu   sync.RWMutex
	memo map[string]types.RoutingStrategy
}

// NewRouter wraps a lookup with per-process memoization.
func NewRouter(lookup RoutingLookup) *Router {
	return &Router{
		lookup: lookup,
		memo:   make(map[string]types.RoutingStrategy),
	}
}

// Routing returns the memoized strategy for a tenant, resolving it on
// first use.
func (r *Router) Routing(tenantID string) types.RoutingStrategy {
	r.mu.RLock()
	strategy, ok := r.memo[tenantID]
	r.mu.RUnlock()
	if ok {
		return strategy
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if strategy, ok = r.memo[tenantID]; ok {
		return strategy
	}
	strategy = r.lookup.Lookup(tenantID)
	r.memo[tenantID] = strategy
	return strategy
}

// Invalidate drops the memoized strategy for a tenant so the next
// request re-resolves it.
func (r *Router) Invalidate(tenantID string) {
	r.mu.Lock()
	delete(r.memo, tenantID)
	r.mu.Unlock()
}

// StaticLookup serves strategies from a configured table: tenants in
// the dedicated set get their own index, everyone else shares.
type StaticLookup struct {
	shared    types.RoutingStrategy
	dedicated map[string]types.RoutingStrategy
}

// StaticConfig configures the default lookup.
type StaticConfig struct {
	SharedIndex      string
	ShardCount       int
	ReplicaCount     int
	DedicatedTenants []DedicatedTenant
}

// DedicatedTenant is one per-tenant override in configuration.
type DedicatedTenant struct {
	TenantID     string
	IndexName    string
	ShardCount   int
	ReplicaCount int
}

// NewStaticLookup builds the config-backed lookup.
func NewStaticLookup(cfg StaticConfig) *StaticLookup {
	if cfg.SharedIndex == "" {
		cfg.SharedIndex = "search-shared"
	}
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = 3
	}
	if cfg.ReplicaCount <= 0 {
		cfg.ReplicaCount = 1
	}

	dedicated := make(map[string]types.RoutingStrategy, len(cfg.DedicatedTenants))
	for _, t := range cfg.DedicatedTenants {
		strategy := types.RoutingStrategy{
			IndexName:    t.IndexName,
			ShardCount:   t.ShardCount,
			ReplicaCount: t.ReplicaCount,
			Strategy:     types.StrategyDedicated,
		}
		if strategy.IndexName == "" {
			strategy.IndexName = "search-" + t.TenantID
		}
		if strategy.ShardCount <= 0 {
			strategy.ShardCount = cfg.ShardCount
		}
		if strategy.ReplicaCount <= 0 {
			strategy.ReplicaCount = cfg.ReplicaCount
		}
		dedicated[t.TenantID] = strategy
	}

	return &StaticLookup{
		shared: types.RoutingStrategy{
			IndexName:    cfg.SharedIndex,
			ShardCount:   cfg.ShardCount,
			ReplicaCount: cfg.ReplicaCount,
			Strategy:     types.StrategyShared,
		},
		dedicated: dedicated,
	}
}

// Lookup returns the tenant's strategy, falling back to the shared
// default.
func (l *StaticLookup) Lookup(tenantID string) types.RoutingStrategy {
	if strategy, ok := l.dedicated[tenantID]; ok {
		return strategy
	}
	return l.shared
}

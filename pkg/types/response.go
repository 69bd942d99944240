package types //nolint:revive // package name is intentional

import "github.com/goccy/go-json"

// Response is the uniform gateway response. Engine adapters produce it;
// the handler decorates Performance and Debug before writing.
type Response struct {
	Hits        []Hit                  `json:"hits"`
	Total       Total                  `json:"total"`
	Page        PageInfo               `json:"page"`
	Facets      map[string]FacetResult `json:"facets,omitempty"`
	Suggestions []Suggestion           `json:"suggestions,omitempty"`
	Performance Performance            `json:"performance"`
	Debug       *DebugInfo             `json:"debug,omitempty"`
	Error       *ErrorInfo             `json:"error,omitempty"`
}

// Hit is a single matched document.
type Hit struct {
	ID        string              `json:"id"`
	Source    json.RawMessage     `json:"source,omitempty"`
	Score     *float64            `json:"score,omitempty"`
	Highlight map[string][]string `json:"highlight,omitempty"`
}

// Total reports the matched document count. Relation is "eq" for an
// exact count and "gte" when the count is a lower bound (partial or
// truncated results).
type Total struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation"`
}

// Relation values for Total.
const (
	RelationEQ  = "eq"
	RelationGTE = "gte"
)

// PageInfo echoes the served window and the next-page cursor.
type PageInfo struct {
	Size    int    `json:"size"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// FacetResult holds the buckets for one facet field.
type FacetResult struct {
	Buckets []FacetBucket `json:"buckets"`
}

// FacetBucket is a single facet value with its document count.
type FacetBucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Suggestion is a typeahead completion from the simple engine.
type Suggestion struct {
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Context string  `json:"context,omitempty"`
}

// Performance carries per-request observability metadata.
type Performance struct {
	TookMS  int64  `json:"took_ms"`
	Engine  string `json:"engine"`
	Cached  bool   `json:"cached"`
	Partial bool   `json:"partial"`
}

// Engine labels used in Performance.Engine.
const (
	EngineSimple   = "simple"
	EngineComplex  = "complex"
	EngineHybrid   = "hybrid"
	EngineFallback = "fallback"
	EngineError    = "error"
)

// DebugInfo is attached when debug output is enabled.
type DebugInfo struct {
	Classification *Classification `json:"query_classification,omitempty"`
	CacheKey       string          `json:"cache_key,omitempty"`
	TenantRouting  string          `json:"tenant_routing,omitempty"`
}

// ErrorInfo is embedded in error responses alongside the envelope.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QueryType is the classifier's routing decision.
type QueryType string

const (
	QuerySimple  QueryType = "simple"
	QueryComplex QueryType = "complex"
	QueryHybrid  QueryType = "hybrid"
)

// Classification is the classifier's verdict for one request. It is
// computed per request and never persisted.
type Classification struct {
	Type               QueryType `json:"type"`
	ComplexityScore    float64   `json:"complexity_score"`
	Cacheable          bool      `json:"cacheable"`
	EstimatedLatencyMS int64     `json:"estimated_latency_ms"`
	Reason             string    `json:"reason"`
}

// RoutingStrategy is the per-tenant index layout, memoized for the
// process lifetime.
type RoutingStrategy struct {
	IndexName    string `json:"index_name"`
	ShardCount   int    `json:"shard_count"`
	ReplicaCount int    `json:"replica_count"`
	Strategy     string `json:"strategy"` // "shared" or "dedicated"
}

// Routing strategy kinds.
const (
	StrategyShared    = "shared"
	StrategyDedicated = "dedicated"
)

// Explain is the /explain response: what /search would do, without
// touching engines or cache.
type Explain struct {
	Classification Classification `json:"classification"`
	Routing        ExplainRouting `json:"routing"`
	EstimatedCost  ExplainCost    `json:"estimated_cost"`
	CacheStrategy  ExplainCache   `json:"cache_strategy"`
}

// ExplainRouting describes the engine and index the request would use.
type ExplainRouting struct {
	Engine string `json:"engine"`
	Index  string `json:"index"`
	Reason string `json:"reason"`
}

// ExplainCost is the advisory cost estimate.
type ExplainCost struct {
	ComplexityScore   float64 `json:"complexity_score"`
	ExpectedLatencyMS int64   `json:"expected_latency_ms"`
}

// ExplainCache describes the cache plan for the request.
type ExplainCache struct {
	Cacheable  bool   `json:"cacheable"`
	Key        string `json:"key"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

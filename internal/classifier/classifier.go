// Package classifier maps a search request to a dispatch plan: simple,
// complex, or hybrid, with a cacheability flag and an advisory latency
// estimate. Classification is a pure function of request shape.
package classifier

import (
	"fmt"
	"strings"

	"github.com/searchmux/searchmux/pkg/types"
)

// Config holds the classifier thresholds. All values are configuration,
// not contract.
type Config struct {
	SimpleThreshold  float64 // score at or below which a filter-only request is simple
	ComplexThreshold float64 // score at or above which a request is complex
	LongQueryChars   int     // free-text length that forces complex and blocks caching
	LargePageSize    int     // page size that forces complex and blocks caching

	// Base latency estimates in milliseconds by query type.
	SimpleBaseMS  int64
	HybridBaseMS  int64
	ComplexBaseMS int64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		SimpleThreshold:  2.0,
		ComplexThreshold: 6.0,
		LongQueryChars:   256,
		LargePageSize:    100,
		SimpleBaseMS:     50,
		HybridBaseMS:     150,
		ComplexBaseMS:    200,
	}
}

// Classifier scores requests against configured thresholds.
type Classifier struct {
	cfg Config
}

// New creates a classifier, filling zero thresholds from defaults.
func New(cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.SimpleThreshold <= 0 {
		cfg.SimpleThreshold = def.SimpleThreshold
	}
	if cfg.ComplexThreshold <= 0 {
		cfg.ComplexThreshold = def.ComplexThreshold
	}
	if cfg.LongQueryChars <= 0 {
		cfg.LongQueryChars = def.LongQueryChars
	}
	if cfg.LargePageSize <= 0 {
		cfg.LargePageSize = def.LargePageSize
	}
	if cfg.SimpleBaseMS <= 0 {
		cfg.SimpleBaseMS = def.SimpleBaseMS
	}
	if cfg.HybridBaseMS <= 0 {
		cfg.HybridBaseMS = def.HybridBaseMS
	}
	if cfg.ComplexBaseMS <= 0 {
		cfg.ComplexBaseMS = def.ComplexBaseMS
	}
	return &Classifier{cfg: cfg}
}

// Scoring weights. Word and filter contributions are capped so one
// pathological request cannot dominate the score.
const (
	scoreFreeText    = 1.0
	scorePerWord     = 0.3
	maxScoredWords   = 10
	scorePhrase      = 2.0
	scoreWildcard    = 1.5
	scoreFuzzy       = 1.5
	scorePerFilter   = 0.5
	maxScoredFilters = 5
	scoreRangeFilter = 0.5
	scoreArrayFilter = 0.3
	scorePerSort     = 0.4
	scoreTextSort    = 0.8
	scoreLargePage   = 1.0
	scoreHighlight   = 1.5
	scoreSuggest     = 1.0

	longQueryWords = 4 // multi-word queries at this length force complex
)

// Classify scores the request and applies the decision rules in order.
// Equal inputs always yield equal classifications.
func (c *Classifier) Classify(req *types.Request) types.Classification {
	score := c.score(req)
	qType, reason := c.decide(req, score)

	return types.Classification{
		Type:               qType,
		ComplexityScore:    score,
		Cacheable:          c.cacheable(req),
		EstimatedLatencyMS: c.estimateLatency(qType, score),
		Reason:             reason,
	}
}

func (c *Classifier) score(req *types.Request) float64 {
	var score float64

	if req.Query != "" {
		score += scoreFreeText
		words := len(strings.Fields(req.Query))
		if words > maxScoredWords {
			words = maxScoredWords
		}
		score += float64(words) * scorePerWord
		if hasPhrase(req.Query) {
			score += scorePhrase
		}
		if strings.ContainsAny(req.Query, "*?") {
			score += scoreWildcard
		}
		if strings.Contains(req.Query, "~") {
			score += scoreFuzzy
		}
	}

	filters := len(req.Filters)
	if filters > maxScoredFilters {
		filters = maxScoredFilters
	}
	score += float64(filters) * scorePerFilter
	for _, fv := range req.Filters {
		switch fv.Kind {
		case types.FilterRange:
			score += scoreRangeFilter
		case types.FilterArray:
			score += scoreArrayFilter
		}
	}

	for _, s := range req.Sort {
		score += scorePerSort
		if isTextField(s.Field) {
			score += scoreTextSort
		}
	}

	if req.Page.Size > c.cfg.LargePageSize {
		score += scoreLargePage
	}
	if req.Options.Highlight {
		score += scoreHighlight
	}
	if req.Options.Suggest {
		score += scoreSuggest
	}

	// One-decimal rounding keeps the score stable across platforms.
	return float64(int(score*10+0.5)) / 10
}

func (c *Classifier) decide(req *types.Request, score float64) (types.QueryType, string) {
	// Rule 1: trivially simple.
	if score <= c.cfg.SimpleThreshold && req.Query == "" && len(req.Filters) <= 2 &&
		!req.Options.Highlight && !req.Options.Suggest {
		return types.QuerySimple, "exact filters only"
	}

	// Rule 2: score alone forces complex.
	if score >= c.cfg.ComplexThreshold {
		return types.QueryComplex, fmt.Sprintf("complexity score %.1f", score)
	}

	// Rule 3: features only the complex engine implements.
	if feature := c.complexFeature(req); feature != "" {
		return types.QueryComplex, "requires " + feature
	}

	// Rule 4: ranked text pruned by exact filters.
	if req.Query != "" && len(req.Filters) > 0 {
		return types.QueryHybrid, "free text with structured filters"
	}

	// Rule 5: residual split at the midpoint.
	mid := (c.cfg.SimpleThreshold + c.cfg.ComplexThreshold) / 2
	if score < mid {
		return types.QuerySimple, fmt.Sprintf("residual score %.1f", score)
	}
	return types.QueryComplex, fmt.Sprintf("residual score %.1f", score)
}

func (c *Classifier) complexFeature(req *types.Request) string {
	switch {
	case req.Options.Highlight:
		return "highlighting"
	case req.Options.Suggest:
		return "suggestions"
	case hasPhrase(req.Query):
		return "phrase matching"
	case strings.Contains(req.Query, "~") && len(req.Query) > 3:
		return "fuzzy matching"
	case len(strings.Fields(req.Query)) >= longQueryWords:
		return "multi-word text scoring"
	case len(req.Query) > c.cfg.LongQueryChars:
		return "long free-text scoring"
	case hasNestedFilter(req.Filters):
		return "nested field filters"
	case req.Page.Size > c.cfg.LargePageSize:
		return "deep pagination"
	default:
		return ""
	}
}

func (c *Classifier) cacheable(req *types.Request) bool {
	if len(req.Query) > c.cfg.LongQueryChars {
		return false
	}
	if req.Page.Size > c.cfg.LargePageSize {
		return false
	}
	for field, fv := range req.Filters {
		if fv.Kind == types.FilterRange && strings.Contains(strings.ToLower(field), "date") {
			return false
		}
	}
	return true
}

func (c *Classifier) estimateLatency(qType types.QueryType, score float64) int64 {
	var base int64
	switch qType {
	case types.QuerySimple:
		base = c.cfg.SimpleBaseMS
	case types.QueryHybrid:
		base = c.cfg.HybridBaseMS
	default:
		base = c.cfg.ComplexBaseMS
	}
	return int64(float64(base) * (1 + score/20))
}

func hasPhrase(q string) bool {
	first := strings.IndexByte(q, '"')
	if first < 0 {
		return false
	}
	return strings.IndexByte(q[first+1:], '"') >= 0
}

func hasNestedFilter(filters map[string]types.FilterValue) bool {
	for field := range filters {
		if strings.Contains(field, ".") {
			return true
		}
	}
	return false
}

func isTextField(field string) bool {
	return !strings.HasPrefix(field, "numeric.") && !strings.HasPrefix(field, "dates.")
}

// Package dispatch executes a classified search plan under a wall-clock
// deadline: single-engine plans, the hybrid overfetch-and-intersect
// plan, and the fallback ladder when the deadline fires.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/searchmux/searchmux/internal/engine"
	"github.com/searchmux/searchmux/internal/metrics"
	"github.com/searchmux/searchmux/pkg/types"
)

// Deadline defaults. All are configuration.
const (
	DefaultTimeoutMS     = 700
	DefaultMinTimeoutMS  = 50
	DefaultMaxTimeoutMS  = 2000
	DefaultOverfetch     = 3
	DefaultFallbackMS    = 200
	DefaultFallbackLimit = 10
)

// Fallback path labels for metrics.
const (
	fallbackStaleCache = "stale-cache"
	fallbackDegraded   = "degraded"
	fallbackEmpty      = "empty"
)

// Config holds the dispatcher knobs.
type Config struct {
	DefaultTimeoutMS int
	MinTimeoutMS     int
	MaxTimeoutMS     int

	// HybridOverfetchFactor multiplies the page size of the complex
	// call in the hybrid plan.
	HybridOverfetchFactor int
	// HybridFilterFields are the indexed fields whose exact-match
	// filters enable the simple-engine pruning leg.
	HybridFilterFields []string

	// FallbackTimeoutMS bounds the degraded plan.
	FallbackTimeoutMS int
	// FallbackPageSize caps the degraded plan's result count.
	FallbackPageSize int

	// CoalesceMisses shares one engine dispatch between concurrent
	// identical misses.
	CoalesceMisses bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeoutMS:      DefaultTimeoutMS,
		MinTimeoutMS:          DefaultMinTimeoutMS,
		MaxTimeoutMS:          DefaultMaxTimeoutMS,
		HybridOverfetchFactor: DefaultOverfetch,
		HybridFilterFields:    []string{"entity", "status", "category"},
		FallbackTimeoutMS:     DefaultFallbackMS,
		FallbackPageSize:      DefaultFallbackLimit,
		CoalesceMisses:        true,
	}
}

// StaleReader serves expired local cache entries for the first rung of
// the fallback ladder.
type StaleReader interface {
	GetStaleLocal(key string) ([]byte, bool)
}

// Input is one fully resolved dispatch: authorized request, routing
// index, fingerprint, and classification.
type Input struct {
	Tenant         string
	Fingerprint    string
	Index          string
	Request        *types.Request
	ACL            map[string]types.FilterValue
	Classification types.Classification
}

// Dispatcher owns the concurrency and timeout discipline of engine
// execution.
type Dispatcher struct {
	simple   engine.Engine
	fulltext engine.Engine
	stale    StaleReader
	logger   *slog.Logger
	cfg      Config

	hybridFields map[string]struct{}
	group        singleflight.Group
}

// New creates a dispatcher. stale may be nil when no cache is wired.
func New(simple, fulltext engine.Engine, stale StaleReader, logger *slog.Logger, cfg Config) *Dispatcher {
	def := DefaultConfig()
	if cfg.DefaultTimeoutMS <= 0 {
		cfg.DefaultTimeoutMS = def.DefaultTimeoutMS
	}
	if cfg.MinTimeoutMS <= 0 {
		cfg.MinTimeoutMS = def.MinTimeoutMS
	}
	if cfg.MaxTimeoutMS <= 0 {
		cfg.MaxTimeoutMS = def.MaxTimeoutMS
	}
	if cfg.HybridOverfetchFactor <= 0 {
		cfg.HybridOverfetchFactor = def.HybridOverfetchFactor
	}
	if cfg.HybridFilterFields == nil {
		cfg.HybridFilterFields = def.HybridFilterFields
	}
	if cfg.FallbackTimeoutMS <= 0 {
		cfg.FallbackTimeoutMS = def.FallbackTimeoutMS
	}
	if cfg.FallbackPageSize <= 0 {
		cfg.FallbackPageSize = def.FallbackPageSize
	}

	fields := make(map[string]struct{}, len(cfg.HybridFilterFields))
	for _, f := range cfg.HybridFilterFields {
		fields[f] = struct{}{}
	}
	return &Dispatcher{
		simple:       simple,
		fulltext:     fulltext,
		stale:        stale,
		logger:       logger,
		cfg:          cfg,
		hybridFields: fields,
	}
}

// Timeout resolves the effective deadline for a request: the caller's
// timeout_ms when present, clamped to the configured range.
func (d *Dispatcher) Timeout(req *types.Request) time.Duration {
	ms := req.Options.TimeoutMS
	if ms == 0 {
		ms = d.cfg.DefaultTimeoutMS
	}
	if ms < d.cfg.MinTimeoutMS {
		ms = d.cfg.MinTimeoutMS
	}
	if ms > d.cfg.MaxTimeoutMS {
		ms = d.cfg.MaxTimeoutMS
	}
	return time.Duration(ms) * time.Millisecond
}

// Dispatch executes the plan for in. A fired deadline always produces a
// fallback result, never an error; non-timeout engine failures
// propagate to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) (*types.Response, error) {
	timeout := d.Timeout(in.Request)
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if d.cfg.CoalesceMisses && in.Fingerprint != "" && in.Classification.Cacheable {
		return d.dispatchCoalesced(ctx, dctx, in, timeout)
	}

	resp, err := d.execute(dctx, in)
	if err != nil {
		if isTimeout(err) {
			return d.fallback(ctx, in), nil
		}
		return nil, err
	}
	return resp, nil
}

// dispatchCoalesced lets concurrent identical misses share one leader
// dispatch. The leader detaches from any single waiter's cancellation
// and runs under its own full deadline; every waiter still observes its
// own deadline and falls back independently when it fires first.
func (d *Dispatcher) dispatchCoalesced(ctx, dctx context.Context, in Input, timeout time.Duration) (*types.Response, error) {
	ch := d.group.DoChan(in.Fingerprint, func() (any, error) {
		lctx, lcancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer lcancel()
		return d.execute(lctx, in)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.CoalescedMisses.Inc()
		}
		if res.Err != nil {
			if isTimeout(res.Err) {
				return d.fallback(ctx, in), nil
			}
			return nil, res.Err
		}
		// Waiters get their own copy so response decoration never
		// races between sharers.
		resp := *(res.Val.(*types.Response))
		return &resp, nil
	case <-dctx.Done():
		return d.fallback(ctx, in), nil
	}
}

func (d *Dispatcher) execute(ctx context.Context, in Input) (*types.Response, error) {
	q := engine.Query{Index: in.Index, Tenant: in.Tenant, Request: in.Request, ACL: in.ACL}

	switch in.Classification.Type {
	case types.QuerySimple:
		return d.simple.Search(ctx, q)
	case types.QueryHybrid:
		return d.hybrid(ctx, in)
	default:
		return d.fulltext.Search(ctx, q)
	}
}

// hybrid runs the complex engine with an inflated page size for
// ranking, prunes its ids through the simple engine when an exact
// filter on an indexed field is present, and truncates the intersection
// to the requested window.
func (d *Dispatcher) hybrid(ctx context.Context, in Input) (*types.Response, error) {
	size := in.Request.Page.Size
	overfetch := size * d.cfg.HybridOverfetchFactor
	if overfetch > types.MaxPageSize {
		overfetch = types.MaxPageSize
	}

	complexReq := in.Request.Clone()
	complexReq.Page.Size = overfetch

	complexResp, err := d.fulltext.Search(ctx, engine.Query{
		Index: in.Index, Tenant: in.Tenant, Request: complexReq, ACL: in.ACL,
	})
	if err != nil {
		return nil, err
	}

	hits := complexResp.Hits
	pruned := false
	if d.hasIndexedExactFilter(in.Request.Filters) && len(hits) > 0 {
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.ID
		}
		// The prune leg checks exact filters only. Free text and the
		// cursor belong to the ranked leg.
		pruneReq := in.Request.Clone()
		pruneReq.Query = ""
		pruneReq.Page.Cursor = ""
		simpleResp, err := d.simple.FilterByIDs(ctx, engine.Query{
			Index: in.Index, Tenant: in.Tenant, Request: pruneReq, ACL: in.ACL,
		}, ids)
		if err != nil {
			return nil, err
		}
		hits = intersect(hits, simpleResp.Hits)
		pruned = true
	}

	total := types.Total{Value: int64(len(hits)), Relation: types.RelationEQ}
	truncated := len(hits) > size
	if truncated {
		hits = hits[:size]
	}
	// The overfetch window is a lower bound whenever the complex
	// result itself was bounded or the intersection overflowed it.
	if truncated || complexResp.Page.HasMore || complexResp.Total.Relation == types.RelationGTE {
		total.Relation = types.RelationGTE
	}
	if !pruned {
		total = complexResp.Total
		if truncated {
			total.Relation = types.RelationGTE
		}
	}

	page := types.PageInfo{Size: size, HasMore: truncated || complexResp.Page.HasMore}
	if page.HasMore {
		page.Cursor = complexResp.Page.Cursor
	}

	return &types.Response{
		Hits:        hits,
		Total:       total,
		Page:        page,
		Facets:      complexResp.Facets,
		Suggestions: complexResp.Suggestions,
		Performance: types.Performance{Engine: types.EngineHybrid},
	}, nil
}

// fallback walks the degradation ladder after a fired deadline: a
// usable cached value, then a degraded simple plan, then the empty
// form. It never returns an error.
func (d *Dispatcher) fallback(ctx context.Context, in Input) *types.Response {
	log := d.logger.With(
		slog.String("tenant", in.Tenant),
		slog.String("fingerprint", in.Fingerprint),
		slog.String("classification", string(in.Classification.Type)),
	)

	if d.stale != nil && in.Fingerprint != "" {
		if data, ok := d.stale.GetStaleLocal(in.Fingerprint); ok {
			var resp types.Response
			if err := json.Unmarshal(data, &resp); err == nil {
				resp.Performance.Engine = types.EngineFallback
				resp.Performance.Cached = true
				resp.Performance.Partial = true
				resp.Total.Relation = types.RelationGTE
				metrics.FallbacksTotal.WithLabelValues(fallbackStaleCache).Inc()
				log.Warn("deadline exceeded, serving stale cached result")
				return &resp
			}
		}
	}

	fctx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx),
		time.Duration(d.cfg.FallbackTimeoutMS)*time.Millisecond,
	)
	defer cancel()

	degraded := in.Request.Clone()
	degraded.Query = ""
	degraded.Page.Cursor = ""
	if degraded.Page.Size > d.cfg.FallbackPageSize {
		degraded.Page.Size = d.cfg.FallbackPageSize
	}

	resp, err := d.simple.Search(fctx, engine.Query{
		Index: in.Index, Tenant: in.Tenant, Request: degraded, ACL: in.ACL,
	})
	if err == nil {
		resp.Performance.Engine = types.EngineFallback
		resp.Performance.Partial = true
		resp.Total.Relation = types.RelationGTE
		metrics.FallbacksTotal.WithLabelValues(fallbackDegraded).Inc()
		log.Warn("deadline exceeded, served degraded plan")
		return resp
	}

	metrics.FallbacksTotal.WithLabelValues(fallbackEmpty).Inc()
	log.Warn("deadline exceeded, returning empty fallback", slog.String("error", err.Error()))
	return &types.Response{
		Hits:  []types.Hit{},
		Total: types.Total{Value: 0, Relation: types.RelationGTE},
		Page:  types.PageInfo{Size: in.Request.Page.Size},
		Performance: types.Performance{
			Engine:  types.EngineFallback,
			Partial: true,
		},
	}
}

func (d *Dispatcher) hasIndexedExactFilter(filters map[string]types.FilterValue) bool {
	for field, fv := range filters {
		if _, ok := d.hybridFields[field]; ok && fv.IsExactMatch() {
			return true
		}
	}
	return false
}

// intersect keeps the complex hits whose ids survived the simple prune,
// preserving the complex engine's order.
func intersect(ranked, surviving []types.Hit) []types.Hit {
	keep := make(map[string]struct{}, len(surviving))
	for _, h := range surviving {
		keep[h.ID] = struct{}{}
	}
	out := make([]types.Hit, 0, len(surviving))
	for _, h := range ranked {
		if _, ok := keep[h.ID]; ok {
			out = append(out, h)
		}
	}
	return out
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

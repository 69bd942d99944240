// Package api implements the gateway's HTTP surface: the search,
// suggest, and explain pipelines plus the health, readiness, and
// metrics endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/searchmux/searchmux/internal/cache"
	"github.com/searchmux/searchmux/internal/classifier"
	"github.com/searchmux/searchmux/internal/dispatch"
	"github.com/searchmux/searchmux/internal/engine"
	"github.com/searchmux/searchmux/internal/fingerprint"
	"github.com/searchmux/searchmux/internal/healthcheck"
	"github.com/searchmux/searchmux/internal/httputil"
	"github.com/searchmux/searchmux/internal/metrics"
	"github.com/searchmux/searchmux/internal/observability"
	"github.com/searchmux/searchmux/internal/tenant"
	"github.com/searchmux/searchmux/pkg/types"
)

// Endpoint labels for metrics.
const (
	endpointSearch  = "search"
	endpointSuggest = "suggest"
	endpointExplain = "explain"
)

// Handler serves the request pipeline. The cache may be nil, in which
// case every request dispatches.
type Handler struct {
	logger     *slog.Logger
	resolver   *tenant.Resolver
	router     *tenant.Router
	classifier *classifier.Classifier
	dispatcher *dispatch.Dispatcher
	suggester  engine.Engine
	cache      *cache.DualCache
	ttl        cache.TTLPolicy
	prober     *healthcheck.Prober
	tracer     trace.Tracer
	maxBody    int64
}

// HandlerConfig wires the pipeline dependencies.
type HandlerConfig struct {
	Logger     *slog.Logger
	Resolver   *tenant.Resolver
	Router     *tenant.Router
	Classifier *classifier.Classifier
	Dispatcher *dispatch.Dispatcher
	Suggester  engine.Engine
	Cache      *cache.DualCache
	TTL        cache.TTLPolicy
	Prober     *healthcheck.Prober
	Tracer     trace.Tracer
	MaxBody    int64
}

// NewHandler creates the pipeline handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = httputil.DefaultMaxRequestBodyBytes
	}
	return &Handler{
		logger:     cfg.Logger,
		resolver:   cfg.Resolver,
		router:     cfg.Router,
		classifier: cfg.Classifier,
		dispatcher: cfg.Dispatcher,
		suggester:  cfg.Suggester,
		cache:      cfg.Cache,
		ttl:        cfg.TTL,
		prober:     cfg.Prober,
		tracer:     cfg.Tracer,
		maxBody:    cfg.MaxBody,
	}
}

// authorized is the resolved identity shared by all three pipelines.
type authorized struct {
	tenantID string
	acl      map[string]types.FilterValue
	routing  types.RoutingStrategy
}

// authorize runs the transport-level steps every endpoint shares:
// tenant resolution, claim parsing, ACL derivation, routing lookup.
func (h *Handler) authorize(r *http.Request) (*authorized, error) {
	tenantID, err := h.resolver.Resolve(r)
	if err != nil {
		return nil, err
	}
	claims, err := h.resolver.ParseClaims(r)
	if err != nil {
		return nil, err
	}
	return &authorized{
		tenantID: tenantID,
		acl:      h.resolver.Authorize(tenantID, claims),
		routing:  h.router.Routing(tenantID),
	}, nil
}

// HandleSearch is POST /search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "gateway.search")
	defer span.End()

	auth, err := h.authorize(r)
	if err != nil {
		h.writeError(ctx, w, endpointSearch, "", err)
		return
	}

	req, err := h.decodeSearchBody(r)
	if err != nil {
		h.writeError(ctx, w, endpointSearch, auth.tenantID, err)
		return
	}
	clamped := req.Normalize()

	span.SetAttributes(attribute.String("tenant.id", auth.tenantID))

	wantDebug := debugRequested(r)
	key := fingerprint.Search(auth.tenantID, req, auth.acl)

	if resp, tier := h.cacheGet(ctx, key); resp != nil {
		resp.Performance.Cached = true
		resp.Performance.TookMS = time.Since(start).Milliseconds()
		h.finishSearch(ctx, w, auth, req, resp, key, nil, wantDebug, clamped)
		h.observe(endpointSearch, auth.tenantID, string(classificationOf(resp)), http.StatusOK, start)
		h.requestLog(ctx, endpointSearch, auth.tenantID, key, string(classificationOf(resp)), start).
			Debug("cache hit", "tier", string(tier))
		return
	}

	class := h.classifier.Classify(req)
	span.SetAttributes(attribute.String("query.classification", string(class.Type)))

	resp, err := h.dispatcher.Dispatch(ctx, dispatch.Input{
		Tenant:         auth.tenantID,
		Fingerprint:    key,
		Index:          auth.routing.IndexName,
		Request:        req,
		ACL:            auth.acl,
		Classification: class,
	})
	if err != nil {
		h.writeError(ctx, w, endpointSearch, auth.tenantID, err)
		metrics.RequestLatency.WithLabelValues(endpointSearch, string(class.Type)).Observe(time.Since(start).Seconds())
		return
	}

	resp.Performance.TookMS = time.Since(start).Milliseconds()
	if class.Cacheable && !resp.Performance.Partial {
		h.cacheSet(ctx, key, resp, h.ttl.For(class, len(resp.Hits)))
	}

	h.finishSearch(ctx, w, auth, req, resp, key, &class, wantDebug, clamped)
	h.observe(endpointSearch, auth.tenantID, string(class.Type), http.StatusOK, start)
	h.requestLog(ctx, endpointSearch, auth.tenantID, key, string(class.Type), start).
		Info("search dispatched",
			"engine", resp.Performance.Engine,
			"partial", resp.Performance.Partial,
			"hits", len(resp.Hits),
		)
}

// finishSearch applies the clamp relation rule, attaches debug
// metadata, and writes the body.
func (h *Handler) finishSearch(ctx context.Context, w http.ResponseWriter, auth *authorized,
	req *types.Request, resp *types.Response, key string, class *types.Classification,
	wantDebug, clamped bool,
) {
	if clamped {
		resp.Total.Relation = types.RelationGTE
	}
	if wantDebug {
		debug := &types.DebugInfo{
			CacheKey:      key,
			TenantRouting: auth.routing.Strategy + ":" + auth.routing.IndexName,
		}
		if class != nil {
			debug.Classification = class
		} else {
			c := h.classifier.Classify(req)
			debug.Classification = &c
		}
		resp.Debug = debug
	}
	writeJSON(ctx, w, h.logger, http.StatusOK, resp)
}

// HandleSuggest is POST /suggest. Typeahead always routes to the simple
// engine and caches under a fixed TTL.
func (h *Handler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "gateway.suggest")
	defer span.End()

	auth, err := h.authorize(r)
	if err != nil {
		h.writeError(ctx, w, endpointSuggest, "", err)
		return
	}

	var req types.SuggestRequest
	if err := httputil.DecodeJSONBody(r.Body, h.maxBody, &req); err != nil {
		h.writeError(ctx, w, endpointSuggest, auth.tenantID, gwBadRequest(err))
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(ctx, w, endpointSuggest, auth.tenantID, gwBadRequest(err))
		return
	}

	key := fingerprint.Suggest(auth.tenantID, &req)
	if resp, _ := h.cacheGet(ctx, key); resp != nil {
		resp.Performance.Cached = true
		resp.Performance.TookMS = time.Since(start).Milliseconds()
		writeJSON(ctx, w, h.logger, http.StatusOK, resp)
		h.observe(endpointSuggest, auth.tenantID, "suggest", http.StatusOK, start)
		return
	}

	sctx, cancel := context.WithTimeout(ctx, h.dispatcher.Timeout(&types.Request{}))
	defer cancel()

	resp, err := h.suggester.Suggest(sctx, engine.SuggestQuery{
		Index:   auth.routing.IndexName,
		Tenant:  auth.tenantID,
		Request: &req,
		ACL:     auth.acl,
	})
	if err != nil {
		h.writeError(ctx, w, endpointSuggest, auth.tenantID, err)
		return
	}

	resp.Performance.TookMS = time.Since(start).Milliseconds()
	h.cacheSet(ctx, key, resp, h.ttl.SuggestTTL)

	writeJSON(ctx, w, h.logger, http.StatusOK, resp)
	h.observe(endpointSuggest, auth.tenantID, "suggest", http.StatusOK, start)
}

// HandleExplain is POST /explain: the dry-run pipeline. It classifies
// and plans but never touches an engine or the cache.
func (h *Handler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "gateway.explain")
	defer span.End()

	auth, err := h.authorize(r)
	if err != nil {
		h.writeError(ctx, w, endpointExplain, "", err)
		return
	}

	req, err := h.decodeSearchBody(r)
	if err != nil {
		h.writeError(ctx, w, endpointExplain, auth.tenantID, err)
		return
	}
	req.Normalize()

	class := h.classifier.Classify(req)
	key := fingerprint.Search(auth.tenantID, req, auth.acl)

	ttl := int64(0)
	if class.Cacheable {
		ttl = int64(h.ttl.For(class, types.DefaultPageSize).Seconds())
	}

	explain := types.Explain{
		Classification: class,
		Routing: types.ExplainRouting{
			Engine: string(class.Type),
			Index:  auth.routing.IndexName,
			Reason: class.Reason,
		},
		EstimatedCost: types.ExplainCost{
			ComplexityScore:   class.ComplexityScore,
			ExpectedLatencyMS: class.EstimatedLatencyMS,
		},
		CacheStrategy: types.ExplainCache{
			Cacheable:  class.Cacheable,
			Key:        key,
			TTLSeconds: ttl,
		},
	}

	writeJSON(ctx, w, h.logger, http.StatusOK, explain)
	h.observe(endpointExplain, auth.tenantID, string(class.Type), http.StatusOK, start)
}

// HandleHealth is GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.prober.Report()
	status := http.StatusOK
	if report.Status == healthcheck.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(r.Context(), w, h.logger, status, report)
}

// HandleReady is GET /ready.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.prober.Ready() {
		writeJSON(r.Context(), w, h.logger, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(r.Context(), w, h.logger, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}

// HandleCacheStats is GET /cache/stats, an operator view of both tiers.
func (h *Handler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(r.Context(), w, h.logger, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	writeJSON(r.Context(), w, h.logger, http.StatusOK, h.cache.Stats())
}

func (h *Handler) decodeSearchBody(r *http.Request) (*types.Request, error) {
	var req types.Request
	if err := httputil.DecodeJSONBody(r.Body, h.maxBody, &req); err != nil {
		return nil, gwBadRequest(err)
	}
	if err := req.Validate(); err != nil {
		return nil, gwBadRequest(err)
	}
	return &req, nil
}

func (h *Handler) cacheGet(ctx context.Context, key string) (*types.Response, cache.Tier) {
	if h.cache == nil || key == "" {
		return nil, cache.TierNone
	}
	data, tier := h.cache.Get(ctx, key)
	if data == nil {
		return nil, cache.TierNone
	}
	var resp types.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		h.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		h.cache.Delete(ctx, key)
		return nil, cache.TierNone
	}
	return &resp, tier
}

func (h *Handler) cacheSet(ctx context.Context, key string, resp *types.Response, ttl time.Duration) {
	if h.cache == nil || key == "" || ttl <= 0 {
		return
	}
	// Stored entries carry no per-request decoration.
	stored := *resp
	stored.Performance = types.Performance{Engine: resp.Performance.Engine}
	stored.Debug = nil

	data, err := json.Marshal(&stored)
	if err != nil {
		h.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	h.cache.Set(ctx, key, data, ttl)
}

func (h *Handler) observe(endpoint, tenantID, classification string, status int, start time.Time) {
	metrics.RequestsTotal.WithLabelValues(endpoint, tenantID, classification, httpStatusLabel(status)).Inc()
	metrics.RequestLatency.WithLabelValues(endpoint, classification).Observe(time.Since(start).Seconds())
}

func (h *Handler) requestLog(ctx context.Context, endpoint, tenantID, fingerprint, classification string, start time.Time) *slog.Logger {
	return observability.RequestLogger(ctx, h.logger).With(
		"endpoint", endpoint,
		"tenant", tenantID,
		"fingerprint", fingerprint,
		"classification", classification,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

func classificationOf(resp *types.Response) types.QueryType {
	switch resp.Performance.Engine {
	case types.EngineSimple:
		return types.QuerySimple
	case types.EngineHybrid:
		return types.QueryHybrid
	default:
		return types.QueryComplex
	}
}

func debugRequested(r *http.Request) bool {
	return r.URL.Query().Get("debug") == "true"
}

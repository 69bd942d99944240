// Package complex adapts the full-text engine: relevance-ranked text
// queries, range and term filters, highlighting, and facet
// aggregations. It is the only adapter that understands free text
// beyond prefix matching.
package complex

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/searchmux/searchmux/internal/engine"
	gwerrors "github.com/searchmux/searchmux/pkg/errors"
	"github.com/searchmux/searchmux/pkg/types"
)

// EngineName identifies this adapter.
const EngineName = "complex"

// Default text fields for cross-field matching, with per-field boosts.
var defaultSearchFields = []string{"title^3", "customer_name^2", "keywords^2", "body"}

// Highlighted fields when the request asks for highlighting.
var highlightFields = []string{"title", "body"}

// Adapter translates unified requests into the full-text engine's
// query DSL.
type Adapter struct {
	client       *engine.Client
	searchFields []string
	facetFields  []string
}

// Config configures the adapter.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration

	// SearchFields overrides the default cross-field match targets.
	SearchFields []string
	// FacetFields lists the fields aggregated into response facets.
	// Fields under the dates. prefix become date histograms; fields
	// under numeric. become fixed-bucket ranges.
	FacetFields []string
}

// New creates the adapter.
func New(cfg Config) *Adapter {
	fields := cfg.SearchFields
	if len(fields) == 0 {
		fields = defaultSearchFields
	}
	return &Adapter{
		client: engine.NewClient(engine.ClientConfig{
			Engine:        EngineName,
			BaseURL:       cfg.BaseURL,
			APIKey:        cfg.APIKey,
			Timeout:       cfg.Timeout,
			MaxRetries:    cfg.MaxRetries,
			RetryInterval: cfg.RetryInterval,
		}),
		searchFields: fields,
		facetFields:  cfg.FacetFields,
	}
}

// Name implements engine.Engine.
func (a *Adapter) Name() string { return EngineName }

// ftsQuery is the engine's native search body. Clause values are built
// as nested maps because the DSL is open-ended.
type ftsQuery struct {
	Query     map[string]any   `json:"query"`
	From      int              `json:"from"`
	Size      int              `json:"size"`
	Sort      []map[string]any `json:"sort,omitempty"`
	Source    []string         `json:"_source,omitempty"`
	Highlight map[string]any   `json:"highlight,omitempty"`
	Aggs      map[string]any   `json:"aggs,omitempty"`
	Suggest   map[string]any   `json:"suggest,omitempty"`
}

type ftsResponse struct {
	Hits struct {
		Total types.Total `json:"total"`
		Hits  []ftsHit    `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]ftsAggregation    `json:"aggregations,omitempty"`
	Suggest      map[string][]ftsSuggestEntry `json:"suggest,omitempty"`
}

type ftsHit struct {
	ID        string              `json:"_id"`
	Source    json.RawMessage     `json:"_source"`
	Score     *float64            `json:"_score"`
	Highlight map[string][]string `json:"highlight,omitempty"`
}

type ftsAggregation struct {
	Buckets []ftsBucket `json:"buckets"`
}

type ftsBucket struct {
	Key         any    `json:"key"`
	KeyAsString string `json:"key_as_string,omitempty"`
	DocCount    int64  `json:"doc_count"`
}

type ftsSuggestEntry struct {
	Options []struct {
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	} `json:"options"`
}

// Search implements engine.Engine.
func (a *Adapter) Search(ctx context.Context, q engine.Query) (*types.Response, error) {
	native, from, err := a.buildQuery(q, nil)
	if err != nil {
		return nil, err
	}

	var reply ftsResponse
	if err := a.client.Do(ctx, "search", http.MethodPost, "/"+q.Index+"/_search", native, &reply); err != nil {
		return nil, err
	}
	return a.parseResponse(&reply, from, q.Request.Page.Size), nil
}

// FilterByIDs implements engine.Engine.
func (a *Adapter) FilterByIDs(ctx context.Context, q engine.Query, ids []string) (*types.Response, error) {
	native, _, err := a.buildQuery(q, ids)
	if err != nil {
		return nil, err
	}

	var reply ftsResponse
	if err := a.client.Do(ctx, "filter_by_ids", http.MethodPost, "/"+q.Index+"/_search", native, &reply); err != nil {
		return nil, err
	}
	return a.parseResponse(&reply, 0, len(ids)), nil
}

// Suggest implements engine.Engine. Typeahead normally routes to the
// simple engine; this path exists so the prober and operators can
// exercise every adapter uniformly.
func (a *Adapter) Suggest(ctx context.Context, q engine.SuggestQuery) (*types.Response, error) {
	filter := aclClauses(q.ACL)
	native := ftsQuery{
		Query: map[string]any{
			"bool": map[string]any{
				"must": []any{map[string]any{
					"match_phrase_prefix": map[string]any{"title": q.Request.Prefix},
				}},
				"filter": filter,
			},
		},
		Size:   q.Request.Limit,
		Source: []string{"title"},
	}

	var reply ftsResponse
	if err := a.client.Do(ctx, "suggest", http.MethodPost, "/"+q.Index+"/_search", native, &reply); err != nil {
		return nil, err
	}

	suggestions := make([]types.Suggestion, 0, len(reply.Hits.Hits))
	for _, h := range reply.Hits.Hits {
		var src struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(h.Source, &src); err != nil || src.Title == "" {
			continue
		}
		s := types.Suggestion{Text: src.Title}
		if h.Score != nil {
			s.Score = *h.Score
		}
		suggestions = append(suggestions, s)
	}
	return &types.Response{
		Hits:        []types.Hit{},
		Total:       types.Total{Value: int64(len(suggestions)), Relation: types.RelationEQ},
		Suggestions: suggestions,
		Performance: types.Performance{Engine: types.EngineComplex},
	}, nil
}

// Health implements engine.Engine.
func (a *Adapter) Health(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := a.client.Do(ctx, "health", http.MethodGet, "/_cluster/health", nil, &status); err != nil {
		return err
	}
	if status.Status == "red" {
		return fmt.Errorf("cluster status is red")
	}
	return nil
}

func (a *Adapter) buildQuery(q engine.Query, ids []string) (ftsQuery, int, error) {
	req := q.Request

	from := 0
	size := req.Page.Size
	if req.Page.Cursor != "" {
		var err error
		if from, size, err = engine.DecodeCursor(EngineName, req.Page.Cursor); err != nil {
			return ftsQuery{}, 0, gwerrors.NewBadRequest(err.Error())
		}
	}
	if ids != nil {
		from, size = 0, len(ids)
	}

	var must []any
	if req.Query != "" {
		must = append(must, a.textClause(req.Query))
	}

	filter := make([]any, 0, len(req.Filters)+len(q.ACL)+1)
	for field, fv := range req.Filters {
		if _, shadowed := q.ACL[field]; shadowed {
			continue
		}
		filter = append(filter, filterClause(field, fv))
	}
	filter = append(filter, aclClauses(q.ACL)...)
	if ids != nil {
		filter = append(filter, map[string]any{"ids": map[string]any{"values": ids}})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	if len(boolQuery) == 0 {
		boolQuery["must"] = []any{map[string]any{"match_all": map[string]any{}}}
	}

	native := ftsQuery{
		Query:  map[string]any{"bool": boolQuery},
		From:   from,
		Size:   size,
		Source: req.Projection,
	}
	for _, s := range req.Sort {
		order := s.Order
		if order == "" {
			order = "asc"
		}
		native.Sort = append(native.Sort, map[string]any{s.Field: map[string]any{"order": order}})
	}
	if req.Options.Highlight {
		fields := make(map[string]any, len(highlightFields))
		for _, f := range highlightFields {
			fields[f] = map[string]any{}
		}
		native.Highlight = map[string]any{"fields": fields}
	}
	if len(a.facetFields) > 0 && ids == nil {
		native.Aggs = a.buildAggs()
	}
	if req.Options.Suggest && req.Query != "" {
		native.Suggest = map[string]any{
			"text": req.Query,
			"corrections": map[string]any{
				"term": map[string]any{"field": "title"},
			},
		}
	}
	return native, from, nil
}

// textClause picks the query mode from the shape of q: quoted phrases
// use phrase matching, wildcard characters switch to query_string,
// a tilde enables fuzziness, everything else is cross-field matching.
func (a *Adapter) textClause(text string) map[string]any {
	switch {
	case hasPairedQuotes(text):
		return map[string]any{"multi_match": map[string]any{
			"query":  strings.ReplaceAll(text, `"`, ""),
			"fields": a.searchFields,
			"type":   "phrase",
		}}
	case strings.ContainsAny(text, "*?"):
		return map[string]any{"query_string": map[string]any{
			"query":  text,
			"fields": a.searchFields,
		}}
	case strings.Contains(text, "~"):
		return map[string]any{"multi_match": map[string]any{
			"query":     strings.ReplaceAll(text, "~", ""),
			"fields":    a.searchFields,
			"fuzziness": "AUTO",
		}}
	default:
		return map[string]any{"multi_match": map[string]any{
			"query":  text,
			"fields": a.searchFields,
			"type":   "cross_fields",
		}}
	}
}

func (a *Adapter) buildAggs() map[string]any {
	aggs := make(map[string]any, len(a.facetFields))
	for _, field := range a.facetFields {
		switch {
		case strings.HasPrefix(field, "dates."):
			aggs[field] = map[string]any{"date_histogram": map[string]any{
				"field":             field,
				"calendar_interval": "month",
			}}
		case strings.HasPrefix(field, "numeric."):
			aggs[field] = map[string]any{"range": map[string]any{
				"field": field,
				"ranges": []map[string]any{
					{"to": 100},
					{"from": 100, "to": 1000},
					{"from": 1000, "to": 10000},
					{"from": 10000},
				},
			}}
		default:
			aggs[field] = map[string]any{"terms": map[string]any{
				"field": field,
				"size":  20,
			}}
		}
	}
	return aggs
}

func (a *Adapter) parseResponse(reply *ftsResponse, from, size int) *types.Response {
	hits := make([]types.Hit, len(reply.Hits.Hits))
	for i, h := range reply.Hits.Hits {
		hits[i] = types.Hit{
			ID:        h.ID,
			Source:    h.Source,
			Score:     h.Score,
			Highlight: h.Highlight,
		}
	}

	total := reply.Hits.Total
	if total.Relation == "" {
		total.Relation = types.RelationEQ
	}

	page := types.PageInfo{Size: size}
	if int64(from+len(hits)) < total.Value {
		page.HasMore = true
		page.Cursor = engine.EncodeCursor(EngineName, from+len(hits), size)
	}

	resp := &types.Response{
		Hits:        hits,
		Total:       total,
		Page:        page,
		Performance: types.Performance{Engine: types.EngineComplex},
	}

	if len(reply.Aggregations) > 0 {
		resp.Facets = make(map[string]types.FacetResult, len(reply.Aggregations))
		for name, agg := range reply.Aggregations {
			buckets := make([]types.FacetBucket, len(agg.Buckets))
			for i, b := range agg.Buckets {
				buckets[i] = types.FacetBucket{Key: bucketKey(b), Count: b.DocCount}
			}
			resp.Facets[name] = types.FacetResult{Buckets: buckets}
		}
	}

	for _, entries := range reply.Suggest {
		for _, e := range entries {
			for _, o := range e.Options {
				resp.Suggestions = append(resp.Suggestions, types.Suggestion{Text: o.Text, Score: o.Score})
			}
		}
	}
	return resp
}

func filterClause(field string, fv types.FilterValue) map[string]any {
	switch fv.Kind {
	case types.FilterArray:
		return map[string]any{"terms": map[string]any{field: fv.Values}}
	case types.FilterRange:
		bounds := map[string]any{}
		if fv.Range.GTE != nil {
			bounds["gte"] = fv.Range.GTE
		}
		if fv.Range.LTE != nil {
			bounds["lte"] = fv.Range.LTE
		}
		if fv.Range.GT != nil {
			bounds["gt"] = fv.Range.GT
		}
		if fv.Range.LT != nil {
			bounds["lt"] = fv.Range.LT
		}
		return map[string]any{"range": map[string]any{field: bounds}}
	default:
		return map[string]any{"term": map[string]any{field: fv.Scalar}}
	}
}

func aclClauses(acl map[string]types.FilterValue) []any {
	clauses := make([]any, 0, len(acl))
	for field, fv := range acl {
		clauses = append(clauses, filterClause(field, fv))
	}
	return clauses
}

func bucketKey(b ftsBucket) string {
	if b.KeyAsString != "" {
		return b.KeyAsString
	}
	switch k := b.Key.(type) {
	case string:
		return k
	case float64:
		if k == float64(int64(k)) {
			return fmt.Sprintf("%d", int64(k))
		}
		return fmt.Sprintf("%g", k)
	default:
		return fmt.Sprintf("%v", k)
	}
}

func hasPairedQuotes(q string) bool {
	first := strings.IndexByte(q, '"')
	if first < 0 {
		return false
	}
	return strings.IndexByte(q[first+1:], '"') >= 0
}

// Package simple adapts the key-value store engine. It serves exact
// filter lookups, prefix matching, and typeahead suggestions. It has no
// relevance scoring, highlighting, or facets.
package simple

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/searchmux/searchmux/internal/engine"
	gwerrors "github.com/searchmux/searchmux/pkg/errors"
	"github.com/searchmux/searchmux/pkg/types"
)

// EngineName identifies this adapter.
const EngineName = "simple"

// Fields consulted for typeahead suggestions.
var suggestFields = []string{"title", "customer_name"}

// Adapter translates unified requests into the KV engine's wire format.
type Adapter struct {
	client *engine.Client
}

// Config configures the adapter.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// New creates the adapter.
func New(cfg Config) *Adapter {
	return &Adapter{
		client: engine.NewClient(engine.ClientConfig{
			Engine:        EngineName,
			BaseURL:       cfg.BaseURL,
			APIKey:        cfg.APIKey,
			Timeout:       cfg.Timeout,
			MaxRetries:    cfg.MaxRetries,
			RetryInterval: cfg.RetryInterval,
		}),
	}
}

// Name implements engine.Engine.
func (a *Adapter) Name() string { return EngineName }

// Native wire format of the KV engine.
type kvQuery struct {
	Filters map[string]kvFilter `json:"filters,omitempty"`
	Prefix  string              `json:"prefix,omitempty"`
	IDs     []string            `json:"ids,omitempty"`
	Sort    []kvSort            `json:"sort,omitempty"`
	Fields  []string            `json:"fields,omitempty"`
	From    int                 `json:"from"`
	Size    int                 `json:"size"`
}

type kvFilter struct {
	Eq    any                `json:"eq,omitempty"`
	In    []any              `json:"in,omitempty"`
	Range *types.RangeBounds `json:"range,omitempty"`
}

type kvSort struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

type kvResponse struct {
	Hits  []kvHit `json:"hits"`
	Total int64   `json:"total"`
}

type kvHit struct {
	ID    string          `json:"id"`
	Doc   json.RawMessage `json:"doc"`
	Score *float64        `json:"score,omitempty"`
}

type kvSuggestQuery struct {
	Prefix  string              `json:"prefix"`
	Fields  []string            `json:"fields"`
	Limit   int                 `json:"limit"`
	Filters map[string]kvFilter `json:"filters,omitempty"`
}

type kvSuggestResponse struct {
	Suggestions []kvSuggestion `json:"suggestions"`
}

type kvSuggestion struct {
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Context string  `json:"context,omitempty"`
}

// Search implements engine.Engine.
func (a *Adapter) Search(ctx context.Context, q engine.Query) (*types.Response, error) {
	native, from, err := a.buildQuery(q, nil)
	if err != nil {
		return nil, err
	}

	var reply kvResponse
	if err := a.client.Do(ctx, "search", http.MethodPost, "/v1/indexes/"+q.Index+"/query", native, &reply); err != nil {
		return nil, err
	}
	return a.parseResponse(&reply, from, q.Request.Page.Size), nil
}

// FilterByIDs implements engine.Engine: the same query restricted to a
// candidate id set, preserving the engine's own filter semantics.
func (a *Adapter) FilterByIDs(ctx context.Context, q engine.Query, ids []string) (*types.Response, error) {
	native, from, err := a.buildQuery(q, ids)
	if err != nil {
		return nil, err
	}

	var reply kvResponse
	if err := a.client.Do(ctx, "filter_by_ids", http.MethodPost, "/v1/indexes/"+q.Index+"/query", native, &reply); err != nil {
		return nil, err
	}
	return a.parseResponse(&reply, from, len(ids)), nil
}

// Suggest implements engine.Engine. Typeahead is always served here:
// prefix lookups against the suggest fields, scoped by tenant and the
// optional entity set.
func (a *Adapter) Suggest(ctx context.Context, q engine.SuggestQuery) (*types.Response, error) {
	filters := make(map[string]kvFilter, len(q.ACL)+1)
	for field, fv := range q.ACL {
		filters[field] = toKVFilter(fv)
	}
	if len(q.Request.Entity) > 0 {
		in := make([]any, len(q.Request.Entity))
		for i, e := range q.Request.Entity {
			in[i] = e
		}
		filters["entity"] = kvFilter{In: in}
	}

	native := kvSuggestQuery{
		Prefix:  q.Request.Prefix,
		Fields:  suggestFields,
		Limit:   q.Request.Limit,
		Filters: filters,
	}

	var reply kvSuggestResponse
	if err := a.client.Do(ctx, "suggest", http.MethodPost, "/v1/indexes/"+q.Index+"/suggest", native, &reply); err != nil {
		return nil, err
	}

	suggestions := make([]types.Suggestion, len(reply.Suggestions))
	for i, s := range reply.Suggestions {
		suggestions[i] = types.Suggestion{Text: s.Text, Score: s.Score, Context: s.Context}
	}
	return &types.Response{
		Hits:        []types.Hit{},
		Total:       types.Total{Value: int64(len(suggestions)), Relation: types.RelationEQ},
		Suggestions: suggestions,
		Performance: types.Performance{Engine: types.EngineSimple},
	}, nil
}

// Health implements engine.Engine.
func (a *Adapter) Health(ctx context.Context) error {
	return a.client.Do(ctx, "health", http.MethodGet, "/v1/ping", nil, nil)
}

func (a *Adapter) buildQuery(q engine.Query, ids []string) (kvQuery, int, error) {
	req := q.Request

	from := 0
	size := req.Page.Size
	if req.Page.Cursor != "" {
		var err error
		if from, size, err = engine.DecodeCursor(EngineName, req.Page.Cursor); err != nil {
			return kvQuery{}, 0, gwerrors.NewBadRequest(err.Error())
		}
	}
	if ids != nil {
		from, size = 0, len(ids)
	}

	filters := make(map[string]kvFilter, len(req.Filters)+len(q.ACL))
	for field, fv := range req.Filters {
		filters[field] = toKVFilter(fv)
	}
	// ACL filters override user filters on collision so a caller can
	// never widen its scope.
	for field, fv := range q.ACL {
		filters[field] = toKVFilter(fv)
	}

	native := kvQuery{
		Filters: filters,
		Prefix:  req.Query,
		IDs:     ids,
		Fields:  req.Projection,
		From:    from,
		Size:    size,
	}
	for _, s := range req.Sort {
		order := s.Order
		if order == "" {
			order = "asc"
		}
		native.Sort = append(native.Sort, kvSort{Field: s.Field, Order: order})
	}
	return native, from, nil
}

func (a *Adapter) parseResponse(reply *kvResponse, from, size int) *types.Response {
	hits := make([]types.Hit, len(reply.Hits))
	for i, h := range reply.Hits {
		hits[i] = types.Hit{ID: h.ID, Source: h.Doc, Score: h.Score}
	}

	page := types.PageInfo{Size: size}
	if int64(from+len(hits)) < reply.Total {
		page.HasMore = true
		page.Cursor = engine.EncodeCursor(EngineName, from+len(hits), size)
	}

	return &types.Response{
		Hits:        hits,
		Total:       types.Total{Value: reply.Total, Relation: types.RelationEQ},
		Page:        page,
		Performance: types.Performance{Engine: types.EngineSimple},
	}
}

func toKVFilter(fv types.FilterValue) kvFilter {
	switch fv.Kind {
	case types.FilterArray:
		return kvFilter{In: fv.Values}
	case types.FilterRange:
		return kvFilter{Range: fv.Range}
	default:
		return kvFilter{Eq: fv.Scalar}
	}
}

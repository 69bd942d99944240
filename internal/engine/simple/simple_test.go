package simple

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/searchmux/searchmux/internal/engine"
	"github.com/searchmux/searchmux/pkg/types"
)

func testACL(tenant string) map[string]types.FilterValue {
	return map[string]types.FilterValue{
		"tenant_id": {Kind: types.FilterScalar, Scalar: tenant},
	}
}

func decodeRequest(t *testing.T, body string) *types.Request {
	t.Helper()
	var req types.Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	req.Normalize()
	return &req
}

func TestSearchBuildsTenantScopedQuery(t *testing.T) {
	var captured kvQuery
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/indexes/search-shared/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(kvResponse{
			Hits:  []kvHit{{ID: "doc-1", Doc: json.RawMessage(`{"status":"active"}`)}},
			Total: 1,
		})
	}))
	defer srv.Close()

	adapter := New(Config{BaseURL: srv.URL})
	req := decodeRequest(t, `{"filters":{"status":"active","tags":["a","b"]},"sort":[{"field":"created_at","order":"desc"}],"page":{"size":20}}`)

	resp, err := adapter.Search(context.Background(), engine.Query{
		Index:   "search-shared",
		Tenant:  "tenant-a",
		Request: req,
		ACL:     testACL("tenant-a"),
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if captured.Filters["tenant_id"].Eq != "tenant-a" {
		t.Errorf("tenant filter missing: %+v", captured.Filters)
	}
	if captured.Filters["status"].Eq != "active" {
		t.Errorf("status filter = %+v", captured.Filters["status"])
	}
	if len(captured.Filters["tags"].In) != 2 {
		t.Errorf("tags filter = %+v", captured.Filters["tags"])
	}
	if captured.Size != 20 || captured.From != 0 {
		t.Errorf("window = (%d, %d)", captured.From, captured.Size)
	}
	if len(captured.Sort) != 1 || captured.Sort[0].Order != "desc" {
		t.Errorf("sort = %+v", captured.Sort)
	}

	if len(resp.Hits) != 1 || resp.Hits[0].ID != "doc-1" {
		t.Errorf("hits = %+v", resp.Hits)
	}
	if resp.Total.Value != 1 || resp.Total.Relation != types.RelationEQ {
		t.Errorf("total = %+v", resp.Total)
	}
	if resp.Performance.Engine != types.EngineSimple {
		t.Errorf("engine = %s", resp.Performance.Engine)
	}
}

func TestSearchACLOverridesUserFilter(t *testing.T) {
	var captured kvQuery
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(kvResponse{})
	}))
	defer srv.Close()

	adapter := New(Config{BaseURL: srv.URL})
	req := decodeRequest(t, `{"filters":{"tenant_id":"someone-else"},"page":{"size":10}}`)

	_, err := adapter.Search(context.Background(), engine.Query{
		Index: "idx", Tenant: "tenant-a", Request: req, ACL: testACL("tenant-a"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if captured.Filters["tenant_id"].Eq != "tenant-a" {
		t.Errorf("caller widened tenant scope: %+v", captured.Filters["tenant_id"])
	}
}

func TestSearchPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits := make([]kvHit, 20)
		for i := range hits {
			hits[i] = kvHit{ID: "d", Doc: json.RawMessage(`{}`)}
		}
		_ = json.NewEncoder(w).Encode(kvResponse{Hits: hits, Total: 100})
	}))
	defer srv.Close()

	adapter := New(Config{BaseURL: srv.URL})
	req := decodeRequest(t, `{"page":{"size":20}}`)

	resp, err := adapter.Search(context.Background(), engine.Query{
		Index: "idx", Tenant: "t", Request: req, ACL: testACL("t"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Page.HasMore || resp.Page.Cursor == "" {
		t.Fatalf("page = %+v, want has_more with cursor", resp.Page)
	}

	offset, size, err := engine.DecodeCursor(EngineName, resp.Page.Cursor)
	if err != nil {
		t.Fatalf("issued cursor does not decode: %v", err)
	}
	if offset != 20 || size != 20 {
		t.Errorf("cursor window = (%d, %d), want (20, 20)", offset, size)
	}
}

func TestSearchRejectsForeignCursor(t *testing.T) {
	adapter := New(Config{BaseURL: "http://unused.invalid"})
	req := decodeRequest(t, `{"page":{"size":20}}`)
	req.Page.Cursor = engine.EncodeCursor("complex", 20, 20)

	_, err := adapter.Search(context.Background(), engine.Query{
		Index: "idx", Tenant: "t", Request: req, ACL: testACL("t"),
	})
	if err == nil {
		t.Fatal("foreign cursor must be rejected")
	}
}

func TestFilterByIDs(t *testing.T) {
	var captured kvQuery
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(kvResponse{
			Hits:  []kvHit{{ID: "a"}, {ID: "c"}},
			Total: 2,
		})
	}))
	defer srv.Close()

	adapter := New(Config{BaseURL: srv.URL})
	req := decodeRequest(t, `{"filters":{"status":"active"},"page":{"size":20}}`)

	resp, err := adapter.FilterByIDs(context.Background(), engine.Query{
		Index: "idx", Tenant: "t", Request: req, ACL: testACL("t"),
	}, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(captured.IDs) != 3 {
		t.Errorf("ids = %v", captured.IDs)
	}
	if captured.Size != 3 {
		t.Errorf("size = %d, want candidate count", captured.Size)
	}
	if len(resp.Hits) != 2 {
		t.Errorf("hits = %+v", resp.Hits)
	}
}

func TestSuggest(t *testing.T) {
	var captured kvSuggestQuery
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/indexes/idx/suggest" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(kvSuggestResponse{
			Suggestions: []kvSuggestion{
				{Text: "acme corp", Score: 0.9, Context: "customer"},
			},
		})
	}))
	defer srv.Close()

	adapter := New(Config{BaseURL: srv.URL})
	resp, err := adapter.Suggest(context.Background(), engine.SuggestQuery{
		Index:   "idx",
		Tenant:  "t",
		Request: &types.SuggestRequest{Prefix: "ac", Entity: []string{"customer"}, Limit: 10},
		ACL:     testACL("t"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if captured.Prefix != "ac" || captured.Limit != 10 {
		t.Errorf("captured = %+v", captured)
	}
	if captured.Filters["tenant_id"].Eq != "t" {
		t.Error("suggest query not tenant scoped")
	}
	if len(captured.Filters["entity"].In) != 1 {
		t.Errorf("entity filter = %+v", captured.Filters["entity"])
	}
	if len(resp.Suggestions) != 1 || resp.Suggestions[0].Text != "acme corp" {
		t.Errorf("suggestions = %+v", resp.Suggestions)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/ping" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := New(Config{BaseURL: srv.URL})
	if err := adapter.Health(context.Background()); err != nil {
		t.Errorf("health: %v", err)
	}
}

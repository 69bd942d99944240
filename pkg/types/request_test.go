package types

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestFilterValueUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind FilterKind
		wantErr  string
	}{
		{name: "string scalar", input: `"active"`, wantKind: FilterScalar},
		{name: "number scalar", input: `42`, wantKind: FilterScalar},
		{name: "bool scalar", input: `true`, wantKind: FilterScalar},
		{name: "array", input: `["a","b"]`, wantKind: FilterArray},
		{name: "mixed scalar array", input: `["a",1,true]`, wantKind: FilterArray},
		{name: "range gte lte", input: `{"gte":1,"lte":10}`, wantKind: FilterRange},
		{name: "range date strings", input: `{"gte":"2025-01-01"}`, wantKind: FilterRange},
		{name: "null rejected", input: `null`, wantErr: "must not be null"},
		{name: "empty array rejected", input: `[]`, wantErr: "must not be empty"},
		{name: "nested array element rejected", input: `[["a"]]`, wantErr: "must be scalars"},
		{name: "object element rejected", input: `[{"a":1}]`, wantErr: "must be scalars"},
		{name: "empty range rejected", input: `{}`, wantErr: "at least one bound"},
		{name: "unknown range key rejected", input: `{"between":[1,2]}`, wantErr: "unknown range bound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fv FilterValue
			err := json.Unmarshal([]byte(tt.input), &fv)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if fv.Kind != tt.wantKind {
				t.Errorf("kind = %d, want %d", fv.Kind, tt.wantKind)
			}
		})
	}
}

func TestFilterValueRoundTrip(t *testing.T) {
	inputs := []string{`"active"`, `["a","b"]`, `{"gte":1,"lt":5}`}
	for _, in := range inputs {
		var fv FilterValue
		if err := json.Unmarshal([]byte(in), &fv); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		out, err := json.Marshal(fv)
		if err != nil {
			t.Fatalf("marshal %s: %v", in, err)
		}
		var a, b any
		if err := json.Unmarshal([]byte(in), &a); err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal(out, &b); err != nil {
			t.Fatal(err)
		}
		if string(out) == "" || a == nil || b == nil {
			t.Fatalf("round trip of %s produced %s", in, out)
		}
	}
}

func TestRequestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		size        int
		wantSize    int
		wantClamped bool
	}{
		{name: "absent defaults", size: 0, wantSize: DefaultPageSize},
		{name: "negative clamps to one", size: -5, wantSize: 1},
		{name: "in range untouched", size: 50, wantSize: 50},
		{name: "oversized clamps down", size: 5000, wantSize: MaxPageSize, wantClamped: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Page: Page{Size: tt.size}}
			clamped := req.Normalize()
			if req.Page.Size != tt.wantSize {
				t.Errorf("size = %d, want %d", req.Page.Size, tt.wantSize)
			}
			if clamped != tt.wantClamped {
				t.Errorf("clamped = %v, want %v", clamped, tt.wantClamped)
			}
		})
	}
}

func TestRequestValidate(t *testing.T) {
	valid := Request{
		Sort:       []SortKey{{Field: "created_at", Order: "desc"}},
		Projection: []string{"id", "title"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	badSort := Request{Sort: []SortKey{{Field: "x", Order: "sideways"}}}
	if err := badSort.Validate(); err == nil {
		t.Error("expected sort order error")
	}

	badTimeout := Request{Options: Options{TimeoutMS: -1}}
	if err := badTimeout.Validate(); err == nil {
		t.Error("expected timeout error")
	}
}

func TestRequestCloneIsolation(t *testing.T) {
	orig := Request{
		Query:   "acme",
		Filters: map[string]FilterValue{"status": {Kind: FilterScalar, Scalar: "active"}},
		Page:    Page{Size: 20},
	}
	cp := orig.Clone()
	cp.Page.Size = 60
	cp.Filters["entity"] = FilterValue{Kind: FilterScalar, Scalar: "customer"}

	if orig.Page.Size != 20 {
		t.Errorf("clone mutated original page size")
	}
	if len(orig.Filters) != 1 {
		t.Errorf("clone mutated original filters")
	}
}

func TestSuggestRequestValidate(t *testing.T) {
	tests := []struct {
		name      string
		req       SuggestRequest
		wantErr   bool
		wantLimit int
	}{
		{name: "defaults limit", req: SuggestRequest{Prefix: "ac"}, wantLimit: SuggestDefaultLimit},
		{name: "explicit limit kept", req: SuggestRequest{Prefix: "ac", Limit: 5}, wantLimit: 5},
		{name: "empty prefix", req: SuggestRequest{}, wantErr: true},
		{name: "prefix too long", req: SuggestRequest{Prefix: strings.Repeat("x", 51)}, wantErr: true},
		{name: "limit too high", req: SuggestRequest{Prefix: "ac", Limit: 21}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.req.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", tt.req.Limit, tt.wantLimit)
			}
		})
	}
}

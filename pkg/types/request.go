// Package types defines the core data structures for search gateway
// requests and responses. All engine adapters translate to and from
// these unified formats.
package types //nolint:revive // package name is intentional

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Request is the unified inbound search request. The tenant identifier is
// never part of the body; it is injected from transport headers.
type Request struct {
	Query      string                 `json:"q,omitempty"`
	Filters    map[string]FilterValue `json:"filters,omitempty"`
	Sort       []SortKey              `json:"sort,omitempty"`
	Projection []string               `json:"projection,omitempty"`
	Page       Page                   `json:"page"`
	Options    Options                `json:"options"`
}

// SortKey selects a field and direction for result ordering.
type SortKey struct {
	Field string `json:"field"`
	Order string `json:"order"` // "asc" or "desc"
}

// Page describes the requested result window. Cursor is opaque and
// adapter-private.
type Page struct {
	Size   int    `json:"size,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// Options carries per-request switches. TimeoutMS and Strict do not
// change the result set identity and are excluded from fingerprinting.
type Options struct {
	Highlight bool `json:"highlight,omitempty"`
	Suggest   bool `json:"suggest,omitempty"`
	TimeoutMS int  `json:"timeout_ms,omitempty"`
	Strict    bool `json:"strict,omitempty"`
}

// FilterKind discriminates the three filter value shapes.
type FilterKind int

const (
	FilterScalar FilterKind = iota
	FilterArray
	FilterRange
)

// FilterValue is a tagged union: scalar, array of scalars, or a range
// object with {gte, lte, gt, lt} bounds. It is validated once at the
// decode boundary, never at read sites.
type FilterValue struct {
	Kind   FilterKind
	Scalar any
	Values []any
	Range  *RangeBounds
}

// RangeBounds holds the bounds of a range filter. Bounds may be numbers
// or date strings; nil means the bound is absent.
type RangeBounds struct {
	GTE any `json:"gte,omitempty"`
	LTE any `json:"lte,omitempty"`
	GT  any `json:"gt,omitempty"`
	LT  any `json:"lt,omitempty"`
}

var rangeKnownKeys = map[string]struct{}{
	"gte": {}, "lte": {}, "gt": {}, "lt": {},
}

// UnmarshalJSON decodes a filter value into one of the three cases.
func (f *FilterValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return fmt.Errorf("filter value must not be null")
	}

	switch trimmed[0] {
	case '[':
		var values []any
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		if len(values) == 0 {
			return fmt.Errorf("filter array must not be empty")
		}
		for _, v := range values {
			if !isScalar(v) {
				return fmt.Errorf("filter array elements must be scalars")
			}
		}
		*f = FilterValue{Kind: FilterArray, Values: values}
		return nil
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if len(raw) == 0 {
			return fmt.Errorf("range filter must have at least one bound")
		}
		for key := range raw {
			if _, ok := rangeKnownKeys[key]; !ok {
				return fmt.Errorf("unknown range bound %q", key)
			}
		}
		var bounds RangeBounds
		if err := json.Unmarshal(data, &bounds); err != nil {
			return err
		}
		*f = FilterValue{Kind: FilterRange, Range: &bounds}
		return nil
	default:
		var scalar any
		if err := json.Unmarshal(data, &scalar); err != nil {
			return err
		}
		if !isScalar(scalar) {
			return fmt.Errorf("filter value must be a scalar, array, or range object")
		}
		*f = FilterValue{Kind: FilterScalar, Scalar: scalar}
		return nil
	}
}

// MarshalJSON re-emits the underlying case.
func (f FilterValue) MarshalJSON() ([]byte, error) {
	switch f.Kind {
	case FilterArray:
		return json.Marshal(f.Values)
	case FilterRange:
		return json.Marshal(f.Range)
	default:
		return json.Marshal(f.Scalar)
	}
}

// IsExactMatch reports whether the filter constrains a field to exact
// values (scalar or array), as opposed to a range.
func (f FilterValue) IsExactMatch() bool {
	return f.Kind == FilterScalar || f.Kind == FilterArray
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, float64, bool:
		return true
	default:
		return false
	}
}

// MaxPageSize is the hard adapter-side page size cap. Larger sizes are
// clamped and the response total becomes a lower bound.
const MaxPageSize = 1000

// DefaultPageSize applies when the request omits page.size.
const DefaultPageSize = 20

// Normalize applies page-size defaulting and clamping: absent sizes get
// the default, sizes below 1 are clamped to 1, sizes above MaxPageSize
// are clamped down. Returns true when the upper clamp fired.
func (r *Request) Normalize() (clamped bool) {
	if r.Page.Size == 0 {
		r.Page.Size = DefaultPageSize
	}
	if r.Page.Size < 1 {
		r.Page.Size = 1
	}
	if r.Page.Size > MaxPageSize {
		r.Page.Size = MaxPageSize
		clamped = true
	}
	return clamped
}

// Validate checks the structural constraints the FilterValue decoder
// cannot see: sort order tokens, projection paths, and option ranges.
func (r *Request) Validate() error {
	for _, s := range r.Sort {
		if s.Field == "" {
			return fmt.Errorf("sort field must not be empty")
		}
		if s.Order != "" && s.Order != "asc" && s.Order != "desc" {
			return fmt.Errorf("sort order %q must be asc or desc", s.Order)
		}
	}
	for _, p := range r.Projection {
		if p == "" {
			return fmt.Errorf("projection path must not be empty")
		}
	}
	if r.Options.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms must not be negative")
	}
	return nil
}

// Clone returns a deep-enough copy for plan mutation: the dispatcher
// rewrites page size and query on its own copy, never on the caller's.
func (r *Request) Clone() *Request {
	cp := *r
	if r.Filters != nil {
		cp.Filters = make(map[string]FilterValue, len(r.Filters))
		for k, v := range r.Filters {
			cp.Filters[k] = v
		}
	}
	cp.Sort = append([]SortKey(nil), r.Sort...)
	cp.Projection = append([]string(nil), r.Projection...)
	return &cp
}

// SuggestRequest is the body of /suggest.
type SuggestRequest struct {
	Prefix string   `json:"prefix"`
	Entity []string `json:"entity,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

// Suggest limits per the transport contract.
const (
	SuggestMaxPrefixLen = 50
	SuggestMaxLimit     = 20
	SuggestDefaultLimit = 10
)

// Validate enforces the /suggest body constraints and applies the
// default limit.
func (s *SuggestRequest) Validate() error {
	if s.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if len(s.Prefix) > SuggestMaxPrefixLen {
		return fmt.Errorf("prefix exceeds %d characters", SuggestMaxPrefixLen)
	}
	if s.Limit == 0 {
		s.Limit = SuggestDefaultLimit
	}
	if s.Limit < 1 || s.Limit > SuggestMaxLimit {
		return fmt.Errorf("limit must be between 1 and %d", SuggestMaxLimit)
	}
	return nil
}

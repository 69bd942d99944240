// Package fingerprint derives deterministic, tenant-prefixed cache keys
// from search requests. The canonical form sorts mapping keys by
// code-point, preserves array order, elides absent fields, and
// normalizes numbers to a single decimal form, so semantically identical
// requests always hash to the same key.
package fingerprint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/twmb/murmur3"

	"github.com/searchmux/searchmux/pkg/types"
)

// Key namespaces.
const (
	NamespaceSearch  = "search"
	NamespaceSuggest = "suggest"
)

// Search produces the cache key for a /search request:
// search:<tenant>:<hex-128>. Only the result-set-identity subset is
// hashed; options like timeout_ms and strict are excluded so timeout
// changes never invalidate cache. Authorization-injected ACL filters
// participate so differently-scoped callers never share an entry.
func Search(tenant string, req *types.Request, acl map[string]types.FilterValue) string {
	var sb strings.Builder
	if req.Query != "" {
		fmt.Fprintf(&sb, "q=%s", strconv.Quote(req.Query))
	}
	writeFilters(&sb, "filters", req.Filters)
	writeFilters(&sb, "acl", acl)
	writeSort(&sb, req.Sort)
	writeProjection(&sb, req.Projection)
	fmt.Fprintf(&sb, "|page=%d", req.Page.Size)
	if req.Page.Cursor != "" {
		fmt.Fprintf(&sb, ",%s", req.Page.Cursor)
	}
	return key(NamespaceSearch, tenant, sb.String())
}

// Suggest produces the cache key for a /suggest request. The full body
// participates, entity set included, so suggestion caches for different
// entity sets never collide.
func Suggest(tenant string, req *types.SuggestRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "prefix=%s", strconv.Quote(req.Prefix))
	if len(req.Entity) > 0 {
		sb.WriteString("|entity=[")
		for i, e := range req.Entity {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(e))
		}
		sb.WriteByte(']')
	}
	fmt.Fprintf(&sb, "|limit=%d", req.Limit)
	return key(NamespaceSuggest, tenant, sb.String())
}

func key(namespace, tenant, canonical string) string {
	h1, h2 := murmur3.StringSum128(canonical)
	return fmt.Sprintf("%s:%s:%016x%016x", namespace, tenant, h1, h2)
}

func writeFilters(sb *strings.Builder, label string, filters map[string]types.FilterValue) {
	if len(filters) == 0 {
		return
	}
	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	sb.WriteString("|" + label + "={")
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f)
		sb.WriteByte(':')
		writeFilterValue(sb, filters[f])
	}
	sb.WriteByte('}')
}

func writeFilterValue(sb *strings.Builder, fv types.FilterValue) {
	switch fv.Kind {
	case types.FilterArray:
		sb.WriteByte('[')
		for i, v := range fv.Values {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(canonScalar(v))
		}
		sb.WriteByte(']')
	case types.FilterRange:
		sb.WriteByte('{')
		first := true
		// Bound keys in code-point order: gt, gte, lt, lte.
		for _, b := range []struct {
			name  string
			value any
		}{
			{"gt", fv.Range.GT},
			{"gte", fv.Range.GTE},
			{"lt", fv.Range.LT},
			{"lte", fv.Range.LTE},
		} {
			if b.value == nil {
				continue
			}
			if !first {
				sb.WriteByte(',')
			}
			first = false
			sb.WriteString(b.name)
			sb.WriteByte(':')
			sb.WriteString(canonScalar(b.value))
		}
		sb.WriteByte('}')
	default:
		sb.WriteString(canonScalar(fv.Scalar))
	}
}

func writeSort(sb *strings.Builder, keys []types.SortKey) {
	if len(keys) == 0 {
		return
	}
	sb.WriteString("|sort=[")
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		order := k.Order
		if order == "" {
			order = "asc"
		}
		sb.WriteString(k.Field)
		sb.WriteByte(':')
		sb.WriteString(order)
	}
	sb.WriteByte(']')
}

func writeProjection(sb *strings.Builder, paths []string) {
	if len(paths) == 0 {
		return
	}
	sb.WriteString("|proj=[")
	for i, p := range paths {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(p))
	}
	sb.WriteByte(']')
}

// canonScalar renders a scalar unambiguously: strings quoted, numbers in
// shortest decimal form, booleans literal. JSON decoding yields float64
// for all numbers, so 1000 and 1000.0 normalize identically.
func canonScalar(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

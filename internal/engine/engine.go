// Package engine defines the capability set shared by the two search
// engine adapters and the transport plumbing they have in common. The
// dispatcher is polymorphic over exactly this set: search, suggest,
// filter-by-ids, and health.
package engine

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/searchmux/searchmux/pkg/types"
)

// Engine is the uniform adapter interface over a backing search engine.
type Engine interface {
	// Name returns the adapter identifier ("simple" or "complex").
	Name() string

	// Search executes a tenant-scoped search.
	Search(ctx context.Context, q Query) (*types.Response, error)

	// Suggest executes a typeahead lookup.
	Suggest(ctx context.Context, q SuggestQuery) (*types.Response, error)

	// FilterByIDs restricts the query's filter set to the given ids,
	// returning the surviving subset. Used by the hybrid plan.
	FilterByIDs(ctx context.Context, q Query, ids []string) (*types.Response, error)

	// Health performs a cheap liveness probe. Only the background
	// prober calls it; the dispatcher never consults health per
	// request.
	Health(ctx context.Context) error
}

// Query is a fully authorized search input. ACL always contains the
// tenant filter; adapters merge it into the native query so every
// engine call is tenant-scoped.
type Query struct {
	Index   string
	Tenant  string
	Request *types.Request
	ACL     map[string]types.FilterValue
}

// SuggestQuery is the authorized typeahead input.
type SuggestQuery struct {
	Index   string
	Tenant  string
	Request *types.SuggestRequest
	ACL     map[string]types.FilterValue
}

// cursorPayload is the private shape behind the opaque page cursor.
// Cursors carry the issuing engine so they cannot cross adapters.
type cursorPayload struct {
	Engine string `json:"e"`
	Offset int    `json:"o"`
	Size   int    `json:"s"`
}

// EncodeCursor produces an opaque, URL-safe next-page cursor.
func EncodeCursor(engine string, offset, size int) string {
	payload, _ := json.Marshal(cursorPayload{Engine: engine, Offset: offset, Size: size}) //nolint:errcheck
	return base64.RawURLEncoding.EncodeToString(payload)
}

// DecodeCursor round-trips a cursor issued by the same engine. Foreign
// or undecodable cursors are a boundary error.
func DecodeCursor(engine, cursor string) (offset, size int, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, 0, fmt.Errorf("undecodable cursor")
	}
	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, 0, fmt.Errorf("undecodable cursor")
	}
	if payload.Engine != engine {
		return 0, 0, fmt.Errorf("cursor was issued by another engine")
	}
	if payload.Offset < 0 || payload.Size < 1 {
		return 0, 0, fmt.Errorf("cursor window out of range")
	}
	return payload.Offset, payload.Size, nil
}

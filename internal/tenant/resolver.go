// Package tenant resolves and authorizes the tenant for each request:
// header validation, claim-derived ACL filters, and the memoized
// routing strategy lookup.
package tenant

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	gwerrors "github.com/searchmux/searchmux/pkg/errors"
	"github.com/searchmux/searchmux/pkg/types"
)

// TenantIDHeader carries the pre-validated tenant identifier.
const TenantIDHeader = "X-Tenant-ID"

// Filter field names injected by authorization. Engines merge these
// into every native query alongside user filters.
const (
	TenantFilterField = "tenant_id"
	GroupsFilterField = "acl_groups"
)

// Claims are the role/group claims extracted from an optional bearer
// token. Token issuance and primary validation are out of scope; the
// gateway only consumes claims for ACL narrowing.
type Claims struct {
	Roles  []string `json:"roles"`
	Groups []string `json:"groups"`
}

type tokenClaims struct {
	Roles  []string `json:"roles"`
	Groups []string `json:"groups"`
	jwt.RegisteredClaims
}

// Resolver validates tenant identity and derives the authorization
// scope for each request.
type Resolver struct {
	hmacSecret []byte // optional; empty disables signature verification
}

// NewResolver creates a resolver. When secret is non-empty, bearer
// tokens are verified with HS256 and bad signatures are forbidden;
// otherwise claims are parsed unverified for ACL hints only.
func NewResolver(secret string) *Resolver {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &Resolver{hmacSecret: key}
}

// Resolve extracts the tenant identifier from transport headers. A
// tenant identifier supplied in the body is never consulted.
func (r *Resolver) Resolve(req *http.Request) (string, error) {
	tenantID := strings.TrimSpace(req.Header.Get(TenantIDHeader))
	if tenantID == "" {
		return "", gwerrors.NewMissingTenant()
	}
	return tenantID, nil
}

// ParseClaims extracts role/group claims from the Authorization header.
// An absent header yields empty claims; a malformed or (when a secret
// is configured) badly signed token is forbidden.
func (r *Resolver) ParseClaims(req *http.Request) (Claims, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return Claims{}, nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return Claims{}, gwerrors.NewForbidden("authorization header must use the Bearer scheme")
	}

	var parsed tokenClaims
	if len(r.hmacSecret) > 0 {
		_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
			return r.hmacSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			return Claims{}, gwerrors.NewForbidden("invalid bearer token")
		}
	} else {
		parser := jwt.NewParser()
		if _, _, err := parser.ParseUnverified(token, &parsed); err != nil {
			return Claims{}, gwerrors.NewForbidden("malformed bearer token")
		}
	}

	return Claims{Roles: parsed.Roles, Groups: parsed.Groups}, nil
}

// Authorize produces the mandatory filter set for a request: the tenant
// filter always, plus a group filter when claims carry groups. These
// ride beside user filters so classification sees only what the caller
// asked for.
func (r *Resolver) Authorize(tenantID string, claims Claims) map[string]types.FilterValue {
	acl := map[string]types.FilterValue{
		TenantFilterField: {Kind: types.FilterScalar, Scalar: tenantID},
	}
	if len(claims.Groups) > 0 {
		values := make([]any, len(claims.Groups))
		for i, g := range claims.Groups {
			values[i] = g
		}
		acl[GroupsFilterField] = types.FilterValue{Kind: types.FilterArray, Values: values}
	}
	return acl
}

package tenant

import (
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	gwerrors "github.com/searchmux/searchmux/pkg/errors"
	"github.com/searchmux/searchmux/pkg/types"
)

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestResolveTenant(t *testing.T) {
	r := NewResolver("")

	req := httptest.NewRequest("POST", "/search", nil)
	req.Header.Set(TenantIDHeader, "tenant-a")

	tenantID, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tenantID != "tenant-a" {
		t.Errorf("tenant = %q, want tenant-a", tenantID)
	}
}

func TestResolveMissingTenant(t *testing.T) {
	r := NewResolver("")

	for _, header := range []string{"", "   "} {
		req := httptest.NewRequest("POST", "/search", nil)
		if header != "" {
			req.Header.Set(TenantIDHeader, header)
		}
		_, err := r.Resolve(req)
		ge := gwerrors.AsGatewayError(err)
		if ge.Kind != gwerrors.KindMissingTenant {
			t.Errorf("kind = %s, want missing-tenant", ge.Kind)
		}
		if ge.Code != gwerrors.CodeMissingTenantID {
			t.Errorf("code = %s, want MISSING_TENANT_ID", ge.Code)
		}
	}
}

func TestParseClaims(t *testing.T) {
	const secret = "test-secret"
	r := NewResolver(secret)

	token := signedToken(t, secret, jwt.MapClaims{
		"roles":  []string{"admin"},
		"groups": []string{"sales", "emea"},
	})

	req := httptest.NewRequest("POST", "/search", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	claims, err := r.ParseClaims(req)
	if err != nil {
		t.Fatalf("parse claims: %v", err)
	}
	if len(claims.Groups) != 2 || claims.Groups[0] != "sales" {
		t.Errorf("groups = %v", claims.Groups)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Errorf("roles = %v", claims.Roles)
	}
}

func TestParseClaimsRejections(t *testing.T) {
	r := NewResolver("right-secret")

	tests := []struct {
		name   string
		header string
	}{
		{name: "wrong scheme", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not.a.token"},
		{name: "wrong signature", header: "Bearer " + signedToken(t, "wrong-secret", jwt.MapClaims{"groups": []string{"x"}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/search", nil)
			req.Header.Set("Authorization", tt.header)
			_, err := r.ParseClaims(req)
			ge := gwerrors.AsGatewayError(err)
			if ge.Kind != gwerrors.KindForbidden {
				t.Errorf("kind = %s, want forbidden", ge.Kind)
			}
		})
	}
}

func TestParseClaimsAbsentHeader(t *testing.T) {
	r := NewResolver("secret")
	req := httptest.NewRequest("POST", "/search", nil)
	claims, err := r.ParseClaims(req)
	if err != nil {
		t.Fatalf("absent header must yield empty claims, got %v", err)
	}
	if len(claims.Groups) != 0 || len(claims.Roles) != 0 {
		t.Errorf("claims = %+v, want empty", claims)
	}
}

func TestAuthorize(t *testing.T) {
	r := NewResolver("")

	acl := r.Authorize("tenant-a", Claims{Groups: []string{"sales"}})
	tenantFilter, ok := acl[TenantFilterField]
	if !ok || tenantFilter.Scalar != "tenant-a" {
		t.Errorf("tenant filter = %+v", tenantFilter)
	}
	groups, ok := acl[GroupsFilterField]
	if !ok || groups.Kind != types.FilterArray || len(groups.Values) != 1 {
		t.Errorf("groups filter = %+v", groups)
	}

	bare := r.Authorize("tenant-b", Claims{})
	if _, ok := bare[GroupsFilterField]; ok {
		t.Error("empty claims must not produce a group filter")
	}
	if len(bare) != 1 {
		t.Errorf("acl = %+v, want tenant filter only", bare)
	}
}

func TestRouterMemoization(t *testing.T) {
	lookup := &countingLookup{inner: NewStaticLookup(StaticConfig{})}
	router := NewRouter(lookup)

	first := router.Routing("tenant-a")
	second := router.Routing("tenant-a")
	if lookup.calls != 1 {
		t.Errorf("lookup calls = %d, want 1", lookup.calls)
	}
	if first != second {
		t.Error("memoized strategies differ")
	}

	router.Invalidate("tenant-a")
	router.Routing("tenant-a")
	if lookup.calls != 2 {
		t.Errorf("lookup calls after invalidate = %d, want 2", lookup.calls)
	}
}

type countingLookup struct {
	inner *StaticLookup
	calls int
}

func (l *countingLookup) Lookup(tenantID string) types.RoutingStrategy {
	l.calls++
	return l.inner.Lookup(tenantID)
}

func TestStaticLookup(t *testing.T) {
	lookup := NewStaticLookup(StaticConfig{
		SharedIndex: "search-shared",
		ShardCount:  3,
		DedicatedTenants: []DedicatedTenant{
			{TenantID: "big-corp", ShardCount: 6, ReplicaCount: 2},
			{TenantID: "named", IndexName: "custom-index"},
		},
	})

	shared := lookup.Lookup("small-tenant")
	if shared.Strategy != types.StrategyShared || shared.IndexName != "search-shared" {
		t.Errorf("shared strategy = %+v", shared)
	}

	dedicated := lookup.Lookup("big-corp")
	if dedicated.Strategy != types.StrategyDedicated {
		t.Errorf("strategy = %s, want dedicated", dedicated.Strategy)
	}
	if dedicated.IndexName != "search-big-corp" {
		t.Errorf("index = %s, want search-big-corp", dedicated.IndexName)
	}
	if dedicated.ShardCount != 6 {
		t.Errorf("shards = %d, want 6", dedicated.ShardCount)
	}

	named := lookup.Lookup("named")
	if named.IndexName != "custom-index" {
		t.Errorf("index = %s, want custom-index", named.IndexName)
	}
}

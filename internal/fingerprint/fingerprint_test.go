package fingerprint

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/searchmux/searchmux/pkg/types"
)

func decodeRequest(t *testing.T, body string) *types.Request {
	t.Helper()
	var req types.Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return &req
}

func TestSearchKeyShape(t *testing.T) {
	req := decodeRequest(t, `{"q":"acme","page":{"size":20}}`)
	key := Search("tenant-a", req, nil)

	if !strings.HasPrefix(key, "search:tenant-a:") {
		t.Errorf("key = %q, want search:tenant-a: prefix", key)
	}
	hash := strings.TrimPrefix(key, "search:tenant-a:")
	if len(hash) != 32 {
		t.Errorf("hash length = %d, want 32 hex chars", len(hash))
	}
}

func TestSearchKeyOrderInvariance(t *testing.T) {
	a := decodeRequest(t, `{"q":"acme","filters":{"status":"active","entity":"customer"},"page":{"size":20}}`)
	b := decodeRequest(t, `{"q":"acme","filters":{"entity":"customer","status":"active"},"page":{"size":20}}`)

	if Search("t1", a, nil) != Search("t1", b, nil) {
		t.Error("filter key order changed the fingerprint")
	}
}

func TestSearchKeyNumberNormalization(t *testing.T) {
	a := decodeRequest(t, `{"filters":{"amount":{"gte":1000}},"page":{"size":20}}`)
	b := decodeRequest(t, `{"filters":{"amount":{"gte":1000.0}},"page":{"size":20}}`)

	if Search("t1", a, nil) != Search("t1", b, nil) {
		t.Error("1000 and 1000.0 produced different fingerprints")
	}
}

func TestSearchKeyExcludesTimeoutAndStrict(t *testing.T) {
	a := decodeRequest(t, `{"q":"acme","options":{"timeout_ms":100}}`)
	b := decodeRequest(t, `{"q":"acme","options":{"timeout_ms":900,"strict":true}}`)
	a.Normalize()
	b.Normalize()

	if Search("t1", a, nil) != Search("t1", b, nil) {
		t.Error("timeout_ms or strict changed the fingerprint")
	}
}

func TestSearchKeySensitiveFields(t *testing.T) {
	base := decodeRequest(t, `{"q":"acme","page":{"size":20}}`)
	baseKey := Search("t1", base, nil)

	variants := []string{
		`{"q":"acme corp","page":{"size":20}}`,
		`{"q":"acme","filters":{"status":"active"},"page":{"size":20}}`,
		`{"q":"acme","sort":[{"field":"created_at","order":"desc"}],"page":{"size":20}}`,
		`{"q":"acme","projection":["id"],"page":{"size":20}}`,
		`{"q":"acme","page":{"size":50}}`,
	}
	for _, body := range variants {
		if Search("t1", decodeRequest(t, body), nil) == baseKey {
			t.Errorf("variant %s collided with base fingerprint", body)
		}
	}
}

func TestSearchKeyTenantIsolation(t *testing.T) {
	req := decodeRequest(t, `{"q":"acme","page":{"size":20}}`)
	if Search("tenant-a", req, nil) == Search("tenant-b", req, nil) {
		t.Error("different tenants shared a fingerprint")
	}
}

func TestSearchKeyACLSeparation(t *testing.T) {
	req := decodeRequest(t, `{"q":"acme","page":{"size":20}}`)

	aclA := map[string]types.FilterValue{
		"tenant_id":  {Kind: types.FilterScalar, Scalar: "t1"},
		"acl_groups": {Kind: types.FilterArray, Values: []any{"sales"}},
	}
	aclB := map[string]types.FilterValue{
		"tenant_id":  {Kind: types.FilterScalar, Scalar: "t1"},
		"acl_groups": {Kind: types.FilterArray, Values: []any{"finance"}},
	}

	if Search("t1", req, aclA) == Search("t1", req, aclB) {
		t.Error("different ACL scopes shared a fingerprint")
	}
	if Search("t1", req, aclA) != Search("t1", req, aclA) {
		t.Error("same ACL scope produced unstable fingerprints")
	}
}

func TestSearchKeyRangeBounds(t *testing.T) {
	a := decodeRequest(t, `{"filters":{"amount":{"gte":1,"lte":10}},"page":{"size":20}}`)
	b := decodeRequest(t, `{"filters":{"amount":{"lte":10,"gte":1}},"page":{"size":20}}`)
	c := decodeRequest(t, `{"filters":{"amount":{"gt":1,"lte":10}},"page":{"size":20}}`)

	if Search("t1", a, nil) != Search("t1", b, nil) {
		t.Error("range bound order changed the fingerprint")
	}
	if Search("t1", a, nil) == Search("t1", c, nil) {
		t.Error("gte and gt collided")
	}
}

func TestSuggestKey(t *testing.T) {
	a := &types.SuggestRequest{Prefix: "ac", Entity: []string{"customer"}, Limit: 10}
	b := &types.SuggestRequest{Prefix: "ac", Entity: []string{"order"}, Limit: 10}
	c := &types.SuggestRequest{Prefix: "ac", Entity: []string{"customer"}, Limit: 10}

	if !strings.HasPrefix(Suggest("t1", a), "suggest:t1:") {
		t.Errorf("suggest key missing namespace prefix: %q", Suggest("t1", a))
	}
	if Suggest("t1", a) == Suggest("t1", b) {
		t.Error("different entity sets shared a suggest fingerprint")
	}
	if Suggest("t1", a) != Suggest("t1", c) {
		t.Error("identical suggest requests produced different fingerprints")
	}
}

package cache

import (
	"time"

	"github.com/searchmux/searchmux/pkg/types"
)

// TTLPolicy selects the cache TTL for a response. The handler owns the
// decision; the values are configuration, not contract: simple
// responses cache longest of the classified kinds, small result sets
// longer still, and everything else falls back to the short TTL.
type TTLPolicy struct {
	SimpleTTL      time.Duration // simple classifications (default: 5 minutes)
	ShortTTL       time.Duration // complex or large responses (default: 2 minutes)
	SmallResultTTL time.Duration // result sets under the threshold (default: 10 minutes)
	SuggestTTL     time.Duration // fixed /suggest TTL (default: 5 minutes)

	SmallResultThreshold int // hit count under which SmallResultTTL applies (default: 5)
}

// DefaultTTLPolicy returns the documented defaults.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		SimpleTTL:            5 * time.Minute,
		ShortTTL:             2 * time.Minute,
		SmallResultTTL:       10 * time.Minute,
		SuggestTTL:           5 * time.Minute,
		SmallResultThreshold: 5,
	}
}

// For returns the TTL for a search response given its classification
// and hit count.
func (p TTLPolicy) For(class types.Classification, hitCount int) time.Duration {
	if hitCount < p.SmallResultThreshold {
		return p.SmallResultTTL
	}
	if class.Type == types.QuerySimple {
		return p.SimpleTTL
	}
	return p.ShortTTL
}

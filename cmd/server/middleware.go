package main

import (
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/searchmux/searchmux/internal/metrics"
	"github.com/searchmux/searchmux/internal/tenant"
)

// tenantRateLimiter enforces a per-tenant token bucket at the transport
// layer. Requests without a tenant header pass through; the pipeline
// rejects them with the proper envelope.
type tenantRateLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newTenantRateLimiter(perSecond, burst int) *tenantRateLimiter {
	if burst <= 0 {
		burst = perSecond
	}
	return &tenantRateLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (l *tenantRateLimiter) limiter(tenantID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[tenantID]
	if !ok {
		lim = rate.NewLimiter(l.perSecond, l.burst)
		l.limiters[tenantID] = lim
	}
	return lim
}

// Middleware rejects over-limit tenants with 429.
func (l *tenantRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(tenant.TenantIDHeader)
		if tenantID != "" && !l.limiter(tenantID).Allow() {
			metrics.RateLimited.WithLabelValues(tenantID).Inc()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
				"error": map[string]string{
					"code":    "RATE_LIMITED",
					"message": "tenant request rate exceeded",
				},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

package syncer

import (
	"sync"

	"golang.org/x/time/rate"
)

// TenantLimiter throttles requests per tenant with a token bucket sized from
// the tenant's tier. The key is the tenant id, not the requester: devices
// sharing a tenant's credentials share the bucket. That is intentional — the
// quota belongs to the account, not the device.
type TenantLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewTenantLimiter creates an empty limiter; buckets are created lazily on
// first use.
func NewTenantLimiter() *TenantLimiter {
	return &TenantLimiter{buckets: make(map[string]*rate.Limiter)}
}

// Allow reports whether the tenant may make one more request right now.
// requestsPerMinute also caps the burst, so a quiet tenant can spend at most
// one minute's allowance at once.
func (l *TenantLimiter) Allow(tenantID string, requestsPerMinute int) bool {
	if requestsPerMinute <= 0 {
		return true
	}

	l.mu.Lock()
	bucket, ok := l.buckets[tenantID]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)
		l.buckets[tenantID] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow()
}

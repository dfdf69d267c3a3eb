package requests

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

// Throttle limits outbound requests to one resource.
// It uses a token bucket plus an optional pause requested by the server.
type Throttle struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewThrottle creates a throttle allowing policy.Limit requests per
// policy.Period, bursting up to the limit. A zero policy never waits.
func NewThrottle(policy domain.ThrottlePolicy) *Throttle {
	if policy.Limit <= 0 || policy.Period <= 0 {
		return &Throttle{}
	}
	every := policy.Period / time.Duration(policy.Limit)
	return &Throttle{
		limiter: rate.NewLimiter(rate.Every(every), policy.Limit),
	}
}

// Wait blocks until a request can be made.
// It also respects any pause set by Defer.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	retryAt := t.retryAt
	t.mu.Unlock()

	if wait := time.Until(retryAt); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if t.limiter == nil {
		return ctx.Err()
	}
	return t.limiter.Wait(ctx)
}

// Defer pauses the resource for d, typically from a Retry-After header.
// A shorter pause never shortens an existing one.
func (t *Throttle) Defer(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if until := time.Now().Add(d); until.After(t.retryAt) {
		t.retryAt = until
	}
}

// PausedUntil returns the end of the current server-requested pause.
func (t *Throttle) PausedUntil() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retryAt
}

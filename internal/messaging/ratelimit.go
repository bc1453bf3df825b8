package messaging

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles an underlying sender. Callers wait for a token,
// bounded by their context.
type RateLimited struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond sends with the given burst. A non-positive
// rate disables throttling.
func NewRateLimited(next Sender, perSecond float64, burst int) *RateLimited {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Send implements Sender.
func (r *RateLimited) Send(ctx context.Context, handle, text string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("outbound rate limit: %w", err)
	}
	return r.next.Send(ctx, handle, text)
}

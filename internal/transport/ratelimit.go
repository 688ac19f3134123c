package transport

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimited caps aggregate request throughput across all virtual users.
type rateLimited struct {
	next    Requester
	limiter *rate.Limiter
}

// RateLimited wraps a requester with a global requests-per-second cap.
// A nil limiter returns the requester unchanged.
func RateLimited(next Requester, limiter *rate.Limiter) Requester {
	if limiter == nil {
		return next
	}
	return &rateLimited{next: next, limiter: limiter}
}

func (r *rateLimited) Do(ctx context.Context, req Request) (Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}
	return r.next.Do(ctx, req)
}

func (r *rateLimited) Close() error {
	return r.next.Close()
}

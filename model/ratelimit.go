package model

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles Generate calls of the wrapped model through a shared
// token bucket.
type RateLimited struct {
	Model
	limiter *rate.Limiter
}

// NewRateLimited wraps m. A nil limiter disables throttling.
func NewRateLimited(m Model, limiter *rate.Limiter) *RateLimited {
	return &RateLimited{Model: m, limiter: limiter}
}

// NewLimiter creates a limiter allowing rps requests per second with the
// given burst. rps <= 0 yields nil (unlimited).
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Generate waits for a token before delegating to the wrapped model.
func (r *RateLimited) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			respCh := make(chan Response)
			errCh := make(chan error, 1)
			errCh <- err
			close(respCh)
			close(errCh)
			return respCh, errCh
		}
	}
	return r.Model.Generate(ctx, req)
}

// Package ratelimit paces outbound node RPC with golang.org/x/time/rate.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/fd1az/chainprobe/internal/apperror"
)

// Limiter wraps rate.Limiter. A nil or unlimited Limiter never blocks.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond with the given burst.
// A non-positive rate disables limiting.
func New(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return apperror.New(apperror.CodeRateLimitExceeded, apperror.WithCause(err))
	}
	return nil
}

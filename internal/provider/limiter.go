package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateConfig describes a token bucket admitting at most Requests
// acquisitions in any Window. Burst tokens are available up front; it is
// clamped to Requests and the refill rate shrinks to make room for it.
type RateConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// Limiter is a per-client token bucket. Waiting callers are suspended, not
// spinning, until a token is free or the wait timeout elapses.
type Limiter struct {
	provider string
	limiter  *rate.Limiter
	timeout  time.Duration
}

// NewLimiter builds a limiter for one client. A zero config disables
// limiting; a non-positive timeout waits as long as ctx allows.
func NewLimiter(providerName string, cfg RateConfig, timeout time.Duration) *Limiter {
	l := &Limiter{provider: providerName, timeout: timeout}
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		l.limiter = rate.NewLimiter(rate.Inf, 1)
		return l
	}
	burst := min(max(cfg.Burst, 1), cfg.Requests)
	// A full bucket plus the refill over one window must not exceed Requests.
	every := rate.Limit(float64(cfg.Requests-burst+1) / cfg.Window.Seconds())
	l.limiter = rate.NewLimiter(every, burst)
	return l
}

// Wait takes one token. It fails with ErrRateLimited when no token frees up
// within the wait timeout, or returns ctx's error when ctx ends first.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	if err := l.limiter.Wait(waitCtx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &ProviderError{
			Provider: l.provider,
			Kind:     KindRateLimited,
			Message:  "no request slot within " + l.timeout.String(),
			Retry:    true,
			Err:      err,
		}
	}
	return nil
}

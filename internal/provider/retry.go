package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Digital-Shane/title-resolve/internal/log"
)

// RetryPolicy bounds the exponential backoff applied to retryable failures.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy makes three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Initial: 500 * time.Millisecond, Max: 10 * time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	initial := p.Initial
	if initial <= 0 {
		initial = backoff.DefaultInitialInterval
	}
	maxInterval := p.Max
	if maxInterval <= 0 {
		maxInterval = backoff.DefaultMaxInterval
	}
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// Retry runs op until it succeeds, fails with a non-retryable error, or the
// policy's attempts are used up. Only NetworkError and RateLimited failures
// are retried.
func Retry[T any](ctx context.Context, policy RetryPolicy, providerName string, op func() (T, error)) (T, error) {
	logger := log.For("provider").WithField("provider", providerName)
	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := op()
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy.backOff(ctx), func(err error, next time.Duration) {
		logger.WithError(err).WithField("attempt", attempt).Warnf("retrying in %s", next.Round(time.Millisecond))
	})
}

package provider

import (
	"context"
	"strconv"
	"time"
)

// Runner composes the plumbing every client shares: read-through cache,
// rate limiter and bounded retry. Any of them may be nil.
type Runner struct {
	Provider string
	Cache    *Cache
	Limiter  *Limiter
	Retry    RetryPolicy
}

// RunnerOptions configures NewRunner.
type RunnerOptions struct {
	Rate      RateConfig
	RateWait  time.Duration
	Retry     RetryPolicy
	SearchTTL time.Duration
	RecordTTL time.Duration
	NoCache   bool
}

// NewRunner builds the shared plumbing for one client.
func NewRunner(providerName string, capability Capability, opts RunnerOptions) *Runner {
	r := &Runner{
		Provider: providerName,
		Limiter:  NewLimiter(providerName, opts.Rate, opts.RateWait),
		Retry:    opts.Retry,
	}
	if !opts.NoCache {
		r.Cache = NewCache(capability, opts.SearchTTL, opts.RecordTTL)
	}
	return r
}

// Call serves req from the cache or runs load behind the limiter with
// retries. Every attempt takes its own limiter token.
func Call[T any](ctx context.Context, r *Runner, req Request, load func(context.Context) (T, error)) (T, error) {
	return Fetch(ctx, r.Cache, req, func(ctx context.Context) (T, error) {
		return Retry(ctx, r.Retry, r.Provider, func() (T, error) {
			if err := r.Limiter.Wait(ctx); err != nil {
				var zero T
				return zero, err
			}
			return load(ctx)
		})
	})
}

// Pages adapts a cached page loader into a lazy search stream.
func Pages(r *Runner, op string, query Query, locale string, load func(ctx context.Context, page int) ([]SearchResult, bool, error)) *SearchResults {
	type page struct {
		Results []SearchResult
		More    bool
	}
	return NewSearchResults(func(ctx context.Context, n int) ([]SearchResult, bool, error) {
		sig := query.Title
		if query.Year > 0 {
			sig += " y" + strconv.Itoa(query.Year)
		}
		sig += " p" + strconv.Itoa(n)
		p, err := Call(ctx, r, Request{Op: op, Signature: sig, Locale: locale, Class: TTLSearch}, func(ctx context.Context) (page, error) {
			results, more, err := load(ctx, n)
			return page{Results: results, More: more}, err
		})
		if err != nil {
			return nil, false, err
		}
		return p.Results, p.More, nil
	})
}

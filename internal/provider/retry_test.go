package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Initial: time.Millisecond, Max: 5 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		failures  []error
		wantCalls int
		wantErr   error
	}{
		{
			name:      "succeeds first try",
			attempts:  3,
			wantCalls: 1,
		},
		{
			name:      "network error retried then succeeds",
			attempts:  3,
			failures:  []error{Errorf("tmdb", KindNetwork, "reset"), Errorf("tmdb", KindNetwork, "reset")},
			wantCalls: 3,
		},
		{
			name:      "rate limited retried",
			attempts:  2,
			failures:  []error{Errorf("tmdb", KindRateLimited, "429")},
			wantCalls: 2,
		},
		{
			name:      "attempts exhausted",
			attempts:  2,
			failures:  []error{Errorf("tmdb", KindNetwork, "a"), Errorf("tmdb", KindNetwork, "b"), Errorf("tmdb", KindNetwork, "c")},
			wantCalls: 2,
			wantErr:   ErrNetwork,
		},
		{
			name:      "not found surfaces immediately",
			attempts:  5,
			failures:  []error{Errorf("tmdb", KindNotFound, "no such id")},
			wantCalls: 1,
			wantErr:   ErrNotFound,
		},
		{
			name:      "auth failure surfaces immediately",
			attempts:  5,
			failures:  []error{Errorf("tvdb", KindAuthFailed, "401")},
			wantCalls: 1,
			wantErr:   ErrAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := Retry(context.Background(), fastPolicy(tt.attempts), "tmdb", func() (string, error) {
				calls++
				if calls <= len(tt.failures) {
					return "", tt.failures[calls-1]
				}
				return "done", nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Retry() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != "done" {
				t.Errorf("Retry() = %q, %v", got, err)
			}
		})
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, RetryPolicy{Attempts: 10, Initial: 50 * time.Millisecond}, "tmdb", func() (int, error) {
		calls++
		cancel()
		return 0, Errorf("tmdb", KindNetwork, "down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRunnerCall_UsesCacheAndLimiter(t *testing.T) {
	r := NewRunner("tmdb", CapabilityMovie, RunnerOptions{
		Rate:  RateConfig{Requests: 100, Window: time.Second},
		Retry: fastPolicy(2),
	})
	calls := 0
	req := Request{Op: "movie", Signature: "11", Class: TTLRecord}
	load := func(context.Context) (*Movie, error) {
		calls++
		if calls == 1 {
			return nil, Errorf("tmdb", KindNetwork, "flaky")
		}
		return &Movie{ID: "11", Title: "Star Wars"}, nil
	}

	for i := 0; i < 3; i++ {
		m, err := Call(context.Background(), r, req, load)
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if m.Title != "Star Wars" {
			t.Errorf("Call() title = %q", m.Title)
		}
	}
	if calls != 2 {
		t.Errorf("load calls = %d, want 2 (one retry, then cached)", calls)
	}
}

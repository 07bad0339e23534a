package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestProviderError(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap("tvmaze", KindNetwork, cause)

	if !errors.Is(err, ErrNetwork) {
		t.Error("wrapped error should match ErrNetwork")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should match its cause")
	}
	if got, want := err.Error(), "tvmaze: provider unreachable: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !IsRetryable(err) {
		t.Error("network errors are retryable")
	}

	outer := fmt.Errorf("fetch series: %w", err)
	if KindOf(outer) != KindNetwork {
		t.Errorf("KindOf(wrapped) = %q", KindOf(outer))
	}
}

func TestWrap_PassesContextErrors(t *testing.T) {
	if err := Wrap("tmdb", KindNetwork, context.Canceled); err != context.Canceled {
		t.Errorf("Wrap(context.Canceled) = %v", err)
	}
	if err := Wrap("tmdb", KindNetwork, nil); err != nil {
		t.Errorf("Wrap(nil) = %v", err)
	}
}

func TestIsRetryable_OutermostKindWins(t *testing.T) {
	inner := Errorf("tvdb", KindNetwork, "eof")
	outer := &ProviderError{Provider: "tvdb", Kind: KindAuthFailed, Err: inner}
	if IsRetryable(outer) {
		t.Error("auth failure must not be retried even if caused by a network error")
	}
	if !errors.Is(outer, ErrNetwork) || !errors.Is(outer, ErrAuthFailed) {
		t.Error("both kinds should remain visible to errors.Is")
	}
}

func TestStatusKind(t *testing.T) {
	tests := map[int]Kind{
		401: KindAuthFailed,
		403: KindAuthFailed,
		404: KindNotFound,
		429: KindRateLimited,
		500: KindNetwork,
		503: KindNetwork,
	}
	for status, want := range tests {
		if got := StatusKind(status); got != want {
			t.Errorf("StatusKind(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestParseSortOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    SortOrder
		wantErr bool
	}{
		{"", SortAired, false},
		{"Aired", SortAired, false},
		{"default", SortAired, false},
		{"dvd", SortDVD, false},
		{"ABSOLUTE", SortAbsolute, false},
		{"production", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSortOrder(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSortOrder(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSortOrder(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind names a failure class shown to users next to the affected file.
type Kind string

const (
	KindNetwork             Kind = "NetworkError"
	KindAuthFailed          Kind = "AuthFailed"
	KindRateLimited         Kind = "RateLimited"
	KindNotFound            Kind = "NotFound"
	KindAmbiguous           Kind = "Ambiguous"
	KindProviderUnavailable Kind = "ProviderUnavailable"
)

var (
	ErrNetwork             = errors.New("provider unreachable")
	ErrAuthFailed          = errors.New("authentication failed")
	ErrRateLimited         = errors.New("rate limit wait exceeded")
	ErrNotFound            = errors.New("not found")
	ErrAmbiguous           = errors.New("ambiguous match")
	ErrProviderUnavailable = errors.New("no provider configured")
)

var kindSentinels = map[Kind]error{
	KindNetwork:             ErrNetwork,
	KindAuthFailed:          ErrAuthFailed,
	KindRateLimited:         ErrRateLimited,
	KindNotFound:            ErrNotFound,
	KindAmbiguous:           ErrAmbiguous,
	KindProviderUnavailable: ErrProviderUnavailable,
}

// ProviderError represents an error from a provider. It matches its kind's
// sentinel with errors.Is as well as the wrapped cause.
type ProviderError struct {
	Provider   string
	Kind       Kind
	Message    string
	Retry      bool
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" {
		if sentinel, ok := kindSentinels[e.Kind]; ok {
			msg = sentinel.Error()
		} else {
			msg = string(e.Kind)
		}
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Provider == "" {
		return msg
	}
	return e.Provider + ": " + msg
}

func (e *ProviderError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Errorf builds a ProviderError of the given kind. Network and rate-limit
// failures are marked retryable.
func Errorf(providerName string, kind Kind, format string, args ...any) *ProviderError {
	return &ProviderError{
		Provider: providerName,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Retry:    kind == KindNetwork || kind == KindRateLimited,
	}
}

// Wrap attaches a kind to err. Context errors pass through untouched so that
// cancellation is never reported as a provider failure.
func Wrap(providerName string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ProviderError{
		Provider: providerName,
		Kind:     kind,
		Retry:    kind == KindNetwork || kind == KindRateLimited,
		Err:      err,
	}
}

// KindOf returns the failure kind carried by err, or "" when err is not a
// provider failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}

// IsRetryable reports whether err may succeed on a later attempt. The
// outermost ProviderError decides, so an auth failure caused by a network
// error is still not retried.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == KindNetwork || pe.Kind == KindRateLimited
	}
	return false
}

// StatusKind maps an HTTP status code to a failure kind.
func StatusKind(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuthFailed
	case status == 404:
		return KindNotFound
	case status == 429:
		return KindRateLimited
	default:
		return KindNetwork
	}
}

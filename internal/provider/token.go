package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Digital-Shane/title-resolve/internal/log"
)

// TokenState is the lifecycle position of a TokenSource.
type TokenState int

const (
	StateUnauthenticated TokenState = iota
	StateRefreshing
	StateAuthenticated
)

func (s TokenState) String() string {
	switch s {
	case StateRefreshing:
		return "refreshing"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// LoginFunc exchanges the configured credentials for a bearer token.
type LoginFunc func(ctx context.Context) (token string, expiry time.Time, err error)

// refresh is one in-flight login shared by every caller that observed it.
type refresh struct {
	done  chan struct{}
	token string
	err   error
}

// TokenSource owns a provider's bearer token. The first caller that needs a
// token, or finds it inside the leeway window before expiry, performs the
// login; concurrent callers wait for that login instead of starting their
// own. The token never leaves the source except through Do.
type TokenSource struct {
	provider string
	login    LoginFunc
	leeway   time.Duration
	now      func() time.Time

	mu       sync.Mutex
	state    TokenState
	token    string
	issued   time.Time
	expiry   time.Time
	inflight *refresh
}

// NewTokenSource creates a source in the Unauthenticated state.
func NewTokenSource(providerName string, login LoginFunc, leeway time.Duration) *TokenSource {
	return &TokenSource{
		provider: providerName,
		login:    login,
		leeway:   leeway,
		now:      time.Now,
	}
}

// State returns the current lifecycle state.
func (s *TokenSource) State() TokenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Issued returns when the current token was obtained, zero without one.
func (s *TokenSource) Issued() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}

// Expiry returns when the current token expires.
func (s *TokenSource) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry
}

func (s *TokenSource) current(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		if s.state == StateAuthenticated && s.now().Add(s.leeway).Before(s.expiry) {
			tok := s.token
			s.mu.Unlock()
			return tok, nil
		}

		if s.state == StateRefreshing {
			r := s.inflight
			s.mu.Unlock()
			select {
			case <-r.done:
			case <-ctx.Done():
				return "", ctx.Err()
			}
			if r.err != nil && isContextErr(r.err) && ctx.Err() == nil {
				continue
			}
			return r.token, r.err
		}

		r := &refresh{done: make(chan struct{})}
		s.state = StateRefreshing
		s.inflight = r
		s.mu.Unlock()

		s.runLogin(ctx, r)
		return r.token, r.err
	}
}

func (s *TokenSource) runLogin(ctx context.Context, r *refresh) {
	logger := log.For("auth").WithField("provider", s.provider)
	logger.Debug("logging in")

	tok, expiry, err := s.login(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(r.done)
	s.inflight = nil

	if err == nil && tok == "" {
		err = errors.New("login returned an empty token")
	}
	if err != nil {
		s.state = StateUnauthenticated
		s.token = ""
		s.issued = time.Time{}
		s.expiry = time.Time{}
		if isContextErr(err) {
			r.err = err
			return
		}
		logger.WithError(err).Warn("login failed")
		r.err = &ProviderError{Provider: s.provider, Kind: KindAuthFailed, Message: "login rejected", Err: err}
		return
	}

	s.state = StateAuthenticated
	s.token = tok
	s.issued = s.now()
	s.expiry = expiry
	r.token = tok
	logger.WithField("expires", expiry.Format(time.RFC3339)).Debug("logged in")
}

// Invalidate drops tok if it is still the current token, forcing the next
// caller to log in again. Tokens already replaced by a newer login are left
// alone so that concurrent rejections trigger a single re-login.
func (s *TokenSource) Invalidate(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthenticated && s.token == tok {
		s.state = StateUnauthenticated
		s.token = ""
		s.issued = time.Time{}
		s.expiry = time.Time{}
	}
}

// Do runs call with a valid token. When call reports ErrAuthFailed the token
// is invalidated and call is replayed exactly once after a fresh login.
func (s *TokenSource) Do(ctx context.Context, call func(ctx context.Context, token string) error) error {
	tok, err := s.current(ctx)
	if err != nil {
		return err
	}

	err = call(ctx, tok)
	if err == nil || !errors.Is(err, ErrAuthFailed) {
		return err
	}

	log.For("auth").WithField("provider", s.provider).Info("token rejected, logging in again")
	s.Invalidate(tok)

	tok, err = s.current(ctx)
	if err != nil {
		return err
	}
	return call(ctx, tok)
}

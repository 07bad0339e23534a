package provider

import (
	"fmt"
	"sort"
	"time"
)

// Config carries already-validated provider settings. Loading and merging
// happen elsewhere; nothing here reads files or the environment.
type Config struct {
	Locale        string
	RetryAttempts int
	RateWait      time.Duration
	SearchTTL     time.Duration
	RecordTTL     time.Duration

	// Movie and Series name the preferred client per capability. Empty
	// selects the first configured one.
	Movie  string
	Series string

	TMDB   TMDBConfig
	TVDB   TVDBConfig
	OMDb   OMDbConfig
	TVmaze TVmazeConfig
	AniDB  AniDBConfig
}

type TMDBConfig struct {
	APIKey string
	Rate   RateConfig
}

type TVDBConfig struct {
	APIKey  string
	PIN     string
	BaseURL string
	Rate    RateConfig
}

type OMDbConfig struct {
	APIKey  string
	BaseURL string
	Rate    RateConfig
}

type TVmazeConfig struct {
	Disabled bool
	BaseURL  string
	Rate     RateConfig
}

// AniDBConfig holds the client name and version registered with AniDB. The
// client is only available when Client is set.
type AniDBConfig struct {
	Client        string
	ClientVersion int
	BaseURL       string
	TitlesURL     string
	Rate          RateConfig
}

// RunnerOptions derives the shared client plumbing settings from c.
func (c Config) RunnerOptions(rate RateConfig) RunnerOptions {
	policy := DefaultRetryPolicy()
	if c.RetryAttempts > 0 {
		policy.Attempts = c.RetryAttempts
	}
	return RunnerOptions{
		Rate:      rate,
		RateWait:  c.RateWait,
		Retry:     policy,
		SearchTTL: c.SearchTTL,
		RecordTTL: c.RecordTTL,
	}
}

// Registry holds the configured client for each capability. It is built
// once and passed to whoever needs a client; it performs no I/O.
type Registry struct {
	movie  MovieClient
	series SeriesClient
}

// NewRegistry wires the given clients. Either may be nil.
func NewRegistry(movie MovieClient, series SeriesClient) *Registry {
	return &Registry{movie: movie, series: series}
}

// Resolve returns the client for capability c.
func (r *Registry) Resolve(c Capability) (Client, error) {
	switch c {
	case CapabilityMovie:
		if r.movie != nil {
			return r.movie, nil
		}
	case CapabilitySeries:
		if r.series != nil {
			return r.series, nil
		}
	default:
		return nil, fmt.Errorf("unknown capability %q: %w", c, ErrProviderUnavailable)
	}
	return nil, &ProviderError{Kind: KindProviderUnavailable, Message: fmt.Sprintf("no %s provider configured", c)}
}

// Movie returns the movie identification client.
func (r *Registry) Movie() (MovieClient, error) {
	if _, err := r.Resolve(CapabilityMovie); err != nil {
		return nil, err
	}
	return r.movie, nil
}

// Series returns the episode listing client.
func (r *Registry) Series() (SeriesClient, error) {
	if _, err := r.Resolve(CapabilitySeries); err != nil {
		return nil, err
	}
	return r.series, nil
}

// Capabilities lists the configured capabilities in a stable order.
func (r *Registry) Capabilities() []Capability {
	var caps []Capability
	if r.movie != nil {
		caps = append(caps, CapabilityMovie)
	}
	if r.series != nil {
		caps = append(caps, CapabilitySeries)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// Describe maps each configured capability to its client name.
func (r *Registry) Describe() map[Capability]string {
	out := make(map[Capability]string, 2)
	if r.movie != nil {
		out[CapabilityMovie] = r.movie.Name()
	}
	if r.series != nil {
		out[CapabilitySeries] = r.series.Name()
	}
	return out
}

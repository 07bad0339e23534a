// Package tmdb implements movie and series clients backed by The Movie
// Database through go-tmdb.
package tmdb

import (
	"strconv"
	"strings"
	"time"

	"github.com/ryanbradynd05/go-tmdb"

	"github.com/Digital-Shane/title-resolve/internal/provider"
)

const (
	providerName  = "tmdb"
	defaultLocale = "en-US"
	pageSize      = 20
	maxPages      = 3
)

// DefaultRate is TMDb's documented ceiling, kept just under 40 per 10s.
var DefaultRate = provider.RateConfig{Requests: 38, Window: 10 * time.Second}

// API is the subset of *tmdb.TMDb used here; tests substitute a fake.
type API interface {
	SearchMovie(name string, options map[string]string) (*tmdb.MovieSearchResults, error)
	SearchTv(name string, options map[string]string) (*tmdb.TvSearchResults, error)
	GetMovieInfo(id int, options map[string]string) (*tmdb.Movie, error)
	GetTvInfo(id int, options map[string]string) (*tmdb.TV, error)
	GetTvSeasonInfo(showID, seasonID int, options map[string]string) (*tmdb.TvSeason, error)
}

// NewAPI initialises the go-tmdb client for apiKey.
func NewAPI(apiKey string) API {
	return tmdb.Init(tmdb.Config{
		APIKey:   apiKey,
		Proxies:  nil,
		UseProxy: false,
	})
}

// Options configures both TMDb clients.
type Options struct {
	API    API
	Runner *provider.Runner
}

func language(locale string) string {
	if locale == "" {
		return defaultLocale
	}
	return locale
}

func parseID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || n <= 0 {
		return 0, provider.Errorf(providerName, provider.KindNotFound, "invalid tmdb id %q", id)
	}
	return n, nil
}

// yearOf extracts the year from a YYYY-MM-DD date.
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}

// mapError classifies go-tmdb failures. The library reports HTTP failures as
// plain errors carrying the status text, so classification is by content.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	kind := provider.KindNetwork
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key"):
		kind = provider.KindAuthFailed
	case strings.Contains(msg, "404") || strings.Contains(msg, "could not be found") || strings.Contains(msg, "not found"):
		kind = provider.KindNotFound
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		kind = provider.KindRateLimited
	}
	return provider.Wrap(providerName, kind, err)
}

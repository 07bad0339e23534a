// Package providers constructs the concrete clients behind a
// provider.Registry from configuration.
package providers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Digital-Shane/title-resolve/internal/log"
	"github.com/Digital-Shane/title-resolve/internal/provider"
	"github.com/Digital-Shane/title-resolve/internal/provider/anidb"
	"github.com/Digital-Shane/title-resolve/internal/provider/omdb"
	"github.com/Digital-Shane/title-resolve/internal/provider/tmdb"
	"github.com/Digital-Shane/title-resolve/internal/provider/tvdb"
	"github.com/Digital-Shane/title-resolve/internal/provider/tvmaze"
)

// Names accepted for Config.Movie and Config.Series.
var (
	MovieProviders  = []string{"tmdb", "omdb"}
	SeriesProviders = []string{"tvdb", "tmdb", "tvmaze", "anidb"}
)

// Build creates the registry for cfg. Without an explicit choice the movie
// client is TMDb, then OMDb, whichever has a key; the series client is
// TheTVDB, then TMDb, then the keyless TVmaze, then AniDB when a client name
// is registered. A named client that lacks credentials is an error.
func Build(cfg provider.Config) (*provider.Registry, error) {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	b := &builder{cfg: cfg, http: httpClient}

	movie, err := b.movie()
	if err != nil {
		return nil, err
	}
	series, err := b.series()
	if err != nil {
		return nil, err
	}

	logger := log.For("providers")
	if movie != nil {
		logger.WithField("client", movie.Name()).Debug("movie client ready")
	} else {
		logger.Warn("no movie client configured")
	}
	if series != nil {
		logger.WithField("client", series.Name()).Debug("series client ready")
	} else {
		logger.Warn("no series client configured")
	}
	return provider.NewRegistry(movie, series), nil
}

type builder struct {
	cfg  provider.Config
	http *http.Client

	tmdbAPI     tmdb.API
	tmdbLimiter *provider.Limiter
}

func (b *builder) movie() (provider.MovieClient, error) {
	name := strings.ToLower(strings.TrimSpace(b.cfg.Movie))
	switch name {
	case "":
		switch {
		case b.cfg.TMDB.APIKey != "":
			return b.tmdbMovie(), nil
		case b.cfg.OMDb.APIKey != "":
			return b.omdb(), nil
		}
		return nil, nil
	case "tmdb":
		if b.cfg.TMDB.APIKey == "" {
			return nil, missingKey("tmdb")
		}
		return b.tmdbMovie(), nil
	case "omdb":
		if b.cfg.OMDb.APIKey == "" {
			return nil, missingKey("omdb")
		}
		return b.omdb(), nil
	}
	return nil, fmt.Errorf("unknown movie provider %q (want one of %s)", name, strings.Join(MovieProviders, ", "))
}

func (b *builder) series() (provider.SeriesClient, error) {
	name := strings.ToLower(strings.TrimSpace(b.cfg.Series))
	switch name {
	case "":
		switch {
		case b.cfg.TVDB.APIKey != "":
			return b.tvdb(), nil
		case b.cfg.TMDB.APIKey != "":
			return b.tmdbSeries(), nil
		case !b.cfg.TVmaze.Disabled:
			return b.tvmaze(), nil
		case b.cfg.AniDB.Client != "":
			return b.anidb(), nil
		}
		return nil, nil
	case "tvdb":
		if b.cfg.TVDB.APIKey == "" {
			return nil, missingKey("tvdb")
		}
		return b.tvdb(), nil
	case "tmdb":
		if b.cfg.TMDB.APIKey == "" {
			return nil, missingKey("tmdb")
		}
		return b.tmdbSeries(), nil
	case "tvmaze":
		return b.tvmaze(), nil
	case "anidb":
		if b.cfg.AniDB.Client == "" {
			return nil, provider.Errorf("anidb", provider.KindProviderUnavailable, "anidb selected but no client name configured")
		}
		return b.anidb(), nil
	}
	return nil, fmt.Errorf("unknown series provider %q (want one of %s)", name, strings.Join(SeriesProviders, ", "))
}

func missingKey(name string) error {
	return provider.Errorf(name, provider.KindProviderUnavailable, "%s selected but no api key configured", name)
}

func rateOr(rate, fallback provider.RateConfig) provider.RateConfig {
	if rate.Requests > 0 && rate.Window > 0 {
		return rate
	}
	return fallback
}

// tmdbRunner builds a runner for one TMDb capability. Both capabilities
// draw from a single limiter since the quota is per API key.
func (b *builder) tmdbRunner(capability provider.Capability) *provider.Runner {
	rate := rateOr(b.cfg.TMDB.Rate, tmdb.DefaultRate)
	r := provider.NewRunner("tmdb", capability, b.cfg.RunnerOptions(rate))
	if b.tmdbLimiter == nil {
		b.tmdbLimiter = r.Limiter
	}
	r.Limiter = b.tmdbLimiter
	if b.tmdbAPI == nil {
		b.tmdbAPI = tmdb.NewAPI(b.cfg.TMDB.APIKey)
	}
	return r
}

func (b *builder) tmdbMovie() provider.MovieClient {
	r := b.tmdbRunner(provider.CapabilityMovie)
	return tmdb.NewMovieClient(tmdb.Options{API: b.tmdbAPI, Runner: r})
}

func (b *builder) tmdbSeries() provider.SeriesClient {
	r := b.tmdbRunner(provider.CapabilitySeries)
	return tmdb.NewSeriesClient(tmdb.Options{API: b.tmdbAPI, Runner: r})
}

func (b *builder) omdb() provider.MovieClient {
	rate := rateOr(b.cfg.OMDb.Rate, omdb.DefaultRate)
	return omdb.New(omdb.Options{
		APIKey:     b.cfg.OMDb.APIKey,
		BaseURL:    b.cfg.OMDb.BaseURL,
		HTTPClient: b.http,
		Runner:     provider.NewRunner("omdb", provider.CapabilityMovie, b.cfg.RunnerOptions(rate)),
	})
}

func (b *builder) tvdb() provider.SeriesClient {
	rate := rateOr(b.cfg.TVDB.Rate, tvdb.DefaultRate)
	return tvdb.New(tvdb.Options{
		APIKey:     b.cfg.TVDB.APIKey,
		PIN:        b.cfg.TVDB.PIN,
		BaseURL:    b.cfg.TVDB.BaseURL,
		HTTPClient: b.http,
		Runner:     provider.NewRunner("tvdb", provider.CapabilitySeries, b.cfg.RunnerOptions(rate)),
	})
}

func (b *builder) tvmaze() provider.SeriesClient {
	rate := rateOr(b.cfg.TVmaze.Rate, tvmaze.DefaultRate)
	return tvmaze.New(tvmaze.Options{
		BaseURL:    b.cfg.TVmaze.BaseURL,
		HTTPClient: b.http,
		Runner:     provider.NewRunner("tvmaze", provider.CapabilitySeries, b.cfg.RunnerOptions(rate)),
	})
}

func (b *builder) anidb() provider.SeriesClient {
	rate := rateOr(b.cfg.AniDB.Rate, anidb.DefaultRate)
	return anidb.New(anidb.Options{
		Client:        b.cfg.AniDB.Client,
		ClientVersion: b.cfg.AniDB.ClientVersion,
		BaseURL:       b.cfg.AniDB.BaseURL,
		TitlesURL:     b.cfg.AniDB.TitlesURL,
		HTTPClient:    b.http,
		Runner:        provider.NewRunner("anidb", provider.CapabilitySeries, b.cfg.RunnerOptions(rate)),
	})
}

package tmdb

import (
	"context"
	"strconv"

	"github.com/ryanbradynd05/go-tmdb"

	"github.com/Digital-Shane/title-resolve/internal/provider"
)

// MovieClient identifies films on TMDb.
type MovieClient struct {
	api    API
	runner *provider.Runner
}

// NewMovieClient creates a movie client. A nil Runner disables caching,
// limiting and retries.
func NewMovieClient(opts Options) *MovieClient {
	runner := opts.Runner
	if runner == nil {
		runner = &provider.Runner{Provider: providerName}
	}
	return &MovieClient{api: opts.API, runner: runner}
}

func (c *MovieClient) Name() string                    { return providerName }
func (c *MovieClient) Capability() provider.Capability { return provider.CapabilityMovie }

// SearchMovies queries /search/movie lazily, up to three pages.
func (c *MovieClient) SearchMovies(ctx context.Context, query provider.Query, locale string) *provider.SearchResults {
	return provider.Pages(c.runner, "search", query, locale, func(ctx context.Context, page int) ([]provider.SearchResult, bool, error) {
		options := map[string]string{
			"language": language(locale),
			"page":     strconv.Itoa(page),
		}
		if query.Year > 0 {
			options["year"] = strconv.Itoa(query.Year)
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		res, err := c.api.SearchMovie(query.Title, options)
		if err != nil {
			return nil, false, mapError(err)
		}
		if res == nil {
			return nil, false, nil
		}
		out := make([]provider.SearchResult, 0, len(res.Results))
		for _, m := range res.Results {
			out = append(out, movieShortToResult(m))
		}
		return out, len(res.Results) >= pageSize && page < maxPages, nil
	})
}

// FetchMovie returns the full record for id.
func (c *MovieClient) FetchMovie(ctx context.Context, id string, locale string) (*provider.Movie, error) {
	tmdbID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	req := provider.Request{Op: "movie", Signature: id, Locale: locale, Class: provider.TTLRecord}
	return provider.Call(ctx, c.runner, req, func(ctx context.Context) (*provider.Movie, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := c.api.GetMovieInfo(tmdbID, map[string]string{"language": language(locale)})
		if err != nil {
			return nil, mapError(err)
		}
		if m == nil {
			return nil, provider.Errorf(providerName, provider.KindNotFound, "movie %s not found", id)
		}
		return movieToRecord(m, locale), nil
	})
}

func movieShortToResult(m tmdb.MovieShort) provider.SearchResult {
	return provider.SearchResult{
		ID:       strconv.Itoa(m.ID),
		Title:    m.Title,
		Year:     yearOf(m.ReleaseDate),
		Date:     m.ReleaseDate,
		Provider: providerName,
	}
}

func movieToRecord(m *tmdb.Movie, locale string) *provider.Movie {
	genres := make([]string, 0, len(m.Genres))
	for _, g := range m.Genres {
		genres = append(genres, g.Name)
	}
	loc := language(locale)
	return &provider.Movie{
		ID:              strconv.Itoa(m.ID),
		Provider:        providerName,
		Locale:          loc,
		Title:           m.Title,
		Year:            yearOf(m.ReleaseDate),
		ReleaseDate:     m.ReleaseDate,
		ImdbID:          m.ImdbID,
		Overview:        m.Overview,
		Genres:          genres,
		Runtime:         int(m.Runtime),
		Rating:          float64(m.VoteAverage),
		LocalizedTitles: map[string]string{loc: m.Title},
	}
}

package tmdb

import (
	"context"
	"errors"
	"strconv"

	"github.com/ryanbradynd05/go-tmdb"

	"github.com/Digital-Shane/title-resolve/internal/log"
	"github.com/Digital-Shane/title-resolve/internal/provider"
)

// SeriesClient lists TV series and episodes from TMDb.
type SeriesClient struct {
	api    API
	runner *provider.Runner
}

// NewSeriesClient creates a series client.
func NewSeriesClient(opts Options) *SeriesClient {
	runner := opts.Runner
	if runner == nil {
		runner = &provider.Runner{Provider: providerName}
	}
	return &SeriesClient{api: opts.API, runner: runner}
}

func (c *SeriesClient) Name() string                    { return providerName }
func (c *SeriesClient) Capability() provider.Capability { return provider.CapabilitySeries }

// SearchSeries queries /search/tv lazily.
func (c *SeriesClient) SearchSeries(ctx context.Context, query provider.Query, locale string) *provider.SearchResults {
	return provider.Pages(c.runner, "search", query, locale, func(ctx context.Context, page int) ([]provider.SearchResult, bool, error) {
		options := map[string]string{
			"language": language(locale),
			"page":     strconv.Itoa(page),
		}
		if query.Year > 0 {
			options["first_air_date_year"] = strconv.Itoa(query.Year)
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		res, err := c.api.SearchTv(query.Title, options)
		if err != nil {
			return nil, false, mapError(err)
		}
		if res == nil {
			return nil, false, nil
		}
		out := make([]provider.SearchResult, 0, len(res.Results))
		for _, s := range res.Results {
			out = append(out, provider.SearchResult{
				ID:            strconv.Itoa(s.ID),
				Title:         s.Name,
				OriginalTitle: s.OriginalName,
				Year:          yearOf(s.FirstAirDate),
				Date:          s.FirstAirDate,
				Provider:      providerName,
			})
		}
		return out, len(res.Results) >= pageSize && page < maxPages, nil
	})
}

// FetchSeries returns the series record with its external ids.
func (c *SeriesClient) FetchSeries(ctx context.Context, id string, locale string) (*provider.SeriesInfo, error) {
	showID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	show, err := c.show(ctx, showID, locale)
	if err != nil {
		return nil, err
	}
	return seriesToRecord(show, locale), nil
}

func (c *SeriesClient) show(ctx context.Context, showID int, locale string) (*tmdb.TV, error) {
	req := provider.Request{Op: "tv", Signature: strconv.Itoa(showID), Locale: locale, Class: provider.TTLRecord}
	return provider.Call(ctx, c.runner, req, func(ctx context.Context) (*tmdb.TV, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		show, err := c.api.GetTvInfo(showID, map[string]string{
			"language":           language(locale),
			"append_to_response": "external_ids",
		})
		if err != nil {
			return nil, mapError(err)
		}
		if show == nil {
			return nil, provider.Errorf(providerName, provider.KindNotFound, "series %d not found", showID)
		}
		return show, nil
	})
}

// FetchEpisodes walks every season of the show. TMDb has no DVD or
// absolute ordering, so those requests are served in aired order.
func (c *SeriesClient) FetchEpisodes(ctx context.Context, seriesID string, order provider.SortOrder, locale string) ([]provider.Episode, error) {
	showID, err := parseID(seriesID)
	if err != nil {
		return nil, err
	}
	if order == provider.SortDVD {
		log.For(providerName).WithField("series", seriesID).Debug("dvd order unavailable, using aired order")
	}

	show, err := c.show(ctx, showID, locale)
	if err != nil {
		return nil, err
	}

	var all []provider.Episode
	for season := 0; season <= show.NumberOfSeasons; season++ {
		eps, err := c.season(ctx, showID, season, locale)
		if err != nil {
			if season == 0 && errors.Is(err, provider.ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, ep := range eps {
			ep.SeriesID = seriesID
			ep.Order = order
			all = append(all, ep)
		}
	}

	return provider.ArrangeEpisodes(all, order), nil
}

func (c *SeriesClient) season(ctx context.Context, showID, season int, locale string) ([]provider.Episode, error) {
	req := provider.Request{
		Op:        "season",
		Signature: strconv.Itoa(showID) + "/" + strconv.Itoa(season),
		Locale:    locale,
		Class:     provider.TTLRecord,
	}
	return provider.Call(ctx, c.runner, req, func(ctx context.Context) ([]provider.Episode, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := c.api.GetTvSeasonInfo(showID, season, map[string]string{"language": language(locale)})
		if err != nil {
			return nil, mapError(err)
		}
		if s == nil {
			return nil, provider.Errorf(providerName, provider.KindNotFound, "season %d not found", season)
		}
		eps := make([]provider.Episode, 0, len(s.Episodes))
		for _, e := range s.Episodes {
			seasonNumber := e.SeasonNumber
			if seasonNumber == 0 {
				seasonNumber = s.SeasonNumber
			}
			eps = append(eps, provider.Episode{
				ID:       strconv.Itoa(e.ID),
				Season:   seasonNumber,
				Number:   e.EpisodeNumber,
				Title:    e.Name,
				AirDate:  e.AirDate,
				Overview: e.Overview,
			})
		}
		return eps, nil
	})
}

func seriesToRecord(show *tmdb.TV, locale string) *provider.SeriesInfo {
	loc := language(locale)
	info := &provider.SeriesInfo{
		ID:             strconv.Itoa(show.ID),
		Provider:       providerName,
		Locale:         loc,
		Name:           show.Name,
		Year:           yearOf(show.FirstAirDate),
		FirstAired:     show.FirstAirDate,
		Overview:       show.Overview,
		Order:          provider.SortAired,
		LocalizedNames: map[string]string{loc: show.Name},
		ExternalIDs:    map[string]string{"tmdb": strconv.Itoa(show.ID)},
	}
	if show.ExternalIDs != nil && show.ExternalIDs.ImdbID != "" {
		info.ExternalIDs["imdb"] = show.ExternalIDs.ImdbID
	}
	return info
}

// Package tvdb is a series client for TheTVDB v4 API. Every request carries
// a bearer token obtained from /login and owned by a provider.TokenSource.
package tvdb

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/Digital-Shane/title-resolve/internal/provider"
)

const (
	providerName   = "tvdb"
	DefaultBaseURL = "https://api4.thetvdb.com/v4"
	searchLimit    = 50
	maxSearchPages = 2
	maxEpisodePage = 50

	// tokenLifetime is the documented validity of a v4 token.
	tokenLifetime = 30 * 24 * time.Hour
	tokenLeeway   = time.Hour
)

// DefaultRate stays well inside TheTVDB's undocumented fair-use limit.
var DefaultRate = provider.RateConfig{Requests: 20, Window: time.Second}

// Options configures a Client.
type Options struct {
	APIKey     string
	PIN        string
	BaseURL    string
	HTTPClient *http.Client
	Runner     *provider.Runner
	// Now overrides the clock used for token expiry.
	Now func() time.Time
}

// Client implements provider.SeriesClient.
type Client struct {
	baseURL string
	apiKey  string
	pin     string
	http    *http.Client
	runner  *provider.Runner
	tokens  *provider.TokenSource
	now     func() time.Time
}

// New creates a client. No request is made until the first call.
func New(opts Options) *Client {
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  strings.TrimSpace(opts.APIKey),
		pin:     strings.TrimSpace(opts.PIN),
		http:    opts.HTTPClient,
		runner:  opts.Runner,
		now:     opts.Now,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.runner == nil {
		c.runner = &provider.Runner{Provider: providerName}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.tokens = provider.NewTokenSource(providerName, c.login, tokenLeeway)
	return c
}

func (c *Client) Name() string                    { return providerName }
func (c *Client) Capability() provider.Capability { return provider.CapabilitySeries }

// TokenState exposes the authentication state for diagnostics.
func (c *Client) TokenState() provider.TokenState { return c.tokens.State() }

type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
	Links  struct {
		Next *string `json:"next"`
	} `json:"links"`
}

func (c *Client) login(ctx context.Context) (string, time.Time, error) {
	if c.apiKey == "" {
		return "", time.Time{}, provider.Errorf(providerName, provider.KindAuthFailed, "api key not configured")
	}
	body := map[string]string{"apikey": c.apiKey}
	if c.pin != "" {
		body["pin"] = c.pin
	}

	var resp envelope[struct {
		Token string `json:"token"`
	}]
	issued := c.now()
	err := c.runner.Limiter.Wait(ctx)
	if err == nil {
		err = provider.DoJSON(ctx, c.http, providerName, provider.JSONRequest{
			Method: http.MethodPost,
			URL:    c.baseURL + "/login",
			Body:   body,
		}, &resp)
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return resp.Data.Token, issued.Add(tokenLifetime), nil
}

// get performs an authenticated GET. A 401 inside the call surfaces as
// ErrAuthFailed, which makes the token source log in again and replay once.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.tokens.Do(ctx, func(ctx context.Context, token string) error {
		if err := c.runner.Limiter.Wait(ctx); err != nil {
			return err
		}
		return provider.DoJSON(ctx, c.http, providerName, provider.JSONRequest{
			URL:    u,
			Header: http.Header{"Authorization": {"Bearer " + token}},
		}, out)
	})
}

// retried wraps get with the cache and retry policy. The limiter runs
// inside get so that a re-login and its replay both take a slot.
func retried[T any](ctx context.Context, c *Client, req provider.Request, load func(context.Context) (T, error)) (T, error) {
	return provider.Fetch(ctx, c.runner.Cache, req, func(ctx context.Context) (T, error) {
		return provider.Retry(ctx, c.runner.Retry, providerName, func() (T, error) {
			return load(ctx)
		})
	})
}

type searchRecord struct {
	TVDBID       string            `json:"tvdb_id"`
	Name         string            `json:"name"`
	Year         string            `json:"year"`
	FirstAirTime string            `json:"first_air_time"`
	Translations map[string]string `json:"translations"`
	Type         string            `json:"type"`
}

type searchPage struct {
	Results []provider.SearchResult
	More    bool
}

// SearchSeries queries /search restricted to series.
func (c *Client) SearchSeries(ctx context.Context, query provider.Query, locale string) *provider.SearchResults {
	lang := iso3(locale)
	return provider.NewSearchResults(func(ctx context.Context, page int) ([]provider.SearchResult, bool, error) {
		sig := query.Title + " y" + strconv.Itoa(query.Year) + " p" + strconv.Itoa(page)
		req := provider.Request{Op: "search", Signature: sig, Locale: locale, Class: provider.TTLSearch}
		p, err := retried(ctx, c, req, func(ctx context.Context) (searchPage, error) {
			params := url.Values{}
			params.Set("query", query.Title)
			params.Set("type", "series")
			params.Set("limit", strconv.Itoa(searchLimit))
			params.Set("offset", strconv.Itoa((page-1)*searchLimit))
			if query.Year > 0 {
				params.Set("year", strconv.Itoa(query.Year))
			}
			var resp envelope[[]searchRecord]
			if err := c.get(ctx, "/search", params, &resp); err != nil {
				return searchPage{}, err
			}
			out := make([]provider.SearchResult, 0, len(resp.Data))
			for _, r := range resp.Data {
				if r.Type != "" && r.Type != "series" {
					continue
				}
				title := r.Name
				if t := r.Translations[lang]; lang != "" && t != "" {
					title = t
				}
				out = append(out, provider.SearchResult{
					ID:            r.TVDBID,
					Title:         title,
					OriginalTitle: r.Name,
					Year:          atoi(r.Year),
					Date:          r.FirstAirTime,
					Provider:      providerName,
				})
			}
			more := resp.Links.Next != nil && *resp.Links.Next != "" && page < maxSearchPages
			return searchPage{Results: out, More: more}, nil
		})
		if err != nil {
			return nil, false, err
		}
		return p.Results, p.More, nil
	})
}

type remoteID struct {
	ID         string `json:"id"`
	SourceName string `json:"sourceName"`
}

type seriesRecord struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Year             string `json:"year"`
	FirstAired       string `json:"firstAired"`
	Overview         string `json:"overview"`
	Image            string `json:"image"`
	OriginalLanguage string `json:"originalLanguage"`
	Status           *struct {
		Name string `json:"name"`
	} `json:"status"`
	OriginalNetwork *struct {
		Name string `json:"name"`
	} `json:"originalNetwork"`
	RemoteIDs []remoteID `json:"remoteIds"`
	Artworks  []struct {
		Type  int    `json:"type"`
		Image string `json:"image"`
	} `json:"artworks"`
}

type translation struct {
	Name     string `json:"name"`
	Overview string `json:"overview"`
	Language string `json:"language"`
}

// FetchSeries returns /series/{id}/extended, translated when locale names a
// language TheTVDB knows.
func (c *Client) FetchSeries(ctx context.Context, id string, locale string) (*provider.SeriesInfo, error) {
	if _, err := seriesID(id); err != nil {
		return nil, err
	}
	req := provider.Request{Op: "series", Signature: id, Locale: locale, Class: provider.TTLRecord}
	return retried(ctx, c, req, func(ctx context.Context) (*provider.SeriesInfo, error) {
		var resp envelope[seriesRecord]
		if err := c.get(ctx, "/series/"+id+"/extended", url.Values{"short": {"true"}}, &resp); err != nil {
			return nil, err
		}
		info := seriesToRecord(resp.Data, locale)

		if lang := iso3(locale); lang != "" && lang != resp.Data.OriginalLanguage {
			var tr envelope[translation]
			err := c.get(ctx, "/series/"+id+"/translations/"+lang, nil, &tr)
			switch {
			case err == nil && tr.Data.Name != "":
				info.Name = tr.Data.Name
				info.LocalizedNames[locale] = tr.Data.Name
				if tr.Data.Overview != "" {
					info.Overview = tr.Data.Overview
				}
			case err != nil && provider.KindOf(err) != provider.KindNotFound:
				return nil, err
			}
		}
		return info, nil
	})
}

type episodeRecord struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Aired          string `json:"aired"`
	SeasonNumber   int    `json:"seasonNumber"`
	Number         int    `json:"number"`
	AbsoluteNumber int    `json:"absoluteNumber"`
	Overview       string `json:"overview"`
}

// FetchEpisodes pages through /series/{id}/episodes/{season-type}.
func (c *Client) FetchEpisodes(ctx context.Context, id string, order provider.SortOrder, locale string) ([]provider.Episode, error) {
	if _, err := seriesID(id); err != nil {
		return nil, err
	}
	path := "/series/" + id + "/episodes/" + seasonType(order)
	if lang := iso3(locale); lang != "" {
		path += "/" + lang
	}

	req := provider.Request{Op: "episodes", Signature: id + "/" + string(order), Locale: locale, Class: provider.TTLRecord}
	return retried(ctx, c, req, func(ctx context.Context) ([]provider.Episode, error) {
		var eps []provider.Episode
		for page := 0; page < maxEpisodePage; page++ {
			var resp envelope[struct {
				Episodes []episodeRecord `json:"episodes"`
			}]
			if err := c.get(ctx, path, url.Values{"page": {strconv.Itoa(page)}}, &resp); err != nil {
				return nil, err
			}
			for _, e := range resp.Data.Episodes {
				eps = append(eps, provider.Episode{
					SeriesID: id,
					ID:       strconv.Itoa(e.ID),
					Order:    order,
					Season:   e.SeasonNumber,
					Number:   e.Number,
					Absolute: e.AbsoluteNumber,
					Title:    e.Name,
					AirDate:  e.Aired,
					Overview: e.Overview,
				})
			}
			if resp.Links.Next == nil || *resp.Links.Next == "" || len(resp.Data.Episodes) == 0 {
				break
			}
		}
		return provider.ArrangeEpisodes(eps, order), nil
	})
}

func seasonType(order provider.SortOrder) string {
	switch order {
	case provider.SortDVD:
		return "dvd"
	case provider.SortAbsolute:
		return "absolute"
	default:
		return "default"
	}
}

func seriesToRecord(s seriesRecord, locale string) *provider.SeriesInfo {
	info := &provider.SeriesInfo{
		ID:             strconv.Itoa(s.ID),
		Provider:       providerName,
		Locale:         locale,
		Name:           s.Name,
		OriginalName:   s.Name,
		Year:           atoi(s.Year),
		FirstAired:     s.FirstAired,
		Overview:       s.Overview,
		Order:          provider.SortAired,
		LocalizedNames: map[string]string{},
		ExternalIDs:    map[string]string{"tvdb": strconv.Itoa(s.ID)},
		Images:         provider.Images{Poster: s.Image},
	}
	if info.Year == 0 && len(s.FirstAired) >= 4 {
		info.Year = atoi(s.FirstAired[:4])
	}
	if s.Status != nil {
		info.Status = s.Status.Name
	}
	if s.OriginalNetwork != nil {
		info.Network = s.OriginalNetwork.Name
	}
	for _, r := range s.RemoteIDs {
		switch strings.ToLower(r.SourceName) {
		case "imdb":
			info.ExternalIDs["imdb"] = r.ID
		case "themoviedb.com", "tmdb":
			info.ExternalIDs["tmdb"] = r.ID
		case "tv maze", "tvmaze":
			info.ExternalIDs["tvmaze"] = r.ID
		}
	}
	for _, a := range s.Artworks {
		// type 3 is a series background
		if a.Type == 3 && info.Images.Backdrop == "" {
			info.Images.Backdrop = a.Image
		}
	}
	return info
}

func seriesID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || n <= 0 {
		return 0, provider.Errorf(providerName, provider.KindNotFound, "invalid tvdb id %q", id)
	}
	return n, nil
}

// iso3 maps a BCP 47 locale to the three letter code TheTVDB uses.
func iso3(locale string) string {
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return base.ISO3()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

var _ provider.SeriesClient = (*Client)(nil)

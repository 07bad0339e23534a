// Package tvmaze is a keyless series client for api.tvmaze.com.
package tvmaze

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Digital-Shane/title-resolve/internal/log"
	"github.com/Digital-Shane/title-resolve/internal/provider"
)

const (
	providerName   = "tvmaze"
	DefaultBaseURL = "https://api.tvmaze.com"
)

// DefaultRate is TVmaze's published 20 calls per 10 seconds.
var DefaultRate = provider.RateConfig{Requests: 20, Window: 10 * time.Second}

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Runner     *provider.Runner
}

// Client implements provider.SeriesClient. TVmaze publishes English data in
// aired order only.
type Client struct {
	baseURL string
	http    *http.Client
	runner  *provider.Runner
}

// New creates a client.
func New(opts Options) *Client {
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		runner:  opts.Runner,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.runner == nil {
		c.runner = &provider.Runner{Provider: providerName}
	}
	return c
}

func (c *Client) Name() string                    { return providerName }
func (c *Client) Capability() provider.Capability { return provider.CapabilitySeries }

type show struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Premiered string `json:"premiered"`
	Status    string `json:"status"`
	Summary   string `json:"summary"`
	Language  string `json:"language"`
	Network   *struct {
		Name string `json:"name"`
	} `json:"network"`
	WebChannel *struct {
		Name string `json:"name"`
	} `json:"webChannel"`
	Externals struct {
		TVRage  *int    `json:"tvrage"`
		TheTVDB *int    `json:"thetvdb"`
		IMDb    *string `json:"imdb"`
	} `json:"externals"`
	Image *struct {
		Original string `json:"original"`
	} `json:"image"`
}

type episode struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Season  int    `json:"season"`
	Number  *int   `json:"number"`
	Airdate string `json:"airdate"`
	Summary string `json:"summary"`
	Type    string `json:"type"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return provider.DoJSON(ctx, c.http, providerName, provider.JSONRequest{URL: u}, out)
}

// SearchSeries queries /search/shows. TVmaze returns a single unpaged list
// and has no year filter, so the year is left to the matcher.
func (c *Client) SearchSeries(ctx context.Context, query provider.Query, locale string) *provider.SearchResults {
	q := provider.Query{Title: query.Title}
	return provider.Pages(c.runner, "search", q, "", func(ctx context.Context, page int) ([]provider.SearchResult, bool, error) {
		var hits []struct {
			Score float64 `json:"score"`
			Show  show    `json:"show"`
		}
		if err := c.get(ctx, "/search/shows", url.Values{"q": {query.Title}}, &hits); err != nil {
			return nil, false, err
		}
		out := make([]provider.SearchResult, 0, len(hits))
		for _, h := range hits {
			out = append(out, provider.SearchResult{
				ID:       strconv.Itoa(h.Show.ID),
				Title:    h.Show.Name,
				Year:     yearOf(h.Show.Premiered),
				Date:     h.Show.Premiered,
				Provider: providerName,
			})
		}
		return out, false, nil
	})
}

// FetchSeries returns /shows/{id}.
func (c *Client) FetchSeries(ctx context.Context, id string, locale string) (*provider.SeriesInfo, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	req := provider.Request{Op: "show", Signature: id, Class: provider.TTLRecord}
	return provider.Call(ctx, c.runner, req, func(ctx context.Context) (*provider.SeriesInfo, error) {
		var s show
		if err := c.get(ctx, "/shows/"+id, nil, &s); err != nil {
			return nil, err
		}
		return showToRecord(s), nil
	})
}

// FetchEpisodes returns /shows/{id}/episodes including specials. Only aired
// order exists; other orders are served in aired order.
func (c *Client) FetchEpisodes(ctx context.Context, id string, order provider.SortOrder, locale string) ([]provider.Episode, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if order != provider.SortAired {
		log.For(providerName).WithField("series", id).Debugf("%s order unavailable, using aired order", order)
	}

	req := provider.Request{Op: "episodes", Signature: id, Class: provider.TTLRecord}
	eps, err := provider.Call(ctx, c.runner, req, func(ctx context.Context) ([]provider.Episode, error) {
		var raw []episode
		if err := c.get(ctx, "/shows/"+id+"/episodes", url.Values{"specials": {"1"}}, &raw); err != nil {
			return nil, err
		}
		out := make([]provider.Episode, 0, len(raw))
		for _, e := range raw {
			ep := provider.Episode{
				SeriesID: id,
				ID:       strconv.Itoa(e.ID),
				Order:    provider.SortAired,
				Season:   e.Season,
				Title:    e.Name,
				AirDate:  e.Airdate,
				Overview: stripTags(e.Summary),
			}
			// Specials carry no number and sit inside a regular season.
			if e.Number == nil || e.Type == "significant_special" || e.Type == "insignificant_special" {
				ep.Season = 0
			} else {
				ep.Number = *e.Number
			}
			out = append(out, ep)
		}
		numberSpecials(out)
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	arranged := provider.ArrangeEpisodes(eps, provider.SortAired)
	for i := range arranged {
		arranged[i].Order = order
	}
	return arranged, nil
}

// numberSpecials gives unnumbered specials a running number in air order.
func numberSpecials(eps []provider.Episode) {
	n := 0
	for i := range eps {
		if eps[i].Season == 0 && eps[i].Number == 0 {
			n++
			eps[i].Number = n
		}
	}
}

func showToRecord(s show) *provider.SeriesInfo {
	info := &provider.SeriesInfo{
		ID:             strconv.Itoa(s.ID),
		Provider:       providerName,
		Locale:         "en",
		Name:           s.Name,
		OriginalName:   s.Name,
		Year:           yearOf(s.Premiered),
		FirstAired:     s.Premiered,
		Overview:       stripTags(s.Summary),
		Status:         s.Status,
		Order:          provider.SortAired,
		LocalizedNames: map[string]string{"en": s.Name},
		ExternalIDs:    map[string]string{"tvmaze": strconv.Itoa(s.ID)},
	}
	switch {
	case s.Network != nil:
		info.Network = s.Network.Name
	case s.WebChannel != nil:
		info.Network = s.WebChannel.Name
	}
	if s.Externals.TheTVDB != nil {
		info.ExternalIDs["tvdb"] = strconv.Itoa(*s.Externals.TheTVDB)
	}
	if s.Externals.IMDb != nil && *s.Externals.IMDb != "" {
		info.ExternalIDs["imdb"] = *s.Externals.IMDb
	}
	if s.Image != nil {
		info.Images.Poster = s.Image.Original
	}
	return info
}

func checkID(id string) error {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || n <= 0 {
		return provider.Errorf(providerName, provider.KindNotFound, "invalid tvmaze id %q", id)
	}
	return nil
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, _ := strconv.Atoi(date[:4])
	return y
}

// stripTags removes the simple HTML markup TVmaze wraps summaries in.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

var _ provider.SeriesClient = (*Client)(nil)

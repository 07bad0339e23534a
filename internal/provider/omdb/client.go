// Package omdb is a movie client for the Open Movie Database. Lookups by
// IMDb id go through github.com/Digital-Shane/omdb; title search uses the
// list endpoint directly because the library only exposes exact matches.
package omdb

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Digital-Shane/omdb"

	"github.com/Digital-Shane/title-resolve/internal/provider"
)

const (
	providerName = "omdb"
	pageSize     = 10
	maxPages     = 3
)

// DefaultRate follows the free tier's two requests per second.
var DefaultRate = provider.RateConfig{Requests: 2, Window: time.Second}

// Options configures a Client.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Runner     *provider.Runner
}

// Client implements provider.MovieClient.
type Client struct {
	api     *omdb.Client
	http    *http.Client
	apiKey  string
	baseURL string
	runner  *provider.Runner
}

// New creates a client. The API key is required by OMDb for every call.
func New(opts Options) *Client {
	c := &Client{
		http:    opts.HTTPClient,
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: opts.BaseURL,
		runner:  opts.Runner,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.baseURL == "" {
		c.baseURL = omdb.DefaultURL
	}
	if c.runner == nil {
		c.runner = &provider.Runner{Provider: providerName}
	}
	c.api = omdb.NewClient(c.apiKey, c.http)
	return c
}

func (c *Client) Name() string                    { return providerName }
func (c *Client) Capability() provider.Capability { return provider.CapabilityMovie }

type searchResponse struct {
	Search []struct {
		Title  string `json:"Title"`
		Year   string `json:"Year"`
		ImdbID string `json:"imdbID"`
		Type   string `json:"Type"`
	} `json:"Search"`
	TotalResults string `json:"totalResults"`
	Response     string `json:"Response"`
	Error        string `json:"Error"`
}

// SearchMovies queries the s= list endpoint. OMDb answers "Movie not found!"
// for an empty result, which ends the stream without an error.
func (c *Client) SearchMovies(ctx context.Context, query provider.Query, locale string) *provider.SearchResults {
	// OMDb serves English only.
	return provider.Pages(c.runner, "search", query, "", func(ctx context.Context, page int) ([]provider.SearchResult, bool, error) {
		params := url.Values{}
		params.Set("apikey", c.apiKey)
		params.Set("s", query.Title)
		params.Set("type", "movie")
		params.Set("page", strconv.Itoa(page))
		if query.Year > 0 {
			params.Set("y", strconv.Itoa(query.Year))
		}

		var resp searchResponse
		if err := provider.DoJSON(ctx, c.http, providerName, provider.JSONRequest{URL: c.baseURL + "?" + params.Encode()}, &resp); err != nil {
			return nil, false, err
		}
		if !strings.EqualFold(resp.Response, "true") {
			if isNotFound(resp.Error) {
				return nil, false, nil
			}
			return nil, false, mapError(errorString(resp.Error))
		}

		out := make([]provider.SearchResult, 0, len(resp.Search))
		for _, s := range resp.Search {
			out = append(out, provider.SearchResult{
				ID:         s.ImdbID,
				Title:      s.Title,
				Year:       atoi(omdb.FirstYear(s.Year)),
				Provider:   providerName,
				ExternalID: s.ImdbID,
			})
		}
		total := atoi(resp.TotalResults)
		return out, page*pageSize < total && page < maxPages, nil
	})
}

// FetchMovie looks a movie up by IMDb id. Numeric ids are padded to the
// tt%07d form OMDb expects.
func (c *Client) FetchMovie(ctx context.Context, id string, locale string) (*provider.Movie, error) {
	imdbID, err := normalizeImdbID(id)
	if err != nil {
		return nil, err
	}
	req := provider.Request{Op: "movie", Signature: imdbID, Class: provider.TTLRecord}
	return provider.Call(ctx, c.runner, req, func(ctx context.Context) (*provider.Movie, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := c.api.SearchByImdbID(omdb.QueryData{ImdbID: imdbID, Plot: "full"})
		if err != nil {
			return nil, mapError(err)
		}
		switch movie := result.(type) {
		case *omdb.MovieResult:
			return movieToRecord(*movie), nil
		case omdb.MovieResult:
			return movieToRecord(movie), nil
		default:
			return nil, provider.Errorf(providerName, provider.KindNotFound, "%s is not a movie", imdbID)
		}
	})
}

func movieToRecord(m omdb.MovieResult) *provider.Movie {
	return &provider.Movie{
		ID:              m.ImdbID,
		Provider:        providerName,
		Locale:          "en",
		Title:           m.Title,
		Year:            atoi(omdb.FirstYear(m.Year)),
		ImdbID:          m.ImdbID,
		Overview:        m.Plot,
		Genres:          omdb.SplitAndTrim(m.Genre),
		Runtime:         parseRuntime(m.Runtime),
		Rating:          float64(omdb.ParseRating(m.ImdbRating)),
		LocalizedTitles: map[string]string{"en": m.Title},
	}
}

func normalizeImdbID(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	digits := strings.TrimPrefix(id, "tt")
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return "", provider.Errorf(providerName, provider.KindNotFound, "invalid imdb id %q", id)
	}
	if len(digits) < 7 {
		digits = strings.Repeat("0", 7-len(digits)) + digits
	}
	return "tt" + digits, nil
}

type errorString string

func (e errorString) Error() string { return string(e) }

func isNotFound(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "not found")
}

// mapError classifies the error strings OMDb and the library return.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	lower := strings.ToLower(err.Error())
	kind := provider.KindNetwork
	switch {
	case strings.Contains(lower, "invalid api key"), strings.Contains(lower, "no api key"), strings.Contains(lower, "missing omdb api key"):
		kind = provider.KindAuthFailed
	case isNotFound(lower), strings.Contains(lower, "incorrect imdb id"):
		kind = provider.KindNotFound
	case strings.Contains(lower, "limit reached"), strings.Contains(lower, "too many requests"):
		kind = provider.KindRateLimited
	}
	return provider.Wrap(providerName, kind, err)
}

// parseRuntime converts "136 min" to minutes.
func parseRuntime(value string) int {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0
	}
	return atoi(fields[0])
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

var _ provider.MovieClient = (*Client)(nil)

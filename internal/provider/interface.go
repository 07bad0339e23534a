package provider

import (
	"context"
	"fmt"
	"strings"
)

// Capability identifies the role a client plays for the matcher.
type Capability string

const (
	CapabilityMovie  Capability = "movie"
	CapabilitySeries Capability = "series"
)

// SortOrder is a provider-defined episode numbering scheme.
type SortOrder string

const (
	SortAired    SortOrder = "aired"
	SortDVD      SortOrder = "dvd"
	SortAbsolute SortOrder = "absolute"
)

// ParseSortOrder accepts the canonical names plus the "default" alias used by
// some providers for aired order.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "aired", "default", "official":
		return SortAired, nil
	case "dvd":
		return SortDVD, nil
	case "absolute":
		return SortAbsolute, nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// Query is the capability-specific search input. Year is zero when unknown.
type Query struct {
	Title string
	Year  int
}

// SearchResult is a provider summary returned by a search.
type SearchResult struct {
	ID            string
	Title         string
	OriginalTitle string
	Year          int
	Date          string
	Provider      string
	ExternalID    string
}

// Images holds artwork references as reported by the provider.
type Images struct {
	Poster   string
	Backdrop string
}

// Movie is the full record for a single film.
type Movie struct {
	ID              string
	Provider        string
	Locale          string
	Title           string
	OriginalTitle   string
	Year            int
	ReleaseDate     string
	ImdbID          string
	Overview        string
	Genres          []string
	Runtime         int
	Rating          float64
	LocalizedTitles map[string]string
	Images          Images
}

// SeriesInfo is the full record for a series.
type SeriesInfo struct {
	ID             string
	Provider       string
	Locale         string
	Name           string
	OriginalName   string
	Year           int
	FirstAired     string
	Overview       string
	Status         string
	Network        string
	Order          SortOrder
	LocalizedNames map[string]string
	ExternalIDs    map[string]string
	Images         Images
}

// Episode belongs to exactly one series and is numbered within one sort
// order. Absolute is zero when the provider has no absolute number for it.
type Episode struct {
	SeriesID string
	ID       string
	Order    SortOrder
	Season   int
	Number   int
	Absolute int
	Title    string
	AirDate  string
	Overview string
}

// Special reports whether the episode sits outside the regular seasons.
func (e Episode) Special() bool {
	return e.Season == 0
}

// Client is implemented by every capability client.
type Client interface {
	Name() string
	Capability() Capability
}

// MovieClient identifies films.
type MovieClient interface {
	Client
	// SearchMovies returns a lazy, non-restartable result stream.
	SearchMovies(ctx context.Context, query Query, locale string) *SearchResults
	// FetchMovie fails with ErrNotFound when the id is unknown.
	FetchMovie(ctx context.Context, id string, locale string) (*Movie, error)
}

// SeriesClient identifies series and lists their episodes.
type SeriesClient interface {
	Client
	SearchSeries(ctx context.Context, query Query, locale string) *SearchResults
	FetchSeries(ctx context.Context, id string, locale string) (*SeriesInfo, error)
	// FetchEpisodes returns every episode of the series in the requested
	// order, merging all pages before returning.
	FetchEpisodes(ctx context.Context, seriesID string, order SortOrder, locale string) ([]Episode, error)
}

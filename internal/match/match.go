// Package match resolves parsed filenames to provider records.
package match

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"

	"github.com/Digital-Shane/title-resolve/internal/log"
	"github.com/Digital-Shane/title-resolve/internal/media"
	"github.com/Digital-Shane/title-resolve/internal/provider"
)

// Defaults for Options.
const (
	DefaultThreshold  = 0.6
	DefaultEpsilon    = 0.02
	DefaultMaxResults = 20

	// shortenAttempts bounds how often a query without results is retried
	// with its last word dropped.
	shortenAttempts = 2
	keepCandidates  = 5
)

// Status is the variant of an Outcome.
type Status int

const (
	Matched Status = iota
	Ambiguous
	NoMatch
	Failed
)

func (s Status) String() string {
	switch s {
	case Matched:
		return "matched"
	case Ambiguous:
		return "ambiguous"
	case NoMatch:
		return "no match"
	default:
		return "failed"
	}
}

// Outcome is the result of matching one file. Matched outcomes carry the
// record; Ambiguous outcomes carry the near-tied candidates; Failed
// outcomes carry the error.
type Outcome struct {
	Status     Status
	Confidence float64
	Movie      *provider.Movie
	Series     *provider.SeriesInfo
	Episode    *provider.Episode
	// Candidates holds the best ranked candidates for reporting.
	Candidates []Candidate
	Reason     string
	Err        error
}

func failed(err error) Outcome {
	return Outcome{Status: Failed, Err: err, Reason: err.Error()}
}

func noMatch(reason string, cands []Candidate) Outcome {
	return Outcome{Status: NoMatch, Reason: reason, Candidates: cands}
}

// Options tunes a Matcher.
type Options struct {
	Threshold  float64
	Epsilon    float64
	MaxResults int
	// Order is the episode numbering used for lookups.
	Order provider.SortOrder
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Epsilon <= 0 {
		o.Epsilon = DefaultEpsilon
	}
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.Order == "" {
		o.Order = provider.SortAired
	}
	return o
}

// Matcher resolves tokens against the clients of a registry. It never
// retries; retries belong to the clients' own policy.
type Matcher struct {
	registry *provider.Registry
	opts     Options
	logger   *logrus.Entry
}

// New creates a Matcher.
func New(registry *provider.Registry, opts Options) *Matcher {
	return &Matcher{
		registry: registry,
		opts:     opts.withDefaults(),
		logger:   log.For("match"),
	}
}

// Options returns the effective options.
func (m *Matcher) Options() Options { return m.opts }

// Match dispatches on the token classification.
func (m *Matcher) Match(ctx context.Context, t media.Tokens, locale string) Outcome {
	switch t.Kind {
	case media.KindEpisode:
		return m.MatchEpisode(ctx, t, locale)
	case media.KindMovie:
		return m.MatchMovie(ctx, t, locale)
	}
	return noMatch("filename is neither a movie nor an episode", nil)
}

// MatchMovie searches the movie client, picks the best candidate and
// fetches its full record.
func (m *Matcher) MatchMovie(ctx context.Context, t media.Tokens, locale string) Outcome {
	client, err := m.registry.Movie()
	if err != nil {
		return failed(err)
	}
	if strings.TrimSpace(t.Title) == "" {
		return noMatch("no title in filename", nil)
	}

	// The parsed year only feeds ranking; sent to the provider it would
	// filter out off-by-one release years before they are scored.
	search := func(ctx context.Context, title string) ([]provider.SearchResult, error) {
		return provider.Collect(ctx, client.SearchMovies(ctx, provider.Query{Title: title}, locale), m.opts.MaxResults)
	}
	best, out, ok := m.pick(ctx, t.Title, t.Year, search)
	if !ok {
		return out
	}

	movie, err := client.FetchMovie(ctx, best.Result.ID, locale)
	if err != nil {
		return failed(fmt.Errorf("fetch movie %s: %w", best.Result.ID, err))
	}
	out.Status = Matched
	out.Movie = movie
	m.logger.WithFields(logrus.Fields{
		"title": t.Title, "match": movie.Title, "id": movie.ID, "score": fmt.Sprintf("%.3f", best.Score),
	}).Debug("movie matched")
	return out
}

// MatchEpisode resolves the series by title, then looks the episode up by
// exact number in the complete listing.
func (m *Matcher) MatchEpisode(ctx context.Context, t media.Tokens, locale string) Outcome {
	client, err := m.registry.Series()
	if err != nil {
		return failed(err)
	}
	if strings.TrimSpace(t.Title) == "" {
		return noMatch("no series title in filename", nil)
	}

	search := func(ctx context.Context, title string) ([]provider.SearchResult, error) {
		return provider.Collect(ctx, client.SearchSeries(ctx, provider.Query{Title: title}, locale), m.opts.MaxResults)
	}
	best, out, ok := m.pick(ctx, t.Title, t.Year, search)
	if !ok {
		return out
	}

	series, err := client.FetchSeries(ctx, best.Result.ID, locale)
	if err != nil {
		return failed(fmt.Errorf("fetch series %s: %w", best.Result.ID, err))
	}
	episodes, err := client.FetchEpisodes(ctx, best.Result.ID, m.opts.Order, locale)
	if err != nil {
		return failed(fmt.Errorf("fetch episodes %s: %w", best.Result.ID, err))
	}

	ep, found := lookupEpisode(episodes, t)
	if !found {
		return noMatch(fmt.Sprintf("%s has no episode %s in %s order", series.Name, describeNumber(t), m.opts.Order), out.Candidates)
	}

	out.Status = Matched
	out.Series = series
	out.Episode = &ep
	m.logger.WithFields(logrus.Fields{
		"title": t.Title, "series": series.Name, "season": ep.Season, "episode": ep.Number,
	}).Debug("episode matched")
	return out
}

// pick runs the search, shortening the query when nothing comes back, and
// applies the threshold and near-tie rules. ok is false when out is final.
func (m *Matcher) pick(ctx context.Context, title string, year mo.Option[int], search func(context.Context, string) ([]provider.SearchResult, error)) (Candidate, Outcome, bool) {
	query := title
	var results []provider.SearchResult
	for attempt := 0; ; attempt++ {
		var err error
		results, err = search(ctx, query)
		if err != nil {
			return Candidate{}, failed(err), false
		}
		if len(results) > 0 || attempt >= shortenAttempts {
			break
		}
		words := strings.Fields(query)
		if len(words) <= 2 {
			break
		}
		query = strings.Join(words[:len(words)-1], " ")
		m.logger.WithFields(logrus.Fields{"title": title, "query": query}).Debug("no results, shortening query")
	}

	if len(results) == 0 {
		return Candidate{}, noMatch("no search results", nil), false
	}

	ranked := Rank(title, year, results)
	top := lo.Slice(ranked, 0, keepCandidates)
	best := ranked[0]
	if best.Score < m.opts.Threshold {
		return Candidate{}, noMatch(fmt.Sprintf("best score %.2f below threshold %.2f", best.Score, m.opts.Threshold), top), false
	}

	if len(ranked) > 1 {
		runnerUp := ranked[1]
		if runnerUp.Score >= m.opts.Threshold && best.Score-runnerUp.Score <= m.opts.Epsilon {
			tied := lo.Filter(ranked, func(c Candidate, _ int) bool {
				return best.Score-c.Score <= m.opts.Epsilon && c.Score >= m.opts.Threshold
			})
			return Candidate{}, Outcome{
				Status:     Ambiguous,
				Confidence: best.Score,
				Candidates: tied,
				Reason:     fmt.Sprintf("%d candidates within %.2f", len(tied), m.opts.Epsilon),
			}, false
		}
	}
	return best, Outcome{Confidence: best.Score, Candidates: top}, true
}

func lookupEpisode(episodes []provider.Episode, t media.Tokens) (provider.Episode, bool) {
	if season, number, ok := t.SeasonEpisode(); ok {
		return lo.Find(episodes, func(e provider.Episode) bool {
			return e.Season == season && e.Number == number
		})
	}
	if abs, ok := t.Absolute.Get(); ok {
		return lo.Find(episodes, func(e provider.Episode) bool {
			return !e.Special() && e.Absolute == abs
		})
	}
	return provider.Episode{}, false
}

func describeNumber(t media.Tokens) string {
	if s, e, ok := t.SeasonEpisode(); ok {
		return fmt.Sprintf("S%02dE%02d", s, e)
	}
	return fmt.Sprintf("#%d", t.Absolute.OrEmpty())
}

// IsCanceled reports whether o failed because the caller gave up.
func (o Outcome) IsCanceled() bool {
	return o.Status == Failed && (errors.Is(o.Err, context.Canceled) || errors.Is(o.Err, context.DeadlineExceeded))
}

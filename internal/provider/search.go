package provider

import "context"

// PageFunc fetches one page of search results. Pages are numbered from 1.
// more reports whether another page may follow.
type PageFunc func(ctx context.Context, page int) (results []SearchResult, more bool, err error)

// SearchResults is a lazy stream over a provider search. The first page is
// requested on the first call to Next. A stream is not safe for concurrent
// use and cannot be restarted once exhausted.
type SearchResults struct {
	fetch PageFunc
	page  int
	buf   []SearchResult
	more  bool
	done  bool
	err   error
}

// NewSearchResults wraps fetch in a stream.
func NewSearchResults(fetch PageFunc) *SearchResults {
	return &SearchResults{fetch: fetch, more: true}
}

// StaticResults returns a stream over an in-memory slice.
func StaticResults(results []SearchResult) *SearchResults {
	buf := append([]SearchResult(nil), results...)
	return &SearchResults{buf: buf}
}

// FailedResults returns a stream whose first Next yields err.
func FailedResults(err error) *SearchResults {
	return &SearchResults{err: err, done: true}
}

// Next returns the next result. ok is false once the stream is exhausted or
// failed; a failure is reported once and then the stream stays exhausted.
func (s *SearchResults) Next(ctx context.Context) (SearchResult, bool, error) {
	for len(s.buf) == 0 {
		if s.err != nil {
			err := s.err
			s.err = nil
			return SearchResult{}, false, err
		}
		if s.done || !s.more || s.fetch == nil {
			s.done = true
			return SearchResult{}, false, nil
		}
		if err := ctx.Err(); err != nil {
			return SearchResult{}, false, err
		}
		s.page++
		results, more, err := s.fetch(ctx, s.page)
		if err != nil {
			s.done = true
			return SearchResult{}, false, err
		}
		s.buf = results
		s.more = more && len(results) > 0
	}

	next := s.buf[0]
	s.buf = s.buf[1:]
	return next, true, nil
}

// Collect drains up to limit results from s. A limit of zero or less drains
// the whole stream.
func Collect(ctx context.Context, s *SearchResults, limit int) ([]SearchResult, error) {
	var out []SearchResult
	for limit <= 0 || len(out) < limit {
		r, ok, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

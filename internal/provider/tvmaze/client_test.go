package tvmaze

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Digital-Shane/title-resolve/internal/provider"
)

func newServer(t *testing.T, routes map[string]string) (*httptest.Server, *atomic.Int32) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"name":"Not Found","status":404}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Options{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Runner: provider.NewRunner(providerName, provider.CapabilitySeries, provider.RunnerOptions{
			Retry: provider.RetryPolicy{Attempts: 1},
		}),
	})
}

func TestSearchSeries(t *testing.T) {
	srv, _ := newServer(t, map[string]string{
		"/search/shows": `[
			{"score": 0.9, "show": {"id": 169, "name": "Breaking Bad", "premiered": "2008-01-20"}},
			{"score": 0.4, "show": {"id": 3, "name": "Breaking Point", "premiered": null}}
		]`,
	})
	client := newTestClient(srv)

	got, err := provider.Collect(context.Background(), client.SearchSeries(context.Background(), provider.Query{Title: "breaking bad", Year: 2008}, ""), 0)
	if err != nil {
		t.Fatalf("SearchSeries() error = %v", err)
	}
	want := []provider.SearchResult{
		{ID: "169", Title: "Breaking Bad", Year: 2008, Date: "2008-01-20", Provider: "tvmaze"},
		{ID: "3", Title: "Breaking Point", Provider: "tvmaze"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SearchSeries() mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchSeries(t *testing.T) {
	srv, _ := newServer(t, map[string]string{
		"/shows/169": `{
			"id": 169, "name": "Breaking Bad", "premiered": "2008-01-20", "status": "Ended",
			"summary": "<p><b>Breaking Bad</b> follows Walter White.</p>",
			"network": {"name": "AMC"},
			"externals": {"tvrage": 18164, "thetvdb": 81189, "imdb": "tt0903747"},
			"image": {"original": "https://static.tvmaze.com/bb.jpg"}
		}`,
	})
	client := newTestClient(srv)

	got, err := client.FetchSeries(context.Background(), "169", "")
	if err != nil {
		t.Fatalf("FetchSeries() error = %v", err)
	}
	want := &provider.SeriesInfo{
		ID: "169", Provider: "tvmaze", Locale: "en", Name: "Breaking Bad", OriginalName: "Breaking Bad",
		Year: 2008, FirstAired: "2008-01-20", Overview: "Breaking Bad follows Walter White.",
		Status: "Ended", Network: "AMC", Order: provider.SortAired,
		LocalizedNames: map[string]string{"en": "Breaking Bad"},
		ExternalIDs:    map[string]string{"tvmaze": "169", "tvdb": "81189", "imdb": "tt0903747"},
		Images:         provider.Images{Poster: "https://static.tvmaze.com/bb.jpg"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FetchSeries() mismatch (-want +got):\n%s", diff)
	}

	if _, err := client.FetchSeries(context.Background(), "999", ""); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("missing show error = %v, want ErrNotFound", err)
	}
}

func TestFetchEpisodes(t *testing.T) {
	srv, hits := newServer(t, map[string]string{
		"/shows/169/episodes": `[
			{"id": 1, "name": "Pilot", "season": 1, "number": 1, "airdate": "2008-01-20", "type": "regular"},
			{"id": 9, "name": "Inside Breaking Bad", "season": 1, "number": null, "airdate": "2008-02-01", "type": "insignificant_special"},
			{"id": 2, "name": "Cat's in the Bag...", "season": 1, "number": 2, "airdate": "2008-01-27", "type": "regular"},
			{"id": 3, "name": "Seven Thirty-Seven", "season": 2, "number": 1, "airdate": "2009-03-08", "type": "regular"}
		]`,
	})
	client := newTestClient(srv)

	got, err := client.FetchEpisodes(context.Background(), "169", provider.SortDVD, "")
	if err != nil {
		t.Fatalf("FetchEpisodes() error = %v", err)
	}
	var lines []string
	for _, ep := range got {
		lines = append(lines, fmt.Sprintf("%dx%d #%d %s (%s)", ep.Season, ep.Number, ep.Absolute, ep.Title, ep.Order))
	}
	want := []string{
		"1x1 #1 Pilot (dvd)",
		"1x2 #2 Cat's in the Bag... (dvd)",
		"2x1 #3 Seven Thirty-Seven (dvd)",
		"0x1 #0 Inside Breaking Bad (dvd)",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("FetchEpisodes() mismatch (-want +got):\n%s", diff)
	}

	again, err := client.FetchEpisodes(context.Background(), "169", provider.SortAired, "")
	if err != nil {
		t.Fatal(err)
	}
	if again[0].Order != provider.SortAired {
		t.Errorf("cached listing leaked order %q", again[0].Order)
	}
	if hits.Load() != 1 {
		t.Errorf("requests = %d, want 1", hits.Load())
	}
}

func TestStripTags(t *testing.T) {
	if got := stripTags("<p>A <i>b</i> c</p>"); got != "A b c" {
		t.Errorf("stripTags() = %q", got)
	}
}

package tvdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Digital-Shane/title-resolve/internal/provider"
)

// fakeTVDB serves a tiny subset of the v4 API.
type fakeTVDB struct {
	t        *testing.T
	logins   atomic.Int32
	requests atomic.Int32
	// rejectNext makes the next authenticated request answer 401.
	rejectNext atomic.Bool

	mu       sync.Mutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeTVDB(t *testing.T) (*fakeTVDB, *httptest.Server) {
	f := &fakeTVDB{t: t, handlers: map[string]func(http.ResponseWriter, *http.Request){}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeTVDB) handle(path string, h func(w http.ResponseWriter, r *http.Request)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func (f *fakeTVDB) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/login" {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["apikey"] != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"status":"failure","message":"Unauthorized"}`)
			return
		}
		n := f.logins.Add(1)
		writeJSON(w, map[string]any{"status": "success", "data": map[string]string{"token": fmt.Sprintf("tok-%d", n)}})
		return
	}

	f.requests.Add(1)
	want := fmt.Sprintf("Bearer tok-%d", f.logins.Load())
	if r.Header.Get("Authorization") != want || f.rejectNext.CompareAndSwap(true, false) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	h := f.handlers[r.URL.Path]
	f.mu.Unlock()
	if h == nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"status":"failure","message":"NotFoundException"}`)
		return
	}
	h(w, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(srv *httptest.Server, key string) *Client {
	return New(Options{
		APIKey:     key,
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Runner: provider.NewRunner(providerName, provider.CapabilitySeries, provider.RunnerOptions{
			Retry: provider.RetryPolicy{Attempts: 1},
		}),
	})
}

func TestClient_SearchSeries(t *testing.T) {
	f, srv := newFakeTVDB(t)
	f.handle("/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("query") != "Breaking Bad" || q.Get("type") != "series" || q.Get("year") != "2008" {
			t.Errorf("unexpected query %v", q)
		}
		writeJSON(w, map[string]any{
			"status": "success",
			"data": []map[string]any{
				{"tvdb_id": "81189", "name": "Breaking Bad", "year": "2008", "first_air_time": "2008-01-20", "type": "series",
					"translations": map[string]string{"deu": "Breaking Bad DE"}},
				{"tvdb_id": "1", "name": "Breaking Bad Movie", "type": "movie"},
			},
			"links": map[string]any{"next": nil},
		})
	})
	client := newTestClient(srv, "good-key")

	got, err := provider.Collect(context.Background(), client.SearchSeries(context.Background(), provider.Query{Title: "Breaking Bad", Year: 2008}, "de-DE"), 0)
	if err != nil {
		t.Fatalf("SearchSeries() error = %v", err)
	}
	want := []provider.SearchResult{{
		ID: "81189", Title: "Breaking Bad DE", OriginalTitle: "Breaking Bad", Year: 2008, Date: "2008-01-20", Provider: "tvdb",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SearchSeries() mismatch (-want +got):\n%s", diff)
	}
	if client.TokenState() != provider.StateAuthenticated {
		t.Errorf("token state = %v, want authenticated", client.TokenState())
	}
}

func TestClient_FetchSeries(t *testing.T) {
	f, srv := newFakeTVDB(t)
	f.handle("/series/81189/extended", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "success", "data": map[string]any{
			"id": 81189, "name": "Breaking Bad", "year": "2008", "firstAired": "2008-01-20",
			"originalLanguage": "eng",
			"status":           map[string]string{"name": "Ended"},
			"originalNetwork":  map[string]string{"name": "AMC"},
			"remoteIds": []map[string]string{
				{"id": "tt0903747", "sourceName": "IMDB"},
				{"id": "1396", "sourceName": "TheMovieDB.com"},
			},
		}})
	})
	client := newTestClient(srv, "good-key")

	got, err := client.FetchSeries(context.Background(), "81189", "")
	if err != nil {
		t.Fatalf("FetchSeries() error = %v", err)
	}
	want := &provider.SeriesInfo{
		ID: "81189", Provider: "tvdb", Name: "Breaking Bad", OriginalName: "Breaking Bad", Year: 2008,
		FirstAired: "2008-01-20", Status: "Ended", Network: "AMC", Order: provider.SortAired,
		LocalizedNames: map[string]string{},
		ExternalIDs:    map[string]string{"tvdb": "81189", "imdb": "tt0903747", "tmdb": "1396"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FetchSeries() mismatch (-want +got):\n%s", diff)
	}

	if _, err := client.FetchSeries(context.Background(), "42", ""); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("missing series error = %v, want ErrNotFound", err)
	}
}

func TestClient_FetchEpisodesPaged(t *testing.T) {
	f, srv := newFakeTVDB(t)
	f.handle("/series/81189/episodes/dvd", func(w http.ResponseWriter, r *http.Request) {
		next := any("https://next")
		eps := []map[string]any{
			{"id": 3, "name": "Pilot Special", "seasonNumber": 0, "number": 1},
			{"id": 2, "name": "Cat's in the Bag...", "seasonNumber": 1, "number": 2},
		}
		if r.URL.Query().Get("page") == "1" {
			next = nil
			eps = []map[string]any{{"id": 1, "name": "Pilot", "seasonNumber": 1, "number": 1, "aired": "2008-01-20"}}
		}
		writeJSON(w, map[string]any{"status": "success", "data": map[string]any{"episodes": eps}, "links": map[string]any{"next": next}})
	})
	client := newTestClient(srv, "good-key")

	got, err := client.FetchEpisodes(context.Background(), "81189", provider.SortDVD, "")
	if err != nil {
		t.Fatalf("FetchEpisodes() error = %v", err)
	}
	var titles []string
	for _, ep := range got {
		titles = append(titles, fmt.Sprintf("%dx%d %s #%d", ep.Season, ep.Number, ep.Title, ep.Absolute))
		if ep.Order != provider.SortDVD {
			t.Errorf("order = %q", ep.Order)
		}
	}
	want := []string{"1x1 Pilot #1", "1x2 Cat's in the Bag... #2", "0x1 Pilot Special #0"}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Errorf("FetchEpisodes() mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_RejectedTokenReloginOnce(t *testing.T) {
	f, srv := newFakeTVDB(t)
	f.handle("/series/81189/extended", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "success", "data": map[string]any{"id": 81189, "name": "Breaking Bad"}})
	})
	client := newTestClient(srv, "good-key")
	client.runner.Cache = nil

	if _, err := client.FetchSeries(context.Background(), "81189", ""); err != nil {
		t.Fatal(err)
	}
	f.rejectNext.Store(true)
	if _, err := client.FetchSeries(context.Background(), "81189", ""); err != nil {
		t.Fatalf("FetchSeries() after revocation error = %v", err)
	}
	if got := f.logins.Load(); got != 2 {
		t.Errorf("logins = %d, want 2", got)
	}
}

func TestClient_BadKeyIsAuthFailed(t *testing.T) {
	_, srv := newFakeTVDB(t)
	client := newTestClient(srv, "bad-key")

	_, err := client.FetchSeries(context.Background(), "81189", "")
	if !errors.Is(err, provider.ErrAuthFailed) {
		t.Fatalf("error = %v, want ErrAuthFailed", err)
	}
	if client.TokenState() != provider.StateUnauthenticated {
		t.Errorf("token state = %v, want unauthenticated", client.TokenState())
	}
}

func TestClient_ConcurrentCallsShareLogin(t *testing.T) {
	f, srv := newFakeTVDB(t)
	f.handle("/series/81189/extended", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		writeJSON(w, map[string]any{"status": "success", "data": map[string]any{"id": 81189, "name": "Breaking Bad"}})
	})
	client := newTestClient(srv, "good-key")
	client.runner.Cache = nil

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.FetchSeries(context.Background(), "81189", ""); err != nil {
				t.Errorf("FetchSeries() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if got := f.logins.Load(); got != 1 {
		t.Errorf("logins = %d, want 1", got)
	}
}

func TestISO3(t *testing.T) {
	tests := map[string]string{"": "", "en-US": "eng", "de": "deu", "pt-BR": "por", "???": ""}
	for in, want := range tests {
		if got := iso3(in); got != want {
			t.Errorf("iso3(%q) = %q, want %q", in, got, want)
		}
	}
}

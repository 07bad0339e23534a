package anidb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Digital-Shane/title-resolve/internal/provider"
)

const titleDump = `# created: Mon Jan 1 00:00:00 2024
# <aid>|<type>|<language>|<title>
1|1|x-jat|Seikai no Monshou
1|4|en|Crest of the Stars
1|2|en|Crest of the Stars
1|3|x-jat|SnM
239|1|x-jat|Naruto
239|4|ja|ナルト
239|4|en|Naruto
4880|1|x-jat|Naruto Shippuuden
4880|4|en|Naruto Shippuden
9999|1|x-jat|Boruto: Naruto Next Generations
12|1|fr|Ignored Language
`

const animeXML = `<?xml version="1.0" encoding="UTF-8"?>
<anime id="239" restricted="false">
  <type>TV Series</type>
  <episodecount>220</episodecount>
  <startdate>2002-10-03</startdate>
  <enddate>2007-02-08</enddate>
  <titles>
    <title xml:lang="x-jat" type="main">Naruto</title>
    <title xml:lang="en" type="official">Naruto</title>
    <title xml:lang="de" type="official">Naruto (DE)</title>
  </titles>
  <description>A ninja story.</description>
  <episodes>
    <episode id="3"><epno type="2">S1</epno><airdate>2003-08-01</airdate><title xml:lang="en">Find the Crimson Four-Leaf Clover!</title></episode>
    <episode id="2"><epno type="1">2</epno><airdate>2002-10-10</airdate><title xml:lang="en">My Name is Konohamaru!</title><title xml:lang="de">Konohamaru</title></episode>
    <episode id="1"><epno type="1">1</epno><airdate>2002-10-03</airdate><title xml:lang="x-jat">Sanjou! Uzumaki Naruto</title><title xml:lang="en">Enter: Naruto Uzumaki!</title></episode>
    <episode id="4"><epno type="3">C1</epno><title xml:lang="en">Opening</title></episode>
  </episodes>
</anime>`

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type counts struct {
	titles atomic.Int32
	anime  atomic.Int32
}

func newServer(t *testing.T, animeBody string) (*httptest.Server, *counts) {
	var c counts
	dump := gzipped(t, titleDump)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/titles.dat.gz":
			c.titles.Add(1)
			w.Header().Set("Content-Type", "application/x-gzip")
			w.Write(dump)
		case "/httpapi":
			c.anime.Add(1)
			if r.URL.Query().Get("client") != "testclient" || r.URL.Query().Get("aid") == "" {
				w.Write([]byte(`<error code="302">client version missing or invalid</error>`))
				return
			}
			w.Header().Set("Content-Type", "text/xml")
			w.Write([]byte(animeBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &c
}

func newTestClient(srv *httptest.Server, clientName string) *Client {
	return New(Options{
		Client:        clientName,
		ClientVersion: 1,
		BaseURL:       srv.URL + "/httpapi",
		TitlesURL:     srv.URL + "/titles.dat.gz",
		HTTPClient:    srv.Client(),
		Runner: provider.NewRunner(providerName, provider.CapabilitySeries, provider.RunnerOptions{
			Retry: provider.RetryPolicy{Attempts: 1},
		}),
	})
}

func TestSearchSeries(t *testing.T) {
	srv, hits := newServer(t, animeXML)
	client := newTestClient(srv, "testclient")
	ctx := context.Background()

	got, err := provider.Collect(ctx, client.SearchSeries(ctx, provider.Query{Title: "naruto"}, "en-US"), 0)
	if err != nil {
		t.Fatalf("SearchSeries() error = %v", err)
	}
	want := []provider.SearchResult{
		{ID: "239", Title: "Naruto", OriginalTitle: "Naruto", Provider: "anidb"},
		{ID: "4880", Title: "Naruto Shippuuden", OriginalTitle: "Naruto Shippuden", Provider: "anidb"},
		{ID: "9999", Title: "Boruto: Naruto Next Generations", Provider: "anidb"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SearchSeries() mismatch (-want +got):\n%s", diff)
	}

	got, err = provider.Collect(ctx, client.SearchSeries(ctx, provider.Query{Title: "Crest of the Stars"}, "en-US"), 0)
	if err != nil {
		t.Fatalf("SearchSeries() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "1" || got[0].Title != "Seikai no Monshou" {
		t.Errorf("SearchSeries() = %+v, want anime 1 by its English title", got)
	}

	if n := hits.titles.Load(); n != 1 {
		t.Errorf("title dump downloaded %d times, want 1", n)
	}
}

func TestParseTitles_ShortTitlesFiltered(t *testing.T) {
	entries, err := parseTitles([]byte(titleDump))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4 (unknown languages dropped)", len(entries))
	}
	want := entry{ID: 1, Names: []string{"Seikai no Monshou", "Crest of the Stars"}, English: "Crest of the Stars"}
	if diff := cmp.Diff(want, entries[0]); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchSeriesAndEpisodes(t *testing.T) {
	srv, hits := newServer(t, animeXML)
	client := newTestClient(srv, "testclient")
	ctx := context.Background()

	info, err := client.FetchSeries(ctx, "239", "de-DE")
	if err != nil {
		t.Fatalf("FetchSeries() error = %v", err)
	}
	wantInfo := &provider.SeriesInfo{
		ID: "239", Provider: "anidb", Locale: "de", Name: "Naruto (DE)", OriginalName: "Naruto",
		Year: 2002, FirstAired: "2002-10-03", Overview: "A ninja story.", Status: "Ended",
		Order:          provider.SortAbsolute,
		LocalizedNames: map[string]string{"en": "Naruto", "de": "Naruto (DE)"},
		ExternalIDs:    map[string]string{"anidb": "239"},
	}
	if diff := cmp.Diff(wantInfo, info); diff != "" {
		t.Errorf("FetchSeries() mismatch (-want +got):\n%s", diff)
	}

	eps, err := client.FetchEpisodes(ctx, "239", provider.SortAbsolute, "en-US")
	if err != nil {
		t.Fatalf("FetchEpisodes() error = %v", err)
	}
	wantEps := []provider.Episode{
		{SeriesID: "239", ID: "1", Order: provider.SortAbsolute, Season: 1, Number: 1, Absolute: 1, Title: "Enter: Naruto Uzumaki!", AirDate: "2002-10-03"},
		{SeriesID: "239", ID: "2", Order: provider.SortAbsolute, Season: 1, Number: 2, Absolute: 2, Title: "My Name is Konohamaru!", AirDate: "2002-10-10"},
		{SeriesID: "239", ID: "3", Order: provider.SortAbsolute, Season: 0, Number: 1, Title: "Find the Crimson Four-Leaf Clover!", AirDate: "2003-08-01"},
	}
	if diff := cmp.Diff(wantEps, eps); diff != "" {
		t.Errorf("FetchEpisodes() mismatch (-want +got):\n%s", diff)
	}

	if n := hits.anime.Load(); n != 1 {
		t.Errorf("anime requests = %d, want 1 shared by series and episodes", n)
	}
}

func TestFetchEpisodes_OtherOrdersUseAbsoluteNumbering(t *testing.T) {
	srv, _ := newServer(t, animeXML)
	client := newTestClient(srv, "testclient")

	eps, err := client.FetchEpisodes(context.Background(), "239", provider.SortAired, "de")
	if err != nil {
		t.Fatal(err)
	}
	if eps[1].Title != "Konohamaru" || eps[1].Absolute != 2 || eps[1].Order != provider.SortAired {
		t.Errorf("second episode = %+v", eps[1])
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name     string
		client   string
		body     string
		id       string
		wantKind provider.Kind
	}{
		{"no client name", "", animeXML, "239", provider.KindAuthFailed},
		{"rejected client", "other", animeXML, "239", provider.KindAuthFailed},
		{"unknown anime", "testclient", `<error>Anime not found</error>`, "5", provider.KindNotFound},
		{"invalid id", "testclient", animeXML, "abc", provider.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.body)
			client := newTestClient(srv, tt.client)

			_, err := client.FetchSeries(context.Background(), tt.id, "en")
			if got := provider.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf(%v) = %q, want %q", err, got, tt.wantKind)
			}
			var pe *provider.ProviderError
			if !errors.As(err, &pe) {
				t.Errorf("error %v is not a ProviderError", err)
			}
		})
	}
}

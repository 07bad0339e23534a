// Package anidb is an anime series client. Titles are searched in AniDB's
// daily title dump and episode lists come from the AniDB HTTP API, which
// numbers every regular episode absolutely within one anime entry.
package anidb

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/language"

	"github.com/Digital-Shane/title-resolve/internal/log"
	"github.com/Digital-Shane/title-resolve/internal/provider"
)

const (
	providerName     = "anidb"
	DefaultBaseURL   = "http://api.anidb.net:9001/httpapi"
	DefaultTitlesURL = "http://anidb.net/api/anime-titles.dat.gz"

	maxTitlesSize = 64 << 20
	maxAnimeSize  = 4 << 20
)

// DefaultRate keeps under AniDB's flood limit of one request every two
// seconds.
var DefaultRate = provider.RateConfig{Requests: 1, Window: 2 * time.Second}

// Options configures a Client. Client and ClientVersion are the values
// registered with AniDB for HTTP API access.
type Options struct {
	Client        string
	ClientVersion int
	BaseURL       string
	TitlesURL     string
	HTTPClient    *http.Client
	Runner        *provider.Runner
}

// Client implements provider.SeriesClient.
type Client struct {
	client    string
	version   int
	baseURL   string
	titlesURL string
	http      *http.Client
	runner    *provider.Runner
}

// New creates a client.
func New(opts Options) *Client {
	c := &Client{
		client:    opts.Client,
		version:   opts.ClientVersion,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		titlesURL: opts.TitlesURL,
		http:      opts.HTTPClient,
		runner:    opts.Runner,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.titlesURL == "" {
		c.titlesURL = DefaultTitlesURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.runner == nil {
		c.runner = &provider.Runner{Provider: providerName}
	}
	return c
}

func (c *Client) Name() string                    { return providerName }
func (c *Client) Capability() provider.Capability { return provider.CapabilitySeries }

// entry is one anime in the title dump. Names[0] is the preferred title.
type entry struct {
	ID    int
	Names []string
	// English is the first English title, empty when there is none.
	English string
}

// SearchSeries matches the query against every title of every anime in the
// dump. Exact matches come first, then prefix matches, then the rest. The
// dump carries no years, so results never do either.
func (c *Client) SearchSeries(ctx context.Context, query provider.Query, locale string) *provider.SearchResults {
	return provider.NewSearchResults(func(ctx context.Context, page int) ([]provider.SearchResult, bool, error) {
		q := provider.NormalizeSignature(query.Title)
		if q == "" {
			return nil, false, nil
		}
		titles, err := c.titles(ctx)
		if err != nil {
			return nil, false, err
		}

		type hit struct {
			e    entry
			rank int
		}
		var hits []hit
		for _, e := range titles {
			rank := -1
			for _, name := range e.Names {
				n := provider.NormalizeSignature(name)
				switch {
				case n == q:
					rank = 0
				case strings.HasPrefix(n, q) && (rank < 0 || rank > 1):
					rank = 1
				case strings.Contains(n, q) && rank < 0:
					rank = 2
				}
			}
			if rank >= 0 {
				hits = append(hits, hit{e, rank})
			}
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank < hits[j].rank })

		return lo.Map(hits, func(h hit, _ int) provider.SearchResult {
			return provider.SearchResult{
				ID:            strconv.Itoa(h.e.ID),
				Title:         h.e.Names[0],
				OriginalTitle: h.e.English,
				Provider:      providerName,
			}
		}), false, nil
	})
}

// titles loads the title dump once per record TTL.
func (c *Client) titles(ctx context.Context) ([]entry, error) {
	req := provider.Request{Op: "titles", Signature: "all", Class: provider.TTLRecord}
	return provider.Call(ctx, c.runner, req, func(ctx context.Context) ([]entry, error) {
		raw, err := provider.GetBytes(ctx, c.http, providerName, c.titlesURL, maxTitlesSize)
		if err != nil {
			return nil, err
		}
		entries, err := parseTitles(raw)
		if err != nil {
			return nil, provider.Wrap(providerName, provider.KindNetwork, err)
		}
		log.For(providerName).WithField("anime", len(entries)).Debug("title dump loaded")
		return entries, nil
	})
}

var titleLineRe = regexp.MustCompile(`^(\d+)\|(\d)\|([\w-]+)\|(.+)$`)

// Title types in preference order: primary, official, synonym, short.
var (
	typeRank = map[string]int{"1": 0, "4": 1, "2": 2, "3": 3}
	langRank = map[string]int{"x-jat": 0, "en": 1, "ja": 2}
)

// parseTitles reads the "aid|type|language|title" dump, gzipped or not.
func parseTitles(raw []byte) ([]entry, error) {
	r, err := gunzip(raw)
	if err != nil {
		return nil, err
	}

	type name struct {
		typ, lang int
		en        bool
		text      string
	}
	byID := make(map[int][]name)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		m := titleLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id, _ := strconv.Atoi(m[1])
		typ, okType := typeRank[m[2]]
		lang, okLang := langRank[m[3]]
		text := html.UnescapeString(strings.TrimSpace(m[4]))
		if id <= 0 || text == "" || !okType || !okLang {
			continue
		}
		// Short titles are mostly acronyms; keep only word-like ones.
		if m[2] == "3" && (len(text) < 5 || !startsUpper(text) || endsUpper(text)) {
			continue
		}
		byID[id] = append(byID[id], name{typ: typ, lang: lang, en: m[3] == "en", text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read title dump: %w", err)
	}

	out := make([]entry, 0, len(byID))
	for id, names := range byID {
		sort.SliceStable(names, func(i, j int) bool {
			if names[i].typ != names[j].typ {
				return names[i].typ < names[j].typ
			}
			return names[i].lang < names[j].lang
		})
		e := entry{ID: id}
		for _, n := range names {
			if !lo.Contains(e.Names, n.text) {
				e.Names = append(e.Names, n.text)
			}
			if n.en && e.English == "" {
				e.English = n.text
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func gunzip(raw []byte) (io.Reader, error) {
	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		return bytes.NewReader(raw), nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open title dump: %w", err)
	}
	return zr, nil
}

func startsUpper(s string) bool {
	return strings.ToUpper(s[:1]) == s[:1] && strings.ToLower(s[:1]) != s[:1]
}

func endsUpper(s string) bool {
	last := s[len(s)-1:]
	return strings.ToUpper(last) == last && strings.ToLower(last) != last
}

type title struct {
	Lang string `xml:"lang,attr"`
	Type string `xml:"type,attr"`
	Text string `xml:",chardata"`
}

type anime struct {
	XMLName     xml.Name  `xml:"anime"`
	ID          int       `xml:"id,attr"`
	Type        string    `xml:"type"`
	StartDate   string    `xml:"startdate"`
	EndDate     string    `xml:"enddate"`
	Description string    `xml:"description"`
	Titles      []title   `xml:"titles>title"`
	Episodes    []episode `xml:"episodes>episode"`
}

type episode struct {
	ID   int `xml:"id,attr"`
	EpNo struct {
		Type  int    `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"epno"`
	AirDate string  `xml:"airdate"`
	Titles  []title `xml:"title"`
}

// AniDB episode kinds. Credits, trailers and parodies are not episodes.
const (
	epRegular = 1
	epSpecial = 2
)

// anime fetches one entry from the HTTP API. FetchSeries and FetchEpisodes
// share the cached response.
func (c *Client) anime(ctx context.Context, id string) (*anime, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if c.client == "" {
		return nil, provider.Errorf(providerName, provider.KindAuthFailed, "no registered client name configured")
	}

	req := provider.Request{Op: "anime", Signature: id, Class: provider.TTLRecord}
	return provider.Call(ctx, c.runner, req, func(ctx context.Context) (*anime, error) {
		params := url.Values{
			"request":   {"anime"},
			"client":    {c.client},
			"clientver": {strconv.Itoa(c.version)},
			"protover":  {"1"},
			"aid":       {id},
		}
		raw, err := provider.GetBytes(ctx, c.http, providerName, c.baseURL+"?"+params.Encode(), maxAnimeSize)
		if err != nil {
			return nil, err
		}
		return decodeAnime(raw)
	})
}

// decodeAnime parses an API response. AniDB reports failures as an <error>
// document with status 200.
func decodeAnime(raw []byte) (*anime, error) {
	r, err := gunzip(raw)
	if err != nil {
		return nil, provider.Wrap(providerName, provider.KindNetwork, err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, provider.Wrap(providerName, provider.KindNetwork, err)
	}

	var apiErr struct {
		XMLName xml.Name `xml:"error"`
		Code    string   `xml:"code,attr"`
		Text    string   `xml:",chardata"`
	}
	if xml.Unmarshal(body, &apiErr) == nil {
		return nil, apiError(strings.TrimSpace(apiErr.Text))
	}

	var a anime
	if err := xml.Unmarshal(body, &a); err != nil {
		return nil, provider.Wrap(providerName, provider.KindNetwork, fmt.Errorf("decode anime: %w", err))
	}
	return &a, nil
}

func apiError(msg string) error {
	lower := strings.ToLower(msg)
	kind := provider.KindNetwork
	switch {
	case strings.Contains(lower, "not found"):
		kind = provider.KindNotFound
	case strings.Contains(lower, "banned"), strings.Contains(lower, "client"):
		kind = provider.KindAuthFailed
	}
	return &provider.ProviderError{
		Provider: providerName,
		Kind:     kind,
		Message:  "api error",
		Err:      errors.New(msg),
	}
}

// FetchSeries returns the anime entry as a series. The name is the official
// title in the locale's language when AniDB has one.
func (c *Client) FetchSeries(ctx context.Context, id string, locale string) (*provider.SeriesInfo, error) {
	a, err := c.anime(ctx, id)
	if err != nil {
		return nil, err
	}
	lang := languageOf(locale)

	main := pickTitle(a.Titles, func(t title) bool { return t.Type == "main" })
	info := &provider.SeriesInfo{
		ID:             strconv.Itoa(a.ID),
		Provider:       providerName,
		Locale:         lang,
		Name:           main,
		OriginalName:   main,
		Year:           yearOf(a.StartDate),
		FirstAired:     a.StartDate,
		Overview:       strings.TrimSpace(a.Description),
		Order:          provider.SortAbsolute,
		LocalizedNames: make(map[string]string),
		ExternalIDs:    map[string]string{"anidb": strconv.Itoa(a.ID)},
	}
	for _, t := range a.Titles {
		if t.Type == "official" && t.Lang != "" {
			if _, ok := info.LocalizedNames[t.Lang]; !ok {
				info.LocalizedNames[t.Lang] = strings.TrimSpace(t.Text)
			}
		}
	}
	if name, ok := info.LocalizedNames[lang]; ok {
		info.Name = name
	}
	if a.EndDate != "" {
		info.Status = "Ended"
	}
	return info, nil
}

// FetchEpisodes lists regular episodes as season 1 with their absolute
// numbers and specials as season 0. AniDB has a single numbering, so every
// order is served from it.
func (c *Client) FetchEpisodes(ctx context.Context, id string, order provider.SortOrder, locale string) ([]provider.Episode, error) {
	a, err := c.anime(ctx, id)
	if err != nil {
		return nil, err
	}
	if order != provider.SortAbsolute {
		log.For(providerName).WithField("series", id).Debugf("%s order unavailable, using absolute numbering", order)
	}
	lang := languageOf(locale)

	eps := make([]provider.Episode, 0, len(a.Episodes))
	for _, e := range a.Episodes {
		n, err := strconv.Atoi(strings.Map(keepDigit, e.EpNo.Value))
		if err != nil || n <= 0 {
			continue
		}
		ep := provider.Episode{
			SeriesID: strconv.Itoa(a.ID),
			ID:       strconv.Itoa(e.ID),
			Order:    order,
			Number:   n,
			AirDate:  e.AirDate,
			Title:    episodeTitle(e.Titles, lang),
		}
		switch e.EpNo.Type {
		case epRegular:
			ep.Season, ep.Absolute = 1, n
		case epSpecial:
			ep.Season = 0
		default:
			continue
		}
		eps = append(eps, ep)
	}
	return provider.ArrangeEpisodes(eps, provider.SortAbsolute), nil
}

func episodeTitle(titles []title, lang string) string {
	for _, want := range []string{lang, "en", "x-jat"} {
		if t := pickTitle(titles, func(t title) bool { return t.Lang == want }); t != "" {
			return t
		}
	}
	return ""
}

func pickTitle(titles []title, match func(title) bool) string {
	t, _ := lo.Find(titles, match)
	return strings.TrimSpace(t.Text)
}

// languageOf reduces a locale such as "en-US" to AniDB's language codes.
func languageOf(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	return base.String()
}

func keepDigit(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

func checkID(id string) error {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || n <= 0 {
		return provider.Errorf(providerName, provider.KindNotFound, "invalid anidb id %q", id)
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

var _ provider.SeriesClient = (*Client)(nil)

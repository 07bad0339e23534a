// Package format renders target filenames from matched metadata.
package format

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Digital-Shane/title-resolve/internal/media"
	"github.com/Digital-Shane/title-resolve/internal/provider"
)

// Default templates.
const (
	DefaultMovieTemplate   = "{title} ({year})"
	DefaultEpisodeTemplate = "{series} - S{season}E{episode} - {episode_title}"
)

// ErrTemplate is matched by every TemplateError.
var ErrTemplate = errors.New("template error")

// TemplateError reports a template that cannot be rendered for a record.
type TemplateError struct {
	Template    string
	Placeholder string
	Reason      string
}

func (e *TemplateError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("template %q: {%s}: %s", e.Template, e.Placeholder, e.Reason)
	}
	return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
}

func (e *TemplateError) Unwrap() error { return ErrTemplate }

// Record is the matched metadata a name is rendered from. Exactly one of
// Movie or Series+Episode is set.
type Record struct {
	Movie     *provider.Movie
	Series    *provider.SeriesInfo
	Episode   *provider.Episode
	Technical media.Technical
}

// IsMovie reports whether r describes a movie.
func (r Record) IsMovie() bool { return r.Movie != nil }

// IsEpisode reports whether r describes an episode.
func (r Record) IsEpisode() bool { return r.Series != nil && r.Episode != nil }

type scope int

const (
	scopeAny scope = iota
	scopeMovie
	scopeEpisode
)

type placeholder struct {
	scope scope
	// width is the default zero padding for numeric values.
	width int
	value func(Record) (string, int, bool)
}

func str(s string) (string, int, bool) { return s, 0, false }
func num(n int) (string, int, bool)    { return "", n, true }

var placeholders = map[string]placeholder{
	"title": {scope: scopeMovie, value: func(r Record) (string, int, bool) { return str(r.Movie.Title) }},
	"year": {scope: scopeMovie, value: func(r Record) (string, int, bool) {
		if r.Movie.Year == 0 {
			return str("")
		}
		return num(r.Movie.Year)
	}},
	"imdb": {scope: scopeMovie, value: func(r Record) (string, int, bool) { return str(r.Movie.ImdbID) }},

	"series": {scope: scopeEpisode, value: func(r Record) (string, int, bool) { return str(r.Series.Name) }},
	"series_year": {scope: scopeEpisode, value: func(r Record) (string, int, bool) {
		if r.Series.Year == 0 {
			return str("")
		}
		return num(r.Series.Year)
	}},
	"season":        {scope: scopeEpisode, width: 2, value: func(r Record) (string, int, bool) { return num(r.Episode.Season) }},
	"episode":       {scope: scopeEpisode, width: 2, value: func(r Record) (string, int, bool) { return num(r.Episode.Number) }},
	"episode_title": {scope: scopeEpisode, value: func(r Record) (string, int, bool) { return str(r.Episode.Title) }},
	"absolute": {scope: scopeEpisode, width: 2, value: func(r Record) (string, int, bool) {
		if r.Episode.Absolute == 0 {
			return str("")
		}
		return num(r.Episode.Absolute)
	}},
	"air_date": {scope: scopeEpisode, value: func(r Record) (string, int, bool) { return str(r.Episode.AirDate) }},

	"id": {value: func(r Record) (string, int, bool) {
		if r.Movie != nil {
			return str(r.Movie.ID)
		}
		return str(r.Series.ID)
	}},
	"provider": {value: func(r Record) (string, int, bool) {
		if r.Movie != nil {
			return str(r.Movie.Provider)
		}
		return str(r.Series.Provider)
	}},
	"resolution": {value: func(r Record) (string, int, bool) { return str(r.Technical.Resolution) }},
	"vcodec":     {value: func(r Record) (string, int, bool) { return str(r.Technical.VideoCodec) }},
	"acodec":     {value: func(r Record) (string, int, bool) { return str(r.Technical.AudioCodec) }},
}

var technicalNames = map[string]bool{"resolution": true, "vcodec": true, "acodec": true}

var (
	placeholderRe   = regexp.MustCompile(`\{([^{}]*)\}`)
	emptyBracketsRe = regexp.MustCompile(`\s*[\(\[\{]\s*[\)\]\}]`)
)

type token struct {
	name  string
	width int
	hasW  bool
}

func parseToken(raw string) (token, bool) {
	name, w, found := strings.Cut(strings.TrimSpace(raw), ":")
	t := token{name: strings.ToLower(strings.TrimSpace(name))}
	if found {
		n, err := strconv.Atoi(strings.TrimSpace(w))
		if err != nil || n < 0 || n > 9 {
			return t, false
		}
		t.width, t.hasW = n, true
	}
	return t, t.name != ""
}

// Placeholders lists the placeholder names used by tmpl in order of
// appearance, without width modifiers.
func Placeholders(tmpl string) []string {
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if t, ok := parseToken(m[1]); ok {
			out = append(out, t.name)
		}
	}
	return out
}

// NeedsTechnical reports whether tmpl references stream details.
func NeedsTechnical(tmpl string) bool {
	for _, name := range Placeholders(tmpl) {
		if technicalNames[name] {
			return true
		}
	}
	return false
}

// Validate checks tmpl against the placeholders available for movies
// (episode false) or episodes (episode true) without rendering it.
func Validate(tmpl string, episode bool) error {
	if strings.TrimSpace(tmpl) == "" {
		return &TemplateError{Template: tmpl, Reason: "empty template"}
	}
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		t, ok := parseToken(m[1])
		if !ok {
			return &TemplateError{Template: tmpl, Placeholder: m[1], Reason: "malformed placeholder"}
		}
		p, known := placeholders[t.name]
		if !known {
			return &TemplateError{Template: tmpl, Placeholder: t.name, Reason: "unknown placeholder"}
		}
		if p.scope == scopeEpisode && !episode {
			return &TemplateError{Template: tmpl, Placeholder: t.name, Reason: "not available for movies"}
		}
		if p.scope == scopeMovie && episode {
			return &TemplateError{Template: tmpl, Placeholder: t.name, Reason: "not available for episodes"}
		}
	}
	return nil
}

// Render formats rec through tmpl and appends ext unchanged. A "/" in the
// template separates directory levels; each level is sanitized on its own,
// so slashes inside values never create directories.
func Render(tmpl string, rec Record, ext string) (string, error) {
	if !rec.IsMovie() && !rec.IsEpisode() {
		return "", &TemplateError{Template: tmpl, Reason: "record has no movie or episode"}
	}
	if err := Validate(tmpl, rec.IsEpisode()); err != nil {
		return "", err
	}

	segments := strings.Split(tmpl, "/")
	out := make([]string, 0, len(segments))
	for i, seg := range segments {
		rendered := placeholderRe.ReplaceAllStringFunc(seg, func(m string) string {
			t, _ := parseToken(m[1 : len(m)-1])
			return renderValue(placeholders[t.name], t, rec)
		})
		rendered = emptyBracketsRe.ReplaceAllString(rendered, "")
		rendered = strings.Trim(strings.TrimSpace(rendered), "-_–—|")

		clean, err := Sanitize(rendered)
		if err != nil {
			if i < len(segments)-1 && strings.TrimSpace(seg) == "" {
				// leading or doubled slash
				continue
			}
			return "", &TemplateError{Template: tmpl, Reason: "renders to an empty name"}
		}
		out = append(out, clean)
	}
	if len(out) == 0 {
		return "", &TemplateError{Template: tmpl, Reason: "renders to an empty name"}
	}
	return filepath.Join(out...) + ext, nil
}

func renderValue(p placeholder, t token, rec Record) string {
	s, n, numeric := p.value(rec)
	if !numeric {
		return s
	}
	width := p.width
	if t.hasW {
		width = t.width
	}
	return fmt.Sprintf("%0*d", width, n)
}

// Formatter renders names with the configured templates.
type Formatter struct {
	MovieTemplate   string
	EpisodeTemplate string
}

// New returns a Formatter, substituting defaults for empty templates.
func New(movieTmpl, episodeTmpl string) *Formatter {
	if movieTmpl == "" {
		movieTmpl = DefaultMovieTemplate
	}
	if episodeTmpl == "" {
		episodeTmpl = DefaultEpisodeTemplate
	}
	return &Formatter{MovieTemplate: movieTmpl, EpisodeTemplate: episodeTmpl}
}

// Format picks the template for rec's kind and renders it.
func (f *Formatter) Format(rec Record, ext string) (string, error) {
	if rec.IsEpisode() {
		return Render(f.EpisodeTemplate, rec, ext)
	}
	return Render(f.MovieTemplate, rec, ext)
}

// NeedsTechnical reports whether either template uses stream details.
func (f *Formatter) NeedsTechnical() bool {
	return NeedsTechnical(f.MovieTemplate) || NeedsTechnical(f.EpisodeTemplate)
}

// Validate checks both templates.
func (f *Formatter) Validate() error {
	if err := Validate(f.MovieTemplate, false); err != nil {
		return err
	}
	return Validate(f.EpisodeTemplate, true)
}

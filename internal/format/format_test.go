package format

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Digital-Shane/title-resolve/internal/media"
	"github.com/Digital-Shane/title-resolve/internal/provider"
)

func movieRecord() Record {
	return Record{Movie: &provider.Movie{
		ID: "603", Provider: "tmdb", Title: "The Matrix", Year: 1999, ImdbID: "tt0133093",
	}}
}

func episodeRecord() Record {
	return Record{
		Series:  &provider.SeriesInfo{ID: "81189", Provider: "tvdb", Name: "Breaking Bad", Year: 2008},
		Episode: &provider.Episode{Season: 2, Number: 5, Absolute: 12, Title: "Breakage", AirDate: "2009-04-05"},
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		rec  Record
		ext  string
		want string
	}{
		{
			name: "default movie",
			tmpl: DefaultMovieTemplate,
			rec:  movieRecord(),
			ext:  ".mkv",
			want: "The Matrix (1999).mkv",
		},
		{
			name: "default episode",
			tmpl: DefaultEpisodeTemplate,
			rec:  episodeRecord(),
			ext:  ".mkv",
			want: "Breaking Bad - S02E05 - Breakage.mkv",
		},
		{
			name: "width modifier",
			tmpl: "{series} {season:1}x{episode:3} #{absolute:4}",
			rec:  episodeRecord(),
			ext:  ".mp4",
			want: "Breaking Bad 2x005 #0012.mp4",
		},
		{
			name: "ids and provider",
			tmpl: "{title} [{provider}-{id}] {imdb}",
			rec:  movieRecord(),
			want: "The Matrix [tmdb-603] tt0133093",
		},
		{
			name: "missing year drops empty brackets",
			tmpl: "{title} ({year})",
			rec:  Record{Movie: &provider.Movie{Title: "Untitled"}},
			ext:  ".mkv",
			want: "Untitled.mkv",
		},
		{
			name: "illegal characters in values",
			tmpl: "{title} ({year})",
			rec:  Record{Movie: &provider.Movie{Title: "Face/Off: Special?", Year: 1997}},
			ext:  ".avi",
			want: "Face Off Special (1997).avi",
		},
		{
			name: "trailing separator when episode title is empty",
			tmpl: DefaultEpisodeTemplate,
			rec: Record{
				Series:  &provider.SeriesInfo{Name: "Show"},
				Episode: &provider.Episode{Season: 1, Number: 1},
			},
			ext:  ".mkv",
			want: "Show - S01E01.mkv",
		},
		{
			name: "directories",
			tmpl: "{series} ({series_year})/Season {season}/{series} - S{season}E{episode}",
			rec:  episodeRecord(),
			ext:  ".mkv",
			want: filepath.Join("Breaking Bad (2008)", "Season 02", "Breaking Bad - S02E05.mkv"),
		},
		{
			name: "technical placeholders",
			tmpl: "{title} ({year}) [{resolution} {vcodec}]",
			rec: func() Record {
				r := movieRecord()
				r.Technical = media.Technical{Resolution: "1080p", VideoCodec: "hevc"}
				return r
			}(),
			want: "The Matrix (1999) [1080p hevc]",
		},
		{
			name: "technical placeholders without probe data",
			tmpl: "{title} [{resolution}]",
			rec:  movieRecord(),
			ext:  ".mkv",
			want: "The Matrix.mkv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.tmpl, tt.rec, tt.ext)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_Idempotent(t *testing.T) {
	rec := episodeRecord()
	first, err := Render(DefaultEpisodeTemplate, rec, ".mkv")
	if err != nil {
		t.Fatal(err)
	}
	second, err := Render(DefaultEpisodeTemplate, rec, ".mkv")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("Render() not deterministic: %q vs %q", first, second)
	}
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name        string
		tmpl        string
		rec         Record
		placeholder string
	}{
		{name: "episode placeholder on movie", tmpl: "{title} S{season}", rec: movieRecord(), placeholder: "season"},
		{name: "movie placeholder on episode", tmpl: "{series} {imdb}", rec: episodeRecord(), placeholder: "imdb"},
		{name: "unknown placeholder", tmpl: "{title} {rating}", rec: movieRecord(), placeholder: "rating"},
		{name: "bad width", tmpl: "{season:x}", rec: episodeRecord(), placeholder: "season:x"},
		{name: "empty result", tmpl: "{imdb}", rec: Record{Movie: &provider.Movie{}}},
		{name: "empty template", tmpl: "  ", rec: movieRecord()},
		{name: "no record", tmpl: "{title}", rec: Record{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(tt.tmpl, tt.rec, ".mkv")
			if !errors.Is(err, ErrTemplate) {
				t.Fatalf("Render() error = %v, want ErrTemplate", err)
			}
			var te *TemplateError
			if !errors.As(err, &te) {
				t.Fatalf("Render() error %T is not a *TemplateError", err)
			}
			if te.Placeholder != tt.placeholder {
				t.Errorf("Placeholder = %q, want %q", te.Placeholder, tt.placeholder)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{series}/{Season:3} {resolution}")
	want := []string{"series", "season", "resolution"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Placeholders() mismatch (-want +got):\n%s", diff)
	}
	if !NeedsTechnical("{title} {acodec}") || NeedsTechnical(DefaultMovieTemplate) {
		t.Error("NeedsTechnical() misreports")
	}
}

func TestFormatter(t *testing.T) {
	f := New("", "")
	if err := f.Validate(); err != nil {
		t.Fatalf("default templates invalid: %v", err)
	}
	got, err := f.Format(movieRecord(), ".mkv")
	if err != nil || got != "The Matrix (1999).mkv" {
		t.Errorf("Format(movie) = %q, %v", got, err)
	}
	got, err = f.Format(episodeRecord(), ".srt")
	if err != nil || got != "Breaking Bad - S02E05 - Breakage.srt" {
		t.Errorf("Format(episode) = %q, %v", got, err)
	}

	bad := New("{season}", "")
	if err := bad.Validate(); !errors.Is(err, ErrTemplate) {
		t.Errorf("Validate() error = %v, want ErrTemplate", err)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Normal Name", want: "Normal Name"},
		{in: `a<b>c:d"e/f\g|h?i*j`, want: "a b c d e f g h i j"},
		{in: "tab\tand\nnewline", want: "tab and newline"},
		{in: "  spaced   out  ", want: "spaced out"},
		{in: "Trailing dots...", want: "Trailing dots"},
		{in: "Amélie", want: "Amélie"},
		{in: "???", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Sanitize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Sanitize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Package media turns raw media filenames into structured tokens.
//
// Parsing is pure and tolerant: several community naming conventions are
// accepted, noise such as codec or release tags is stripped from the title,
// and anything that cannot be classified is reported as Unknown rather than
// guessed at.
package media

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/mo"
)

// Kind is the classification of a parsed filename.
type Kind int

const (
	KindUnknown Kind = iota
	KindMovie
	KindEpisode
)

func (k Kind) String() string {
	switch k {
	case KindMovie:
		return "movie"
	case KindEpisode:
		return "episode"
	default:
		return "unknown"
	}
}

// Tokens is the structured result of parsing one filename.
type Tokens struct {
	// Source is the filename as given, without directories.
	Source   string
	Title    string
	Year     mo.Option[int]
	Season   mo.Option[int]
	Episode  mo.Option[int]
	Absolute mo.Option[int]
	// Extra holds further episode numbers of a multi-episode file.
	Extra []int
	Ext   string
	Noise []string
	Kind  Kind
}

// SeasonEpisode returns the season and episode pair when both were found.
func (t Tokens) SeasonEpisode() (season, episode int, ok bool) {
	s, sok := t.Season.Get()
	e, eok := t.Episode.Get()
	return s, e, sok && eok
}

var (
	// sxeRe matches S01E02, s1e2, S01.E02 and multi-episode S01E02E03 / S01E02-E03.
	sxeRe = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])s(\d{1,2})[ ._-]?e(\d{1,3})((?:[ ._-]?e\d{1,3})*)(?:[^0-9]|$)`)

	// crossRe matches 1x02.
	crossRe = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(\d{1,2})x(\d{2,3})(?:[^0-9]|$)`)

	// longFormRe matches "Season 1 Episode 2".
	longFormRe = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])season[ ._-]*(\d{1,2})[ ._-]*episode[ ._-]*(\d{1,3})(?:[^0-9]|$)`)

	extraEpisodeRe = regexp.MustCompile(`(?i)e(\d{1,3})`)

	yearRe = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(?:[^0-9]|$)`)

	// Absolute episode markers: "Show - 012", "Show E012", "Show #12".
	absoluteRes = []*regexp.Regexp{
		regexp.MustCompile(`\s-\s(\d{2,4})(?:v\d)?(?:[^0-9]|$)`),
		regexp.MustCompile(`(?i)(?:^|[ ._])(?:e|ep)(\d{1,4})(?:[^0-9]|$)`),
		regexp.MustCompile(`#(\d{1,4})(?:[^0-9]|$)`),
	}

	// noiseRe is the fixed denylist of release noise.
	noiseRe = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(` + technicalTags + `|` + editionTags + `)(?:[^a-z0-9]|$)`)

	// technicalRe only knows tags that never occur in a title; everything
	// from the first one on is cut.
	technicalRe = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(` + technicalTags + `)(?:[^a-z0-9]|$)`)

	trailingNoiseRe = regexp.MustCompile(`(?i)[ ._-]+(?:` + technicalTags + `|` + editionTags + `)[ ._-]*$`)

	leadingGroupRe  = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*`)
	trailingGroupRe = regexp.MustCompile(`-([A-Za-z0-9]+)$`)
	bracketRe       = regexp.MustCompile(`[\(\[\{]([^\)\]\}]*)[\)\]\}]`)
)

// Tags are written to match both dotted and spaced names ("H.264", "H 264").
const (
	technicalTags = `HDR10\+?|x265|x264|H[ .]?264|H[ .]?265|HEVC|AVC|XviD|DivX|AAC(?:2[ .]0)?|E?AC3|DDP?(?:5[ .]1|2[ .]0)?|DTS(?:-HD)?|TrueHD|FLAC|WEB-?DL|WEB-?Rip|BluRay|Blu-Ray|BDRip|BRRip|DVDRip|HDTV|HDRip|REMUX|480p|576p|720p|1080p|2160p|10bit|8bit`
	editionTags   = `HDR|DV|DoVi|SDR|Atmos|MP3|4K|UHD|PROPER|REPACK|iNTERNAL|LiMiTED|UNRATED|EXTENDED|DiRECTORS[ .]?CUT|THEATRICAL|MULTI|DUAL|DUBBED|SUBBED|RETAIL|NTSC|PAL|UNCUT|UNCENSORED|AMZN|NF|DSNP|HMAX|ATVP`
)

type span struct{ start, end int }

// Parse extracts tokens from a filename. Directory components are ignored.
func Parse(filename string) Tokens {
	base := filepath.Base(filename)
	if filename == "" {
		base = ""
	}
	stem, ext := SplitExtension(base)
	t := Tokens{Source: base, Ext: ext}

	name := stem
	if m := leadingGroupRe.FindStringSubmatch(name); m != nil {
		t.Noise = append(t.Noise, m[1])
		name = name[len(m[0]):]
	}
	if m := trailingGroupRe.FindStringSubmatchIndex(name); m != nil && endsWithNoise(name[:m[0]]) {
		t.Noise = append(t.Noise, name[m[2]:m[3]])
		name = name[:m[0]]
	}

	cut := len(name)
	if s, ok := t.parseSeasonEpisode(name); ok {
		cut = s.start
	}

	if y, s, ok := findYear(name[:cut]); ok {
		t.Year = mo.Some(y)
		cut = s.start
	}

	if t.Season.IsAbsent() {
		if n, s, ok := findAbsolute(name[:cut]); ok {
			t.Absolute = mo.Some(n)
			cut = s.start
		}
	}

	t.Noise = append(t.Noise, noiseIn(name)...)
	t.Title = cleanTitle(name[:cut])

	switch {
	case t.Season.IsPresent() || t.Absolute.IsPresent():
		t.Kind = KindEpisode
	case t.Year.IsPresent():
		t.Kind = KindMovie
	default:
		t.Kind = KindUnknown
	}
	return t
}

// ParsePath parses the file at path and, when the filename carries episode
// numbers but no title, borrows the series title from the enclosing folders,
// skipping season folders such as "Season 02".
func ParsePath(path string) Tokens {
	t := Parse(path)
	if t.Kind != KindEpisode || t.Title != "" {
		return t
	}

	dir := filepath.Dir(path)
	for depth := 0; depth < 3 && dir != "." && dir != string(filepath.Separator) && dir != ""; depth++ {
		folder := filepath.Base(dir)
		dir = filepath.Dir(dir)
		if isSeasonFolder(folder) {
			continue
		}
		title, year := ExtractNameAndYear(folder)
		if title == "" {
			continue
		}
		t.Title = title
		if year > 0 && t.Year.IsAbsent() {
			t.Year = mo.Some(year)
		}
		break
	}
	return t
}

var seasonFolderRe = regexp.MustCompile(`(?i)^\s*(?:season|series|s)[ ._-]*\d{1,2}\s*$|^\s*specials?\s*$`)

func isSeasonFolder(name string) bool {
	return seasonFolderRe.MatchString(name)
}

// ExtractNameAndYear cleans a folder-style name such as
// "The.Expanse.(2015).1080p" into ("The Expanse", 2015).
func ExtractNameAndYear(name string) (string, int) {
	cut := len(name)
	year := 0
	if y, s, ok := findYear(name); ok {
		year, cut = y, s.start
	}
	return cleanTitle(name[:cut]), year
}

func (t *Tokens) parseSeasonEpisode(name string) (span, bool) {
	if m := sxeRe.FindStringSubmatchIndex(name); m != nil {
		t.Season = mo.Some(atoi(name[m[2]:m[3]]))
		t.Episode = mo.Some(atoi(name[m[4]:m[5]]))
		if m[6] < m[7] {
			for _, e := range extraEpisodeRe.FindAllStringSubmatch(name[m[6]:m[7]], -1) {
				t.Extra = append(t.Extra, atoi(e[1]))
			}
		}
		return span{m[2] - 1, m[5]}, true
	}
	for _, re := range []*regexp.Regexp{longFormRe, crossRe} {
		if m := re.FindStringSubmatchIndex(name); m != nil {
			t.Season = mo.Some(atoi(name[m[2]:m[3]]))
			t.Episode = mo.Some(atoi(name[m[4]:m[5]]))
			return span{matchStart(name, m[0]), m[5]}, true
		}
	}
	return span{}, false
}

// findYear returns the last plausible year in s. A year at the very start
// is a title ("2012", "1917") rather than a release year.
func findYear(s string) (int, span, bool) {
	all := yearRe.FindAllStringSubmatchIndex(s, -1)
	candidates := lo.Filter(all, func(m []int, _ int) bool {
		return strings.TrimSpace(s[:m[2]]) != ""
	})
	if len(candidates) == 0 {
		return 0, span{}, false
	}
	m := candidates[len(candidates)-1]
	return atoi(s[m[2]:m[3]]), span{m[2], m[3]}, true
}

func findAbsolute(s string) (int, span, bool) {
	for _, re := range absoluteRes {
		m := re.FindStringSubmatchIndex(s)
		if m == nil {
			continue
		}
		if strings.TrimSpace(s[:m[0]]) == "" {
			continue
		}
		raw := s[m[2]:m[3]]
		n := atoi(raw)
		if len(raw) == 4 && n >= 1900 && n <= 2099 {
			continue
		}
		if n == 0 {
			continue
		}
		return n, span{matchStart(s, m[0]), m[3]}, true
	}
	return 0, span{}, false
}

func noiseIn(s string) []string {
	var out []string
	// Adjacent tags share a separator, so scan from the end of each match.
	rest := s
	for {
		m := noiseRe.FindStringSubmatchIndex(rest)
		if m == nil {
			return out
		}
		out = append(out, rest[m[2]:m[3]])
		rest = rest[m[3]:]
	}
}

func endsWithNoise(s string) bool {
	m := noiseIn(s)
	if len(m) == 0 {
		return false
	}
	last := m[len(m)-1]
	return strings.HasSuffix(strings.ToLower(s), strings.ToLower(last))
}

// cleanTitle turns a raw title fragment into display form.
func cleanTitle(s string) string {
	s = bracketRe.ReplaceAllStringFunc(s, func(b string) string {
		inner := strings.TrimSpace(b[1 : len(b)-1])
		if inner == "" || len(noiseIn(inner)) > 0 {
			return " "
		}
		return b
	})
	s = strings.NewReplacer(".", " ", "_", " ").Replace(s)
	s = stripNoise(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " -–—|:([{")
}

// stripNoise cuts at the first technical tag that follows title text, then
// drops denylisted words from the end. Words such as "Uncut" or "Pal" stay
// while title text follows them, and a lone word is never dropped.
func stripNoise(s string) string {
	if m := technicalRe.FindStringSubmatchIndex(s); m != nil && strings.TrimSpace(s[:m[2]]) != "" {
		s = s[:m[2]]
	}
	for {
		m := trailingNoiseRe.FindStringIndex(s)
		if m == nil || strings.TrimSpace(s[:m[0]]) == "" {
			return s
		}
		s = s[:m[0]]
	}
}

// matchStart skips the single separator character a pattern consumed
// before its first group.
func matchStart(s string, start int) int {
	if start < len(s) {
		switch s[start] {
		case ' ', '.', '_', '-', '[', '(':
			return start + 1
		}
	}
	return start
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

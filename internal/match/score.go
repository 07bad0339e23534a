package match

import (
	"sort"
	"strings"
	"unicode"

	levenshtein "github.com/ka-weihe/fast-levenshtein"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/mo"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Digital-Shane/title-resolve/internal/provider"
)

const (
	titleWeight   = 0.8
	yearWeight    = 0.2
	containsBonus = 0.1
)

// Candidate is a scored search result with the parts of its score.
type Candidate struct {
	Result     provider.SearchResult
	Score      float64
	TitleScore float64
	// YearScore is only meaningful when the query carried a year.
	YearScore float64
	YearDist  int
}

var folder = cases.Fold()

// Normalize lowercases s, strips accents and punctuation and collapses
// whitespace, so that "Amélie!" and "amelie" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	stripped = folder.String(strings.ReplaceAll(stripped, "&", " and "))

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// "Grey's" and "Greys" are the same title
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// TitleSimilarity is 1 - levenshtein/maxLen over normalized titles, raised
// by a small bonus when one title fuzzily contains the other.
func TitleSimilarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	la, lb := len([]rune(na)), len([]rune(nb))
	maxLen := max(la, lb)
	sim := 1 - float64(levenshtein.Distance(na, nb))/float64(maxLen)

	shorter, longer := na, nb
	if la > lb {
		shorter, longer = nb, na
	}
	if fuzzy.MatchNormalizedFold(shorter, longer) {
		sim += containsBonus
	}
	return clamp(sim)
}

// yearScore is 1 for the same year, 0.5 one year off and 0 otherwise.
func yearScore(want, got int) (float64, int) {
	if got == 0 {
		return 0, 1 << 16
	}
	d := want - got
	if d < 0 {
		d = -d
	}
	switch d {
	case 0:
		return 1, 0
	case 1:
		return 0.5, 1
	default:
		return 0, d
	}
}

// Score rates one search result against a parsed title and optional year.
func Score(title string, year mo.Option[int], r provider.SearchResult) Candidate {
	ts := TitleSimilarity(title, r.Title)
	if r.OriginalTitle != "" && r.OriginalTitle != r.Title {
		ts = max(ts, TitleSimilarity(title, r.OriginalTitle))
	}

	c := Candidate{Result: r, TitleScore: ts, Score: ts}
	if y, ok := year.Get(); ok {
		c.YearScore, c.YearDist = yearScore(y, r.Year)
		c.Score = titleWeight*ts + yearWeight*c.YearScore
	}
	return c
}

// Rank scores results and orders them by score, then year distance, then
// provider id, so equal inputs always rank the same way.
func Rank(title string, year mo.Option[int], results []provider.SearchResult) []Candidate {
	out := make([]Candidate, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		key := r.Provider + "/" + r.ID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Score(title, year, r))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.YearDist != b.YearDist {
			return a.YearDist < b.YearDist
		}
		return lessID(a.Result.ID, b.Result.ID)
	})
	return out
}

// lessID orders numeric ids numerically and everything else lexically.
func lessID(a, b string) bool {
	if len(a) != len(b) && isDigits(a) && isDigits(b) {
		return len(a) < len(b)
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

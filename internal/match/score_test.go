package match

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/samber/mo"

	"github.com/Digital-Shane/title-resolve/internal/provider"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"The Matrix", "the matrix"},
		{"Amélie", "amelie"},
		{"Grey's Anatomy", "greys anatomy"},
		{"Law & Order: SVU", "law and order svu"},
		{"  Spider-Man:   No Way Home ", "spider man no way home"},
		{"WALL·E", "wall e"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTitleSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		min, max float64
	}{
		{"identical after normalizing", "the.matrix", "The Matrix!", 1, 1},
		{"one typo", "The Matrx", "The Matrix", 0.9, 1},
		{"containment bonus", "Matrix", "The Matrix", 0.69, 0.71},
		{"unrelated", "Heat", "Frozen", 0, 0.3},
		{"empty", "", "Heat", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TitleSimilarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("TitleSimilarity(%q, %q) = %.3f, want in [%.2f, %.2f]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestScore_YearTerm(t *testing.T) {
	r := provider.SearchResult{ID: "1", Title: "Heat", Year: 1995}
	tests := []struct {
		name string
		year mo.Option[int]
		want float64
	}{
		{"no year parsed", mo.None[int](), 1},
		{"exact year", mo.Some(1995), 1},
		{"one year off", mo.Some(1996), 0.9},
		{"far off", mo.Some(2010), 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score("Heat", tt.year, r).Score
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRank_Deterministic(t *testing.T) {
	results := []provider.SearchResult{
		{Provider: "tmdb", ID: "200", Title: "Heat", Year: 1972},
		{Provider: "tmdb", ID: "30", Title: "Heat", Year: 1995},
		{Provider: "tmdb", ID: "30", Title: "Heat", Year: 1995},
		{Provider: "tmdb", ID: "4", Title: "Heat", Year: 1994},
		{Provider: "tmdb", ID: "1000", Title: "Heat", Year: 1996},
	}

	var ids []string
	for _, c := range Rank("Heat", mo.Some(1995), results) {
		ids = append(ids, c.Result.ID)
	}
	want := []string{"30", "4", "1000", "200"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("Rank() order mismatch (-want +got):\n%s", diff)
	}

	ids = ids[:0]
	for _, c := range Rank("Heat", mo.None[int](), results) {
		ids = append(ids, c.Result.ID)
	}
	want = []string{"4", "30", "200", "1000"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("Rank() without year mismatch (-want +got):\n%s", diff)
	}
}

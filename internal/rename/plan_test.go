package rename

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/afero"
)

func newFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%s): %v", path, err)
		}
	}
	return fs
}

type planned struct {
	Target     string
	Resolution Resolution
	State      State
}

func summarize(p *Plan) []planned {
	out := make([]planned, 0, len(p.Operations))
	for _, op := range p.Operations {
		out = append(out, planned{op.Target, op.Resolution, op.State})
	}
	return out
}

func TestPlan_ConflictPolicies(t *testing.T) {
	files := map[string]string{
		"/media/a.mkv": "first",
		"/media/b.mkv": "second",
	}
	pairs := []Pair{
		{Source: "/media/a.mkv", Target: "Movie Title (2020).mkv"},
		{Source: "/media/b.mkv", Target: "Movie Title (2020).mkv"},
	}

	tests := []struct {
		policy Policy
		want   []planned
	}{
		{
			policy: PolicySkip,
			want: []planned{
				{"/media/Movie Title (2020).mkv", ResolutionNone, StatePending},
				{"/media/Movie Title (2020).mkv", ResolutionSkip, StateSkipped},
			},
		},
		{
			policy: PolicyUniqueSuffix,
			want: []planned{
				{"/media/Movie Title (2020).mkv", ResolutionNone, StatePending},
				{"/media/Movie Title (2020) (1).mkv", ResolutionUniqueSuffix, StatePending},
			},
		},
		{
			policy: PolicyOverwrite,
			want: []planned{
				{"/media/Movie Title (2020).mkv", ResolutionNone, StatePending},
				{"/media/Movie Title (2020).mkv", ResolutionOverwrite, StatePending},
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			e := NewExecutor(newFS(t, files), tt.policy)
			got := summarize(e.Plan(pairs))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Plan() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlan_ExistingFiles(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/tv/show.s01e01.mkv":               "1",
		"/tv/show.s01e02.mkv":               "2",
		"/tv/Show - S01E01 - Pilot.mkv":     "unrelated",
		"/tv/Show - S01E01 - Pilot (1).mkv": "also unrelated",
		"/tv/already.mkv":                   "3",
	})
	pairs := []Pair{
		{Source: "/tv/show.s01e01.mkv", Target: "Show - S01E01 - Pilot.mkv"},
		{Source: "/tv/show.s01e02.mkv", Target: "/tv/Season 01/Show - S01E02 - Two.mkv"},
		{Source: "/tv/already.mkv", Target: "already.mkv"},
		{Source: "/tv/missing.mkv", Target: "whatever.mkv"},
	}

	e := NewExecutor(fs, PolicyUniqueSuffix)
	got := summarize(e.Plan(pairs))
	want := []planned{
		{"/tv/Show - S01E01 - Pilot (2).mkv", ResolutionUniqueSuffix, StatePending},
		{"/tv/Season 01/Show - S01E02 - Two.mkv", ResolutionNone, StatePending},
		{"/tv/already.mkv", ResolutionNone, StateSkipped},
		{"/tv/whatever.mkv", ResolutionNone, StateFailed},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Plan() mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_SuffixKeepsSubtitleLanguage(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/m/a.en.srt":           "a",
		"/m/Heat (1995).en.srt": "existing",
	})
	e := NewExecutor(fs, PolicyUniqueSuffix)
	plan := e.Plan([]Pair{{Source: "/m/a.en.srt", Target: "Heat (1995).en.srt"}})

	if got, want := plan.Operations[0].Target, "/m/Heat (1995) (1).en.srt"; got != want {
		t.Errorf("Target = %q, want %q", got, want)
	}
}

func TestPlan_ChainedRenames(t *testing.T) {
	// b moves away before a takes its name.
	fs := newFS(t, map[string]string{"/d/a.mkv": "a", "/d/b.mkv": "b"})
	e := NewExecutor(fs, PolicySkip)
	plan := e.Plan([]Pair{
		{Source: "/d/b.mkv", Target: "c.mkv"},
		{Source: "/d/a.mkv", Target: "b.mkv"},
	})
	if n := plan.Count(StatePending); n != 2 {
		t.Errorf("pending = %d, want 2: %+v", n, summarize(plan))
	}
}

func TestPlan_ConflictReasons(t *testing.T) {
	files := map[string]string{
		"/d/a.mkv":     "a",
		"/d/b.mkv":     "b",
		"/d/c.mkv":     "c",
		"/d/other.mkv": "unrelated",
	}
	pairs := []Pair{
		{Source: "/d/a.mkv", Target: "b.mkv"},
		{Source: "/d/b.mkv", Target: "new.mkv"},
		{Source: "/d/c.mkv", Target: "new.mkv"},
		{Source: "/d/other.mkv", Target: "other.mkv"},
	}

	tests := []struct {
		policy Policy
		want   []string
	}{
		{PolicySkip, []string{"target is the source of a later rename", "", "target claimed by an earlier rename", "already named"}},
		{PolicyOverwrite, []string{"target is the source of a later rename", "", "", "already named"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			plan := NewExecutor(newFS(t, files), tt.policy).Plan(pairs)
			got := make([]string, 0, len(plan.Operations))
			for _, op := range plan.Operations {
				got = append(got, op.Reason)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("reasons mismatch (-want +got):\n%s", diff)
			}
			if plan.Operations[0].State != StateSkipped {
				t.Errorf("a.mkv state = %v, want skipped", plan.Operations[0].State)
			}
		})
	}

	// An outside file still reads as one.
	plan := NewExecutor(newFS(t, files), PolicySkip).Plan([]Pair{{Source: "/d/a.mkv", Target: "other.mkv"}})
	if got := plan.Operations[0].Reason; got != "target already exists" {
		t.Errorf("Reason = %q, want target already exists", got)
	}
}

func TestPlan_SkippedSourceStaysTaken(t *testing.T) {
	// "Heat (1995).mkv" is already named and stays where it is.
	fs := newFS(t, map[string]string{"/m/Heat (1995).mkv": "a", "/m/Heat.1995.mkv": "b"})
	e := NewExecutor(fs, PolicyUniqueSuffix)
	plan := e.Plan([]Pair{
		{Source: "/m/Heat (1995).mkv", Target: "Heat (1995).mkv"},
		{Source: "/m/Heat.1995.mkv", Target: "Heat (1995).mkv"},
	})

	if got, want := plan.Operations[1].Target, "/m/Heat (1995) (1).mkv"; got != want {
		t.Errorf("Target = %q, want %q", got, want)
	}
}

func TestPlan_Idempotent(t *testing.T) {
	fs := newFS(t, map[string]string{"/d/a.mkv": "a", "/d/b.mkv": "b", "/d/X.mkv": "x"})
	e := NewExecutor(fs, PolicyUniqueSuffix)
	pairs := []Pair{{Source: "/d/a.mkv", Target: "X.mkv"}, {Source: "/d/b.mkv", Target: "X.mkv"}}

	first, second := e.DryRun(pairs), e.DryRun(pairs)
	if diff := cmp.Diff(first, second, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("DryRun() not idempotent (-first +second):\n%s", diff)
	}
	if exists, _ := afero.Exists(fs, "/d/X (1).mkv"); exists {
		t.Error("DryRun() touched the filesystem")
	}
}

func TestPlan_OverwriteDirectoryRefused(t *testing.T) {
	fs := newFS(t, map[string]string{"/d/a.mkv": "a"})
	if err := fs.MkdirAll("/d/Heat", 0o755); err != nil {
		t.Fatal(err)
	}
	e := NewExecutor(fs, PolicyOverwrite)
	op := e.Plan([]Pair{{Source: "/d/a.mkv", Target: "Heat"}}).Operations[0]
	if op.State != StateFailed || !errors.Is(op.Err, ErrFilesystem) {
		t.Errorf("op = %+v, want failed filesystem error", op)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"skip", PolicySkip, false},
		{"", PolicySkip, false},
		{"Overwrite", PolicyOverwrite, false},
		{"unique-suffix", PolicyUniqueSuffix, false},
		{"suffix", PolicyUniqueSuffix, false},
		{"merge", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

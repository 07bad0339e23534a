package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/Digital-Shane/title-resolve/internal/format"
	"github.com/Digital-Shane/title-resolve/internal/match"
	"github.com/Digital-Shane/title-resolve/internal/media"
	"github.com/Digital-Shane/title-resolve/internal/pipeline"
	"github.com/Digital-Shane/title-resolve/internal/rename"
	"github.com/Digital-Shane/title-resolve/internal/tui/progress"
	"github.com/Digital-Shane/title-resolve/internal/tui/theme"
)

// run is one resolved set of files.
type run struct {
	results  []pipeline.Result
	canceled bool
}

// resolve scans paths and runs the pipeline over the media files found.
// Without paths the working directory is scanned.
func (a *app) resolve(ctx context.Context, paths []string) (*run, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	files, err := media.Collect(a.env.FS, absPaths(paths))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return &run{}, nil
	}

	registry, err := a.env.Registry(a.cfg.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to set up providers: %w", err)
	}
	matcher := match.New(registry, match.Options{
		Threshold: a.cfg.Match.Threshold,
		Epsilon:   a.cfg.Match.Epsilon,
		Order:     a.cfg.SortOrder(),
	})
	eng := pipeline.New(pipeline.Config{
		Paths:     files,
		Workers:   a.cfg.Workers,
		Locale:    a.cfg.Locale,
		Matcher:   matcher,
		Formatter: format.New(a.cfg.Templates.Movie, a.cfg.Templates.Episode),
		Prober:    a.env.Prober,
	})

	if a.env.Interactive && !a.noProgress {
		canceled, err := progress.Run(ctx, eng, theme.Default(), tea.WithOutput(a.env.Err))
		if err != nil {
			return nil, err
		}
		return &run{results: eng.Results(), canceled: canceled || ctx.Err() != nil}, nil
	}
	results := eng.Run(ctx)
	return &run{results: results, canceled: ctx.Err() != nil}, nil
}

func absPaths(paths []string) []string {
	return lo.Map(paths, func(p string, _ int) string {
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	})
}

// policy returns the conflict policy, letting --conflict override the
// configured one.
func (a *app) policy(cmd *cobra.Command) (rename.Policy, error) {
	if f := cmd.Flags().Lookup("conflict"); f != nil && f.Changed {
		return rename.ParsePolicy(f.Value.String())
	}
	return a.cfg.Policy(), nil
}

func addConflictFlag(cmd *cobra.Command) {
	cmd.Flags().String("conflict", "", "What to do when a target exists: skip, overwrite or unique-suffix")
}

// describe renders the status column for a result that has no rename.
func describe(r pipeline.Result) (target, status string) {
	switch r.State {
	case pipeline.StateAmbiguous:
		names := lo.Map(r.Outcome.Candidates, func(c match.Candidate, _ int) string {
			if c.Result.Year > 0 {
				return fmt.Sprintf("%s (%d)", c.Result.Title, c.Result.Year)
			}
			return c.Result.Title
		})
		return strings.Join(names, " | "), "ambiguous"
	case pipeline.StateSkipped:
		return r.Reason, "skipped"
	}
	return r.Reason, fmt.Sprintf("%s: %s", r.State, r.Kind)
}

func confidence(r pipeline.Result) string {
	if r.Outcome.Confidence == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f", r.Outcome.Confidence)
}

// operationStatus describes a planned or applied operation.
func operationStatus(op rename.Operation) string {
	switch op.State {
	case rename.StatePending:
		switch op.Resolution {
		case rename.ResolutionOverwrite:
			return "rename, overwrite"
		case rename.ResolutionUniqueSuffix:
			return "rename, suffixed"
		}
		return "rename"
	case rename.StateApplied:
		return "renamed"
	}
	if op.Reason != "" {
		return fmt.Sprintf("%s: %s", op.State, op.Reason)
	}
	return string(op.State)
}

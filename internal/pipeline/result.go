package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Digital-Shane/title-resolve/internal/format"
	"github.com/Digital-Shane/title-resolve/internal/match"
	"github.com/Digital-Shane/title-resolve/internal/media"
	"github.com/Digital-Shane/title-resolve/internal/provider"
	"github.com/Digital-Shane/title-resolve/internal/rename"
)

// State is the per-file outcome of the pipeline.
type State string

const (
	StateResolved  State = "resolved"
	StateSkipped   State = "skipped"
	StateAmbiguous State = "ambiguous"
	StateNoMatch   State = "no-match"
	StateFailed    State = "failed"
)

// Failure kinds shown next to files that did not resolve, in addition to
// the provider kinds.
const (
	KindUnknown    = "Unknown"
	KindNoMatch    = "NoMatch"
	KindTemplate   = "TemplateError"
	KindFilesystem = "FilesystemError"
	KindUndoStale  = "UndoStale"
	KindCanceled   = "Canceled"
	KindError      = "Error"
)

// Result is what the pipeline learned about one file.
type Result struct {
	Path      string
	Tokens    media.Tokens
	Outcome   match.Outcome
	Technical media.Technical
	// Target is the proposed name, relative to the directory of Path.
	Target string
	State  State
	// Kind names the failure class when State is not resolved.
	Kind   string
	Reason string
	Err    error
}

// Resolved reports whether r has a target name.
func (r Result) Resolved() bool { return r.State == StateResolved }

// FailureKind names the failure class of err for reports.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, format.ErrTemplate):
		return KindTemplate
	case errors.Is(err, rename.ErrUndoStale):
		return KindUndoStale
	case errors.Is(err, rename.ErrFilesystem):
		return KindFilesystem
	}
	if kind := provider.KindOf(err); kind != "" {
		return string(kind)
	}
	return KindError
}

// Pairs returns the rename pairs of the resolved results, in order.
func Pairs(results []Result) []rename.Pair {
	pairs := make([]rename.Pair, 0, len(results))
	for _, r := range results {
		if r.Resolved() {
			pairs = append(pairs, rename.Pair{Source: r.Path, Target: r.Target})
		}
	}
	return pairs
}

func outcomeResult(r *Result) {
	o := r.Outcome
	switch o.Status {
	case match.Ambiguous:
		r.State, r.Kind = StateAmbiguous, string(provider.KindAmbiguous)
		r.Reason = o.Reason
		r.Err = fmt.Errorf("%w: %s", provider.ErrAmbiguous, o.Reason)
	case match.NoMatch:
		r.State, r.Kind, r.Reason = StateNoMatch, KindNoMatch, o.Reason
	case match.Failed:
		r.State, r.Err = StateFailed, o.Err
		r.Kind = FailureKind(o.Err)
		if o.Err != nil {
			r.Reason = o.Err.Error()
		}
	}
}

// Package rename plans, applies and undoes batches of file renames.
package rename

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/Digital-Shane/title-resolve/internal/log"
	"github.com/Digital-Shane/title-resolve/internal/media"
)

var (
	ErrFilesystem = errors.New("filesystem error")
	ErrUndoStale  = errors.New("undo target changed since apply")
	ErrNoBatch    = errors.New("no batch to undo")
)

// Policy decides what happens when a target is already taken.
type Policy string

const (
	PolicySkip         Policy = "skip"
	PolicyOverwrite    Policy = "overwrite"
	PolicyUniqueSuffix Policy = "unique-suffix"
)

// ParsePolicy accepts the policy names used on the command line.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySkip, PolicyOverwrite, PolicyUniqueSuffix:
		return p, nil
	case "":
		return PolicySkip, nil
	case "suffix", "unique":
		return PolicyUniqueSuffix, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q (want skip, overwrite or unique-suffix)", s)
}

// Resolution records how a conflict was settled for one operation.
type Resolution string

const (
	ResolutionNone         Resolution = "none"
	ResolutionSkip         Resolution = "skip"
	ResolutionOverwrite    Resolution = "overwrite"
	ResolutionUniqueSuffix Resolution = "unique-suffix"
)

// State is the lifecycle of an operation: Pending, then exactly one of
// Applied, Skipped or Failed.
type State string

const (
	StatePending State = "pending"
	StateApplied State = "applied"
	StateSkipped State = "skipped"
	StateFailed  State = "failed"
)

// Pair is a proposed rename. A relative Target is taken relative to the
// directory of Source.
type Pair struct {
	Source string
	Target string
}

// Operation is one planned rename.
type Operation struct {
	Source     string
	Target     string
	Resolution Resolution
	State      State
	// Reason explains a skip or failure.
	Reason string
	Err    error
}

// Done reports whether the operation has left the Pending state.
func (o Operation) Done() bool { return o.State != StatePending }

// Plan is the ordered, conflict-free set of operations for one batch.
type Plan struct {
	Policy     Policy
	Operations []Operation
}

// Count returns how many operations are in state s.
func (p *Plan) Count(s State) int {
	n := 0
	for _, op := range p.Operations {
		if op.State == s {
			n++
		}
	}
	return n
}

// Executor runs rename batches against a filesystem. Apply and Undo are
// sequential; an Executor must not be shared by concurrent batches.
type Executor struct {
	FS     afero.Fs
	Policy Policy
	// BackupDir holds copies of overwritten files. When empty, backups go
	// next to the target under BackupDirName.
	BackupDir string

	logger *logrus.Entry
}

// BackupDirName is the per-directory folder used for overwrite backups.
const BackupDirName = ".title-resolve-backup"

// NewExecutor returns an executor over fs. A nil fs means the OS filesystem.
func NewExecutor(fs afero.Fs, policy Policy) *Executor {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if policy == "" {
		policy = PolicySkip
	}
	return &Executor{FS: fs, Policy: policy, logger: log.For("rename")}
}

func (e *Executor) log() *logrus.Entry {
	if e.logger == nil {
		e.logger = log.For("rename")
	}
	return e.logger
}

// DryRun plans pairs without touching the filesystem. It is Plan under the
// name used by previews.
func (e *Executor) DryRun(pairs []Pair) *Plan {
	return e.Plan(pairs)
}

// Plan resolves target collisions in input order. A target collides when an
// earlier operation already claims it, or when an unrelated file exists
// there. Plan only reads the filesystem, so planning the same pairs twice
// gives the same plan.
func (e *Executor) Plan(pairs []Pair) *Plan {
	plan := &Plan{Policy: e.Policy, Operations: make([]Operation, 0, len(pairs))}

	// moved holds the sources of earlier pending operations. Their paths
	// are free by the time a later operation runs.
	moved := make(map[string]bool, len(pairs))
	claimed := make(map[string]bool, len(pairs))
	// later counts the sources of operations not planned yet.
	later := make(map[string]int, len(pairs))
	for _, p := range pairs {
		later[filepath.Clean(p.Source)]++
	}

	taken := func(target string) bool {
		if claimed[target] {
			return true
		}
		if moved[target] {
			return false
		}
		exists, _ := afero.Exists(e.FS, target)
		return exists
	}

	for _, p := range pairs {
		later[filepath.Clean(p.Source)]--
		op := Operation{
			Source:     filepath.Clean(p.Source),
			Target:     resolveTarget(p),
			Resolution: ResolutionNone,
			State:      StatePending,
		}

		switch {
		case op.Target == op.Source:
			op.State, op.Reason = StateSkipped, "already named"
		case !sourceExists(e.FS, op.Source):
			op.State, op.Reason = StateFailed, "source missing"
			op.Err = fmt.Errorf("%w: %s does not exist", ErrFilesystem, op.Source)
		case claimed[op.Target]:
			e.resolveConflict(&op, "target claimed by an earlier rename", taken)
		case later[op.Target] > 0:
			// Overwriting would clobber a file this batch still has to move.
			if e.Policy == PolicyOverwrite {
				op.Resolution = ResolutionSkip
				op.State, op.Reason = StateSkipped, "target is the source of a later rename"
				break
			}
			e.resolveConflict(&op, "target is the source of a later rename", taken)
		case taken(op.Target):
			e.resolveConflict(&op, "target already exists", taken)
		}

		if op.State == StatePending {
			claimed[op.Target] = true
			moved[op.Source] = true
		}
		plan.Operations = append(plan.Operations, op)
	}
	return plan
}

func (e *Executor) resolveConflict(op *Operation, reason string, taken func(string) bool) {
	switch e.Policy {
	case PolicyOverwrite:
		if isDir, _ := afero.IsDir(e.FS, op.Target); isDir {
			op.State, op.Reason = StateFailed, "target is a directory"
			op.Err = fmt.Errorf("%w: cannot overwrite directory %s", ErrFilesystem, op.Target)
			return
		}
		op.Resolution = ResolutionOverwrite
	case PolicyUniqueSuffix:
		dir, name := filepath.Split(op.Target)
		stem, ext := splitName(name)
		for n := 1; ; n++ {
			candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
			if !taken(candidate) {
				op.Target = candidate
				break
			}
		}
		op.Resolution = ResolutionUniqueSuffix
	default:
		op.Resolution = ResolutionSkip
		op.State, op.Reason = StateSkipped, reason
	}
}

func resolveTarget(p Pair) string {
	if filepath.IsAbs(p.Target) {
		return filepath.Clean(p.Target)
	}
	return filepath.Join(filepath.Dir(p.Source), p.Target)
}

func sourceExists(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && !info.IsDir()
}

// splitName separates the extension, keeping subtitle language codes with it.
func splitName(name string) (string, string) {
	if stem, ext := media.SplitExtension(name); ext != "" {
		return stem, ext
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

func fsErr(op, path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s %s: no such file", ErrFilesystem, op, path)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrFilesystem, op, path, err)
}

package rename

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// UndoOutcome is the result of reversing one UndoEntry. State is Applied
// when the rename was reversed.
type UndoOutcome struct {
	Entry UndoEntry
	State State
	Err   error
}

// Undo reverses entries last to first. An entry whose target drifted since
// apply fails with ErrUndoStale; the other entries still run. Outcomes are
// returned in the order they were attempted.
func (e *Executor) Undo(ctx context.Context, entries []UndoEntry) []UndoOutcome {
	logger := e.log()
	out := make([]UndoOutcome, 0, len(entries))
	var backupDirs []string

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if err := ctx.Err(); err != nil {
			out = append(out, UndoOutcome{Entry: entry, State: StateSkipped, Err: err})
			continue
		}

		if err := e.undoOne(entry); err != nil {
			logger.WithField("target", entry.Target).WithError(err).Warn("undo failed")
			out = append(out, UndoOutcome{Entry: entry, State: StateFailed, Err: err})
			continue
		}
		logger.WithField("source", entry.Source).WithField("target", entry.Target).Info("restored")
		if entry.Backup != "" {
			backupDirs = append(backupDirs, filepath.Dir(entry.Backup), filepath.Dir(filepath.Dir(entry.Backup)))
		}
		out = append(out, UndoOutcome{Entry: entry, State: StateApplied})
	}

	e.removeEmpty(backupDirs)
	return out
}

func (e *Executor) undoOne(entry UndoEntry) error {
	info, err := e.FS.Stat(entry.Target)
	if err != nil {
		return fmt.Errorf("%w: %s is gone", ErrUndoStale, entry.Target)
	}
	if info.Size() != entry.Size || !info.ModTime().Equal(entry.ModTime) {
		return fmt.Errorf("%w: %s was modified", ErrUndoStale, entry.Target)
	}
	if exists, _ := afero.Exists(e.FS, entry.Source); exists {
		return fmt.Errorf("%w: original path %s is occupied", ErrUndoStale, entry.Source)
	}
	if entry.Backup != "" {
		if exists, _ := afero.Exists(e.FS, entry.Backup); !exists {
			return fmt.Errorf("%w: backup %s is missing", ErrUndoStale, entry.Backup)
		}
	}

	if err := e.FS.MkdirAll(filepath.Dir(entry.Source), 0o755); err != nil {
		return fsErr("mkdir", filepath.Dir(entry.Source), err)
	}
	if err := e.FS.Rename(entry.Target, entry.Source); err != nil {
		return fsErr("rename", entry.Target, err)
	}
	if entry.Backup != "" {
		if err := e.FS.Rename(entry.Backup, entry.Target); err != nil {
			return fsErr("restore", entry.Backup, err)
		}
	}
	e.removeEmpty(entry.CreatedDirs)
	return nil
}

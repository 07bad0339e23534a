package rename

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// UndoEntry reverses one applied operation. Size and ModTime describe the
// target as the executor left it; undo refuses to touch a target that no
// longer matches them.
type UndoEntry struct {
	Source      string    `json:"source"`
	Target      string    `json:"target"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
	Backup      string    `json:"backup,omitempty"`
	CreatedDirs []string  `json:"created_dirs,omitempty"`
}

// Result is the outcome of applying a plan.
type Result struct {
	Batch string
	Plan  *Plan
	// Undo lists the applied operations in apply order.
	Undo []UndoEntry
}

// Apply executes the pending operations of plan in order. A failing
// operation is marked Failed and the batch carries on; Apply itself never
// fails. When ctx is canceled the remaining operations are skipped.
func (e *Executor) Apply(ctx context.Context, plan *Plan) *Result {
	res := &Result{Batch: uuid.NewString(), Plan: plan}
	logger := e.log().WithField("batch", res.Batch)

	for i := range plan.Operations {
		op := &plan.Operations[i]
		if op.Done() {
			logOp(logger, op)
			continue
		}
		if err := ctx.Err(); err != nil {
			op.State, op.Reason, op.Err = StateSkipped, "canceled", err
			continue
		}

		entry, err := e.applyOne(res.Batch, i, op)
		if err != nil {
			op.State, op.Err = StateFailed, err
			op.Reason = err.Error()
		} else {
			op.State = StateApplied
			res.Undo = append(res.Undo, entry)
		}
		logOp(logger, op)
	}
	return res
}

func logOp(logger *logrus.Entry, op *Operation) {
	fields := logrus.Fields{"source": op.Source, "target": op.Target, "resolution": op.Resolution}
	switch op.State {
	case StateApplied:
		logger.WithFields(fields).Info("renamed")
	case StateFailed:
		logger.WithFields(fields).WithError(op.Err).Warn("rename failed")
	default:
		logger.WithFields(fields).WithField("reason", op.Reason).Debug("rename skipped")
	}
}

func (e *Executor) applyOne(batch string, n int, op *Operation) (UndoEntry, error) {
	created, err := e.mkdirAll(filepath.Dir(op.Target))
	if err != nil {
		return UndoEntry{}, fsErr("mkdir", filepath.Dir(op.Target), err)
	}
	entry := UndoEntry{Source: op.Source, Target: op.Target, CreatedDirs: created}

	exists, err := afero.Exists(e.FS, op.Target)
	if err != nil {
		e.removeEmpty(created)
		return UndoEntry{}, fsErr("stat", op.Target, err)
	}
	if exists {
		if op.Resolution != ResolutionOverwrite {
			e.removeEmpty(created)
			return UndoEntry{}, fmt.Errorf("%w: destination %s already exists", ErrFilesystem, op.Target)
		}
		backup, err := e.backup(batch, n, op.Target)
		if err != nil {
			return UndoEntry{}, fmt.Errorf("%w: overwrite refused, cannot back up %s: %w", ErrFilesystem, op.Target, err)
		}
		entry.Backup = backup
	}

	if err := e.FS.Rename(op.Source, op.Target); err != nil {
		if entry.Backup != "" {
			_ = e.FS.Remove(entry.Backup)
		}
		e.removeEmpty(created)
		return UndoEntry{}, fsErr("rename", op.Source, err)
	}

	info, err := e.FS.Stat(op.Target)
	if err != nil {
		return UndoEntry{}, fsErr("stat", op.Target, err)
	}
	entry.Size, entry.ModTime = info.Size(), info.ModTime()
	return entry, nil
}

// backupPath is where the n-th operation of batch keeps the file it
// overwrote.
func (e *Executor) backupPath(batch string, n int, target string) string {
	root := e.BackupDir
	if root == "" {
		root = filepath.Join(filepath.Dir(target), BackupDirName)
	}
	return filepath.Join(root, batch, fmt.Sprintf("%d-%s", n, filepath.Base(target)))
}

// backup copies target aside, verifying the copy is complete and carries
// the original modification time so a later restore is indistinguishable
// from the file that was overwritten.
func (e *Executor) backup(batch string, n int, target string) (string, error) {
	info, err := e.FS.Stat(target)
	if err != nil {
		return "", err
	}
	path := e.backupPath(batch, n, target)
	if err := e.FS.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	written, err := copyFile(e.FS, target, path, info.Mode())
	if err == nil && written != info.Size() {
		err = fmt.Errorf("short copy: %d of %d bytes", written, info.Size())
	}
	if err == nil {
		err = e.FS.Chtimes(path, info.ModTime(), info.ModTime())
	}
	if err != nil {
		_ = e.FS.Remove(path)
		return "", err
	}
	return path, nil
}

func copyFile(fs afero.Fs, src, dst string, mode os.FileMode) (int64, error) {
	in, err := fs.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// mkdirAll creates dir and returns the directories it had to create,
// deepest first.
func (e *Executor) mkdirAll(dir string) ([]string, error) {
	var missing []string
	for d := dir; ; {
		exists, err := afero.Exists(e.FS, d)
		if err != nil {
			return nil, err
		}
		if exists {
			break
		}
		missing = append(missing, d)
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	if len(missing) == 0 {
		return nil, nil
	}
	if err := e.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return missing, nil
}

// removeEmpty removes each directory in dirs that is empty, in order.
func (e *Executor) removeEmpty(dirs []string) {
	for _, d := range dirs {
		if empty, err := afero.IsEmpty(e.FS, d); err == nil && empty {
			_ = e.FS.Remove(d)
		}
	}
}

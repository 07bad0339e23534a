package rename

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

const (
	lockFile      = ".lock"
	lockRetry     = 100 * time.Millisecond
	batchFileTime = "20060102T150405.000"
)

// Batch is the persisted record of one applied plan.
type Batch struct {
	ID          string      `json:"id"`
	Created     time.Time   `json:"created"`
	Policy      Policy      `json:"policy"`
	CommandArgs []string    `json:"command_args,omitempty"`
	WorkingDir  string      `json:"working_dir,omitempty"`
	Applied     int         `json:"applied"`
	Skipped     int         `json:"skipped"`
	Failed      int         `json:"failed"`
	Entries     []UndoEntry `json:"entries"`
	Undone      bool        `json:"undone"`
	UndoneAt    *time.Time  `json:"undone_at,omitempty"`

	file string
}

// NewBatch summarizes an apply result for the journal.
func NewBatch(res *Result, now time.Time) *Batch {
	b := &Batch{
		ID:      res.Batch,
		Created: now,
		Entries: res.Undo,
	}
	if res.Plan != nil {
		b.Policy = res.Plan.Policy
		b.Applied = res.Plan.Count(StateApplied)
		b.Skipped = res.Plan.Count(StateSkipped)
		b.Failed = res.Plan.Count(StateFailed)
	}
	if wd, err := os.Getwd(); err == nil {
		b.WorkingDir = wd
	}
	return b
}

// Journal stores batches as JSON files in Dir so that the most recent batch
// can be undone by a later run.
type Journal struct {
	FS  afero.Fs
	Dir string
}

// NewJournal returns a journal in dir on the OS filesystem.
func NewJournal(dir string) *Journal {
	return &Journal{FS: afero.NewOsFs(), Dir: dir}
}

// DefaultJournalDir is ~/.title-resolve/journal.
func DefaultJournalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".title-resolve", "journal"), nil
}

// Save writes b. Batches without entries are not worth undoing and are
// not written.
func (j *Journal) Save(b *Batch) error {
	if b == nil || len(b.Entries) == 0 {
		return nil
	}
	if err := j.FS.MkdirAll(j.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	if b.file == "" {
		b.file = filepath.Join(j.Dir, fmt.Sprintf("%s_%s.json", b.Created.UTC().Format(batchFileTime), b.ID))
	}
	return j.write(b)
}

func (j *Journal) write(b *Batch) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	tmp := b.file + ".tmp"
	if err := afero.WriteFile(j.FS, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write journal file: %w", err)
	}
	if err := j.FS.Rename(tmp, b.file); err != nil {
		return fmt.Errorf("failed to write journal file: %w", err)
	}
	return nil
}

func (j *Journal) read(path string) (*Batch, error) {
	data, err := afero.ReadFile(j.FS, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal file: %w", err)
	}
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch: %w", err)
	}
	b.file = path
	return &b, nil
}

// List returns up to limit batches, newest first. Unreadable files are
// skipped. A limit of zero or less returns every batch.
func (j *Journal) List(limit int) ([]*Batch, error) {
	files, err := afero.Glob(j.FS, filepath.Join(j.Dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list journal files: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	batches := make([]*Batch, 0, len(files))
	for _, file := range files {
		b, err := j.read(file)
		if err != nil {
			continue
		}
		batches = append(batches, b)
		if limit > 0 && len(batches) == limit {
			break
		}
	}
	return batches, nil
}

// Latest returns the newest batch that has not been undone.
func (j *Journal) Latest() (*Batch, error) {
	batches, err := j.List(0)
	if err != nil {
		return nil, err
	}
	for _, b := range batches {
		if !b.Undone {
			return b, nil
		}
	}
	return nil, ErrNoBatch
}

// MarkUndone records that batch id was consumed by an undo.
func (j *Journal) MarkUndone(id string, at time.Time) error {
	batches, err := j.List(0)
	if err != nil {
		return err
	}
	for _, b := range batches {
		if b.ID != id {
			continue
		}
		b.Undone = true
		b.UndoneAt = &at
		return j.write(b)
	}
	return fmt.Errorf("%w: batch %s not in journal", ErrNoBatch, id)
}

// Prune removes batches created before cutoff.
func (j *Journal) Prune(cutoff time.Time) (int, error) {
	batches, err := j.List(0)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, b := range batches {
		if !b.Created.Before(cutoff) {
			continue
		}
		if err := j.FS.Remove(b.file); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove journal file: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Lock takes an exclusive lock on the journal directory, waiting until ctx
// is done. The lock is an OS file lock, so it only guards journals on the
// OS filesystem.
func (j *Journal) Lock(ctx context.Context) (unlock func() error, err error) {
	if err := os.MkdirAll(j.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	lock := flock.New(filepath.Join(j.Dir, lockFile))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to lock journal: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("journal %s is locked by another run", j.Dir)
	}
	return lock.Unlock, nil
}

// String names the batch for reports.
func (b *Batch) String() string {
	return fmt.Sprintf("%s (%s, %d renamed)", b.ID, b.Created.Local().Format(time.DateTime), b.Applied)
}

package rename

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func testBatch(id string, created time.Time) *Batch {
	return &Batch{
		ID:      id,
		Created: created,
		Policy:  PolicySkip,
		Applied: 1,
		Entries: []UndoEntry{{Source: "/d/a.mkv", Target: "/d/A.mkv", Size: 1, ModTime: created.Add(time.Second)}},
	}
}

func TestJournal_SaveLatestMarkUndone(t *testing.T) {
	j := &Journal{FS: afero.NewMemMapFs(), Dir: "/journal"}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := j.Latest(); !errors.Is(err, ErrNoBatch) {
		t.Fatalf("Latest() on empty journal error = %v, want ErrNoBatch", err)
	}

	for i, id := range []string{"first", "second", "third"} {
		if err := j.Save(testBatch(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}

	latest, err := j.Latest()
	if err != nil {
		t.Fatalf("Latest(): %v", err)
	}
	if latest.ID != "third" {
		t.Errorf("Latest().ID = %q, want third", latest.ID)
	}
	if diff := cmp.Diff(testBatch("third", base.Add(2*time.Minute)).Entries, latest.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	undoneAt := base.Add(time.Hour)
	if err := j.MarkUndone("third", undoneAt); err != nil {
		t.Fatalf("MarkUndone(): %v", err)
	}
	latest, err = j.Latest()
	if err != nil || latest.ID != "second" {
		t.Fatalf("Latest() after undo = %v, %v, want second", latest, err)
	}

	all, err := j.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || !all[0].Undone || all[0].UndoneAt == nil || !all[0].UndoneAt.Equal(undoneAt) {
		t.Errorf("List()[0] = %+v, want third marked undone", all[0])
	}

	if err := j.MarkUndone("nope", undoneAt); !errors.Is(err, ErrNoBatch) {
		t.Errorf("MarkUndone(unknown) error = %v, want ErrNoBatch", err)
	}
}

func TestJournal_SkipsEmptyAndCorrupt(t *testing.T) {
	fs := afero.NewMemMapFs()
	j := &Journal{FS: fs, Dir: "/journal"}

	if err := j.Save(&Batch{ID: "empty", Created: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/journal/99999999T999999.999_bad.json", []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := j.Save(testBatch("good", time.Now())); err != nil {
		t.Fatal(err)
	}

	all, err := j.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].ID != "good" {
		t.Errorf("List() = %v, want only the good batch", all)
	}
}

func TestJournal_Prune(t *testing.T) {
	j := &Journal{FS: afero.NewMemMapFs(), Dir: "/journal"}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"oldest", "old", "fresh"} {
		created := now.AddDate(0, 0, -40+i*20)
		if id == "fresh" {
			created = now
		}
		if err := j.Save(testBatch(id, created)); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := j.Prune(now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("Prune() removed %d, want 2", removed)
	}
	if latest, err := j.Latest(); err != nil || latest.ID != "fresh" {
		t.Errorf("Latest() = %v, %v, want fresh", latest, err)
	}
}

func TestJournal_Lock(t *testing.T) {
	j := NewJournal(t.TempDir())

	unlock, err := j.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock(): %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if _, err := NewJournal(j.Dir).Lock(ctx); err == nil {
		t.Error("second Lock() succeeded while held")
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	again, err := NewJournal(j.Dir).Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock() after unlock: %v", err)
	}
	_ = again()
}

func TestJournal_RoundTripFromApply(t *testing.T) {
	fs := newFS(t, map[string]string{"/d/a.mkv": "a"})
	e := NewExecutor(fs, PolicySkip)
	res := e.Apply(context.Background(), e.Plan([]Pair{{Source: "/d/a.mkv", Target: "A.mkv"}}))

	j := &Journal{FS: fs, Dir: "/journal"}
	if err := j.Save(NewBatch(res, time.Now())); err != nil {
		t.Fatal(err)
	}
	b, err := j.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if b.ID != res.Batch || b.Applied != 1 {
		t.Errorf("batch = %+v, want id %s with 1 applied", b, res.Batch)
	}

	out := e.Undo(context.Background(), b.Entries)
	if len(out) != 1 || out[0].State != StateApplied {
		t.Fatalf("undo from journal = %+v", out)
	}
	if exists, _ := afero.Exists(fs, "/d/a.mkv"); !exists {
		t.Error("file not restored from journal entry")
	}
}

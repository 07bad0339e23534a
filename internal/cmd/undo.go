package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/Digital-Shane/title-resolve/internal/rename"
)

func (a *app) undoCommand() *cobra.Command {
	var (
		batchID string
		list    bool
	)
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Reverse the most recent rename batch",
		Long: `Undo the most recent batch that has not been undone yet, or the batch named by
--batch. Entries are reversed newest first; a file that changed since it was
renamed is left alone and reported as stale.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			journal := a.journal()
			if list {
				return a.listBatches(journal)
			}

			ctx := cmd.Context()
			unlock, err := journal.Lock(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = unlock() }()

			batch, err := findBatch(journal, batchID)
			if errors.Is(err, rename.ErrNoBatch) && batchID == "" {
				fmt.Fprintln(a.env.Out, "Nothing to undo.")
				return nil
			}
			if err != nil {
				return err
			}

			outcomes := rename.NewExecutor(a.env.FS, batch.Policy).Undo(ctx, batch.Entries)
			if err := journal.MarkUndone(batch.ID, a.env.Now()); err != nil {
				fmt.Fprintf(a.env.Err, "Warning: %v\n", err)
			}
			return a.printUndo(batch, outcomes)
		},
	}
	cmd.Flags().StringVar(&batchID, "batch", "", "Undo this batch instead of the latest one")
	cmd.Flags().BoolVar(&list, "list", false, "List journaled batches")
	return cmd
}

func findBatch(journal *rename.Journal, id string) (*rename.Batch, error) {
	if id == "" {
		return journal.Latest()
	}
	batches, err := journal.List(0)
	if err != nil {
		return nil, err
	}
	batch, ok := lo.Find(batches, func(b *rename.Batch) bool { return b.ID == id })
	if !ok {
		return nil, fmt.Errorf("%w: batch %s not in journal", rename.ErrNoBatch, id)
	}
	if batch.Undone {
		return nil, fmt.Errorf("batch %s was already undone", id)
	}
	return batch, nil
}

func (a *app) listBatches(journal *rename.Journal) error {
	batches, err := journal.List(20)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Fprintln(a.env.Out, "The journal is empty.")
		return nil
	}
	rows := lo.Map(batches, func(b *rename.Batch, _ int) []string {
		state := "undoable"
		if b.Undone {
			state = "undone"
		}
		return []string{
			b.ID,
			b.Created.Local().Format(time.DateTime),
			fmt.Sprint(b.Applied),
			fmt.Sprint(b.Skipped + b.Failed),
			state,
		}
	})
	fmt.Fprintln(a.env.Out, renderTable([]string{"Batch", "Created", "Renamed", "Not renamed", "State"}, rows))
	return nil
}

func (a *app) printUndo(batch *rename.Batch, outcomes []rename.UndoOutcome) error {
	rows := lo.Map(outcomes, func(o rename.UndoOutcome, _ int) []string {
		result := "restored"
		if o.Err != nil {
			result = fmt.Sprintf("%s: %v", o.State, o.Err)
		}
		return []string{display(o.Entry.Target), display(o.Entry.Source), result}
	})
	if len(rows) > 0 {
		fmt.Fprintln(a.env.Out, renderTable([]string{"File", "Restored to", "Result"}, rows))
	}

	failed := lo.CountBy(outcomes, func(o rename.UndoOutcome) bool { return o.Err != nil })
	fmt.Fprintf(a.env.Out, "Undid batch %s: %d restored, %d not restored\n", batch.ID, len(outcomes)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d entries could not be restored", failed, len(outcomes))
	}
	return nil
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Digital-Shane/title-resolve/internal/log"
	"github.com/Digital-Shane/title-resolve/internal/pipeline"
	"github.com/Digital-Shane/title-resolve/internal/rename"
)

func (a *app) applyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply [paths...]",
		Short: "Resolve and rename files, journaling the batch for undo",
		Long: `Resolve the given files and folders (the working directory by default) and rename
every resolved file. A failed rename does not stop the others. The batch is
written to the journal so "title-resolve undo" can reverse it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			policy, err := a.policy(cmd)
			if err != nil {
				return err
			}

			journal := a.journal()
			unlock, err := journal.Lock(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = unlock() }()

			r, err := a.resolve(ctx, args)
			if err != nil {
				return err
			}
			if r.canceled {
				return errors.New("canceled before renaming, no file was changed")
			}

			exec := rename.NewExecutor(a.env.FS, policy)
			res := exec.Apply(ctx, exec.Plan(pipeline.Pairs(r.results)))
			a.record(journal, res)
			return a.printApplied(r, res)
		},
	}
	addConflictFlag(cmd)
	return cmd
}

func (a *app) journal() *rename.Journal {
	return &rename.Journal{FS: a.env.FS, Dir: a.cfg.JournalDir}
}

// record journals the batch and prunes expired batches. Journal trouble is
// reported but does not fail the run; the files are already renamed.
func (a *app) record(journal *rename.Journal, res *rename.Result) {
	logger := log.For("cmd")
	now := a.env.Now()

	batch := rename.NewBatch(res, now)
	batch.CommandArgs = a.env.Args
	if err := journal.Save(batch); err != nil {
		fmt.Fprintf(a.env.Err, "Warning: batch %s was not journaled and cannot be undone: %v\n", res.Batch, err)
	}

	if a.cfg.JournalRetention > 0 {
		removed, err := journal.Prune(now.AddDate(0, 0, -a.cfg.JournalRetention))
		if err != nil {
			logger.WithError(err).Warn("journal prune failed")
		} else if removed > 0 {
			logger.WithField("removed", removed).Info("pruned old journal batches")
		}
	}
}

func (a *app) printApplied(r *run, res *rename.Result) error {
	out := a.env.Out
	if len(r.results) == 0 {
		fmt.Fprintln(out, "No media files found.")
		return nil
	}

	rows := make([][]string, 0, len(res.Plan.Operations))
	for _, op := range res.Plan.Operations {
		rows = append(rows, []string{display(op.Source), display(op.Target), operationStatus(op)})
	}
	for _, res := range r.results {
		if res.Resolved() || res.State == pipeline.StateSkipped {
			continue
		}
		target, status := describe(res)
		rows = append(rows, []string{display(res.Path), target, status})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable([]string{"File", "Renamed to", "Result"}, rows))
	}

	plan := res.Plan
	fmt.Fprintf(out, "Batch %s: %d renamed, %d skipped, %d failed\n",
		res.Batch, plan.Count(rename.StateApplied), plan.Count(rename.StateSkipped), plan.Count(rename.StateFailed))

	if failed := plan.Count(rename.StateFailed); failed > 0 {
		return fmt.Errorf("%d of %d renames failed", failed, len(plan.Operations))
	}
	return nil
}

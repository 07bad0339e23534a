package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/Digital-Shane/title-resolve/internal/pipeline"
	"github.com/Digital-Shane/title-resolve/internal/rename"
)

func (a *app) previewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview [paths...]",
		Short: "Show the proposed renames without touching any file",
		Long: `Scan the given files and folders (the working directory by default), resolve each
media file and print the rename plan, including how target conflicts would be settled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := a.policy(cmd)
			if err != nil {
				return err
			}
			r, err := a.resolve(cmd.Context(), args)
			if err != nil {
				return err
			}

			plan := rename.NewExecutor(a.env.FS, policy).DryRun(pipeline.Pairs(r.results))
			a.printPlan(r, plan)
			if r.canceled {
				fmt.Fprintln(a.env.Out, "Canceled: the plan only covers files resolved before the interrupt.")
			}
			return nil
		},
	}
	addConflictFlag(cmd)
	return cmd
}

// printPlan lists every resolved file with its planned operation, then the
// files that could not be resolved.
func (a *app) printPlan(r *run, plan *rename.Plan) {
	out := a.env.Out
	if len(r.results) == 0 {
		fmt.Fprintln(out, "No media files found.")
		return
	}

	ops := lo.SliceToMap(plan.Operations, func(op rename.Operation) (string, rename.Operation) {
		return op.Source, op
	})

	rows := make([][]string, 0, len(r.results))
	for _, res := range r.results {
		if op, ok := ops[res.Path]; ok {
			rows = append(rows, []string{
				display(res.Path),
				relativeTo(filepath.Dir(res.Path), op.Target),
				operationStatus(op),
				confidence(res),
			})
			continue
		}
		target, status := describe(res)
		rows = append(rows, []string{display(res.Path), target, status, confidence(res)})
	}
	fmt.Fprintln(out, renderTable([]string{"File", "New name", "Status", "Confidence"}, rows))

	unresolved := lo.CountBy(r.results, func(res pipeline.Result) bool {
		return !res.Resolved() && res.State != pipeline.StateSkipped
	})
	fmt.Fprintf(out, "%d files: %d to rename, %d skipped, %d failed, %d unresolved (conflict policy %s)\n",
		len(r.results), plan.Count(rename.StatePending), plan.Count(rename.StateSkipped),
		plan.Count(rename.StateFailed), unresolved, plan.Policy)
}

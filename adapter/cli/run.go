package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one collect-plan-execute cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		result, err := c.Runner.RunOnce(cmd.Context())
		if err != nil {
			return err
		}

		if result.Skipped {
			fmt.Println("Nothing changed since the last run, plan kept as is.")
			return nil
		}

		assignments := result.Plan.Assignments()
		if len(assignments) == 0 {
			fmt.Println("Nothing to schedule.")
		}
		for _, a := range assignments {
			fmt.Printf("  %s  %s\n", formatSlot(a.Slot.Start, a.Slot.End), a.Title)
		}

		if conflicts := result.Plan.Conflicts(); len(conflicts) > 0 {
			fmt.Printf("Deferred %d task(s):\n", len(conflicts))
			for _, conflict := range conflicts {
				fmt.Printf("  %s: %s\n", conflict.Cause, conflict.Detail)
			}
		}

		if result.Summary != nil {
			fmt.Printf("Executed %d action(s), %d failed, %d task(s) completed.\n",
				result.Summary.ActionsExecuted,
				result.Summary.ActionsFailed,
				result.Summary.TasksCompleted,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

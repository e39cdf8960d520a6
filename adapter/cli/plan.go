package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/planward/planward/internal/planning/domain"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the most recently emitted plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		plan, err := c.Plans.Latest(cmd.Context())
		if errors.Is(err, domain.ErrNotFound) {
			fmt.Println("No plan emitted yet.")
			return nil
		}
		if err != nil {
			return err
		}

		window := plan.Window()
		fmt.Printf("Plan for %s (emitted %s)\n",
			window.Start.Local().Format("Mon, 02 Jan 2006"),
			plan.EmittedAt().Local().Format("15:04"),
		)

		assignments := plan.Assignments()
		if len(assignments) == 0 {
			fmt.Println("  Nothing scheduled.")
		}
		for _, a := range assignments {
			fmt.Printf("  %s  %s\n", formatSlot(a.Slot.Start, a.Slot.End), a.Title)
		}

		for _, conflict := range plan.Conflicts() {
			fmt.Printf("  deferred (%s): %s\n", conflict.Cause, conflict.Detail)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}

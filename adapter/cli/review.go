package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run one review cycle over recent execution records",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		outcome, err := c.Runner.RunReview(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Reviewed %d record(s): %d rule(s) adjusted, %d proposed.\n",
			outcome.RecordsReviewed,
			outcome.RulesAdjusted,
			outcome.RulesProposed,
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}

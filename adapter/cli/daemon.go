package cli

import (
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the pipeline continuously until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		c.Runner.Start(ctx)
		<-ctx.Done()
		c.Runner.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

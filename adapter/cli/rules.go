package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the learned planning rules and their confidence",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		rules, err := c.Rules.ListAll(cmd.Context())
		if err != nil {
			return err
		}

		if len(rules) == 0 {
			fmt.Println("No rules learned yet.")
			return nil
		}

		sort.Slice(rules, func(i, j int) bool { return rules[i].Confidence() > rules[j].Confidence() })

		for _, rule := range rules {
			line := fmt.Sprintf("  %.2f  %s", rule.Confidence(), rule.Kind())
			if tag := rule.TaskTag(); tag != "" {
				line += " [" + tag + "]"
			}
			if used := rule.LastUsed(); used != nil {
				line += "  last used " + used.Local().Format("02 Jan 15:04")
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

// Package cli implements the planward command line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/planward/planward/internal/app"
)

var (
	verbose   bool
	logger    *slog.Logger
	container *app.Container
)

// SetLogger sets the logger used by all commands.
func SetLogger(l *slog.Logger) { logger = l }

// SetContainer provides the wired application container to the commands.
func SetContainer(c *app.Container) { container = c }

var rootCmd = &cobra.Command{
	Use:   "planward",
	Short: "Planward - autonomous day planner",
	Long: `Planward collects your calendar, tasks, and the weather, plans the
day around what it finds, executes the plan, and learns from how it went.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		if verbose {
			logger.Info("command start",
				"command", cmd.CommandPath(),
				"correlation_id", uuid.New().String(),
			)
		}
	},
}

// ExecuteContext runs the root command with the given context.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func requireContainer() (*app.Container, error) {
	if container == nil {
		return nil, fmt.Errorf("not connected to storage, check configuration")
	}
	return container, nil
}

func formatSlot(start, end time.Time) string {
	return fmt.Sprintf("%s - %s", start.Local().Format("15:04"), end.Local().Format("15:04"))
}

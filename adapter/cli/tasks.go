package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/planward/planward/internal/planning/domain"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage the tasks known to the planner",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the active tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		tasks, err := c.Tasks.ListActive(cmd.Context())
		if err != nil {
			return err
		}

		if len(tasks) == 0 {
			fmt.Println("No active tasks.")
			return nil
		}

		for _, task := range tasks {
			line := fmt.Sprintf("  [%s] %s (%s)", task.Status(), task.Title(), task.Priority())
			if deadline := task.Deadline(); deadline != nil {
				line += " due " + deadline.Local().Format("Mon 02 Jan 15:04")
			}
			fmt.Println(line)
		}
		return nil
	},
}

var (
	taskPriority string
	taskDue      string
	taskDesc     string
	taskDuration int
)

var tasksAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task directly to the local store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		priority, err := domain.ParsePriority(taskPriority)
		if err != nil {
			return err
		}

		var deadline *time.Time
		if taskDue != "" {
			parsed, err := time.ParseInLocation("2006-01-02 15:04", taskDue, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --due, expected \"2006-01-02 15:04\": %w", err)
			}
			deadline = &parsed
		}

		task, err := domain.NewTask(args[0], priority, deadline)
		if err != nil {
			return err
		}
		if taskDesc != "" {
			if err := task.SetDescription(taskDesc); err != nil {
				return err
			}
		}
		if taskDuration > 0 {
			if err := task.SetMetadata("duration_minutes", strconv.Itoa(taskDuration)); err != nil {
				return err
			}
		}

		if err := c.Tasks.Save(cmd.Context(), task); err != nil {
			return err
		}

		fmt.Printf("Added task %s (%s)\n", task.Title(), task.ID())
		return nil
	},
}

func init() {
	tasksAddCmd.Flags().StringVarP(&taskPriority, "priority", "p", "medium", "priority: low, medium, high")
	tasksAddCmd.Flags().StringVar(&taskDue, "due", "", "deadline, local time, e.g. \"2026-09-01 17:00\"")
	tasksAddCmd.Flags().StringVarP(&taskDesc, "description", "d", "", "task description")
	tasksAddCmd.Flags().IntVar(&taskDuration, "duration", 0, "estimated duration in minutes")

	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksAddCmd)
	rootCmd.AddCommand(tasksCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobmatch-engine/internal/task"
)

var cancelKind string

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and cancel engine tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known tasks",
	RunE: func(_ *cobra.Command, _ []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Close()
		printJSON(e.coord.Tasks())
		return nil
	},
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task's snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Close()
		snap, err := e.coord.TaskStatus(args[0])
		if err != nil {
			return err
		}
		printJSON(snap)
		return nil
	},
}

var tasksCancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Cancel one task by id, or every live task of a kind",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		if cancelKind != "" {
			n := e.coord.CancelKind(task.Kind(cancelKind))
			fmt.Printf("cancelled %d %s task(s)\n", n, cancelKind)
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("a task id or --kind is required")
		}
		if !e.coord.Cancel(args[0]) {
			return fmt.Errorf("task %s is unknown or already finished", args[0])
		}
		fmt.Printf("cancellation requested for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd, tasksShowCmd, tasksCancelCmd)
	tasksCancelCmd.Flags().StringVar(&cancelKind, "kind", "", "cancel every live task of this kind (extraction, scoring, batch_scoring)")
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmatch-engine/internal/pipeline"
	"jobmatch-engine/internal/task"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run one extraction per enabled source and wait for all of them",
	RunE: func(_ *cobra.Command, _ []string) error {
		return scheduleAll()
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func scheduleAll() error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sources := e.cfg.EnabledSources()
	id, err := e.coord.ScheduleAll(sources)
	if err != nil {
		return err
	}
	e.logger.Info("schedule-all started", zap.String("task", id), zap.Int("sources", len(sources)))

	parent, err := waitForTask(ctx, e, id)
	if err != nil {
		return err
	}
	if parent.State != task.StateSucceeded {
		printJSON(parent)
		return fmt.Errorf("schedule-all finished %s: %s", parent.State, parent.Error)
	}

	var children []string
	if result, ok := parent.Result.(pipeline.ScheduleResult); ok {
		children = result.Children
	}
	failed := 0
	for _, child := range children {
		snap, err := waitForTask(ctx, e, child)
		if err != nil {
			return err
		}
		printJSON(snap)
		if snap.State == task.StateFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d extraction runs failed", failed, len(children))
	}
	return nil
}

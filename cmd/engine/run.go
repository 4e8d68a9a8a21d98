package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmatch-engine/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine until interrupted, extracting enabled sources on a schedule",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runEngine()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runEngine() error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e.logger.Info("engine started",
		zap.String("version", version),
		zap.String("data_dir", e.cfg.App.DataDir),
		zap.Bool("schedule", e.cfg.Schedule.Enabled))

	// mirror task lifecycle events into the log
	sub := e.hub.Subscribe()
	go func() {
		for evt := range sub {
			e.logger.Debug("event", zap.String("payload", evt))
		}
	}()

	if e.cfg.Schedule.Enabled {
		go scheduler.Every(ctx, e.logger, e.cfg.ScheduleInterval(), "extract-all", func(context.Context) error {
			_, err := e.coord.ScheduleAll(e.cfg.EnabledSources())
			return err
		})
	}

	<-ctx.Done()
	e.logger.Info("shutting down")
	e.hub.Unsubscribe(sub)
	return nil
}

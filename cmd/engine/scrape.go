package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmatch-engine/internal/task"
)

var scrapeMax int

var scrapeCmd = &cobra.Command{
	Use:   "scrape <source>",
	Short: "Run one extraction against a source and wait for it to finish",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return scrapeOnce(args[0])
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeCmd.Flags().IntVarP(&scrapeMax, "max", "m", 50, "maximum records to extract (1-500)")
}

func scrapeOnce(source string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id, err := e.coord.StartExtraction(source, scrapeMax)
	if err != nil {
		return err
	}
	e.logger.Info("extraction started", zap.String("task", id), zap.String("source", source))

	snap, err := waitForTask(ctx, e, id)
	if err != nil {
		return err
	}
	printJSON(snap)
	if snap.State == task.StateFailed {
		return fmt.Errorf("extraction failed: %s", snap.Error)
	}
	return nil
}

// waitForTask polls until the task reaches a terminal state. Interrupting
// requests cancellation and keeps waiting for the task to acknowledge it.
func waitForTask(ctx context.Context, e *engine, id string) (task.Snapshot, error) {
	t := time.NewTicker(250 * time.Millisecond)
	defer t.Stop()

	done := ctx.Done()
	for {
		snap, err := e.coord.TaskStatus(id)
		if err != nil {
			return task.Snapshot{}, err
		}
		if snap.State.Terminal() {
			return snap, nil
		}
		select {
		case <-done:
			e.logger.Info("interrupt received, cancelling task", zap.String("task", id))
			e.coord.Cancel(id)
			done = nil
		case <-t.C:
		}
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmatch-engine/internal/task"
)

var (
	scoreMin   float64
	scoreLimit int
)

var scoreCmd = &cobra.Command{
	Use:   "score <profile-id> [profile-id...]",
	Short: "Score stored postings against one or more candidate profiles",
	Long: `Score stored postings against candidate profiles.

One profile id runs synchronously and prints the matches. Several ids run
as one batch task; progress is reported per profile.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return fmt.Errorf("bad profile id %q", a)
			}
			ids = append(ids, id)
		}
		return score(ids)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().Float64Var(&scoreMin, "min-score", 0.3, "minimum score to keep a match (0-1)")
	scoreCmd.Flags().IntVar(&scoreLimit, "limit", 50, "maximum matches to return per profile (1-200)")
}

func score(ids []int64) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(ids) == 1 {
		results, err := e.coord.ScoreProfile(ctx, ids[0], scoreMin, scoreLimit)
		if err != nil {
			return err
		}
		e.logger.Info("scoring finished", zap.Int64("profile", ids[0]), zap.Int("matches", len(results)))
		printJSON(results)
		return nil
	}

	id, err := e.coord.StartBatchScoring(ids, scoreMin, scoreLimit)
	if err != nil {
		return err
	}
	e.logger.Info("batch scoring started", zap.String("task", id), zap.Int("profiles", len(ids)))

	snap, err := waitForTask(ctx, e, id)
	if err != nil {
		return err
	}
	printJSON(snap)
	if snap.State == task.StateFailed {
		return fmt.Errorf("batch scoring failed: %s", snap.Error)
	}
	return nil
}

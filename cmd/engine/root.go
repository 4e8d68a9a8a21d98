package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmatch-engine/internal/config"
	"jobmatch-engine/internal/events"
	"jobmatch-engine/internal/logger"
	"jobmatch-engine/internal/pipeline"
	"jobmatch-engine/internal/rank"
	"jobmatch-engine/internal/scrape"
	"jobmatch-engine/internal/scrape/topdev"
	"jobmatch-engine/internal/scrape/util"
	"jobmatch-engine/internal/scrape/vietnamworks"
	"jobmatch-engine/internal/store"
	"jobmatch-engine/internal/task"
)

const app = "jobmatch"

var (
	cfgFile   string
	dataDir   string
	debugFlag bool
	jsonLog   bool
)

var rootCmd = &cobra.Command{
	Use:   app,
	Short: "jobmatch extracts job postings from supported boards and scores them against candidate profiles",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config.yml in the data dir)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "engine data directory (default $JOBMATCH_DATA_DIR or .)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&jsonLog, "json", "j", false, "json format for logging")
}

// engine bundles everything a command needs once config is loaded.
type engine struct {
	cfg    config.Config
	logger *zap.Logger
	hub    *events.Hub
	db     *store.DB
	orch   *task.Orchestrator
	coord  *pipeline.Coordinator
}

func newEngine() (*engine, error) {
	log, err := logger.New(jsonLog, debugFlag)
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}

	dir := dataDir
	if dir == "" {
		dir = os.Getenv("JOBMATCH_DATA_DIR")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	path := cfgFile
	if path == "" {
		path, err = config.EnsureUserConfig(dir)
		if err != nil {
			return nil, fmt.Errorf("config bootstrap: %w", err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config load (%s): %w", path, err)
	}
	cfg.App.DataDir = dir

	cfg, check := config.NormalizeAndValidate(cfg)
	for _, w := range check.Warnings {
		log.Warn("config warning", zap.String("detail", w))
	}
	if !check.OK() {
		return nil, fmt.Errorf("invalid config (%s): %v", path, check.Errors)
	}

	db, err := store.Open(filepath.Join(dir, "jobmatch.db"))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	limiter := util.NewHostLimiter(cfg.Politeness.RequestsPerSecond, cfg.Politeness.Burst)
	runner := scrape.NewRunner(log, cfg.PolitenessDelay(), cfg.PolitenessJitter())
	runner.Register(topdev.New(topdev.Config{BaseURL: cfg.Sources.TopDev.BaseURL}, limiter))
	runner.Register(vietnamworks.New(vietnamworks.Config{BaseURL: cfg.Sources.VietnamWorks.BaseURL}, limiter))

	hub := events.NewHub()
	orch := task.New(log, hub, task.Options{
		Workers:     cfg.Workers.Count,
		QueueSize:   cfg.Workers.QueueSize,
		MaxAttempts: cfg.Retry.MaxAttempts,
		BackoffBase: cfg.BackoffBase(),
		BackoffCap:  cfg.BackoffCap(),
	})
	orch.Start()

	outputs := cfg.App.OutputsDir
	if !filepath.IsAbs(outputs) {
		outputs = filepath.Join(dir, outputs)
	}
	coord := pipeline.NewCoordinator(log, runner, rank.New(), db, orch, pipeline.NewAuditWriter(outputs))

	return &engine{
		cfg:    cfg,
		logger: log,
		hub:    hub,
		db:     db,
		orch:   orch,
		coord:  coord,
	}, nil
}

func (e *engine) Close() {
	if err := e.orch.Close(); err != nil {
		e.logger.Warn("orchestrator shutdown", zap.Error(err))
	}
	e.hub.Close()
	if err := e.db.Close(); err != nil {
		e.logger.Warn("closing store", zap.Error(err))
	}
	_ = e.logger.Sync()
}

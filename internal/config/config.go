package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type SourceSettings struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	// MaxRecords is the per-run cap used by scheduled runs. One-shot runs
	// pass their own cap.
	MaxRecords int `yaml:"max_records"`
}

type Config struct {
	App struct {
		DataDir    string `yaml:"data_dir"`
		OutputsDir string `yaml:"outputs_dir"`
	} `yaml:"app"`

	Workers struct {
		Count     int `yaml:"count"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"workers"`

	Retry struct {
		MaxAttempts   int `yaml:"max_attempts"`
		BackoffBaseMS int `yaml:"backoff_base_ms"`
		BackoffCapMS  int `yaml:"backoff_cap_ms"`
	} `yaml:"retry"`

	Politeness struct {
		DelayMS           int     `yaml:"delay_ms"`
		JitterMS          int     `yaml:"jitter_ms"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"politeness"`

	Schedule struct {
		Enabled         bool `yaml:"enabled"`
		IntervalMinutes int  `yaml:"interval_minutes"`
	} `yaml:"schedule"`

	Sources struct {
		TopDev       SourceSettings `yaml:"topdev"`
		VietnamWorks SourceSettings `yaml:"vietnamworks"`
	} `yaml:"sources"`

	Scoring struct {
		MinScore float64 `yaml:"min_score"`
		Limit    int     `yaml:"limit"`
	} `yaml:"scoring"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}

// Default is the config written on first start.
func Default() Config {
	var cfg Config
	cfg.App.DataDir = "."
	cfg.App.OutputsDir = "outputs"
	cfg.Workers.Count = 4
	cfg.Workers.QueueSize = 64
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.BackoffBaseMS = 1000
	cfg.Retry.BackoffCapMS = 60000
	cfg.Politeness.DelayMS = 1000
	cfg.Politeness.JitterMS = 250
	cfg.Politeness.RequestsPerSecond = 2
	cfg.Politeness.Burst = 1
	cfg.Schedule.IntervalMinutes = 60
	cfg.Sources.TopDev = SourceSettings{Enabled: true, MaxRecords: 50}
	cfg.Sources.VietnamWorks = SourceSettings{Enabled: true, MaxRecords: 50}
	cfg.Scoring.MinScore = 0.3
	cfg.Scoring.Limit = 50
	return cfg
}

func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Retry.BackoffBaseMS) * time.Millisecond
}

func (c Config) BackoffCap() time.Duration {
	return time.Duration(c.Retry.BackoffCapMS) * time.Millisecond
}

func (c Config) PolitenessDelay() time.Duration {
	return time.Duration(c.Politeness.DelayMS) * time.Millisecond
}

func (c Config) PolitenessJitter() time.Duration {
	return time.Duration(c.Politeness.JitterMS) * time.Millisecond
}

func (c Config) ScheduleInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

// EnabledSources lists the sources scheduled runs should cover, with their
// per-run caps.
func (c Config) EnabledSources() map[string]int {
	out := map[string]int{}
	if c.Sources.TopDev.Enabled {
		out["topdev"] = c.Sources.TopDev.MaxRecords
	}
	if c.Sources.VietnamWorks.Enabled {
		out["vietnamworks"] = c.Sources.VietnamWorks.MaxRecords
	}
	return out
}

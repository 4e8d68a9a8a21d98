package config

import (
	"fmt"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate fills gaps with defaults and collects every problem
// instead of stopping at the first one.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	def := Default()
	var res Validation

	if strings.TrimSpace(out.App.DataDir) == "" {
		out.App.DataDir = def.App.DataDir
	}
	if strings.TrimSpace(out.App.OutputsDir) == "" {
		out.App.OutputsDir = def.App.OutputsDir
	}

	if out.Workers.Count <= 0 {
		out.Workers.Count = def.Workers.Count
	} else if out.Workers.Count > 32 {
		res.addWarn("workers.count is very high (%d); sources may throttle you.", out.Workers.Count)
	}
	if out.Workers.QueueSize <= 0 {
		out.Workers.QueueSize = def.Workers.QueueSize
	}

	if out.Retry.MaxAttempts <= 0 {
		out.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if out.Retry.BackoffBaseMS <= 0 {
		out.Retry.BackoffBaseMS = def.Retry.BackoffBaseMS
	}
	if out.Retry.BackoffCapMS < out.Retry.BackoffBaseMS {
		res.addErr("retry.backoff_cap_ms (%d) must be >= retry.backoff_base_ms (%d)",
			out.Retry.BackoffCapMS, out.Retry.BackoffBaseMS)
	}

	if out.Politeness.DelayMS < 0 {
		res.addErr("politeness.delay_ms must be >= 0")
	}
	if out.Politeness.JitterMS < 0 {
		res.addErr("politeness.jitter_ms must be >= 0")
	}
	if out.Politeness.RequestsPerSecond <= 0 {
		out.Politeness.RequestsPerSecond = def.Politeness.RequestsPerSecond
	}
	if out.Politeness.Burst <= 0 {
		out.Politeness.Burst = def.Politeness.Burst
	}

	if out.Schedule.Enabled && out.Schedule.IntervalMinutes <= 0 {
		res.addErr("schedule.interval_minutes must be > 0 when schedule.enabled=true")
	}

	checkSource := func(name string, s *SourceSettings) {
		if !s.Enabled {
			return
		}
		if s.MaxRecords <= 0 {
			s.MaxRecords = 50
		}
		if s.MaxRecords > 500 {
			res.addErr("sources.%s.max_records must be <= 500", name)
		}
	}
	checkSource("topdev", &out.Sources.TopDev)
	checkSource("vietnamworks", &out.Sources.VietnamWorks)

	if !out.Sources.TopDev.Enabled && !out.Sources.VietnamWorks.Enabled {
		res.addWarn("no sources enabled; scheduled runs will do nothing.")
	}

	if out.Scoring.MinScore < 0 || out.Scoring.MinScore > 1 {
		res.addErr("scoring.min_score must be within [0.0, 1.0]")
	}
	if out.Scoring.MinScore == 0 {
		out.Scoring.MinScore = def.Scoring.MinScore
	}
	if out.Scoring.Limit <= 0 {
		out.Scoring.Limit = def.Scoring.Limit
	} else if out.Scoring.Limit > 200 {
		res.addErr("scoring.limit must be <= 200")
	}

	return out, res
}

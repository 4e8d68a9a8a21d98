package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/rank"
	"jobmatch-engine/internal/scrape"
	"jobmatch-engine/internal/store"
	"jobmatch-engine/internal/task"
)

const (
	maxRecordsCap    = 500
	defaultMinScore  = 0.3
	defaultLimit     = 50
	limitCap         = 200
	batchProfilesCap = 100

	// cap applied when a scheduled source carries a bad per-run cap
	defaultScheduledCap = 50
)

// ExtractionResult is what a finished extraction task reports.
type ExtractionResult struct {
	Source    string `json:"source"`
	Fetched   int    `json:"fetched"`
	Added     int    `json:"added"`
	Skipped   int    `json:"skipped"`
	Pages     int    `json:"pages"`
	AuditFile string `json:"audit_file"`
}

// ScoringResult is what a finished scoring task reports.
type ScoringResult struct {
	ProfileID int64 `json:"profile_id"`
	Scored    int   `json:"scored"`
	Kept      int   `json:"kept"`
}

// BatchScoringResult aggregates the per-profile outcomes of a batch run.
type BatchScoringResult struct {
	Profiles []ScoringResult `json:"profiles"`
}

// ScheduleResult lists the extraction tasks a schedule-all run spawned.
type ScheduleResult struct {
	Children []string `json:"children"`
}

// Coordinator ties the extraction runner, the scorer, the store and the
// orchestrator together. It owns input validation: bad parameters are
// rejected before a task ever exists.
type Coordinator struct {
	logger *zap.Logger
	runner *scrape.Runner
	scorer *rank.Scorer
	db     *store.DB
	orch   *task.Orchestrator
	audit  *AuditWriter
}

func NewCoordinator(logger *zap.Logger, runner *scrape.Runner, scorer *rank.Scorer, db *store.DB, orch *task.Orchestrator, audit *AuditWriter) *Coordinator {
	return &Coordinator{
		logger: logger,
		runner: runner,
		scorer: scorer,
		db:     db,
		orch:   orch,
		audit:  audit,
	}
}

// StartExtraction launches an async extraction run against one source and
// returns the task id.
func (c *Coordinator) StartExtraction(source string, maxRecords int) (string, error) {
	return c.startExtraction(source, maxRecords, true)
}

func (c *Coordinator) startExtraction(source string, maxRecords int, wait bool) (string, error) {
	if _, ok := c.runner.Lookup(source); !ok {
		return "", domain.ValidationError("unknown source %q, known: %v", source, c.runner.Known())
	}
	if maxRecords < 1 || maxRecords > maxRecordsCap {
		return "", domain.ValidationError("max records must be in [1,%d], got %d", maxRecordsCap, maxRecords)
	}

	params := task.Params{Source: source, MaxRecords: maxRecords}
	fn := func(ctx context.Context, h *task.Handle) error {
		return c.runExtraction(ctx, h, source, maxRecords)
	}
	if !wait {
		return c.orch.EnqueueNoWait(task.KindExtraction, params, fn)
	}
	return c.orch.Enqueue(task.KindExtraction, params, fn)
}

func (c *Coordinator) runExtraction(ctx context.Context, h *task.Handle, source string, maxRecords int) error {
	started := time.Now()

	res, err := c.runner.Run(ctx, source, maxRecords, func(current, total int, status string) {
		h.SetProgress(current, total, status)
	})
	if err != nil {
		return err
	}

	added := 0
	for _, p := range res.Postings {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := c.db.InsertPostingIgnore(ctx, p)
		if err != nil {
			return fmt.Errorf("persist posting %s: %w", p.Key(), err)
		}
		if ok {
			added++
		}
	}

	auditFile, err := c.audit.WriteRun(source, started, res.Postings)
	if err != nil {
		return err
	}

	c.logger.Info("extraction run finished",
		zap.String("source", source),
		zap.Int("fetched", len(res.Postings)),
		zap.Int("added", added),
		zap.Int("skipped", res.Skipped),
		zap.Int("pages", res.Pages))

	h.SetProgress(len(res.Postings), maxRecords, "done")
	h.SetResult(ExtractionResult{
		Source:    source,
		Fetched:   len(res.Postings),
		Added:     added,
		Skipped:   res.Skipped,
		Pages:     res.Pages,
		AuditFile: auditFile,
	})
	return nil
}

// ScoreProfile runs scoring synchronously: load the profile and the stored
// postings, score, persist the surviving matches, return them best first.
// A zero limit means the default.
func (c *Coordinator) ScoreProfile(ctx context.Context, profileID int64, minScore float64, limit int) ([]domain.MatchResult, error) {
	if minScore < 0 || minScore > 1 {
		return nil, domain.ValidationError("min score must be in [0,1], got %g", minScore)
	}
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < 1 || limit > limitCap {
		return nil, domain.ValidationError("limit must be in [1,%d], got %d", limitCap, limit)
	}

	profile, err := c.db.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	postings, err := c.db.ListPostings(ctx, 0)
	if err != nil {
		return nil, err
	}

	results := c.scorer.Score(profile, postings, minScore)
	if err := c.db.ReplaceMatches(ctx, profileID, results); err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// StartScoring runs ScoreProfile as an async task.
func (c *Coordinator) StartScoring(profileID int64, minScore float64, limit int) (string, error) {
	if minScore < 0 || minScore > 1 {
		return "", domain.ValidationError("min score must be in [0,1], got %g", minScore)
	}
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < 1 || limit > limitCap {
		return "", domain.ValidationError("limit must be in [1,%d], got %d", limitCap, limit)
	}

	params := task.Params{ProfileID: profileID, MinScore: minScore, Limit: limit}
	return c.orch.Enqueue(task.KindScoring, params, func(ctx context.Context, h *task.Handle) error {
		results, err := c.ScoreProfile(ctx, profileID, minScore, limit)
		if err != nil {
			return err
		}
		h.SetResult(ScoringResult{ProfileID: profileID, Scored: len(results), Kept: len(results)})
		return nil
	})
}

// StartBatchScoring scores up to 100 profiles sequentially in one task,
// reporting per-profile progress. A missing profile fails the whole batch.
func (c *Coordinator) StartBatchScoring(profileIDs []int64, minScore float64, limit int) (string, error) {
	if len(profileIDs) == 0 {
		return "", domain.ValidationError("at least one profile id is required")
	}
	if len(profileIDs) > batchProfilesCap {
		return "", domain.ValidationError("at most %d profiles per batch, got %d", batchProfilesCap, len(profileIDs))
	}
	if minScore < 0 || minScore > 1 {
		return "", domain.ValidationError("min score must be in [0,1], got %g", minScore)
	}
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < 1 || limit > limitCap {
		return "", domain.ValidationError("limit must be in [1,%d], got %d", limitCap, limit)
	}

	ids := make([]int64, len(profileIDs))
	copy(ids, profileIDs)

	params := task.Params{ProfileIDs: ids, MinScore: minScore, Limit: limit}
	return c.orch.Enqueue(task.KindBatchScoring, params, func(ctx context.Context, h *task.Handle) error {
		var out BatchScoringResult
		for i, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			h.SetProgress(i, len(ids), fmt.Sprintf("profile %d", id))
			results, err := c.ScoreProfile(ctx, id, minScore, limit)
			if err != nil {
				return fmt.Errorf("profile %d: %w", id, err)
			}
			out.Profiles = append(out.Profiles, ScoringResult{
				ProfileID: id, Scored: len(results), Kept: len(results),
			})
		}
		h.SetProgress(len(ids), len(ids), "done")
		h.SetResult(out)
		return nil
	})
}

// ScheduleAll fans one extraction task out per enabled source. The parent
// task only enqueues children and finishes immediately; it never waits on
// them. Children enqueue without blocking: the parent runs on a worker
// slot, and waiting there for queue space could wedge the whole pool.
func (c *Coordinator) ScheduleAll(sources map[string]int) (string, error) {
	if len(sources) == 0 {
		return "", domain.ValidationError("no sources enabled")
	}

	return c.orch.Enqueue(task.KindScheduleAll, task.Params{}, func(ctx context.Context, h *task.Handle) error {
		var result ScheduleResult
		for _, name := range c.runner.Known() {
			maxRecords, ok := sources[name]
			if !ok {
				continue
			}
			if maxRecords < 1 || maxRecords > maxRecordsCap {
				maxRecords = defaultScheduledCap
			}
			id, err := c.startExtraction(name, maxRecords, false)
			if err != nil {
				return fmt.Errorf("schedule %s: %w", name, err)
			}
			result.Children = append(result.Children, id)
		}
		h.SetResult(result)
		return nil
	})
}

// TaskStatus returns the latest snapshot for a task id.
func (c *Coordinator) TaskStatus(id string) (task.Snapshot, error) {
	return c.orch.Status(id)
}

// Tasks lists every known task.
func (c *Coordinator) Tasks() []task.Snapshot {
	return c.orch.List()
}

// Cancel requests cancellation of one task.
func (c *Coordinator) Cancel(id string) bool {
	return c.orch.Cancel(id)
}

// CancelKind cancels every live task of a kind.
func (c *Coordinator) CancelKind(kind task.Kind) int {
	return c.orch.CancelAll(kind)
}

package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/events"
)

type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int           // total executions, not extra retries
	BackoffBase time.Duration // delay grows base << attempt
	BackoffCap  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap < o.BackoffBase {
		o.BackoffCap = time.Minute
	}
	return o
}

// Orchestrator runs task bodies on a bounded worker pool with per-task
// state tracking, exponential backoff retry and cooperative cancellation.
// It is the only component that mutates task state; everyone else polls
// snapshots.
type Orchestrator struct {
	opts   Options
	logger *zap.Logger
	hub    *events.Hub
	reg    *registry
	queue  chan string

	ctx    context.Context
	cancel context.CancelFunc
	g      errgroup.Group

	startOnce sync.Once
	closeOnce sync.Once
}

func New(logger *zap.Logger, hub *events.Hub, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:   opts,
		logger: logger,
		hub:    hub,
		reg:    newRegistry(),
		queue:  make(chan string, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start spawns the worker pool. Safe to call once; Enqueue before Start
// just queues.
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		for i := 0; i < o.opts.Workers; i++ {
			o.g.Go(o.worker)
		}
	})
}

// Close stops accepting work, cancels running tasks and waits for the
// workers to drain.
func (o *Orchestrator) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.cancel()
		err = o.g.Wait()
	})
	return err
}

// Enqueue registers a task and hands it to the pool. Blocks while the
// bounded queue is full.
func (o *Orchestrator) Enqueue(kind Kind, params Params, fn Func) (string, error) {
	return o.enqueue(kind, params, fn, true)
}

// EnqueueNoWait is Enqueue for callers that already occupy a worker slot,
// such as a task spawning child tasks. A full queue fails the child
// immediately instead of deadlocking the pool.
func (o *Orchestrator) EnqueueNoWait(kind Kind, params Params, fn Func) (string, error) {
	return o.enqueue(kind, params, fn, false)
}

func (o *Orchestrator) enqueue(kind Kind, params Params, fn Func, wait bool) (string, error) {
	if fn == nil {
		return "", domain.ValidationError("task body is required")
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	o.reg.add(Snapshot{
		ID:        id,
		Kind:      kind,
		Params:    params,
		State:     StatePending,
		CreatedAt: now,
	}, fn)

	if wait {
		select {
		case o.queue <- id:
		case <-o.ctx.Done():
			o.reg.complete(id, StateCancelled, "engine shutting down", time.Now().UTC())
			return "", errors.New("orchestrator is shut down")
		}
	} else {
		select {
		case o.queue <- id:
		case <-o.ctx.Done():
			o.reg.complete(id, StateCancelled, "engine shutting down", time.Now().UTC())
			return "", errors.New("orchestrator is shut down")
		default:
			o.reg.complete(id, StateFailed, "task queue is full", time.Now().UTC())
			return "", errors.New("task queue is full")
		}
	}

	o.publish("task_enqueued", id, map[string]any{"kind": kind})
	return id, nil
}

// Status returns the latest snapshot for id.
func (o *Orchestrator) Status(id string) (Snapshot, error) {
	snap, ok := o.reg.snapshot(id)
	if !ok {
		return Snapshot{}, domain.NotFoundError("unknown task %q", id)
	}
	return snap, nil
}

func (o *Orchestrator) List() []Snapshot {
	return o.reg.list()
}

// Cancel requests a cooperative stop. Unknown or already-terminal tasks
// report false and stay untouched.
func (o *Orchestrator) Cancel(id string) bool {
	ok := o.reg.requestCancel(id, time.Now().UTC())
	if ok {
		o.publish("task_cancel_requested", id, nil)
	}
	return ok
}

// CancelAll cancels every live task of the given kind and returns how many
// were affected.
func (o *Orchestrator) CancelAll(kind Kind) int {
	n := o.reg.requestCancelAll(kind, time.Now().UTC())
	if n > 0 {
		o.publish("tasks_cancel_requested", "", map[string]any{"kind": kind, "count": n})
	}
	return n
}

func (o *Orchestrator) worker() error {
	for {
		select {
		case <-o.ctx.Done():
			return nil
		case id := <-o.queue:
			o.run(id)
		}
	}
}

func (o *Orchestrator) run(id string) {
	ctx, cancel := context.WithCancel(o.ctx)
	defer cancel()

	attempt, ok := o.reg.markRunning(id, cancel, time.Now().UTC())
	if !ok {
		// cancelled while queued
		return
	}
	o.publish("task_started", id, map[string]any{"attempt": attempt})

	err := o.invoke(ctx, id)
	now := time.Now().UTC()

	switch {
	case err == nil:
		o.reg.complete(id, StateSucceeded, "", now)
		o.publish("task_succeeded", id, nil)

	case o.reg.isCancelRequested(id) || errors.Is(err, context.Canceled):
		o.reg.complete(id, StateCancelled, "", now)
		o.publish("task_cancelled", id, nil)

	case domain.Retryable(err) && attempt < o.opts.MaxAttempts:
		delay := o.backoff(attempt)
		if !o.reg.backoffPending(id, fmt.Sprintf("retry %d scheduled in %s", attempt+1, delay), now) {
			// cancel arrived after the body returned; the retry is off
			o.publish("task_cancelled", id, nil)
			return
		}
		o.logger.Warn("task attempt failed, retrying",
			zap.String("task", id),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		o.reg.setRetryTimer(id, time.AfterFunc(delay, func() { o.requeue(id) }))
		o.publish("task_retrying", id, map[string]any{"attempt": attempt, "backoff": delay.String()})

	default:
		detail := errDetail(err)
		o.logger.Error("task failed",
			zap.String("task", id),
			zap.Int("attempt", attempt),
			zap.Error(err))
		o.reg.complete(id, StateFailed, detail, now)
		o.publish("task_failed", id, map[string]any{"error": detail})
	}
}

func (o *Orchestrator) invoke(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	fn := o.reg.fn(id)
	if fn == nil {
		return domain.NotFoundError("task body for %q disappeared", id)
	}
	return fn(ctx, &Handle{id: id, reg: o.reg})
}

func (o *Orchestrator) requeue(id string) {
	if !o.reg.claimRetry(id) {
		// cancelled during the backoff wait
		return
	}
	select {
	case o.queue <- id:
	case <-o.ctx.Done():
	}
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := o.opts.BackoffBase << attempt
	if d <= 0 || d > o.opts.BackoffCap {
		d = o.opts.BackoffCap
	}
	return d
}

func (o *Orchestrator) publish(typ, id string, data any) {
	if o.hub != nil {
		o.hub.Publish(events.Make(typ, id, data))
	}
}

// errDetail renders the taxonomy kind and message a Failed task carries.
func errDetail(err error) string {
	if domain.KindOf(err) != "" {
		return err.Error()
	}
	return "internal: " + err.Error()
}

package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"jobmatch-engine/internal/domain"
)

func newTestOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Millisecond
	}
	if opts.BackoffCap == 0 {
		opts.BackoffCap = 10 * time.Millisecond
	}
	o := New(zap.NewNop(), nil, opts)
	o.Start()
	t.Cleanup(func() { _ = o.Close() })
	return o
}

// waitTerminal polls until the task reaches a terminal state.
func waitTerminal(t *testing.T, o *Orchestrator, id string) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := o.Status(id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if snap.State.Terminal() {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", id)
	return Snapshot{}
}

func TestTaskSucceedsFirstAttempt(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	id, err := o.Enqueue(KindExtraction, Params{Source: "topdev"}, func(_ context.Context, h *Handle) error {
		h.SetResult("done")
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	snap := waitTerminal(t, o, id)
	if snap.State != StateSucceeded {
		t.Fatalf("state = %s, want succeeded", snap.State)
	}
	if snap.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", snap.Attempt)
	}
	if snap.Result != "done" {
		t.Fatalf("result = %v, want done", snap.Result)
	}
	if snap.StartedAt == nil || snap.CompletedAt == nil {
		t.Fatal("missing start or completion timestamp")
	}
}

func TestTaskRetriesTransientFailures(t *testing.T) {
	o := newTestOrchestrator(t, Options{MaxAttempts: 3})

	var calls atomic.Int32
	id, err := o.Enqueue(KindExtraction, Params{}, func(context.Context, *Handle) error {
		if calls.Add(1) <= 2 {
			return domain.TransportError(errors.New("timeout"), "fetch page")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	snap := waitTerminal(t, o, id)
	if snap.State != StateSucceeded {
		t.Fatalf("state = %s (%s), want succeeded", snap.State, snap.Error)
	}
	if snap.Attempt != 3 {
		t.Fatalf("attempt = %d, want 3 after two failures", snap.Attempt)
	}
}

func TestTaskFailsAfterMaxAttempts(t *testing.T) {
	o := newTestOrchestrator(t, Options{MaxAttempts: 3})

	var calls atomic.Int32
	id, err := o.Enqueue(KindExtraction, Params{}, func(context.Context, *Handle) error {
		calls.Add(1)
		return domain.TransportError(errors.New("timeout"), "fetch page")
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	snap := waitTerminal(t, o, id)
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("body ran %d times, want 3", got)
	}
	if snap.Attempt != 3 {
		t.Fatalf("attempt = %d, want 3", snap.Attempt)
	}
	if snap.Error == "" {
		t.Fatal("failed task carries no error detail")
	}
}

func TestValidationErrorNeverRetries(t *testing.T) {
	o := newTestOrchestrator(t, Options{MaxAttempts: 3})

	var calls atomic.Int32
	id, _ := o.Enqueue(KindScoring, Params{}, func(context.Context, *Handle) error {
		calls.Add(1)
		return domain.ValidationError("bad input")
	})

	snap := waitTerminal(t, o, id)
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("body ran %d times, want 1", got)
	}
}

func TestPanicFailsTask(t *testing.T) {
	o := newTestOrchestrator(t, Options{MaxAttempts: 1})

	id, _ := o.Enqueue(KindScoring, Params{}, func(context.Context, *Handle) error {
		panic("boom")
	})

	snap := waitTerminal(t, o, id)
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
}

func TestCancelRunningTask(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	started := make(chan struct{})
	id, _ := o.Enqueue(KindExtraction, Params{}, func(ctx context.Context, _ *Handle) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	if !o.Cancel(id) {
		t.Fatal("cancel of a running task reported false")
	}

	snap := waitTerminal(t, o, id)
	if snap.State != StateCancelled {
		t.Fatalf("state = %s, want cancelled", snap.State)
	}
}

func TestCancelTerminalTaskReportsFalse(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	id, _ := o.Enqueue(KindExtraction, Params{}, func(context.Context, *Handle) error {
		return nil
	})
	waitTerminal(t, o, id)

	if o.Cancel(id) {
		t.Fatal("cancel of a finished task reported true")
	}
	if o.Cancel("no-such-task") {
		t.Fatal("cancel of an unknown task reported true")
	}
}

func TestCancelDuringBackoffWait(t *testing.T) {
	o := newTestOrchestrator(t, Options{MaxAttempts: 3, BackoffBase: time.Hour, BackoffCap: time.Hour})

	ran := make(chan struct{})
	id, _ := o.Enqueue(KindExtraction, Params{}, func(context.Context, *Handle) error {
		close(ran)
		return domain.TransportError(errors.New("timeout"), "fetch")
	})
	<-ran

	// wait for the retry to be scheduled, then cancel while pending
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, _ := o.Status(id)
		if snap.State == StatePending && snap.Attempt == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never entered backoff")
		}
		time.Sleep(time.Millisecond)
	}

	if !o.Cancel(id) {
		t.Fatal("cancel during backoff reported false")
	}
	snap := waitTerminal(t, o, id)
	if snap.State != StateCancelled {
		t.Fatalf("state = %s, want cancelled", snap.State)
	}
	if snap.Attempt != 1 {
		t.Fatalf("attempt = %d, the retry ran anyway", snap.Attempt)
	}
}

// With one worker occupied and the queue slot taken, a non-blocking
// enqueue must fail the new task immediately instead of waiting for space.
func TestEnqueueNoWaitFailsOnFullQueue(t *testing.T) {
	o := newTestOrchestrator(t, Options{Workers: 1, QueueSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	blocker, err := o.Enqueue(KindExtraction, Params{}, func(ctx context.Context, _ *Handle) error {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue blocker: %v", err)
	}
	<-started

	// the worker is busy, so this one parks in the only queue slot
	filler, err := o.Enqueue(KindExtraction, Params{}, func(context.Context, *Handle) error { return nil })
	if err != nil {
		t.Fatalf("enqueue filler: %v", err)
	}

	if _, err := o.EnqueueNoWait(KindExtraction, Params{}, func(context.Context, *Handle) error { return nil }); err == nil {
		t.Fatal("expected an error from a full queue")
	}

	// the rejected task stays visible as failed
	var rejected bool
	for _, snap := range o.List() {
		if snap.State == StateFailed && snap.Error == "task queue is full" {
			rejected = true
		}
	}
	if !rejected {
		t.Fatal("rejected task not recorded as failed")
	}

	close(release)
	if snap := waitTerminal(t, o, blocker); snap.State != StateSucceeded {
		t.Fatalf("blocker state = %s", snap.State)
	}
	if snap := waitTerminal(t, o, filler); snap.State != StateSucceeded {
		t.Fatalf("filler state = %s", snap.State)
	}
}

// A cancel acknowledged while the task runs must survive the worker
// deciding to retry a transient failure: the retry is dropped and the task
// finishes Cancelled.
func TestCancelBetweenFailedAttemptAndRetrySchedulingWins(t *testing.T) {
	reg := newRegistry()
	now := time.Now().UTC()
	reg.add(Snapshot{ID: "t1", Kind: KindExtraction, State: StatePending, CreatedAt: now},
		func(context.Context, *Handle) error { return nil })

	if _, ok := reg.markRunning("t1", func() {}, now); !ok {
		t.Fatal("could not claim the task")
	}
	if !reg.requestCancel("t1", now) {
		t.Fatal("cancel of a running task reported false")
	}

	// the worker saw a retryable failure and tries to park the task before
	// it observed the cancel flag
	if reg.backoffPending("t1", "retry scheduled", now) {
		t.Fatal("retry parked despite an acknowledged cancel")
	}

	snap, ok := reg.snapshot("t1")
	if !ok {
		t.Fatal("task vanished")
	}
	if snap.State != StateCancelled {
		t.Fatalf("state = %s, want cancelled", snap.State)
	}
	if snap.CompletedAt == nil {
		t.Fatal("cancelled task carries no completion timestamp")
	}
	if reg.claimRetry("t1") {
		t.Fatal("retry still claimable after the cancel won")
	}
}

func TestCancelAllByKind(t *testing.T) {
	o := newTestOrchestrator(t, Options{Workers: 2})

	started := make(chan struct{}, 2)
	body := func(ctx context.Context, _ *Handle) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}

	a, _ := o.Enqueue(KindExtraction, Params{}, body)
	b, _ := o.Enqueue(KindExtraction, Params{}, body)
	<-started
	<-started

	if n := o.CancelAll(KindExtraction); n != 2 {
		t.Fatalf("cancelled %d tasks, want 2", n)
	}
	for _, id := range []string{a, b} {
		if snap := waitTerminal(t, o, id); snap.State != StateCancelled {
			t.Fatalf("task %s state = %s, want cancelled", id, snap.State)
		}
	}
}

func TestProgressVisibleWhileRunning(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	reported := make(chan struct{})
	release := make(chan struct{})
	id, _ := o.Enqueue(KindExtraction, Params{}, func(_ context.Context, h *Handle) error {
		h.SetProgress(3, 10, "page 1")
		close(reported)
		<-release
		return nil
	})

	<-reported
	snap, err := o.Status(id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snap.Progress.Current != 3 || snap.Progress.Total != 10 {
		t.Fatalf("progress = %+v, want 3/10", snap.Progress)
	}
	close(release)
	waitTerminal(t, o, id)
}

func TestStatusUnknownTask(t *testing.T) {
	o := newTestOrchestrator(t, Options{})
	if _, err := o.Status("nope"); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestListReturnsSnapshots(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	id, _ := o.Enqueue(KindExtraction, Params{Source: "topdev"}, func(context.Context, *Handle) error {
		return nil
	})
	waitTerminal(t, o, id)

	list := o.List()
	if len(list) != 1 {
		t.Fatalf("list has %d entries, want 1", len(list))
	}
	if list[0].ID != id || list[0].Params.Source != "topdev" {
		t.Fatalf("unexpected snapshot %+v", list[0])
	}
}

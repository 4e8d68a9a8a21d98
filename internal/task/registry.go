package task

import (
	"context"
	"sync"
	"time"
)

// entry is the registry's mutable record for one task. All access goes
// through the registry mutex; snapshots returned to callers are copies.
type entry struct {
	snap            Snapshot
	fn              Func
	cancel          context.CancelFunc
	cancelRequested bool
	retryTimer      *time.Timer
}

type registry struct {
	mu    sync.RWMutex
	tasks map[string]*entry
}

func newRegistry() *registry {
	return &registry{tasks: make(map[string]*entry)}
}

func (r *registry) add(snap Snapshot, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[snap.ID] = &entry{snap: snap, fn: fn}
}

func (r *registry) snapshot(id string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[id]
	if !ok {
		return Snapshot{}, false
	}
	return copySnapshot(e.snap), true
}

func (r *registry) list() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.tasks))
	for _, e := range r.tasks {
		out = append(out, copySnapshot(e.snap))
	}
	return out
}

func (r *registry) fn(id string) Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.tasks[id]; ok {
		return e.fn
	}
	return nil
}

// markRunning moves a pending task to running and hands the orchestrator
// its attempt number. A task cancelled while queued fails the claim.
func (r *registry) markRunning(id string, cancel context.CancelFunc, now time.Time) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok || e.snap.State != StatePending {
		return 0, false
	}
	e.snap.State = StateRunning
	e.snap.Attempt++
	if e.snap.StartedAt == nil {
		t := now
		e.snap.StartedAt = &t
	}
	e.cancel = cancel
	e.retryTimer = nil
	return e.snap.Attempt, true
}

func (r *registry) setProgress(id string, current, total int, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.tasks[id]; ok && !e.snap.State.Terminal() {
		e.snap.Progress = Progress{Current: current, Total: total, Status: status}
	}
}

func (r *registry) setResult(id string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.tasks[id]; ok && !e.snap.State.Terminal() {
		e.snap.Result = v
	}
}

func (r *registry) complete(id string, state State, errDetail string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok || e.snap.State.Terminal() {
		return
	}
	e.snap.State = state
	e.snap.Error = errDetail
	t := now
	e.snap.CompletedAt = &t
	e.cancel = nil
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
}

// backoffPending parks a failed attempt until its retry timer fires. A
// cancel that landed after the body returned wins over the retry: the task
// completes Cancelled and false comes back so no timer is armed.
func (r *registry) backoffPending(id string, status string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok || e.snap.State.Terminal() {
		return false
	}
	if e.cancelRequested {
		e.snap.State = StateCancelled
		t := now
		e.snap.CompletedAt = &t
		e.cancel = nil
		e.cancelRequested = false
		return false
	}
	e.snap.State = StatePending
	e.snap.Progress.Status = status
	e.cancel = nil
	return true
}

func (r *registry) setRetryTimer(id string, t *time.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok {
		t.Stop()
		return
	}
	if e.snap.State != StatePending {
		// cancelled between the attempt ending and the timer registration
		t.Stop()
		return
	}
	e.retryTimer = t
}

// claimRetry is called by the fired retry timer; it reports whether the task
// is still waiting to run.
func (r *registry) claimRetry(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok || e.snap.State != StatePending {
		return false
	}
	e.retryTimer = nil
	return true
}

func (r *registry) isCancelRequested(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.tasks[id]; ok {
		return e.cancelRequested
	}
	return false
}

// requestCancel signals a cooperative stop. Pending tasks become Cancelled
// immediately; running ones get their context cancelled and transition when
// the body observes it. Unknown or terminal tasks report false.
func (r *registry) requestCancel(id string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requestCancelLocked(id, now)
}

func (r *registry) requestCancelLocked(id string, now time.Time) bool {
	e, ok := r.tasks[id]
	if !ok || e.snap.State.Terminal() {
		return false
	}
	switch e.snap.State {
	case StatePending:
		if e.retryTimer != nil {
			e.retryTimer.Stop()
			e.retryTimer = nil
		}
		e.snap.State = StateCancelled
		t := now
		e.snap.CompletedAt = &t
	case StateRunning:
		e.cancelRequested = true
		if e.cancel != nil {
			e.cancel()
		}
	}
	return true
}

func (r *registry) requestCancelAll(kind Kind, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, e := range r.tasks {
		if e.snap.Kind != kind || e.snap.State.Terminal() {
			continue
		}
		if r.requestCancelLocked(id, now) {
			count++
		}
	}
	return count
}

func copySnapshot(s Snapshot) Snapshot {
	out := s
	if s.Params.ProfileIDs != nil {
		out.Params.ProfileIDs = append([]int64(nil), s.Params.ProfileIDs...)
	}
	return out
}

package task

import (
	"context"
	"time"
)

type Kind string

const (
	KindExtraction   Kind = "extraction"
	KindScoring      Kind = "scoring"
	KindBatchScoring Kind = "batch_scoring"
	KindScheduleAll  Kind = "schedule_all"
)

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal states are never left again; a finished attempt is history.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Status  string `json:"status,omitempty"`
}

// Params carries the union of per-kind task inputs.
type Params struct {
	Source     string  `json:"source,omitempty"`
	MaxRecords int     `json:"max_records,omitempty"`
	ProfileID  int64   `json:"profile_id,omitempty"`
	ProfileIDs []int64 `json:"profile_ids,omitempty"`
	MinScore   float64 `json:"min_score,omitempty"`
	Limit      int     `json:"limit,omitempty"`
}

// Snapshot is a point-in-time copy of one task's state. Callers poll these;
// nothing they do to a snapshot reaches the registry.
type Snapshot struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Params      Params     `json:"params"`
	State       State      `json:"state"`
	Progress    Progress   `json:"progress"`
	Attempt     int        `json:"attempt"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"result,omitempty"`
}

// Func is a task body. It must honor ctx at its work boundaries; the
// orchestrator never stops it any other way.
type Func func(ctx context.Context, h *Handle) error

// Handle is how a running body reports back.
type Handle struct {
	id  string
	reg *registry
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) SetProgress(current, total int, status string) {
	h.reg.setProgress(h.id, current, total, status)
}

func (h *Handle) SetResult(v any) {
	h.reg.setResult(h.id, v)
}

package backfill

import (
	"context"
	"errors"
	"time"
)

// RunStatus is the lifecycle state of a backfill run triggered through the API.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// ErrRunNotFound is returned by a RunStore for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// Run tracks one backfill run. Report is set once the run finishes.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Report     *Report    `json:"report,omitempty"`
}

// Terminal reports whether the run can no longer change.
func (r Run) Terminal() bool {
	return r.Status != RunRunning
}

// RunStore keeps the history of triggered runs.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, id string, report Report, runErr error, finished time.Time) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]Run, error)
}

// StatusFor maps the result of Orchestrator.Run to a terminal run status.
func StatusFor(runErr error) RunStatus {
	switch {
	case runErr == nil:
		return RunSucceeded
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		return RunCanceled
	default:
		return RunFailed
	}
}

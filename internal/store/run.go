// Package store keeps run records: an in-memory TTL cache for the API process and an optional
// PostgreSQL store for runs that must outlive it.
package store

import (
	"context"
	"errors"
	"time"

	"ldes-markets/internal/admm"
	"ldes-markets/internal/experiment"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Run is the stored record of one comparison.
type Run struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Delta float64 `json:"delta"`
	Psi   float64 `json:"psi"`

	Outcome    string `json:"outcome,omitempty"`
	Iterations int    `json:"iterations"`
	Error      string `json:"error,omitempty"`

	Comparison *experiment.Comparison `json:"comparison,omitempty"`
}

// NewRun returns a running record with a fresh id.
func NewRun(delta, psi float64) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        uuid.NewString(),
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
		Delta:     delta,
		Psi:       psi,
	}
}

// Finish records the comparison (or err) and marks the run terminal.
func (r *Run) Finish(c *experiment.Comparison, err error) {
	r.UpdatedAt = time.Now().UTC()
	if err != nil {
		r.Status = StatusFailed
		r.Error = err.Error()
		return
	}
	r.Status = StatusDone
	r.Comparison = c
	if c != nil && c.Incomplete != nil {
		r.Outcome = c.Incomplete.Outcome.String()
		r.Iterations = c.Incomplete.Outcome.Iteration
	}
}

// Trace returns the convergence history of a finished run.
func (r *Run) Trace() []admm.IterationRecord {
	if r.Comparison == nil || r.Comparison.Incomplete == nil {
		return nil
	}
	return r.Comparison.Incomplete.History
}

// Store is implemented by RunCache and Postgres.
type Store interface {
	SaveRun(ctx context.Context, r *Run) error
	LoadRun(ctx context.Context, id string) (*Run, error)
	SaveTrace(ctx context.Context, id string, hist []admm.IterationRecord) error
	LoadTrace(ctx context.Context, id string) ([]admm.IterationRecord, error)
}

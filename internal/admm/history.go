package admm

import (
	"fmt"
	"sync"
	"time"
)

// IterationRecord is the diagnostic trace of one solve round. Records are never modified once
// appended.
type IterationRecord struct {
	K         int           `json:"k"`
	Primal    float64       `json:"primal"`
	Dual      float64       `json:"dual"`
	Objective float64       `json:"objective"`
	SolveTime time.Duration `json:"solve_time_ns"`
	Clamped   int           `json:"clamped"`
}

// History is the append-only iteration log of a run.
type History struct {
	mu      sync.RWMutex
	records []IterationRecord
}

// Append adds rec. Iteration numbers must increase.
func (h *History) Append(rec IterationRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.records); n > 0 && rec.K <= h.records[n-1].K {
		return fmt.Errorf("iteration %d appended after %d", rec.K, h.records[n-1].K)
	}
	h.records = append(h.records, rec)
	return nil
}

// Records returns a copy of the log.
func (h *History) Records() []IterationRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]IterationRecord(nil), h.records...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

package admm

import (
	"fmt"

	"ldes-markets/internal/market"
)

// State is the orchestrator's position in the run.
type State int

const (
	StateInit State = iota
	StateBaseSolve
	StateIndividualSeed
	StateIterating
	StateConverged
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateBaseSolve:
		return "BASE_SOLVE"
	case StateIndividualSeed:
		return "INDIVIDUAL_SEED"
	case StateIterating:
		return "ITERATING"
	case StateConverged:
		return "CONVERGED"
	case StateExhausted:
		return "EXHAUSTED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CoordinationState is the mutable data shared between agents: prices, the last residual and
// the last iterate. Only the orchestrator writes it, and only between rounds.
type CoordinationState struct {
	Iteration int
	Prices    []float64
	Residual  []float64
	Last      []*market.ParticipantResult
}

// Snapshot is a frozen copy of the coordination state handed to every agent of one round.
type Snapshot struct {
	Iteration int
	Prices    []float64
	Residual  []float64
	Last      []*market.ParticipantResult
}

// Snapshot copies the slices so that no agent can observe a later write.
func (s *CoordinationState) Snapshot() Snapshot {
	last := make([]*market.ParticipantResult, len(s.Last))
	copy(last, s.Last)
	return Snapshot{
		Iteration: s.Iteration,
		Prices:    append([]float64(nil), s.Prices...),
		Residual:  append([]float64(nil), s.Residual...),
		Last:      last,
	}
}

package solver

import (
	"context"
	"errors"
)

// ErrSolverFailure is returned when a subproblem is not solved to optimality. The run that
// issued the solve must not continue on the returned values.
var ErrSolverFailure = errors.New("solver failure")

// Oracle solves a Program to optimality or fails.
type Oracle interface {
	Solve(ctx context.Context, p *Program) (*Solution, error)
}

// Options are the interior-point tolerances. Zero values fall back to the solver defaults.
type Options struct {
	AbsTol     float64
	RelTol     float64
	FeasTol    float64
	MaxIter    int
	Refinement int
	Verbose    bool
}

package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/hrautila/cvx"
	"github.com/hrautila/cvx/sets"
	"github.com/hrautila/matrix"
)

// CVX solves programs with the cone quadratic solver of github.com/hrautila/cvx.
// Matrices are dense; agent subproblems are small enough for that to be fine.
type CVX struct {
	opts Options
}

func NewCVX(opts Options) *CVX { return &CVX{opts: opts} }

// standardForm is the cvx layout of a Program:
//
//	minimise (1/2)x'Px + q'x  s.t.  Gx + s = h, s in (l, q cones),  Ax = b
type standardForm struct {
	n, ml, mEq int
	coneDims   []int

	P, q []float64 // P column-major n x n
	G, h []float64 // G column-major m x n
	A, b []float64 // A column-major mEq x n
}

func assemble(p *Program) (*standardForm, error) {
	if p.err != nil {
		return nil, p.err
	}
	n := p.NumVars()
	if n == 0 {
		return nil, fmt.Errorf("program has no variables")
	}
	f := &standardForm{n: n, ml: len(p.ineq), mEq: len(p.eq)}
	m := f.ml
	for _, c := range p.cones {
		f.coneDims = append(f.coneDims, len(c))
		m += len(c)
	}
	if m == 0 {
		return nil, fmt.Errorf("program has no inequality rows")
	}

	f.P = make([]float64, n*n)
	f.q = make([]float64, n)
	for i, v := range p.linear.Vars {
		f.q[v] -= p.linear.Coef[i]
	}
	for _, s := range p.sq {
		e := s.expr
		for i, vi := range e.Vars {
			ci := e.Coef[i]
			f.q[vi] += 2 * s.weight * e.Const * ci
			for j, vj := range e.Vars {
				f.P[int(vj)*n+int(vi)] += 2 * s.weight * ci * e.Coef[j]
			}
		}
	}

	f.G = make([]float64, m*n)
	f.h = make([]float64, m)
	for r, row := range p.ineq {
		for i, v := range row.expr.Vars {
			f.G[int(v)*m+r] += row.expr.Coef[i]
		}
		f.h[r] = row.rhs - row.expr.Const
	}
	r := f.ml
	for _, cone := range p.cones {
		for _, e := range cone {
			for i, v := range e.Vars {
				f.G[int(v)*m+r] -= e.Coef[i]
			}
			f.h[r] = e.Const
			r++
		}
	}

	if f.mEq > 0 {
		f.A = make([]float64, f.mEq*n)
		f.b = make([]float64, f.mEq)
		for r, row := range p.eq {
			for i, v := range row.expr.Vars {
				f.A[int(v)*f.mEq+r] += row.expr.Coef[i]
			}
			f.b[r] = row.rhs - row.expr.Const
		}
	}
	return f, nil
}

// checkFinite rejects a primal point with a NaN or infinite entry, naming the first one.
func checkFinite(p *Program, x []float64) error {
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s: %s = %v", ErrSolverFailure, p.Name, p.VarName(Var(i)), v)
		}
	}
	return nil
}

func (c *CVX) Solve(ctx context.Context, p *Program) (*Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := assemble(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSolverFailure, p.Name, err)
	}
	m := len(f.h)

	P := matrix.FloatNew(f.n, f.n, f.P)
	q := matrix.FloatNew(f.n, 1, f.q)
	G := matrix.FloatNew(m, f.n, f.G)
	h := matrix.FloatNew(m, 1, f.h)
	var A, b *matrix.FloatMatrix
	if f.mEq > 0 {
		A = matrix.FloatNew(f.mEq, f.n, f.A)
		b = matrix.FloatNew(f.mEq, 1, f.b)
	}

	dims := sets.NewDimensionSet("l", "q", "s")
	dims.Set("l", []int{f.ml})
	if len(f.coneDims) > 0 {
		dims.Set("q", f.coneDims)
	}

	var solopts cvx.SolverOptions
	solopts.ShowProgress = c.opts.Verbose
	if c.opts.MaxIter > 0 {
		solopts.MaxIter = c.opts.MaxIter
	}
	if c.opts.AbsTol > 0 {
		solopts.AbsTol = c.opts.AbsTol
	}
	if c.opts.RelTol > 0 {
		solopts.RelTol = c.opts.RelTol
	}
	if c.opts.FeasTol > 0 {
		solopts.FeasTol = c.opts.FeasTol
	}
	if c.opts.Refinement > 0 {
		solopts.Refinement = c.opts.Refinement
	}

	sol, err := cvx.ConeQp(P, q, G, h, A, b, dims, &solopts, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSolverFailure, p.Name, err)
	}
	if sol == nil || sol.Status != cvx.Optimal {
		return nil, fmt.Errorf("%w: %s: not solved to optimality", ErrSolverFailure, p.Name)
	}

	x := sol.Result.At("x")[0].FloatArray()
	if err := checkFinite(p, x); err != nil {
		return nil, err
	}
	out := &Solution{
		X:        append([]float64(nil), x...),
		IneqDual: make([]float64, f.ml),
	}
	z := sol.Result.At("z")[0].FloatArray()
	copy(out.IneqDual, z[:f.ml])
	if f.mEq > 0 {
		out.EqDual = append([]float64(nil), sol.Result.At("y")[0].FloatArray()...)
	}
	out.Objective = p.Objective(out.X)
	return out, nil
}

package solver

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOracle() *CVX {
	return NewCVX(Options{AbsTol: 1e-9, RelTol: 1e-9, FeasTol: 1e-9, MaxIter: 100})
}

func TestCheckFiniteNamesVariable(t *testing.T) {
	p := NewProgram("gen@3")
	p.NonNeg("K")
	p.NonNeg("q[0]")

	require.NoError(t, checkFinite(p, []float64{1, 2}))

	err := checkFinite(p, []float64{1, math.NaN()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSolverFailure)
	assert.Contains(t, err.Error(), "gen@3")
	assert.Contains(t, err.Error(), "q[0]")

	err = checkFinite(p, []float64{math.Inf(1), 0})
	assert.Contains(t, err.Error(), "K = +Inf")
}

func TestAssembleLayout(t *testing.T) {
	p := NewProgram("layout")
	x := p.NonNeg("x")
	y := p.Bounded("y", 2)
	var e Expr
	e.Add(x, 1)
	e.Add(y, 1)
	e.Const = 1
	p.EQ(e, 4)
	p.Maximize(Term(x, 3))
	p.Penalize(Expr{Vars: []Var{x}, Coef: []float64{1}, Const: -5}, 0.5)

	f, err := assemble(p)
	require.NoError(t, err)
	assert.Equal(t, 2, f.n)
	assert.Equal(t, 3, f.ml)
	// q: -3 from the linear term, 2*0.5*(-5)*1 from the square.
	assert.Equal(t, []float64{-8, 0}, f.q)
	assert.Equal(t, 1.0, f.P[0])
	// y <= 2 is the third linear row: G[2, y] = 1, h[2] = 2.
	assert.Equal(t, 1.0, f.G[1*3+2])
	assert.Equal(t, 2.0, f.h[2])
	assert.Equal(t, []float64{3}, f.b)
}

func TestDroppedRows(t *testing.T) {
	p := NewProgram("empty-rows")
	p.NonNeg("x")
	r := p.EQ(Constant(0), 0)
	assert.False(t, r.Valid())
	assert.NoError(t, p.Err())

	p.LE(Constant(1), 0)
	assert.Error(t, p.Err())
	_, err := testOracle().Solve(context.Background(), p)
	assert.ErrorIs(t, err, ErrSolverFailure)
}

func TestForkIsolation(t *testing.T) {
	base := NewProgram("base")
	x := base.NonNeg("x")
	base.LE(Term(x, 1), 10)

	a := base.Fork("a")
	a.LE(Term(x, 1), 3)
	b := base.Fork("b")
	b.LE(Term(x, 1), 7)
	y := b.NonNeg("y")

	assert.Len(t, base.ineq, 2)
	assert.Len(t, a.ineq, 3)
	assert.Len(t, b.ineq, 4)
	assert.Equal(t, 3.0, a.ineq[2].rhs)
	assert.Equal(t, 7.0, b.ineq[2].rhs)
	assert.Equal(t, 1, base.NumVars())
	assert.Equal(t, "y", b.VarName(y))
}

func TestSolveLPWithDuals(t *testing.T) {
	p := NewProgram("lp")
	x := p.NonNeg("x")
	y := p.NonNeg("y")
	limit := p.LE(Term(x, 1), 3)
	var sum Expr
	sum.Add(x, 1)
	sum.Add(y, 1)
	bal := p.EQ(sum, 4)
	var obj Expr
	obj.Add(x, 3)
	obj.Add(y, 2)
	p.Maximize(obj)

	sol, err := testOracle().Solve(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, 3, sol.Value(x), 1e-5)
	assert.InDelta(t, 1, sol.Value(y), 1e-5)
	assert.InDelta(t, 11, sol.Objective, 1e-5)
	assert.InDelta(t, 2, sol.Dual(bal), 1e-5)
	assert.InDelta(t, 1, sol.Dual(limit), 1e-5)
}

func TestSolveQP(t *testing.T) {
	p := NewProgram("qp")
	x := p.Bounded("x", 100)
	p.Maximize(Term(x, 10))
	p.Penalize(Term(x, 1), 1)

	sol, err := testOracle().Solve(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, 5, sol.Value(x), 1e-5)
	assert.InDelta(t, 25, sol.Objective, 1e-5)
}

func TestSolveRotatedCone(t *testing.T) {
	// maximise v subject to v <= 4d - d^2.
	p := NewProgram("cone")
	d := p.Bounded("d", 10)
	v := p.NonNeg("v")
	var slack Expr
	slack.Add(d, 4)
	slack.Add(v, -1)
	p.RotatedCone(slack, Constant(1), Term(d, 1))
	p.Maximize(Term(v, 1))

	sol, err := testOracle().Solve(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, 2, sol.Value(d), 1e-4)
	assert.InDelta(t, 4, sol.Value(v), 1e-4)
}

func TestSolveHonoursCancelledContext(t *testing.T) {
	p := NewProgram("cancelled")
	p.NonNeg("x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testOracle().Solve(ctx, p)
	assert.ErrorIs(t, err, context.Canceled)
}

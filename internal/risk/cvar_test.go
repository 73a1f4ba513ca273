package risk

import (
	"context"
	"testing"

	"ldes-markets/internal/model"
	"ldes-markets/internal/solver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	outcomes = []float64{-10, 0, 10, 20}
	equal4   = []float64{0.25, 0.25, 0.25, 0.25}
)

func TestEmpiricalCVaR(t *testing.T) {
	assert.InDelta(t, -5, CVaR(outcomes, equal4, 0.5), 1e-12)
	assert.InDelta(t, -10, CVaR(outcomes, equal4, 0.25), 1e-12)
	assert.InDelta(t, 5, CVaR(outcomes, equal4, 1), 1e-12)
	// Half of the second-worst outcome enters the tail.
	assert.InDelta(t, (-10*0.25+0*0.125)/0.375, CVaR(outcomes, equal4, 0.375), 1e-12)
	// Order of the input does not matter.
	assert.InDelta(t, -5, CVaR([]float64{20, -10, 10, 0}, equal4, 0.5), 1e-12)

	assert.Equal(t, 0.0, VaR(outcomes, equal4, 0.5))
	assert.Equal(t, -10.0, VaR(outcomes, equal4, 0.1))
}

func TestBlend(t *testing.T) {
	assert.InDelta(t, 5, Blend(outcomes, equal4, model.RiskParams{Delta: 1, Psi: 0.5}), 1e-12)
	assert.InDelta(t, -5, Blend(outcomes, equal4, model.RiskParams{Delta: 0, Psi: 0.5}), 1e-12)
	assert.InDelta(t, 0, Blend(outcomes, equal4, model.RiskParams{Delta: 0.5, Psi: 0.5}), 1e-12)
}

func TestLinearisationMatchesEmpirical(t *testing.T) {
	p := solver.NewProgram("cvar")
	profit := make([]solver.Expr, len(outcomes))
	for o, v := range outcomes {
		profit[o] = solver.Constant(v)
	}
	rp := model.RiskParams{Delta: 0, Psi: 0.5}
	b := Attach(p, "sys", profit, equal4, rp)
	require.Len(t, b.Rows, 4)

	oracle := solver.NewCVX(solver.Options{AbsTol: 1e-10, RelTol: 1e-10, FeasTol: 1e-10, MaxIter: 100})
	sol, err := oracle.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, -5, sol.Objective, 1e-6)
	assert.InDelta(t, -5, b.Value(sol), 1e-6)

	mu := b.Duals(sol)
	sum := 0.0
	for _, m := range mu {
		assert.GreaterOrEqual(t, m, -1e-7)
		sum += m
	}
	assert.InDelta(t, 1, sum, 1e-6)
	assert.InDelta(t, 0.5, mu[0], 1e-6)
	assert.InDelta(t, 0, mu[3], 1e-6)
}

func TestRiskNeutralOmitsAuxiliaries(t *testing.T) {
	p := solver.NewProgram("neutral")
	x := p.Bounded("x", 1)
	profit := []solver.Expr{solver.Term(x, 2), solver.Term(x, 4)}
	b := Attach(p, "g", profit, []float64{0.5, 0.5}, model.RiskParams{Delta: 1, Psi: 0.5})
	assert.Nil(t, b.Rows)
	assert.Equal(t, 1, p.NumVars())

	sol := &solver.Solution{X: []float64{1}}
	assert.Equal(t, []float64{0, 0}, b.Duals(sol))
	assert.InDelta(t, 3, p.Objective(sol.X), 1e-12)
}

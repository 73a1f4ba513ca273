// Package risk holds the expectation/CVaR blend used by every objective builder: the
// Rockafellar-Uryasev rows added to a program, and the same measure evaluated directly on a
// finite outcome vector.
package risk

import (
	"fmt"

	"ldes-markets/internal/model"
	"ldes-markets/internal/solver"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Block is the CVaR auxiliary structure attached to one objective. When the run is risk
// neutral the auxiliaries are not created and Rows is nil.
type Block struct {
	Zeta solver.Var
	U    []solver.Var
	// Rows[o] is the tail row zeta - profit[o] - u[o] <= 0. Its dual is the scenario's extra
	// risk weight mu[o].
	Rows []solver.Row

	psi  float64
	prob []float64
}

// Attach adds delta*E[profit] + (1-delta)*CVaR_psi[profit] to the program objective.
// profit[o] must be expressed in the same units as the rest of the objective.
func Attach(p *solver.Program, name string, profit []solver.Expr, prob []float64, rp model.RiskParams) *Block {
	b := &Block{psi: rp.Psi, prob: prob}
	for o, e := range profit {
		p.Maximize(scaled(e, rp.Delta*prob[o]))
	}
	if rp.RiskNeutral() {
		return b
	}

	w := 1 - rp.Delta
	b.Zeta = p.Free(name + ".zeta")
	p.Maximize(solver.Term(b.Zeta, w))
	b.U = make([]solver.Var, len(profit))
	b.Rows = make([]solver.Row, len(profit))
	for o, e := range profit {
		u := p.NonNeg(fmt.Sprintf("%s.u[%d]", name, o))
		b.U[o] = u
		p.Maximize(solver.Term(u, -w*prob[o]/rp.Psi))

		row := solver.Term(b.Zeta, 1)
		row.AddExpr(e, -1)
		row.Add(u, -1)
		b.Rows[o] = p.LE(row, 0)
	}
	return b
}

func scaled(e solver.Expr, c float64) solver.Expr {
	var out solver.Expr
	out.AddExpr(e, c)
	return out
}

// Duals returns mu[o], the tail-row duals of the last solve. Risk-neutral blocks return zeros.
func (b *Block) Duals(sol *solver.Solution) []float64 {
	mu := make([]float64, len(b.prob))
	for o, r := range b.Rows {
		mu[o] = sol.Dual(r)
	}
	return mu
}

// Value is the CVaR estimate zeta - (1/psi)*sum P[o]*u[o] at the solution.
func (b *Block) Value(sol *solver.Solution) float64 {
	if b.Rows == nil {
		return 0
	}
	v := sol.Value(b.Zeta)
	for o, u := range b.U {
		v -= b.prob[o] * sol.Value(u) / b.psi
	}
	return v
}

// CVaR is the probability-weighted mean of the worst psi mass of outcomes, where low outcomes
// are bad. The boundary outcome contributes fractionally.
func CVaR(outcomes, prob []float64, psi float64) float64 {
	if len(outcomes) == 0 || psi <= 0 {
		return 0
	}
	sorted := append([]float64(nil), outcomes...)
	idx := make([]int, len(sorted))
	floats.Argsort(sorted, idx)

	mass, acc := 0.0, 0.0
	for i, v := range sorted {
		p := prob[idx[i]]
		if mass+p >= psi {
			acc += (psi - mass) * v
			return acc / psi
		}
		mass += p
		acc += p * v
	}
	return acc / mass
}

// VaR is the smallest outcome whose cumulative probability reaches psi.
func VaR(outcomes, prob []float64, psi float64) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	sorted := append([]float64(nil), outcomes...)
	idx := make([]int, len(sorted))
	floats.Argsort(sorted, idx)
	mass := 0.0
	for i, v := range sorted {
		mass += prob[idx[i]]
		if mass >= psi-1e-12 {
			return v
		}
	}
	return sorted[len(sorted)-1]
}

// Blend is delta*E[outcome] + (1-delta)*CVaR_psi[outcome].
func Blend(outcomes, prob []float64, rp model.RiskParams) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	mean := stat.Mean(outcomes, prob)
	if rp.RiskNeutral() {
		return mean
	}
	return rp.Delta*mean + (1-rp.Delta)*CVaR(outcomes, prob, rp.Psi)
}

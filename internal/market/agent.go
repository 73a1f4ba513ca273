package market

import (
	"fmt"

	"ldes-markets/internal/model"
	"ldes-markets/internal/risk"
	"ldes-markets/internal/solver"
)

// Template is an agent's operational block, built once per run. Its rows never change between
// iterations; each iteration forks it and adds the price-dependent terms.
type Template struct {
	ds   *model.Dataset
	unit *unit
	base *solver.Program
}

// NewTemplates builds one template per participant: generators, then storage units, then the
// consumer.
func NewTemplates(ds *model.Dataset) []*Template {
	out := make([]*Template, 0, ds.Participants())
	for gi, g := range ds.Generators {
		p := solver.NewProgram(g.ID)
		out = append(out, &Template{ds: ds, unit: addGenerator(p, ds, gi), base: p})
	}
	for si, s := range ds.Storages {
		p := solver.NewProgram(s.ID)
		out = append(out, &Template{ds: ds, unit: addStorage(p, ds, si), base: p})
	}
	p := solver.NewProgram("consumer")
	out = append(out, &Template{ds: ds, unit: addConsumer(p, ds), base: p})
	return out
}

func (tp *Template) Kind() Kind { return tp.unit.kind }
func (tp *Template) ID() string { return tp.unit.id }

// Active is false for participants with nothing to decide; they are never solved and
// contribute zero to the balance.
func (tp *Template) Active() bool { return tp.unit.active }

// Penalty is the quadratic proximal term of one iteration:
// sum_{t,o} W[t,o]*Coef[o]*(Rho/2)*(contribution[t,o] - Center[t,o])^2.
type Penalty struct {
	Rho    float64
	Coef   []float64 // per scenario, already clamped at zero
	Center []float64 // per cell
}

// Signal is the read-only coordination input of one agent solve.
type Signal struct {
	Iteration int
	Prices    []float64 // per cell, currency per MWh
	Penalty   *Penalty  // nil when solving without a proximal term
}

// Instance is one iteration's program for one agent.
type Instance struct {
	Program *solver.Program

	tmpl   *Template
	risk   *risk.Block
	prices []float64
}

// Instantiate forks the template and adds revenue at the signal prices, the agent's risk block
// and the penalty.
func (tp *Template) Instantiate(sig Signal) *Instance {
	ds := tp.ds
	u := tp.unit
	p := tp.base.Fork(fmt.Sprintf("%s@%d", u.id, sig.Iteration))

	profit := make([]solver.Expr, ds.NO())
	prob := make([]float64, ds.NO())
	for o := range profit {
		prob[o] = ds.Prob(o)
		profit[o].AddExpr(u.fixed[o], 1)
		for t := 0; t < ds.NT(); t++ {
			c := ds.Weights.Index(t, o)
			profit[o].AddExpr(u.contribution[c], Scale*ds.Weights.At(t, o)*sig.Prices[c])
		}
	}
	blk := risk.Attach(p, u.id, profit, prob, ds.Risk)

	if pen := sig.Penalty; pen != nil {
		for t := 0; t < ds.NT(); t++ {
			for o := 0; o < ds.NO(); o++ {
				c := ds.Weights.Index(t, o)
				w := Scale * ds.Weights.At(t, o) * pen.Coef[o] * pen.Rho / 2
				var e solver.Expr
				e.AddExpr(u.contribution[c], 1)
				e.Const -= pen.Center[c]
				p.Penalize(e, w)
			}
		}
	}
	return &Instance{Program: p, tmpl: tp, risk: blk, prices: sig.Prices}
}

// Extract reads the agent's result. Payoff is evaluated at the signal prices and excludes the
// penalty; Mu holds the agent's own tail duals.
func (in *Instance) Extract(sol *solver.Solution) *ParticipantResult {
	r := in.tmpl.unit.extract(in.tmpl.ds, sol, in.prices)
	if sol != nil {
		r.Mu = in.risk.Duals(sol)
		r.CVaR = in.risk.Value(sol) / Scale
		r.Objective = sol.Objective / Scale
	} else {
		r.Mu = make([]float64, in.tmpl.ds.NO())
	}
	return r
}

// Idle is the result of a participant that is never solved.
func (tp *Template) Idle() *ParticipantResult {
	r := tp.unit.extract(tp.ds, nil, nil)
	r.Mu = make([]float64, tp.ds.NO())
	return r
}

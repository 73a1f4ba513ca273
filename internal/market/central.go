package market

import (
	"context"
	"fmt"

	"ldes-markets/internal/model"
	"ldes-markets/internal/risk"
	"ldes-markets/internal/solver"
)

// Central is the complete-markets program: every participant in one problem, a balance row
// per cell and a single system-level risk block on welfare.
type Central struct {
	Program *solver.Program

	ds      *model.Dataset
	units   []*unit
	balance []solver.Row
	risk    *risk.Block
	welfare []solver.Expr
}

// BuildCentral builds the complete-markets program for ds.
func BuildCentral(ds *model.Dataset) *Central {
	p := solver.NewProgram("central")
	c := &Central{Program: p, ds: ds}
	for gi := range ds.Generators {
		c.units = append(c.units, addGenerator(p, ds, gi))
	}
	for si := range ds.Storages {
		c.units = append(c.units, addStorage(p, ds, si))
	}
	c.units = append(c.units, addConsumer(p, ds))

	nc := ds.NT() * ds.NO()
	c.balance = make([]solver.Row, nc)
	for cell := 0; cell < nc; cell++ {
		var e solver.Expr
		for _, u := range c.units {
			e.AddExpr(u.contribution[cell], 1)
		}
		c.balance[cell] = p.EQ(e, 0)
	}

	c.welfare = make([]solver.Expr, ds.NO())
	for o := range c.welfare {
		for _, u := range c.units {
			c.welfare[o].AddExpr(u.fixed[o], 1)
		}
	}
	prob := make([]float64, ds.NO())
	for o := range prob {
		prob[o] = ds.Prob(o)
	}
	c.risk = risk.Attach(p, "system", c.welfare, prob, ds.Risk)
	return c
}

// CentralResult is the complete-markets solution.
type CentralResult struct {
	// Prices are the balance duals converted to currency per MWh: lambda = -dual/(Scale*W*P).
	Prices       model.Series
	Participants []*ParticipantResult
	// Welfare is the scenario welfare (surplus minus costs), currency per year.
	Welfare []float64
	// Objective is the risk-adjusted welfare, currency per year.
	Objective float64
	// SystemMu holds the tail-row duals of the system risk block.
	SystemMu []float64
	// SystemCVaR is the tail estimate of scenario welfare, zero when risk neutral.
	SystemCVaR float64
}

// ExpectedWelfare is sum_o P[o]*Welfare[o].
func (r *CentralResult) ExpectedWelfare(ds *model.Dataset) float64 {
	s := 0.0
	for o, v := range r.Welfare {
		s += ds.Prob(o) * v
	}
	return s
}

// Extract reads the result out of a solution of c.Program.
func (c *Central) Extract(sol *solver.Solution) *CentralResult {
	ds := c.ds
	prices := model.NewSeries(ds.NT(), ds.NO())
	for t := 0; t < ds.NT(); t++ {
		for o := 0; o < ds.NO(); o++ {
			cell := prices.Index(t, o)
			den := Scale * ds.Weights.At(t, o) * ds.Prob(o)
			if den > 0 {
				prices.Values[cell] = -sol.Dual(c.balance[cell]) / den
			}
		}
	}
	res := &CentralResult{
		Prices:    prices,
		Welfare:   make([]float64, ds.NO()),
		Objective: sol.Objective / Scale,
		SystemMu:  c.risk.Duals(sol),

		SystemCVaR: c.risk.Value(sol) / Scale,
	}
	for _, u := range c.units {
		res.Participants = append(res.Participants, u.extract(ds, sol, prices.Values))
	}
	for o, e := range c.welfare {
		res.Welfare[o] = sol.Eval(e) / Scale
	}
	return res
}

// SolveCentral builds and solves the complete-markets problem.
func SolveCentral(ctx context.Context, ds *model.Dataset, oracle solver.Oracle) (*CentralResult, error) {
	c := BuildCentral(ds)
	sol, err := oracle.Solve(ctx, c.Program)
	if err != nil {
		return nil, fmt.Errorf("central problem: %w", err)
	}
	return c.Extract(sol), nil
}

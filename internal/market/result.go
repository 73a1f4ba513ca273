package market

import (
	"ldes-markets/internal/model"
	"ldes-markets/internal/solver"
)

// ParticipantResult is one participant's share of a solution, in physical and currency units.
type ParticipantResult struct {
	Kind  Kind   `json:"kind"`
	ID    string `json:"id"`
	Index int    `json:"index"`

	// Capacities maps capacity keys (capacity, power, energy) to MW or MWh.
	Capacities map[string]float64 `json:"capacities"`
	// Series maps dispatch keys to per-cell values (index t*|O|+o).
	Series map[string][]float64 `json:"-"`
	// Contribution is the net injection into the balance per cell.
	Contribution []float64 `json:"-"`
	// Payoff is the scenario profit (consumer: surplus) at the prices of the solve.
	Payoff []float64 `json:"payoff"`
	// Mu holds the tail-row duals of the participant's own risk block (agent solves only).
	Mu []float64 `json:"mu,omitempty"`
	// CVaR is the tail estimate of the participant's own risk block, currency per year.
	// Zero for risk-neutral runs.
	CVaR float64 `json:"cvar,omitempty"`
	// CapacityDuals holds the duals of the per-cell capacity rows, in objective units.
	CapacityDuals map[string][]float64 `json:"-"`
	// Objective is the value of the program that produced the result, currency per year.
	Objective float64 `json:"objective"`
}

func (u *unit) extract(ds *model.Dataset, sol *solver.Solution, prices []float64) *ParticipantResult {
	nc := ds.NT() * ds.NO()
	r := &ParticipantResult{
		Kind:          u.kind,
		ID:            u.id,
		Index:         u.index,
		Capacities:    map[string]float64{},
		Series:        map[string][]float64{},
		Contribution:  make([]float64, nc),
		Payoff:        make([]float64, ds.NO()),
		CapacityDuals: map[string][]float64{},
	}
	for _, h := range u.capacities {
		if sol == nil {
			r.Capacities[h.name] = h.expr.Const
			continue
		}
		r.Capacities[h.name] = sol.Eval(h.expr)
	}
	if sol == nil || !u.active {
		for name := range u.series {
			r.Series[name] = make([]float64, nc)
		}
		return r
	}
	for name, exprs := range u.series {
		vals := make([]float64, nc)
		for c, e := range exprs {
			vals[c] = sol.Eval(e)
		}
		r.Series[name] = vals
	}
	for c, e := range u.contribution {
		r.Contribution[c] = sol.Eval(e)
	}
	for o, e := range u.fixed {
		r.Payoff[o] = sol.Eval(e) / Scale
	}
	if prices != nil {
		for t := 0; t < ds.NT(); t++ {
			for o := 0; o < ds.NO(); o++ {
				c := ds.Weights.Index(t, o)
				r.Payoff[o] += ds.Weights.At(t, o) * prices[c] * r.Contribution[c]
			}
		}
	}
	for name, rows := range u.capRows {
		d := make([]float64, nc)
		for c, row := range rows {
			d[c] = sol.Dual(row)
		}
		r.CapacityDuals[name] = d
	}
	return r
}

// ExpectedPayoff is sum_o P[o]*Payoff[o].
func (r *ParticipantResult) ExpectedPayoff(ds *model.Dataset) float64 {
	s := 0.0
	for o, v := range r.Payoff {
		s += ds.Prob(o) * v
	}
	return s
}

// Capacity is a flattened capacity entry used in reports and comparisons.
type Capacity struct {
	Kind  Kind    `json:"kind"`
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Capacities flattens the participants' capacity maps in a stable order.
func Capacities(parts []*ParticipantResult) []Capacity {
	var out []Capacity
	for _, p := range parts {
		for _, name := range []string{CapacityGeneration, CapacityPower, CapacityEnergy} {
			if v, ok := p.Capacities[name]; ok {
				out = append(out, Capacity{Kind: p.Kind, ID: p.ID, Name: name, Value: v})
			}
		}
	}
	return out
}

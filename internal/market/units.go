// Package market builds the convex programs of the capacity-expansion market: one block per
// participant (generators, storage units, the consumer), assembled either into a single
// central-planner program or into one private program per agent.
package market

import (
	"fmt"
	"math"

	"ldes-markets/internal/model"
	"ldes-markets/internal/solver"
)

// Scale converts currency into objective units. Annualised costs are of order 1e5 per MW while
// hourly revenues are of order 1e2, so objectives are kept near unity for the interior-point
// solver.
const Scale = 1 / model.HoursPerYear

// Kind is the participant class.
type Kind int

const (
	KindGenerator Kind = iota
	KindStorage
	KindConsumer
)

func (k Kind) String() string {
	switch k {
	case KindGenerator:
		return "generator"
	case KindStorage:
		return "storage"
	case KindConsumer:
		return "consumer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "generator":
		*k = KindGenerator
	case "storage":
		*k = KindStorage
	case "consumer":
		*k = KindConsumer
	default:
		return fmt.Errorf("unknown participant kind %q", b)
	}
	return nil
}

// Series keys reported per participant.
const (
	SeriesOutput    = "q"
	SeriesCharge    = "charge"
	SeriesDischarge = "discharge"
	SeriesSOC       = "soc"
	SeriesFixed     = "d_fix"
	SeriesFlexible  = "d_flex"
)

// Capacity keys.
const (
	CapacityGeneration = "capacity"
	CapacityPower      = "power"
	CapacityEnergy     = "energy"
)

type capacityHandle struct {
	name    string
	expr    solver.Expr
	decided bool
}

// unit is the operational block of one participant inside some program. Cells are indexed
// c = t*|O| + o, matching model.Series.
type unit struct {
	kind   Kind
	id     string
	index  int
	active bool

	// contribution[c] is the participant's net injection into the balance at cell c.
	contribution []solver.Expr
	// fixed[o] is the price-independent part of the scenario payoff, in objective units.
	fixed []solver.Expr

	capacities []capacityHandle
	series     map[string][]solver.Expr
	capRows    map[string][]solver.Row
}

func newUnit(kind Kind, id string, index int, ds *model.Dataset) *unit {
	nc := ds.NT() * ds.NO()
	return &unit{
		kind:         kind,
		id:           id,
		index:        index,
		contribution: make([]solver.Expr, nc),
		fixed:        make([]solver.Expr, ds.NO()),
		series:       map[string][]solver.Expr{},
		capRows:      map[string][]solver.Row{},
	}
}

func noRows(n int) []solver.Row {
	rows := make([]solver.Row, n)
	for i := range rows {
		rows[i] = solver.NoRow
	}
	return rows
}

// capacity returns the capacity as a decision variable, or as a constant when it is fixed.
func capacity(p *solver.Program, name string, existing *float64, max float64) (solver.Expr, bool) {
	if existing != nil {
		return solver.Constant(*existing), false
	}
	return solver.Term(p.Bounded(name, max), 1), true
}

func addGenerator(p *solver.Program, ds *model.Dataset, gi int) *unit {
	g := ds.Generators[gi]
	u := newUnit(KindGenerator, g.ID, gi, ds)
	if !g.Active() {
		u.capacities = append(u.capacities, capacityHandle{name: CapacityGeneration})
		return u
	}
	before := p.NumVars()
	nt, no := ds.NT(), ds.NO()

	capE, decided := capacity(p, g.ID+".x", g.Existing, g.MaxCapacity)
	u.capacities = append(u.capacities, capacityHandle{CapacityGeneration, capE, decided})
	if decided {
		for o := range u.fixed {
			u.fixed[o].AddExpr(capE, -Scale*g.AnnualizedInvCost())
		}
	}

	q := make([]solver.Expr, nt*no)
	rows := noRows(nt * no)
	for t := 0; t < nt; t++ {
		for o := 0; o < no; o++ {
			a := ds.Avail(gi, t, o)
			if a <= 0 {
				continue
			}
			c := ds.Weights.Index(t, o)
			v := p.NonNeg(fmt.Sprintf("%s.q[%d,%d]", g.ID, t, o))
			q[c] = solver.Term(v, 1)
			row := solver.Term(v, 1)
			row.AddExpr(capE, -a)
			rows[c] = p.LE(row, 0)
			u.contribution[c] = q[c]
			u.fixed[o].Add(v, -Scale*ds.Weights.At(t, o)*g.VarCost)
		}
	}

	if g.Traits.HasRampLimit() {
		for o := 0; o < no; o++ {
			for t := 1; t < nt; t++ {
				cur, prev := q[ds.Weights.Index(t, o)], q[ds.Weights.Index(t-1, o)]
				if cur.Empty() && prev.Empty() {
					continue
				}
				var up, down solver.Expr
				up.AddExpr(cur, 1)
				up.AddExpr(prev, -1)
				down.AddExpr(up, -1)
				up.AddExpr(capE, -g.Traits.RampLimit)
				down.AddExpr(capE, -g.Traits.RampLimit)
				p.LE(up, 0)
				p.LE(down, 0)
			}
		}
	}

	u.series[SeriesOutput] = q
	u.capRows[CapacityGeneration] = rows
	u.active = p.NumVars() > before
	return u
}

func addStorage(p *solver.Program, ds *model.Dataset, si int) *unit {
	s := ds.Storages[si]
	u := newUnit(KindStorage, s.ID, si, ds)
	if !s.Active() {
		pw, _ := s.FixedPower()
		en, _ := s.FixedEnergy()
		u.capacities = append(u.capacities,
			capacityHandle{name: CapacityPower, expr: solver.Constant(pw)},
			capacityHandle{name: CapacityEnergy, expr: solver.Constant(en)})
		// idle units still report all-zero dispatch
		for _, name := range []string{SeriesCharge, SeriesDischarge, SeriesSOC} {
			u.series[name] = nil
		}
		return u
	}
	before := p.NumVars()
	nt, no := ds.NT(), ds.NO()
	nc := nt * no

	powE, powDecided := capacity(p, s.ID+".xP", s.ExistingPower, s.MaxPower)
	engE, engDecided := capacity(p, s.ID+".xE", s.ExistingEnergy, s.MaxEnergy)
	u.capacities = append(u.capacities,
		capacityHandle{CapacityPower, powE, powDecided},
		capacityHandle{CapacityEnergy, engE, engDecided})
	for o := range u.fixed {
		if powDecided {
			u.fixed[o].AddExpr(powE, -Scale*s.AnnualizedPowerCost())
		}
		if engDecided {
			u.fixed[o].AddExpr(engE, -Scale*s.AnnualizedEnergyCost())
		}
	}

	if tr := s.Traits; tr.HasMinDuration() || tr.HasMaxDuration() {
		if tr.HasMinDuration() {
			var e solver.Expr
			e.AddExpr(engE, 1)
			e.AddExpr(powE, -tr.MinDurationHours)
			p.GE(e, 0)
		}
		if tr.HasMaxDuration() {
			var e solver.Expr
			e.AddExpr(engE, 1)
			e.AddExpr(powE, -tr.MaxDurationHours)
			p.LE(e, 0)
		}
	}

	ch := make([]solver.Expr, nc)
	dch := make([]solver.Expr, nc)
	soc := make([]solver.Expr, nc)
	chRows, dchRows, socRows := noRows(nc), noRows(nc), noRows(nc)
	below := func(v solver.Var, limit solver.Expr) solver.Row {
		row := solver.Term(v, 1)
		row.AddExpr(limit, -1)
		return p.LE(row, 0)
	}
	for t := 0; t < nt; t++ {
		for o := 0; o < no; o++ {
			c := ds.Weights.Index(t, o)
			vc := p.NonNeg(fmt.Sprintf("%s.ch[%d,%d]", s.ID, t, o))
			vd := p.NonNeg(fmt.Sprintf("%s.dch[%d,%d]", s.ID, t, o))
			ve := p.NonNeg(fmt.Sprintf("%s.e[%d,%d]", s.ID, t, o))
			ch[c], dch[c], soc[c] = solver.Term(vc, 1), solver.Term(vd, 1), solver.Term(ve, 1)
			chRows[c] = below(vc, powE)
			dchRows[c] = below(vd, powE)
			socRows[c] = below(ve, engE)

			net := solver.Term(vd, 1)
			net.Add(vc, -1)
			u.contribution[c] = net
			u.fixed[o].Add(vd, -Scale*ds.Weights.At(t, o)*s.VarCost)
		}
	}
	// State of charge is cyclic within each scenario.
	for o := 0; o < no; o++ {
		for t := 0; t < nt; t++ {
			c := ds.Weights.Index(t, o)
			prev := ds.Weights.Index((t+nt-1)%nt, o)
			var bal solver.Expr
			if prev != c {
				bal.AddExpr(soc[c], 1)
				bal.AddExpr(soc[prev], -1)
			}
			bal.AddExpr(ch[c], -s.ChargeEff)
			bal.AddExpr(dch[c], 1/s.DischargeEff)
			p.EQ(bal, 0)
		}
	}

	u.series[SeriesCharge] = ch
	u.series[SeriesDischarge] = dch
	u.series[SeriesSOC] = soc
	u.capRows[SeriesCharge] = chRows
	u.capRows[SeriesDischarge] = dchRows
	u.capRows[SeriesSOC] = socRows
	u.active = p.NumVars() > before
	return u
}

// addConsumer builds the demand block. Fixed demand is valued at VOLL. Flexible demand has an
// inverse demand curve falling linearly from VOLL to zero over its ceiling, so its value is
// B*d - B/(2*ceiling)*d^2. That is modelled with an auxiliary v <= d - d^2/(2*ceiling) valued
// at B, held by a rotated cone.
func addConsumer(p *solver.Program, ds *model.Dataset) *unit {
	u := newUnit(KindConsumer, "consumer", 0, ds)
	before := p.NumVars()
	nt, no := ds.NT(), ds.NO()
	nc := nt * no
	b := ds.Market.VOLL

	fix := make([]solver.Expr, nc)
	flex := make([]solver.Expr, nc)
	for t := 0; t < nt; t++ {
		for o := 0; o < no; o++ {
			c := ds.Weights.Index(t, o)
			w := ds.Weights.At(t, o)
			if ceil := ds.FixedDemandMW(t, o); ceil > 0 {
				d := p.Bounded(fmt.Sprintf("d_fix[%d,%d]", t, o), ceil)
				fix[c] = solver.Term(d, 1)
				u.contribution[c].Add(d, -1)
				u.fixed[o].Add(d, Scale*w*b)
			}
			if ceil := ds.FlexibleDemandMW(t, o); ceil > 0 {
				d := p.Bounded(fmt.Sprintf("d_flex[%d,%d]", t, o), ceil)
				v := p.NonNeg(fmt.Sprintf("v_flex[%d,%d]", t, o))
				flex[c] = solver.Term(d, 1)
				u.contribution[c].Add(d, -1)
				u.fixed[o].Add(v, Scale*w*b)

				slack := solver.Term(d, 1)
				slack.Add(v, -1)
				p.RotatedCone(slack, solver.Constant(1), solver.Term(d, 1/math.Sqrt(2*ceil)))
			}
		}
	}
	u.series[SeriesFixed] = fix
	u.series[SeriesFlexible] = flex
	u.active = p.NumVars() > before
	return u
}

package model

import (
	"fmt"
	"math"
)

// HoursPerYear is the calendar-year span every scenario's time weights must cover.
const HoursPerYear = 8760.0

// Scenario is one weather/demand year with its probability weight.
type Scenario struct {
	ID          string  `json:"id"`
	Probability float64 `json:"probability"`
}

// Series is a dense (time, scenario) table. Values are stored time-major: index t*NO+o.
type Series struct {
	NT     int
	NO     int
	Values []float64
}

func NewSeries(nt, no int) Series {
	return Series{NT: nt, NO: no, Values: make([]float64, nt*no)}
}

// ConstantSeries returns a series with every entry set to v.
func ConstantSeries(nt, no int, v float64) Series {
	s := NewSeries(nt, no)
	for i := range s.Values {
		s.Values[i] = v
	}
	return s
}

func (s Series) Index(t, o int) int       { return t*s.NO + o }
func (s Series) At(t, o int) float64      { return s.Values[t*s.NO+o] }
func (s *Series) Set(t, o int, v float64) { s.Values[t*s.NO+o] = v }
func (s Series) Len() int                 { return len(s.Values) }

func (s Series) Clone() Series {
	out := Series{NT: s.NT, NO: s.NO, Values: make([]float64, len(s.Values))}
	copy(out.Values, s.Values)
	return out
}

// ScenarioSum returns sum_t s[t,o].
func (s Series) ScenarioSum(o int) float64 {
	sum := 0.0
	for t := 0; t < s.NT; t++ {
		sum += s.At(t, o)
	}
	return sum
}

// MarketParams are the demand-side parameters shared by every formulation.
type MarketParams struct {
	// VOLL is B, the value of served load (currency per MWh).
	VOLL float64
	// PeakDemand scales the normalized demand profile to MW.
	PeakDemand float64
	// FlexibleDemand is the share of demand (0..1) that is price-elastic.
	FlexibleDemand float64
}

// RiskParams parametrise the expectation/CVaR blend.
// Delta = 1 is risk neutral, Delta = 0 optimises the tail only.
// Psi is the probability mass of the tail (CVaR at confidence 1-Psi).
type RiskParams struct {
	Delta float64
	Psi   float64
}

func (r RiskParams) Validate() error {
	if r.Delta < 0 || r.Delta > 1 || math.IsNaN(r.Delta) {
		return fmt.Errorf("%w: delta must be in [0, 1]", ErrDataInconsistency)
	}
	if r.Psi <= 0 || r.Psi > 1 || math.IsNaN(r.Psi) {
		return fmt.Errorf("%w: psi must be in (0, 1]", ErrDataInconsistency)
	}
	return nil
}

// RiskNeutral reports whether the CVaR term has zero weight.
func (r RiskParams) RiskNeutral() bool { return r.Delta >= 1 }

// Dataset is the immutable input of a run. Construct it through the data package, which
// validates weights and probabilities; treat it as read-only afterwards.
type Dataset struct {
	Times     []string
	Scenarios []Scenario

	Generators []Generator
	Storages   []Storage

	// Weights is W[t,o], the hours represented by step t in scenario o.
	Weights Series
	// Demand is D[t,o], the normalized demand profile.
	Demand Series
	// Availability holds A[t,o] per generator id. A missing entry means fully available.
	Availability map[string]Series

	Market MarketParams
	Risk   RiskParams
}

func (d *Dataset) NT() int { return len(d.Times) }
func (d *Dataset) NO() int { return len(d.Scenarios) }
func (d *Dataset) NG() int { return len(d.Generators) }
func (d *Dataset) NS() int { return len(d.Storages) }

// Participants is len_r: every generator, every storage unit and the single consumer.
func (d *Dataset) Participants() int { return d.NG() + d.NS() + 1 }

// Prob returns P[o].
func (d *Dataset) Prob(o int) float64 { return d.Scenarios[o].Probability }

// Avail returns A[t,o,g], defaulting to 1 for dispatchable generators.
func (d *Dataset) Avail(g, t, o int) float64 {
	s, ok := d.Availability[d.Generators[g].ID]
	if !ok {
		return 1
	}
	return s.At(t, o)
}

// DemandMW is the demand ceiling D[t,o]*peak in MW.
func (d *Dataset) DemandMW(t, o int) float64 {
	return d.Demand.At(t, o) * d.Market.PeakDemand
}

// FixedDemandMW is the inelastic part of the ceiling.
func (d *Dataset) FixedDemandMW(t, o int) float64 {
	return (1 - d.Market.FlexibleDemand) * d.DemandMW(t, o)
}

// FlexibleDemandMW is the elastic part of the ceiling.
func (d *Dataset) FlexibleDemandMW(t, o int) float64 {
	return d.Market.FlexibleDemand * d.DemandMW(t, o)
}

// Validate checks shapes and parameter ranges. Weight coverage is checked by the data
// package when the dataset is built because it depends on the weighting mode.
func (d *Dataset) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: dataset is nil", ErrDataInconsistency)
	}
	nt, no := d.NT(), d.NO()
	if nt == 0 {
		return fmt.Errorf("%w: no time steps", ErrDataInconsistency)
	}
	if no == 0 {
		return fmt.Errorf("%w: no scenarios", ErrDataInconsistency)
	}
	if d.NG() == 0 && d.NS() == 0 {
		return fmt.Errorf("%w: no generators or storage units", ErrDataInconsistency)
	}
	if err := checkShape("weights", d.Weights, nt, no); err != nil {
		return err
	}
	if err := checkShape("demand", d.Demand, nt, no); err != nil {
		return err
	}
	psum := 0.0
	for _, sc := range d.Scenarios {
		if sc.Probability < 0 {
			return fmt.Errorf("%w: scenario %q has negative probability", ErrDataInconsistency, sc.ID)
		}
		psum += sc.Probability
	}
	if math.Abs(psum-1) > 1e-9 {
		return fmt.Errorf("%w: scenario probabilities sum to %.12f, want 1", ErrDataInconsistency, psum)
	}
	seen := map[string]bool{}
	for _, g := range d.Generators {
		if err := g.Validate(); err != nil {
			return err
		}
		if seen[g.ID] {
			return fmt.Errorf("%w: duplicate technology id %q", ErrDataInconsistency, g.ID)
		}
		seen[g.ID] = true
		if a, ok := d.Availability[g.ID]; ok {
			if err := checkShape("availability "+g.ID, a, nt, no); err != nil {
				return err
			}
			for _, v := range a.Values {
				if v < 0 || v > 1 || math.IsNaN(v) {
					return fmt.Errorf("%w: availability %q outside [0, 1]", ErrDataInconsistency, g.ID)
				}
			}
		}
	}
	for _, s := range d.Storages {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate technology id %q", ErrDataInconsistency, s.ID)
		}
		seen[s.ID] = true
	}
	for _, w := range d.Weights.Values {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("%w: negative time weight", ErrDataInconsistency)
		}
	}
	for _, v := range d.Demand.Values {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: negative demand", ErrDataInconsistency)
		}
	}
	m := d.Market
	if m.PeakDemand <= 0 {
		return fmt.Errorf("%w: peak_demand must be > 0", ErrDataInconsistency)
	}
	if m.VOLL < 0 {
		return fmt.Errorf("%w: voll must be >= 0", ErrDataInconsistency)
	}
	if m.FlexibleDemand < 0 || m.FlexibleDemand > 1 {
		return fmt.Errorf("%w: flexible_demand must be in [0, 1]", ErrDataInconsistency)
	}
	return d.Risk.Validate()
}

func checkShape(name string, s Series, nt, no int) error {
	if s.NT != nt || s.NO != no || len(s.Values) != nt*no {
		return fmt.Errorf("%w: %s has shape %dx%d (%d values), want %dx%d",
			ErrDataInconsistency, name, s.NT, s.NO, len(s.Values), nt, no)
	}
	return nil
}

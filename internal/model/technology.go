package model

import (
	"fmt"
	"math"
)

// Traits are capability tags attached to a technology record. They switch on optional
// operational constraints; nothing in the formulation matches on technology names.
type Traits struct {
	// MinDurationHours / MaxDurationHours bound energy-to-power ratio (E >= min*P, E <= max*P).
	// Zero disables the bound.
	MinDurationHours float64 `yaml:"min_duration_hours" json:"min_duration_hours,omitempty"`
	MaxDurationHours float64 `yaml:"max_duration_hours" json:"max_duration_hours,omitempty"`

	// RampLimit is the largest change in output between consecutive steps, as a fraction of
	// installed capacity. Zero means unlimited.
	RampLimit float64 `yaml:"ramp_limit" json:"ramp_limit,omitempty"`
}

func (t Traits) HasMinDuration() bool { return t.MinDurationHours > 0 }
func (t Traits) HasMaxDuration() bool { return t.MaxDurationHours > 0 }
func (t Traits) HasRampLimit() bool   { return t.RampLimit > 0 && t.RampLimit < 1 }

// Generator defines the economic and technical parameters of a generation technology.
// Units:
// - InvCost: currency per MW of capacity (overnight)
// - VarCost: currency per MWh produced
// - WACC: fraction, Lifetime: years
// - MaxCapacity: MW, zero or negative means unbounded
// - Existing: MW; when set the capacity is a fixed parameter, not a decision
type Generator struct {
	ID          string
	Class       string
	InvCost     float64
	VarCost     float64
	WACC        float64
	Lifetime    int
	MaxCapacity float64
	Existing    *float64
	Traits      Traits
}

// CRF is the capital recovery factor of the generator's financing terms.
func (g Generator) CRF() float64 { return CRF(g.WACC, g.Lifetime) }

// AnnualizedInvCost is the yearly capital charge per MW of capacity.
func (g Generator) AnnualizedInvCost() float64 { return g.CRF() * g.InvCost }

// FixedCapacity reports the capacity when it is a parameter rather than a decision.
func (g Generator) FixedCapacity() (float64, bool) {
	if g.Existing == nil {
		return 0, false
	}
	return *g.Existing, true
}

// Active is false when the generator can never produce (fixed at zero capacity).
func (g Generator) Active() bool {
	c, fixed := g.FixedCapacity()
	return !fixed || c > 0
}

func (g Generator) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("%w: generator id is required", ErrDataInconsistency)
	}
	if g.InvCost < 0 {
		return fmt.Errorf("%w: generator %q: inv_cost must be >= 0", ErrDataInconsistency, g.ID)
	}
	if g.VarCost < 0 {
		return fmt.Errorf("%w: generator %q: var_cost must be >= 0", ErrDataInconsistency, g.ID)
	}
	if err := validateFinance(g.WACC, g.Lifetime); err != nil {
		return fmt.Errorf("%w: generator %q: %v", ErrDataInconsistency, g.ID, err)
	}
	if c, ok := g.FixedCapacity(); ok && c < 0 {
		return fmt.Errorf("%w: generator %q: existing capacity must be >= 0", ErrDataInconsistency, g.ID)
	}
	if g.Traits.RampLimit < 0 || g.Traits.RampLimit > 1 {
		return fmt.Errorf("%w: generator %q: ramp_limit must be in [0, 1]", ErrDataInconsistency, g.ID)
	}
	return nil
}

// Storage defines the parameters of a storage technology with separately sized power and
// energy capacity.
// Units:
// - InvCostPower: currency per MW, InvCostEnergy: currency per MWh
// - VarCost: currency per MWh discharged
// - ChargeEff / DischargeEff: 0..1
// - MaxPower MW / MaxEnergy MWh: zero or negative means unbounded
type Storage struct {
	ID            string
	Class         string
	InvCostPower  float64
	InvCostEnergy float64
	VarCost       float64
	WACC          float64
	Lifetime      int
	ChargeEff     float64
	DischargeEff  float64
	MaxPower      float64
	MaxEnergy     float64

	ExistingPower  *float64
	ExistingEnergy *float64

	Traits Traits
}

func (s Storage) CRF() float64 { return CRF(s.WACC, s.Lifetime) }

func (s Storage) AnnualizedPowerCost() float64  { return s.CRF() * s.InvCostPower }
func (s Storage) AnnualizedEnergyCost() float64 { return s.CRF() * s.InvCostEnergy }

func (s Storage) FixedPower() (float64, bool) {
	if s.ExistingPower == nil {
		return 0, false
	}
	return *s.ExistingPower, true
}

func (s Storage) FixedEnergy() (float64, bool) {
	if s.ExistingEnergy == nil {
		return 0, false
	}
	return *s.ExistingEnergy, true
}

// Active is false when either rating is fixed at zero: such a unit can neither charge nor
// hold energy and contributes nothing to the market.
func (s Storage) Active() bool {
	if p, ok := s.FixedPower(); ok && p <= 0 {
		return false
	}
	if e, ok := s.FixedEnergy(); ok && e <= 0 {
		return false
	}
	return true
}

func (s Storage) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: storage id is required", ErrDataInconsistency)
	}
	if s.InvCostPower < 0 || s.InvCostEnergy < 0 {
		return fmt.Errorf("%w: storage %q: investment costs must be >= 0", ErrDataInconsistency, s.ID)
	}
	if s.VarCost < 0 {
		return fmt.Errorf("%w: storage %q: var_cost must be >= 0", ErrDataInconsistency, s.ID)
	}
	if s.ChargeEff <= 0 || s.ChargeEff > 1 {
		return fmt.Errorf("%w: storage %q: charge_efficiency must be in (0, 1]", ErrDataInconsistency, s.ID)
	}
	if s.DischargeEff <= 0 || s.DischargeEff > 1 {
		return fmt.Errorf("%w: storage %q: discharge_efficiency must be in (0, 1]", ErrDataInconsistency, s.ID)
	}
	if err := validateFinance(s.WACC, s.Lifetime); err != nil {
		return fmt.Errorf("%w: storage %q: %v", ErrDataInconsistency, s.ID, err)
	}
	if p, ok := s.FixedPower(); ok && p < 0 {
		return fmt.Errorf("%w: storage %q: existing power must be >= 0", ErrDataInconsistency, s.ID)
	}
	if e, ok := s.FixedEnergy(); ok && e < 0 {
		return fmt.Errorf("%w: storage %q: existing energy must be >= 0", ErrDataInconsistency, s.ID)
	}
	t := s.Traits
	if t.HasMinDuration() && t.HasMaxDuration() && t.MinDurationHours > t.MaxDurationHours {
		return fmt.Errorf("%w: storage %q: min_duration_hours exceeds max_duration_hours", ErrDataInconsistency, s.ID)
	}
	return nil
}

// CRF is the capital recovery factor WACC*(1+WACC)^L / ((1+WACC)^L - 1), the annuity that
// repays one unit of capital over L years. A zero rate degenerates to straight-line 1/L.
func CRF(wacc float64, lifetime int) float64 {
	if lifetime <= 0 {
		return math.NaN()
	}
	if wacc == 0 {
		return 1 / float64(lifetime)
	}
	f := math.Pow(1+wacc, float64(lifetime))
	return wacc * f / (f - 1)
}

func validateFinance(wacc float64, lifetime int) error {
	if lifetime <= 0 {
		return fmt.Errorf("lifetime must be > 0")
	}
	if wacc < 0 || wacc >= 1 {
		return fmt.Errorf("wacc must be in [0, 1)")
	}
	return nil
}

package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestCRFGoldenValue(t *testing.T) {
	assert.InDelta(t, 0.0944, CRF(0.07, 20), 5e-5)
	assert.InDelta(t, 0.05, CRF(0, 20), 1e-12)
	assert.True(t, math.IsNaN(CRF(0.07, 0)))

	g := Generator{ID: "gas", InvCost: 1000, WACC: 0.07, Lifetime: 20}
	assert.InDelta(t, 94.39, g.AnnualizedInvCost(), 0.01)
}

func TestGeneratorValidate(t *testing.T) {
	ok := Generator{ID: "pv", InvCost: 800, VarCost: 0, WACC: 0.05, Lifetime: 25}
	require.NoError(t, ok.Validate())

	cases := map[string]Generator{
		"missing id":    {InvCost: 1, WACC: 0.05, Lifetime: 10},
		"negative cost": {ID: "a", InvCost: -1, WACC: 0.05, Lifetime: 10},
		"bad wacc":      {ID: "a", WACC: 1.5, Lifetime: 10},
		"bad lifetime":  {ID: "a", WACC: 0.05},
		"neg existing":  {ID: "a", WACC: 0.05, Lifetime: 10, Existing: ptr(-3)},
		"ramp above 1":  {ID: "a", WACC: 0.05, Lifetime: 10, Traits: Traits{RampLimit: 2}},
	}
	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, g.Validate(), ErrDataInconsistency)
		})
	}
}

func TestActive(t *testing.T) {
	assert.True(t, Generator{ID: "g"}.Active())
	assert.True(t, Generator{ID: "g", Existing: ptr(100)}.Active())
	assert.False(t, Generator{ID: "g", Existing: ptr(0)}.Active())

	assert.True(t, Storage{ID: "s"}.Active())
	assert.False(t, Storage{ID: "s", ExistingPower: ptr(0), ExistingEnergy: ptr(0)}.Active())
	assert.False(t, Storage{ID: "s", ExistingEnergy: ptr(0)}.Active())
}

func TestStorageValidateDurationTraits(t *testing.T) {
	s := Storage{ID: "ldes", WACC: 0.05, Lifetime: 30, ChargeEff: 0.8, DischargeEff: 0.8,
		Traits: Traits{MinDurationHours: 100, MaxDurationHours: 10}}
	assert.ErrorIs(t, s.Validate(), ErrDataInconsistency)

	s.Traits = Traits{MinDurationHours: 4, MaxDurationHours: 4}
	assert.NoError(t, s.Validate())

	s.ChargeEff = 0
	assert.ErrorIs(t, s.Validate(), ErrDataInconsistency)
}

func toyDataset() *Dataset {
	return &Dataset{
		Times:      []string{"t1", "t2"},
		Scenarios:  []Scenario{{ID: "y1", Probability: 1}},
		Generators: []Generator{{ID: "gen", WACC: 0.05, Lifetime: 20, Existing: ptr(100)}},
		Storages:   []Storage{{ID: "bess", WACC: 0.05, Lifetime: 15, ChargeEff: 0.9, DischargeEff: 0.9, ExistingPower: ptr(0), ExistingEnergy: ptr(0)}},
		Weights:    ConstantSeries(2, 1, HoursPerYear/2),
		Demand:     ConstantSeries(2, 1, 0.5),
		Market:     MarketParams{VOLL: 100, PeakDemand: 100},
		Risk:       RiskParams{Delta: 1, Psi: 0.5},
	}
}

func TestDatasetValidate(t *testing.T) {
	d := toyDataset()
	require.NoError(t, d.Validate())
	assert.Equal(t, 3, d.Participants())
	assert.Equal(t, 1.0, d.Avail(0, 1, 0))
	assert.InDelta(t, 50, d.DemandMW(0, 0), 1e-12)

	d.Market.FlexibleDemand = 0.2
	assert.InDelta(t, 40, d.FixedDemandMW(1, 0), 1e-12)
	assert.InDelta(t, 10, d.FlexibleDemandMW(1, 0), 1e-12)

	bad := toyDataset()
	bad.Scenarios[0].Probability = 0.9
	assert.ErrorIs(t, bad.Validate(), ErrDataInconsistency)

	bad = toyDataset()
	bad.Demand = ConstantSeries(3, 1, 0.5)
	assert.ErrorIs(t, bad.Validate(), ErrDataInconsistency)

	bad = toyDataset()
	bad.Availability = map[string]Series{"gen": ConstantSeries(2, 1, 1.2)}
	assert.ErrorIs(t, bad.Validate(), ErrDataInconsistency)

	bad = toyDataset()
	bad.Storages[0].ID = "gen"
	assert.ErrorIs(t, bad.Validate(), ErrDataInconsistency)

	bad = toyDataset()
	bad.Risk.Psi = 0
	assert.ErrorIs(t, bad.Validate(), ErrDataInconsistency)
}

func TestSeries(t *testing.T) {
	s := NewSeries(3, 2)
	s.Set(2, 1, 4)
	s.Set(0, 1, 1)
	assert.Equal(t, 5, s.Index(2, 1))
	assert.Equal(t, 5.0, s.ScenarioSum(1))
	c := s.Clone()
	c.Set(2, 1, 0)
	assert.Equal(t, 4.0, s.At(2, 1))
}

func TestActionFromNetDischarge(t *testing.T) {
	assert.Equal(t, ActionDischarging, ActionFromNetDischarge(5, 1e-6))
	assert.Equal(t, ActionCharging, ActionFromNetDischarge(-5, 1e-6))
	assert.Equal(t, ActionIdle, ActionFromNetDischarge(1e-9, 1e-6))
}

package experiment

import (
	"context"
	"testing"

	"ldes-markets/internal/admm"
	"ldes-markets/internal/market"
	"ldes-markets/internal/model"
	"ldes-markets/internal/solver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

// toy: one free generator fixed at 100 MW, an empty storage unit and a flat demand of 50 MW
// over two steps.
func toy() *model.Dataset {
	return &model.Dataset{
		Times:      []string{"1", "2"},
		Scenarios:  []model.Scenario{{ID: "base", Probability: 1}},
		Generators: []model.Generator{{ID: "gen", WACC: 0.05, Lifetime: 20, Existing: ptr(100)}},
		Storages: []model.Storage{{ID: "bess", WACC: 0.05, Lifetime: 15, ChargeEff: 0.9, DischargeEff: 0.9,
			ExistingPower: ptr(0), ExistingEnergy: ptr(0)}},
		Weights: model.ConstantSeries(2, 1, model.HoursPerYear/2),
		Demand:  model.ConstantSeries(2, 1, 0.5),
		Market:  model.MarketParams{VOLL: 100, PeakDemand: 100},
		Risk:    model.RiskParams{Delta: 1, Psi: 0.5},
	}
}

func settings(maxIter int) admm.Settings {
	return admm.Settings{
		MaxIterations:   maxIter,
		Rho:             1,
		ToleranceFactor: 0.1,
		WeightedDual:    true,
		Parallel:        true,
	}
}

func runner() *Runner {
	return NewRunner(solver.NewCVX(solver.Options{AbsTol: 1e-9, RelTol: 1e-9, FeasTol: 1e-9, MaxIter: 200}))
}

func TestToyMarketsAgree(t *testing.T) {
	ds := toy()
	c, err := runner().Run(context.Background(), ds, settings(300))
	require.NoError(t, err)

	inc := c.Incomplete
	require.True(t, inc.Outcome.Converged, "history: %+v", inc.History)
	last := inc.History[len(inc.History)-1]
	assert.Less(t, last.Primal, inc.Tolerance)

	for cell := 0; cell < 2; cell++ {
		assert.InDelta(t, 0, inc.Prices.Values[cell], 1.0, "price settles at the generator's marginal cost")
		assert.InDelta(t, 50, inc.Participants[0].Contribution[cell], 0.5)
		assert.InDelta(t, c.Complete.Participants[0].Contribution[cell], inc.Participants[0].Contribution[cell], 0.5)
	}

	require.Len(t, c.Gap, 3)
	for _, g := range c.Gap {
		assert.InDelta(t, 0, g.Difference, 1e-3, "%s/%s", g.ID, g.Name)
	}

	want := model.HoursPerYear * 100 * 50
	assert.InDelta(t, want, c.CompleteWelfare, want*1e-4)
	assert.InDelta(t, c.CompleteWelfare, c.IncompleteWelfare, want*1e-2)
	assert.InDelta(t, 0, c.WelfareLoss, want*1e-2)

	require.Len(t, c.PriceStats, 1)
	assert.Equal(t, "base", c.PriceStats[0].Scenario)
	require.Len(t, c.Rents, 2)
	assert.Equal(t, market.KindGenerator, c.Rents[0].Kind)
	require.Len(t, c.CompleteRents, 2)
	assert.Equal(t, "gen", c.CompleteRents[0].ID)

	require.Len(t, c.PayoffRisks, 3)
	for i, pr := range c.PayoffRisks {
		assert.InDelta(t, inc.Participants[i].ExpectedPayoff(ds), pr.Expected, 1e-6)
		assert.InDelta(t, pr.Expected, pr.RiskAdjusted, 1e-6, "risk neutral")
	}
}

func TestCompletePricesRentsWithSystemTail(t *testing.T) {
	ds := toy()
	ds.Risk.Delta = 0.5
	// Scarce generator: demand above capacity binds its limit in every cell.
	ds.Generators[0].Existing = ptr(40)
	c, err := runner().Run(context.Background(), ds, settings(1))
	require.NoError(t, err)
	require.NotNil(t, c.Complete)

	require.Len(t, c.CompleteRents, 2)
	gen := c.CompleteRents[0]
	assert.Equal(t, "gen", gen.ID)
	// Every served MWh earns VOLL; with one scenario the tail weight restores the full
	// probability, so the rent is the risk-neutral one.
	assert.InDelta(t, 100*model.HoursPerYear, gen.Power, 100*model.HoursPerYear*1e-3)
}

func TestSweepKeepsInputs(t *testing.T) {
	ds := toy()
	out, err := runner().Sweep(context.Background(), ds, settings(20), []float64{1, 0.5})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1.0, out[0].Risk.Delta)
	assert.Equal(t, 0.5, out[1].Risk.Delta)
	assert.Equal(t, 1.0, ds.Risk.Delta, "sweep must not mutate the input dataset")

	_, err = runner().Sweep(context.Background(), ds, settings(20), nil)
	assert.Error(t, err)
}

func TestRunRejectsMissingInputs(t *testing.T) {
	_, err := runner().Run(context.Background(), nil, settings(10))
	assert.Error(t, err)

	_, err = NewRunner(nil).Run(context.Background(), toy(), settings(10))
	assert.Error(t, err)
}

package market

import (
	"context"
	"testing"

	"ldes-markets/internal/model"
	"ldes-markets/internal/risk"
	"ldes-markets/internal/solver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func oracle() solver.Oracle {
	return solver.NewCVX(solver.Options{AbsTol: 1e-9, RelTol: 1e-9, FeasTol: 1e-9, MaxIter: 200})
}

// toy: one free generator fixed at 100 MW, one storage unit of zero size, flat demand of 50 MW
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

func TestBuildCentralShape(t *testing.T) {
	ds := toy()
	require.NoError(t, ds.Validate())
	c := BuildCentral(ds)
	// two q and two d_fix; storage is inactive and risk neutral adds nothing.
	assert.Equal(t, 4, c.Program.NumVars())
	assert.Len(t, c.balance, 2)
	assert.Len(t, c.units, 3)
	assert.False(t, c.units[1].active)
}

func TestSolveCentralToy(t *testing.T) {
	ds := toy()
	res, err := SolveCentral(context.Background(), ds, oracle())
	require.NoError(t, err)

	gen, cons := res.Participants[0], res.Participants[2]
	for c := 0; c < 2; c++ {
		assert.InDelta(t, 50, gen.Series[SeriesOutput][c], 1e-4)
		assert.InDelta(t, 50, cons.Series[SeriesFixed][c], 1e-4)
		assert.InDelta(t, 0, gen.Contribution[c]+cons.Contribution[c], 1e-5)
	}
	assert.InDelta(t, 100, gen.Capacities[CapacityGeneration], 1e-12)
	assert.Equal(t, 0.0, res.Participants[1].Capacities[CapacityPower])
	assert.InDelta(t, 100*50*model.HoursPerYear, res.ExpectedWelfare(ds), 1)
	for _, p := range res.Prices.Values {
		assert.GreaterOrEqual(t, p, -1e-3)
		assert.LessOrEqual(t, p, 100+1e-3)
	}
}

func TestCentralRiskAverseReportsTail(t *testing.T) {
	ds := toy()
	ds.Scenarios = []model.Scenario{{ID: "high", Probability: 0.5}, {ID: "low", Probability: 0.5}}
	ds.Weights = model.ConstantSeries(2, 2, model.HoursPerYear/2)
	ds.Demand = model.Series{NT: 2, NO: 2, Values: []float64{0.5, 0.3, 0.5, 0.3}}
	ds.Risk = model.RiskParams{Delta: 0.5, Psi: 0.5}
	require.NoError(t, ds.Validate())

	res, err := SolveCentral(context.Background(), ds, oracle())
	require.NoError(t, err)
	require.Len(t, res.Welfare, 2)
	assert.Greater(t, res.Welfare[0], res.Welfare[1])

	want := risk.CVaR(res.Welfare, []float64{0.5, 0.5}, 0.5)
	assert.InDelta(t, want, res.SystemCVaR, 1e-3*want)
	assert.InDelta(t, res.Welfare[1], res.SystemCVaR, 1e-3*want, "the tail is the low-demand scenario")

	sum := 0.0
	for _, m := range res.SystemMu {
		sum += m
	}
	assert.InDelta(t, 0.5, sum, 1e-5)
}

func TestCentralPriceEqualsMarginalCostWithFlexibleDemand(t *testing.T) {
	ds := &model.Dataset{
		Times:      []string{"1"},
		Scenarios:  []model.Scenario{{ID: "base", Probability: 1}},
		Generators: []model.Generator{{ID: "gas", VarCost: 40, WACC: 0.05, Lifetime: 20, Existing: ptr(1000)}},
		Weights:    model.ConstantSeries(1, 1, model.HoursPerYear),
		Demand:     model.ConstantSeries(1, 1, 1),
		Market:     model.MarketParams{VOLL: 100, PeakDemand: 100, FlexibleDemand: 1},
		Risk:       model.RiskParams{Delta: 1, Psi: 0.5},
	}
	require.NoError(t, ds.Validate())
	res, err := SolveCentral(context.Background(), ds, oracle())
	require.NoError(t, err)
	assert.InDelta(t, 60, res.Participants[1].Series[SeriesFlexible][0], 1e-3)
	assert.InDelta(t, 40, res.Prices.Values[0], 1e-3)
}

func TestCentralInvestsInStorageForArbitrage(t *testing.T) {
	// Cheap power in step 1, expensive in step 2; storage with no energy cost should shift it.
	ds := &model.Dataset{
		Times:     []string{"1", "2"},
		Scenarios: []model.Scenario{{ID: "base", Probability: 1}},
		Generators: []model.Generator{
			{ID: "cheap", VarCost: 10, WACC: 0.05, Lifetime: 20, Existing: ptr(200)},
			{ID: "peaker", VarCost: 90, WACC: 0.05, Lifetime: 20, Existing: ptr(200)},
		},
		Storages: []model.Storage{{ID: "ldes", InvCostPower: 1000, InvCostEnergy: 10, WACC: 0.05, Lifetime: 30,
			ChargeEff: 1, DischargeEff: 1, MaxPower: 500, MaxEnergy: 500}},
		Weights:      model.ConstantSeries(2, 1, model.HoursPerYear/2),
		Demand:       model.ConstantSeries(2, 1, 0.5),
		Availability: map[string]model.Series{"cheap": {NT: 2, NO: 1, Values: []float64{1, 0}}},
		Market:       model.MarketParams{VOLL: 1000, PeakDemand: 100},
		Risk:         model.RiskParams{Delta: 1, Psi: 0.5},
	}
	require.NoError(t, ds.Validate())
	res, err := SolveCentral(context.Background(), ds, oracle())
	require.NoError(t, err)
	st := res.Participants[2]
	assert.Greater(t, st.Capacities[CapacityPower], 1.0)
	assert.Greater(t, st.Series[SeriesDischarge][1], 1.0)
}

func TestAgentInstanceRespondsToPrice(t *testing.T) {
	ds := toy()
	tmpls := NewTemplates(ds)
	require.Len(t, tmpls, 3)
	assert.True(t, tmpls[0].Active())
	assert.False(t, tmpls[1].Active())
	assert.Equal(t, KindConsumer, tmpls[2].Kind())

	prices := []float64{20, 20}
	in := tmpls[0].Instantiate(Signal{Iteration: 0, Prices: prices})
	sol, err := oracle().Solve(context.Background(), in.Program)
	require.NoError(t, err)
	r := in.Extract(sol)
	assert.InDelta(t, 100, r.Contribution[0], 1e-4)
	assert.InDelta(t, 20*100*model.HoursPerYear, r.Payoff[0], 10)
	assert.Equal(t, []float64{0}, r.Mu)

	// The template is untouched by the instance.
	assert.Equal(t, 2, tmpls[0].base.NumVars())

	// A penalty centred on 40 MW pulls output down at a low price.
	pen := &Penalty{Rho: 1, Coef: []float64{1}, Center: []float64{40, 40}}
	in = tmpls[0].Instantiate(Signal{Iteration: 1, Prices: []float64{5, 5}, Penalty: pen})
	sol, err = oracle().Solve(context.Background(), in.Program)
	require.NoError(t, err)
	r = in.Extract(sol)
	assert.InDelta(t, 45, r.Contribution[0], 1e-3)

	idle := tmpls[1].Idle()
	assert.Equal(t, []float64{0, 0}, idle.Contribution)
}

func TestConsumerAgentStopsAtVOLL(t *testing.T) {
	ds := toy()
	tmpls := NewTemplates(ds)
	in := tmpls[2].Instantiate(Signal{Prices: []float64{50, 150}})
	sol, err := oracle().Solve(context.Background(), in.Program)
	require.NoError(t, err)
	r := in.Extract(sol)
	assert.InDelta(t, -50, r.Contribution[0], 1e-4)
	assert.InDelta(t, 0, r.Contribution[1], 1e-4)
}

func TestKindText(t *testing.T) {
	b, err := KindStorage.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "storage", string(b))

	var k Kind
	require.NoError(t, k.UnmarshalText([]byte("consumer")))
	assert.Equal(t, KindConsumer, k)
	assert.Error(t, k.UnmarshalText([]byte("prosumer")))
}

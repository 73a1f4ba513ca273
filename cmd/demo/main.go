package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"ldes-markets/internal/admm"
	"ldes-markets/internal/experiment"
	"ldes-markets/internal/logging"
	"ldes-markets/internal/market"
	"ldes-markets/internal/model"
	"ldes-markets/internal/report"
	"ldes-markets/internal/solver"

	"github.com/rs/zerolog/log"
)

// Demo:
// - Build a small instance in code (no files needed)
// - Solve it as a complete market and as an ADMM-coordinated incomplete market
// - Print prices, capacities and the per-step storage ledger
func main() {
	invest := flag.Bool("invest", false, "Use the two-scenario instance with investable gas, solar and storage")
	delta := flag.Float64("delta", 1, "Weight on expected profit (1 = risk neutral)")
	iters := flag.Int("iters", 200, "ADMM iteration budget")
	outCSV := flag.String("out", "", "Optional path to write the storage ledger CSV")
	flag.Parse()

	logger, err := logging.Setup("info", "console")
	if err != nil {
		panic(err)
	}

	ds := toy()
	if *invest {
		ds = investable()
	}
	ds.Risk.Delta = *delta
	if err := ds.Validate(); err != nil {
		panic(err)
	}

	runner := experiment.NewRunner(
		solver.NewCVX(solver.Options{AbsTol: 1e-8, RelTol: 1e-8, FeasTol: 1e-8, MaxIter: 200}),
		experiment.WithLogger(logger),
	)
	cmp, err := runner.Run(context.Background(), ds, admm.Settings{
		MaxIterations:   *iters,
		Rho:             1,
		ToleranceFactor: 0.01,
		WeightedDual:    true,
		Parallel:        true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("run")
	}

	inc := cmp.Incomplete
	fmt.Printf("outcome=%s iterations=%d clamped=%d\n", inc.Outcome, len(inc.History), inc.Clamped)
	fmt.Printf("\n%-6s %-10s %-14s %-14s\n", "step", "scenario", "complete $", "incomplete $")
	for o, sc := range ds.Scenarios {
		for t, ts := range ds.Times {
			fmt.Printf("%-6s %-10s %-14.2f %-14.2f\n", ts, sc.ID, cmp.Complete.Prices.At(t, o), inc.Prices.At(t, o))
		}
	}

	fmt.Printf("\n%-10s %-8s %-12s %-12s\n", "id", "name", "complete", "incomplete")
	for _, g := range cmp.Gap {
		fmt.Printf("%-10s %-8s %-12.3f %-12.3f\n", g.ID, g.Name, g.Complete, g.Incomplete)
	}
	fmt.Printf("\nwelfare complete=$%.2f incomplete=$%.2f loss=$%.2f\n",
		cmp.CompleteWelfare, cmp.IncompleteWelfare, cmp.WelfareLoss)

	for _, p := range inc.Participants {
		if p.Kind != market.KindStorage {
			continue
		}
		ledger, err := report.BuildLedger(ds, inc.Prices, p)
		if err != nil {
			panic(err)
		}
		fmt.Printf("\n%-10s %-6s %-12s %-10s %-10s %-12s\n", "scenario", "step", "action", "net MW", "soc MWh", "revenue $")
		for _, r := range ledger {
			fmt.Printf("%-10s %-6s %-12s %-10.2f %-10.2f %-12.2f\n", r.Scenario, r.Time, r.Action, r.NetMW, r.SOCMWh, r.Revenue)
		}
		if *outCSV != "" {
			err := report.WriteFile(*outCSV, func(w io.Writer) error { return report.WriteLedgerCSV(w, ledger) })
			if err != nil {
				panic(err)
			}
			fmt.Fprintf(os.Stderr, "wrote %d rows to %s\n", len(ledger), *outCSV)
		}
	}
}

func ptr(v float64) *float64 { return &v }

// toy: one free generator fixed at 100 MW, a storage unit with no capacity and a flat demand
// of 50 MW over two steps. Both markets clear at a zero price.
func toy() *model.Dataset {
	return &model.Dataset{
		Times:      []string{"1", "2"},
		Scenarios:  []model.Scenario{{ID: "flat", Probability: 1}},
		Generators: []model.Generator{{ID: "gen", WACC: 0.05, Lifetime: 20, Existing: ptr(100)}},
		Storages: []model.Storage{{ID: "bess", WACC: 0.05, Lifetime: 15, ChargeEff: 0.9, DischargeEff: 0.9,
			ExistingPower: ptr(0), ExistingEnergy: ptr(0)}},
		Weights: model.ConstantSeries(2, 1, model.HoursPerYear/2),
		Demand:  model.ConstantSeries(2, 1, 0.5),
		Market:  model.MarketParams{VOLL: 100, PeakDemand: 100},
		Risk:    model.RiskParams{Delta: 1, Psi: 0.5},
	}
}

// investable: a sunny and a cloudy year of four steps each. Solar, gas and storage are all
// sized by the markets.
func investable() *model.Dataset {
	sun := model.NewSeries(4, 2)
	for t, v := range []float64{0, 0.9, 0.8, 0} {
		sun.Set(t, 0, v)
		sun.Set(t, 1, v/3)
	}
	demand := model.NewSeries(4, 2)
	for t, v := range []float64{0.6, 0.8, 0.9, 1} {
		demand.Set(t, 0, v)
		demand.Set(t, 1, v)
	}
	return &model.Dataset{
		Times:     []string{"night", "morning", "noon", "evening"},
		Scenarios: []model.Scenario{{ID: "sunny", Probability: 0.5}, {ID: "cloudy", Probability: 0.5}},
		Generators: []model.Generator{
			{ID: "solar", InvCost: 600000, WACC: 0.06, Lifetime: 25},
			{ID: "gas", InvCost: 500000, VarCost: 80, WACC: 0.08, Lifetime: 30},
		},
		Storages: []model.Storage{{ID: "ldes", InvCostPower: 400000, InvCostEnergy: 20000, WACC: 0.07,
			Lifetime: 20, ChargeEff: 0.85, DischargeEff: 0.85}},
		Weights:      model.ConstantSeries(4, 2, model.HoursPerYear/4),
		Demand:       demand,
		Availability: map[string]model.Series{"solar": sun},
		Market:       model.MarketParams{VOLL: 3000, PeakDemand: 100, FlexibleDemand: 0.1},
		Risk:         model.RiskParams{Delta: 1, Psi: 0.5},
	}
}

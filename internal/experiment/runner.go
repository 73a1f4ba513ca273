// Package experiment runs the complete-markets benchmark and the decomposed market on the
// same dataset and compares their outcomes.
package experiment

import (
	"context"
	"errors"
	"fmt"

	"ldes-markets/internal/admm"
	"ldes-markets/internal/analysis"
	"ldes-markets/internal/market"
	"ldes-markets/internal/model"
	"ldes-markets/internal/solver"

	"github.com/rs/zerolog"
)

// Comparison is the outcome of one run at one risk setting.
type Comparison struct {
	Risk model.RiskParams `json:"risk"`

	// Complete is the central-planner solution; it also seeded the incomplete run's prices.
	Complete   *market.CentralResult `json:"-"`
	Incomplete *admm.Result          `json:"-"`

	Gap []analysis.CapacityGap `json:"gap"`

	// Expected yearly welfare. Incomplete welfare is the sum of expected participant payoffs,
	// in which payments between participants cancel once the balance clears.
	CompleteWelfare   float64 `json:"complete_welfare"`
	IncompleteWelfare float64 `json:"incomplete_welfare"`
	WelfareLoss       float64 `json:"welfare_loss"`

	PriceStats []analysis.PriceStats `json:"price_stats"`
	// Rents are earned in the decomposed market; CompleteRents are the same quantities in the
	// central solution, priced with the system tail duals.
	Rents         []analysis.ScarcityRent `json:"rents"`
	CompleteRents []analysis.ScarcityRent `json:"complete_rents"`
	// PayoffRisks are the decomposed market's payoffs under the run's risk measure.
	PayoffRisks []analysis.PayoffRisk `json:"payoff_risks"`
}

// Runner executes comparisons against one oracle.
type Runner struct {
	oracle solver.Oracle
	log    zerolog.Logger
	obs    admm.Observer
}

type Option func(*Runner)

func WithLogger(l zerolog.Logger) Option    { return func(r *Runner) { r.log = l } }
func WithObserver(obs admm.Observer) Option { return func(r *Runner) { r.obs = obs } }

func NewRunner(oracle solver.Oracle, opts ...Option) *Runner {
	r := &Runner{oracle: oracle, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run solves ds both ways. The complete-markets result is the orchestrator's base solve, so
// the central problem is solved once per run.
func (r *Runner) Run(ctx context.Context, ds *model.Dataset, settings admm.Settings) (*Comparison, error) {
	if ds == nil {
		return nil, errors.New("dataset is nil")
	}
	if r.oracle == nil {
		return nil, errors.New("oracle is nil")
	}
	log := r.log.With().Float64("delta", ds.Risk.Delta).Float64("psi", ds.Risk.Psi).Logger()
	o := admm.New(ds, settings, r.oracle, admm.WithLogger(log), admm.WithObserver(r.obs))
	res, err := o.Run(ctx)
	if err != nil {
		return nil, err
	}
	return Compare(ds, res), nil
}

// Compare derives the comparison from a finished decomposed run.
func Compare(ds *model.Dataset, res *admm.Result) *Comparison {
	c := &Comparison{
		Risk:       ds.Risk,
		Complete:   res.Base,
		Incomplete: res,
	}
	if res.Base != nil {
		c.CompleteWelfare = res.Base.ExpectedWelfare(ds)
		c.Gap = analysis.Gap(market.Capacities(res.Base.Participants), res.Capacities())
		c.CompleteRents = analysis.ScarcityRents(ds, res.Base.Prices, res.Base.Participants, res.Base.SystemMu)
	}
	for _, p := range res.Participants {
		c.IncompleteWelfare += p.ExpectedPayoff(ds)
	}
	c.WelfareLoss = c.CompleteWelfare - c.IncompleteWelfare
	c.PriceStats = analysis.ComputePriceStats(ds, res.Prices)
	c.Rents = analysis.ScarcityRents(ds, res.Prices, res.Participants, nil)
	c.PayoffRisks = analysis.PayoffRisks(ds, res.Participants)
	return c
}

// Sweep reruns the comparison for each delta, keeping every other input fixed.
func (r *Runner) Sweep(ctx context.Context, ds *model.Dataset, settings admm.Settings, deltas []float64) ([]*Comparison, error) {
	if len(deltas) == 0 {
		return nil, errors.New("no delta values")
	}
	out := make([]*Comparison, 0, len(deltas))
	for _, d := range deltas {
		variant := WithDelta(ds, d)
		c, err := r.Run(ctx, variant, settings)
		if err != nil {
			return out, fmt.Errorf("delta %.3f: %w", d, err)
		}
		r.log.Info().
			Float64("delta", d).
			Str("outcome", c.Incomplete.Outcome.String()).
			Float64("welfare_loss", c.WelfareLoss).
			Msg("sweep point done")
		out = append(out, c)
	}
	return out, nil
}

// WithDelta returns a shallow copy of ds with a different risk blend. Series are shared,
// which is safe because datasets are read-only after construction.
func WithDelta(ds *model.Dataset, delta float64) *model.Dataset {
	cp := *ds
	cp.Risk.Delta = delta
	return &cp
}

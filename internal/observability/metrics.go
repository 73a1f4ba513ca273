// Package observability exports Prometheus metrics for decomposed-market runs.
package observability

import (
	"fmt"
	"time"

	"ldes-markets/internal/admm"
	"ldes-markets/internal/market"

	"github.com/prometheus/client_golang/prometheus"
)

// RunCollector bundles the ADMM metrics and implements admm.Observer, so one collector can be
// handed to every orchestrator in the process.
type RunCollector struct {
	Iterations   prometheus.Counter
	AgentSolves  *prometheus.HistogramVec
	Clamps       prometheus.Counter
	Primal       prometheus.Gauge
	Dual         prometheus.Gauge
	Objective    prometheus.Gauge
	States       *prometheus.CounterVec
	RunsFinished *prometheus.CounterVec
}

var _ admm.Observer = (*RunCollector)(nil)

// NewRunCollector registers the metrics against reg, defaulting to the global registry when
// nil. Registering twice against the same registry returns the existing collectors.
func NewRunCollector(reg prometheus.Registerer) (*RunCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &RunCollector{}
	var err error

	if c.Iterations, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "admm_iterations_total",
		Help: "Completed ADMM iterations, including the seed round.",
	})); err != nil {
		return nil, err
	}
	if c.AgentSolves, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "admm_agent_solve_seconds",
		Help:    "Wall time of one agent subproblem solve, by participant kind.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if c.Clamps, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "admm_penalty_clamps_total",
		Help: "Penalty coefficients clamped to zero because the raw value was negative or NaN.",
	})); err != nil {
		return nil, err
	}
	if c.Primal, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "admm_primal_residual",
		Help: "Primal residual of the latest iteration.",
	})); err != nil {
		return nil, err
	}
	if c.Dual, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "admm_dual_residual",
		Help: "Dual residual of the latest iteration.",
	})); err != nil {
		return nil, err
	}
	if c.Objective, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "admm_objective",
		Help: "Sum of agent objectives of the latest iteration, currency per year.",
	})); err != nil {
		return nil, err
	}
	if c.States, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admm_state_transitions_total",
		Help: "Orchestrator state entries, by state.",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	if c.RunsFinished, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admm_runs_finished_total",
		Help: "Runs that reached a terminal state, by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RunCollector) StateChanged(s admm.State) {
	c.States.WithLabelValues(s.String()).Inc()
	switch s {
	case admm.StateConverged:
		c.RunsFinished.WithLabelValues("converged").Inc()
	case admm.StateExhausted:
		c.RunsFinished.WithLabelValues("exhausted").Inc()
	}
}

func (c *RunCollector) AgentSolved(kind market.Kind, d time.Duration) {
	c.AgentSolves.WithLabelValues(kind.String()).Observe(d.Seconds())
}

func (c *RunCollector) IterationDone(rec admm.IterationRecord) {
	c.Iterations.Inc()
	c.Primal.Set(rec.Primal)
	c.Dual.Set(rec.Dual)
	c.Objective.Set(rec.Objective)
}

func (c *RunCollector) Clamped(n int) { c.Clamps.Add(float64(n)) }

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return col, nil
}

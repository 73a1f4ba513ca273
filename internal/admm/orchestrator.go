package admm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ldes-markets/internal/market"
	"ldes-markets/internal/model"
	"ldes-markets/internal/solver"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Stage names used in IterationError.
const (
	StageBase     = "base_solve"
	StageSeed     = "individual_seed"
	StageIterate  = "iterating"
	StageSettings = "init"
)

// IterationError is a fatal solver failure inside a run, with enough context to diagnose it.
type IterationError struct {
	Iteration int
	Stage     string
	Agent     string
	// Objective is the last objective value recorded before the failed round.
	Objective float64
	Err       error
}

func (e *IterationError) Error() string {
	if e.Agent != "" {
		return fmt.Sprintf("admm %s iteration %d agent %s (last objective %.6g): %v", e.Stage, e.Iteration, e.Agent, e.Objective, e.Err)
	}
	return fmt.Sprintf("admm %s iteration %d (last objective %.6g): %v", e.Stage, e.Iteration, e.Objective, e.Err)
}

func (e *IterationError) Unwrap() error { return e.Err }

// Settings are the run options of the decomposed market.
type Settings struct {
	MaxIterations     int
	Rho               float64
	ToleranceFactor   float64
	ConsumerWeighting ConsumerWeighting
	DualNorm          DualNorm
	WeightedDual      bool
	Parallel          bool
}

func (s Settings) Validate() error {
	if s.MaxIterations < 1 {
		return errors.New("max iterations must be >= 1")
	}
	if s.Rho <= 0 {
		return errors.New("penalty must be > 0")
	}
	if s.ToleranceFactor <= 0 {
		return errors.New("tolerance must be > 0")
	}
	return nil
}

// Observer receives run events. Implementations must be safe for concurrent use.
type Observer interface {
	StateChanged(s State)
	AgentSolved(kind market.Kind, d time.Duration)
	IterationDone(rec IterationRecord)
	Clamped(n int)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State)                     {}
func (nopObserver) AgentSolved(market.Kind, time.Duration) {}
func (nopObserver) IterationDone(IterationRecord)          {}
func (nopObserver) Clamped(int)                            {}

// Outcome is the terminal condition of a run.
type Outcome struct {
	Converged bool `json:"converged"`
	Iteration int  `json:"iteration"`
}

func (o Outcome) String() string {
	if o.Converged {
		return fmt.Sprintf("converged@%d", o.Iteration)
	}
	return "exhausted"
}

// Result is the bundle retained by a terminal state.
type Result struct {
	Outcome Outcome
	State   State
	// Base is the complete-markets solution that seeded the prices.
	Base *market.CentralResult
	// Prices are the prices the final iterate responded to.
	Prices       model.Series
	Participants []*market.ParticipantResult
	History      []IterationRecord
	Tolerance    float64
	Clamped      int
}

// Capacities flattens the final capacities.
func (r *Result) Capacities() []market.Capacity { return market.Capacities(r.Participants) }

// Orchestrator drives one decomposed-market run.
type Orchestrator struct {
	ds       *model.Dataset
	settings Settings
	oracle   solver.Oracle
	log      zerolog.Logger
	obs      Observer

	state State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l zerolog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.obs = obs
		}
	}
}

func New(ds *model.Dataset, settings Settings, oracle solver.Oracle, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ds:       ds,
		settings: settings,
		oracle:   oracle,
		log:      zerolog.Nop(),
		obs:      nopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) enter(s State) {
	o.state = s
	o.obs.StateChanged(s)
	o.log.Debug().Str("state", s.String()).Msg("admm state")
}

// Run executes the state machine to CONVERGED or EXHAUSTED. Solver failures abort the run with
// an *IterationError; running out of iterations is reported through the Outcome.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	o.enter(StateInit)
	ds := o.ds
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if err := o.settings.Validate(); err != nil {
		return nil, &IterationError{Stage: StageSettings, Err: err}
	}
	nc := ds.NT() * ds.NO()
	lenR := ds.Participants()
	tol := Tolerance(lenR, ds.NT(), ds.NO(), o.settings.ToleranceFactor)
	weights := CellWeights(ds)
	var dualWeights []float64
	if o.settings.WeightedDual {
		dualWeights = weights
	}

	o.enter(StateBaseSolve)
	start := time.Now()
	base, err := market.SolveCentral(ctx, ds, o.oracle)
	if err != nil {
		return nil, &IterationError{Stage: StageBase, Err: err}
	}
	o.log.Info().
		Float64("objective", base.Objective).
		Dur("solve_time", time.Since(start)).
		Msg("base case solved")

	o.enter(StateIndividualSeed)
	templates := market.NewTemplates(ds)
	st := &CoordinationState{Prices: append([]float64(nil), base.Prices.Values...)}
	hist := &History{}

	start = time.Now()
	seed, err := o.solveRound(ctx, templates, st.Snapshot(), nil)
	if err != nil {
		return nil, o.wrap(err, 0, StageSeed, base.Objective)
	}
	st.Last = seed
	st.Residual = Residual(seed, nc)
	rec := IterationRecord{
		K:         0,
		Primal:    PrimalConvergence(st.Residual, weights),
		Objective: totalObjective(seed),
		SolveTime: time.Since(start),
	}
	o.record(hist, rec)

	prob := make([]float64, ds.NO())
	for i := range prob {
		prob[i] = ds.Prob(i)
	}

	res := &Result{Base: base, Tolerance: tol}
	o.enter(StateIterating)
	for k := 1; k <= o.settings.MaxIterations; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prices := UpdatePrice(st.Prices, st.Residual, o.settings.Rho)
		st.Iteration = k
		st.Prices = prices
		snap := st.Snapshot()

		penalties, clamped := o.penalties(templates, snap, prob)
		if clamped > 0 {
			o.obs.Clamped(clamped)
			o.log.Warn().Int("iteration", k).Int("clamped", clamped).Msg("negative penalty coefficients clamped to zero")
		}

		start = time.Now()
		cur, err := o.solveRound(ctx, templates, snap, penalties)
		if err != nil {
			return nil, o.wrap(err, k, StageIterate, rec.Objective)
		}
		r := Residual(cur, nc)
		rec = IterationRecord{
			K:         k,
			Primal:    PrimalConvergence(r, weights),
			Objective: totalObjective(cur),
			SolveTime: time.Since(start),
			Clamped:   clamped,
		}
		if k > 1 {
			rec.Dual = DualConvergence(DualInput{
				Prev: snap.Last, Cur: cur,
				RPrev: snap.Residual, RCur: r,
				Rho: o.settings.Rho, LenR: lenR,
				Weights: dualWeights,
			}, o.settings.DualNorm)
		}
		o.record(hist, rec)
		res.Clamped += clamped

		st.Last = cur
		st.Residual = r
		if k > 1 && rec.Primal < tol && rec.Dual < tol {
			res.Outcome = Outcome{Converged: true, Iteration: k}
			o.enter(StateConverged)
			break
		}
	}
	if !res.Outcome.Converged {
		res.Outcome = Outcome{Iteration: o.settings.MaxIterations}
		o.enter(StateExhausted)
		o.log.Warn().Int("max_iterations", o.settings.MaxIterations).Float64("tolerance", tol).Msg("admm exhausted iteration budget")
	}

	res.State = o.state
	res.Prices = model.Series{NT: ds.NT(), NO: ds.NO(), Values: st.Prices}
	res.Participants = st.Last
	res.History = hist.Records()
	o.log.Info().Str("outcome", res.Outcome.String()).Int("clamped", res.Clamped).Msg("admm finished")
	return res, nil
}

// penalties builds each participant's proximal term from the previous round: scenario
// weights from its own tail duals, centre from its last contribution. The count is the number
// of clamped coefficients.
func (o *Orchestrator) penalties(templates []*market.Template, snap Snapshot, prob []float64) ([]*market.Penalty, int) {
	lenR := o.ds.Participants()
	out := make([]*market.Penalty, len(templates))
	clamped := 0
	for i, tp := range templates {
		coef, n := ScenarioCoefficients(tp.Kind(), prob, o.ds.Risk.Delta, snap.Last[i].Mu, o.settings.ConsumerWeighting)
		clamped += n
		out[i] = &market.Penalty{
			Rho:    o.settings.Rho,
			Coef:   coef,
			Center: Centers(snap.Last[i].Contribution, snap.Residual, lenR),
		}
	}
	return out, clamped
}

func (o *Orchestrator) record(h *History, rec IterationRecord) {
	if err := h.Append(rec); err != nil {
		o.log.Error().Err(err).Msg("history append")
	}
	o.obs.IterationDone(rec)
	o.log.Info().
		Int("iteration", rec.K).
		Float64("primal", rec.Primal).
		Float64("dual", rec.Dual).
		Float64("objective", rec.Objective).
		Dur("solve_time", rec.SolveTime).
		Msg("admm iteration")
}

func (o *Orchestrator) wrap(err error, k int, stage string, objective float64) error {
	var ae *agentError
	agent := ""
	if errors.As(err, &ae) {
		agent = ae.agent
		err = ae.err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &IterationError{Iteration: k, Stage: stage, Agent: agent, Objective: objective, Err: err}
}

type agentError struct {
	agent string
	err   error
}

func (e *agentError) Error() string { return e.agent + ": " + e.err.Error() }
func (e *agentError) Unwrap() error { return e.err }

// solveRound solves every agent against the same snapshot. Agents with nothing to decide are
// not solved.
func (o *Orchestrator) solveRound(ctx context.Context, templates []*market.Template, snap Snapshot, penalties []*market.Penalty) ([]*market.ParticipantResult, error) {
	out := make([]*market.ParticipantResult, len(templates))
	solveOne := func(ctx context.Context, i int) error {
		tp := templates[i]
		if !tp.Active() {
			out[i] = tp.Idle()
			return nil
		}
		sig := market.Signal{Iteration: snap.Iteration, Prices: snap.Prices}
		if penalties != nil {
			sig.Penalty = penalties[i]
		}
		inst := tp.Instantiate(sig)
		start := time.Now()
		sol, err := o.oracle.Solve(ctx, inst.Program)
		if err != nil {
			return &agentError{agent: tp.ID(), err: err}
		}
		o.obs.AgentSolved(tp.Kind(), time.Since(start))
		out[i] = inst.Extract(sol)
		return nil
	}

	if !o.settings.Parallel {
		for i := range templates {
			if err := solveOne(ctx, i); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := range templates {
		i := i
		g.Go(func() error { return solveOne(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func totalObjective(parts []*market.ParticipantResult) float64 {
	s := 0.0
	for _, p := range parts {
		s += p.Objective
	}
	return s
}

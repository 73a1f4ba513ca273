package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ldes-markets/internal/admm"
	"ldes-markets/internal/data"
	"ldes-markets/internal/model"
	"ldes-markets/internal/solver"

	"gopkg.in/yaml.v3"
)

// Consumer penalty weightings.
const (
	ConsumerPenaltyProbability  = "probability"
	ConsumerPenaltyRiskAdjusted = "risk_adjusted"
)

// Dual residual strategies.
const (
	DualResidualPerBlock = "per_block"
	DualResidualCombined = "combined"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	// Optional: paths to the technology catalogue and the directory of long-format series.
	// Relative paths are resolved against the config file directory first.
	DatasetFile string `yaml:"dataset_file"`
	SeriesDir   string `yaml:"series_dir"`

	Run     RunConfig     `yaml:",inline"`
	Solver  SolverConfig  `yaml:"solver"`
	Logging LoggingConfig `yaml:"logging"`

	// PostgresDSN enables run persistence when set.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// RunConfig holds the options consumed when a run starts.
type RunConfig struct {
	MaxIterations int     `yaml:"max_iterations" json:"max_iterations"`
	Penalty       float64 `yaml:"penalty" json:"penalty"`
	// Tolerance is the factor applied to sqrt(len_r*|T|*|O|).
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`

	Delta      float64 `yaml:"delta" json:"delta"`
	Psi        float64 `yaml:"psi" json:"psi"`
	VOLL       float64 `yaml:"voll" json:"voll"`
	PeakDemand float64 `yaml:"peak_demand" json:"peak_demand"`
	// Pointers so an override can set 0 or false explicitly; nil means unset.
	FlexibleDemand            *float64 `yaml:"flexible_demand" json:"flexible_demand,omitempty"`
	UseHierarchicalClustering *bool    `yaml:"use_hierarchical_clustering" json:"use_hierarchical_clustering,omitempty"`
	Scenarios                 []string `yaml:"scenarios" json:"scenarios,omitempty"`

	ConsumerPenalty      string `yaml:"consumer_penalty" json:"consumer_penalty"`
	DualResidual         string `yaml:"dual_residual" json:"dual_residual"`
	WeightedDualResidual *bool  `yaml:"weighted_dual_residual" json:"weighted_dual_residual,omitempty"`
	Parallel             *bool  `yaml:"parallel" json:"parallel,omitempty"`
}

// SolverConfig are the interior-point tolerances handed to the oracle.
type SolverConfig struct {
	AbsTol     float64 `yaml:"abs_tol" json:"abs_tol"`
	RelTol     float64 `yaml:"rel_tol" json:"rel_tol"`
	FeasTol    float64 `yaml:"feas_tol" json:"feas_tol"`
	MaxIter    int     `yaml:"max_iter" json:"max_iter"`
	Refinement int     `yaml:"refinement" json:"refinement"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when a field is left unset.
func Default() *Config {
	return &Config{
		Run:     DefaultRun(),
		Solver:  DefaultSolver(),
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

func DefaultRun() RunConfig {
	t := true
	return RunConfig{
		MaxIterations:        100,
		Penalty:              1.0,
		Tolerance:            0.01,
		Delta:                1.0,
		Psi:                  0.5,
		VOLL:                 1000,
		PeakDemand:           100,
		ConsumerPenalty:      ConsumerPenaltyProbability,
		DualResidual:         DualResidualPerBlock,
		WeightedDualResidual: &t,
		Parallel:             &t,
	}
}

func DefaultSolver() SolverConfig {
	return SolverConfig{AbsTol: 1e-7, RelTol: 1e-6, FeasTol: 1e-7, MaxIter: 200, Refinement: 1}
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads the file over the defaults, but does not validate it.
// Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, err
	}
	c.DatasetFile = resolve(path, c.DatasetFile)
	c.SeriesDir = resolve(path, c.SeriesDir)
	return c, nil
}

// resolve interprets p relative to the config file directory when that exists, and falls back
// to the provided path (relative to cwd) otherwise.
func resolve(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	cand := filepath.Join(filepath.Dir(configPath), p)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return p
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Run.Validate(); err != nil {
		return err
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver config invalid: %w", err)
	}
	return nil
}

func (r RunConfig) Validate() error {
	if r.MaxIterations < 1 {
		return errors.New("max_iterations must be >= 1")
	}
	if r.Penalty <= 0 {
		return errors.New("penalty must be > 0")
	}
	if r.Tolerance <= 0 {
		return errors.New("tolerance must be > 0")
	}
	if err := r.RiskParams().Validate(); err != nil {
		return fmt.Errorf("risk config invalid: %w", err)
	}
	if r.VOLL < 0 {
		return errors.New("voll must be >= 0")
	}
	if r.PeakDemand <= 0 {
		return errors.New("peak_demand must be > 0")
	}
	if f := r.Flexible(); f < 0 || f > 1 {
		return errors.New("flexible_demand must be in [0, 1]")
	}
	switch r.ConsumerPenalty {
	case "", ConsumerPenaltyProbability, ConsumerPenaltyRiskAdjusted:
	default:
		return fmt.Errorf("consumer_penalty must be %q or %q", ConsumerPenaltyProbability, ConsumerPenaltyRiskAdjusted)
	}
	switch r.DualResidual {
	case "", DualResidualPerBlock, DualResidualCombined:
	default:
		return fmt.Errorf("dual_residual must be %q or %q", DualResidualPerBlock, DualResidualCombined)
	}
	return nil
}

func (s SolverConfig) Validate() error {
	if s.AbsTol <= 0 || s.RelTol <= 0 || s.FeasTol <= 0 {
		return errors.New("tolerances must be > 0")
	}
	if s.MaxIter < 1 {
		return errors.New("max_iter must be >= 1")
	}
	if s.Refinement < 0 {
		return errors.New("refinement must be >= 0")
	}
	return nil
}

func (r RunConfig) RiskParams() model.RiskParams {
	return model.RiskParams{Delta: r.Delta, Psi: r.Psi}
}

func (r RunConfig) MarketParams() model.MarketParams {
	return model.MarketParams{VOLL: r.VOLL, PeakDemand: r.PeakDemand, FlexibleDemand: r.Flexible()}
}

// DataOptions are the dataset construction options implied by the run.
func (r RunConfig) DataOptions() data.Options {
	return data.Options{
		UseClustering: r.UsesClustering(),
		Scenarios:     r.Scenarios,
		Market:        r.MarketParams(),
		Risk:          r.RiskParams(),
	}
}

// Flexible is the price-elastic demand share, 0 when unset.
func (r RunConfig) Flexible() float64 {
	if r.FlexibleDemand == nil {
		return 0
	}
	return *r.FlexibleDemand
}

func (r RunConfig) UsesClustering() bool {
	return r.UseHierarchicalClustering != nil && *r.UseHierarchicalClustering
}

func (r RunConfig) IsParallel() bool { return r.Parallel == nil || *r.Parallel }

func (r RunConfig) IsWeightedDualResidual() bool {
	return r.WeightedDualResidual == nil || *r.WeightedDualResidual
}

// MergeRun overlays non-zero fields from override onto base. Pointer fields are overlaid
// whenever they are set, including to zero or false.
// This is used when a request supplies a partial run configuration.
func MergeRun(base, override RunConfig) RunConfig {
	out := base
	if override.MaxIterations != 0 {
		out.MaxIterations = override.MaxIterations
	}
	if override.Penalty != 0 {
		out.Penalty = override.Penalty
	}
	if override.Tolerance != 0 {
		out.Tolerance = override.Tolerance
	}
	// Delta = 0 is a meaningful setting (pure CVaR), so callers that need it send it through
	// WithDelta rather than the zero-value overlay.
	if override.Delta != 0 {
		out.Delta = override.Delta
	}
	if override.Psi != 0 {
		out.Psi = override.Psi
	}
	if override.VOLL != 0 {
		out.VOLL = override.VOLL
	}
	if override.PeakDemand != 0 {
		out.PeakDemand = override.PeakDemand
	}
	if override.FlexibleDemand != nil {
		out.FlexibleDemand = override.FlexibleDemand
	}
	if override.UseHierarchicalClustering != nil {
		out.UseHierarchicalClustering = override.UseHierarchicalClustering
	}
	if len(override.Scenarios) > 0 {
		out.Scenarios = override.Scenarios
	}
	if override.ConsumerPenalty != "" {
		out.ConsumerPenalty = override.ConsumerPenalty
	}
	if override.DualResidual != "" {
		out.DualResidual = override.DualResidual
	}
	if override.WeightedDualResidual != nil {
		out.WeightedDualResidual = override.WeightedDualResidual
	}
	if override.Parallel != nil {
		out.Parallel = override.Parallel
	}
	return out
}

// WithDelta returns a copy of r using the given risk weight.
func (r RunConfig) WithDelta(delta float64) RunConfig {
	r.Delta = delta
	return r
}

// ADMMSettings converts the run options into orchestrator settings.
func (r RunConfig) ADMMSettings() (admm.Settings, error) {
	s := admm.Settings{
		MaxIterations:   r.MaxIterations,
		Rho:             r.Penalty,
		ToleranceFactor: r.Tolerance,
		WeightedDual:    r.IsWeightedDualResidual(),
		Parallel:        r.IsParallel(),
	}
	cw, ok := admm.ParseConsumerWeighting(r.ConsumerPenalty)
	if !ok {
		return s, fmt.Errorf("unknown consumer_penalty %q", r.ConsumerPenalty)
	}
	dn, ok := admm.ParseDualNorm(r.DualResidual)
	if !ok {
		return s, fmt.Errorf("unknown dual_residual %q", r.DualResidual)
	}
	s.ConsumerWeighting, s.DualNorm = cw, dn
	return s, s.Validate()
}

// Options are the oracle settings.
func (s SolverConfig) Options(verbose bool) solver.Options {
	return solver.Options{
		AbsTol:     s.AbsTol,
		RelTol:     s.RelTol,
		FeasTol:    s.FeasTol,
		MaxIter:    s.MaxIter,
		Refinement: s.Refinement,
		Verbose:    verbose,
	}
}

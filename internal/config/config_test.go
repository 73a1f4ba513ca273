package config

import (
	"os"
	"path/filepath"
	"testing"

	"ldes-markets/internal/admm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tech.yaml"), []byte("generators: []\n"), 0o644))
	cfgPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
dataset_file: tech.yaml
series_dir: /abs/series
max_iterations: 40
penalty: 2
delta: 0.5
psi: 0.2
consumer_penalty: risk_adjusted
parallel: false
solver:
  abs_tol: 1.0e-8
  rel_tol: 1.0e-7
  feas_tol: 1.0e-8
  max_iter: 100
logging:
  level: debug
`), 0o644))

	c, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tech.yaml"), c.DatasetFile)
	assert.Equal(t, "/abs/series", c.SeriesDir)
	assert.Equal(t, 40, c.Run.MaxIterations)
	assert.Equal(t, 2.0, c.Run.Penalty)
	assert.Equal(t, 0.5, c.Run.Delta)
	assert.Equal(t, 0.01, c.Run.Tolerance, "default kept")
	assert.Equal(t, ConsumerPenaltyRiskAdjusted, c.Run.ConsumerPenalty)
	assert.Equal(t, DualResidualPerBlock, c.Run.DualResidual)
	assert.False(t, c.Run.IsParallel())
	assert.True(t, c.Run.IsWeightedDualResidual())
	assert.Equal(t, 100, c.Solver.MaxIter)
	assert.Equal(t, "debug", c.Logging.Level)

	opts := c.Run.DataOptions()
	assert.Equal(t, 0.2, opts.Risk.Psi)
	assert.Equal(t, 1000.0, opts.Market.VOLL)
}

func TestRunValidate(t *testing.T) {
	cases := map[string]func(*RunConfig){
		"iterations": func(r *RunConfig) { r.MaxIterations = 0 },
		"penalty":    func(r *RunConfig) { r.Penalty = -1 },
		"tolerance":  func(r *RunConfig) { r.Tolerance = 0 },
		"delta":      func(r *RunConfig) { r.Delta = 1.5 },
		"psi":        func(r *RunConfig) { r.Psi = 0 },
		"peak":       func(r *RunConfig) { r.PeakDemand = 0 },
		"flex":       func(r *RunConfig) { r.FlexibleDemand = ptr(2.0) },
		"consumer":   func(r *RunConfig) { r.ConsumerPenalty = "delta" },
		"dual":       func(r *RunConfig) { r.DualResidual = "max" },
	}
	require.NoError(t, DefaultRun().Validate())
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := DefaultRun()
			mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestMergeRun(t *testing.T) {
	f := false
	out := MergeRun(DefaultRun(), RunConfig{Penalty: 1.5, DualResidual: DualResidualCombined, Parallel: &f})
	assert.Equal(t, 1.5, out.Penalty)
	assert.Equal(t, 100, out.MaxIterations)
	assert.Equal(t, DualResidualCombined, out.DualResidual)
	assert.False(t, out.IsParallel())

	assert.Equal(t, 0.0, DefaultRun().WithDelta(0).Delta)
}

func ptr[T any](v T) *T { return &v }

func TestMergeRunOverridesToZero(t *testing.T) {
	base := DefaultRun()
	base.FlexibleDemand = ptr(0.3)
	base.UseHierarchicalClustering = ptr(true)

	kept := MergeRun(base, RunConfig{})
	assert.Equal(t, 0.3, kept.Flexible())
	assert.True(t, kept.UsesClustering())

	out := MergeRun(base, RunConfig{FlexibleDemand: ptr(0.0), UseHierarchicalClustering: ptr(false)})
	assert.Equal(t, 0.0, out.Flexible())
	assert.False(t, out.UsesClustering())
	assert.False(t, out.DataOptions().UseClustering)
	assert.Equal(t, 0.0, out.MarketParams().FlexibleDemand)
	assert.Equal(t, 0.3, base.Flexible(), "base is not modified")

	assert.Equal(t, 0.0, DefaultRun().Flexible())
	assert.False(t, DefaultRun().UsesClustering())
}

func TestADMMSettings(t *testing.T) {
	r := DefaultRun()
	r.ConsumerPenalty = ConsumerPenaltyRiskAdjusted
	r.DualResidual = DualResidualCombined
	s, err := r.ADMMSettings()
	require.NoError(t, err)
	assert.Equal(t, 100, s.MaxIterations)
	assert.Equal(t, 1.0, s.Rho)
	assert.Equal(t, admm.WeightRiskAdjusted, s.ConsumerWeighting)
	assert.Equal(t, admm.DualCombined, s.DualNorm)
	assert.True(t, s.Parallel)

	r.ConsumerPenalty = "bogus"
	_, err = r.ADMMSettings()
	assert.Error(t, err)

	opts := DefaultSolver().Options(true)
	assert.Equal(t, 200, opts.MaxIter)
	assert.True(t, opts.Verbose)
}

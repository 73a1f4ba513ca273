package data

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ldes-markets/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const techYAML = `
generators:
  - id: pv
    class: renewable
    inv_cost: 700
    var_cost: 0
    wacc: 0.05
    lifetime: 25
  - id: gas
    inv_cost: 900
    var_cost: 60
    wacc: 0.07
    lifetime: 30
    traits:
      ramp_limit: 0.5
storages:
  - id: ldes
    inv_cost_power: 1200
    inv_cost_energy: 20
    wacc: 0.07
    lifetime: 40
    charge_efficiency: 0.75
    discharge_efficiency: 0.75
    traits:
      min_duration_hours: 24
`

const demandCSV = `time,scenario,value
1,y2001,0.5
2,y2001,0.7
3,y2001,0.6
1,y2002,0.4
2,y2002,0.9
3,y2002,0.8
`

func testOptions() Options {
	return Options{
		Market: model.MarketParams{VOLL: 1000, PeakDemand: 100, FlexibleDemand: 0.1},
		Risk:   model.RiskParams{Delta: 0.8, Psi: 0.5},
	}
}

func parseTech(t *testing.T) *TechnologyFile {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "tech.yaml")
	require.NoError(t, os.WriteFile(p, []byte(techYAML), 0o644))
	f, err := LoadTechnologies(p)
	require.NoError(t, err)
	return f
}

func TestUniformWeightsCoverYear(t *testing.T) {
	tech := parseTech(t)
	demand, err := ReadLongCSV(strings.NewReader(demandCSV))
	require.NoError(t, err)

	ds, err := Build(Input{Technologies: tech, Demand: demand}, testOptions())
	require.NoError(t, err)
	require.Equal(t, 3, ds.NT())
	require.Equal(t, 2, ds.NO())
	for _, w := range ds.Weights.Values {
		assert.Equal(t, model.HoursPerYear/3, w)
	}
	for o := 0; o < ds.NO(); o++ {
		assert.InDelta(t, model.HoursPerYear, ds.Weights.ScenarioSum(o), 1e-9)
	}
}

func TestClusterWeights(t *testing.T) {
	tech := parseTech(t)
	demand, err := ReadLongCSV(strings.NewReader(demandCSV))
	require.NoError(t, err)

	good := `time,scenario,value
1,y2001,4000
2,y2001,4000
3,y2001,760
1,y2002,8000
2,y2002,700
3,y2002,60
`
	w, err := ReadLongCSV(strings.NewReader(good))
	require.NoError(t, err)
	opts := testOptions()
	opts.UseClustering = true
	ds, err := Build(Input{Technologies: tech, Demand: demand, Weights: w}, opts)
	require.NoError(t, err)
	for o := 0; o < ds.NO(); o++ {
		assert.InDelta(t, model.HoursPerYear, ds.Weights.ScenarioSum(o), WeightTolerance)
	}
	assert.Equal(t, 8000.0, ds.Weights.At(0, 1))

	bad := strings.Replace(good, "3,y2002,60", "3,y2002,61", 1)
	w, err = ReadLongCSV(strings.NewReader(bad))
	require.NoError(t, err)
	_, err = Build(Input{Technologies: tech, Demand: demand, Weights: w}, opts)
	assert.ErrorIs(t, err, model.ErrDataInconsistency)

	_, err = Build(Input{Technologies: tech, Demand: demand}, opts)
	assert.ErrorIs(t, err, model.ErrDataInconsistency)
}

func TestEqualProbabilitiesSumToOne(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 10, 33} {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = string(rune('a' + i%26))
		}
		sc := EqualProbabilities(ids)
		sum := 0.0
		for _, s := range sc {
			sum += s.Probability
			assert.InDelta(t, 1/float64(n), s.Probability, 1e-12)
		}
		assert.Equal(t, 1.0, sum, "n=%d", n)
	}
}

func TestAvailabilityAndScenarioSelection(t *testing.T) {
	tech := parseTech(t)
	demand, err := ReadLongCSV(strings.NewReader(demandCSV))
	require.NoError(t, err)
	avail, err := ReadLongCSV(strings.NewReader(`scenario,time,technology,value
y2001,1,pv,0
y2001,2,pv,0.5
y2001,3,pv,1
y2002,1,pv,0.2
y2002,2,pv,0.3
y2002,3,pv,0.4
`))
	require.NoError(t, err)

	opts := testOptions()
	opts.Scenarios = []string{"y2002"}
	ds, err := Build(Input{Technologies: tech, Demand: demand, Availability: avail}, opts)
	require.NoError(t, err)
	require.Equal(t, 1, ds.NO())
	assert.Equal(t, "y2002", ds.Scenarios[0].ID)
	assert.Equal(t, 1.0, ds.Scenarios[0].Probability)
	assert.InDelta(t, 0.3, ds.Avail(0, 1, 0), 1e-12)
	assert.Equal(t, 1.0, ds.Avail(1, 1, 0), "gas has no availability rows")

	opts.Scenarios = []string{"y1999"}
	_, err = Build(Input{Technologies: tech, Demand: demand}, opts)
	assert.ErrorIs(t, err, model.ErrDataInconsistency)
}

func TestSeriesErrors(t *testing.T) {
	_, err := ReadLongCSV(strings.NewReader("time,value\n1,2\n"))
	assert.ErrorIs(t, err, model.ErrDataInconsistency)

	_, err = ReadLongCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, model.ErrDataInconsistency)

	_, err = ReadLongCSV(strings.NewReader("time,scenario,value\n1,a,x\n"))
	assert.ErrorIs(t, err, model.ErrDataInconsistency)

	tech := parseTech(t)
	missing, err := ReadLongCSV(strings.NewReader("time,scenario,value\n1,a,1\n2,a,1\n1,b,1\n"))
	require.NoError(t, err)
	_, err = Build(Input{Technologies: tech, Demand: missing}, testOptions())
	assert.ErrorIs(t, err, model.ErrDataInconsistency)

	demand, _ := ReadLongCSV(strings.NewReader(demandCSV))
	unknown, _ := ReadLongCSV(strings.NewReader("time,scenario,technology,value\n1,y2001,wind,1\n"))
	_, err = Build(Input{Technologies: tech, Demand: demand, Availability: unknown}, testOptions())
	assert.ErrorIs(t, err, model.ErrDataInconsistency)
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	techPath := filepath.Join(dir, "tech.yaml")
	require.NoError(t, os.WriteFile(techPath, []byte(techYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DemandFile), []byte(demandCSV), 0o644))

	ds, err := Load(techPath, dir, testOptions())
	require.NoError(t, err)
	assert.Len(t, ds.Generators, 2)
	assert.Len(t, ds.Storages, 1)
	assert.Equal(t, 24.0, ds.Storages[0].Traits.MinDurationHours)
	assert.Equal(t, 0.5, ds.Generators[1].Traits.RampLimit)

	_, err = Load(techPath, filepath.Join(dir, "nope"), testOptions())
	assert.Error(t, err)
}

func TestCheckClusterWeights(t *testing.T) {
	w := model.NewSeries(2, 2)
	for o := 0; o < 2; o++ {
		w.Set(0, o, 760)
		w.Set(1, o, 8000)
	}
	require.NoError(t, CheckClusterWeights(w))

	w.Set(1, 1, 7000)
	assert.ErrorIs(t, CheckClusterWeights(w), model.ErrDataInconsistency)

	w.Set(1, 1, math.NaN())
	err := CheckClusterWeights(w)
	assert.ErrorIs(t, err, model.ErrDataInconsistency)
	assert.Contains(t, err.Error(), "NaN")
}

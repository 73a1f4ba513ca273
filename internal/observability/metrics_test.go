package observability

import (
	"testing"
	"time"

	"ldes-markets/internal/admm"
	"ldes-markets/internal/market"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCollectorRecordsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewRunCollector(reg)
	require.NoError(t, err)

	c.StateChanged(admm.StateIterating)
	c.StateChanged(admm.StateConverged)
	c.IterationDone(admm.IterationRecord{K: 1, Primal: 0.5, Dual: 0.25, Objective: 100})
	c.IterationDone(admm.IterationRecord{K: 2, Primal: 0.1, Dual: 0.05, Objective: 90})
	c.AgentSolved(market.KindStorage, 20*time.Millisecond)
	c.Clamped(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Iterations))
	assert.Equal(t, 0.1, testutil.ToFloat64(c.Primal))
	assert.Equal(t, 0.05, testutil.ToFloat64(c.Dual))
	assert.Equal(t, 90.0, testutil.ToFloat64(c.Objective))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Clamps))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.States.WithLabelValues("CONVERGED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RunsFinished.WithLabelValues("converged")))
	assert.Equal(t, uint64(1), histogramSampleCount(t, reg, "admm_agent_solve_seconds", "storage"))
}

func TestNewRunCollectorReusesRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewRunCollector(reg)
	require.NoError(t, err)
	b, err := NewRunCollector(reg)
	require.NoError(t, err)

	a.Clamped(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Clamps), "second collector shares the registered counter")
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name, kind string) uint64 {
	t.Helper()
	families, err := gatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if hasLabel(m.GetLabel(), "kind", kind) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func hasLabel(pairs []*dto.LabelPair, name, value string) bool {
	for _, lp := range pairs {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

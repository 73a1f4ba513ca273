package report

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ldes-markets/internal/admm"
	"ldes-markets/internal/analysis"
	"ldes-markets/internal/market"
	"ldes-markets/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoStep() *model.Dataset {
	return &model.Dataset{
		Times:     []string{"t1", "t2"},
		Scenarios: []model.Scenario{{ID: "y1", Probability: 1}},
		Weights:   model.ConstantSeries(2, 1, 10),
	}
}

func storageResult() *market.ParticipantResult {
	return &market.ParticipantResult{
		Kind: market.KindStorage,
		ID:   "bess",
		Series: map[string][]float64{
			market.SeriesCharge:    {5, 0},
			market.SeriesDischarge: {0, 4},
			market.SeriesSOC:       {4.5, 0},
		},
	}
}

func readCSV(t *testing.T, s string) [][]string {
	t.Helper()
	recs, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestBuildLedger(t *testing.T) {
	prices := model.Series{NT: 2, NO: 1, Values: []float64{10, 50}}
	ledger, err := BuildLedger(twoStep(), prices, storageResult())
	require.NoError(t, err)
	require.Len(t, ledger, 2)

	assert.Equal(t, model.ActionCharging, ledger[0].Action)
	assert.InDelta(t, -500, ledger[0].Revenue, 1e-9)
	assert.Equal(t, model.ActionDischarging, ledger[1].Action)
	assert.InDelta(t, 2000, ledger[1].Revenue, 1e-9)
	assert.InDelta(t, 1500, ledger[1].CumRevenue, 1e-9)

	var buf bytes.Buffer
	require.NoError(t, WriteLedgerCSV(&buf, ledger))
	recs := readCSV(t, buf.String())
	require.Len(t, recs, 3)
	assert.Equal(t, "action", recs[0][6])
	assert.Equal(t, "CHARGING", recs[1][6])
	assert.Equal(t, "1500.000000", recs[2][12])
}

func TestBuildLedgerRejectsNonStorage(t *testing.T) {
	prices := model.NewSeries(2, 1)
	_, err := BuildLedger(twoStep(), prices, &market.ParticipantResult{Kind: market.KindGenerator, ID: "gas"})
	assert.Error(t, err)
	_, err = BuildLedger(twoStep(), prices, nil)
	assert.Error(t, err)

	short := storageResult()
	short.Series[market.SeriesSOC] = []float64{1}
	_, err = BuildLedger(twoStep(), prices, short)
	assert.Error(t, err)
}

func TestWriters(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCapacitiesCSV(&buf, "complete", []market.Capacity{
		{Kind: market.KindStorage, ID: "ldes", Name: market.CapacityEnergy, Value: 12.5},
	}))
	recs := readCSV(t, buf.String())
	assert.Equal(t, []string{"complete", "storage", "ldes", "energy", "12.500000"}, recs[1])

	buf.Reset()
	require.NoError(t, WritePricesCSV(&buf, twoStep(), model.Series{NT: 2, NO: 1, Values: []float64{1, 2}}))
	recs = readCSV(t, buf.String())
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"t2", "y1", "2.000000"}, recs[2])

	buf.Reset()
	require.NoError(t, WriteTraceCSV(&buf, []admm.IterationRecord{{K: 0, Primal: 3}, {K: 1, Primal: 1, SolveTime: 1500 * time.Millisecond, Clamped: 2}}))
	recs = readCSV(t, buf.String())
	require.Len(t, recs, 3)
	assert.Equal(t, "1.500000", recs[2][4])
	assert.Equal(t, "2", recs[2][5])

	buf.Reset()
	require.NoError(t, WriteGapCSV(&buf, analysis.Gap(
		[]market.Capacity{{ID: "gas", Name: market.CapacityGeneration, Value: 10}},
		[]market.Capacity{{ID: "gas", Name: market.CapacityGeneration, Value: 8}},
	)))
	recs = readCSV(t, buf.String())
	assert.Equal(t, "-2.000000", recs[1][5])
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, WriteFile(path, func(w io.Writer) error {
		return WritePricesCSV(w, twoStep(), model.NewSeries(2, 1))
	}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "time,scenario,price\n"))
}

// Package report writes run results as CSV files.
package report

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"ldes-markets/internal/admm"
	"ldes-markets/internal/analysis"
	"ldes-markets/internal/market"
	"ldes-markets/internal/model"
)

// WriteFile creates path and hands it to write.
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeAll(out io.Writer, header []string, rows [][]string) error {
	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func WriteLedgerCSV(out io.Writer, ledger []LedgerRow) error {
	header := []string{
		"scenario",
		"time",
		"index",
		"storage",
		"price",
		"weight",
		"action",
		"charge_mw",
		"discharge_mw",
		"net_mw",
		"soc_mwh",
		"revenue",
		"cum_revenue",
	}
	rows := make([][]string, 0, len(ledger))
	for _, r := range ledger {
		rows = append(rows, []string{
			r.Scenario,
			r.Time,
			strconv.Itoa(r.Index),
			r.Storage,
			fmtFloat(r.Price),
			fmtFloat(r.Weight),
			string(r.Action),
			fmtFloat(r.ChargeMW),
			fmtFloat(r.DischargeMW),
			fmtFloat(r.NetMW),
			fmtFloat(r.SOCMWh),
			fmtFloat(r.Revenue),
			fmtFloat(r.CumRevenue),
		})
	}
	return writeAll(out, header, rows)
}

// WriteCapacitiesCSV writes one row per capacity with the label of the market it came from.
func WriteCapacitiesCSV(out io.Writer, label string, caps []market.Capacity) error {
	rows := make([][]string, 0, len(caps))
	for _, c := range caps {
		rows = append(rows, []string{label, c.Kind.String(), c.ID, c.Name, fmtFloat(c.Value)})
	}
	return writeAll(out, []string{"market", "kind", "id", "name", "value"}, rows)
}

// WritePricesCSV writes prices in long format: time, scenario, price.
func WritePricesCSV(out io.Writer, ds *model.Dataset, prices model.Series) error {
	rows := make([][]string, 0, prices.Len())
	for o, sc := range ds.Scenarios {
		for t, ts := range ds.Times {
			rows = append(rows, []string{ts, sc.ID, fmtFloat(prices.At(t, o))})
		}
	}
	return writeAll(out, []string{"time", "scenario", "price"}, rows)
}

// WriteTraceCSV writes the convergence history.
func WriteTraceCSV(out io.Writer, hist []admm.IterationRecord) error {
	rows := make([][]string, 0, len(hist))
	for _, r := range hist {
		rows = append(rows, []string{
			strconv.Itoa(r.K),
			fmtFloat(r.Primal),
			fmtFloat(r.Dual),
			fmtFloat(r.Objective),
			fmtFloat(r.SolveTime.Seconds()),
			strconv.Itoa(r.Clamped),
		})
	}
	return writeAll(out, []string{"iteration", "primal", "dual", "objective", "solve_seconds", "clamped"}, rows)
}

func WriteGapCSV(out io.Writer, gaps []analysis.CapacityGap) error {
	rows := make([][]string, 0, len(gaps))
	for _, g := range gaps {
		rows = append(rows, []string{
			g.Kind.String(), g.ID, g.Name,
			fmtFloat(g.Complete), fmtFloat(g.Incomplete), fmtFloat(g.Difference), fmtFloat(g.Relative),
		})
	}
	return writeAll(out, []string{"kind", "id", "name", "complete", "incomplete", "difference", "relative"}, rows)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

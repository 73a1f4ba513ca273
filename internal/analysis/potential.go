package analysis

import (
	"math"
	"sort"

	"ldes-markets/internal/model"

	"gonum.org/v1/gonum/stat"
)

// PriceStats is a per-scenario summary of the clearing prices of one run.
// It does not depend on the storage fleet in the run; ArbitrageValue is the revenue of a
// canonical unit dispatched with perfect foresight against the same prices.
type PriceStats struct {
	Scenario string  `json:"scenario"`
	Count    int     `json:"count"`
	Hours    float64 `json:"hours"`

	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	P05  float64 `json:"p05"`
	P95  float64 `json:"p95"`

	SpreadP95P05 float64 `json:"spread_p95_p05"`

	// ArbitrageValue is the yearly revenue ($/MW) of a canonical storage unit:
	// - 1 MW power, CanonicalDuration hours of energy
	// - 100% efficiency, no degradation
	// - starts empty, leftover energy is worth nothing
	// - each step is one representative hour: the unit moves {-1, 0, +1} MWh across it, and
	//   the trade is counted W[t,o] times in the yearly total
	ArbitrageValue float64 `json:"arbitrage_value"`
}

// CanonicalDuration is the energy-to-power ratio of the unit behind PriceStats.ArbitrageValue.
const CanonicalDuration = 4

// ComputePriceStats summarises prices per scenario. Mean is weighted by the time weights;
// quantiles are taken over the representative steps.
func ComputePriceStats(ds *model.Dataset, prices model.Series) []PriceStats {
	out := make([]PriceStats, 0, ds.NO())
	for o, sc := range ds.Scenarios {
		vals := make([]float64, ds.NT())
		w := make([]float64, ds.NT())
		for t := range vals {
			vals[t] = prices.At(t, o)
			w[t] = ds.Weights.At(t, o)
		}
		s := PriceStats{Scenario: sc.ID, Count: len(vals)}
		if len(vals) == 0 {
			out = append(out, s)
			continue
		}
		s.ArbitrageValue = StorageArbitrageValue(vals, w, CanonicalDuration)

		hours := 0.0
		for _, v := range w {
			hours += v
		}
		s.Hours = hours
		if hours > 0 {
			s.Mean = stat.Mean(vals, w)
		}

		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		s.Min = sorted[0]
		s.Max = sorted[len(sorted)-1]
		s.P05 = stat.Quantile(0.05, stat.LinInterp, sorted, nil)
		s.P95 = stat.Quantile(0.95, stat.LinInterp, sorted, nil)
		s.SpreadP95P05 = s.P95 - s.P05
		out = append(out, s)
	}
	return out
}

// StorageArbitrageValue computes the perfect-foresight revenue of a 1 MW unit with
// duration hours of energy, using a DP over an integer SOC grid.
// Each step is one representative hour, so the SOC moves at most one MWh per step whatever
// the weight; weights[t] is how many times that hour recurs in the year and multiplies its
// revenue. nil weights count every step once.
func StorageArbitrageValue(prices, weights []float64, duration int) float64 {
	if len(prices) == 0 || duration < 1 {
		return 0
	}
	negInf := math.Inf(-1)
	dp := make([]float64, duration+1)
	next := make([]float64, duration+1)
	for i := range dp {
		dp[i] = negInf
	}
	dp[0] = 0

	for t, price := range prices {
		w := 1.0
		if weights != nil {
			w = weights[t]
		}
		for i := range next {
			next[i] = negInf
		}
		for soc := 0; soc <= duration; soc++ {
			if math.IsInf(dp[soc], -1) {
				continue
			}
			if dp[soc] > next[soc] {
				next[soc] = dp[soc]
			}
			// Charge: buy one MWh.
			if soc < duration {
				if v := dp[soc] - price*w; v > next[soc+1] {
					next[soc+1] = v
				}
			}
			// Discharge: sell one MWh.
			if soc > 0 {
				if v := dp[soc] + price*w; v > next[soc-1] {
					next[soc-1] = v
				}
			}
		}
		dp, next = next, dp
	}

	best := negInf
	for _, v := range dp {
		if v > best {
			best = v
		}
	}
	if math.IsInf(best, -1) {
		return 0
	}
	return best
}

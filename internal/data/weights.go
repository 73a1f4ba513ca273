package data

import (
	"fmt"
	"math"

	"ldes-markets/internal/model"

	"gonum.org/v1/gonum/floats"
)

// WeightTolerance is the absolute slack, in hours, allowed on the per-scenario weight sum
// under representative-period weighting.
const WeightTolerance = 1e-6

// UniformWeights spreads one calendar year evenly over nt steps: W[t,o] = 8760/nt.
func UniformWeights(nt, no int) model.Series {
	return model.ConstantSeries(nt, no, model.HoursPerYear/float64(nt))
}

// CheckClusterWeights verifies that every scenario's weights are finite and sum to one
// calendar year.
func CheckClusterWeights(w model.Series) error {
	col := make([]float64, w.NT)
	for o := 0; o < w.NO; o++ {
		for t := range col {
			col[t] = w.At(t, o)
		}
		if floats.HasNaN(col) {
			return fmt.Errorf("%w: time weights of scenario %d contain NaN", model.ErrDataInconsistency, o)
		}
		sum := floats.Sum(col)
		if math.Abs(sum-model.HoursPerYear) > WeightTolerance {
			return fmt.Errorf("%w: time weights of scenario %d sum to %.6f, want %.0f",
				model.ErrDataInconsistency, o, sum, model.HoursPerYear)
		}
	}
	return nil
}

// EqualProbabilities assigns P[o] = 1/|O|. The last scenario takes the remainder so that the
// sequential sum is exactly one.
func EqualProbabilities(ids []string) []model.Scenario {
	out := make([]model.Scenario, len(ids))
	n := float64(len(ids))
	sum := 0.0
	for i, id := range ids {
		p := 1 / n
		if i == len(ids)-1 {
			p = 1 - sum
		}
		out[i] = model.Scenario{ID: id, Probability: p}
		sum += p
	}
	return out
}

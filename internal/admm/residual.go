package admm

import (
	"math"

	"ldes-markets/internal/market"
	"ldes-markets/internal/model"

	"gonum.org/v1/gonum/floats"
)

// DualNorm selects how the per-participant dual residuals are combined.
type DualNorm int

const (
	// DualPerBlock sums the norms of the generator, storage and consumer blocks.
	DualPerBlock DualNorm = iota
	// DualCombined takes one norm over every participant.
	DualCombined
)

func (d DualNorm) String() string {
	if d == DualCombined {
		return "combined"
	}
	return "per_block"
}

// ParseDualNorm maps a config value to a strategy. Empty selects DualPerBlock.
func ParseDualNorm(s string) (DualNorm, bool) {
	switch s {
	case "", "per_block":
		return DualPerBlock, true
	case "combined":
		return DualCombined, true
	}
	return DualPerBlock, false
}

// Residual is the market imbalance per cell: the sum of every participant's net injection.
// Positive means oversupply.
func Residual(parts []*market.ParticipantResult, cells int) []float64 {
	r := make([]float64, cells)
	for _, p := range parts {
		floats.Add(r, p.Contribution)
	}
	return r
}

// CellWeights returns W[t,o]*P[o] per cell.
func CellWeights(ds *model.Dataset) []float64 {
	w := make([]float64, ds.NT()*ds.NO())
	for t := 0; t < ds.NT(); t++ {
		for o := 0; o < ds.NO(); o++ {
			c := ds.Weights.Index(t, o)
			w[c] = ds.Weights.At(t, o) * ds.Prob(o)
		}
	}
	return w
}

// PrimalConvergence is sqrt(sum W*P*r^2).
func PrimalConvergence(r, weights []float64) float64 {
	sq := make([]float64, len(r))
	floats.MulTo(sq, r, r)
	return math.Sqrt(floats.Dot(weights, sq))
}

// DualInput carries two consecutive iterates.
type DualInput struct {
	Prev, Cur   []*market.ParticipantResult
	RPrev, RCur []float64
	Rho         float64
	LenR        int
	// Weights are per-cell weights; nil means unweighted.
	Weights []float64
}

// DualConvergence measures how far each participant moved between iterates, net of its share of
// the residual change: rho*(c_k - c_{k-1} - r_k/len_r + r_{k-1}/len_r), summed in quadrature.
func DualConvergence(in DualInput, strategy DualNorm) float64 {
	lenR := float64(in.LenR)
	var blocks [3]float64
	for i, cur := range in.Cur {
		prev := in.Prev[i]
		for c := range cur.Contribution {
			d := in.Rho * (cur.Contribution[c] - prev.Contribution[c] - in.RCur[c]/lenR + in.RPrev[c]/lenR)
			w := 1.0
			if in.Weights != nil {
				w = in.Weights[c]
			}
			blocks[cur.Kind] += w * d * d
		}
	}
	if strategy == DualCombined {
		return math.Sqrt(floats.Sum(blocks[:]))
	}
	total := 0.0
	for _, b := range blocks {
		total += math.Sqrt(b)
	}
	return total
}

// Tolerance is the size-scaled stopping threshold sqrt(len_r*|T|*|O|)*factor.
func Tolerance(lenR, nt, no int, factor float64) float64 {
	return math.Sqrt(float64(lenR*nt*no)) * factor
}

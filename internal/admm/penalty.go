package admm

import (
	"math"

	"ldes-markets/internal/market"
)

// ConsumerWeighting selects the scenario weights of the consumer's penalty.
type ConsumerWeighting int

const (
	// WeightProbability weights the consumer penalty by P[o] alone.
	WeightProbability ConsumerWeighting = iota
	// WeightRiskAdjusted uses P[o]*delta + mu_c[o], like the producers.
	WeightRiskAdjusted
)

func (c ConsumerWeighting) String() string {
	if c == WeightRiskAdjusted {
		return "risk_adjusted"
	}
	return "probability"
}

func ParseConsumerWeighting(s string) (ConsumerWeighting, bool) {
	switch s {
	case "", "probability":
		return WeightProbability, true
	case "risk_adjusted":
		return WeightRiskAdjusted, true
	}
	return WeightProbability, false
}

// PenaltyCoefficient is max(0, P*delta + mu). A negative or NaN raw value is a numerical
// degeneracy of the tail dual; it is clamped and reported.
func PenaltyCoefficient(prob, delta, mu float64) (coef float64, clamped bool) {
	raw := prob*delta + mu
	if raw < 0 || math.IsNaN(raw) {
		return 0, true
	}
	return raw, false
}

// ScenarioCoefficients returns the per-scenario penalty weights of one participant and the
// number of clamped entries.
func ScenarioCoefficients(kind market.Kind, prob []float64, delta float64, mu []float64, cw ConsumerWeighting) ([]float64, int) {
	out := make([]float64, len(prob))
	clamped := 0
	for o, p := range prob {
		if kind == market.KindConsumer && cw == WeightProbability {
			out[o] = p
			continue
		}
		m := 0.0
		if o < len(mu) {
			m = mu[o]
		}
		c, bad := PenaltyCoefficient(p, delta, m)
		if bad {
			clamped++
		}
		out[o] = c
	}
	return out, clamped
}

// Centers returns prev - r/len_r per cell, the point each participant is pulled toward.
func Centers(prev, r []float64, lenR int) []float64 {
	out := make([]float64, len(prev))
	for c := range prev {
		out[c] = prev[c] - r[c]/float64(lenR)
	}
	return out
}

// UpdatePrice is the dual step lambda - (rho/2)*r. Oversupply lowers the price.
func UpdatePrice(lambda, r []float64, rho float64) []float64 {
	out := make([]float64, len(lambda))
	for c := range lambda {
		out[c] = lambda[c] - rho/2*r[c]
	}
	return out
}

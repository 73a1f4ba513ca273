package analysis

import (
	"errors"
	"math"

	"ldes-markets/internal/model"
)

// ErrNoRoot is returned when no rate equates the two present values.
var ErrNoRoot = errors.New("implied wacc: no root in search interval")

const (
	waccLow  = -0.99
	waccHigh = 10.0
)

// annuityFactor is sum_{n=1..N} (1+r)^-n.
func annuityFactor(r float64, n int) float64 {
	if r == 0 {
		return float64(n)
	}
	return 1 / model.CRF(r, n)
}

// ImpliedWACC finds the rate Rm at which netRevenue received yearly for lifetime years has
// the same present value as riskFreeAnnuity discounted at wacc. A rate above wacc means the
// market demands a risk premium from the investment.
func ImpliedWACC(netRevenue, riskFreeAnnuity float64, lifetime int, wacc float64) (float64, error) {
	if lifetime <= 0 {
		return math.NaN(), errors.New("implied wacc: lifetime must be > 0")
	}
	if netRevenue <= 0 || riskFreeAnnuity <= 0 {
		return math.NaN(), errors.New("implied wacc: revenues must be > 0")
	}
	target := riskFreeAnnuity * annuityFactor(wacc, lifetime)
	f := func(r float64) float64 { return netRevenue*annuityFactor(r, lifetime) - target }

	lo, hi := waccLow, waccHigh
	flo, fhi := f(lo), f(hi)
	if flo < 0 || fhi > 0 {
		return math.NaN(), ErrNoRoot
	}
	// f is decreasing in r.
	for i := 0; i < 200 && hi-lo > 1e-12; i++ {
		mid := 0.5 * (lo + hi)
		if f(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi), nil
}

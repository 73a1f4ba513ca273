package analysis

import (
	"ldes-markets/internal/market"
	"ldes-markets/internal/model"
	"ldes-markets/internal/risk"

	"gonum.org/v1/gonum/stat"
)

// PayoffRisk summarises one participant's scenario payoffs under the run's risk measure.
// All values are currency per year.
type PayoffRisk struct {
	Kind market.Kind `json:"kind"`
	ID   string      `json:"id"`

	Expected float64 `json:"expected"`
	VaR      float64 `json:"var"`
	CVaR     float64 `json:"cvar"`
	// RiskAdjusted is delta*Expected + (1-delta)*CVaR.
	RiskAdjusted float64 `json:"risk_adjusted"`
}

// PayoffRisks evaluates every participant's payoff vector at the dataset's risk parameters.
func PayoffRisks(ds *model.Dataset, parts []*market.ParticipantResult) []PayoffRisk {
	prob := make([]float64, ds.NO())
	for o := range prob {
		prob[o] = ds.Prob(o)
	}
	out := make([]PayoffRisk, 0, len(parts))
	for _, p := range parts {
		if len(p.Payoff) != len(prob) {
			continue
		}
		out = append(out, PayoffRisk{
			Kind:         p.Kind,
			ID:           p.ID,
			Expected:     stat.Mean(p.Payoff, prob),
			VaR:          risk.VaR(p.Payoff, prob, ds.Risk.Psi),
			CVaR:         risk.CVaR(p.Payoff, prob, ds.Risk.Psi),
			RiskAdjusted: risk.Blend(p.Payoff, prob, ds.Risk),
		})
	}
	return out
}

package report

import (
	"fmt"

	"ldes-markets/internal/market"
	"ldes-markets/internal/model"
)

// ActionTolerance is the net power (MW) below which a storage step is reported as idle.
const ActionTolerance = 1e-6

// LedgerRow is one step of one storage unit's dispatch.
// This is the primary artifact for "what happened" to a storage unit in a run.
type LedgerRow struct {
	Scenario string
	Time     string
	Index    int

	Storage string

	Price  float64
	Weight float64

	Action model.Action

	ChargeMW    float64
	DischargeMW float64
	NetMW       float64
	SOCMWh      float64

	// Revenue is Weight*Price*NetMW; CumRevenue accumulates within the scenario.
	Revenue    float64
	CumRevenue float64
}

// BuildLedger walks a storage participant's dispatch in scenario-major order.
func BuildLedger(ds *model.Dataset, prices model.Series, p *market.ParticipantResult) ([]LedgerRow, error) {
	if p == nil {
		return nil, fmt.Errorf("participant is nil")
	}
	if p.Kind != market.KindStorage {
		return nil, fmt.Errorf("participant %q is a %s, not storage", p.ID, p.Kind)
	}
	nc := ds.NT() * ds.NO()
	ch, dch, soc := p.Series[market.SeriesCharge], p.Series[market.SeriesDischarge], p.Series[market.SeriesSOC]
	if len(ch) != nc || len(dch) != nc || len(soc) != nc {
		return nil, fmt.Errorf("participant %q: dispatch series do not cover %d cells", p.ID, nc)
	}

	ledger := make([]LedgerRow, 0, nc)
	for o, sc := range ds.Scenarios {
		cum := 0.0
		for t, ts := range ds.Times {
			c := ds.Weights.Index(t, o)
			net := dch[c] - ch[c]
			rev := ds.Weights.At(t, o) * prices.Values[c] * net
			cum += rev
			ledger = append(ledger, LedgerRow{
				Scenario: sc.ID,
				Time:     ts,
				Index:    t,
				Storage:  p.ID,

				Price:  prices.Values[c],
				Weight: ds.Weights.At(t, o),

				Action: model.ActionFromNetDischarge(net, ActionTolerance),

				ChargeMW:    ch[c],
				DischargeMW: dch[c],
				NetMW:       net,
				SOCMWh:      soc[c],

				Revenue:    rev,
				CumRevenue: cum,
			})
		}
	}
	return ledger, nil
}

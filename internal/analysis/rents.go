package analysis

import (
	"ldes-markets/internal/market"
	"ldes-markets/internal/model"
)

// ScenarioRevenue splits one scenario's yearly revenue into the part earned from binding
// capacity limits and the part earned from energy prices.
type ScenarioRevenue struct {
	Scenario string  `json:"scenario"`
	Scarcity float64 `json:"scarcity"`
	Price    float64 `json:"price"`
}

// ScarcityRent is the expected yearly rent per unit of capacity earned by one participant.
// Power is $/MW-yr (charge plus discharge limits for storage), Energy is $/MWh-yr.
type ScarcityRent struct {
	Kind        market.Kind        `json:"kind"`
	ID          string             `json:"id"`
	Rents       map[string]float64 `json:"rents"`
	Power       float64            `json:"power"`
	Energy      float64            `json:"energy"`
	PerScenario []ScenarioRevenue  `json:"per_scenario"`
}

// RentPerCell converts capacity-row duals into currency per MWh by dividing out the weight
// the objective puts on cell (t,o): Scale*W[t,o]*(delta*P[o] + mu[o]). Cells with no weight
// get zero.
func RentPerCell(ds *model.Dataset, duals, mu []float64) []float64 {
	out := make([]float64, len(duals))
	delta := ds.Risk.Delta
	for t := 0; t < ds.NT(); t++ {
		for o := 0; o < ds.NO(); o++ {
			c := ds.Weights.Index(t, o)
			m := 0.0
			if o < len(mu) {
				m = mu[o]
			}
			den := market.Scale * ds.Weights.At(t, o) * (delta*ds.Prob(o) + m)
			if den > 0 {
				out[c] = duals[c] / den
			}
		}
	}
	return out
}

// ScarcityRents computes rents for every generator and storage participant. Agent results
// carry their own mu; results of the central problem take systemMu.
func ScarcityRents(ds *model.Dataset, prices model.Series, parts []*market.ParticipantResult, systemMu []float64) []ScarcityRent {
	var out []ScarcityRent
	for _, p := range parts {
		if p.Kind == market.KindConsumer {
			continue
		}
		mu := p.Mu
		if mu == nil {
			mu = systemMu
		}
		out = append(out, rentOf(ds, prices, p, mu))
	}
	return out
}

func rentOf(ds *model.Dataset, prices model.Series, p *market.ParticipantResult, mu []float64) ScarcityRent {
	r := ScarcityRent{Kind: p.Kind, ID: p.ID, Rents: map[string]float64{}}
	perCell := map[string][]float64{}
	nc := ds.NT() * ds.NO()
	for key := range p.CapacityDuals {
		// Sub-tolerance duals are solver noise, not scarcity.
		d := MaskDuals(p.CapacityDuals, nc, key)[key]
		rc := RentPerCell(ds, d, mu)
		perCell[key] = rc
		sum := 0.0
		for t := 0; t < ds.NT(); t++ {
			for o := 0; o < ds.NO(); o++ {
				sum += ds.Prob(o) * ds.Weights.At(t, o) * rc[ds.Weights.Index(t, o)]
			}
		}
		r.Rents[key] = sum
	}

	// Which capacity each constraint key is priced against.
	powerKeys := []string{market.CapacityGeneration}
	energyKeys := []string(nil)
	powerCap := p.Capacities[market.CapacityGeneration]
	if p.Kind == market.KindStorage {
		powerKeys = []string{market.SeriesCharge, market.SeriesDischarge}
		energyKeys = []string{market.SeriesSOC}
		powerCap = p.Capacities[market.CapacityPower]
	}
	energyCap := p.Capacities[market.CapacityEnergy]
	for _, k := range powerKeys {
		r.Power += r.Rents[k]
	}
	for _, k := range energyKeys {
		r.Energy += r.Rents[k]
	}

	for o, sc := range ds.Scenarios {
		rev := ScenarioRevenue{Scenario: sc.ID}
		for t := 0; t < ds.NT(); t++ {
			c := ds.Weights.Index(t, o)
			w := ds.Weights.At(t, o)
			for _, k := range powerKeys {
				if rc := perCell[k]; rc != nil {
					rev.Scarcity += w * rc[c] * powerCap
				}
			}
			for _, k := range energyKeys {
				if rc := perCell[k]; rc != nil {
					rev.Scarcity += w * rc[c] * energyCap
				}
			}
			if len(p.Contribution) > c {
				rev.Price += w * prices.Values[c] * p.Contribution[c]
			}
		}
		r.PerScenario = append(r.PerScenario, rev)
	}
	return r
}

package analysis

import "ldes-markets/internal/market"

// CapacityGap compares one capacity between the complete and the incomplete market.
type CapacityGap struct {
	Kind       market.Kind `json:"kind"`
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Complete   float64     `json:"complete"`
	Incomplete float64     `json:"incomplete"`
	// Difference is Incomplete - Complete; negative values are underinvestment.
	Difference float64 `json:"difference"`
	// Relative is Difference/Complete, zero when nothing is built in the complete market.
	Relative float64 `json:"relative"`
}

// Gap pairs capacities by (id, name) in the order of complete. Entries present only in
// incomplete are appended with Complete = 0.
func Gap(complete, incomplete []market.Capacity) []CapacityGap {
	type key struct{ id, name string }
	inc := make(map[key]market.Capacity, len(incomplete))
	for _, c := range incomplete {
		inc[key{c.ID, c.Name}] = c
	}
	var out []CapacityGap
	seen := map[key]bool{}
	for _, c := range complete {
		k := key{c.ID, c.Name}
		seen[k] = true
		g := CapacityGap{Kind: c.Kind, ID: c.ID, Name: c.Name, Complete: c.Value}
		if ic, ok := inc[k]; ok {
			g.Incomplete = ic.Value
		}
		out = append(out, fill(g))
	}
	for _, c := range incomplete {
		if k := (key{c.ID, c.Name}); !seen[k] {
			out = append(out, fill(CapacityGap{Kind: c.Kind, ID: c.ID, Name: c.Name, Incomplete: c.Value}))
		}
	}
	return out
}

func fill(g CapacityGap) CapacityGap {
	g.Difference = g.Incomplete - g.Complete
	if g.Complete != 0 {
		g.Relative = g.Difference / g.Complete
	}
	return g
}

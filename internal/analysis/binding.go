package analysis

import (
	"math"

	"ldes-markets/internal/model"
)

// BindingTolerance is the dual magnitude above which a constraint counts as binding.
const BindingTolerance = 1e-6

// BindingCount is the number of steps, and the hours they represent, in which every
// requested constraint binds simultaneously.
type BindingCount struct {
	Scenario string  `json:"scenario"`
	Steps    int     `json:"steps"`
	Hours    float64 `json:"hours"`
}

// BindingMask reports, per cell, whether all of keys bind. A key missing from duals never
// binds.
func BindingMask(duals map[string][]float64, cells int, keys ...string) []bool {
	mask := make([]bool, cells)
	if len(keys) == 0 {
		return mask
	}
	for c := range mask {
		mask[c] = true
		for _, k := range keys {
			d, ok := duals[k]
			if !ok || c >= len(d) || math.Abs(d[c]) <= BindingTolerance {
				mask[c] = false
				break
			}
		}
	}
	return mask
}

// BindingHours counts, per scenario, the steps where all of keys bind.
func BindingHours(ds *model.Dataset, duals map[string][]float64, keys ...string) []BindingCount {
	mask := BindingMask(duals, ds.NT()*ds.NO(), keys...)
	out := make([]BindingCount, ds.NO())
	for o, sc := range ds.Scenarios {
		out[o].Scenario = sc.ID
		for t := 0; t < ds.NT(); t++ {
			c := ds.Weights.Index(t, o)
			if mask[c] {
				out[o].Steps++
				out[o].Hours += ds.Weights.At(t, o)
			}
		}
	}
	return out
}

// MaskDuals returns a copy of duals with every cell zeroed where keys do not all bind.
func MaskDuals(duals map[string][]float64, cells int, keys ...string) map[string][]float64 {
	mask := BindingMask(duals, cells, keys...)
	out := make(map[string][]float64, len(duals))
	for k, d := range duals {
		m := make([]float64, len(d))
		for c, v := range d {
			if c < len(mask) && mask[c] {
				m[c] = v
			}
		}
		out[k] = m
	}
	return out
}

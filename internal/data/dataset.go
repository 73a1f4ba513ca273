package data

import (
	"fmt"
	"path/filepath"

	"ldes-markets/internal/model"
)

// Series file names expected inside a series directory.
const (
	DemandFile       = "demand.csv"
	AvailabilityFile = "availability.csv"
	WeightsFile      = "weights.csv"
)

// Options are the run parameters that shape dataset construction.
type Options struct {
	// UseClustering keeps the supplied time weights and requires them to cover 8760 hours per
	// scenario. Otherwise weights are overwritten with the uniform 8760/|T|.
	UseClustering bool
	// Scenarios optionally restricts the run to these scenario ids, in file order.
	Scenarios []string

	Market model.MarketParams
	Risk   model.RiskParams
}

// Input is everything needed to assemble a dataset, already parsed.
type Input struct {
	Technologies *TechnologyFile
	Demand       []Record
	Availability []Record
	Weights      []Record
}

// Build assembles and validates a Scenario Dataset. Time and scenario order follow the demand
// records.
func Build(in Input, opts Options) (*model.Dataset, error) {
	gens, stors, err := in.Technologies.Models()
	if err != nil {
		return nil, err
	}

	var keep map[string]bool
	if len(opts.Scenarios) > 0 {
		keep = make(map[string]bool, len(opts.Scenarios))
		for _, id := range opts.Scenarios {
			keep[id] = true
		}
	}
	ax := axesFrom(in.Demand, keep)
	if len(ax.times) == 0 || len(ax.scenarios) == 0 {
		return nil, fmt.Errorf("%w: no demand data left after scenario selection", model.ErrDataInconsistency)
	}

	demand, err := ax.fill("demand", in.Demand)
	if err != nil {
		return nil, err
	}

	var weights model.Series
	if opts.UseClustering {
		if len(in.Weights) == 0 {
			return nil, fmt.Errorf("%w: clustering enabled but no time weights supplied", model.ErrDataInconsistency)
		}
		if weights, err = ax.fill("weights", in.Weights); err != nil {
			return nil, err
		}
		if err := CheckClusterWeights(weights); err != nil {
			return nil, err
		}
	} else {
		weights = UniformWeights(len(ax.times), len(ax.scenarios))
	}

	avail, err := availabilityByTechnology(ax, in.Availability, gens)
	if err != nil {
		return nil, err
	}

	ds := &model.Dataset{
		Times:        ax.times,
		Scenarios:    EqualProbabilities(ax.scenarios),
		Generators:   gens,
		Storages:     stors,
		Weights:      weights,
		Demand:       demand,
		Availability: avail,
		Market:       opts.Market,
		Risk:         opts.Risk,
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

func availabilityByTechnology(ax *axes, recs []Record, gens []model.Generator) (map[string]model.Series, error) {
	known := map[string]bool{}
	for _, g := range gens {
		known[g.ID] = true
	}
	grouped := map[string][]Record{}
	for _, r := range recs {
		if r.Technology == "" {
			return nil, fmt.Errorf("%w: availability row without technology", model.ErrDataInconsistency)
		}
		if !known[r.Technology] {
			return nil, fmt.Errorf("%w: availability for unknown generator %q", model.ErrDataInconsistency, r.Technology)
		}
		grouped[r.Technology] = append(grouped[r.Technology], r)
	}
	out := make(map[string]model.Series, len(grouped))
	for id, rs := range grouped {
		s, err := ax.fill("availability "+id, rs)
		if err != nil {
			return nil, err
		}
		out[id] = s
	}
	return out, nil
}

// Load reads a technology catalogue and the series files in seriesDir, then builds the dataset.
// demand.csv is required; availability.csv and weights.csv are optional.
func Load(technologyPath, seriesDir string, opts Options) (*model.Dataset, error) {
	tech, err := LoadTechnologies(technologyPath)
	if err != nil {
		return nil, err
	}
	demand, err := ReadLongCSVFile(filepath.Join(seriesDir, DemandFile), false)
	if err != nil {
		return nil, err
	}
	avail, err := ReadLongCSVFile(filepath.Join(seriesDir, AvailabilityFile), true)
	if err != nil {
		return nil, err
	}
	weights, err := ReadLongCSVFile(filepath.Join(seriesDir, WeightsFile), true)
	if err != nil {
		return nil, err
	}
	return Build(Input{Technologies: tech, Demand: demand, Availability: avail, Weights: weights}, opts)
}

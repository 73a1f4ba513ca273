package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ldes-markets/internal/model"

	"gopkg.in/yaml.v3"
)

// TechnologyFile is the on-disk shape of the technology catalogue (YAML or JSON).
type TechnologyFile struct {
	Generators []GeneratorSpec `yaml:"generators" json:"generators"`
	Storages   []StorageSpec   `yaml:"storages" json:"storages"`
}

type GeneratorSpec struct {
	ID          string       `yaml:"id" json:"id"`
	Class       string       `yaml:"class" json:"class,omitempty"`
	InvCost     float64      `yaml:"inv_cost" json:"inv_cost"`
	VarCost     float64      `yaml:"var_cost" json:"var_cost"`
	WACC        float64      `yaml:"wacc" json:"wacc"`
	Lifetime    int          `yaml:"lifetime" json:"lifetime"`
	MaxCapacity float64      `yaml:"max_capacity" json:"max_capacity,omitempty"`
	Existing    *float64     `yaml:"existing" json:"existing,omitempty"`
	Traits      model.Traits `yaml:"traits" json:"traits"`
}

type StorageSpec struct {
	ID                  string       `yaml:"id" json:"id"`
	Class               string       `yaml:"class" json:"class,omitempty"`
	InvCostPower        float64      `yaml:"inv_cost_power" json:"inv_cost_power"`
	InvCostEnergy       float64      `yaml:"inv_cost_energy" json:"inv_cost_energy"`
	VarCost             float64      `yaml:"var_cost" json:"var_cost"`
	WACC                float64      `yaml:"wacc" json:"wacc"`
	Lifetime            int          `yaml:"lifetime" json:"lifetime"`
	ChargeEfficiency    float64      `yaml:"charge_efficiency" json:"charge_efficiency"`
	DischargeEfficiency float64      `yaml:"discharge_efficiency" json:"discharge_efficiency"`
	MaxPower            float64      `yaml:"max_power" json:"max_power,omitempty"`
	MaxEnergy           float64      `yaml:"max_energy" json:"max_energy,omitempty"`
	ExistingPower       *float64     `yaml:"existing_power" json:"existing_power,omitempty"`
	ExistingEnergy      *float64     `yaml:"existing_energy" json:"existing_energy,omitempty"`
	Traits              model.Traits `yaml:"traits" json:"traits"`
}

func (g GeneratorSpec) ToModel() model.Generator {
	return model.Generator{
		ID:          g.ID,
		Class:       g.Class,
		InvCost:     g.InvCost,
		VarCost:     g.VarCost,
		WACC:        g.WACC,
		Lifetime:    g.Lifetime,
		MaxCapacity: g.MaxCapacity,
		Existing:    g.Existing,
		Traits:      g.Traits,
	}
}

func (s StorageSpec) ToModel() model.Storage {
	return model.Storage{
		ID:             s.ID,
		Class:          s.Class,
		InvCostPower:   s.InvCostPower,
		InvCostEnergy:  s.InvCostEnergy,
		VarCost:        s.VarCost,
		WACC:           s.WACC,
		Lifetime:       s.Lifetime,
		ChargeEff:      s.ChargeEfficiency,
		DischargeEff:   s.DischargeEfficiency,
		MaxPower:       s.MaxPower,
		MaxEnergy:      s.MaxEnergy,
		ExistingPower:  s.ExistingPower,
		ExistingEnergy: s.ExistingEnergy,
		Traits:         s.Traits,
	}
}

// Models converts the catalogue and validates every record.
func (f *TechnologyFile) Models() ([]model.Generator, []model.Storage, error) {
	if f == nil {
		return nil, nil, fmt.Errorf("%w: technology file is nil", model.ErrDataInconsistency)
	}
	gens := make([]model.Generator, 0, len(f.Generators))
	for _, g := range f.Generators {
		m := g.ToModel()
		if err := m.Validate(); err != nil {
			return nil, nil, err
		}
		gens = append(gens, m)
	}
	stors := make([]model.Storage, 0, len(f.Storages))
	for _, s := range f.Storages {
		m := s.ToModel()
		if err := m.Validate(); err != nil {
			return nil, nil, err
		}
		stors = append(stors, m)
	}
	return gens, stors, nil
}

// LoadTechnologies reads a technology catalogue. Files ending in .json are decoded as JSON,
// everything else as YAML.
func LoadTechnologies(path string) (*TechnologyFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f TechnologyFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &f)
	} else {
		err = yaml.Unmarshal(raw, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

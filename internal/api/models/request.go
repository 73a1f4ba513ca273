package models

import "ldes-markets/internal/config"

// RunRequest represents the request body for running one comparison.
// Config fields left at their zero value take the server's defaults.
type RunRequest struct {
	Config config.RunConfig `json:"config"`
	// Delta overrides the risk blend, including delta = 0 which the zero-value merge cannot
	// express.
	Delta         *float64 `json:"delta,omitempty"`
	IncludeLedger bool     `json:"include_ledger,omitempty"`
}

// CompareRequest represents a request to rerun one base configuration with variations.
type CompareRequest struct {
	BaseConfig config.RunConfig `json:"base_config"`
	Variations []Variation      `json:"variations" binding:"required,min=1,dive"`
}

// Variation defines one point of a comparison.
type Variation struct {
	Name   string           `json:"name" binding:"required"`
	Delta  *float64         `json:"delta,omitempty"`
	Config config.RunConfig `json:"config"`
}

package models

import (
	"time"

	"ldes-markets/internal/analysis"
	"ldes-markets/internal/market"
)

// RunResponse represents the response from a run
type RunResponse struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Outcome    string      `json:"outcome,omitempty"`
	Iterations int         `json:"iterations"`
	CreatedAt  time.Time   `json:"created_at"`
	Summary    *RunSummary `json:"summary,omitempty"`
	Error      string      `json:"error,omitempty"`
	Ledger     []LedgerRow `json:"ledger,omitempty"`
}

// RunSummary contains the aggregated comparison
type RunSummary struct {
	Delta             float64                `json:"delta"`
	Psi               float64                `json:"psi"`
	CompleteWelfare   float64                `json:"complete_welfare"`
	IncompleteWelfare float64                `json:"incomplete_welfare"`
	WelfareLoss       float64                `json:"welfare_loss"`
	Gap               []analysis.CapacityGap `json:"gap"`
}

// LedgerRow represents one step of a storage unit's dispatch
type LedgerRow struct {
	Scenario    string  `json:"scenario"`
	Time        string  `json:"time"`
	Storage     string  `json:"storage"`
	Price       float64 `json:"price"`
	Weight      float64 `json:"weight"`
	Action      string  `json:"action"` // "CHARGING", "DISCHARGING", "IDLE"
	ChargeMW    float64 `json:"charge_mw"`
	DischargeMW float64 `json:"discharge_mw"`
	SOCMWh      float64 `json:"soc_mwh"`
	Revenue     float64 `json:"revenue"`
	CumRevenue  float64 `json:"cum_revenue"`
}

// RunListResponse lists the runs held by this process, newest first
type RunListResponse struct {
	Runs []RunResponse `json:"runs"`
}

// TraceResponse is the convergence history of a run
type TraceResponse struct {
	ID    string          `json:"id"`
	Trace []IterationInfo `json:"trace"`
}

type IterationInfo struct {
	Iteration    int     `json:"iteration"`
	Primal       float64 `json:"primal"`
	Dual         float64 `json:"dual"`
	Objective    float64 `json:"objective"`
	SolveSeconds float64 `json:"solve_seconds"`
	Clamped      int     `json:"clamped"`
}

// CompareResponse represents the response from a comparison
type CompareResponse struct {
	Comparison []ComparisonResult `json:"comparison"`
}

// ComparisonResult contains results for one variation
type ComparisonResult struct {
	Name    string      `json:"name"`
	RunID   string      `json:"run_id,omitempty"`
	Outcome string      `json:"outcome,omitempty"`
	Summary *RunSummary `json:"summary,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PriceRankResponse ranks scenarios by storage arbitrage value
type PriceRankResponse struct {
	Rankings []ScenarioRanking `json:"rankings"`
}

type ScenarioRanking struct {
	Rank int `json:"rank"`
	analysis.PriceStats
}

type RentsResponse struct {
	Rents       []analysis.ScarcityRent `json:"rents"`
	Complete    []analysis.ScarcityRent `json:"complete"`
	PayoffRisks []analysis.PayoffRisk   `json:"payoff_risks"`
}

// FormulationInfo represents information about a market formulation
type FormulationInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters"`
}

// ParameterInfo describes a run parameter
type ParameterInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // "float", "int", "string", "bool"
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
}

// TechnologyInfo represents one entry of the technology catalogue
type TechnologyInfo struct {
	ID    string      `json:"id"`
	Kind  market.Kind `json:"kind"`
	Class string      `json:"class,omitempty"`
	CRF   float64     `json:"crf"`
	// AnnualizedCosts are per MW ("capacity", "power") or per MWh ("energy").
	AnnualizedCosts map[string]float64 `json:"annualized_costs"`
	Fixed           bool               `json:"fixed"`
}

// ScenarioInfo represents one scenario of the configured dataset
type ScenarioInfo struct {
	ID          string  `json:"id"`
	Probability float64 `json:"probability"`
	Hours       float64 `json:"hours"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

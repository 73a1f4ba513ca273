package model

import "math"

// Action is a human-friendly operating mode for a storage unit in one timestep.
// Keep these values stable; they are intended for CSV output.
type Action string

const (
	ActionCharging    Action = "CHARGING"
	ActionIdle        Action = "IDLE"
	ActionDischarging Action = "DISCHARGING"
)

// ActionFromNetDischarge classifies a net discharge (positive = discharge to grid, negative =
// charge). |netMW| <= tol is idle; solver output reports idle units as values like 1e-9.
func ActionFromNetDischarge(netMW, tol float64) Action {
	switch {
	case math.Abs(netMW) <= tol:
		return ActionIdle
	case netMW < 0:
		return ActionCharging
	default:
		return ActionDischarging
	}
}

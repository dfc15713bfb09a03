package model

import "time"

// RiskLevel is the discrete foundation-risk tier derived from plasticity index.
type RiskLevel string

const (
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
	RiskSevere   RiskLevel = "Severe"

	// RiskUnknown is shown when no soil record exists. It is never stored
	// on a SoilRecord.
	RiskUnknown RiskLevel = "Unknown"
)

// Valid reports whether r is one of the stored tiers.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskModerate, RiskHigh, RiskSevere:
		return true
	}
	return false
}

// Severity orders the tiers: Moderate < High < Severe. Unknown is -1.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskModerate:
		return 0
	case RiskHigh:
		return 1
	case RiskSevere:
		return 2
	}
	return -1
}

// SoilRecord is the cached soil-survey result for a Location (zero or one per location).
// RiskLevel is derived from PlasticityIndex and must be recomputed on every write.
type SoilRecord struct {
	LocationID       string    `json:"location_id"`
	MapUnitSymbol    string    `json:"map_unit_symbol"`
	MapUnitName      string    `json:"map_unit_name"`
	ComponentName    string    `json:"component_name"`
	ComponentPercent float64   `json:"component_percent"`
	ShrinkSwell      float64   `json:"shrink_swell_potential"`
	PlasticityIndex  float64   `json:"plasticity_index"`
	DrainageClass    string    `json:"drainage_class"`
	RiskLevel        RiskLevel `json:"risk_level"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Package geo provides soil-risk classification and great-circle ranking of locations.
package geo

import (
	"math"

	"github.com/foundationrisk/soilrisk/internal/model"
)

// Plasticity index thresholds for risk classification.
const (
	severePIThreshold = 35.0 // PI > 35 is Severe
	highPIThreshold   = 25.0 // 25 < PI <= 35 is High
)

// ClassifyPI returns the risk tier for a plasticity index.
// Rules:
//   - Severe: PI > 35
//   - High: 25 < PI <= 35
//   - Moderate: everything else, including negative or NaN input
func ClassifyPI(pi float64) model.RiskLevel {
	if math.IsNaN(pi) || pi < 0 {
		pi = 0
	}
	switch {
	case pi > severePIThreshold:
		return model.RiskSevere
	case pi > highPIThreshold:
		return model.RiskHigh
	default:
		return model.RiskModerate
	}
}

// ClassifyPIPtr classifies an optional plasticity index; nil is treated as 0.
func ClassifyPIPtr(pi *float64) model.RiskLevel {
	if pi == nil {
		return ClassifyPI(0)
	}
	return ClassifyPI(*pi)
}

// RiskOf returns the risk tier shown for a possibly-missing soil record.
// A nil record is Unknown, never Moderate.
func RiskOf(rec *model.SoilRecord) model.RiskLevel {
	if rec == nil {
		return model.RiskUnknown
	}
	return ClassifyPI(rec.PlasticityIndex)
}

// Package validation checks a biometric reading against a constraint set and
// the user's recent readings. Verdicts are pure functions of their inputs so
// they can be re-derived during proof verification.
package validation

import (
	"time"

	"vitalproof/internal/constraints"
)

// Reading is a single timestamped measurement. Never persisted.
type Reading struct {
	MetricType constraints.MetricType `json:"metric_type"`
	Value      float64                `json:"value"`
	Unit       string                 `json:"unit,omitempty"`
	ObservedAt time.Time              `json:"observed_at"`
}

// RiskLevel grades a reading.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Direction is the side of the deviation: relative to the range for high
// risk, relative to the trailing mean for medium risk.
type Direction string

const (
	DirectionNone  Direction = "none"
	DirectionBelow Direction = "below"
	DirectionAbove Direction = "above"
)

// Verdict is the outcome of validating one reading.
type Verdict struct {
	IsValid              bool      `json:"is_valid"`
	ConstraintsSatisfied bool      `json:"constraints_satisfied"`
	RiskLevel            RiskLevel `json:"risk_level"`
	Direction            Direction `json:"direction"`
	Recommendations      []string  `json:"recommendations"`
}

// Options tune the temporal-consistency check.
type Options struct {
	// SigmaThreshold is k in |value - mean| > k*sigma.
	SigmaThreshold float64
	// Window is how many prior readings form the trailing average.
	Window int
	// MinHistory is the fewest prior readings that enable the check.
	MinHistory int
	// SigmaFloor is the minimum sigma as a fraction of the range width.
	SigmaFloor float64
}

// DefaultOptions returns k=2 over the last 5 readings.
func DefaultOptions() Options {
	return Options{SigmaThreshold: 2, Window: 5, MinHistory: 2, SigmaFloor: 0.05}
}

// Package constraints derives per-user valid ranges for biometric metrics
// from a static baseline table adjusted for the environmental context and,
// when supplied, the user's demographics.
package constraints

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "vitalproof/pkg/domain-errors"
)

// MetricType names a supported biometric measurement.
type MetricType string

const (
	MetricHeartRate              MetricType = "heart_rate"
	MetricOxygenSaturation       MetricType = "oxygen_saturation"
	MetricBloodPressureSystolic  MetricType = "blood_pressure_systolic"
	MetricBloodPressureDiastolic MetricType = "blood_pressure_diastolic"
	MetricBodyTemperature        MetricType = "body_temperature"
)

// ParseMetricType normalizes s and checks it against the policy table.
func ParseMetricType(p *Policy, s string) (MetricType, error) {
	m := MetricType(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return "", dErrors.New(dErrors.CodeMalformedInput, "metric_type is required")
	}
	if _, ok := p.Metrics[m]; !ok {
		return "", dErrors.New(dErrors.CodeUnsupportedMetric, "unsupported metric type: "+string(m))
	}
	return m, nil
}

// Demographics are the optional user attributes consulted by the
// demographic adjustment. Empty fields are skipped.
type Demographics struct {
	AgeBand      string `json:"age_band,omitempty"`
	FitnessLevel string `json:"fitness_level,omitempty"`
}

// IsZero reports whether no demographic attribute is set.
func (d *Demographics) IsZero() bool {
	return d == nil || (d.AgeBand == "" && d.FitnessLevel == "")
}

// Adjustment step names recorded on a derivation.
const (
	AdjustmentAltitude     = "altitude"
	AdjustmentThermal      = "thermal"
	AdjustmentAgeBand      = "demographic:age_band"
	AdjustmentFitnessLevel = "demographic:fitness_level"
)

// Derivation is the deterministic part of a constraint set: everything the
// engine computes from (metric, context, demographics).
type Derivation struct {
	MetricType              MetricType `json:"metric_type"`
	Unit                    string     `json:"unit"`
	MinValue                float64    `json:"min_value"`
	MaxValue                float64    `json:"max_value"`
	AdjustmentFactor        float64    `json:"adjustment_factor"`
	EnvironmentallyAdjusted bool       `json:"environmentally_adjusted"`
	AppliedAdjustments      []string   `json:"applied_adjustments"`
}

// SameBounds reports whether two derivations agree on every computed value.
func (d Derivation) SameBounds(o Derivation) bool {
	return d.MetricType == o.MetricType &&
		d.MinValue == o.MinValue &&
		d.MaxValue == o.MaxValue &&
		d.AdjustmentFactor == o.AdjustmentFactor
}

// ConstraintSet is an immutable, append-only record of one derivation for a
// user. The active set for (user, metric) is the one with the latest ValidFrom.
type ConstraintSet struct {
	ID     uuid.UUID `json:"id"`
	UserID string    `json:"user_id"`
	Derivation
	Demographics         *Demographics `json:"demographics,omitempty"`
	DerivedFromContextID uuid.UUID     `json:"derived_from_context_id"`
	ContextHash          string        `json:"context_hash"`
	ValidFrom            time.Time     `json:"valid_from"`
	ValidUntil           time.Time     `json:"valid_until"`
}

// IsExpiredAt reports whether the underlying context has gone stale.
func (c *ConstraintSet) IsExpiredAt(now time.Time) bool {
	return now.After(c.ValidUntil)
}

// Contains reports whether v lies within the closed range.
func (c *ConstraintSet) Contains(v float64) bool {
	return v >= c.MinValue && v <= c.MaxValue
}

package validation

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/montanaflynn/stats"

	"vitalproof/internal/constraints"
	dErrors "vitalproof/pkg/domain-errors"
)

// Validate grades reading against bounds. History readings of other metrics,
// or observed at or after the reading, are ignored.
func Validate(reading Reading, bounds constraints.Derivation, history []Reading, opts Options) (Verdict, error) {
	if reading.MetricType != bounds.MetricType {
		return Verdict{}, dErrors.New(dErrors.CodeMalformedInput,
			fmt.Sprintf("reading metric %q does not match constraint metric %q", reading.MetricType, bounds.MetricType))
	}
	if math.IsNaN(reading.Value) || math.IsInf(reading.Value, 0) {
		return Verdict{}, dErrors.New(dErrors.CodeMalformedInput, "reading value must be finite")
	}
	if reading.Unit != "" && bounds.Unit != "" && !strings.EqualFold(reading.Unit, bounds.Unit) {
		return Verdict{}, dErrors.New(dErrors.CodeMalformedInput,
			fmt.Sprintf("reading unit %q does not match %q", reading.Unit, bounds.Unit))
	}

	v := Verdict{
		IsValid:   reading.Value >= bounds.MinValue && reading.Value <= bounds.MaxValue,
		RiskLevel: RiskLow,
		Direction: DirectionNone,
	}

	switch {
	case reading.Value < bounds.MinValue:
		v.RiskLevel, v.Direction = RiskHigh, DirectionBelow
	case reading.Value > bounds.MaxValue:
		v.RiskLevel, v.Direction = RiskHigh, DirectionAbove
	default:
		if d, deviates := temporalDeviation(reading, bounds, history, opts); deviates {
			v.RiskLevel, v.Direction = RiskMedium, d
		}
	}

	v.ConstraintsSatisfied = v.IsValid && v.RiskLevel != RiskMedium
	v.Recommendations = recommend(reading.MetricType, v.RiskLevel, v.Direction)
	return v, nil
}

// temporalDeviation compares the reading to the trailing window of prior
// readings. Sigma is floored so a perfectly flat history does not flag
// every small change.
func temporalDeviation(reading Reading, bounds constraints.Derivation, history []Reading, opts Options) (Direction, bool) {
	prior := make([]Reading, 0, len(history))
	for _, h := range history {
		if h.MetricType != reading.MetricType || !h.ObservedAt.Before(reading.ObservedAt) {
			continue
		}
		if math.IsNaN(h.Value) || math.IsInf(h.Value, 0) {
			continue
		}
		prior = append(prior, h)
	}
	if len(prior) < max(opts.MinHistory, 1) {
		return DirectionNone, false
	}
	slices.SortStableFunc(prior, func(a, b Reading) int { return a.ObservedAt.Compare(b.ObservedAt) })
	if opts.Window > 0 && len(prior) > opts.Window {
		prior = prior[len(prior)-opts.Window:]
	}

	values := make(stats.Float64Data, len(prior))
	for i, p := range prior {
		values[i] = p.Value
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return DirectionNone, false
	}
	sigma, err := stats.StandardDeviation(values)
	if err != nil {
		return DirectionNone, false
	}
	sigma = math.Max(sigma, opts.SigmaFloor*(bounds.MaxValue-bounds.MinValue))

	delta := reading.Value - mean
	if math.Abs(delta) <= opts.SigmaThreshold*sigma {
		return DirectionNone, false
	}
	if delta > 0 {
		return DirectionAbove, true
	}
	return DirectionBelow, true
}

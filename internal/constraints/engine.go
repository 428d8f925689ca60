package constraints

import (
	"fmt"
	"math"

	"vitalproof/internal/environment"
	dErrors "vitalproof/pkg/domain-errors"
)

// Derive computes the adjusted range for metric in the given context. It is a
// pure function: equal inputs produce equal outputs, which lets the verifier
// recompute bounds long after the original derivation.
//
// Adjustments apply in order: altitude (oxygen class), thermal (cardio class),
// then the age band and fitness level shifts. Oxygen-class bounds never drop
// below the policy hard minimum.
func Derive(p *Policy, metric MetricType, env *environment.Context, demo *Demographics) (Derivation, error) {
	mp, ok := p.Metrics[metric]
	if !ok {
		return Derivation{}, dErrors.New(dErrors.CodeUnsupportedMetric, "unsupported metric type: "+string(metric))
	}
	if env == nil {
		return Derivation{}, dErrors.New(dErrors.CodeContextExpired, "environmental context is required")
	}

	lo, hi := mp.Min, mp.Max
	applied := []string{}

	switch mp.Class {
	case ClassOxygen:
		if dec := altitudeDecrement(p.Altitude, env.AltitudeMeters); dec > 0 {
			lo -= dec
			hi -= dec
			applied = append(applied, AdjustmentAltitude)
		}
	case ClassCardio:
		if widen := thermalWidening(p.Thermal, mp.Max, env.TemperatureC); widen > 0 {
			hi += widen
			applied = append(applied, AdjustmentThermal)
		}
	}

	if demo != nil {
		shifts := []struct {
			name  string
			value string
			table map[string]map[MetricType]Shift
		}{
			{AdjustmentAgeBand, demo.AgeBand, p.Demographics.AgeBands},
			{AdjustmentFitnessLevel, demo.FitnessLevel, p.Demographics.FitnessLevels},
		}
		for _, s := range shifts {
			if s.value == "" {
				continue
			}
			byMetric, ok := s.table[s.value]
			if !ok {
				return Derivation{}, dErrors.New(dErrors.CodeMalformedInput, fmt.Sprintf("unknown %s %q", s.name, s.value))
			}
			if shift := byMetric[metric]; !shift.isZero() {
				lo += shift.Min
				hi += shift.Max
				applied = append(applied, s.name)
			}
		}
	}

	if mp.Class == ClassOxygen {
		lo = math.Max(lo, p.Altitude.HardMinimum)
		hi = math.Max(hi, p.Altitude.HardMinimum)
	}
	lo, hi = round4(lo), round4(hi)
	if lo > hi {
		return Derivation{}, dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("derived range for %s is inverted: [%v, %v]", metric, lo, hi))
	}

	return Derivation{
		MetricType:              metric,
		Unit:                    mp.Unit,
		MinValue:                lo,
		MaxValue:                hi,
		AdjustmentFactor:        round4((hi - lo) / (mp.Max - mp.Min)),
		EnvironmentallyAdjusted: len(applied) > 0,
		AppliedAdjustments:      applied,
	}, nil
}

// altitudeDecrement counts every started step above the threshold.
func altitudeDecrement(p AltitudePolicy, altitude float64) float64 {
	if altitude <= p.ThresholdMeters || p.StepMeters <= 0 {
		return 0
	}
	return math.Ceil((altitude-p.ThresholdMeters)/p.StepMeters) * p.Decrement
}

func thermalWidening(p ThermalPolicy, baseMax, temperature float64) float64 {
	if temperature <= p.NeutralC {
		return 0
	}
	return math.Min(baseMax*p.PerDegree*(temperature-p.NeutralC), baseMax*p.MaxWidening)
}

func round4(v float64) float64 {
	return math.Round(v*1e4)/1e4 + 0
}

package constraints

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	dErrors "vitalproof/pkg/domain-errors"
)

// Class selects which environmental adjustment applies to a metric.
type Class string

const (
	ClassOxygen  Class = "oxygen"
	ClassCardio  Class = "cardio"
	ClassNeutral Class = "neutral"
)

// MetricPolicy is the population baseline for one metric.
type MetricPolicy struct {
	Unit  string  `yaml:"unit"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Class Class   `yaml:"class"`
}

// AltitudePolicy lowers oxygen-class bounds by Decrement per started StepMeters
// above ThresholdMeters, never below HardMinimum.
type AltitudePolicy struct {
	ThresholdMeters float64 `yaml:"threshold_meters"`
	StepMeters      float64 `yaml:"step_meters"`
	Decrement       float64 `yaml:"decrement"`
	HardMinimum     float64 `yaml:"hard_minimum"`
}

// ThermalPolicy widens cardio-class upper bounds by PerDegree of the baseline
// maximum for every degree above NeutralC, up to MaxWidening.
type ThermalPolicy struct {
	NeutralC    float64 `yaml:"neutral_c"`
	PerDegree   float64 `yaml:"per_degree"`
	MaxWidening float64 `yaml:"max_widening"`
}

// Shift moves both bounds additively.
type Shift struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (s Shift) isZero() bool { return s.Min == 0 && s.Max == 0 }

// DemographicPolicy holds per-band shift tables. A band listed with no entry
// for a metric leaves that metric unchanged.
type DemographicPolicy struct {
	AgeBands      map[string]map[MetricType]Shift `yaml:"age_bands"`
	FitnessLevels map[string]map[MetricType]Shift `yaml:"fitness_levels"`
}

// Policy is the complete numeric configuration of the engine.
type Policy struct {
	Metrics      map[MetricType]MetricPolicy `yaml:"metrics"`
	Altitude     AltitudePolicy              `yaml:"altitude"`
	Thermal      ThermalPolicy               `yaml:"thermal"`
	Demographics DemographicPolicy           `yaml:"demographics"`
}

// DefaultPolicy returns the built-in baseline and adjustment constants.
func DefaultPolicy() *Policy {
	return &Policy{
		Metrics: map[MetricType]MetricPolicy{
			MetricHeartRate:              {Unit: "bpm", Min: 60, Max: 100, Class: ClassCardio},
			MetricOxygenSaturation:       {Unit: "%", Min: 94, Max: 100, Class: ClassOxygen},
			MetricBloodPressureSystolic:  {Unit: "mmHg", Min: 90, Max: 140, Class: ClassCardio},
			MetricBloodPressureDiastolic: {Unit: "mmHg", Min: 60, Max: 90, Class: ClassCardio},
			MetricBodyTemperature:        {Unit: "C", Min: 36.1, Max: 37.2, Class: ClassNeutral},
		},
		Altitude: AltitudePolicy{ThresholdMeters: 1500, StepMeters: 1000, Decrement: 1, HardMinimum: 80},
		Thermal:  ThermalPolicy{NeutralC: 25, PerDegree: 0.01, MaxWidening: 0.25},
		Demographics: DemographicPolicy{
			AgeBands: map[string]map[MetricType]Shift{
				"18-39": {},
				"40-64": {
					MetricBloodPressureSystolic:  {Max: 5},
					MetricBloodPressureDiastolic: {Max: 3},
				},
				"65+": {
					MetricHeartRate:              {Min: -5},
					MetricOxygenSaturation:       {Min: -1},
					MetricBloodPressureSystolic:  {Max: 10},
					MetricBloodPressureDiastolic: {Max: 5},
					MetricBodyTemperature:        {Min: -0.2},
				},
			},
			FitnessLevels: map[string]map[MetricType]Shift{
				"sedentary": {MetricHeartRate: {Min: 5}},
				"moderate":  {},
				"athlete":   {MetricHeartRate: {Min: -20, Max: -5}},
			},
		},
	}
}

// LoadPolicy reads a YAML policy file. Sections missing from the file keep
// their default values.
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes YAML over the default policy and validates the result.
func ParsePolicy(raw []byte) (*Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the table for internally inconsistent values.
func (p *Policy) Validate() error {
	if len(p.Metrics) == 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "policy defines no metrics")
	}
	for m, mp := range p.Metrics {
		if mp.Min >= mp.Max {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("policy baseline for %s has min >= max", m))
		}
		switch mp.Class {
		case ClassOxygen, ClassCardio, ClassNeutral:
		default:
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("policy metric %s has unknown class %q", m, mp.Class))
		}
	}
	if p.Altitude.StepMeters <= 0 || p.Altitude.Decrement < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "altitude step must be positive and decrement non-negative")
	}
	if p.Thermal.PerDegree < 0 || p.Thermal.MaxWidening < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "thermal widening must be non-negative")
	}
	return nil
}

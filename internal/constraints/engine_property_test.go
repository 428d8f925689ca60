//go:build property

package constraints

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"vitalproof/internal/environment"
)

func snapshot(altitude, temperature float64) *environment.Context {
	c, err := environment.NewContext(uuid.Nil, 10, 10,
		environment.Readings{AltitudeMeters: altitude, TemperatureC: temperature},
		time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		panic(err)
	}
	return c
}

func TestAltitudeIsMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)
	p := DefaultPolicy()
	baseline := p.Metrics[MetricOxygenSaturation]

	properties.Property("raising altitude never raises either bound", prop.ForAll(
		func(altitude, climb, temperature float64) bool {
			low, err := Derive(p, MetricOxygenSaturation, snapshot(altitude, temperature), nil)
			if err != nil {
				return false
			}
			high, err := Derive(p, MetricOxygenSaturation, snapshot(altitude+climb, temperature), nil)
			if err != nil {
				return false
			}
			return high.MaxValue <= low.MaxValue && high.MinValue <= low.MinValue
		},
		gen.Float64Range(-400, 9000),
		gen.Float64Range(0, 5000),
		gen.Float64Range(-30, 50),
	))

	properties.Property("bounds stay within [hard minimum, baseline]", prop.ForAll(
		func(altitude float64) bool {
			d, err := Derive(p, MetricOxygenSaturation, snapshot(altitude, 20), nil)
			if err != nil {
				return false
			}
			return d.MinValue <= baseline.Min && d.MaxValue <= baseline.Max &&
				d.MinValue >= p.Altitude.HardMinimum && d.MinValue <= d.MaxValue
		},
		gen.Float64Range(-400, 100000),
	))

	properties.TestingRun(t)
}

func TestDerivationDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)
	p := DefaultPolicy()

	metrics := []MetricType{MetricHeartRate, MetricOxygenSaturation, MetricBloodPressureSystolic,
		MetricBloodPressureDiastolic, MetricBodyTemperature}
	bands := []string{"", "18-39", "40-64", "65+"}
	levels := []string{"", "sedentary", "moderate", "athlete"}
	pick := func(values []string) gopter.Gen {
		return gen.IntRange(0, len(values)-1).Map(func(i int) string { return values[i] })
	}

	properties.Property("equal inputs derive equal bounds", prop.ForAll(
		func(metric MetricType, altitude, temperature float64, band, level string) bool {
			demo := &Demographics{AgeBand: band, FitnessLevel: level}
			a, errA := Derive(p, metric, snapshot(altitude, temperature), demo)
			b, errB := Derive(p, metric, snapshot(altitude, temperature), demo)
			if errA != nil || errB != nil {
				return errA != nil && errB != nil
			}
			return a.SameBounds(b) && a.EnvironmentallyAdjusted == b.EnvironmentallyAdjusted &&
				a.MinValue <= a.MaxValue
		},
		gen.IntRange(0, len(metrics)-1).Map(func(i int) MetricType { return metrics[i] }),
		gen.Float64Range(-400, 9000),
		gen.Float64Range(-30, 55),
		pick(bands),
		pick(levels),
	))

	properties.TestingRun(t)
}

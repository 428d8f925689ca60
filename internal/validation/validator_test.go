package validation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalproof/internal/constraints"
	dErrors "vitalproof/pkg/domain-errors"
)

var (
	t0     = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	denver = constraints.Derivation{MetricType: constraints.MetricOxygenSaturation, Unit: "%", MinValue: 93, MaxValue: 99, AdjustmentFactor: 1}
	pulse  = constraints.Derivation{MetricType: constraints.MetricHeartRate, Unit: "bpm", MinValue: 60, MaxValue: 100, AdjustmentFactor: 1}
)

func spo2(v float64, at time.Time) Reading {
	return Reading{MetricType: constraints.MetricOxygenSaturation, Value: v, Unit: "%", ObservedAt: at}
}

func hr(v float64, minutesAgo int) Reading {
	return Reading{MetricType: constraints.MetricHeartRate, Value: v, ObservedAt: t0.Add(-time.Duration(minutesAgo) * time.Minute)}
}

func TestValidateRange(t *testing.T) {
	t.Run("in range at altitude", func(t *testing.T) {
		v, err := Validate(spo2(96, t0), denver, nil, DefaultOptions())
		require.NoError(t, err)
		assert.True(t, v.IsValid)
		assert.True(t, v.ConstraintsSatisfied)
		assert.Equal(t, RiskLow, v.RiskLevel)
		assert.Equal(t, DirectionNone, v.Direction)
		assert.Equal(t, []string{"Reading is within the expected range."}, v.Recommendations)
	})

	t.Run("below range is high risk", func(t *testing.T) {
		v, err := Validate(spo2(90, t0), denver, nil, DefaultOptions())
		require.NoError(t, err)
		assert.False(t, v.IsValid)
		assert.False(t, v.ConstraintsSatisfied)
		assert.Equal(t, RiskHigh, v.RiskLevel)
		assert.Equal(t, DirectionBelow, v.Direction)
		assert.Contains(t, v.Recommendations[0], "below the range expected for your altitude")
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		for _, value := range []float64{93, 99} {
			v, err := Validate(spo2(value, t0), denver, nil, DefaultOptions())
			require.NoError(t, err)
			assert.True(t, v.IsValid, "%v", value)
		}
	})

	t.Run("high risk falls back to the generic rule", func(t *testing.T) {
		custom := constraints.Derivation{MetricType: "respiratory_rate", MinValue: 12, MaxValue: 20}
		v, err := Validate(Reading{MetricType: "respiratory_rate", Value: 30, ObservedAt: t0}, custom, nil, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, RiskHigh, v.RiskLevel)
		assert.Equal(t, []string{"Reading is outside the expected range; re-measure and consult a clinician if it persists."}, v.Recommendations)
	})
}

func TestValidateTemporalConsistency(t *testing.T) {
	steady := []Reading{hr(70, 50), hr(72, 40), hr(71, 30), hr(69, 20), hr(70, 10)}

	t.Run("spike within range is medium risk", func(t *testing.T) {
		v, err := Validate(hr(95, 0), pulse, steady, DefaultOptions())
		require.NoError(t, err)
		assert.True(t, v.IsValid)
		assert.False(t, v.ConstraintsSatisfied)
		assert.Equal(t, RiskMedium, v.RiskLevel)
		assert.Equal(t, DirectionAbove, v.Direction)
	})

	t.Run("sigma floor absorbs small changes on flat history", func(t *testing.T) {
		flat := []Reading{hr(70, 30), hr(70, 20), hr(70, 10)}
		// floor = 5% of 40 = 2, k*sigma = 4
		v, err := Validate(hr(73.5, 0), pulse, flat, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, RiskLow, v.RiskLevel)

		v, err = Validate(hr(65, 0), pulse, flat, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, RiskMedium, v.RiskLevel)
		assert.Equal(t, DirectionBelow, v.Direction)
	})

	t.Run("one prior reading is not enough", func(t *testing.T) {
		v, err := Validate(hr(95, 0), pulse, []Reading{hr(60, 10)}, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, RiskLow, v.RiskLevel)
	})

	t.Run("only the trailing window counts", func(t *testing.T) {
		history := append([]Reading{hr(95, 500), hr(96, 400), hr(94, 300)}, steady...)
		v, err := Validate(hr(95, 0), pulse, history, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, RiskMedium, v.RiskLevel)
	})

	t.Run("future readings and other metrics are ignored", func(t *testing.T) {
		history := []Reading{hr(95, -10), hr(96, -20), spo2(97, t0.Add(-time.Minute)), spo2(97, t0.Add(-2*time.Minute))}
		v, err := Validate(hr(95, 0), pulse, history, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, RiskLow, v.RiskLevel)
	})

	t.Run("out of range outranks the trend", func(t *testing.T) {
		v, err := Validate(hr(130, 0), pulse, steady, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, RiskHigh, v.RiskLevel)
		assert.Equal(t, DirectionAbove, v.Direction)
	})
}

func TestValidateIsPure(t *testing.T) {
	history := []Reading{hr(70, 30), hr(90, 20), hr(75, 10)}
	a, err := Validate(hr(88, 0), pulse, history, DefaultOptions())
	require.NoError(t, err)
	b, err := Validate(hr(88, 0), pulse, history, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 70.0, history[0].Value, "history is not reordered")
}

func TestValidateRejectsMalformedReadings(t *testing.T) {
	cases := map[string]Reading{
		"metric mismatch": hr(70, 0),
		"nan":             spo2(math.NaN(), t0),
		"infinite":        spo2(math.Inf(-1), t0),
		"unit mismatch":   {MetricType: constraints.MetricOxygenSaturation, Value: 96, Unit: "mmHg", ObservedAt: t0},
	}
	for name, reading := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Validate(reading, denver, nil, DefaultOptions())
			assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedInput))
		})
	}
}

package validation

import "vitalproof/internal/constraints"

type ruleKey struct {
	metric    constraints.MetricType
	risk      RiskLevel
	direction Direction
}

// recommendationRules is the fixed advice table. An empty metric or
// direction is a wildcard consulted after the exact key.
var recommendationRules = map[ruleKey][]string{
	{constraints.MetricOxygenSaturation, RiskHigh, DirectionBelow}: {
		"Oxygen saturation is below the range expected for your altitude.",
		"Rest for a few minutes and re-measure; seek medical attention if it stays low or you feel short of breath.",
	},
	{constraints.MetricOxygenSaturation, RiskHigh, DirectionAbove}: {
		"Reading is above the plausible maximum; check sensor placement and re-measure.",
	},
	{constraints.MetricHeartRate, RiskHigh, DirectionAbove}: {
		"Heart rate is above the adjusted range.",
		"Rest, hydrate and re-measure after five minutes of inactivity.",
	},
	{constraints.MetricHeartRate, RiskHigh, DirectionBelow}: {
		"Heart rate is below the adjusted range.",
		"Re-measure at rest; consult a clinician if you feel dizzy or faint.",
	},
	{constraints.MetricBloodPressureSystolic, RiskHigh, DirectionAbove}: {
		"Systolic pressure is elevated.",
		"Sit quietly for five minutes and re-measure with the cuff at heart level.",
	},
	{constraints.MetricBloodPressureSystolic, RiskHigh, DirectionBelow}: {
		"Systolic pressure is low; sit or lie down and re-measure.",
	},
	{constraints.MetricBloodPressureDiastolic, RiskHigh, DirectionAbove}: {
		"Diastolic pressure is elevated; re-measure after resting.",
	},
	{constraints.MetricBloodPressureDiastolic, RiskHigh, DirectionBelow}: {
		"Diastolic pressure is low; re-measure after resting.",
	},
	{constraints.MetricBodyTemperature, RiskHigh, DirectionAbove}: {
		"Body temperature is above range, which may indicate fever or heat stress.",
		"Move somewhere cool, hydrate and re-measure.",
	},
	{constraints.MetricBodyTemperature, RiskHigh, DirectionBelow}: {
		"Body temperature is below range; warm up and re-measure.",
	},
	{"", RiskMedium, DirectionAbove}: {
		"Reading is within range but well above your recent trend; re-measure to rule out an artifact.",
	},
	{"", RiskMedium, DirectionBelow}: {
		"Reading is within range but well below your recent trend; re-measure to rule out an artifact.",
	},
	{"", RiskHigh, ""}: {
		"Reading is outside the expected range; re-measure and consult a clinician if it persists.",
	},
	{"", RiskLow, ""}: {
		"Reading is within the expected range.",
	},
}

// recommend looks up (metric, risk, direction), then (any, risk, direction),
// then (any, risk, any).
func recommend(metric constraints.MetricType, risk RiskLevel, direction Direction) []string {
	for _, k := range []ruleKey{
		{metric, risk, direction},
		{"", risk, direction},
		{"", risk, ""},
	} {
		if recs, ok := recommendationRules[k]; ok {
			return append([]string(nil), recs...)
		}
	}
	return []string{}
}

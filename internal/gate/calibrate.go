package gate

import (
	"encoding/json"
	"sort"
)

// minOutcomesForCalibration is how many successful outcomes are needed
// before the fixed defaults give way to calibrated thresholds.
const minOutcomesForCalibration = 10

// calibrationCriticFloor selects which outcomes count as successful.
const calibrationCriticFloor = 0.7

// Calibrate derives thresholds from the 25th percentile of gate metrics
// across successful outcomes, floored per key. Returns nil when fewer
// than 10 outcomes with parseable metrics exist, in which case callers
// keep their defaults.
func Calibrate(mem OutcomeSource) *Thresholds {
	outcomes := mem.SuccessfulOutcomes(calibrationCriticFloor, 100)

	var samples []Metrics
	for _, o := range outcomes {
		if o.GateMetricsJSON == "" {
			continue
		}
		var m Metrics
		if err := json.Unmarshal([]byte(o.GateMetricsJSON), &m); err != nil {
			continue
		}
		samples = append(samples, m)
	}
	if len(samples) < minOutcomesForCalibration {
		return nil
	}

	floors := Floors()
	t := Thresholds{
		MinFindings:    maxInt(percentile25Int(samples, func(m Metrics) int { return m.FindingsCount }), floors.MinFindings),
		MinSources:     maxInt(percentile25Int(samples, func(m Metrics) int { return m.UniqueSourceCount }), floors.MinSources),
		MinVerified:    maxInt(percentile25Int(samples, func(m Metrics) int { return m.VerifiedClaimCount }), floors.MinVerified),
		MinSupportRate: maxFloat(percentile25Float(samples, func(m Metrics) float64 { return m.ClaimSupportRate }), floors.MinSupportRate),
		MinReliability: maxFloat(percentile25Float(samples, func(m Metrics) float64 { return m.HighReliabilityRatio }), floors.MinReliability),
	}
	return &t
}

func percentile25Int(samples []Metrics, get func(Metrics) int) int {
	values := make([]int, len(samples))
	for i, m := range samples {
		values[i] = get(m)
	}
	sort.Ints(values)
	return values[(len(values)-1)/4]
}

func percentile25Float(samples []Metrics, get func(Metrics) float64) float64 {
	values := make([]float64, len(samples))
	for i, m := range samples {
		values[i] = get(m)
	}
	sort.Float64s(values)
	return values[(len(values)-1)/4]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Package enrich implements the enrichers: pure functions over session
// state, lap history, and external reads that return patches for the
// applier to apply via the diff engine. None of them mutate state directly.
package enrich

import (
	"math"
	"sort"

	"github.com/racetiming/pipeline/model"
)

const (
	madOutlierThreshold = 3.0
	madConsistencyConst = 1.4826
	maxCoefficientOfVar = 0.10
	minUsableLaps       = 3
	paceWindowLaps      = 5
	projectionFloorMs   = 10000
	defaultReferenceMs  = 120000
)

// ProjectedLapTime computes a car's estimated next-lap time in milliseconds
// currentFlag is the car's present track flag; history is
// ordered most-recent-first, as returned by the history package.
func ProjectedLapTime(currentFlag model.Flag, bestTime string, history []model.CarLapSnapshot) int {
	if currentFlag != model.FlagGreen && currentFlag != model.FlagYellow {
		return 0
	}

	var cleanLaps []model.CarLapSnapshot
	for _, h := range history {
		if !h.Position.LapIncludedPit {
			cleanLaps = append(cleanLaps, h)
		}
	}

	var sameFlag []model.CarLapSnapshot
	for _, h := range cleanLaps {
		if h.Position.TrackFlag == currentFlag {
			sameFlag = append(sameFlag, h)
		}
	}

	var usable []model.CarLapSnapshot
	if len(sameFlag) >= minUsableLaps {
		usable = sameFlag
	} else {
		usable = cleanLaps
		if len(usable) > paceWindowLaps {
			usable = usable[:paceWindowLaps]
		}
	}

	if len(usable) < minUsableLaps {
		return 0
	}

	times := make([]float64, len(usable))
	for i, h := range usable {
		times[i] = float64(model.LapTimeMs(h.Position.LastLapTime))
	}

	// Only extreme laps (beyond twice the median) are removed before the
	// consistency check; a moderately slow anomaly must survive into it so
	// the CoV rejection can fire on genuinely inconsistent data.
	filtered := dropExtremeLaps(times)

	mean, stddev := meanAndStdDev(filtered)
	if mean == 0 {
		return 0
	}
	if stddev/mean > maxCoefficientOfVar {
		return 0
	}

	projection := weightedAverage(madBandFilter(filtered))
	if projection < projectionFloorMs {
		return 0
	}

	var ref float64
	if currentFlag == model.FlagYellow {
		ref = mean
	} else {
		ref = float64(model.LapTimeMs(bestTime))
		if ref == 0 {
			ref = defaultReferenceMs
		}
	}

	if projection < 0.7*ref || projection > 3.0*ref {
		return 0
	}

	return int(math.Round(projection))
}

// dropExtremeLaps removes values above twice the median, keeping the
// filtered result only if at least 2 values remain; otherwise the original
// set is kept unfiltered.
func dropExtremeLaps(values []float64) []float64 {
	if len(values) < 2 {
		return values
	}

	m := median(values)
	var filtered []float64
	for _, v := range values {
		if v > 2*m {
			continue
		}
		filtered = append(filtered, v)
	}

	if len(filtered) < 2 {
		return values
	}
	return filtered
}

// madBandFilter drops values outside [median - 3*1.4826*MAD, median +
// 3*1.4826*MAD], keeping the filtered result only if at least 2 values
// remain; otherwise the original set is kept unfiltered. It trims the
// weighted average only, after the consistency check has already passed.
func madBandFilter(values []float64) []float64 {
	if len(values) < 2 {
		return values
	}

	m := median(values)
	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - m)
	}
	mad := median(deviations)

	lower := m - madOutlierThreshold*madConsistencyConst*mad
	upper := m + madOutlierThreshold*madConsistencyConst*mad

	var filtered []float64
	for _, v := range values {
		if v < lower || v > upper {
			continue
		}
		filtered = append(filtered, v)
	}

	if len(filtered) < 2 {
		return values
	}
	return filtered
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func meanAndStdDev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var sqDiffSum float64
	for _, v := range values {
		d := v - mean
		sqDiffSum += d * d
	}
	stddev = math.Sqrt(sqDiffSum / float64(len(values)))
	return mean, stddev
}

// weightedAverage computes a linear-weighted average where the input is
// ordered most-recent-first and the most recent value carries the largest
// weight (weight = count - index).
func weightedAverage(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	var weightedSum float64
	var weightTotal float64
	for i, v := range values {
		weight := float64(n - i)
		weightedSum += v * weight
		weightTotal += weight
	}
	return weightedSum / weightTotal
}

package enrich

import (
	"math"
	"sort"

	"github.com/racetiming/pipeline/model"
)

// FastestPaceInClass computes, for every car given its own lap history, the
// mean of exactly its last window laps (cars with fewer are skipped), and
// returns the car number of the class leader plus the set of cars whose
// inClassFastestAveragePace flag changed relative to the previous state.
//
// histories maps car number to that car's lap history (most-recent-first).
// previouslyFastest is the set of car numbers currently flagged
// inClassFastestAveragePace within this class. A non-positive window falls
// back to the default of 5.
func FastestPaceInClass(histories map[string][]model.CarLapSnapshot, previouslyFastest map[string]bool, window int) (newFastest string, changed map[string]bool) {
	if window <= 0 {
		window = paceWindowLaps
	}
	carNumbers := make([]string, 0, len(histories))
	for car := range histories {
		carNumbers = append(carNumbers, car)
	}
	sort.Strings(carNumbers)

	best := ""
	bestMean := math.MaxFloat64
	for _, car := range carNumbers {
		laps := histories[car]
		if len(laps) < window {
			continue
		}
		recent := laps[:window]
		var sum float64
		for _, l := range recent {
			sum += float64(model.LapTimeMs(l.Position.LastLapTime))
		}
		mean := sum / float64(window)
		if mean < bestMean {
			bestMean = mean
			best = car
		}
	}

	changed = make(map[string]bool)
	for car := range previouslyFastest {
		if car != best {
			changed[car] = false
		}
	}
	if best != "" && !previouslyFastest[best] {
		changed[best] = true
	}
	return best, changed
}

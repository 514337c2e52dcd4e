package enrich

import (
	"time"

	"github.com/racetiming/pipeline/model"
)

const defaultStalePctOver = 0.3

// FlagTransition describes the car's flag change since the last StaleCar
// sweep, used to select the staleness threshold
type FlagTransition int

const (
	FlagTransitionNone FlagTransition = iota
	FlagTransitionGreenToYellow
	FlagTransitionYellowToGreen
)

// StaleCar reports whether a car should be marked stale. raceLap is the
// session's current lap count (the sweep is skipped entirely by the caller
// when raceLap < 3). raceTime and totalTime are both elapsed durations since
// session start. pctOver is the steady-state threshold margin; a
// non-positive value falls back to the default of 0.3, and a flag
// transition overrides it either way.
func StaleCar(flag model.Flag, raceLap int, lastLapCompleted int, raceTime, totalTime time.Duration, lastLapTime time.Duration, transition FlagTransition, pctOver float64) bool {
	if lastLapCompleted == 0 {
		return true
	}

	if flag != model.FlagGreen && flag != model.FlagYellow && flag != model.FlagWhite {
		return false
	}

	if pctOver <= 0 {
		pctOver = defaultStalePctOver
	}
	switch transition {
	case FlagTransitionGreenToYellow:
		pctOver = 1.1
	case FlagTransitionYellowToGreen:
		pctOver = 0.05
	}

	threshold := time.Duration(float64(lastLapTime) * (1 + pctOver))
	return (raceTime - totalTime) > threshold
}

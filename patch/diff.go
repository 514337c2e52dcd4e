// Package patch implements the diff engine: pure functions that
// compare two session or car states and return a patch carrying only the
// fields that changed.
package patch

import (
	"reflect"

	"github.com/racetiming/pipeline/model"
)

// DiffSession compares old and new SessionState and returns a patch
// carrying only the changed fields, or nil if nothing changed.
func DiffSession(old, new model.SessionState) *model.SessionStatePatch {
	p := &model.SessionStatePatch{}
	changed := false

	if old.SessionID != new.SessionID {
		v := new.SessionID
		p.SessionID = &v
		changed = true
	}
	if old.SessionName != new.SessionName {
		v := new.SessionName
		p.SessionName = &v
		changed = true
	}
	if old.SessionType != new.SessionType {
		v := new.SessionType
		p.SessionType = &v
		changed = true
	}
	if old.RunningRaceTime != new.RunningRaceTime {
		v := int64(new.RunningRaceTime / 1e6)
		p.RunningRaceTime = &v
		changed = true
	}
	if old.CurrentFlag != new.CurrentFlag {
		v := new.CurrentFlag
		p.CurrentFlag = &v
		changed = true
	}
	if !flagDurationsEqual(old.FlagDurations, new.FlagDurations) {
		p.FlagDurations = new.FlagDurations
		changed = true
	}

	if !changed {
		return nil
	}
	return p
}

func flagDurationsEqual(a, b []model.FlagDuration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Flag != b[i].Flag || !a[i].StartTime.Equal(b[i].StartTime) {
			return false
		}
		if (a[i].EndTime == nil) != (b[i].EndTime == nil) {
			return false
		}
		if a[i].EndTime != nil && b[i].EndTime != nil && !a[i].EndTime.Equal(*b[i].EndTime) {
			return false
		}
	}
	return true
}

// DiffCar compares old and new CarPosition and returns a patch carrying
// only the changed fields. Number is always populated as identity. A patch
// whose only populated field is Number is suppressed (returns nil).
func DiffCar(old, new model.CarPosition) *model.CarPositionPatch {
	p := &model.CarPositionPatch{Number: new.Number}
	changed := false

	if old.TransponderID != new.TransponderID {
		v := new.TransponderID
		p.TransponderID = &v
		changed = true
	}
	if old.Class != new.Class {
		v := new.Class
		p.Class = &v
		changed = true
	}
	if positionChanged(old.OverallPosition, new.OverallPosition) {
		v := new.OverallPosition
		p.OverallPosition = &v
		changed = true
	}
	if positionChanged(old.ClassPosition, new.ClassPosition) {
		v := new.ClassPosition
		p.ClassPosition = &v
		changed = true
	}
	if positionChanged(old.OverallStartingPosition, new.OverallStartingPosition) {
		v := new.OverallStartingPosition
		p.OverallStartingPosition = &v
		changed = true
	}
	if positionChanged(old.InClassStartingPosition, new.InClassStartingPosition) {
		v := new.InClassStartingPosition
		p.InClassStartingPosition = &v
		changed = true
	}
	if old.OverallPositionsGained != new.OverallPositionsGained {
		v := new.OverallPositionsGained
		p.OverallPositionsGained = &v
		changed = true
	}
	if old.InClassPositionsGained != new.InClassPositionsGained {
		v := new.InClassPositionsGained
		p.InClassPositionsGained = &v
		changed = true
	}
	if old.BestTime != new.BestTime {
		v := new.BestTime
		p.BestTime = &v
		changed = true
	}
	if old.LastLapTime != new.LastLapTime {
		v := new.LastLapTime
		p.LastLapTime = &v
		changed = true
	}
	if old.TotalTime != new.TotalTime {
		v := new.TotalTime
		p.TotalTime = &v
		changed = true
	}
	if old.LastLapCompleted != new.LastLapCompleted {
		v := new.LastLapCompleted
		p.LastLapCompleted = &v
		changed = true
	}
	if old.ProjectedLapTimeMs != new.ProjectedLapTimeMs {
		v := new.ProjectedLapTimeMs
		p.ProjectedLapTimeMs = &v
		changed = true
	}
	if !reflect.DeepEqual(old.CompletedSections, new.CompletedSections) {
		p.CompletedSections = new.CompletedSections
		changed = true
	}
	if old.TrackFlag != new.TrackFlag {
		v := new.TrackFlag
		p.TrackFlag = &v
		changed = true
	}
	if old.LocalFlag != new.LocalFlag {
		v := new.LocalFlag
		p.LocalFlag = &v
		changed = true
	}
	if old.IsInPit != new.IsInPit {
		v := new.IsInPit
		p.IsInPit = &v
		changed = true
	}
	if old.IsEnteredPit != new.IsEnteredPit {
		v := new.IsEnteredPit
		p.IsEnteredPit = &v
		changed = true
	}
	if old.IsExitedPit != new.IsExitedPit {
		v := new.IsExitedPit
		p.IsExitedPit = &v
		changed = true
	}
	if old.IsPitStartFinish != new.IsPitStartFinish {
		v := new.IsPitStartFinish
		p.IsPitStartFinish = &v
		changed = true
	}
	if old.LapIncludedPit != new.LapIncludedPit {
		v := new.LapIncludedPit
		p.LapIncludedPit = &v
		changed = true
	}
	if old.IsStale != new.IsStale {
		v := new.IsStale
		p.IsStale = &v
		changed = true
	}
	if old.InClassFastestAveragePace != new.InClassFastestAveragePace {
		v := new.InClassFastestAveragePace
		p.InClassFastestAveragePace = &v
		changed = true
	}
	if old.IsBestTime != new.IsBestTime {
		v := new.IsBestTime
		p.IsBestTime = &v
		changed = true
	}
	if old.IsBestTimeClass != new.IsBestTimeClass {
		v := new.IsBestTimeClass
		p.IsBestTimeClass = &v
		changed = true
	}
	if old.IsOverallMostPositionsGained != new.IsOverallMostPositionsGained {
		v := new.IsOverallMostPositionsGained
		p.IsOverallMostPositionsGained = &v
		changed = true
	}
	if old.IsClassMostPositionsGained != new.IsClassMostPositionsGained {
		v := new.IsClassMostPositionsGained
		p.IsClassMostPositionsGained = &v
		changed = true
	}
	if old.PenaltyWarnings != new.PenaltyWarnings {
		v := new.PenaltyWarnings
		p.PenaltyWarnings = &v
		changed = true
	}
	if old.PenaltyLaps != new.PenaltyLaps {
		v := new.PenaltyLaps
		p.PenaltyLaps = &v
		changed = true
	}
	if old.BlackFlags != new.BlackFlags {
		v := new.BlackFlags
		p.BlackFlags = &v
		changed = true
	}
	if old.ImpactWarning != new.ImpactWarning {
		v := new.ImpactWarning
		p.ImpactWarning = &v
		changed = true
	}
	if old.DriverID != new.DriverID {
		v := new.DriverID
		p.DriverID = &v
		changed = true
	}
	if old.DriverName != new.DriverName {
		v := new.DriverName
		p.DriverName = &v
		changed = true
	}
	if old.Team != new.Team {
		v := new.Team
		p.Team = &v
		changed = true
	}

	if !changed {
		return nil
	}
	return p
}

// positionChanged implements the sentinel rule: InvalidPosition
// never counts as a change relative to a later real value unless that
// value is positive, and a later InvalidPosition never overwrites a known
// position.
func positionChanged(old, new int) bool {
	if old == new {
		return false
	}
	if new == model.InvalidPosition {
		return false
	}
	if old == model.InvalidPosition && new <= 0 {
		return false
	}
	return true
}

// Apply applies a CarPositionPatch onto a base CarPosition, returning the
// resulting value. Used by tests to verify diff/apply round-trips (P3).
func Apply(base model.CarPosition, p *model.CarPositionPatch) model.CarPosition {
	if p == nil {
		return base
	}
	out := base
	out.Number = p.Number
	if p.TransponderID != nil {
		out.TransponderID = *p.TransponderID
	}
	if p.Class != nil {
		out.Class = *p.Class
	}
	if p.OverallPosition != nil {
		out.OverallPosition = *p.OverallPosition
	}
	if p.ClassPosition != nil {
		out.ClassPosition = *p.ClassPosition
	}
	if p.OverallStartingPosition != nil {
		out.OverallStartingPosition = *p.OverallStartingPosition
	}
	if p.InClassStartingPosition != nil {
		out.InClassStartingPosition = *p.InClassStartingPosition
	}
	if p.OverallPositionsGained != nil {
		out.OverallPositionsGained = *p.OverallPositionsGained
	}
	if p.InClassPositionsGained != nil {
		out.InClassPositionsGained = *p.InClassPositionsGained
	}
	if p.BestTime != nil {
		out.BestTime = *p.BestTime
	}
	if p.LastLapTime != nil {
		out.LastLapTime = *p.LastLapTime
	}
	if p.TotalTime != nil {
		out.TotalTime = *p.TotalTime
	}
	if p.LastLapCompleted != nil {
		out.LastLapCompleted = *p.LastLapCompleted
	}
	if p.ProjectedLapTimeMs != nil {
		out.ProjectedLapTimeMs = *p.ProjectedLapTimeMs
	}
	if p.CompletedSections != nil {
		out.CompletedSections = p.CompletedSections
	}
	if p.TrackFlag != nil {
		out.TrackFlag = *p.TrackFlag
	}
	if p.LocalFlag != nil {
		out.LocalFlag = *p.LocalFlag
	}
	if p.IsInPit != nil {
		out.IsInPit = *p.IsInPit
	}
	if p.IsEnteredPit != nil {
		out.IsEnteredPit = *p.IsEnteredPit
	}
	if p.IsExitedPit != nil {
		out.IsExitedPit = *p.IsExitedPit
	}
	if p.IsPitStartFinish != nil {
		out.IsPitStartFinish = *p.IsPitStartFinish
	}
	if p.LapIncludedPit != nil {
		out.LapIncludedPit = *p.LapIncludedPit
	}
	if p.IsStale != nil {
		out.IsStale = *p.IsStale
	}
	if p.InClassFastestAveragePace != nil {
		out.InClassFastestAveragePace = *p.InClassFastestAveragePace
	}
	if p.IsBestTime != nil {
		out.IsBestTime = *p.IsBestTime
	}
	if p.IsBestTimeClass != nil {
		out.IsBestTimeClass = *p.IsBestTimeClass
	}
	if p.IsOverallMostPositionsGained != nil {
		out.IsOverallMostPositionsGained = *p.IsOverallMostPositionsGained
	}
	if p.IsClassMostPositionsGained != nil {
		out.IsClassMostPositionsGained = *p.IsClassMostPositionsGained
	}
	if p.PenaltyWarnings != nil {
		out.PenaltyWarnings = *p.PenaltyWarnings
	}
	if p.PenaltyLaps != nil {
		out.PenaltyLaps = *p.PenaltyLaps
	}
	if p.BlackFlags != nil {
		out.BlackFlags = *p.BlackFlags
	}
	if p.ImpactWarning != nil {
		out.ImpactWarning = *p.ImpactWarning
	}
	if p.DriverID != nil {
		out.DriverID = *p.DriverID
	}
	if p.DriverName != nil {
		out.DriverName = *p.DriverName
	}
	if p.Team != nil {
		out.Team = *p.Team
	}
	return out
}

// FullPatch returns a CarPositionPatch with every field populated from the
// given position, used to seed new subscribers and to re-send a full
// snapshot after Reset.
func FullPatch(c model.CarPosition) model.CarPositionPatch {
	return model.CarPositionPatch{
		Number:                       c.Number,
		TransponderID:                &c.TransponderID,
		Class:                        &c.Class,
		OverallPosition:              &c.OverallPosition,
		ClassPosition:                &c.ClassPosition,
		OverallStartingPosition:      &c.OverallStartingPosition,
		InClassStartingPosition:      &c.InClassStartingPosition,
		OverallPositionsGained:       &c.OverallPositionsGained,
		InClassPositionsGained:       &c.InClassPositionsGained,
		BestTime:                     &c.BestTime,
		LastLapTime:                  &c.LastLapTime,
		TotalTime:                    &c.TotalTime,
		LastLapCompleted:             &c.LastLapCompleted,
		ProjectedLapTimeMs:           &c.ProjectedLapTimeMs,
		CompletedSections:            c.CompletedSections,
		TrackFlag:                    &c.TrackFlag,
		LocalFlag:                    &c.LocalFlag,
		IsInPit:                      &c.IsInPit,
		IsEnteredPit:                 &c.IsEnteredPit,
		IsExitedPit:                  &c.IsExitedPit,
		IsPitStartFinish:             &c.IsPitStartFinish,
		LapIncludedPit:               &c.LapIncludedPit,
		IsStale:                      &c.IsStale,
		InClassFastestAveragePace:    &c.InClassFastestAveragePace,
		IsBestTime:                   &c.IsBestTime,
		IsBestTimeClass:              &c.IsBestTimeClass,
		IsOverallMostPositionsGained: &c.IsOverallMostPositionsGained,
		IsClassMostPositionsGained:   &c.IsClassMostPositionsGained,
		PenaltyWarnings:              &c.PenaltyWarnings,
		PenaltyLaps:                  &c.PenaltyLaps,
		BlackFlags:                   &c.BlackFlags,
		ImpactWarning:                &c.ImpactWarning,
		DriverID:                     &c.DriverID,
		DriverName:                   &c.DriverName,
		Team:                         &c.Team,
	}
}

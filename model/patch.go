package model

// SessionStatePatch carries only the session fields that changed since the
// last published state. A nil pointer field means "unchanged"; a non-nil
// pointer to a zero value means "reset to default".
type SessionStatePatch struct {
	SessionID       *int64
	SessionName     *string
	SessionType     *SessionType
	RunningRaceTime *int64 // milliseconds
	CurrentFlag     *Flag
	FlagDurations   []FlagDuration // whole-list replace; nil means unchanged
}

// IsEmpty reports whether the patch carries no changes at all.
func (p *SessionStatePatch) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.SessionID == nil && p.SessionName == nil && p.SessionType == nil &&
		p.RunningRaceTime == nil && p.CurrentFlag == nil && p.FlagDurations == nil
}

// CarPositionPatch carries only the car fields that changed. Number is
// always populated as identity.
type CarPositionPatch struct {
	Number string

	TransponderID *uint64
	Class         *string

	OverallPosition         *int
	ClassPosition           *int
	OverallStartingPosition *int
	InClassStartingPosition *int
	OverallPositionsGained  *int
	InClassPositionsGained  *int

	BestTime           *string
	LastLapTime        *string
	TotalTime          *string
	LastLapCompleted   *int
	ProjectedLapTimeMs *int
	CompletedSections  []int

	TrackFlag        *Flag
	LocalFlag        *Flag
	IsInPit          *bool
	IsEnteredPit     *bool
	IsExitedPit      *bool
	IsPitStartFinish *bool
	LapIncludedPit   *bool

	IsStale                      *bool
	InClassFastestAveragePace    *bool
	IsBestTime                   *bool
	IsBestTimeClass              *bool
	IsOverallMostPositionsGained *bool
	IsClassMostPositionsGained   *bool
	PenaltyWarnings              *int
	PenaltyLaps                  *int
	BlackFlags                   *int
	ImpactWarning                *bool

	DriverID   *int64
	DriverName *string
	Team       *string
}

// IsEmpty reports whether only identity (Number) is populated, i.e. the
// patch carries no actual field change and should be suppressed by the
// diff engine.
func (p *CarPositionPatch) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.TransponderID == nil && p.Class == nil &&
		p.OverallPosition == nil && p.ClassPosition == nil &&
		p.OverallStartingPosition == nil && p.InClassStartingPosition == nil &&
		p.OverallPositionsGained == nil && p.InClassPositionsGained == nil &&
		p.BestTime == nil && p.LastLapTime == nil && p.TotalTime == nil &&
		p.LastLapCompleted == nil && p.ProjectedLapTimeMs == nil && p.CompletedSections == nil &&
		p.TrackFlag == nil && p.LocalFlag == nil && p.IsInPit == nil &&
		p.IsEnteredPit == nil && p.IsExitedPit == nil && p.IsPitStartFinish == nil &&
		p.LapIncludedPit == nil && p.IsStale == nil && p.InClassFastestAveragePace == nil &&
		p.IsBestTime == nil && p.IsBestTimeClass == nil && p.IsOverallMostPositionsGained == nil &&
		p.IsClassMostPositionsGained == nil && p.PenaltyWarnings == nil && p.PenaltyLaps == nil &&
		p.BlackFlags == nil && p.ImpactWarning == nil && p.DriverID == nil &&
		p.DriverName == nil && p.Team == nil
}

// PatchUpdates is the pair of patches produced by a single ingest step and
// handed to the debouncer for fanout.
type PatchUpdates struct {
	SessionPatch *SessionStatePatch
	CarPatches   []CarPositionPatch
}

func (u PatchUpdates) IsEmpty() bool {
	if !u.SessionPatch.IsEmpty() {
		return false
	}
	for i := range u.CarPatches {
		if !u.CarPatches[i].IsEmpty() {
			return false
		}
	}
	return true
}

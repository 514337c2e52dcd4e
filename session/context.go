// Package session implements the session context: the exclusive owner
// of a pipeline instance's SessionState and CarPositions, serialized behind
// a single mutex.
package session

import (
	"sort"
	"strings"
	"sync"

	"github.com/racetiming/pipeline/model"
)

// Context owns the canonical SessionState for one pipeline instance. All
// mutation goes through a single mutex; all reads return defensive copies.
type Context struct {
	mu    sync.Mutex
	state model.SessionState
	cars  map[string]model.CarPosition // keyed by car number
}

func New(eventID int64) *Context {
	return &Context{
		state: model.SessionState{EventID: eventID},
		cars:  make(map[string]model.CarPosition),
	}
}

// State returns a defensive copy of the current session state.
func (c *Context) State() model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cloneState()
}

func (c *Context) cloneState() model.SessionState {
	s := c.state
	if c.state.FlagDurations != nil {
		s.FlagDurations = append([]model.FlagDuration(nil), c.state.FlagDurations...)
	}
	return s
}

// GetCarByNumber returns a defensive copy of the car, or false if unknown.
func (c *Context) GetCarByNumber(number string) (model.CarPosition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	car, ok := c.cars[number]
	if !ok {
		return model.CarPosition{}, false
	}
	return car.Clone(), true
}

// GetClassCars returns defensive copies of every car in the given class,
// sorted by car number for deterministic iteration.
func (c *Context) GetClassCars(class string) []model.CarPosition {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []model.CarPosition
	for _, car := range c.cars {
		if car.Class == class {
			out = append(out, car.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// AllCars returns defensive copies of every known car, sorted by number.
func (c *Context) AllCars() []model.CarPosition {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.CarPosition, 0, len(c.cars))
	for _, car := range c.cars {
		out = append(out, car.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// GetCurrentFlagAndLap returns the session's current track flag and the
// highest lastLapCompleted across known cars, used by enrichers that need
// race-wide context without a specific car.
func (c *Context) GetCurrentFlagAndLap() (model.Flag, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lap := 0
	for _, car := range c.cars {
		if car.LastLapCompleted > lap {
			lap = car.LastLapCompleted
		}
	}
	return c.state.CurrentFlag, lap
}

// UpdateCars atomically merges a full replacement car list from the
// authoritative source (RMonitor). For a car already present, the
// enricher-owned fields are always carried over from the previous state and
// any values replacement holds for them are discarded; those fields change
// only through Mutate. Returns the previous and new state maps for the
// caller to diff.
func (c *Context) UpdateCars(replacement []model.CarPosition) (old map[string]model.CarPosition, new map[string]model.CarPosition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old = make(map[string]model.CarPosition, len(c.cars))
	for k, v := range c.cars {
		old[k] = v.Clone()
	}

	merged := make(map[string]model.CarPosition, len(replacement))
	for _, car := range replacement {
		if prior, ok := c.cars[car.Number]; ok {
			car.ProjectedLapTimeMs = prior.ProjectedLapTimeMs
			car.InClassFastestAveragePace = prior.InClassFastestAveragePace
			car.IsStale = prior.IsStale
			car.PenaltyWarnings = prior.PenaltyWarnings
			car.PenaltyLaps = prior.PenaltyLaps
			car.DriverID = prior.DriverID
			car.DriverName = prior.DriverName
		}
		merged[car.Number] = car
	}
	c.cars = merged

	new = make(map[string]model.CarPosition, len(merged))
	for k, v := range merged {
		new[k] = v.Clone()
	}
	return old, new
}

// Mutate runs fn against a defensive copy of the named car (or a fresh
// zero-value CarPosition with Number set if unknown), stores the result,
// and returns it. This is the single entry point processors use to change
// car state; it never bypasses the mutex.
func (c *Context) Mutate(number string, fn func(model.CarPosition) model.CarPosition) model.CarPosition {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.cars[number]
	if !ok {
		current = model.CarPosition{Number: number, OverallPosition: model.InvalidPosition, ClassPosition: model.InvalidPosition}
	}
	updated := fn(current.Clone())
	updated.Number = number
	c.cars[number] = updated
	return updated.Clone()
}

// MutateSession runs fn against a defensive copy of the current session
// state and stores the result.
func (c *Context) MutateSession(fn func(model.SessionState) model.SessionState) model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated := fn(c.cloneState())
	c.state = updated
	return c.cloneState()
}

// Reset clears per-car lap tracking and pit state on a session change
//, keeping the event identity but replacing session
// identity and wiping the car map entirely: the new session starts from a
// clean slate.
func (c *Context) Reset(sessionID int64, sessionName string, sessionType model.SessionType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = model.SessionState{
		EventID:     c.state.EventID,
		SessionID:   sessionID,
		SessionName: sessionName,
		SessionType: sessionType,
		CurrentFlag: model.FlagUnknown,
	}
	c.cars = make(map[string]model.CarPosition)
}

// InferSessionType infers a SessionType from name tokens, e.g.
// "Race 1" -> race, "Qualifying" -> qualifying, "Practice 2" -> practice.
func InferSessionType(name string) model.SessionType {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "race"):
		return model.SessionTypeRace
	case strings.Contains(lower, "qual"):
		return model.SessionTypeQualifying
	case strings.Contains(lower, "practice"), strings.Contains(lower, "warmup"):
		return model.SessionTypePractice
	default:
		return model.SessionTypeUnknown
	}
}

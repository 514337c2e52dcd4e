// Package pit implements the pit processor: it infers pit-in/pit-out
// state from loop events and position edge flags, correlates pit activity
// with lap completion, and is the authority for whether a just-completed
// lap included a pit stop.
package pit

import (
	"sync"
	"time"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/patch"
	"github.com/racetiming/pipeline/session"
)

// State is one node of the per-car pit state machine.
type State int

const (
	OnTrack State = iota
	PitEntered
	InPit
	PitExited
)

// dwellDuration is how long a car sits in PitEntered before the processor
// promotes it to InPit absent an explicit "stationary" sensor signal; no
// such sensor feed exists here, so elapsed time is the only trigger.
const dwellDuration = 5 * time.Second

// LapFlusher lets the pit processor request an immediate flush of a car's
// buffered lap the moment a pit event arrives for it, without importing the
// lap package directly (pit and lap would otherwise import each other).
type LapFlusher interface {
	FlushPendingForCar(car string)
}

type carPitState struct {
	state        State
	enteredAt    time.Time
	pitDuringLap bool
}

// Processor tracks per-car pit state for one pipeline instance.
type Processor struct {
	mu      sync.Mutex
	cars    map[string]*carPitState
	flusher LapFlusher
}

func New(flusher LapFlusher) *Processor {
	return &Processor{
		cars:    make(map[string]*carPitState),
		flusher: flusher,
	}
}

func (p *Processor) carStateLocked(car string) *carPitState {
	st, ok := p.cars[car]
	if !ok {
		st = &carPitState{state: OnTrack}
		p.cars[car] = st
	}
	return st
}

// EnteredPit transitions a car on_track -> pit_entered. It is triggered by
// an X2 "entered-pit" loop event or by an RMonitor sample with
// isEnteredPit=true. The fast-path flush runs before the caller
// observes the returned patch, so a buffered lap for this car picks up
// lapIncludedPit=true even if the flush races the lap processor's own
// grace-window timer.
func (p *Processor) EnteredPit(ctx *session.Context, car string, now time.Time) model.PatchUpdates {
	p.mu.Lock()
	st := p.carStateLocked(car)
	if st.state == OnTrack || st.state == PitExited {
		st.state = PitEntered
		st.enteredAt = now
	}
	st.pitDuringLap = true
	p.mu.Unlock()

	if p.flusher != nil {
		p.flusher.FlushPendingForCar(car)
	}

	oldCar, _ := ctx.GetCarByNumber(car)
	newCar := ctx.Mutate(car, func(c model.CarPosition) model.CarPosition {
		c.IsEnteredPit = true
		c.IsExitedPit = false
		c.IsInPit = true
		return c
	})
	return wrap(patch.DiffCar(oldCar, newCar))
}

// ExitedPit transitions pit_entered/in_pit -> pit_exited. Triggered by an
// X2 "exited-pit" loop event or isExitedPit=true.
func (p *Processor) ExitedPit(ctx *session.Context, car string, now time.Time) model.PatchUpdates {
	p.mu.Lock()
	st := p.carStateLocked(car)
	if st.state == PitEntered || st.state == InPit {
		st.state = PitExited
	}
	st.pitDuringLap = true
	p.mu.Unlock()

	if p.flusher != nil {
		p.flusher.FlushPendingForCar(car)
	}

	oldCar, _ := ctx.GetCarByNumber(car)
	newCar := ctx.Mutate(car, func(c model.CarPosition) model.CarPosition {
		c.IsExitedPit = true
		c.IsEnteredPit = false
		c.IsInPit = false
		return c
	})
	return wrap(patch.DiffCar(oldCar, newCar))
}

// CrossedStartFinish completes the pit_exited -> on_track transition when a
// car crosses the start/finish line on the lap following its pit exit
//, and clears the edge flags that were set on entry/exit.
func (p *Processor) CrossedStartFinish(ctx *session.Context, car string) model.PatchUpdates {
	p.mu.Lock()
	st := p.carStateLocked(car)
	if st.state == PitExited {
		st.state = OnTrack
	}
	p.mu.Unlock()

	oldCar, _ := ctx.GetCarByNumber(car)
	newCar := ctx.Mutate(car, func(c model.CarPosition) model.CarPosition {
		c.IsPitStartFinish = true
		c.IsEnteredPit = false
		c.IsExitedPit = false
		return c
	})
	return wrap(patch.DiffCar(oldCar, newCar))
}

// Tick promotes any car that has dwelled in PitEntered past dwellDuration
// into InPit, clearing the isEnteredPit edge flag (isInPit stays set).
// Called periodically by the scheduler.
func (p *Processor) Tick(ctx *session.Context, now time.Time) model.PatchUpdates {
	p.mu.Lock()
	var toPromote []string
	for car, st := range p.cars {
		if st.state == PitEntered && now.Sub(st.enteredAt) >= dwellDuration {
			st.state = InPit
			toPromote = append(toPromote, car)
		}
	}
	p.mu.Unlock()

	var updates model.PatchUpdates
	for _, car := range toPromote {
		oldCar, _ := ctx.GetCarByNumber(car)
		newCar := ctx.Mutate(car, func(c model.CarPosition) model.CarPosition {
			c.IsInPit = true
			c.IsEnteredPit = false
			return c
		})
		if cp := patch.DiffCar(oldCar, newCar); cp != nil {
			updates.CarPatches = append(updates.CarPatches, *cp)
		}
	}
	return updates
}

// UpdateCarPositionForLogging stamps lapIncludedPit=true on the snapshot iff
// the car was in any pit state since the previous call for that car (i.e.
// during the lap that just completed), then clears the flag for the next
// lap.
func (p *Processor) UpdateCarPositionForLogging(snapshot model.CarLapSnapshot) model.CarLapSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.carStateLocked(snapshot.Position.Number)
	if st.pitDuringLap || st.state != OnTrack {
		snapshot.Position.LapIncludedPit = true
	}
	st.pitDuringLap = false
	return snapshot
}

// CurrentState reports a car's current pit state, defaulting to OnTrack for
// an unseen car.
func (p *Processor) CurrentState(car string) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.cars[car]; ok {
		return st.state
	}
	return OnTrack
}

func wrap(cp *model.CarPositionPatch) model.PatchUpdates {
	if cp == nil {
		return model.PatchUpdates{}
	}
	return model.PatchUpdates{CarPatches: []model.CarPositionPatch{*cp}}
}

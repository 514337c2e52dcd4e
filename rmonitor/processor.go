package rmonitor

import (
	"sync"
	"time"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/patch"
	"github.com/racetiming/pipeline/session"
)

type state int

const (
	stateWaitingSession state = iota
	stateActive
)

// Processor is the RMonitor base processor: it parses the line
// protocol, tracks the waiting_session/active session state machine, and
// on each batch produces the car list that session.Context.UpdateCars
// merges in, plus the session-level fields it owns directly.
//
// A single Processor instance is scoped to one pipeline (one event); it is
// not safe to share across events.
type Processor struct {
	mu sync.Mutex

	st          state
	sessionID   int64
	sessionName string

	classOf       map[string]string // car number -> class id
	transponderOf map[string]uint64 // car number -> transponder id
	currentFlag   model.Flag
	runningRace   int64 // ms

	cars map[string]model.CarPosition // accumulated proposed state for the current batch/session
}

func New() *Processor {
	return &Processor{
		st:            stateWaitingSession,
		classOf:       make(map[string]string),
		transponderOf: make(map[string]uint64),
		currentFlag:   model.FlagUnknown,
		cars:          make(map[string]model.CarPosition),
	}
}

// BatchResult is the outcome of processing one batch of RMonitor lines:
// whether a session reset fired, and the resulting patches.
type BatchResult struct {
	Reset   bool
	Patches model.PatchUpdates
}

// ProcessBatch parses each line in order and applies the resulting car and
// session state to ctx, returning the patches produced at batch end.
// Unparseable lines are skipped.
func (p *Processor) ProcessBatch(ctx *session.Context, lines []string) BatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := BatchResult{}

	for _, line := range lines {
		rec, ok := ParseLine(line)
		if !ok {
			continue
		}
		switch rec.Type {
		case RecordClass:
			p.applyClass(rec)
		case RecordCompetitor:
			p.applyCompetitor(rec)
		case RecordSession:
			if reset := p.applySession(ctx, rec); reset {
				result.Reset = true
			}
		case RecordRaceInfo:
			p.applyRaceInfo(rec)
		case RecordFlag:
			p.applyFlag(rec)
		case RecordRunningTime:
			p.applyRunningTime(rec)
		}
	}

	replacement := make([]model.CarPosition, 0, len(p.cars))
	for _, c := range p.cars {
		replacement = append(replacement, c)
	}
	oldCars, newCars := ctx.UpdateCars(replacement)

	for number, newCar := range newCars {
		oldCar := oldCars[number] // zero value if unknown, which is correct: first observation
		if cp := patch.DiffCar(oldCar, newCar); cp != nil {
			result.Patches.CarPatches = append(result.Patches.CarPatches, *cp)
		}
	}

	oldSession := ctx.State()
	newSession := ctx.MutateSession(func(s model.SessionState) model.SessionState {
		s.SessionID = p.sessionID
		s.SessionName = p.sessionName
		s.SessionType = session.InferSessionType(p.sessionName)
		s.CurrentFlag = p.currentFlag
		if p.runningRace != 0 {
			s.RunningRaceTime = time.Duration(p.runningRace) * time.Millisecond
		}
		return s
	})
	result.Patches.SessionPatch = patch.DiffSession(oldSession, newSession)

	return result
}

// applySession handles a $F session header. A session-id change while
// already active fires a Reset:
// per-car lap counters and pit state are cleared and the accumulated
// working car map is wiped so the new session starts from a clean slate.
func (p *Processor) applySession(ctx *session.Context, rec Record) bool {
	newID := int64FieldAt(rec.Fields, 0)
	newName := fieldAt(rec.Fields, 1)

	reset := false
	if p.st == stateActive && newID != p.sessionID {
		reset = true
	}

	if reset {
		ctx.Reset(newID, newName, session.InferSessionType(newName))
		p.cars = make(map[string]model.CarPosition)
		p.classOf = make(map[string]string)
		p.transponderOf = make(map[string]uint64)
		p.currentFlag = model.FlagUnknown
		p.runningRace = 0
	}

	p.sessionID = newID
	p.sessionName = newName
	p.st = stateActive
	return reset
}

func (p *Processor) applyClass(rec Record) {
	// Class id/name registration. Cars referencing this class id by number
	// get their Class backfilled on the next $C race-info record.
	classID := fieldAt(rec.Fields, 0)
	className := fieldAt(rec.Fields, 1)
	if classID == "" {
		return
	}
	for car, cls := range p.classOf {
		if cls == classID {
			p.classOf[car] = className
		}
	}
}

func (p *Processor) applyCompetitor(rec Record) {
	carNumber := fieldAt(rec.Fields, 0)
	if carNumber == "" {
		return
	}
	p.transponderOf[carNumber] = uint64FieldAt(rec.Fields, 1)
	// Class defaults to empty string if unknown; a later $A backfills it,
	// which yields a patch edge case.
	if cls := fieldAt(rec.Fields, 2); cls != "" {
		p.classOf[carNumber] = cls
	}
}

func (p *Processor) applyRaceInfo(rec Record) {
	carNumber := fieldAt(rec.Fields, 1)
	if carNumber == "" {
		return
	}

	overallPosition := intFieldAt(rec.Fields, 0)
	lapsCompleted := intFieldAt(rec.Fields, 2)
	totalTime := fieldAt(rec.Fields, 3)
	lastLapTime := fieldAt(rec.Fields, 4)
	bestTime := fieldAt(rec.Fields, 5)
	classPosition := intFieldAt(rec.Fields, 6)

	existing, ok := p.cars[carNumber]
	if !ok {
		existing = model.CarPosition{
			Number:                  carNumber,
			OverallPosition:         model.InvalidPosition,
			ClassPosition:           model.InvalidPosition,
			OverallStartingPosition: model.InvalidPosition,
			InClassStartingPosition: model.InvalidPosition,
		}
	}

	// Lap monotonicity: a new lap-0 grid snapshot is
	// accepted only if it actually changes a position/time field; a strictly
	// greater lap number is always accepted.
	if lapsCompleted == 0 {
		if lapsCompleted < existing.LastLapCompleted {
			return
		}
		if existing.LastLapCompleted == 0 &&
			overallPosition == existing.OverallPosition &&
			lastLapTime == existing.LastLapTime &&
			totalTime == existing.TotalTime {
			return
		}
	} else if lapsCompleted < existing.LastLapCompleted {
		return
	}

	if overallPosition > 0 || existing.OverallPosition == model.InvalidPosition {
		existing.OverallPosition = overallPosition
	}
	if classPosition > 0 || existing.ClassPosition == model.InvalidPosition {
		existing.ClassPosition = classPosition
	}
	existing.LastLapCompleted = lapsCompleted
	existing.TotalTime = totalTime
	existing.LastLapTime = lastLapTime
	if bestTime != "" {
		existing.BestTime = bestTime
	}
	existing.Class = p.classOf[carNumber]
	existing.TransponderID = p.transponderOf[carNumber]
	existing.TrackFlag = p.currentFlag
	if existing.OverallStartingPosition == model.InvalidPosition && overallPosition > 0 {
		existing.OverallStartingPosition = overallPosition
	}
	if existing.InClassStartingPosition == model.InvalidPosition && classPosition > 0 {
		existing.InClassStartingPosition = classPosition
	}
	if existing.OverallStartingPosition > 0 {
		existing.OverallPositionsGained = existing.OverallStartingPosition - existing.OverallPosition
	}
	if existing.InClassStartingPosition > 0 {
		existing.InClassPositionsGained = existing.InClassStartingPosition - existing.ClassPosition
	}

	p.cars[carNumber] = existing
}

func (p *Processor) applyFlag(rec Record) {
	f := model.Flag(fieldAt(rec.Fields, 0))
	switch f {
	case model.FlagGreen, model.FlagYellow, model.FlagRed, model.FlagWhite, model.FlagCheckered, model.FlagPurple:
		p.currentFlag = f
	default:
		p.currentFlag = model.FlagUnknown
	}
}

func (p *Processor) applyRunningTime(rec Record) {
	p.runningRace = int64FieldAt(rec.Fields, 0)
}

// CarByTransponder resolves a transponder id to the car number registered
// against it, used by the X2 supplementary processor to map loop passings
// to cars.
func (p *Processor) CarByTransponder(transponderID uint64) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for car, t := range p.transponderOf {
		if t == transponderID {
			return car, true
		}
	}
	return "", false
}

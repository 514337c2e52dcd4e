// Package lap implements the lap processor: it detects lap
// completion, buffers each completed lap for a short grace window so a
// correlated pit event can stamp it, and emits durable lap-log records.
package lap

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/pit"
)

// DefaultPitWait is the default lap-grace window.
const DefaultPitWait = 1000 * time.Millisecond

// SweepInterval is how often the background scheduler should call Sweep.
const SweepInterval = 100 * time.Millisecond

// PitLogger is the subset of the pit processor the lap processor needs: it
// stamps lapIncludedPit on a completed-lap snapshot before it is persisted.
type PitLogger interface {
	UpdateCarPositionForLogging(snapshot model.CarLapSnapshot) model.CarLapSnapshot
}

// RecordSink is the durable lap-log append stream.
type RecordSink interface {
	AppendLapLog(ctx context.Context, record model.CarLapLog) error
}

// HistoryAdder is the car lap history store; a lap is recorded into
// history only once its lapIncludedPit flag is final (the enrichers rely
// on that flag being correct when filtering clean laps), i.e. at the same
// point it is emitted to the durable lap-log stream.
type HistoryAdder interface {
	AddLap(ctx context.Context, eventID int64, car string, snapshot model.CarLapSnapshot, maxSize int) error
}

type pendingEntry struct {
	snapshot   model.CarLapSnapshot
	enqueuedAt time.Time
	lapFlag    model.Flag
}

// Processor is scoped to one pipeline instance (one event); lastLap and
// pending are reset wholesale on session change.
type Processor struct {
	mu sync.Mutex

	eventID   int64
	sessionID int64
	pitWait   time.Duration

	lastLap map[string]int
	pending map[string][]pendingEntry

	pitLogger PitLogger
	sink      RecordSink
	history   HistoryAdder
	histSize  int

	logCtx context.Context
	onErr  func(error)

	onLapCompleted func(model.CarLapSnapshot)
}

func New(eventID int64, pitWait time.Duration, pitLogger PitLogger, sink RecordSink, history HistoryAdder, historySize int) *Processor {
	if pitWait <= 0 {
		pitWait = DefaultPitWait
	}
	if historySize <= 0 {
		historySize = 5
	}
	return &Processor{
		eventID:   eventID,
		pitWait:   pitWait,
		lastLap:   make(map[string]int),
		pending:   make(map[string][]pendingEntry),
		pitLogger: pitLogger,
		sink:      sink,
		history:   history,
		histSize:  historySize,
		logCtx:    context.Background(),
		onErr:     func(error) {},
	}
}

// SetErrorHandler installs a callback invoked when a background flush
// fails. The caller owns the throttle/retry policy, this processor just
// reports.
func (p *Processor) SetErrorHandler(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onErr = fn
}

// SetPitLogger wires the pit processor in after construction, breaking the
// constructor cycle between lap.New (which needs a PitLogger) and pit.New
// (which needs a LapFlusher implemented by *lap.Processor).
func (p *Processor) SetPitLogger(pitLogger PitLogger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pitLogger = pitLogger
}

// SetLapCompletedHandler installs a callback invoked after a lap has been
// durably recorded, once lapIncludedPit is final. The applier uses this to
// post a synthetic lap-completed message back into the ingest router so the
// fastest-pace-in-class and control-log enrichers run.
func (p *Processor) SetLapCompletedHandler(fn func(model.CarLapSnapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLapCompleted = fn
}

// Seed loads the resume checkpoint read from the durable store on session
// start.
func (p *Processor) Seed(sessionID int64, lastLaps map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = sessionID
	p.lastLap = make(map[string]int, len(lastLaps))
	for car, n := range lastLaps {
		p.lastLap[car] = n
	}
}

// OnSessionChange flushes every pending lap against the outgoing session,
// then clears all per-car lap tracking for the new session id. Call this
// before accepting any further samples for the new session.
func (p *Processor) OnSessionChange(ctx context.Context, newSessionID int64) {
	p.flushAll(ctx, true)

	p.mu.Lock()
	p.sessionID = newSessionID
	p.lastLap = make(map[string]int)
	p.pending = make(map[string][]pendingEntry)
	p.mu.Unlock()
}

// CheckSample evaluates one incoming car sample against the lap
// detection rule and enqueues a buffered lap if it fires. prevSnapshot is
// the last-published snapshot for the car, used for the lap-0 "materially
// differs" check; a nil prevSnapshot compares against a zero-value position.
func (p *Processor) CheckSample(now time.Time, position model.CarPosition, prevSnapshot *model.CarPosition) {
	p.mu.Lock()
	defer p.mu.Unlock()

	car := position.Number
	last := p.lastLap[car]

	fires := false
	switch {
	case position.LastLapCompleted > last:
		fires = true
	case position.LastLapCompleted == 0:
		var prev model.CarPosition
		if prevSnapshot != nil {
			prev = *prevSnapshot
		}
		if prev.OverallPosition != position.OverallPosition || prev.LastLapTime != position.LastLapTime {
			fires = true
		}
	}
	if !fires {
		return
	}

	// Re-read lastLap inside the lock to dedupe races, and only advance it
	// on a strictly greater value so lap-0 grid snapshots never decrement
	// the counter.
	if position.LastLapCompleted > p.lastLap[car] {
		p.lastLap[car] = position.LastLapCompleted
	}

	entry := pendingEntry{
		snapshot:   model.CarLapSnapshot{LapNumber: position.LastLapCompleted, Position: position.Clone()},
		enqueuedAt: now,
		lapFlag:    position.TrackFlag,
	}
	p.pending[car] = append(p.pending[car], entry)
}

// FlushPendingForCar immediately flushes every buffered lap for a car with
// lapIncludedPit stamped true, implementing pit.LapFlusher for the
// fast-path flush triggered by an incoming pit event.
func (p *Processor) FlushPendingForCar(car string) {
	p.mu.Lock()
	entries := p.pending[car]
	delete(p.pending, car)
	eventID, sessionID := p.eventID, p.sessionID
	pitLogger, sink, onErr := p.pitLogger, p.sink, p.onErr
	history, histSize := p.history, p.histSize
	onCompleted := p.onLapCompleted
	p.mu.Unlock()

	for _, e := range entries {
		if pitLogger != nil {
			e.snapshot = pitLogger.UpdateCarPositionForLogging(e.snapshot)
		}
		e.snapshot.Position.LapIncludedPit = true
		p.emit(eventID, sessionID, e, nil, sink, history, histSize, onErr, onCompleted)
	}
}

var _ pit.LapFlusher = (*Processor)(nil)

// Sweep dequeues and emits every buffered lap whose grace window has
// elapsed (now - enqueuedAt >= pitWait). It is safe to call from a single
// background goroutine on SweepInterval.
func (p *Processor) Sweep(ctx context.Context, now time.Time) {
	p.mu.Lock()
	eventID, sessionID, pitWait := p.eventID, p.sessionID, p.pitWait
	pitLogger, sink, onErr := p.pitLogger, p.sink, p.onErr
	history, histSize := p.history, p.histSize
	onCompleted := p.onLapCompleted

	var toEmit []pendingEntry
	for car, entries := range p.pending {
		var remaining []pendingEntry
		for _, e := range entries {
			if now.Sub(e.enqueuedAt) >= pitWait {
				toEmit = append(toEmit, e)
			} else {
				remaining = append(remaining, e)
			}
		}
		if len(remaining) == 0 {
			delete(p.pending, car)
		} else {
			p.pending[car] = remaining
		}
	}
	p.mu.Unlock()

	for _, e := range toEmit {
		p.emit(eventID, sessionID, e, pitLogger, sink, history, histSize, onErr, onCompleted)
	}
}

// flushAll dequeues every pending lap across every car, used by
// OnSessionChange and pipeline cancellation.
func (p *Processor) flushAll(ctx context.Context, stampCurrentPitState bool) {
	p.mu.Lock()
	eventID, sessionID := p.eventID, p.sessionID
	pitLogger, sink, onErr := p.pitLogger, p.sink, p.onErr
	history, histSize := p.history, p.histSize
	onCompleted := p.onLapCompleted
	var all []pendingEntry
	for car, entries := range p.pending {
		all = append(all, entries...)
		delete(p.pending, car)
	}
	p.mu.Unlock()

	for _, e := range all {
		p.emit(eventID, sessionID, e, pitLogger, sink, history, histSize, onErr, onCompleted)
	}
}

// Flush is the exported form of flushAll used for pipeline shutdown: every
// pending lap is drained with its current lapIncludedPit value.
func (p *Processor) Flush(ctx context.Context) {
	p.flushAll(ctx, true)
}

func (p *Processor) emit(eventID, sessionID int64, e pendingEntry, pitLogger PitLogger, sink RecordSink, history HistoryAdder, histSize int, onErr func(error), onCompleted func(model.CarLapSnapshot)) {
	if pitLogger != nil {
		e.snapshot = pitLogger.UpdateCarPositionForLogging(e.snapshot)
	}

	if history != nil {
		if err := history.AddLap(p.logCtx, eventID, e.snapshot.Position.Number, e.snapshot, histSize); err != nil {
			onErr(err)
		}
	}

	snapshotJSON, err := json.Marshal(e.snapshot.Position)
	if err != nil {
		onErr(err)
		return
	}

	record := model.CarLapLog{
		EventID:      eventID,
		SessionID:    sessionID,
		Car:          e.snapshot.Position.Number,
		LapNumber:    e.snapshot.LapNumber,
		Flag:         e.lapFlag,
		Timestamp:    e.enqueuedAt,
		SnapshotJSON: snapshotJSON,
	}

	if sink != nil {
		if err := sink.AppendLapLog(p.logCtx, record); err != nil {
			onErr(err)
		}
	}

	if onCompleted != nil {
		onCompleted(e.snapshot)
	}
}

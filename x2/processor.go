// Package x2 implements the X2 supplementary processor: transponder
// loop passings. It maps transponder ids to car numbers via the RMonitor
// registry and emits pit-in/pit-out candidates to the pit processor.
//
// The wire format is a simple comma-delimited record:
// "<transponder_id>,<loop_id>,<timestamp_ms>" for x2-loop messages and
// "<transponder_id>,<timestamp_ms>" for x2-passing messages.
package x2

import (
	"strconv"
	"strings"
	"time"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/pit"
	"github.com/racetiming/pipeline/session"
)

// LoopID identifies which physical loop a passing was detected on.
type LoopID string

const (
	LoopPitIn       LoopID = "pit-in"
	LoopPitOut      LoopID = "pit-out"
	LoopStartFinish LoopID = "start-finish"
)

// TransponderResolver maps a transponder id to the car number registered
// against it, backed by the RMonitor competitor registry.
type TransponderResolver interface {
	CarByTransponder(transponderID uint64) (string, bool)
}

// LoopEvent is one decoded X2 loop crossing.
type LoopEvent struct {
	TransponderID uint64
	Loop          LoopID
	Timestamp     time.Time
}

// ParseLoopLine decodes one x2-loop record line.
func ParseLoopLine(line string, now time.Time) (LoopEvent, bool) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 3 {
		return LoopEvent{}, false
	}
	transponder, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return LoopEvent{}, false
	}
	loop := LoopID(strings.TrimSpace(parts[1]))
	ts := now
	if ms, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64); err == nil && ms > 0 {
		ts = time.UnixMilli(ms).UTC()
	}
	return LoopEvent{TransponderID: transponder, Loop: loop, Timestamp: ts}, true
}

// Processor resolves loop passings to cars and drives the pit processor.
type Processor struct {
	resolver TransponderResolver
	pit      *pit.Processor
}

func New(resolver TransponderResolver, pitProcessor *pit.Processor) *Processor {
	return &Processor{resolver: resolver, pit: pitProcessor}
}

// ProcessLoopEvents applies each decoded loop event to the pit processor
// and returns the resulting patches. An event for an unregistered
// transponder is skipped.
func (p *Processor) ProcessLoopEvents(ctx *session.Context, events []LoopEvent) model.PatchUpdates {
	var updates model.PatchUpdates

	for _, ev := range events {
		car, ok := p.resolver.CarByTransponder(ev.TransponderID)
		if !ok {
			continue
		}

		var result model.PatchUpdates
		switch ev.Loop {
		case LoopPitIn:
			result = p.pit.EnteredPit(ctx, car, ev.Timestamp)
		case LoopPitOut:
			result = p.pit.ExitedPit(ctx, car, ev.Timestamp)
		case LoopStartFinish:
			if p.pit.CurrentState(car) == pit.PitExited {
				result = p.pit.CrossedStartFinish(ctx, car)
			}
		default:
			continue
		}
		updates.CarPatches = append(updates.CarPatches, result.CarPatches...)
	}

	return updates
}

// Package ingestrouter implements the ingest router: a single-consumer
// dispatcher that tags each TimingMessage by type, invokes exactly one of
// the base/supplementary processors synchronously, then runs the
// lap processor and the relevant enrichers over whatever cars
// just changed. The caller owns handing the resulting patches to the
// debouncer. Dispatch is synchronous; besides the session context it also
// drives the lap processor's buffer and sink, the flag persister and the
// driver registry. No parallelism across messages.
package ingestrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/racetiming/pipeline/enrich"
	"github.com/racetiming/pipeline/lap"
	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/multiloop"
	"github.com/racetiming/pipeline/patch"
	"github.com/racetiming/pipeline/pit"
	"github.com/racetiming/pipeline/rmonitor"
	"github.com/racetiming/pipeline/session"
	"github.com/racetiming/pipeline/trackflag"
	"github.com/racetiming/pipeline/x2"
)

// HistoryReader is the rolling lap-window read side the fastest-pace
// and projected-lap-time enrichers consume.
type HistoryReader interface {
	GetLaps(ctx context.Context, eventID int64, car string) ([]model.CarLapSnapshot, error)
}

// PenaltyLookup is the control-log cache's read side.
type PenaltyLookup interface {
	PenaltyLookup() map[string]model.CarPenalty
}

// Router owns one event's worth of wired processors and dispatches
// TimingMessages to them in arrival order.
type Router struct {
	eventID int64

	sessionCtx *session.Context
	rmonitor   *rmonitor.Processor
	multiloop  *multiloop.Processor
	x2         *x2.Processor
	pit        *pit.Processor
	trackFlag  *trackflag.Processor
	lap        *lap.Processor

	drivers *driverRegistry
	history HistoryReader
	control PenaltyLookup
	roster  Roster

	fastestPaceByClass map[string]map[string]bool
	paceWindow         int

	onReset func()
}

// New wires a router for one event. sessionCtx, lapProcessor, pitProcessor
// and the supplementary processors must already share the same session
// context; callers construct them together (see pipeline.New).
func New(eventID int64, sessionCtx *session.Context, rmon *rmonitor.Processor, ml *multiloop.Processor, x2p *x2.Processor, pitp *pit.Processor, tf *trackflag.Processor, lapp *lap.Processor, history HistoryReader, control PenaltyLookup, onReset func()) *Router {
	return &Router{
		eventID:            eventID,
		sessionCtx:         sessionCtx,
		rmonitor:           rmon,
		multiloop:          ml,
		x2:                 x2p,
		pit:                pitp,
		trackFlag:          tf,
		lap:                lapp,
		drivers:            newDriverRegistry(),
		history:            history,
		control:            control,
		fastestPaceByClass: make(map[string]map[string]bool),
		onReset:            onReset,
	}
}

// SetPaceWindow overrides how many laps the fastest-pace-in-class sweep
// averages over. Non-positive values keep the enricher's default.
func (r *Router) SetPaceWindow(n int) {
	r.paceWindow = n
}

func splitLines(data []byte) []string {
	raw := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// Dispatch processes one TimingMessage and returns the resulting patches.
// A non-nil error indicates a message that could not be parsed or of an
// unknown type, a failed flag-log persist, or a failed lap-history read;
// callers classify it with pipelineerr and decide whether to skip or abort
// the batch.
func (r *Router) Dispatch(ctx context.Context, msg model.TimingMessage) (model.PatchUpdates, error) {
	switch msg.Type {
	case model.MessageTypeRMonitor:
		return r.dispatchRMonitor(ctx, msg), nil
	case model.MessageTypeMultiloop:
		return r.multiloop.ProcessBatch(r.sessionCtx, splitLines(msg.Data)), nil
	case model.MessageTypeX2Passing, model.MessageTypeX2Loop:
		return r.dispatchX2(msg), nil
	case model.MessageTypeFlags:
		return r.dispatchFlags(ctx, msg)
	case model.MessageTypeDriver:
		return r.dispatchDriver(msg)
	case model.MessageTypeLapCompleted:
		return r.dispatchLapCompleted(ctx, msg)
	default:
		return model.PatchUpdates{}, fmt.Errorf("ingestrouter: unknown message type %q", msg.Type)
	}
}

func (r *Router) dispatchRMonitor(ctx context.Context, msg model.TimingMessage) model.PatchUpdates {
	prevCars := make(map[string]model.CarPosition)
	for _, c := range r.sessionCtx.AllCars() {
		prevCars[c.Number] = c
	}

	result := r.rmonitor.ProcessBatch(r.sessionCtx, splitLines(msg.Data))

	if result.Reset {
		state := r.sessionCtx.State()
		r.lap.OnSessionChange(ctx, state.SessionID)
		if r.onReset != nil {
			r.onReset()
		}
		return result.Patches
	}

	now := msg.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}
	for _, carPatch := range result.Patches.CarPatches {
		newCar, ok := r.sessionCtx.GetCarByNumber(carPatch.Number)
		if !ok {
			continue
		}
		var prevPtr *model.CarPosition
		if prev, ok := prevCars[carPatch.Number]; ok {
			prevPtr = &prev
		}
		r.lap.CheckSample(now, newCar, prevPtr)
	}

	result.Patches.CarPatches = append(result.Patches.CarPatches, r.backfillTeams()...)

	return result.Patches
}

func (r *Router) dispatchX2(msg model.TimingMessage) model.PatchUpdates {
	now := msg.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var events []x2.LoopEvent
	for _, line := range splitLines(msg.Data) {
		if ev, ok := x2.ParseLoopLine(line, now); ok {
			events = append(events, ev)
		}
	}
	return r.x2.ProcessLoopEvents(r.sessionCtx, events)
}

func (r *Router) dispatchFlags(ctx context.Context, msg model.TimingMessage) (model.PatchUpdates, error) {
	var list []model.FlagDuration
	if err := json.Unmarshal(msg.Data, &list); err != nil {
		return model.PatchUpdates{}, fmt.Errorf("ingestrouter: decoding flags payload: %w", err)
	}

	if !trackflag.Validate(list) {
		// Invariant violation: drop the offending update rather
		// than let an overlapping or multiply-open flag sequence corrupt
		// session state.
		return model.PatchUpdates{}, nil
	}

	sessionPatch, changed, err := r.trackFlag.ProcessFlags(ctx, r.sessionCtx, r.eventID, list)
	if err != nil {
		return model.PatchUpdates{}, err
	}
	if !changed {
		return model.PatchUpdates{}, nil
	}
	return model.PatchUpdates{SessionPatch: &sessionPatch}, nil
}

func (r *Router) dispatchDriver(msg model.TimingMessage) (model.PatchUpdates, error) {
	var info model.DriverInfo
	if err := json.Unmarshal(msg.Data, &info); err != nil {
		return model.PatchUpdates{}, fmt.Errorf("ingestrouter: decoding driver payload: %w", err)
	}
	r.drivers.Register(info)

	old, ok := r.sessionCtx.GetCarByNumber(info.CarNumber)
	if !ok {
		return model.PatchUpdates{}, nil
	}

	resolved, applied := enrich.ResolveDriverInfo(r.drivers, r.eventID, info.CarNumber, info.TransponderID, false)
	if !applied {
		return model.PatchUpdates{}, nil
	}

	updated := r.sessionCtx.Mutate(info.CarNumber, func(c model.CarPosition) model.CarPosition {
		c.DriverID = resolved.DriverID
		c.DriverName = resolved.DriverName
		return c
	})

	if carPatch := patch.DiffCar(old, updated); carPatch != nil {
		return model.PatchUpdates{CarPatches: []model.CarPositionPatch{*carPatch}}, nil
	}
	return model.PatchUpdates{}, nil
}

func (r *Router) dispatchLapCompleted(ctx context.Context, msg model.TimingMessage) (model.PatchUpdates, error) {
	var completed model.LapCompleted
	if err := json.Unmarshal(msg.Data, &completed); err != nil {
		return model.PatchUpdates{}, fmt.Errorf("ingestrouter: decoding lap-completed payload: %w", err)
	}

	old, ok := r.sessionCtx.GetCarByNumber(completed.CarNumber)
	if !ok {
		return model.PatchUpdates{}, nil
	}

	laps, err := r.history.GetLaps(ctx, r.eventID, completed.CarNumber)
	if err != nil {
		return model.PatchUpdates{}, fmt.Errorf("ingestrouter: reading lap history for %s: %w", completed.CarNumber, err)
	}

	projected := enrich.ProjectedLapTime(old.TrackFlag, old.BestTime, laps)

	var warnings, penaltyLaps int
	if r.control != nil {
		warnings, penaltyLaps = enrich.PenaltyFromControlLog(r.control.PenaltyLookup(), strings.ToLower(completed.CarNumber))
	}

	updated := r.sessionCtx.Mutate(completed.CarNumber, func(c model.CarPosition) model.CarPosition {
		c.ProjectedLapTimeMs = projected
		c.PenaltyWarnings = warnings
		c.PenaltyLaps = penaltyLaps
		return c
	})

	patches := model.PatchUpdates{}
	if carPatch := patch.DiffCar(old, updated); carPatch != nil {
		patches.CarPatches = append(patches.CarPatches, *carPatch)
	}

	classPatches, err := r.refreshFastestPace(ctx, completed.Class)
	if err != nil {
		return patches, err
	}
	patches.CarPatches = append(patches.CarPatches, classPatches...)

	return patches, nil
}

func (r *Router) refreshFastestPace(ctx context.Context, class string) ([]model.CarPositionPatch, error) {
	cars := r.sessionCtx.GetClassCars(class)
	if len(cars) == 0 {
		return nil, nil
	}

	histories := make(map[string][]model.CarLapSnapshot, len(cars))
	for _, c := range cars {
		laps, err := r.history.GetLaps(ctx, r.eventID, c.Number)
		if err != nil {
			return nil, fmt.Errorf("ingestrouter: reading lap history for %s: %w", c.Number, err)
		}
		histories[c.Number] = laps
	}

	_, changed := enrich.FastestPaceInClass(histories, r.fastestPaceByClass[class], r.paceWindow)
	if len(changed) == 0 {
		return nil, nil
	}
	r.fastestPaceByClass[class] = mergeFastest(r.fastestPaceByClass[class], changed)

	var patches []model.CarPositionPatch
	for car, isFastest := range changed {
		old, ok := r.sessionCtx.GetCarByNumber(car)
		if !ok {
			continue
		}
		updated := r.sessionCtx.Mutate(car, func(c model.CarPosition) model.CarPosition {
			c.InClassFastestAveragePace = isFastest
			return c
		})
		if carPatch := patch.DiffCar(old, updated); carPatch != nil {
			patches = append(patches, *carPatch)
		}
	}
	return patches, nil
}

func mergeFastest(current map[string]bool, changed map[string]bool) map[string]bool {
	out := make(map[string]bool, len(current)+len(changed))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range changed {
		if v {
			out[k] = true
		} else {
			delete(out, k)
		}
	}
	return out
}

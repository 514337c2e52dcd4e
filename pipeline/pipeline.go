// Package pipeline wires together one event's worth of processors
// and drives the single-consumer apply loop: one
// dispatcher goroutine applies every TimingMessage in arrival order under
// the session context's mutex, background timers post synthetic messages
// or patches back through the same accumulator, and a debouncer rate-limits
// the resulting publish to the output broadcaster.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/racetiming/pipeline/archive"
	"github.com/racetiming/pipeline/broadcast"
	"github.com/racetiming/pipeline/controllog"
	"github.com/racetiming/pipeline/enrich"
	"github.com/racetiming/pipeline/history"
	"github.com/racetiming/pipeline/ingestrouter"
	"github.com/racetiming/pipeline/lap"
	"github.com/racetiming/pipeline/metrics"
	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/multiloop"
	"github.com/racetiming/pipeline/patch"
	"github.com/racetiming/pipeline/pit"
	"github.com/racetiming/pipeline/pipelineerr"
	"github.com/racetiming/pipeline/rmonitor"
	"github.com/racetiming/pipeline/schedule"
	"github.com/racetiming/pipeline/session"
	"github.com/racetiming/pipeline/store"
	"github.com/racetiming/pipeline/trackflag"
	"github.com/racetiming/pipeline/x2"
	"github.com/rs/zerolog"
)

const defaultInputBuffer = 256

// Pipeline owns every processor for one event and is the only thing that
// ever calls into them concurrently; every external caller goes through
// Submit, Run and the SnapshotProvider read methods.
type Pipeline struct {
	cfg Config

	sessionCtx   *session.Context
	router       *ingestrouter.Router
	lapProc      *lap.Processor
	pitProc      *pit.Processor
	controlCache *controllog.Cache

	controlSource controllog.Source
	lastLapStore  LastLapStore

	broadcaster *broadcast.Broadcaster
	debouncer   schedulerDebouncer
	ticker      tickerRunner

	archiveExporter *archive.Exporter
	lapLogStore     LapLogStore
	metricsEmitter  *metrics.CloudWatchEmitter
	snapshotSink    SnapshotSink
	lapDispatcher   LapEventDispatcher

	onErr func(error)

	input chan model.TimingMessage
	ctx   context.Context

	pendingMu sync.Mutex
	pending   model.PatchUpdates

	prevFlag map[string]model.Flag
}

// schedulerDebouncer and tickerRunner narrow schedule.Debouncer/Ticker to
// the methods Pipeline drives, avoiding a hard import-cycle-free coupling
// to the concrete type names in field declarations below.
type schedulerDebouncer interface {
	Execute(fn func())
}

type tickerRunner interface {
	Run(ctx context.Context)
}

// New wires a Pipeline for one event. publisher, lapLogStore, historyStore,
// lastLapStore, flagPersister and controlSource are the external
// collaborators; any of them may be nil, in which case the corresponding
// feature quietly no-ops (no subscription transport, no durable lap log,
// no resume checkpoint, no flag-log persistence, no control-log source),
// except historyStore, which falls back to an in-memory store.
func New(cfg Config, publisher broadcast.Publisher, lapLogStore LapLogStore, historyStore history.Store, lastLapStore LastLapStore, flagPersister trackflag.Persister, controlSource controllog.Source, opts ...Option) *Pipeline {
	if cfg.PitWait <= 0 {
		cfg.PitWait = DefaultConfig().PitWait
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	if cfg.ControlLogPoll <= 0 {
		cfg.ControlLogPoll = DefaultConfig().ControlLogPoll
	}
	if cfg.PublishDebounce <= 0 {
		cfg.PublishDebounce = DefaultConfig().PublishDebounce
	}
	if cfg.PaceWindow <= 0 {
		cfg.PaceWindow = DefaultConfig().PaceWindow
	}
	if cfg.StaleCarPctOver <= 0 {
		cfg.StaleCarPctOver = DefaultConfig().StaleCarPctOver
	}
	if historyStore == nil {
		historyStore = history.NewInMemory()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}

	sessionCtx := session.New(cfg.EventID)
	rmon := rmonitor.New()
	ml := multiloop.New()

	var lapSink lap.RecordSink
	if lapLogStore != nil {
		lapSink = newLapRecordSink(lapLogStore)
	}

	lapProc := lap.New(cfg.EventID, cfg.PitWait, nil, lapSink, historyStore, cfg.HistorySize)
	pitProc := pit.New(lapProc)
	lapProc.SetPitLogger(pitProc)

	x2Proc := x2.New(rmon, pitProc)
	tfProc := trackflag.New(flagPersister)

	controlCfg := controllog.DefaultConfig()
	if cfg.MinTimestampYear != 0 {
		controlCfg.MinTimestampYear = cfg.MinTimestampYear
	}
	if cfg.MaxMissedTimestamps != 0 {
		controlCfg.MaxMissedTimestamps = cfg.MaxMissedTimestamps
	}
	controlCache := controllog.New(controlCfg)

	p := &Pipeline{
		cfg:           cfg,
		sessionCtx:    sessionCtx,
		lapProc:       lapProc,
		pitProc:       pitProc,
		controlCache:  controlCache,
		controlSource: controlSource,
		lastLapStore:  lastLapStore,
		lapLogStore:   lapLogStore,
		broadcaster:   broadcast.New(publisher),
		debouncer:     schedule.NewDebouncer(cfg.PublishDebounce),
		onErr:         func(error) {},
		input:         make(chan model.TimingMessage, defaultInputBuffer),
		ctx:           context.Background(),
		prevFlag:      make(map[string]model.Flag),
	}

	ticker := schedule.NewTicker()
	ticker.ControlLogPoll = cfg.ControlLogPoll
	ticker.OnControlLogPoll = p.onControlLogPoll
	ticker.OnStaleSweep = p.onStaleSweep
	p.ticker = ticker

	router := ingestrouter.New(cfg.EventID, sessionCtx, rmon, ml, x2Proc, pitProc, tfProc, lapProc, historyStore, controlCache, p.onSessionReset)
	router.SetPaceWindow(cfg.PaceWindow)
	p.router = router

	lapProc.SetLapCompletedHandler(p.onLapCompleted)

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Submit enqueues a TimingMessage for processing. It blocks if the input
// channel is full or returns immediately once ctx is done, whichever comes
// first; callers on the hot ingestion path should give ctx a deadline.
func (p *Pipeline) Submit(ctx context.Context, msg model.TimingMessage) error {
	select {
	case p.input <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the single consumer: it drains the input channel in order and
// drives every background timer, blocking until ctx is cancelled. Exactly
// one goroutine may call Run for a given Pipeline.
func (p *Pipeline) Run(ctx context.Context) {
	p.ctx = ctx

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.runLapSweep(ctx)
	}()
	go func() {
		defer wg.Done()
		p.ticker.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			wg.Wait()
			return
		case msg := <-p.input:
			p.handle(ctx, msg)
		}
	}
}

// runLapSweep wakes every lap.SweepInterval and dequeues any lap whose
// grace window has elapsed.
func (p *Pipeline) runLapSweep(ctx context.Context) {
	ticker := time.NewTicker(lap.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.lapProc.Sweep(ctx, now)
		}
	}
}

// shutdown drains the pending-lap queue with current lapIncludedPit
// state; partial accumulated patches are discarded
// rather than published, since there is no live apply loop left to
// serialize further mutation against once Run returns.
func (p *Pipeline) shutdown() {
	p.lapProc.Flush(context.Background())
}

// handle applies one TimingMessage's resulting patches. A session reset is
// detected and handled entirely inside router.Dispatch via the onReset
// callback wired at construction.
func (p *Pipeline) handle(ctx context.Context, msg model.TimingMessage) {
	patches, err := p.router.Dispatch(ctx, msg)
	if err != nil {
		p.onErr(pipelineerr.Parse("ingestrouter", err))
		return
	}
	p.accumulate(patches)
}

// accumulate merges newly produced patches into the pending batch and asks
// the debouncer to schedule a publish; the debouncer drops the request if
// one is already in flight, and the eventual publish reads whatever has
// accumulated in pending by then.
func (p *Pipeline) accumulate(patches model.PatchUpdates) {
	if patches.IsEmpty() {
		return
	}
	p.pendingMu.Lock()
	p.pending.SessionPatch = mergeSessionPatch(p.pending.SessionPatch, patches.SessionPatch)
	p.pending.CarPatches = append(p.pending.CarPatches, patches.CarPatches...)
	p.pendingMu.Unlock()
	p.debouncer.Execute(p.publishPending)
}

func (p *Pipeline) publishPending() {
	p.pendingMu.Lock()
	toPublish := p.pending
	p.pending = model.PatchUpdates{}
	p.pendingMu.Unlock()

	if toPublish.IsEmpty() {
		return
	}
	p.broadcaster.Publish(p.ctx, p.cfg.EventID, toPublish)
	if p.metricsEmitter != nil {
		_ = p.metricsEmitter.EmitGauge(p.ctx, metrics.PatchesEmitted, float64(len(toPublish.CarPatches)))
	}
	p.saveSnapshot()
}

// saveSnapshot persists the pipeline's current full state to the snapshot
// sink, if one is installed. It runs off the apply path in its own
// goroutine since it is a best-effort side channel, not part of the
// publish contract.
func (p *Pipeline) saveSnapshot() {
	if p.snapshotSink == nil {
		return
	}
	state := p.sessionCtx.State()
	cars := p.sessionCtx.AllCars()
	carPatches := make([]model.CarPositionPatch, 0, len(cars))
	for _, c := range cars {
		carPatches = append(carPatches, patch.FullPatch(c))
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return
	}
	carsJSON, err := json.Marshal(carPatches)
	if err != nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.snapshotSink.PutSessionSnapshot(ctx, store.SessionSnapshotRecord{
			EventID:          p.cfg.EventID,
			SessionStateJSON: stateJSON,
			CarPatchesJSON:   carsJSON,
		}); err != nil {
			zerolog.Ctx(p.ctx).Warn().Err(err).Int64("eventID", p.cfg.EventID).Msg("failed to save session snapshot")
		}
	}()
}

func mergeSessionPatch(dst, src *model.SessionStatePatch) *model.SessionStatePatch {
	if src.IsEmpty() {
		return dst
	}
	if dst == nil {
		dst = &model.SessionStatePatch{}
	}
	if src.SessionID != nil {
		dst.SessionID = src.SessionID
	}
	if src.SessionName != nil {
		dst.SessionName = src.SessionName
	}
	if src.SessionType != nil {
		dst.SessionType = src.SessionType
	}
	if src.RunningRaceTime != nil {
		dst.RunningRaceTime = src.RunningRaceTime
	}
	if src.CurrentFlag != nil {
		dst.CurrentFlag = src.CurrentFlag
	}
	if src.FlagDurations != nil {
		dst.FlagDurations = src.FlagDurations
	}
	return dst
}

// onSessionReset runs synchronously inside router.Dispatch the moment
// rmonitor detects a session-id change: it clears any not-yet-published
// patches (a full resend supersedes them), reseeds the lap processor's
// last-lap counters from the durable checkpoint, and emits Reset followed
// by a full state resend.
func (p *Pipeline) onSessionReset() {
	state := p.sessionCtx.State()
	cars := p.sessionCtx.AllCars()

	p.pendingMu.Lock()
	p.pending = model.PatchUpdates{}
	p.pendingMu.Unlock()

	if p.lastLapStore != nil {
		laps, err := p.lastLapStore.GetCarLastLaps(p.ctx, p.cfg.EventID, state.SessionID)
		if err != nil {
			p.onErr(pipelineerr.ExternalTransient("pipeline", err))
		} else {
			p.lapProc.Seed(state.SessionID, laps)
		}
	} else {
		p.lapProc.Seed(state.SessionID, nil)
	}

	p.broadcaster.Reset(p.ctx, p.cfg.EventID, state, cars)
}

// onLapCompleted is the lap processor's completion callback. It
// runs on whatever goroutine flushed the lap (the sweep loop, a fast-path
// pit flush, or OnSessionChange) and must not touch session state directly;
// posting back through Submit keeps every mutation on the single consumer.
func (p *Pipeline) onLapCompleted(snapshot model.CarLapSnapshot) {
	completed := model.LapCompleted{
		CarNumber: snapshot.Position.Number,
		Class:     snapshot.Position.Class,
		LapNumber: snapshot.LapNumber,
	}
	payload, err := json.Marshal(completed)
	if err != nil {
		p.onErr(pipelineerr.Deserialize("pipeline", err))
		return
	}
	msg := model.TimingMessage{Type: model.MessageTypeLapCompleted, Data: payload, Timestamp: time.Now().UTC()}
	select {
	case p.input <- msg:
	case <-p.ctx.Done():
	}
	if p.lapDispatcher != nil {
		go func() {
			if err := p.lapDispatcher.DispatchLapCompleted(p.ctx, completed); err != nil {
				p.onErr(pipelineerr.ExternalTransient("event", err))
			}
		}()
	}
	if p.metricsEmitter != nil {
		_ = p.metricsEmitter.EmitGauge(p.ctx, metrics.LapsProcessed, 1)
	}
}

// onStaleSweep is the 1s periodic tick: it promotes any car
// that has dwelled past the pit dwell duration, then recomputes staleness
// for every car once the race is at least 3 laps old.
func (p *Pipeline) onStaleSweep(ctx context.Context) {
	now := time.Now().UTC()
	p.accumulate(p.pitProc.Tick(p.sessionCtx, now))

	state := p.sessionCtx.State()
	_, raceLap := p.sessionCtx.GetCurrentFlagAndLap()
	if raceLap < 3 {
		return
	}

	var stalePatches []model.CarPositionPatch
	var staleCount int
	for _, car := range p.sessionCtx.AllCars() {
		transition := p.flagTransition(car.Number, car.TrackFlag)
		totalTime := model.ParseLapTime(car.TotalTime)
		lastLapTime := model.ParseLapTime(car.LastLapTime)
		stale := enrich.StaleCar(car.TrackFlag, raceLap, car.LastLapCompleted, state.RunningRaceTime, totalTime, lastLapTime, transition, p.cfg.StaleCarPctOver)
		if stale == car.IsStale {
			if stale {
				staleCount++
			}
			continue
		}
		old := car
		updated := p.sessionCtx.Mutate(car.Number, func(c model.CarPosition) model.CarPosition {
			c.IsStale = stale
			return c
		})
		if cp := patch.DiffCar(old, updated); cp != nil {
			stalePatches = append(stalePatches, *cp)
		}
		if stale {
			staleCount++
		}
	}
	p.accumulate(model.PatchUpdates{CarPatches: stalePatches})
	if p.metricsEmitter != nil {
		_ = p.metricsEmitter.EmitGauge(ctx, metrics.StaleCarCount, float64(staleCount))
	}
}

// flagTransition tracks each car's previous track flag to classify the
// green<->yellow transitions enrich.StaleCar uses to pick its threshold.
// It is only ever called from the stale-sweep tick, which
// schedule.Ticker runs on a single dedicated goroutine, so no locking is
// needed here.
func (p *Pipeline) flagTransition(car string, current model.Flag) enrich.FlagTransition {
	prev, seen := p.prevFlag[car]
	p.prevFlag[car] = current
	if !seen {
		return enrich.FlagTransitionNone
	}
	switch {
	case prev == model.FlagGreen && current == model.FlagYellow:
		return enrich.FlagTransitionGreenToYellow
	case prev == model.FlagYellow && current == model.FlagGreen:
		return enrich.FlagTransitionYellowToGreen
	default:
		return enrich.FlagTransitionNone
	}
}

// onControlLogPoll is the 15s periodic tick: it refreshes
// the control-log cache and equalizes penaltyWarnings/penaltyLaps on every
// car whose control-log entries changed.
func (p *Pipeline) onControlLogPoll(ctx context.Context) {
	if p.controlSource == nil {
		return
	}
	start := time.Now()
	changed, err := p.controlCache.Refresh(ctx, p.controlSource)
	if p.metricsEmitter != nil {
		_ = p.metricsEmitter.EmitGauge(ctx, metrics.ControlLogPollLatency, float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		p.onErr(pipelineerr.ExternalTransient("controllog", err))
		return
	}
	if len(changed) == 0 {
		return
	}

	lookup := p.controlCache.PenaltyLookup()
	var patches []model.CarPositionPatch
	for _, car := range p.sessionCtx.AllCars() {
		key := strings.ToLower(car.Number)
		if !changed[key] {
			continue
		}
		warnings, laps := enrich.PenaltyFromControlLog(lookup, key)
		old := car
		updated := p.sessionCtx.Mutate(car.Number, func(c model.CarPosition) model.CarPosition {
			c.PenaltyWarnings = warnings
			c.PenaltyLaps = laps
			return c
		})
		if cp := patch.DiffCar(old, updated); cp != nil {
			patches = append(patches, *cp)
		}
	}
	p.accumulate(model.PatchUpdates{CarPatches: patches})
}

// CurrentSessionState implements api.SnapshotProvider and
// ws/subscribe.SnapshotProvider.
func (p *Pipeline) CurrentSessionState(eventID int64) (model.SessionState, bool) {
	if eventID != p.cfg.EventID {
		return model.SessionState{}, false
	}
	return p.sessionCtx.State(), true
}

// CurrentFullCarPatches implements api.SnapshotProvider and
// ws/subscribe.SnapshotProvider.
func (p *Pipeline) CurrentFullCarPatches(eventID int64) []model.CarPositionPatch {
	if eventID != p.cfg.EventID {
		return nil
	}
	cars := p.sessionCtx.AllCars()
	out := make([]model.CarPositionPatch, 0, len(cars))
	for _, c := range cars {
		out = append(out, patch.FullPatch(c))
	}
	return out
}

// ExportSessionArchive writes the durable archive blobs the names for
// one session: the full lap log and a competitor-metadata snapshot. It
// requires both an archive exporter and a lap-log store capable of
// listing records (store.DynamoStore satisfies both); callers typically
// invoke this from onSessionReset's caller or at shutdown.
func (p *Pipeline) ExportSessionArchive(ctx context.Context, sessionID int64) error {
	if p.archiveExporter == nil {
		return nil
	}
	lister, ok := p.lapLogStore.(interface {
		GetLapLogs(ctx context.Context, eventID, sessionID int64) ([]store.LapLogRecord, error)
	})
	if ok {
		records, err := lister.GetLapLogs(ctx, p.cfg.EventID, sessionID)
		if err != nil {
			return pipelineerr.ExternalTransient("archive", err)
		}
		data, err := json.Marshal(records)
		if err != nil {
			return pipelineerr.Deserialize("archive", err)
		}
		if err := p.archiveExporter.ExportLapLog(ctx, p.cfg.EventID, sessionID, data); err != nil {
			return pipelineerr.ExternalTransient("archive", err)
		}
	}

	cars := p.sessionCtx.AllCars()
	data, err := json.Marshal(cars)
	if err != nil {
		return pipelineerr.Deserialize("archive", err)
	}
	if err := p.archiveExporter.ExportCompetitorMetadata(ctx, p.cfg.EventID, data); err != nil {
		return pipelineerr.ExternalTransient("archive", err)
	}
	return nil
}

package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu    sync.Mutex
	calls []fakeBroadcastCall
}

type fakeBroadcastCall struct {
	eventID    int64
	actionType string
	payload    any
}

func (f *fakePublisher) Broadcast(_ context.Context, eventID int64, actionType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeBroadcastCall{eventID: eventID, actionType: actionType, payload: payload})
	return nil
}

func (f *fakePublisher) snapshot() []fakeBroadcastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeBroadcastCall(nil), f.calls...)
}

type fakeSnapshotSink struct {
	mu  sync.Mutex
	rec *store.SessionSnapshotRecord
}

func (f *fakeSnapshotSink) PutSessionSnapshot(_ context.Context, record store.SessionSnapshotRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec = &record
	return nil
}

func (f *fakeSnapshotSink) snapshot() *store.SessionSnapshotRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestPipeline_RMonitorMessageProducesCarSnapshotAndBroadcast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EventID = 42
	cfg.PublishDebounce = 5 * time.Millisecond

	pub := &fakePublisher{}
	p := New(cfg, pub, nil, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	msg := model.TimingMessage{
		Type: model.MessageTypeRMonitor,
		Data: []byte("$F,\"1\",\"Race\"\n$A,\"1\",\"GT3\"\n$B,\"12\",\"5\",\"1\",\"Driver One\"\n$C,\"1\",\"12\",\"1\",\"00:10:00.000\",\"00:01:30.123\",\"00:01:30.123\",\"1\"\n"),
	}
	require.NoError(t, p.Submit(ctx, msg))

	waitFor(t, time.Second, func() bool {
		state, ok := p.CurrentSessionState(42)
		return ok && state.SessionID == 1
	})

	waitFor(t, time.Second, func() bool {
		return len(pub.snapshot()) > 0
	})

	patches := p.CurrentFullCarPatches(42)
	require.NotEmpty(t, patches)
	assert.Equal(t, "12", patches[0].Number)
}

func TestPipeline_CurrentSessionState_WrongEventIDReturnsFalse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EventID = 1
	p := New(cfg, nil, nil, nil, nil, nil, nil)

	_, ok := p.CurrentSessionState(999)
	assert.False(t, ok)
	assert.Nil(t, p.CurrentFullCarPatches(999))
}

func TestPipeline_LapCompletionFlowsThroughToFastestPaceEnrichment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EventID = 7
	cfg.PitWait = 5 * time.Millisecond
	cfg.PublishDebounce = 5 * time.Millisecond
	// two laps of history are recorded for car 12 and one for car 14, so
	// a two-lap window leaves car 12 the only car with a pace average.
	cfg.PaceWindow = 2

	pub := &fakePublisher{}
	p := New(cfg, pub, nil, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	seed := model.TimingMessage{
		Type: model.MessageTypeRMonitor,
		Data: []byte("$A,\"1\",\"GT3\"\n" +
			"$B,\"12\",\"5\",\"1\",\"Driver One\"\n" +
			"$B,\"14\",\"6\",\"2\",\"Driver Two\"\n" +
			"$C,\"1\",\"12\",\"1\",\"00:10:00.000\",\"00:01:30.123\",\"00:01:30.123\",\"1\"\n" +
			"$C,\"2\",\"14\",\"1\",\"00:10:05.000\",\"00:01:35.123\",\"00:01:35.123\",\"2\"\n"),
	}
	require.NoError(t, p.Submit(ctx, seed))

	waitFor(t, time.Second, func() bool {
		car, ok := p.sessionCtx.GetCarByNumber("12")
		return ok && car.LastLapCompleted == 1
	})

	lap := model.TimingMessage{
		Type: model.MessageTypeRMonitor,
		Data: []byte("$C,\"1\",\"12\",\"2\",\"00:11:30.000\",\"00:01:30.000\",\"00:03:00.123\",\"1\"\n"),
	}
	require.NoError(t, p.Submit(ctx, lap))

	waitFor(t, 2*time.Second, func() bool {
		car, ok := p.sessionCtx.GetCarByNumber("12")
		return ok && car.LastLapCompleted == 2
	})

	// the lap sweep (cfg.PitWait) durably records the lap and posts a
	// synthetic lap-completed message; fastest-pace enrichment only runs
	// once that round-trip has happened, so give it time.
	waitFor(t, 2*time.Second, func() bool {
		car, ok := p.sessionCtx.GetCarByNumber("12")
		return ok && car.InClassFastestAveragePace
	})
}

func TestPipeline_WithSnapshotSink_PersistsFullStateOnPublish(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EventID = 99
	cfg.PublishDebounce = 5 * time.Millisecond

	pub := &fakePublisher{}
	sink := &fakeSnapshotSink{}
	p := New(cfg, pub, nil, nil, nil, nil, nil, WithSnapshotSink(sink))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	msg := model.TimingMessage{
		Type: model.MessageTypeRMonitor,
		Data: []byte("$F,\"1\",\"Race\"\n$A,\"1\",\"GT3\"\n$B,\"12\",\"5\",\"1\",\"Driver One\"\n$C,\"1\",\"12\",\"1\",\"00:10:00.000\",\"00:01:30.123\",\"00:01:30.123\",\"1\"\n"),
	}
	require.NoError(t, p.Submit(ctx, msg))

	waitFor(t, time.Second, func() bool {
		return sink.snapshot() != nil
	})

	record := sink.snapshot()
	assert.Equal(t, int64(99), record.EventID)
	assert.Contains(t, string(record.SessionStateJSON), `"SessionID":1`)
	assert.Contains(t, string(record.CarPatchesJSON), `"12"`)
}

package x2

import (
	"testing"
	"time"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/pit"
	"github.com/racetiming/pipeline/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	byTransponder map[uint64]string
}

func (f *fakeResolver) CarByTransponder(id uint64) (string, bool) {
	car, ok := f.byTransponder[id]
	return car, ok
}

func TestParseLoopLine(t *testing.T) {
	now := time.Now()
	ev, ok := ParseLoopLine("555,pit-in,0", now)
	require.True(t, ok)
	assert.EqualValues(t, 555, ev.TransponderID)
	assert.Equal(t, LoopPitIn, ev.Loop)
	assert.Equal(t, now, ev.Timestamp, "a zero timestamp field falls back to the supplied now")

	_, ok = ParseLoopLine("not-enough-fields", now)
	assert.False(t, ok)
}

func TestProcessor_ProcessLoopEvents_SkipsUnregisteredTransponder(t *testing.T) {
	ctx := session.New(1)
	resolver := &fakeResolver{byTransponder: map[uint64]string{}}
	p := New(resolver, pit.New(nil))

	updates := p.ProcessLoopEvents(ctx, []LoopEvent{{TransponderID: 1, Loop: LoopPitIn, Timestamp: time.Now()}})
	assert.Empty(t, updates.CarPatches)
}

func TestProcessor_ProcessLoopEvents_DrivesPitProcessor(t *testing.T) {
	ctx := session.New(1)
	ctx.UpdateCars([]model.CarPosition{{Number: "42"}})
	resolver := &fakeResolver{byTransponder: map[uint64]string{555: "42"}}
	pitProc := pit.New(nil)
	p := New(resolver, pitProc)

	now := time.Now()
	updates := p.ProcessLoopEvents(ctx, []LoopEvent{{TransponderID: 555, Loop: LoopPitIn, Timestamp: now}})
	require.Len(t, updates.CarPatches, 1)
	assert.Equal(t, pit.PitEntered, pitProc.CurrentState("42"))

	updates = p.ProcessLoopEvents(ctx, []LoopEvent{{TransponderID: 555, Loop: LoopPitOut, Timestamp: now}})
	require.Len(t, updates.CarPatches, 1)
	assert.Equal(t, pit.PitExited, pitProc.CurrentState("42"))

	// Start/finish only matters while pit_exited; a car already on_track
	// crossing start/finish should be a no-op for the pit processor.
	updates = p.ProcessLoopEvents(ctx, []LoopEvent{{TransponderID: 555, Loop: LoopStartFinish, Timestamp: now}})
	assert.Len(t, updates.CarPatches, 1)
	assert.Equal(t, pit.OnTrack, pitProc.CurrentState("42"))

	updates = p.ProcessLoopEvents(ctx, []LoopEvent{{TransponderID: 555, Loop: LoopStartFinish, Timestamp: now}})
	assert.Empty(t, updates.CarPatches, "crossing start/finish while already on_track changes nothing")
}

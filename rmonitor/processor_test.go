package rmonitor

import (
	"testing"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessor_ProcessBatch_FirstObservationIsFullPatch(t *testing.T) {
	ctx := session.New(1)
	p := New()

	res := p.ProcessBatch(ctx, []string{
		`$F,"11","Feature Race"`,
		`$G,"green"`,
		`$B,"42","999","GT3","Jane Driver"`,
		`$C,"1","42","0","","","",""`,
	})

	require.False(t, res.Reset)
	require.Len(t, res.Patches.CarPatches, 1)
	assert.Equal(t, "42", res.Patches.CarPatches[0].Number)

	car, ok := ctx.GetCarByNumber("42")
	require.True(t, ok)
	assert.Equal(t, "GT3", car.Class)
	assert.EqualValues(t, 999, car.TransponderID)
	assert.Equal(t, model.FlagGreen, car.TrackFlag)
}

func TestProcessor_ProcessBatch_LapMonotonicity(t *testing.T) {
	ctx := session.New(1)
	p := New()

	p.ProcessBatch(ctx, []string{
		`$F,"11","Race"`,
		`$B,"42","1","",""`,
		`$C,"1","42","3","00:05:00.000","00:01:29.000","00:01:28.000","1"`,
	})
	car, _ := ctx.GetCarByNumber("42")
	require.Equal(t, 3, car.LastLapCompleted)

	// A stale/out-of-order sample claiming lap 2 must not move the counter
	// backwards.
	p.ProcessBatch(ctx, []string{
		`$C,"1","42","2","00:03:20.000","00:01:30.000","00:01:28.000","1"`,
	})
	car, _ = ctx.GetCarByNumber("42")
	assert.Equal(t, 3, car.LastLapCompleted, "lap counter must be monotonically non-decreasing")
}

func TestProcessor_ProcessBatch_LapZeroGridSnapshotRequiresChange(t *testing.T) {
	ctx := session.New(1)
	p := New()

	p.ProcessBatch(ctx, []string{
		`$F,"11","Race"`,
		`$B,"77","1","",""`,
		`$C,"1","77","0","","","",""`,
	})
	first, _ := ctx.GetCarByNumber("77")
	require.Equal(t, 0, first.LastLapCompleted)

	// Identical repeat of the grid snapshot: no further state change, so a
	// second ProcessBatch call should produce no car patch for "77".
	res := p.ProcessBatch(ctx, []string{
		`$C,"1","77","0","","","",""`,
	})
	for _, cp := range res.Patches.CarPatches {
		assert.NotEqual(t, "77", cp.Number, "an unchanged lap-0 resend must not emit a patch")
	}
}

func TestProcessor_ProcessBatch_SessionIDChangeEmitsReset(t *testing.T) {
	ctx := session.New(1)
	p := New()

	p.ProcessBatch(ctx, []string{
		`$F,"10","Practice"`,
		`$B,"5","1","",""`,
		`$C,"1","5","2","","","",""`,
	})

	res := p.ProcessBatch(ctx, []string{
		`$F,"11","Race"`,
	})
	assert.True(t, res.Reset)

	_, ok := ctx.GetCarByNumber("5")
	assert.False(t, ok, "reset must clear per-car state from the prior session")
}

func TestProcessor_CarByTransponder(t *testing.T) {
	ctx := session.New(1)
	p := New()
	p.ProcessBatch(ctx, []string{
		`$F,"1","Race"`,
		`$B,"9","555","",""`,
	})

	car, ok := p.CarByTransponder(555)
	require.True(t, ok)
	assert.Equal(t, "9", car)

	_, ok = p.CarByTransponder(1)
	assert.False(t, ok)
}

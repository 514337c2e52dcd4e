package history

import (
	"context"
	"testing"

	"github.com/racetiming/pipeline/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_AddLap_TrimsToMaxSize(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		err := s.AddLap(ctx, 1, "42", model.CarLapSnapshot{LapNumber: i}, DefaultSize)
		require.NoError(t, err)
	}

	laps, err := s.GetLaps(ctx, 1, "42")
	require.NoError(t, err)
	require.Len(t, laps, DefaultSize)
	assert.Equal(t, 7, laps[0].LapNumber, "most recent lap first")
	assert.Equal(t, 3, laps[len(laps)-1].LapNumber)
}

func TestInMemory_GetLaps_ReturnsDeepCopies(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	snapshot := model.CarLapSnapshot{
		LapNumber: 1,
		Position:  model.CarPosition{Number: "7", CompletedSections: []int{1, 2}},
	}
	require.NoError(t, s.AddLap(ctx, 1, "7", snapshot, DefaultSize))

	laps, err := s.GetLaps(ctx, 1, "7")
	require.NoError(t, err)
	laps[0].Position.CompletedSections[0] = 99

	again, _ := s.GetLaps(ctx, 1, "7")
	assert.Equal(t, 1, again[0].Position.CompletedSections[0])
}

func TestInMemory_GetLaps_SeparatesCarsAndEvents(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	require.NoError(t, s.AddLap(ctx, 1, "7", model.CarLapSnapshot{LapNumber: 1}, DefaultSize))
	require.NoError(t, s.AddLap(ctx, 1, "8", model.CarLapSnapshot{LapNumber: 2}, DefaultSize))
	require.NoError(t, s.AddLap(ctx, 2, "7", model.CarLapSnapshot{LapNumber: 3}, DefaultSize))

	car7Event1, _ := s.GetLaps(ctx, 1, "7")
	require.Len(t, car7Event1, 1)
	assert.Equal(t, 1, car7Event1[0].LapNumber)

	car7Event2, _ := s.GetLaps(ctx, 2, "7")
	require.Len(t, car7Event2, 1)
	assert.Equal(t, 3, car7Event2[0].LapNumber)
}

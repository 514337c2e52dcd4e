package trackflag

import (
	"context"
	"testing"
	"time"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePersister struct {
	replaced []model.FlagDuration
	err      error
}

func (f *fakePersister) ReplaceFlagLog(_ context.Context, _, _ int64, entries []model.FlagDuration) error {
	f.replaced = entries
	return f.err
}

func TestProcessor_ProcessFlags_AppliesWholeListAndPersists(t *testing.T) {
	ctx := session.New(1)
	persister := &fakePersister{}
	p := New(persister)

	list := []model.FlagDuration{
		{Flag: model.FlagGreen, StartTime: time.Unix(0, 0)},
	}
	patch, changed, err := p.ProcessFlags(context.Background(), ctx, 1, list)
	require.NoError(t, err)
	require.True(t, changed)
	require.NotNil(t, patch.CurrentFlag)
	assert.Equal(t, model.FlagGreen, *patch.CurrentFlag)
	assert.Equal(t, list, persister.replaced)
}

func TestProcessor_ProcessFlags_NoChangeReturnsFalse(t *testing.T) {
	ctx := session.New(1)
	p := New(nil)

	list := []model.FlagDuration{{Flag: model.FlagGreen, StartTime: time.Unix(0, 0)}}
	_, changed, _ := p.ProcessFlags(context.Background(), ctx, 1, list)
	require.True(t, changed)

	_, changed, _ = p.ProcessFlags(context.Background(), ctx, 1, list)
	assert.False(t, changed, "an identical resend of the flag list must not re-emit a patch")
}

func TestValidate_AtMostOneOpenInterval(t *testing.T) {
	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Minute)

	ok := Validate([]model.FlagDuration{
		{Flag: model.FlagGreen, StartTime: t0, EndTime: &t1},
		{Flag: model.FlagYellow, StartTime: t1},
	})
	assert.True(t, ok)

	bad := Validate([]model.FlagDuration{
		{Flag: model.FlagGreen, StartTime: t0},
		{Flag: model.FlagYellow, StartTime: t1},
	})
	assert.False(t, bad, "two open intervals violates invariant 6")
}

func TestValidate_RequiresTimeOrder(t *testing.T) {
	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Minute)

	ok := Validate([]model.FlagDuration{
		{Flag: model.FlagYellow, StartTime: t1},
		{Flag: model.FlagGreen, StartTime: t0},
	})
	assert.False(t, ok)
}

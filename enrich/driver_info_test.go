package enrich

import (
	"testing"

	"github.com/racetiming/pipeline/model"
	"github.com/stretchr/testify/assert"
)

type fakeDriverLookup struct {
	byCar         map[string]model.DriverInfo
	byTransponder map[uint64]model.DriverInfo
}

func (f fakeDriverLookup) ByCarNumber(_ int64, car string) (model.DriverInfo, bool) {
	info, ok := f.byCar[car]
	return info, ok
}

func (f fakeDriverLookup) ByTransponderID(_ int64, transponderID uint64) (model.DriverInfo, bool) {
	info, ok := f.byTransponder[transponderID]
	return info, ok
}

func TestResolveDriverInfo_MatchesByCarNumberFirst(t *testing.T) {
	lookup := fakeDriverLookup{
		byCar:         map[string]model.DriverInfo{"42": {DriverID: 1, DriverName: "A"}},
		byTransponder: map[uint64]model.DriverInfo{99: {DriverID: 2, DriverName: "B"}},
	}
	result, ok := ResolveDriverInfo(lookup, 1, "42", 99, false)
	assert.True(t, ok)
	assert.Equal(t, int64(1), result.DriverID)
	assert.Equal(t, "A", result.DriverName)
}

func TestResolveDriverInfo_FallsBackToTransponderID(t *testing.T) {
	lookup := fakeDriverLookup{
		byCar:         map[string]model.DriverInfo{},
		byTransponder: map[uint64]model.DriverInfo{99: {DriverID: 2, DriverName: "B"}},
	}
	result, ok := ResolveDriverInfo(lookup, 1, "42", 99, false)
	assert.True(t, ok)
	assert.Equal(t, int64(2), result.DriverID)
}

func TestResolveDriverInfo_NoMatchAndNotFullRefreshLeavesUntouched(t *testing.T) {
	lookup := fakeDriverLookup{}
	_, ok := ResolveDriverInfo(lookup, 1, "42", 0, false)
	assert.False(t, ok)
}

func TestResolveDriverInfo_NoMatchFullRefreshClears(t *testing.T) {
	lookup := fakeDriverLookup{}
	result, ok := ResolveDriverInfo(lookup, 1, "42", 0, true)
	assert.True(t, ok)
	assert.Equal(t, DriverInfoResult{}, result)
}

package enrich

import (
	"testing"

	"github.com/racetiming/pipeline/model"
	"github.com/stretchr/testify/assert"
)

func TestPenaltyFromControlLog_CarInLookup(t *testing.T) {
	lookup := map[string]model.CarPenalty{
		"22": {Warnings: 0, Laps: 1},
	}
	warnings, laps := PenaltyFromControlLog(lookup, "22")
	assert.Equal(t, 0, warnings)
	assert.Equal(t, 1, laps)
}

func TestPenaltyFromControlLog_CarAbsentClearsToZero(t *testing.T) {
	lookup := map[string]model.CarPenalty{
		"22": {Warnings: 2, Laps: 1},
	}
	warnings, laps := PenaltyFromControlLog(lookup, "11")
	assert.Equal(t, 0, warnings)
	assert.Equal(t, 0, laps)
}

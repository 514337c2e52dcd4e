package enrich

import "github.com/racetiming/pipeline/model"

// DriverLookup is the shared cache contract for driver metadata, queried
// read-only by this enricher.
type DriverLookup interface {
	ByCarNumber(eventID int64, car string) (model.DriverInfo, bool)
	ByTransponderID(eventID int64, transponderID uint64) (model.DriverInfo, bool)
}

// DriverInfoResult is the resolved driver identity for a car, or the
// cleared zero value when a full refresh found no cache hit.
type DriverInfoResult struct {
	DriverID   int64
	DriverName string
}

// ResolveDriverInfo matches a car to driver metadata, first by car number
// then by transponder ID. fullRefresh controls whether a miss
// clears existing driver fields (true) or leaves them untouched (false).
func ResolveDriverInfo(lookup DriverLookup, eventID int64, car string, transponderID uint64, fullRefresh bool) (DriverInfoResult, bool) {
	if info, ok := lookup.ByCarNumber(eventID, car); ok {
		return DriverInfoResult{DriverID: info.DriverID, DriverName: info.DriverName}, true
	}
	if transponderID != 0 {
		if info, ok := lookup.ByTransponderID(eventID, transponderID); ok {
			return DriverInfoResult{DriverID: info.DriverID, DriverName: info.DriverName}, true
		}
	}
	if fullRefresh {
		return DriverInfoResult{}, true
	}
	return DriverInfoResult{}, false
}

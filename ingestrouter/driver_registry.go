package ingestrouter

import (
	"sync"

	"github.com/racetiming/pipeline/model"
)

// driverRegistry is the in-memory shared cache the driver-info enricher
// reads from, populated by "driver" TimingMessages.
// Keyed per event since one router instance serves exactly one event.
type driverRegistry struct {
	mu            sync.RWMutex
	byCarNumber   map[string]model.DriverInfo
	byTransponder map[uint64]model.DriverInfo
}

func newDriverRegistry() *driverRegistry {
	return &driverRegistry{
		byCarNumber:   make(map[string]model.DriverInfo),
		byTransponder: make(map[uint64]model.DriverInfo),
	}
}

func (r *driverRegistry) Register(info model.DriverInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCarNumber[info.CarNumber] = info
	if info.TransponderID != 0 {
		r.byTransponder[info.TransponderID] = info
	}
}

func (r *driverRegistry) ByCarNumber(_ int64, car string) (model.DriverInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byCarNumber[car]
	return info, ok
}

func (r *driverRegistry) ByTransponderID(_ int64, transponderID uint64) (model.DriverInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byTransponder[transponderID]
	return info, ok
}

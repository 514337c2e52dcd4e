// Package history implements the car lap history: a rolling window of
// the last N lap snapshots per (eventId, carNumber), most-recent first.
package history

import (
	"context"
	"sync"

	"github.com/racetiming/pipeline/model"
)

const DefaultSize = 5

// Store is the shared key/value backing contract: push-front
// with trim-to-N, and read-back. A real implementation is backed by an
// external shared cache; InMemory below satisfies the same contract for
// tests and single-instance deployments.
type Store interface {
	AddLap(ctx context.Context, eventID int64, car string, snapshot model.CarLapSnapshot, maxSize int) error
	GetLaps(ctx context.Context, eventID int64, car string) ([]model.CarLapSnapshot, error)
}

// InMemory is a Store backed by an in-process map, guarded by a mutex. It
// has identical push-front/trim semantics to the external shared-cache
// implementation this package also supports.
type InMemory struct {
	mu   sync.Mutex
	laps map[string][]model.CarLapSnapshot
}

func NewInMemory() *InMemory {
	return &InMemory{laps: make(map[string][]model.CarLapSnapshot)}
}

func key(eventID int64, car string) string {
	return carKey(eventID, car)
}

func (s *InMemory) AddLap(_ context.Context, eventID int64, car string, snapshot model.CarLapSnapshot, maxSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(eventID, car)
	snapshot.Position = snapshot.Position.Clone()
	entries := append([]model.CarLapSnapshot{snapshot}, s.laps[k]...)
	if len(entries) > maxSize {
		entries = entries[:maxSize]
	}
	s.laps[k] = entries
	return nil
}

func (s *InMemory) GetLaps(_ context.Context, eventID int64, car string) ([]model.CarLapSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.laps[key(eventID, car)]
	out := make([]model.CarLapSnapshot, len(entries))
	for i, e := range entries {
		out[i] = e
		out[i].Position = e.Position.Clone()
	}
	return out, nil
}

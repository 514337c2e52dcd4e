package controllog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/racetiming/pipeline/model"
)

// Config carries the control-log polling parameters.
type Config struct {
	Kind                Kind
	MinTimestampYear    int
	MaxMissedTimestamps int
}

func DefaultConfig() Config {
	return Config{Kind: KindWrlSheet, MinTimestampYear: 2025, MaxMissedTimestamps: 2}
}

// Cache is the durable, periodically-refreshed control-log snapshot.
// One reader (the pipeline) and one writer (the scheduler-driven refresh);
// protected by a single mutex covering both the bucketed entry map and the
// derived penalty lookup.
type Cache struct {
	mu sync.RWMutex

	byCar      map[string][]model.ControlLogEntry // keyed by lower-cased car number
	unassigned []model.ControlLogEntry
	penalties  map[string]model.CarPenalty

	cfg Config
}

func New(cfg Config) *Cache {
	return &Cache{
		byCar:     make(map[string][]model.ControlLogEntry),
		penalties: make(map[string]model.CarPenalty),
		cfg:       cfg,
	}
}

// Refresh pulls the source, reparses, rebuckets by car, recomputes the
// penalty lookup, and returns the set of car numbers whose entries
// changed.
func (c *Cache) Refresh(ctx context.Context, source Source) (map[string]bool, error) {
	rows, err := source.FetchRows(ctx)
	if err != nil {
		return nil, err
	}
	entries := ParseRows(rows, c.cfg.MinTimestampYear, c.cfg.MaxMissedTimestamps)

	newByCar := make(map[string][]model.ControlLogEntry)
	var newUnassigned []model.ControlLogEntry
	for _, e := range entries {
		assigned := false
		if e.Car1 != "" {
			key := strings.ToLower(e.Car1)
			newByCar[key] = append(newByCar[key], e)
			assigned = true
		}
		if e.Car2 != "" {
			key := strings.ToLower(e.Car2)
			newByCar[key] = append(newByCar[key], e)
			assigned = true
		}
		if !assigned {
			newUnassigned = append(newUnassigned, e)
		}
	}

	newPenalties := Rollup(entries)

	c.mu.Lock()
	changed := getChangedCars(c.byCar, newByCar)
	c.byCar = newByCar
	c.unassigned = newUnassigned
	c.penalties = newPenalties
	c.mu.Unlock()

	return changed, nil
}

// getChangedCars reports which cars' entries changed: a car's entries
// changed if the bucket length differs or any entry (matched by OrderID)
// differs. A car present in both old and new with differing entries is
// visited twice; downstream recomputation is idempotent so this is only a
// minor inefficiency, left as is.
func getChangedCars(old, new map[string][]model.ControlLogEntry) map[string]bool {
	changed := make(map[string]bool)

	for car, oldEntries := range old {
		newEntries, ok := new[car]
		if !ok || !entrySlicesEqual(oldEntries, newEntries) {
			changed[car] = true
		}
	}
	for car, newEntries := range new {
		oldEntries, ok := old[car]
		if !ok || !entrySlicesEqual(oldEntries, newEntries) {
			changed[car] = true
		}
	}

	return changed
}

func entrySlicesEqual(a, b []model.ControlLogEntry) bool {
	if len(a) != len(b) {
		return false
	}
	byOrder := make(map[int]model.ControlLogEntry, len(a))
	for _, e := range a {
		byOrder[e.OrderID] = e
	}
	for _, e := range b {
		prior, ok := byOrder[e.OrderID]
		if !ok || prior != e {
			return false
		}
	}
	return true
}

// PenaltyLookup returns a defensive copy of the current car -> CarPenalty
// map, consumed read-only by the PenaltyFromControlLog enricher.
func (c *Cache) PenaltyLookup() map[string]model.CarPenalty {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]model.CarPenalty, len(c.penalties))
	for k, v := range c.penalties {
		out[k] = v
	}
	return out
}

// EntriesForCar returns a defensive copy of the raw control-log entries
// attributed to a car (lower-cased), for UI/audit use.
func (c *Cache) EntriesForCar(car string) []model.ControlLogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := c.byCar[strings.ToLower(car)]
	out := append([]model.ControlLogEntry(nil), entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// Package store implements the durable persistence collaborators:
// the lap-log append stream, the flag-log replace table, the
// car-last-lap resume table, and the subscriber connection registry backing
// the output broadcaster's fanout.
package store

import (
	"errors"
	"time"
)

// ErrEntityAlreadyExists is returned when an insert collides with an existing
// idempotency key. Callers that only need at-least-once semantics (lap log
// appends) treat it as success.
var ErrEntityAlreadyExists = errors.New("entity already exists")

// LapLogRecord is an append-only record of a completed lap, keyed for
// idempotent dedupe by (EventID, SessionID, Car, LapNumber)
type LapLogRecord struct {
	EventID      int64
	SessionID    int64
	Car          string
	LapNumber    int
	Flag         string
	Timestamp    time.Time
	SnapshotJSON []byte
}

// FlagLogEntry mirrors model.FlagDuration for persistence; the flag
// processor replaces the whole list on every update.
type FlagLogEntry struct {
	Flag      string
	StartTime time.Time
	EndTime   *time.Time
}

// CarLastLap is the resume checkpoint read by the lap processor on session
// start.
type CarLastLap struct {
	Car       string
	LastLap   int
}

// SubscriberConnection is a live WebSocket (or equivalent) subscriber
// registered against one event, used by the output broadcaster for fanout.
type SubscriberConnection struct {
	EventID      int64
	ConnectionID string
	ConnectedAt  time.Time
}

// CarLapHistoryRecord is the shared-cache-backed rolling lap window for one
// car, persisted as a single JSON-encoded list so the whole
// window is read and replaced in one round trip.
type CarLapHistoryRecord struct {
	EventID  int64
	Car      string
	SnapshotsJSON []byte
}

// SessionSnapshotRecord is the last-published full state for an event,
// written on every debounced publish so a read-only replica process (the
// snapshot REST API) can serve CurrentSessionState/CurrentFullCarPatches
// without holding its own in-memory pipeline.
type SessionSnapshotRecord struct {
	EventID       int64
	SessionStateJSON []byte
	CarPatchesJSON   []byte
}

package pipeline

import (
	"context"
	"errors"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/store"
)

// LapLogStore is the subset of store.DynamoStore the pipeline's lap
// processor writes through: a durable append for every completed lap plus
// the resume checkpoint read back on session start.
type LapLogStore interface {
	AppendLapLog(ctx context.Context, record store.LapLogRecord) error
	UpsertCarLastLap(ctx context.Context, eventID, sessionID int64, car string, lastLap int) error
}

// LastLapStore is the read side of the car-last-lap resume checkpoint,
// consulted once on session start.
type LastLapStore interface {
	GetCarLastLaps(ctx context.Context, eventID, sessionID int64) (map[string]int, error)
}

// SnapshotSink receives the last-published full state on every debounced
// publish. It lets a read-only replica process (the snapshot REST API)
// serve reads without holding its own in-memory pipeline. store.DynamoStore
// satisfies this; it is optional and a write failure is only logged.
type SnapshotSink interface {
	PutSessionSnapshot(ctx context.Context, record store.SessionSnapshotRecord) error
}

// lapRecordSink adapts lap.RecordSink's model.CarLapLog shape onto the
// durable store's store.LapLogRecord shape, and piggybacks the car-last-lap
// checkpoint write onto every successful append so a restarted pipeline can
// resume without re-emitting already-logged laps.
type lapRecordSink struct {
	store LapLogStore
}

func newLapRecordSink(s LapLogStore) *lapRecordSink {
	return &lapRecordSink{store: s}
}

func (s *lapRecordSink) AppendLapLog(ctx context.Context, record model.CarLapLog) error {
	err := s.store.AppendLapLog(ctx, store.LapLogRecord{
		EventID:      record.EventID,
		SessionID:    record.SessionID,
		Car:          record.Car,
		LapNumber:    record.LapNumber,
		Flag:         string(record.Flag),
		Timestamp:    record.Timestamp,
		SnapshotJSON: record.SnapshotJSON,
	})
	if err != nil && !errors.Is(err, store.ErrEntityAlreadyExists) {
		return err
	}
	return s.store.UpsertCarLastLap(ctx, record.EventID, record.SessionID, record.Car, record.LapNumber)
}

package main

import (
	"context"
	"encoding/json"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/store"
)

// SnapshotStore is the read side of the durable snapshot sink a worker
// process writes through on every debounced publish (pipeline.SnapshotSink).
// A replica API process that never runs its own ingestion reads through
// this instead of holding an in-memory Pipeline.
type SnapshotStore interface {
	GetSessionSnapshot(ctx context.Context, eventID int64) (*store.SessionSnapshotRecord, error)
}

// dynamoSnapshotProvider implements api.SnapshotProvider by decoding the
// JSON blobs a Pipeline's saveSnapshot wrote to the durable store. It
// always hits the store rather than caching: this process is specifically
// the one without its own live pipeline, so staleness is bounded only by
// the worker's publish debounce.
type dynamoSnapshotProvider struct {
	store SnapshotStore
}

func newSnapshotProvider(s SnapshotStore) *dynamoSnapshotProvider {
	return &dynamoSnapshotProvider{store: s}
}

func (p *dynamoSnapshotProvider) CurrentSessionState(eventID int64) (model.SessionState, bool) {
	record, err := p.store.GetSessionSnapshot(context.Background(), eventID)
	if err != nil || record == nil {
		return model.SessionState{}, false
	}
	var state model.SessionState
	if err := json.Unmarshal(record.SessionStateJSON, &state); err != nil {
		return model.SessionState{}, false
	}
	return state, true
}

func (p *dynamoSnapshotProvider) CurrentFullCarPatches(eventID int64) []model.CarPositionPatch {
	record, err := p.store.GetSessionSnapshot(context.Background(), eventID)
	if err != nil || record == nil {
		return nil
	}
	var patches []model.CarPositionPatch
	if err := json.Unmarshal(record.CarPatchesJSON, &patches); err != nil {
		return nil
	}
	return patches
}

package main

import (
	"context"
	"encoding/json"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/store"
)

// SnapshotStore is the read side of the durable snapshot a race-timing-worker
// process writes on every debounced publish, used here to seed a freshly
// subscribed WebSocket connection (ws/subscribe.SnapshotProvider).
type SnapshotStore interface {
	GetSessionSnapshot(ctx context.Context, eventID int64) (*store.SessionSnapshotRecord, error)
}

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

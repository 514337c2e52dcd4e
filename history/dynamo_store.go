package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/store"
)

// dynamoHistoryClient is the subset of *store.DynamoStore this package
// needs, kept narrow so tests can supply a fake instead of a real client.
type dynamoHistoryClient interface {
	PutCarLapHistory(ctx context.Context, record store.CarLapHistoryRecord) error
	GetCarLapHistory(ctx context.Context, eventID int64, car string) (*store.CarLapHistoryRecord, error)
}

// DynamoBackend is the shared-store-backed implementation of Store, on the
// same DynamoDB table the rest of the persistence layer uses: the whole
// rolling window is round-tripped as one JSON-encoded blob per
// (eventId, car), which matches the push-front/trim-to-N contract since
// this pipeline is the sole writer of its own event's keys.
type DynamoBackend struct {
	client dynamoHistoryClient
}

func NewDynamoBackend(client dynamoHistoryClient) *DynamoBackend {
	return &DynamoBackend{client: client}
}

func (d *DynamoBackend) AddLap(ctx context.Context, eventID int64, car string, snapshot model.CarLapSnapshot, maxSize int) error {
	existing, err := d.GetLaps(ctx, eventID, car)
	if err != nil {
		return err
	}

	snapshot.Position = snapshot.Position.Clone()
	entries := append([]model.CarLapSnapshot{snapshot}, existing...)
	if len(entries) > maxSize {
		entries = entries[:maxSize]
	}

	encoded, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding lap history for car %s: %w", car, err)
	}

	return d.client.PutCarLapHistory(ctx, store.CarLapHistoryRecord{EventID: eventID, Car: car, SnapshotsJSON: encoded})
}

func (d *DynamoBackend) GetLaps(ctx context.Context, eventID int64, car string) ([]model.CarLapSnapshot, error) {
	record, err := d.client.GetCarLapHistory(ctx, eventID, car)
	if err != nil {
		return nil, err
	}
	if record == nil || len(record.SnapshotsJSON) == 0 {
		return nil, nil
	}

	var entries []model.CarLapSnapshot
	if err := json.Unmarshal(record.SnapshotsJSON, &entries); err != nil {
		return nil, fmt.Errorf("decoding lap history for car %s: %w", car, err)
	}
	return entries, nil
}

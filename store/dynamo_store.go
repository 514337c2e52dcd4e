package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const connectionTTLDuration = 24 * time.Hour

// DynamoStore is the durable persistence adapter for the pipeline's external
// collaborators: the lap-log append stream, flag-log replace table,
// car-last-lap resume checkpoint, and subscriber connection registry.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
	now    func() time.Time
}

func NewDynamoStore(client *dynamodb.Client, table string) *DynamoStore {
	return &DynamoStore{
		client: client,
		table:  table,
		now:    time.Now,
	}
}

// AppendLapLog writes a lap-completion record. It is idempotent on
// (EventID, SessionID, Car, LapNumber); a duplicate write is reported as
// ErrEntityAlreadyExists, which callers treat as a successful no-op since
// lap-log delivery is only at-least-once.
func (s *DynamoStore) AppendLapLog(ctx context.Context, record LapLogRecord) error {
	model := lapLogModel{
		eventID:      record.EventID,
		sessionID:    record.SessionID,
		car:          record.Car,
		lapNumber:    record.LapNumber,
		flag:         record.Flag,
		timestamp:    record.Timestamp.Unix(),
		snapshotJSON: record.SnapshotJSON,
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                model.toAttributeMap(),
		ConditionExpression: aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": partitionKeyName,
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrEntityAlreadyExists
		}
		return err
	}
	return nil
}

// GetLapLogs returns every recorded lap for a session, used by downstream
// record-store consumers and archival export.
func (s *DynamoStore) GetLapLogs(ctx context.Context, eventID, sessionID int64) ([]LapLogRecord, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#pk = :pk AND begins_with(#sk, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": partitionKeyName,
			"#sk": sortKeyName,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, eventID)},
			":prefix": &types.AttributeValueMemberS{Value: fmt.Sprintf(lapLogQueryPrefixFormat, sessionID)},
		},
	})
	if err != nil {
		return nil, err
	}

	records := make([]LapLogRecord, 0, len(result.Items))
	for _, item := range result.Items {
		record, err := lapLogFromAttributeMap(eventID, item)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// ReplaceFlagLog overwrites the full flag-duration list for a session. The
// flag processor always sends the whole list, so this is a
// plain replace rather than an incremental merge.
func (s *DynamoStore) ReplaceFlagLog(ctx context.Context, eventID, sessionID int64, entries []FlagLogEntry) error {
	model := flagLogModel{eventID: eventID, sessionID: sessionID, entries: entries}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      model.toAttributeMap(),
	})
	return err
}

// GetFlagLog returns the persisted flag-duration list for a session, or nil
// if none has been written yet.
func (s *DynamoStore) GetFlagLog(ctx context.Context, eventID, sessionID int64) ([]FlagLogEntry, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, eventID)},
			sortKeyName:      &types.AttributeValueMemberS{Value: fmt.Sprintf(flagLogSortKeyFormat, sessionID)},
		},
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, nil
	}
	return flagLogFromAttributeMap(result.Item)
}

// UpsertCarLastLap records the most recent lap number observed for a car,
// read back on session start so the lap processor can resume without
// re-emitting already-logged laps.
func (s *DynamoStore) UpsertCarLastLap(ctx context.Context, eventID, sessionID int64, car string, lastLap int) error {
	model := carLastLapModel{eventID: eventID, sessionID: sessionID, car: car, lastLap: lastLap}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      model.toAttributeMap(),
	})
	return err
}

// GetCarLastLaps returns the resume checkpoint for every car tracked in a
// session.
func (s *DynamoStore) GetCarLastLaps(ctx context.Context, eventID, sessionID int64) (map[string]int, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#pk = :pk AND begins_with(#sk, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": partitionKeyName,
			"#sk": sortKeyName,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, eventID)},
			":prefix": &types.AttributeValueMemberS{Value: fmt.Sprintf(carLastLapQueryPrefixFormat, sessionID)},
		},
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]int, len(result.Items))
	for _, item := range result.Items {
		entry, err := carLastLapFromAttributeMap(item)
		if err != nil {
			return nil, err
		}
		out[entry.Car] = entry.LastLap
	}
	return out, nil
}

// PutCarLapHistory replaces the stored rolling lap window for a car in one
// round trip; callers hold the trim-to-N discipline before
// calling this.
func (s *DynamoStore) PutCarLapHistory(ctx context.Context, record CarLapHistoryRecord) error {
	model := carLapHistoryModel{eventID: record.EventID, car: record.Car, snapshotsJSON: record.SnapshotsJSON}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      model.toAttributeMap(),
	})
	return err
}

// GetCarLapHistory reads back the rolling lap window for a car, or nil if
// none has been recorded yet.
func (s *DynamoStore) GetCarLapHistory(ctx context.Context, eventID int64, car string) (*CarLapHistoryRecord, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, eventID)},
			sortKeyName:      &types.AttributeValueMemberS{Value: fmt.Sprintf(carLapHistorySortKeyFormat, car)},
		},
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, nil
	}
	return carLapHistoryFromAttributeMap(eventID, result.Item)
}

// PutSessionSnapshot overwrites the last-published full state for an event.
// It is a best-effort side channel for read-replica processes; callers
// should not treat a write failure here as fatal to ingestion.
func (s *DynamoStore) PutSessionSnapshot(ctx context.Context, record SessionSnapshotRecord) error {
	model := sessionSnapshotModel{
		eventID:          record.EventID,
		sessionStateJSON: record.SessionStateJSON,
		carPatchesJSON:   record.CarPatchesJSON,
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      model.toAttributeMap(),
	})
	return err
}

// GetSessionSnapshot reads back the last-published full state for an event,
// or nil if the event has never published one.
func (s *DynamoStore) GetSessionSnapshot(ctx context.Context, eventID int64) (*SessionSnapshotRecord, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, eventID)},
			sortKeyName:      &types.AttributeValueMemberS{Value: sessionSnapshotSortKey},
		},
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, nil
	}
	return sessionSnapshotFromAttributeMap(eventID, result.Item)
}

// SaveSubscriberConnection registers a newly connected subscriber for fanout.
func (s *DynamoStore) SaveSubscriberConnection(ctx context.Context, conn SubscriberConnection) error {
	now := s.now()
	rows := subscriberConnectionModel{
		eventID:      conn.EventID,
		connectionID: conn.ConnectionID,
		connectedAt:  now.Unix(),
	}.toAttributeMaps()

	toWrite := make([]types.TransactWriteItem, len(rows))
	for i, row := range rows {
		toWrite[i] = types.TransactWriteItem{Put: &types.Put{TableName: aws.String(s.table), Item: row}}
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: toWrite})
	return err
}

// DeleteSubscriberConnection removes a subscriber on disconnect.
func (s *DynamoStore) DeleteSubscriberConnection(ctx context.Context, eventID int64, connectionID string) error {
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName: aws.String(s.table),
					Key: map[string]types.AttributeValue{
						partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, eventID)},
						sortKeyName:      &types.AttributeValueMemberS{Value: fmt.Sprintf(subscriberSortKeyFormat, connectionID)},
					},
				},
			},
			{
				Delete: &types.Delete{
					TableName: aws.String(s.table),
					Key: map[string]types.AttributeValue{
						partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(subscriberLookupPartitionFormat, connectionID)},
						sortKeyName:      &types.AttributeValueMemberS{Value: defaultSortKey},
					},
				},
			},
		},
	})
	return err
}

// GetSubscriberConnections returns every live subscriber connection for an
// event, used by the output broadcaster to fan out patches.
func (s *DynamoStore) GetSubscriberConnections(ctx context.Context, eventID int64) ([]SubscriberConnection, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#pk = :pk AND begins_with(#sk, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": partitionKeyName,
			"#sk": sortKeyName,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, eventID)},
			":prefix": &types.AttributeValueMemberS{Value: subscriberQueryPrefix},
		},
	})
	if err != nil {
		return nil, err
	}

	conns := make([]SubscriberConnection, 0, len(result.Items))
	for _, item := range result.Items {
		conn, err := subscriberConnectionFromAttributeMap(eventID, item)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	return conns, nil
}

// GetEventIDByConnection resolves the owning event for a connection id,
// used by the $disconnect handler.
func (s *DynamoStore) GetEventIDByConnection(ctx context.Context, connectionID string) (*int64, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(subscriberLookupPartitionFormat, connectionID)},
			sortKeyName:      &types.AttributeValueMemberS{Value: defaultSortKey},
		},
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, nil
	}
	eventID, err := getInt64Attr(result.Item, "event_id")
	if err != nil {
		return nil, err
	}
	return &eventID, nil
}

var _ = connectionTTLDuration // reserved for a future TTL attribute on subscriber rows

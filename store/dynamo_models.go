package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const partitionKeyName = "partition_key"
const sortKeyName = "sort_key"

const defaultSortKey = "info"

const eventPartitionFormat = "event#%d"
const lapLogSortKeyFormat = "session#%d#lap#%s#%d"
const lapLogQueryPrefixFormat = "session#%d#lap#"
const flagLogSortKeyFormat = "session#%d#flags"
const carLastLapSortKeyFormat = "session#%d#lastlap#%s"
const carLastLapQueryPrefixFormat = "session#%d#lastlap#"

const carLapHistorySortKeyFormat = "carhistory#%s"

const sessionSnapshotSortKey = "snapshot"

const subscriberSortKeyFormat = "sub#%s"
const subscriberQueryPrefix = "sub#"
const subscriberLookupPartitionFormat = "subscriber#%s"

type lapLogModel struct {
	eventID      int64
	sessionID    int64
	car          string
	lapNumber    int
	flag         string
	timestamp    int64
	snapshotJSON []byte
}

func (l lapLogModel) toAttributeMap() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, l.eventID)},
		sortKeyName:      &types.AttributeValueMemberS{Value: fmt.Sprintf(lapLogSortKeyFormat, l.sessionID, l.car, l.lapNumber)},
		"session_id":     &types.AttributeValueMemberN{Value: strconv.FormatInt(l.sessionID, 10)},
		"car":            &types.AttributeValueMemberS{Value: l.car},
		"lap_number":     &types.AttributeValueMemberN{Value: strconv.Itoa(l.lapNumber)},
		"flag":           &types.AttributeValueMemberS{Value: l.flag},
		"timestamp":      &types.AttributeValueMemberN{Value: strconv.FormatInt(l.timestamp, 10)},
		"snapshot":       &types.AttributeValueMemberB{Value: l.snapshotJSON},
	}
}

func lapLogFromAttributeMap(eventID int64, item map[string]types.AttributeValue) (*LapLogRecord, error) {
	sessionID, err := getInt64Attr(item, "session_id")
	if err != nil {
		return nil, err
	}
	car, err := getStringAttr(item, "car")
	if err != nil {
		return nil, err
	}
	lapNumber, err := getIntAttr(item, "lap_number")
	if err != nil {
		return nil, err
	}
	flag, err := getStringAttr(item, "flag")
	if err != nil {
		return nil, err
	}
	ts, err := getInt64Attr(item, "timestamp")
	if err != nil {
		return nil, err
	}
	snapshot, _ := getBytesAttr(item, "snapshot")

	return &LapLogRecord{
		EventID:      eventID,
		SessionID:    sessionID,
		Car:          car,
		LapNumber:    lapNumber,
		Flag:         flag,
		Timestamp:    time.Unix(ts, 0).UTC(),
		SnapshotJSON: snapshot,
	}, nil
}

type flagLogModel struct {
	eventID   int64
	sessionID int64
	entries   []FlagLogEntry
}

func (f flagLogModel) toAttributeMap() map[string]types.AttributeValue {
	values := make([]types.AttributeValue, len(f.entries))
	for i, e := range f.entries {
		m := map[string]types.AttributeValue{
			"flag":       &types.AttributeValueMemberS{Value: e.Flag},
			"start_time": &types.AttributeValueMemberN{Value: strconv.FormatInt(e.StartTime.Unix(), 10)},
		}
		if e.EndTime != nil {
			m["end_time"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(e.EndTime.Unix(), 10)}
		}
		values[i] = &types.AttributeValueMemberM{Value: m}
	}
	return map[string]types.AttributeValue{
		partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, f.eventID)},
		sortKeyName:      &types.AttributeValueMemberS{Value: fmt.Sprintf(flagLogSortKeyFormat, f.sessionID)},
		"entries":        &types.AttributeValueMemberL{Value: values},
	}
}

func flagLogFromAttributeMap(item map[string]types.AttributeValue) ([]FlagLogEntry, error) {
	attr, ok := item["entries"].(*types.AttributeValueMemberL)
	if !ok {
		return nil, nil
	}
	entries := make([]FlagLogEntry, 0, len(attr.Value))
	for i, raw := range attr.Value {
		m, ok := raw.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("entry at index %d is not a map", i)
		}
		flag, err := getStringAttr(m.Value, "flag")
		if err != nil {
			return nil, err
		}
		start, err := getInt64Attr(m.Value, "start_time")
		if err != nil {
			return nil, err
		}
		entry := FlagLogEntry{Flag: flag, StartTime: time.Unix(start, 0).UTC()}
		if end, ok := getOptionalInt64Attr(m.Value, "end_time"); ok {
			t := time.Unix(end, 0).UTC()
			entry.EndTime = &t
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type carLastLapModel struct {
	eventID   int64
	sessionID int64
	car       string
	lastLap   int
}

func (c carLastLapModel) toAttributeMap() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, c.eventID)},
		sortKeyName:      &types.AttributeValueMemberS{Value: fmt.Sprintf(carLastLapSortKeyFormat, c.sessionID, c.car)},
		"car":            &types.AttributeValueMemberS{Value: c.car},
		"last_lap":       &types.AttributeValueMemberN{Value: strconv.Itoa(c.lastLap)},
	}
}

func carLastLapFromAttributeMap(item map[string]types.AttributeValue) (*CarLastLap, error) {
	car, err := getStringAttr(item, "car")
	if err != nil {
		return nil, err
	}
	lastLap, err := getIntAttr(item, "last_lap")
	if err != nil {
		return nil, err
	}
	return &CarLastLap{Car: car, LastLap: lastLap}, nil
}

type carLapHistoryModel struct {
	eventID       int64
	car           string
	snapshotsJSON []byte
}

func (h carLapHistoryModel) toAttributeMap() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, h.eventID)},
		sortKeyName:      &types.AttributeValueMemberS{Value: fmt.Sprintf(carLapHistorySortKeyFormat, h.car)},
		"car":            &types.AttributeValueMemberS{Value: h.car},
		"snapshots":      &types.AttributeValueMemberB{Value: h.snapshotsJSON},
	}
}

func carLapHistoryFromAttributeMap(eventID int64, item map[string]types.AttributeValue) (*CarLapHistoryRecord, error) {
	car, err := getStringAttr(item, "car")
	if err != nil {
		return nil, err
	}
	snapshots, _ := getBytesAttr(item, "snapshots")
	return &CarLapHistoryRecord{EventID: eventID, Car: car, SnapshotsJSON: snapshots}, nil
}

type sessionSnapshotModel struct {
	eventID         int64
	sessionStateJSON []byte
	carPatchesJSON   []byte
}

func (s sessionSnapshotModel) toAttributeMap() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, s.eventID)},
		sortKeyName:      &types.AttributeValueMemberS{Value: sessionSnapshotSortKey},
		"session_state":  &types.AttributeValueMemberB{Value: s.sessionStateJSON},
		"car_patches":    &types.AttributeValueMemberB{Value: s.carPatchesJSON},
	}
}

func sessionSnapshotFromAttributeMap(eventID int64, item map[string]types.AttributeValue) (*SessionSnapshotRecord, error) {
	state, _ := getBytesAttr(item, "session_state")
	cars, _ := getBytesAttr(item, "car_patches")
	return &SessionSnapshotRecord{EventID: eventID, SessionStateJSON: state, CarPatchesJSON: cars}, nil
}

type subscriberConnectionModel struct {
	eventID      int64
	connectionID string
	connectedAt  int64
}

// toAttributeMaps returns both rows written for a subscriber connection: one
// under the event partition for fanout enumeration, one under a lookup
// partition keyed by connection id for O(1) teardown on disconnect.
func (c subscriberConnectionModel) toAttributeMaps() []map[string]types.AttributeValue {
	return []map[string]types.AttributeValue{
		{
			partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(eventPartitionFormat, c.eventID)},
			sortKeyName:      &types.AttributeValueMemberS{Value: fmt.Sprintf(subscriberSortKeyFormat, c.connectionID)},
			"connection_id":  &types.AttributeValueMemberS{Value: c.connectionID},
			"connected_at":   &types.AttributeValueMemberN{Value: strconv.FormatInt(c.connectedAt, 10)},
		},
		{
			partitionKeyName: &types.AttributeValueMemberS{Value: fmt.Sprintf(subscriberLookupPartitionFormat, c.connectionID)},
			sortKeyName:      &types.AttributeValueMemberS{Value: defaultSortKey},
			"event_id":       &types.AttributeValueMemberN{Value: strconv.FormatInt(c.eventID, 10)},
		},
	}
}

func subscriberConnectionFromAttributeMap(eventID int64, item map[string]types.AttributeValue) (*SubscriberConnection, error) {
	connectionID, err := getStringAttr(item, "connection_id")
	if err != nil {
		return nil, err
	}
	connectedAt, err := getInt64Attr(item, "connected_at")
	if err != nil {
		return nil, err
	}
	return &SubscriberConnection{
		EventID:      eventID,
		ConnectionID: connectionID,
		ConnectedAt:  time.Unix(connectedAt, 0).UTC(),
	}, nil
}

func getInt64Attr(item map[string]types.AttributeValue, name string) (int64, error) {
	attr, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("missing or invalid '%s' attribute", name)
	}
	val, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid '%s' value: %w", name, err)
	}
	return val, nil
}

func getOptionalInt64Attr(item map[string]types.AttributeValue, name string) (int64, bool) {
	attr, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	val, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

func getIntAttr(item map[string]types.AttributeValue, name string) (int, error) {
	attr, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("missing or invalid '%s' attribute", name)
	}
	val, err := strconv.Atoi(attr.Value)
	if err != nil {
		return 0, fmt.Errorf("invalid '%s' value: %w", name, err)
	}
	return val, nil
}

func getStringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	attr, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("missing or invalid '%s' attribute", name)
	}
	return attr.Value, nil
}

func getBytesAttr(item map[string]types.AttributeValue, name string) ([]byte, bool) {
	attr, ok := item[name].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false
	}
	return attr.Value, true
}

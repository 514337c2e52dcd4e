package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Binary tags for SessionState.MarshalBinary. The snapshot-read surface
// prefers this over JSON for size; each
// field is a tag byte followed by a length-prefixed value so the format can
// grow new tags without breaking older readers (unknown tags are skipped).
const (
	tagEventID = iota + 1
	tagSessionID
	tagSessionName
	tagSessionType
	tagRunningRaceTime
	tagCurrentFlag
	tagFlagDuration
)

func writeTagged(buf *bytes.Buffer, tag byte, value []byte) {
	buf.WriteByte(tag)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(value)))
	buf.Write(lenBuf[:])
	buf.Write(value)
}

func int64Bytes(v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

func int64FromBytes(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func durationFromBytes(b []byte) time.Duration {
	return time.Duration(int64FromBytes(b))
}

func decodeFlagDuration(value []byte) (FlagDuration, error) {
	if len(value) < 1 {
		return FlagDuration{}, fmt.Errorf("model: truncated flag duration entry")
	}
	flagLen := int(value[0])
	value = value[1:]
	if len(value) < flagLen+8+1 {
		return FlagDuration{}, fmt.Errorf("model: truncated flag duration entry")
	}
	flag := Flag(value[:flagLen])
	value = value[flagLen:]
	startMs := int64FromBytes(value[:8])
	value = value[8:]
	hasEnd := value[0] == 1
	value = value[1:]

	fd := FlagDuration{
		Flag:      flag,
		StartTime: time.UnixMilli(startMs).UTC(),
	}
	if hasEnd {
		if len(value) < 8 {
			return FlagDuration{}, fmt.Errorf("model: truncated flag duration end time")
		}
		endMs := int64FromBytes(value[:8])
		end := time.UnixMilli(endMs).UTC()
		fd.EndTime = &end
	}
	return fd, nil
}

// MarshalBinary encodes the session state as a sequence of tagged,
// length-prefixed fields. FlagDurations is repeated, one tagFlagDuration
// entry per interval.
func (s SessionState) MarshalBinary() ([]byte, error) {
	buf := &bytes.Buffer{}
	writeTagged(buf, tagEventID, int64Bytes(s.EventID))
	writeTagged(buf, tagSessionID, int64Bytes(s.SessionID))
	writeTagged(buf, tagSessionName, []byte(s.SessionName))
	writeTagged(buf, tagSessionType, []byte(s.SessionType))
	writeTagged(buf, tagRunningRaceTime, int64Bytes(int64(s.RunningRaceTime)))
	writeTagged(buf, tagCurrentFlag, []byte(s.CurrentFlag))

	for _, fd := range s.FlagDurations {
		entry := &bytes.Buffer{}
		entry.WriteByte(byte(len(fd.Flag)))
		entry.WriteString(string(fd.Flag))
		entry.Write(int64Bytes(fd.StartTime.UnixMilli()))
		if fd.EndTime != nil {
			entry.WriteByte(1)
			entry.Write(int64Bytes(fd.EndTime.UnixMilli()))
		} else {
			entry.WriteByte(0)
		}
		writeTagged(buf, tagFlagDuration, entry.Bytes())
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a payload produced by MarshalBinary. Unknown tags
// are skipped, letting a newer writer add fields without breaking an older
// reader.
func (s *SessionState) UnmarshalBinary(data []byte) error {
	*s = SessionState{}

	for len(data) > 0 {
		if len(data) < 5 {
			return fmt.Errorf("model: truncated session state field header")
		}
		tag := data[0]
		length := binary.BigEndian.Uint32(data[1:5])
		data = data[5:]
		if uint32(len(data)) < length {
			return fmt.Errorf("model: truncated session state field value")
		}
		value := data[:length]
		data = data[length:]

		switch tag {
		case tagEventID:
			s.EventID = int64FromBytes(value)
		case tagSessionID:
			s.SessionID = int64FromBytes(value)
		case tagSessionName:
			s.SessionName = string(value)
		case tagSessionType:
			s.SessionType = SessionType(value)
		case tagRunningRaceTime:
			s.RunningRaceTime = durationFromBytes(value)
		case tagCurrentFlag:
			s.CurrentFlag = Flag(value)
		case tagFlagDuration:
			fd, err := decodeFlagDuration(value)
			if err != nil {
				return err
			}
			s.FlagDurations = append(s.FlagDurations, fd)
		default:
			// unknown tag, skip
		}
	}

	return nil
}

// Package controllog implements the control-log cache: it parses a
// tabular race-control source into ControlLogEntry rows and rolls them up
// into per-car penalty counts.
package controllog

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/racetiming/pipeline/model"
)

// Kind tags which spreadsheet layout a source uses. It is recorded in
// Config; the parser does not consult it and locates columns by header
// text, with the same header aliases for every kind.
type Kind string

const (
	KindWrlSheet     Kind = "wrl"
	KindChampCarSheet Kind = "champcar"
	KindLuckyDogSheet Kind = "luckydog"
)

// Cell is one parsed spreadsheet cell, carrying the highlight metadata the
// penalty-attribution rule in the depends on.
type Cell struct {
	Value string
	Red   int
	Green int
	Blue  int
	// BlueSet distinguishes "blue channel explicitly zero" from "not
	// reported", since the highlight rule is "blue=unset", not "blue=0".
	BlueSet bool
}

// Highlighted reports whether a cell counts as highlighted:
// red>=1, green>=1, blue unset.
func (c Cell) Highlighted() bool {
	return c.Red >= 1 && c.Green >= 1 && !c.BlueSet
}

// Row is one spreadsheet row.
type Row []Cell

// Source is the external tabular data provider: the narrow interface this
// package needs from whatever spreadsheet client a deployment wires in.
type Source interface {
	FetchRows(ctx context.Context) ([]Row, error)
}

// requiredColumnNames names the columns that must be non-empty for a row to be
// emitted: the ones needed to attribute and classify a penalty. OrderId,
// Timestamp, Status, and at least one of Car1/Car2.
var requiredColumnNames = []string{"orderid", "timestamp", "status"}

// columnIndex maps normalized column name to position in a row.
type columnIndex struct {
	orderID       int
	car1          int
	car2          int
	timestamp     int
	status        int
	corner        int
	note          int
	otherNotes    int
	penaltyAction int
}

const notFound = -1

func newColumnIndex() columnIndex {
	return columnIndex{orderID: notFound, car1: notFound, car2: notFound, timestamp: notFound,
		status: notFound, corner: notFound, note: notFound, otherNotes: notFound, penaltyAction: notFound}
}

// normalize implements the "case-insensitive keys... do not rely on
// language collation" note: an explicit toLowerAscii, not locale-aware
// folding.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseHeader locates each named column by its normalized header text. The
// second occurrence of "car" is Car2.
func parseHeader(header Row) columnIndex {
	idx := newColumnIndex()
	carSeen := false
	for i, cell := range header {
		switch normalize(cell.Value) {
		case "orderid", "order id", "order_id":
			idx.orderID = i
		case "car", "car1", "car 1", "car_1":
			if !carSeen {
				idx.car1 = i
				carSeen = true
			} else {
				idx.car2 = i
			}
		case "car2", "car 2", "car_2":
			idx.car2 = i
		case "timestamp", "time":
			idx.timestamp = i
		case "status":
			idx.status = i
		case "corner":
			idx.corner = i
		case "note", "notes":
			idx.note = i
		case "othernotes", "other notes", "other_notes":
			idx.otherNotes = i
		case "penaltyaction", "penalty action", "penalty_action":
			idx.penaltyAction = i
		}
	}
	return idx
}

func cellAt(row Row, i int) Cell {
	if i < 0 || i >= len(row) {
		return Cell{}
	}
	return row[i]
}

// timestampLayouts tried in order when parsing a timestamp cell.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseRows turns spreadsheet rows into ControlLogEntry records.
// rows[0] must be the header row. minTimestampYear and
// maxMissedTimestamps implement the early-stop and year-filter rules.
func ParseRows(rows []Row, minTimestampYear, maxMissedTimestamps int) []model.ControlLogEntry {
	if len(rows) == 0 {
		return nil
	}
	idx := parseHeader(rows[0])

	var entries []model.ControlLogEntry
	missedTimestamps := 0

	for _, row := range rows[1:] {
		tsCell := cellAt(row, idx.timestamp)
		ts, ok := parseTimestamp(tsCell.Value)
		if !ok {
			missedTimestamps++
			if missedTimestamps >= maxMissedTimestamps {
				break
			}
			continue
		}
		missedTimestamps = 0

		if ts.Year() < minTimestampYear {
			continue
		}

		orderIDCell := cellAt(row, idx.orderID)
		statusCell := cellAt(row, idx.status)
		car1Cell := cellAt(row, idx.car1)
		car2Cell := cellAt(row, idx.car2)

		if !rowSatisfiesRequired(orderIDCell, statusCell, car1Cell, car2Cell) {
			continue
		}

		orderID, _ := strconv.Atoi(strings.TrimSpace(orderIDCell.Value))

		entries = append(entries, model.ControlLogEntry{
			OrderID:           orderID,
			Car1:              strings.TrimSpace(car1Cell.Value),
			Car2:              strings.TrimSpace(car2Cell.Value),
			Timestamp:         ts,
			Status:            strings.TrimSpace(statusCell.Value),
			Corner:            strings.TrimSpace(cellAt(row, idx.corner).Value),
			Note:              strings.TrimSpace(cellAt(row, idx.note).Value),
			OtherNotes:        strings.TrimSpace(cellAt(row, idx.otherNotes).Value),
			PenaltyAction:     strings.TrimSpace(cellAt(row, idx.penaltyAction).Value),
			IsCar1Highlighted: car1Cell.Highlighted(),
			IsCar2Highlighted: car2Cell.Highlighted(),
		})
	}

	return entries
}

func rowSatisfiesRequired(orderID, status, car1, car2 Cell) bool {
	if strings.TrimSpace(orderID.Value) == "" {
		return false
	}
	if strings.TrimSpace(status.Value) == "" {
		return false
	}
	if strings.TrimSpace(car1.Value) == "" && strings.TrimSpace(car2.Value) == "" {
		return false
	}
	return true
}

var (
	warningPattern = regexp.MustCompile(`(?i).*warning.*`)
	lapCountPattern = regexp.MustCompile(`(?i)(\d+)\s+laps?`)
)

// Rollup computes per-car CarPenalty from a flat list of control-log
// entries. Attribution: for a two-car entry, the penalty
// applies to the car that is highlighted; if neither is highlighted it
// defaults to car1. A single-car entry (Car2 empty) always attributes to
// Car1.
func Rollup(entries []model.ControlLogEntry) map[string]model.CarPenalty {
	out := make(map[string]model.CarPenalty)

	for _, e := range entries {
		car := attributedCar(e)
		if car == "" {
			continue
		}
		key := strings.ToLower(car)

		p := out[key]
		if warningPattern.MatchString(e.PenaltyAction) {
			p.Warnings++
		}
		if m := lapCountPattern.FindStringSubmatch(e.PenaltyAction); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				p.Laps += n
			}
		}
		out[key] = p
	}

	return out
}

func attributedCar(e model.ControlLogEntry) string {
	if e.Car2 == "" {
		return e.Car1
	}
	switch {
	case e.IsCar1Highlighted:
		return e.Car1
	case e.IsCar2Highlighted:
		return e.Car2
	default:
		return e.Car1
	}
}

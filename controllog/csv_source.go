package controllog

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
)

// CSVSource is an in-memory/fixture Source: the real Google-Sheets client
// lives behind an external collaborator and is never linked here. CSVSource
// exercises ParseRows/Rollup end to end in tests and against any tabular
// export a deployment chooses to poll instead of a live Sheets API, with no
// cell highlight metadata (every cell parses as not-highlighted).
type CSVSource struct {
	data string
}

// NewCSVSource builds a Source from a literal CSV document, header row
// first.
func NewCSVSource(data string) *CSVSource {
	return &CSVSource{data: data}
}

func (s *CSVSource) FetchRows(_ context.Context) ([]Row, error) {
	r := csv.NewReader(strings.NewReader(s.data))
	r.FieldsPerRecord = -1

	var rows []Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(Row, len(record))
		for i, v := range record {
			row[i] = Cell{Value: v}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

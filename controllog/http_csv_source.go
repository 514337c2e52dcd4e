package controllog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
)

// HTTPCSVSource polls a plain HTTP endpoint that returns a CSV document,
// e.g. a spreadsheet's "publish to web" CSV export link. It deliberately
// does not use any Google Sheets API client: the Sheets client library
// stays behind an external collaborator, and a published-CSV URL needs
// nothing beyond net/http to poll.
type HTTPCSVSource struct {
	client HTTPClient
	url    string
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPCSVSource(client HTTPClient, url string) *HTTPCSVSource {
	return &HTTPCSVSource{client: client, url: url}
}

func (s *HTTPCSVSource) FetchRows(ctx context.Context) ([]Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("controllog: building request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("controllog: fetching control log: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("controllog: unexpected status %d fetching control log", resp.StatusCode)
	}

	r := csv.NewReader(resp.Body)
	r.FieldsPerRecord = -1

	var rows []Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("controllog: parsing CSV: %w", err)
		}
		row := make(Row, len(record))
		for i, v := range record {
			row[i] = Cell{Value: v}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

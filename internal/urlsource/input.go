package urlsource

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
)

// Input is a small in-memory table whose columns can feed a column source.
type Input struct {
	Header []string
	Rows   [][]string
}

// Column returns the values of the named column in row order.
func (in *Input) Column(name string) ([]string, bool) {
	if in == nil {
		return nil, false
	}
	idx := -1
	for i, h := range in.Header {
		if h == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	values := make([]string, 0, len(in.Rows))
	for _, row := range in.Rows {
		if idx < len(row) {
			values = append(values, row[idx])
		} else {
			values = append(values, "")
		}
	}
	return values, true
}

// ReadCSV parses a CSV document whose first record is the header.
func ReadCSV(r io.Reader) (*Input, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("read csv: missing header")
	}
	return &Input{Header: records[0], Rows: records[1:]}, nil
}

// FromRecords builds an Input from JSON-style row objects. Columns are ordered
// by first appearance, keys within one record alphabetically.
func FromRecords(records []map[string]any) *Input {
	in := &Input{}
	seen := map[string]int{}
	for _, rec := range records {
		for _, key := range slices.Sorted(maps.Keys(rec)) {
			if _, ok := seen[key]; !ok {
				seen[key] = len(in.Header)
				in.Header = append(in.Header, key)
			}
		}
	}
	for _, rec := range records {
		row := make([]string, len(in.Header))
		for key, value := range rec {
			row[seen[key]] = stringify(value)
		}
		in.Rows = append(in.Rows, row)
	}
	return in
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

package users

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseBulk reads a JSON array or a CSV file with at least a username
// column. Optional columns: id, email, display_name, role, password, active.
func ParseBulk(data []byte) ([]BulkRow, error) {
	t := bytes.TrimSpace(data)
	if len(t) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalid)
	}
	if t[0] == '[' {
		var rows []BulkRow
		if err := json.Unmarshal(t, &rows); err != nil {
			return nil, fmt.Errorf("%w: bad json: %v", ErrInvalid, err)
		}
		return rows, nil
	}
	return parseCSV(bytes.NewReader(t))
}

func parseCSV(r io.Reader) ([]BulkRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %v", ErrInvalid, err)
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := idx["username"]; !ok {
		return nil, fmt.Errorf("%w: missing column: username", ErrInvalid)
	}
	get := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	var rows []BulkRow
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv row %d: %v", ErrInvalid, line, err)
		}
		row := BulkRow{
			ID:          get(rec, "id"),
			Username:    get(rec, "username"),
			Email:       get(rec, "email"),
			DisplayName: get(rec, "display_name"),
			Role:        get(rec, "role"),
			Password:    get(rec, "password"),
		}
		if v := get(rec, "active"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%w: csv row %d: active %q is not a boolean", ErrInvalid, line, v)
			}
			row.Active = &b
		}
		rows = append(rows, row)
	}
	return rows, nil
}

package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// EncodeCSV renders records as CSV with a header row, columns in the given
// order. Values missing from a record render as empty cells.
func EncodeCSV(columns []string, records []Record) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)

	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	line := make([]string, len(columns))
	for _, record := range records {
		for i, column := range columns {
			line[i] = formatValue(record[column])
		}
		if err := w.Write(line); err != nil {
			return nil, fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJSONL renders records as newline-delimited JSON.
func EncodeJSONL(records []Record) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return nil, fmt.Errorf("encoding jsonl row: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}

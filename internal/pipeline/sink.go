package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	pkgbigquery "github.com/angelmondragon/admob-reporting/pkg/bigquery"
)

// LoadMode controls how a day's rows land in the destination table.
type LoadMode string

const (
	// ModeReplaceDate deletes the report date's rows before appending, so a
	// re-run replaces the day instead of duplicating it.
	ModeReplaceDate LoadMode = "replace_date"
	// ModeAppend appends without deleting.
	ModeAppend LoadMode = "append"
)

// Warehouse is the slice of the BigQuery client the sink needs.
type Warehouse interface {
	DeleteForDate(ctx context.Context, table string, date civil.Date) error
	LoadFromGCS(ctx context.Context, table string, spec pkgbigquery.LoadJobSpec) (int64, error)
}

// TableSink loads staged GCS objects into one destination table.
//
// The delete and the load run as separate jobs; a reader between them sees
// the date's rows missing rather than doubled.
type TableSink struct {
	warehouse Warehouse
	table     string
	mode      LoadMode
}

func NewTableSink(warehouse Warehouse, table string, mode LoadMode) (*TableSink, error) {
	if warehouse == nil {
		return nil, errors.New("warehouse is required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("table name is required")
	}
	switch mode {
	case ModeReplaceDate, ModeAppend:
	default:
		return nil, fmt.Errorf("unknown load mode %q", mode)
	}
	return &TableSink{warehouse: warehouse, table: table, mode: mode}, nil
}

func (s *TableSink) Table() string {
	if s == nil {
		return ""
	}
	return s.table
}

// Load lands the object at the sink's table for the given report date.
func (s *TableSink) Load(ctx context.Context, date civil.Date, spec pkgbigquery.LoadJobSpec) (int64, error) {
	if s == nil || s.warehouse == nil {
		return 0, errors.New("sink not initialized")
	}
	if s.mode == ModeReplaceDate {
		if err := s.warehouse.DeleteForDate(ctx, s.table, date); err != nil {
			return 0, fmt.Errorf("deleting rows for %s: %w", date, err)
		}
	}
	rows, err := s.warehouse.LoadFromGCS(ctx, s.table, spec)
	if err != nil {
		return 0, fmt.Errorf("loading into %s: %w", s.table, err)
	}
	return rows, nil
}

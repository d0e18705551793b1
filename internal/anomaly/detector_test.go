package anomaly

import (
	"context"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

type fakeReader struct {
	rows []any
	idx  int
}

func (r *fakeReader) Next(dst any) error {
	if r.idx >= len(r.rows) {
		return iterator.Done
	}
	src := r.rows[r.idx]
	r.idx++
	switch d := dst.(type) {
	case *baselineRow:
		*d = src.(baselineRow)
	case *todayRow:
		*d = src.(todayRow)
	}
	return nil
}

type fakeQuerier struct {
	baseline []any
	today    []any

	baselineParams []bigquery.QueryParameter
	todayParams    []bigquery.QueryParameter
}

func (q *fakeQuerier) Query(_ context.Context, sql string, params []bigquery.QueryParameter) (RowReader, error) {
	if strings.Contains(sql, "SUM(clicks)") {
		q.baselineParams = params
		return &fakeReader{rows: q.baseline}, nil
	}
	q.todayParams = params
	return &fakeReader{rows: q.today}, nil
}

func newDetector(t *testing.T, q Querier, adUnits ...string) *Detector {
	t.Helper()
	if len(adUnits) == 0 {
		adUnits = []string{"Home Native"}
	}
	d, err := NewDetector(q, Config{
		TableFQN: "`demo.admob.admob_network_daily`",
		AdUnits:  adUnits,
	})
	require.NoError(t, err)
	return d
}

var reportDate = time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC)

func TestNewDetectorValidation(t *testing.T) {
	if _, err := NewDetector(nil, Config{TableFQN: "`t`", AdUnits: []string{"a"}}); err == nil {
		t.Fatal("expected error for missing querier")
	}
	if _, err := NewDetector(&fakeQuerier{}, Config{AdUnits: []string{"a"}}); err == nil {
		t.Fatal("expected error for missing table")
	}
	if _, err := NewDetector(&fakeQuerier{}, Config{TableFQN: "`t`"}); err == nil {
		t.Fatal("expected error for empty ad unit list")
	}

	d, err := NewDetector(&fakeQuerier{}, Config{TableFQN: "`t`", AdUnits: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, d.cfg.Threshold)
	assert.Equal(t, DefaultBaselineDays, d.cfg.BaselineDays)
}

func TestDetectFlagsSpikeAboveThreshold(t *testing.T) {
	// Seven window days of clicks=10, impressions=100 collapse into one
	// aggregated row: baseline CTR = 70/700 = 0.10.
	q := &fakeQuerier{
		baseline: []any{
			baselineRow{App: "My App", AdUnit: "Home Native", Clicks: 70, Impressions: 700},
		},
		today: []any{
			todayRow{App: "My App", AdUnit: "Home Native", CTR: 0.14},
		},
	}

	report, err := newDetector(t, q).Detect(context.Background(), reportDate)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	result := report.Results[0]
	assert.Equal(t, "My App", result.App)
	assert.Equal(t, 0.1, result.BaselineCTR)
	assert.Equal(t, 0.14, result.TodayCTR)
	assert.Equal(t, 40.0, result.PctChange)
	assert.Equal(t, "above", result.Direction())
}

func TestDetectFlagsDropBelowThreshold(t *testing.T) {
	q := &fakeQuerier{
		baseline: []any{baselineRow{App: "My App", AdUnit: "Home Native", Clicks: 70, Impressions: 700}},
		today:    []any{todayRow{App: "My App", AdUnit: "Home Native", CTR: 0.05}},
	}

	report, err := newDetector(t, q).Detect(context.Background(), reportDate)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, -50.0, report.Results[0].PctChange)
	assert.Equal(t, "below", report.Results[0].Direction())
}

func TestDetectWithinThresholdReportsCheckedKeys(t *testing.T) {
	q := &fakeQuerier{
		baseline: []any{baselineRow{App: "My App", AdUnit: "Home Native", Clicks: 70, Impressions: 700}},
		today:    []any{todayRow{App: "My App", AdUnit: "Home Native", CTR: 0.11}},
	}

	report, err := newDetector(t, q, "Home Native", "Feed Native").Detect(context.Background(), reportDate)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	// The key present today plus the configured one with no row, each once.
	assert.Equal(t, []string{"Home Native", "Feed Native"}, report.CheckedKeys)
}

func TestDetectExcludesKeysWithZeroClickBaseline(t *testing.T) {
	q := &fakeQuerier{
		baseline: []any{
			baselineRow{App: "My App", AdUnit: "Home Native", Clicks: 0, Impressions: 700},
			baselineRow{App: "My App", AdUnit: "Feed Native", Clicks: 0, Impressions: 700},
		},
		today: []any{
			todayRow{App: "My App", AdUnit: "Home Native", CTR: 0.05},
			todayRow{App: "My App", AdUnit: "Feed Native", CTR: 0},
		},
	}

	report, err := newDetector(t, q, "Home Native", "Feed Native").Detect(context.Background(), reportDate)
	require.NoError(t, err)
	assert.Empty(t, report.Results, "zero-click baseline must not be flagged")
	assert.Equal(t, []string{"Home Native", "Feed Native"}, report.CheckedKeys)
}

func TestDetectExcludesKeysWithoutHistoricalImpressions(t *testing.T) {
	q := &fakeQuerier{
		baseline: []any{baselineRow{App: "My App", AdUnit: "Home Native", Clicks: 0, Impressions: 0}},
		today:    []any{todayRow{App: "My App", AdUnit: "Home Native", CTR: 0.9}},
	}

	report, err := newDetector(t, q).Detect(context.Background(), reportDate)
	require.NoError(t, err)
	assert.Empty(t, report.Results, "undefined baseline must not be flagged")
	assert.Equal(t, []string{"Home Native"}, report.CheckedKeys)
}

func TestDetectOrdersResultsByPctChangeDescending(t *testing.T) {
	q := &fakeQuerier{
		baseline: []any{
			baselineRow{App: "A", AdUnit: "u1", Clicks: 10, Impressions: 100},
			baselineRow{App: "A", AdUnit: "u2", Clicks: 10, Impressions: 100},
			baselineRow{App: "B", AdUnit: "u3", Clicks: 10, Impressions: 100},
		},
		today: []any{
			todayRow{App: "A", AdUnit: "u1", CTR: 0.05},
			todayRow{App: "A", AdUnit: "u2", CTR: 0.2},
			todayRow{App: "B", AdUnit: "u3", CTR: 0.14},
		},
	}

	report, err := newDetector(t, q, "u1", "u2", "u3").Detect(context.Background(), reportDate)
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.Equal(t, "u2", report.Results[0].AdUnit)
	assert.Equal(t, "u3", report.Results[1].AdUnit)
	assert.Equal(t, "u1", report.Results[2].AdUnit)
}

func TestDetectQueriesTrailingWindow(t *testing.T) {
	q := &fakeQuerier{}
	_, err := newDetector(t, q).Detect(context.Background(), reportDate)
	require.NoError(t, err)

	params := map[string]any{}
	for _, p := range q.baselineParams {
		params[p.Name] = p.Value
	}
	assert.Equal(t, civil.Date{Year: 2025, Month: 7, Day: 1}, params["window_start"])
	assert.Equal(t, civil.Date{Year: 2025, Month: 7, Day: 7}, params["window_end"])

	params = map[string]any{}
	for _, p := range q.todayParams {
		params[p.Name] = p.Value
	}
	assert.Equal(t, civil.Date{Year: 2025, Month: 7, Day: 8}, params["report_date"])
}

package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	pkgbigquery "github.com/angelmondragon/admob-reporting/pkg/bigquery"
	"google.golang.org/api/iterator"
)

const (
	// DefaultThreshold is the percent deviation from the trailing baseline
	// beyond which a key is flagged.
	DefaultThreshold = 25.0
	// DefaultBaselineDays is the trailing window length in calendar days.
	DefaultBaselineDays = 7
)

// Config controls which table and keys the detector evaluates.
type Config struct {
	// TableFQN is the backtick-quoted project.dataset.table the report rows
	// live in.
	TableFQN string
	// AdUnits restricts evaluation to these ad unit names.
	AdUnits []string
	// Threshold is the percent deviation that flags a key; zero means
	// DefaultThreshold.
	Threshold float64
	// BaselineDays is the trailing window length; zero means
	// DefaultBaselineDays.
	BaselineDays int
}

// RowReader iterates query result rows; Next returns iterator.Done when the
// result set is exhausted.
type RowReader interface {
	Next(dst any) error
}

// Querier runs a parameterized SQL query against the warehouse.
type Querier interface {
	Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (RowReader, error)
}

// Result is one flagged (app, ad unit) key.
type Result struct {
	App         string
	AdUnit      string
	BaselineCTR float64
	TodayCTR    float64
	PctChange   float64
}

// Direction labels which side of the baseline today's value fell on.
func (r Result) Direction() string {
	if r.PctChange > 0 {
		return "above"
	}
	return "below"
}

// Report is the outcome of one detection run. CheckedKeys always names every
// evaluated ad unit so that an empty result set is still reportable.
type Report struct {
	Date         time.Time
	Threshold    float64
	BaselineDays int
	Results      []Result
	CheckedKeys  []string
}

// Detector flags (app, ad unit) keys whose stored CTR for the report date
// deviates from the trailing-window baseline beyond the threshold.
//
// The baseline is the ratio of summed clicks to summed impressions across the
// window, not an average of per-day ratios; today's side of the comparison is
// the impression_ctr the source reported for that day. The asymmetry mirrors
// the upstream reporting semantics and is intentional.
type Detector struct {
	querier Querier
	cfg     Config
}

func NewDetector(querier Querier, cfg Config) (*Detector, error) {
	if querier == nil {
		return nil, errors.New("warehouse querier is required")
	}
	if strings.TrimSpace(cfg.TableFQN) == "" {
		return nil, errors.New("table name is required")
	}
	if len(cfg.AdUnits) == 0 {
		return nil, errors.New("at least one ad unit is required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.BaselineDays <= 0 {
		cfg.BaselineDays = DefaultBaselineDays
	}
	return &Detector{querier: querier, cfg: cfg}, nil
}

type key struct {
	app    string
	adUnit string
}

type baselineRow struct {
	App         string `bigquery:"app_name"`
	AdUnit      string `bigquery:"ad_unit_name"`
	Clicks      int64  `bigquery:"clicks"`
	Impressions int64  `bigquery:"impressions"`
}

type todayRow struct {
	App    string  `bigquery:"app_name"`
	AdUnit string  `bigquery:"ad_unit_name"`
	CTR    float64 `bigquery:"impression_ctr"`
}

// Detect evaluates the report date against the trailing baseline window.
func (d *Detector) Detect(ctx context.Context, reportDate time.Time) (*Report, error) {
	day := civil.DateOf(reportDate)

	baselines, err := d.fetchBaselines(ctx, day)
	if err != nil {
		return nil, err
	}
	todays, err := d.fetchToday(ctx, day)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(todays))
	seen := make(map[string]bool, len(todays))
	checked := make([]string, 0, len(todays)+len(d.cfg.AdUnits))

	for _, today := range todays {
		if !seen[today.AdUnit] {
			seen[today.AdUnit] = true
			checked = append(checked, today.AdUnit)
		}

		baseline, ok := baselines[key{today.App, today.AdUnit}]
		if !ok || baseline == 0 {
			// No impressions or no clicks in the window: the relative change
			// is undefined, so the key is not comparable.
			continue
		}

		pct := (today.CTR - baseline) / baseline * 100
		if math.Abs(pct) <= d.cfg.Threshold {
			continue
		}
		results = append(results, Result{
			App:         today.App,
			AdUnit:      today.AdUnit,
			BaselineCTR: round(baseline, 4),
			TodayCTR:    round(today.CTR, 4),
			PctChange:   round(pct, 2),
		})
	}

	// Configured ad units with no row today were still evaluated.
	for _, unit := range d.cfg.AdUnits {
		if !seen[unit] {
			seen[unit] = true
			checked = append(checked, unit)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].PctChange > results[j].PctChange
	})

	return &Report{
		Date:         reportDate,
		Threshold:    d.cfg.Threshold,
		BaselineDays: d.cfg.BaselineDays,
		Results:      results,
		CheckedKeys:  checked,
	}, nil
}

func (d *Detector) fetchBaselines(ctx context.Context, day civil.Date) (map[key]float64, error) {
	sql := fmt.Sprintf(`SELECT
  app_name,
  ad_unit_name,
  SUM(clicks) AS clicks,
  SUM(impressions) AS impressions
FROM %s
WHERE
  ad_unit_name IN UNNEST(@ad_units)
  AND date BETWEEN @window_start AND @window_end
GROUP BY app_name, ad_unit_name`, d.cfg.TableFQN)

	reader, err := d.querier.Query(ctx, sql, []bigquery.QueryParameter{
		{Name: "ad_units", Value: d.cfg.AdUnits},
		{Name: "window_start", Value: day.AddDays(-d.cfg.BaselineDays)},
		{Name: "window_end", Value: day.AddDays(-1)},
	})
	if err != nil {
		return nil, fmt.Errorf("querying baseline window: %w", err)
	}

	baselines := make(map[key]float64)
	for {
		var row baselineRow
		err := reader.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading baseline row: %w", err)
		}
		if row.Impressions == 0 {
			continue
		}
		baselines[key{row.App, row.AdUnit}] = float64(row.Clicks) / float64(row.Impressions)
	}
	return baselines, nil
}

func (d *Detector) fetchToday(ctx context.Context, day civil.Date) ([]todayRow, error) {
	sql := fmt.Sprintf(`SELECT
  app_name,
  ad_unit_name,
  impression_ctr
FROM %s
WHERE
  ad_unit_name IN UNNEST(@ad_units)
  AND date = @report_date`, d.cfg.TableFQN)

	reader, err := d.querier.Query(ctx, sql, []bigquery.QueryParameter{
		{Name: "ad_units", Value: d.cfg.AdUnits},
		{Name: "report_date", Value: day},
	})
	if err != nil {
		return nil, fmt.Errorf("querying report date rows: %w", err)
	}

	var rows []todayRow
	for {
		var row todayRow
		err := reader.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading report date row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func round(value float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(value*scale) / scale
}

type warehouseQuerier struct {
	client *pkgbigquery.Client
}

// NewQuerier adapts the shared warehouse client to the Querier interface.
func NewQuerier(client *pkgbigquery.Client) Querier {
	return warehouseQuerier{client: client}
}

func (q warehouseQuerier) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (RowReader, error) {
	return q.client.Query(ctx, sql, params)
}

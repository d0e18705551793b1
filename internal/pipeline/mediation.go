package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/angelmondragon/admob-reporting/internal/report"
	pkgbigquery "github.com/angelmondragon/admob-reporting/pkg/bigquery"
	"github.com/angelmondragon/admob-reporting/pkg/logger"
	"github.com/angelmondragon/admob-reporting/pkg/metrics"
)

// MediationFetcher pulls a single day of the mediation report.
type MediationFetcher interface {
	FetchMediationReport(ctx context.Context, date time.Time) ([]report.Row, error)
}

type MediationExportParams struct {
	Fetcher MediationFetcher
	Store   ObjectStore
	Sink    *TableSink
	Metrics *metrics.PipelineMetrics
	Logger  *logger.Logger
}

// MediationExport archives the day's mediation report as JSONL in GCS and
// appends it to BigQuery. The destination schema is autodetected; mediation
// columns shift as ad sources come and go.
type MediationExport struct {
	fetcher MediationFetcher
	store   ObjectStore
	sink    *TableSink
	metrics *metrics.PipelineMetrics
	logg    *logger.Logger
}

func NewMediationExport(params MediationExportParams) (*MediationExport, error) {
	if params.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if params.Store == nil {
		return nil, errors.New("object store is required")
	}
	if params.Sink == nil {
		return nil, errors.New("table sink is required")
	}
	return &MediationExport{
		fetcher: params.Fetcher,
		store:   params.Store,
		sink:    params.Sink,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// Run exports one report date. Days with no mediation rows are skipped.
func (m *MediationExport) Run(ctx context.Context, reportDate time.Time) error {
	if m == nil {
		return errors.New("export not initialized")
	}
	day := reportDate.UTC().Format("2006-01-02")
	if m.logg != nil {
		ctx = m.logg.WithReportDate(ctx, day)
	}

	if err := m.run(ctx, reportDate); err != nil {
		m.metrics.IncFailure(PipelineMediationExport)
		return err
	}
	m.metrics.IncSuccess(PipelineMediationExport)
	return nil
}

func (m *MediationExport) run(ctx context.Context, reportDate time.Time) error {
	started := time.Now()
	rows, err := m.fetcher.FetchMediationReport(ctx, reportDate)
	if err != nil {
		return fmt.Errorf("fetching mediation report: %w", err)
	}
	m.metrics.ObserveStage(PipelineMediationExport, stageFetch, time.Since(started))

	if len(rows) == 0 {
		if m.logg != nil {
			m.logg.Warn(ctx, "no mediation report rows for date, skipping load")
		}
		return nil
	}

	started = time.Now()
	normalizer := report.MediationNormalizer()
	payload, err := report.EncodeJSONL(normalizer.NormalizeAll(rows))
	if err != nil {
		return fmt.Errorf("encoding mediation report: %w", err)
	}

	object := fmt.Sprintf("admob_%s.jsonl", reportDate.UTC().Format("20060102"))
	uri, err := m.store.Upload(ctx, object, "application/json", payload)
	if err != nil {
		return fmt.Errorf("staging mediation report: %w", err)
	}
	m.metrics.ObserveStage(PipelineMediationExport, stageUpload, time.Since(started))

	started = time.Now()
	loaded, err := m.sink.Load(ctx, civil.DateOf(reportDate.UTC()), pkgbigquery.LoadJobSpec{
		URI:        uri,
		Format:     bigquery.JSON,
		Autodetect: true,
	})
	if err != nil {
		return err
	}
	m.metrics.ObserveStage(PipelineMediationExport, stageLoad, time.Since(started))
	m.metrics.AddRowsLoaded(m.sink.Table(), loaded)
	if m.logg != nil {
		m.logg.Info(m.logg.WithField(ctx, "rows_loaded", loaded), "mediation report loaded")
	}
	return nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/angelmondragon/admob-reporting/internal/anomaly"
	"github.com/angelmondragon/admob-reporting/internal/report"
	pkgbigquery "github.com/angelmondragon/admob-reporting/pkg/bigquery"
	"github.com/angelmondragon/admob-reporting/pkg/logger"
	"github.com/angelmondragon/admob-reporting/pkg/metrics"
)

const (
	// PipelineNetworkAlerts labels the daily network export + CTR alert run.
	PipelineNetworkAlerts = "network_alerts"
	// PipelineMediationExport labels the daily mediation archive run.
	PipelineMediationExport = "mediation_export"
)

const (
	stageFetch  = "fetch"
	stageUpload = "upload"
	stageLoad   = "load"
	stageDetect = "detect"
	stageNotify = "notify"
)

// NetworkFetcher pulls a single day of the network report.
type NetworkFetcher interface {
	FetchNetworkReport(ctx context.Context, date time.Time, apps []string) ([]report.Row, error)
}

// ObjectStore stages an encoded report payload and returns its gs:// URI.
type ObjectStore interface {
	Upload(ctx context.Context, object, contentType string, payload []byte) (string, error)
}

// AnomalyDetector evaluates the loaded day against its trailing baseline.
type AnomalyDetector interface {
	Detect(ctx context.Context, reportDate time.Time) (*anomaly.Report, error)
}

// AlertNotifier delivers the detection outcome.
type AlertNotifier interface {
	Notify(ctx context.Context, report *anomaly.Report) error
}

type ServiceParams struct {
	Fetcher  NetworkFetcher
	Store    ObjectStore
	Sink     *TableSink
	Detector AnomalyDetector
	Notifier AlertNotifier
	Apps     []string
	Metrics  *metrics.PipelineMetrics
	Logger   *logger.Logger
}

// Service runs the network CTR alert pipeline: fetch the day's report,
// stage it in GCS, replace the day in BigQuery, then detect and notify.
type Service struct {
	fetcher  NetworkFetcher
	store    ObjectStore
	sink     *TableSink
	detector AnomalyDetector
	notifier AlertNotifier
	apps     []string
	metrics  *metrics.PipelineMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if params.Store == nil {
		return nil, errors.New("object store is required")
	}
	if params.Sink == nil {
		return nil, errors.New("table sink is required")
	}
	if params.Detector == nil {
		return nil, errors.New("detector is required")
	}
	return &Service{
		fetcher:  params.Fetcher,
		store:    params.Store,
		sink:     params.Sink,
		detector: params.Detector,
		notifier: params.Notifier,
		apps:     params.Apps,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// networkSchema mirrors the column order NetworkNormalizer emits. The load
// keeps an explicit schema so `date` stays a DATE column; the delete step
// filters on it.
func networkSchema() bigquery.Schema {
	return bigquery.Schema{
		{Name: "date", Type: bigquery.DateFieldType},
		{Name: "app_name", Type: bigquery.StringFieldType},
		{Name: "format", Type: bigquery.StringFieldType},
		{Name: "ad_unit_name", Type: bigquery.StringFieldType},
		{Name: "ad_requests", Type: bigquery.IntegerFieldType},
		{Name: "clicks", Type: bigquery.IntegerFieldType},
		{Name: "estimated_earnings_micros", Type: bigquery.IntegerFieldType},
		{Name: "impressions", Type: bigquery.IntegerFieldType},
		{Name: "impression_ctr", Type: bigquery.FloatFieldType},
		{Name: "matched_requests", Type: bigquery.IntegerFieldType},
		{Name: "match_rate", Type: bigquery.FloatFieldType},
		{Name: "impression_rpm", Type: bigquery.FloatFieldType},
		{Name: "show_rate", Type: bigquery.FloatFieldType},
	}
}

// Run executes the pipeline for one report date. A day with no report rows
// is not an error; the run stops after logging it.
func (s *Service) Run(ctx context.Context, reportDate time.Time) error {
	if s == nil {
		return errors.New("service not initialized")
	}
	day := reportDate.UTC().Format("2006-01-02")
	if s.logg != nil {
		ctx = s.logg.WithReportDate(ctx, day)
	}

	if err := s.run(ctx, reportDate); err != nil {
		s.metrics.IncFailure(PipelineNetworkAlerts)
		return err
	}
	s.metrics.IncSuccess(PipelineNetworkAlerts)
	return nil
}

func (s *Service) run(ctx context.Context, reportDate time.Time) error {
	started := time.Now()
	rows, err := s.fetcher.FetchNetworkReport(ctx, reportDate, s.apps)
	if err != nil {
		return fmt.Errorf("fetching network report: %w", err)
	}
	s.metrics.ObserveStage(PipelineNetworkAlerts, stageFetch, time.Since(started))

	if len(rows) == 0 {
		if s.logg != nil {
			s.logg.Warn(ctx, "no network report rows for date, skipping load")
		}
		return nil
	}

	started = time.Now()
	normalizer := report.NetworkNormalizer()
	payload, err := report.EncodeCSV(normalizer.Columns(), normalizer.NormalizeAll(rows))
	if err != nil {
		return fmt.Errorf("encoding network report: %w", err)
	}

	object := fmt.Sprintf("network_%s.csv", reportDate.UTC().Format("20060102"))
	uri, err := s.store.Upload(ctx, object, "text/csv", payload)
	if err != nil {
		return fmt.Errorf("staging network report: %w", err)
	}
	s.metrics.ObserveStage(PipelineNetworkAlerts, stageUpload, time.Since(started))

	started = time.Now()
	loaded, err := s.sink.Load(ctx, civil.DateOf(reportDate.UTC()), pkgbigquery.LoadJobSpec{
		URI:             uri,
		Format:          bigquery.CSV,
		SkipLeadingRows: 1,
		Schema:          networkSchema(),
	})
	if err != nil {
		return err
	}
	s.metrics.ObserveStage(PipelineNetworkAlerts, stageLoad, time.Since(started))
	s.metrics.AddRowsLoaded(s.sink.Table(), loaded)
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "rows_loaded", loaded), "network report loaded")
	}

	started = time.Now()
	result, err := s.detector.Detect(ctx, reportDate)
	if err != nil {
		return fmt.Errorf("detecting anomalies: %w", err)
	}
	s.metrics.ObserveStage(PipelineNetworkAlerts, stageDetect, time.Since(started))

	if s.notifier == nil {
		return nil
	}
	started = time.Now()
	if err := s.notifier.Notify(ctx, result); err != nil {
		// The day is already loaded; a dropped notification is not worth a
		// retry of the whole run.
		if s.logg != nil {
			s.logg.Error(ctx, "delivering ctr alert notification", err)
		}
	}
	s.metrics.ObserveStage(PipelineNetworkAlerts, stageNotify, time.Since(started))
	return nil
}

package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/admob-reporting/internal/admob"
	"github.com/angelmondragon/admob-reporting/internal/anomaly"
	"github.com/angelmondragon/admob-reporting/internal/notify"
	"github.com/angelmondragon/admob-reporting/internal/pipeline"
	pkgbigquery "github.com/angelmondragon/admob-reporting/pkg/bigquery"
	"github.com/angelmondragon/admob-reporting/pkg/config"
	"github.com/angelmondragon/admob-reporting/pkg/logger"
	"github.com/angelmondragon/admob-reporting/pkg/metrics"
	"github.com/angelmondragon/admob-reporting/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "ctr-alerts"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "ctr-alerts",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	reportDate, err := cfg.Report.ResolveDate(time.Now().UTC())
	if err != nil {
		logg.Error(ctx, "failed to resolve report date", err)
		os.Exit(1)
	}

	admobClient, err := admob.NewClient(ctx, cfg.AdMob, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap admob client", err)
		os.Exit(1)
	}

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap gcs client", err)
		os.Exit(1)
	}

	bqClient, err := pkgbigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap bigquery client", err)
		os.Exit(1)
	}
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "error closing bigquery client", err)
		}
	}()

	if err := multierr.Combine(gcsClient.Ping(ctx), bqClient.Ping(ctx)); err != nil {
		logg.Error(ctx, "dependency health check failed", err)
		os.Exit(1)
	}

	detector, err := anomaly.NewDetector(anomaly.NewQuerier(bqClient), anomaly.Config{
		TableFQN:     bqClient.TableFQN(cfg.BigQuery.NetworkTable),
		AdUnits:      cfg.Report.CleanAdUnits(),
		Threshold:    cfg.Report.CTRThreshold,
		BaselineDays: cfg.Report.BaselineDays,
	})
	if err != nil {
		logg.Error(ctx, "failed to create anomaly detector", err)
		os.Exit(1)
	}

	var notifier pipeline.AlertNotifier
	if cfg.Slack.WebhookURL != "" {
		slackNotifier, err := notify.NewNotifier(cfg.Slack, logg)
		if err != nil {
			logg.Error(ctx, "failed to create slack notifier", err)
			os.Exit(1)
		}
		notifier = slackNotifier
	} else {
		logg.Warn(ctx, "slack webhook not configured, alerts will only be logged")
	}

	sink, err := pipeline.NewTableSink(bqClient, cfg.BigQuery.NetworkTable, pipeline.ModeReplaceDate)
	if err != nil {
		logg.Error(ctx, "failed to create table sink", err)
		os.Exit(1)
	}

	service, err := pipeline.NewService(pipeline.ServiceParams{
		Fetcher:  admobClient,
		Store:    gcsClient,
		Sink:     sink,
		Detector: detector,
		Notifier: notifier,
		Apps:     cfg.Report.CleanApps(),
		Metrics:  metrics.NewPipelineMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create pipeline service", err)
		os.Exit(1)
	}

	logg.Info(logg.WithReportDate(ctx, reportDate.Format("2006-01-02")), "starting ctr alerts run")

	if err := service.Run(ctx, reportDate); err != nil {
		logg.Error(ctx, "ctr alerts run failed", err)
		os.Exit(1)
	}

	logg.Info(ctx, "ctr alerts run complete")
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/admob-reporting/internal/anomaly"
	"github.com/angelmondragon/admob-reporting/pkg/config"
	"github.com/angelmondragon/admob-reporting/pkg/logger"
	"github.com/slack-go/slack"
)

const defaultTimeout = 10 * time.Second

// Notifier posts the CTR alert summary to a Slack incoming webhook. Delivery
// is bounded by a short timeout; a hung webhook must not stall the pipeline.
type Notifier struct {
	webhookURL string
	timeout    time.Duration
	httpClient *http.Client
	logg       *logger.Logger
}

func NewNotifier(cfg config.SlackConfig, logg *logger.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, errors.New("slack webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Notifier{
		webhookURL: cfg.WebhookURL,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logg:       logg,
	}, nil
}

// Notify delivers the detection outcome. Anomalies are grouped per app; a
// clean run still names every checked ad unit.
func (n *Notifier) Notify(ctx context.Context, report *anomaly.Report) error {
	if report == nil {
		return errors.New("report is required")
	}

	text := FormatReport(report)

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg := &slack.WebhookMessage{Text: text}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.httpClient, msg); err != nil {
		return fmt.Errorf("posting slack webhook: %w", err)
	}

	if n.logg != nil {
		n.logg.Info(ctx, "ctr alert notification delivered")
	}
	return nil
}

// FormatReport renders the Slack message body for a detection report.
func FormatReport(report *anomaly.Report) string {
	date := report.Date.Format("2006-01-02")

	if len(report.Results) == 0 {
		lines := []string{
			fmt.Sprintf("*Native CTR Spike Alert for %s*", date),
			"No anomalies detected for the following ad units:",
		}
		for _, key := range report.CheckedKeys {
			lines = append(lines, fmt.Sprintf("• %s", key))
		}
		return strings.Join(lines, "\n")
	}

	days := report.BaselineDays
	if days <= 0 {
		days = anomaly.DefaultBaselineDays
	}

	// One section per app, apps in first-seen order.
	appOrder := []string{}
	linesByApp := map[string][]string{}
	for _, result := range report.Results {
		if _, ok := linesByApp[result.App]; !ok {
			appOrder = append(appOrder, result.App)
		}
		line := fmt.Sprintf(
			"• %s is %s %.0f%% of %d-day avg (avg=%.4f, today=%.4f, %+.2f%%)",
			result.AdUnit, result.Direction(), report.Threshold, days,
			result.BaselineCTR, result.TodayCTR, result.PctChange,
		)
		linesByApp[result.App] = append(linesByApp[result.App], line)
	}

	sections := []string{fmt.Sprintf("*Native CTR Spike Alert for %s*", date)}
	for _, app := range appOrder {
		sections = append(sections, fmt.Sprintf("\nApp name: %s\n", app))
		sections = append(sections, linesByApp[app]...)
	}
	return strings.Join(sections, "\n")
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "admob"

const reportDateLayout = "2006-01-02"

type Config struct {
	App      AppConfig
	AdMob    AdMobConfig
	GCP      GCPConfig
	GCS      GCSConfig
	BigQuery BigQueryConfig
	Slack    SlackConfig
	Report   ReportConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if _, err := cfg.Report.ResolveDate(time.Now().UTC()); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"APP_ENV" default:"prod"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "dev")
}

type AdMobConfig struct {
	ClientID     string `envconfig:"ADMOB_CLIENT_ID" required:"true"`
	ClientSecret string `envconfig:"ADMOB_CLIENT_SECRET" required:"true"`
	RefreshToken string `envconfig:"ADMOB_REFRESH_TOKEN" required:"true"`
	PublisherID  string `envconfig:"ADMOB_PUBLISHER_ID"`
}

// PublisherNumber strips any resource prefix, keeping the trailing pub-XXXX id.
func (a AdMobConfig) PublisherNumber() string {
	trimmed := strings.TrimSpace(a.PublisherID)
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GCP_PROJECT" required:"true"`
	CredentialsJSON        string `envconfig:"GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"GCS_BUCKET_NAME" required:"true"`
}

type BigQueryConfig struct {
	Dataset        string `envconfig:"BQ_DATASET" required:"true"`
	NetworkTable   string `envconfig:"BQ_TABLE_NETWORK" default:"admob_network_daily"`
	MediationTable string `envconfig:"BQ_TABLE_MEDIATION" default:"admob_mediation_daily"`
}

type SlackConfig struct {
	WebhookURL string        `envconfig:"SLACK_WEBHOOK_URL"`
	Timeout    time.Duration `envconfig:"SLACK_TIMEOUT" default:"10s"`
}

type ReportConfig struct {
	// Date overrides the report date (YYYY-MM-DD); INPUT_RUN_DATE is kept for
	// manually dispatched runs.
	Date    string `envconfig:"REPORT_DATE"`
	RunDate string `envconfig:"INPUT_RUN_DATE"`

	Apps         []string `envconfig:"ADMOB_APP_LIST"`
	AdUnits      []string `envconfig:"AD_UNIT_IDS"`
	CTRThreshold float64  `envconfig:"CTR_ALERT_THRESHOLD" default:"25"`
	BaselineDays int      `envconfig:"CTR_BASELINE_DAYS" default:"7"`
}

// ResolveDate picks the report date: explicit override, otherwise yesterday
// relative to now.
func (r ReportConfig) ResolveDate(now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.Date)
	if raw == "" {
		raw = strings.TrimSpace(r.RunDate)
	}
	if raw == "" {
		yesterday := now.UTC().AddDate(0, 0, -1)
		return time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	parsed, err := time.ParseInLocation(reportDateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing report date %q: %w", raw, err)
	}
	return parsed, nil
}

// CleanAdUnits trims whitespace and drops empty entries from the ad unit
// allow-list.
func (r ReportConfig) CleanAdUnits() []string {
	out := make([]string, 0, len(r.AdUnits))
	for _, unit := range r.AdUnits {
		if trimmed := strings.TrimSpace(unit); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// CleanApps trims whitespace and drops empty entries from the app allow-list.
func (r ReportConfig) CleanApps() []string {
	out := make([]string, 0, len(r.Apps))
	for _, app := range r.Apps {
		if trimmed := strings.TrimSpace(app); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

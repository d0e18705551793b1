package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/angelmondragon/admob-reporting/pkg/config"
	"github.com/angelmondragon/admob-reporting/pkg/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	metadataCheckTimeout = 10 * time.Second
)

type Client struct {
	client    *bigquery.Client
	dataset   *bigquery.Dataset
	projectID string
	cfg       config.BigQueryConfig
}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

type Pinger interface {
	Ping(context.Context) error
}

// NewClient creates a BigQuery client and verifies the configured dataset.
// Tables are not required to pre-exist; load jobs create them on demand.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}

	opts := clientOptions(gcp)
	bqClient, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	client := &Client{
		client:    bqClient,
		dataset:   bqClient.Dataset(datasetID),
		projectID: projectID,
		cfg:       cfg,
	}

	if err := client.ensureDataset(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, "bigquery client initialized")
	}

	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

func (c *Client) ensureDataset(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}

	return nil
}

// Ping verifies the dataset is accessible.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errClientNotInitialized
	}
	return c.ensureDataset(ctx)
}

// TableFQN returns the backtick-quoted fully qualified name for the given
// table in the configured dataset.
func (c *Client) TableFQN(table string) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("`%s.%s.%s`", c.projectID, c.dataset.DatasetID, strings.TrimSpace(table))
}

// LoadJobSpec describes a single load job from a GCS object into a table.
type LoadJobSpec struct {
	URI             string
	Format          bigquery.DataFormat
	SkipLeadingRows int64
	Autodetect      bool
	Schema          bigquery.Schema
}

// LoadFromGCS runs a load job from the referenced GCS object into the given
// table and blocks until the job reaches a terminal state. Rows are always
// appended; the caller owns any delete-before-load sequencing. Returns the
// number of rows the job reported as written.
func (c *Client) LoadFromGCS(ctx context.Context, table string, spec LoadJobSpec) (int64, error) {
	if c == nil || c.client == nil {
		return 0, errClientNotInitialized
	}
	if strings.TrimSpace(table) == "" {
		return 0, errTableNameRequired
	}
	if strings.TrimSpace(spec.URI) == "" {
		return 0, errors.New("gcs uri is required")
	}

	gcsRef := bigquery.NewGCSReference(spec.URI)
	gcsRef.SourceFormat = spec.Format
	gcsRef.SkipLeadingRows = spec.SkipLeadingRows
	gcsRef.AutoDetect = spec.Autodetect
	if len(spec.Schema) > 0 {
		gcsRef.Schema = spec.Schema
		gcsRef.AutoDetect = false
	}

	loader := c.dataset.Table(strings.TrimSpace(table)).LoaderFrom(gcsRef)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("starting load job for %s: %w", table, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for load job for %s: %w", table, err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("load job for %s failed: %w", table, err)
	}

	if status.Statistics != nil {
		if details, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			return details.OutputRows, nil
		}
	}
	return 0, nil
}

// DeleteForDate removes every row in the table whose date column equals the
// given report date.
func (c *Client) DeleteForDate(ctx context.Context, table string, date civil.Date) error {
	if strings.TrimSpace(table) == "" {
		return errTableNameRequired
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE date = @report_date", c.TableFQN(table))
	return c.Exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "report_date", Value: date},
	})
}

// Exec runs a DML statement and blocks until it completes.
func (c *Client) Exec(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return errors.New("sql statement is required")
	}
	q := c.client.Query(sql)
	q.Parameters = params
	job, err := q.Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	return status.Err()
}

// Query executes SQL against BigQuery and returns the row iterator.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.client == nil {
		return nil, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.client.Query(sql)
	q.Parameters = params
	return q.Read(ctx)
}

// Close releases the BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}

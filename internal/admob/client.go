package admob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/admob-reporting/internal/report"
	"github.com/angelmondragon/admob-reporting/pkg/config"
	"github.com/angelmondragon/admob-reporting/pkg/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultBaseURL = "https://admob.googleapis.com"
	reportScope    = "https://www.googleapis.com/auth/admob.report"
)

var (
	errClientIDRequired     = errors.New("admob client id is required")
	errClientSecretRequired = errors.New("admob client secret is required")
	errRefreshTokenRequired = errors.New("admob refresh token is required")
	errNoAccounts           = errors.New("no admob accounts found")
)

// Client calls the AdMob v1 reporting API. Token refresh is handled by the
// underlying oauth2 transport.
type Client struct {
	httpClient *http.Client
	baseURL    string
	publisher  string
	logg       *logger.Logger
}

// NewClient builds a reporting client from the stored refresh token. When no
// publisher id is configured the first listed account is used at fetch time.
func NewClient(ctx context.Context, cfg config.AdMobConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errClientIDRequired
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errClientSecretRequired
	}
	if strings.TrimSpace(cfg.RefreshToken) == "" {
		return nil, errRefreshTokenRequired
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{reportScope},
	}
	tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	client := &Client{
		httpClient: oauth2.NewClient(ctx, tokenSource),
		baseURL:    defaultBaseURL,
		publisher:  cfg.PublisherNumber(),
		logg:       logg,
	}

	if logg != nil {
		logg.Info(ctx, "admob client initialized")
	}
	return client, nil
}

// Account is one AdMob publisher account visible to the credential.
type Account struct {
	Name        string `json:"name"`
	PublisherID string `json:"publisherId"`
}

// ListAccounts returns the publisher accounts for the credential.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/accounts", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing admob accounts: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("accounts.list", resp)
	}

	var payload struct {
		Account []Account `json:"account"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding account list: %w", err)
	}
	return payload.Account, nil
}

// FetchNetworkReport generates the network report for a single day. When apps
// is non-empty the report is restricted to those app ids.
func (c *Client) FetchNetworkReport(ctx context.Context, date time.Time, apps []string) ([]report.Row, error) {
	normalizer := report.NetworkNormalizer()
	spec := daySpec(date, normalizer.DimensionKeys(), normalizer.MetricKeys())
	if len(apps) > 0 {
		spec.DimensionFilters = []dimensionFilter{{
			Dimension:  "APP",
			MatchesAny: matchesAny{Values: apps},
		}}
	}
	return c.generate(ctx, "networkReport", spec)
}

// FetchMediationReport generates the mediation report for a single day.
func (c *Client) FetchMediationReport(ctx context.Context, date time.Time) ([]report.Row, error) {
	normalizer := report.MediationNormalizer()
	return c.generate(ctx, "mediationReport", daySpec(date, normalizer.DimensionKeys(), normalizer.MetricKeys()))
}

func (c *Client) generate(ctx context.Context, kind string, spec reportSpec) ([]report.Row, error) {
	account, err := c.accountName(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{"reportSpec": spec})
	if err != nil {
		return nil, fmt.Errorf("encoding report spec: %w", err)
	}

	u := fmt.Sprintf("%s/v1/%s/%s:generate", c.baseURL, account, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generating %s: %w", kind, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(kind+".generate", resp)
	}

	var chunks []report.Chunk
	if err := json.NewDecoder(resp.Body).Decode(&chunks); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", kind, err)
	}
	return report.Rows(chunks), nil
}

func (c *Client) accountName(ctx context.Context) (string, error) {
	if c.publisher != "" {
		return "accounts/" + c.publisher, nil
	}
	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", errNoAccounts
	}
	c.publisher = accounts[0].PublisherID
	return accounts[0].Name, nil
}

func apiError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if len(b) > 0 {
		return fmt.Errorf("admob %s returned %s: %s", op, resp.Status, strings.TrimSpace(string(b)))
	}
	return fmt.Errorf("admob %s returned %s", op, resp.Status)
}

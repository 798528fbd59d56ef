package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client wraps a BigQuery connection scoped to the analytics dataset. The
// dataset and tables are provisioned out of band; construction only checks
// they exist so a misconfigured worker fails at boot, not on first insert.
type Client struct {
	client    *bigquery.Client
	dataset   *bigquery.Dataset
	projectID string
	tables    []string
	cfg       config.BigQueryConfig
}

type Pinger interface {
	Ping(context.Context) error
}

func credentialOptions(gcp config.GCPConfig) []option.ClientOption {
	if json := strings.TrimSpace(gcp.CredentialsJSON); json != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(json))}
	}
	if file := strings.TrimSpace(gcp.ApplicationCredentials); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

func requiredTables(cfg config.BigQueryConfig) ([]string, error) {
	revenue := strings.TrimSpace(cfg.RevenueTable)
	if revenue == "" {
		return nil, errTableNameRequired
	}
	return []string{revenue}, nil
}

// NewClient connects to BigQuery and verifies the configured dataset and
// tables are reachable.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case datasetID == "":
		return nil, errDatasetRequired
	}
	tables, err := requiredTables(cfg)
	if err != nil {
		return nil, err
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, credentialOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	client := &Client{
		client:    bqClient,
		dataset:   bqClient.Dataset(datasetID),
		projectID: projectID,
		tables:    tables,
		cfg:       cfg,
	}
	if err := client.verifyMetadata(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, "bigquery client initialized")
	}
	return client, nil
}

// verifyMetadata confirms the dataset and every required table still exist.
func (c *Client) verifyMetadata(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	_, err := c.dataset.Metadata(ctx)
	switch {
	case isNotFound(err):
		return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
	case err != nil:
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}

	for _, name := range c.tables {
		_, err := c.dataset.Table(name).Metadata(ctx)
		switch {
		case isNotFound(err):
			return fmt.Errorf("table %q does not exist", name)
		case err != nil:
			return fmt.Errorf("checking table %q: %w", name, err)
		}
	}
	return nil
}

// Ping verifies the dataset and tables are still accessible.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errClientNotInitialized
	}
	return c.verifyMetadata(ctx)
}

// InsertRows streams rows into a table of the configured dataset.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	switch {
	case c == nil || c.client == nil:
		return errClientNotInitialized
	case strings.TrimSpace(table) == "":
		return errTableNameRequired
	case len(rows) == 0:
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return c.dataset.Table(strings.TrimSpace(table)).Inserter().Put(ctx, rows)
}

// Close releases the underlying client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr != nil && apiErr.Code == http.StatusNotFound
}

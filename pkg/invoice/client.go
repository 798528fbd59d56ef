package invoice

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

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
)

const (
	generatePath                = "v1/invoices"
	errorBodyReadLimit    int64 = 1024
	defaultTimeout              = 15 * time.Second
	defaultMaxAttempts          = 3
	defaultInitialBackoff       = 500 * time.Millisecond
	maxBackoff                  = 5 * time.Second
)

var (
	errBaseURLRequired = errors.New("invoice service base url is required")
	errAPIKeyRequired  = errors.New("invoice service api key is required")
)

// Client renders invoice PDFs through the external invoice service. Calls are
// retried on transient failures; a rendered invoice for the same invoice
// number is replaced server-side, so retries are safe.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	maxAttempts int
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the invoice service client from configuration.
func NewClient(cfg config.InvoiceConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		maxAttempts: maxAttempts,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// Line is one invoice line item.
type Line struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// GenerateParams describes the invoice to render.
type GenerateParams struct {
	InvoiceNumber string          `json:"invoice_number"`
	OrderNumber   string          `json:"order_number"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	Currency      string          `json:"currency"`
	Lines         []Line          `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Credits       decimal.Decimal `json:"credits"`
	Total         decimal.Decimal `json:"total"`
	IssuedAt      time.Time       `json:"issued_at"`
}

func (p GenerateParams) validate() error {
	if strings.TrimSpace(p.InvoiceNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice number is required")
	}
	if strings.TrimSpace(p.OrderNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	if len(p.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one invoice line is required")
	}
	return nil
}

// GenerateResult carries the URLs of the rendered invoice documents.
type GenerateResult struct {
	PDFURL    string `json:"pdf_url"`
	ImageURL  string `json:"image_url"`
	QRCodeURL string `json:"qr_code_url"`
}

// Generate renders the invoice and returns its document URLs. Transient
// upstream failures (429, 5xx, transport errors) are retried with capped
// exponential backoff up to the configured attempt limit.
func (c *Client) Generate(ctx context.Context, params GenerateParams) (*GenerateResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "invoice client not configured")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal invoice request")
	}

	backoff := retry.WithCappedDuration(maxBackoff, retry.NewExponential(defaultInitialBackoff))
	backoff = retry.WithMaxRetries(uint64(c.maxAttempts-1), backoff)

	var result *GenerateResult
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		generated, attemptErr := c.generateOnce(ctx, payload)
		if attemptErr != nil {
			return attemptErr
		}
		result = generated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) generateOnce(ctx context.Context, payload []byte) (*GenerateResult, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, generatePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build invoice request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute invoice request"))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var result GenerateResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode invoice response")
		}
		if strings.TrimSpace(result.PDFURL) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "invoice service returned no document url")
		}
		return &result, nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	failure := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))

	if isRetryableStatus(resp.StatusCode) {
		return nil, retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeDependency, failure, "invoice request failed"))
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, failure, "invoice request rejected")
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

package mailer

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

	"github.com/shopspring/decimal"

	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
)

const (
	sendPath                    = "v1/messages"
	errorBodyReadLimit    int64 = 1024
	defaultTimeout              = 10 * time.Second
	templateOrderPaid           = "order_confirmation"
	templatePaymentIssue        = "payment_failed"
	templateOrderCancelled      = "order_cancelled"
)

var (
	errBaseURLRequired = errors.New("mailer base url is required")
	errAPIKeyRequired  = errors.New("mailer api key is required")
)

// Client sends transactional email through the mail service HTTP API.
// Delivery is best effort: callers log failures and move on, the order flow
// never blocks on email.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	fromEmail  string
	fromName   string
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

// NewClient builds the mail service client from configuration.
func NewClient(cfg config.MailerConfig, opts ...Option) (*Client, error) {
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

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		fromEmail:  strings.TrimSpace(cfg.FromEmail),
		fromName:   strings.TrimSpace(cfg.FromName),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// OrderConfirmation is the data for the order-paid email.
type OrderConfirmation struct {
	ToEmail       string
	ToName        string
	OrderNumber   string
	InvoiceNumber string
	TotalAmount   decimal.Decimal
	Currency      string
	InvoiceURL    string
}

// PaymentFailedNotice is the data for the payment-failed email.
type PaymentFailedNotice struct {
	ToEmail          string
	ToName           string
	PaymentReference string
	Reason           string
}

// OrderCancelledNotice is the data for the order-cancelled email.
type OrderCancelledNotice struct {
	ToEmail     string
	ToName      string
	OrderNumber string
	TotalAmount decimal.Decimal
	Currency    string
	Reason      string
}

// SendOrderConfirmation emails the customer their paid-order summary with a
// link to the invoice document.
func (c *Client) SendOrderConfirmation(ctx context.Context, msg OrderConfirmation) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "mailer client not configured")
	}
	if strings.TrimSpace(msg.ToEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient email is required")
	}
	if strings.TrimSpace(msg.OrderNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}

	return c.send(ctx, templateOrderPaid, msg.ToEmail, msg.ToName, map[string]any{
		"order_number":   msg.OrderNumber,
		"invoice_number": msg.InvoiceNumber,
		"total_amount":   msg.TotalAmount.StringFixed(2),
		"currency":       msg.Currency,
		"invoice_url":    msg.InvoiceURL,
	})
}

// SendPaymentFailed emails the customer that their payment did not complete.
func (c *Client) SendPaymentFailed(ctx context.Context, msg PaymentFailedNotice) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "mailer client not configured")
	}
	if strings.TrimSpace(msg.ToEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient email is required")
	}
	if strings.TrimSpace(msg.PaymentReference) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	return c.send(ctx, templatePaymentIssue, msg.ToEmail, msg.ToName, map[string]any{
		"payment_reference": msg.PaymentReference,
		"reason":            msg.Reason,
	})
}

// SendOrderCancelled emails the customer that their order was cancelled and
// their stock released.
func (c *Client) SendOrderCancelled(ctx context.Context, msg OrderCancelledNotice) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "mailer client not configured")
	}
	if strings.TrimSpace(msg.ToEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient email is required")
	}
	if strings.TrimSpace(msg.OrderNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}

	return c.send(ctx, templateOrderCancelled, msg.ToEmail, msg.ToName, map[string]any{
		"order_number": msg.OrderNumber,
		"total_amount": msg.TotalAmount.StringFixed(2),
		"currency":     msg.Currency,
		"reason":       msg.Reason,
	})
}

type sendRequest struct {
	From     party          `json:"from"`
	To       party          `json:"to"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

type party struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (c *Client) send(ctx context.Context, template, toEmail, toName string, data map[string]any) error {
	body := sendRequest{
		From:     party{Email: c.fromEmail, Name: c.fromName},
		To:       party{Email: toEmail, Name: toName},
		Template: template,
		Data:     data,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal mail request")
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, sendPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build mail request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute mail request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	return pkgerrors.Wrap(pkgerrors.CodeDependency,
		fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		"mail request failed")
}

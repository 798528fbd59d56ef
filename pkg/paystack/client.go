package paystack

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

	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
)

var (
	errSecretKeyRequired   = errors.New("paystack secret key is required")
	errBaseURLRequired     = errors.New("paystack base url is required")
	errCallbackURLRequired = errors.New("paystack callback url is required")
	errLoggerRequired      = errors.New("paystack logger is required")
)

// Client wraps the Paystack REST API with centralized auth, logging, and
// error mapping. All amounts cross the wire in minor units.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	secretKey   string
	callbackURL string
	currency    string
	logger      *logger.Logger
}

// NewClient initializes the Paystack wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.PaystackConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}

	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, errSecretKeyRequired
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	callbackURL := strings.TrimSpace(cfg.CallbackURL)
	if callbackURL == "" {
		return nil, errCallbackURLRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "NGN"
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		secretKey:   secretKey,
		callbackURL: callbackURL,
		currency:    currency,
		logger:      logg,
	}

	logg.Info(ctx, "paystack client initialized")
	return c, nil
}

// SecretKey returns the configured Paystack secret. Webhook signature checks
// need it raw.
func (c *Client) SecretKey() string {
	if c == nil {
		return ""
	}
	return c.secretKey
}

// CallbackURL returns the redirect target registered for hosted checkout.
func (c *Client) CallbackURL() string {
	if c == nil {
		return ""
	}
	return c.callbackURL
}

// DefaultCurrency reports the currency used when a charge does not carry one.
func (c *Client) DefaultCurrency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// Initialize opens a hosted payment session for the given reference. The
// caller owns reference uniqueness; Paystack rejects reuse.
func (c *Client) Initialize(ctx context.Context, params InitializeParams) (*InitializeResult, error) {
	if err := params.validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "paystack initialize rejected")
	}

	c.log(ctx, "request", "initialize_transaction", map[string]any{
		"reference": params.Reference,
		"amount":    params.AmountMinorUnits,
		"email":     params.Email,
	})

	body := params.toWireRequest(c.callbackURL, c.currency)
	var data initializeData
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		c.log(ctx, "error", "initialize_transaction", map[string]any{"error": err.Error()})
		return nil, err
	}

	result := &InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}
	if result.Reference == "" {
		result.Reference = params.Reference
	}

	c.log(ctx, "response", "initialize_transaction", map[string]any{
		"reference":   result.Reference,
		"access_code": result.AccessCode,
	})
	return result, nil
}

// Verify fetches the gateway-side state of a transaction by reference.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	c.log(ctx, "request", "verify_transaction", map[string]any{"reference": reference})

	var data verifyData
	path := fmt.Sprintf("/transaction/verify/%s", reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		c.log(ctx, "error", "verify_transaction", map[string]any{"error": err.Error()})
		return nil, err
	}

	result := data.toResult()
	c.log(ctx, "response", "verify_transaction", map[string]any{
		"reference": result.Reference,
		"status":    result.Status,
	})
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "paystack request encoding failed")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "paystack request build failed")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paystack request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paystack response read failed")
	}

	var envelope wireEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode >= 400 {
			return pkgerrors.New(domainCodeForStatus(resp.StatusCode),
				fmt.Sprintf("paystack returned status %d", resp.StatusCode))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paystack response decoding failed")
	}

	if resp.StatusCode >= 400 || !envelope.Status {
		message := strings.TrimSpace(envelope.Message)
		if message == "" {
			message = fmt.Sprintf("paystack returned status %d", resp.StatusCode)
		}
		return pkgerrors.New(domainCodeForStatus(resp.StatusCode), message)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paystack payload decoding failed")
		}
	}
	return nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("paystack %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("paystack %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"secret", "token", "key", "email", "card", "authorization_code"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

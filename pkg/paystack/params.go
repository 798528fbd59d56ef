package paystack

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Transaction statuses Paystack reports on verify and webhook payloads.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// InitializeParams contains the fields required to open a hosted checkout.
type InitializeParams struct {
	Email            string
	AmountMinorUnits int64
	Reference        string
	Metadata         map[string]any
}

func (p InitializeParams) validate() error {
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("email is required")
	}
	if p.AmountMinorUnits <= 0 {
		return errors.New("amount must be positive")
	}
	if strings.TrimSpace(p.Reference) == "" {
		return errors.New("reference is required")
	}
	return nil
}

func (p InitializeParams) toWireRequest(callbackURL, currency string) initializeRequest {
	return initializeRequest{
		Email:       strings.TrimSpace(p.Email),
		Amount:      p.AmountMinorUnits,
		Reference:   strings.TrimSpace(p.Reference),
		CallbackURL: callbackURL,
		Currency:    currency,
		Metadata:    p.Metadata,
	}
}

// InitializeResult carries the hosted-checkout handles the frontend needs.
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult is the gateway-side view of one transaction.
type VerifyResult struct {
	Status                string
	Reference             string
	AmountMinor           int64
	Currency              string
	ProviderTransactionID string
	PaidAt                *time.Time
	Channel               string
	FeesMinor             int64
	GatewayResponse       string
	Authorization         json.RawMessage
}

// IsSuccessful reports whether the gateway settled the charge.
func (r *VerifyResult) IsSuccessful() bool {
	return r != nil && r.Status == StatusSuccess
}

type wireEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeRequest struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Currency    string         `json:"currency,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	ID              int64           `json:"id"`
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	PaidAt          string          `json:"paid_at"`
	Channel         string          `json:"channel"`
	Fees            int64           `json:"fees"`
	GatewayResponse string          `json:"gateway_response"`
	Authorization   json.RawMessage `json:"authorization"`
}

func (d verifyData) toResult() *VerifyResult {
	result := &VerifyResult{
		Status:          strings.ToLower(strings.TrimSpace(d.Status)),
		Reference:       d.Reference,
		AmountMinor:     d.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(d.Currency)),
		Channel:         d.Channel,
		FeesMinor:       d.Fees,
		GatewayResponse: d.GatewayResponse,
		Authorization:   d.Authorization,
	}
	if d.ID != 0 {
		result.ProviderTransactionID = strconv.FormatInt(d.ID, 10)
	}
	if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(d.PaidAt)); err == nil {
		result.PaidAt = &parsed
	}
	return result
}

package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Webhook event types this service reacts to. Everything else is accepted
// and ignored so gateway schema growth never breaks delivery.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// WebhookEvent is the decoded body of a Paystack webhook delivery. Data
// reuses the verify wire shape since charge events carry the same fields.
type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChargeData decodes the event payload into the transaction view.
func (e *WebhookEvent) ChargeData() (*VerifyResult, error) {
	var data verifyData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, err
	}
	return data.toResult(), nil
}

// ParseWebhook decodes a raw webhook body. Call VerifySignature first; the
// payload is untrusted until the signature passes.
func ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// VerifySignature checks the X-Paystack-Signature header: hex-encoded
// HMAC-SHA512 of the raw body keyed with the secret. Constant-time compare.
func (c *Client) VerifySignature(rawBody []byte, signatureHeader string) bool {
	if c == nil {
		return false
	}
	return VerifySignature(c.secretKey, rawBody, signatureHeader)
}

// VerifySignature is the header check without a client, for tests and tools.
func VerifySignature(secretKey string, rawBody []byte, signatureHeader string) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if secretKey == "" || signatureHeader == "" {
		return false
	}
	provided, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), provided)
}

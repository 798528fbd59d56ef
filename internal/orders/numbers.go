package orders

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Order and invoice numbers are the identifiers customers quote in support
// tickets and accountants file invoices under. Format: prefix, UTC date, then
// a short random suffix so numbers are not guessable or enumerable.
const (
	orderNumberPrefix   = "KC-"
	invoiceNumberPrefix = "INV-"
	numberDateLayout    = "20060102"
	numberEntropyBytes  = 3

	numberAttempts = 3
)

func newOrderNumber(now time.Time) (string, error) {
	return newNumber(orderNumberPrefix, now)
}

func newInvoiceNumber(now time.Time) (string, error) {
	return newNumber(invoiceNumberPrefix, now)
}

func newNumber(prefix string, now time.Time) (string, error) {
	buf := make([]byte, numberEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate %s number suffix: %w", strings.TrimSuffix(prefix, "-"), err)
	}
	suffix := strings.ToUpper(hex.EncodeToString(buf))
	return prefix + now.UTC().Format(numberDateLayout) + "-" + suffix, nil
}

package checkout

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Payment references are minted here and nowhere else. Paystack treats a
// reference as single-use, so every pending order gets a fresh one and a
// burned reference is never recycled.
const (
	paymentReferencePrefix = "kc_"
	referenceEntropyBytes  = 12
)

func newPaymentReference() (string, error) {
	buf := make([]byte, referenceEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate payment reference: %w", err)
	}
	return paymentReferencePrefix + hex.EncodeToString(buf), nil
}

package enums

import "fmt"

// PaymentStatus tracks the lifecycle of a pending order's payment.
type PaymentStatus string

const (
	PaymentStatusInitialized PaymentStatus = "initialized"
	PaymentStatusPending     PaymentStatus = "pending"
	PaymentStatusSuccess     PaymentStatus = "success"
	PaymentStatusFailed      PaymentStatus = "failed"
	PaymentStatusCancelled   PaymentStatus = "cancelled"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusInitialized,
	PaymentStatusPending,
	PaymentStatusSuccess,
	PaymentStatusFailed,
	PaymentStatusCancelled,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsCancellable reports whether the buyer can still abandon the payment.
// Everything short of success qualifies, including failed attempts: the
// gateway lets a customer retry a failed charge on the same reference, so
// failed is not a dead end until the order is cancelled.
func (p PaymentStatus) IsCancellable() bool {
	return p == PaymentStatusInitialized || p == PaymentStatusPending || p == PaymentStatusFailed
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

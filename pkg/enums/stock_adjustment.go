package enums

import "fmt"

// StockAdjustmentDirection says which way an adjustment moves product quantity.
type StockAdjustmentDirection string

const (
	StockAdjustmentDecrement StockAdjustmentDirection = "decrement"
	StockAdjustmentIncrement StockAdjustmentDirection = "increment"
)

var validStockAdjustmentDirections = []StockAdjustmentDirection{
	StockAdjustmentDecrement,
	StockAdjustmentIncrement,
}

// String implements fmt.Stringer.
func (d StockAdjustmentDirection) String() string {
	return string(d)
}

// IsValid reports whether the direction is recognized.
func (d StockAdjustmentDirection) IsValid() bool {
	for _, candidate := range validStockAdjustmentDirections {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseStockAdjustmentDirection converts raw input into a direction.
func ParseStockAdjustmentDirection(value string) (StockAdjustmentDirection, error) {
	for _, candidate := range validStockAdjustmentDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock adjustment direction %q", value)
}

// StockAdjustmentStatus records whether the product update landed.
// Failed rows are picked up again by the reconciliation job.
type StockAdjustmentStatus string

const (
	StockAdjustmentApplied StockAdjustmentStatus = "applied"
	StockAdjustmentFailed  StockAdjustmentStatus = "failed"
)

var validStockAdjustmentStatuses = []StockAdjustmentStatus{
	StockAdjustmentApplied,
	StockAdjustmentFailed,
}

// String implements fmt.Stringer.
func (s StockAdjustmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is recognized.
func (s StockAdjustmentStatus) IsValid() bool {
	for _, candidate := range validStockAdjustmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

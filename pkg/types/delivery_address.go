package types

import (
	"fmt"
	"strings"
)

// DeliveryAddress is the shipping destination captured at checkout. Stored as
// jsonb on both the pending order and the order so later address-book edits
// never touch an in-flight or historical order.
type DeliveryAddress struct {
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code,omitempty"`
	Country    string  `json:"country"`
	Phone      string  `json:"phone,omitempty"`
}

// Validate checks the fields a courier cannot do without.
func (a DeliveryAddress) Validate() error {
	if strings.TrimSpace(a.Line1) == "" {
		return fmt.Errorf("delivery address: missing line1")
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("delivery address: missing city")
	}
	if strings.TrimSpace(a.State) == "" {
		return fmt.Errorf("delivery address: missing state")
	}
	if strings.TrimSpace(a.Country) == "" {
		return fmt.Errorf("delivery address: missing country")
	}
	return nil
}

package paystack

import "github.com/shopspring/decimal"

// minorUnitExponent is 2 for every currency this service charges in.
const minorUnitExponent = 2

// ToMinorUnits converts a decimal major amount to gateway minor units,
// rounding half away from zero at two decimal places first.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(minorUnitExponent).Shift(minorUnitExponent).IntPart()
}

// FromMinorUnits converts gateway minor units back to a decimal major amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorUnitExponent)
}

package asset

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// CanonicalDecimals is the common accounting precision every amount is
	// normalized to for cap and limit comparisons. It matches the stable
	// reference asset.
	CanonicalDecimals uint8 = 6

	// MaxDecimals is the highest native precision an asset may declare.
	MaxDecimals uint8 = 18
)

// ToCanonical scales an integer base-unit amount from the asset's native
// precision to canonical precision. Down-scaling floor-divides: the lost tail
// is a documented precision loss, not an error.
func ToCanonical(amount decimal.Decimal, sourceDecimals uint8) decimal.Decimal {
	switch {
	case sourceDecimals == CanonicalDecimals:
		return amount
	case sourceDecimals < CanonicalDecimals:
		return amount.Mul(pow10(CanonicalDecimals - sourceDecimals))
	default:
		return amount.DivRound(pow10(sourceDecimals-CanonicalDecimals), 16).Floor()
	}
}

// FromCanonical is the inverse of ToCanonical: it scales a canonical amount
// back to the asset's native precision. When the asset carries fewer digits
// than canonical the conversion floor-divides.
func FromCanonical(amount decimal.Decimal, sourceDecimals uint8) decimal.Decimal {
	switch {
	case sourceDecimals == CanonicalDecimals:
		return amount
	case sourceDecimals > CanonicalDecimals:
		return amount.Mul(pow10(sourceDecimals - CanonicalDecimals))
	default:
		return amount.DivRound(pow10(CanonicalDecimals-sourceDecimals), 16).Floor()
	}
}

// ValidateDecimals rejects precisions outside 0..18. This is a
// configuration-time check: it runs at registration, never per operation.
func ValidateDecimals(decimals uint8) error {
	if decimals > MaxDecimals {
		return fmt.Errorf("%w: decimals %d exceeds maximum %d", ErrInvalidConfiguration, decimals, MaxDecimals)
	}
	return nil
}

func pow10(exp uint8) decimal.Decimal {
	return decimal.New(1, int32(exp))
}

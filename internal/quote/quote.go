// =============================
// File: internal/quote/quote.go
// =============================

// Package quote converts the engine's raw integer amounts into decimals for
// display. Only read paths use it; settlement stays on uint256.
package quote

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// FromBaseUnits scales a raw token amount by the token's decimals.
func FromBaseUnits(amount *uint256.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	d := decimal.NewFromBigInt(amount.ToBig(), 0)
	return d.Shift(-int32(decimals))
}

// FromReserve converts a raw reserve-currency amount. The reserve currency
// carries 18 decimals, wei-style.
func FromReserve(amount *uint256.Int) decimal.Decimal {
	return FromBaseUnits(amount, 18)
}

// Progress reports raised/threshold as a percentage in [0, 100], for the
// graduation progress bar.
func Progress(raised, threshold *uint256.Int) decimal.Decimal {
	if raised == nil || threshold == nil || threshold.IsZero() {
		return decimal.Zero
	}
	pct := decimal.NewFromBigInt(raised.ToBig(), 0).
		Div(decimal.NewFromBigInt(threshold.ToBig(), 0)).
		Mul(decimal.NewFromInt(100))
	hundred := decimal.NewFromInt(100)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// FiatValue prices a reserve amount with an oracle quote.
func FiatValue(amount *uint256.Int, price decimal.Decimal) decimal.Decimal {
	return FromReserve(amount).Mul(price)
}

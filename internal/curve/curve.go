// =============================
// File: internal/curve/curve.go
// =============================

// Package curve implements the linear bonding curve used for primary token
// distribution: price(s) = basePrice + slope*s/SCALE, with closed-form
// integrals for buy cost and sell return and a closed-form quadratic inverse.
//
// All arithmetic is integer, deterministic, and stateless. Amounts are token
// base units, prices reserve-wei per base unit. Parameter bounds are enforced
// at validation time so that every intermediate product fits in 256 bits and
// the quadratic discriminant can never underflow.
package curve

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/snowball-dex/launchpad/internal/core"
)

// Scale is the fixed-point denominator applied to slope terms.
const Scale = 1e18

// Domain bounds. Chosen so b = basePrice*Scale + slope*supply stays below
// 2^101 and the discriminant b^2 + 2*slope*reserve*Scale below 2^205, leaving
// ample 256-bit headroom. See Params.Validate.
var (
	maxBasePrice = uint256.NewInt(1e12)
	maxSlope     = uint256.NewInt(1e12)
	maxSupply    = uint256.NewInt(1e18)
	maxReserve   = uint256.MustFromDecimal("1000000000000000000000000000") // 1e27
	scale        = uint256.NewInt(Scale)
	two          = uint256.NewInt(2)
)

// Params are the immutable pricing parameters fixed per pool at creation.
type Params struct {
	BasePrice *uint256.Int // reserve-wei per token base unit at zero supply
	Slope     *uint256.Int // fixed-point 1e18 price increase per base unit sold
}

// Validate bounds the parameters to the solver's proven domain. A pool must
// never be initialized with parameters outside these ranges; inside them the
// sqrt(discriminant) >= b invariant holds by construction.
func (p Params) Validate() error {
	switch {
	case p.BasePrice == nil || p.BasePrice.IsZero():
		return fmt.Errorf("%w: basePrice must be positive", core.ErrBadCurveParams)
	case p.BasePrice.Gt(maxBasePrice):
		return fmt.Errorf("%w: basePrice above %s", core.ErrBadCurveParams, maxBasePrice)
	case p.Slope == nil:
		return fmt.Errorf("%w: slope is nil", core.ErrBadCurveParams)
	case p.Slope.Gt(maxSlope):
		return fmt.Errorf("%w: slope above %s", core.ErrBadCurveParams, maxSlope)
	}
	return nil
}

// MaxCurveSupply returns the largest cumulative supply the solver accepts.
// Pool configuration bounds its curve allocation by this at initialization.
func MaxCurveSupply() *uint256.Int {
	return maxSupply.Clone()
}

// SpotPrice returns the marginal price at the given cumulative supply sold.
func (p Params) SpotPrice(supply *uint256.Int) *uint256.Int {
	// basePrice + slope*supply/Scale
	t := new(uint256.Int).Mul(p.Slope, supply)
	t.Div(t, scale)
	return t.Add(t, p.BasePrice)
}

// CostToBuy integrates the price over [supply, supply+amount]:
//
//	basePrice*amount + slope*(supply*amount + amount^2/2)/Scale
func (p Params) CostToBuy(supply, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, core.ErrZeroAmount
	}
	end := new(uint256.Int).Add(supply, amount)
	if end.Gt(maxSupply) {
		return nil, fmt.Errorf("%w: supply+amount above %s", core.ErrBadCurveParams, maxSupply)
	}
	lin := new(uint256.Int).Mul(p.BasePrice, amount)

	quad := new(uint256.Int).Mul(supply, amount)
	half := new(uint256.Int).Mul(amount, amount)
	half.Div(half, two)
	quad.Add(quad, half)
	quad.Mul(quad, p.Slope)
	quad.Div(quad, scale)

	return lin.Add(lin, quad), nil
}

// ReturnFromSell integrates the price over [supply-amount, supply]. It is the
// mirror of CostToBuy: ReturnFromSell(s, a) == CostToBuy(s-a, a).
func (p Params) ReturnFromSell(supply, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, core.ErrZeroAmount
	}
	if amount.Gt(supply) {
		return nil, fmt.Errorf("%w: sell amount %s exceeds supply sold %s",
			core.ErrSupplyExceeded, amount, supply)
	}
	from := new(uint256.Int).Sub(supply, amount)
	return p.CostToBuy(from, amount)
}

// TokensForReserve inverts CostToBuy: given reserve currency in, it returns
// the token amount purchasable from the current supply. Solves
//
//	slope*x^2 + 2*b*x - 2*reserve*Scale = 0,  b = basePrice*Scale + slope*supply
//
// for the positive root x = (sqrt(b^2 + 2*slope*reserve*Scale) - b) / slope
// via integer square root. Degenerates to reserve/basePrice when slope == 0.
func (p Params) TokensForReserve(supply, reserve *uint256.Int) (*uint256.Int, error) {
	if reserve == nil || reserve.IsZero() {
		return nil, core.ErrZeroAmount
	}
	if reserve.Gt(maxReserve) {
		return nil, fmt.Errorf("%w: reserve above %s", core.ErrBadCurveParams, maxReserve)
	}
	if supply.Gt(maxSupply) {
		return nil, fmt.Errorf("%w: supply above %s", core.ErrBadCurveParams, maxSupply)
	}
	if p.Slope.IsZero() {
		return new(uint256.Int).Div(reserve, p.BasePrice), nil
	}

	b := new(uint256.Int).Mul(p.BasePrice, scale)
	b.Add(b, new(uint256.Int).Mul(p.Slope, supply))

	disc := new(uint256.Int).Mul(b, b)
	c := new(uint256.Int).Mul(p.Slope, reserve)
	c.Mul(c, scale)
	c.Mul(c, two)
	disc.Add(disc, c)

	root := new(uint256.Int).Sqrt(disc)
	if root.Lt(b) {
		// disc >= b^2, so floor(sqrt(disc)) >= b always. Reaching this
		// branch means corrupted parameters; abort rather than wrap.
		return nil, fmt.Errorf("%w: sqrt(discriminant) %s below linear term %s",
			core.ErrInvariant, root, b)
	}
	root.Sub(root, b)
	return root.Div(root, p.Slope), nil
}

package curve

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowball-dex/launchpad/internal/core"
)

func params(base, slope uint64) Params {
	return Params{BasePrice: uint256.NewInt(base), Slope: uint256.NewInt(slope)}
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name    string
		p       Params
		wantErr bool
	}{
		{"typical", params(1000, 72500000), false},
		{"flat curve", params(1000, 0), false},
		{"max bounds", params(1e12, 1e12), false},
		{"zero base price", params(0, 1), true},
		{"base price too high", params(1e12+1, 1), true},
		{"slope too high", params(1, 1e12+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsValidation(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSpotPriceMonotonic(t *testing.T) {
	p := params(1000, 72500000)
	prev := uint256.NewInt(0)
	for s := uint64(0); s <= 1e14; s += 1e13 {
		price := p.SpotPrice(uint256.NewInt(s))
		assert.False(t, price.Lt(prev), "price must not decrease: supply=%d", s)
		prev = price
	}
}

func TestCostAndReturnAreMirrors(t *testing.T) {
	p := params(1000, 72500000)
	supply := uint256.NewInt(3e13)
	amount := uint256.NewInt(7e12)

	cost, err := p.CostToBuy(supply, amount)
	require.NoError(t, err)

	after := new(uint256.Int).Add(supply, amount)
	back, err := p.ReturnFromSell(after, amount)
	require.NoError(t, err)

	assert.Equal(t, cost, back, "buying then selling the same span must quote the same integral")
}

func TestReturnFromSellRejectsOversell(t *testing.T) {
	p := params(1000, 72500000)
	_, err := p.ReturnFromSell(uint256.NewInt(100), uint256.NewInt(101))
	require.Error(t, err)
	assert.True(t, core.IsState(err))
}

func TestTokensForReserveFlatCurve(t *testing.T) {
	// basePrice=1000, slope=0: pure division with integer truncation.
	p := params(1000, 0)
	out, err := p.TokensForReserve(uint256.NewInt(0), uint256.NewInt(98500))
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(98), out)
}

func TestTokensForReserveExactRoot(t *testing.T) {
	// b = 1000*1e18, disc = 1e42 + 2e36, sqrt = 1.000001e21, x = 1000.
	p := params(1000, 1e12)
	out, err := p.TokensForReserve(uint256.NewInt(0), uint256.NewInt(1000000))
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1000), out)
}

// Inverse law: for valid (supply, reserve), buying the solved amount costs at
// most the reserve put in, and leaves unspent at most a few marginal-price
// units (integer sqrt can round the root down by one, and the division by
// slope truncates once more).
func TestInverseLaw(t *testing.T) {
	cases := []struct {
		base, slope, supply, reserve uint64
	}{
		{1000, 72500000, 0, 1e12},
		{1000, 72500000, 5e13, 1e15},
		{1000, 72500000, 7e14, 1e18},
		{500, 1e9, 1e10, 1e13},
		{1e6, 1e12, 1e12, 1e18},
		{1000, 0, 0, 987654321},
	}
	for _, c := range cases {
		p := params(c.base, c.slope)
		supply := uint256.NewInt(c.supply)
		reserve := uint256.NewInt(c.reserve)

		x, err := p.TokensForReserve(supply, reserve)
		require.NoError(t, err)
		require.False(t, x.IsZero(), "solver returned zero tokens for reserve %d", c.reserve)

		cost, err := p.CostToBuy(supply, x)
		require.NoError(t, err)
		assert.False(t, cost.Gt(reserve),
			"cost %s exceeds reserve %s (base=%d slope=%d)", cost, reserve, c.base, c.slope)

		slack := new(uint256.Int).Sub(reserve, cost)
		spot := p.SpotPrice(new(uint256.Int).Add(supply, x))
		tolerance := new(uint256.Int).Mul(spot, uint256.NewInt(3))
		tolerance.Add(tolerance, uint256.NewInt(8))
		assert.False(t, slack.Gt(tolerance),
			"unspent reserve %s above tolerance %s (base=%d slope=%d)", slack, tolerance, c.base, c.slope)
	}
}

func TestTokensForReserveRejectsZero(t *testing.T) {
	p := params(1000, 1)
	_, err := p.TokensForReserve(uint256.NewInt(0), uint256.NewInt(0))
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
}

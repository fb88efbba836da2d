package token

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snowball-dex/launchpad/internal/core"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	pool    = common.HexToAddress("0x00000000000000000000000000000000000000B0")
	third   = common.HexToAddress("0x00000000000000000000000000000000000000D1")
	fourth  = common.HexToAddress("0x00000000000000000000000000000000000000E1")
)

func newToken(t *testing.T) *Token {
	tok, err := New(core.NamedAddress("test-token"), "Snowball", "SNOW", 6,
		creator, pool, uint256.NewInt(1_000_000_000), zap.NewNop())
	require.NoError(t, err)
	return tok
}

func TestNewMintsSupplyToPool(t *testing.T) {
	tok := newToken(t)
	assert.Equal(t, uint256.NewInt(1_000_000_000), tok.BalanceOf(pool))
	assert.Equal(t, uint256.NewInt(1_000_000_000), tok.TotalSupply())
	assert.True(t, tok.IsExempt(creator), "creator must be exempt by construction")
	assert.False(t, tok.TradingEnabled())
}

func TestNewRejectsBadMetadata(t *testing.T) {
	_, err := New(core.NamedAddress("x"), "", "SNOW", 6, creator, pool, uint256.NewInt(1), zap.NewNop())
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
}

func TestTradingGate(t *testing.T) {
	tok := newToken(t)

	// Pool legs always pass.
	require.NoError(t, tok.Transfer(pool, third, uint256.NewInt(1000)))

	// Third party to third party is gated before trading is enabled.
	err := tok.Transfer(third, fourth, uint256.NewInt(10))
	require.ErrorIs(t, err, core.ErrTradingDisabled)

	// Exempt creator may send to anyone, and anyone to the exempt creator.
	require.NoError(t, tok.Transfer(pool, creator, uint256.NewInt(500)))
	require.NoError(t, tok.Transfer(creator, third, uint256.NewInt(100)))
	require.NoError(t, tok.Transfer(third, creator, uint256.NewInt(50)))

	// Latch flips exactly once, pool-only.
	require.ErrorIs(t, tok.EnableTrading(creator), core.ErrNotPool)
	require.NoError(t, tok.EnableTrading(pool))
	require.ErrorIs(t, tok.EnableTrading(pool), core.ErrTradingEnabled)

	// The identical gated transfer now succeeds.
	require.NoError(t, tok.Transfer(third, fourth, uint256.NewInt(10)))
}

func TestExemptionsArePoolControlled(t *testing.T) {
	tok := newToken(t)
	require.ErrorIs(t, tok.SetExempt(third, fourth, true), core.ErrNotPool)

	require.NoError(t, tok.SetExempt(pool, fourth, true))
	require.NoError(t, tok.Transfer(pool, third, uint256.NewInt(100)))
	require.NoError(t, tok.Transfer(third, fourth, uint256.NewInt(40)))

	require.NoError(t, tok.SetExempt(pool, fourth, false))
	require.ErrorIs(t, tok.Transfer(third, fourth, uint256.NewInt(1)), core.ErrTradingDisabled)
}

func TestAllowanceFlow(t *testing.T) {
	tok := newToken(t)
	require.NoError(t, tok.Transfer(pool, creator, uint256.NewInt(1000)))

	require.NoError(t, tok.Approve(creator, third, uint256.NewInt(300)))
	assert.Equal(t, uint256.NewInt(300), tok.Allowance(creator, third))

	// Spender moves owner funds to the pool (always permitted leg).
	require.NoError(t, tok.TransferFrom(third, creator, pool, uint256.NewInt(200)))
	assert.Equal(t, uint256.NewInt(100), tok.Allowance(creator, third))

	err := tok.TransferFrom(third, creator, pool, uint256.NewInt(200))
	require.ErrorIs(t, err, core.ErrInsufficientFunds)
}

func TestBurnShrinksSupply(t *testing.T) {
	tok := newToken(t)
	require.NoError(t, tok.Transfer(pool, creator, uint256.NewInt(1000)))
	require.NoError(t, tok.Burn(creator, uint256.NewInt(400)))
	assert.Equal(t, uint256.NewInt(600), tok.BalanceOf(creator))
	assert.Equal(t, uint256.NewInt(999_999_600), tok.TotalSupply())

	require.ErrorIs(t, tok.Burn(creator, uint256.NewInt(10_000)), core.ErrInsufficientFunds)
}

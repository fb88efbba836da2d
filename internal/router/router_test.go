// =============================
// File: internal/router/router_test.go
// =============================

package router

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snowball-dex/launchpad/internal/amm"
	"github.com/snowball-dex/launchpad/internal/core"
	"github.com/snowball-dex/launchpad/internal/curve"
	"github.com/snowball-dex/launchpad/internal/factory"
	"github.com/snowball-dex/launchpad/internal/pool"
)

var (
	ownerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	treasuryAddr = common.HexToAddress("0x00000000000000000000000000000000000000A2")
	creatorAddr  = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	buyerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	traderAddr   = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	strangerAddr = common.HexToAddress("0x00000000000000000000000000000000000000D1")
)

var baseTime = time.Unix(1_700_000_000, 0)

type fixture struct {
	router  *Router
	factory *factory.Factory
	market  *amm.XYK
	bank    *core.Bank
	clock   *core.ManualClock

	tokenA common.Address // graduated, pair live
	tokenB common.Address // still on the curve
}

// Launches two tokens and graduates the first with a threshold-crossing buy,
// so the exchange pair exists before any routed trade.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	bank := core.NewBank(logger)
	clock := core.NewManualClock()
	clock.NextBlock()
	clock.SetTime(baseTime)

	defaults := factory.Defaults{
		Pool: pool.Config{
			Curve: curve.Params{
				BasePrice: uint256.NewInt(10),
				Slope:     uint256.NewInt(0),
			},
			PlatformFeeBP:       100,
			CreatorFeeBP:        50,
			GraduationFeeBP:     300,
			GraduationThreshold: uint256.NewInt(200_000),
			MaxTxValue:          uint256.NewInt(1_000_000_000),
			TokensOnCurve:       uint256.NewInt(100_000_000),
			TokensForLiquidity:  uint256.NewInt(1_000_000),
		},
		TotalSupply: uint256.NewInt(200_000_000),
		Decimals:    6,
	}

	xyk := amm.NewXYK(bank, nil, clock, logger)
	f, err := factory.New(ownerAddr, treasuryAddr, uint256.NewInt(5000), defaults,
		bank, xyk, clock, core.NopSink{}, logger)
	require.NoError(t, err)
	xyk.SetResolver(f)

	r, err := New(ownerAddr, 100, 50, f, f, xyk, bank, clock, core.NopSink{}, logger)
	require.NoError(t, err)

	bank.Mint(creatorAddr, uint256.NewInt(100_000_000))
	bank.Mint(buyerAddr, uint256.NewInt(100_000_000))
	bank.Mint(traderAddr, uint256.NewInt(100_000_000))

	tokenA, poolA, err := f.CreateToken(creatorAddr, uint256.NewInt(5000),
		factory.TokenParams{Name: "Alpha", Symbol: "ALP", Category: "meme"})
	require.NoError(t, err)
	tokenB, _, err := f.CreateToken(creatorAddr, uint256.NewInt(5000),
		factory.TokenParams{Name: "Beta", Symbol: "BET", Category: "meme"})
	require.NoError(t, err)

	p, _ := f.PoolAt(poolA)
	receipt, err := p.Buy(buyerAddr, uint256.NewInt(250_000), nil)
	require.NoError(t, err)
	require.True(t, receipt.Graduated)
	clock.NextBlock()

	return &fixture{
		router: r, factory: f, market: xyk, bank: bank, clock: clock,
		tokenA: tokenA, tokenB: tokenB,
	}
}

func (fx *fixture) register(t *testing.T, tok common.Address, mode core.LaunchMode) {
	t.Helper()
	require.NoError(t, fx.router.RegisterToken(ownerAddr, Registration{
		Token: tok, Creator: creatorAddr, Mode: mode,
	}))
}

func deadline() time.Time { return baseTime.Add(time.Minute) }

func TestRegistrationValidation(t *testing.T) {
	fx := newFixture(t)

	err := fx.router.RegisterToken(strangerAddr, Registration{Token: fx.tokenA, Creator: creatorAddr})
	assert.ErrorIs(t, err, core.ErrNotOwner)

	err = fx.router.RegisterToken(ownerAddr, Registration{Token: strangerAddr, Creator: creatorAddr})
	assert.ErrorIs(t, err, core.ErrNotRegistered)

	err = fx.router.RegisterToken(ownerAddr, Registration{Token: fx.tokenA, Creator: core.ZeroAddress})
	assert.ErrorIs(t, err, core.ErrZeroAddress)

	fx.register(t, fx.tokenA, core.ModeStandard)
	err = fx.router.RegisterToken(ownerAddr, Registration{Token: fx.tokenA, Creator: creatorAddr})
	assert.ErrorIs(t, err, core.ErrAlreadyRegistered)
}

func TestBatchRegistrationIsAtomic(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, fx.tokenA, core.ModeStandard)

	err := fx.router.RegisterTokens(ownerAddr, []Registration{
		{Token: fx.tokenB, Creator: creatorAddr, Mode: core.ModeSnowball},
		{Token: fx.tokenA, Creator: creatorAddr, Mode: core.ModeStandard}, // duplicate
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAlreadyRegistered)
	assert.False(t, fx.router.IsRegistered(fx.tokenB), "no partial application")

	require.NoError(t, fx.router.RegisterTokens(ownerAddr, []Registration{
		{Token: fx.tokenB, Creator: creatorAddr, Mode: core.ModeSnowball},
	}))
	assert.True(t, fx.router.IsRegistered(fx.tokenB))
}

func TestBuyStandardPaysCreatorImmediately(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, fx.tokenA, core.ModeStandard)
	tok, _ := fx.factory.TokenAt(fx.tokenA)

	creatorBefore := fx.bank.BalanceOf(creatorAddr)
	treasuryBefore := fx.bank.BalanceOf(treasuryAddr)
	// Value 1_000_000 splits 10_000 platform, 5_000 creator, 985_000 swapped.
	expected, err := fx.market.GetAmountsOut(fx.tokenA, uint256.NewInt(985_000), true)
	require.NoError(t, err)

	out, err := fx.router.BuyTokens(traderAddr, fx.tokenA, uint256.NewInt(1_000_000), nil, deadline())
	require.NoError(t, err)
	assert.Equal(t, expected.String(), out.String())
	assert.Equal(t, expected.String(), tok.BalanceOf(traderAddr).String())

	assert.Equal(t, uint256.NewInt(5_000).String(),
		new(uint256.Int).Sub(fx.bank.BalanceOf(creatorAddr), creatorBefore).String())
	assert.Equal(t, uint256.NewInt(10_000).String(),
		new(uint256.Int).Sub(fx.bank.BalanceOf(treasuryAddr), treasuryBefore).String())
	assert.True(t, fx.router.PendingBuyback(fx.tokenA).IsZero())

	rec, _ := fx.router.Record(fx.tokenA)
	assert.Equal(t, uint64(1), rec.Trades)
	assert.Equal(t, uint256.NewInt(1_000_000).String(), rec.Volume.String())
	assert.Equal(t, uint256.NewInt(10_000).String(), rec.PlatformFees.String())
	assert.Equal(t, uint256.NewInt(5_000).String(), rec.CreatorFees.String())
}

func TestBuySnowballAccumulatesPending(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, fx.tokenA, core.ModeSnowball)

	creatorBefore := fx.bank.BalanceOf(creatorAddr)
	_, err := fx.router.BuyTokens(traderAddr, fx.tokenA, uint256.NewInt(1_000_000), nil, deadline())
	require.NoError(t, err)

	assert.Equal(t, uint256.NewInt(5_000).String(), fx.router.PendingBuyback(fx.tokenA).String())
	assert.Equal(t, creatorBefore.String(), fx.bank.BalanceOf(creatorAddr).String(),
		"deflationary creator fee is held, not paid out")
}

func TestSellTokensFeesAndPayout(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, fx.tokenA, core.ModeStandard)
	tok, _ := fx.factory.TokenAt(fx.tokenA)

	out, err := fx.router.BuyTokens(traderAddr, fx.tokenA, uint256.NewInt(1_000_000), nil, deadline())
	require.NoError(t, err)

	sellAmount := uint256.NewInt(10_000)
	require.True(t, out.Gt(sellAmount))

	gross, err := fx.market.GetAmountsOut(fx.tokenA, sellAmount, false)
	require.NoError(t, err)
	pf := new(uint256.Int).Div(new(uint256.Int).Mul(gross, uint256.NewInt(100)), uint256.NewInt(10_000))
	cf := new(uint256.Int).Div(new(uint256.Int).Mul(gross, uint256.NewInt(50)), uint256.NewInt(10_000))
	wantNet := new(uint256.Int).Sub(gross, pf)
	wantNet.Sub(wantNet, cf)

	reserveBefore := fx.bank.BalanceOf(traderAddr)
	tokensBefore := tok.BalanceOf(traderAddr)

	net, err := fx.router.SellTokens(traderAddr, fx.tokenA, sellAmount, nil, deadline())
	require.NoError(t, err)
	assert.Equal(t, wantNet.String(), net.String())
	assert.Equal(t, wantNet.String(),
		new(uint256.Int).Sub(fx.bank.BalanceOf(traderAddr), reserveBefore).String())
	assert.Equal(t, sellAmount.String(),
		new(uint256.Int).Sub(tokensBefore, tok.BalanceOf(traderAddr)).String())
	assert.True(t, fx.bank.BalanceOf(fx.router.Address()).IsZero(),
		"router keeps no float on a standard-mode trade")
}

func TestTradeSlippageAndGuards(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, fx.tokenA, core.ModeStandard)

	_, err := fx.router.BuyTokens(traderAddr, fx.tokenA, uint256.NewInt(1_000_000),
		uint256.NewInt(1_000_000_000), deadline())
	assert.True(t, core.IsSlippage(err))

	_, err = fx.router.BuyTokens(traderAddr, fx.tokenB, uint256.NewInt(1000), nil, deadline())
	assert.ErrorIs(t, err, core.ErrNotRegistered)

	_, err = fx.router.BuyTokens(traderAddr, fx.tokenA, uint256.NewInt(0), nil, deadline())
	assert.ErrorIs(t, err, core.ErrZeroAmount)

	_, err = fx.router.BuyTokens(traderAddr, fx.tokenA, uint256.NewInt(1000), nil,
		baseTime.Add(-time.Minute))
	assert.ErrorIs(t, err, core.ErrDeadlineExpired)

	require.NoError(t, fx.router.SetPaused(ownerAddr, true))
	_, err = fx.router.BuyTokens(traderAddr, fx.tokenA, uint256.NewInt(1000), nil, deadline())
	assert.ErrorIs(t, err, core.ErrRouterPaused)

	// Sell-side slippage: demand more than net-of-fees can deliver.
	require.NoError(t, fx.router.SetPaused(ownerAddr, false))
	out, err := fx.router.BuyTokens(traderAddr, fx.tokenA, uint256.NewInt(1_000_000), nil, deadline())
	require.NoError(t, err)
	_, err = fx.router.SellTokens(traderAddr, fx.tokenA, out, uint256.NewInt(1_000_000_000), deadline())
	assert.True(t, core.IsSlippage(err))
}

func TestExecuteBuybackBurns(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, fx.tokenA, core.ModeFireball)
	tok, _ := fx.factory.TokenAt(fx.tokenA)

	_, err := fx.router.BuyTokens(traderAddr, fx.tokenA, uint256.NewInt(1_000_000), nil, deadline())
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(5_000).String(), fx.router.PendingBuyback(fx.tokenA).String())

	expected, err := fx.market.GetAmountsOut(fx.tokenA, uint256.NewInt(5_000), true)
	require.NoError(t, err)
	require.False(t, expected.IsZero())
	supplyBefore := tok.TotalSupply().Clone()

	require.NoError(t, fx.router.ExecuteBuyback(fx.tokenA, nil))

	assert.True(t, fx.router.PendingBuyback(fx.tokenA).IsZero())
	assert.True(t, tok.BalanceOf(fx.router.Address()).IsZero(), "bought tokens must be burned")
	assert.Equal(t, expected.String(),
		new(uint256.Int).Sub(supplyBefore, tok.TotalSupply()).String())

	rec, _ := fx.router.Record(fx.tokenA)
	assert.Equal(t, uint64(1), rec.Buybacks)
	assert.Equal(t, uint256.NewInt(5_000).String(), rec.TotalSpent.String())
	assert.Equal(t, expected.String(), rec.TotalBurned.String())
}

func TestFailedBuybackRestoresPending(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, fx.tokenA, core.ModeSnowball)

	_, err := fx.router.BuyTokens(traderAddr, fx.tokenA, uint256.NewInt(1_000_000), nil, deadline())
	require.NoError(t, err)

	err = fx.router.ExecuteBuyback(fx.tokenA, uint256.NewInt(1_000_000_000))
	require.Error(t, err)
	assert.True(t, core.IsExternal(err))

	rec, _ := fx.router.Record(fx.tokenA)
	assert.Equal(t, uint256.NewInt(5_000).String(), rec.Pending.String(), "ledger no-op on failure")
	assert.Equal(t, uint64(1), rec.Failures)

	require.NoError(t, fx.router.ExecuteBuyback(fx.tokenA, nil))
	assert.True(t, fx.router.PendingBuyback(fx.tokenA).IsZero())
}

func TestBuybackPreconditions(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, fx.tokenA, core.ModeStandard)

	assert.ErrorIs(t, fx.router.ExecuteBuyback(fx.tokenB, nil), core.ErrNotRegistered)
	assert.ErrorIs(t, fx.router.ExecuteBuyback(fx.tokenA, nil), core.ErrBadLaunchMode)

	fx.register(t, fx.tokenB, core.ModeSnowball)
	assert.ErrorIs(t, fx.router.ExecuteBuyback(fx.tokenB, nil), core.ErrBelowThreshold)
}

func TestBatchExecuteBuyback(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, fx.tokenA, core.ModeSnowball)
	fx.register(t, fx.tokenB, core.ModeSnowball) // no pair, nothing pending

	_, err := fx.router.BuyTokens(traderAddr, fx.tokenA, uint256.NewInt(1_000_000), nil, deadline())
	require.NoError(t, err)

	pending := fx.router.TokensWithPending()
	require.Len(t, pending, 1)
	assert.Equal(t, fx.tokenA, pending[0])

	executed := fx.router.BatchExecuteBuyback([]common.Address{fx.tokenA, fx.tokenB, strangerAddr}, nil)
	assert.Equal(t, 1, executed)
	assert.True(t, fx.router.PendingBuyback(fx.tokenA).IsZero())
}

func TestSweepToken(t *testing.T) {
	fx := newFixture(t)
	tok, _ := fx.factory.TokenAt(fx.tokenA)

	// Acquire graduated tokens on the open market, then missend them.
	out, err := fx.market.SwapExactReserveForToken(traderAddr, fx.tokenA,
		uint256.NewInt(100_000), nil, traderAddr, deadline())
	require.NoError(t, err)
	require.NoError(t, tok.Transfer(traderAddr, fx.router.Address(), out))

	assert.ErrorIs(t, fx.router.SweepToken(strangerAddr, fx.tokenA, ownerAddr), core.ErrNotOwner)

	require.NoError(t, fx.router.SweepToken(ownerAddr, fx.tokenA, ownerAddr))
	assert.Equal(t, out.String(), tok.BalanceOf(ownerAddr).String())
	assert.True(t, tok.BalanceOf(fx.router.Address()).IsZero())

	// Once registered, the same token can no longer be swept.
	fx.register(t, fx.tokenA, core.ModeSnowball)
	err = fx.router.SweepToken(ownerAddr, fx.tokenA, ownerAddr)
	assert.ErrorIs(t, err, core.ErrAlreadyRegistered)
}

func TestRecoverNativeRequiresPause(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, fx.tokenA, core.ModeSnowball)

	// Build up buyback float.
	_, err := fx.router.BuyTokens(traderAddr, fx.tokenA, uint256.NewInt(1_000_000), nil, deadline())
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(5_000).String(),
		fx.bank.BalanceOf(fx.router.Address()).String())

	assert.ErrorIs(t, fx.router.RecoverNative(strangerAddr, strangerAddr), core.ErrNotOwner)
	assert.ErrorIs(t, fx.router.RecoverNative(ownerAddr, ownerAddr), core.ErrNotPaused)

	require.NoError(t, fx.router.SetPaused(ownerAddr, true))
	require.NoError(t, fx.router.RecoverNative(ownerAddr, ownerAddr))
	assert.Equal(t, uint256.NewInt(5_000).String(), fx.bank.BalanceOf(ownerAddr).String())
	assert.True(t, fx.bank.BalanceOf(fx.router.Address()).IsZero())
}

func TestOwnershipHandover(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.router.TransferOwnership(ownerAddr, strangerAddr))
	assert.ErrorIs(t, fx.router.SetPaused(strangerAddr, true), core.ErrNotOwner)

	require.NoError(t, fx.router.AcceptOwnership(strangerAddr))
	require.NoError(t, fx.router.SetPaused(strangerAddr, true))
	assert.ErrorIs(t, fx.router.SetPaused(ownerAddr, false), core.ErrNotOwner)
}

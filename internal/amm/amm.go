// =============================
// File: internal/amm/amm.go
// =============================

// Package amm is the boundary to the external constant-product exchange that
// receives graduation liquidity and serves all post-graduation trading. The
// engine treats it as a black box that may fail; callers convert failures
// into their documented local policy (propagate for curve trades, catch and
// restore for buybacks).
package amm

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/snowball-dex/launchpad/internal/token"
)

// AMM is the fixed interface of the external exchange.
type AMM interface {
	// AddLiquidity seeds (or tops up) the pair for token with reserve
	// currency and tokens pulled from `from`. The liquidity receipt is
	// credited to lpRecipient.
	AddLiquidity(from, tokenAddr common.Address, reserveIn, tokenIn *uint256.Int, lpRecipient common.Address) (pair common.Address, liquidity *uint256.Int, err error)

	// SwapExactReserveForToken swaps reserve currency for tokens, sending
	// the output to recipient. Reverts on expired deadline or slippage.
	SwapExactReserveForToken(from, tokenAddr common.Address, amountIn, minOut *uint256.Int, recipient common.Address, deadline time.Time) (*uint256.Int, error)

	// SwapExactTokenForReserve swaps tokens for reserve currency.
	SwapExactTokenForReserve(from, tokenAddr common.Address, amountIn, minOut *uint256.Int, recipient common.Address, deadline time.Time) (*uint256.Int, error)

	// GetAmountsOut quotes a swap without executing it. reserveIn selects
	// the direction: true quotes reserve->token.
	GetAmountsOut(tokenAddr common.Address, amountIn *uint256.Int, reserveIn bool) (*uint256.Int, error)

	// PairFor reports the pair account for a listed token.
	PairFor(tokenAddr common.Address) (common.Address, bool)
}

// TokenResolver looks up launched token ledgers by address. The factory
// registry satisfies this.
type TokenResolver interface {
	TokenAt(addr common.Address) (*token.Token, bool)
}

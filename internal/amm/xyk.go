// =============================
// File: internal/amm/xyk.go
// =============================
package amm

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/snowball-dex/launchpad/internal/core"
)

const lpFeeBP = 30 // 0.3% pair fee, uniswap-v2 style

// Pair holds one token's constant-product market.
type Pair struct {
	addr         common.Address
	reserveQuote *uint256.Int // reserve currency
	reserveBase  *uint256.Int // token
	lpSupply     *uint256.Int
}

// XYK is the in-memory constant-product exchange used as the default
// collaborator and in tests. Quotes follow out = rOut*in*997/(rIn*1000+in*997).
type XYK struct {
	mu       sync.Mutex
	addr     common.Address
	bank     *core.Bank
	resolver TokenResolver
	clock    core.Clock
	pairs    map[common.Address]*Pair
	nonce    uint64
	logger   *zap.Logger
}

func NewXYK(bank *core.Bank, resolver TokenResolver, clock core.Clock, logger *zap.Logger) *XYK {
	return &XYK{
		addr:     core.NamedAddress("amm/xyk"),
		bank:     bank,
		resolver: resolver,
		clock:    clock,
		pairs:    make(map[common.Address]*Pair),
		logger:   logger.Named("amm"),
	}
}

// SetResolver late-binds the token registry. The factory resolves tokens for
// the exchange and the exchange seeds pairs for the factory, so whichever is
// constructed second wires itself in here.
func (x *XYK) SetResolver(r TokenResolver) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.resolver = r
}

func (x *XYK) AddLiquidity(from, tokenAddr common.Address, reserveIn, tokenIn *uint256.Int, lpRecipient common.Address) (common.Address, *uint256.Int, error) {
	if reserveIn == nil || reserveIn.IsZero() || tokenIn == nil || tokenIn.IsZero() {
		return common.Address{}, nil, fmt.Errorf("add liquidity: %w", core.ErrZeroAmount)
	}
	tok, ok := x.resolver.TokenAt(tokenAddr)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("add liquidity: unknown token %s", tokenAddr.Hex())
	}

	x.mu.Lock()
	pair, exists := x.pairs[tokenAddr]
	if !exists {
		x.nonce++
		pair = &Pair{
			addr:         core.DeriveAddress(x.addr, x.nonce),
			reserveQuote: uint256.NewInt(0),
			reserveBase:  uint256.NewInt(0),
			lpSupply:     uint256.NewInt(0),
		}
		x.pairs[tokenAddr] = pair
	}
	x.mu.Unlock()

	if err := x.bank.Pay(from, pair.addr, reserveIn); err != nil {
		return common.Address{}, nil, fmt.Errorf("add liquidity: pull reserve: %w", err)
	}
	if err := tok.Transfer(from, pair.addr, tokenIn); err != nil {
		// Return the reserve leg before surfacing the failure.
		_ = x.bank.Pay(pair.addr, from, reserveIn)
		return common.Address{}, nil, fmt.Errorf("add liquidity: pull tokens: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	pair.reserveQuote.Add(pair.reserveQuote, reserveIn)
	pair.reserveBase.Add(pair.reserveBase, tokenIn)

	// liquidity = sqrt(reserveIn * tokenIn), first and subsequent deposits
	// alike; the receipt is informational since graduation burns it anyway.
	minted := new(uint256.Int).Mul(reserveIn, tokenIn)
	minted.Sqrt(minted)
	pair.lpSupply.Add(pair.lpSupply, minted)

	x.logger.Info("liquidity added",
		zap.String("token", tokenAddr.Hex()),
		zap.String("pair", pair.addr.Hex()),
		zap.String("reserve_in", reserveIn.String()),
		zap.String("token_in", tokenIn.String()),
		zap.String("lp_minted", minted.String()),
		zap.String("lp_recipient", lpRecipient.Hex()))
	return pair.addr, minted, nil
}

func (x *XYK) SwapExactReserveForToken(from, tokenAddr common.Address, amountIn, minOut *uint256.Int, recipient common.Address, deadline time.Time) (*uint256.Int, error) {
	return x.swap(from, tokenAddr, amountIn, minOut, recipient, deadline, true)
}

func (x *XYK) SwapExactTokenForReserve(from, tokenAddr common.Address, amountIn, minOut *uint256.Int, recipient common.Address, deadline time.Time) (*uint256.Int, error) {
	return x.swap(from, tokenAddr, amountIn, minOut, recipient, deadline, false)
}

func (x *XYK) GetAmountsOut(tokenAddr common.Address, amountIn *uint256.Int, reserveIn bool) (*uint256.Int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	pair, ok := x.pairs[tokenAddr]
	if !ok {
		return nil, fmt.Errorf("quote: no pair for %s", tokenAddr.Hex())
	}
	if reserveIn {
		return quoteOut(pair.reserveQuote, pair.reserveBase, amountIn), nil
	}
	return quoteOut(pair.reserveBase, pair.reserveQuote, amountIn), nil
}

func (x *XYK) PairFor(tokenAddr common.Address) (common.Address, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	pair, ok := x.pairs[tokenAddr]
	if !ok {
		return common.Address{}, false
	}
	return pair.addr, true
}

func (x *XYK) swap(from, tokenAddr common.Address, amountIn, minOut *uint256.Int, recipient common.Address, deadline time.Time, reserveIn bool) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, fmt.Errorf("swap: %w", core.ErrZeroAmount)
	}
	if !deadline.IsZero() && x.clock.Now().After(deadline) {
		return nil, fmt.Errorf("swap: deadline passed")
	}
	tok, ok := x.resolver.TokenAt(tokenAddr)
	if !ok {
		return nil, fmt.Errorf("swap: unknown token %s", tokenAddr.Hex())
	}

	x.mu.Lock()
	pair, exists := x.pairs[tokenAddr]
	if !exists {
		x.mu.Unlock()
		return nil, fmt.Errorf("swap: no pair for %s", tokenAddr.Hex())
	}
	var out *uint256.Int
	if reserveIn {
		out = quoteOut(pair.reserveQuote, pair.reserveBase, amountIn)
	} else {
		out = quoteOut(pair.reserveBase, pair.reserveQuote, amountIn)
	}
	if out.IsZero() || (minOut != nil && out.Lt(minOut)) {
		x.mu.Unlock()
		return nil, fmt.Errorf("swap: insufficient output %s, minimum %s", out, minOut)
	}
	x.mu.Unlock()

	if reserveIn {
		if err := x.bank.Pay(from, pair.addr, amountIn); err != nil {
			return nil, fmt.Errorf("swap: pull reserve: %w", err)
		}
		if err := tok.Transfer(pair.addr, recipient, out); err != nil {
			_ = x.bank.Pay(pair.addr, from, amountIn)
			return nil, fmt.Errorf("swap: pay tokens: %w", err)
		}
	} else {
		if err := tok.Transfer(from, pair.addr, amountIn); err != nil {
			return nil, fmt.Errorf("swap: pull tokens: %w", err)
		}
		if err := x.bank.Pay(pair.addr, recipient, out); err != nil {
			_ = tok.Transfer(pair.addr, from, amountIn)
			return nil, fmt.Errorf("swap: pay reserve: %w", err)
		}
	}

	x.mu.Lock()
	if reserveIn {
		pair.reserveQuote.Add(pair.reserveQuote, amountIn)
		pair.reserveBase.Sub(pair.reserveBase, out)
	} else {
		pair.reserveBase.Add(pair.reserveBase, amountIn)
		pair.reserveQuote.Sub(pair.reserveQuote, out)
	}
	x.mu.Unlock()
	return out, nil
}

// quoteOut applies the pair fee and the constant-product formula.
func quoteOut(rIn, rOut, in *uint256.Int) *uint256.Int {
	if rIn.IsZero() || rOut.IsZero() {
		return uint256.NewInt(0)
	}
	inWithFee := new(uint256.Int).Mul(in, uint256.NewInt(10000-lpFeeBP))
	num := new(uint256.Int).Mul(rOut, inWithFee)
	den := new(uint256.Int).Mul(rIn, uint256.NewInt(10000))
	den.Add(den, inWithFee)
	return num.Div(num, den)
}

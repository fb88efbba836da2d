// =============================
// File: internal/router/router.go
// =============================

// Package router implements post-graduation fee extraction. Once a pool has
// graduated to the external exchange, trades routed through here keep paying
// the platform/creator split the bonding curve charged, and deflationary-mode
// creator fees keep accumulating into a per-token buyback ledger.
//
// The registry is owner-populated: graduation does not auto-register a token,
// the platform operator does it explicitly once the pair is live.
package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/snowball-dex/launchpad/internal/amm"
	"github.com/snowball-dex/launchpad/internal/core"
)

const feeDenominator = 10_000

// Registration is one registry entry as supplied by the owner.
type Registration struct {
	Token   common.Address
	Creator common.Address
	Mode    core.LaunchMode
}

// TokenRecord tracks one registered token's routed activity.
type TokenRecord struct {
	Creator      common.Address
	Mode         core.LaunchMode
	Pending      *uint256.Int // deflationary modes only
	PlatformFees *uint256.Int
	CreatorFees  *uint256.Int
	Trades       uint64
	Volume       *uint256.Int
	TotalSpent   *uint256.Int
	TotalBurned  *uint256.Int
	Buybacks     uint64
	Failures     uint64
}

func (r *TokenRecord) snapshot() TokenRecord {
	return TokenRecord{
		Creator:      r.Creator,
		Mode:         r.Mode,
		Pending:      r.Pending.Clone(),
		PlatformFees: r.PlatformFees.Clone(),
		CreatorFees:  r.CreatorFees.Clone(),
		Trades:       r.Trades,
		Volume:       r.Volume.Clone(),
		TotalSpent:   r.TotalSpent.Clone(),
		TotalBurned:  r.TotalBurned.Clone(),
		Buybacks:     r.Buybacks,
		Failures:     r.Failures,
	}
}

// FeeRelay is where the platform share goes; the factory satisfies it and
// forwards to the treasury.
type FeeRelay interface {
	Address() common.Address
}

// Router routes graduated-token trades through the external exchange.
type Router struct {
	addr common.Address

	platformFeeBP uint64
	creatorFeeBP  uint64

	mu           sync.Mutex
	owner        common.Address
	pendingOwner common.Address
	paused       bool
	records      map[common.Address]*TokenRecord
	inFlight     map[common.Address]bool

	relay    FeeRelay
	resolver amm.TokenResolver
	market   amm.AMM
	bank     *core.Bank
	clock    core.Clock
	events   core.EventSink
	logger   *zap.Logger
}

func New(owner common.Address, platformFeeBP, creatorFeeBP uint64, relay FeeRelay,
	resolver amm.TokenResolver, market amm.AMM, bank *core.Bank, clock core.Clock,
	events core.EventSink, logger *zap.Logger) (*Router, error) {
	if owner == core.ZeroAddress {
		return nil, core.ErrZeroAddress
	}
	if platformFeeBP+creatorFeeBP >= feeDenominator {
		return nil, fmt.Errorf("%w: fee split %d+%d bp", core.ErrBadCurveParams, platformFeeBP, creatorFeeBP)
	}
	return &Router{
		addr:          core.NamedAddress("launchpad/router"),
		platformFeeBP: platformFeeBP,
		creatorFeeBP:  creatorFeeBP,
		owner:         owner,
		records:       make(map[common.Address]*TokenRecord),
		inFlight:      make(map[common.Address]bool),
		relay:         relay,
		resolver:      resolver,
		market:        market,
		bank:          bank,
		clock:         clock,
		events:        events,
		logger:        logger.Named("router"),
	}, nil
}

func (r *Router) Address() common.Address { return r.addr }

// RegisterToken admits one token to routed trading. Owner only; the token
// must exist and must not already be registered.
func (r *Router) RegisterToken(caller common.Address, reg Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(caller, reg)
}

// RegisterTokens admits a batch atomically: one bad entry rejects the whole
// batch so a partially-applied operator list never goes unnoticed.
func (r *Router) RegisterTokens(caller common.Address, regs []Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range regs {
		if _, ok := r.records[reg.Token]; ok {
			return fmt.Errorf("%w: token %s", core.ErrAlreadyRegistered, reg.Token.Hex())
		}
	}
	for _, reg := range regs {
		if err := r.registerLocked(caller, reg); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) registerLocked(caller common.Address, reg Registration) error {
	if caller != r.owner {
		return core.ErrNotOwner
	}
	if reg.Creator == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	if reg.Mode > core.ModeFireball {
		return fmt.Errorf("%w: %d", core.ErrBadLaunchMode, reg.Mode)
	}
	if _, ok := r.resolver.TokenAt(reg.Token); !ok {
		return fmt.Errorf("%w: unknown token %s", core.ErrNotRegistered, reg.Token.Hex())
	}
	if _, ok := r.records[reg.Token]; ok {
		return fmt.Errorf("%w: token %s", core.ErrAlreadyRegistered, reg.Token.Hex())
	}
	r.records[reg.Token] = &TokenRecord{
		Creator:      reg.Creator,
		Mode:         reg.Mode,
		Pending:      uint256.NewInt(0),
		PlatformFees: uint256.NewInt(0),
		CreatorFees:  uint256.NewInt(0),
		Volume:       uint256.NewInt(0),
		TotalSpent:   uint256.NewInt(0),
		TotalBurned:  uint256.NewInt(0),
	}
	r.events.Record(core.NewEvent(core.EvRouterRegister, r.clock.BlockNumber(), map[string]interface{}{
		"token":   reg.Token.Hex(),
		"creator": reg.Creator.Hex(),
		"mode":    reg.Mode.String(),
	}))
	r.logger.Info("token registered for routed trading",
		zap.String("token", reg.Token.Hex()),
		zap.String("creator", reg.Creator.Hex()),
		zap.String("mode", reg.Mode.String()))
	return nil
}

// BuyTokens swaps attached reserve value for the token, fees off the top.
// All risky legs run before the exchange call, so any failure unwinds the
// whole trade.
func (r *Router) BuyTokens(caller, tokenAddr common.Address, value, minOut *uint256.Int, deadline time.Time) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.tradeGuardLocked(tokenAddr, value, deadline)
	if err != nil {
		return nil, err
	}
	platformFee, creatorFee, net := r.splitFees(value)

	// Quote first so a too-low output classifies as slippage, not as an
	// exchange failure.
	if minOut != nil && !minOut.IsZero() {
		quote, err := r.market.GetAmountsOut(tokenAddr, net, true)
		if err != nil {
			return nil, fmt.Errorf("buy: %w", core.Externalf("quote: %v", err))
		}
		if quote.Lt(minOut) {
			return nil, fmt.Errorf("%w: %s tokens below minimum %s", core.ErrSlippage, quote, minOut)
		}
	}

	var undo []func()
	fail := func(err error) (*uint256.Int, error) {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return nil, err
	}

	if err := r.bank.Pay(caller, r.addr, value); err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	undo = append(undo, func() { _ = r.bank.Pay(r.addr, caller, value) })

	if err := r.bank.Send(r.addr, r.relay.Address(), platformFee); err != nil {
		return fail(fmt.Errorf("buy: platform fee: %w", err))
	}
	undo = append(undo, func() { _ = r.bank.Pay(r.relay.Address(), r.addr, platformFee) })

	if rec.Mode.Deflationary() {
		rec.Pending.Add(rec.Pending, creatorFee)
		undo = append(undo, func() { rec.Pending.Sub(rec.Pending, creatorFee) })
	} else {
		if err := r.bank.Send(r.addr, rec.Creator, creatorFee); err != nil {
			return fail(fmt.Errorf("buy: creator fee: %w", err))
		}
		undo = append(undo, func() { _ = r.bank.Pay(rec.Creator, r.addr, creatorFee) })
	}

	out, err := r.market.SwapExactReserveForToken(r.addr, tokenAddr, net, minOut, caller, deadline)
	if err != nil {
		return fail(fmt.Errorf("buy: %w", core.Externalf("swap: %v", err)))
	}

	rec.Trades++
	rec.Volume.Add(rec.Volume, value)
	rec.PlatformFees.Add(rec.PlatformFees, platformFee)
	rec.CreatorFees.Add(rec.CreatorFees, creatorFee)
	r.recordTrade(tokenAddr, caller, "buy", value, out, platformFee, creatorFee)
	return out, nil
}

// SellTokens pulls tokens from the seller, swaps them on the exchange, and
// pays out net of fees. minOut bounds what the seller receives after fees.
func (r *Router) SellTokens(caller, tokenAddr common.Address, amountIn, minOut *uint256.Int, deadline time.Time) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.tradeGuardLocked(tokenAddr, amountIn, deadline)
	if err != nil {
		return nil, err
	}
	tok, ok := r.resolver.TokenAt(tokenAddr)
	if !ok {
		return nil, fmt.Errorf("%w: token %s", core.ErrNotRegistered, tokenAddr.Hex())
	}

	// Quote the gross and check the net-of-fees payout against the caller
	// minimum before any leg moves; bound the swap with the same gross.
	var grossMin *uint256.Int
	if minOut != nil && !minOut.IsZero() {
		quote, err := r.market.GetAmountsOut(tokenAddr, amountIn, false)
		if err != nil {
			return nil, fmt.Errorf("sell: %w", core.Externalf("quote: %v", err))
		}
		_, _, quoteNet := r.splitFees(quote)
		if quoteNet.Lt(minOut) {
			return nil, fmt.Errorf("%w: %s reserve below minimum %s", core.ErrSlippage, quoteNet, minOut)
		}
		grossMin = quote
	}

	if err := tok.Transfer(caller, r.addr, amountIn); err != nil {
		return nil, fmt.Errorf("sell: pull tokens: %w", err)
	}

	gross, err := r.market.SwapExactTokenForReserve(r.addr, tokenAddr, amountIn, grossMin, r.addr, deadline)
	if err != nil {
		_ = tok.Transfer(r.addr, caller, amountIn)
		return nil, fmt.Errorf("sell: %w", core.Externalf("swap: %v", err))
	}

	// The swap cannot be reversed; the router now holds the gross, and a
	// failed distribution past this point is an accounting fault.
	platformFee, creatorFee, net := r.splitFees(gross)
	if err := r.bank.Pay(r.addr, caller, net); err != nil {
		return nil, fmt.Errorf("%w: sell payout: %v", core.ErrInvariant, err)
	}
	if err := r.bank.Send(r.addr, r.relay.Address(), platformFee); err != nil {
		return nil, fmt.Errorf("%w: sell platform fee: %v", core.ErrInvariant, err)
	}
	if rec.Mode.Deflationary() {
		rec.Pending.Add(rec.Pending, creatorFee)
	} else if err := r.bank.Send(r.addr, rec.Creator, creatorFee); err != nil {
		return nil, fmt.Errorf("%w: sell creator fee: %v", core.ErrInvariant, err)
	}

	rec.Trades++
	rec.Volume.Add(rec.Volume, gross)
	rec.PlatformFees.Add(rec.PlatformFees, platformFee)
	rec.CreatorFees.Add(rec.CreatorFees, creatorFee)
	r.recordTrade(tokenAddr, caller, "sell", gross, amountIn, platformFee, creatorFee)
	return net, nil
}

// ExecuteBuyback spends a deflationary token's pending fees on an exchange
// buy and burns the proceeds. Failed swaps restore the pending balance.
func (r *Router) ExecuteBuyback(tokenAddr common.Address, minOut *uint256.Int) error {
	return r.buyback(tokenAddr, minOut, true)
}

// BatchExecuteBuyback sweeps a token list, skipping ineligible entries and
// swallowing per-token failures so one revert cannot poison the batch.
// Returns the number of buybacks that executed.
func (r *Router) BatchExecuteBuyback(tokens []common.Address, minOut *uint256.Int) int {
	executed := 0
	for _, t := range tokens {
		before := r.PendingBuyback(t)
		_ = r.buyback(t, minOut, false)
		if r.PendingBuyback(t).Lt(before) {
			executed++
		}
	}
	return executed
}

func (r *Router) buyback(tokenAddr common.Address, minOut *uint256.Int, strict bool) error {
	r.mu.Lock()
	rec, ok := r.records[tokenAddr]
	switch {
	case !ok:
		r.mu.Unlock()
		if strict {
			return fmt.Errorf("%w: token %s", core.ErrNotRegistered, tokenAddr.Hex())
		}
		return nil
	case r.paused:
		r.mu.Unlock()
		if strict {
			return core.ErrRouterPaused
		}
		return nil
	case !rec.Mode.Deflationary():
		r.mu.Unlock()
		if strict {
			return fmt.Errorf("%w: %s mode pays the creator directly", core.ErrBadLaunchMode, rec.Mode)
		}
		return nil
	case r.inFlight[tokenAddr]:
		r.mu.Unlock()
		if strict {
			return core.ErrBusy
		}
		return nil
	case rec.Pending.IsZero():
		r.mu.Unlock()
		if strict {
			return fmt.Errorf("%w: nothing pending", core.ErrBelowThreshold)
		}
		return nil
	}
	tok, found := r.resolver.TokenAt(tokenAddr)
	if !found {
		r.mu.Unlock()
		if strict {
			return fmt.Errorf("%w: token %s", core.ErrNotRegistered, tokenAddr.Hex())
		}
		return nil
	}

	// Zero before the exchange call, restore on failure.
	spend := rec.Pending.Clone()
	rec.Pending.Clear()
	r.inFlight[tokenAddr] = true
	r.mu.Unlock()

	out, swapErr := r.market.SwapExactReserveForToken(r.addr, tokenAddr, spend, minOut, r.addr, time.Time{})

	r.mu.Lock()
	delete(r.inFlight, tokenAddr)
	if swapErr != nil {
		rec.Pending.Add(rec.Pending, spend)
		rec.Failures++
		r.mu.Unlock()
		r.events.Record(core.NewEvent(core.EvRouterBuybackFailed, r.clock.BlockNumber(), map[string]interface{}{
			"token":  tokenAddr.Hex(),
			"spend":  spend.String(),
			"reason": swapErr.Error(),
		}))
		r.logger.Warn("router buyback failed, pending restored",
			zap.String("token", tokenAddr.Hex()),
			zap.String("spend", spend.String()),
			zap.Error(swapErr))
		if strict {
			return fmt.Errorf("buyback: %w", core.Externalf("swap: %v", swapErr))
		}
		return nil
	}
	rec.TotalSpent.Add(rec.TotalSpent, spend)
	rec.TotalBurned.Add(rec.TotalBurned, out)
	rec.Buybacks++
	r.mu.Unlock()

	if err := tok.Burn(r.addr, out); err != nil {
		return fmt.Errorf("%w: burn after buyback: %v", core.ErrInvariant, err)
	}

	r.events.Record(core.NewEvent(core.EvRouterBuyback, r.clock.BlockNumber(), map[string]interface{}{
		"token":  tokenAddr.Hex(),
		"spend":  spend.String(),
		"burned": out.String(),
	}))
	r.logger.Info("router buyback executed",
		zap.String("token", tokenAddr.Hex()),
		zap.String("spend", spend.String()),
		zap.String("burned", out.String()))
	return nil
}

// SweepToken returns a non-registered token's balance accidentally sent to
// the router. Registered tokens are excluded so buyback proceeds in transit
// can never be drained.
func (r *Router) SweepToken(caller, tokenAddr, to common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return core.ErrNotOwner
	}
	if to == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	if _, ok := r.records[tokenAddr]; ok {
		return fmt.Errorf("%w: cannot sweep a registered token", core.ErrAlreadyRegistered)
	}
	tok, ok := r.resolver.TokenAt(tokenAddr)
	if !ok {
		return fmt.Errorf("%w: unknown token %s", core.ErrNotRegistered, tokenAddr.Hex())
	}
	bal := tok.BalanceOf(r.addr)
	if bal.IsZero() {
		return fmt.Errorf("sweep: %w", core.ErrZeroAmount)
	}
	return tok.Transfer(r.addr, to, bal)
}

// RecoverNative drains the router's reserve balance to `to`. Allowed only
// while paused, so active buyback float cannot be pulled out from under a
// live trade.
func (r *Router) RecoverNative(caller, to common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return core.ErrNotOwner
	}
	if to == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	if !r.paused {
		return core.ErrNotPaused
	}
	bal := r.bank.BalanceOf(r.addr)
	if bal.IsZero() {
		return fmt.Errorf("recover: %w", core.ErrZeroAmount)
	}
	return r.bank.Pay(r.addr, to, bal)
}

func (r *Router) SetPaused(caller common.Address, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return core.ErrNotOwner
	}
	r.paused = paused
	r.events.Record(core.NewEvent(core.EvAdminChange, r.clock.BlockNumber(), map[string]interface{}{
		"component": "router",
		"key":       "paused",
		"value":     paused,
	}))
	return nil
}

func (r *Router) TransferOwnership(caller, next common.Address) error {
	if next == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return core.ErrNotOwner
	}
	r.pendingOwner = next
	return nil
}

func (r *Router) AcceptOwnership(caller common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.pendingOwner || caller == core.ZeroAddress {
		return core.ErrNotOwner
	}
	r.owner = caller
	r.pendingOwner = core.ZeroAddress
	return nil
}

// Views.

func (r *Router) IsRegistered(tokenAddr common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[tokenAddr]
	return ok
}

func (r *Router) Record(tokenAddr common.Address) (TokenRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[tokenAddr]
	if !ok {
		return TokenRecord{}, false
	}
	return rec.snapshot(), true
}

func (r *Router) PendingBuyback(tokenAddr common.Address) *uint256.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[tokenAddr]; ok {
		return rec.Pending.Clone()
	}
	return uint256.NewInt(0)
}

// TokensWithPending lists deflationary tokens holding a nonzero pending
// balance, for the keeper's scan.
func (r *Router) TokensWithPending() []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]common.Address, 0)
	for addr, rec := range r.records {
		if rec.Mode.Deflationary() && !rec.Pending.IsZero() {
			out = append(out, addr)
		}
	}
	return out
}

func (r *Router) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

func (r *Router) tradeGuardLocked(tokenAddr common.Address, amount *uint256.Int, deadline time.Time) (*TokenRecord, error) {
	if r.paused {
		return nil, core.ErrRouterPaused
	}
	rec, ok := r.records[tokenAddr]
	if !ok {
		return nil, fmt.Errorf("%w: token %s", core.ErrNotRegistered, tokenAddr.Hex())
	}
	if amount == nil || amount.IsZero() {
		return nil, core.ErrZeroAmount
	}
	if !deadline.IsZero() && r.clock.Now().After(deadline) {
		return nil, core.ErrDeadlineExpired
	}
	return rec, nil
}

// splitFees carves platform and creator shares out of `value`. Truncation
// favors the trader: net absorbs both remainders.
func (r *Router) splitFees(value *uint256.Int) (platformFee, creatorFee, net *uint256.Int) {
	platformFee = new(uint256.Int).Mul(value, uint256.NewInt(r.platformFeeBP))
	platformFee.Div(platformFee, uint256.NewInt(feeDenominator))
	creatorFee = new(uint256.Int).Mul(value, uint256.NewInt(r.creatorFeeBP))
	creatorFee.Div(creatorFee, uint256.NewInt(feeDenominator))
	net = new(uint256.Int).Sub(value, platformFee)
	net.Sub(net, creatorFee)
	return platformFee, creatorFee, net
}

func (r *Router) recordTrade(tokenAddr, trader common.Address, side string, value, tokens, platformFee, creatorFee *uint256.Int) {
	r.events.Record(core.NewEvent(core.EvRouterTrade, r.clock.BlockNumber(), map[string]interface{}{
		"token":    tokenAddr.Hex(),
		"trader":   trader.Hex(),
		"side":     side,
		"value":    value.String(),
		"tokens":   tokens.String(),
		"platform": platformFee.String(),
		"creator":  creatorFee.String(),
	}))
	r.logger.Debug("routed trade",
		zap.String("token", tokenAddr.Hex()),
		zap.String("side", side),
		zap.String("value", value.String()),
		zap.String("tokens", tokens.String()))
}

// =============================
// File: internal/pool/pool.go
// =============================

// Package pool implements the bonding-curve market for one launched token:
// buy/sell against the curve with a two-tier fee split, and the one-time
// graduation transition that seeds the external AMM and permanently disables
// curve trading.
package pool

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/snowball-dex/launchpad/internal/amm"
	"github.com/snowball-dex/launchpad/internal/core"
	"github.com/snowball-dex/launchpad/internal/curve"
	"github.com/snowball-dex/launchpad/internal/token"
)

// State is the pool lifecycle. Transitions are one-way:
// Uninitialized -> Active (Initialize), Active -> Graduated (graduate).
type State uint8

const (
	StateUninitialized State = iota
	StateActive
	StateGraduated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateGraduated:
		return "graduated"
	}
	return "unknown"
}

const feeDenominator = 10_000

// Config fixes a pool's economics at initialization time.
type Config struct {
	Curve               curve.Params
	PlatformFeeBP       uint64
	CreatorFeeBP        uint64
	GraduationFeeBP     uint64
	GraduationThreshold *uint256.Int
	MaxTxValue          *uint256.Int // anti-whale cap on a single buy
	TokensOnCurve       *uint256.Int
	TokensForLiquidity  *uint256.Int
}

// Validate bounds the pool economics; the factory runs this both on its
// defaults and again at initialization.
func (c Config) Validate() error {
	if err := c.Curve.Validate(); err != nil {
		return err
	}
	if c.PlatformFeeBP+c.CreatorFeeBP+c.GraduationFeeBP >= feeDenominator {
		return fmt.Errorf("%w: fee basis points sum to %d", core.ErrBadCurveParams,
			c.PlatformFeeBP+c.CreatorFeeBP+c.GraduationFeeBP)
	}
	if c.GraduationThreshold == nil || c.GraduationThreshold.IsZero() {
		return fmt.Errorf("%w: graduation threshold required", core.ErrBadCurveParams)
	}
	if c.MaxTxValue == nil || c.MaxTxValue.IsZero() {
		return fmt.Errorf("%w: per-tx value cap required", core.ErrBadCurveParams)
	}
	if c.TokensOnCurve == nil || c.TokensOnCurve.IsZero() || c.TokensForLiquidity == nil {
		return fmt.Errorf("%w: curve/liquidity supply split required", core.ErrBadCurveParams)
	}
	if max := curve.MaxCurveSupply(); c.TokensOnCurve.Gt(max) {
		return fmt.Errorf("%w: curve allocation %s above solver bound %s",
			core.ErrBadCurveParams, c.TokensOnCurve, max)
	}
	return nil
}

// TradeReceipt reports the settled legs of one buy or sell.
type TradeReceipt struct {
	TokensMoved *uint256.Int
	GrossValue  *uint256.Int
	PlatformFee *uint256.Int
	CreatorFee  *uint256.Int
	NetValue    *uint256.Int
	Graduated   bool
}

// Pool owns one token's curve market. All entry points serialize on the pool
// mutex; receive hooks reached through fee forwarding never call back into a
// pool, so holding the lock across those sends is deadlock-free.
type Pool struct {
	addr    common.Address
	factory common.Address

	mu       sync.Mutex
	state    State
	paused   bool
	creator  common.Address
	cfg      Config
	tok      *token.Token
	tokensSold    *uint256.Int
	reserveRaised *uint256.Int
	lastBlock     map[common.Address]uint64

	bank   *core.Bank
	market amm.AMM
	clock  core.Clock
	events core.EventSink
	logger *zap.Logger
}

// NewShell deploys the empty pool. Token construction needs this address, so
// the pool exists before it is initialized (two-phase construction).
func NewShell(addr, factory common.Address, bank *core.Bank, market amm.AMM, clock core.Clock, events core.EventSink, logger *zap.Logger) *Pool {
	return &Pool{
		addr:      addr,
		factory:   factory,
		state:     StateUninitialized,
		lastBlock: make(map[common.Address]uint64),
		bank:      bank,
		market:    market,
		clock:     clock,
		events:    events,
		logger:    logger.Named("pool").With(zap.String("pool", addr.Hex())),
	}
}

// Initialize binds the token and fixes the economics. Factory-only, once.
func (p *Pool) Initialize(caller common.Address, tok *token.Token, creator common.Address, cfg Config) error {
	if caller != p.factory {
		return core.ErrNotOwner
	}
	if creator == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateUninitialized {
		return core.ErrDoubleInit
	}
	onCurve := new(uint256.Int).Add(cfg.TokensOnCurve, cfg.TokensForLiquidity)
	if tok.TotalSupply().Lt(onCurve) {
		return fmt.Errorf("%w: supply split exceeds total supply", core.ErrBadCurveParams)
	}
	p.tok = tok
	p.creator = creator
	p.cfg = cfg
	p.tokensSold = uint256.NewInt(0)
	p.reserveRaised = uint256.NewInt(0)
	p.state = StateActive
	return nil
}

// Buy purchases tokens from the curve with the attached reserve value.
// Order within the call is fixed: pay-in, ledger update, token delivery, the
// graduation check, then fee forwarding — a buy that crosses the threshold
// still pays the buyer before the pool graduates. A graduation failure aborts
// the whole buy.
func (p *Pool) Buy(caller common.Address, value, minTokensOut *uint256.Int) (*TradeReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.tradeGuard(caller, value); err != nil {
		return nil, err
	}
	if value.Gt(p.cfg.MaxTxValue) {
		return nil, fmt.Errorf("%w: %s above cap %s", core.ErrValueTooLarge, value, p.cfg.MaxTxValue)
	}

	platformFee, creatorFee, net := p.splitFees(value)
	amount, err := p.cfg.Curve.TokensForReserve(p.tokensSold, net)
	if err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	if minTokensOut != nil && amount.Lt(minTokensOut) {
		return nil, fmt.Errorf("%w: %s tokens below minimum %s", core.ErrSlippage, amount, minTokensOut)
	}
	sold := new(uint256.Int).Add(p.tokensSold, amount)
	if sold.Gt(p.cfg.TokensOnCurve) {
		return nil, fmt.Errorf("%w: %s of %s", core.ErrSupplyExceeded, sold, p.cfg.TokensOnCurve)
	}

	// Settlement. The hook-free legs run first; each pushes its inverse so a
	// later failure unwinds the call completely (atomic-per-call). Fee
	// forwarding runs receive hooks with side effects a reverse payment
	// cannot undo, so the fee legs settle last, once the buy can no longer
	// abort.
	var undo []func()
	fail := func(err error) (*TradeReceipt, error) {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return nil, err
	}

	if err := p.bank.Pay(caller, p.addr, value); err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	undo = append(undo, func() { _ = p.bank.Pay(p.addr, caller, value) })

	p.tokensSold.Add(p.tokensSold, amount)
	p.reserveRaised.Add(p.reserveRaised, net)
	undo = append(undo, func() {
		p.tokensSold.Sub(p.tokensSold, amount)
		p.reserveRaised.Sub(p.reserveRaised, net)
	})

	if err := p.tok.Transfer(p.addr, caller, amount); err != nil {
		return fail(fmt.Errorf("buy: deliver tokens: %w", err))
	}
	undo = append(undo, func() { _ = p.tok.Transfer(caller, p.addr, amount) })

	receipt := &TradeReceipt{
		TokensMoved: amount.Clone(),
		GrossValue:  value.Clone(),
		PlatformFee: platformFee,
		CreatorFee:  creatorFee,
		NetValue:    net,
	}

	// Graduation check runs strictly after the buyer is paid. The fees are
	// still held by the pool here, so seeding works off the bank balance net
	// of what this buy owes.
	owedFees := new(uint256.Int).Add(platformFee, creatorFee)
	if !p.reserveRaised.Lt(p.cfg.GraduationThreshold) {
		if err := p.graduateLocked(owedFees); err != nil {
			return fail(fmt.Errorf("buy: graduation: %w", err))
		}
		receipt.Graduated = true
	}

	// The buy is settled; a fee leg failing now is an accounting fault, not a
	// user error.
	if err := p.bank.Send(p.addr, p.factory, platformFee); err != nil {
		return nil, fmt.Errorf("%w: buy platform fee: %v", core.ErrInvariant, err)
	}
	if err := p.bank.Send(p.addr, p.creator, creatorFee); err != nil {
		return nil, fmt.Errorf("%w: buy creator fee: %v", core.ErrInvariant, err)
	}

	p.lastBlock[caller] = p.clock.BlockNumber()

	p.events.Record(core.NewEvent(core.EvBuy, p.clock.BlockNumber(), map[string]interface{}{
		"pool":     p.addr.Hex(),
		"buyer":    caller.Hex(),
		"value":    value.String(),
		"tokens":   amount.String(),
		"platform": platformFee.String(),
		"creator":  creatorFee.String(),
	}))
	p.logger.Debug("buy settled",
		zap.String("buyer", caller.Hex()),
		zap.String("value", value.String()),
		zap.String("tokens", amount.String()),
		zap.Bool("graduated", receipt.Graduated))
	return receipt, nil
}

// Sell returns tokens to the curve for reserve currency, fees off the gross.
func (p *Pool) Sell(caller common.Address, amount, minReserveOut *uint256.Int) (*TradeReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.tradeGuard(caller, amount); err != nil {
		return nil, err
	}

	gross, err := p.cfg.Curve.ReturnFromSell(p.tokensSold, amount)
	if err != nil {
		return nil, fmt.Errorf("sell: %w", err)
	}
	platformFee, creatorFee, net := p.splitFees(gross)
	if minReserveOut != nil && net.Lt(minReserveOut) {
		return nil, fmt.Errorf("%w: %s reserve below minimum %s", core.ErrSlippage, net, minReserveOut)
	}
	if p.bank.BalanceOf(p.addr).Lt(gross) {
		return nil, fmt.Errorf("%w: payout %s", core.ErrInsufficientReserve, gross)
	}

	var undo []func()
	fail := func(err error) (*TradeReceipt, error) {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return nil, err
	}

	if err := p.tok.Transfer(caller, p.addr, amount); err != nil {
		return nil, fmt.Errorf("sell: pull tokens: %w", err)
	}
	undo = append(undo, func() { _ = p.tok.Transfer(p.addr, caller, amount) })

	p.tokensSold.Sub(p.tokensSold, amount)
	// Fee rounding lets reconstruction drift by a few wei; clamp rather
	// than underflow. Snapshot first so the undo restores the exact value.
	prevRaised := p.reserveRaised.Clone()
	if gross.Gt(p.reserveRaised) {
		p.reserveRaised.Clear()
	} else {
		p.reserveRaised.Sub(p.reserveRaised, gross)
	}
	undo = append(undo, func() {
		p.tokensSold.Add(p.tokensSold, amount)
		p.reserveRaised.Set(prevRaised)
	})

	if err := p.bank.Pay(p.addr, caller, net); err != nil {
		return fail(fmt.Errorf("sell: payout: %w", err))
	}

	// The sale is settled; fee forwarding runs receive hooks a reverse
	// payment cannot undo, so a failure here is an accounting fault.
	if err := p.bank.Send(p.addr, p.factory, platformFee); err != nil {
		return nil, fmt.Errorf("%w: sell platform fee: %v", core.ErrInvariant, err)
	}
	if err := p.bank.Send(p.addr, p.creator, creatorFee); err != nil {
		return nil, fmt.Errorf("%w: sell creator fee: %v", core.ErrInvariant, err)
	}

	p.lastBlock[caller] = p.clock.BlockNumber()

	p.events.Record(core.NewEvent(core.EvSell, p.clock.BlockNumber(), map[string]interface{}{
		"pool":   p.addr.Hex(),
		"seller": caller.Hex(),
		"tokens": amount.String(),
		"gross":  gross.String(),
		"net":    net.String(),
	}))
	return &TradeReceipt{
		TokensMoved: amount.Clone(),
		GrossValue:  gross,
		PlatformFee: platformFee,
		CreatorFee:  creatorFee,
		NetValue:    net,
	}, nil
}

// graduateLocked runs the one-way transition. Caller holds the pool lock and
// has verified the threshold. owedFees is the portion of the pool's bank
// balance already earmarked for the triggering buy's fee legs; it is excluded
// from seeding. The graduation fee and AMM seeding move first; only after
// liquidity is locked do the irreversible latches flip, so an AMM failure
// leaves no observable graduation state behind.
func (p *Pool) graduateLocked(owedFees *uint256.Int) error {
	if p.state == StateGraduated {
		return nil // latch checked first; never re-run seeding
	}

	balance := p.bank.BalanceOf(p.addr)
	balance.Sub(balance, owedFees)
	gradFee := new(uint256.Int).Mul(balance, uint256.NewInt(p.cfg.GraduationFeeBP))
	gradFee.Div(gradFee, uint256.NewInt(feeDenominator))
	seedReserve := new(uint256.Int).Sub(balance, gradFee)

	pair, liquidity, err := p.market.AddLiquidity(
		p.addr, p.tok.Address(), seedReserve, p.cfg.TokensForLiquidity, core.BurnAddress)
	if err != nil {
		return core.Externalf("add liquidity: %v", err)
	}

	// The factory relay only forwards to the treasury and cannot reject;
	// a failure past this point is an accounting fault, not a user error.
	if err := p.bank.Send(p.addr, p.factory, gradFee); err != nil {
		return fmt.Errorf("%w: graduation fee: %v", core.ErrInvariant, err)
	}
	if err := p.tok.EnableTrading(p.addr); err != nil {
		return fmt.Errorf("%w: enable trading: %v", core.ErrInvariant, err)
	}
	if err := p.tok.SetExempt(p.addr, pair, true); err != nil {
		return fmt.Errorf("%w: exempt pair: %v", core.ErrInvariant, err)
	}
	if dust := p.tok.BalanceOf(p.addr); !dust.IsZero() {
		if err := p.tok.Burn(p.addr, dust); err != nil {
			return fmt.Errorf("%w: burn dust: %v", core.ErrInvariant, err)
		}
	}
	p.state = StateGraduated

	p.events.Record(core.NewEvent(core.EvGraduated, p.clock.BlockNumber(), map[string]interface{}{
		"pool":       p.addr.Hex(),
		"token":      p.tok.Address().Hex(),
		"pair":       pair.Hex(),
		"reserve":    seedReserve.String(),
		"tokens":     p.cfg.TokensForLiquidity.String(),
		"liquidity":  liquidity.String(),
		"grad_fee":   gradFee.String(),
	}))
	p.logger.Info("pool graduated",
		zap.String("pair", pair.Hex()),
		zap.String("seed_reserve", seedReserve.String()),
		zap.String("liquidity", liquidity.String()))
	return nil
}

// SetPaused flips the orthogonal circuit breaker. Factory-only.
func (p *Pool) SetPaused(caller common.Address, paused bool) error {
	if caller != p.factory {
		return core.ErrNotOwner
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateGraduated {
		return core.ErrPoolGraduated
	}
	p.paused = paused
	p.events.Record(core.NewEvent(core.EvPoolPaused, p.clock.BlockNumber(), map[string]interface{}{
		"pool":   p.addr.Hex(),
		"paused": paused,
	}))
	return nil
}

func (p *Pool) tradeGuard(caller common.Address, amount *uint256.Int) error {
	switch p.state {
	case StateUninitialized:
		return core.ErrNotInitialized
	case StateGraduated:
		return core.ErrPoolGraduated
	}
	if p.paused {
		return core.ErrPoolPaused
	}
	if caller == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return core.ErrZeroAmount
	}
	if blk, ok := p.lastBlock[caller]; ok && blk == p.clock.BlockNumber() {
		return core.ErrSameBlock
	}
	return nil
}

// splitFees returns (platform, creator, net); the three always sum exactly to
// the input.
func (p *Pool) splitFees(value *uint256.Int) (platform, creator, net *uint256.Int) {
	platform = new(uint256.Int).Mul(value, uint256.NewInt(p.cfg.PlatformFeeBP))
	platform.Div(platform, uint256.NewInt(feeDenominator))
	creator = new(uint256.Int).Mul(value, uint256.NewInt(p.cfg.CreatorFeeBP))
	creator.Div(creator, uint256.NewInt(feeDenominator))
	net = new(uint256.Int).Sub(value, platform)
	net.Sub(net, creator)
	return platform, creator, net
}

// Views.

func (p *Pool) Address() common.Address { return p.addr }

func (p *Pool) Creator() common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creator
}

func (p *Pool) Token() *token.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tok
}

func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pool) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// TradingActive reports whether curve trades are currently accepted.
func (p *Pool) TradingActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateActive && !p.paused
}

func (p *Pool) TokensSold() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokensSold.Clone()
}

func (p *Pool) ReserveRaised() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserveRaised.Clone()
}

func (p *Pool) GraduationThreshold() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.GraduationThreshold.Clone()
}

// CurrentPrice is the marginal curve price at the current supply sold.
func (p *Pool) CurrentPrice() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Curve.SpotPrice(p.tokensSold)
}

// QuoteBuy previews the token output for a buy of `value`, fees included.
func (p *Pool) QuoteBuy(value *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return nil, core.ErrPoolGraduated
	}
	_, _, net := p.splitFees(value)
	return p.cfg.Curve.TokensForReserve(p.tokensSold, net)
}

// QuoteSell previews the net reserve output for a sell of `amount`.
func (p *Pool) QuoteSell(amount *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return nil, core.ErrPoolGraduated
	}
	gross, err := p.cfg.Curve.ReturnFromSell(p.tokensSold, amount)
	if err != nil {
		return nil, err
	}
	_, _, net := p.splitFees(gross)
	return net, nil
}

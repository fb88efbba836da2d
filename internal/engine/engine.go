// =============================
// File: internal/engine/engine.go
// =============================

// Package engine assembles the launchpad: bank, clock, exchange, factory,
// buyback wrapper, fee router and journal, wired from one config. Commands
// and the keeper talk to this facade instead of to individual components.
package engine

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/snowball-dex/launchpad/internal/amm"
	"github.com/snowball-dex/launchpad/internal/buyback"
	"github.com/snowball-dex/launchpad/internal/config"
	"github.com/snowball-dex/launchpad/internal/core"
	"github.com/snowball-dex/launchpad/internal/factory"
	"github.com/snowball-dex/launchpad/internal/journal"
	"github.com/snowball-dex/launchpad/internal/oracle"
	"github.com/snowball-dex/launchpad/internal/pool"
	"github.com/snowball-dex/launchpad/internal/quote"
	"github.com/snowball-dex/launchpad/internal/router"
)

// Engine owns the wired component graph.
type Engine struct {
	bank    *core.Bank
	clock   core.Clock
	market  *amm.XYK
	factory *factory.Factory
	wrapper *buyback.Wrapper
	router  *router.Router
	journal *journal.Journal
	feed    *oracle.PostedFeed
	logger  *zap.Logger
}

// New wires the full graph from config. The journal doubles as the event
// sink for every component.
func New(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	defaults, err := cfg.FactoryDefaults()
	if err != nil {
		return nil, err
	}
	creationFee, err := cfg.CreationFeeAmount()
	if err != nil {
		return nil, err
	}
	minThreshold, floor, ceiling, err := cfg.BuybackBounds()
	if err != nil {
		return nil, err
	}

	jnl, err := journal.Open(cfg.JournalPath, logger)
	if err != nil {
		return nil, err
	}

	bank := core.NewBank(logger)
	clock := core.NewSystemClock(time.Duration(cfg.BlockTimeMS) * time.Millisecond)
	market := amm.NewXYK(bank, nil, clock, logger)

	f, err := factory.New(cfg.OwnerAddress(), cfg.TreasuryAddress(), creationFee, defaults,
		bank, market, clock, jnl, logger)
	if err != nil {
		jnl.Close()
		return nil, fmt.Errorf("wire factory: %w", err)
	}
	market.SetResolver(f)

	w, err := buyback.New(cfg.OwnerAddress(), f, minThreshold, floor, ceiling,
		bank, clock, jnl, logger)
	if err != nil {
		jnl.Close()
		return nil, fmt.Errorf("wire buyback wrapper: %w", err)
	}

	r, err := router.New(cfg.OwnerAddress(), cfg.PlatformFeeBP, cfg.CreatorFeeBP,
		f, f, market, bank, clock, jnl, logger)
	if err != nil {
		jnl.Close()
		return nil, fmt.Errorf("wire router: %w", err)
	}

	return &Engine{
		bank:    bank,
		clock:   clock,
		market:  market,
		factory: f,
		wrapper: w,
		router:  r,
		journal: jnl,
		feed:    oracle.NewPostedFeed(),
		logger:  logger.Named("engine"),
	}, nil
}

func (e *Engine) Close() error {
	return e.journal.Close()
}

// Component accessors for commands and the keeper.

func (e *Engine) Bank() *core.Bank            { return e.bank }
func (e *Engine) Clock() core.Clock           { return e.clock }
func (e *Engine) Market() *amm.XYK            { return e.market }
func (e *Engine) Factory() *factory.Factory   { return e.factory }
func (e *Engine) Wrapper() *buyback.Wrapper   { return e.wrapper }
func (e *Engine) Router() *router.Router      { return e.router }
func (e *Engine) Journal() *journal.Journal   { return e.journal }
func (e *Engine) PriceFeed() *oracle.PostedFeed { return e.feed }

// Deposit credits reserve currency to an account. The in-process deployment
// has no payment rail; deposits are the operator's on-ramp.
func (e *Engine) Deposit(to common.Address, amount *uint256.Int) error {
	if to == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return core.ErrZeroAmount
	}
	e.bank.Mint(to, amount)
	e.logger.Info("deposit credited",
		zap.String("account", to.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

// Launch creates a standard token with the caller as creator.
func (e *Engine) Launch(caller common.Address, value *uint256.Int, params factory.TokenParams) (tokenAddr, poolAddr common.Address, err error) {
	return e.factory.CreateToken(caller, value, params)
}

// LaunchDeflationary creates a Snowball/Fireball token through the wrapper.
func (e *Engine) LaunchDeflationary(caller common.Address, value *uint256.Int, params factory.TokenParams, mode core.LaunchMode) (tokenAddr, poolAddr common.Address, err error) {
	return e.wrapper.CreateSnowballToken(caller, value, params, mode)
}

// Buy routes a bonding-curve purchase to the token's pool.
func (e *Engine) Buy(caller, tokenAddr common.Address, value, minTokensOut *uint256.Int) (*pool.TradeReceipt, error) {
	p, err := e.poolFor(tokenAddr)
	if err != nil {
		return nil, err
	}
	return p.Buy(caller, value, minTokensOut)
}

// Sell routes a bonding-curve sale to the token's pool.
func (e *Engine) Sell(caller, tokenAddr common.Address, amount, minReserveOut *uint256.Int) (*pool.TradeReceipt, error) {
	p, err := e.poolFor(tokenAddr)
	if err != nil {
		return nil, err
	}
	return p.Sell(caller, amount, minReserveOut)
}

func (e *Engine) poolFor(tokenAddr common.Address) (*pool.Pool, error) {
	poolAddr, ok := e.factory.TokenToPool(tokenAddr)
	if !ok {
		return nil, fmt.Errorf("%w: token %s", core.ErrNotRegistered, tokenAddr.Hex())
	}
	p, ok := e.factory.PoolAt(poolAddr)
	if !ok {
		return nil, fmt.Errorf("%w: pool %s", core.ErrNotRegistered, poolAddr.Hex())
	}
	return p, nil
}

// PoolStatus is one pool's row in the engine snapshot.
type PoolStatus struct {
	Pool           common.Address
	Token          common.Address
	Symbol         string
	State          string
	TokensSold     *uint256.Int
	ReserveRaised  *uint256.Int
	Progress       decimal.Decimal
	PendingBuyback *uint256.Int
}

// Snapshot is the monitor's view of the running engine.
type Snapshot struct {
	Block       uint64
	Pools       []PoolStatus
	EventCounts map[string]int64
}

// Snapshot assembles the current state of every pool plus journal totals.
func (e *Engine) Snapshot() (*Snapshot, error) {
	counts, err := e.journal.Counts()
	if err != nil {
		return nil, err
	}

	pools := e.factory.Pools()
	statuses := make([]PoolStatus, 0, len(pools))
	for _, p := range pools {
		tok := p.Token()
		statuses = append(statuses, PoolStatus{
			Pool:           p.Address(),
			Token:          tok.Address(),
			Symbol:         tok.Symbol(),
			State:          p.State().String(),
			TokensSold:     p.TokensSold(),
			ReserveRaised:  p.ReserveRaised(),
			Progress:       quote.Progress(p.ReserveRaised(), p.GraduationThreshold()),
			PendingBuyback: e.wrapper.PendingBuyback(p.Address()),
		})
	}
	return &Snapshot{
		Block:       e.clock.BlockNumber(),
		Pools:       statuses,
		EventCounts: counts,
	}, nil
}

// =============================
// File: internal/buyback/wrapper.go
// =============================

// Package buyback implements the Snowball/Fireball wrapper: a pass-through
// creator identity that collects the creator-fee share of every trade on the
// pools it launched, keeps a strictly per-pool pending ledger, and spends a
// pool's balance on buying back and burning that pool's own token.
//
// The pending balance is always zeroed before the external buy and restored
// if the buy fails, so a buyback is a net no-op on the ledger unless tokens
// actually burned.
package buyback

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/snowball-dex/launchpad/internal/core"
	"github.com/snowball-dex/launchpad/internal/factory"
	"github.com/snowball-dex/launchpad/internal/pool"
)

// PoolRecord is the per-pool ledger. Pending is credited only by fee receipts
// whose bank-level sender is that pool; nothing is shared across pools.
type PoolRecord struct {
	RealCreator common.Address
	Mode        core.LaunchMode
	Pending     *uint256.Int
	TotalSpent  *uint256.Int
	TotalBurned *uint256.Int
	Buybacks    uint64
	Failures    uint64
}

func (r *PoolRecord) snapshot() PoolRecord {
	return PoolRecord{
		RealCreator: r.RealCreator,
		Mode:        r.Mode,
		Pending:     r.Pending.Clone(),
		TotalSpent:  r.TotalSpent.Clone(),
		TotalBurned: r.TotalBurned.Clone(),
		Buybacks:    r.Buybacks,
		Failures:    r.Failures,
	}
}

// Wrapper is the buyback service. It is the on-chain "creator" of every pool
// it registers; the human who asked for the launch is RealCreator.
type Wrapper struct {
	addr common.Address

	mu           sync.Mutex
	owner        common.Address
	pendingOwner common.Address
	records      map[common.Address]*PoolRecord
	inFlight     map[common.Address]bool
	minThreshold *uint256.Int
	floor        *uint256.Int
	ceiling      *uint256.Int

	factory *factory.Factory
	bank    *core.Bank
	clock   core.Clock
	events  core.EventSink
	logger  *zap.Logger
}

func New(owner common.Address, f *factory.Factory, minThreshold, floor, ceiling *uint256.Int,
	bank *core.Bank, clock core.Clock, events core.EventSink, logger *zap.Logger) (*Wrapper, error) {
	if owner == core.ZeroAddress {
		return nil, core.ErrZeroAddress
	}
	if floor.Gt(ceiling) || minThreshold.Lt(floor) || minThreshold.Gt(ceiling) {
		return nil, core.ErrThresholdBounds
	}
	w := &Wrapper{
		addr:         core.NamedAddress("launchpad/buyback-wrapper"),
		owner:        owner,
		records:      make(map[common.Address]*PoolRecord),
		inFlight:     make(map[common.Address]bool),
		minThreshold: minThreshold.Clone(),
		floor:        floor.Clone(),
		ceiling:      ceiling.Clone(),
		factory:      f,
		bank:         bank,
		clock:        clock,
		events:       events,
		logger:       logger.Named("buyback"),
	}
	bank.RegisterReceiver(w.addr, w)
	return w, nil
}

func (w *Wrapper) Address() common.Address { return w.addr }

// CreateSnowballToken launches a token with the wrapper as registered
// creator, so every creator-fee payment routes here. The caller funds the
// creation fee and is recorded as the real creator.
func (w *Wrapper) CreateSnowballToken(caller common.Address, value *uint256.Int, params factory.TokenParams, mode core.LaunchMode) (tokenAddr, poolAddr common.Address, err error) {
	if caller == core.ZeroAddress {
		return common.Address{}, common.Address{}, core.ErrZeroAddress
	}
	if !mode.Deflationary() {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: %s", core.ErrBadLaunchMode, mode)
	}

	// Front the fee from the caller, then create as ourselves.
	if err := w.bank.Pay(caller, w.addr, value); err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("create: %w", err)
	}
	tokenAddr, poolAddr, err = w.factory.CreateToken(w.addr, value, params)
	if err != nil {
		_ = w.bank.Pay(w.addr, caller, value)
		return common.Address{}, common.Address{}, err
	}

	w.mu.Lock()
	w.records[poolAddr] = &PoolRecord{
		RealCreator: caller,
		Mode:        mode,
		Pending:     uint256.NewInt(0),
		TotalSpent:  uint256.NewInt(0),
		TotalBurned: uint256.NewInt(0),
	}
	w.mu.Unlock()

	w.logger.Info("deflationary token launched",
		zap.String("token", tokenAddr.Hex()),
		zap.String("pool", poolAddr.Hex()),
		zap.String("real_creator", caller.Hex()),
		zap.String("mode", mode.String()))
	return tokenAddr, poolAddr, nil
}

// OnReceive credits a registered pool's pending balance when that pool
// forwards its creator-fee share. Anything else is an anomalous deposit:
// accepted, but flagged in the journal.
func (w *Wrapper) OnReceive(from common.Address, amount *uint256.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.records[from]; ok {
		rec.Pending.Add(rec.Pending, amount)
		w.events.Record(core.NewEvent(core.EvFeeReceived, w.clock.BlockNumber(), map[string]interface{}{
			"pool":    from.Hex(),
			"amount":  amount.String(),
			"pending": rec.Pending.String(),
		}))
		return nil
	}
	w.logger.Warn("anomalous deposit",
		zap.String("from", from.Hex()),
		zap.String("amount", amount.String()))
	w.events.Record(core.NewEvent(core.EvAnomalousDeposit, w.clock.BlockNumber(), map[string]interface{}{
		"from":   from.Hex(),
		"amount": amount.String(),
	}))
	return nil
}

// ProcessBuyback spends a pool's pending balance on its own token and burns
// the proceeds. Precondition failures reject the call; a failure of the inner
// buy restores the pending balance and reports the error, so the ledger is a
// net no-op and a later retry (with different slippage) can succeed.
func (w *Wrapper) ProcessBuyback(poolAddr common.Address, minTokensOut *uint256.Int) error {
	return w.buyback(poolAddr, minTokensOut, true)
}

// AutoBuyback is the keeper-safe variant: every precondition failure is a
// silent no-op so speculative calls never revert.
func (w *Wrapper) AutoBuyback(poolAddr common.Address, minTokensOut *uint256.Int) error {
	return w.buyback(poolAddr, minTokensOut, false)
}

// BatchAutoBuyback sweeps a caller-supplied pool list, skipping ineligible
// pools. Returns the number of buybacks that executed.
func (w *Wrapper) BatchAutoBuyback(pools []common.Address, minTokensOut *uint256.Int) int {
	executed := 0
	for _, p := range pools {
		before := w.PendingBuyback(p)
		if err := w.AutoBuyback(p, minTokensOut); err != nil {
			continue
		}
		// A spent balance means the buyback ran.
		if w.PendingBuyback(p).Lt(before) {
			executed++
		}
	}
	return executed
}

func (w *Wrapper) buyback(poolAddr common.Address, minTokensOut *uint256.Int, strict bool) error {
	w.mu.Lock()
	rec, ok := w.records[poolAddr]
	if !ok {
		w.mu.Unlock()
		if strict {
			return fmt.Errorf("%w: pool %s", core.ErrNotRegistered, poolAddr.Hex())
		}
		return nil
	}
	if w.inFlight[poolAddr] {
		w.mu.Unlock()
		if strict {
			return core.ErrBusy
		}
		return nil
	}
	if rec.Pending.Lt(w.minThreshold) {
		w.mu.Unlock()
		if strict {
			return fmt.Errorf("%w: pending %s, threshold %s",
				core.ErrBelowThreshold, rec.Pending, w.minThreshold)
		}
		return nil
	}

	// Zero and mark in-flight before anything touches the pool. The pool
	// serializes its own entry points and its fee forwarding re-enters
	// OnReceive, so no pool call may run under the wrapper lock.
	spend := rec.Pending.Clone()
	rec.Pending.Clear()
	w.inFlight[poolAddr] = true
	w.mu.Unlock()

	// Precondition failures restore the claim untouched: no failure count,
	// no journal entry, nothing ran.
	abort := func(err error) error {
		w.mu.Lock()
		delete(w.inFlight, poolAddr)
		rec.Pending.Add(rec.Pending, spend)
		w.mu.Unlock()
		if strict {
			return err
		}
		return nil
	}

	p, found := w.factory.PoolAt(poolAddr)
	if !found {
		return abort(fmt.Errorf("%w: pool %s", core.ErrNotRegistered, poolAddr.Hex()))
	}
	if p.State() == pool.StateGraduated {
		return abort(core.ErrPoolGraduated)
	}
	if !p.TradingActive() {
		return abort(core.ErrPoolPaused)
	}

	receipt, buyErr := p.Buy(w.addr, spend, minTokensOut)

	w.mu.Lock()
	delete(w.inFlight, poolAddr)
	if buyErr != nil {
		// Restore for retry. Add rather than overwrite: a fee credit may
		// have arrived while the lock was released.
		rec.Pending.Add(rec.Pending, spend)
		rec.Failures++
		w.mu.Unlock()
		w.events.Record(core.NewEvent(core.EvBuybackFailed, w.clock.BlockNumber(), map[string]interface{}{
			"pool":   poolAddr.Hex(),
			"spend":  spend.String(),
			"reason": buyErr.Error(),
		}))
		w.logger.Warn("buyback failed, pending restored",
			zap.String("pool", poolAddr.Hex()),
			zap.String("spend", spend.String()),
			zap.Error(buyErr))
		if strict {
			return fmt.Errorf("buyback: %w", buyErr)
		}
		return nil
	}
	rec.TotalSpent.Add(rec.TotalSpent, spend)
	rec.TotalBurned.Add(rec.TotalBurned, receipt.TokensMoved)
	rec.Buybacks++
	w.mu.Unlock()

	tok := p.Token()
	if err := tok.Burn(w.addr, receipt.TokensMoved); err != nil {
		// The wrapper is exempt and just received these tokens; a failed
		// burn means the ledgers disagree.
		return fmt.Errorf("%w: burn after buyback: %v", core.ErrInvariant, err)
	}

	w.events.Record(core.NewEvent(core.EvBuybackExecuted, w.clock.BlockNumber(), map[string]interface{}{
		"pool":   poolAddr.Hex(),
		"spend":  spend.String(),
		"burned": receipt.TokensMoved.String(),
	}))
	w.logger.Info("buyback executed",
		zap.String("pool", poolAddr.Hex()),
		zap.String("spend", spend.String()),
		zap.String("burned", receipt.TokensMoved.String()))
	return nil
}

// Views.

func (w *Wrapper) PendingBuyback(poolAddr common.Address) *uint256.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.records[poolAddr]; ok {
		return rec.Pending.Clone()
	}
	return uint256.NewInt(0)
}

func (w *Wrapper) Record(poolAddr common.Address) (PoolRecord, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.records[poolAddr]
	if !ok {
		return PoolRecord{}, false
	}
	return rec.snapshot(), true
}

func (w *Wrapper) IsRegistered(poolAddr common.Address) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.records[poolAddr]
	return ok
}

// EligiblePools lists registered pools whose pending balance has reached the
// threshold and whose curve is still trading — the keeper's scan surface.
func (w *Wrapper) EligiblePools() []common.Address {
	w.mu.Lock()
	candidates := make([]common.Address, 0)
	for addr, rec := range w.records {
		if !rec.Pending.Lt(w.minThreshold) {
			candidates = append(candidates, addr)
		}
	}
	w.mu.Unlock()

	eligible := candidates[:0]
	for _, addr := range candidates {
		if p, ok := w.factory.PoolAt(addr); ok && p.TradingActive() {
			eligible = append(eligible, addr)
		}
	}
	return eligible
}

func (w *Wrapper) MinBuybackThreshold() *uint256.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.minThreshold.Clone()
}

// SetMinBuybackThreshold moves the floor for spending, bounded so the admin
// can neither stall buybacks indefinitely nor burn gas on dust.
func (w *Wrapper) SetMinBuybackThreshold(caller common.Address, v *uint256.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if caller != w.owner {
		return core.ErrNotOwner
	}
	if v == nil || v.Lt(w.floor) || v.Gt(w.ceiling) {
		return fmt.Errorf("%w: %s not in [%s, %s]", core.ErrThresholdBounds, v, w.floor, w.ceiling)
	}
	w.minThreshold = v.Clone()
	w.events.Record(core.NewEvent(core.EvAdminChange, w.clock.BlockNumber(), map[string]interface{}{
		"component": "buyback",
		"key":       "min_threshold",
		"value":     v.String(),
	}))
	return nil
}

func (w *Wrapper) TransferOwnership(caller, next common.Address) error {
	if next == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if caller != w.owner {
		return core.ErrNotOwner
	}
	w.pendingOwner = next
	return nil
}

func (w *Wrapper) AcceptOwnership(caller common.Address) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if caller != w.pendingOwner || caller == core.ZeroAddress {
		return core.ErrNotOwner
	}
	w.owner = caller
	w.pendingOwner = core.ZeroAddress
	return nil
}

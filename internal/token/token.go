// =============================
// File: internal/token/token.go
// =============================

// Package token implements the fungible-asset ledger issued per launch. The
// full supply is minted to the owning pool at construction; transfers between
// third parties are gated until the pool enables trading at graduation. The
// creator is exempt from the gate by construction so that wrapper-driven burn
// transfers work before graduation.
package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/snowball-dex/launchpad/internal/core"
)

// Token is a balances/allowances ledger owned by exactly one pool. Only the
// pool may flip the trading latch or edit the exemption set.
type Token struct {
	name     string
	symbol   string
	decimals uint8
	creator  common.Address
	pool     common.Address
	addr     common.Address

	mu             sync.RWMutex
	totalSupply    *uint256.Int
	balances       map[common.Address]*uint256.Int
	allowances     map[common.Address]map[common.Address]*uint256.Int
	tradingEnabled bool
	exempt         map[common.Address]bool

	logger *zap.Logger
}

// New mints totalSupply to the pool and exempts the creator.
func New(addr common.Address, name, symbol string, decimals uint8, creator, pool common.Address, totalSupply *uint256.Int, logger *zap.Logger) (*Token, error) {
	if name == "" || symbol == "" {
		return nil, core.ErrEmptyMetadata
	}
	if creator == core.ZeroAddress || pool == core.ZeroAddress {
		return nil, core.ErrZeroAddress
	}
	t := &Token{
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		creator:     creator,
		pool:        pool,
		addr:        addr,
		totalSupply: totalSupply.Clone(),
		balances:    map[common.Address]*uint256.Int{pool: totalSupply.Clone()},
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
		exempt:      map[common.Address]bool{creator: true},
		logger:      logger.With(zap.String("token", symbol)),
	}
	return t, nil
}

func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }
func (t *Token) Creator() common.Address { return t.creator }
func (t *Token) Pool() common.Address    { return t.pool }
func (t *Token) Address() common.Address { return t.addr }

func (t *Token) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSupply.Clone()
}

func (t *Token) BalanceOf(account common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if bal, ok := t.balances[account]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

func (t *Token) TradingEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tradingEnabled
}

func (t *Token) IsExempt(account common.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.exempt[account]
}

// Transfer moves amount from the caller to the recipient, subject to the
// trading gate.
func (t *Token) Transfer(caller, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferLocked(caller, to, amount)
}

// Approve sets the spender allowance for the caller.
func (t *Token) Approve(caller, spender common.Address, amount *uint256.Int) error {
	if spender == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	inner, ok := t.allowances[caller]
	if !ok {
		inner = make(map[common.Address]*uint256.Int)
		t.allowances[caller] = inner
	}
	inner[spender] = amount.Clone()
	return nil
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if inner, ok := t.allowances[owner]; ok {
		if a, ok := inner[spender]; ok {
			return a.Clone()
		}
	}
	return uint256.NewInt(0)
}

// TransferFrom spends the caller's allowance on the owner's balance.
func (t *Token) TransferFrom(caller, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	inner := t.allowances[from]
	allowance, ok := inner[caller]
	if !ok || allowance.Lt(amount) {
		return fmt.Errorf("%w: allowance of %s for %s", core.ErrInsufficientFunds, from.Hex(), caller.Hex())
	}
	if err := t.transferLocked(from, to, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return nil
}

// Burn destroys amount from the holder's balance and shrinks totalSupply.
func (t *Token) Burn(holder common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return core.ErrZeroAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	bal, ok := t.balances[holder]
	if !ok || bal.Lt(amount) {
		return fmt.Errorf("%w: burn %s from %s", core.ErrInsufficientFunds, amount, holder.Hex())
	}
	bal.Sub(bal, amount)
	t.totalSupply.Sub(t.totalSupply, amount)
	t.logger.Debug("tokens burned",
		zap.String("holder", holder.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

// EnableTrading flips the one-way latch. Pool-only; a second call errors to
// surface integration bugs rather than no-oping.
func (t *Token) EnableTrading(caller common.Address) error {
	if caller != t.pool {
		return core.ErrNotPool
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tradingEnabled {
		return core.ErrTradingEnabled
	}
	t.tradingEnabled = true
	t.logger.Info("trading enabled")
	return nil
}

// SetExempt edits the gate exemption set. Pool-only.
func (t *Token) SetExempt(caller, account common.Address, flag bool) error {
	if caller != t.pool {
		return core.ErrNotPool
	}
	if account == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if flag {
		t.exempt[account] = true
	} else {
		delete(t.exempt, account)
	}
	return nil
}

func (t *Token) transferLocked(from, to common.Address, amount *uint256.Int) error {
	if to == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return core.ErrZeroAmount
	}
	if err := t.beforeTransfer(from, to); err != nil {
		return err
	}
	bal, ok := t.balances[from]
	if !ok || bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s",
			core.ErrInsufficientFunds, from.Hex(), t.balanceLocked(from), amount)
	}
	bal.Sub(bal, amount)
	if dst, ok := t.balances[to]; ok {
		dst.Add(dst, amount)
	} else {
		t.balances[to] = amount.Clone()
	}
	return nil
}

// beforeTransfer is the trading gate. Pool legs and mints always pass; other
// transfers need the latch or an exemption on either side.
func (t *Token) beforeTransfer(from, to common.Address) error {
	if from == t.pool || to == t.pool || from == core.ZeroAddress {
		return nil
	}
	if t.tradingEnabled || t.exempt[from] || t.exempt[to] {
		return nil
	}
	return core.ErrTradingDisabled
}

func (t *Token) balanceLocked(account common.Address) *uint256.Int {
	if bal, ok := t.balances[account]; ok {
		return bal
	}
	return uint256.NewInt(0)
}

// =============================
// File: internal/core/bank.go
// =============================
package core

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Receiver is the receive() surface of a service account: it observes plain
// value transfers addressed to the account. A non-nil error from the hook
// fails (and rolls back) the transfer that triggered it.
//
// Hooks run with no bank lock held, so a hook may itself move value. Hooks
// must only do ledger credits and forwards, never re-enter a trading entry
// point; all registered receivers (factory, wrapper, router) follow that rule.
type Receiver interface {
	OnReceive(from common.Address, amount *uint256.Int) error
}

// Bank is the in-process reserve-currency ledger. Every account balance the
// engine touches lives here; components never hold raw numbers of their own.
type Bank struct {
	mu        sync.Mutex
	balances  map[common.Address]*uint256.Int
	receivers map[common.Address]Receiver
	logger    *zap.Logger
}

func NewBank(logger *zap.Logger) *Bank {
	return &Bank{
		balances:  make(map[common.Address]*uint256.Int),
		receivers: make(map[common.Address]Receiver),
		logger:    logger,
	}
}

// RegisterReceiver attaches a receive hook to a service account.
func (b *Bank) RegisterReceiver(addr common.Address, r Receiver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receivers[addr] = r
}

// Mint credits reserve currency arriving from outside the engine (the host
// boundary deposit, not an on-curve operation).
func (b *Bank) Mint(to common.Address, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(to, amount)
}

// BalanceOf returns a copy of the current balance.
func (b *Bank) BalanceOf(addr common.Address) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[addr]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

// Pay moves value attached to a function call. The callee's entry point
// accounts for the value itself, so no receive hook runs.
func (b *Bank) Pay(from, to common.Address, amount *uint256.Int) error {
	return b.move(from, to, amount)
}

// Send is a plain value transfer. If the destination has a registered receive
// hook the hook runs after the balances move; a hook error rolls the transfer
// back and surfaces as an external-call failure.
func (b *Bank) Send(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := b.move(from, to, amount); err != nil {
		return err
	}
	b.mu.Lock()
	hook := b.receivers[to]
	b.mu.Unlock()
	if hook == nil {
		return nil
	}
	if err := hook.OnReceive(from, amount.Clone()); err != nil {
		// Undo the transfer; the sender observes one atomic failure.
		if uerr := b.move(to, from, amount); uerr != nil {
			b.logger.Error("receive hook rollback failed",
				zap.String("from", from.Hex()),
				zap.String("to", to.Hex()),
				zap.Error(uerr))
			return fmt.Errorf("%w: rollback after hook failure: %v", ErrInvariant, uerr)
		}
		return Externalf("receive hook for %s rejected transfer: %v", to.Hex(), err)
	}
	return nil
}

func (b *Bank) move(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.balances[from]
	if !ok || bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s",
			ErrInsufficientFunds, from.Hex(), b.balanceLocked(from), amount)
	}
	bal.Sub(bal, amount)
	b.credit(to, amount)
	return nil
}

func (b *Bank) credit(to common.Address, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	if bal, ok := b.balances[to]; ok {
		bal.Add(bal, amount)
		return
	}
	b.balances[to] = amount.Clone()
}

func (b *Bank) balanceLocked(addr common.Address) *uint256.Int {
	if bal, ok := b.balances[addr]; ok {
		return bal
	}
	return uint256.NewInt(0)
}

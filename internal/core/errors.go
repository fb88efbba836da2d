// =============================
// File: internal/core/errors.go
// =============================
package core

import (
	"errors"
	"fmt"
)

// Class partitions every rejection the engine can produce. Callers use it to
// decide whether to retry, adjust parameters, or give up.
type Class uint8

const (
	// ClassValidation covers bad caller input: zero address, empty name,
	// fee below requirement, expired deadline, zero amount.
	ClassValidation Class = iota
	// ClassSlippage means the computed output fell below the caller's
	// stated minimum. Retry with adjusted bounds.
	ClassSlippage
	// ClassState covers operations against the wrong lifecycle phase:
	// graduated pool, paused trading, unregistered token, double init.
	ClassState
	// ClassExternal marks a failure that originated in a collaborator call
	// (AMM swap, add-liquidity, value transfer hook).
	ClassExternal
	// ClassInvariant marks an arithmetic or accounting violation that must
	// never occur with valid inputs. Unrecoverable.
	ClassInvariant
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassSlippage:
		return "slippage"
	case ClassState:
		return "state"
	case ClassExternal:
		return "external"
	case ClassInvariant:
		return "invariant"
	}
	return "unknown"
}

// CodedError is a sentinel error carrying its failure class.
type CodedError struct {
	Code Class
	Msg  string
}

func (e *CodedError) Error() string { return e.Msg }

// Engine-wide sentinels. Components wrap these with fmt.Errorf("...: %w", ...)
// so errors.Is classification survives the wrapping.
var (
	ErrZeroAddress      = &CodedError{ClassValidation, "zero address"}
	ErrZeroAmount       = &CodedError{ClassValidation, "amount must be positive"}
	ErrEmptyMetadata    = &CodedError{ClassValidation, "token name and symbol are required"}
	ErrFeeTooLow        = &CodedError{ClassValidation, "value below required creation fee"}
	ErrDeadlineExpired  = &CodedError{ClassValidation, "deadline has passed"}
	ErrValueTooLarge    = &CodedError{ClassValidation, "value exceeds per-transaction cap"}
	ErrBadCurveParams   = &CodedError{ClassValidation, "curve parameters out of bounds"}
	ErrThresholdBounds  = &CodedError{ClassValidation, "buyback threshold outside allowed range"}
	ErrBadLaunchMode    = &CodedError{ClassValidation, "unknown launch mode"}

	ErrSlippage = &CodedError{ClassSlippage, "output below caller minimum"}

	ErrTradingDisabled     = &CodedError{ClassState, "trading is not enabled for this token"}
	ErrTradingEnabled      = &CodedError{ClassState, "trading already enabled"}
	ErrPoolGraduated       = &CodedError{ClassState, "pool has graduated"}
	ErrPoolPaused          = &CodedError{ClassState, "pool trading is paused"}
	ErrNotInitialized      = &CodedError{ClassState, "pool is not initialized"}
	ErrDoubleInit          = &CodedError{ClassState, "pool already initialized"}
	ErrNotRegistered       = &CodedError{ClassState, "not registered"}
	ErrAlreadyRegistered   = &CodedError{ClassState, "already registered"}
	ErrSupplyExceeded      = &CodedError{ClassState, "purchase exceeds curve supply"}
	ErrSameBlock           = &CodedError{ClassState, "second interaction in the same block"}
	ErrNotOwner            = &CodedError{ClassState, "caller is not the owner"}
	ErrNotPool             = &CodedError{ClassState, "caller is not the owning pool"}
	ErrNotPaused           = &CodedError{ClassState, "recovery requires paused state"}
	ErrRouterPaused        = &CodedError{ClassState, "router is paused"}
	ErrBelowThreshold      = &CodedError{ClassState, "pending balance below buyback threshold"}
	ErrBusy                = &CodedError{ClassState, "operation already in flight"}
	ErrInsufficientFunds   = &CodedError{ClassState, "insufficient balance"}
	ErrInsufficientReserve = &CodedError{ClassState, "pool reserve cannot cover payout"}

	ErrExternalCall = &CodedError{ClassExternal, "collaborator call failed"}

	ErrInvariant = &CodedError{ClassInvariant, "math invariant violated"}
)

// ClassOf reports the failure class of err, walking the wrap chain.
// Unclassified errors are treated as external failures.
func ClassOf(err error) Class {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ClassExternal
}

func IsValidation(err error) bool { return err != nil && ClassOf(err) == ClassValidation }
func IsSlippage(err error) bool   { return err != nil && ClassOf(err) == ClassSlippage }
func IsState(err error) bool      { return err != nil && ClassOf(err) == ClassState }
func IsExternal(err error) bool   { return err != nil && ClassOf(err) == ClassExternal }
func IsInvariant(err error) bool  { return err != nil && ClassOf(err) == ClassInvariant }

// Externalf wraps a collaborator failure so it classifies as ClassExternal
// while preserving the underlying error for inspection.
func Externalf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrExternalCall, fmt.Sprintf(format, args...))
}

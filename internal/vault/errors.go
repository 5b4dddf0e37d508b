package vault

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/custody-infra/internal/asset"
)

// Every error below aborts the enclosing operation with zero observable side
// effects. There is no local recovery or retry inside the core; a retry is
// the caller's responsibility as a brand-new operation.
var (
	// ErrZeroAmount is returned for non-positive amounts.
	ErrZeroAmount = errors.New("amount must be positive")

	// ErrCapacityExceeded is returned when admitting value would push total
	// custodial value over the capacity limit.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrLimitExceeded is returned when a single withdrawal's canonical value
	// exceeds the per-operation ceiling.
	ErrLimitExceeded = errors.New("withdrawal limit exceeded")

	// ErrInsufficientBalance is returned when a debit exceeds the principal's
	// recorded balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTransferFailed is returned when an external asset transfer fails.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrSwapFailed is returned when the swap router aborts or errors. The
	// whole deposit rolls back, including the transfer-in.
	ErrSwapFailed = errors.New("swap failed")

	// ErrSlippageExceeded is returned when the measured swap output is below
	// the caller's minimum.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrReentrantCall is returned when an external call re-enters an
	// operation that is still in flight.
	ErrReentrantCall = errors.New("reentrant call")
)

// InsufficientBalanceError carries the shortfall details and matches
// ErrInsufficientBalance under errors.Is.
type InsufficientBalanceError struct {
	Principal string
	Asset     asset.ID
	Have      decimal.Decimal
	Need      decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s in %s: have %s, need %s",
		e.Principal, e.Asset, e.Have, e.Need)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

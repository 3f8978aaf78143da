package ledger

import (
	"errors"
	"fmt"
)

// ErrAlreadyConfigured is returned by Initialize when a split configuration
// already exists; the configuration lifecycle is one-way.
var ErrAlreadyConfigured = errors.New("ledger: split configuration already exists")

// InvalidFeePercentageError rejects a fee percentage above 100 at setup time,
// before any state is written.
type InvalidFeePercentageError struct {
	Fees uint8
}

func (e *InvalidFeePercentageError) Error() string {
	return fmt.Sprintf("invalid fee percentage: %d exceeds 100", e.Fees)
}

// InsufficientBalanceError rejects a withdrawal above the caller's recorded
// balance. It carries both sides for diagnostics.
type InsufficientBalanceError struct {
	Balance   uint64
	Requested uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, requested %d", e.Balance, e.Requested)
}

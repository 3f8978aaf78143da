// Package store persists the split ledger: a balance table keyed by
// (account, denomination) and the singleton split configuration. Backends are
// interchangeable (postgres, sqlite, memory) and expose the same transactional
// view so that every engine operation commits all of its mutations or none.
package store

import (
	"context"
	"errors"
)

// Config is the singleton split configuration written once at setup.
type Config struct {
	Owner      string `json:"owner"`
	FeePercent uint8  `json:"fee_percent"`
}

var (
	// ErrNotInitialized is returned when the split configuration has not been
	// written yet.
	ErrNotInitialized = errors.New("store: split configuration not initialized")

	// ErrInsufficientBalance is returned by Debit when the debit exceeds the
	// recorded balance. Callers pre-check sufficiency; the store is the last
	// line of defense.
	ErrInsufficientBalance = errors.New("store: debit exceeds balance")

	// ErrAmountOverflow is returned by Credit when the resulting balance would
	// wrap or exceed what the backend can represent.
	ErrAmountOverflow = errors.New("store: balance overflows amount type")

	// ErrReadOnlyTx is returned when a write is attempted inside View.
	ErrReadOnlyTx = errors.New("store: write attempted in read-only transaction")
)

// Tx is a single store transaction. Balances absent from the table read as
// zero; entries are created lazily on first credit and never deleted.
type Tx interface {
	// Config loads the split configuration, or ErrNotInitialized.
	Config() (Config, error)

	// PutConfig overwrites the split configuration unconditionally.
	PutConfig(cfg Config) error

	// Balance returns the recorded balance, 0 if the entry is absent.
	Balance(account, denom string) (uint64, error)

	// Credit sets balance = old + amount, failing with ErrAmountOverflow
	// rather than wrapping.
	Credit(account, denom string, amount uint64) error

	// Debit sets balance = old - amount, failing with ErrInsufficientBalance
	// when amount exceeds the recorded balance.
	Debit(account, denom string, amount uint64) error
}

// Store serializes every call through one transaction.
type Store interface {
	// View runs fn in a read-only transaction. Writes fail with ErrReadOnlyTx.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Update runs fn in a writable transaction. If fn returns an error the
	// transaction is rolled back and none of its writes are observable.
	Update(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

package store

import (
	"context"
	"sync"
)

type balanceKey struct {
	account string
	denom   string
}

// Memory is an in-memory Store. It is the reference implementation of the
// transactional semantics and the substrate the engine tests run against.
type Memory struct {
	mu       sync.RWMutex
	config   *Config
	balances map[balanceKey]uint64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[balanceKey]uint64),
	}
}

// View implements Store.
func (m *Memory) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return fn(&memTx{store: m})
}

// Update implements Store. Writes are staged in an overlay and applied only
// when fn returns nil, so a failed operation leaves no trace.
func (m *Memory) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		store:    m,
		writable: true,
		staged:   make(map[balanceKey]uint64),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for k, v := range tx.staged {
		m.balances[k] = v
	}
	if tx.stagedConfig != nil {
		cfg := *tx.stagedConfig
		m.config = &cfg
	}
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

type memTx struct {
	store        *Memory
	writable     bool
	staged       map[balanceKey]uint64
	stagedConfig *Config
}

func (tx *memTx) Config() (Config, error) {
	if tx.stagedConfig != nil {
		return *tx.stagedConfig, nil
	}
	if tx.store.config == nil {
		return Config{}, ErrNotInitialized
	}
	return *tx.store.config, nil
}

func (tx *memTx) PutConfig(cfg Config) error {
	if !tx.writable {
		return ErrReadOnlyTx
	}
	tx.stagedConfig = &cfg
	return nil
}

func (tx *memTx) Balance(account, denom string) (uint64, error) {
	key := balanceKey{account: account, denom: denom}
	if tx.staged != nil {
		if v, ok := tx.staged[key]; ok {
			return v, nil
		}
	}
	return tx.store.balances[key], nil
}

func (tx *memTx) Credit(account, denom string, amount uint64) error {
	if !tx.writable {
		return ErrReadOnlyTx
	}

	old, _ := tx.Balance(account, denom)
	next := old + amount
	if next < old {
		return ErrAmountOverflow
	}

	tx.staged[balanceKey{account: account, denom: denom}] = next
	return nil
}

func (tx *memTx) Debit(account, denom string, amount uint64) error {
	if !tx.writable {
		return ErrReadOnlyTx
	}

	old, _ := tx.Balance(account, denom)
	if amount > old {
		return ErrInsufficientBalance
	}

	tx.staged[balanceKey{account: account, denom: denom}] = old - amount
	return nil
}

var _ Store = (*Memory)(nil)

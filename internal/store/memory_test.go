package store

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryConfigLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.View(ctx, func(tx Tx) error {
		_, err := tx.Config()
		return err
	})
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, m.Update(ctx, func(tx Tx) error {
		return tx.PutConfig(Config{Owner: "creator", FeePercent: 10})
	}))

	err = m.View(ctx, func(tx Tx) error {
		cfg, err := tx.Config()
		if err != nil {
			return err
		}
		assert.Equal(t, "creator", cfg.Owner)
		assert.Equal(t, uint8(10), cfg.FeePercent)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryCreditDebit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Update(ctx, func(tx Tx) error {
		if err := tx.Credit("account1", "usei", 45); err != nil {
			return err
		}
		return tx.Debit("account1", "usei", 20)
	}))

	err := m.View(ctx, func(tx Tx) error {
		b, err := tx.Balance("account1", "usei")
		if err != nil {
			return err
		}
		assert.Equal(t, uint64(25), b)

		// Absent entries read as zero, never error.
		b, err = tx.Balance("account1", "wei")
		if err != nil {
			return err
		}
		assert.Zero(t, b)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryDebitUnderflow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Update(ctx, func(tx Tx) error {
		return tx.Credit("account1", "usei", 10)
	}))

	err := m.Update(ctx, func(tx Tx) error {
		return tx.Debit("account1", "usei", 11)
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Debit of the full balance is fine and leaves a queryable zero entry.
	require.NoError(t, m.Update(ctx, func(tx Tx) error {
		return tx.Debit("account1", "usei", 10)
	}))
	require.NoError(t, m.View(ctx, func(tx Tx) error {
		b, err := tx.Balance("account1", "usei")
		assert.Zero(t, b)
		return err
	}))
}

func TestMemoryCreditOverflow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Update(ctx, func(tx Tx) error {
		return tx.Credit("account1", "usei", math.MaxUint64)
	}))

	err := m.Update(ctx, func(tx Tx) error {
		return tx.Credit("account1", "usei", 1)
	})
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestMemoryUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	err := m.Update(ctx, func(tx Tx) error {
		if err := tx.Credit("account1", "usei", 5); err != nil {
			return err
		}
		if err := tx.PutConfig(Config{Owner: "creator", FeePercent: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, m.View(ctx, func(tx Tx) error {
		b, err := tx.Balance("account1", "usei")
		if err != nil {
			return err
		}
		assert.Zero(t, b)

		_, err = tx.Config()
		assert.ErrorIs(t, err, ErrNotInitialized)
		return nil
	}))
}

func TestMemoryStagedReadsSeeOwnWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Update(ctx, func(tx Tx) error {
		if err := tx.Credit("account1", "usei", 7); err != nil {
			return err
		}
		b, err := tx.Balance("account1", "usei")
		if err != nil {
			return err
		}
		assert.Equal(t, uint64(7), b)
		return tx.Credit("account1", "usei", 3)
	}))

	require.NoError(t, m.View(ctx, func(tx Tx) error {
		b, err := tx.Balance("account1", "usei")
		assert.Equal(t, uint64(10), b)
		return err
	}))
}

func TestMemoryViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.View(ctx, func(tx Tx) error {
		return tx.Credit("account1", "usei", 1)
	})
	assert.ErrorIs(t, err, ErrReadOnlyTx)

	err = m.View(ctx, func(tx Tx) error {
		return tx.PutConfig(Config{Owner: "creator"})
	})
	assert.ErrorIs(t, err, ErrReadOnlyTx)
}

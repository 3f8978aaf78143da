// Package ledger implements the fee-splitting accounting engine: deposits are
// split between a configured owner fee and two recipients, and any account can
// withdraw its accumulated credit per denomination. All arithmetic is integer
// base units with truncating division; no value is created or lost by a split.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/google/uuid"

	"github.com/davidterpay/transfer-contract/internal/store"
)

// Coin is one (denomination, amount) pair of a deposit.
type Coin struct {
	Denom  string `json:"denom"`
	Amount uint64 `json:"amount"`
}

// DepositRequest is one inbound deposit to split. Sender is recorded for audit
// purposes only; the recipients may repeat or equal the sender, balances simply
// accumulate under whichever identifiers are given.
type DepositRequest struct {
	Sender     string `json:"sender"`
	Recipient1 string `json:"recipient1"`
	Recipient2 string `json:"recipient2"`
	Funds      []Coin `json:"funds"`
}

// TransferInstruction is the outbound effect of a withdrawal: a request to the
// external funds-movement collaborator to pay To. It is emitted, not executed,
// by the engine.
type TransferInstruction struct {
	ID          string    `json:"id"`
	To          string    `json:"to"`
	Denom       string    `json:"denom"`
	Amount      uint64    `json:"amount"`
	RequestedAt time.Time `json:"requested_at"`
}

// Service is the accounting engine. It holds no state between calls; every
// operation reads and writes the store inside a single transaction.
type Service struct {
	store store.Store
}

// NewService creates an engine over st.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Initialize writes the split configuration with the caller as owner. The
// configuration lifecycle is one-way: a second call fails with
// ErrAlreadyConfigured rather than silently overwriting.
func (s *Service) Initialize(ctx context.Context, owner string, feePercent uint8) error {
	// feePercent is the share of each deposit routed to the owner, so values
	// above 100 would mint money out of thin air.
	if feePercent > 100 {
		return &InvalidFeePercentageError{Fees: feePercent}
	}

	return s.store.Update(ctx, func(tx store.Tx) error {
		_, err := tx.Config()
		switch {
		case err == nil:
			return ErrAlreadyConfigured
		case !errors.Is(err, store.ErrNotInitialized):
			return err
		}

		return tx.PutConfig(store.Config{Owner: owner, FeePercent: feePercent})
	})
}

// SplitDeposit splits each coin of the deposit between the owner fee and the
// two recipients. Per coin: fee = floor(amount*fee%/100), recipient1 gets
// floor((amount-fee)/2), recipient2 the rest, so the shares always sum to the
// deposited amount and recipient2 absorbs the odd unit. An empty deposit set
// succeeds without touching the store.
func (s *Service) SplitDeposit(ctx context.Context, req DepositRequest) error {
	return s.store.Update(ctx, func(tx store.Tx) error {
		cfg, err := tx.Config()
		if err != nil {
			return err
		}

		for _, coin := range req.Funds {
			fee, share1, share2 := splitShares(coin.Amount, cfg.FeePercent)

			if err := tx.Credit(cfg.Owner, coin.Denom, fee); err != nil {
				return fmt.Errorf("failed to credit owner: %w", err)
			}
			if err := tx.Credit(req.Recipient1, coin.Denom, share1); err != nil {
				return fmt.Errorf("failed to credit %s: %w", req.Recipient1, err)
			}
			if err := tx.Credit(req.Recipient2, coin.Denom, share2); err != nil {
				return fmt.Errorf("failed to credit %s: %w", req.Recipient2, err)
			}
		}
		return nil
	})
}

// Withdraw debits amount of denom from the caller's balance and emits a
// transfer instruction for it. amount above the recorded balance fails with
// InsufficientBalanceError and writes nothing; amount zero is accepted and
// yields a zero-value instruction.
func (s *Service) Withdraw(ctx context.Context, caller string, amount uint64, denom string) (*TransferInstruction, error) {
	err := s.store.Update(ctx, func(tx store.Tx) error {
		balance, err := tx.Balance(caller, denom)
		if err != nil {
			return err
		}
		if amount > balance {
			return &InsufficientBalanceError{Balance: balance, Requested: amount}
		}
		return tx.Debit(caller, denom, amount)
	})
	if err != nil {
		return nil, err
	}

	return &TransferInstruction{
		ID:          uuid.NewString(),
		To:          caller,
		Denom:       denom,
		Amount:      amount,
		RequestedAt: time.Now().UTC(),
	}, nil
}

// WithdrawAll withdraws the caller's full balance of denom, zero included.
func (s *Service) WithdrawAll(ctx context.Context, caller, denom string) (*TransferInstruction, error) {
	balance, err := s.Balance(ctx, caller, denom)
	if err != nil {
		return nil, err
	}
	return s.Withdraw(ctx, caller, balance, denom)
}

// Owner returns the configured fee recipient.
func (s *Service) Owner(ctx context.Context) (string, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Owner, nil
}

// FeePercent returns the configured fee percentage.
func (s *Service) FeePercent(ctx context.Context) (uint8, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.FeePercent, nil
}

// Balance returns the recorded balance for (account, denom), 0 if absent.
func (s *Service) Balance(ctx context.Context, account, denom string) (uint64, error) {
	var balance uint64
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		balance, err = tx.Balance(account, denom)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) config(ctx context.Context) (store.Config, error) {
	var cfg store.Config
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		cfg, err = tx.Config()
		return err
	})
	if err != nil {
		return store.Config{}, err
	}
	return cfg, nil
}

// splitShares computes the three shares of one deposited coin. The invariant
// fee + share1 + share2 == amount holds for every amount and fee percentage;
// truncation loss from the fee stays with the recipients, and share2 absorbs
// the odd unit of the remainder.
func splitShares(amount uint64, feePercent uint8) (fee, share1, share2 uint64) {
	fee = mulDiv100(amount, feePercent)
	remainder := amount - fee
	share1 = remainder / 2
	share2 = remainder - share1
	return fee, share1, share2
}

// mulDiv100 returns floor(amount * percent / 100) using a 128-bit intermediate
// so the multiply cannot wrap. percent must be at most 100, which keeps the
// quotient within uint64 and the division from panicking.
func mulDiv100(amount uint64, percent uint8) uint64 {
	hi, lo := bits.Mul64(amount, uint64(percent))
	quo, _ := bits.Div64(hi, lo, 100)
	return quo
}

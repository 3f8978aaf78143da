package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS split_config (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    owner       TEXT    NOT NULL,
    fee_percent SMALLINT NOT NULL CHECK (fee_percent BETWEEN 0 AND 100)
);

CREATE TABLE IF NOT EXISTS balances (
    account TEXT   NOT NULL,
    denom   TEXT   NOT NULL,
    amount  BIGINT NOT NULL CHECK (amount >= 0),
    PRIMARY KEY (account, denom)
);
`

// Postgres is a Store backed by a pgx connection pool. Transactions run at
// SERIALIZABLE isolation and serialization failures are retried.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps pool and ensures the ledger schema exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// View implements Store.
func (p *Postgres) View(ctx context.Context, fn func(tx Tx) error) error {
	return p.run(ctx, fn, false)
}

// Update implements Store.
func (p *Postgres) Update(ctx context.Context, fn func(tx Tx) error) error {
	return p.run(ctx, fn, true)
}

func (p *Postgres) run(ctx context.Context, fn func(tx Tx) error, writable bool) error {
	const maxRetries = 3

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := p.runOnce(ctx, fn, writable)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "40001" {
				// Serialization failure, retry
				if attempt == maxRetries-1 {
					return fmt.Errorf("transaction failed after %d retries due to serialization failure: %w", maxRetries, err)
				}
				time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
				continue
			}
			return err
		}
		break
	}

	return nil
}

func (p *Postgres) runOnce(ctx context.Context, fn func(tx Tx) error, writable bool) error {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := p.pool.Acquire(queryCtx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	mode := pgx.ReadWrite
	if !writable {
		mode = pgx.ReadOnly
	}

	tx, err := conn.BeginTx(queryCtx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: mode,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(queryCtx)

	if err := fn(&pgTx{ctx: queryCtx, tx: tx, writable: writable}); err != nil {
		return err
	}

	if err := tx.Commit(queryCtx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close implements Store.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

type pgTx struct {
	ctx      context.Context
	tx       pgx.Tx
	writable bool
}

func (t *pgTx) Config() (Config, error) {
	var cfg Config
	err := t.tx.QueryRow(t.ctx,
		`SELECT owner, fee_percent FROM split_config WHERE id = 1`,
	).Scan(&cfg.Owner, &cfg.FeePercent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrNotInitialized
		}
		return Config{}, fmt.Errorf("failed to load split config: %w", err)
	}
	return cfg, nil
}

func (t *pgTx) PutConfig(cfg Config) error {
	if !t.writable {
		return ErrReadOnlyTx
	}

	_, err := t.tx.Exec(t.ctx, `
        INSERT INTO split_config (id, owner, fee_percent) VALUES (1, $1, $2)
        ON CONFLICT (id) DO UPDATE SET owner = EXCLUDED.owner, fee_percent = EXCLUDED.fee_percent
    `, cfg.Owner, int16(cfg.FeePercent))
	if err != nil {
		return fmt.Errorf("failed to save split config: %w", err)
	}
	return nil
}

func (t *pgTx) Balance(account, denom string) (uint64, error) {
	var amount int64
	err := t.tx.QueryRow(t.ctx, `
        SELECT COALESCE(
            (SELECT amount FROM balances WHERE account = $1 AND denom = $2), 0)
    `, account, denom).Scan(&amount)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return uint64(amount), nil
}

func (t *pgTx) Credit(account, denom string, amount uint64) error {
	if !t.writable {
		return ErrReadOnlyTx
	}

	old, err := t.Balance(account, denom)
	if err != nil {
		return err
	}
	next := old + amount
	// BIGINT is signed; MaxInt64 is the backend's ceiling.
	if next < old || next > math.MaxInt64 {
		return ErrAmountOverflow
	}

	_, err = t.tx.Exec(t.ctx, `
        INSERT INTO balances (account, denom, amount) VALUES ($1, $2, $3)
        ON CONFLICT (account, denom) DO UPDATE SET amount = EXCLUDED.amount
    `, account, denom, int64(next))
	if err != nil {
		return fmt.Errorf("failed to write balance: %w", err)
	}
	return nil
}

func (t *pgTx) Debit(account, denom string, amount uint64) error {
	if !t.writable {
		return ErrReadOnlyTx
	}

	old, err := t.Balance(account, denom)
	if err != nil {
		return err
	}
	if amount > old {
		return ErrInsufficientBalance
	}

	_, err = t.tx.Exec(t.ctx, `
        UPDATE balances SET amount = $3 WHERE account = $1 AND denom = $2
    `, account, denom, int64(old-amount))
	if err != nil {
		return fmt.Errorf("failed to write balance: %w", err)
	}
	return nil
}

var _ Store = (*Postgres)(nil)

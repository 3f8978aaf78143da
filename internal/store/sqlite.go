package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS split_config (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    owner       TEXT    NOT NULL,
    fee_percent INTEGER NOT NULL CHECK (fee_percent BETWEEN 0 AND 100)
);

CREATE TABLE IF NOT EXISTS balances (
    account TEXT    NOT NULL,
    denom   TEXT    NOT NULL,
    amount  INTEGER NOT NULL CHECK (amount >= 0),
    PRIMARY KEY (account, denom)
);
`

// SQLite is a Store backed by a single sqlite database file. Suitable for
// single-node deployments and integration tests.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// ledger schema exists.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure ledger schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// View implements Store.
func (s *SQLite) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, fn, false)
}

// Update implements Store.
func (s *SQLite) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, fn, true)
}

func (s *SQLite) run(ctx context.Context, fn func(tx Tx) error, writable bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{ctx: ctx, tx: tx, writable: writable}); err != nil {
		return err
	}

	if !writable {
		// Nothing to persist, the deferred rollback ends the read.
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLite) Close() error { return s.db.Close() }

type sqliteTx struct {
	ctx      context.Context
	tx       *sql.Tx
	writable bool
}

func (t *sqliteTx) Config() (Config, error) {
	var cfg Config
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT owner, fee_percent FROM split_config WHERE id = 1`,
	).Scan(&cfg.Owner, &cfg.FeePercent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Config{}, ErrNotInitialized
		}
		return Config{}, fmt.Errorf("failed to load split config: %w", err)
	}
	return cfg, nil
}

func (t *sqliteTx) PutConfig(cfg Config) error {
	if !t.writable {
		return ErrReadOnlyTx
	}

	_, err := t.tx.ExecContext(t.ctx, `
        INSERT INTO split_config (id, owner, fee_percent) VALUES (1, ?, ?)
        ON CONFLICT (id) DO UPDATE SET owner = excluded.owner, fee_percent = excluded.fee_percent
    `, cfg.Owner, cfg.FeePercent)
	if err != nil {
		return fmt.Errorf("failed to save split config: %w", err)
	}
	return nil
}

func (t *sqliteTx) Balance(account, denom string) (uint64, error) {
	var amount int64
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT amount FROM balances WHERE account = ? AND denom = ?`,
		account, denom,
	).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return uint64(amount), nil
}

func (t *sqliteTx) Credit(account, denom string, amount uint64) error {
	if !t.writable {
		return ErrReadOnlyTx
	}

	old, err := t.Balance(account, denom)
	if err != nil {
		return err
	}
	next := old + amount
	// The column is a signed 64-bit INTEGER, so anything past MaxInt64 is
	// unrepresentable even before uint64 wraparound.
	if next < old || next > math.MaxInt64 {
		return ErrAmountOverflow
	}

	return t.put(account, denom, next)
}

func (t *sqliteTx) Debit(account, denom string, amount uint64) error {
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

	return t.put(account, denom, old-amount)
}

func (t *sqliteTx) put(account, denom string, amount uint64) error {
	_, err := t.tx.ExecContext(t.ctx, `
        INSERT INTO balances (account, denom, amount) VALUES (?, ?, ?)
        ON CONFLICT (account, denom) DO UPDATE SET amount = excluded.amount
    `, account, denom, int64(amount))
	if err != nil {
		return fmt.Errorf("failed to write balance: %w", err)
	}
	return nil
}

var _ Store = (*SQLite)(nil)

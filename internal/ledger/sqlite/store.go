// Package sqlite provides the SQLite-backed reference ledger. Balance
// movement and idempotency-key recording happen in one transaction, so a
// repeated call with an applied key is always a no-op success.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/laurable26/todogame-duels/internal/ledger"
	"github.com/laurable26/todogame-duels/internal/ledger/sqlite/migrations"
	"github.com/laurable26/todogame-duels/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

const (
	entryKindCredit = "credit"
	entryKindDebit  = "debit"
)

// Store provides SQLite-backed balances with idempotent movements.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens a ledger SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, clock: time.Now}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// OpenAccount provisions an account with an opening balance. It is used by
// the surrounding application when a player first earns currency.
func (s *Store) OpenAccount(ctx context.Context, accountID string, openingBalance int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	if openingBalance < 0 {
		return fmt.Errorf("opening balance must not be negative")
	}

	now := s.now()
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO accounts (account_id, balance, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(account_id) DO NOTHING
`, accountID, openingBalance, now, now)
	if err != nil {
		return fmt.Errorf("open account: %w", err)
	}
	return nil
}

// Balance returns the account's current spendable balance.
func (s *Store) Balance(ctx context.Context, accountID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return 0, fmt.Errorf("account id is required")
	}

	var balance int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE account_id = ?`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ledger.ErrAccountNotFound
		}
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// Credit adds amount to the account, at most once per idempotency key.
func (s *Store) Credit(ctx context.Context, accountID string, amount int64, idempotencyKey string) error {
	return s.apply(ctx, accountID, amount, idempotencyKey, entryKindCredit)
}

// Debit removes amount from the account, at most once per idempotency key.
func (s *Store) Debit(ctx context.Context, accountID string, amount int64, idempotencyKey string) error {
	return s.apply(ctx, accountID, amount, idempotencyKey, entryKindDebit)
}

func (s *Store) apply(ctx context.Context, accountID string, amount int64, idempotencyKey string, kind string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	if idempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback ledger write: %v", cause, rollbackErr)
		}
		return cause
	}

	var applied int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM ledger_entries WHERE idempotency_key = ?`, idempotencyKey).Scan(&applied)
	if err == nil {
		// Key already applied: repeat calls succeed without moving funds.
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("rollback ledger read: %w", rollbackErr)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return rollbackWith(fmt.Errorf("check idempotency key: %w", err))
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE account_id = ?`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rollbackWith(ledger.ErrAccountNotFound)
		}
		return rollbackWith(fmt.Errorf("read balance: %w", err))
	}

	next := balance + amount
	if kind == entryKindDebit {
		if balance < amount {
			return rollbackWith(ledger.ErrInsufficientFunds)
		}
		next = balance - amount
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx, `
UPDATE accounts SET balance = ?, updated_at = ? WHERE account_id = ?
`, next, now, accountID); err != nil {
		return rollbackWith(fmt.Errorf("update balance: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_entries (idempotency_key, account_id, kind, amount, created_at)
VALUES (?, ?, ?, ?, ?)
`, idempotencyKey, accountID, kind, amount, now); err != nil {
		return rollbackWith(fmt.Errorf("record ledger entry: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger write: %w", err)
	}
	return nil
}

func (s *Store) now() int64 {
	if s.clock == nil {
		return time.Now().UTC().UnixMilli()
	}
	return s.clock().UTC().UnixMilli()
}

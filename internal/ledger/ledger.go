// Package ledger defines the currency balance contract consumed by the
// duel subsystem for wager settlement.
//
// The ledger runs in a process separate from the challenge store, so a
// completed challenge's settlement can be retried after a crash. Both
// Credit and Debit are therefore idempotent under repeated calls with the
// same key: the first call applies the movement, every later call with the
// same key is a no-op success.
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds indicates the account balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAccountNotFound indicates the account is unknown to the ledger.
	// Affordability checks treat an unknown account as an unknown balance,
	// not as zero.
	ErrAccountNotFound = errors.New("account not found")
)

// Ledger provides atomic read and movement of spendable balances.
type Ledger interface {
	// Balance returns the account's current spendable balance.
	Balance(ctx context.Context, accountID string) (int64, error)

	// Credit adds amount to the account, at most once per idempotency key.
	Credit(ctx context.Context, accountID string, amount int64, idempotencyKey string) error

	// Debit removes amount from the account, at most once per idempotency
	// key. Fails with ErrInsufficientFunds when the balance is too low.
	Debit(ctx context.Context, accountID string, amount int64, idempotencyKey string) error
}

// Package storage defines persistence contracts for challenge records.
//
// The challenge store is the single source of truth for duel state. Both
// participants coordinate exclusively through it: every lifecycle decision
// re-reads the current record and every write is conditional on the record
// version observed at read time.
package storage

import (
	"context"
	"errors"

	"github.com/laurable26/todogame-duels/internal/duel/domain"
)

var (
	// ErrNotFound indicates a requested challenge record is missing.
	ErrNotFound = errors.New("challenge record not found")
	// ErrAlreadyExists indicates an insert collided with an existing record.
	ErrAlreadyExists = errors.New("challenge record already exists")
	// ErrVersionConflict indicates a conditional update lost a concurrent
	// write race. Callers retry under optimistic concurrency control.
	ErrVersionConflict = errors.New("challenge record version conflict")
)

// ChallengeRecord pairs a challenge with its optimistic-concurrency version.
// The version increases by one on every successful update and never leaves
// the storage boundary except through this type.
type ChallengeRecord struct {
	Challenge domain.Challenge
	Version   uint64
}

// ChallengeStore persists challenge records with conditional updates.
type ChallengeStore interface {
	// InsertChallenge stores a new record at version 1.
	InsertChallenge(ctx context.Context, challenge domain.Challenge) (ChallengeRecord, error)

	// GetChallenge loads one record by id.
	GetChallenge(ctx context.Context, id string) (ChallengeRecord, error)

	// UpdateChallenge replaces the stored challenge only when the stored
	// version equals expectedVersion, returning the new record. A lost race
	// returns ErrVersionConflict and leaves the stored record untouched.
	UpdateChallenge(ctx context.Context, challenge domain.Challenge, expectedVersion uint64) (ChallengeRecord, error)

	// ListIncoming lists pending challenges addressed to the participant.
	ListIncoming(ctx context.Context, opponentID string) ([]ChallengeRecord, error)

	// ListInPlay lists active challenges the participant takes part in,
	// as either challenger or opponent.
	ListInPlay(ctx context.Context, participantID string) ([]ChallengeRecord, error)

	// ListUnseenCompleted lists completed challenges the participant takes
	// part in and has not acknowledged yet.
	ListUnseenCompleted(ctx context.Context, participantID string) ([]ChallengeRecord, error)
}

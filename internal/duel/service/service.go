// Package service orchestrates challenge lifecycle operations. It loads the
// current record, applies a pure domain transition, and writes the result
// back conditionally on the version observed at read time. Lost write races
// are retried transparently; only retry exhaustion surfaces to callers.
package service

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/laurable26/todogame-duels/internal/duel/domain"
	"github.com/laurable26/todogame-duels/internal/duel/storage"
	apperrors "github.com/laurable26/todogame-duels/internal/errors"
	"github.com/laurable26/todogame-duels/internal/ledger"
	"github.com/laurable26/todogame-duels/internal/notify"
	"github.com/laurable26/todogame-duels/internal/platform/id"
	"github.com/laurable26/todogame-duels/internal/platform/timeouts"
	"github.com/laurable26/todogame-duels/internal/telemetry"
)

// conflictMaxTries bounds how often a lost version race is retried before
// the operation fails with a concurrency conflict.
const conflictMaxTries = 5

// Service coordinates challenge transitions against the challenge store,
// the ledger and the notifier.
type Service struct {
	store    storage.ChallengeStore
	ledger   ledger.Ledger
	notifier notify.Notifier
	emitter  *telemetry.Emitter
	tracer   trace.Tracer

	clock       func() time.Time
	idGenerator func() (string, error)
	newBackOff  func() backoff.BackOff
}

// NewService creates a challenge service. The notifier and emitter may be
// nil; their side effects are then skipped.
func NewService(store storage.ChallengeStore, ldg ledger.Ledger, notifier notify.Notifier, emitter *telemetry.Emitter) *Service {
	return &Service{
		store:       store,
		ledger:      ldg,
		notifier:    notifier,
		emitter:     emitter,
		tracer:      otel.Tracer("duel/service"),
		clock:       time.Now,
		idGenerator: id.NewID,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Create validates input, performs an advisory affordability check, and
// stores a pending challenge.
//
// The check is advisory because no funds move at creation: a balance the
// ledger knows and reports below the bet rejects the challenge early, while
// an unknown account proceeds optimistically. Affordability is enforced
// authoritatively at acceptance.
func (s *Service) Create(ctx context.Context, input domain.CreateChallengeInput) (storage.ChallengeRecord, error) {
	ctx, span := s.tracer.Start(ctx, "duel.Create")
	defer span.End()

	challenge, err := domain.CreateChallenge(input, s.clock, s.idGenerator)
	if err != nil {
		return storage.ChallengeRecord{}, err
	}

	if err := s.checkAffordability(ctx, challenge.ChallengerID, challenge.BetAmount); err != nil {
		return storage.ChallengeRecord{}, err
	}
	if err := s.checkAffordability(ctx, challenge.OpponentID, challenge.BetAmount); err != nil {
		return storage.ChallengeRecord{}, err
	}

	writeCtx, cancel := context.WithTimeout(ctx, timeouts.StoreWrite)
	defer cancel()
	record, err := s.store.InsertChallenge(writeCtx, challenge)
	if err != nil {
		return storage.ChallengeRecord{}, apperrors.Wrap(apperrors.CodeUnknown, "store challenge", err)
	}

	s.notify(ctx, record.Challenge.OpponentID, notify.KindChallengeCreated, record.Challenge)
	return record, nil
}

// Accept transitions a pending challenge to active on behalf of the
// opponent. The opponent's balance is re-checked against the ledger at this
// instant; affordability can change between creation and acceptance.
func (s *Service) Accept(ctx context.Context, challengeID, callerID string) (storage.ChallengeRecord, error) {
	ctx, span := s.tracer.Start(ctx, "duel.Accept")
	defer span.End()

	return s.transition(ctx, challengeID, func(c domain.Challenge, now time.Time) (domain.Challenge, error) {
		next, err := c.Accept(callerID, now)
		if err != nil {
			return domain.Challenge{}, err
		}
		if err := s.requireFunds(ctx, next.OpponentID, next.BetAmount); err != nil {
			return domain.Challenge{}, err
		}
		return next, nil
	})
}

// Decline transitions a pending challenge to declined on behalf of the
// opponent. No funds ever move.
func (s *Service) Decline(ctx context.Context, challengeID, callerID string) (storage.ChallengeRecord, error) {
	ctx, span := s.tracer.Start(ctx, "duel.Decline")
	defer span.End()

	return s.transition(ctx, challengeID, func(c domain.Challenge, now time.Time) (domain.Challenge, error) {
		return c.Decline(callerID, now)
	})
}

// SubmitMove records the caller's choice on an active challenge. The first
// move of a pair notifies the other participant that it is their turn; the
// second move resolves the challenge in the same conditional write.
func (s *Service) SubmitMove(ctx context.Context, challengeID, callerID string, choice domain.Choice) (storage.ChallengeRecord, error) {
	ctx, span := s.tracer.Start(ctx, "duel.SubmitMove")
	defer span.End()

	record, err := s.transition(ctx, challengeID, func(c domain.Challenge, now time.Time) (domain.Challenge, error) {
		return c.ApplyMove(callerID, choice, now)
	})
	if err != nil {
		return storage.ChallengeRecord{}, err
	}

	switch record.Challenge.Status {
	case domain.StatusCompleted:
		s.notify(ctx, record.Challenge.ChallengerID, notify.KindChallengeSettled, record.Challenge)
		s.notify(ctx, record.Challenge.OpponentID, notify.KindChallengeSettled, record.Challenge)
		s.emit(ctx, telemetry.Event{
			Kind:          "challenge_completed",
			ChallengeID:   record.Challenge.ID,
			ParticipantID: callerID,
			Detail:        "winner " + record.Challenge.WinnerID,
		})
	case domain.StatusActive:
		s.notify(ctx, record.Challenge.Other(callerID), notify.KindYourTurn, record.Challenge)
	}
	return record, nil
}

// Acknowledge marks a completed challenge as seen by the caller. The seen
// flag only gates result re-surfacing in clients; it never affects
// settlement.
func (s *Service) Acknowledge(ctx context.Context, challengeID, callerID string) (storage.ChallengeRecord, error) {
	ctx, span := s.tracer.Start(ctx, "duel.Acknowledge")
	defer span.End()

	return s.transition(ctx, challengeID, func(c domain.Challenge, now time.Time) (domain.Challenge, error) {
		return c.MarkSeen(callerID, now)
	})
}

// Get loads one challenge record by id.
func (s *Service) Get(ctx context.Context, challengeID string) (storage.ChallengeRecord, error) {
	record, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.ChallengeRecord{}, apperrors.WithMetadata(apperrors.CodeNotFound, "challenge not found", map[string]string{
				"challenge_id": challengeID,
			})
		}
		return storage.ChallengeRecord{}, apperrors.Wrap(apperrors.CodeUnknown, "load challenge", err)
	}
	return record, nil
}

// transition runs one read-transform-write cycle under optimistic
// concurrency control. The apply step is re-run from freshly read state
// after every lost race, so financially consequential decisions always see
// the record as it was immediately before the conditional write.
func (s *Service) transition(ctx context.Context, challengeID string, apply func(domain.Challenge, time.Time) (domain.Challenge, error)) (storage.ChallengeRecord, error) {
	operation := func() (storage.ChallengeRecord, error) {
		current, err := s.store.GetChallenge(ctx, challengeID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return storage.ChallengeRecord{}, backoff.Permanent(apperrors.WithMetadata(apperrors.CodeNotFound, "challenge not found", map[string]string{
					"challenge_id": challengeID,
				}))
			}
			return storage.ChallengeRecord{}, backoff.Permanent(apperrors.Wrap(apperrors.CodeUnknown, "load challenge", err))
		}

		next, err := apply(current.Challenge, s.clock())
		if err != nil {
			return storage.ChallengeRecord{}, backoff.Permanent(err)
		}

		writeCtx, cancel := context.WithTimeout(ctx, timeouts.StoreWrite)
		defer cancel()
		record, err := s.store.UpdateChallenge(writeCtx, next, current.Version)
		if err != nil {
			if errors.Is(err, storage.ErrVersionConflict) {
				return storage.ChallengeRecord{}, err
			}
			return storage.ChallengeRecord{}, backoff.Permanent(apperrors.Wrap(apperrors.CodeUnknown, "store challenge", err))
		}
		return record, nil
	}

	record, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(conflictMaxTries),
	)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return storage.ChallengeRecord{}, apperrors.WithMetadata(apperrors.CodeConcurrencyConflict, "challenge update lost too many write races", map[string]string{
				"challenge_id": challengeID,
			})
		}
		return storage.ChallengeRecord{}, err
	}
	return record, nil
}

// checkAffordability is the advisory creation-time balance check. Only a
// balance the ledger knows and reports below the bet blocks creation.
func (s *Service) checkAffordability(ctx context.Context, accountID string, betAmount int64) error {
	if s.ledger == nil {
		return nil
	}

	readCtx, cancel := context.WithTimeout(ctx, timeouts.LedgerCall)
	defer cancel()
	balance, err := s.ledger.Balance(readCtx, accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			// Unknown balance: proceed optimistically, acceptance re-checks.
			return nil
		}
		log.Printf("duel service: advisory balance check for %s failed: %v", accountID, err)
		return nil
	}
	if balance < betAmount {
		return insufficientFunds(accountID, betAmount)
	}
	return nil
}

// requireFunds is the authoritative acceptance-time balance check. An
// unknown account cannot cover a wager.
func (s *Service) requireFunds(ctx context.Context, accountID string, betAmount int64) error {
	if s.ledger == nil {
		return nil
	}

	readCtx, cancel := context.WithTimeout(ctx, timeouts.LedgerCall)
	defer cancel()
	balance, err := s.ledger.Balance(readCtx, accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return insufficientFunds(accountID, betAmount)
		}
		return apperrors.Wrap(apperrors.CodeUnknown, "read balance for acceptance", err)
	}
	if balance < betAmount {
		return insufficientFunds(accountID, betAmount)
	}
	return nil
}

func insufficientFunds(accountID string, betAmount int64) error {
	return apperrors.WithMetadata(apperrors.CodeInsufficientFunds, "balance does not cover the bet amount", map[string]string{
		"account_id": accountID,
		"bet_amount": strconv.FormatInt(betAmount, 10),
	})
}

func (s *Service) notify(ctx context.Context, identity string, kind notify.Kind, challenge domain.Challenge) {
	if s.notifier == nil {
		return
	}
	payload := notify.Payload{
		ChallengeID:    challenge.ID,
		ChallengerName: challenge.ChallengerName,
		OpponentName:   challenge.OpponentName,
		BetAmount:      challenge.BetAmount,
		WinnerID:       challenge.WinnerID,
	}
	if err := s.notifier.Notify(ctx, identity, kind, payload); err != nil {
		log.Printf("duel service: notify %s of %s failed: %v", identity, kind, err)
	}
}

func (s *Service) emit(ctx context.Context, event telemetry.Event) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, event); err != nil {
		log.Printf("duel service: telemetry emit %s failed: %v", event.Kind, err)
	}
}

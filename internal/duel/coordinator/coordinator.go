// Package coordinator maintains one participant's live view of their duels.
//
// The coordinator never mutates its lists incrementally. Every change feed
// event is treated as a wake-up signal: the three standing queries run again
// from authoritative store state, and completed challenges are settled
// against the ledger at most once per challenge.
package coordinator

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/laurable26/todogame-duels/internal/duel/domain"
	"github.com/laurable26/todogame-duels/internal/duel/feed"
	"github.com/laurable26/todogame-duels/internal/duel/service"
	"github.com/laurable26/todogame-duels/internal/duel/storage"
	"github.com/laurable26/todogame-duels/internal/ledger"
	"github.com/laurable26/todogame-duels/internal/platform/timeouts"
	"github.com/laurable26/todogame-duels/internal/telemetry"
)

// Snapshot is one participant's categorized view of their challenges.
type Snapshot struct {
	// Incoming lists pending challenges awaiting this participant's answer.
	Incoming []storage.ChallengeRecord
	// InPlay lists active challenges this participant takes part in.
	InPlay []storage.ChallengeRecord
	// UnseenResults lists completed challenges this participant has not
	// acknowledged yet.
	UnseenResults []storage.ChallengeRecord
}

// Coordinator aggregates and dispatches duel operations for one identity.
type Coordinator struct {
	identity    string
	displayName string
	service     *service.Service
	store       storage.ChallengeStore
	feed        feed.Subscriber
	ledger      ledger.Ledger
	emitter     *telemetry.Emitter

	resubscribeDelay time.Duration

	mu       sync.Mutex
	snapshot Snapshot
	settled  map[string]struct{}
	onChange func(Snapshot)
}

// New creates a coordinator for the given identity. The emitter may be nil.
func New(identity, displayName string, svc *service.Service, store storage.ChallengeStore, subscriber feed.Subscriber, ldg ledger.Ledger, emitter *telemetry.Emitter) (*Coordinator, error) {
	identity = strings.TrimSpace(identity)
	displayName = strings.TrimSpace(displayName)
	if identity == "" {
		return nil, errors.New("identity is required")
	}
	if displayName == "" {
		return nil, errors.New("display name is required")
	}
	if svc == nil || store == nil || subscriber == nil || ldg == nil {
		return nil, errors.New("service, store, feed and ledger are required")
	}

	return &Coordinator{
		identity:         identity,
		displayName:      displayName,
		service:          svc,
		store:            store,
		feed:             subscriber,
		ledger:           ldg,
		emitter:          emitter,
		resubscribeDelay: timeouts.FeedResubscribe,
		settled:          make(map[string]struct{}),
	}, nil
}

// SetOnChange registers a callback invoked with a fresh snapshot after
// every refresh. Call before Run.
func (c *Coordinator) SetOnChange(onChange func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = onChange
}

// Run subscribes to the change feed and processes events until ctx is
// cancelled. A dropped subscription is re-established after a delay.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		events, err := c.feed.Subscribe(ctx, c.identity)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("duel coordinator %s: subscribe failed: %v", c.identity, err)
		} else {
			c.Refresh(ctx)
			for event := range events {
				c.handleEvent(ctx, event)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.resubscribeDelay):
		}
	}
}

// Snapshot returns the latest categorized view.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Send creates a new challenge from this identity to the opponent.
func (c *Coordinator) Send(ctx context.Context, opponentID, opponentName string, betAmount int64) (storage.ChallengeRecord, error) {
	record, err := c.service.Create(ctx, domain.CreateChallengeInput{
		ChallengerID:   c.identity,
		OpponentID:     opponentID,
		ChallengerName: c.displayName,
		OpponentName:   opponentName,
		BetAmount:      betAmount,
	})
	if err != nil {
		return storage.ChallengeRecord{}, err
	}
	c.Refresh(ctx)
	return record, nil
}

// Accept accepts an incoming pending challenge.
func (c *Coordinator) Accept(ctx context.Context, challengeID string) (storage.ChallengeRecord, error) {
	record, err := c.service.Accept(ctx, challengeID, c.identity)
	if err != nil {
		return storage.ChallengeRecord{}, err
	}
	c.Refresh(ctx)
	return record, nil
}

// Decline declines an incoming pending challenge.
func (c *Coordinator) Decline(ctx context.Context, challengeID string) (storage.ChallengeRecord, error) {
	record, err := c.service.Decline(ctx, challengeID, c.identity)
	if err != nil {
		return storage.ChallengeRecord{}, err
	}
	c.Refresh(ctx)
	return record, nil
}

// Play submits this identity's choice. When the move resolves the
// challenge, settlement is applied immediately rather than waiting for the
// feed delivery.
func (c *Coordinator) Play(ctx context.Context, challengeID string, choice domain.Choice) (storage.ChallengeRecord, error) {
	record, err := c.service.SubmitMove(ctx, challengeID, c.identity, choice)
	if err != nil {
		return storage.ChallengeRecord{}, err
	}
	if record.Challenge.Status == domain.StatusCompleted {
		c.maybeSettle(ctx, record.Challenge)
	}
	c.Refresh(ctx)
	return record, nil
}

// Acknowledge marks a completed challenge's result as seen.
func (c *Coordinator) Acknowledge(ctx context.Context, challengeID string) (storage.ChallengeRecord, error) {
	record, err := c.service.Acknowledge(ctx, challengeID, c.identity)
	if err != nil {
		return storage.ChallengeRecord{}, err
	}
	c.Refresh(ctx)
	return record, nil
}

// handleEvent re-reads the touched record from the store and acts on its
// current state. Event payloads are never trusted for decisions: the feed
// may reorder relative to causally later writes.
func (c *Coordinator) handleEvent(ctx context.Context, event feed.Event) {
	record, err := c.store.GetChallenge(ctx, event.ChallengeID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("duel coordinator %s: load challenge %s: %v", c.identity, event.ChallengeID, err)
		}
		return
	}
	if record.Challenge.Status == domain.StatusCompleted {
		c.maybeSettle(ctx, record.Challenge)
	}
	c.Refresh(ctx)
}

// Refresh re-runs the three standing queries and publishes a new snapshot.
func (c *Coordinator) Refresh(ctx context.Context) {
	incoming, err := c.store.ListIncoming(ctx, c.identity)
	if err != nil {
		log.Printf("duel coordinator %s: list incoming: %v", c.identity, err)
		return
	}
	inPlay, err := c.store.ListInPlay(ctx, c.identity)
	if err != nil {
		log.Printf("duel coordinator %s: list in play: %v", c.identity, err)
		return
	}
	unseen, err := c.store.ListUnseenCompleted(ctx, c.identity)
	if err != nil {
		log.Printf("duel coordinator %s: list unseen completed: %v", c.identity, err)
		return
	}

	snapshot := Snapshot{Incoming: incoming, InPlay: inPlay, UnseenResults: unseen}

	c.mu.Lock()
	c.snapshot = snapshot
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(snapshot)
	}
}

// maybeSettle applies the wager movement for a completed challenge at most
// once. The local settled set guards against duplicate feed deliveries; the
// ledger's idempotency keys guard against crash-and-retry and against the
// other participant's coordinator applying the same settlement.
//
// A draw settles nothing. A failed ledger call leaves the challenge
// unsettled locally so a later feed delivery retries it; game state is
// never rolled back for a downstream failure.
func (c *Coordinator) maybeSettle(ctx context.Context, challenge domain.Challenge) {
	c.mu.Lock()
	_, done := c.settled[challenge.ID]
	c.mu.Unlock()
	if done {
		return
	}

	if challenge.WinnerID != domain.WinnerDraw {
		loser := challenge.Other(challenge.WinnerID)
		if err := c.debit(ctx, loser, challenge); err != nil {
			log.Printf("duel coordinator %s: debit %s for challenge %s: %v", c.identity, loser, challenge.ID, err)
			c.emitSettlementFailure(ctx, challenge, "debit", err)
			return
		}
		if err := c.credit(ctx, challenge.WinnerID, challenge); err != nil {
			log.Printf("duel coordinator %s: credit %s for challenge %s: %v", c.identity, challenge.WinnerID, challenge.ID, err)
			c.emitSettlementFailure(ctx, challenge, "credit", err)
			return
		}
	}

	c.mu.Lock()
	c.settled[challenge.ID] = struct{}{}
	c.mu.Unlock()

	if c.emitter != nil {
		if err := c.emitter.Emit(ctx, telemetry.Event{
			Kind:          "settlement_applied",
			ChallengeID:   challenge.ID,
			ParticipantID: c.identity,
			Detail:        "winner " + challenge.WinnerID,
		}); err != nil {
			log.Printf("duel coordinator %s: telemetry emit: %v", c.identity, err)
		}
	}
}

func (c *Coordinator) debit(ctx context.Context, accountID string, challenge domain.Challenge) error {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.LedgerCall)
	defer cancel()
	return c.ledger.Debit(callCtx, accountID, challenge.BetAmount, "duel:"+challenge.ID+":debit")
}

func (c *Coordinator) credit(ctx context.Context, accountID string, challenge domain.Challenge) error {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.LedgerCall)
	defer cancel()
	return c.ledger.Credit(callCtx, accountID, challenge.BetAmount, "duel:"+challenge.ID+":credit")
}

func (c *Coordinator) emitSettlementFailure(ctx context.Context, challenge domain.Challenge, step string, cause error) {
	if c.emitter == nil {
		return
	}
	if err := c.emitter.Emit(ctx, telemetry.Event{
		Kind:          "settlement_failed",
		Severity:      telemetry.SeverityWarn,
		ChallengeID:   challenge.ID,
		ParticipantID: c.identity,
		Detail:        step + ": " + cause.Error(),
	}); err != nil {
		log.Printf("duel coordinator %s: telemetry emit: %v", c.identity, err)
	}
}

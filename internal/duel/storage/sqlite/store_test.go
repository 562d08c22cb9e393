package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/laurable26/todogame-duels/internal/duel/domain"
	"github.com/laurable26/todogame-duels/internal/duel/storage"
	"github.com/laurable26/todogame-duels/internal/telemetry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/duels.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testChallenge(id string) domain.Challenge {
	now := time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)
	return domain.Challenge{
		ID:             id,
		ChallengerID:   "alice",
		OpponentID:     "bob",
		ChallengerName: "Alice",
		OpponentName:   "Bob",
		BetAmount:      25,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestInsertAndGetChallenge(t *testing.T) {
	store := openTestStore(t)

	inserted, err := store.InsertChallenge(context.Background(), testChallenge("ch-1"))
	if err != nil {
		t.Fatalf("insert challenge: %v", err)
	}
	if inserted.Version != 1 {
		t.Fatalf("version = %d, want 1", inserted.Version)
	}

	got, err := store.GetChallenge(context.Background(), "ch-1")
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if got.Challenge.ChallengerID != "alice" || got.Challenge.OpponentID != "bob" {
		t.Fatalf("participants = %q vs %q, want alice vs bob", got.Challenge.ChallengerID, got.Challenge.OpponentID)
	}
	if got.Challenge.BetAmount != 25 {
		t.Fatalf("bet amount = %d, want 25", got.Challenge.BetAmount)
	}
	if got.Challenge.Status != domain.StatusPending {
		t.Fatalf("status = %s, want %s", got.Challenge.Status, domain.StatusPending)
	}
	if got.Challenge.ChallengerChoice != domain.ChoiceUnset {
		t.Fatalf("challenger choice = %q, want unset", got.Challenge.ChallengerChoice)
	}
	if !got.Challenge.CreatedAt.Equal(testChallenge("ch-1").CreatedAt) {
		t.Fatalf("created at = %v, want %v", got.Challenge.CreatedAt, testChallenge("ch-1").CreatedAt)
	}
}

func TestInsertDuplicateChallenge(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.InsertChallenge(context.Background(), testChallenge("ch-1")); err != nil {
		t.Fatalf("insert challenge: %v", err)
	}
	_, err := store.InsertChallenge(context.Background(), testChallenge("ch-1"))
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate insert error = %v, want %v", err, storage.ErrAlreadyExists)
	}
}

func TestGetChallengeNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetChallenge(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestUpdateChallengeBumpsVersion(t *testing.T) {
	store := openTestStore(t)

	inserted, err := store.InsertChallenge(context.Background(), testChallenge("ch-1"))
	if err != nil {
		t.Fatalf("insert challenge: %v", err)
	}

	challenge := inserted.Challenge
	challenge.Status = domain.StatusActive
	updated, err := store.UpdateChallenge(context.Background(), challenge, inserted.Version)
	if err != nil {
		t.Fatalf("update challenge: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Version)
	}

	got, err := store.GetChallenge(context.Background(), "ch-1")
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if got.Challenge.Status != domain.StatusActive {
		t.Fatalf("status = %s, want %s", got.Challenge.Status, domain.StatusActive)
	}
	if got.Version != 2 {
		t.Fatalf("stored version = %d, want 2", got.Version)
	}
}

func TestUpdateChallengeVersionConflict(t *testing.T) {
	store := openTestStore(t)

	inserted, err := store.InsertChallenge(context.Background(), testChallenge("ch-1"))
	if err != nil {
		t.Fatalf("insert challenge: %v", err)
	}

	challenge := inserted.Challenge
	challenge.Status = domain.StatusActive
	if _, err := store.UpdateChallenge(context.Background(), challenge, inserted.Version); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// A second writer still holding version 1 must lose the race.
	stale := inserted.Challenge
	stale.Status = domain.StatusDeclined
	_, err = store.UpdateChallenge(context.Background(), stale, inserted.Version)
	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("stale update error = %v, want %v", err, storage.ErrVersionConflict)
	}

	got, err := store.GetChallenge(context.Background(), "ch-1")
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if got.Challenge.Status != domain.StatusActive {
		t.Fatalf("status = %s, want %s after lost race", got.Challenge.Status, domain.StatusActive)
	}
}

func TestUpdateChallengeMissingRecord(t *testing.T) {
	store := openTestStore(t)

	_, err := store.UpdateChallenge(context.Background(), testChallenge("missing"), 1)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update missing error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestListIncoming(t *testing.T) {
	store := openTestStore(t)

	first := testChallenge("ch-1")
	if _, err := store.InsertChallenge(context.Background(), first); err != nil {
		t.Fatalf("insert ch-1: %v", err)
	}

	second := testChallenge("ch-2")
	second.ChallengerID = "carol"
	second.ChallengerName = "Carol"
	if _, err := store.InsertChallenge(context.Background(), second); err != nil {
		t.Fatalf("insert ch-2: %v", err)
	}

	// bob is challenger here, not opponent; must not appear in his incoming.
	third := testChallenge("ch-3")
	third.ChallengerID = "bob"
	third.ChallengerName = "Bob"
	third.OpponentID = "alice"
	third.OpponentName = "Alice"
	if _, err := store.InsertChallenge(context.Background(), third); err != nil {
		t.Fatalf("insert ch-3: %v", err)
	}

	incoming, err := store.ListIncoming(context.Background(), "bob")
	if err != nil {
		t.Fatalf("list incoming: %v", err)
	}
	if len(incoming) != 2 {
		t.Fatalf("incoming = %d, want 2", len(incoming))
	}
	for _, record := range incoming {
		if record.Challenge.OpponentID != "bob" {
			t.Fatalf("opponent = %q, want bob", record.Challenge.OpponentID)
		}
		if record.Challenge.Status != domain.StatusPending {
			t.Fatalf("status = %s, want %s", record.Challenge.Status, domain.StatusPending)
		}
	}
}

func TestListInPlayCoversBothRoles(t *testing.T) {
	store := openTestStore(t)

	asChallenger := testChallenge("ch-1")
	asChallenger.Status = domain.StatusActive
	if _, err := store.InsertChallenge(context.Background(), asChallenger); err != nil {
		t.Fatalf("insert ch-1: %v", err)
	}

	asOpponent := testChallenge("ch-2")
	asOpponent.ChallengerID = "carol"
	asOpponent.ChallengerName = "Carol"
	asOpponent.OpponentID = "alice"
	asOpponent.OpponentName = "Alice"
	asOpponent.Status = domain.StatusActive
	if _, err := store.InsertChallenge(context.Background(), asOpponent); err != nil {
		t.Fatalf("insert ch-2: %v", err)
	}

	pending := testChallenge("ch-3")
	if _, err := store.InsertChallenge(context.Background(), pending); err != nil {
		t.Fatalf("insert ch-3: %v", err)
	}

	inPlay, err := store.ListInPlay(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list in play: %v", err)
	}
	if len(inPlay) != 2 {
		t.Fatalf("in play = %d, want 2", len(inPlay))
	}
}

func TestListUnseenCompletedFiltersOwnSeenFlag(t *testing.T) {
	store := openTestStore(t)

	completed := testChallenge("ch-1")
	completed.Status = domain.StatusCompleted
	completed.ChallengerChoice = domain.ChoiceRock
	completed.OpponentChoice = domain.ChoiceScissors
	completed.WinnerID = "alice"
	completed.SeenByChallenger = true
	if _, err := store.InsertChallenge(context.Background(), completed); err != nil {
		t.Fatalf("insert ch-1: %v", err)
	}

	// Challenger already acknowledged; only the opponent should still see it.
	unseenAlice, err := store.ListUnseenCompleted(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list unseen alice: %v", err)
	}
	if len(unseenAlice) != 0 {
		t.Fatalf("unseen for alice = %d, want 0", len(unseenAlice))
	}

	unseenBob, err := store.ListUnseenCompleted(context.Background(), "bob")
	if err != nil {
		t.Fatalf("list unseen bob: %v", err)
	}
	if len(unseenBob) != 1 {
		t.Fatalf("unseen for bob = %d, want 1", len(unseenBob))
	}
	if unseenBob[0].Challenge.WinnerID != "alice" {
		t.Fatalf("winner = %q, want alice", unseenBob[0].Challenge.WinnerID)
	}
}

func TestAppendTelemetryEvent(t *testing.T) {
	store := openTestStore(t)

	err := store.AppendTelemetryEvent(context.Background(), telemetry.Event{
		Kind:          "challenge_completed",
		Severity:      telemetry.SeverityInfo,
		ChallengeID:   "ch-1",
		ParticipantID: "alice",
		Timestamp:     time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("append telemetry event: %v", err)
	}

	err = store.AppendTelemetryEvent(context.Background(), telemetry.Event{})
	if err == nil {
		t.Fatal("expected error for missing kind")
	}
}

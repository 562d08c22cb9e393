package domain

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/laurable26/todogame-duels/internal/errors"
)

var testNow = time.Date(2026, time.August, 30, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func fixedID() (string, error) { return "challenge-1", nil }

func newTestChallenge(t *testing.T, status Status) Challenge {
	t.Helper()
	challenge, err := CreateChallenge(CreateChallengeInput{
		ChallengerID:   "alice",
		OpponentID:     "bob",
		ChallengerName: "Alice",
		OpponentName:   "Bob",
		BetAmount:      25,
	}, fixedNow, fixedID)
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	challenge.Status = status
	return challenge
}

func wantCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	if got := apperrors.GetCode(err); got != code {
		t.Fatalf("error code = %s, want %s (err: %v)", got, code, err)
	}
}

func TestCreateChallenge(t *testing.T) {
	challenge, err := CreateChallenge(CreateChallengeInput{
		ChallengerID:   " alice ",
		OpponentID:     "bob",
		ChallengerName: "Alice",
		OpponentName:   "Bob",
		BetAmount:      25,
	}, fixedNow, fixedID)
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}

	if challenge.ID != "challenge-1" {
		t.Fatalf("id = %q, want challenge-1", challenge.ID)
	}
	if challenge.ChallengerID != "alice" {
		t.Fatalf("challenger id = %q, want alice", challenge.ChallengerID)
	}
	if challenge.Status != StatusPending {
		t.Fatalf("status = %s, want %s", challenge.Status, StatusPending)
	}
	if challenge.ChallengerChoice != ChoiceUnset || challenge.OpponentChoice != ChoiceUnset {
		t.Fatal("expected both choices unset at creation")
	}
	if challenge.WinnerID != "" {
		t.Fatalf("winner id = %q, want empty", challenge.WinnerID)
	}
	if !challenge.CreatedAt.Equal(testNow) {
		t.Fatalf("created at = %v, want %v", challenge.CreatedAt, testNow)
	}
}

func TestCreateChallengeValidation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateChallengeInput
		code  apperrors.Code
	}{
		{
			name: "missing participant",
			input: CreateChallengeInput{
				OpponentID:     "bob",
				ChallengerName: "Alice",
				OpponentName:   "Bob",
				BetAmount:      10,
			},
			code: apperrors.CodeChallengeEmptyParticipant,
		},
		{
			name: "self challenge",
			input: CreateChallengeInput{
				ChallengerID:   "alice",
				OpponentID:     "alice",
				ChallengerName: "Alice",
				OpponentName:   "Alice",
				BetAmount:      10,
			},
			code: apperrors.CodeChallengeSameParticipants,
		},
		{
			name: "missing display name",
			input: CreateChallengeInput{
				ChallengerID: "alice",
				OpponentID:   "bob",
				OpponentName: "Bob",
				BetAmount:    10,
			},
			code: apperrors.CodeChallengeEmptyDisplayName,
		},
		{
			name: "zero bet",
			input: CreateChallengeInput{
				ChallengerID:   "alice",
				OpponentID:     "bob",
				ChallengerName: "Alice",
				OpponentName:   "Bob",
			},
			code: apperrors.CodeChallengeInvalidBet,
		},
		{
			name: "negative bet",
			input: CreateChallengeInput{
				ChallengerID:   "alice",
				OpponentID:     "bob",
				ChallengerName: "Alice",
				OpponentName:   "Bob",
				BetAmount:      -5,
			},
			code: apperrors.CodeChallengeInvalidBet,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CreateChallenge(tc.input, fixedNow, fixedID)
			wantCode(t, err, tc.code)
		})
	}
}

func TestAccept(t *testing.T) {
	challenge := newTestChallenge(t, StatusPending)

	accepted, err := challenge.Accept("bob", testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != StatusActive {
		t.Fatalf("status = %s, want %s", accepted.Status, StatusActive)
	}
	if !accepted.UpdatedAt.After(accepted.CreatedAt) {
		t.Fatal("expected updated at to advance")
	}
}

func TestAcceptWrongCaller(t *testing.T) {
	challenge := newTestChallenge(t, StatusPending)

	_, err := challenge.Accept("alice", testNow)
	wantCode(t, err, apperrors.CodeForbidden)

	_, err = challenge.Accept("mallory", testNow)
	wantCode(t, err, apperrors.CodeForbidden)
}

func TestAcceptNotPending(t *testing.T) {
	for _, status := range []Status{StatusActive, StatusDeclined, StatusCompleted} {
		challenge := newTestChallenge(t, status)
		_, err := challenge.Accept("bob", testNow)
		wantCode(t, err, apperrors.CodeInvalidTransition)
	}
}

func TestDecline(t *testing.T) {
	challenge := newTestChallenge(t, StatusPending)

	declined, err := challenge.Decline("bob", testNow)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != StatusDeclined {
		t.Fatalf("status = %s, want %s", declined.Status, StatusDeclined)
	}
}

func TestDeclineWrongCallerOrStatus(t *testing.T) {
	challenge := newTestChallenge(t, StatusPending)
	_, err := challenge.Decline("alice", testNow)
	wantCode(t, err, apperrors.CodeForbidden)

	challenge = newTestChallenge(t, StatusActive)
	_, err = challenge.Decline("bob", testNow)
	wantCode(t, err, apperrors.CodeInvalidTransition)
}

func TestApplyMoveFirstMoveStaysActive(t *testing.T) {
	challenge := newTestChallenge(t, StatusActive)

	moved, err := challenge.ApplyMove("alice", ChoiceRock, testNow)
	if err != nil {
		t.Fatalf("apply move: %v", err)
	}
	if moved.Status != StatusActive {
		t.Fatalf("status = %s, want %s", moved.Status, StatusActive)
	}
	if moved.ChallengerChoice != ChoiceRock {
		t.Fatalf("challenger choice = %s, want %s", moved.ChallengerChoice, ChoiceRock)
	}
	if moved.WinnerID != "" {
		t.Fatalf("winner id = %q, want empty", moved.WinnerID)
	}
}

func TestApplyMoveSecondMoveResolves(t *testing.T) {
	tests := []struct {
		name       string
		challenger Choice
		opponent   Choice
		wantWinner string
	}{
		{"challenger wins", ChoiceRock, ChoiceScissors, "alice"},
		{"opponent wins", ChoiceRock, ChoicePaper, "bob"},
		{"draw", ChoicePaper, ChoicePaper, WinnerDraw},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			challenge := newTestChallenge(t, StatusActive)

			afterFirst, err := challenge.ApplyMove("alice", tc.challenger, testNow)
			if err != nil {
				t.Fatalf("first move: %v", err)
			}
			completed, err := afterFirst.ApplyMove("bob", tc.opponent, testNow.Add(time.Second))
			if err != nil {
				t.Fatalf("second move: %v", err)
			}

			if completed.Status != StatusCompleted {
				t.Fatalf("status = %s, want %s", completed.Status, StatusCompleted)
			}
			if completed.WinnerID != tc.wantWinner {
				t.Fatalf("winner id = %q, want %q", completed.WinnerID, tc.wantWinner)
			}
		})
	}
}

func TestApplyMoveOrderDoesNotMatter(t *testing.T) {
	challenge := newTestChallenge(t, StatusActive)

	afterOpponent, err := challenge.ApplyMove("bob", ChoiceScissors, testNow)
	if err != nil {
		t.Fatalf("opponent move: %v", err)
	}
	if afterOpponent.Status != StatusActive {
		t.Fatalf("status = %s, want %s", afterOpponent.Status, StatusActive)
	}
	completed, err := afterOpponent.ApplyMove("alice", ChoiceRock, testNow)
	if err != nil {
		t.Fatalf("challenger move: %v", err)
	}
	if completed.WinnerID != "alice" {
		t.Fatalf("winner id = %q, want alice", completed.WinnerID)
	}
}

func TestApplyMoveTwiceFails(t *testing.T) {
	challenge := newTestChallenge(t, StatusActive)

	moved, err := challenge.ApplyMove("alice", ChoiceRock, testNow)
	if err != nil {
		t.Fatalf("first move: %v", err)
	}

	_, err = moved.ApplyMove("alice", ChoicePaper, testNow)
	wantCode(t, err, apperrors.CodeAlreadyMoved)

	// The failed second submission must not have mutated anything.
	if moved.ChallengerChoice != ChoiceRock {
		t.Fatalf("challenger choice = %s, want %s", moved.ChallengerChoice, ChoiceRock)
	}
	if moved.Status != StatusActive {
		t.Fatalf("status = %s, want %s", moved.Status, StatusActive)
	}
}

func TestApplyMoveRejections(t *testing.T) {
	challenge := newTestChallenge(t, StatusPending)
	_, err := challenge.ApplyMove("alice", ChoiceRock, testNow)
	wantCode(t, err, apperrors.CodeInvalidTransition)

	challenge = newTestChallenge(t, StatusDeclined)
	_, err = challenge.ApplyMove("bob", ChoiceRock, testNow)
	wantCode(t, err, apperrors.CodeInvalidTransition)

	challenge = newTestChallenge(t, StatusActive)
	_, err = challenge.ApplyMove("mallory", ChoiceRock, testNow)
	wantCode(t, err, apperrors.CodeForbidden)

	_, err = challenge.ApplyMove("alice", Choice("lizard"), testNow)
	wantCode(t, err, apperrors.CodeChallengeInvalidChoice)
}

func TestMarkSeen(t *testing.T) {
	challenge := newTestChallenge(t, StatusActive)
	afterFirst, err := challenge.ApplyMove("alice", ChoiceRock, testNow)
	if err != nil {
		t.Fatalf("first move: %v", err)
	}
	completed, err := afterFirst.ApplyMove("bob", ChoiceScissors, testNow)
	if err != nil {
		t.Fatalf("second move: %v", err)
	}

	seen, err := completed.MarkSeen("alice", testNow)
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if !seen.SeenByChallenger {
		t.Fatal("expected challenger seen flag set")
	}
	if seen.SeenByOpponent {
		t.Fatal("expected opponent seen flag untouched")
	}

	both, err := seen.MarkSeen("bob", testNow)
	if err != nil {
		t.Fatalf("mark seen opponent: %v", err)
	}
	if !both.SeenByOpponent {
		t.Fatal("expected opponent seen flag set")
	}
}

func TestMarkSeenRejections(t *testing.T) {
	challenge := newTestChallenge(t, StatusActive)
	_, err := challenge.MarkSeen("alice", testNow)
	wantCode(t, err, apperrors.CodeInvalidTransition)

	challenge = newTestChallenge(t, StatusCompleted)
	_, err = challenge.MarkSeen("mallory", testNow)
	wantCode(t, err, apperrors.CodeForbidden)
}

func TestParticipantHelpers(t *testing.T) {
	challenge := newTestChallenge(t, StatusPending)

	if !challenge.IsParticipant("alice") || !challenge.IsParticipant("bob") {
		t.Fatal("expected both parties to be participants")
	}
	if challenge.IsParticipant("mallory") || challenge.IsParticipant("") {
		t.Fatal("expected outsiders not to be participants")
	}
	if got := challenge.Other("alice"); got != "bob" {
		t.Fatalf("other of alice = %q, want bob", got)
	}
	if got := challenge.Other("bob"); got != "alice" {
		t.Fatalf("other of bob = %q, want alice", got)
	}
	if got := challenge.Other("mallory"); got != "" {
		t.Fatalf("other of mallory = %q, want empty", got)
	}
}

func TestErrorsMatchByCode(t *testing.T) {
	challenge := newTestChallenge(t, StatusCompleted)
	_, err := challenge.Accept("bob", testNow)
	if !errors.Is(err, apperrors.New(apperrors.CodeInvalidTransition, "")) {
		t.Fatal("expected invalid transition error to match by code")
	}
}

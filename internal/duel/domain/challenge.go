// Package domain holds the challenge entity and its pure lifecycle
// transitions. Nothing in this package performs I/O; the service layer is
// responsible for persisting the values returned here.
package domain

import (
	"strings"
	"time"

	apperrors "github.com/laurable26/todogame-duels/internal/errors"
	"github.com/laurable26/todogame-duels/internal/platform/id"
)

// Status describes the lifecycle state of a challenge.
type Status string

const (
	// StatusPending means the challenge awaits the opponent's answer.
	StatusPending Status = "pending"
	// StatusActive means the challenge was accepted and moves may be played.
	StatusActive Status = "active"
	// StatusDeclined means the opponent rejected the challenge. Terminal.
	StatusDeclined Status = "declined"
	// StatusCompleted means both moves were played and a winner derived. Terminal.
	StatusCompleted Status = "completed"
)

// WinnerDraw is the sentinel winner value for a drawn challenge.
const WinnerDraw = "draw"

// Challenge is one duel record between two identities with a wager.
//
// ChallengerID, OpponentID, BetAmount and CreatedAt are immutable after
// creation. Choices are write-once and may only be set while the challenge
// is active. WinnerID is set if and only if the challenge is completed and
// is always derived by Resolve, never chosen by a caller.
type Challenge struct {
	ID               string
	ChallengerID     string
	OpponentID       string
	ChallengerName   string
	OpponentName     string
	BetAmount        int64
	Status           Status
	ChallengerChoice Choice
	OpponentChoice   Choice
	WinnerID         string
	SeenByChallenger bool
	SeenByOpponent   bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreateChallengeInput describes the data needed to create a challenge.
type CreateChallengeInput struct {
	ChallengerID   string
	OpponentID     string
	ChallengerName string
	OpponentName   string
	BetAmount      int64
}

// CreateChallenge validates input and produces a pending challenge with a
// generated ID and timestamps.
func CreateChallenge(input CreateChallengeInput, now func() time.Time, idGenerator func() (string, error)) (Challenge, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := normalizeCreateChallengeInput(input)
	if err != nil {
		return Challenge{}, err
	}

	challengeID, err := idGenerator()
	if err != nil {
		return Challenge{}, err
	}

	createdAt := now().UTC()
	return Challenge{
		ID:             challengeID,
		ChallengerID:   normalized.ChallengerID,
		OpponentID:     normalized.OpponentID,
		ChallengerName: normalized.ChallengerName,
		OpponentName:   normalized.OpponentName,
		BetAmount:      normalized.BetAmount,
		Status:         StatusPending,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

func normalizeCreateChallengeInput(input CreateChallengeInput) (CreateChallengeInput, error) {
	input.ChallengerID = strings.TrimSpace(input.ChallengerID)
	input.OpponentID = strings.TrimSpace(input.OpponentID)
	input.ChallengerName = strings.TrimSpace(input.ChallengerName)
	input.OpponentName = strings.TrimSpace(input.OpponentName)

	if input.ChallengerID == "" || input.OpponentID == "" {
		return CreateChallengeInput{}, apperrors.New(apperrors.CodeChallengeEmptyParticipant, "challenger and opponent ids are required")
	}
	if input.ChallengerID == input.OpponentID {
		return CreateChallengeInput{}, apperrors.New(apperrors.CodeChallengeSameParticipants, "challenger and opponent must differ")
	}
	if input.ChallengerName == "" || input.OpponentName == "" {
		return CreateChallengeInput{}, apperrors.New(apperrors.CodeChallengeEmptyDisplayName, "participant display names are required")
	}
	if input.BetAmount <= 0 {
		return CreateChallengeInput{}, apperrors.New(apperrors.CodeChallengeInvalidBet, "bet amount must be positive")
	}
	return input, nil
}

// IsParticipant reports whether the identity takes part in this challenge.
func (c Challenge) IsParticipant(identity string) bool {
	return identity != "" && (identity == c.ChallengerID || identity == c.OpponentID)
}

// Other returns the opposing participant for the given identity, or the
// empty string when the identity is not a participant.
func (c Challenge) Other(identity string) string {
	switch identity {
	case c.ChallengerID:
		return c.OpponentID
	case c.OpponentID:
		return c.ChallengerID
	default:
		return ""
	}
}

// SeenBy reports whether the given participant has acknowledged the result.
func (c Challenge) SeenBy(identity string) bool {
	switch identity {
	case c.ChallengerID:
		return c.SeenByChallenger
	case c.OpponentID:
		return c.SeenByOpponent
	default:
		return false
	}
}

// Accept transitions a pending challenge to active. Only the opponent may
// accept.
func (c Challenge) Accept(callerID string, now time.Time) (Challenge, error) {
	if c.Status != StatusPending {
		return Challenge{}, invalidTransition(c, "accept")
	}
	if callerID != c.OpponentID {
		return Challenge{}, forbidden(c, callerID, "only the opponent may accept")
	}

	c.Status = StatusActive
	c.UpdatedAt = now.UTC()
	return c, nil
}

// Decline transitions a pending challenge to declined. Only the opponent may
// decline. No funds ever move for a declined challenge.
func (c Challenge) Decline(callerID string, now time.Time) (Challenge, error) {
	if c.Status != StatusPending {
		return Challenge{}, invalidTransition(c, "decline")
	}
	if callerID != c.OpponentID {
		return Challenge{}, forbidden(c, callerID, "only the opponent may decline")
	}

	c.Status = StatusDeclined
	c.UpdatedAt = now.UTC()
	return c, nil
}

// ApplyMove records a participant's choice on an active challenge. The
// choice is write-once: a second submission by the same participant fails
// with an already-moved error and leaves the challenge unchanged.
//
// When the move completes the pair, the challenge resolves in the same
// transition: the winner is derived from the two choices and the status
// becomes completed.
func (c Challenge) ApplyMove(callerID string, choice Choice, now time.Time) (Challenge, error) {
	if c.Status != StatusActive {
		return Challenge{}, invalidTransition(c, "submit move")
	}
	if !c.IsParticipant(callerID) {
		return Challenge{}, forbidden(c, callerID, "caller is not a participant")
	}
	if !choice.Valid() {
		return Challenge{}, apperrors.WithMetadata(apperrors.CodeChallengeInvalidChoice, "choice is not part of the duel choice set", map[string]string{
			"challenge_id": c.ID,
			"choice":       string(choice),
		})
	}

	switch callerID {
	case c.ChallengerID:
		if c.ChallengerChoice != ChoiceUnset {
			return Challenge{}, alreadyMoved(c, callerID)
		}
		c.ChallengerChoice = choice
	case c.OpponentID:
		if c.OpponentChoice != ChoiceUnset {
			return Challenge{}, alreadyMoved(c, callerID)
		}
		c.OpponentChoice = choice
	}
	c.UpdatedAt = now.UTC()

	if c.ChallengerChoice != ChoiceUnset && c.OpponentChoice != ChoiceUnset {
		c.WinnerID = c.winnerID()
		c.Status = StatusCompleted
	}
	return c, nil
}

// MarkSeen sets the caller's own seen flag on a completed challenge. The
// flag gates result re-surfacing in clients, never settlement.
func (c Challenge) MarkSeen(callerID string, now time.Time) (Challenge, error) {
	if c.Status != StatusCompleted {
		return Challenge{}, invalidTransition(c, "acknowledge")
	}
	if !c.IsParticipant(callerID) {
		return Challenge{}, forbidden(c, callerID, "caller is not a participant")
	}

	switch callerID {
	case c.ChallengerID:
		c.SeenByChallenger = true
	case c.OpponentID:
		c.SeenByOpponent = true
	}
	c.UpdatedAt = now.UTC()
	return c, nil
}

func (c Challenge) winnerID() string {
	switch Resolve(c.ChallengerChoice, c.OpponentChoice) {
	case OutcomeChallengerWins:
		return c.ChallengerID
	case OutcomeOpponentWins:
		return c.OpponentID
	default:
		return WinnerDraw
	}
}

func invalidTransition(c Challenge, operation string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidTransition, "challenge status does not allow "+operation, map[string]string{
		"challenge_id": c.ID,
		"status":       string(c.Status),
	})
}

func forbidden(c Challenge, callerID, message string) error {
	return apperrors.WithMetadata(apperrors.CodeForbidden, message, map[string]string{
		"challenge_id": c.ID,
		"caller_id":    callerID,
	})
}

func alreadyMoved(c Challenge, callerID string) error {
	return apperrors.WithMetadata(apperrors.CodeAlreadyMoved, "participant already submitted a choice", map[string]string{
		"challenge_id": c.ID,
		"caller_id":    callerID,
	})
}

// Package notify defines the push-notification contract for duel lifecycle
// events. Delivery is fire-and-forget: a failed notification is logged by
// the caller and never blocks or rolls back a game-state transition.
package notify

import "context"

// Kind identifies one duel notification type.
type Kind string

const (
	// KindChallengeCreated tells the opponent a new challenge awaits them.
	KindChallengeCreated Kind = "challenge_created"
	// KindYourTurn tells a participant the other side has played.
	KindYourTurn Kind = "your_turn"
	// KindChallengeSettled tells a participant a challenge resolved.
	KindChallengeSettled Kind = "challenge_settled"
)

// Payload carries the notification context rendered by delivery channels.
type Payload struct {
	ChallengeID    string
	ChallengerName string
	OpponentName   string
	BetAmount      int64
	WinnerID       string
}

// Notifier dispatches duel notifications to a participant.
type Notifier interface {
	Notify(ctx context.Context, identity string, kind Kind, payload Payload) error
}

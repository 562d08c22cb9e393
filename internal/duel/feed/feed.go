// Package feed defines the change-notification contract for challenge
// records and provides an in-process broker implementation.
//
// Delivery is at-least-once and may reorder relative to causally later
// local writes. Consumers must treat events as wake-up signals and re-read
// authoritative state from the challenge store rather than trusting event
// payloads.
package feed

import (
	"context"

	"github.com/laurable26/todogame-duels/internal/duel/storage"
)

// Event announces that a challenge record was inserted or updated.
type Event struct {
	ChallengeID string
	Record      storage.ChallengeRecord
}

// Subscriber delivers change events for challenges touching a participant.
type Subscriber interface {
	// Subscribe returns a channel of events for every challenge in which
	// the participant appears as challenger or opponent. The channel is
	// closed when ctx is cancelled.
	Subscribe(ctx context.Context, participantID string) (<-chan Event, error)
}

// Publisher accepts change events for fan-out to subscribers.
type Publisher interface {
	Publish(event Event)
}

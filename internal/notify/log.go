package notify

import (
	"context"
	"log"
)

// LogNotifier writes notifications to the process log. It stands in for the
// hosted push dispatcher in development and tests.
type LogNotifier struct{}

// Notify logs the notification and always succeeds.
func (LogNotifier) Notify(_ context.Context, identity string, kind Kind, payload Payload) error {
	log.Printf("notify %s: %s challenge=%s bet=%d", identity, kind, payload.ChallengeID, payload.BetAmount)
	return nil
}

// NopNotifier discards notifications.
type NopNotifier struct{}

// Notify discards the notification.
func (NopNotifier) Notify(context.Context, string, Kind, Payload) error {
	return nil
}

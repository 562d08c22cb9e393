package telemetry

import (
	"context"
	"testing"
	"time"
)

type recordingStore struct {
	events []Event
}

func (s *recordingStore) AppendTelemetryEvent(_ context.Context, event Event) error {
	s.events = append(s.events, event)
	return nil
}

func TestEmitFillsDefaults(t *testing.T) {
	store := &recordingStore{}
	emitter := NewEmitter(store)
	emitter.clock = func() time.Time {
		return time.Date(2026, time.August, 30, 10, 0, 0, 0, time.UTC)
	}

	if err := emitter.Emit(context.Background(), Event{Kind: "challenge_completed", ChallengeID: "ch-1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if len(store.events) != 1 {
		t.Fatalf("events = %d, want 1", len(store.events))
	}
	got := store.events[0]
	if got.Severity != SeverityInfo {
		t.Fatalf("severity = %s, want %s", got.Severity, SeverityInfo)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be filled")
	}
}

func TestEmitNilEmitterAndStore(t *testing.T) {
	var emitter *Emitter
	if err := emitter.Emit(context.Background(), Event{Kind: "x"}); err != nil {
		t.Fatalf("nil emitter emit: %v", err)
	}
	if err := NewEmitter(nil).Emit(context.Background(), Event{Kind: "x"}); err != nil {
		t.Fatalf("nil store emit: %v", err)
	}
}

func TestEmitPreservesExplicitFields(t *testing.T) {
	store := &recordingStore{}
	emitter := NewEmitter(store)

	stamp := time.Date(2026, time.August, 29, 9, 0, 0, 0, time.UTC)
	event := Event{
		Kind:      "settlement_failed",
		Severity:  SeverityError,
		Timestamp: stamp,
	}
	if err := emitter.Emit(context.Background(), event); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if store.events[0].Severity != SeverityError {
		t.Fatalf("severity = %s, want %s", store.events[0].Severity, SeverityError)
	}
	if !store.events[0].Timestamp.Equal(stamp) {
		t.Fatalf("timestamp = %v, want %v", store.events[0].Timestamp, stamp)
	}
}

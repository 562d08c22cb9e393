package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// subscriberBuffer caps unconsumed events per subscription. When a slow
// consumer falls behind, the oldest buffered event is dropped in favor of
// the newest: consumers re-derive state from the store on every event, so a
// newer wake-up supersedes an older one.
const subscriberBuffer = 64

// Broker is an in-process change feed that fans out challenge events to
// participant-filtered subscribers.
type Broker struct {
	mu          sync.Mutex
	nextID      int
	subscribers map[int]*subscription
}

type subscription struct {
	participantID string
	events        chan Event
}

// NewBroker creates an empty in-process change feed.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int]*subscription)}
}

// Subscribe registers a participant-filtered event channel. The channel is
// closed when ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, participantID string) (<-chan Event, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, fmt.Errorf("participant id is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscription{
		participantID: participantID,
		events:        make(chan Event, subscriberBuffer),
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		close(sub.events)
	}()

	return sub.events, nil
}

// Publish fans the event out to every subscriber whose participant appears
// in the challenge as challenger or opponent.
func (b *Broker) Publish(event Event) {
	challenge := event.Record.Challenge

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		if sub.participantID != challenge.ChallengerID && sub.participantID != challenge.OpponentID {
			continue
		}
		for {
			select {
			case sub.events <- event:
			default:
				// Buffer full: drop the oldest event and retry so the
				// newest wake-up is never lost.
				select {
				case <-sub.events:
				default:
				}
				continue
			}
			break
		}
	}
}

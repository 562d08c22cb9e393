package feed

import (
	"context"

	"github.com/laurable26/todogame-duels/internal/duel/domain"
	"github.com/laurable26/todogame-duels/internal/duel/storage"
)

// PublishingStore decorates a challenge store so that every successful
// insert or conditional update is announced on a change feed publisher.
// Reads pass through untouched.
type PublishingStore struct {
	inner     storage.ChallengeStore
	publisher Publisher
}

// WrapStore decorates store with change feed publication.
func WrapStore(store storage.ChallengeStore, publisher Publisher) *PublishingStore {
	return &PublishingStore{inner: store, publisher: publisher}
}

// InsertChallenge stores the record and publishes the insert.
func (s *PublishingStore) InsertChallenge(ctx context.Context, challenge domain.Challenge) (storage.ChallengeRecord, error) {
	record, err := s.inner.InsertChallenge(ctx, challenge)
	if err != nil {
		return storage.ChallengeRecord{}, err
	}
	s.publish(record)
	return record, nil
}

// UpdateChallenge applies the conditional update and publishes on success.
func (s *PublishingStore) UpdateChallenge(ctx context.Context, challenge domain.Challenge, expectedVersion uint64) (storage.ChallengeRecord, error) {
	record, err := s.inner.UpdateChallenge(ctx, challenge, expectedVersion)
	if err != nil {
		return storage.ChallengeRecord{}, err
	}
	s.publish(record)
	return record, nil
}

// GetChallenge loads one record by id.
func (s *PublishingStore) GetChallenge(ctx context.Context, id string) (storage.ChallengeRecord, error) {
	return s.inner.GetChallenge(ctx, id)
}

// ListIncoming lists pending challenges addressed to the participant.
func (s *PublishingStore) ListIncoming(ctx context.Context, opponentID string) ([]storage.ChallengeRecord, error) {
	return s.inner.ListIncoming(ctx, opponentID)
}

// ListInPlay lists active challenges the participant takes part in.
func (s *PublishingStore) ListInPlay(ctx context.Context, participantID string) ([]storage.ChallengeRecord, error) {
	return s.inner.ListInPlay(ctx, participantID)
}

// ListUnseenCompleted lists completed, unacknowledged challenges for the
// participant.
func (s *PublishingStore) ListUnseenCompleted(ctx context.Context, participantID string) ([]storage.ChallengeRecord, error) {
	return s.inner.ListUnseenCompleted(ctx, participantID)
}

func (s *PublishingStore) publish(record storage.ChallengeRecord) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(Event{
		ChallengeID: record.Challenge.ID,
		Record:      record,
	})
}

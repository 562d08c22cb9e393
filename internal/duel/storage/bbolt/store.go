// Package bbolt provides a BoltDB-backed challenge store. Bolt serializes
// writers, so the version check and record replacement of a conditional
// update run inside one Update transaction.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/laurable26/todogame-duels/internal/duel/domain"
	"github.com/laurable26/todogame-duels/internal/duel/storage"
	"go.etcd.io/bbolt"
)

const challengeBucket = "challenges"

// Store provides a BoltDB-backed challenge store.
type Store struct {
	db *bbolt.DB
}

type challengeRow struct {
	Challenge domain.Challenge `json:"challenge"`
	Version   uint64           `json:"version"`
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertChallenge stores a new challenge record at version 1.
func (s *Store) InsertChallenge(ctx context.Context, challenge domain.Challenge) (storage.ChallengeRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChallengeRecord{}, err
	}
	if s == nil || s.db == nil {
		return storage.ChallengeRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(challenge.ID) == "" {
		return storage.ChallengeRecord{}, fmt.Errorf("challenge id is required")
	}

	row := challengeRow{Challenge: challenge, Version: 1}
	payload, err := json.Marshal(row)
	if err != nil {
		return storage.ChallengeRecord{}, fmt.Errorf("marshal challenge: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(challengeBucket))
		if bucket == nil {
			return fmt.Errorf("challenge bucket is missing")
		}
		if bucket.Get([]byte(challenge.ID)) != nil {
			return storage.ErrAlreadyExists
		}
		return bucket.Put([]byte(challenge.ID), payload)
	})
	if err != nil {
		return storage.ChallengeRecord{}, err
	}
	return storage.ChallengeRecord{Challenge: challenge, Version: 1}, nil
}

// GetChallenge fetches one challenge record by id.
func (s *Store) GetChallenge(ctx context.Context, id string) (storage.ChallengeRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChallengeRecord{}, err
	}
	if s == nil || s.db == nil {
		return storage.ChallengeRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return storage.ChallengeRecord{}, fmt.Errorf("challenge id is required")
	}

	var row challengeRow
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(challengeBucket))
		if bucket == nil {
			return fmt.Errorf("challenge bucket is missing")
		}
		payload := bucket.Get([]byte(id))
		if payload == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(payload, &row); err != nil {
			return fmt.Errorf("unmarshal challenge: %w", err)
		}
		return nil
	})
	if err != nil {
		return storage.ChallengeRecord{}, err
	}
	return storage.ChallengeRecord{Challenge: row.Challenge, Version: row.Version}, nil
}

// UpdateChallenge replaces the stored challenge only when the stored version
// equals expectedVersion.
func (s *Store) UpdateChallenge(ctx context.Context, challenge domain.Challenge, expectedVersion uint64) (storage.ChallengeRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChallengeRecord{}, err
	}
	if s == nil || s.db == nil {
		return storage.ChallengeRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(challenge.ID) == "" {
		return storage.ChallengeRecord{}, fmt.Errorf("challenge id is required")
	}

	nextVersion := expectedVersion + 1
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(challengeBucket))
		if bucket == nil {
			return fmt.Errorf("challenge bucket is missing")
		}
		payload := bucket.Get([]byte(challenge.ID))
		if payload == nil {
			return storage.ErrNotFound
		}
		var stored challengeRow
		if err := json.Unmarshal(payload, &stored); err != nil {
			return fmt.Errorf("unmarshal challenge: %w", err)
		}
		if stored.Version != expectedVersion {
			return storage.ErrVersionConflict
		}
		next, err := json.Marshal(challengeRow{Challenge: challenge, Version: nextVersion})
		if err != nil {
			return fmt.Errorf("marshal challenge: %w", err)
		}
		return bucket.Put([]byte(challenge.ID), next)
	})
	if err != nil {
		return storage.ChallengeRecord{}, err
	}
	return storage.ChallengeRecord{Challenge: challenge, Version: nextVersion}, nil
}

// ListIncoming lists pending challenges addressed to the participant.
func (s *Store) ListIncoming(ctx context.Context, opponentID string) ([]storage.ChallengeRecord, error) {
	return s.list(ctx, opponentID, func(c domain.Challenge, participantID string) bool {
		return c.Status == domain.StatusPending && c.OpponentID == participantID
	})
}

// ListInPlay lists active challenges the participant takes part in.
func (s *Store) ListInPlay(ctx context.Context, participantID string) ([]storage.ChallengeRecord, error) {
	return s.list(ctx, participantID, func(c domain.Challenge, participantID string) bool {
		return c.Status == domain.StatusActive && c.IsParticipant(participantID)
	})
}

// ListUnseenCompleted lists completed challenges the participant has not
// acknowledged yet.
func (s *Store) ListUnseenCompleted(ctx context.Context, participantID string) ([]storage.ChallengeRecord, error) {
	return s.list(ctx, participantID, func(c domain.Challenge, participantID string) bool {
		return c.Status == domain.StatusCompleted && c.IsParticipant(participantID) && !c.SeenBy(participantID)
	})
}

func (s *Store) list(ctx context.Context, participantID string, match func(domain.Challenge, string) bool) ([]storage.ChallengeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, fmt.Errorf("participant id is required")
	}

	var records []storage.ChallengeRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(challengeBucket))
		if bucket == nil {
			return fmt.Errorf("challenge bucket is missing")
		}
		return bucket.ForEach(func(_, payload []byte) error {
			var row challengeRow
			if err := json.Unmarshal(payload, &row); err != nil {
				return fmt.Errorf("unmarshal challenge: %w", err)
			}
			if match(row.Challenge, participantID) {
				records = append(records, storage.ChallengeRecord{Challenge: row.Challenge, Version: row.Version})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		left, right := records[i].Challenge, records[j].Challenge
		if !left.CreatedAt.Equal(right.CreatedAt) {
			return left.CreatedAt.After(right.CreatedAt)
		}
		return left.ID > right.ID
	})
	return records, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(challengeBucket))
		if err != nil {
			return fmt.Errorf("create challenge bucket: %w", err)
		}
		return nil
	})
}

// Package sqlite provides the SQLite-backed reference implementation of the
// challenge store. Conditional updates are expressed as a single UPDATE
// guarded by the record version, which gives the resolve-on-second-move
// transition its atomicity without any cross-process lock.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/laurable26/todogame-duels/internal/duel/domain"
	"github.com/laurable26/todogame-duels/internal/duel/storage"
	"github.com/laurable26/todogame-duels/internal/duel/storage/sqlite/migrations"
	"github.com/laurable26/todogame-duels/internal/platform/storage/sqlitemigrate"
	"github.com/laurable26/todogame-duels/internal/telemetry"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for challenge records.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a duel SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// InsertChallenge stores a new challenge record at version 1.
func (s *Store) InsertChallenge(ctx context.Context, challenge domain.Challenge) (storage.ChallengeRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChallengeRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ChallengeRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(challenge.ID) == "" {
		return storage.ChallengeRecord{}, fmt.Errorf("challenge id is required")
	}

	const insertVersion = 1
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO challenges (
    id, challenger_id, opponent_id, challenger_name, opponent_name,
    bet_amount, status, challenger_choice, opponent_choice, winner_id,
    seen_by_challenger, seen_by_opponent, version, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		challenge.ID,
		challenge.ChallengerID,
		challenge.OpponentID,
		challenge.ChallengerName,
		challenge.OpponentName,
		challenge.BetAmount,
		string(challenge.Status),
		string(challenge.ChallengerChoice),
		string(challenge.OpponentChoice),
		challenge.WinnerID,
		boolToInt(challenge.SeenByChallenger),
		boolToInt(challenge.SeenByOpponent),
		insertVersion,
		toMillis(challenge.CreatedAt),
		toMillis(challenge.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ChallengeRecord{}, storage.ErrAlreadyExists
		}
		return storage.ChallengeRecord{}, fmt.Errorf("insert challenge: %w", err)
	}
	return storage.ChallengeRecord{Challenge: challenge, Version: insertVersion}, nil
}

// GetChallenge loads one challenge record by id.
func (s *Store) GetChallenge(ctx context.Context, id string) (storage.ChallengeRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChallengeRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ChallengeRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.ChallengeRecord{}, fmt.Errorf("challenge id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, selectChallenge+` WHERE id = ?`, id)
	record, err := scanChallenge(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ChallengeRecord{}, storage.ErrNotFound
		}
		return storage.ChallengeRecord{}, fmt.Errorf("get challenge: %w", err)
	}
	return record, nil
}

// UpdateChallenge replaces the stored challenge only when the stored version
// equals expectedVersion. A lost race returns storage.ErrVersionConflict.
func (s *Store) UpdateChallenge(ctx context.Context, challenge domain.Challenge, expectedVersion uint64) (storage.ChallengeRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChallengeRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ChallengeRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(challenge.ID) == "" {
		return storage.ChallengeRecord{}, fmt.Errorf("challenge id is required")
	}

	nextVersion := expectedVersion + 1
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE challenges
SET status = ?,
    challenger_choice = ?,
    opponent_choice = ?,
    winner_id = ?,
    seen_by_challenger = ?,
    seen_by_opponent = ?,
    version = ?,
    updated_at = ?
WHERE id = ? AND version = ?
`,
		string(challenge.Status),
		string(challenge.ChallengerChoice),
		string(challenge.OpponentChoice),
		challenge.WinnerID,
		boolToInt(challenge.SeenByChallenger),
		boolToInt(challenge.SeenByOpponent),
		nextVersion,
		toMillis(challenge.UpdatedAt),
		challenge.ID,
		expectedVersion,
	)
	if err != nil {
		return storage.ChallengeRecord{}, fmt.Errorf("update challenge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.ChallengeRecord{}, fmt.Errorf("update challenge rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a lost version race from a missing record.
		var found int
		err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM challenges WHERE id = ?`, challenge.ID).Scan(&found)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ChallengeRecord{}, storage.ErrNotFound
			}
			return storage.ChallengeRecord{}, fmt.Errorf("check challenge existence: %w", err)
		}
		return storage.ChallengeRecord{}, storage.ErrVersionConflict
	}
	return storage.ChallengeRecord{Challenge: challenge, Version: nextVersion}, nil
}

// ListIncoming lists pending challenges addressed to the participant.
func (s *Store) ListIncoming(ctx context.Context, opponentID string) ([]storage.ChallengeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	opponentID = strings.TrimSpace(opponentID)
	if opponentID == "" {
		return nil, fmt.Errorf("opponent id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, selectChallenge+`
WHERE opponent_id = ? AND status = ?
ORDER BY created_at DESC, id DESC
`, opponentID, string(domain.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list incoming challenges: %w", err)
	}
	defer rows.Close()
	return collectChallenges(rows)
}

// ListInPlay lists active challenges the participant takes part in.
func (s *Store) ListInPlay(ctx context.Context, participantID string) ([]storage.ChallengeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, fmt.Errorf("participant id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, selectChallenge+`
WHERE (challenger_id = ? OR opponent_id = ?) AND status = ?
ORDER BY created_at DESC, id DESC
`, participantID, participantID, string(domain.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("list in-play challenges: %w", err)
	}
	defer rows.Close()
	return collectChallenges(rows)
}

// ListUnseenCompleted lists completed challenges the participant has not
// acknowledged yet.
func (s *Store) ListUnseenCompleted(ctx context.Context, participantID string) ([]storage.ChallengeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, fmt.Errorf("participant id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, selectChallenge+`
WHERE status = ?
  AND ((challenger_id = ? AND seen_by_challenger = 0)
    OR (opponent_id = ? AND seen_by_opponent = 0))
ORDER BY updated_at DESC, id DESC
`, string(domain.StatusCompleted), participantID, participantID)
	if err != nil {
		return nil, fmt.Errorf("list unseen completed challenges: %w", err)
	}
	defer rows.Close()
	return collectChallenges(rows)
}

// AppendTelemetryEvent records one operational telemetry event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event telemetry.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(event.Kind) == "" {
		return fmt.Errorf("telemetry event kind is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (kind, severity, challenge_id, participant_id, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		event.Kind,
		string(event.Severity),
		event.ChallengeID,
		event.ParticipantID,
		event.Detail,
		toMillis(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}

const selectChallenge = `
SELECT id, challenger_id, opponent_id, challenger_name, opponent_name,
       bet_amount, status, challenger_choice, opponent_choice, winner_id,
       seen_by_challenger, seen_by_opponent, version, created_at, updated_at
FROM challenges`

func scanChallenge(scan func(dest ...any) error) (storage.ChallengeRecord, error) {
	var (
		challenge        domain.Challenge
		status           string
		challengerChoice string
		opponentChoice   string
		seenByChallenger int
		seenByOpponent   int
		version          uint64
		createdAt        int64
		updatedAt        int64
	)
	if err := scan(
		&challenge.ID,
		&challenge.ChallengerID,
		&challenge.OpponentID,
		&challenge.ChallengerName,
		&challenge.OpponentName,
		&challenge.BetAmount,
		&status,
		&challengerChoice,
		&opponentChoice,
		&challenge.WinnerID,
		&seenByChallenger,
		&seenByOpponent,
		&version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.ChallengeRecord{}, err
	}

	challenge.Status = domain.Status(status)
	challenge.ChallengerChoice = domain.Choice(challengerChoice)
	challenge.OpponentChoice = domain.Choice(opponentChoice)
	challenge.SeenByChallenger = seenByChallenger != 0
	challenge.SeenByOpponent = seenByOpponent != 0
	challenge.CreatedAt = fromMillis(createdAt)
	challenge.UpdatedAt = fromMillis(updatedAt)
	return storage.ChallengeRecord{Challenge: challenge, Version: version}, nil
}

func collectChallenges(rows *sql.Rows) ([]storage.ChallengeRecord, error) {
	var records []storage.ChallengeRecord
	for rows.Next() {
		record, err := scanChallenge(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan challenge row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challenge rows: %w", err)
	}
	return records, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// Package swipe records unilateral like/dislike decisions and resolves
// mutual likes into persisted matches.
package swipe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Swipe actions after normalization.
const (
	ActionLike    = "like"
	ActionDislike = "dislike"
)

// ErrNoRecord is returned when no swipe exists for a pair.
var ErrNoRecord = errors.New("swipe: no record")

// Record is one persisted swipe decision. The (swiper, swiped) pair is
// unique; re-deciding overwrites the action.
type Record struct {
	SwiperID  string    `json:"swiper_id"`
	SwipedID  string    `json:"swiped_id"`
	Action    string    `json:"action"`
	IsMatch   bool      `json:"is_match"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store manages the swipe ledger in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a swipe store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert records a decision, overwriting the action on a repeated decision
// for the same pair. The is_match flag is preserved on overwrite; only the
// resolver flips it.
func (s *Store) Upsert(ctx context.Context, swiperID, swipedID, action string) (*Record, error) {
	const query = `
		INSERT INTO swipes (swiper_id, swiped_id, action, is_match, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, NOW(), NOW())
		ON CONFLICT (swiper_id, swiped_id) DO UPDATE SET
			action = $3, updated_at = NOW()
		RETURNING swiper_id, swiped_id, action, is_match, created_at, updated_at`

	var record Record
	err := s.db.QueryRowContext(ctx, query, swiperID, swipedID, action).Scan(
		&record.SwiperID, &record.SwipedID, &record.Action,
		&record.IsMatch, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("swipe: upsert %s->%s: %w", swiperID, swipedID, err)
	}
	return &record, nil
}

// Get returns the swipe record for a directed pair, or ErrNoRecord.
func (s *Store) Get(ctx context.Context, swiperID, swipedID string) (*Record, error) {
	const query = `
		SELECT swiper_id, swiped_id, action, is_match, created_at, updated_at
		FROM swipes
		WHERE swiper_id = $1 AND swiped_id = $2`

	var record Record
	err := s.db.QueryRowContext(ctx, query, swiperID, swipedID).Scan(
		&record.SwiperID, &record.SwipedID, &record.Action,
		&record.IsMatch, &record.CreatedAt, &record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("swipe: get %s->%s: %w", swiperID, swipedID, err)
	}
	return &record, nil
}

// MarkMatched flips is_match on both directions of a pair.
func (s *Store) MarkMatched(ctx context.Context, userA, userB string) error {
	const query = `
		UPDATE swipes SET is_match = TRUE, updated_at = NOW()
		WHERE (swiper_id = $1 AND swiped_id = $2)
		   OR (swiper_id = $2 AND swiped_id = $1)`

	if _, err := s.db.ExecContext(ctx, query, userA, userB); err != nil {
		return fmt.Errorf("swipe: mark matched %s/%s: %w", userA, userB, err)
	}
	return nil
}

// SwipedIDs returns every user id the swiper has decided on, any action.
func (s *Store) SwipedIDs(ctx context.Context, swiperID string) ([]string, error) {
	return s.targetIDs(ctx, swiperID, "")
}

// LikedIDs returns the user ids the swiper has liked.
func (s *Store) LikedIDs(ctx context.Context, swiperID string) ([]string, error) {
	return s.targetIDs(ctx, swiperID, ActionLike)
}

func (s *Store) targetIDs(ctx context.Context, swiperID, action string) ([]string, error) {
	query := `SELECT swiped_id FROM swipes WHERE swiper_id = $1`
	args := []interface{}{swiperID}
	if action != "" {
		query += ` AND action = $2`
		args = append(args, action)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("swipe: target ids for %s: %w", swiperID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("swipe: scan target id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

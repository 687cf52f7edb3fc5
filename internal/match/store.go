// Package match provides PostgreSQL-backed storage for mutual-match
// records. A match is keyed by the unordered user pair and lives for a
// bounded time window after creation.
package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amoura/dating-app/internal/compat"
)

// MatchTTL is how long a fresh match stays active.
const MatchTTL = 3 * time.Minute

// Match statuses.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusClosed  = "closed"
)

// ErrNotFound is returned when no match exists for a pair.
var ErrNotFound = errors.New("match: not found")

// Record is one persisted mutual match.
type Record struct {
	ID        string           `json:"id"`
	UserA     string           `json:"user_a"` // lexicographically smaller id
	UserB     string           `json:"user_b"`
	Status    string           `json:"status"`
	Score     int              `json:"score"`
	Breakdown compat.Breakdown `json:"breakdown"`
	MatchedAt time.Time        `json:"matched_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// NormalizePair orders a user pair so the lexicographically smaller id
// comes first. Both orderings of the same pair normalize identically.
func NormalizePair(u1, u2 string) (string, string) {
	if u1 <= u2 {
		return u1, u2
	}
	return u2, u1
}

// Store manages match records in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a match store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert creates or refreshes the match for an unordered pair. When both
// reciprocal likes arrive nearly simultaneously, the second caller's upsert
// updates the existing row instead of creating a duplicate; both callers
// get the same match id back.
func (s *Store) Upsert(ctx context.Context, u1, u2 string, result *compat.Result) (*Record, error) {
	userA, userB := NormalizePair(u1, u2)
	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("match: marshal breakdown: %w", err)
	}

	now := time.Now()
	expires := now.Add(MatchTTL)

	const query = `
		INSERT INTO matches (id, user_a, user_b, status, score, breakdown, matched_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_a, user_b) DO UPDATE SET
			status = $4, score = $5, breakdown = $6, matched_at = $7, expires_at = $8
		RETURNING id, matched_at, expires_at`

	record := &Record{
		UserA:     userA,
		UserB:     userB,
		Status:    StatusActive,
		Score:     result.Score,
		Breakdown: result.Breakdown,
	}
	err = s.db.QueryRowContext(ctx, query,
		uuid.New().String(), userA, userB, StatusActive, result.Score,
		breakdown, now, expires,
	).Scan(&record.ID, &record.MatchedAt, &record.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("match: upsert %s/%s: %w", userA, userB, err)
	}
	return record, nil
}

// GetByPair returns the match for an unordered pair, or ErrNotFound.
func (s *Store) GetByPair(ctx context.Context, u1, u2 string) (*Record, error) {
	userA, userB := NormalizePair(u1, u2)

	const query = `
		SELECT id, user_a, user_b, status, score, breakdown, matched_at, expires_at
		FROM matches
		WHERE user_a = $1 AND user_b = $2`

	var (
		record    Record
		breakdown []byte
	)
	err := s.db.QueryRowContext(ctx, query, userA, userB).Scan(
		&record.ID, &record.UserA, &record.UserB, &record.Status,
		&record.Score, &breakdown, &record.MatchedAt, &record.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("match: get %s/%s: %w", userA, userB, err)
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &record.Breakdown); err != nil {
			return nil, fmt.Errorf("match: decode breakdown: %w", err)
		}
	}
	return &record, nil
}

// HasActive reports whether an unexpired active match exists for the pair.
func (s *Store) HasActive(ctx context.Context, u1, u2 string) (bool, error) {
	record, err := s.GetByPair(ctx, u1, u2)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.Status == StatusActive && record.ExpiresAt.After(time.Now()), nil
}

// Close marks a match closed (one side ended the conversation).
func (s *Store) Close(ctx context.Context, u1, u2 string) error {
	userA, userB := NormalizePair(u1, u2)
	_, err := s.db.ExecContext(ctx,
		`UPDATE matches SET status = $1 WHERE user_a = $2 AND user_b = $3`,
		StatusClosed, userA, userB)
	if err != nil {
		return fmt.Errorf("match: close %s/%s: %w", userA, userB, err)
	}
	return nil
}

// ExpireDue flips active matches past their expiry to expired and returns
// how many rows changed. Run periodically by the matchmaker sweep.
func (s *Store) ExpireDue(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE matches SET status = $1 WHERE status = $2 AND expires_at <= NOW()`,
		StatusExpired, StatusActive)
	if err != nil {
		return 0, fmt.Errorf("match: expire due: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("match: expire due rows: %w", err)
	}
	return n, nil
}

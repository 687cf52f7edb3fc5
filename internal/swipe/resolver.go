package swipe

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/amoura/dating-app/internal/compat"
	"github.com/amoura/dating-app/internal/match"
	"github.com/amoura/dating-app/internal/metrics"
	"github.com/amoura/dating-app/internal/profile"
)

// Validation errors. Rejected immediately with no state change.
var (
	ErrSelfSwipe = errors.New("swipe: cannot swipe on yourself")
	ErrBadAction = errors.New("swipe: unrecognized action")
)

// actionVocab normalizes client action strings to the stored vocabulary.
var actionVocab = map[string]string{
	"like":    ActionLike,
	"dislike": ActionDislike,
	"nope":    ActionDislike,
}

// Outcome is the result of one swipe decision.
type Outcome struct {
	Record        *Record        `json:"record"`
	Match         bool           `json:"match"`
	MatchID       string         `json:"match_id,omitempty"`
	Compatibility *compat.Result `json:"compatibility,omitempty"`
}

// Ledger is the swipe persistence the resolver needs.
type Ledger interface {
	Upsert(ctx context.Context, swiperID, swipedID, action string) (*Record, error)
	Get(ctx context.Context, swiperID, swipedID string) (*Record, error)
	MarkMatched(ctx context.Context, userA, userB string) error
}

// Matches is the match persistence the resolver needs.
type Matches interface {
	Upsert(ctx context.Context, u1, u2 string, result *compat.Result) (*match.Record, error)
	GetByPair(ctx context.Context, u1, u2 string) (*match.Record, error)
}

// Profiles resolves user ids to scoring profiles.
type Profiles interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
}

// Scorer computes a fresh compatibility result for a matched pair.
type Scorer interface {
	Score(ctx context.Context, a, b *profile.Profile) (*compat.Result, error)
}

// Resolver records decisions and resolves reciprocal likes into matches.
type Resolver struct {
	ledger   Ledger
	matches  Matches
	profiles Profiles
	scorer   Scorer
}

// NewResolver wires the resolver over its stores and scorer.
func NewResolver(ledger Ledger, matches Matches, profiles Profiles, scorer Scorer) *Resolver {
	return &Resolver{ledger: ledger, matches: matches, profiles: profiles, scorer: scorer}
}

// NormalizeAction maps a client action through the fixed vocabulary.
// Returns ErrBadAction for anything outside it.
func NormalizeAction(action string) (string, error) {
	normalized, ok := actionVocab[strings.ToLower(strings.TrimSpace(action))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrBadAction, action)
	}
	return normalized, nil
}

// Decide records a like/dislike from swiper to target. On a reciprocal
// like it marks both swipe records matched, computes a fresh compatibility
// result, and upserts the match record for the unordered pair. Decisions
// stay mutable until a match has formed; after that re-deciding is a no-op
// that returns the existing match state.
func (r *Resolver) Decide(ctx context.Context, swiperID, targetID, action string) (*Outcome, error) {
	normalized, err := NormalizeAction(action)
	if err != nil {
		return nil, err
	}
	if swiperID == targetID {
		return nil, ErrSelfSwipe
	}

	// Both sides must exist before any state changes.
	swiper, err := r.profiles.Get(ctx, swiperID)
	if err != nil {
		return nil, err
	}
	target, err := r.profiles.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}

	existing, err := r.ledger.Get(ctx, swiperID, targetID)
	if err != nil && !errors.Is(err, ErrNoRecord) {
		return nil, err
	}
	if existing != nil && existing.IsMatch {
		// The matched flag alone is not proof the match row exists: a
		// prior formation may have failed between steps. Finish it here
		// rather than returning a match id that does not resolve.
		matchRecord, err := r.matches.GetByPair(ctx, swiperID, targetID)
		if errors.Is(err, match.ErrNotFound) {
			return r.formMatch(ctx, swiper, target, existing)
		}
		if err != nil {
			return nil, err
		}
		return &Outcome{Record: existing, Match: true, MatchID: matchRecord.ID}, nil
	}

	record, err := r.ledger.Upsert(ctx, swiperID, targetID, normalized)
	if err != nil {
		return nil, err
	}
	metrics.SwipesTotal.WithLabelValues(normalized).Inc()

	if normalized != ActionLike {
		return &Outcome{Record: record}, nil
	}

	// Reciprocity check: has the target already liked the swiper?
	reciprocal, err := r.ledger.Get(ctx, targetID, swiperID)
	if errors.Is(err, ErrNoRecord) {
		return &Outcome{Record: record}, nil
	}
	if err != nil {
		return nil, err
	}
	if reciprocal.Action != ActionLike {
		return &Outcome{Record: record}, nil
	}

	// Mutual like: score, then flip both records and persist the match.
	return r.formMatch(ctx, swiper, target, record)
}

// formMatch completes a mutual-like match: fresh compatibility result,
// both ledger rows flipped, match record upserted. Scoring runs before any
// write so a retryable scorer failure leaves the ledger untouched and a
// later attempt can run the formation again. The unordered pair upsert
// absorbs the race when both likes arrive at once.
func (r *Resolver) formMatch(ctx context.Context, swiper, target *profile.Profile, record *Record) (*Outcome, error) {
	result, err := r.scorer.Score(ctx, swiper, target)
	if err != nil {
		return nil, fmt.Errorf("swipe: score matched pair: %w", err)
	}

	if err := r.ledger.MarkMatched(ctx, swiper.UserID, target.UserID); err != nil {
		return nil, err
	}

	matchRecord, err := r.matches.Upsert(ctx, swiper.UserID, target.UserID, result)
	if err != nil {
		return nil, err
	}
	metrics.MatchesTotal.Inc()
	log.Printf("[swipe] match formed: %s <-> %s score=%d", swiper.UserID, target.UserID, result.Score)

	record.IsMatch = true
	return &Outcome{
		Record:        record,
		Match:         true,
		MatchID:       matchRecord.ID,
		Compatibility: result,
	}, nil
}

// Package deck builds the ranked swipe deck for a seeker: query eligible
// candidates, apply the exclusion policy and geo filter, and delegate
// ordering to the compatibility scorer.
package deck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amoura/dating-app/internal/compat"
	"github.com/amoura/dating-app/internal/metrics"
	"github.com/amoura/dating-app/internal/profile"
)

const (
	// DefaultLimit is the deck size when the caller does not specify one.
	DefaultLimit = 10

	// MaxLimit caps the requestable deck size.
	MaxLimit = 30

	// minPoolSize is the floor for the candidate pool regardless of limit.
	minPoolSize = 40
)

// ErrBadFilters rejects malformed filter combinations.
var ErrBadFilters = errors.New("deck: malformed filters")

// Filters narrows the candidate pool. Zero values mean "not supplied".
type Filters struct {
	AgeMin        int     `json:"age_min"`
	AgeMax        int     `json:"age_max"`
	MaxDistanceKm float64 `json:"max_distance_km"`
}

// Any reports whether at least one filter is supplied.
func (f Filters) Any() bool {
	return f.AgeMin > 0 || f.AgeMax > 0 || f.MaxDistanceKm > 0
}

func (f Filters) validate() error {
	if f.AgeMin < 0 || f.AgeMax < 0 || f.MaxDistanceKm < 0 {
		return fmt.Errorf("%w: negative values", ErrBadFilters)
	}
	if f.AgeMin > 0 && f.AgeMax > 0 && f.AgeMin > f.AgeMax {
		return fmt.Errorf("%w: age_min %d > age_max %d", ErrBadFilters, f.AgeMin, f.AgeMax)
	}
	return nil
}

// Entry is one deck card: the candidate with its compatibility and
// presentation-only extras. Presentation fields never influence order.
type Entry struct {
	Profile       *profile.Profile `json:"profile"`
	Compatibility *compat.Result   `json:"compatibility"`
	DistanceKm    float64          `json:"distance_km,omitempty"` // 0 = unknown
}

// Deck is the ranked result of one build.
type Deck struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
}

// Profiles is the profile persistence the builder needs.
type Profiles interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
	Candidates(ctx context.Context, q profile.CandidateQuery) ([]*profile.Profile, error)
}

// Ledger exposes the seeker's prior decisions for the exclusion policy.
type Ledger interface {
	SwipedIDs(ctx context.Context, swiperID string) ([]string, error)
	LikedIDs(ctx context.Context, swiperID string) ([]string, error)
}

// Ranker orders candidates by compatibility.
type Ranker interface {
	Rank(ctx context.Context, seeker *profile.Profile, candidates []*profile.Profile, topK int) ([]*compat.Ranked, error)
}

// Builder assembles ranked swipe decks.
type Builder struct {
	profiles Profiles
	ledger   Ledger
	ranker   Ranker
}

// NewBuilder wires the deck builder over its collaborators.
func NewBuilder(profiles Profiles, ledger Ledger, ranker Ranker) *Builder {
	return &Builder{profiles: profiles, ledger: ledger, ranker: ranker}
}

// Build returns the ranked deck for a seeker.
//
// Exclusion policy: with no filters, everyone the seeker has already swiped
// (either action) is excluded. When any filter is supplied, only
// previously-liked ids are excluded, so disliked profiles may resurface.
func (b *Builder) Build(ctx context.Context, seekerID string, filters Filters, limit int) (*Deck, error) {
	start := time.Now()
	if err := filters.validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	seeker, err := b.profiles.Get(ctx, seekerID)
	if err != nil {
		return nil, err
	}

	var excluded []string
	if filters.Any() {
		excluded, err = b.ledger.LikedIDs(ctx, seekerID)
	} else {
		excluded, err = b.ledger.SwipedIDs(ctx, seekerID)
	}
	if err != nil {
		return nil, err
	}

	pool := 3 * limit
	if pool < minPoolSize {
		pool = minPoolSize
	}
	// Wildcard preferences carry no gender constraint; the literal value
	// would match no stored gender at all.
	gender := seeker.LookingFor
	if compat.PrefAny(gender) {
		gender = ""
	}

	candidates, err := b.profiles.Candidates(ctx, profile.CandidateQuery{
		SeekerID:  seekerID,
		Gender:    gender,
		MinAge:    filters.AgeMin,
		MaxAge:    filters.AgeMax,
		PoolSize:  pool,
		ExcludeID: excluded,
	})
	if err != nil {
		return nil, err
	}

	candidates = b.geoFilter(seeker, candidates, filters.MaxDistanceKm)

	ranked, err := b.ranker.Rank(ctx, seeker, candidates, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(ranked))
	for _, r := range ranked {
		entry := Entry{Profile: r.Profile, Compatibility: r.Result}
		if seeker.HasCoordinates() && r.Profile.HasCoordinates() {
			entry.DistanceKm = profile.Haversine(
				seeker.Latitude, seeker.Longitude,
				r.Profile.Latitude, r.Profile.Longitude)
		}
		entries = append(entries, entry)
	}

	metrics.DeckLatency.Observe(time.Since(start).Seconds())
	return &Deck{Entries: entries, Total: len(entries)}, nil
}

// geoFilter drops candidates beyond maxKm from the seeker. Candidates with
// missing coordinates are treated as unknown distance and always kept.
func (b *Builder) geoFilter(seeker *profile.Profile, candidates []*profile.Profile, maxKm float64) []*profile.Profile {
	if maxKm <= 0 || !seeker.HasCoordinates() {
		return candidates
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if !c.HasCoordinates() {
			kept = append(kept, c)
			continue
		}
		d := profile.Haversine(seeker.Latitude, seeker.Longitude, c.Latitude, c.Longitude)
		if d <= maxKm {
			kept = append(kept, c)
		}
	}
	return kept
}

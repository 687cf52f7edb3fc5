// Package compat computes the multi-factor compatibility score between two
// dating profiles: six weighted factors combined into one 0–100 score with
// a banded recommendation label.
package compat

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/amoura/dating-app/internal/embedding"
	"github.com/amoura/dating-app/internal/metrics"
	"github.com/amoura/dating-app/internal/profile"
)

// Factor weights. They sum to 1.0.
const (
	weightGender   = 0.20
	weightHobbies  = 0.25
	weightAge      = 0.15
	weightCareer   = 0.15
	weightLocation = 0.15
	weightZodiac   = 0.10
)

// Recommendation labels by score band. Display text may be localized
// upstream; the thresholds are fixed.
const (
	LabelHighlyCompatible = "highly compatible"
	LabelQuiteCompatible  = "quite compatible"
	LabelWorthTrying      = "worth trying"
	LabelSoSo             = "so-so"
	LabelLowCompatibility = "low compatibility"
)

// Breakdown holds the six per-factor scores, each in [0,1].
type Breakdown struct {
	Gender   float64 `json:"gender"`
	Hobbies  float64 `json:"hobbies"`
	Age      float64 `json:"age"`
	Career   float64 `json:"career"`
	Location float64 `json:"location"`
	Zodiac   float64 `json:"zodiac"`
}

// Result is one compatibility evaluation. Created fresh per scoring call
// and never persisted by this layer.
type Result struct {
	Score          int                     `json:"score"` // 0–100
	Breakdown      Breakdown               `json:"breakdown"`
	HobbyMatches   []embedding.PhraseMatch `json:"hobby_matches,omitempty"`
	Recommendation string                  `json:"recommendation"`
	ScoredAt       time.Time               `json:"scored_at"`
}

// Ranked pairs a candidate profile with its compatibility result.
type Ranked struct {
	Profile *profile.Profile `json:"profile"`
	Result  *Result          `json:"result"`
}

// Scorer combines the six factors over a shared similarity engine.
// Independent scoring calls may run concurrently.
type Scorer struct {
	engine *embedding.Engine
}

// NewScorer creates a scorer over the given similarity engine.
func NewScorer(engine *embedding.Engine) *Scorer {
	return &Scorer{engine: engine}
}

// Score evaluates the compatibility of two profiles. It fails with
// embedding.ErrNotReady if the provider has not finished initialization;
// callers must refuse rather than substitute a degraded score.
func (s *Scorer) Score(ctx context.Context, a, b *profile.Profile) (*Result, error) {
	if !s.engine.Ready() {
		return nil, embedding.ErrNotReady
	}
	start := time.Now()

	hobbies, matches, err := s.hobbyScore(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("compat: hobby factor: %w", err)
	}
	career, err := s.careerScore(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("compat: career factor: %w", err)
	}

	breakdown := Breakdown{
		Gender:   genderScore(a, b),
		Hobbies:  hobbies,
		Age:      ageScore(a.Age, b.Age),
		Career:   career,
		Location: locationScore(a.Location, b.Location),
		Zodiac:   zodiacScore(a.Zodiac, b.Zodiac),
	}

	weighted := weightGender*breakdown.Gender +
		weightHobbies*breakdown.Hobbies +
		weightAge*breakdown.Age +
		weightCareer*breakdown.Career +
		weightLocation*breakdown.Location +
		weightZodiac*breakdown.Zodiac

	score := int(math.Round(100 * weighted))
	metrics.ScoreLatency.Observe(time.Since(start).Seconds())

	return &Result{
		Score:          score,
		Breakdown:      breakdown,
		HobbyMatches:   matches,
		Recommendation: Recommendation(score),
		ScoredAt:       time.Now(),
	}, nil
}

// Rank scores the seeker against every candidate, sorts descending by score
// (stable on ties), and truncates to topK. topK <= 0 means no truncation.
func (s *Scorer) Rank(ctx context.Context, seeker *profile.Profile, candidates []*profile.Profile, topK int) ([]*Ranked, error) {
	ranked := make([]*Ranked, 0, len(candidates))
	for _, c := range candidates {
		result, err := s.Score(ctx, seeker, c)
		if err != nil {
			return nil, fmt.Errorf("compat: rank %s: %w", c.UserID, err)
		}
		ranked = append(ranked, &Ranked{Profile: c, Result: result})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Result.Score > ranked[j].Result.Score
	})
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

// Recommendation maps a score to its fixed label band.
func Recommendation(score int) string {
	switch {
	case score >= 80:
		return LabelHighlyCompatible
	case score >= 70:
		return LabelQuiteCompatible
	case score >= 60:
		return LabelWorthTrying
	case score >= 50:
		return LabelSoSo
	default:
		return LabelLowCompatibility
	}
}

// genderScore evaluates mutual preference fit. When both sides declare a
// preference: 1.0 if both are satisfied, 0.5 if only one, 0.0 if neither.
// Without declared preferences it falls back to an opposite-label
// heuristic (1.0) or a neutral 0.5.
func genderScore(a, b *profile.Profile) float64 {
	if a.LookingFor != "" && b.LookingFor != "" {
		aSatisfied := prefMatches(a.LookingFor, b.Gender)
		bSatisfied := prefMatches(b.LookingFor, a.Gender)
		switch {
		case aSatisfied && bSatisfied:
			return 1.0
		case aSatisfied || bSatisfied:
			return 0.5
		default:
			return 0.0
		}
	}

	if a.Gender != "" && b.Gender != "" && !strings.EqualFold(a.Gender, b.Gender) {
		return 1.0
	}
	return 0.5
}

// PrefAny reports whether a looking_for value is a wildcard accepting
// every gender.
func PrefAny(lookingFor string) bool {
	lf := strings.ToLower(strings.TrimSpace(lookingFor))
	return lf == "any" || lf == "everyone"
}

func prefMatches(lookingFor, gender string) bool {
	if PrefAny(lookingFor) {
		return true
	}
	lf := strings.ToLower(strings.TrimSpace(lookingFor))
	return gender != "" && lf == strings.ToLower(strings.TrimSpace(gender))
}

// ageScore is a symmetric step function of the age gap. Unknown ages score
// a neutral 0.5.
func ageScore(age1, age2 int) float64 {
	if age1 <= 0 || age2 <= 0 {
		return 0.5
	}
	diff := age1 - age2
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= 2:
		return 1.0
	case diff <= 5:
		return 0.8
	case diff <= 8:
		return 0.6
	case diff <= 12:
		return 0.4
	default:
		return 0.2
	}
}

// hobbyScore averages greedy phrase matching over both directions so the
// factor is order-independent, returning a 0–1 score and the per-phrase
// matches for the breakdown.
func (s *Scorer) hobbyScore(ctx context.Context, a, b *profile.Profile) (float64, []embedding.PhraseMatch, error) {
	score, matches, err := s.engine.MatchPhrasesSymmetric(ctx, a.Hobbies, b.Hobbies)
	if err != nil {
		return 0, nil, err
	}
	return clamp01(score / 100), matches, nil
}

// careerScore is the clamped cosine similarity of the two career-text
// embeddings. Missing career text on either side scores a neutral 0.5.
func (s *Scorer) careerScore(ctx context.Context, a, b *profile.Profile) (float64, error) {
	if strings.TrimSpace(a.Career) == "" || strings.TrimSpace(b.Career) == "" {
		return 0.5, nil
	}

	v1, err := s.engine.Vector(ctx, a.Career)
	if err != nil {
		return 0, err
	}
	v2, err := s.engine.Vector(ctx, b.Career)
	if err != nil {
		return 0, err
	}

	sim, err := embedding.Cosine(v1, v2)
	if err != nil {
		// Corrupted cache entry of differing length: fatal to this one
		// comparison only.
		log.Printf("[compat] career similarity %s vs %s: %v", a.UserID, b.UserID, err)
		return 0, nil
	}
	return clamp01(sim), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

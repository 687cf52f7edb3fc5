package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/amoura/dating-app/internal/metrics"
)

// phraseDelimiters are the separators recognized when splitting phrase
// lists, including full-width variants from CJK input methods.
var phraseDelimiters = []string{",", ";", "，", "；", "、"}

// PhraseMatch records the best counterpart found for one phrase.
type PhraseMatch struct {
	Phrase1    string  `json:"phrase1"`
	Phrase2    string  `json:"phrase2"`
	Similarity float64 `json:"similarity"`
}

// Engine is the similarity engine: cached embedding lookups plus vector and
// phrase-list similarity. Safe for concurrent use; independent requests
// share only the cache.
type Engine struct {
	provider Provider
	cache    *Cache
}

// NewEngine creates a similarity engine over the given provider and cache.
func NewEngine(provider Provider, cache *Cache) *Engine {
	return &Engine{provider: provider, cache: cache}
}

// Ready reports whether the underlying provider finished initialization.
func (e *Engine) Ready() bool {
	return e.provider.Ready()
}

// NormalizeKey returns the cache key for a piece of text.
func NormalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Vector returns the embedding for text, consulting the cache first. On a
// miss the vector is fetched from the provider and cached unconditionally.
func (e *Engine) Vector(ctx context.Context, text string) ([]float32, error) {
	if !e.provider.Ready() {
		return nil, ErrNotReady
	}

	key := NormalizeKey(text)
	if vec, ok := e.cache.Get(ctx, key); ok {
		return vec, nil
	}

	start := time.Now()
	vec, err := e.provider.Embed(ctx, key)
	if err != nil {
		return nil, err
	}
	metrics.EmbedLatency.Observe(time.Since(start).Seconds())

	e.cache.Put(ctx, key, vec)
	return vec, nil
}

// Cosine computes the cosine similarity of two vectors. It returns
// ErrDimensionMismatch if the lengths differ and 0 if either norm is zero.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// SplitPhrases flattens raw phrase entries into trimmed phrases, splitting
// each entry on the recognized delimiters and dropping empties.
func SplitPhrases(raw []string) []string {
	var out []string
	for _, entry := range raw {
		normalized := entry
		for _, d := range phraseDelimiters[1:] {
			normalized = strings.ReplaceAll(normalized, d, phraseDelimiters[0])
		}
		for _, part := range strings.Split(normalized, phraseDelimiters[0]) {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// MatchPhrases greedily matches every phrase in list1 against its most
// similar phrase in list2 (ties broken by first occurrence) and returns the
// mean best similarity scaled to 0–100, rounded to one decimal, along with
// the per-phrase matches. The result is directional: list1 into list2.
//
// Empty input on either side yields score 0. A dimension mismatch between
// two cached vectors zeroes that one comparison with a logged warning
// rather than aborting the batch.
func (e *Engine) MatchPhrases(ctx context.Context, list1, list2 []string) (float64, []PhraseMatch, error) {
	phrases1 := SplitPhrases(list1)
	phrases2 := SplitPhrases(list2)
	if len(phrases1) == 0 || len(phrases2) == 0 {
		return 0, nil, nil
	}

	vecs2 := make([][]float32, len(phrases2))
	for i, p := range phrases2 {
		vec, err := e.Vector(ctx, p)
		if err != nil {
			return 0, nil, err
		}
		vecs2[i] = vec
	}

	matches := make([]PhraseMatch, 0, len(phrases1))
	var total float64
	for _, p1 := range phrases1 {
		vec1, err := e.Vector(ctx, p1)
		if err != nil {
			return 0, nil, err
		}

		best := PhraseMatch{Phrase1: p1, Similarity: -2} // below any cosine
		for j, vec2 := range vecs2 {
			sim, err := Cosine(vec1, vec2)
			if err != nil {
				if errors.Is(err, ErrDimensionMismatch) {
					log.Printf("[embedding] dimension mismatch %q vs %q, scoring 0", p1, phrases2[j])
					sim = 0
				} else {
					return 0, nil, err
				}
			}
			if sim > best.Similarity {
				best.Phrase2 = phrases2[j]
				best.Similarity = sim
			}
		}

		total += best.Similarity
		matches = append(matches, best)
	}

	mean := total / float64(len(phrases1))
	score := math.Round(mean*1000) / 10 // 0–100, one decimal
	return score, matches, nil
}

// MatchPhrasesSymmetric averages MatchPhrases over both directions so that
// scoring (A, B) equals scoring (B, A). Matches are reported from the
// list1-to-list2 direction.
func (e *Engine) MatchPhrasesSymmetric(ctx context.Context, list1, list2 []string) (float64, []PhraseMatch, error) {
	forward, matches, err := e.MatchPhrases(ctx, list1, list2)
	if err != nil {
		return 0, nil, err
	}
	backward, _, err := e.MatchPhrases(ctx, list2, list1)
	if err != nil {
		return 0, nil, err
	}
	score := math.Round((forward+backward)/2*10) / 10
	return score, matches, nil
}

package embedding

import (
	"context"
	"crypto/sha256"
	"errors"
	"math"
	"testing"
)

// fakeProvider returns deterministic vectors derived from the text, so the
// same phrase always embeds to the same vector. Preset vectors override the
// derived ones for controlled similarity tests.
type fakeProvider struct {
	ready   bool
	preset  map[string][]float32
	failErr error
}

func (f *fakeProvider) Init(ctx context.Context) error {
	f.ready = true
	return nil
}

func (f *fakeProvider) Ready() bool { return f.ready }

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if !f.ready {
		return nil, ErrNotReady
	}
	if f.failErr != nil {
		return nil, f.failErr
	}
	if vec, ok := f.preset[text]; ok {
		return vec, nil
	}
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = float32(sum[i]) / 255
	}
	return vec, nil
}

func newTestEngine(t *testing.T, p *fakeProvider) *Engine {
	t.Helper()
	cache, err := NewCache(64, nil, 0)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return NewEngine(p, cache)
}

func TestCosine_SelfSimilarity(t *testing.T) {
	v := []float32{0.3, -0.5, 0.8, 0.1}
	sim, err := Cosine(v, v)
	if err != nil {
		t.Fatalf("Cosine: %v", err)
	}
	if math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("self similarity should be 1.0, got %f", sim)
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	v := []float32{1, 2, 3}

	sim, err := Cosine(zero, v)
	if err != nil {
		t.Fatalf("Cosine: %v", err)
	}
	if sim != 0 {
		t.Errorf("zero vector similarity should be 0, got %f", sim)
	}

	sim, err = Cosine(v, zero)
	if err != nil {
		t.Fatalf("Cosine: %v", err)
	}
	if sim != 0 {
		t.Errorf("zero vector similarity should be 0, got %f", sim)
	}
}

func TestCosine_DimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestNormalizeKey(t *testing.T) {
	if got := NormalizeKey("  Read Books "); got != "read books" {
		t.Errorf("unexpected key: %q", got)
	}
}

func TestVector_NotReady(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{}) // Init never called

	_, err := e.Vector(context.Background(), "hiking")
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestVector_CachesByNormalizedKey(t *testing.T) {
	p := &fakeProvider{ready: true}
	e := newTestEngine(t, p)
	ctx := context.Background()

	v1, err := e.Vector(ctx, "  Hiking ")
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}

	// Second call with different whitespace/case must hit the cache even
	// if the provider has since gone away.
	p.failErr = ErrUnavailable
	v2, err := e.Vector(ctx, "hiking")
	if err != nil {
		t.Fatalf("Vector (cached): %v", err)
	}

	sim, err := Cosine(v1, v2)
	if err != nil || math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("cached vector should be identical, sim=%f err=%v", sim, err)
	}
}

func TestSplitPhrases(t *testing.T) {
	got := SplitPhrases([]string{"read books, travel", "cooking；hiking", " "})
	want := []string{"read books", "travel", "cooking", "hiking"}
	if len(got) != len(want) {
		t.Fatalf("expected %d phrases, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phrase %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMatchPhrases_EmptyInput(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{ready: true})
	ctx := context.Background()

	score, matches, err := e.MatchPhrases(ctx, nil, []string{"travel"})
	if err != nil || score != 0 || matches != nil {
		t.Errorf("empty list1 should score 0, got score=%f matches=%v err=%v", score, matches, err)
	}

	score, _, err = e.MatchPhrases(ctx, []string{"travel"}, nil)
	if err != nil || score != 0 {
		t.Errorf("empty list2 should score 0, got score=%f err=%v", score, err)
	}
}

func TestMatchPhrases_IdenticalPhraseAfterSplit(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{ready: true})

	score, matches, err := e.MatchPhrases(context.Background(),
		[]string{"read books"}, []string{"read books, travel"})
	if err != nil {
		t.Fatalf("MatchPhrases: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	if matches[0].Phrase2 != "read books" {
		t.Errorf("expected best match %q, got %q", "read books", matches[0].Phrase2)
	}
	if math.Abs(matches[0].Similarity-1.0) > 1e-9 {
		t.Errorf("identical phrase similarity should be 1.0, got %f", matches[0].Similarity)
	}
	if math.Abs(score-100.0) > 0.1 {
		t.Errorf("expected score near 100, got %f", score)
	}
}

func TestMatchPhrases_TieBreaksOnFirstOccurrence(t *testing.T) {
	p := &fakeProvider{
		ready: true,
		preset: map[string][]float32{
			"a": {1, 0, 0, 0, 0, 0, 0, 0},
			"b": {1, 0, 0, 0, 0, 0, 0, 0}, // identical to "c"
			"c": {1, 0, 0, 0, 0, 0, 0, 0},
		},
	}
	e := newTestEngine(t, p)

	_, matches, err := e.MatchPhrases(context.Background(), []string{"a"}, []string{"b", "c"})
	if err != nil {
		t.Fatalf("MatchPhrases: %v", err)
	}
	if matches[0].Phrase2 != "b" {
		t.Errorf("tie should break on first occurrence, got %q", matches[0].Phrase2)
	}
}

func TestMatchPhrases_DimensionMismatchScoresZero(t *testing.T) {
	p := &fakeProvider{
		ready: true,
		preset: map[string][]float32{
			"short": {1, 0}, // wrong dimensionality
		},
	}
	e := newTestEngine(t, p)

	score, matches, err := e.MatchPhrases(context.Background(), []string{"hiking"}, []string{"short"})
	if err != nil {
		t.Fatalf("mismatch should not abort the batch: %v", err)
	}
	if len(matches) != 1 || matches[0].Similarity != 0 {
		t.Errorf("mismatched comparison should score 0, got %v", matches)
	}
	if score != 0 {
		t.Errorf("expected score 0, got %f", score)
	}
}

func TestMatchPhrasesSymmetric(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{ready: true})
	ctx := context.Background()

	ab, _, err := e.MatchPhrasesSymmetric(ctx, []string{"hiking", "cooking"}, []string{"hiking"})
	if err != nil {
		t.Fatalf("MatchPhrasesSymmetric: %v", err)
	}
	ba, _, err := e.MatchPhrasesSymmetric(ctx, []string{"hiking"}, []string{"hiking", "cooking"})
	if err != nil {
		t.Fatalf("MatchPhrasesSymmetric: %v", err)
	}
	if ab != ba {
		t.Errorf("symmetric score should not depend on order: %f vs %f", ab, ba)
	}
}

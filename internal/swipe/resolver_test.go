package swipe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amoura/dating-app/internal/compat"
	"github.com/amoura/dating-app/internal/match"
	"github.com/amoura/dating-app/internal/profile"
)

// fakeLedger is an in-memory swipe ledger keyed by directed pair.
type fakeLedger struct {
	records map[[2]string]*Record
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[[2]string]*Record)}
}

func (f *fakeLedger) Upsert(ctx context.Context, swiperID, swipedID, action string) (*Record, error) {
	key := [2]string{swiperID, swipedID}
	if existing, ok := f.records[key]; ok {
		existing.Action = action
		existing.UpdatedAt = time.Now()
		copied := *existing
		return &copied, nil
	}
	record := &Record{
		SwiperID:  swiperID,
		SwipedID:  swipedID,
		Action:    action,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.records[key] = record
	copied := *record
	return &copied, nil
}

func (f *fakeLedger) Get(ctx context.Context, swiperID, swipedID string) (*Record, error) {
	record, ok := f.records[[2]string{swiperID, swipedID}]
	if !ok {
		return nil, ErrNoRecord
	}
	copied := *record
	return &copied, nil
}

func (f *fakeLedger) MarkMatched(ctx context.Context, userA, userB string) error {
	if record, ok := f.records[[2]string{userA, userB}]; ok {
		record.IsMatch = true
	}
	if record, ok := f.records[[2]string{userB, userA}]; ok {
		record.IsMatch = true
	}
	return nil
}

// fakeMatches upserts by normalized pair and counts distinct records.
type fakeMatches struct {
	records map[[2]string]*match.Record
	upserts int
}

func newFakeMatches() *fakeMatches {
	return &fakeMatches{records: make(map[[2]string]*match.Record)}
}

func (f *fakeMatches) Upsert(ctx context.Context, u1, u2 string, result *compat.Result) (*match.Record, error) {
	f.upserts++
	a, b := match.NormalizePair(u1, u2)
	key := [2]string{a, b}
	if existing, ok := f.records[key]; ok {
		existing.Score = result.Score
		existing.Status = match.StatusActive
		return existing, nil
	}
	record := &match.Record{
		ID:     "match-" + a + "-" + b,
		UserA:  a,
		UserB:  b,
		Status: match.StatusActive,
		Score:  result.Score,
	}
	f.records[key] = record
	return record, nil
}

func (f *fakeMatches) GetByPair(ctx context.Context, u1, u2 string) (*match.Record, error) {
	a, b := match.NormalizePair(u1, u2)
	record, ok := f.records[[2]string{a, b}]
	if !ok {
		return nil, match.ErrNotFound
	}
	return record, nil
}

type fakeProfiles struct {
	known map[string]*profile.Profile
}

func (f *fakeProfiles) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	p, ok := f.known[userID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return p, nil
}

type fixedScorer struct {
	score int
	err   error
}

func (f *fixedScorer) Score(ctx context.Context, a, b *profile.Profile) (*compat.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &compat.Result{
		Score:          f.score,
		Recommendation: compat.Recommendation(f.score),
		ScoredAt:       time.Now(),
	}, nil
}

// flakyScorer fails a fixed number of times before recovering, like a
// provider that has not finished warming up.
type flakyScorer struct {
	failures int
	score    int
	err      error
}

func (f *flakyScorer) Score(ctx context.Context, a, b *profile.Profile) (*compat.Result, error) {
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	return &compat.Result{
		Score:          f.score,
		Recommendation: compat.Recommendation(f.score),
		ScoredAt:       time.Now(),
	}, nil
}

func newTestResolver(users ...string) (*Resolver, *fakeLedger, *fakeMatches) {
	known := make(map[string]*profile.Profile)
	for _, u := range users {
		known[u] = &profile.Profile{UserID: u, Gender: "female", Age: 25}
	}
	ledger := newFakeLedger()
	matches := newFakeMatches()
	r := NewResolver(ledger, matches, &fakeProfiles{known: known}, &fixedScorer{score: 72})
	return r, ledger, matches
}

func TestNormalizeAction(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"like", ActionLike},
		{"LIKE", ActionLike},
		{"dislike", ActionDislike},
		{"nope", ActionDislike},
		{" Nope ", ActionDislike},
	}
	for _, c := range cases {
		got, err := NormalizeAction(c.in)
		if err != nil {
			t.Errorf("NormalizeAction(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("NormalizeAction(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	if _, err := NormalizeAction("superlike"); !errors.Is(err, ErrBadAction) {
		t.Errorf("expected ErrBadAction, got %v", err)
	}
	if _, err := NormalizeAction(""); !errors.Is(err, ErrBadAction) {
		t.Errorf("expected ErrBadAction for empty action, got %v", err)
	}
}

func TestDecide_SelfSwipe(t *testing.T) {
	r, _, _ := newTestResolver("alice")

	_, err := r.Decide(context.Background(), "alice", "alice", "like")
	if !errors.Is(err, ErrSelfSwipe) {
		t.Errorf("expected ErrSelfSwipe, got %v", err)
	}
}

func TestDecide_UnknownTarget(t *testing.T) {
	r, ledger, _ := newTestResolver("alice")

	_, err := r.Decide(context.Background(), "alice", "ghost", "like")
	if !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if len(ledger.records) != 0 {
		t.Error("failed decision must not change state")
	}
}

func TestDecide_LikeWithoutReciprocal(t *testing.T) {
	r, _, matches := newTestResolver("alice", "bob")

	outcome, err := r.Decide(context.Background(), "alice", "bob", "like")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if outcome.Match {
		t.Error("one-sided like should not match")
	}
	if outcome.Record.Action != ActionLike {
		t.Errorf("unexpected action: %s", outcome.Record.Action)
	}
	if matches.upserts != 0 {
		t.Error("no match record should be created")
	}
}

func TestDecide_MutualLike_EitherOrder(t *testing.T) {
	for _, first := range []string{"alice", "bob"} {
		r, ledger, matches := newTestResolver("alice", "bob")
		second := "bob"
		if first == "bob" {
			second = "alice"
		}
		ctx := context.Background()

		out1, err := r.Decide(ctx, first, second, "like")
		if err != nil {
			t.Fatalf("first Decide: %v", err)
		}
		if out1.Match {
			t.Fatal("first like should not match yet")
		}

		out2, err := r.Decide(ctx, second, first, "like")
		if err != nil {
			t.Fatalf("second Decide: %v", err)
		}
		if !out2.Match {
			t.Fatal("reciprocal like should match")
		}
		if out2.MatchID == "" || out2.Compatibility == nil {
			t.Error("match outcome should carry match id and compatibility")
		}
		if len(matches.records) != 1 {
			t.Errorf("expected exactly one match record, got %d", len(matches.records))
		}

		for _, key := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
			if record := ledger.records[key]; record == nil || !record.IsMatch {
				t.Errorf("swipe record %v should be marked matched", key)
			}
		}
	}
}

func TestDecide_OverwriteBeforeMatch(t *testing.T) {
	r, ledger, _ := newTestResolver("alice", "bob")
	ctx := context.Background()

	if _, err := r.Decide(ctx, "alice", "bob", "like"); err != nil {
		t.Fatalf("Decide like: %v", err)
	}
	outcome, err := r.Decide(ctx, "alice", "bob", "dislike")
	if err != nil {
		t.Fatalf("re-decide should not error: %v", err)
	}
	if outcome.Record.Action != ActionDislike {
		t.Errorf("expected overwritten action, got %s", outcome.Record.Action)
	}
	if len(ledger.records) != 1 {
		t.Errorf("re-decision must not create a second record, got %d", len(ledger.records))
	}
}

func TestDecide_ImmutableAfterMatch(t *testing.T) {
	r, ledger, _ := newTestResolver("alice", "bob")
	ctx := context.Background()

	r.Decide(ctx, "alice", "bob", "like")
	r.Decide(ctx, "bob", "alice", "like")

	outcome, err := r.Decide(ctx, "alice", "bob", "dislike")
	if err != nil {
		t.Fatalf("Decide after match: %v", err)
	}
	if !outcome.Match {
		t.Error("post-match decision should report the existing match")
	}
	if record := ledger.records[[2]string{"alice", "bob"}]; record.Action != ActionLike {
		t.Errorf("matched decision must not be overwritten, got %s", record.Action)
	}
}

func TestDecide_ScorerFailureIsRetryable(t *testing.T) {
	known := map[string]*profile.Profile{
		"alice": {UserID: "alice", Gender: "female", Age: 25},
		"bob":   {UserID: "bob", Gender: "male", Age: 27},
	}
	ledger := newFakeLedger()
	matches := newFakeMatches()
	scorerDown := errors.New("provider warming up")
	r := NewResolver(ledger, matches, &fakeProfiles{known: known},
		&flakyScorer{failures: 1, score: 72, err: scorerDown})
	ctx := context.Background()

	if _, err := r.Decide(ctx, "alice", "bob", "like"); err != nil {
		t.Fatalf("first like: %v", err)
	}

	// Reciprocal like hits the failing scorer. No match state may stick.
	if _, err := r.Decide(ctx, "bob", "alice", "like"); !errors.Is(err, scorerDown) {
		t.Fatalf("expected scorer error, got %v", err)
	}
	for _, key := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		if record := ledger.records[key]; record != nil && record.IsMatch {
			t.Errorf("swipe record %v must not be marked matched after scorer failure", key)
		}
	}
	if matches.upserts != 0 {
		t.Fatalf("no match record should exist after scorer failure, got %d upserts", matches.upserts)
	}

	// Scorer has recovered: the retry completes the formation.
	outcome, err := r.Decide(ctx, "bob", "alice", "like")
	if err != nil {
		t.Fatalf("retry after scorer recovery: %v", err)
	}
	if !outcome.Match || outcome.MatchID == "" || outcome.Compatibility == nil {
		t.Errorf("retry should form a full match, got match=%v id=%q compat=%v",
			outcome.Match, outcome.MatchID, outcome.Compatibility)
	}
	if matches.upserts != 1 {
		t.Errorf("expected one match upsert, got %d", matches.upserts)
	}
}

func TestDecide_CompletesFormationWhenMatchRecordMissing(t *testing.T) {
	r, ledger, matches := newTestResolver("alice", "bob")
	ctx := context.Background()

	// Matched flags with no match row, the residue of a formation that
	// died between writes.
	ledger.records[[2]string{"alice", "bob"}] = &Record{
		SwiperID: "alice", SwipedID: "bob", Action: ActionLike, IsMatch: true,
	}
	ledger.records[[2]string{"bob", "alice"}] = &Record{
		SwiperID: "bob", SwipedID: "alice", Action: ActionLike, IsMatch: true,
	}

	outcome, err := r.Decide(ctx, "alice", "bob", "like")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !outcome.Match || outcome.MatchID == "" || outcome.Compatibility == nil {
		t.Errorf("formation should be completed, got match=%v id=%q compat=%v",
			outcome.Match, outcome.MatchID, outcome.Compatibility)
	}
	if matches.upserts != 1 {
		t.Errorf("expected the missing match record to be upserted, got %d", matches.upserts)
	}

	// A later repeat resolves the now-existing record without re-upserting.
	again, err := r.Decide(ctx, "alice", "bob", "like")
	if err != nil {
		t.Fatalf("repeat Decide: %v", err)
	}
	if again.MatchID != outcome.MatchID {
		t.Errorf("repeat should return the same match id, got %q vs %q", again.MatchID, outcome.MatchID)
	}
	if matches.upserts != 1 {
		t.Errorf("repeat must not upsert again, got %d", matches.upserts)
	}
}

func TestDecide_NopeNormalizesToDislike(t *testing.T) {
	r, _, _ := newTestResolver("alice", "bob")

	outcome, err := r.Decide(context.Background(), "alice", "bob", "nope")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if outcome.Record.Action != ActionDislike {
		t.Errorf("nope should store as dislike, got %s", outcome.Record.Action)
	}
}

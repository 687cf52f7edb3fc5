package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/amoura/dating-app/internal/compat"
	"github.com/amoura/dating-app/internal/profile"
)

// stubScorer returns canned scores per user pair, order independent.
type stubScorer struct {
	scores map[string]int
	err    error
}

func (s *stubScorer) Score(_ context.Context, a, b *profile.Profile) (*compat.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.scores[a.UserID+"|"+b.UserID]; ok {
		return &compat.Result{Score: v}, nil
	}
	if v, ok := s.scores[b.UserID+"|"+a.UserID]; ok {
		return &compat.Result{Score: v}, nil
	}
	return &compat.Result{Score: 0}, nil
}

func entry(session, user string) *Entry {
	return &Entry{SessionID: session, Profile: &profile.Profile{UserID: user}}
}

func TestFindPartner_EmptyQueueEnqueues(t *testing.T) {
	q := NewQueue(&stubScorer{})

	pairing, err := q.FindPartner(context.Background(), entry("s1", "u1"))
	if err != nil {
		t.Fatalf("FindPartner: %v", err)
	}
	if pairing != nil {
		t.Fatalf("expected nil pairing on empty queue, got %+v", pairing)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 waiting, got %d", q.Len())
	}
}

func TestFindPartner_PicksBestAboveThreshold(t *testing.T) {
	scorer := &stubScorer{scores: map[string]int{
		"u3|u1": 40,
		"u3|u2": 70,
	}}
	q := NewQueue(scorer)
	ctx := context.Background()

	q.FindPartner(ctx, entry("s1", "u1"))
	q.FindPartner(ctx, entry("s2", "u2"))

	pairing, err := q.FindPartner(ctx, entry("s3", "u3"))
	if err != nil {
		t.Fatalf("FindPartner: %v", err)
	}
	if pairing == nil {
		t.Fatal("expected a pairing")
	}
	if pairing.SessionB != "s2" {
		t.Errorf("expected best partner s2, got %s", pairing.SessionB)
	}
	if pairing.Score != 70 {
		t.Errorf("expected score 70, got %d", pairing.Score)
	}
	if pairing.Degraded {
		t.Error("scored pairing should not be degraded")
	}

	// The lower scorer stays queued.
	waiting := q.Waiting()
	if len(waiting) != 1 || waiting[0] != "s1" {
		t.Errorf("expected only s1 still waiting, got %v", waiting)
	}
}

func TestFindPartner_BelowThresholdEnqueues(t *testing.T) {
	scorer := &stubScorer{scores: map[string]int{"u2|u1": 30}}
	q := NewQueue(scorer)
	ctx := context.Background()

	q.FindPartner(ctx, entry("s1", "u1"))
	pairing, err := q.FindPartner(ctx, entry("s2", "u2"))
	if err != nil {
		t.Fatalf("FindPartner: %v", err)
	}
	if pairing != nil {
		t.Fatalf("score 30 should not pair, got %+v", pairing)
	}

	waiting := q.Waiting()
	if len(waiting) != 2 || waiting[0] != "s1" || waiting[1] != "s2" {
		t.Errorf("expected FIFO order [s1 s2], got %v", waiting)
	}
}

func TestFindPartner_ExactThresholdPairs(t *testing.T) {
	scorer := &stubScorer{scores: map[string]int{"u2|u1": PairThreshold}}
	q := NewQueue(scorer)
	ctx := context.Background()

	q.FindPartner(ctx, entry("s1", "u1"))
	pairing, _ := q.FindPartner(ctx, entry("s2", "u2"))
	if pairing == nil {
		t.Fatal("score equal to the threshold should pair")
	}
}

func TestFindPartner_RepeatRequestKeepsPosition(t *testing.T) {
	q := NewQueue(&stubScorer{})
	ctx := context.Background()

	q.FindPartner(ctx, entry("s1", "u1"))
	pairing, err := q.FindPartner(ctx, entry("s1", "u1"))
	if err != nil {
		t.Fatalf("FindPartner: %v", err)
	}
	if pairing != nil {
		t.Fatal("re-request while waiting should not pair")
	}
	if q.Len() != 1 {
		t.Fatalf("expected single waiting entry, got %d", q.Len())
	}
}

func TestFindPartner_ScorerFailureDegradesToFIFO(t *testing.T) {
	scorer := &stubScorer{err: errors.New("provider down")}
	q := NewQueue(scorer)
	ctx := context.Background()

	// Two users enqueue (empty queue path never calls the scorer; the
	// second arrival degrades and pops the head).
	q.FindPartner(ctx, entry("s1", "u1"))
	q.FindPartner(ctx, entry("s2", "u2"))

	pairing, err := q.FindPartner(ctx, entry("s3", "u3"))
	if err != nil {
		t.Fatalf("FindPartner: %v", err)
	}
	if pairing == nil {
		t.Fatal("degraded mode should still pair")
	}
	if !pairing.Degraded {
		t.Error("pairing should be flagged degraded")
	}
	if pairing.Score != NominalScore {
		t.Errorf("expected nominal score %d, got %d", NominalScore, pairing.Score)
	}
	if pairing.SessionB != "s1" {
		t.Errorf("FIFO degrade should pop the oldest entry s1, got %s", pairing.SessionB)
	}
}

func TestCancelFind(t *testing.T) {
	q := NewQueue(&stubScorer{})
	ctx := context.Background()

	if q.CancelFind("missing") {
		t.Error("cancelling an absent session should be a no-op")
	}

	q.FindPartner(ctx, entry("s1", "u1"))
	if !q.CancelFind("s1") {
		t.Error("expected cancel to remove the waiting entry")
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestPairingLifecycle(t *testing.T) {
	scorer := &stubScorer{scores: map[string]int{"u2|u1": 80}}
	q := NewQueue(scorer)
	ctx := context.Background()

	q.FindPartner(ctx, entry("s1", "u1"))
	pairing, _ := q.FindPartner(ctx, entry("s2", "u2"))
	if pairing == nil {
		t.Fatal("expected a pairing")
	}

	if got := q.PairingOf("s1"); got != pairing {
		t.Error("PairingOf(s1) should return the pairing")
	}
	if got := pairing.Partner("s1"); got != "s2" {
		t.Errorf("Partner(s1) = %s, want s2", got)
	}
	if got := pairing.Partner("unrelated"); got != "" {
		t.Errorf("Partner of a foreign session should be empty, got %s", got)
	}
	if p := pairing.PartnerProfile("s2"); p == nil || p.UserID != "u1" {
		t.Errorf("PartnerProfile(s2) should be u1's profile, got %+v", p)
	}

	torn := q.Unpair("s2")
	if torn != pairing {
		t.Error("Unpair should return the pairing being removed")
	}
	if q.PairingOf("s1") != nil || q.PairingOf("s2") != nil {
		t.Error("both sides should be unpaired")
	}
	if q.Unpair("s1") != nil {
		t.Error("double unpair should return nil")
	}
}

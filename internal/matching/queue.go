// Package matching implements the live matchmaking queue: an in-memory
// waiting list that pairs arriving users with the best-scoring waiting user
// for short-lived anonymous chat.
package matching

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/amoura/dating-app/internal/compat"
	"github.com/amoura/dating-app/internal/metrics"
	"github.com/amoura/dating-app/internal/profile"
)

const (
	// PairThreshold is the minimum compatibility score for a scored
	// pairing. Fixed; together with the O(n) per-arrival scan this is a
	// documented scalability boundary, not a tunable.
	PairThreshold = 50

	// NominalScore is assigned to degraded FIFO pairings when the scorer
	// is unavailable.
	NominalScore = 50
)

// Entry is one user waiting in the queue: a profile snapshot plus the
// session handle notifications are addressed to. In-memory only.
type Entry struct {
	SessionID string
	Profile   *profile.Profile
	JoinedAt  time.Time
}

// Pairing is a bidirectional association of two previously waiting users.
type Pairing struct {
	SessionA string
	SessionB string
	ProfileA *profile.Profile
	ProfileB *profile.Profile
	Score    int
	Degraded bool // FIFO fallback, score is nominal
	PairedAt time.Time
}

// UserA returns the user id behind SessionA.
func (p *Pairing) UserA() string { return p.ProfileA.UserID }

// UserB returns the user id behind SessionB.
func (p *Pairing) UserB() string { return p.ProfileB.UserID }

// Partner returns the opposite session of the pairing, or "" if the
// session is not part of it.
func (p *Pairing) Partner(sessionID string) string {
	switch sessionID {
	case p.SessionA:
		return p.SessionB
	case p.SessionB:
		return p.SessionA
	}
	return ""
}

// PartnerProfile returns the profile on the opposite side of the pairing,
// or nil if the session is not part of it.
func (p *Pairing) PartnerProfile(sessionID string) *profile.Profile {
	switch sessionID {
	case p.SessionA:
		return p.ProfileB
	case p.SessionB:
		return p.ProfileA
	}
	return nil
}

// Scorer computes pair compatibility for the queue scan.
type Scorer interface {
	Score(ctx context.Context, a, b *profile.Profile) (*compat.Result, error)
}

// Queue owns the waiting list and the pairing table. Both are process-wide
// mutable state shared across sessions; every mutation funnels through one
// mutex so two simultaneous arrivals cannot pair with the same waiting
// entry.
type Queue struct {
	scorer Scorer

	mu      sync.Mutex
	waiting []*Entry
	pairs   map[string]*Pairing // session id -> pairing, both sides keyed
}

// NewQueue creates an empty matchmaking queue over the given scorer.
func NewQueue(scorer Scorer) *Queue {
	return &Queue{
		scorer: scorer,
		pairs:  make(map[string]*Pairing),
	}
}

// FindPartner pairs the arriving entry with the best-scoring waiting user
// at or above PairThreshold, or enqueues it when no waiting user qualifies.
// A nil Pairing means the caller is now waiting.
//
// If the scorer fails the queue degrades to FIFO: the head is popped
// unconditionally and paired at a nominal score; the arrival is enqueued
// only when the queue was already empty.
func (q *Queue) FindPartner(ctx context.Context, entry *Entry) (*Pairing, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if entry.JoinedAt.IsZero() {
		entry.JoinedAt = time.Now()
	}

	// Re-request while already waiting keeps the original position.
	for _, w := range q.waiting {
		if w.SessionID == entry.SessionID {
			return nil, nil
		}
	}

	if len(q.waiting) == 0 {
		q.enqueueLocked(entry)
		return nil, nil
	}

	bestScore := -1
	bestIdx := -1
	degraded := false
	for i, w := range q.waiting {
		result, err := q.scorer.Score(ctx, entry.Profile, w.Profile)
		if err != nil {
			log.Printf("[queue] scorer failed, degrading to FIFO: %v", err)
			degraded = true
			break
		}
		if result.Score > bestScore {
			bestScore = result.Score
			bestIdx = i
		}
	}

	if degraded {
		partner := q.dequeueAtLocked(0)
		pairing := q.pairLocked(entry, partner, NominalScore, true)
		metrics.PairingsTotal.WithLabelValues("fifo").Inc()
		return pairing, nil
	}

	if bestScore >= PairThreshold {
		partner := q.dequeueAtLocked(bestIdx)
		pairing := q.pairLocked(entry, partner, bestScore, false)
		metrics.PairingsTotal.WithLabelValues("scored").Inc()
		return pairing, nil
	}

	q.enqueueLocked(entry)
	return nil, nil
}

// CancelFind removes the session from the waiting list. Returns false if
// the session was not waiting (no-op).
func (q *Queue) CancelFind(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeWaitingLocked(sessionID)
}

// PairingOf returns the pairing the session belongs to, or nil.
func (q *Queue) PairingOf(sessionID string) *Pairing {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pairs[sessionID]
}

// Unpair tears down the session's pairing and returns it, or nil if the
// session was not paired.
func (q *Queue) Unpair(sessionID string) *Pairing {
	q.mu.Lock()
	defer q.mu.Unlock()

	pairing, ok := q.pairs[sessionID]
	if !ok {
		return nil
	}
	delete(q.pairs, pairing.SessionA)
	delete(q.pairs, pairing.SessionB)
	return pairing
}

// Waiting returns a snapshot of the waiting session ids, oldest first.
func (q *Queue) Waiting() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, len(q.waiting))
	for i, w := range q.waiting {
		ids[i] = w.SessionID
	}
	return ids
}

// Len returns the current waiting-list depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

func (q *Queue) enqueueLocked(entry *Entry) {
	q.waiting = append(q.waiting, entry)
	metrics.WaitingQueueSize.Set(float64(len(q.waiting)))
}

func (q *Queue) dequeueAtLocked(idx int) *Entry {
	entry := q.waiting[idx]
	q.waiting = append(q.waiting[:idx], q.waiting[idx+1:]...)
	metrics.WaitingQueueSize.Set(float64(len(q.waiting)))
	return entry
}

func (q *Queue) removeWaitingLocked(sessionID string) bool {
	for i, w := range q.waiting {
		if w.SessionID == sessionID {
			q.dequeueAtLocked(i)
			return true
		}
	}
	return false
}

func (q *Queue) pairLocked(arrival, partner *Entry, score int, degraded bool) *Pairing {
	pairing := &Pairing{
		SessionA: arrival.SessionID,
		SessionB: partner.SessionID,
		ProfileA: arrival.Profile,
		ProfileB: partner.Profile,
		Score:    score,
		Degraded: degraded,
		PairedAt: time.Now(),
	}
	q.pairs[pairing.SessionA] = pairing
	q.pairs[pairing.SessionB] = pairing
	return pairing
}

package matching

import (
	"context"
	"log"
	"time"

	"github.com/amoura/dating-app/internal/match"
	"github.com/amoura/dating-app/internal/session"
)

const cleanupInterval = 5 * time.Second

// StartCleanup runs the background loops that drop waiting entries whose
// sessions vanished from Redis and flip persisted matches past their TTL
// to expired.
func StartCleanup(ctx context.Context, queue *Queue, sessions *session.Store, matches *match.Store) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[matcher] cleanup loop stopped")
			return
		case <-ticker.C:
			cleanStaleEntries(ctx, queue, sessions)
			expireMatches(ctx, matches)
		}
	}
}

// cleanStaleEntries removes waiting users whose session keys expired or
// were deleted.
func cleanStaleEntries(ctx context.Context, queue *Queue, sessions *session.Store) {
	removed := 0
	for _, sid := range queue.Waiting() {
		exists, err := sessions.Exists(ctx, sid)
		if err != nil {
			continue
		}
		if !exists && queue.CancelFind(sid) {
			removed++
		}
	}

	if removed > 0 {
		log.Printf("[matcher] cleanup: removed %d stale entries", removed)
	}
}

func expireMatches(ctx context.Context, matches *match.Store) {
	n, err := matches.ExpireDue(ctx)
	if err != nil {
		log.Printf("[matcher] expire matches: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[matcher] expired %d matches", n)
	}
}

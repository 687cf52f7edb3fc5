package matching

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/amoura/dating-app/internal/messaging"
	"github.com/amoura/dating-app/internal/profile"
)

// PartnerFound is the payload published via NATS when the queue pairs two
// users. Each side receives it on its partner.found.<session_id> subject
// with the opposite user's profile snapshot.
type PartnerFound struct {
	PartnerSession string           `json:"partner_session"`
	Partner        *profile.Profile `json:"partner"`
	Score          int              `json:"score"`
	Degraded       bool             `json:"degraded,omitempty"`
}

// PartnerLeft is sent on partner.left.<session_id> when the other side of a
// live pairing disconnects or cancels.
type PartnerLeft struct {
	Reason string `json:"reason"` // "disconnected" or "cancelled"
}

// PublishPartnerFound notifies both sides of a fresh pairing.
func PublishPartnerFound(nc *messaging.Client, pairing *Pairing) error {
	msgA := PartnerFound{
		PartnerSession: pairing.SessionB,
		Partner:        pairing.ProfileB,
		Score:          pairing.Score,
		Degraded:       pairing.Degraded,
	}
	dataA, err := json.Marshal(msgA)
	if err != nil {
		return fmt.Errorf("matching: marshal partner found for A: %w", err)
	}
	if err := nc.PublishPartnerFound(pairing.SessionA, dataA); err != nil {
		return fmt.Errorf("matching: publish partner.found for %s: %w", pairing.SessionA, err)
	}

	msgB := PartnerFound{
		PartnerSession: pairing.SessionA,
		Partner:        pairing.ProfileA,
		Score:          pairing.Score,
		Degraded:       pairing.Degraded,
	}
	dataB, err := json.Marshal(msgB)
	if err != nil {
		return fmt.Errorf("matching: marshal partner found for B: %w", err)
	}
	if err := nc.PublishPartnerFound(pairing.SessionB, dataB); err != nil {
		return fmt.Errorf("matching: publish partner.found for %s: %w", pairing.SessionB, err)
	}

	log.Printf("[matcher] pairing published: a=%s b=%s score=%d degraded=%v",
		pairing.SessionA, pairing.SessionB, pairing.Score, pairing.Degraded)
	return nil
}

// PublishPartnerLeft notifies one session that its partner is gone.
func PublishPartnerLeft(nc *messaging.Client, sessionID, reason string) error {
	data, err := json.Marshal(PartnerLeft{Reason: reason})
	if err != nil {
		return fmt.Errorf("matching: marshal partner left: %w", err)
	}
	if err := nc.PublishPartnerLeft(sessionID, data); err != nil {
		return fmt.Errorf("matching: publish partner.left for %s: %w", sessionID, err)
	}
	return nil
}

package matching

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/amoura/dating-app/internal/match"
	"github.com/amoura/dating-app/internal/messaging"
	"github.com/amoura/dating-app/internal/profile"
	"github.com/amoura/dating-app/internal/session"
)

// PairRequest is the NATS payload sent by the gateway when a user asks for
// a live partner.
type PairRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// CancelRequest is the NATS payload sent by the gateway when a user stops
// searching.
type CancelRequest struct {
	SessionID string `json:"session_id"`
}

// DisconnectRequest is the NATS payload sent by the gateway when a session
// drops, searching or paired.
type DisconnectRequest struct {
	SessionID string `json:"session_id"`
}

// Service is the background matchmaking service. It consumes pair requests
// from the gateway over NATS, drives the in-memory queue, and publishes
// partner events back to the sessions involved.
type Service struct {
	queue    *Queue
	nats     *messaging.Client
	sessions *session.Store
	profiles *profile.Store
	matches  *match.Store
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewService wires a matchmaking service over the given queue and stores.
func NewService(queue *Queue, nc *messaging.Client, sessions *session.Store, profiles *profile.Store, matches *match.Store) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		queue:    queue,
		nats:     nc,
		sessions: sessions,
		profiles: profiles,
		matches:  matches,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the pair.* subjects and launches the cleanup loop.
func (s *Service) Start() error {
	if err := s.nats.SubscribePairRequest(s.handlePairRequest); err != nil {
		return err
	}
	if err := s.nats.SubscribePairCancel(s.handleCancelRequest); err != nil {
		return err
	}
	if err := s.nats.SubscribePairDisconnect(s.handleDisconnect); err != nil {
		return err
	}

	go StartCleanup(s.ctx, s.queue, s.sessions, s.matches)

	log.Println("[matcher] service started")
	return nil
}

// Stop shuts the service down.
func (s *Service) Stop() {
	s.cancel()
	log.Println("[matcher] service stopped")
}

func (s *Service) handlePairRequest(data []byte) {
	var req PairRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[matcher] invalid pair request: %v", err)
		return
	}

	p, err := s.profiles.Get(s.ctx, req.UserID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			log.Printf("[matcher] pair request for unknown user %s", req.UserID)
		} else {
			log.Printf("[matcher] load profile %s: %v", req.UserID, err)
		}
		return
	}

	pairing, err := s.queue.FindPartner(s.ctx, &Entry{
		SessionID: req.SessionID,
		Profile:   p,
		JoinedAt:  time.Now(),
	})
	if err != nil {
		log.Printf("[matcher] find partner for %s: %v", req.SessionID, err)
		return
	}

	if pairing == nil {
		if err := s.sessions.UpdateStatus(s.ctx, req.SessionID, session.StatusSearching); err != nil {
			log.Printf("[matcher] mark %s searching: %v", req.SessionID, err)
		}
		log.Printf("[matcher] %s waiting (queue depth: %d)", req.SessionID, s.queue.Len())
		return
	}

	if err := s.sessions.SetPartner(s.ctx, pairing.SessionA, pairing.SessionB); err != nil {
		log.Printf("[matcher] set partner for %s: %v", pairing.SessionA, err)
	}
	if err := s.sessions.SetPartner(s.ctx, pairing.SessionB, pairing.SessionA); err != nil {
		log.Printf("[matcher] set partner for %s: %v", pairing.SessionB, err)
	}

	if err := PublishPartnerFound(s.nats, pairing); err != nil {
		log.Printf("[matcher] %v", err)
	}
}

func (s *Service) handleCancelRequest(data []byte) {
	var req CancelRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[matcher] invalid cancel request: %v", err)
		return
	}

	if !s.queue.CancelFind(req.SessionID) {
		// Not waiting; nothing to undo.
		return
	}
	if err := s.sessions.UpdateStatus(s.ctx, req.SessionID, session.StatusIdle); err != nil {
		log.Printf("[matcher] mark %s idle: %v", req.SessionID, err)
	}
	log.Printf("[matcher] %s cancelled search", req.SessionID)
}

// handleDisconnect removes a dropped session from the queue and, when it was
// paired, tears the pairing down and tells the other side. A pairing backed
// by an active persisted match is left standing so the pair can reconnect
// through the match while it lives.
func (s *Service) handleDisconnect(data []byte) {
	var req DisconnectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[matcher] invalid disconnect: %v", err)
		return
	}

	s.queue.CancelFind(req.SessionID)

	pairing := s.queue.PairingOf(req.SessionID)
	if pairing == nil {
		return
	}

	active, err := s.matches.HasActive(s.ctx, pairing.UserA(), pairing.UserB())
	if err != nil {
		log.Printf("[matcher] check active match: %v", err)
	}
	if active {
		log.Printf("[matcher] %s dropped but pair has an active match, keeping pairing", req.SessionID)
		return
	}

	s.queue.Unpair(req.SessionID)
	partner := pairing.Partner(req.SessionID)
	if err := s.sessions.ClearPartner(s.ctx, partner); err != nil {
		log.Printf("[matcher] clear partner for %s: %v", partner, err)
	}
	if err := PublishPartnerLeft(s.nats, partner, "disconnected"); err != nil {
		log.Printf("[matcher] %v", err)
	}
	log.Printf("[matcher] %s disconnected, partner %s notified", req.SessionID, partner)
}

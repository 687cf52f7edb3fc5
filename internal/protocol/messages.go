// Package protocol defines the WebSocket message types and structures used for
// communication between the client and the gateway. All messages are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeIdentify    = "identify"
	TypeGetDeck     = "get_deck"
	TypeSwipe       = "swipe"
	TypeFindPartner = "find_partner"
	TypeCancelFind  = "cancel_find"
	TypePing        = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated  = "session_created"
	TypeIdentified      = "identified"
	TypeDeck            = "deck"
	TypeSwipeResult     = "swipe_result"
	TypeSearchStarted   = "search_started"
	TypeSearchCancelled = "search_cancelled"
	TypePartnerFound    = "partner_found"
	TypePartnerLeft     = "partner_left"
	TypeError           = "error"
	TypePong            = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// IdentifyMsg binds the session to a registered user id. Every other
// operation requires it first.
type IdentifyMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// GetDeckMsg requests a ranked deck of swipe candidates. All filters are
// optional.
type GetDeckMsg struct {
	Type          string  `json:"type"`
	Limit         int     `json:"limit,omitempty"`
	AgeMin        int     `json:"age_min,omitempty"`
	AgeMax        int     `json:"age_max,omitempty"`
	MaxDistanceKm float64 `json:"max_distance_km,omitempty"`
}

// SwipeMsg records a like or dislike on another user.
type SwipeMsg struct {
	Type     string `json:"type"`
	TargetID string `json:"target_id"`
	Action   string `json:"action"`
}

// FindPartnerMsg enters the live matchmaking queue.
type FindPartnerMsg struct {
	Type string `json:"type"`
}

// CancelFindMsg leaves the live matchmaking queue.
type CancelFindMsg struct {
	Type string `json:"type"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent by the server when a new session is established.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// IdentifiedMsg confirms the session is bound to a user.
type IdentifiedMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// DeckMsg carries a ranked candidate deck back to the client. Entries is
// raw JSON produced by the deck builder.
type DeckMsg struct {
	Type    string          `json:"type"`
	Entries json.RawMessage `json:"entries"`
	Total   int             `json:"total"`
}

// SwipeResultMsg reports the outcome of a swipe, including whether it
// completed a mutual match.
type SwipeResultMsg struct {
	Type          string          `json:"type"`
	TargetID      string          `json:"target_id"`
	Action        string          `json:"action"`
	Match         bool            `json:"match"`
	MatchID       string          `json:"match_id,omitempty"`
	Compatibility json.RawMessage `json:"compatibility,omitempty"`
}

// SearchStartedMsg confirms the client is waiting in the matchmaking queue.
type SearchStartedMsg struct {
	Type string `json:"type"`
}

// SearchCancelledMsg confirms the client left the matchmaking queue.
type SearchCancelledMsg struct {
	Type string `json:"type"`
}

// PartnerFoundMsg is sent when the queue pairs the session with a partner.
// Partner is the partner's profile as raw JSON.
type PartnerFoundMsg struct {
	Type     string          `json:"type"`
	Partner  json.RawMessage `json:"partner"`
	Score    int             `json:"score"`
	Degraded bool            `json:"degraded,omitempty"`
}

// PartnerLeftMsg is sent when the live partner disconnects or cancels.
type PartnerLeftMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeIdentify:
		var m IdentifyMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGetDeck:
		var m GetDeckMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSwipe:
		var m SwipeMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFindPartner:
		var m FindPartnerMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCancelFind:
		var m CancelFindMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

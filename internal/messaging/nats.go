// Package messaging provides a NATS client wrapper for pub/sub messaging
// between the gateway and the matchmaker. It handles connection lifecycle,
// subject-based subscriptions, and convenience methods for the pairing
// channels.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used across Amoura services.
const (
	SubjectPairRequest    = "pair.request"
	SubjectPairCancel     = "pair.cancel"
	SubjectPairDisconnect = "pair.disconnect"
	SubjectPartnerFound   = "partner.found" // + .<session_id>
	SubjectPartnerLeft    = "partner.left"  // + .<session_id>
)

// Client wraps the NATS connection with helper methods for pub/sub.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "amoura",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// PublishPairRequest publishes a pairing request from the gateway.
func (c *Client) PublishPairRequest(data []byte) error {
	return c.Publish(SubjectPairRequest, data)
}

// PublishPairCancel publishes a pairing cancellation.
func (c *Client) PublishPairCancel(data []byte) error {
	return c.Publish(SubjectPairCancel, data)
}

// PublishPairDisconnect publishes a session disconnect notice.
func (c *Client) PublishPairDisconnect(data []byte) error {
	return c.Publish(SubjectPairDisconnect, data)
}

// SubscribePairRequest subscribes to pairing requests from gateways.
func (c *Client) SubscribePairRequest(handler func(data []byte)) error {
	return c.Subscribe(SubjectPairRequest, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// SubscribePairCancel subscribes to pairing cancellations from gateways.
func (c *Client) SubscribePairCancel(handler func(data []byte)) error {
	return c.Subscribe(SubjectPairCancel, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// SubscribePairDisconnect subscribes to session disconnect notices.
func (c *Client) SubscribePairDisconnect(handler func(data []byte)) error {
	return c.Subscribe(SubjectPairDisconnect, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishPartnerFound publishes a pairing result to a specific session.
func (c *Client) PublishPartnerFound(sessionID string, data []byte) error {
	return c.Publish(SubjectPartnerFound+"."+sessionID, data)
}

// SubscribePartnerFound subscribes to pairing results for a session.
func (c *Client) SubscribePartnerFound(sessionID string, handler func(data []byte)) error {
	subject := SubjectPartnerFound + "." + sessionID
	return c.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribePartnerFound unsubscribes from pairing results for a session.
func (c *Client) UnsubscribePartnerFound(sessionID string) error {
	return c.unsubscribe(SubjectPartnerFound + "." + sessionID)
}

// PublishPartnerLeft notifies a session that its partner abandoned the
// pairing.
func (c *Client) PublishPartnerLeft(sessionID string, data []byte) error {
	return c.Publish(SubjectPartnerLeft+"."+sessionID, data)
}

// SubscribePartnerLeft subscribes to partner-abandonment notices for a
// session.
func (c *Client) SubscribePartnerLeft(sessionID string, handler func(data []byte)) error {
	subject := SubjectPartnerLeft + "." + sessionID
	return c.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribePartnerLeft unsubscribes from partner-abandonment notices.
func (c *Client) UnsubscribePartnerLeft(sessionID string) error {
	return c.unsubscribe(SubjectPartnerLeft + "." + sessionID)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes from a specific subject.
func (c *Client) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}

// Package messaging provides a NATS client wrapper for publishing moderation
// decision events. Every fused decision goes out on a subject so downstream
// consumers (audit tooling, dashboards) can follow the decision stream
// without coupling to the request path.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/whisper/moderation-api/internal/moderation"
)

// NATS subjects for the moderation decision stream.
const (
	// SubjectDecision carries every fused decision.
	SubjectDecision = "moderation.decision"

	// SubjectBlocked additionally carries the blocked subset, so alerting
	// consumers don't have to filter the full stream.
	SubjectBlocked = "moderation.blocked"
)

// NATSClient wraps the NATS connection with helper methods for the decision
// stream.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "moderation-api",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
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

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// PublishDecision publishes a decision record to the full decision stream.
func (c *NATSClient) PublishDecision(data []byte) error {
	return c.conn.Publish(SubjectDecision, data)
}

// PublishBlocked publishes a decision record to the blocked-only stream.
func (c *NATSClient) PublishBlocked(data []byte) error {
	return c.conn.Publish(SubjectBlocked, data)
}

// SubscribeDecisions registers a handler for the full decision stream. Used
// by downstream consumers and tests.
func (c *NATSClient) SubscribeDecisions(handler func(data []byte)) error {
	return c.subscribe(SubjectDecision, handler)
}

// SubscribeBlocked registers a handler for the blocked-only stream.
func (c *NATSClient) SubscribeBlocked(handler func(data []byte)) error {
	return c.subscribe(SubjectBlocked, handler)
}

// subscribe registers a handler and stores the subscription for later drain.
func (c *NATSClient) subscribe(subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
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

// DecisionPublisher adapts the NATS client to the decision-sink contract of
// the server: it marshals each record and publishes it best-effort.
type DecisionPublisher struct {
	client *NATSClient
}

// NewDecisionPublisher returns a publisher over an established client.
func NewDecisionPublisher(client *NATSClient) *DecisionPublisher {
	return &DecisionPublisher{client: client}
}

// Record publishes rec to the decision stream (and the blocked stream when
// applicable). The context is accepted for interface symmetry; NATS publishes
// are fire-and-forget.
func (p *DecisionPublisher) Record(_ context.Context, rec moderation.DecisionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("messaging: marshal decision: %w", err)
	}
	if err := p.client.PublishDecision(data); err != nil {
		return fmt.Errorf("messaging: publish decision: %w", err)
	}
	if rec.Decision.Blocked {
		if err := p.client.PublishBlocked(data); err != nil {
			return fmt.Errorf("messaging: publish blocked: %w", err)
		}
	}
	return nil
}

// Package natsbus implements the parking gate transport on a NATS server, for
// sites that run NATS instead of an MQTT broker.
package natsbus

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sweeney/parking-gate/internal/bus"
	"github.com/sweeney/parking-gate/internal/logic"
)

// reconnectBufSize bounds what nats.go holds while disconnected.
const reconnectBufSize = 1 << 20

// Client is both the sensor reading source and the output publisher on one
// NATS connection.
type Client struct {
	conn   *nats.Conn
	topics bus.Topics
	now    func() time.Time

	mu      sync.Mutex
	handler bus.Handler
	subs    []*nats.Subscription
}

// Compile-time checks.
var (
	_ bus.Source           = (*Client)(nil)
	_ bus.Publisher        = (*Client)(nil)
	_ bus.ConnectionStatus = (*Client)(nil)
)

// NewClient connects to url with automatic reconnection. Subjects are taken
// from topics.
func NewClient(url, name string, topics bus.Topics) (*Client, error) {
	c := &Client{topics: topics, now: time.Now}

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.ReconnectBufSize(reconnectBufSize),
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(func(*nats.Conn) { c.notify(true) }),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
			c.notify(false)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			log.Printf("nats: reconnected")
			c.notify(true)
			c.PublishSystem(bus.SystemEvent{Timestamp: c.now(), Event: "RECONNECTED"})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	c.conn = nc
	return c, nil
}

func (c *Client) notify(connected bool) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h.HandleConnection(connected, c.now())
	}
}

// Subscribe registers h for both lanes' distance subjects. NATS restores
// subscriptions on reconnect by itself.
func (c *Client) Subscribe(h bus.Handler) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()

	// Report the connection before the first reading can be delivered.
	connected := c.conn.IsConnected()
	if connected {
		h.HandleConnection(true, c.now())
	}

	for _, lane := range logic.Lanes {
		lane := lane
		sub, err := c.conn.Subscribe(c.topics.DistanceTopic(lane), func(msg *nats.Msg) {
			c.deliver(lane, msg.Data)
		})
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", c.topics.DistanceTopic(lane), err)
		}
		c.mu.Lock()
		c.subs = append(c.subs, sub)
		c.mu.Unlock()
	}

	if connected {
		// Flush ensures the subscriptions are registered on the server.
		if err := c.conn.Flush(); err != nil {
			return fmt.Errorf("flushing subscription: %w", err)
		}
	}
	return nil
}

func (c *Client) deliver(lane logic.Lane, data []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h.HandleDistance(lane, data, c.now())
	}
}

// IsConnected reports whether the NATS connection is up.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// PublishGate publishes a lane's actuation signal. NATS has no retained
// messages; consumers that need the current state read /index.json.
func (c *Client) PublishGate(lane logic.Lane, open bool, at time.Time) error {
	msg, err := c.topics.GateMessage(lane, open, at)
	if err != nil {
		return err
	}
	return c.publish(msg)
}

// PublishEvent publishes a vehicle event and the counter.
func (c *Client) PublishEvent(event logic.Event) error {
	msgs, err := c.topics.EventMessages(event)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := c.publish(msg); err != nil {
			return err
		}
	}
	return nil
}

// PublishSystem publishes a system lifecycle event.
func (c *Client) PublishSystem(event bus.SystemEvent) error {
	msg, err := c.topics.SystemMessage(event)
	if err != nil {
		return err
	}
	return c.publish(msg)
}

func (c *Client) publish(msg bus.Message) error {
	if err := c.conn.Publish(msg.Topic, msg.Payload); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Close unsubscribes and drains the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

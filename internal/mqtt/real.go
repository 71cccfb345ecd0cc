// Package mqtt implements the parking gate transport on an MQTT broker using
// the Eclipse Paho client.
package mqtt

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/parking-gate/internal/bus"
	"github.com/sweeney/parking-gate/internal/logic"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	defaultBufferSize = 256
)

// Options configures a Client.
type Options struct {
	Broker     string
	ClientID   string
	Topics     bus.Topics
	BufferSize int // messages held while disconnected (0 = default)
}

// Client is both the sensor reading source and the output publisher on one
// broker connection.
type Client struct {
	client paho.Client
	topics bus.Topics
	now    func() time.Time

	connected atomic.Bool
	everUp    atomic.Bool

	mu      sync.Mutex
	handler bus.Handler
	buf     *ringBuffer
}

// Compile-time checks.
var (
	_ bus.Source           = (*Client)(nil)
	_ bus.Publisher        = (*Client)(nil)
	_ bus.ConnectionStatus = (*Client)(nil)
)

// NewClient creates a client and starts connecting. If the broker is not
// reachable within the connect timeout the client keeps retrying in the
// background; the controller stays degraded until the first connect.
func NewClient(opts Options) (*Client, error) {
	c := newClient(opts)

	will, err := bus.FormatSystemPayload(bus.SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(true).
		SetWill(c.topics.System, string(will), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", opts.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func newClient(opts Options) *Client {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Client{
		topics: opts.Topics,
		now:    time.Now,
		buf:    newRingBuffer(size),
	}
}

// Subscribe registers the handler for both lanes' distance topics.
func (c *Client) Subscribe(h bus.Handler) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()

	if !c.IsConnected() {
		// onConnect subscribes once the broker is reachable.
		return nil
	}
	return c.subscribe()
}

func (c *Client) subscribe() error {
	filters := map[string]byte{
		c.topics.EntryDistance: 0,
		c.topics.ExitDistance:  0,
	}
	token := c.client.SubscribeMultiple(filters, c.onMessage)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (c *Client) onMessage(_ paho.Client, msg paho.Message) {
	lane, ok := c.topics.LaneFor(msg.Topic())
	if !ok {
		return
	}
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h.HandleDistance(lane, msg.Payload(), c.now())
	}
}

func (c *Client) onConnect(_ paho.Client) {
	c.connected.Store(true)
	reconnect := c.everUp.Swap(true)
	log.Printf("mqtt: connected (reconnect=%v)", reconnect)

	c.mu.Lock()
	h := c.handler
	pending := c.buf.drainAll()
	c.mu.Unlock()

	if h != nil {
		// Report the connection before any reading can arrive on the new
		// subscription, so none of them is seen as degraded.
		h.HandleConnection(true, c.now())

		// Clean sessions drop subscriptions, so resubscribe on every connect.
		if err := c.subscribe(); err != nil {
			log.Printf("mqtt: resubscribe failed: %v", err)
		}
	}

	if reconnect {
		if msg, err := c.topics.SystemMessage(bus.SystemEvent{Timestamp: c.now(), Event: "RECONNECTED"}); err == nil {
			pending = append(pending, msg)
		}
	}
	if len(pending) > 0 {
		log.Printf("mqtt: replaying %d buffered messages", len(pending))
	}
	for _, msg := range pending {
		if err := c.send(msg); err != nil {
			log.Printf("mqtt: replay to %s failed: %v", msg.Topic, err)
		}
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.connected.Store(false)
	log.Printf("mqtt: connection lost: %v", err)

	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h.HandleConnection(false, c.now())
	}
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// PublishGate publishes a lane's actuation signal.
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

// publish sends msg, or buffers it for replay if the broker is down.
func (c *Client) publish(msg bus.Message) error {
	if !c.IsConnected() {
		c.mu.Lock()
		c.buf.push(msg)
		c.mu.Unlock()
		return nil
	}
	return c.send(msg)
}

func (c *Client) send(msg bus.Message) error {
	token := c.client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Buffered returns the number of messages waiting for a reconnect.
func (c *Client) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.len()
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	if c.client != nil {
		c.client.Disconnect(1000) // 1 second timeout
	}
	return nil
}

// Package bus defines the message transport contracts for the parking gate:
// sensor ingestion, gate actuation output, vehicle events, and system events.
// Transports (MQTT, NATS) implement Source and Publisher; tests use FakeBus.
package bus

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/parking-gate/internal/logic"
)

// ErrMalformedPayload is returned by ParseDistance for anything that is not a
// non-negative decimal integer.
var ErrMalformedPayload = errors.New("malformed distance payload")

// Handler receives transport callbacks. Implementations must be safe to call
// from transport goroutines.
type Handler interface {
	// HandleDistance is called for every message on a lane's distance channel.
	HandleDistance(lane logic.Lane, payload []byte, at time.Time)

	// HandleConnection is called on every connect and connection loss.
	HandleConnection(connected bool, at time.Time)
}

// Source delivers sensor readings.
type Source interface {
	// Subscribe registers h for both distance channels. Subscriptions are
	// re-established by the transport after a reconnect.
	Subscribe(h Handler) error

	// Close disconnects from the broker.
	Close() error
}

// Publisher publishes controller output.
type Publisher interface {
	// PublishGate sends a lane's actuation signal (retained).
	PublishGate(lane logic.Lane, open bool, at time.Time) error

	// PublishEvent sends a vehicle event and the updated occupancy counter.
	PublishEvent(event logic.Event) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the broker connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// ParseDistance decodes a distance payload in centimetres. Surrounding
// whitespace is tolerated.
func ParseDistance(payload []byte) (int, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, ErrMalformedPayload
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, ErrMalformedPayload
	}
	return n, nil
}

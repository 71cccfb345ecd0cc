package bus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sweeney/parking-gate/internal/logic"
)

// Gate states as published.
const (
	GateOpen   = "OPEN"
	GateClosed = "CLOSED"
)

// Message is a fully encoded outgoing message.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// GatePayload represents the actuation message payload.
type GatePayload struct {
	Gate GateInner `json:"gate"`
}

// GateInner contains the gate state details.
type GateInner struct {
	Lane      string `json:"lane"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

// EventPayload represents the vehicle event payload.
type EventPayload struct {
	Vehicle VehicleInner `json:"vehicle"`
}

// VehicleInner contains the vehicle event details.
type VehicleInner struct {
	Event        string `json:"event"`
	Lane         string `json:"lane"`
	Timestamp    string `json:"timestamp"`
	Occupancy    int    `json:"occupancy"`
	Capacity     int    `json:"capacity"`
	EntriesToday int    `json:"entries_today"`
	ExitsToday   int    `json:"exits_today"`
}

// SystemPayload represents the payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// GateState returns the published string for an actuation signal.
func GateState(open bool) string {
	if open {
		return GateOpen
	}
	return GateClosed
}

// FormatGatePayload creates the JSON payload for a gate actuation.
func FormatGatePayload(lane logic.Lane, open bool, at time.Time) ([]byte, error) {
	return json.Marshal(GatePayload{
		Gate: GateInner{
			Lane:      string(lane),
			State:     GateState(open),
			Timestamp: at.UTC().Format(time.RFC3339),
		},
	})
}

// FormatEventPayload creates the JSON payload for a vehicle event.
func FormatEventPayload(event logic.Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		Vehicle: VehicleInner{
			Event:        string(event.Type),
			Lane:         string(event.Lane),
			Timestamp:    event.Timestamp.UTC().Format(time.RFC3339),
			Occupancy:    event.Occupancy,
			Capacity:     event.Capacity,
			EntriesToday: event.EntriesToday,
			ExitsToday:   event.ExitsToday,
		},
	})
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// GateMessage encodes a retained actuation message.
// QoS 1: a lost gate update leaves the hardware side stale.
func (t Topics) GateMessage(lane logic.Lane, open bool, at time.Time) (Message, error) {
	payload, err := FormatGatePayload(lane, open, at)
	if err != nil {
		return Message{}, fmt.Errorf("format gate payload: %w", err)
	}
	return Message{Topic: t.GateTopic(lane), Payload: payload, QoS: 1, Retained: true}, nil
}

// EventMessages encodes a vehicle event followed by the retained counter.
func (t Topics) EventMessages(event logic.Event) ([]Message, error) {
	payload, err := FormatEventPayload(event)
	if err != nil {
		return nil, fmt.Errorf("format event payload: %w", err)
	}
	return []Message{
		{Topic: t.Events, Payload: payload, QoS: 1},
		{Topic: t.Counter, Payload: []byte(strconv.Itoa(event.Occupancy)), QoS: 1, Retained: true},
	}, nil
}

// SystemMessage encodes a system event.
func (t Topics) SystemMessage(event SystemEvent) (Message, error) {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return Message{}, fmt.Errorf("format system payload: %w", err)
	}
	return Message{Topic: t.System, Payload: payload, QoS: 1, Retained: event.Retained}, nil
}

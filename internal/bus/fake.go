package bus

import (
	"sync"
	"time"

	"github.com/sweeney/parking-gate/internal/logic"
)

// GateUpdate is a recorded PublishGate call.
type GateUpdate struct {
	Lane logic.Lane
	Open bool
	At   time.Time
}

// FakeBus is a test double implementing Source, Publisher and ConnectionStatus.
// Tests drive ingestion with Emit and SetConnected and assert on the recorded
// output.
type FakeBus struct {
	mu      sync.Mutex
	handler Handler

	// Gates contains all actuation signals that were published.
	Gates []GateUpdate

	// Events contains all vehicle events that were published.
	Events []logic.Event

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishGate and PublishEvent.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakeBus creates a connected FakeBus.
func NewFakeBus() *FakeBus {
	return &FakeBus{Connected: true}
}

// Subscribe records the handler.
func (f *FakeBus) Subscribe(h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.handler = h
	return nil
}

// Emit delivers a raw distance payload to the subscribed handler.
func (f *FakeBus) Emit(lane logic.Lane, payload string, at time.Time) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.HandleDistance(lane, []byte(payload), at)
	}
}

// SetConnected changes the connection state and notifies the handler.
func (f *FakeBus) SetConnected(connected bool, at time.Time) {
	f.mu.Lock()
	f.Connected = connected
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.HandleConnection(connected, at)
	}
}

// PublishGate records the actuation signal.
func (f *FakeBus) PublishGate(lane logic.Lane, open bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Gates = append(f.Gates, GateUpdate{Lane: lane, Open: open, At: at})
	return nil
}

// PublishEvent records the vehicle event.
func (f *FakeBus) PublishEvent(event logic.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Events = append(f.Events, event)
	return nil
}

// PublishSystem records the system event.
func (f *FakeBus) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the bus as closed.
func (f *FakeBus) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake bus is "connected".
func (f *FakeBus) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// GateHistory returns a copy of the published actuation signals.
func (f *FakeBus) GateHistory() []GateUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GateUpdate(nil), f.Gates...)
}

// EventHistory returns a copy of the published vehicle events.
func (f *FakeBus) EventHistory() []logic.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Event(nil), f.Events...)
}

// Reset clears recorded output.
func (f *FakeBus) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gates = nil
	f.Events = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
}

// Package status provides a thread-safe status tracker for the parking gate daemon.
// It is read by the HTTP handlers and used to build system event payloads.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/parking-gate/internal/logic"
)

// NetworkInfo contains network state as reported by the host's helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	ThresholdCm int
	Capacity    int
	Timezone    string
	HeartbeatMs int64
	Transport   string // "mqtt" or "nats"
	Broker      string
	TopicPrefix string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	State      logic.State
	Ready      bool // at least one reading processed
	Malformed  int  // payloads rejected before reaching the controller
	Dropped    int  // readings discarded because the loop queue was full
	InstanceID string
	StartTime  time.Time
	Now        time.Time
	Network    *NetworkInfo
	Config     Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time, instance id and config.
func NewTracker(startTime time.Time, instanceID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:  startTime,
			InstanceID: instanceID,
			Config:     cfg,
		},
		now: time.Now,
	}
}

// Update replaces the controller state.
// Called from runLoop after every processed reading and on each tick.
func (t *Tracker) Update(state logic.State) {
	t.mu.Lock()
	t.snap.State = state
	if state.Entry.HasReading || state.Exit.HasReading {
		t.snap.Ready = true
	}
	t.mu.Unlock()
}

// AddMalformed counts a rejected payload.
func (t *Tracker) AddMalformed() {
	t.mu.Lock()
	t.snap.Malformed++
	t.mu.Unlock()
}

// AddDropped counts a reading discarded at ingress.
func (t *Tracker) AddDropped() {
	t.mu.Lock()
	t.snap.Dropped++
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}

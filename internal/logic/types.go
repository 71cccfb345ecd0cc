// Package logic contains the pure business logic of the parking gate controller.
// This package has NO external dependencies (no MQTT, GPIO, database, or time.Sleep).
// Time is always injectable via time.Time parameters; durable storage is reached
// only through the Persister interface.
package logic

import "time"

// Lane identifies one of the two sensor/gate pairs.
type Lane string

const (
	LaneEntry Lane = "entry"
	LaneExit  Lane = "exit"
)

// Lanes lists every lane in processing order.
var Lanes = []Lane{LaneEntry, LaneExit}

// Valid reports whether l is a known lane.
func (l Lane) Valid() bool {
	return l == LaneEntry || l == LaneExit
}

// Default configuration values.
const (
	DefaultThresholdCm = 20
	DefaultCapacity    = 20
)

// SensorReading is a single decoded distance measurement for a lane.
type SensorReading struct {
	Lane       Lane
	DistanceCm int
	ObservedAt time.Time
}

// EventType represents a counted vehicle movement.
type EventType string

const (
	EventVehicleEntered EventType = "VEHICLE_ENTERED"
	EventVehicleExited  EventType = "VEHICLE_EXITED"
)

// Event is emitted when a rising edge results in a committed count change.
type Event struct {
	Timestamp    time.Time
	Type         EventType
	Lane         Lane
	Occupancy    int
	Capacity     int
	EntriesToday int
	ExitsToday   int
}

// Occupancy is a point-in-time view of the ledger.
type Occupancy struct {
	Count       int
	Capacity    int
	LastEntryAt time.Time // zero if no vehicle has entered yet
}

// Available returns the number of free spaces.
func (o Occupancy) Available() int {
	return o.Capacity - o.Count
}

// DailyStats holds entry/exit totals for one calendar date.
type DailyStats struct {
	Date    string // YYYY-MM-DD in the controller's time zone
	Entries int
	Exits   int
}

// Counters tracks controller activity since startup.
type Counters struct {
	Admitted        int
	Released        int
	GuardNoOps      int // admit/release refused by the capacity/occupancy guard
	PersistFailures int
	IgnoredDegraded int // readings dropped while the transport was down
}

// LaneState is the externally visible state of one lane.
type LaneState struct {
	Lane       Lane
	DistanceCm int
	HasReading bool
	Proximate  bool
	Open       bool
}

// State is a snapshot of the whole controller.
type State struct {
	Entry     LaneState
	Exit      LaneState
	Occupancy Occupancy
	Daily     DailyStats
	Counters  Counters
	Connected bool
}

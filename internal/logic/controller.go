package logic

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the controller's tunables.
type Config struct {
	ThresholdCm int
	Capacity    int
	Location    *time.Location
}

// Result describes the outcome of processing one reading.
type Result struct {
	Lane      Lane
	Proximate bool
	Permitted bool
	Open      bool // actuation signal for Lane after this reading
	Changed   bool // Open differs from the previous actuation signal
	Ignored   bool // reading dropped because the transport is degraded

	// Event is set when a rising edge produced a committed count change.
	Event *Event

	// GuardNoOp is set when a rising edge reached admit/release but the
	// ledger refused it. Under correct wiring this never happens.
	GuardNoOp bool

	// Err is set when a durable write failed. The in-memory state has been
	// rolled back.
	Err error
}

type lane struct {
	distance   int
	hasReading bool
	proximate  bool
	gate       *GateStateMachine
}

// Controller wires sensor readings to gates, the occupancy ledger and the
// daily tracker. It is not safe for concurrent use; callers serialize all
// calls through a single event loop.
type Controller struct {
	cfg       Config
	lanes     map[Lane]*lane
	ledger    *OccupancyLedger
	daily     *DailyStatsTracker
	counters  Counters
	connected bool
}

// NewController creates a controller seeded from persisted state.
func NewController(cfg Config, store Persister, seed PersistedState) (*Controller, error) {
	if cfg.ThresholdCm <= 0 {
		return nil, fmt.Errorf("invalid threshold %d", cfg.ThresholdCm)
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("invalid capacity %d", cfg.Capacity)
	}
	if store == nil {
		return nil, errors.New("nil persister")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	c := &Controller{
		cfg:    cfg,
		lanes:  make(map[Lane]*lane, len(Lanes)),
		ledger: NewOccupancyLedger(cfg.Capacity, store, seed.Count, seed.LastEntryAt),
		daily:  NewDailyStatsTracker(cfg.Location, store, seed.Daily),
		// Readings only arrive over a live transport, so start connected.
		connected: true,
	}
	for _, l := range Lanes {
		c.lanes[l] = &lane{gate: NewGateStateMachine(l)}
	}
	return c, nil
}

// Process applies one sensor reading and returns the lane's actuation signal.
func (c *Controller) Process(r SensorReading) Result {
	ln, ok := c.lanes[r.Lane]
	if !ok {
		return Result{Lane: r.Lane, Ignored: true, Err: fmt.Errorf("unknown lane %q", r.Lane)}
	}

	prevOpen := ln.gate.IsOpen()
	if !c.connected {
		c.counters.IgnoredDegraded++
		return Result{Lane: r.Lane, Open: prevOpen, Proximate: ln.proximate, Ignored: true}
	}

	ln.distance = r.DistanceCm
	ln.hasReading = true
	ln.proximate = IsProximate(r.DistanceCm, c.cfg.ThresholdCm)

	res := Result{
		Lane:      r.Lane,
		Proximate: ln.proximate,
		Permitted: c.permitted(r.Lane),
	}

	open, rising := ln.gate.Evaluate(res.Proximate, res.Permitted)
	if rising {
		ev, committed := c.onRisingEdge(r, &res)
		if committed {
			res.Event = ev
		} else {
			ln.gate.Revert()
			open = ln.gate.IsOpen()
		}
	}

	res.Open = open
	res.Changed = open != prevOpen
	return res
}

func (c *Controller) permitted(l Lane) bool {
	if l == LaneEntry {
		return c.ledger.HasCapacity()
	}
	return c.ledger.Occupied()
}

// onRisingEdge performs the counting side effect of a gate opening. It reports
// whether the ledger mutation was committed.
func (c *Controller) onRisingEdge(r SensorReading, res *Result) (*Event, bool) {
	var (
		ok  bool
		err error
		typ EventType
	)
	if r.Lane == LaneEntry {
		ok, err = c.ledger.Admit(r.ObservedAt)
		typ = EventVehicleEntered
	} else {
		ok, err = c.ledger.Release()
		typ = EventVehicleExited
	}

	if err != nil {
		c.counters.PersistFailures++
		res.Err = fmt.Errorf("%s edge: %w", r.Lane, err)
		return nil, false
	}
	if !ok {
		c.counters.GuardNoOps++
		res.GuardNoOp = true
		return nil, false
	}

	if r.Lane == LaneEntry {
		c.counters.Admitted++
		err = c.daily.RecordEntry(r.ObservedAt)
	} else {
		c.counters.Released++
		err = c.daily.RecordExit(r.ObservedAt)
	}
	if err != nil {
		// The occupancy change is durable; only the daily total is lost.
		c.counters.PersistFailures++
		res.Err = fmt.Errorf("%s daily stats: %w", r.Lane, err)
	}

	stats := c.daily.stats
	return &Event{
		Timestamp:    r.ObservedAt,
		Type:         typ,
		Lane:         r.Lane,
		Occupancy:    c.ledger.Count(),
		Capacity:     c.cfg.Capacity,
		EntriesToday: stats.Entries,
		ExitsToday:   stats.Exits,
	}, true
}

// SetConnected records a transport connectivity change. While disconnected all
// lane states are frozen and incoming readings are ignored. It reports whether
// the connectivity actually changed.
func (c *Controller) SetConnected(connected bool) bool {
	if c.connected == connected {
		return false
	}
	c.connected = connected
	return true
}

// Connected reports whether the transport is currently up.
func (c *Controller) Connected() bool {
	return c.connected
}

// ResetDailyStats zeroes today's entry and exit totals. Occupancy is kept.
func (c *Controller) ResetDailyStats(now time.Time) error {
	if err := c.daily.Reset(now); err != nil {
		c.counters.PersistFailures++
		return fmt.Errorf("reset daily stats: %w", err)
	}
	return nil
}

// RollOver persists a daily reset if the calendar date has changed since the
// last write. Called periodically so idle readers see today's totals.
func (c *Controller) RollOver(now time.Time) error {
	if _, err := c.daily.Current(now); err != nil {
		c.counters.PersistFailures++
		return fmt.Errorf("daily rollover: %w", err)
	}
	return nil
}

// State returns a snapshot of the controller. Daily totals are reported for
// the date of now, so a stale date is never exposed.
func (c *Controller) State(now time.Time) State {
	daily := c.daily.rolled(now)
	return State{
		Entry:     c.laneState(LaneEntry),
		Exit:      c.laneState(LaneExit),
		Occupancy: c.ledger.Snapshot(),
		Daily:     daily,
		Counters:  c.counters,
		Connected: c.connected,
	}
}

func (c *Controller) laneState(l Lane) LaneState {
	ln := c.lanes[l]
	return LaneState{
		Lane:       l,
		DistanceCm: ln.distance,
		HasReading: ln.hasReading,
		Proximate:  ln.proximate,
		Open:       ln.gate.IsOpen(),
	}
}

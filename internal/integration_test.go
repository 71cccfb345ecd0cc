package internal

import (
	"encoding/json"
	"errors"
	"math/rand"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/parking-gate/internal/bus"
	"github.com/sweeney/parking-gate/internal/gpio"
	"github.com/sweeney/parking-gate/internal/logic"
	"github.com/sweeney/parking-gate/internal/status"
	"github.com/sweeney/parking-gate/internal/store"
)

var day1 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// pipeline wires a FakeBus to a controller the way the daemon's loop does,
// with a mutex standing in for the single-consumer queue.
type pipeline struct {
	mu        sync.Mutex
	ctrl      *logic.Controller
	pub       *bus.FakeBus
	act       *gpio.FakeActuator
	tracker   *status.Tracker
	malformed int
}

func (p *pipeline) HandleDistance(lane logic.Lane, payload []byte, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := bus.ParseDistance(payload)
	if err != nil {
		p.malformed++
		p.tracker.AddMalformed()
		return
	}
	res := p.ctrl.Process(logic.SensorReading{Lane: lane, DistanceCm: d, ObservedAt: at})
	if res.Changed {
		p.act.Set(lane, res.Open)
		p.pub.PublishGate(lane, res.Open, at)
	}
	if res.Event != nil {
		p.pub.PublishEvent(*res.Event)
	}
	p.tracker.Update(p.ctrl.State(at))
}

func (p *pipeline) HandleConnection(connected bool, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctrl.SetConnected(connected)
	p.tracker.Update(p.ctrl.State(at))
}

func openStore(t *testing.T, path string) *store.SQLiteStore {
	t.Helper()
	st, err := store.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	return st
}

func newPipeline(t *testing.T, st store.Store, capacity int, now time.Time) *pipeline {
	t.Helper()
	values, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	seed, err := logic.DecodeState(values, now, time.UTC)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	ctrl, err := logic.NewController(logic.Config{ThresholdCm: 20, Capacity: capacity, Location: time.UTC}, st, seed)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	p := &pipeline{
		ctrl:    ctrl,
		pub:     bus.NewFakeBus(),
		act:     gpio.NewFakeActuator(),
		tracker: status.NewTracker(now, "integration", status.Config{Capacity: capacity}),
	}
	if err := p.pub.Subscribe(p); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return p
}

// drive sends one vehicle past lane's sensor.
func drive(p *pipeline, lane logic.Lane, at time.Time) {
	p.pub.Emit(lane, "120", at)
	p.pub.Emit(lane, "18", at.Add(500*time.Millisecond))
	p.pub.Emit(lane, "9", at.Add(time.Second))
	p.pub.Emit(lane, "14", at.Add(2*time.Second))
	p.pub.Emit(lane, "120", at.Add(4*time.Second))
}

// TestIntegrationFullFlow runs two entries and one exit through a real SQLite
// store, then restarts and checks nothing was lost.
func TestIntegrationFullFlow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	st := openStore(t, path)
	p := newPipeline(t, st, 20, day1)

	drive(p, logic.LaneEntry, day1)
	drive(p, logic.LaneEntry, day1.Add(10*time.Minute))
	drive(p, logic.LaneExit, day1.Add(time.Hour))

	events := p.pub.EventHistory()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	wantTypes := []logic.EventType{logic.EventVehicleEntered, logic.EventVehicleEntered, logic.EventVehicleExited}
	wantOcc := []int{1, 2, 1}
	for i := range events {
		if events[i].Type != wantTypes[i] {
			t.Errorf("event %d: expected %s, got %s", i, wantTypes[i], events[i].Type)
		}
		if events[i].Occupancy != wantOcc[i] {
			t.Errorf("event %d: expected occupancy %d, got %d", i, wantOcc[i], events[i].Occupancy)
		}
	}

	// One open and one close per vehicle.
	gates := p.pub.GateHistory()
	if len(gates) != 6 {
		t.Fatalf("expected 6 gate updates, got %d", len(gates))
	}
	for i, g := range gates {
		if g.Open != (i%2 == 0) {
			t.Errorf("gate update %d: got open=%v", i, g.Open)
		}
	}
	if p.act.Level(logic.LaneEntry) || p.act.Level(logic.LaneExit) {
		t.Error("both gates should be closed after the vehicles passed")
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Restart later the same day.
	st2 := openStore(t, path)
	defer st2.Close()
	p2 := newPipeline(t, st2, 20, day1.Add(2*time.Hour))
	state := p2.ctrl.State(day1.Add(2 * time.Hour))

	if state.Occupancy.Count != 1 {
		t.Errorf("restored count: got %d, want 1", state.Occupancy.Count)
	}
	if !state.Occupancy.LastEntryAt.Equal(day1.Add(10*time.Minute + 500*time.Millisecond)) {
		t.Errorf("restored lastEntryAt: got %v", state.Occupancy.LastEntryAt)
	}
	if state.Daily.Entries != 2 || state.Daily.Exits != 1 {
		t.Errorf("restored daily: got %+v", state.Daily)
	}
}

// TestIntegrationRestartNextDay verifies the totals reset on the first read
// after midnight while occupancy carries over.
func TestIntegrationRestartNextDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	st := openStore(t, path)
	p := newPipeline(t, st, 20, day1)
	drive(p, logic.LaneEntry, day1)
	st.Close()

	day2 := day1.Add(24 * time.Hour)
	st2 := openStore(t, path)
	defer st2.Close()
	p2 := newPipeline(t, st2, 20, day2)
	if err := p2.ctrl.RollOver(day2); err != nil {
		t.Fatalf("RollOver: %v", err)
	}

	values, err := st2.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if values[logic.KeyDailyStatsDate] != "2026-03-15" {
		t.Errorf("persisted date: got %q", values[logic.KeyDailyStatsDate])
	}
	if values[logic.KeyDailyStatsEntries] != "0" {
		t.Errorf("persisted entries: got %q", values[logic.KeyDailyStatsEntries])
	}
	if values[logic.KeyOccupancyCount] != "1" {
		t.Errorf("persisted count: got %q", values[logic.KeyOccupancyCount])
	}

	// First vehicle of the new day counts as 1.
	drive(p2, logic.LaneEntry, day2.Add(time.Minute))
	ev := p2.pub.EventHistory()
	if len(ev) != 1 || ev[0].EntriesToday != 1 || ev[0].Occupancy != 2 {
		t.Errorf("first event of day 2: got %+v", ev)
	}
}

// TestIntegrationOccupancyBounds throws random readings at both lanes and
// checks the count never leaves [0, capacity] and always matches the events.
func TestIntegrationOccupancyBounds(t *testing.T) {
	const capacity = 3
	st := store.NewMemoryStore(nil)
	p := newPipeline(t, st, capacity, day1)
	rng := rand.New(rand.NewSource(42))

	at := day1
	for i := 0; i < 2000; i++ {
		lane := logic.Lanes[rng.Intn(2)]
		p.pub.Emit(lane, []string{"5", "15", "25", "200"}[rng.Intn(4)], at)
		at = at.Add(time.Second)

		count := p.ctrl.State(at).Occupancy.Count
		if count < 0 || count > capacity {
			t.Fatalf("step %d: count %d out of bounds", i, count)
		}
	}

	var entered, exited int
	for _, ev := range p.pub.EventHistory() {
		if ev.Type == logic.EventVehicleEntered {
			entered++
		} else {
			exited++
		}
	}
	if got := p.ctrl.State(at).Occupancy.Count; got != entered-exited {
		t.Errorf("count %d does not match events (%d in, %d out)", got, entered, exited)
	}
	if v, _ := st.Get(logic.KeyOccupancyCount); v != "" && v != strconv.Itoa(entered-exited) {
		t.Errorf("persisted count %q does not match events", v)
	}
}

// TestIntegrationDisconnectFreezesOutput verifies no actuation changes while
// the transport is down, even when the sensor changes.
func TestIntegrationDisconnectFreezesOutput(t *testing.T) {
	p := newPipeline(t, store.NewMemoryStore(nil), 20, day1)

	p.pub.Emit(logic.LaneEntry, "5", day1)
	if !p.act.Level(logic.LaneEntry) {
		t.Fatal("entry gate should be open")
	}

	p.pub.SetConnected(false, day1.Add(time.Second))
	p.pub.Emit(logic.LaneEntry, "200", day1.Add(2*time.Second))
	if !p.act.Level(logic.LaneEntry) {
		t.Error("entry gate must stay open while degraded")
	}

	p.pub.SetConnected(true, day1.Add(3*time.Second))
	p.pub.Emit(logic.LaneEntry, "200", day1.Add(4*time.Second))
	if p.act.Level(logic.LaneEntry) {
		t.Error("entry gate should close after reconnect")
	}
	if got := len(p.pub.EventHistory()); got != 1 {
		t.Errorf("expected 1 event, got %d", got)
	}
}

// TestIntegrationPersistFailureRetries verifies a failed write leaves the
// count untouched and the next reading retries.
func TestIntegrationPersistFailureRetries(t *testing.T) {
	st := store.NewMemoryStore(nil)
	p := newPipeline(t, st, 20, day1)

	st.PutError = errors.New("disk full")
	p.pub.Emit(logic.LaneEntry, "5", day1)
	if got := p.ctrl.State(day1).Occupancy.Count; got != 0 {
		t.Fatalf("count after failed write: got %d, want 0", got)
	}
	if p.act.Level(logic.LaneEntry) {
		t.Error("gate must stay closed when the count cannot be stored")
	}

	st.PutError = nil
	p.pub.Emit(logic.LaneEntry, "5", day1.Add(time.Second))
	if got := p.ctrl.State(day1).Occupancy.Count; got != 1 {
		t.Errorf("count after retry: got %d, want 1", got)
	}
	if !p.act.Level(logic.LaneEntry) {
		t.Error("gate should open on retry")
	}
}

func TestIntegrationMalformedPayloads(t *testing.T) {
	p := newPipeline(t, store.NewMemoryStore(nil), 20, day1)
	for _, payload := range []string{"", "abc", "12.5", "-3", "+4", "1e3"} {
		p.pub.Emit(logic.LaneEntry, payload, day1)
	}
	if p.malformed != 6 {
		t.Errorf("malformed: got %d, want 6", p.malformed)
	}
	if p.tracker.Snapshot().Malformed != 6 {
		t.Errorf("tracker malformed: got %d, want 6", p.tracker.Snapshot().Malformed)
	}
	if got := len(p.pub.GateHistory()); got != 0 {
		t.Errorf("malformed payloads must not move gates, got %d", got)
	}
}

func TestIntegrationPayloadFormat(t *testing.T) {
	p := newPipeline(t, store.NewMemoryStore(nil), 20, day1)
	drive(p, logic.LaneEntry, day1)

	topics := bus.MQTTTopics("parking")
	g := p.pub.GateHistory()[0]
	msg, err := topics.GateMessage(g.Lane, g.Open, g.At)
	if err != nil {
		t.Fatalf("GateMessage: %v", err)
	}
	var gate bus.GatePayload
	if err := json.Unmarshal(msg.Payload, &gate); err != nil {
		t.Fatalf("invalid gate JSON: %v", err)
	}
	if gate.Gate.Lane != "entry" || gate.Gate.State != "OPEN" || gate.Gate.Timestamp == "" {
		t.Errorf("gate payload: got %+v", gate.Gate)
	}

	msgs, err := topics.EventMessages(p.pub.EventHistory()[0])
	if err != nil {
		t.Fatalf("EventMessages: %v", err)
	}
	var ev bus.EventPayload
	if err := json.Unmarshal(msgs[0].Payload, &ev); err != nil {
		t.Fatalf("invalid event JSON: %v", err)
	}
	if ev.Vehicle.Event != "VEHICLE_ENTERED" || ev.Vehicle.Occupancy != 1 || ev.Vehicle.Capacity != 20 {
		t.Errorf("event payload: got %+v", ev.Vehicle)
	}
	if msgs[1].Topic != "parking/counter" || string(msgs[1].Payload) != "1" {
		t.Errorf("counter: got %s=%s", msgs[1].Topic, msgs[1].Payload)
	}
}

func TestIntegrationStartupPayloadFormat(t *testing.T) {
	p := newPipeline(t, store.NewMemoryStore(nil), 20, day1)
	drive(p, logic.LaneEntry, day1)

	snap := p.tracker.Snapshot()
	err := p.pub.PublishSystem(bus.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	})
	if err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(p.pub.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "STARTUP" {
		t.Errorf("event: got %q, want STARTUP", parsed.Status.Event)
	}
	if parsed.Status.Occupancy.Count != 1 || parsed.Status.Daily.Entries != 1 {
		t.Errorf("status: got occupancy=%+v daily=%+v", parsed.Status.Occupancy, parsed.Status.Daily)
	}
	if parsed.Status.InstanceID != "integration" {
		t.Errorf("instance id: got %q", parsed.Status.InstanceID)
	}
}

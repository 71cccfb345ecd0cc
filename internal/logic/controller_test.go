package logic

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestController(t *testing.T, capacity int, p *fakePersister, seed PersistedState) *Controller {
	t.Helper()
	if seed.Daily.Date == "" {
		seed.Daily.Date = Today(testNow, time.UTC)
	}
	c, err := NewController(Config{ThresholdCm: DefaultThresholdCm, Capacity: capacity, Location: time.UTC}, p, seed)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

func reading(l Lane, cm int, i int) SensorReading {
	return SensorReading{Lane: l, DistanceCm: cm, ObservedAt: testNow.Add(time.Duration(i) * time.Second)}
}

func TestNewControllerRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		p    Persister
	}{
		{"zero threshold", Config{ThresholdCm: 0, Capacity: 1}, newFakePersister()},
		{"zero capacity", Config{ThresholdCm: 20, Capacity: 0}, newFakePersister()},
		{"nil store", Config{ThresholdCm: 20, Capacity: 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewController(tt.cfg, tt.p, PersistedState{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSustainedPresenceAdmitsOnce(t *testing.T) {
	p := newFakePersister()
	c := newTestController(t, 20, p, PersistedState{})

	events := 0
	for i, cm := range []int{15, 15, 15} {
		res := c.Process(reading(LaneEntry, cm, i))
		if !res.Open {
			t.Errorf("reading %d: expected gate open", i)
		}
		if res.Event != nil {
			events++
		}
	}

	if events != 1 {
		t.Errorf("expected 1 admit, got %d", events)
	}
	if got := c.State(testNow).Occupancy.Count; got != 1 {
		t.Errorf("Count: got %d, want 1", got)
	}
}

func TestCapacityEnforcement(t *testing.T) {
	p := newFakePersister()
	c := newTestController(t, 3, p, PersistedState{Count: 3})

	res := c.Process(reading(LaneEntry, 5, 0))
	if res.Open {
		t.Error("entry gate must stay closed at capacity")
	}
	if res.Permitted {
		t.Error("entry must not be permitted at capacity")
	}
	if res.Event != nil || res.GuardNoOp {
		t.Errorf("expected no admit attempt, got %+v", res)
	}
	if p.puts != 0 {
		t.Errorf("expected no writes, got %d", p.puts)
	}
}

func TestExitGuard(t *testing.T) {
	p := newFakePersister()
	c := newTestController(t, 3, p, PersistedState{Count: 0})

	res := c.Process(reading(LaneExit, 5, 0))
	if res.Open {
		t.Error("exit gate must stay closed when empty")
	}
	if res.Event != nil || res.GuardNoOp {
		t.Errorf("expected no release attempt, got %+v", res)
	}
	if p.puts != 0 {
		t.Errorf("expected no writes, got %d", p.puts)
	}
}

func TestEndToEndScenario(t *testing.T) {
	p := newFakePersister()
	c := newTestController(t, 2, p, PersistedState{})

	steps := []struct {
		lane      Lane
		cm        int
		wantOpen  bool
		wantEvent EventType
		wantCount int
	}{
		{LaneEntry, 10, true, EventVehicleEntered, 1},
		{LaneEntry, 10, true, "", 1},
		{LaneEntry, 50, false, "", 1},
		{LaneEntry, 10, true, EventVehicleEntered, 2},
		{LaneEntry, 10, false, "", 2}, // full: permission lost, gate closes, no admit
		{LaneExit, 10, true, EventVehicleExited, 1},
	}

	for i, s := range steps {
		res := c.Process(reading(s.lane, s.cm, i))
		if res.Err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, res.Err)
		}
		if res.Open != s.wantOpen {
			t.Errorf("step %d: open got %v, want %v", i, res.Open, s.wantOpen)
		}
		var gotEvent EventType
		if res.Event != nil {
			gotEvent = res.Event.Type
		}
		if gotEvent != s.wantEvent {
			t.Errorf("step %d: event got %q, want %q", i, gotEvent, s.wantEvent)
		}
		if got := c.State(testNow).Occupancy.Count; got != s.wantCount {
			t.Errorf("step %d: count got %d, want %d", i, got, s.wantCount)
		}
	}

	st := c.State(testNow)
	if st.Daily.Entries != 2 || st.Daily.Exits != 1 {
		t.Errorf("daily: got %+v, want entries=2 exits=1", st.Daily)
	}
	if st.Counters.Admitted != 2 || st.Counters.Released != 1 {
		t.Errorf("counters: got %+v", st.Counters)
	}
}

func TestEventCarriesTotals(t *testing.T) {
	c := newTestController(t, 5, newFakePersister(), PersistedState{Count: 1})

	res := c.Process(reading(LaneEntry, 3, 0))
	if res.Event == nil {
		t.Fatal("expected event")
	}
	want := Event{
		Timestamp:    testNow,
		Type:         EventVehicleEntered,
		Lane:         LaneEntry,
		Occupancy:    2,
		Capacity:     5,
		EntriesToday: 1,
	}
	if diff := cmp.Diff(want, *res.Event); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestChangedOnlyOnTransitions(t *testing.T) {
	c := newTestController(t, 5, newFakePersister(), PersistedState{})

	var changed []bool
	for i, cm := range []int{50, 10, 10, 50, 50} {
		changed = append(changed, c.Process(reading(LaneEntry, cm, i)).Changed)
	}
	want := []bool{false, true, false, true, false}
	if diff := cmp.Diff(want, changed); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}
}

func TestPersistFailureKeepsGateClosedAndRetries(t *testing.T) {
	p := newFakePersister()
	c := newTestController(t, 5, p, PersistedState{})

	p.putErr = errors.New("disk gone")
	res := c.Process(reading(LaneEntry, 10, 0))
	if !errors.Is(res.Err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", res.Err)
	}
	if res.Open || res.Changed {
		t.Errorf("gate output must not change on failure: %+v", res)
	}
	if res.Event != nil {
		t.Error("no event expected on failure")
	}
	if got := c.State(testNow).Occupancy.Count; got != 0 {
		t.Errorf("Count: got %d, want 0", got)
	}

	// Store recovers: the same sustained reading is retried as a new edge.
	p.putErr = nil
	res = c.Process(reading(LaneEntry, 10, 1))
	if res.Err != nil || res.Event == nil || !res.Open {
		t.Fatalf("retry: got %+v", res)
	}
	if got := c.State(testNow).Occupancy.Count; got != 1 {
		t.Errorf("Count after retry: got %d, want 1", got)
	}
	if got := c.State(testNow).Counters.PersistFailures; got != 1 {
		t.Errorf("PersistFailures: got %d, want 1", got)
	}
}

// failDailyPersister fails only writes touching daily stats keys.
type failDailyPersister struct {
	*fakePersister
}

func (f failDailyPersister) Put(values map[string]string) error {
	if _, ok := values[KeyDailyStatsDate]; ok {
		return errors.New("daily table locked")
	}
	return f.fakePersister.Put(values)
}

func TestDailyFailureKeepsOccupancy(t *testing.T) {
	inner := newFakePersister()
	p := failDailyPersister{inner}
	c, err := NewController(Config{ThresholdCm: 20, Capacity: 5, Location: time.UTC}, p,
		PersistedState{Daily: DailyStats{Date: "2026-03-14"}})
	if err != nil {
		t.Fatal(err)
	}

	res := c.Process(reading(LaneEntry, 10, 0))
	if res.Event == nil || !res.Open {
		t.Fatalf("expected committed admit, got %+v", res)
	}
	if res.Err == nil {
		t.Error("expected daily stats error to be reported")
	}
	st := c.State(testNow)
	if st.Occupancy.Count != 1 {
		t.Errorf("Count: got %d, want 1", st.Occupancy.Count)
	}
	if st.Daily.Entries != 0 {
		t.Errorf("Entries: got %d, want 0 (rolled back)", st.Daily.Entries)
	}
	if inner.values[KeyOccupancyCount] != "1" {
		t.Errorf("persisted count: got %q, want 1", inner.values[KeyOccupancyCount])
	}
}

func TestDisconnectFreezesLanes(t *testing.T) {
	p := newFakePersister()
	c := newTestController(t, 5, p, PersistedState{})

	c.Process(reading(LaneEntry, 10, 0))
	if !c.SetConnected(false) {
		t.Fatal("expected connectivity change")
	}
	if c.SetConnected(false) {
		t.Error("repeated disconnect should not report a change")
	}

	res := c.Process(reading(LaneEntry, 80, 1))
	if !res.Ignored {
		t.Error("expected reading to be ignored while degraded")
	}
	if !res.Open || res.Changed {
		t.Errorf("entry gate must stay frozen open: %+v", res)
	}
	res = c.Process(reading(LaneExit, 5, 2))
	if res.Open || res.Event != nil {
		t.Errorf("exit must not open while degraded: %+v", res)
	}

	st := c.State(testNow)
	if st.Entry.DistanceCm != 10 {
		t.Errorf("entry distance: got %d, want 10 (frozen)", st.Entry.DistanceCm)
	}
	if st.Counters.IgnoredDegraded != 2 {
		t.Errorf("IgnoredDegraded: got %d, want 2", st.Counters.IgnoredDegraded)
	}

	c.SetConnected(true)
	res = c.Process(reading(LaneEntry, 80, 3))
	if res.Open || !res.Changed {
		t.Errorf("expected processing to resume after reconnect: %+v", res)
	}
}

func TestResetDailyStatsKeepsOccupancy(t *testing.T) {
	p := newFakePersister()
	c := newTestController(t, 5, p, PersistedState{Count: 3, Daily: DailyStats{Date: "2026-03-14", Entries: 7, Exits: 4}})

	if err := c.ResetDailyStats(testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := c.State(testNow)
	if st.Daily.Entries != 0 || st.Daily.Exits != 0 {
		t.Errorf("daily: got %+v, want zeros", st.Daily)
	}
	if st.Occupancy.Count != 3 {
		t.Errorf("Count: got %d, want 3", st.Occupancy.Count)
	}
}

func TestStateReportsTodayForStaleDate(t *testing.T) {
	p := newFakePersister()
	c := newTestController(t, 5, p, PersistedState{Daily: DailyStats{Date: "2026-03-13", Entries: 7, Exits: 4}})

	st := c.State(testNow)
	if diff := cmp.Diff(DailyStats{Date: "2026-03-14"}, st.Daily); diff != "" {
		t.Errorf("daily mismatch (-want +got):\n%s", diff)
	}

	if err := c.RollOver(testNow); err != nil {
		t.Fatalf("RollOver: %v", err)
	}
	if p.values[KeyDailyStatsDate] != "2026-03-14" {
		t.Errorf("persisted date: got %q", p.values[KeyDailyStatsDate])
	}
}

func TestUnknownLane(t *testing.T) {
	c := newTestController(t, 5, newFakePersister(), PersistedState{})
	res := c.Process(SensorReading{Lane: "side", DistanceCm: 1, ObservedAt: testNow})
	if res.Err == nil || !res.Ignored {
		t.Errorf("expected unknown lane to be rejected, got %+v", res)
	}
}

func TestRestartRoundTrip(t *testing.T) {
	p := newFakePersister()
	c := newTestController(t, 5, p, PersistedState{})

	seq := []SensorReading{
		reading(LaneEntry, 10, 0), reading(LaneEntry, 50, 1),
		reading(LaneEntry, 10, 2), reading(LaneEntry, 50, 3),
		reading(LaneExit, 10, 4),
	}
	for _, r := range seq {
		c.Process(r)
	}
	before := c.State(testNow)

	seed, err := DecodeState(p.values, testNow, time.UTC)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	restarted := newTestController(t, 5, p, seed)
	after := restarted.State(testNow)

	if diff := cmp.Diff(before.Occupancy, after.Occupancy); diff != "" {
		t.Errorf("occupancy mismatch (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(before.Daily, after.Daily); diff != "" {
		t.Errorf("daily mismatch (-before +after):\n%s", diff)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/parking-gate/internal/bus"
	"github.com/sweeney/parking-gate/internal/gpio"
	"github.com/sweeney/parking-gate/internal/logic"
	"github.com/sweeney/parking-gate/internal/status"
)

// errStopped is returned to callers that reach the loop after it has exited.
var errStopped = errors.New("controller stopped")

// event is one transport callback. Readings and connection changes share a
// queue so the loop applies them in the order the transport delivered them.
type event struct {
	conn      bool // connection change rather than a reading
	connected bool
	lane      logic.Lane
	payload   []byte
	at        time.Time
}

// inputs are the loop's event sources. Every controller mutation arrives on
// one of these channels so the controller is only touched by one goroutine.
type inputs struct {
	events <-chan event
	resets <-chan chan error
	tick   <-chan time.Time
	sig    <-chan os.Signal
}

// chanHandler forwards transport callbacks onto the loop's event queue.
//
// A reading that finds the queue full is dropped and counted on tracker, so a
// stalled loop never blocks the transport's delivery goroutine. Connection
// changes always wait for room.
type chanHandler struct {
	events  chan<- event
	done    <-chan struct{}
	tracker *status.Tracker
}

func (h chanHandler) HandleDistance(lane logic.Lane, payload []byte, at time.Time) {
	// Transports may reuse the payload buffer.
	ev := event{lane: lane, payload: append([]byte(nil), payload...), at: at}
	select {
	case h.events <- ev:
	case <-h.done:
	default:
		log.Printf("reading: %s: queue full, dropped", lane)
		if h.tracker != nil {
			h.tracker.AddDropped()
		}
	}
}

func (h chanHandler) HandleConnection(connected bool, at time.Time) {
	select {
	case h.events <- event{conn: true, connected: connected, at: at}:
	case <-h.done:
	}
}

// loopResetter hands reset requests from the HTTP server to the loop.
type loopResetter struct {
	resets chan<- chan error
	done   <-chan struct{}
}

func (r loopResetter) ResetDailyStats() error {
	reply := make(chan error, 1)
	select {
	case r.resets <- reply:
	case <-r.done:
		return errStopped
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return errStopped
	}
}

// loop is the single consumer that drains readings into the controller.
type loop struct {
	ctrl      *logic.Controller
	publisher bus.Publisher
	actuator  gpio.Actuator
	tracker   *status.Tracker
	heartbeat time.Duration
	now       func() time.Time

	lastHeartbeat time.Time
}

// run processes events until a signal arrives or ctx is cancelled, then
// publishes SHUTDOWN.
func (l *loop) run(ctx context.Context, in inputs) error {
	l.lastHeartbeat = l.now()

	for {
		select {
		case s := <-in.sig:
			log.Printf("received %v, shutting down", s)
			l.shutdown(signalName(s))
			return nil

		case <-ctx.Done():
			log.Printf("context cancelled, shutting down")
			l.shutdown("CANCELLED")
			return nil

		case ev := <-in.events:
			if ev.conn {
				l.handleConnection(ev)
			} else {
				l.handleReading(ev)
			}

		case reply := <-in.resets:
			reply <- l.handleReset()

		case t := <-in.tick:
			l.handleTick(t)
		}
	}
}

func (l *loop) handleReading(r event) {
	distance, err := bus.ParseDistance(r.payload)
	if err != nil {
		log.Printf("reading: %s: %v: %q", r.lane, err, r.payload)
		l.tracker.AddMalformed()
		return
	}

	res := l.ctrl.Process(logic.SensorReading{Lane: r.lane, DistanceCm: distance, ObservedAt: r.at})
	if res.Err != nil {
		log.Printf("controller: %v", res.Err)
	}
	if res.GuardNoOp {
		log.Printf("controller: %s edge refused, occupancy guard", r.lane)
	}

	if res.Changed {
		log.Printf("gate: %s %s (distance=%dcm)", r.lane, bus.GateState(res.Open), distance)
		if err := l.actuator.Set(r.lane, res.Open); err != nil {
			log.Printf("gpio: %v", err)
		}
		if err := l.publisher.PublishGate(r.lane, res.Open, r.at); err != nil {
			log.Printf("publish gate error: %v", err)
		}
	}

	if ev := res.Event; ev != nil {
		log.Printf("event: %s (occupancy=%d/%d entries=%d exits=%d)",
			ev.Type, ev.Occupancy, ev.Capacity, ev.EntriesToday, ev.ExitsToday)
		if err := l.publisher.PublishEvent(*ev); err != nil {
			log.Printf("publish event error: %v", err)
		}
	}

	l.tracker.Update(l.ctrl.State(r.at))
}

func (l *loop) handleConnection(c event) {
	if !l.ctrl.SetConnected(c.connected) {
		return
	}
	if c.connected {
		log.Printf("transport: connected, resuming")
	} else {
		log.Printf("transport: disconnected, lane states frozen")
	}
	l.tracker.Update(l.ctrl.State(c.at))
}

func (l *loop) handleReset() error {
	t := l.now()
	if err := l.ctrl.ResetDailyStats(t); err != nil {
		log.Printf("admin: %v", err)
		l.tracker.Update(l.ctrl.State(t))
		return err
	}
	log.Printf("admin: daily stats reset")
	l.tracker.Update(l.ctrl.State(t))
	return nil
}

func (l *loop) handleTick(t time.Time) {
	if err := l.ctrl.RollOver(t); err != nil {
		log.Printf("controller: %v", err)
	}
	l.tracker.Update(l.ctrl.State(t))

	if l.heartbeat <= 0 || t.Sub(l.lastHeartbeat) < l.heartbeat {
		return
	}
	l.lastHeartbeat = t

	if net := readNetworkInfo(); net != nil {
		l.tracker.SetNetwork(net)
	}
	snap := l.tracker.Snapshot()
	st := snap.State
	log.Printf("heartbeat: uptime=%v occupancy=%d/%d entries=%d exits=%d connected=%v",
		snap.Uptime().Truncate(time.Second), st.Occupancy.Count, st.Occupancy.Capacity,
		st.Daily.Entries, st.Daily.Exits, st.Connected)

	hb := bus.SystemEvent{
		Timestamp:  t,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := l.publisher.PublishSystem(hb); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (l *loop) shutdown(reason string) {
	t := l.now()
	l.tracker.Update(l.ctrl.State(t))
	snap := l.tracker.Snapshot()
	event := bus.SystemEvent{
		Timestamp:  t,
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

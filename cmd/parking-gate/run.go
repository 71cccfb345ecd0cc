package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/sweeney/parking-gate/internal/bus"
	"github.com/sweeney/parking-gate/internal/config"
	"github.com/sweeney/parking-gate/internal/gpio"
	"github.com/sweeney/parking-gate/internal/logic"
	"github.com/sweeney/parking-gate/internal/mqtt"
	"github.com/sweeney/parking-gate/internal/natsbus"
	"github.com/sweeney/parking-gate/internal/status"
	"github.com/sweeney/parking-gate/internal/store"
	"github.com/sweeney/parking-gate/internal/web"
	"golang.org/x/sync/errgroup"
)

const (
	// tickInterval drives the daily rollover check and the heartbeat.
	tickInterval = time.Minute
	// eventQueueSize bounds readings waiting for the loop; beyond it they are dropped.
	eventQueueSize = 256
)

// transport is a connected message bus carrying both ingestion and output.
type transport interface {
	bus.Source
	bus.Publisher
	bus.ConnectionStatus
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return run(cfg)
}

func run(cfg config.Config) error {
	lc, err := cfg.Controller()
	if err != nil {
		return err
	}

	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctrl, err := loadController(lc, st, time.Now())
	if err != nil {
		return err
	}

	actuator, err := openActuator(cfg.GPIO)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer actuator.Close()

	instanceID := uuid.NewString()
	tracker := status.NewTracker(time.Now(), instanceID, statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	tr, err := openTransport(cfg, instanceID)
	if err != nil {
		return fmt.Errorf("init %s: %w", cfg.Transport, err)
	}
	defer tr.Close()

	done := make(chan struct{})
	defer close(done)
	events := make(chan event, eventQueueSize)
	resets := make(chan chan error)

	if err := tr.Subscribe(chanHandler{events: events, done: done, tracker: tracker}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	// Connection callbacks queued after this point are applied in order by the loop.
	ctrl.SetConnected(tr.IsConnected())
	tracker.Update(ctrl.State(time.Now()))

	snap := tracker.Snapshot()
	startup := bus.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := tr.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	log.Printf("started: transport=%s endpoint=%s capacity=%d threshold=%dcm occupancy=%d heartbeat=%v instance=%s",
		cfg.Transport, cfg.Endpoint(), cfg.Capacity, cfg.ThresholdCm, snap.State.Occupancy.Count, cfg.Heartbeat, instanceID)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, loopResetter{resets: resets, done: gctx.Done()})
		g.Go(func() error {
			log.Printf("http status server listening on %s", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}

	l := &loop{
		ctrl:      ctrl,
		publisher: tr,
		actuator:  actuator,
		tracker:   tracker,
		heartbeat: cfg.Heartbeat,
		now:       time.Now,
	}
	g.Go(func() error {
		defer cancel()
		return l.run(gctx, inputs{
			events: events,
			resets: resets,
			tick:   ticker.C,
			sig:    sigCh,
		})
	})

	return g.Wait()
}

// loadController restores persisted state and brings the daily totals up to
// today before any reading is processed.
func loadController(lc logic.Config, st store.Store, now time.Time) (*logic.Controller, error) {
	values, err := st.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	seed, err := logic.DecodeState(values, now, lc.Location)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	ctrl, err := logic.NewController(lc, st, seed)
	if err != nil {
		return nil, fmt.Errorf("init controller: %w", err)
	}
	if err := ctrl.RollOver(now); err != nil {
		log.Printf("controller: %v", err)
	}
	return ctrl, nil
}

func openActuator(cfg config.GPIO) (gpio.Actuator, error) {
	if cfg.EntryPin == gpio.DisabledPin && cfg.ExitPin == gpio.DisabledPin {
		log.Printf("gpio: no output lines configured")
		return gpio.Disabled{}, nil
	}
	a, err := gpio.NewRealActuator(cfg.Chip, cfg.EntryPin, cfg.ExitPin)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openTransport(cfg config.Config, instanceID string) (transport, error) {
	topics := cfg.Topics()
	if cfg.Transport == config.TransportNATS {
		c, err := natsbus.NewClient(cfg.NATS.URL, "parking-gate-"+instanceID, topics)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	c, err := mqtt.NewClient(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Topics:   topics,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func statusConfig(cfg config.Config) status.Config {
	prefix := cfg.MQTT.TopicPrefix
	if cfg.Transport == config.TransportNATS {
		prefix = cfg.NATS.SubjectPrefix
	}
	return status.Config{
		ThresholdCm: cfg.ThresholdCm,
		Capacity:    cfg.Capacity,
		Timezone:    cfg.Timezone,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Transport:   cfg.Transport,
		Broker:      cfg.Endpoint(),
		TopicPrefix: prefix,
		HTTPAddr:    cfg.HTTP.Addr,
	}
}

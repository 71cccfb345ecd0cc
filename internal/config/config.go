// Package config loads the parking gate daemon's settings from defaults, an
// optional TOML file and PARKING_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/sweeney/parking-gate/internal/bus"
	"github.com/sweeney/parking-gate/internal/logic"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "PARKING_"

// Transports accepted in Config.Transport.
const (
	TransportMQTT = "mqtt"
	TransportNATS = "nats"
)

// Config is the full daemon configuration.
type Config struct {
	ThresholdCm int           `toml:"threshold_cm" env:"THRESHOLD_CM"`
	Capacity    int           `toml:"capacity" env:"CAPACITY"`
	Timezone    string        `toml:"timezone" env:"TIMEZONE"`
	Transport   string        `toml:"transport" env:"TRANSPORT"`
	Heartbeat   time.Duration `toml:"heartbeat" env:"HEARTBEAT"`

	MQTT  MQTT  `toml:"mqtt" envPrefix:"MQTT_"`
	NATS  NATS  `toml:"nats" envPrefix:"NATS_"`
	Store Store `toml:"store" envPrefix:"STORE_"`
	HTTP  HTTP  `toml:"http" envPrefix:"HTTP_"`
	GPIO  GPIO  `toml:"gpio" envPrefix:"GPIO_"`
}

type MQTT struct {
	Broker      string `toml:"broker" env:"BROKER"`
	ClientID    string `toml:"client_id" env:"CLIENT_ID"`
	TopicPrefix string `toml:"topic_prefix" env:"TOPIC_PREFIX"`
}

type NATS struct {
	URL           string `toml:"url" env:"URL"`
	SubjectPrefix string `toml:"subject_prefix" env:"SUBJECT_PREFIX"`
}

type Store struct {
	Path string `toml:"path" env:"PATH"`
}

// HTTP configures the status page. An empty Addr disables it.
type HTTP struct {
	Addr string `toml:"addr" env:"ADDR"`
}

// GPIO configures the actuation output lines. A pin of -1 disables that lane.
type GPIO struct {
	Chip     string `toml:"chip" env:"CHIP"`
	EntryPin int    `toml:"entry_pin" env:"ENTRY_PIN"`
	ExitPin  int    `toml:"exit_pin" env:"EXIT_PIN"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ThresholdCm: logic.DefaultThresholdCm,
		Capacity:    logic.DefaultCapacity,
		Timezone:    "Local",
		Transport:   TransportMQTT,
		Heartbeat:   15 * time.Minute,
		MQTT: MQTT{
			Broker:      "tcp://localhost:1883",
			ClientID:    "parking-gate",
			TopicPrefix: bus.DefaultMQTTPrefix,
		},
		NATS: NATS{
			URL:           "nats://localhost:4222",
			SubjectPrefix: bus.DefaultNATSPrefix,
		},
		Store: Store{Path: "parking-gate.db"},
		HTTP:  HTTP{Addr: ":8080"},
		GPIO:  GPIO{Chip: "gpiochip0", EntryPin: -1, ExitPin: -1},
	}
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the controller cannot run with.
func (c Config) Validate() error {
	if c.ThresholdCm <= 0 {
		return fmt.Errorf("%w: threshold_cm must be positive, got %d", ErrInvalid, c.ThresholdCm)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalid, c.Capacity)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("%w: heartbeat must not be negative", ErrInvalid)
	}
	switch c.Transport {
	case TransportMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("%w: mqtt.broker is required", ErrInvalid)
		}
	case TransportNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("%w: nats.url is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalid, c.Transport)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required", ErrInvalid)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalid, c.Timezone, err)
	}
	return loc, nil
}

// Topics returns the topic or subject set for the configured transport.
func (c Config) Topics() bus.Topics {
	if c.Transport == TransportNATS {
		return bus.NATSSubjects(c.NATS.SubjectPrefix)
	}
	return bus.MQTTTopics(c.MQTT.TopicPrefix)
}

// Endpoint is the broker address for the configured transport.
func (c Config) Endpoint() string {
	if c.Transport == TransportNATS {
		return c.NATS.URL
	}
	return c.MQTT.Broker
}

// Controller returns the core controller settings.
func (c Config) Controller() (logic.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return logic.Config{}, err
	}
	return logic.Config{ThresholdCm: c.ThresholdCm, Capacity: c.Capacity, Location: loc}, nil
}

// Package config builds a bus and its remote bridge from environment
// variables.
//
//	cfg, err := config.Load()
//	bus := eventbus.New(config.BusOptions(cfg)...)
//	bridge, err := config.OpenBridge(ctx, cfg)
//	if bridge != nil {
//	    bus.EnableRemote(ctx, bridge)
//	}
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rbaliyan/eventbus"
	"github.com/rbaliyan/eventbus/transport/codec"
)

// Bridge kinds
const (
	BridgeNone   = "none"
	BridgeStream = "stream"
	BridgeNATS   = "nats"
	BridgeRedis  = "redis"
	BridgeKafka  = "kafka"
)

// Configuration errors
var (
	ErrUnknownBridge = errors.New("unknown bridge")
	ErrMissingAddr   = errors.New("bridge address not configured")
)

// Config is the process-level bus configuration.
type Config struct {
	Name          string        `env:"EVENTBUS_NAME"           envDefault:"eventbus"`
	Bridge        string        `env:"EVENTBUS_BRIDGE"         envDefault:"none"`
	Codec         string        `env:"EVENTBUS_CODEC"          envDefault:"json"`
	InboundBuffer int           `env:"EVENTBUS_INBOUND_BUFFER" envDefault:"1024"`
	DialTimeout   time.Duration `env:"EVENTBUS_DIAL_TIMEOUT"   envDefault:"10s"`

	StreamAddr   string `env:"EVENTBUS_STREAM_ADDR"`
	StreamListen string `env:"EVENTBUS_STREAM_LISTEN"`
	MaxFrameSize uint32 `env:"EVENTBUS_MAX_FRAME_SIZE" envDefault:"16777216"`

	NATSURL     string `env:"EVENTBUS_NATS_URL"`
	NATSSubject string `env:"EVENTBUS_NATS_SUBJECT" envDefault:"eventbus"`

	RedisAddr    string `env:"EVENTBUS_REDIS_ADDR"`
	RedisChannel string `env:"EVENTBUS_REDIS_CHANNEL" envDefault:"eventbus"`

	KafkaBrokers []string `env:"EVENTBUS_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"EVENTBUS_KAFKA_TOPIC"   envDefault:"eventbus"`
}

// Load reads Config from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected bridge has what it needs.
func (c *Config) Validate() error {
	if _, err := codec.ByName(c.Codec); err != nil {
		return err
	}
	switch c.Bridge {
	case "", BridgeNone:
	case BridgeStream:
		if c.StreamAddr == "" && c.StreamListen == "" {
			return fmt.Errorf("%w: set EVENTBUS_STREAM_ADDR or EVENTBUS_STREAM_LISTEN", ErrMissingAddr)
		}
	case BridgeNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("%w: EVENTBUS_NATS_URL", ErrMissingAddr)
		}
	case BridgeRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: EVENTBUS_REDIS_ADDR", ErrMissingAddr)
		}
	case BridgeKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("%w: EVENTBUS_KAFKA_BROKERS", ErrMissingAddr)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBridge, c.Bridge)
	}
	return nil
}

// BusOptions translates cfg into bus options.
func BusOptions(cfg *Config) []eventbus.BusOption {
	opts := []eventbus.BusOption{
		eventbus.WithBusName(cfg.Name),
		eventbus.WithInboundBuffer(cfg.InboundBuffer),
	}
	if c, err := codec.ByName(cfg.Codec); err == nil {
		opts = append(opts, eventbus.WithBusCodec(c))
	}
	return opts
}

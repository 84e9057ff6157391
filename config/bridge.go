package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rbaliyan/eventbus/transport"
	"github.com/rbaliyan/eventbus/transport/kafka"
	natsbridge "github.com/rbaliyan/eventbus/transport/nats"
	redisbridge "github.com/rbaliyan/eventbus/transport/redis"
	"github.com/rbaliyan/eventbus/transport/stream"
)

// ownedBridge closes the connection it was opened on together with the bridge.
type ownedBridge struct {
	transport.Bridge
	release func() error
}

func (b *ownedBridge) Close(ctx context.Context) error {
	return errors.Join(b.Bridge.Close(ctx), b.release())
}

func (b *ownedBridge) Health(ctx context.Context) *transport.HealthCheckResult {
	if hc, ok := b.Bridge.(transport.HealthChecker); ok {
		return hc.Health(ctx)
	}
	return &transport.HealthCheckResult{Status: transport.HealthStatusHealthy}
}

// OpenBridge connects the bridge selected by cfg. It returns nil, nil for
// BridgeNone. Closing the returned bridge also closes its connection.
func OpenBridge(ctx context.Context, cfg *Config) (transport.Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := transport.Logger("config>" + cfg.Name)

	switch cfg.Bridge {
	case "", BridgeNone:
		return nil, nil

	case BridgeStream:
		opts := []stream.Option{stream.WithMaxFrameSize(cfg.MaxFrameSize)}
		if cfg.StreamListen != "" {
			logger.Info("listening for peers", "addr", cfg.StreamListen)
			srv, err := stream.Listen(ctx, cfg.StreamListen, opts...)
			if err != nil {
				return nil, err
			}
			return srv, nil
		}
		dctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		logger.Info("dialing stream peer", "addr", cfg.StreamAddr)
		client, err := stream.Dial(dctx, cfg.StreamAddr, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil

	case BridgeNATS:
		conn, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.Name), nats.Timeout(cfg.DialTimeout))
		if err != nil {
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		b, err := natsbridge.New(conn, natsbridge.WithSubject(cfg.NATSSubject))
		if err != nil {
			conn.Close()
			return nil, err
		}
		return &ownedBridge{Bridge: b, release: func() error { conn.Close(); return nil }}, nil

	case BridgeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			DialTimeout: cfg.DialTimeout,
		})
		b, err := redisbridge.New(ctx, client, redisbridge.WithChannel(cfg.RedisChannel))
		if err != nil {
			client.Close()
			return nil, err
		}
		return &ownedBridge{Bridge: b, release: client.Close}, nil

	case BridgeKafka:
		sc := sarama.NewConfig()
		sc.ClientID = cfg.Name
		sc.Net.DialTimeout = cfg.DialTimeout
		sc.Producer.Return.Successes = true
		sc.Producer.RequiredAcks = sarama.WaitForLocal
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
		client, err := sarama.NewClient(cfg.KafkaBrokers, sc)
		if err != nil {
			return nil, fmt.Errorf("kafka connect: %w", err)
		}
		b, err := kafka.New(client, kafka.WithTopic(cfg.KafkaTopic), kafka.WithGroupPrefix(cfg.Name))
		if err != nil {
			client.Close()
			return nil, err
		}
		return &ownedBridge{Bridge: b, release: client.Close}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBridge, cfg.Bridge)
}

var _ transport.HealthChecker = (*ownedBridge)(nil)

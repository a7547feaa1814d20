package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/blackcatacademy/blackcat-database/internal/config"
	"github.com/blackcatacademy/blackcat-database/outbox"
	"github.com/blackcatacademy/blackcat-database/outbox/kafka"
	"github.com/blackcatacademy/blackcat-database/outbox/redisstream"
)

func noopClose() error { return nil }

// newDispatcher builds the configured sink and the function releasing its connection.
func newDispatcher(ctx context.Context, cfg *config.Config, logger outbox.Logger) (outbox.Dispatcher, func() error, error) {
	switch cfg.Dispatcher.Kind {
	case config.DispatcherKafka:
		producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return nil, nil, err
		}
		var opts []kafka.Option
		if cfg.Kafka.Topic != "" {
			opts = append(opts, kafka.WithTopic(cfg.Kafka.Topic))
		}
		d, err := kafka.New(producer, opts...)
		if err != nil {
			_ = producer.Close()
			return nil, nil, err
		}
		return d, producer.Close, nil

	case config.DispatcherRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		d, err := redisstream.New(client,
			redisstream.WithPrefix(cfg.Redis.StreamPrefix),
			redisstream.WithMaxLen(cfg.Redis.MaxLen, true),
		)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return d, client.Close, nil

	case config.DispatcherLog:
		return logDispatcher(logger), noopClose, nil

	default:
		return nil, nil, fmt.Errorf("unsupported dispatcher %q", cfg.Dispatcher.Kind)
	}
}

// logDispatcher writes every event to the log. Useful for dry runs.
func logDispatcher(logger outbox.Logger) outbox.Dispatcher {
	return outbox.DispatcherFunc(func(_ context.Context, event outbox.Event) error {
		logger.Info("outbox event",
			"id", event.ID,
			"event_type", event.EventType,
			"routing_key", event.RoutingKey,
			"aggregate_id", event.AggregateID,
			"attempt", event.Attempt,
			"payload", string(event.Payload),
		)
		return nil
	})
}

// Package bootstrap builds the shared infrastructure the commands wire
// together: the Postgres pool, the topic registry and the publish dispatcher.
package bootstrap

import (
	"fmt"
	"time"

	"github.com/jmehdipour/dbrelay/internal/bus"
	"github.com/jmehdipour/dbrelay/internal/config"
	"github.com/jmehdipour/dbrelay/internal/db"
	"github.com/jmehdipour/dbrelay/internal/deadletter"
	"github.com/jmehdipour/dbrelay/internal/dispatcher"
	"github.com/jmehdipour/dbrelay/internal/kafka"
	"github.com/jmehdipour/dbrelay/internal/nats"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func Postgres(cfg config.Config) (*sqlx.DB, error) {
	dbx, err := db.NewPostgresConnection(cfg.Postgres.ConnString(), db.PostgresOpts{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
		PingTimeout:     cfg.Postgres.PingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return dbx, nil
}

// Bus returns the topic registry for the configured driver. closeFn releases
// every cached topic and the driver connection.
func Bus(cfg config.Config, log *zap.Logger) (reg *bus.Registry, closeFn func(), err error) {
	switch cfg.Bus.Driver {
	case "nats":
		conn, err := nats.Connect(nats.Config{
			URL:           cfg.NATS.URL,
			MaxReconnect:  cfg.NATS.MaxReconnect,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, log.Named("nats"))
		if err != nil {
			return nil, nil, err
		}
		reg = bus.NewRegistry(nats.NewTopicFactory(conn), cfg.Bus.TopicPrefix)
		return reg, func() {
			_ = reg.Close()
			if err := conn.Drain(); err != nil {
				conn.Close()
			}
		}, nil

	default:
		reg = bus.NewRegistry(kafka.NewTopicFactory(kafka.ProducerConfig{
			Brokers:          cfg.Kafka.Brokers,
			BatchTimeout:     cfg.Kafka.BatchTimeout,
			WriteTimeout:     cfg.Kafka.WriteTimeout,
			RequiredAcks:     cfg.Kafka.RequiredAcks,
			AutoCreateTopics: cfg.Kafka.AutoCreateTopics,
		}), cfg.Bus.TopicPrefix)
		return reg, func() {
			if err := reg.Close(); err != nil {
				log.Warn("closing kafka writers", zap.Error(err))
			}
		}, nil
	}
}

// DeadLetters connects the Redis sink, or returns nil when dead-lettering is
// disabled.
func DeadLetters(cfg config.Config) (sink *deadletter.RedisSink, closeFn func(), err error) {
	if !cfg.DeadLetter.Enabled {
		return nil, func() {}, nil
	}
	rdb, err := db.NewRedisClient(db.RedisOpts{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis connect: %w", err)
	}
	return deadletter.NewRedisSink(rdb, cfg.DeadLetter.Key), func() { _ = rdb.Close() }, nil
}

func Dispatcher(cfg config.Config, topics dispatcher.TopicResolver, sink *deadletter.RedisSink, log *zap.Logger) *dispatcher.Dispatcher {
	var dl dispatcher.DeadLetterSink
	if sink != nil {
		dl = sink
	}
	return dispatcher.New(topics, dispatcher.Config{
		MaxAttempts:      cfg.Dispatcher.MaxAttempts,
		RetryDelay:       cfg.Dispatcher.RetryDelay,
		BreakerThreshold: cfg.Dispatcher.Breaker.FailThreshold,
		BreakerOpenFor:   time.Duration(cfg.Dispatcher.Breaker.OpenForMs) * time.Millisecond,
	}, dl, log.Named("dispatcher"))
}

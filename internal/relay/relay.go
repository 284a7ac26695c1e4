package relay

import (
	"context"
	"time"

	"github.com/jmehdipour/dbrelay/internal/bus"
)

// Publisher is satisfied by *dispatcher.Dispatcher.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg bus.Message) error
}

// Config holds the loop and fan-out settings shared by both relays.
type Config struct {
	Interval        time.Duration
	Concurrency     int // max publishes in flight per flush
	QueueCapacity   int
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults(interval time.Duration) Config {
	if c.Interval <= 0 {
		c.Interval = interval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 32
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	return c
}

// FlushResult counts what happened to one drained batch.
type FlushResult struct {
	Drained   int // notices taken from the queue
	Distinct  int // after collapsing duplicates
	Published int
	Failed    int // fetch or publish error
	Missing   int // no row / no change record at fetch time
}

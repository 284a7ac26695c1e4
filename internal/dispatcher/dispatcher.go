package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmehdipour/dbrelay/internal/bus"
	"github.com/jmehdipour/dbrelay/internal/metrics"
	"github.com/jmehdipour/dbrelay/internal/model"
	"github.com/jmehdipour/dbrelay/internal/util"
	"go.uber.org/zap"
)

var ErrBreakerOpen = errors.New("topic circuit breaker open")

// TopicResolver is satisfied by *bus.Registry.
type TopicResolver interface {
	Topic(name string) (bus.Topic, error)
}

// DeadLetterSink stores messages that exhausted their attempts.
type DeadLetterSink interface {
	Push(ctx context.Context, dl model.DeadLetter) error
}

type Config struct {
	MaxAttempts      int           // 1 = single publish, no retry
	RetryDelay       time.Duration // fixed delay between attempts
	BreakerThreshold int           // 0 disables the per-topic breaker
	BreakerOpenFor   time.Duration
}

// Dispatcher publishes to named topics with bounded attempts, a per-topic
// circuit breaker and an optional dead-letter hand-off.
type Dispatcher struct {
	topics     TopicResolver
	cfg        Config
	deadLetter DeadLetterSink
	log        *zap.Logger

	mu       sync.Mutex
	breakers map[string]*TopicBreaker
}

// New builds a dispatcher; sink may be nil.
func New(topics TopicResolver, cfg Config, sink DeadLetterSink, log *zap.Logger) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		topics:     topics,
		cfg:        cfg,
		deadLetter: sink,
		log:        log,
		breakers:   make(map[string]*TopicBreaker),
	}
}

func (d *Dispatcher) breaker(topic string) *TopicBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.breakers[topic]
	if !ok {
		b = NewTopicBreaker(d.cfg.BreakerThreshold, d.cfg.BreakerOpenFor)
		d.breakers[topic] = b
	}
	return b
}

// BreakerStates reports the breaker state per topic that has been used.
func (d *Dispatcher) BreakerStates() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.breakers))
	for name, b := range d.breakers {
		out[name] = b.State()
	}
	return out
}

// Publish sends msg to topic. On final failure the message is dead-lettered
// (when a sink is configured) and the last error is returned.
func (d *Dispatcher) Publish(ctx context.Context, topic string, msg bus.Message) error {
	if msg.ID == "" {
		msg.ID = util.New()
	}
	br := d.breaker(topic)

	var (
		last     error
		attempts int
	)
	for attempts < d.cfg.MaxAttempts {
		if attempts > 0 {
			if err := sleep(ctx, d.cfg.RetryDelay); err != nil {
				last = err
				break
			}
		}
		if !br.Acquire() {
			last = ErrBreakerOpen
			break
		}
		attempts++

		err := d.tryOnce(ctx, topic, msg)
		if err == nil {
			br.OnSuccess()
			metrics.PublishTotal.WithLabelValues(topic, "ok").Inc()
			return nil
		}
		br.OnFailure()
		last = err
	}

	if last == nil {
		last = fmt.Errorf("publish failed")
	}
	metrics.PublishTotal.WithLabelValues(topic, "failed").Inc()
	d.toDeadLetter(ctx, topic, msg, last, attempts)

	return fmt.Errorf("publish %s (attempts=%d): %w", topic, attempts, last)
}

func (d *Dispatcher) tryOnce(ctx context.Context, topic string, msg bus.Message) error {
	t, err := d.topics.Topic(topic)
	if err != nil {
		return fmt.Errorf("resolve topic: %w", err)
	}
	return t.Publish(ctx, msg)
}

func (d *Dispatcher) toDeadLetter(ctx context.Context, topic string, msg bus.Message, cause error, attempts int) {
	if d.deadLetter == nil {
		return
	}
	dl := model.DeadLetter{
		ID:         msg.ID,
		Topic:      topic,
		Key:        msg.Key,
		Body:       msg.Body,
		Attributes: msg.Attributes,
		Error:      cause.Error(),
		Attempts:   attempts,
		FailedAt:   time.Now().UTC(),
	}
	// the relay context may already be cancelled at shutdown
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.deadLetter.Push(pushCtx, dl); err != nil {
		d.log.Error("dead-letter push failed",
			zap.String("topic", topic), zap.String("id", msg.ID), zap.Error(err))
		return
	}
	metrics.DeadLettersTotal.WithLabelValues(topic).Inc()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

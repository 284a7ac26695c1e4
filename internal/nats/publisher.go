package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/dbrelay/internal/bus"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type Config struct {
	URL           string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// Connect opens a NATS connection whose lifecycle events are logged.
func Connect(c Config, log *zap.Logger) (*nats.Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	wait := c.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.Name("dbrelay"),
		nats.MaxReconnects(c.MaxReconnect),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Warn("nats connection closed")
		}),
	}

	conn, err := nats.Connect(c.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info("connected to nats", zap.String("url", c.URL))
	return conn, nil
}

// Topic publishes to one subject on a shared connection.
type Topic struct {
	conn    *nats.Conn
	subject string
}

// NewTopicFactory maps topic names 1:1 to subjects on conn.
func NewTopicFactory(conn *nats.Conn) bus.Factory {
	return func(name string) (bus.Topic, error) {
		return &Topic{conn: conn, subject: name}, nil
	}
}

func (t *Topic) Name() string { return t.subject }

// Publish hands the message to the client's outbound buffer; ctx only guards
// against publishing after cancellation.
func (t *Topic) Publish(ctx context.Context, msg bus.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.conn.PublishMsg(toNATSMsg(t.subject, msg)); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	return nil
}

// Close is a no-op: the connection is shared and closed by its owner.
func (t *Topic) Close() error { return nil }

func toNATSMsg(subject string, msg bus.Message) *nats.Msg {
	m := nats.NewMsg(subject)
	m.Data = msg.Body
	if msg.ID != "" {
		m.Header.Set(nats.MsgIdHdr, msg.ID)
	}
	if len(msg.Key) > 0 {
		m.Header.Set("key", string(msg.Key))
	}
	for k, v := range msg.Attributes {
		m.Header.Set(k, v)
	}
	return m
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Notification channels the relay subscribes to.
const (
	ChannelBlocks   = "blocks"
	ChannelTrigger  = "trigger"
	ChannelOnUpsert = "onupsert"
)

// Notification is one asynchronous NOTIFY payload.
type Notification struct {
	Channel string
	Payload string
}

// Listener owns a dedicated connection (outside the pool) that has issued
// LISTEN on a fixed set of channels.
type Listener struct {
	conn     *pgx.Conn
	channels []string
}

// Listen connects and subscribes to channels. The connection is not
// re-established on loss; callers treat a Next error as fatal.
func Listen(ctx context.Context, connString string, timeout time.Duration, channels ...string) (*Listener, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := pgx.Connect(dialCtx, connString)
	if err != nil {
		return nil, fmt.Errorf("listener connect: %w", err)
	}

	for _, ch := range channels {
		if _, err := conn.Exec(dialCtx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			_ = conn.Close(context.Background())
			return nil, fmt.Errorf("listen %s: %w", ch, err)
		}
	}

	return &Listener{conn: conn, channels: channels}, nil
}

// Next blocks until a notification arrives or ctx is done.
func (l *Listener) Next(ctx context.Context) (Notification, error) {
	n, err := l.conn.WaitForNotification(ctx)
	if err != nil {
		return Notification{}, err
	}
	return Notification{Channel: n.Channel, Payload: n.Payload}, nil
}

func (l *Listener) Channels() []string { return l.channels }

func (l *Listener) Close(ctx context.Context) error { return l.conn.Close(ctx) }

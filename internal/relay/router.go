package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmehdipour/dbrelay/internal/db"
	"github.com/jmehdipour/dbrelay/internal/metrics"
	"go.uber.org/zap"
)

// NotificationSource is satisfied by *db.Listener.
type NotificationSource interface {
	Next(ctx context.Context) (db.Notification, error)
}

// BlockHandler starts confirmation of a newly announced block without blocking.
type BlockHandler interface {
	OnBlockNotification(ctx context.Context, blockID string)
}

// Router reads the LISTEN connection and hands each notification to the
// component that owns its channel.
type Router struct {
	src     NotificationSource
	blocks  BlockHandler
	trigger *TriggerDispatcher
	upsert  *UpsertMirror
	log     *zap.Logger
}

func NewRouter(src NotificationSource, blocks BlockHandler, trigger *TriggerDispatcher, upsert *UpsertMirror, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{src: src, blocks: blocks, trigger: trigger, upsert: upsert, log: log}
}

// Run returns nil when ctx is cancelled and the listener error otherwise; a
// lost connection is not recovered here.
func (r *Router) Run(ctx context.Context) error {
	for {
		n, err := r.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("listener: %w", err)
		}
		r.Route(ctx, n)
	}
}

func (r *Router) Route(ctx context.Context, n db.Notification) {
	switch n.Channel {
	case db.ChannelBlocks:
		if n.Payload == "" {
			r.malformed(n, errors.New("empty block id"))
			return
		}
		metrics.NoticesTotal.WithLabelValues(n.Channel, "queued").Inc()
		r.blocks.OnBlockNotification(ctx, n.Payload)

	case db.ChannelTrigger:
		cn, err := ParseChangeNotice(n.Payload)
		if err != nil {
			r.malformed(n, err)
			return
		}
		if err := r.trigger.Enqueue(cn); err != nil {
			r.log.Warn("trigger notice rejected",
				zap.String("channel", cn.Channel), zap.Int64("uid", cn.UID), zap.Error(err))
		}

	case db.ChannelOnUpsert:
		un, err := ParseUpsertNotice(n.Payload)
		if err != nil {
			r.malformed(n, err)
			return
		}
		if err := r.upsert.Enqueue(un); err != nil {
			r.log.Warn("upsert notice rejected",
				zap.String("table", un.Table), zap.String("uid", un.UID), zap.Error(err))
		}

	default:
		r.log.Warn("notification on unexpected channel", zap.String("channel", n.Channel))
	}
}

func (r *Router) malformed(n db.Notification, err error) {
	metrics.NoticesTotal.WithLabelValues(n.Channel, "malformed").Inc()
	r.log.Warn("malformed notification dropped",
		zap.String("channel", n.Channel), zap.String("payload", n.Payload), zap.Error(err))
}

package deadletter

import (
	"context"
	"fmt"

	"github.com/jmehdipour/dbrelay/internal/bus"
	"github.com/jmehdipour/dbrelay/internal/model"
	"go.uber.org/zap"
)

// Source yields dead letters oldest first; *RedisSink is one.
type Source interface {
	Pop(ctx context.Context) (model.DeadLetter, bool, error)
	Push(ctx context.Context, dl model.DeadLetter) error
}

// Publisher is satisfied by *dispatcher.Dispatcher.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg bus.Message) error
}

type ReplayResult struct {
	Replayed int `json:"replayed"`
	Failed   int `json:"failed"`
}

// Replay republishes up to limit dead letters with their original id, key and
// attributes. A letter that fails again is pushed back and replay stops, so a
// broker outage does not spin through the whole list.
func Replay(ctx context.Context, src Source, pub Publisher, limit int, log *zap.Logger) (ReplayResult, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var res ReplayResult
	for limit <= 0 || res.Replayed+res.Failed < limit {
		dl, ok, err := src.Pop(ctx)
		if err != nil {
			return res, err
		}
		if !ok {
			return res, nil
		}

		err = pub.Publish(ctx, dl.Topic, bus.Message{
			ID:         dl.ID,
			Key:        dl.Key,
			Body:       dl.Body,
			Attributes: dl.Attributes,
		})
		if err == nil {
			res.Replayed++
			log.Info("dead letter replayed", zap.String("id", dl.ID), zap.String("topic", dl.Topic))
			continue
		}

		res.Failed++
		dl.Attempts++
		dl.Error = err.Error()
		if perr := src.Push(context.WithoutCancel(ctx), dl); perr != nil {
			return res, fmt.Errorf("requeue %s after %v: %w", dl.ID, err, perr)
		}
		log.Warn("dead letter replay failed, requeued",
			zap.String("id", dl.ID), zap.String("topic", dl.Topic), zap.Error(err))
		return res, nil
	}
	return res, nil
}

// Replayer binds a sink to a publisher for the operator endpoints.
type Replayer struct {
	sink *RedisSink
	pub  Publisher
	log  *zap.Logger
}

func NewReplayer(sink *RedisSink, pub Publisher, log *zap.Logger) *Replayer {
	return &Replayer{sink: sink, pub: pub, log: log}
}

func (r *Replayer) Len(ctx context.Context) (int64, error) { return r.sink.Len(ctx) }

func (r *Replayer) Replay(ctx context.Context, limit int) (ReplayResult, error) {
	return Replay(ctx, r.sink, r.pub, limit, r.log)
}

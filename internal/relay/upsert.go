package relay

import (
	"context"
	"sync"
	"time"

	"github.com/jmehdipour/dbrelay/internal/bus"
	"github.com/jmehdipour/dbrelay/internal/db"
	"github.com/jmehdipour/dbrelay/internal/metrics"
	"github.com/jmehdipour/dbrelay/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RowFetcher is satisfied by repository.RowsRepository. Get returns nil, nil
// for a missing row.
type RowFetcher interface {
	Get(ctx context.Context, key model.UpsertKey) ([]byte, error)
}

// UpsertMirror republishes the current value of every row named by an
// `onupsert` notice to one shared topic. Rows are read at flush time, so a
// burst of notices for one row yields a single publish of its latest state.
type UpsertMirror struct {
	rows  RowFetcher
	pub   Publisher
	topic string
	queue *Queue[model.UpsertNotice]
	cfg   Config
	log   *zap.Logger
}

func NewUpsertMirror(rows RowFetcher, pub Publisher, topic string, cfg Config, log *zap.Logger) *UpsertMirror {
	if log == nil {
		log = zap.NewNop()
	}
	if topic == "" {
		topic = db.ChannelOnUpsert
	}
	cfg = cfg.withDefaults(500 * time.Millisecond)
	return &UpsertMirror{
		rows:  rows,
		pub:   pub,
		topic: topic,
		queue: NewQueue[model.UpsertNotice](cfg.QueueCapacity),
		cfg:   cfg,
		log:   log,
	}
}

func (m *UpsertMirror) Enqueue(n model.UpsertNotice) error {
	if err := m.queue.Push(n); err != nil {
		metrics.NoticesTotal.WithLabelValues(db.ChannelOnUpsert, "rejected").Inc()
		return err
	}
	metrics.NoticesTotal.WithLabelValues(db.ChannelOnUpsert, "queued").Inc()
	metrics.QueueDepth.WithLabelValues("upsert").Set(float64(m.queue.Len()))
	return nil
}

func (m *UpsertMirror) Pending() int { return m.queue.Len() }

func (m *UpsertMirror) Topic() string { return m.topic }

func (m *UpsertMirror) Run(ctx context.Context) {
	m.log.Info("upsert mirror started", zap.Duration("interval", m.cfg.Interval), zap.String("topic", m.topic))
	runEvery(ctx, m.cfg.Interval, m.cfg.ShutdownTimeout, func(ctx context.Context) { m.Flush(ctx) })
	m.log.Info("upsert mirror stopped")
}

func (m *UpsertMirror) Flush(ctx context.Context) FlushResult {
	batch := m.queue.Drain()
	metrics.QueueDepth.WithLabelValues("upsert").Set(float64(m.queue.Len()))

	res := FlushResult{Drained: len(batch)}
	if len(batch) == 0 {
		return res
	}

	start := time.Now()
	defer func() {
		metrics.FlushDuration.WithLabelValues("upsert").Observe(time.Since(start).Seconds())
	}()

	// first-seen order, one entry per (table, uid, parentId)
	seen := make(map[model.UpsertKey]struct{}, len(batch))
	keys := make([]model.UpsertKey, 0, len(batch))
	for _, n := range batch {
		k := n.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	res.Distinct = len(keys)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(m.cfg.Concurrency)

	for _, k := range keys {
		k := k
		g.Go(func() error {
			outcome := m.mirror(ctx, k)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case "published":
				res.Published++
			case "skipped":
				res.Missing++
			default:
				res.Failed++
			}
			metrics.NoticesTotal.WithLabelValues(db.ChannelOnUpsert, outcome).Inc()
			return nil
		})
	}
	_ = g.Wait()

	m.log.Debug("upsert flush",
		zap.Int("drained", res.Drained), zap.Int("distinct", res.Distinct),
		zap.Int("published", res.Published), zap.Int("failed", res.Failed), zap.Int("missing", res.Missing))

	return res
}

func (m *UpsertMirror) mirror(ctx context.Context, k model.UpsertKey) string {
	row, err := m.rows.Get(ctx, k)
	if err != nil {
		m.log.Error("row fetch failed",
			zap.String("table", k.Table), zap.String("uid", k.UID), zap.String("parentId", k.ParentID), zap.Error(err))
		return "dropped"
	}
	if row == nil {
		return "skipped"
	}

	err = m.pub.Publish(ctx, m.topic, bus.Message{
		Key:        []byte(k.UID),
		Body:       row,
		Attributes: map[string]string{"table": k.Table},
	})
	if err != nil {
		m.log.Error("publish row failed",
			zap.String("table", k.Table), zap.String("uid", k.UID), zap.String("parentId", k.ParentID), zap.Error(err))
		return "dropped"
	}
	return "published"
}

package relay

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/jmehdipour/dbrelay/internal/bus"
	"github.com/jmehdipour/dbrelay/internal/db"
	"github.com/jmehdipour/dbrelay/internal/metrics"
	"github.com/jmehdipour/dbrelay/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChangeLister is the read side of repository.ChangesRepository.
type ChangeLister interface {
	ListByUIDs(ctx context.Context, uids []int64) ([]model.ChangeRecord, error)
}

// TriggerDispatcher batches `trigger` notices, resolves them against the
// changes table and republishes each change to the topic named by its channel.
type TriggerDispatcher struct {
	changes ChangeLister
	pub     Publisher
	queue   *Queue[model.ChangeNotice]
	cfg     Config
	log     *zap.Logger
}

func NewTriggerDispatcher(changes ChangeLister, pub Publisher, cfg Config, log *zap.Logger) *TriggerDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults(100 * time.Millisecond)
	return &TriggerDispatcher{
		changes: changes,
		pub:     pub,
		queue:   NewQueue[model.ChangeNotice](cfg.QueueCapacity),
		cfg:     cfg,
		log:     log,
	}
}

func (d *TriggerDispatcher) Enqueue(n model.ChangeNotice) error {
	if err := d.queue.Push(n); err != nil {
		metrics.NoticesTotal.WithLabelValues(db.ChannelTrigger, "rejected").Inc()
		return err
	}
	metrics.NoticesTotal.WithLabelValues(db.ChannelTrigger, "queued").Inc()
	metrics.QueueDepth.WithLabelValues("trigger").Set(float64(d.queue.Len()))
	return nil
}

func (d *TriggerDispatcher) Pending() int { return d.queue.Len() }

// Run flushes every Interval until ctx is done, then flushes once more.
func (d *TriggerDispatcher) Run(ctx context.Context) {
	d.log.Info("trigger dispatcher started", zap.Duration("interval", d.cfg.Interval))
	runEvery(ctx, d.cfg.Interval, d.cfg.ShutdownTimeout, func(ctx context.Context) { d.Flush(ctx) })
	d.log.Info("trigger dispatcher stopped")
}

// Flush publishes everything queued so far. Errors end in log lines and the
// returned counters; nothing is retried here.
func (d *TriggerDispatcher) Flush(ctx context.Context) FlushResult {
	batch := d.queue.Drain()
	metrics.QueueDepth.WithLabelValues("trigger").Set(float64(d.queue.Len()))

	res := FlushResult{Drained: len(batch)}
	if len(batch) == 0 {
		return res
	}

	start := time.Now()
	defer func() {
		metrics.FlushDuration.WithLabelValues("trigger").Observe(time.Since(start).Seconds())
	}()

	// uid -> channel; a uid notified on two channels keeps the later one
	routes := make(map[int64]string, len(batch))
	for _, n := range batch {
		routes[n.UID] = n.Channel
	}
	res.Distinct = len(routes)

	uids := make([]int64, 0, len(routes))
	for uid := range routes {
		uids = append(uids, uid)
	}
	slices.Sort(uids)

	records, err := d.changes.ListByUIDs(ctx, uids)
	if err != nil {
		d.log.Error("change lookup failed, batch dropped", zap.Int("uids", len(uids)), zap.Error(err))
		metrics.NoticesTotal.WithLabelValues(db.ChannelTrigger, "dropped").Add(float64(len(uids)))
		res.Failed = len(uids)
		return res
	}

	found := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		found[rec.UID] = struct{}{}
	}
	for _, uid := range uids {
		if _, ok := found[uid]; !ok {
			d.log.Info("change record not found", zap.String("channel", routes[uid]), zap.Int64("uid", uid))
			metrics.NoticesTotal.WithLabelValues(db.ChannelTrigger, "dropped").Inc()
			res.Missing++
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.cfg.Concurrency)

	for _, rec := range records {
		rec := rec
		channel := rec.Channel
		if channel == "" {
			channel = routes[rec.UID]
		}
		g.Go(func() error {
			err := d.pub.Publish(ctx, channel, bus.Message{
				Key:  []byte(strconv.FormatInt(rec.UID, 10)),
				Body: rec.Change,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.log.Error("publish change failed",
					zap.String("channel", channel), zap.Int64("uid", rec.UID), zap.Error(err))
				metrics.NoticesTotal.WithLabelValues(db.ChannelTrigger, "dropped").Inc()
				res.Failed++
				return nil
			}
			metrics.NoticesTotal.WithLabelValues(db.ChannelTrigger, "published").Inc()
			res.Published++
			return nil
		})
	}
	_ = g.Wait()

	d.log.Debug("trigger flush",
		zap.Int("drained", res.Drained), zap.Int("published", res.Published),
		zap.Int("failed", res.Failed), zap.Int("missing", res.Missing))

	return res
}

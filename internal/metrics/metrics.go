package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	NoticesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrelay_notices_total",
			Help: "Notifications by channel and lifecycle stage",
		},
		[]string{"channel", "stage"}, // blocks|trigger|onupsert , queued|published|skipped|dropped|rejected|malformed
	)

	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrelay_publish_total",
			Help: "Publish calls by topic and result",
		},
		[]string{"topic", "result"}, // ok|failed
	)

	DeadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrelay_dead_letters_total",
			Help: "Messages handed to the dead-letter sink",
		},
		[]string{"topic"},
	)

	FlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbrelay_flush_duration_seconds",
			Help:    "Duration of one relay flush",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"relay"}, // trigger|upsert
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbrelay_queue_depth",
			Help: "Notices waiting for the next flush",
		},
		[]string{"relay"},
	)

	BlockConfirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrelay_block_confirmations_total",
			Help: "Block confirmation tasks by outcome",
		},
		[]string{"outcome"}, // confirmed|duplicate|not_included|timed_out|stopped|failed
	)

	ConfirmationsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbrelay_block_confirmations_in_flight",
			Help: "Block confirmation tasks currently polling",
		},
	)
)

var once sync.Once

// MustRegister registers all collectors once; later calls are no-ops.
func MustRegister(r prometheus.Registerer) {
	once.Do(func() {
		r.MustRegister(
			NoticesTotal,
			PublishTotal,
			DeadLettersTotal,
			FlushDuration,
			QueueDepth,
			BlockConfirmations,
			ConfirmationsInFlight,
		)
	})
}

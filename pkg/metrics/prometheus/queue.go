package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/codescope/codedb/pkg/metrics"
	"github.com/codescope/codedb/pkg/queue"
)

// queueMetrics is the Prometheus implementation of queue.Recorder.
type queueMetrics struct {
	enqueued *prometheus.CounterVec
	dequeued *prometheus.CounterVec
	expired  prometheus.Counter
	rejected *prometheus.CounterVec
	depth    prometheus.Gauge
}

// NewQueueMetrics creates a Prometheus-backed queue.Recorder.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewQueueMetrics() queue.Recorder {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &queueMetrics{
		enqueued: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "codedb_queue_enqueued_total",
				Help: "Total requests enqueued by priority band",
			},
			[]string{"priority"},
		),
		dequeued: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "codedb_queue_dequeued_total",
				Help: "Total requests dequeued by priority band",
			},
			[]string{"priority"},
		),
		expired: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "codedb_queue_expired_total",
				Help: "Total requests dropped because their timeout elapsed before dequeue",
			},
		),
		rejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "codedb_queue_rejected_total",
				Help: "Total enqueue rejections by reason",
			},
			[]string{"reason"}, // "queue_full", "duplicate"
		),
		depth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "codedb_queue_depth",
				Help: "Current number of live queued requests",
			},
		),
	}
}

func (m *queueMetrics) RecordEnqueued(p queue.Priority) {
	m.enqueued.WithLabelValues(p.String()).Inc()
}

func (m *queueMetrics) RecordDequeued(p queue.Priority) {
	m.dequeued.WithLabelValues(p.String()).Inc()
}

func (m *queueMetrics) RecordExpired() {
	m.expired.Inc()
}

func (m *queueMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *queueMetrics) SetDepth(size int) {
	m.depth.Set(float64(size))
}

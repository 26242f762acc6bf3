package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/codescope/codedb/pkg/metrics"
)

// ServerMetrics records RPC server request lifecycle metrics.
type ServerMetrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	connections     prometheus.Counter
}

// NewServerMetrics creates a Prometheus-backed ServerMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewServerMetrics() *ServerMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &ServerMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "codedb_server_requests_total",
				Help: "Total RPC requests by method and outcome",
			},
			[]string{"method", "outcome"}, // outcome: "ok", "error", "timeout"
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "codedb_server_request_duration_milliseconds",
				Help: "End-to-end request duration in milliseconds",
				Buckets: []float64{
					0.5,   // fast point reads
					1,     // 1ms
					5,     // 5ms
					10,    // 10ms
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s - composite index_file calls
					30000, // 30s
				},
			},
			[]string{"method"},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "codedb_server_requests_in_flight",
				Help: "Requests accepted but not yet answered",
			},
		),
		connections: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "codedb_server_connections_total",
				Help: "Total accepted socket connections",
			},
		),
	}
}

// RecordRequest records one completed request.
func (m *ServerMetrics) RecordRequest(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.requestDuration.WithLabelValues(method).Observe(float64(duration.Microseconds()) / 1000.0)
}

// RequestStarted marks a request as in flight.
func (m *ServerMetrics) RequestStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// RequestFinished marks a request as answered.
func (m *ServerMetrics) RequestFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// RecordConnection counts one accepted connection.
func (m *ServerMetrics) RecordConnection() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ack and delivery outcomes used as label values.
const (
	ResultDeleted = "deleted"
	ResultStale   = "stale"
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// QueueMetrics holds the Prometheus collectors of the queue.
// A nil *QueueMetrics is valid and records nothing.
type QueueMetrics struct {
	registry         *prometheus.Registry
	ScheduledTotal   *prometheus.CounterVec
	LeasedTotal      *prometheus.CounterVec
	LeaseConflicts   prometheus.Counter
	AckTotal         *prometheus.CounterVec
	DeliveryTotal    *prometheus.CounterVec
	DispatchBatch    prometheus.Histogram
	DispatchDuration prometheus.Histogram
}

// NewQueueMetrics creates the collectors on a private registry.
func NewQueueMetrics() *QueueMetrics {
	m := &QueueMetrics{
		registry: prometheus.NewRegistry(),
		ScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delayq_messages_scheduled_total",
				Help: "Total number of scheduled messages",
			},
			[]string{"kind"},
		),
		LeasedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delayq_messages_leased_total",
				Help: "Total number of granted leases",
			},
			[]string{"kind"},
		),
		LeaseConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "delayq_lease_conflicts_total",
				Help: "Total number of lease attempts lost to a concurrent poller",
			},
		),
		AckTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delayq_acks_total",
				Help: "Total number of acknowledgements by result",
			},
			[]string{"result"},
		),
		DeliveryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delayq_deliveries_total",
				Help: "Total number of delivery attempts by sink and result",
			},
			[]string{"sink", "result"},
		),
		DispatchBatch: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "delayq_dispatch_batch_size",
				Help:    "Number of messages leased per dispatch tick",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "delayq_dispatch_duration_seconds",
				Help:    "Duration of a dispatch tick",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ScheduledTotal,
		m.LeasedTotal,
		m.LeaseConflicts,
		m.AckTotal,
		m.DeliveryTotal,
		m.DispatchBatch,
		m.DispatchDuration,
	)

	return m
}

// Handler returns the HTTP handler exposing the registry.
func (m *QueueMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *QueueMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *QueueMetrics) Scheduled(kind string) {
	if m == nil {
		return
	}
	m.ScheduledTotal.WithLabelValues(kind).Inc()
}

func (m *QueueMetrics) Leased(kind string) {
	if m == nil {
		return
	}
	m.LeasedTotal.WithLabelValues(kind).Inc()
}

func (m *QueueMetrics) LeaseConflict() {
	if m == nil {
		return
	}
	m.LeaseConflicts.Inc()
}

func (m *QueueMetrics) Acked(deleted int64) {
	if m == nil {
		return
	}
	if deleted > 0 {
		m.AckTotal.WithLabelValues(ResultDeleted).Inc()

		return
	}
	m.AckTotal.WithLabelValues(ResultStale).Inc()
}

func (m *QueueMetrics) Delivered(sink, result string) {
	if m == nil {
		return
	}
	m.DeliveryTotal.WithLabelValues(sink, result).Inc()
}

func (m *QueueMetrics) Dispatched(batch int, took time.Duration) {
	if m == nil {
		return
	}
	m.DispatchBatch.Observe(float64(batch))
	m.DispatchDuration.Observe(took.Seconds())
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatcherMetrics tracks outbox dispatch outcomes per event type.
type DispatcherMetrics struct {
	dispatched   *prometheus.CounterVec
	failed       *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	batchSeconds prometheus.Histogram
	backlog      prometheus.Gauge
}

// NewDispatcherMetrics registers the dispatcher metrics on the provided registerer.
func NewDispatcherMetrics(reg prometheus.Registerer) *DispatcherMetrics {
	if reg == nil {
		return &DispatcherMetrics{}
	}
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_dispatched_total",
		Help: "Outbox events handled successfully.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_failed_total",
		Help: "Outbox dispatch attempts that failed.",
	}, []string{"event_type"})
	deadLettered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_dead_lettered_total",
		Help: "Outbox events moved to the dead letter queue.",
	}, []string{"event_type"})
	batchSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_dispatch_batch_seconds",
		Help:    "Duration of one dispatch batch in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_pending_events",
		Help: "Pending outbox events observed at the last poll.",
	})
	reg.MustRegister(dispatched, failed, deadLettered, batchSeconds, backlog)
	return &DispatcherMetrics{
		dispatched:   dispatched,
		failed:       failed,
		deadLettered: deadLettered,
		batchSeconds: batchSeconds,
		backlog:      backlog,
	}
}

func (d *DispatcherMetrics) IncDispatched(eventType string) {
	if d == nil || d.dispatched == nil {
		return
	}
	d.dispatched.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (d *DispatcherMetrics) IncFailed(eventType string) {
	if d == nil || d.failed == nil {
		return
	}
	d.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (d *DispatcherMetrics) IncDeadLettered(eventType string) {
	if d == nil || d.deadLettered == nil {
		return
	}
	d.deadLettered.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (d *DispatcherMetrics) ObserveBatch(duration time.Duration) {
	if d == nil || d.batchSeconds == nil {
		return
	}
	d.batchSeconds.Observe(duration.Seconds())
}

func (d *DispatcherMetrics) SetBacklog(pending int) {
	if d == nil || d.backlog == nil {
		return
	}
	d.backlog.Set(float64(pending))
}

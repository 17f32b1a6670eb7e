package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aggregator/internal/model"
)

const namespace = "aggregator"

// Metrics collects pipeline counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	snapshots       *prometheus.CounterVec
	malformedFrames *prometheus.CounterVec
	enqueueFailures *prometheus.CounterVec
	summaries       prometheus.Counter
	spread          prometheus.Gauge
	subscribers     prometheus.Gauge
	lagged          prometheus.Counter
	ingestLatency   prometheus.Histogram
}

// NewMetrics registers the pipeline collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Venue snapshots parsed and enqueued.",
		}, []string{"venue"}),
		malformedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Venue frames skipped because they did not parse.",
		}, []string{"venue"}),
		enqueueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueue_failures_total",
			Help:      "Snapshots that could not be handed to the aggregation engine.",
		}, []string{"venue"}),
		summaries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_published_total",
			Help:      "Summaries published to subscribers.",
		}),
		spread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spread",
			Help:      "Spread of the last published summary.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Active summary streams.",
		}),
		lagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lagged_summaries_total",
			Help:      "Summaries skipped by subscribers that fell behind.",
		}),
		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_latency_seconds",
			Help:      "Time from reading a venue frame to publishing its summary.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}

	m.registry.MustRegister(
		m.snapshots,
		m.malformedFrames,
		m.enqueueFailures,
		m.summaries,
		m.spread,
		m.subscribers,
		m.lagged,
		m.ingestLatency,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncSnapshot records a snapshot handed to the queue.
func (m *Metrics) IncSnapshot(venue model.Venue) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(venue.String()).Inc()
}

// IncMalformedFrame records a skipped venue frame.
func (m *Metrics) IncMalformedFrame(venue model.Venue) {
	if m == nil {
		return
	}
	m.malformedFrames.WithLabelValues(venue.String()).Inc()
}

// IncEnqueueFailure records a snapshot the queue refused.
func (m *Metrics) IncEnqueueFailure(venue model.Venue) {
	if m == nil {
		return
	}
	m.enqueueFailures.WithLabelValues(venue.String()).Inc()
}

// ObserveSummary records a published summary and the latency of the snapshot that produced it.
func (m *Metrics) ObserveSummary(s model.Summary, receivedAt time.Time) {
	if m == nil {
		return
	}
	m.summaries.Inc()
	m.spread.Set(s.Spread)
	if !receivedAt.IsZero() {
		m.ingestLatency.Observe(time.Since(receivedAt).Seconds())
	}
}

// SubscriberAdded tracks a new summary stream.
func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

// SubscriberRemoved tracks a finished summary stream.
func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

// AddLagged records summaries skipped by a lagging subscriber.
func (m *Metrics) AddLagged(skipped uint64) {
	if m == nil {
		return
	}
	m.lagged.Add(float64(skipped))
}

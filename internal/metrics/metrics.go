package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	MessagesProcessed *prometheus.CounterVec
	EmotionsDetected  *prometheus.CounterVec
	ProcessingLatency prometheus.Histogram
	StoreFailures     *prometheus.CounterVec
	Fallbacks         *prometheus.CounterVec
	TrackedUsers      prometheus.Gauge
	Evictions         prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rapport_messages_processed_total",
			Help: "Messages processed, by intent and status",
		}, []string{"intent", "status"}),
		EmotionsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rapport_emotions_detected_total",
			Help: "Primary emotions detected",
		}, []string{"emotion"}),
		ProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rapport_processing_seconds",
			Help:    "Time spent processing one message",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		StoreFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rapport_store_failures_total",
			Help: "Durable profile store failures, by operation",
		}, []string{"op"}),
		Fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rapport_fallbacks_total",
			Help: "Degraded-path results, by kind",
		}, []string{"kind"}),
		TrackedUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rapport_tracked_users",
			Help: "Users currently held in memory",
		}),
		Evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapport_evictions_total",
			Help: "Users evicted by the capacity policy",
		}),
	}
}

// ObserveMessage records one processed message.
func (m *Metrics) ObserveMessage(intent, emotion, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.MessagesProcessed.WithLabelValues(intent, status).Inc()
	if emotion != "" {
		m.EmotionsDetected.WithLabelValues(emotion).Inc()
	}
	m.ProcessingLatency.Observe(elapsed.Seconds())
}

// StoreFailure counts a failed durable-store operation.
func (m *Metrics) StoreFailure(op string) {
	if m == nil {
		return
	}
	m.StoreFailures.WithLabelValues(op).Inc()
}

// Fallback counts a degraded result.
func (m *Metrics) Fallback(kind string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(kind).Inc()
}

// SetTrackedUsers publishes the number of users held in memory.
func (m *Metrics) SetTrackedUsers(n int) {
	if m == nil {
		return
	}
	m.TrackedUsers.Set(float64(n))
}

// Evicted counts users dropped by the capacity policy.
func (m *Metrics) Evicted(n int) {
	if m == nil {
		return
	}
	m.Evictions.Add(float64(n))
}

// Package observability holds the Prometheus instruments of the service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics groups all Prometheus instruments used by the service. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Generations       *prometheus.CounterVec
	GenerationLatency prometheus.Histogram
	AudioBytes        prometheus.Counter
	InflightBatch     prometheus.Gauge
	BatchVoices       prometheus.Histogram
	SessionEvents     *prometheus.CounterVec
}

// NewMetrics registers the instruments with registerer.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		Generations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Speech generations by outcome.",
		}, []string{"outcome"}),
		GenerationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "Wall time of one speech generation.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		AudioBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "WAV bytes written to disk.",
		}),
		InflightBatch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_inflight_generations",
			Help:      "Batch generations currently holding a concurrency slot.",
		}),
		BatchVoices: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_voices",
			Help:      "Number of voices requested per batch.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
	}
}

// ObserveGeneration records one finished generation.
func (m *Metrics) ObserveGeneration(outcome string, elapsed time.Duration, audioBytes int) {
	if m == nil {
		return
	}

	m.Generations.WithLabelValues(outcome).Inc()
	m.GenerationLatency.Observe(elapsed.Seconds())
	m.AudioBytes.Add(float64(audioBytes))
}

// ObserveBatch records the size of a batch request.
func (m *Metrics) ObserveBatch(voices int) {
	if m == nil {
		return
	}

	m.BatchVoices.Observe(float64(voices))
}

// SlotAcquired and SlotReleased track batch concurrency.
func (m *Metrics) SlotAcquired() {
	if m == nil {
		return
	}

	m.InflightBatch.Inc()
}

func (m *Metrics) SlotReleased() {
	if m == nil {
		return
	}

	m.InflightBatch.Dec()
}

// SessionEvent counts a session lifecycle event.
func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}

	m.SessionEvents.WithLabelValues(event).Inc()
}

// Handler serves the metrics collected by gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

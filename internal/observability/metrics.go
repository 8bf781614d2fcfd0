package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	GenerationsInFlight prometheus.Gauge
	GenerationsTotal    *prometheus.CounterVec
	QueueJobs           *prometheus.CounterVec
	ChunksSynthesized   prometheus.Counter
	SynthesisLatency    prometheus.Histogram
	StitchOperations    *prometheus.CounterVec
	StreamObservers     *prometheus.GaugeVec

	// Stages holds the in-process rolling latency window served by the
	// stats endpoint.
	Stages *StageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Stages: NewStageWindow(256),
		GenerationsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generations_in_flight",
			Help:      "Number of text-to-speech requests currently executing.",
		}),
		GenerationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Completed generation requests by outcome.",
		}, []string{"outcome"}),
		QueueJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_jobs_total",
			Help:      "Queue job terminal transitions by status.",
		}, []string{"status"}),
		ChunksSynthesized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_synthesized_total",
			Help:      "Text chunks successfully synthesized.",
		}),
		SynthesisLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_synthesis_seconds",
			Help:      "Latency of one chunk synthesis call in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		StitchOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stitch_operations_total",
			Help:      "Audio concatenations by outcome.",
		}, []string{"outcome"}),
		StreamObservers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_observers",
			Help:      "Connected WebSocket observers by stream.",
		}, []string{"stream"}),
	}
}

func (m *Metrics) ObserveSynthesis(d time.Duration) {
	m.SynthesisLatency.Observe(d.Seconds())
	m.ChunksSynthesized.Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

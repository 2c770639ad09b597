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
	CallsInitiated *prometheus.CounterVec
	CallsCompleted *prometheus.CounterVec
	Errors         *prometheus.CounterVec

	ActiveCalls          prometheus.Gauge
	QueuedCalls          prometheus.Gauge
	WebsocketConnections prometheus.Gauge

	CallDuration prometheus.Histogram
	LLMDuration  *prometheus.HistogramVec
	STTDuration  prometheus.Histogram
	TTSDuration  prometheus.Histogram

	// Stages keeps a short rolling window of per-turn latencies for the
	// detailed health endpoint.
	Stages *StageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Stages: NewStageWindow(256),
		CallsInitiated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_initiated_total",
			Help:      "Outbound calls placed, by campaign and dial status.",
		}, []string{"campaign", "status"}),
		CallsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_completed_total",
			Help:      "Calls reaching a terminal state, by campaign and outcome.",
		}, []string{"campaign", "outcome"}),
		Errors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by kind and component.",
		}, []string{"type", "component"}),
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Calls currently connected to the voice pipeline.",
		}),
		QueuedCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_calls",
			Help:      "Scheduled calls pending dispatch.",
		}),
		WebsocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open telephony media websocket connections.",
		}),
		CallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Connected call duration in seconds.",
			Buckets:   []float64{5, 15, 30, 60, 120, 240, 420, 600},
		}),
		LLMDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM turn latency in seconds.",
			Buckets:   []float64{0.2, 0.4, 0.7, 1, 1.5, 2.5, 5, 10},
		}, []string{"model"}),
		STTDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_request_duration_seconds",
			Help:      "STT request latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.8, 1.2, 2, 4, 10},
		}),
		TTSDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tts_request_duration_seconds",
			Help:      "TTS request latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.8, 1.2, 2, 4, 10},
		}),
	}
}

// CountError increments errors_total for one failure.
func (m *Metrics) CountError(kind, component string) {
	m.Errors.WithLabelValues(kind, component).Inc()
}

func (m *Metrics) ObserveCallDuration(d time.Duration) {
	m.CallDuration.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
